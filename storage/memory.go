package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskboard-api/domain"
)

// Memory is an in-process Store used for development and tests. WithinProject
// works on a copy of the project's tasks and swaps it in on success.
type Memory struct {
	mu       sync.RWMutex
	users    map[string]domain.User // by email
	projects map[string]domain.Project
	tasks    map[string]map[string]domain.Task // project id -> task id -> task
	owner    map[string]string                 // task id -> project id

	projectLocks *domain.KeyedMutex
	now          func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]domain.User),
		projects: make(map[string]domain.Project),
		tasks:    make(map[string]map[string]domain.Task),
		owner:    make(map[string]string),

		projectLocks: domain.NewKeyedMutex(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (m *Memory) WithinProject(ctx context.Context, projectID string, fn func(ctx context.Context, tx domain.PositionTx) error) error {
	unlock := m.projectLocks.Lock(projectID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	m.mu.RLock()
	_, ok := m.projects[projectID]
	working := make(map[string]domain.Task, len(m.tasks[projectID]))
	for id, t := range m.tasks[projectID] {
		working[id] = t
	}
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: project %s", domain.ErrNotFound, projectID)
	}

	tx := &memoryTx{projectID: projectID, tasks: working, now: m.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := checkUniquePositions(working); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[projectID]; !ok {
		return fmt.Errorf("%w: project %s", domain.ErrNotFound, projectID)
	}
	for id := range m.tasks[projectID] {
		if _, kept := working[id]; !kept {
			delete(m.owner, id)
		}
	}
	for id := range working {
		m.owner[id] = projectID
	}
	m.tasks[projectID] = working
	return nil
}

func checkUniquePositions(tasks map[string]domain.Task) error {
	seen := make(map[int]string, len(tasks))
	for id, t := range tasks {
		if other, dup := seen[t.Position]; dup {
			return fmt.Errorf("%w: tasks %s and %s share position %d", domain.ErrConstraintViolation, other, id, t.Position)
		}
		seen[t.Position] = id
	}
	return nil
}

func (m *Memory) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	projectID, ok := m.owner[taskID]
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: task %s", domain.ErrNotFound, taskID)
	}
	return m.tasks[projectID][taskID], nil
}

func (m *Memory) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedTasks(m.tasks[projectID]), nil
}

// UpdateTask holds the project lock so a concurrent WithinProject commit
// cannot overwrite the change with its stale working copy.
func (m *Memory) UpdateTask(ctx context.Context, taskID string, upd domain.TaskUpdate) (domain.Task, error) {
	m.mu.RLock()
	projectID, ok := m.owner[taskID]
	m.mu.RUnlock()
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: task %s", domain.ErrNotFound, taskID)
	}
	unlock := m.projectLocks.Lock(projectID)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[projectID][taskID]
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: task %s", domain.ErrNotFound, taskID)
	}
	if upd.Empty() {
		return t, nil
	}
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	t.UpdatedAt = m.now()
	m.tasks[projectID][taskID] = t
	return t, nil
}

func (m *Memory) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := m.projects[p.ID]; exists {
		return domain.Project{}, fmt.Errorf("%w: project %s exists", domain.ErrConstraintViolation, p.ID)
	}
	now := m.now()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Tasks = nil
	m.projects[p.ID] = p
	m.tasks[p.ID] = make(map[string]domain.Task)
	return p, nil
}

func (m *Memory) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[projectID]
	if !ok {
		return domain.Project{}, fmt.Errorf("%w: project %s", domain.ErrNotFound, projectID)
	}
	return p, nil
}

func (m *Memory) ListProjects(ctx context.Context, ownerID string) ([]domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Project{}
	for _, p := range m.projects {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) UpdateProject(ctx context.Context, projectID string, upd domain.ProjectUpdate) (domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return domain.Project{}, fmt.Errorf("%w: project %s", domain.ErrNotFound, projectID)
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	p.UpdatedAt = m.now()
	m.projects[projectID] = p
	return p, nil
}

func (m *Memory) DeleteProject(ctx context.Context, projectID string) error {
	unlock := m.projectLocks.Lock(projectID)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[projectID]; !ok {
		return fmt.Errorf("%w: project %s", domain.ErrNotFound, projectID)
	}
	for id := range m.tasks[projectID] {
		delete(m.owner, id)
	}
	delete(m.tasks, projectID)
	delete(m.projects, projectID)
	return nil
}

func (m *Memory) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[u.Email]; exists {
		return domain.User{}, fmt.Errorf("%w: email already registered", domain.ErrConstraintViolation)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = m.now()
	m.users[u.Email] = u
	return u, nil
}

func (m *Memory) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[email]
	if !ok {
		return domain.User{}, fmt.Errorf("%w: user", domain.ErrNotFound)
	}
	return u, nil
}

func sortedTasks(tasks map[string]domain.Task) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

type memoryTx struct {
	projectID string
	tasks     map[string]domain.Task
	now       func() time.Time
}

func (t *memoryTx) ListByProject(ctx context.Context) ([]domain.Task, error) {
	return sortedTasks(t.tasks), nil
}

func (t *memoryTx) Create(ctx context.Context, draft domain.TaskDraft, position int) (domain.Task, error) {
	status := draft.Status
	if status == "" {
		status = domain.StatusTodo
	}
	now := t.now()
	task := domain.Task{
		ID:          uuid.NewString(),
		ProjectID:   t.projectID,
		Title:       draft.Title,
		Description: draft.Description,
		Status:      status,
		Position:    position,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.tasks[task.ID] = task
	return task, nil
}

func (t *memoryTx) DeleteByID(ctx context.Context, taskID string) error {
	if _, ok := t.tasks[taskID]; !ok {
		return fmt.Errorf("%w: task %s", domain.ErrNotFound, taskID)
	}
	delete(t.tasks, taskID)
	return nil
}

func (t *memoryTx) ApplyPositions(ctx context.Context, updates []domain.PositionUpdate) error {
	for _, u := range updates {
		if _, ok := t.tasks[u.TaskID]; !ok {
			return fmt.Errorf("%w: task %s", domain.ErrNotFound, u.TaskID)
		}
		if u.Position < 0 {
			return fmt.Errorf("%w: negative position %d", domain.ErrInvalidInput, u.Position)
		}
	}
	now := t.now()
	for _, u := range updates {
		task := t.tasks[u.TaskID]
		task.Position = u.Position
		task.UpdatedAt = now
		t.tasks[u.TaskID] = task
	}
	return nil
}
