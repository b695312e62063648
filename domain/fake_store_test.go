package domain

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// fakeStore keeps tasks in memory. Transactions work on a snapshot and are
// committed wholesale; the store itself takes no project lock, so any
// serialisation observed in tests comes from the PositionManager.
type fakeStore struct {
	mu       sync.Mutex
	seq      int
	tasks    map[string]Task
	projects map[string]Project
	users    map[string]User

	listErr   error
	createErr error
	deleteErr error
	applyErr  error
	commits   int
	applied   [][]PositionUpdate
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:    map[string]Task{},
		projects: map[string]Project{},
		users:    map[string]User{},
	}
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return prefix + strconv.Itoa(f.seq)
}

func (f *fakeStore) addProject(owner string) Project {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := Project{ID: f.nextID("p"), OwnerID: owner, Name: "project"}
	f.projects[p.ID] = p
	return p
}

// seed inserts tasks with explicit positions, bypassing the manager.
func (f *fakeStore) seed(projectID string, titles []string, positions []int) []Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Task, len(titles))
	for i, title := range titles {
		t := Task{ID: f.nextID("t"), ProjectID: projectID, Title: title, Status: StatusTodo, Position: positions[i], CreatedAt: time.Unix(int64(f.seq), 0)}
		f.tasks[t.ID] = t
		out[i] = t
	}
	return out
}

func (f *fakeStore) projectTasks(projectID string) []Task {
	out := []Task{}
	for _, t := range f.tasks {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	sortTasks(out)
	return out
}

func sortTasks(tasks []Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Position != tasks[j].Position {
			return tasks[i].Position < tasks[j].Position
		}
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

func (f *fakeStore) positions(projectID string) map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int{}
	for _, t := range f.projectTasks(projectID) {
		out[t.ID] = t.Position
	}
	return out
}

func (f *fakeStore) snapshot(projectID string) []Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.projectTasks(projectID)
}

type fakeTx struct {
	f         *fakeStore
	projectID string
	work      map[string]Task
}

func (f *fakeStore) WithinProject(ctx context.Context, projectID string, fn func(ctx context.Context, tx PositionTx) error) error {
	f.mu.Lock()
	if _, ok := f.projects[projectID]; !ok {
		f.mu.Unlock()
		return fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	tx := &fakeTx{f: f, projectID: projectID, work: map[string]Task{}}
	for _, t := range f.projectTasks(projectID) {
		tx.work[t.ID] = t
	}
	f.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[int]bool{}
	for _, t := range tx.work {
		if seen[t.Position] {
			return fmt.Errorf("%w: duplicate position %d", ErrConstraintViolation, t.Position)
		}
		seen[t.Position] = true
	}
	for id, t := range f.tasks {
		if t.ProjectID == projectID {
			delete(f.tasks, id)
		}
	}
	for id, t := range tx.work {
		f.tasks[id] = t
	}
	f.commits++
	return nil
}

func (tx *fakeTx) ListByProject(ctx context.Context) ([]Task, error) {
	if tx.f.listErr != nil {
		return nil, tx.f.listErr
	}
	out := make([]Task, 0, len(tx.work))
	for _, t := range tx.work {
		out = append(out, t)
	}
	sortTasks(out)
	return out, nil
}

func (tx *fakeTx) Create(ctx context.Context, draft TaskDraft, position int) (Task, error) {
	if tx.f.createErr != nil {
		return Task{}, tx.f.createErr
	}
	tx.f.mu.Lock()
	id := tx.f.nextID("t")
	tx.f.mu.Unlock()
	now := time.Now()
	t := Task{ID: id, ProjectID: tx.projectID, Title: draft.Title, Description: draft.Description, Status: draft.Status, Position: position, CreatedAt: now, UpdatedAt: now}
	tx.work[id] = t
	return t, nil
}

func (tx *fakeTx) DeleteByID(ctx context.Context, taskID string) error {
	if tx.f.deleteErr != nil {
		return tx.f.deleteErr
	}
	if _, ok := tx.work[taskID]; !ok {
		return fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	delete(tx.work, taskID)
	return nil
}

func (tx *fakeTx) ApplyPositions(ctx context.Context, updates []PositionUpdate) error {
	if tx.f.applyErr != nil {
		return tx.f.applyErr
	}
	for _, u := range updates {
		t, ok := tx.work[u.TaskID]
		if !ok {
			return fmt.Errorf("%w: task %s", ErrNotFound, u.TaskID)
		}
		t.Position = u.Position
		t.UpdatedAt = time.Now()
		tx.work[u.TaskID] = t
	}
	tx.f.mu.Lock()
	tx.f.applied = append(tx.f.applied, append([]PositionUpdate(nil), updates...))
	tx.f.mu.Unlock()
	return nil
}

func (f *fakeStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return Task{}, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	return t, nil
}

func (f *fakeStore) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	return f.snapshot(projectID), nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, taskID string, upd TaskUpdate) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return Task{}, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
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
	f.tasks[taskID] = t
	return t, nil
}

func (f *fakeStore) CreateProject(ctx context.Context, p Project) (Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = f.nextID("p")
	f.projects[p.ID] = p
	return p, nil
}

func (f *fakeStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok {
		return Project{}, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	return p, nil
}

func (f *fakeStore) ListProjects(ctx context.Context, ownerID string) ([]Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Project{}
	for _, p := range f.projects {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateProject(ctx context.Context, projectID string, upd ProjectUpdate) (Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok {
		return Project{}, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	f.projects[projectID] = p
	return p, nil
}

func (f *fakeStore) DeleteProject(ctx context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[projectID]; !ok {
		return fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	delete(f.projects, projectID)
	for id, t := range f.tasks {
		if t.ProjectID == projectID {
			delete(f.tasks, id)
		}
	}
	return nil
}

func (f *fakeStore) CreateUser(ctx context.Context, u User) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return User{}, fmt.Errorf("%w: email taken", ErrConstraintViolation)
		}
	}
	u.ID = f.nextID("u")
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("%w: user %s", ErrNotFound, email)
}
