package domain

import "context"

// PositionUpdate assigns a new position to a task.
type PositionUpdate struct {
	TaskID   string
	Position int
}

// PositionTx is a transaction scoped to a single project. Everything done
// through it becomes visible together when the enclosing WithinProject call
// returns nil, and not at all otherwise.
type PositionTx interface {
	// ListByProject returns the project's tasks ordered by position ascending.
	ListByProject(ctx context.Context) ([]Task, error)
	// Create inserts a task at the given position.
	Create(ctx context.Context, draft TaskDraft, position int) (Task, error)
	// DeleteByID removes a task of the project. It fails with ErrNotFound when absent.
	DeleteByID(ctx context.Context, taskID string) error
	// ApplyPositions rewrites the positions of the given tasks, all or nothing.
	ApplyPositions(ctx context.Context, updates []PositionUpdate) error
}

// TaskStorage is the persistence contract of the position manager and the task service.
type TaskStorage interface {
	// WithinProject runs fn in one transaction holding the project's
	// renumbering lock. It fails with ErrNotFound when the project does not exist.
	WithinProject(ctx context.Context, projectID string, fn func(ctx context.Context, tx PositionTx) error) error
	GetTask(ctx context.Context, taskID string) (Task, error)
	ListTasks(ctx context.Context, projectID string) ([]Task, error)
	UpdateTask(ctx context.Context, taskID string, upd TaskUpdate) (Task, error)
}

// ProjectStorage persists projects.
type ProjectStorage interface {
	CreateProject(ctx context.Context, p Project) (Project, error)
	GetProject(ctx context.Context, projectID string) (Project, error)
	ListProjects(ctx context.Context, ownerID string) ([]Project, error)
	UpdateProject(ctx context.Context, projectID string, upd ProjectUpdate) (Project, error)
	// DeleteProject removes the project together with its tasks.
	DeleteProject(ctx context.Context, projectID string) error
}

// UserStorage persists user accounts.
type UserStorage interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// Store bundles every persistence concern of the service.
type Store interface {
	TaskStorage
	ProjectStorage
	UserStorage
	Ping(ctx context.Context) error
}
