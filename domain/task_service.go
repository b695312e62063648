package domain

import (
	"context"
	"fmt"
)

// TaskService applies ownership checks for a caller and delegates position
// changes to the PositionManager.
type TaskService struct {
	tasks    TaskStorage
	projects ProjectStorage
	pm       *PositionManager
}

func NewTaskService(tasks TaskStorage, projects ProjectStorage, pm *PositionManager) TaskService {
	return TaskService{tasks: tasks, projects: projects, pm: pm}
}

// authorizeProject loads the project and checks that callerID owns it.
func authorizeProject(ctx context.Context, projects ProjectStorage, callerID, projectID string) (Project, error) {
	if projectID == "" {
		return Project{}, fmt.Errorf("%w: project id is required", ErrInvalidInput)
	}
	p, err := projects.GetProject(ctx, projectID)
	if err != nil {
		return Project{}, err
	}
	if p.OwnerID != callerID {
		return Project{}, fmt.Errorf("%w: project %s", ErrForbidden, projectID)
	}
	return p, nil
}

// authorizeTask loads the task and checks that callerID owns its project.
func (s TaskService) authorizeTask(ctx context.Context, callerID, taskID string) (Task, error) {
	t, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if _, err := authorizeProject(ctx, s.projects, callerID, t.ProjectID); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Create appends a new task to a project owned by callerID.
func (s TaskService) Create(ctx context.Context, callerID, projectID string, draft TaskDraft) (Task, error) {
	if _, err := authorizeProject(ctx, s.projects, callerID, projectID); err != nil {
		return Task{}, err
	}
	return s.pm.Append(ctx, projectID, draft)
}

// Get returns a task owned by callerID.
func (s TaskService) Get(ctx context.Context, callerID, taskID string) (Task, error) {
	return s.authorizeTask(ctx, callerID, taskID)
}

// List returns the project's tasks in stored order.
func (s TaskService) List(ctx context.Context, callerID, projectID string) ([]Task, error) {
	if _, err := authorizeProject(ctx, s.projects, callerID, projectID); err != nil {
		return nil, err
	}
	return s.tasks.ListTasks(ctx, projectID)
}

// Update changes title, description or status. Positions are never touched.
func (s TaskService) Update(ctx context.Context, callerID, taskID string, upd TaskUpdate) (Task, error) {
	if err := upd.Validate(); err != nil {
		return Task{}, err
	}
	t, err := s.authorizeTask(ctx, callerID, taskID)
	if err != nil {
		return Task{}, err
	}
	if upd.Empty() {
		return t, nil
	}
	return s.tasks.UpdateTask(ctx, taskID, upd)
}

// Delete removes a task and renumbers its siblings. The removed task is
// returned so callers can tell which project changed.
func (s TaskService) Delete(ctx context.Context, callerID, taskID string) (Task, error) {
	t, err := s.authorizeTask(ctx, callerID, taskID)
	if err != nil {
		return Task{}, err
	}
	if err := s.pm.Remove(ctx, t.ProjectID, t.ID); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Move reorders a task to newPosition within its project.
func (s TaskService) Move(ctx context.Context, callerID, taskID string, newPosition int) (Task, error) {
	t, err := s.authorizeTask(ctx, callerID, taskID)
	if err != nil {
		return Task{}, err
	}
	return s.pm.Reorder(ctx, t.ProjectID, t.ID, newPosition)
}

// Normalize repairs the positions of a project owned by callerID.
func (s TaskService) Normalize(ctx context.Context, callerID, projectID string) (int, error) {
	if _, err := authorizeProject(ctx, s.projects, callerID, projectID); err != nil {
		return 0, err
	}
	return s.pm.Normalize(ctx, projectID)
}
