package domain

import (
	"context"
	"fmt"
)

// ProjectService manages projects on behalf of their owners.
type ProjectService struct {
	projects ProjectStorage
	tasks    TaskStorage
}

func NewProjectService(projects ProjectStorage, tasks TaskStorage) ProjectService {
	return ProjectService{projects: projects, tasks: tasks}
}

// Create stores a new project owned by callerID.
func (s ProjectService) Create(ctx context.Context, callerID, name, description string) (Project, error) {
	if callerID == "" {
		return Project{}, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	name, err := validateProjectName(name)
	if err != nil {
		return Project{}, err
	}
	return s.projects.CreateProject(ctx, Project{OwnerID: callerID, Name: name, Description: description})
}

// List returns callerID's projects, each with its tasks in stored order.
func (s ProjectService) List(ctx context.Context, callerID string) ([]Project, error) {
	projects, err := s.projects.ListProjects(ctx, callerID)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		tasks, err := s.tasks.ListTasks(ctx, projects[i].ID)
		if err != nil {
			return nil, err
		}
		projects[i].Tasks = tasks
	}
	return projects, nil
}

// Get returns a single project with its tasks.
func (s ProjectService) Get(ctx context.Context, callerID, projectID string) (Project, error) {
	p, err := authorizeProject(ctx, s.projects, callerID, projectID)
	if err != nil {
		return Project{}, err
	}
	p.Tasks, err = s.tasks.ListTasks(ctx, projectID)
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

// Update renames or re-describes a project.
func (s ProjectService) Update(ctx context.Context, callerID, projectID string, upd ProjectUpdate) (Project, error) {
	if upd.Name != nil {
		name, err := validateProjectName(*upd.Name)
		if err != nil {
			return Project{}, err
		}
		upd.Name = &name
	}
	p, err := authorizeProject(ctx, s.projects, callerID, projectID)
	if err != nil {
		return Project{}, err
	}
	if upd.Name == nil && upd.Description == nil {
		return p, nil
	}
	return s.projects.UpdateProject(ctx, projectID, upd)
}

// Delete removes a project and all of its tasks.
func (s ProjectService) Delete(ctx context.Context, callerID, projectID string) error {
	if _, err := authorizeProject(ctx, s.projects, callerID, projectID); err != nil {
		return err
	}
	return s.projects.DeleteProject(ctx, projectID)
}

// Authorize checks that callerID owns projectID.
func (s ProjectService) Authorize(ctx context.Context, callerID, projectID string) (Project, error) {
	return authorizeProject(ctx, s.projects, callerID, projectID)
}
