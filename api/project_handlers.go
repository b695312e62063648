package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

func listProjects(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, svc.Auth)
		if err != nil {
			return unauthorized(c, err)
		}
		projects, err := timed(c, func(ctx context.Context) ([]domain.Project, error) {
			return svc.Projects.List(ctx, userID)
		})
		if err != nil {
			return writeError(c, "list_projects", err)
		}
		if projects == nil {
			projects = []domain.Project{}
		}
		return c.JSON(http.StatusOK, projects)
	}
}

func createProject(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, svc.Auth)
		if err != nil {
			return unauthorized(c, err)
		}
		var req projectRequest
		if err := decodeBody(c, &req); err != nil {
			return writeError(c, "decode", err)
		}
		var name, description string
		if req.Name != nil {
			name = *req.Name
		}
		if req.Description != nil {
			description = *req.Description
		}
		project, err := timed(c, func(ctx context.Context) (domain.Project, error) {
			return svc.Projects.Create(ctx, userID, name, description)
		})
		if err != nil {
			return writeError(c, "create_project", err)
		}
		log.WithFields(log.Fields{"project_id": project.ID, "user_id": userID}).Info("project created")
		return c.JSON(http.StatusCreated, project)
	}
}

func getProject(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, svc.Auth)
		if err != nil {
			return unauthorized(c, err)
		}
		project, err := timed(c, func(ctx context.Context) (domain.Project, error) {
			return svc.Projects.Get(ctx, userID, c.Param("id"))
		})
		if err != nil {
			return writeError(c, "get_project", err)
		}
		return c.JSON(http.StatusOK, project)
	}
}

func updateProject(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, svc.Auth)
		if err != nil {
			return unauthorized(c, err)
		}
		var req projectRequest
		if err := decodeBody(c, &req); err != nil {
			return writeError(c, "decode", err)
		}
		project, err := timed(c, func(ctx context.Context) (domain.Project, error) {
			return svc.Projects.Update(ctx, userID, c.Param("id"), domain.ProjectUpdate{
				Name:        req.Name,
				Description: req.Description,
			})
		})
		if err != nil {
			return writeError(c, "update_project", err)
		}
		return c.JSON(http.StatusOK, project)
	}
}

func deleteProject(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, svc.Auth)
		if err != nil {
			return unauthorized(c, err)
		}
		projectID := c.Param("id")
		_, err = timed(c, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, svc.Projects.Delete(ctx, userID, projectID)
		})
		if err != nil {
			return writeError(c, "delete_project", err)
		}
		log.WithFields(log.Fields{"project_id": projectID, "user_id": userID}).Info("project deleted")
		notify(c, svc, projectID)
		return c.NoContent(http.StatusNoContent)
	}
}

func listProjectTasks(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, svc.Auth)
		if err != nil {
			return unauthorized(c, err)
		}
		view := c.QueryParam("view")
		if view != "" && view != "position" && view != "board" {
			return writeError(c, "invalid_view", fmt.Errorf("%w: unknown view %q", domain.ErrInvalidInput, view))
		}
		tasks, err := timed(c, func(ctx context.Context) ([]domain.Task, error) {
			return svc.Tasks.List(ctx, userID, c.Param("id"))
		})
		if err != nil {
			return writeError(c, "list_tasks", err)
		}
		if view == "board" {
			tasks = domain.SortForBoard(tasks)
		}
		metricsFrom(c).SetTasksReturned(len(tasks))
		return c.JSON(http.StatusOK, taskListPayload(tasks))
	}
}

func normalizeProject(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, svc.Auth)
		if err != nil {
			return unauthorized(c, err)
		}
		projectID := c.Param("id")
		updated, err := timed(c, func(ctx context.Context) (int, error) {
			return svc.Tasks.Normalize(ctx, userID, projectID)
		})
		if err != nil {
			return writeError(c, "normalize", err)
		}
		if updated > 0 {
			notify(c, svc, projectID)
		}
		return c.JSON(http.StatusOK, normalizeResponse{Updated: updated})
	}
}
