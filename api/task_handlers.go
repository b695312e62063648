package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

const headerIdempotencyKey = "Idempotency-Key"

func createTask(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, svc.Auth)
		if err != nil {
			return unauthorized(c, err)
		}
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return writeError(c, "decode", err)
		}
		status, err := domain.ParseStatus(req.Status)
		if err != nil {
			return writeError(c, "validate", err)
		}

		ctx := c.Request().Context()
		key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))
		if key != "" && svc.Dedup != nil {
			added, err := svc.Dedup.Add(ctx, userID, key)
			if err != nil {
				// The deduper is best effort; a Redis outage must not block writes.
				log.WithError(err).Warn("idempotency check failed")
				key = ""
			} else if !added {
				metricsFrom(c).SetErrorStage("duplicate")
				return c.JSON(http.StatusConflict, errorResponse{Error: "duplicate request"})
			}
		}

		task, err := timed(c, func(ctx context.Context) (domain.Task, error) {
			return svc.Tasks.Create(ctx, userID, req.ProjectID, domain.TaskDraft{
				Title:       req.Title,
				Description: req.Description,
				Status:      status,
			})
		})
		if err != nil {
			if key != "" && svc.Dedup != nil {
				if rerr := svc.Dedup.Remove(context.WithoutCancel(ctx), userID, key); rerr != nil {
					log.WithError(rerr).Warn("release idempotency key failed")
				}
			}
			return writeError(c, "create_task", err)
		}
		log.WithFields(log.Fields{
			"task_id":    task.ID,
			"project_id": task.ProjectID,
			"position":   task.Position,
		}).Info("task created")
		notify(c, svc, task.ProjectID)
		return c.JSON(http.StatusCreated, task)
	}
}

func getTask(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, svc.Auth)
		if err != nil {
			return unauthorized(c, err)
		}
		task, err := timed(c, func(ctx context.Context) (domain.Task, error) {
			return svc.Tasks.Get(ctx, userID, c.Param("id"))
		})
		if err != nil {
			return writeError(c, "get_task", err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func updateTask(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, svc.Auth)
		if err != nil {
			return unauthorized(c, err)
		}
		var req updateTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return writeError(c, "decode", err)
		}
		upd := domain.TaskUpdate{Title: req.Title, Description: req.Description}
		if req.Status != nil {
			status, err := domain.ParseStatus(*req.Status)
			if err != nil {
				return writeError(c, "validate", err)
			}
			upd.Status = &status
		}
		if req.Position != nil || req.ProjectID != nil {
			log.WithField("task_id", c.Param("id")).Debug("ignoring position/projectId in task update")
		}
		task, err := timed(c, func(ctx context.Context) (domain.Task, error) {
			return svc.Tasks.Update(ctx, userID, c.Param("id"), upd)
		})
		if err != nil {
			return writeError(c, "update_task", err)
		}
		notify(c, svc, task.ProjectID)
		return c.JSON(http.StatusOK, task)
	}
}

func moveTask(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, svc.Auth)
		if err != nil {
			return unauthorized(c, err)
		}
		var req moveTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return writeError(c, "decode", err)
		}
		if req.Position == nil {
			return writeError(c, "validate", fmt.Errorf("%w: position is required", domain.ErrInvalidInput))
		}
		task, err := timed(c, func(ctx context.Context) (domain.Task, error) {
			return svc.Tasks.Move(ctx, userID, c.Param("id"), *req.Position)
		})
		if err != nil {
			return writeError(c, "move_task", err)
		}
		notify(c, svc, task.ProjectID)
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, svc.Auth)
		if err != nil {
			return unauthorized(c, err)
		}
		task, err := timed(c, func(ctx context.Context) (domain.Task, error) {
			return svc.Tasks.Delete(ctx, userID, c.Param("id"))
		})
		if err != nil {
			return writeError(c, "delete_task", err)
		}
		log.WithFields(log.Fields{"task_id": task.ID, "project_id": task.ProjectID}).Info("task deleted")
		notify(c, svc, task.ProjectID)
		return c.NoContent(http.StatusNoContent)
	}
}
