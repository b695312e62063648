package api

import (
	"context"

	"taskboard-api/domain"
)

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate task creations.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}

// Notifier announces that a project's task list changed.
type Notifier interface {
	NotifyProject(ctx context.Context, projectID string)
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles what the handlers need.
type Services struct {
	Users    domain.UserService
	Projects domain.ProjectService
	Tasks    domain.TaskService
	Auth     Authenticator
	Health   Pinger
	Dedup    Deduper  // optional
	Notifier Notifier // optional
	Broker   *Broker  // optional; enables the SSE stream
}

type errorResponse struct {
	Error string `json:"error"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	Message string      `json:"message"`
	User    userPayload `json:"user"`
}

type userPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type projectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// createTaskRequest tolerates a client supplied position; appends always go to the end.
type createTaskRequest struct {
	ProjectID   string `json:"projectId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Position    *int   `json:"position"`
}

// updateTaskRequest accepts position and projectId so existing clients that
// resend the whole form keep working; both are ignored. Tasks never change
// project and only move changes order.
type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Position    *int    `json:"position"`
	ProjectID   *string `json:"projectId"`
}

type moveTaskRequest struct {
	Position *int `json:"position"`
}

type normalizeResponse struct {
	Updated int `json:"updated"`
}
