package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const healthTimeout = 2 * time.Second

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc Services, logger *log.Logger) {
	e.GET("/healthz", healthz(svc.Health))

	authGroup := e.Group("/auth", RequestMetrics(logger))
	authGroup.POST("/register", register(svc))
	authGroup.POST("/login", login(svc))

	g := e.Group("/api", RequestMetrics(logger))
	g.GET("/projects", listProjects(svc))
	g.POST("/projects", createProject(svc))
	g.GET("/projects/:id", getProject(svc))
	g.PUT("/projects/:id", updateProject(svc))
	g.DELETE("/projects/:id", deleteProject(svc))
	g.GET("/projects/:id/tasks", listProjectTasks(svc))
	g.POST("/projects/:id/normalize", normalizeProject(svc))
	if svc.Broker != nil {
		g.GET("/projects/:id/stream", streamProjectTasks(svc))
	}

	g.POST("/tasks", createTask(svc))
	g.GET("/tasks/:id", getTask(svc))
	g.PUT("/tasks/:id", updateTask(svc))
	g.POST("/tasks/:id/move", moveTask(svc))
	g.DELETE("/tasks/:id", deleteTask(svc))
}

func healthz(store Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if store == nil {
			return c.NoContent(http.StatusOK)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			log.WithError(err).Warn("health check failed")
			return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "store unavailable"})
		}
		return c.NoContent(http.StatusOK)
	}
}

// authenticate resolves the caller from the Authorization header.
func authenticate(c echo.Context, auth Authenticator) (string, error) {
	start := time.Now()
	userID, err := auth.UserIDFromAuthHeader(authHeaderFromRequest(c.Request(), false))
	metricsFrom(c).ObserveAuth(time.Since(start))
	return userID, err
}

// timed runs a store-bound call and records its duration on the request metrics.
func timed[T any](c echo.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	out, err := fn(c.Request().Context())
	metricsFrom(c).ObserveStore(time.Since(start))
	return out, err
}

func notify(c echo.Context, svc Services, projectID string) {
	if svc.Notifier == nil || projectID == "" {
		return
	}
	svc.Notifier.NotifyProject(c.Request().Context(), projectID)
}
