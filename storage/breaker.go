package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"taskboard-api/domain"
)

// BreakerSettings tunes when the store circuit opens.
type BreakerSettings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Breaker guards a Store with a circuit breaker. Only ErrStoreUnavailable
// counts as a failure; not-found and validation outcomes keep the circuit closed.
type Breaker struct {
	base domain.Store
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps base with a circuit breaker named "store".
func NewBreaker(base domain.Store, settings BreakerSettings) *Breaker {
	if base == nil {
		panic("storage.NewBreaker: base storage is nil")
	}
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "store",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domain.ErrStoreUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("store circuit breaker state changed")
		},
	})
	return &Breaker{base: base, cb: cb}
}

// State exposes the breaker state for health reporting.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func guarded[T any](b *Breaker, fn func() (T, error)) (T, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		return zero, err
	}
	return out.(T), nil
}

func guardedErr(b *Breaker, fn func() error) error {
	_, err := guarded(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (b *Breaker) Ping(ctx context.Context) error {
	return guardedErr(b, func() error { return b.base.Ping(ctx) })
}

func (b *Breaker) WithinProject(ctx context.Context, projectID string, fn func(ctx context.Context, tx domain.PositionTx) error) error {
	return guardedErr(b, func() error { return b.base.WithinProject(ctx, projectID, fn) })
}

func (b *Breaker) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	return guarded(b, func() (domain.Task, error) { return b.base.GetTask(ctx, taskID) })
}

func (b *Breaker) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	return guarded(b, func() ([]domain.Task, error) { return b.base.ListTasks(ctx, projectID) })
}

func (b *Breaker) UpdateTask(ctx context.Context, taskID string, upd domain.TaskUpdate) (domain.Task, error) {
	return guarded(b, func() (domain.Task, error) { return b.base.UpdateTask(ctx, taskID, upd) })
}

func (b *Breaker) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	return guarded(b, func() (domain.Project, error) { return b.base.CreateProject(ctx, p) })
}

func (b *Breaker) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	return guarded(b, func() (domain.Project, error) { return b.base.GetProject(ctx, projectID) })
}

func (b *Breaker) ListProjects(ctx context.Context, ownerID string) ([]domain.Project, error) {
	return guarded(b, func() ([]domain.Project, error) { return b.base.ListProjects(ctx, ownerID) })
}

func (b *Breaker) UpdateProject(ctx context.Context, projectID string, upd domain.ProjectUpdate) (domain.Project, error) {
	return guarded(b, func() (domain.Project, error) { return b.base.UpdateProject(ctx, projectID, upd) })
}

func (b *Breaker) DeleteProject(ctx context.Context, projectID string) error {
	return guardedErr(b, func() error { return b.base.DeleteProject(ctx, projectID) })
}

func (b *Breaker) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	return guarded(b, func() (domain.User, error) { return b.base.CreateUser(ctx, u) })
}

func (b *Breaker) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return guarded(b, func() (domain.User, error) { return b.base.GetUserByEmail(ctx, email) })
}
