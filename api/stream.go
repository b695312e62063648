package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

const streamKeepAlive = 15 * time.Second

// Broker fans project change signals out to SSE subscribers of this instance.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan struct{}]struct{})}
}

func (b *Broker) subscribe(projectID string) chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	if b.subs[projectID] == nil {
		b.subs[projectID] = make(map[chan struct{}]struct{})
	}
	b.subs[projectID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) unsubscribe(projectID string, ch chan struct{}) {
	b.mu.Lock()
	delete(b.subs[projectID], ch)
	if len(b.subs[projectID]) == 0 {
		delete(b.subs, projectID)
	}
	b.mu.Unlock()
}

func (b *Broker) subscribers(projectID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[projectID])
}

// NotifyProject wakes every local subscriber of the project. Pending signals coalesce.
func (b *Broker) NotifyProject(_ context.Context, projectID string) {
	b.mu.Lock()
	for ch := range b.subs[projectID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

type projectUpdate struct {
	ProjectID string `json:"projectId"`
}

// RedisNotifier publishes project changes so every instance can wake its subscribers.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier creates a notifier publishing on the given channel.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

func (r *RedisNotifier) NotifyProject(ctx context.Context, projectID string) {
	data, err := sonic.Marshal(projectUpdate{ProjectID: projectID})
	if err != nil {
		return
	}
	if err := r.client.Publish(context.WithoutCancel(ctx), r.channel, data).Err(); err != nil {
		log.WithError(err).WithField("project_id", projectID).Warn("publish project update failed")
	}
}

// SubscribeUpdates relays project updates from Redis into the local broker
// until ctx is cancelled, reconnecting when the subscription drops.
func SubscribeUpdates(ctx context.Context, rc *redis.Client, channel string, broker *Broker) {
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	loop:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop
				}
				var ev projectUpdate
				if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil || ev.ProjectID == "" {
					log.WithField("channel", channel).Warn("unable to parse project update")
					continue
				}
				broker.NotifyProject(ctx, ev.ProjectID)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		log.WithField("channel", channel).Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// streamProjectTasks pushes the project's task list on connect and after every change.
func streamProjectTasks(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := svc.Auth.UserIDFromAuthHeader(authHeaderFromRequest(c.Request(), true))
		if err != nil {
			return unauthorized(c, err)
		}
		projectID := c.Param("id")
		ctx := c.Request().Context()
		if _, err := svc.Projects.Authorize(ctx, userID, projectID); err != nil {
			return writeError(c, "authorize", err)
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "stream unsupported"})
		}
		c.Response().WriteHeader(http.StatusOK)

		ch := svc.Broker.subscribe(projectID)
		defer svc.Broker.unsubscribe(projectID, ch)
		keepAlive := time.NewTicker(streamKeepAlive)
		defer keepAlive.Stop()

		for {
			tasks, err := svc.Tasks.List(ctx, userID, projectID)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.WithError(err).WithField("project_id", projectID).Warn("stream listing failed")
				_ = writeSSE(c, "error", []byte(`{"error":"listing failed"}`))
				flusher.Flush()
				return nil
			}
			data, err := sonic.Marshal(taskListPayload(tasks))
			if err != nil {
				return err
			}
			if err := writeSSE(c, "tasks", data); err != nil {
				return nil
			}
			flusher.Flush()

		wait:
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-keepAlive.C:
					if _, err := c.Response().Write([]byte(": ping\n\n")); err != nil {
						return nil
					}
					flusher.Flush()
				case <-ch:
					break wait
				}
			}
		}
	}
}

func taskListPayload(tasks []domain.Task) []domain.Task {
	if tasks == nil {
		return []domain.Task{}
	}
	return tasks
}

func writeSSE(c echo.Context, event string, data []byte) error {
	w := c.Response()
	if _, err := w.Write([]byte("event: " + event + "\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n\n"))
	return err
}
