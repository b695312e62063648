package storage

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// generationTTL outlives any in-flight listing so a counter never resets under one.
const generationTTL = 24 * time.Hour

var errStaleListing = errors.New("listing read before a newer write")

// Cache wraps a Store with Redis-backed caching of per-project task listings.
// Every successful write through the wrapper bumps the project's generation
// and evicts its listing; a listing is only cached if the generation it was
// read under is still current.
type Cache struct {
	domain.Store
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Store wrapper using the provided Redis client and TTL.
func NewCache(base domain.Store, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{Store: base, redis: client, ttl: ttl}
}

func (c *Cache) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	if tasks, ok := c.loadTasksFromCache(ctx, projectID); ok {
		return tasks, nil
	}

	gen, genOK := c.generation(ctx, c.redis, projectID)
	tasks, err := c.Store.ListTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if genOK {
		c.storeTasks(ctx, projectID, gen, tasks)
	}
	return tasks, nil
}

func (c *Cache) WithinProject(ctx context.Context, projectID string, fn func(ctx context.Context, tx domain.PositionTx) error) error {
	if err := c.Store.WithinProject(ctx, projectID, fn); err != nil {
		return err
	}
	c.evict(ctx, projectID)
	return nil
}

func (c *Cache) UpdateTask(ctx context.Context, taskID string, upd domain.TaskUpdate) (domain.Task, error) {
	task, err := c.Store.UpdateTask(ctx, taskID, upd)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, task.ProjectID)
	return task, nil
}

func (c *Cache) DeleteProject(ctx context.Context, projectID string) error {
	if err := c.Store.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	c.evict(ctx, projectID)
	return nil
}

func (c *Cache) loadTasksFromCache(ctx context.Context, projectID string) ([]domain.Task, bool) {
	if c.redis == nil || c.ttl == 0 {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(projectID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			log.WithError(err).Debug("task cache read failed")
			_ = c.redis.Del(ctx, tasksCacheKey(projectID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(projectID)).Err()
		return nil, false
	}
	return tasks, true
}

// generation returns the project's write counter; a missing counter reads as 0.
func (c *Cache) generation(ctx context.Context, r interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}, projectID string) (int64, bool) {
	if c.redis == nil || c.ttl == 0 {
		return 0, false
	}
	raw, err := r.Get(ctx, generationKey(projectID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		return 0, false
	}
	gen, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return gen, true
}

// storeTasks caches the listing unless a write bumped the generation since gen was read.
func (c *Cache) storeTasks(ctx context.Context, projectID string, gen int64, tasks []domain.Task) {
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return
	}
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, ok := c.generation(ctx, tx, projectID)
		if !ok || current != gen {
			return errStaleListing
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, tasksCacheKey(projectID), data, c.ttl)
			return nil
		})
		return err
	}, generationKey(projectID))
	if err != nil && !errors.Is(err, errStaleListing) && !errors.Is(err, redis.TxFailedErr) {
		log.WithError(err).Debug("task cache write failed")
	}
}

func (c *Cache) evict(ctx context.Context, projectID string) {
	if c.redis == nil || projectID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	genKey := generationKey(projectID)
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, tasksCacheKey(projectID))
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("project_id", projectID).Warn("task cache eviction failed")
	}
}

func tasksCacheKey(projectID string) string {
	return "tasks:" + projectID
}

func generationKey(projectID string) string {
	return "tasks:gen:" + projectID
}
