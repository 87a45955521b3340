package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"kanban-api/domain"
)

type backend interface {
	GetBoard(ctx context.Context, id string) (*domain.Board, string, error)
	UpdateBoard(ctx context.Context, b *domain.Board, etag string) error
	DeleteBoard(ctx context.Context, id string) error
	ListTasksByBoard(ctx context.Context, boardID string) ([]domain.Task, error)
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	InsertTask(ctx context.Context, t *domain.Task) error
	UpdateTask(ctx context.Context, t *domain.Task) error
	DeleteTask(ctx context.Context, id string) error
	DeleteTasks(ctx context.Context, ids []string) error
	DeleteTasksByBoard(ctx context.Context, boardID string) error
}

type cachedBoard struct {
	Board *domain.Board `json:"board"`
	ETag  string        `json:"etag"`
}

// Cache wraps a Storage instance with Redis-backed caching for hot board
// reads. Every board or task write evicts the board's cache entries, a
// conflicted conditional write included, so retry loops always re-read fresh
// state.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) GetBoard(ctx context.Context, id string) (*domain.Board, string, error) {
	if b, etag, ok := c.loadBoardFromCache(ctx, id); ok {
		return b, etag, nil
	}

	b, etag, err := c.base.GetBoard(ctx, id)
	if err != nil {
		return nil, "", err
	}

	c.storeBoard(ctx, id, b, etag)
	return b, etag, nil
}

func (c *Cache) UpdateBoard(ctx context.Context, b *domain.Board, etag string) error {
	err := c.base.UpdateBoard(ctx, b, etag)
	c.EvictBoard(ctx, b.ID)
	return err
}

func (c *Cache) DeleteBoard(ctx context.Context, id string) error {
	err := c.base.DeleteBoard(ctx, id)
	c.EvictBoard(ctx, id)
	return err
}

func (c *Cache) InsertTask(ctx context.Context, t *domain.Task) error {
	err := c.base.InsertTask(ctx, t)
	c.EvictBoard(ctx, t.BoardID)
	return err
}

func (c *Cache) UpdateTask(ctx context.Context, t *domain.Task) error {
	err := c.base.UpdateTask(ctx, t)
	c.EvictBoard(ctx, t.BoardID)
	return err
}

func (c *Cache) DeleteTask(ctx context.Context, id string) error {
	boardID := c.taskBoard(ctx, id)
	err := c.base.DeleteTask(ctx, id)
	if boardID != "" {
		c.EvictBoard(ctx, boardID)
	}
	return err
}

func (c *Cache) DeleteTasks(ctx context.Context, ids []string) error {
	boardID := ""
	if len(ids) > 0 {
		boardID = c.taskBoard(ctx, ids[0])
	}
	err := c.base.DeleteTasks(ctx, ids)
	if boardID != "" {
		c.EvictBoard(ctx, boardID)
	}
	return err
}

// taskBoard resolves the board a task belongs to. Looked up before the task
// document goes away, so the eviction after the delete has a key to target.
func (c *Cache) taskBoard(ctx context.Context, taskID string) string {
	if c.redis == nil {
		return ""
	}
	t, err := c.base.GetTask(ctx, taskID)
	if err != nil {
		return ""
	}
	return t.BoardID
}

func (c *Cache) DeleteTasksByBoard(ctx context.Context, boardID string) error {
	err := c.base.DeleteTasksByBoard(ctx, boardID)
	c.EvictBoard(ctx, boardID)
	return err
}

func (c *Cache) ListTasksByBoard(ctx context.Context, boardID string) ([]domain.Task, error) {
	if tasks, ok := c.loadTasksFromCache(ctx, boardID); ok {
		return tasks, nil
	}

	tasks, err := c.base.ListTasksByBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}

	c.storeTasks(ctx, boardID, tasks)
	return tasks, nil
}

// EvictBoard drops the cached snapshot and task list for a board.
func (c *Cache) EvictBoard(ctx context.Context, boardID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, boardCacheKey(boardID), boardTasksCacheKey(boardID)).Result()
}

func (c *Cache) loadBoardFromCache(ctx context.Context, id string) (*domain.Board, string, bool) {
	if c.redis == nil {
		return nil, "", false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, boardCacheKey(id)).Err()
		}
		return nil, "", false
	}
	var entry cachedBoard
	if err := json.Unmarshal(data, &entry); err != nil || entry.Board == nil {
		_ = c.redis.Del(ctx, boardCacheKey(id)).Err()
		return nil, "", false
	}
	return entry.Board, entry.ETag, true
}

func (c *Cache) loadTasksFromCache(ctx context.Context, boardID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, boardTasksCacheKey(boardID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, boardTasksCacheKey(boardID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, boardTasksCacheKey(boardID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) storeBoard(ctx context.Context, id string, b *domain.Board, etag string) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(cachedBoard{Board: b, ETag: etag})
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardCacheKey(id), data, c.ttl).Err()
}

func (c *Cache) storeTasks(ctx context.Context, boardID string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardTasksCacheKey(boardID), data, c.ttl).Err()
}

func boardCacheKey(boardID string) string {
	return "board:" + boardID
}

func boardTasksCacheKey(boardID string) string {
	return "board-tasks:" + boardID
}
