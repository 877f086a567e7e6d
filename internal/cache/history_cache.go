// Package cache fronts remote message reads. Writers mark a session dirty before the
// cached history is dropped, so a read racing a write never repopulates stale history.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	redisv9 "github.com/redis/go-redis/v9"

	"suna-chat/internal/chat"
)

const (
	defaultHistoryTTL = 60 * time.Second
	defaultDirtyTTL   = 5 * time.Second
)

func normalizeTTL(historyTTL, dirtyMarkerTTL time.Duration) (time.Duration, time.Duration) {
	if historyTTL <= 0 {
		historyTTL = defaultHistoryTTL
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = defaultDirtyTTL
	}
	return historyTTL, dirtyMarkerTTL
}

// HistoryCache stores message history in Redis, shared by every server instance.
type HistoryCache struct {
	client         *redisv9.Client
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewHistoryCache(client *redisv9.Client, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	historyTTL, dirtyMarkerTTL = normalizeTTL(historyTTL, dirtyMarkerTTL)
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *HistoryCache) GetHistory(ctx context.Context, sessionID string) ([]chat.Message, bool, error) {
	raw, err := c.client.Get(ctx, historyKey(sessionID)).Bytes()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var messages []chat.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return messages, true, nil
}

func (c *HistoryCache) SetHistory(ctx context.Context, sessionID string, messages []chat.Message) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, historyKey(sessionID), payload, c.historyTTL).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) DeleteHistory(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, historyKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) MarkDirty(ctx context.Context, sessionID string) error {
	if err := c.client.Set(ctx, dirtyKey(sessionID), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) IsDirty(ctx context.Context, sessionID string) (bool, error) {
	exists, err := c.client.Exists(ctx, dirtyKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func historyKey(sessionID string) string {
	return "suna:history:" + sessionID
}

func dirtyKey(sessionID string) string {
	return "suna:history:dirty:" + sessionID
}

// MemoryHistoryCache is the single-instance fallback used when Redis is disabled.
type MemoryHistoryCache struct {
	items          *gocache.Cache
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewMemoryHistoryCache(historyTTL, dirtyMarkerTTL time.Duration) *MemoryHistoryCache {
	historyTTL, dirtyMarkerTTL = normalizeTTL(historyTTL, dirtyMarkerTTL)
	return &MemoryHistoryCache{
		items:          gocache.New(historyTTL, 2*historyTTL),
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *MemoryHistoryCache) GetHistory(_ context.Context, sessionID string) ([]chat.Message, bool, error) {
	v, ok := c.items.Get(historyKey(sessionID))
	if !ok {
		return nil, false, nil
	}
	cached := v.([]chat.Message)
	out := make([]chat.Message, len(cached))
	copy(out, cached)
	return out, true, nil
}

func (c *MemoryHistoryCache) SetHistory(_ context.Context, sessionID string, messages []chat.Message) error {
	stored := make([]chat.Message, len(messages))
	copy(stored, messages)
	c.items.Set(historyKey(sessionID), stored, c.historyTTL)
	return nil
}

func (c *MemoryHistoryCache) DeleteHistory(_ context.Context, sessionID string) error {
	c.items.Delete(historyKey(sessionID))
	return nil
}

func (c *MemoryHistoryCache) MarkDirty(_ context.Context, sessionID string) error {
	c.items.Set(dirtyKey(sessionID), true, c.dirtyMarkerTTL)
	return nil
}

func (c *MemoryHistoryCache) IsDirty(_ context.Context, sessionID string) (bool, error) {
	_, ok := c.items.Get(dirtyKey(sessionID))
	return ok, nil
}
