package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	redisv9 "github.com/redis/go-redis/v9"
)

// Backend is a raw key/value device store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type MemoryBackend struct {
	cache *cache.Cache
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{cache: cache.New(cache.NoExpiration, 0)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	if x, found := b.cache.Get(key); found {
		raw := x.([]byte)
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, true, nil
	}
	return nil, false, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	b.cache.Set(key, stored, cache.NoExpiration)
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.cache.Delete(key)
	return nil
}

// SQLiteBackend keeps values in a single kv table.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(db *sql.DB) (*SQLiteBackend, error) {
	b := &SQLiteBackend{db: db}
	if err := b.migrate(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) migrate() error {
	_, err := b.db.Exec(`
CREATE TABLE IF NOT EXISTS kv (
  key TEXT PRIMARY KEY,
  value BLOB NOT NULL,
  updated_at_ms INTEGER NOT NULL
);
`)
	if err != nil {
		return fmt.Errorf("migrate local kv table failed: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	row := b.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key)
	var value []byte
	switch err := row.Scan(&value); {
	case err == nil:
		return value, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("read local key failed: %w", err)
	}
}

func (b *SQLiteBackend) Set(ctx context.Context, key string, value []byte) error {
	_, err := b.db.ExecContext(ctx, `
INSERT INTO kv (key, value, updated_at_ms) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at_ms = excluded.updated_at_ms
`, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("write local key failed: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete local key failed: %w", err)
	}
	return nil
}

const redisKeyPrefix = "suna:local:"

type RedisBackend struct {
	client *redisv9.Client
}

func NewRedisBackend(client *redisv9.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := b.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get local key failed: %w", err)
	}
	return raw, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := b.client.Set(ctx, redisKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set local key failed: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete local key failed: %w", err)
	}
	return nil
}
