package localstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"suna-chat/internal/chat"
	"suna-chat/internal/platform/sqlite"
)

func sessionWith(id string, updatedAt int64, contents ...string) chat.Session {
	s := chat.Session{ID: id, Title: chat.DefaultTitle, CreatedAt: updatedAt, UpdatedAt: updatedAt, Messages: []chat.Message{}}
	for i, c := range contents {
		s.Messages = append(s.Messages, chat.Message{Role: chat.RoleUser, Content: c, Timestamp: updatedAt + int64(i)})
	}
	return s
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	out := map[string]Backend{"memory": NewMemoryBackend()}

	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	sqliteBackend, err := NewSQLiteBackend(db)
	require.NoError(t, err)
	out["sqlite"] = sqliteBackend

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redisv9.NewClient(&redisv9.Options{Addr: addr})
		t.Cleanup(func() { _ = client.Close() })
		out["redis"] = NewRedisBackend(client)
	}
	return out
}

func TestStore_Backends(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			// Unique scope so a shared redis does not leak state between runs.
			store := NewStore(backend, zap.NewNop()).WithScope(uint(uuid.New().ID()))

			assert.Empty(t, store.GetAll(ctx))

			require.NoError(t, store.Save(ctx, sessionWith("a", 100, "hi")))
			require.NoError(t, store.Save(ctx, sessionWith("b", 200, "yo")))
			all := store.GetAll(ctx)
			require.Len(t, all, 2)
			assert.Equal(t, "b", all[0].ID)

			updated := sessionWith("a", 300, "hi", "again")
			require.NoError(t, store.Save(ctx, updated))
			got, ok := store.Get(ctx, "a")
			require.True(t, ok)
			assert.Len(t, got.Messages, 2)
			assert.Len(t, store.GetAll(ctx), 2)

			require.NoError(t, store.Delete(ctx, "a"))
			require.NoError(t, store.Delete(ctx, "missing"))
			_, ok = store.Get(ctx, "a")
			assert.False(t, ok)
		})
	}
}

func TestStore_SaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(), nil)
	s := sessionWith("a", 100, "hi")

	require.NoError(t, store.Save(ctx, s))
	first := store.GetAll(ctx)
	require.NoError(t, store.Save(ctx, s))
	assert.Equal(t, first, store.GetAll(ctx))
}

func TestStore_RenameAndTogglePin(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(), nil)
	store.now = func() time.Time { return time.UnixMilli(50) }
	require.NoError(t, store.Save(ctx, sessionWith("a", 100, "hi")))

	require.NoError(t, store.Rename(ctx, "a", "  Groceries "))
	got, _ := store.Get(ctx, "a")
	assert.Equal(t, "Groceries", got.Title)
	assert.True(t, got.IsManuallyRenamed)
	assert.Equal(t, int64(101), got.UpdatedAt)

	require.NoError(t, store.TogglePin(ctx, "a"))
	got, _ = store.Get(ctx, "a")
	assert.True(t, got.IsPinned)
	assert.Equal(t, int64(102), got.UpdatedAt)

	assert.ErrorIs(t, store.Rename(ctx, "missing", "x"), ErrSessionNotFound)
	assert.ErrorIs(t, store.TogglePin(ctx, "missing"), ErrSessionNotFound)
}

func TestStore_ScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	base := NewStore(NewMemoryBackend(), nil)
	guest := base.WithScope(0)
	alice := base.WithScope(7)

	require.NoError(t, guest.Save(ctx, sessionWith("g", 1, "x")))
	require.NoError(t, alice.Save(ctx, sessionWith("a", 1, "x")))

	require.Len(t, guest.GetAll(ctx), 1)
	assert.Equal(t, "g", guest.GetAll(ctx)[0].ID)
	require.Len(t, alice.GetAll(ctx), 1)
	assert.Equal(t, "a", alice.GetAll(ctx)[0].ID)
	assert.Equal(t, "chatSessions:7", ScopedKey(sessionsKey, 7))
}

func TestStore_CorruptDataReadsEmpty(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	require.NoError(t, backend.Set(ctx, sessionsKey, []byte("{not json")))

	store := NewStore(backend, nil)
	assert.Empty(t, store.GetAll(ctx))

	require.NoError(t, store.Save(ctx, sessionWith("a", 1, "x")))
	assert.Len(t, store.GetAll(ctx), 1)
}

func TestStore_ReplaceAll(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(), nil)
	require.NoError(t, store.Save(ctx, sessionWith("old", 1, "x")))

	require.NoError(t, store.ReplaceAll(ctx, []chat.Session{sessionWith("new", 2, "y")}))
	all := store.GetAll(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, "new", all[0].ID)
}
