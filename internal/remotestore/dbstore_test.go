package remotestore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"suna-chat/internal/changefeed"
	"suna-chat/internal/chat"
	"suna-chat/internal/model"
	"suna-chat/internal/platform/sqlite"
)

type recordingFeed struct {
	mu     sync.Mutex
	events []changefeed.Event
}

func (f *recordingFeed) Publish(_ context.Context, e changefeed.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *recordingFeed) all() []changefeed.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]changefeed.Event(nil), f.events...)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := sqlite.NewGorm(context.Background(), filepath.Join(t.TempDir(), "remote.db"), nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Session{}, &model.Message{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newSession(id string) chat.Session {
	return chat.Session{
		ID:        id,
		Title:     "hello",
		CreatedAt: 1_000,
		UpdatedAt: 2_000,
		Messages:  []chat.Message{},
	}
}

func TestDBStore_UpsertListAndGet(t *testing.T) {
	ctx := context.Background()
	feed := &recordingFeed{}
	store := NewDBStore(openTestDB(t), feed, nil, nil)

	require.NoError(t, store.UpsertSession(ctx, newSession("s1"), 1))
	s1 := newSession("s1")
	s1.Title = "renamed"
	s1.IsManuallyRenamed = true
	s1.UpdatedAt = 3_000
	require.NoError(t, store.UpsertSession(ctx, s1, 1))

	list, err := store.ListSessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "renamed", list[0].Title)
	assert.True(t, list[0].IsManuallyRenamed)
	assert.Equal(t, int64(1_000), list[0].CreatedAt)
	assert.Equal(t, int64(3_000), list[0].UpdatedAt)

	events := feed.all()
	require.Len(t, events, 2)
	assert.Equal(t, changefeed.Insert, events[0].EventType)
	assert.Equal(t, changefeed.Update, events[1].EventType)
	assert.Equal(t, uint(1), events[1].UserID)

	_, err = store.ListSessions(ctx, 0)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestDBStore_AppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewDBStore(openTestDB(t), nil, nil, nil)
	require.NoError(t, store.UpsertSession(ctx, newSession("s1"), 1))

	msg := chat.Message{Role: chat.RoleUser, Content: "hi", Timestamp: 10}
	require.NoError(t, store.AppendMessage(ctx, msg, "s1", 1))
	require.NoError(t, store.AppendMessage(ctx, msg, "s1", 1))
	require.NoError(t, store.AppendMessage(ctx, chat.Message{Role: chat.RoleBot, Content: "hello", Timestamp: 11}, "s1", 1))

	messages, err := store.GetMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, chat.RoleUser, messages[0].Role)
	assert.Equal(t, chat.RoleBot, messages[1].Role)

	err = store.AppendMessage(ctx, msg, "missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDBStore_OwnershipEnforced(t *testing.T) {
	ctx := context.Background()
	store := NewDBStore(openTestDB(t), nil, nil, nil)
	require.NoError(t, store.UpsertSession(ctx, newSession("a-owned"), 1))
	require.NoError(t, store.AppendMessage(ctx, chat.Message{Role: chat.RoleUser, Content: "x", Timestamp: 1}, "a-owned", 1))

	hijack := newSession("a-owned")
	hijack.Title = "mine now"
	assert.ErrorIs(t, store.UpsertSession(ctx, hijack, 2), ErrForbidden)
	assert.ErrorIs(t, store.DeleteSession(ctx, "a-owned", 2), ErrForbidden)
	assert.ErrorIs(t, store.DeleteMessages(ctx, "a-owned", 2), ErrForbidden)
	assert.ErrorIs(t, store.AppendMessage(ctx, chat.Message{Role: chat.RoleUser, Content: "y", Timestamp: 2}, "a-owned", 2), ErrForbidden)
	_, err := store.GetSession(ctx, "a-owned", 2)
	assert.ErrorIs(t, err, ErrForbidden)

	others, err := store.ListSessions(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, others)

	got, err := store.GetSession(ctx, "a-owned", 1)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Title)
	assert.Len(t, got.Messages, 1)
}

func TestDBStore_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	feed := &recordingFeed{}
	store := NewDBStore(db, feed, nil, nil)
	require.NoError(t, store.UpsertSession(ctx, newSession("s1"), 1))
	require.NoError(t, store.AppendMessage(ctx, chat.Message{Role: chat.RoleUser, Content: "x", Timestamp: 1}, "s1", 1))

	require.NoError(t, store.DeleteSession(ctx, "s1", 1))

	var count int64
	require.NoError(t, db.Model(&model.Message{}).Where("session_id = ?", "s1").Count(&count).Error)
	assert.Zero(t, count)
	assert.ErrorIs(t, store.DeleteSession(ctx, "s1", 1), ErrNotFound)

	events := feed.all()
	last := events[len(events)-1]
	assert.Equal(t, changefeed.Delete, last.EventType)
	assert.Equal(t, changefeed.TableSessions, last.Table)
	assert.Equal(t, "s1", last.SessionID())
}

func TestDBStore_SetFavorite(t *testing.T) {
	ctx := context.Background()
	store := NewDBStore(openTestDB(t), nil, nil, nil)
	require.NoError(t, store.UpsertSession(ctx, newSession("s1"), 1))
	msg := chat.Message{Role: chat.RoleBot, Content: "answer", Timestamp: 5}
	require.NoError(t, store.AppendMessage(ctx, msg, "s1", 1))

	msg.IsFavorite = true
	require.NoError(t, store.SetFavorite(ctx, "s1", msg, 1))
	messages, err := store.GetMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.True(t, messages[0].IsFavorite)

	unknown := chat.Message{Role: chat.RoleBot, Content: "nope", Timestamp: 6, IsFavorite: true}
	assert.ErrorIs(t, store.SetFavorite(ctx, "s1", unknown, 1), ErrNotFound)
}

type memoryCache struct {
	history map[string][]chat.Message
	dirty   map[string]bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{history: map[string][]chat.Message{}, dirty: map[string]bool{}}
}

func (c *memoryCache) GetHistory(_ context.Context, id string) ([]chat.Message, bool, error) {
	m, ok := c.history[id]
	return m, ok, nil
}
func (c *memoryCache) SetHistory(_ context.Context, id string, m []chat.Message) error {
	c.history[id] = m
	return nil
}
func (c *memoryCache) DeleteHistory(_ context.Context, id string) error {
	delete(c.history, id)
	return nil
}
func (c *memoryCache) MarkDirty(_ context.Context, id string) error {
	c.dirty[id] = true
	return nil
}
func (c *memoryCache) IsDirty(_ context.Context, id string) (bool, error) {
	return c.dirty[id], nil
}

func TestDBStore_MessageCache(t *testing.T) {
	ctx := context.Background()
	cache := newMemoryCache()
	store := NewDBStore(openTestDB(t), nil, cache, nil)
	require.NoError(t, store.UpsertSession(ctx, newSession("s1"), 1))

	_, err := store.GetMessages(ctx, "s1")
	require.NoError(t, err)
	_, cached := cache.history["s1"]
	assert.True(t, cached)

	require.NoError(t, store.AppendMessage(ctx, chat.Message{Role: chat.RoleUser, Content: "x", Timestamp: 1}, "s1", 1))
	_, cached = cache.history["s1"]
	assert.False(t, cached)
	assert.True(t, cache.dirty["s1"])

	messages, err := store.GetMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(ErrForbidden))
	assert.False(t, IsTransient(ErrUnauthorized))
	assert.False(t, IsTransient(ErrNotFound))
	assert.True(t, IsTransient(storeErr("x", errors.New("db down"))))
	assert.True(t, IsTransient(&StoreError{Op: "x", Status: 503, Err: errors.New("busy")}))
	assert.False(t, IsTransient(&StoreError{Op: "x", Status: 400, Err: errors.New("bad")}))
	assert.False(t, IsTransient(context.Canceled))
	assert.True(t, IsTransient(context.DeadlineExceeded))

	wrapped := storeErr("x", errors.New("boom"))
	var se *StoreError
	require.ErrorAs(t, wrapped, &se)
	assert.Equal(t, "x", se.Op)
}
