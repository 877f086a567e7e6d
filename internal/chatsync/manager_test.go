package chatsync

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suna-chat/internal/chat"
	"suna-chat/internal/eventbus"
	"suna-chat/internal/localstore"
	"suna-chat/internal/model"
	"suna-chat/internal/outbox"
	"suna-chat/internal/platform/sqlite"
	"suna-chat/internal/remotestore"
)

type flakyStore struct {
	remotestore.Store

	mu        sync.Mutex
	upsertErr error
	listErr   error
	upserts   int
}

func (f *flakyStore) setUpsertErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertErr = err
}

func (f *flakyStore) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts
}

func (f *flakyStore) UpsertSession(ctx context.Context, s chat.Session, userID uint) error {
	f.mu.Lock()
	f.upserts++
	err := f.upsertErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.UpsertSession(ctx, s, userID)
}

func (f *flakyStore) ListSessions(ctx context.Context, userID uint) ([]chat.Session, error) {
	f.mu.Lock()
	err := f.listErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.ListSessions(ctx, userID)
}

type harness struct {
	manager *Manager
	remote  *flakyStore
	db      *remotestore.DBStore
	local   *localstore.Store
	events  *[]eventbus.Change
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	gdb, err := sqlite.NewGorm(context.Background(), filepath.Join(t.TempDir(), "remote.db"), nil)
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&model.Session{}, &model.Message{}))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	dbStore := remotestore.NewDBStore(gdb, nil, nil, nil)
	remote := &flakyStore{Store: dbStore}
	backend := localstore.NewMemoryBackend()
	local := localstore.NewStore(backend, nil)
	bus := eventbus.New()
	events := &[]eventbus.Change{}
	var mu sync.Mutex
	bus.Subscribe(func(c eventbus.Change) {
		mu.Lock()
		defer mu.Unlock()
		*events = append(*events, c)
	})

	m := NewManager(local, outbox.New(backend, nil), remote, bus, opts, nil)
	t.Cleanup(func() { _ = m.Close() })
	return &harness{manager: m, remote: remote, db: dbStore, local: local, events: events}
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.Debounce = 0
	opts.RetryDelay = time.Millisecond
	opts.FlushInterval = 0
	return opts
}

func withMessages(s chat.Session, contents ...string) chat.Session {
	for i, c := range contents {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleBot
		}
		s.Messages = append(s.Messages, chat.Message{Role: role, Content: c, Timestamp: s.CreatedAt + int64(i) + 1})
	}
	return s
}

func kinds(events []eventbus.Change) []eventbus.Kind {
	out := make([]eventbus.Kind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

func TestSave_EmptySessionIsNotPersisted(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()

	s := chat.NewSession(time.Now())
	got, err := h.manager.Save(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, s, got)
	assert.Empty(t, h.local.GetAll(ctx))
	assert.Empty(t, *h.events)
}

func TestSave_IsIdempotent(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	s := withMessages(chat.NewSession(time.Now()), "hello")

	_, err := h.manager.Save(ctx, s)
	require.NoError(t, err)
	_, err = h.manager.Save(ctx, s)
	require.NoError(t, err)

	all := h.local.GetAll(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, s.ID, all[0].ID)
}

func TestManager_OfflineReloadKeepsOneSession(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	h.manager.SetUser(1)
	h.remote.listErr = &remotestore.StoreError{Op: "list sessions", Err: errors.New("offline")}
	h.remote.setUpsertErr(&remotestore.StoreError{Op: "upsert session", Err: errors.New("offline")})

	content := "Plan a three day trip to Lisbon with a food focus"
	s := withMessages(chat.NewSession(time.Now()), content)
	_, err := h.manager.Save(ctx, s)
	require.NoError(t, err)

	loaded := h.manager.LoadAllSessions(ctx)
	require.Len(t, loaded, 1)
	assert.Len(t, loaded[0].Messages, 1)
	assert.Equal(t, string([]rune(content)[:30]), loaded[0].Title)
	assert.False(t, loaded[0].IsManuallyRenamed)
}

func TestManager_SavesInsideDebounceWindow(t *testing.T) {
	opts := fastOptions()
	opts.Debounce = time.Hour
	h := newHarness(t, opts)
	ctx := context.Background()
	h.manager.SetUser(1)

	s := withMessages(chat.NewSession(time.Now()), "first")
	saved, err := h.manager.Save(ctx, s)
	require.NoError(t, err)

	saved = withMessages(saved, "reply")
	saved.Messages[1].Timestamp = saved.Messages[0].Timestamp + 5
	_, err = h.manager.Save(ctx, saved)
	require.NoError(t, err)

	local, ok := h.manager.Get(ctx, s.ID)
	require.True(t, ok)
	assert.Len(t, local.Messages, 2)
	assert.Equal(t, 1, h.remote.upsertCount())

	require.NoError(t, h.manager.Close())
	remoteMessages, err := h.db.GetMessages(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, remoteMessages, 2)
	assert.Equal(t, 2, h.remote.upsertCount())
}

func TestManager_PinnedSortsFirst(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	now := time.Now()

	x := withMessages(chat.NewSession(now.Add(-time.Hour)), "x")
	y := withMessages(chat.NewSession(now), "y")
	_, err := h.manager.Save(ctx, x)
	require.NoError(t, err)
	_, err = h.manager.Save(ctx, y)
	require.NoError(t, err)

	_, err = h.manager.TogglePin(ctx, x.ID)
	require.NoError(t, err)

	list := h.manager.ListSessions(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, x.ID, list[0].ID)
	assert.True(t, list[0].IsPinned)
}

func TestManager_UpsertFailureMarksPending(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	h.manager.SetUser(1)
	h.remote.setUpsertErr(&remotestore.StoreError{Op: "upsert session", Status: 503, Err: errors.New("unavailable")})

	s := withMessages(chat.NewSession(time.Now()), "hello")
	_, err := h.manager.Save(ctx, s)
	require.NoError(t, err)

	_, ok := h.manager.Get(ctx, s.ID)
	assert.True(t, ok)
	pending := h.manager.PendingSessions(ctx)
	require.Len(t, pending, 1)
	assert.Equal(t, s.ID, pending[0].SessionID)
	assert.Equal(t, 1+fastOptions().MaxRetries, h.remote.upsertCount())
	assert.Contains(t, kinds(*h.events), eventbus.SyncPending)

	h.remote.setUpsertErr(nil)
	flushed, err := h.manager.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flushed)
	assert.Empty(t, h.manager.PendingSessions(ctx))
	assert.Contains(t, kinds(*h.events), eventbus.SyncConfirmed)

	remoteMessages, err := h.db.GetMessages(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, remoteMessages, 1)
}

func TestSave_AuthFailureIsHeldNotRetried(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	h.manager.SetUser(1)
	h.remote.setUpsertErr(remotestore.ErrUnauthorized)

	s := withMessages(chat.NewSession(time.Now()), "hi")
	_, err := h.manager.Save(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 1, h.remote.upsertCount())
	pending := h.manager.PendingSessions(ctx)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Held)

	// Background reconciles leave held sessions alone.
	flushed, err := h.manager.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, flushed)
	assert.Equal(t, 1, h.remote.upsertCount())

	h.remote.setUpsertErr(nil)
	flushed, err = h.manager.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flushed)
	assert.Empty(t, h.manager.PendingSessions(ctx))
	_, err = h.db.GetSession(ctx, s.ID, 1)
	assert.NoError(t, err)
}

func TestManager_RejectedPushSurvivesLoad(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	h.manager.SetUser(1)
	h.remote.setUpsertErr(&remotestore.StoreError{Op: "upsert session", Status: 422, Err: errors.New("schema mismatch")})

	s := withMessages(chat.NewSession(time.Now()), "only on this device", "answer")
	_, err := h.manager.Save(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 1, h.remote.upsertCount())
	pending := h.manager.PendingSessions(ctx)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Held)
	assert.Contains(t, pending[0].LastError, "schema mismatch")
	assert.Contains(t, kinds(*h.events), eventbus.SyncPending)

	h.remote.setUpsertErr(nil)
	loaded := h.manager.LoadAllSessions(ctx)
	require.Len(t, loaded, 1)
	assert.Equal(t, s.ID, loaded[0].ID)
	assert.Len(t, loaded[0].Messages, 2)
	_, ok := h.manager.Get(ctx, s.ID)
	assert.True(t, ok)
	assert.Len(t, h.manager.PendingSessions(ctx), 1)

	flushed, err := h.manager.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flushed)
	remoteMessages, err := h.db.GetMessages(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, remoteMessages, 2)
}

func TestManager_PendingSessionSurvivesTitleDedup(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	h.manager.SetUser(1)
	now := time.Now()

	// Another device already synced a chat opening with the same message.
	elsewhere := withMessages(chat.NewSession(now), "hello", "hi there")
	elsewhere.Title = "hello"
	elsewhere.UpdatedAt = now.Add(time.Minute).UnixMilli()
	require.NoError(t, h.db.UpsertSession(ctx, elsewhere, 1))
	for _, msg := range elsewhere.Messages {
		require.NoError(t, h.db.AppendMessage(ctx, msg, elsewhere.ID, 1))
	}

	h.remote.setUpsertErr(&remotestore.StoreError{Op: "upsert session", Err: errors.New("offline")})
	mine := withMessages(chat.NewSession(now), "hello")
	_, err := h.manager.Save(ctx, mine)
	require.NoError(t, err)
	require.Len(t, h.manager.PendingSessions(ctx), 1)
	h.remote.setUpsertErr(nil)

	loaded := h.manager.LoadAllSessions(ctx)
	ids := make([]string, 0, len(loaded))
	for _, s := range loaded {
		ids = append(ids, s.ID)
	}
	assert.Contains(t, ids, mine.ID)
	_, ok := h.manager.Get(ctx, mine.ID)
	require.True(t, ok)

	flushed, err := h.manager.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flushed)
	assert.Empty(t, h.manager.PendingSessions(ctx))
	_, err = h.db.GetSession(ctx, mine.ID, 1)
	assert.NoError(t, err)
}

func TestLoadAllSessions_KeepsSameOpeningChatsOnOneDevice(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	h.manager.SetUser(1)
	now := time.Now()

	first := withMessages(chat.NewSession(now), "hello")
	_, err := h.manager.Save(ctx, first)
	require.NoError(t, err)
	second := withMessages(chat.NewSession(now.Add(30*time.Second)), "hello")
	_, err = h.manager.Save(ctx, second)
	require.NoError(t, err)
	require.Empty(t, h.manager.PendingSessions(ctx))

	assert.Len(t, h.manager.LoadAllSessions(ctx), 2)

	h.remote.listErr = errors.New("dial tcp: connection refused")
	assert.Len(t, h.manager.LoadAllSessions(ctx), 2)
}

func TestManager_DeleteWithWrongUser(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	h.manager.SetUser(1)
	s := withMessages(chat.NewSession(time.Now()), "owned by one")
	_, err := h.manager.Save(ctx, s)
	require.NoError(t, err)

	// The intruder's device holds a copy of the same id.
	h.manager.SetUser(2)
	require.NoError(t, h.local.WithScope(2).Save(ctx, s))
	err = h.manager.Delete(ctx, s.ID)
	assert.ErrorIs(t, err, remotestore.ErrForbidden)
	_, ok := h.manager.Get(ctx, s.ID)
	assert.True(t, ok)

	owned, err := h.db.ListSessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, s.ID, owned[0].ID)
}

func TestDelete_ConfirmedByRemote(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	h.manager.SetUser(1)
	s := withMessages(chat.NewSession(time.Now()), "bye")
	_, err := h.manager.Save(ctx, s)
	require.NoError(t, err)

	require.NoError(t, h.manager.Delete(ctx, s.ID))
	_, ok := h.manager.Get(ctx, s.ID)
	assert.False(t, ok)
	_, err = h.db.GetSession(ctx, s.ID, 1)
	assert.ErrorIs(t, err, remotestore.ErrNotFound)

	// Already gone elsewhere: reported, and the stale local copy is dropped.
	require.NoError(t, h.local.WithScope(1).Save(ctx, s))
	assert.ErrorIs(t, h.manager.Delete(ctx, s.ID), remotestore.ErrNotFound)
	_, ok = h.manager.Get(ctx, s.ID)
	assert.False(t, ok)
}

func TestDelete_NeverSyncedSessionSucceeds(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	h.manager.SetUser(1)
	h.remote.setUpsertErr(&remotestore.StoreError{Op: "upsert session", Err: errors.New("down")})
	s := withMessages(chat.NewSession(time.Now()), "draft")
	_, err := h.manager.Save(ctx, s)
	require.NoError(t, err)
	require.Len(t, h.manager.PendingSessions(ctx), 1)

	require.NoError(t, h.manager.Delete(ctx, s.ID))
	assert.Empty(t, h.manager.PendingSessions(ctx))
	_, ok := h.manager.Get(ctx, s.ID)
	assert.False(t, ok)
}

func TestRename_RemoteFirst(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	h.manager.SetUser(1)
	s := withMessages(chat.NewSession(time.Now()), "original question")
	_, err := h.manager.Save(ctx, s)
	require.NoError(t, err)

	h.remote.setUpsertErr(remotestore.ErrForbidden)
	_, err = h.manager.Rename(ctx, s.ID, "Nope")
	assert.ErrorIs(t, err, remotestore.ErrForbidden)
	local, _ := h.manager.Get(ctx, s.ID)
	assert.Equal(t, "original question", local.Title)

	h.remote.setUpsertErr(nil)
	renamed, err := h.manager.Rename(ctx, s.ID, "  Travel  ")
	require.NoError(t, err)
	assert.Equal(t, "Travel", renamed.Title)
	assert.True(t, renamed.IsManuallyRenamed)

	remote, err := h.db.GetSession(ctx, s.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Travel", remote.Title)
	assert.Equal(t, renamed.UpdatedAt, remote.UpdatedAt)

	_, err = h.manager.Rename(ctx, s.ID, "   ")
	assert.ErrorIs(t, err, ErrInvalidTitle)
	_, err = h.manager.Rename(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRename_GuestIsLocalOnly(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	s := withMessages(chat.NewSession(time.Now()), "hello")
	_, err := h.manager.Save(ctx, s)
	require.NoError(t, err)

	renamed, err := h.manager.Rename(ctx, s.ID, "Mine")
	require.NoError(t, err)
	assert.Equal(t, "Mine", renamed.Title)
	assert.Zero(t, h.remote.upsertCount())
}

func TestLoadAllSessions_RemoteWinsExceptPending(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	h.manager.SetUser(1)
	now := time.Now()

	synced := withMessages(chat.NewSession(now), "synced", "answer")
	_, err := h.manager.Save(ctx, synced)
	require.NoError(t, err)

	// Another device renamed it remotely.
	remoteCopy, err := h.db.GetSession(ctx, synced.ID, 1)
	require.NoError(t, err)
	remoteCopy.Title = "Renamed elsewhere"
	remoteCopy.UpdatedAt += 100
	require.NoError(t, h.db.UpsertSession(ctx, remoteCopy, 1))

	h.remote.setUpsertErr(&remotestore.StoreError{Op: "upsert session", Err: errors.New("down")})
	offline := withMessages(chat.NewSession(now.Add(-time.Hour)), "written offline")
	offline.Title = "offline"
	offline.IsManuallyRenamed = true
	_, err = h.manager.Save(ctx, offline)
	require.NoError(t, err)
	h.remote.setUpsertErr(nil)

	// Local-only, unpending junk is replaced by the remote view.
	require.NoError(t, h.local.WithScope(1).Save(ctx, withMessages(chat.NewSession(now), "stale")))

	loaded := h.manager.LoadAllSessions(ctx)
	require.Len(t, loaded, 2)
	byID := map[string]chat.Session{}
	for _, s := range loaded {
		byID[s.ID] = s
	}
	assert.Equal(t, "Renamed elsewhere", byID[synced.ID].Title)
	assert.Len(t, byID[synced.ID].Messages, 2)
	assert.Equal(t, "offline", byID[offline.ID].Title)
	assert.Len(t, h.local.WithScope(1).GetAll(ctx), 2)
	assert.Contains(t, kinds(*h.events), eventbus.SessionsReloaded)
}

func TestLoadAllSessions_FallsBackToLocal(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	h.manager.SetUser(1)
	s := withMessages(chat.NewSession(time.Now()), "kept")
	_, err := h.manager.Save(ctx, s)
	require.NoError(t, err)
	require.NoError(t, h.local.WithScope(1).Save(ctx, chat.NewSession(time.Now())))

	h.remote.listErr = errors.New("dial tcp: connection refused")
	loaded := h.manager.LoadAllSessions(ctx)
	require.Len(t, loaded, 1)
	assert.Equal(t, s.ID, loaded[0].ID)
}

func TestLoadAllSessions_GuestNeverCallsRemote(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	h.remote.listErr = errors.New("must not be called")
	_, err := h.manager.Save(ctx, withMessages(chat.NewSession(time.Now()), "guest"))
	require.NoError(t, err)

	loaded := h.manager.LoadAllSessions(ctx)
	assert.Len(t, loaded, 1)
	assert.Zero(t, h.remote.upsertCount())
}

func TestLoadAllSessions_DedupsMessages(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	s := chat.NewSession(time.Now())
	msg := chat.Message{Role: chat.RoleUser, Content: "twice", Timestamp: 10}
	s.Messages = []chat.Message{msg, {Role: chat.RoleBot, Content: "ok", Timestamp: 11}, msg}
	require.NoError(t, h.local.Save(ctx, s))

	loaded := h.manager.LoadAllSessions(ctx)
	require.Len(t, loaded, 1)
	require.Len(t, loaded[0].Messages, 2)
	assert.Equal(t, "twice", loaded[0].Messages[0].Content)
	assert.Equal(t, "ok", loaded[0].Messages[1].Content)
}

func TestToggleFavorite_ReachesRemote(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	h.manager.SetUser(1)
	s := withMessages(chat.NewSession(time.Now()), "q", "a")
	_, err := h.manager.Save(ctx, s)
	require.NoError(t, err)

	updated, err := h.manager.ToggleFavorite(ctx, s.ID, 1)
	require.NoError(t, err)
	assert.True(t, updated.Messages[1].IsFavorite)

	remoteMessages, err := h.db.GetMessages(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, remoteMessages, 2)
	assert.True(t, remoteMessages[1].IsFavorite)

	_, err = h.manager.ToggleFavorite(ctx, s.ID, 5)
	assert.ErrorIs(t, err, ErrMessageIndex)
}

func TestApplyRemoteAndRemoveLocal(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	h.manager.SetUser(1)
	s := withMessages(chat.NewSession(time.Now()), "hi")
	saved, err := h.manager.Save(ctx, s)
	require.NoError(t, err)

	stale := saved.Clone()
	stale.Title = "older"
	stale.UpdatedAt = saved.UpdatedAt - 10
	h.manager.ApplyRemote(ctx, stale)
	got, _ := h.manager.Get(ctx, s.ID)
	assert.NotEqual(t, "older", got.Title)

	fresh := withMessages(saved.Clone(), "from another device")
	fresh.Messages[1].Timestamp = saved.Messages[0].Timestamp + 100
	fresh.UpdatedAt = saved.UpdatedAt + 10
	h.manager.ApplyRemote(ctx, fresh)
	got, _ = h.manager.Get(ctx, s.ID)
	assert.Len(t, got.Messages, 2)

	h.manager.RemoveLocal(ctx, s.ID)
	_, ok := h.manager.Get(ctx, s.ID)
	assert.False(t, ok)
}

func TestStart_BackgroundWorkerPushesInOrder(t *testing.T) {
	opts := fastOptions()
	h := newHarness(t, opts)
	ctx := context.Background()
	h.manager.SetUser(1)
	require.NoError(t, h.manager.Start(ctx))

	var ids []string
	for i := 0; i < 5; i++ {
		s := withMessages(chat.NewSession(time.Now()), strings.Repeat("m", i+1))
		_, err := h.manager.Save(ctx, s)
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}
	require.NoError(t, h.manager.Close())

	remote, err := h.db.ListSessions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, remote, len(ids))
	assert.ErrorIs(t, h.manager.Start(ctx), ErrClosed)
}

func TestSave_AfterCloseIsKeptPending(t *testing.T) {
	h := newHarness(t, fastOptions())
	ctx := context.Background()
	h.manager.SetUser(1)
	require.NoError(t, h.manager.Close())

	s := withMessages(chat.NewSession(time.Now()), "late")
	_, err := h.manager.Save(ctx, s)
	require.NoError(t, err)
	pending := h.manager.PendingSessions(ctx)
	require.Len(t, pending, 1)
	assert.Equal(t, s.ID, pending[0].SessionID)
}
