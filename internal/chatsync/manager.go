// Package chatsync reconciles the device's local session store with the remote store.
//
// Message saves are optimistic: the local copy is written first and returned, and the
// remote push happens afterwards (in the background once Start has been called, inline
// otherwise). Rename, pin and delete are confirm-first: the remote store must accept the
// change before the local copy is touched.
package chatsync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"suna-chat/internal/chat"
	"suna-chat/internal/eventbus"
	"suna-chat/internal/localstore"
	"suna-chat/internal/outbox"
	"suna-chat/internal/remotestore"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidTitle    = errors.New("title is empty")
	ErrMessageIndex    = errors.New("message index out of range")
	ErrClosed          = errors.New("sync manager is closed")
)

type Manager struct {
	local   *localstore.Store
	pending *outbox.Outbox
	remote  remotestore.Store
	bus     *eventbus.Bus
	log     *zap.Logger
	opts    Options
	now     func() time.Time

	scopeMu sync.RWMutex
	userID  uint

	// pushMu guards the scheduling state below.
	pushMu    sync.Mutex
	lastPush  map[string]time.Time
	timers    map[string]*time.Timer
	timerJobs map[string]pushJob
	inflight  map[string]int
	queue     []pushJob
	notify    chan struct{}
	started   bool
	closed    bool
	runCtx    context.Context
	cancel    context.CancelFunc
	workerWG  sync.WaitGroup
	loopWG    sync.WaitGroup

	// execMu serializes remote pushes so they apply in submission order.
	execMu sync.Mutex
}

type pushJob struct {
	userID   uint
	snapshot chat.Session
}

func NewManager(
	local *localstore.Store,
	pending *outbox.Outbox,
	remote remotestore.Store,
	bus *eventbus.Bus,
	opts Options,
	log *zap.Logger,
) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if bus == nil {
		bus = eventbus.New()
	}
	return &Manager{
		local:     local,
		pending:   pending,
		remote:    remote,
		bus:       bus,
		log:       log,
		opts:      opts.normalized(),
		now:       time.Now,
		lastPush:  make(map[string]time.Time),
		timers:    make(map[string]*time.Timer),
		timerJobs: make(map[string]pushJob),
		inflight:  make(map[string]int),
		notify:    make(chan struct{}, 1),
	}
}

func (m *Manager) Bus() *eventbus.Bus {
	return m.bus
}

// SetUser switches the active scope; zero selects guest mode.
func (m *Manager) SetUser(userID uint) {
	m.scopeMu.Lock()
	defer m.scopeMu.Unlock()
	m.userID = userID
}

func (m *Manager) UserID() uint {
	m.scopeMu.RLock()
	defer m.scopeMu.RUnlock()
	return m.userID
}

func (m *Manager) scope() (uint, *localstore.Store, *outbox.Outbox) {
	userID := m.UserID()
	return userID, m.local.WithScope(userID), m.pending.WithScope(userID)
}

// Save commits session locally and schedules its remote push. Sessions without messages are
// returned unchanged and not persisted.
func (m *Manager) Save(ctx context.Context, session chat.Session) (chat.Session, error) {
	if !session.HasMessages() {
		return session, nil
	}
	userID, local, _ := m.scope()

	saved := session.Clone()
	saved.Messages = chat.DedupMessages(saved.Messages)
	saved.ApplyAutoTitle()
	saved.Touch(m.now())

	localErr := local.Save(ctx, saved)
	if localErr != nil {
		m.log.Warn("local save failed, continuing with remote push",
			zap.String("session_id", saved.ID), zap.Error(localErr))
	}

	if userID != 0 {
		m.schedulePush(ctx, pushJob{userID: userID, snapshot: saved.Clone()})
	}

	m.bus.Publish(eventbus.Change{Kind: eventbus.SessionSaved, SessionID: saved.ID, UserID: userID})
	return saved, localErr
}

// ListSessions returns the visible local sessions in display order.
func (m *Manager) ListSessions(ctx context.Context) []chat.Session {
	_, local, _ := m.scope()
	return chat.VisibleSessions(local.GetAll(ctx))
}

func (m *Manager) Get(ctx context.Context, id string) (chat.Session, bool) {
	_, local, _ := m.scope()
	return local.Get(ctx, id)
}

// Rename sets a manual title. For signed-in users the remote store must accept it first.
func (m *Manager) Rename(ctx context.Context, id, title string) (chat.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return chat.Session{}, ErrInvalidTitle
	}
	userID, local, _ := m.scope()
	session, ok := local.Get(ctx, id)
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}

	if userID == 0 {
		if err := local.Rename(ctx, id, title); err != nil {
			return chat.Session{}, err
		}
		renamed, _ := local.Get(ctx, id)
		m.bus.Publish(eventbus.Change{Kind: eventbus.SessionRenamed, SessionID: id})
		return renamed, nil
	}

	session.Title = title
	session.IsManuallyRenamed = true
	session.Touch(m.now())
	if err := m.remote.UpsertSession(ctx, session.Meta(), userID); err != nil {
		m.log.Warn("remote rename rejected", zap.String("session_id", id), zap.Error(err))
		return chat.Session{}, err
	}
	if err := local.Save(ctx, session); err != nil {
		return chat.Session{}, err
	}
	m.pushIfPending(ctx, userID, session)
	m.bus.Publish(eventbus.Change{Kind: eventbus.SessionRenamed, SessionID: id, UserID: userID})
	return session, nil
}

// TogglePin flips the pinned flag, remote first for signed-in users.
func (m *Manager) TogglePin(ctx context.Context, id string) (chat.Session, error) {
	userID, local, _ := m.scope()
	session, ok := local.Get(ctx, id)
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}

	if userID == 0 {
		if err := local.TogglePin(ctx, id); err != nil {
			return chat.Session{}, err
		}
		pinned, _ := local.Get(ctx, id)
		m.bus.Publish(eventbus.Change{Kind: eventbus.SessionPinned, SessionID: id})
		return pinned, nil
	}

	session.IsPinned = !session.IsPinned
	session.Touch(m.now())
	if err := m.remote.UpsertSession(ctx, session.Meta(), userID); err != nil {
		m.log.Warn("remote pin rejected", zap.String("session_id", id), zap.Error(err))
		return chat.Session{}, err
	}
	if err := local.Save(ctx, session); err != nil {
		return chat.Session{}, err
	}
	m.pushIfPending(ctx, userID, session)
	m.bus.Publish(eventbus.Change{Kind: eventbus.SessionPinned, SessionID: id, UserID: userID})
	return session, nil
}

// Delete removes a session. For signed-in users the remote delete must succeed first;
// ErrForbidden leaves everything untouched. A remote ErrNotFound removes the local copy too,
// and is reported to the caller unless the session had never been confirmed remotely.
func (m *Manager) Delete(ctx context.Context, id string) error {
	userID, local, pending := m.scope()

	var result error
	if userID != 0 {
		err := m.remote.DeleteSession(ctx, id, userID)
		switch {
		case err == nil:
		case errors.Is(err, remotestore.ErrNotFound):
			if !pending.Has(ctx, id) && !m.isInflight(id) {
				result = err
			}
		default:
			m.log.Warn("remote delete rejected", zap.String("session_id", id), zap.Error(err))
			return err
		}
	}

	m.cancelPush(id)
	if err := local.Delete(ctx, id); err != nil {
		return err
	}
	if err := pending.Remove(ctx, id); err != nil {
		m.log.Warn("drop pending entry failed", zap.String("session_id", id), zap.Error(err))
	}
	m.bus.Publish(eventbus.Change{Kind: eventbus.SessionDeleted, SessionID: id, UserID: userID})
	return result
}

// ToggleFavorite flips the favorite flag of one message and saves the session.
func (m *Manager) ToggleFavorite(ctx context.Context, sessionID string, index int) (chat.Session, error) {
	_, local, _ := m.scope()
	session, ok := local.Get(ctx, sessionID)
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	if index < 0 || index >= len(session.Messages) {
		return chat.Session{}, ErrMessageIndex
	}
	session.Messages[index].IsFavorite = !session.Messages[index].IsFavorite
	return m.Save(ctx, session)
}

// ApplyRemote merges one session fetched from the remote store into the local store.
// Sessions with unconfirmed local changes keep their local copy.
func (m *Manager) ApplyRemote(ctx context.Context, session chat.Session) {
	userID, local, pending := m.scope()
	if userID == 0 {
		return
	}
	if pending.Has(ctx, session.ID) || m.isInflight(session.ID) {
		m.log.Debug("skip remote update for session with unconfirmed changes", zap.String("session_id", session.ID))
		return
	}
	if existing, ok := local.Get(ctx, session.ID); ok && existing.UpdatedAt > session.UpdatedAt {
		m.log.Debug("skip stale remote update", zap.String("session_id", session.ID))
		return
	}
	session.Messages = chat.DedupMessages(session.Messages)
	if session.Messages == nil {
		session.Messages = []chat.Message{}
	}
	if err := local.Save(ctx, session); err != nil {
		m.log.Warn("apply remote session failed", zap.String("session_id", session.ID), zap.Error(err))
		return
	}
	m.bus.Publish(eventbus.Change{Kind: eventbus.SessionSaved, SessionID: session.ID, UserID: userID})
}

// RemoveLocal drops a session deleted elsewhere.
func (m *Manager) RemoveLocal(ctx context.Context, id string) {
	userID, local, pending := m.scope()
	m.cancelPush(id)
	if err := local.Delete(ctx, id); err != nil {
		m.log.Warn("remove local session failed", zap.String("session_id", id), zap.Error(err))
		return
	}
	if err := pending.Remove(ctx, id); err != nil {
		m.log.Warn("drop pending entry failed", zap.String("session_id", id), zap.Error(err))
	}
	m.bus.Publish(eventbus.Change{Kind: eventbus.SessionDeleted, SessionID: id, UserID: userID})
}

// PendingSessions lists sessions whose last push has not been confirmed.
func (m *Manager) PendingSessions(ctx context.Context) []outbox.Entry {
	_, _, pending := m.scope()
	return pending.List(ctx)
}

// Reconcile retries every pending session once and reports how many were confirmed.
// Sessions held after a server rejection are skipped; SyncNow retries those too.
func (m *Manager) Reconcile(ctx context.Context) (int, error) {
	return m.reconcile(ctx, false)
}

// SyncNow retries every pending session once, held ones included.
func (m *Manager) SyncNow(ctx context.Context) (int, error) {
	return m.reconcile(ctx, true)
}

func (m *Manager) reconcile(ctx context.Context, includeHeld bool) (int, error) {
	userID, _, pending := m.scope()
	if userID == 0 {
		return 0, nil
	}
	flushed := 0
	var firstErr error
	for _, entry := range pending.List(ctx) {
		if entry.Held && !includeHeld {
			continue
		}
		err := m.execute(ctx, pushJob{userID: userID, snapshot: chat.Session{ID: entry.SessionID}})
		if err == nil {
			flushed++
			continue
		}
		if firstErr == nil {
			firstErr = err
		}
		if errors.Is(err, remotestore.ErrUnauthorized) || ctx.Err() != nil {
			break
		}
	}
	if flushed > 0 {
		m.log.Info("pending sessions reconciled", zap.Int("flushed", flushed))
	}
	return flushed, firstErr
}

// Start runs pushes on a background worker and reconciles the outbox every FlushInterval.
func (m *Manager) Start(ctx context.Context) error {
	m.pushMu.Lock()
	defer m.pushMu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.started {
		return nil
	}
	m.runCtx, m.cancel = context.WithCancel(ctx)
	m.started = true

	m.workerWG.Add(1)
	go m.runWorker()

	if m.opts.FlushInterval > 0 {
		m.loopWG.Add(1)
		go m.runFlushLoop(m.runCtx)
	}
	return nil
}

// Close fires any debounced pushes, drains the queue and stops background work.
func (m *Manager) Close() error {
	m.pushMu.Lock()
	if m.closed {
		m.pushMu.Unlock()
		return nil
	}
	var due []pushJob
	for id, t := range m.timers {
		// A timer that already fired enqueues its own job.
		if !t.Stop() {
			continue
		}
		due = append(due, m.timerJobs[id])
		delete(m.timers, id)
		delete(m.timerJobs, id)
		m.releaseLocked(id)
	}
	m.pushMu.Unlock()

	for _, job := range due {
		m.enqueue(context.Background(), job)
	}

	m.pushMu.Lock()
	m.closed = true
	started := m.started
	m.pushMu.Unlock()

	if started {
		m.signal()
		m.workerWG.Wait()
		m.cancel()
		m.loopWG.Wait()
	}
	return nil
}

func (m *Manager) runFlushLoop(ctx context.Context) {
	defer m.loopWG.Done()
	ticker := time.NewTicker(m.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Reconcile(ctx); err != nil && ctx.Err() == nil {
				m.log.Debug("periodic reconcile incomplete", zap.Error(err))
			}
		}
	}
}
