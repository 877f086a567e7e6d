// Package eventbus fans local session changes out to in-process listeners.
package eventbus

import (
	"sync"
	"time"
)

type Kind string

const (
	SessionSaved     Kind = "session_saved"
	SessionRenamed   Kind = "session_renamed"
	SessionPinned    Kind = "session_pinned"
	SessionDeleted   Kind = "session_deleted"
	SessionsReloaded Kind = "sessions_reloaded"
	SyncPending      Kind = "sync_pending"
	SyncConfirmed    Kind = "sync_confirmed"
)

type Change struct {
	Kind      Kind
	SessionID string
	UserID    uint
	At        time.Time
}

type Handler func(Change)

// Bus delivers synchronously, in registration order, at most once. Handlers must not block.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers []registration
}

type registration struct {
	id      uint64
	handler Handler
}

type Subscription struct {
	bus  *Bus
	id   uint64
	once sync.Once
}

func New() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers = append(b.handlers, registration{id: b.nextID, handler: h})
	return &Subscription{bus: b, id: b.nextID}
}

func (b *Bus) Publish(change Change) {
	if change.At.IsZero() {
		change.At = time.Now()
	}
	b.mu.RLock()
	snapshot := make([]Handler, 0, len(b.handlers))
	for _, r := range b.handlers {
		snapshot = append(snapshot, r.handler)
	}
	b.mu.RUnlock()

	for _, h := range snapshot {
		h(change)
	}
}

// Unsubscribe is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		for i, r := range s.bus.handlers {
			if r.id == s.id {
				s.bus.handlers = append(s.bus.handlers[:i:i], s.bus.handlers[i+1:]...)
				return
			}
		}
	})
}
