// Package outbox records sessions whose remote push has not been confirmed yet.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"suna-chat/internal/localstore"
)

const pendingKey = "pendingSync"

// Entry is coalesced per session: re-adding a pending session bumps Attempts.
// Held entries were rejected by the server and are only retried by an explicit sync.
type Entry struct {
	ID         string `json:"id"`
	SessionID  string `json:"sessionId"`
	Attempts   int    `json:"attempts"`
	LastError  string `json:"lastError,omitempty"`
	Held       bool   `json:"held,omitempty"`
	EnqueuedAt int64  `json:"enqueuedAt"`
	UpdatedAt  int64  `json:"updatedAt"`
}

type Outbox struct {
	backend localstore.Backend
	userID  uint
	log     *zap.Logger
	now     func() time.Time
	mu      *sync.Mutex
}

func New(backend localstore.Backend, log *zap.Logger) *Outbox {
	if log == nil {
		log = zap.NewNop()
	}
	return &Outbox{
		backend: backend,
		log:     log,
		now:     time.Now,
		mu:      &sync.Mutex{},
	}
}

func (o *Outbox) WithScope(userID uint) *Outbox {
	out := *o
	out.userID = userID
	return &out
}

func (o *Outbox) key() string {
	return localstore.ScopedKey(pendingKey, o.userID)
}

// Add records sessionID as pending. cause may be nil.
func (o *Outbox) Add(ctx context.Context, sessionID string, cause error) (Entry, error) {
	return o.record(ctx, sessionID, cause, false)
}

// Hold records sessionID as pending but out of automatic retries.
func (o *Outbox) Hold(ctx context.Context, sessionID string, cause error) (Entry, error) {
	return o.record(ctx, sessionID, cause, true)
}

func (o *Outbox) record(ctx context.Context, sessionID string, cause error, held bool) (Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entries := o.readLocked(ctx)
	now := o.now().UnixMilli()
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}

	for i := range entries {
		if entries[i].SessionID == sessionID {
			entries[i].Attempts++
			entries[i].LastError = lastError
			entries[i].Held = held
			entries[i].UpdatedAt = now
			if err := o.writeLocked(ctx, entries); err != nil {
				return Entry{}, err
			}
			return entries[i], nil
		}
	}

	entry := Entry{
		ID:         ulid.Make().String(),
		SessionID:  sessionID,
		Attempts:   1,
		LastError:  lastError,
		Held:       held,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}
	entries = append(entries, entry)
	if err := o.writeLocked(ctx, entries); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (o *Outbox) Remove(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	entries := o.readLocked(ctx)
	out := entries[:0]
	for _, e := range entries {
		if e.SessionID != sessionID {
			out = append(out, e)
		}
	}
	if len(out) == len(entries) {
		return nil
	}
	return o.writeLocked(ctx, out)
}

// List returns pending entries, oldest first.
func (o *Outbox) List(ctx context.Context) []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	entries := o.readLocked(ctx)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].EnqueuedAt != entries[j].EnqueuedAt {
			return entries[i].EnqueuedAt < entries[j].EnqueuedAt
		}
		return entries[i].ID < entries[j].ID
	})
	return entries
}

func (o *Outbox) Has(ctx context.Context, sessionID string) bool {
	for _, e := range o.List(ctx) {
		if e.SessionID == sessionID {
			return true
		}
	}
	return false
}

func (o *Outbox) Len(ctx context.Context) int {
	return len(o.List(ctx))
}

func (o *Outbox) readLocked(ctx context.Context) []Entry {
	raw, ok, err := o.backend.Get(ctx, o.key())
	if err != nil {
		o.log.Warn("read outbox failed", zap.String("key", o.key()), zap.Error(err))
		return []Entry{}
	}
	if !ok || len(raw) == 0 {
		return []Entry{}
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		o.log.Warn("outbox is corrupt, treating as empty", zap.String("key", o.key()), zap.Error(err))
		return []Entry{}
	}
	return entries
}

func (o *Outbox) writeLocked(ctx context.Context, entries []Entry) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal outbox failed: %w", err)
	}
	if err := o.backend.Set(ctx, o.key(), payload); err != nil {
		return fmt.Errorf("write outbox failed: %w", err)
	}
	return nil
}
