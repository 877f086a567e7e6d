package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"suna-chat/internal/chat"
)

var ErrSessionNotFound = errors.New("local session not found")

const sessionsKey = "chatSessions"

// Store is the device-side session collection for one scope (guest or a user).
// The whole collection is stored under a single key and rewritten on every change.
type Store struct {
	backend Backend
	userID  uint
	log     *zap.Logger
	now     func() time.Time

	// mu is shared between scopes derived with WithScope.
	mu *sync.Mutex
}

func NewStore(backend Backend, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		backend: backend,
		log:     log,
		now:     time.Now,
		mu:      &sync.Mutex{},
	}
}

// WithScope returns a store bound to userID; zero is the guest scope.
func (s *Store) WithScope(userID uint) *Store {
	out := *s
	out.userID = userID
	return &out
}

func (s *Store) UserID() uint {
	return s.userID
}

func (s *Store) Backend() Backend {
	return s.backend
}

// ScopedKey appends the user scope to base, leaving guest keys unsuffixed.
func ScopedKey(base string, userID uint) string {
	if userID == 0 {
		return base
	}
	return fmt.Sprintf("%s:%d", base, userID)
}

func (s *Store) key() string {
	return ScopedKey(sessionsKey, s.userID)
}

// GetAll returns every stored session sorted for display. Read failures and corrupt data
// are logged and yield an empty list.
func (s *Store) GetAll(ctx context.Context) []chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := s.readLocked(ctx)
	chat.SortSessions(sessions)
	return sessions
}

func (s *Store) Get(ctx context.Context, id string) (chat.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.readLocked(ctx) {
		if session.ID == id {
			return session, true
		}
	}
	return chat.Session{}, false
}

// Save upserts session by id, replacing any stored copy.
func (s *Store) Save(ctx context.Context, session chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := s.readLocked(ctx)
	replaced := false
	for i := range sessions {
		if sessions[i].ID == session.ID {
			sessions[i] = session.Clone()
			replaced = true
			break
		}
	}
	if !replaced {
		sessions = append(sessions, session.Clone())
	}
	return s.writeLocked(ctx, sessions)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := s.readLocked(ctx)
	out := sessions[:0]
	for _, session := range sessions {
		if session.ID != id {
			out = append(out, session)
		}
	}
	if len(out) == len(sessions) {
		return nil
	}
	return s.writeLocked(ctx, out)
}

// Rename sets a user-chosen title and freezes auto-titling.
func (s *Store) Rename(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	return s.update(ctx, id, func(session *chat.Session) {
		session.Title = title
		session.IsManuallyRenamed = true
		session.Touch(s.now())
	})
}

func (s *Store) TogglePin(ctx context.Context, id string) error {
	return s.update(ctx, id, func(session *chat.Session) {
		session.IsPinned = !session.IsPinned
		session.Touch(s.now())
	})
}

// ReplaceAll overwrites the whole collection.
func (s *Store) ReplaceAll(ctx context.Context, sessions []chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Session, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, session.Clone())
	}
	return s.writeLocked(ctx, out)
}

func (s *Store) update(ctx context.Context, id string, mutate func(*chat.Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := s.readLocked(ctx)
	for i := range sessions {
		if sessions[i].ID == id {
			mutate(&sessions[i])
			return s.writeLocked(ctx, sessions)
		}
	}
	return ErrSessionNotFound
}

func (s *Store) readLocked(ctx context.Context) []chat.Session {
	raw, ok, err := s.backend.Get(ctx, s.key())
	if err != nil {
		s.log.Warn("read local sessions failed", zap.String("key", s.key()), zap.Error(err))
		return []chat.Session{}
	}
	if !ok || len(raw) == 0 {
		return []chat.Session{}
	}
	var sessions []chat.Session
	if err := json.Unmarshal(raw, &sessions); err != nil {
		s.log.Warn("local sessions are corrupt, treating as empty", zap.String("key", s.key()), zap.Error(err))
		return []chat.Session{}
	}
	for i := range sessions {
		if sessions[i].Messages == nil {
			sessions[i].Messages = []chat.Message{}
		}
	}
	return sessions
}

func (s *Store) writeLocked(ctx context.Context, sessions []chat.Session) error {
	payload, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("marshal local sessions failed: %w", err)
	}
	if err := s.backend.Set(ctx, s.key(), payload); err != nil {
		s.log.Error("write local sessions failed", zap.String("key", s.key()), zap.Error(err))
		return err
	}
	return nil
}
