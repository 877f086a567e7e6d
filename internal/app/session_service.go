package app

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"suna-chat/internal/chat"
	"suna-chat/internal/model"
	"suna-chat/internal/remotestore"
)

// AsyncMessagePublisher hands appends to the persist worker.
type AsyncMessagePublisher interface {
	Publish(ctx context.Context, job model.AppendJob) error
}

// SessionService is the server-side remote persistence API. Ownership failures surface as
// remotestore.ErrNotFound and remotestore.ErrForbidden.
type SessionService struct {
	store     *remotestore.DBStore
	publisher AsyncMessagePublisher
	log       *zap.Logger
}

func NewSessionService(store *remotestore.DBStore, publisher AsyncMessagePublisher, log *zap.Logger) *SessionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionService{store: store, publisher: publisher, log: log}
}

func (s *SessionService) List(ctx context.Context, userID uint) ([]chat.Session, error) {
	return s.store.ListSessions(ctx, userID)
}

func (s *SessionService) Get(ctx context.Context, userID uint, sessionID string) (chat.Session, error) {
	return s.store.GetSession(ctx, sessionID, userID)
}

// Upsert writes session metadata; the path id wins over the body id.
func (s *SessionService) Upsert(ctx context.Context, userID uint, sessionID string, session chat.Session) error {
	session.ID = strings.TrimSpace(sessionID)
	if session.Title = strings.TrimSpace(session.Title); session.Title == "" {
		session.Title = chat.DefaultTitle
	}
	return s.store.UpsertSession(ctx, session.Meta(), userID)
}

func (s *SessionService) Delete(ctx context.Context, userID uint, sessionID string) error {
	return s.store.DeleteSession(ctx, sessionID, userID)
}

func (s *SessionService) Messages(ctx context.Context, userID uint, sessionID string) ([]chat.Message, error) {
	if err := s.store.Authorize(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	return s.store.GetMessages(ctx, sessionID)
}

// Append stores message. With a publisher configured the write is queued after the
// ownership check and queued is true.
func (s *SessionService) Append(ctx context.Context, userID uint, sessionID string, message chat.Message) (queued bool, err error) {
	if strings.TrimSpace(message.Content) == "" {
		return false, ErrMessageEmpty
	}
	if s.publisher == nil {
		return false, s.store.AppendMessage(ctx, message, sessionID, userID)
	}
	if err := s.store.Authorize(ctx, sessionID, userID); err != nil {
		return false, err
	}
	job := model.AppendJob{SessionID: sessionID, UserID: userID, Message: message}
	if err := s.publisher.Publish(ctx, job); err != nil {
		s.log.Warn("enqueue append failed, writing through", zap.String("session_id", sessionID), zap.Error(err))
		return false, s.store.AppendMessage(ctx, message, sessionID, userID)
	}
	return true, nil
}

func (s *SessionService) SetFavorite(ctx context.Context, userID uint, sessionID string, message chat.Message) error {
	return s.store.SetFavorite(ctx, sessionID, message, userID)
}

func (s *SessionService) DeleteMessages(ctx context.Context, userID uint, sessionID string) error {
	return s.store.DeleteMessages(ctx, sessionID, userID)
}
