package remotestore

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"suna-chat/internal/changefeed"
	"suna-chat/internal/chat"
	"suna-chat/internal/model"
	"suna-chat/internal/repository"
)

// DBStore is the server-side Store over gorm. Every committed write is announced on the
// change feed; feed failures are logged and do not fail the write.
type DBStore struct {
	db       *gorm.DB
	sessions *repository.SessionRepository
	messages *repository.MessageRepository
	feed     changefeed.Publisher
	cache    MessageCache
	log      *zap.Logger
}

func NewDBStore(db *gorm.DB, feed changefeed.Publisher, cache MessageCache, log *zap.Logger) *DBStore {
	if feed == nil {
		feed = changefeed.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DBStore{
		db:       db,
		sessions: repository.NewSessionRepository(db),
		messages: repository.NewMessageRepository(db),
		feed:     feed,
		cache:    cache,
		log:      log,
	}
}

func (s *DBStore) ListSessions(ctx context.Context, userID uint) ([]chat.Session, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	rows, err := s.sessions.ListByUserID(ctx, userID)
	if err != nil {
		return nil, storeErr("list sessions", err)
	}
	out := make([]chat.Session, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToChat())
	}
	return out, nil
}

func (s *DBStore) GetSession(ctx context.Context, sessionID string, userID uint) (chat.Session, error) {
	row, err := s.owned(ctx, "get session", sessionID, userID)
	if err != nil {
		return chat.Session{}, err
	}
	messages, err := s.GetMessages(ctx, sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	session := row.ToChat()
	session.Messages = messages
	return session, nil
}

func (s *DBStore) GetMessages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	if s.cache != nil {
		dirty, err := s.cache.IsDirty(ctx, sessionID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.cache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	rows, err := s.messages.ListBySessionID(ctx, sessionID)
	if err != nil {
		return nil, storeErr("get messages", err)
	}
	messages := chat.DedupMessages(model.MessagesToChat(rows))

	if s.cache != nil {
		if dirty, dirtyErr := s.cache.IsDirty(ctx, sessionID); dirtyErr == nil && !dirty {
			if err := s.cache.SetHistory(ctx, sessionID, messages); err != nil {
				s.log.Debug("fill message cache failed", zap.String("session_id", sessionID), zap.Error(err))
			}
		}
	}
	return messages, nil
}

func (s *DBStore) UpsertSession(ctx context.Context, session chat.Session, userID uint) error {
	if userID == 0 {
		return ErrUnauthorized
	}
	if strings.TrimSpace(session.ID) == "" {
		return invalidErr("upsert session", errEmptySessionID)
	}
	existing, err := s.sessions.GetByID(ctx, session.ID)
	if err != nil {
		return storeErr("upsert session", err)
	}
	if existing != nil && existing.UserID != userID {
		return ErrForbidden
	}

	row := model.SessionFromChat(session, userID)
	if err := s.sessions.Upsert(ctx, &row); err != nil {
		return storeErr("upsert session", err)
	}

	eventType := changefeed.Insert
	if existing != nil {
		eventType = changefeed.Update
	}
	s.announce(ctx, changefeed.Event{
		EventType: eventType,
		Table:     changefeed.TableSessions,
		UserID:    userID,
		New:       &changefeed.Record{ID: session.ID},
	})
	return nil
}

// AppendMessage inserts message unless a message with the same composite key exists.
func (s *DBStore) AppendMessage(ctx context.Context, message chat.Message, sessionID string, userID uint) error {
	if _, err := s.owned(ctx, "append message", sessionID, userID); err != nil {
		return err
	}
	existing, err := s.messages.FindByKey(ctx, sessionID, message.Timestamp, string(message.Role), message.Content)
	if err != nil {
		return storeErr("append message", err)
	}
	if existing != nil {
		return nil
	}

	row := model.MessageFromChat(message, sessionID, userID)
	if err := s.messages.Create(ctx, &row); err != nil {
		return storeErr("append message", err)
	}
	s.invalidate(ctx, sessionID)
	s.announce(ctx, changefeed.Event{
		EventType: changefeed.Insert,
		Table:     changefeed.TableMessages,
		UserID:    userID,
		New:       &changefeed.Record{ID: strconv.FormatUint(uint64(row.ID), 10), SessionID: sessionID},
	})
	return nil
}

func (s *DBStore) SetFavorite(ctx context.Context, sessionID string, message chat.Message, userID uint) error {
	if _, err := s.owned(ctx, "set favorite", sessionID, userID); err != nil {
		return err
	}
	existing, err := s.messages.FindByKey(ctx, sessionID, message.Timestamp, string(message.Role), message.Content)
	if err != nil {
		return storeErr("set favorite", err)
	}
	if existing == nil {
		return ErrNotFound
	}
	if existing.IsFavorite == message.IsFavorite {
		return nil
	}
	if err := s.messages.UpdateFavorite(ctx, existing.ID, message.IsFavorite); err != nil {
		return storeErr("set favorite", err)
	}
	s.invalidate(ctx, sessionID)
	s.announce(ctx, changefeed.Event{
		EventType: changefeed.Update,
		Table:     changefeed.TableMessages,
		UserID:    userID,
		New:       &changefeed.Record{ID: strconv.FormatUint(uint64(existing.ID), 10), SessionID: sessionID},
	})
	return nil
}

// DeleteSession removes the session and its messages in one transaction.
func (s *DBStore) DeleteSession(ctx context.Context, sessionID string, userID uint) error {
	if _, err := s.owned(ctx, "delete session", sessionID, userID); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewMessageRepository(tx).DeleteBySessionID(ctx, sessionID); err != nil {
			return err
		}
		return repository.NewSessionRepository(tx).DeleteByIDAndUserID(ctx, sessionID, userID)
	})
	if err != nil {
		return storeErr("delete session", err)
	}
	s.invalidate(ctx, sessionID)
	s.announce(ctx, changefeed.Event{
		EventType: changefeed.Delete,
		Table:     changefeed.TableSessions,
		UserID:    userID,
		Old:       &changefeed.Record{ID: sessionID},
	})
	return nil
}

func (s *DBStore) DeleteMessages(ctx context.Context, sessionID string, userID uint) error {
	if _, err := s.owned(ctx, "delete messages", sessionID, userID); err != nil {
		return err
	}
	if err := s.messages.DeleteBySessionID(ctx, sessionID); err != nil {
		return storeErr("delete messages", err)
	}
	s.invalidate(ctx, sessionID)
	s.announce(ctx, changefeed.Event{
		EventType: changefeed.Delete,
		Table:     changefeed.TableMessages,
		UserID:    userID,
		Old:       &changefeed.Record{SessionID: sessionID},
	})
	return nil
}

// Authorize reports whether userID owns sessionID, using the same errors as the writes.
func (s *DBStore) Authorize(ctx context.Context, sessionID string, userID uint) error {
	_, err := s.owned(ctx, "authorize", sessionID, userID)
	return err
}

func (s *DBStore) owned(ctx context.Context, op, sessionID string, userID uint) (*model.Session, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	row, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if row == nil {
		return nil, ErrNotFound
	}
	if row.UserID != userID {
		return nil, ErrForbidden
	}
	return row, nil
}

func (s *DBStore) invalidate(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.MarkDirty(ctx, sessionID)
	_ = s.cache.DeleteHistory(ctx, sessionID)
}

func (s *DBStore) announce(ctx context.Context, event changefeed.Event) {
	if err := s.feed.Publish(ctx, event); err != nil {
		s.log.Warn("publish change event failed",
			zap.String("table", event.Table),
			zap.String("event_type", string(event.EventType)),
			zap.String("session_id", event.SessionID()),
			zap.Error(err),
		)
	}
}
