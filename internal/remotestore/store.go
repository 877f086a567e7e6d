// Package remotestore is the authoritative, per-user persistence of chat sessions.
package remotestore

import (
	"context"

	"suna-chat/internal/chat"
)

// Store is implemented by DBStore on the server and HTTPClient on devices.
// A zero userID means the caller is not authenticated.
type Store interface {
	ListSessions(ctx context.Context, userID uint) ([]chat.Session, error)
	GetSession(ctx context.Context, sessionID string, userID uint) (chat.Session, error)
	GetMessages(ctx context.Context, sessionID string) ([]chat.Message, error)
	UpsertSession(ctx context.Context, session chat.Session, userID uint) error
	AppendMessage(ctx context.Context, message chat.Message, sessionID string, userID uint) error
	SetFavorite(ctx context.Context, sessionID string, message chat.Message, userID uint) error
	DeleteSession(ctx context.Context, sessionID string, userID uint) error
	DeleteMessages(ctx context.Context, sessionID string, userID uint) error
}

// MessageCache fronts message reads; implemented by cache.HistoryCache.
type MessageCache interface {
	GetHistory(ctx context.Context, sessionID string) ([]chat.Message, bool, error)
	SetHistory(ctx context.Context, sessionID string, messages []chat.Message) error
	DeleteHistory(ctx context.Context, sessionID string) error
	MarkDirty(ctx context.Context, sessionID string) error
	IsDirty(ctx context.Context, sessionID string) (bool, error)
}
