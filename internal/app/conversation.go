package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"suna-chat/internal/chat"
	"suna-chat/internal/chatsync"
	"suna-chat/internal/remotestore"
)

// Asker answers a user message; remotestore.HTTPClient implements it via the server proxy.
type Asker interface {
	Chat(ctx context.Context, message, conversationID string) (remotestore.ChatAnswer, error)
}

// Conversation drives one exchange on a device: user message, assistant reply, both saved
// through the sync manager.
type Conversation struct {
	manager *chatsync.Manager
	asker   Asker
	now     func() time.Time
}

func NewConversation(manager *chatsync.Manager, asker Asker) *Conversation {
	return &Conversation{manager: manager, asker: asker, now: time.Now}
}

// Send appends text to sessionID (a new session when empty) and asks for a reply. When the
// assistant call fails the user message is still saved and the session is returned with
// the error.
func (c *Conversation) Send(ctx context.Context, sessionID, text string) (chat.Session, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Session{}, ErrMessageEmpty
	}

	var session chat.Session
	if sessionID == "" {
		session = chat.NewSession(c.now())
	} else {
		existing, ok := c.manager.Get(ctx, sessionID)
		if !ok {
			return chat.Session{}, chatsync.ErrSessionNotFound
		}
		session = existing
	}

	session.Append(chat.Message{Role: chat.RoleUser, Content: text}, c.now())
	session, err := c.manager.Save(ctx, session)
	if err != nil {
		return session, err
	}

	answer, err := c.asker.Chat(ctx, text, session.ConversationID)
	if err != nil {
		return session, fmt.Errorf("ask assistant failed: %w", err)
	}

	session.Append(chat.Message{Role: chat.RoleBot, Content: answer.Answer}, c.now())
	if session.ConversationID == "" {
		session.ConversationID = answer.ConversationID
	}
	return c.manager.Save(ctx, session)
}
