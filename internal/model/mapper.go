package model

import "suna-chat/internal/chat"

func SessionFromChat(s chat.Session, userID uint) Session {
	return Session{
		ID:                s.ID,
		UserID:            userID,
		Title:             s.Title,
		ConversationID:    s.ConversationID,
		IsPinned:          s.IsPinned,
		IsManuallyRenamed: s.IsManuallyRenamed,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

// ToChat returns the session metadata; Messages is left empty.
func (s Session) ToChat() chat.Session {
	return chat.Session{
		ID:                s.ID,
		Title:             s.Title,
		ConversationID:    s.ConversationID,
		IsPinned:          s.IsPinned,
		IsManuallyRenamed: s.IsManuallyRenamed,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
		Messages:          []chat.Message{},
	}
}

func MessageFromChat(m chat.Message, sessionID string, userID uint) Message {
	return Message{
		SessionID:  sessionID,
		UserID:     userID,
		Role:       string(m.Role),
		Content:    m.Content,
		Timestamp:  m.Timestamp,
		IsFavorite: m.IsFavorite,
	}
}

func (m Message) ToChat() chat.Message {
	role, err := chat.ParseRole(m.Role)
	if err != nil {
		role = chat.RoleUser
	}
	return chat.Message{
		Role:       role,
		Content:    m.Content,
		Timestamp:  m.Timestamp,
		IsFavorite: m.IsFavorite,
	}
}

func MessagesToChat(messages []Message) []chat.Message {
	out := make([]chat.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ToChat())
	}
	return out
}
