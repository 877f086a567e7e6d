package chat

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	DefaultTitle = "New Chat"

	// titleRuneLimit bounds auto-derived titles.
	titleRuneLimit = 30
)

type Session struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	ConversationID    string    `json:"conversationId,omitempty"`
	IsPinned          bool      `json:"isPinned"`
	IsManuallyRenamed bool      `json:"isManuallyRenamed"`
	CreatedAt         int64     `json:"createdAt"`
	UpdatedAt         int64     `json:"updatedAt"`
	Messages          []Message `json:"messages"`
}

// NewSession returns an empty session with a client-assigned id.
func NewSession(now time.Time) Session {
	ms := now.UnixMilli()
	return Session{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		CreatedAt: ms,
		UpdatedAt: ms,
		Messages:  []Message{},
	}
}

// HasMessages reports whether the session is meaningful enough to persist and list.
func (s Session) HasMessages() bool {
	return len(s.Messages) > 0
}

// Touch bumps UpdatedAt to now, keeping it strictly increasing.
func (s *Session) Touch(now time.Time) {
	ms := now.UnixMilli()
	if ms <= s.UpdatedAt {
		ms = s.UpdatedAt + 1
	}
	s.UpdatedAt = ms
}

// Append adds a message and bumps UpdatedAt.
func (s *Session) Append(msg Message, now time.Time) {
	if msg.Timestamp == 0 {
		msg.Timestamp = now.UnixMilli()
	}
	s.Messages = append(s.Messages, msg)
	s.Touch(now)
}

// Clone returns a deep copy so callers can mutate without aliasing stored slices.
func (s Session) Clone() Session {
	out := s
	if s.Messages != nil {
		out.Messages = make([]Message, len(s.Messages))
		copy(out.Messages, s.Messages)
	}
	return out
}

// Meta returns the session without messages.
func (s Session) Meta() Session {
	out := s
	out.Messages = nil
	return out
}

// ApplyAutoTitle sets the title from the first user message unless the user renamed it.
func (s *Session) ApplyAutoTitle() {
	if s.IsManuallyRenamed {
		return
	}
	for _, msg := range s.Messages {
		if msg.Role != RoleUser {
			continue
		}
		if title := DeriveTitle(msg.Content); title != "" {
			s.Title = title
		}
		return
	}
	if strings.TrimSpace(s.Title) == "" {
		s.Title = DefaultTitle
	}
}

// DeriveTitle returns the first 30 runes of content, trimmed at both ends.
func DeriveTitle(content string) string {
	if utf8.RuneCountInString(content) <= titleRuneLimit {
		return strings.TrimSpace(content)
	}
	runes := []rune(content)
	return strings.TrimSpace(string(runes[:titleRuneLimit]))
}
