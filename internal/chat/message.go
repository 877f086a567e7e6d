package chat

import (
	"fmt"
	"strconv"
)

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleBot
}

// ParseRole accepts the two wire roles plus "assistant" from LLM-style payloads.
func ParseRole(raw string) (Role, error) {
	switch raw {
	case string(RoleUser):
		return RoleUser, nil
	case string(RoleBot), "assistant":
		return RoleBot, nil
	}
	return "", fmt.Errorf("unknown message role %q", raw)
}

type Message struct {
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"`
	IsFavorite bool   `json:"isFavorite"`
}

// Key is the composite de-duplication key (timestamp, role, content).
func (m Message) Key() string {
	return strconv.FormatInt(m.Timestamp, 10) + "\x00" + string(m.Role) + "\x00" + m.Content
}

// DedupMessages drops later messages whose composite key was already seen.
func DedupMessages(messages []Message) []Message {
	if len(messages) == 0 {
		return messages
	}
	seen := make(map[string]struct{}, len(messages))
	out := make([]Message, 0, len(messages))
	for _, msg := range messages {
		key := msg.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, msg)
	}
	return out
}

// MissingMessages returns the messages of want whose key is absent from have, in order.
func MissingMessages(have, want []Message) []Message {
	index := make(map[string]struct{}, len(have))
	for _, msg := range have {
		index[msg.Key()] = struct{}{}
	}
	var out []Message
	for _, msg := range want {
		if _, ok := index[msg.Key()]; !ok {
			out = append(out, msg)
		}
	}
	return out
}
