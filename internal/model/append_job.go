package model

import "suna-chat/internal/chat"

// AppendJob is the queued form of a message append, consumed by the persist worker.
type AppendJob struct {
	SessionID string       `json:"session_id"`
	UserID    uint         `json:"user_id"`
	Message   chat.Message `json:"message"`
}
