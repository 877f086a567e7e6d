// Package changefeed carries row-level change notifications for chat data from the server
// to connected devices.
package changefeed

import "context"

type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

const (
	TableSessions = "chat_sessions"
	TableMessages = "chat_messages"
)

// Record identifies the row an event refers to.
type Record struct {
	ID        string `json:"id,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

type Event struct {
	EventType EventType `json:"eventType"`
	Table     string    `json:"table"`
	UserID    uint      `json:"userId"`
	New       *Record   `json:"new,omitempty"`
	Old       *Record   `json:"old,omitempty"`
}

// SessionID returns the chat session the event concerns, whichever side carries it.
func (e Event) SessionID() string {
	for _, r := range []*Record{e.New, e.Old} {
		if r == nil {
			continue
		}
		if e.Table == TableSessions && r.ID != "" {
			return r.ID
		}
		if r.SessionID != "" {
			return r.SessionID
		}
	}
	return ""
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// State is the lifecycle of a device subscription.
type State string

const (
	StateSubscribed State = "subscribed"
	StateTimedOut   State = "timed_out"
	StateClosed     State = "closed"
	StateError      State = "error"
)

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
