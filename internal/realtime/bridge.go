// Package realtime applies remote change notifications to the device's local sessions.
package realtime

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"suna-chat/internal/changefeed"
	"suna-chat/internal/chat"
	"suna-chat/internal/remotestore"
)

// Feed delivers change events for one user. Both channels close when the subscription ends.
type Feed interface {
	Subscribe(ctx context.Context, userID uint) (<-chan changefeed.Event, <-chan changefeed.State, error)
}

// Sink receives the merged results. chatsync.Manager implements it.
type Sink interface {
	ApplyRemote(ctx context.Context, session chat.Session)
	RemoveLocal(ctx context.Context, id string)
}

// Fetcher loads the current remote copy of a session.
type Fetcher interface {
	GetSession(ctx context.Context, sessionID string, userID uint) (chat.Session, error)
}

type Bridge struct {
	feed    Feed
	fetcher Fetcher
	sink    Sink
	log     *zap.Logger

	mu      sync.RWMutex
	state   changefeed.State
	onState func(changefeed.State)
}

func NewBridge(feed Feed, fetcher Fetcher, sink Sink, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{feed: feed, fetcher: fetcher, sink: sink, log: log}
}

// OnState registers a callback for subscription state transitions.
func (b *Bridge) OnState(fn func(changefeed.State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onState = fn
}

// State returns the last observed subscription state, empty before the first one.
func (b *Bridge) State() changefeed.State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Run consumes the feed for userID until ctx is done or the subscription ends.
// It does not resubscribe.
func (b *Bridge) Run(ctx context.Context, userID uint) error {
	events, states, err := b.feed.Subscribe(ctx, userID)
	if err != nil {
		b.setState(changefeed.StateError)
		return err
	}

	for events != nil || states != nil {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			b.setState(st)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			b.Handle(ctx, userID, ev)
		}
	}
	return nil
}

// Handle applies one event for userID.
func (b *Bridge) Handle(ctx context.Context, userID uint, ev changefeed.Event) {
	if ev.UserID != userID {
		return
	}
	sessionID := ev.SessionID()
	if sessionID == "" {
		b.log.Debug("ignore change event without session", zap.String("table", ev.Table))
		return
	}

	if ev.EventType == changefeed.Delete && ev.Table == changefeed.TableSessions {
		b.sink.RemoveLocal(ctx, sessionID)
		return
	}

	switch ev.EventType {
	case changefeed.Insert, changefeed.Update, changefeed.Delete:
	default:
		b.log.Debug("ignore unknown change event", zap.String("event_type", string(ev.EventType)))
		return
	}

	session, err := b.fetcher.GetSession(ctx, sessionID, userID)
	switch {
	case err == nil:
		b.sink.ApplyRemote(ctx, session)
	case errors.Is(err, remotestore.ErrNotFound):
		// Deleted before the refetch landed.
		b.sink.RemoveLocal(ctx, sessionID)
	default:
		b.log.Warn("refetch changed session failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (b *Bridge) setState(st changefeed.State) {
	b.mu.Lock()
	b.state = st
	fn := b.onState
	b.mu.Unlock()

	b.log.Info("realtime subscription state", zap.String("state", string(st)))
	if fn != nil {
		fn(st)
	}
}
