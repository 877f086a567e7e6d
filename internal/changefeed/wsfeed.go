package changefeed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const RealtimePath = "/api/v1/realtime"

// WSFeed subscribes to the server's realtime websocket.
type WSFeed struct {
	endpoint string
	token    func() string
	timeout  time.Duration
	log      *zap.Logger
}

// NewWSFeed takes the server base URL (http or https); token is read on every subscribe.
func NewWSFeed(baseURL string, token func() string, timeout time.Duration, log *zap.Logger) (*WSFeed, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse realtime url failed: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported realtime scheme %q", u.Scheme)
	}
	u.Path += RealtimePath
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WSFeed{endpoint: u.String(), token: token, timeout: timeout, log: log}, nil
}

// Subscribe dials the feed in the background. Both channels close when the subscription ends.
func (f *WSFeed) Subscribe(ctx context.Context, userID uint) (<-chan Event, <-chan State, error) {
	if userID == 0 {
		return nil, nil, errors.New("realtime subscribe requires a user")
	}
	events := make(chan Event, listenerBuffer)
	states := make(chan State, 4)

	go func() {
		defer close(events)
		defer close(states)

		header := http.Header{}
		if f.token != nil {
			if token := f.token(); token != "" {
				header.Set("Authorization", "Bearer "+token)
			}
		}
		dialer := websocket.Dialer{HandshakeTimeout: f.timeout}
		dialCtx, cancel := context.WithTimeout(ctx, f.timeout)
		conn, _, err := dialer.DialContext(dialCtx, f.endpoint, header)
		cancel()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				states <- StateClosed
			case isTimeout(err):
				f.log.Warn("realtime subscribe timed out", zap.String("endpoint", f.endpoint))
				states <- StateTimedOut
			default:
				f.log.Warn("realtime subscribe failed", zap.String("endpoint", f.endpoint), zap.Error(err))
				states <- StateError
			}
			return
		}
		defer conn.Close()
		states <- StateSubscribed

		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				_ = conn.Close()
			case <-done:
			}
		}()

		for {
			var event Event
			if err := conn.ReadJSON(&event); err != nil {
				if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					states <- StateClosed
				} else {
					f.log.Warn("realtime read failed", zap.Error(err))
					states <- StateError
				}
				return
			}
			select {
			case events <- event:
			case <-ctx.Done():
				states <- StateClosed
				return
			}
		}
	}()

	return events, states, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
