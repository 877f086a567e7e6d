package changefeed

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS upgrades the request and streams userID's events until either side hangs up.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID uint) error {
	// Listen first so nothing committed after the handshake is missed.
	events, cancel := h.Listen(userID)
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade realtime connection failed: %w", err)
	}
	defer conn.Close()

	h.log.Info("realtime client connected", zap.Uint("user_id", userID))
	defer h.log.Info("realtime client disconnected", zap.Uint("user_id", userID))

	// The read side only exists to observe pongs and the client's close frame.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return nil
		case <-closed:
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return fmt.Errorf("write realtime event failed: %w", err)
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		}
	}
}
