package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"suna-chat/internal/changefeed"
	"suna-chat/internal/transport/http/response"
)

type RealtimeHandler struct {
	hub *changefeed.Hub
	log *zap.Logger
}

func NewRealtimeHandler(hub *changefeed.Hub, log *zap.Logger) *RealtimeHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RealtimeHandler{hub: hub, log: log}
}

// Subscribe upgrades to a websocket carrying the caller's change events.
func (h *RealtimeHandler) Subscribe(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	if err := h.hub.ServeWS(c.Writer, c.Request, userID); err != nil {
		h.log.Debug("realtime connection ended", zap.Uint("user_id", userID), zap.Error(err))
	}
}
