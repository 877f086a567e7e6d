package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"suna-chat/internal/app"
	"suna-chat/internal/chat"
	"suna-chat/internal/transport/http/response"
)

type SessionHandler struct {
	sessionService *app.SessionService
}

type UpsertSessionRequest struct {
	Title             string `json:"title" binding:"max=256"`
	ConversationID    string `json:"conversationId" binding:"max=128"`
	IsPinned          bool   `json:"isPinned"`
	IsManuallyRenamed bool   `json:"isManuallyRenamed"`
	CreatedAt         int64  `json:"createdAt" binding:"gte=0"`
	UpdatedAt         int64  `json:"updatedAt" binding:"gte=0"`
}

type MessageRequest struct {
	Role       string `json:"role" binding:"required"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp" binding:"required,gt=0"`
	IsFavorite bool   `json:"isFavorite"`
}

func (r MessageRequest) toChat() (chat.Message, error) {
	role, err := chat.ParseRole(strings.TrimSpace(r.Role))
	if err != nil {
		return chat.Message{}, err
	}
	return chat.Message{Role: role, Content: r.Content, Timestamp: r.Timestamp, IsFavorite: r.IsFavorite}, nil
}

func NewSessionHandler(sessionService *app.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessions, err := h.sessionService.List(c.Request.Context(), userID)
	if err != nil {
		writeStoreError(c, err, "list sessions failed")
		return
	}
	response.OK(c, sessions)
}

func (h *SessionHandler) Get(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	session, err := h.sessionService.Get(c.Request.Context(), userID, sessionID)
	if err != nil {
		writeStoreError(c, err, "get session failed")
		return
	}
	response.OK(c, session)
}

func (h *SessionHandler) Upsert(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	var req UpsertSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	err := h.sessionService.Upsert(c.Request.Context(), userID, sessionID, chat.Session{
		Title:             req.Title,
		ConversationID:    req.ConversationID,
		IsPinned:          req.IsPinned,
		IsManuallyRenamed: req.IsManuallyRenamed,
		CreatedAt:         req.CreatedAt,
		UpdatedAt:         req.UpdatedAt,
	})
	if err != nil {
		writeStoreError(c, err, "upsert session failed")
		return
	}
	response.OK(c, gin.H{"id": sessionID})
}

func (h *SessionHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	if err := h.sessionService.Delete(c.Request.Context(), userID, sessionID); err != nil {
		writeStoreError(c, err, "delete session failed")
		return
	}
	response.OK(c, gin.H{"deleted_session_id": sessionID})
}

func (h *SessionHandler) Messages(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	messages, err := h.sessionService.Messages(c.Request.Context(), userID, sessionID)
	if err != nil {
		writeStoreError(c, err, "get messages failed")
		return
	}
	response.OK(c, messages)
}

func (h *SessionHandler) Append(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	message, ok := bindMessage(c)
	if !ok {
		return
	}

	queued, err := h.sessionService.Append(c.Request.Context(), userID, sessionID, message)
	if err != nil {
		writeStoreError(c, err, "append message failed")
		return
	}
	if queued {
		response.Accepted(c, gin.H{"queued": true})
		return
	}
	response.OK(c, gin.H{"queued": false})
}

func (h *SessionHandler) SetFavorite(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	message, ok := bindMessage(c)
	if !ok {
		return
	}

	if err := h.sessionService.SetFavorite(c.Request.Context(), userID, sessionID, message); err != nil {
		writeStoreError(c, err, "set favorite failed")
		return
	}
	response.OK(c, gin.H{"isFavorite": message.IsFavorite})
}

func (h *SessionHandler) DeleteMessages(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	if err := h.sessionService.DeleteMessages(c.Request.Context(), userID, sessionID); err != nil {
		writeStoreError(c, err, "delete messages failed")
		return
	}
	response.OK(c, gin.H{"session_id": sessionID})
}

func bindMessage(c *gin.Context) (chat.Message, bool) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return chat.Message{}, false
	}
	message, err := req.toChat()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return chat.Message{}, false
	}
	return message, true
}
