package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"suna-chat/internal/app"
	"suna-chat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type ChatRequest struct {
	Message        string `json:"message" binding:"required,max=8000"`
	ConversationID string `json:"conversation_id" binding:"max=128"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Ask answers one message. Guests are allowed; a token only scopes the LLM conversation.
func (h *ChatHandler) Ask(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	userID, _ := getUserIDFromContext(c)

	reply, err := h.chatService.Ask(c.Request.Context(), app.AskInput{
		UserID:         userID,
		Message:        req.Message,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrMessageEmpty):
			response.Error(c, http.StatusBadRequest, response.CodeEmptyMessage, err.Error())
		case errors.Is(err, app.ErrLLMConfig):
			response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, err.Error())
		default:
			response.Error(c, http.StatusBadGateway, response.CodeInternalServer, "ask assistant failed")
		}
		return
	}

	response.OK(c, reply)
}

func (h *ChatHandler) Stream(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	userID, _ := getUserIDFromContext(c)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	reply, err := h.chatService.StreamAsk(c.Request.Context(), app.AskInput{
		UserID:         userID,
		Message:        req.Message,
		ConversationID: req.ConversationID,
	}, func(chunk string) error {
		if _, writeErr := c.Writer.Write([]byte("data: " + sanitizeSSE(chunk) + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if _, writeErr := c.Writer.Write([]byte(fmt.Sprintf("event: error\ndata: %s\n\n", sanitizeSSE(err.Error())))); writeErr == nil {
			flusher.Flush()
		}
		return
	}

	if _, writeErr := c.Writer.Write([]byte("event: done\ndata: " + sanitizeSSE(reply.ConversationID) + "\n\n")); writeErr == nil {
		flusher.Flush()
	}
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
