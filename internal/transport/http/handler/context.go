package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"suna-chat/internal/app"
	"suna-chat/internal/remotestore"
	"suna-chat/internal/transport/http/middleware"
	"suna-chat/internal/transport/http/response"
)

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok && userID != 0
}

func sessionIDParam(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" || len(id) > 64 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return "", false
	}
	return id, true
}

// writeStoreError maps remote store failures onto the response envelope.
func writeStoreError(c *gin.Context, err error, fallback string) {
	var storeErr *remotestore.StoreError
	switch {
	case errors.Is(err, remotestore.ErrUnauthorized):
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, err.Error())
	case errors.Is(err, remotestore.ErrForbidden):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, err.Error())
	case errors.Is(err, remotestore.ErrNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
	case errors.Is(err, app.ErrMessageEmpty):
		response.Error(c, http.StatusBadRequest, response.CodeEmptyMessage, err.Error())
	case errors.As(err, &storeErr) && storeErr.Status == http.StatusBadRequest:
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
