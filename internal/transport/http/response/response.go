package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeUnauthorized       = 40100
	CodeForbidden          = 40300
	CodeInternalServer     = 50000
	CodeUnavailable        = 50300
	CodeEmailExists        = 40002
	CodeEmptyMessage       = 40003
	CodeInvalidCredentials = 40101
	CodeSessionNotFound    = 40401
	CodeMessageNotFound    = 40402
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

// Accepted acknowledges work handed to a background worker.
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, APIResponse{
		Code:    CodeOK,
		Message: "accepted",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}
