package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"suna-chat/internal/bootstrap"
	mysqlClient "suna-chat/internal/platform/mysql"
	rabbitmqClient "suna-chat/internal/platform/rabbitmq"
)

type HealthHandler struct {
	app *bootstrap.App
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Enabled bool   `json:"enabled"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := h.checkDatabase(ctx)
	redisStatus := h.checkRedis(ctx)
	rmqStatus := h.checkRabbitMQ()

	allOK := dbStatus.OK && redisStatus.OK && rmqStatus.OK
	statusCode := http.StatusOK
	if !allOK {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"app":        h.app.Config.App.Name,
		"env":        h.app.Config.App.Env,
		"uptime_sec": int(time.Since(h.app.StartedAt).Seconds()),
		"dependencies": gin.H{
			h.app.Config.Database.Driver: dbStatus,
			"redis":                      redisStatus,
			"rabbitmq":                   rmqStatus,
		},
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) dependencyStatus {
	if err := mysqlClient.Ping(ctx, h.app.DB); err != nil {
		return dependencyStatus{OK: false, Enabled: true, Message: err.Error()}
	}
	return dependencyStatus{OK: true, Enabled: true}
}

func (h *HealthHandler) checkRedis(ctx context.Context) dependencyStatus {
	if h.app.Redis == nil {
		return dependencyStatus{OK: true}
	}
	if err := h.app.Redis.Ping(ctx).Err(); err != nil {
		return dependencyStatus{OK: false, Enabled: true, Message: err.Error()}
	}
	return dependencyStatus{OK: true, Enabled: true}
}

func (h *HealthHandler) checkRabbitMQ() dependencyStatus {
	if h.app.MQConn == nil {
		return dependencyStatus{OK: true}
	}
	if err := rabbitmqClient.Ping(h.app.MQConn); err != nil {
		return dependencyStatus{OK: false, Enabled: true, Message: err.Error()}
	}
	return dependencyStatus{OK: true, Enabled: true}
}
