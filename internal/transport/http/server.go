package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"suna-chat/internal/bootstrap"
	"suna-chat/internal/transport/http/handler"
	"suna-chat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(requestLogger(app.Log), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	secret := app.Config.Auth.JWTSecret
	authHandler := handler.NewAuthHandler(app.AuthService)
	sessionHandler := handler.NewSessionHandler(app.SessionService)
	chatHandler := handler.NewChatHandler(app.ChatService)
	realtimeHandler := handler.NewRealtimeHandler(app.Hub, app.Log.Named("realtime"))

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(secret), authHandler.Me)

	sessions := v1.Group("/sessions")
	sessions.Use(middleware.AuthJWT(secret))
	sessions.GET("", sessionHandler.List)
	sessions.GET("/:id", sessionHandler.Get)
	sessions.PUT("/:id", sessionHandler.Upsert)
	sessions.DELETE("/:id", sessionHandler.Delete)
	sessions.GET("/:id/messages", sessionHandler.Messages)
	sessions.POST("/:id/messages", sessionHandler.Append)
	sessions.DELETE("/:id/messages", sessionHandler.DeleteMessages)
	sessions.PATCH("/:id/messages/favorite", sessionHandler.SetFavorite)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(middleware.OptionalJWT(secret))
	chatGroup.POST("", chatHandler.Ask)
	chatGroup.POST("/stream", chatHandler.Stream)

	v1.GET("/realtime", middleware.AuthJWT(secret), realtimeHandler.Subscribe)

	return router
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
