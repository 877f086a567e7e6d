package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"suna-chat/internal/ai"
	"suna-chat/internal/app"
	"suna-chat/internal/cache"
	"suna-chat/internal/changefeed"
	"suna-chat/internal/config"
	"suna-chat/internal/model"
	mysqlClient "suna-chat/internal/platform/mysql"
	rabbitmqClient "suna-chat/internal/platform/rabbitmq"
	redisClient "suna-chat/internal/platform/redis"
	sqliteClient "suna-chat/internal/platform/sqlite"
	"suna-chat/internal/remotestore"
	"suna-chat/internal/repository"
	"suna-chat/internal/worker"
)

type App struct {
	Config *config.Config
	Log    *zap.Logger
	DB     *gorm.DB
	// Redis and MQConn are nil when disabled in config.
	Redis         *redis.Client
	MQConn        *amqp.Connection
	Hub           *changefeed.Hub
	Store         *remotestore.DBStore
	MessageWorker *worker.MessagePersistWorker

	AuthService    *app.AuthService
	SessionService *app.SessionService
	ChatService    *app.ChatService

	StartedAt time.Time
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Config: cfg, Log: log, StartedAt: time.Now()}

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.DB = db
	if err := db.AutoMigrate(&model.User{}, &model.Session{}, &model.Message{}); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	var historyCache remotestore.MessageCache
	historyTTL := time.Duration(cfg.Redis.HistoryTTLSeconds) * time.Second
	dirtyTTL := time.Duration(cfg.Redis.HistoryDirtyTTLSeconds) * time.Second
	if cfg.Redis.Enabled {
		a.Redis, err = redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		historyCache = cache.NewHistoryCache(a.Redis, historyTTL, dirtyTTL)
	} else {
		historyCache = cache.NewMemoryHistoryCache(historyTTL, dirtyTTL)
	}

	if cfg.Realtime.RedisStream {
		a.Hub, err = changefeed.NewRedisStreamHub(a.Redis, cfg.Realtime.Topic, consumerGroup(cfg), log.Named("changefeed"))
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	} else {
		a.Hub = changefeed.NewInProcessHub(cfg.Realtime.Topic, log.Named("changefeed"))
	}

	a.Store = remotestore.NewDBStore(db, a.Hub, historyCache, log.Named("remotestore"))

	var publisher app.AsyncMessagePublisher
	if cfg.RabbitMQ.Enabled {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.MessagePersistQueue)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.MessageWorker = worker.NewMessagePersistWorker(a.MQConn, a.Store, cfg.RabbitMQ.MessagePersistQueue, log.Named("worker"))
		if err := a.MessageWorker.Start(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("start message worker failed: %w", err)
		}
		publisher = rabbitmqClient.NewMessagePublisher(a.MQConn, cfg.RabbitMQ.MessagePersistQueue)
	}

	a.AuthService = app.NewAuthService(repository.NewUserRepository(db), cfg.Auth.JWTSecret, cfg.JWTExpiration())
	a.SessionService = app.NewSessionService(a.Store, publisher, log.Named("sessions"))
	a.ChatService = app.NewChatService(ai.NewDifyClient(ai.ChatConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	}))

	log.Info("application initialized",
		zap.String("database", cfg.Database.Driver),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("rabbitmq", cfg.RabbitMQ.Enabled),
		zap.Bool("realtime_redis_stream", cfg.Realtime.RedisStream),
	)
	return a, nil
}

func openDatabase(ctx context.Context, cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	switch cfg.Database.Driver {
	case "mysql":
		return mysqlClient.New(ctx, cfg.MySQLDSN(), log)
	case "sqlite":
		return sqliteClient.NewGorm(ctx, cfg.Database.SQLitePath, log)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func consumerGroup(cfg *config.Config) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return fmt.Sprintf("%s-%s-%d", cfg.App.Name, host, os.Getpid())
}

func (a *App) Close() error {
	var errs []error
	if a.MessageWorker != nil {
		a.MessageWorker.Close()
	}
	if a.Hub != nil {
		if err := a.Hub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close change feed failed: %w", err))
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close rabbitmq failed: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis failed: %w", err))
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close database failed: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
