package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"suna-chat/internal/chat"
	"suna-chat/internal/model"
	"suna-chat/internal/platform/rabbitmq"
	"suna-chat/internal/remotestore"
)

// Appender persists one message; remotestore.DBStore implements it idempotently, so a
// redelivered job is harmless.
type Appender interface {
	AppendMessage(ctx context.Context, message chat.Message, sessionID string, userID uint) error
}

type MessagePersistWorker struct {
	conn      *amqp.Connection
	store     Appender
	queueName string
	log       *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMessagePersistWorker(conn *amqp.Connection, store Appender, queueName string, log *zap.Logger) *MessagePersistWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &MessagePersistWorker{
		conn:      conn,
		store:     store,
		queueName: queueName,
		log:       log,
	}
}

func (w *MessagePersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				requeue, err := w.Handle(workerCtx, d.Body)
				if err != nil {
					_ = d.Nack(false, requeue && !d.Redelivered)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.log.Info("message persist worker started", zap.String("queue", w.queueName))
	return nil
}

// Handle decodes and applies one append job. requeue reports whether a retry could succeed.
func (w *MessagePersistWorker) Handle(ctx context.Context, body []byte) (requeue bool, err error) {
	var job model.AppendJob
	if err := json.Unmarshal(body, &job); err != nil {
		w.log.Error("decode append job failed", zap.Error(err))
		return false, err
	}

	if err := w.store.AppendMessage(ctx, job.Message, job.SessionID, job.UserID); err != nil {
		transient := remotestore.IsTransient(err) && !errors.Is(err, context.Canceled)
		w.log.Warn("persist message failed",
			zap.String("session_id", job.SessionID),
			zap.Uint("user_id", job.UserID),
			zap.Bool("requeue", transient),
			zap.Error(err),
		)
		return transient, err
	}
	return false, nil
}

func (w *MessagePersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
