package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// New dials url and proves the broker answers by declaring queueName within 3s.
func New(ctx context.Context, url, queueName string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq failed: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		ch, err := conn.Channel()
		if err != nil {
			done <- fmt.Errorf("open rabbitmq channel failed: %w", err)
			return
		}
		defer ch.Close()
		_, err = DeclareQueue(ch, queueName)
		done <- err
	}()

	select {
	case <-checkCtx.Done():
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq health check timeout: %w", checkCtx.Err())
	case err := <-done:
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

func Ping(conn *amqp.Connection) error {
	if conn == nil || conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}
