package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"suna-chat/internal/model"
)

// MessagePublisher enqueues message appends for the persist worker.
type MessagePublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewMessagePublisher(conn *amqp.Connection, queueName string) *MessagePublisher {
	return &MessagePublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *MessagePublisher) Publish(ctx context.Context, job model.AppendJob) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if _, err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal append job failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish append job failed: %w", err)
	}
	return nil
}

// DeclareQueue declares the durable queue shared by publisher and worker.
func DeclareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("declare queue failed: %w", err)
	}
	return q, nil
}
