package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const listenerBuffer = 64

// Hub publishes change events on a watermill topic and fans consumed events out to
// per-user listeners held by this process.
type Hub struct {
	topic      string
	publisher  message.Publisher
	subscriber message.Subscriber
	log        *zap.Logger

	ready     chan struct{}
	readyOnce sync.Once

	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint]map[uint64]chan Event
}

func NewHub(topic string, publisher message.Publisher, subscriber message.Subscriber, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		topic:      topic,
		publisher:  publisher,
		subscriber: subscriber,
		log:        log,
		ready:      make(chan struct{}),
		listeners:  make(map[uint]map[uint64]chan Event),
	}
}

// NewInProcessHub uses a go-channel pub/sub; suitable for a single server instance.
func NewInProcessHub(topic string, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, NewWatermillLogger(log))
	return NewHub(topic, pubSub, pubSub, log)
}

// NewRedisStreamHub fans events across server instances. Each instance must use its own
// consumer group so every instance sees every event.
func NewRedisStreamHub(client *redisv9.Client, topic, consumerGroup string, log *zap.Logger) (*Hub, error) {
	if log == nil {
		log = zap.NewNop()
	}
	wmLogger := NewWatermillLogger(log)
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create redis stream publisher failed: %w", err)
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: consumerGroup,
		Consumer:      watermill.NewShortUUID(),
	}, wmLogger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create redis stream subscriber failed: %w", err)
	}
	return NewHub(topic, pub, sub, log), nil
}

func (h *Hub) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event failed: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := h.publisher.Publish(h.topic, msg); err != nil {
		return fmt.Errorf("publish change event failed: %w", err)
	}
	return nil
}

// Run consumes the topic until ctx is done. Call it before publishing with the in-process
// pub/sub, which drops messages that have no subscriber.
func (h *Hub) Run(ctx context.Context) error {
	messages, err := h.subscriber.Subscribe(ctx, h.topic)
	if err != nil {
		return fmt.Errorf("subscribe change topic failed: %w", err)
	}
	h.readyOnce.Do(func() { close(h.ready) })
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				h.log.Warn("drop malformed change event", zap.String("message_uuid", msg.UUID), zap.Error(err))
				msg.Ack()
				continue
			}
			h.dispatch(event)
			msg.Ack()
		}
	}
}

// Ready is closed once Run has subscribed to the topic.
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

// Listen registers a listener for userID's events. The returned cancel func closes the channel.
func (h *Hub) Listen(userID uint) (<-chan Event, func()) {
	ch := make(chan Event, listenerBuffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.listeners[userID] == nil {
		h.listeners[userID] = make(map[uint64]chan Event)
	}
	h.listeners[userID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.listeners[userID], id)
			if len(h.listeners[userID]) == 0 {
				delete(h.listeners, userID)
			}
			close(ch)
		})
	}
}

func (h *Hub) dispatch(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.listeners[event.UserID] {
		select {
		case ch <- event:
		default:
			h.log.Warn("change listener is full, dropping event",
				zap.Uint("user_id", event.UserID),
				zap.Uint64("listener", id),
				zap.String("table", event.Table),
			)
		}
	}
}

func (h *Hub) Close() error {
	var closeErr error
	if err := h.subscriber.Close(); err != nil {
		closeErr = err
	}
	if any(h.publisher) != any(h.subscriber) {
		if err := h.publisher.Close(); err != nil {
			closeErr = err
		}
	}
	return closeErr
}
