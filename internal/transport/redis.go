package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/corkboardhq/corkboard/backend/internal/board"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisTopicPrefix = "corkboard"

// relayFrame wraps a published frame with its origin channel identifier so a
// subscriber can drop its own frames; Redis pub/sub echoes to every
// subscriber, including the publisher's connection.
type relayFrame struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisRelay bridges board channels over Redis pub/sub so sessions in
// different processes share one multicast group per board and kind.
type RedisRelay struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisRelay constructs a relay backed by the provided Redis client.
func NewRedisRelay(client *redis.Client, logger *zap.Logger) (*RedisRelay, error) {
	if client == nil {
		return nil, fmt.Errorf("transport: redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{client: client, logger: logger}, nil
}

func redisTopic(boardID board.BoardID, kind Kind) string {
	return fmt.Sprintf("%s:%s:%s", redisTopicPrefix, boardID.String(), kind.String())
}

// OpenChannel implements Relay.
func (relay *RedisRelay) OpenChannel(boardID board.BoardID, kind Kind) (Channel, error) {
	if _, err := ParseKind(kind.String()); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	channel := &redisChannel{
		origin:   uuid.NewString(),
		topic:    redisTopic(boardID, kind),
		client:   relay.client,
		logger:   relay.logger,
		handlers: make(map[int64]Handler),
		statuses: make(map[int64]StatusHandler),
		cancel:   cancel,
	}
	channel.pubsub = relay.client.Subscribe(ctx, channel.topic)
	// Wait for the subscription confirmation before reporting connected.
	if _, err := channel.pubsub.Receive(ctx); err != nil {
		cancel()
		_ = channel.pubsub.Close()
		return nil, fmt.Errorf("transport: subscribe %s: %w", channel.topic, err)
	}
	channel.setConnected(true)
	go channel.receiveLoop()
	return channel, nil
}

type redisChannel struct {
	origin string
	topic  string
	client *redis.Client
	logger *zap.Logger
	pubsub *redis.PubSub
	cancel context.CancelFunc

	mu        sync.Mutex
	nextSub   int64
	handlers  map[int64]Handler
	statuses  map[int64]StatusHandler
	connected bool
	closed    bool
}

func (channel *redisChannel) receiveLoop() {
	for message := range channel.pubsub.Channel() {
		var wrapped relayFrame
		if err := json.Unmarshal([]byte(message.Payload), &wrapped); err != nil {
			channel.logger.Warn("relay frame decode failed",
				zap.String("topic", channel.topic), zap.Error(err))
			continue
		}
		if wrapped.Origin == channel.origin {
			continue
		}
		for _, handler := range channel.handlerSnapshot() {
			handler([]byte(wrapped.Frame))
		}
	}
	channel.setConnected(false)
}

func (channel *redisChannel) handlerSnapshot() []Handler {
	channel.mu.Lock()
	defer channel.mu.Unlock()
	copies := make([]Handler, 0, len(channel.handlers))
	for _, handler := range channel.handlers {
		copies = append(copies, handler)
	}
	return copies
}

func (channel *redisChannel) setConnected(connected bool) {
	channel.mu.Lock()
	if channel.connected == connected {
		channel.mu.Unlock()
		return
	}
	channel.connected = connected
	observers := make([]StatusHandler, 0, len(channel.statuses))
	for _, observer := range channel.statuses {
		observers = append(observers, observer)
	}
	channel.mu.Unlock()
	for _, observer := range observers {
		observer(connected)
	}
}

// Publish implements Channel. A failed publish drops the frame; the broadcast
// layer is ephemeral and never retries.
func (channel *redisChannel) Publish(ctx context.Context, frame []byte) error {
	channel.mu.Lock()
	closed := channel.closed
	channel.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}
	wrapped, err := json.Marshal(relayFrame{Origin: channel.origin, Frame: frame})
	if err != nil {
		return fmt.Errorf("transport: wrap frame: %w", err)
	}
	if err := channel.client.Publish(ctx, channel.topic, wrapped).Err(); err != nil {
		return fmt.Errorf("transport: publish %s: %w", channel.topic, err)
	}
	return nil
}

// Subscribe implements Channel.
func (channel *redisChannel) Subscribe(handler Handler) (cancel func()) {
	channel.mu.Lock()
	channel.nextSub++
	subscriberID := channel.nextSub
	channel.handlers[subscriberID] = handler
	channel.mu.Unlock()
	return func() {
		channel.mu.Lock()
		delete(channel.handlers, subscriberID)
		channel.mu.Unlock()
	}
}

// Connected implements Channel.
func (channel *redisChannel) Connected() bool {
	channel.mu.Lock()
	defer channel.mu.Unlock()
	return channel.connected
}

// OnStatusChange implements Channel.
func (channel *redisChannel) OnStatusChange(handler StatusHandler) (cancel func()) {
	channel.mu.Lock()
	channel.nextSub++
	subscriberID := channel.nextSub
	channel.statuses[subscriberID] = handler
	current := channel.connected
	channel.mu.Unlock()
	handler(current)
	return func() {
		channel.mu.Lock()
		delete(channel.statuses, subscriberID)
		channel.mu.Unlock()
	}
}

// Close implements Channel.
func (channel *redisChannel) Close() error {
	channel.mu.Lock()
	if channel.closed {
		channel.mu.Unlock()
		return nil
	}
	channel.closed = true
	channel.mu.Unlock()

	channel.cancel()
	err := channel.pubsub.Close()
	channel.setConnected(false)
	return err
}
