package transport

import (
	"context"
	"sync"

	"github.com/corkboardhq/corkboard/backend/internal/board"
	"go.uber.org/zap"
)

const defaultFrameBuffer = 16

type topicKey struct {
	boardID board.BoardID
	kind    Kind
}

// MemoryRelay is an in-process relay. All channels opened from the same relay
// for the same board and kind form one multicast group. Frames are dropped,
// not queued, when a subscriber falls behind.
type MemoryRelay struct {
	mu         sync.RWMutex
	members    map[topicKey]map[int64]*memoryChannel
	nextID     int64
	bufferSize int
	logger     *zap.Logger
}

// NewMemoryRelay constructs an in-process relay.
func NewMemoryRelay(logger *zap.Logger) *MemoryRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryRelay{
		members:    make(map[topicKey]map[int64]*memoryChannel),
		bufferSize: defaultFrameBuffer,
		logger:     logger,
	}
}

// OpenChannel implements Relay.
func (relay *MemoryRelay) OpenChannel(boardID board.BoardID, kind Kind) (Channel, error) {
	if _, err := ParseKind(kind.String()); err != nil {
		return nil, err
	}
	channel := &memoryChannel{
		id:       relay.nextSequence(),
		relay:    relay,
		topic:    topicKey{boardID: boardID, kind: kind},
		frames:   make(chan []byte, relay.bufferSize),
		handlers: make(map[int64]Handler),
		statuses: make(map[int64]StatusHandler),
		done:     make(chan struct{}),
	}
	relay.register(channel)
	go channel.dispatchLoop()
	return channel, nil
}

func (relay *MemoryRelay) nextSequence() int64 {
	relay.mu.Lock()
	defer relay.mu.Unlock()
	relay.nextID++
	return relay.nextID
}

func (relay *MemoryRelay) register(channel *memoryChannel) {
	relay.mu.Lock()
	defer relay.mu.Unlock()
	if _, ok := relay.members[channel.topic]; !ok {
		relay.members[channel.topic] = make(map[int64]*memoryChannel)
	}
	relay.members[channel.topic][channel.id] = channel
}

func (relay *MemoryRelay) unregister(channel *memoryChannel) {
	relay.mu.Lock()
	members := relay.members[channel.topic]
	if members != nil {
		delete(members, channel.id)
		if len(members) == 0 {
			delete(relay.members, channel.topic)
		}
	}
	relay.mu.Unlock()
}

// broadcast delivers a frame to every member of the topic except the origin.
func (relay *MemoryRelay) broadcast(topic topicKey, originID int64, frame []byte) {
	relay.mu.RLock()
	members := relay.members[topic]
	copies := make([]*memoryChannel, 0, len(members))
	for _, member := range members {
		if member.id == originID {
			continue
		}
		copies = append(copies, member)
	}
	relay.mu.RUnlock()
	for _, member := range copies {
		select {
		case member.frames <- frame:
		default:
			relay.logger.Debug("relay frame dropped",
				zap.String("board_id", topic.boardID.String()),
				zap.String("kind", topic.kind.String()))
		}
	}
}

type memoryChannel struct {
	id    int64
	relay *MemoryRelay
	topic topicKey

	frames chan []byte
	done   chan struct{}

	mu       sync.Mutex
	nextSub  int64
	handlers map[int64]Handler
	statuses map[int64]StatusHandler
	closed   bool
}

func (channel *memoryChannel) dispatchLoop() {
	for {
		select {
		case frame := <-channel.frames:
			for _, handler := range channel.handlerSnapshot() {
				handler(frame)
			}
		case <-channel.done:
			return
		}
	}
}

func (channel *memoryChannel) handlerSnapshot() []Handler {
	channel.mu.Lock()
	defer channel.mu.Unlock()
	copies := make([]Handler, 0, len(channel.handlers))
	for _, handler := range channel.handlers {
		copies = append(copies, handler)
	}
	return copies
}

// Publish implements Channel.
func (channel *memoryChannel) Publish(_ context.Context, frame []byte) error {
	channel.mu.Lock()
	closed := channel.closed
	channel.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}
	channel.relay.broadcast(channel.topic, channel.id, frame)
	return nil
}

// Subscribe implements Channel.
func (channel *memoryChannel) Subscribe(handler Handler) (cancel func()) {
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

// Connected implements Channel. An open in-process channel is always live.
func (channel *memoryChannel) Connected() bool {
	channel.mu.Lock()
	defer channel.mu.Unlock()
	return !channel.closed
}

// OnStatusChange implements Channel.
func (channel *memoryChannel) OnStatusChange(handler StatusHandler) (cancel func()) {
	channel.mu.Lock()
	channel.nextSub++
	subscriberID := channel.nextSub
	channel.statuses[subscriberID] = handler
	current := !channel.closed
	channel.mu.Unlock()
	handler(current)
	return func() {
		channel.mu.Lock()
		delete(channel.statuses, subscriberID)
		channel.mu.Unlock()
	}
}

// Close implements Channel.
func (channel *memoryChannel) Close() error {
	channel.mu.Lock()
	if channel.closed {
		channel.mu.Unlock()
		return nil
	}
	channel.closed = true
	observers := make([]StatusHandler, 0, len(channel.statuses))
	for _, observer := range channel.statuses {
		observers = append(observers, observer)
	}
	channel.mu.Unlock()

	channel.relay.unregister(channel)
	close(channel.done)
	for _, observer := range observers {
		observer(false)
	}
	return nil
}
