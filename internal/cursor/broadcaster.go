// Package cursor disseminates ephemeral pointer positions. Broadcasts are
// throttled to bound fan-out cost and consumers keep only the latest value
// per user; nothing here ever touches durable storage.
package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/corkboardhq/corkboard/backend/internal/board"
	"github.com/corkboardhq/corkboard/backend/internal/transport"
	"go.uber.org/zap"
)

// DefaultInterval is the minimum spacing between two position broadcasts for
// one user, regardless of input event frequency.
const DefaultInterval = 50 * time.Millisecond

var (
	errMissingRelay = errors.New("relay is required")
	noOpLogger      = zap.NewNop()
)

// Config describes the dependencies a Broadcaster requires.
type Config struct {
	BoardID  board.BoardID
	Relay    transport.Relay
	Interval time.Duration
	Logger   *zap.Logger
	// OnCursor receives each peer position as it arrives.
	OnCursor func(position board.CursorPosition)
}

// Broadcaster publishes this client's pointer positions and feeds peer
// positions to the consumer.
type Broadcaster struct {
	channel  transport.Channel
	interval time.Duration
	logger   *zap.Logger
	onCursor func(board.CursorPosition)

	mu       sync.Mutex
	lastSent time.Time
	pending  *board.CursorPosition
	trailing *time.Timer
	closed   bool

	cancelSubscribe func()
}

// NewBroadcaster opens the cursor channel for the board.
func NewBroadcaster(cfg Config) (*Broadcaster, error) {
	if cfg.Relay == nil {
		return nil, fmt.Errorf("cursor: %w", errMissingRelay)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	channel, err := cfg.Relay.OpenChannel(cfg.BoardID, transport.KindCursors)
	if err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}
	broadcaster := &Broadcaster{
		channel:  channel,
		interval: interval,
		logger:   logger,
		onCursor: cfg.OnCursor,
	}
	broadcaster.cancelSubscribe = channel.Subscribe(broadcaster.handleFrame)
	return broadcaster, nil
}

// Send publishes the position, at most once per interval. Positions arriving
// inside the throttle window collapse into a single trailing broadcast so the
// last value always goes out.
func (b *Broadcaster) Send(position board.CursorPosition) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	now := time.Now()
	if now.Sub(b.lastSent) >= b.interval {
		b.lastSent = now
		b.mu.Unlock()
		b.publish(position)
		return
	}
	b.pending = &position
	if b.trailing == nil {
		wait := b.interval - now.Sub(b.lastSent)
		b.trailing = time.AfterFunc(wait, b.flushPending)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) flushPending() {
	b.mu.Lock()
	b.trailing = nil
	if b.closed || b.pending == nil {
		b.mu.Unlock()
		return
	}
	position := *b.pending
	b.pending = nil
	b.lastSent = time.Now()
	b.mu.Unlock()
	b.publish(position)
}

func (b *Broadcaster) publish(position board.CursorPosition) {
	frame, err := board.EncodeEvent(board.EventCursor, position)
	if err != nil {
		b.logger.Warn("cursor encode failed", zap.Error(err))
		return
	}
	if err := b.channel.Publish(context.Background(), frame); err != nil {
		b.logger.Debug("cursor publish dropped", zap.Error(err))
	}
}

func (b *Broadcaster) handleFrame(frame []byte) {
	if b.onCursor == nil {
		return
	}
	envelope, err := board.DecodeEvent(frame)
	if err != nil || envelope.Type != board.EventCursor {
		return
	}
	var position board.CursorPosition
	if err := json.Unmarshal(envelope.Payload, &position); err != nil {
		b.logger.Warn("cursor decode failed", zap.Error(err))
		return
	}
	b.onCursor(position)
}

// Close releases the cursor channel. Peers drop this user's cursor when
// presence reports the departure, not on channel close.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.trailing != nil {
		b.trailing.Stop()
		b.trailing = nil
	}
	b.pending = nil
	b.mu.Unlock()
	b.cancelSubscribe()
	return b.channel.Close()
}

// View is a consumer-side map of live cursors, one entry per user, last
// value wins.
type View struct {
	mu      sync.Mutex
	cursors map[board.UserID]board.CursorPosition
}

// NewView constructs an empty cursor view.
func NewView() *View {
	return &View{cursors: make(map[board.UserID]board.CursorPosition)}
}

// Observe overwrites the user's cursor with the received position.
func (v *View) Observe(position board.CursorPosition) {
	v.mu.Lock()
	v.cursors[position.UserID] = position
	v.mu.Unlock()
}

// Drop removes a departed user's cursor. Wire this to the presence tracker's
// leave notifications; there is no cursor-level expiry.
func (v *View) Drop(userID board.UserID) {
	v.mu.Lock()
	delete(v.cursors, userID)
	v.mu.Unlock()
}

// Cursor returns the live position for a user.
func (v *View) Cursor(userID board.UserID) (board.CursorPosition, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	position, ok := v.cursors[userID]
	return position, ok
}

// Cursors returns a copy of every live cursor keyed by user id.
func (v *View) Cursors() map[board.UserID]board.CursorPosition {
	v.mu.Lock()
	defer v.mu.Unlock()
	snapshot := make(map[board.UserID]board.CursorPosition, len(v.cursors))
	for userID, position := range v.cursors {
		snapshot[userID] = position
	}
	return snapshot
}
