// Package presence maintains the set of currently-connected users for a
// board. Membership is gossiped over the presence channel and every change
// delivers a wholesale membership snapshot, never a diff, which keeps the
// protocol self-healing against missed messages.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/corkboardhq/corkboard/backend/internal/board"
	"github.com/corkboardhq/corkboard/backend/internal/transport"
	"go.uber.org/zap"
)

var (
	errMissingRelay = errors.New("relay is required")
	noOpLogger      = zap.NewNop()

	// ErrNotSubscribed indicates Track was called before the channel opened.
	ErrNotSubscribed = errors.New("presence: not subscribed")
)

// State is the tracker's lifecycle position.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateTracked
)

// SyncHandler receives the complete membership map after every change.
type SyncHandler func(members map[board.UserID]board.PresenceEntry)

// LeaveHandler receives each departing user id. Cursor consumers use it to
// drop stale pointer entries.
type LeaveHandler func(userID board.UserID)

// Config describes the dependencies a Tracker requires.
type Config struct {
	BoardID board.BoardID
	Relay   transport.Relay
	Logger  *zap.Logger
	OnSync  SyncHandler
	OnLeave LeaveHandler
}

// Tracker is one client's view of a board's membership.
type Tracker struct {
	boardID board.BoardID
	channel transport.Channel
	logger  *zap.Logger
	onSync  SyncHandler
	onLeave LeaveHandler

	mu      sync.Mutex
	state   State
	self    board.PresenceEntry
	members map[board.UserID]board.PresenceEntry

	cancelSubscribe func()
}

// NewTracker opens the presence channel and starts observing announcements.
// The tracker reaches StateSubscribed once the channel is live; Track moves
// it to StateTracked.
func NewTracker(cfg Config) (*Tracker, error) {
	if cfg.Relay == nil {
		return nil, fmt.Errorf("presence: %w", errMissingRelay)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	tracker := &Tracker{
		boardID: cfg.BoardID,
		logger:  logger,
		onSync:  cfg.OnSync,
		onLeave: cfg.OnLeave,
		state:   StateConnecting,
		members: make(map[board.UserID]board.PresenceEntry),
	}
	channel, err := cfg.Relay.OpenChannel(cfg.BoardID, transport.KindPresence)
	if err != nil {
		tracker.state = StateDisconnected
		return nil, fmt.Errorf("presence: %w", err)
	}
	tracker.channel = channel
	tracker.cancelSubscribe = channel.Subscribe(tracker.handleFrame)
	tracker.mu.Lock()
	tracker.state = StateSubscribed
	tracker.mu.Unlock()
	return tracker, nil
}

// State returns the tracker's lifecycle position.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Track announces this client's entry to the board and adds it to the local
// membership set.
func (t *Tracker) Track(ctx context.Context, entry board.PresenceEntry) error {
	t.mu.Lock()
	if t.state == StateDisconnected || t.state == StateConnecting {
		t.mu.Unlock()
		return ErrNotSubscribed
	}
	t.self = entry
	t.state = StateTracked
	t.members[entry.UserID] = entry
	t.mu.Unlock()

	t.emitSync()
	t.announce(ctx)
	return nil
}

// Members returns the current membership set, deduplicated by user id.
func (t *Tracker) Members() []board.PresenceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	entries := make([]board.PresenceEntry, 0, len(t.members))
	for _, entry := range t.members {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UserID < entries[j].UserID
	})
	return entries
}

// Close announces departure and releases the presence channel.
func (t *Tracker) Close() error {
	t.mu.Lock()
	wasTracked := t.state == StateTracked
	self := t.self
	t.state = StateDisconnected
	t.mu.Unlock()

	if t.cancelSubscribe != nil {
		t.cancelSubscribe()
	}
	if wasTracked {
		t.publish(context.Background(), board.EventLeave, board.PresenceEvent{Entry: self})
	}
	return t.channel.Close()
}

func (t *Tracker) announce(ctx context.Context) {
	t.mu.Lock()
	self := t.self
	tracked := t.state == StateTracked
	t.mu.Unlock()
	if !tracked {
		return
	}
	t.publish(ctx, board.EventTrack, board.PresenceEvent{Entry: self})
}

func (t *Tracker) handleFrame(frame []byte) {
	envelope, err := board.DecodeEvent(frame)
	if err != nil {
		t.logger.Warn("presence frame dropped", zap.Error(err))
		return
	}
	var event board.PresenceEvent
	if err := json.Unmarshal(envelope.Payload, &event); err != nil {
		t.logger.Warn("presence event decode failed",
			zap.String("event", string(envelope.Type)), zap.Error(err))
		return
	}
	switch envelope.Type {
	case board.EventTrack:
		t.applyTrack(event.Entry)
	case board.EventLeave:
		t.applyLeave(event.Entry.UserID)
	default:
		t.logger.Debug("unexpected event on presence channel",
			zap.String("event", string(envelope.Type)))
	}
}

// applyTrack records an announcement. A previously unknown member triggers
// exactly one re-announce of our own entry, so a joiner converges on the full
// membership within one round trip; known members never re-trigger, which
// terminates the gossip.
func (t *Tracker) applyTrack(entry board.PresenceEntry) {
	t.mu.Lock()
	known, seen := t.members[entry.UserID]
	// A reconnect re-announces under the same user id; keep the latest.
	if seen && entry.JoinedAt.Before(known.JoinedAt) {
		t.mu.Unlock()
		return
	}
	t.members[entry.UserID] = entry
	shouldReannounce := !seen && t.state == StateTracked
	t.mu.Unlock()

	t.emitSync()
	if shouldReannounce {
		t.announce(context.Background())
	}
}

func (t *Tracker) applyLeave(userID board.UserID) {
	t.mu.Lock()
	_, seen := t.members[userID]
	delete(t.members, userID)
	t.mu.Unlock()
	if !seen {
		return
	}
	if t.onLeave != nil {
		t.onLeave(userID)
	}
	t.emitSync()
}

// emitSync hands the consumer a wholesale copy of the membership map; the
// consumer replaces its set from it rather than applying a diff.
func (t *Tracker) emitSync() {
	if t.onSync == nil {
		return
	}
	t.mu.Lock()
	snapshot := make(map[board.UserID]board.PresenceEntry, len(t.members))
	for userID, entry := range t.members {
		snapshot[userID] = entry
	}
	t.mu.Unlock()
	t.onSync(snapshot)
}

func (t *Tracker) publish(ctx context.Context, eventType board.EventType, event board.PresenceEvent) {
	frame, err := board.EncodeEvent(eventType, event)
	if err != nil {
		t.logger.Warn("presence event encode failed", zap.Error(err))
		return
	}
	if err := t.channel.Publish(ctx, frame); err != nil {
		t.logger.Debug("presence publish dropped", zap.Error(err))
	}
}
