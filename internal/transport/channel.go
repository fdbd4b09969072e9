// Package transport provides the per-board publish/subscribe channels shared
// by object sync, cursor dissemination, and presence tracking. Delivery is
// best effort: at most once, unordered, and never back to the publisher.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/corkboardhq/corkboard/backend/internal/board"
)

// Kind selects one of the three logical channels a board exposes.
type Kind string

const (
	// KindObjects carries object mutation broadcasts.
	KindObjects Kind = "objects"
	// KindCursors carries ephemeral pointer positions.
	KindCursors Kind = "cursors"
	// KindPresence carries membership announcements.
	KindPresence Kind = "presence"
)

// ErrInvalidKind indicates an unknown channel kind.
var ErrInvalidKind = errors.New("transport: invalid channel kind")

// ErrChannelClosed indicates a publish or subscribe on a closed channel.
var ErrChannelClosed = errors.New("transport: channel closed")

// ParseKind validates raw input against the known channel kinds.
func ParseKind(rawInput string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(rawInput))) {
	case KindObjects:
		return KindObjects, nil
	case KindCursors:
		return KindCursors, nil
	case KindPresence:
		return KindPresence, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, rawInput)
	}
}

// String returns the kind tag.
func (kind Kind) String() string {
	return string(kind)
}

// Handler consumes one delivered frame.
type Handler func(frame []byte)

// StatusHandler observes connected/disconnected transitions.
type StatusHandler func(connected bool)

// Channel is one subscription to a board+kind multicast group. A channel
// never receives its own publishes, so publishers must apply their own
// mutations locally regardless of the broadcast.
type Channel interface {
	Publish(ctx context.Context, frame []byte) error
	Subscribe(handler Handler) (cancel func())
	Connected() bool
	// OnStatusChange registers an observer; it fires immediately with the
	// current status and again on every transition.
	OnStatusChange(handler StatusHandler) (cancel func())
	Close() error
}

// Relay opens channels. Implementations fan frames out to every other
// currently-connected channel of the same board and kind.
type Relay interface {
	OpenChannel(boardID board.BoardID, kind Kind) (Channel, error)
}
