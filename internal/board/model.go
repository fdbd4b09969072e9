package board

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

// TempIDPrefix marks client-minted identifiers that have not been persisted yet.
const TempIDPrefix = "tmp_"

var (
	// ErrInvalidBoardID indicates that a board identifier is empty or exceeds storage bounds.
	ErrInvalidBoardID = errors.New("board: invalid board id")
	// ErrInvalidObjectID indicates that an object identifier is empty or exceeds storage bounds.
	ErrInvalidObjectID = errors.New("board: invalid object id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("board: invalid user id")
	// ErrInvalidObjectType indicates that an object type is outside the supported set.
	ErrInvalidObjectType = errors.New("board: invalid object type")
)

// BoardID represents a validated board identifier.
type BoardID string

// NewBoardID validates raw input and returns a BoardID.
func NewBoardID(rawInput string) (BoardID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidBoardID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidBoardID, maxIdentifierLength)
	}
	return BoardID(trimmed), nil
}

// String returns the underlying string identifier.
func (id BoardID) String() string {
	return string(id)
}

// ObjectID represents a validated board object identifier.
//
// Identifiers come in two regimes: temporary ids are minted by a client so the
// object can render before the durable store assigns its permanent id, and are
// retired the moment the durable counterpart is known.
type ObjectID string

// NewObjectID validates raw input and returns an ObjectID.
func NewObjectID(rawInput string) (ObjectID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidObjectID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidObjectID, maxIdentifierLength)
	}
	return ObjectID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ObjectID) String() string {
	return string(id)
}

// Temporary reports whether the identifier is client-minted and not yet persisted.
func (id ObjectID) Temporary() bool {
	return strings.HasPrefix(string(id), TempIDPrefix)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// ObjectType enumerates the supported board object kinds.
type ObjectType string

const (
	TypeStickyNote ObjectType = "sticky_note"
	TypeRectangle  ObjectType = "rectangle"
	TypeCircle     ObjectType = "circle"
	TypeLine       ObjectType = "line"
	TypeFrame      ObjectType = "frame"
	TypeConnector  ObjectType = "connector"
	TypeText       ObjectType = "text"
	TypeGoal       ObjectType = "goal"
)

// ParseObjectType validates raw input against the closed type set.
func ParseObjectType(rawInput string) (ObjectType, error) {
	switch ObjectType(strings.ToLower(strings.TrimSpace(rawInput))) {
	case TypeStickyNote:
		return TypeStickyNote, nil
	case TypeRectangle:
		return TypeRectangle, nil
	case TypeCircle:
		return TypeCircle, nil
	case TypeLine:
		return TypeLine, nil
	case TypeFrame:
		return TypeFrame, nil
	case TypeConnector:
		return TypeConnector, nil
	case TypeText:
		return TypeText, nil
	case TypeGoal:
		return TypeGoal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidObjectType, rawInput)
	}
}

// String returns the type tag.
func (objectType ObjectType) String() string {
	return string(objectType)
}

// BoardObject is the unit of synchronization: one typed item on a board.
//
// Frames conventionally carry negative ZIndex values so they paint behind
// regular content.
type BoardObject struct {
	ID        ObjectID
	BoardID   BoardID
	Type      ObjectType
	X         float64
	Y         float64
	Width     float64
	Height    float64
	Rotation  float64
	ZIndex    int
	Payload   Payload
	CreatedBy UserID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CursorPosition is the ephemeral per-user pointer state. One live value per
// user, last value wins, never persisted.
type CursorPosition struct {
	UserID   UserID  `json:"userId"`
	UserName string  `json:"userName"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Color    string  `json:"color"`
}

// PresenceEntry describes one currently-connected session, keyed by user id.
type PresenceEntry struct {
	UserID    UserID    `json:"userId"`
	UserName  string    `json:"userName"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	JoinedAt  time.Time `json:"joinedAt"`
}
