package board

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType enumerates the broadcast events exchanged over board channels.
type EventType string

const (
	EventCreated    EventType = "created"
	EventUpdated    EventType = "updated"
	EventDeleted    EventType = "deleted"
	EventIDReplaced EventType = "id_replaced"
	EventCursor     EventType = "cursor"
	EventTrack      EventType = "track"
	EventLeave      EventType = "leave"
)

// ErrInvalidEvent indicates a broadcast frame that could not be decoded.
var ErrInvalidEvent = errors.New("board: invalid event")

// WireObject is the JSON shape of a full BoardObject on the wire and in API
// responses. Data holds the type-specific payload body.
type WireObject struct {
	ID        string          `json:"id"`
	BoardID   string          `json:"board_id"`
	Type      string          `json:"type"`
	X         float64         `json:"x"`
	Y         float64         `json:"y"`
	Width     float64         `json:"width"`
	Height    float64         `json:"height"`
	Rotation  float64         `json:"rotation"`
	ZIndex    int             `json:"z_index"`
	Data      json.RawMessage `json:"data"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// EncodeObject converts a BoardObject to its wire shape.
func EncodeObject(object BoardObject) (WireObject, error) {
	data, err := EncodePayload(object.Payload)
	if err != nil {
		return WireObject{}, err
	}
	return WireObject{
		ID:        object.ID.String(),
		BoardID:   object.BoardID.String(),
		Type:      object.Type.String(),
		X:         object.X,
		Y:         object.Y,
		Width:     object.Width,
		Height:    object.Height,
		Rotation:  object.Rotation,
		ZIndex:    object.ZIndex,
		Data:      data,
		CreatedBy: object.CreatedBy.String(),
		CreatedAt: object.CreatedAt.UTC(),
		UpdatedAt: object.UpdatedAt.UTC(),
	}, nil
}

// DecodeObject converts a wire shape back into a validated BoardObject.
func DecodeObject(wire WireObject) (BoardObject, error) {
	objectID, err := NewObjectID(wire.ID)
	if err != nil {
		return BoardObject{}, err
	}
	boardID, err := NewBoardID(wire.BoardID)
	if err != nil {
		return BoardObject{}, err
	}
	objectType, err := ParseObjectType(wire.Type)
	if err != nil {
		return BoardObject{}, err
	}
	payload, err := DecodePayload(objectType, wire.Data)
	if err != nil {
		return BoardObject{}, err
	}
	createdBy, err := NewUserID(wire.CreatedBy)
	if err != nil {
		return BoardObject{}, err
	}
	return BoardObject{
		ID:        objectID,
		BoardID:   boardID,
		Type:      objectType,
		X:         wire.X,
		Y:         wire.Y,
		Width:     wire.Width,
		Height:    wire.Height,
		Rotation:  wire.Rotation,
		ZIndex:    wire.ZIndex,
		Payload:   payload,
		CreatedBy: createdBy,
		CreatedAt: wire.CreatedAt,
		UpdatedAt: wire.UpdatedAt,
	}, nil
}

// CreatedEvent carries the full object for a fresh optimistic insert.
type CreatedEvent struct {
	Object WireObject `json:"object"`
}

// UpdatedEvent carries only the fields that changed.
type UpdatedEvent struct {
	ID     string      `json:"id"`
	Fields ObjectPatch `json:"updatedFields"`
}

// DeletedEvent announces a removal.
type DeletedEvent struct {
	ID string `json:"id"`
}

// IDReplacedEvent maps a temporary identifier to its durable counterpart and
// carries the full persisted row so receivers can converge in one hop.
type IDReplacedEvent struct {
	TempID     string     `json:"tempId"`
	RealID     string     `json:"realId"`
	RealObject WireObject `json:"realObject"`
}

// PresenceEvent is a track or leave announcement on the presence channel.
type PresenceEvent struct {
	Entry PresenceEntry `json:"entry"`
}

// Envelope frames every broadcast payload with its event type.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeEvent frames a typed event payload for publishing.
func EncodeEvent(eventType EventType, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal %s payload: %v", ErrInvalidEvent, eventType, err)
	}
	frame, err := json.Marshal(Envelope{Type: eventType, Payload: body})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal %s envelope: %v", ErrInvalidEvent, eventType, err)
	}
	return frame, nil
}

// DecodeEvent unwraps a broadcast frame into its envelope.
func DecodeEvent(frame []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if envelope.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrInvalidEvent)
	}
	return envelope, nil
}
