package board

import (
	"encoding/json"
	"fmt"
)

// Payload is the type-specific body of a BoardObject. Exactly one variant
// exists per ObjectType; consumers switch exhaustively so adding a type is a
// compile-visible change.
type Payload interface {
	ObjectType() ObjectType
	// ApplyPatch merges the fields present in the patch into a copy of the
	// payload, touching only fields the variant actually carries.
	ApplyPatch(patch PayloadPatch) Payload
}

// StickyNotePayload backs sticky_note objects.
type StickyNotePayload struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// RectanglePayload backs rectangle objects.
type RectanglePayload struct {
	Fill        string  `json:"fill"`
	Stroke      string  `json:"stroke"`
	StrokeWidth float64 `json:"strokeWidth"`
}

// CirclePayload backs circle objects.
type CirclePayload struct {
	Fill        string  `json:"fill"`
	Stroke      string  `json:"stroke"`
	StrokeWidth float64 `json:"strokeWidth"`
}

// LinePayload backs line objects. Points hold alternating x/y coordinates in
// object-local space.
type LinePayload struct {
	Stroke      string    `json:"stroke"`
	StrokeWidth float64   `json:"strokeWidth"`
	Points      []float64 `json:"points"`
}

// FramePayload backs frame objects.
type FramePayload struct {
	Title string `json:"title"`
	Fill  string `json:"fill"`
}

// ConnectorPayload backs connector objects joining two other objects.
type ConnectorPayload struct {
	FromID      string  `json:"fromId"`
	ToID        string  `json:"toId"`
	Stroke      string  `json:"stroke"`
	StrokeWidth float64 `json:"strokeWidth"`
}

// TextPayload backs free-standing text objects.
type TextPayload struct {
	Text     string  `json:"text"`
	FontSize float64 `json:"fontSize"`
	Color    string  `json:"color"`
}

// GoalPayload backs goal card objects.
type GoalPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Progress    int    `json:"progress"`
	Color       string `json:"color"`
}

// ObjectType implements Payload.
func (StickyNotePayload) ObjectType() ObjectType { return TypeStickyNote }

// ObjectType implements Payload.
func (RectanglePayload) ObjectType() ObjectType { return TypeRectangle }

// ObjectType implements Payload.
func (CirclePayload) ObjectType() ObjectType { return TypeCircle }

// ObjectType implements Payload.
func (LinePayload) ObjectType() ObjectType { return TypeLine }

// ObjectType implements Payload.
func (FramePayload) ObjectType() ObjectType { return TypeFrame }

// ObjectType implements Payload.
func (ConnectorPayload) ObjectType() ObjectType { return TypeConnector }

// ObjectType implements Payload.
func (TextPayload) ObjectType() ObjectType { return TypeText }

// ObjectType implements Payload.
func (GoalPayload) ObjectType() ObjectType { return TypeGoal }

// PayloadPatch carries optional payload fields for a partial update. Only the
// fields a variant knows about are applied; the rest are ignored so a patch
// aimed at one type can never clobber another type's body.
type PayloadPatch struct {
	Text        *string    `json:"text,omitempty"`
	Color       *string    `json:"color,omitempty"`
	Fill        *string    `json:"fill,omitempty"`
	Stroke      *string    `json:"stroke,omitempty"`
	StrokeWidth *float64   `json:"strokeWidth,omitempty"`
	Points      *[]float64 `json:"points,omitempty"`
	FontSize    *float64   `json:"fontSize,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Progress    *int       `json:"progress,omitempty"`
	FromID      *string    `json:"fromId,omitempty"`
	ToID        *string    `json:"toId,omitempty"`
}

// IsZero reports whether the patch carries no payload fields.
func (patch PayloadPatch) IsZero() bool {
	return patch.Text == nil && patch.Color == nil && patch.Fill == nil &&
		patch.Stroke == nil && patch.StrokeWidth == nil && patch.Points == nil &&
		patch.FontSize == nil && patch.Title == nil && patch.Description == nil &&
		patch.Progress == nil && patch.FromID == nil && patch.ToID == nil
}

// ApplyPatch implements Payload.
func (payload StickyNotePayload) ApplyPatch(patch PayloadPatch) Payload {
	if patch.Text != nil {
		payload.Text = *patch.Text
	}
	if patch.Color != nil {
		payload.Color = *patch.Color
	}
	return payload
}

// ApplyPatch implements Payload.
func (payload RectanglePayload) ApplyPatch(patch PayloadPatch) Payload {
	if patch.Fill != nil {
		payload.Fill = *patch.Fill
	}
	if patch.Stroke != nil {
		payload.Stroke = *patch.Stroke
	}
	if patch.StrokeWidth != nil {
		payload.StrokeWidth = *patch.StrokeWidth
	}
	return payload
}

// ApplyPatch implements Payload.
func (payload CirclePayload) ApplyPatch(patch PayloadPatch) Payload {
	if patch.Fill != nil {
		payload.Fill = *patch.Fill
	}
	if patch.Stroke != nil {
		payload.Stroke = *patch.Stroke
	}
	if patch.StrokeWidth != nil {
		payload.StrokeWidth = *patch.StrokeWidth
	}
	return payload
}

// ApplyPatch implements Payload.
func (payload LinePayload) ApplyPatch(patch PayloadPatch) Payload {
	if patch.Stroke != nil {
		payload.Stroke = *patch.Stroke
	}
	if patch.StrokeWidth != nil {
		payload.StrokeWidth = *patch.StrokeWidth
	}
	if patch.Points != nil {
		payload.Points = append([]float64(nil), (*patch.Points)...)
	}
	return payload
}

// ApplyPatch implements Payload.
func (payload FramePayload) ApplyPatch(patch PayloadPatch) Payload {
	if patch.Title != nil {
		payload.Title = *patch.Title
	}
	if patch.Fill != nil {
		payload.Fill = *patch.Fill
	}
	return payload
}

// ApplyPatch implements Payload.
func (payload ConnectorPayload) ApplyPatch(patch PayloadPatch) Payload {
	if patch.FromID != nil {
		payload.FromID = *patch.FromID
	}
	if patch.ToID != nil {
		payload.ToID = *patch.ToID
	}
	if patch.Stroke != nil {
		payload.Stroke = *patch.Stroke
	}
	if patch.StrokeWidth != nil {
		payload.StrokeWidth = *patch.StrokeWidth
	}
	return payload
}

// ApplyPatch implements Payload.
func (payload TextPayload) ApplyPatch(patch PayloadPatch) Payload {
	if patch.Text != nil {
		payload.Text = *patch.Text
	}
	if patch.FontSize != nil {
		payload.FontSize = *patch.FontSize
	}
	if patch.Color != nil {
		payload.Color = *patch.Color
	}
	return payload
}

// ApplyPatch implements Payload.
func (payload GoalPayload) ApplyPatch(patch PayloadPatch) Payload {
	if patch.Title != nil {
		payload.Title = *patch.Title
	}
	if patch.Description != nil {
		payload.Description = *patch.Description
	}
	if patch.Progress != nil {
		payload.Progress = *patch.Progress
	}
	if patch.Color != nil {
		payload.Color = *patch.Color
	}
	return payload
}

// DecodePayload parses a type-specific JSON body into its payload variant.
func DecodePayload(objectType ObjectType, rawPayload []byte) (Payload, error) {
	if len(rawPayload) == 0 {
		rawPayload = []byte("{}")
	}
	switch objectType {
	case TypeStickyNote:
		var payload StickyNotePayload
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			return nil, fmt.Errorf("board: decode %s payload: %w", objectType, err)
		}
		return payload, nil
	case TypeRectangle:
		var payload RectanglePayload
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			return nil, fmt.Errorf("board: decode %s payload: %w", objectType, err)
		}
		return payload, nil
	case TypeCircle:
		var payload CirclePayload
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			return nil, fmt.Errorf("board: decode %s payload: %w", objectType, err)
		}
		return payload, nil
	case TypeLine:
		var payload LinePayload
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			return nil, fmt.Errorf("board: decode %s payload: %w", objectType, err)
		}
		return payload, nil
	case TypeFrame:
		var payload FramePayload
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			return nil, fmt.Errorf("board: decode %s payload: %w", objectType, err)
		}
		return payload, nil
	case TypeConnector:
		var payload ConnectorPayload
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			return nil, fmt.Errorf("board: decode %s payload: %w", objectType, err)
		}
		return payload, nil
	case TypeText:
		var payload TextPayload
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			return nil, fmt.Errorf("board: decode %s payload: %w", objectType, err)
		}
		return payload, nil
	case TypeGoal:
		var payload GoalPayload
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			return nil, fmt.Errorf("board: decode %s payload: %w", objectType, err)
		}
		return payload, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidObjectType, objectType)
	}
}

// EncodePayload serializes a payload variant to its JSON body.
func EncodePayload(payload Payload) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("board: encode %s payload: %w", payload.ObjectType(), err)
	}
	return encoded, nil
}

// ObjectPatch carries the optional fields of a partial object update. Absent
// fields are never written, so a stale in-memory copy can not clobber columns
// another client just changed.
type ObjectPatch struct {
	X        *float64     `json:"x,omitempty"`
	Y        *float64     `json:"y,omitempty"`
	Width    *float64     `json:"width,omitempty"`
	Height   *float64     `json:"height,omitempty"`
	Rotation *float64     `json:"rotation,omitempty"`
	ZIndex   *int         `json:"z_index,omitempty"`
	Payload  PayloadPatch `json:"data,omitempty"`
}

// IsZero reports whether the patch carries no fields at all.
func (patch ObjectPatch) IsZero() bool {
	return patch.X == nil && patch.Y == nil && patch.Width == nil &&
		patch.Height == nil && patch.Rotation == nil && patch.ZIndex == nil &&
		patch.Payload.IsZero()
}

// Apply merges the patch into a copy of the object and returns it. The
// payload merge is delegated to the variant's own ApplyPatch.
func (patch ObjectPatch) Apply(object BoardObject) BoardObject {
	if patch.X != nil {
		object.X = *patch.X
	}
	if patch.Y != nil {
		object.Y = *patch.Y
	}
	if patch.Width != nil {
		object.Width = *patch.Width
	}
	if patch.Height != nil {
		object.Height = *patch.Height
	}
	if patch.Rotation != nil {
		object.Rotation = *patch.Rotation
	}
	if patch.ZIndex != nil {
		object.ZIndex = *patch.ZIndex
	}
	if !patch.Payload.IsZero() && object.Payload != nil {
		object.Payload = object.Payload.ApplyPatch(patch.Payload)
	}
	return object
}
