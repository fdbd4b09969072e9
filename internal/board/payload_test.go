package board

import (
	"errors"
	"testing"
	"time"
)

func TestDecodePayloadSelectsVariantByType(t *testing.T) {
	tests := []struct {
		objectType ObjectType
		raw        string
		check      func(t *testing.T, payload Payload)
	}{
		{
			objectType: TypeStickyNote,
			raw:        `{"text":"hello","color":"#ffd54f"}`,
			check: func(t *testing.T, payload Payload) {
				note, ok := payload.(StickyNotePayload)
				if !ok {
					t.Fatalf("expected StickyNotePayload, got %T", payload)
				}
				if note.Text != "hello" {
					t.Fatalf("unexpected text %q", note.Text)
				}
			},
		},
		{
			objectType: TypeConnector,
			raw:        `{"fromId":"a","toId":"b"}`,
			check: func(t *testing.T, payload Payload) {
				connector, ok := payload.(ConnectorPayload)
				if !ok {
					t.Fatalf("expected ConnectorPayload, got %T", payload)
				}
				if connector.FromID != "a" || connector.ToID != "b" {
					t.Fatalf("unexpected endpoints %q -> %q", connector.FromID, connector.ToID)
				}
			},
		},
		{
			objectType: TypeGoal,
			raw:        `{"title":"ship it","progress":40}`,
			check: func(t *testing.T, payload Payload) {
				goal, ok := payload.(GoalPayload)
				if !ok {
					t.Fatalf("expected GoalPayload, got %T", payload)
				}
				if goal.Progress != 40 {
					t.Fatalf("unexpected progress %d", goal.Progress)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.objectType.String(), func(t *testing.T) {
			payload, err := DecodePayload(tt.objectType, []byte(tt.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if payload.ObjectType() != tt.objectType {
				t.Fatalf("expected type %s, got %s", tt.objectType, payload.ObjectType())
			}
			tt.check(t, payload)
		})
	}
}

func TestDecodePayloadRejectsUnknownType(t *testing.T) {
	if _, err := DecodePayload(ObjectType("scribble"), []byte(`{}`)); !errors.Is(err, ErrInvalidObjectType) {
		t.Fatalf("expected ErrInvalidObjectType, got %v", err)
	}
}

func TestApplyPatchOnlyTouchesKnownFields(t *testing.T) {
	title := "sprint goal"
	text := "should be ignored by frames"
	patch := PayloadPatch{Title: &title, Text: &text}

	frame := FramePayload{Title: "old", Fill: "#eeeeee"}
	patched, ok := frame.ApplyPatch(patch).(FramePayload)
	if !ok {
		t.Fatalf("expected FramePayload back")
	}
	if patched.Title != title {
		t.Fatalf("expected title to update, got %q", patched.Title)
	}
	if patched.Fill != "#eeeeee" {
		t.Fatalf("untouched field changed: %q", patched.Fill)
	}

	note := StickyNotePayload{Text: "keep", Color: "#ffd54f"}
	patchedNote, ok := note.ApplyPatch(PayloadPatch{Title: &title}).(StickyNotePayload)
	if !ok {
		t.Fatalf("expected StickyNotePayload back")
	}
	if patchedNote != note {
		t.Fatalf("patch without sticky fields must not change the payload")
	}
}

func TestObjectPatchApplyMergesPartialFields(t *testing.T) {
	x := 120.0
	rotation := 45.0
	color := "#4caf50"
	object := BoardObject{
		ID:      ObjectID("note-1"),
		Type:    TypeStickyNote,
		X:       10,
		Y:       20,
		Width:   160,
		ZIndex:  3,
		Payload: StickyNotePayload{Text: "hi", Color: "#ffd54f"},
	}

	merged := ObjectPatch{
		X:        &x,
		Rotation: &rotation,
		Payload:  PayloadPatch{Color: &color},
	}.Apply(object)

	if merged.X != x || merged.Rotation != rotation {
		t.Fatalf("expected patched geometry, got x=%v rotation=%v", merged.X, merged.Rotation)
	}
	if merged.Y != 20 || merged.Width != 160 || merged.ZIndex != 3 {
		t.Fatalf("untouched geometry changed: %+v", merged)
	}
	note, ok := merged.Payload.(StickyNotePayload)
	if !ok {
		t.Fatalf("expected StickyNotePayload, got %T", merged.Payload)
	}
	if note.Color != color || note.Text != "hi" {
		t.Fatalf("unexpected payload after merge: %+v", note)
	}
}

func TestEncodeEventDecodeEventRoundTrip(t *testing.T) {
	frame, err := EncodeEvent(EventDeleted, DeletedEvent{ID: "note-9"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	envelope, err := DecodeEvent(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if envelope.Type != EventDeleted {
		t.Fatalf("expected deleted envelope, got %s", envelope.Type)
	}
	if _, err := DecodeEvent([]byte(`{"payload":{}}`)); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent for missing type, got %v", err)
	}
}

func TestDecodeObjectValidatesIdentifiers(t *testing.T) {
	wire := WireObject{
		ID:        "note-1",
		BoardID:   "board-1",
		Type:      "sticky_note",
		Data:      []byte(`{"text":"hi"}`),
		CreatedBy: "user-1",
		CreatedAt: time.Unix(1700000000, 0).UTC(),
		UpdatedAt: time.Unix(1700000000, 0).UTC(),
	}
	object, err := DecodeObject(wire)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if object.ID.String() != "note-1" || object.Type != TypeStickyNote {
		t.Fatalf("unexpected object %+v", object)
	}

	wire.BoardID = ""
	if _, err := DecodeObject(wire); !errors.Is(err, ErrInvalidBoardID) {
		t.Fatalf("expected ErrInvalidBoardID, got %v", err)
	}
}
