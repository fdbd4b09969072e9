package board

import (
	"errors"
	"strings"
	"testing"
)

func TestNewObjectIDRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "whitespace", input: "   "},
		{name: "too-long", input: strings.Repeat("a", 191)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewObjectID(tt.input); !errors.Is(err, ErrInvalidObjectID) {
				t.Fatalf("expected ErrInvalidObjectID, got %v", err)
			}
		})
	}
}

func TestObjectIDTemporaryRegime(t *testing.T) {
	tempID, err := NewObjectID(TempIDPrefix + "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tempID.Temporary() {
		t.Fatalf("expected prefixed id to be temporary")
	}
	durableID, err := NewObjectID("note-42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if durableID.Temporary() {
		t.Fatalf("expected plain id to be durable")
	}
}

func TestParseObjectTypeCoversClosedSet(t *testing.T) {
	known := []string{
		"sticky_note", "rectangle", "circle", "line",
		"frame", "connector", "text", "goal",
	}
	for _, raw := range known {
		parsed, err := ParseObjectType(raw)
		if err != nil {
			t.Fatalf("expected %q to parse, got %v", raw, err)
		}
		if parsed.String() != raw {
			t.Fatalf("expected %q, got %q", raw, parsed.String())
		}
	}
	if _, err := ParseObjectType("triangle"); !errors.Is(err, ErrInvalidObjectType) {
		t.Fatalf("expected ErrInvalidObjectType, got %v", err)
	}
}

func TestTempIDProviderMintsPrefixedIDs(t *testing.T) {
	provider := NewTempIDProvider()
	first, err := provider.NewID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := provider.NewID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Temporary() || !second.Temporary() {
		t.Fatalf("expected temporary ids, got %s and %s", first, second)
	}
	if first == second {
		t.Fatalf("expected distinct ids")
	}
}
