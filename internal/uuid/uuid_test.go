// Package uuid provides unit tests for id generation and validation.
package uuid

import (
	"testing"
	"time"

	guuid "github.com/google/uuid"
)

// TestNew tests that New() generates valid v7 strings.
func TestNew(t *testing.T) {
	id := New()
	if !IsValid(id) {
		t.Fatalf("New() = %q, not a canonical UUID", id)
	}

	parsed, err := guuid.Parse(id)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed.Version() != 7 {
		t.Errorf("Version() = %d, want 7", parsed.Version())
	}
}

// TestNewUniqueness tests that New() generates unique IDs.
func TestNewUniqueness(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		if ids[id] {
			t.Fatalf("Duplicate UUID generated: %s", id)
		}
		ids[id] = true
	}
}

// TestNewOrdering tests that ids created later sort after earlier ones.
func TestNewOrdering(t *testing.T) {
	first := New()
	time.Sleep(2 * time.Millisecond)
	second := New()

	if !(first < second) {
		t.Errorf("expected %s < %s", first, second)
	}
}

// TestIsValid tests canonical format detection.
func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"v4", "123e4567-e89b-42d3-a456-426614174000", true},
		{"v7", "018f4e3a-7b2c-7def-8abc-0123456789ab", true},
		{"uppercase", "123E4567-E89B-42D3-A456-426614174000", true},
		{"empty", "", false},
		{"no dashes", "123e4567e89b42d3a456426614174000", false},
		{"bad variant", "123e4567-e89b-42d3-c456-426614174000", false},
		{"version zero", "123e4567-e89b-02d3-a456-426614174000", false},
		{"too short", "123e4567-e89b-42d3-a456", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.in); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// TestValidate tests the error form of IsValid.
func TestValidate(t *testing.T) {
	if err := Validate(New()); err != nil {
		t.Errorf("Validate(New()) error = %v", err)
	}
	if err := Validate("nope"); err == nil {
		t.Error("Validate(\"nope\") expected error")
	}
}

// TestParse_invalid tests Parse rejects garbage.
func TestParse_invalid(t *testing.T) {
	if _, err := guuid.Parse("not-a-uuid"); err == nil {
		t.Error("Parse() expected error")
	}
}
