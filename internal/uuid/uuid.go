// Package uuid provides time-ordered identifier generation and validation.
package uuid

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Canonical RFC 9562 text form with dashes, any version 1-8.
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[1-8][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a new UUID v7. Ids sort by creation time, which keeps
// operation ids in enqueue order when listed lexically.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source fails.
		return uuid.New().String()
	}
	return id.String()
}

// IsValid checks if a string is a canonical UUID.
func IsValid(s string) bool {
	return uuidRegex.MatchString(s)
}

// Validate returns an error if the string is not a canonical UUID.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid UUID format: %q", s)
	}
	return nil
}
