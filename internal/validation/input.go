package validation

import (
	"fmt"
	"regexp"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateGameID validates game ID format
func ValidateGameID(id string) error {
	if len(id) == 0 || len(id) > 64 {
		return fmt.Errorf("game ID must be 1-64 characters")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("game ID can only contain alphanumeric characters, hyphens, and underscores")
	}
	return nil
}

// ValidateSeatID validates a player seat ID supplied by a client.
func ValidateSeatID(id string) error {
	if len(id) == 0 || len(id) > 32 {
		return fmt.Errorf("seat ID must be 1-32 characters")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("seat ID can only contain alphanumeric characters, hyphens, and underscores")
	}
	return nil
}

// ValidateSeatName validates a display name.
func ValidateSeatName(name string) error {
	if len(name) == 0 || len(name) > 64 {
		return fmt.Errorf("seat name must be 1-64 characters")
	}
	return nil
}

// ValidateSeatCount validates the requested table size.
func ValidateSeatCount(n int) error {
	if n < 4 || n > 12 {
		return fmt.Errorf("seat count must be between 4 and 12")
	}
	return nil
}
