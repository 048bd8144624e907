package validation

import (
	"fmt"
	"regexp"
)

var (
	// IDRegex validates call, conversation and user ID formats.
	IDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateID validates an opaque identifier (call, conversation or user).
func ValidateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s ID is required", kind)
	}
	if len(id) > 100 {
		return fmt.Errorf("%s ID is too long (max 100 characters)", kind)
	}
	if !IDRegex.MatchString(id) {
		return fmt.Errorf("invalid %s ID format", kind)
	}
	return nil
}

// ValidateCallType validates the call type value.
func ValidateCallType(callType string) error {
	switch callType {
	case "voice", "video":
		return nil
	}
	return fmt.Errorf("call type must be voice or video")
}
