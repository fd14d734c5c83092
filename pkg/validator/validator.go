package validator

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidIdentifier = fmt.Errorf("invalid identifier")
	ErrInvalidUUID       = fmt.Errorf("invalid UUID format")
)

const maxIdentifierLength = 128

// ValidateIdentifier checks a subject or owner identifier. Empty is valid:
// both identifiers are optional at accept time.
func ValidateIdentifier(id string) error {
	if id == "" {
		return nil
	}
	if len(id) > maxIdentifierLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidIdentifier, maxIdentifierLength)
	}
	for _, r := range id {
		if !isIdentifierRune(r) {
			return fmt.Errorf("%w: character %q not allowed", ErrInvalidIdentifier, r)
		}
	}
	return nil
}

func isIdentifierRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == '.' || r == ':':
		return true
	default:
		return false
	}
}

func ValidateUUID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrInvalidUUID, id)
	}
	return parsed, nil
}

func SanitizeString(s string) string {
	return strings.TrimSpace(s)
}
