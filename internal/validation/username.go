package validation

import (
	"strings"
)

// ValidateUsername validates usernames: lowercase letters, digits, dot,
// underscore and hyphen, 3..30 characters. Callers normalize to lowercase
// before validating.
func ValidateUsername(username string) error {
	if username == "" {
		return fail("username is required")
	}

	if len(username) < 3 {
		return fail("username must be at least 3 characters")
	}

	if len(username) > 30 {
		return fail("username is too long (max 30 characters)")
	}

	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return fail("username may only contain letters, digits, '.', '_' and '-'")
		}
	}

	return nil
}

// ValidateName validates a person's display name.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)

	if trimmed == "" {
		return fail("name is required")
	}

	if len(trimmed) > 100 {
		return fail("name is too long (max 100 characters)")
	}

	return nil
}
