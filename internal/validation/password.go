package validation

// ValidatePassword enforces the reset-flow password policy.
func ValidatePassword(password string) error {
	if len(password) < 6 {
		return fail("password must be at least 6 characters long")
	}

	// bcrypt silently truncates input beyond 72 bytes, so refuse it outright
	if len(password) > 72 {
		return fail("password must not exceed 72 characters")
	}

	return nil
}
