// Package token issues the opaque one-shot tokens used by the signup
// verification and password reset flows. All functions are pure apart from
// reading crypto/rand.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultBytes is the entropy of a generated token. 32 random bytes make
// collisions and guessing negligible.
const DefaultBytes = 32

// Generate returns a cryptographically random hex string of n bytes of
// entropy. n <= 0 falls back to DefaultBytes.
func Generate(n int) (string, error) {
	if n <= 0 {
		n = DefaultBytes
	}
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ExpiryFrom returns the expiry timestamp for a token issued at now.
func ExpiryFrom(now time.Time, window time.Duration) time.Time {
	return now.Add(window)
}

// Expired reports whether a token expiry has passed.
func Expired(expiry, now time.Time) bool {
	return expiry.Before(now)
}
