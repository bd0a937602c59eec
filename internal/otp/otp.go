// Package otp generates and checks six digit one-time codes.
package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"math/big"
	"time"
)

const (
	// DefaultTTL is how long a freshly generated code stays valid.
	DefaultTTL = 10 * time.Minute

	minCode = 100000
	maxCode = 999999
)

var codeSpan = big.NewInt(maxCode - minCode + 1)

// Generate returns a code drawn uniformly from [100000, 999999].
func Generate() (string, error) {
	return generateFrom(rand.Reader)
}

func generateFrom(src io.Reader) (string, error) {
	n, err := rand.Int(src, codeSpan)
	if err != nil {
		return "", fmt.Errorf("otp: read random: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+minCode), nil
}

// Expiration returns the instant a code issued at now stops being valid.
// A non-positive ttl falls back to DefaultTTL.
func Expiration(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return now.Add(ttl)
}

// Verify reports whether supplied matches the stored code before expiry.
// Any missing input fails. A code is expired once now reaches expiresAt.
// It does not consume the stored code; callers clear it on success.
func Verify(stored string, expiresAt *time.Time, supplied string, now time.Time) bool {
	if stored == "" || supplied == "" || expiresAt == nil || expiresAt.IsZero() {
		return false
	}
	if !now.Before(*expiresAt) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}
