// Package auth implements operator authentication for the admin API: bcrypt
// credential checks, the session service and its stores, and the HTTP
// middleware that gates protected routes and the metrics surface.
package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when generating hashes.
const DefaultCost = 12

// Verify reports whether candidate matches the bcrypt hash. An empty hash
// means the credential is not configured, so nothing matches it.
func Verify(candidate, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}

// HashPassword returns a bcrypt hash of password at the given cost.
// A cost of zero selects DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// IsHash reports whether s parses as a bcrypt hash.
func IsHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}
