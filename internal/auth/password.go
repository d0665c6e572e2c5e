package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// CheckPassword verifies a login attempt against the configured shared
// password. The configured value may be a bcrypt hash (production) or a
// plain string (local development); an empty configuration never matches.
func CheckPassword(configured, attempt string) bool {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		return false
	}
	if strings.HasPrefix(configured, "$2a$") || strings.HasPrefix(configured, "$2b$") || strings.HasPrefix(configured, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(attempt)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(attempt)) == 1
}
