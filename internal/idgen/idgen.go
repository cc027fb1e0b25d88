package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewToken generates a unique instance token in the format: YYYYmmddHHMMSS-<8random>
//
// The timestamp prefix keeps tokens readable when inspecting lock records by
// hand; the random suffix makes collisions between handles created in the
// same second vanishingly unlikely.
func NewToken() (string, error) {
	now := time.Now()

	timestamp := now.Format("20060102150405")

	// Generate 4 random bytes (8 hex chars)
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	randomHex := hex.EncodeToString(randomBytes)

	return fmt.Sprintf("%s-%s", timestamp, randomHex), nil
}

// ValidateToken validates a token format
// Tokens can be any non-empty string that is safe for use inside a JSON record
func ValidateToken(token string) bool {
	if token == "" {
		return false
	}

	if len(token) > 255 {
		return false
	}

	for _, c := range token {
		if c < 32 || c == 127 {
			return false
		}
	}

	return true
}
