package oauth

import (
	"crypto/sha256"
	"encoding/hex"
)

// hashForLogging returns the first 16 hex characters of the SHA-256 of
// sensitive, or "" for empty input. Used wherever codes or tokens would
// otherwise reach logs or storage keys.
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}

// hashKey returns the full hex SHA-256 of secret for use as a storage key.
func hashKey(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(hash[:])
}
