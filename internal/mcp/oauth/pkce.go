package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// GenerateCodeVerifier generates a random PKCE code verifier.
// 32 random bytes encode to 43 base64url characters, the RFC 7636 minimum.
func GenerateCodeVerifier() (string, error) {
	return generateSecureToken(32)
}

// GenerateCodeChallenge derives the S256 challenge for verifier:
// BASE64URL(SHA256(ASCII(code_verifier))).
func GenerateCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ValidateCodeChallenge reports whether verifier matches challenge under method.
// Only S256 is accepted; an empty method is treated as S256.
func ValidateCodeChallenge(verifier, challenge, method string) bool {
	if method != "" && method != PKCEMethodS256 {
		return false
	}
	if len(verifier) < MinCodeVerifierLength || len(verifier) > MaxCodeVerifierLength {
		return false
	}
	computed := GenerateCodeChallenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// generateSecureToken returns n random bytes encoded as unpadded base64url.
func generateSecureToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
