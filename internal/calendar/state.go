package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultStateTTL bounds how long a consent link stays usable.
	DefaultStateTTL = 10 * time.Minute

	// MinStateSecretLength is the minimum HMAC key size in bytes.
	MinStateSecretLength = 32

	stateIssuer   = "rsvp"
	stateAudience = "google-consent"
)

// ErrInvalidState is returned for consent state that is forged, expired or
// malformed.
var ErrInvalidState = errors.New("invalid consent state")

// StateSigner issues and verifies the OAuth state parameter of the consent
// flow. The state is an HS256 JWT whose subject is the calendar owner, so the
// callback needs no server-side session.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStateSigner creates a signer. ttl <= 0 selects DefaultStateTTL.
func NewStateSigner(secret []byte, ttl time.Duration) (*StateSigner, error) {
	if len(secret) < MinStateSecretLength {
		return nil, fmt.Errorf("state secret must be at least %d bytes", MinStateSecretLength)
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateSigner{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Sign returns a state value binding subject.
func (s *StateSigner) Sign(subject string) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("subject is required")
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    stateIssuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign consent state: %w", err)
	}
	return signed, nil
}

// Verify returns the subject bound into state.
func (s *StateSigner) Verify(state string) (string, error) {
	if state == "" {
		return "", ErrInvalidState
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(state, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if claims.Subject == "" {
		return "", ErrInvalidState
	}
	return claims.Subject, nil
}
