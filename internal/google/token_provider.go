package google

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// persistingTokenSource writes refreshed tokens back to the store so every
// replica and restart sees the newest access token.
type persistingTokenSource struct {
	base    oauth2.TokenSource
	store   TokenStore
	subject string
	logger  *slog.Logger

	mu     sync.Mutex
	record AuthorizationRecord
}

// NewTokenSource returns a token source for subject backed by config.
// Tokens obtained through a refresh are saved into store under subject.
func NewTokenSource(config *oauth2.Config, store TokenStore, subject string, record *AuthorizationRecord, logger *slog.Logger) oauth2.TokenSource {
	if logger == nil {
		logger = slog.Default()
	}
	// The refresh context must outlive the request that built the source.
	base := config.TokenSource(context.Background(), record.Token)
	return &persistingTokenSource{
		base:    oauth2.ReuseTokenSource(record.Token, base),
		store:   store,
		subject: subject,
		logger:  logger,
		record:  *copyRecord(*record),
	}
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.record.Token != nil && s.record.Token.AccessToken == token.AccessToken {
		return token, nil
	}

	// Google omits the refresh token on refresh responses.
	if token.RefreshToken == "" && s.record.Token != nil {
		refreshed := *token
		refreshed.RefreshToken = s.record.Token.RefreshToken
		token = &refreshed
	}
	s.record.Token = token
	s.record.UpdatedAt = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Save(ctx, s.subject, &s.record); err != nil {
		s.logger.Warn("Failed to persist refreshed google token", "error", err)
	}
	return token, nil
}
