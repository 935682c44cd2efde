package oauth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. State is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	clients map[string]*RegisteredClient
	codes   map[string]*AuthorizationCode
	tokens  map[string]*AccessToken
	now     func() time.Time
	logger  *slog.Logger
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		clients: make(map[string]*RegisteredClient),
		codes:   make(map[string]*AuthorizationCode),
		tokens:  make(map[string]*AccessToken),
		now:     time.Now,
		logger:  logger,
	}
}

func (s *MemoryStore) SaveClient(_ context.Context, client *RegisteredClient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *client
	s.clients[client.ClientID] = &c
	return nil
}

func (s *MemoryStore) GetClient(_ context.Context, clientID string) (*RegisteredClient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	c := *client
	return &c, nil
}

func (s *MemoryStore) SaveAuthorizationCode(_ context.Context, code *AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *code
	s.codes[code.Code] = &c
	return nil
}

func (s *MemoryStore) ConsumeAuthorizationCode(_ context.Context, code string) (*AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.codes[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	if stored.Consumed {
		return nil, ErrCodeConsumed
	}

	before := *stored
	// Kept until expiry so a replay reports "consumed" instead of "not found".
	stored.Consumed = true
	return &before, nil
}

func (s *MemoryStore) SaveAccessToken(_ context.Context, token *AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := *token
	s.tokens[token.Token] = &t
	return nil
}

func (s *MemoryStore) GetAccessToken(_ context.Context, token string) (*AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	t := *stored
	return &t, nil
}

func (s *MemoryStore) DeleteAccessToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, token)
	return nil
}

// StartCleanup sweeps expired codes and tokens every interval until ctx is done.
func (s *MemoryStore) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

// sweep removes expired codes and tokens and returns how many were removed.
func (s *MemoryStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, code := range s.codes {
		if code.IsExpired(now) {
			delete(s.codes, key)
			removed++
		}
	}
	for key, token := range s.tokens {
		if token.IsExpired(now) {
			delete(s.tokens, key)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("Removed expired authorization state", "count", removed)
	}
	return removed
}
