package google

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// ErrNoToken is returned when a subject has not connected a calendar.
var ErrNoToken = errors.New("no google token for subject")

// AuthorizationRecord is the calendar consent held for one subject.
type AuthorizationRecord struct {
	Token     *oauth2.Token `json:"token"`
	Email     string        `json:"email,omitempty"`
	Scopes    []string      `json:"scopes,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Usable reports whether the record can still produce an access token,
// either directly or through its refresh token.
func (r *AuthorizationRecord) Usable() bool {
	if r == nil || r.Token == nil {
		return false
	}
	return r.Token.RefreshToken != "" || r.Token.Valid()
}

// TokenStore persists AuthorizationRecords keyed by subject.
type TokenStore interface {
	Load(ctx context.Context, subject string) (*AuthorizationRecord, error)
	Save(ctx context.Context, subject string, record *AuthorizationRecord) error
	Delete(ctx context.Context, subject string) error
}

// MemoryTokenStore keeps records in process memory.
type MemoryTokenStore struct {
	mu      sync.RWMutex
	records map[string]AuthorizationRecord
}

// NewMemoryTokenStore creates an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{records: make(map[string]AuthorizationRecord)}
}

func (s *MemoryTokenStore) Load(_ context.Context, subject string) (*AuthorizationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[subject]
	if !ok {
		return nil, ErrNoToken
	}
	return copyRecord(record), nil
}

func (s *MemoryTokenStore) Save(_ context.Context, subject string, record *AuthorizationRecord) error {
	if record == nil || record.Token == nil {
		return fmt.Errorf("record without token for subject")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[subject] = *copyRecord(*record)
	return nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, subject)
	return nil
}

func copyRecord(r AuthorizationRecord) *AuthorizationRecord {
	if r.Token != nil {
		token := *r.Token
		r.Token = &token
	}
	r.Scopes = append([]string(nil), r.Scopes...)
	return &r
}

// DefaultRedisKeyPrefix namespaces token keys in a shared Redis.
const DefaultRedisKeyPrefix = "rsvp:google:"

// RedisTokenStore keeps records as JSON values in Redis. Keys are derived
// from a hash of the subject so identities never appear in key names.
// Records carry no TTL: a refresh token stays usable until revoked.
type RedisTokenStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisTokenStore creates a store on rdb. An empty prefix selects
// DefaultRedisKeyPrefix.
func NewRedisTokenStore(rdb redis.UniversalClient, prefix string) *RedisTokenStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisTokenStore{rdb: rdb, prefix: prefix}
}

func (s *RedisTokenStore) key(subject string) string {
	sum := sha256.Sum256([]byte(subject))
	return s.prefix + "token:" + hex.EncodeToString(sum[:])
}

func (s *RedisTokenStore) Load(ctx context.Context, subject string) (*AuthorizationRecord, error) {
	data, err := s.rdb.Get(ctx, s.key(subject)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("load google token: %w", err)
	}

	var record AuthorizationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode google token: %w", err)
	}
	return &record, nil
}

func (s *RedisTokenStore) Save(ctx context.Context, subject string, record *AuthorizationRecord) error {
	if record == nil || record.Token == nil {
		return fmt.Errorf("record without token for subject")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode google token: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(subject), data, 0).Err(); err != nil {
		return fmt.Errorf("save google token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Delete(ctx context.Context, subject string) error {
	if err := s.rdb.Del(ctx, s.key(subject)).Err(); err != nil {
		return fmt.Errorf("delete google token: %w", err)
	}
	return nil
}
