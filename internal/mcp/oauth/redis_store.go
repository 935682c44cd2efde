package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces every key written by RedisStore.
const DefaultRedisKeyPrefix = "rsvp:oauth:"

// RedisStore is a Store backed by Redis. Values are JSON; code and token keys
// expire with the artifact. Codes and tokens are keyed by their SHA-256 and
// stored without the raw value, so a keyspace dump yields no usable secret.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a RedisStore using prefix for all keys. An empty
// prefix selects DefaultRedisKeyPrefix.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *RedisStore) clientKey(id string) string { return s.prefix + "client:" + id }
func (s *RedisStore) codeKey(code string) string { return s.prefix + "code:" + hashKey(code) }
func (s *RedisStore) usedKey(code string) string { return s.prefix + "code_used:" + hashKey(code) }
func (s *RedisStore) tokenKey(token string) string { return s.prefix + "token:" + hashKey(token) }

// ttlUntil returns the time left until expiresAt, at least one second so
// Redis never receives a zero (no expiry) or negative TTL.
func (s *RedisStore) ttlUntil(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(s.now())
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

func (s *RedisStore) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// getJSON decodes key into v. It returns redis.Nil when the key is missing.
func (s *RedisStore) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SaveClient(ctx context.Context, client *RegisteredClient) error {
	return s.setJSON(ctx, s.clientKey(client.ClientID), client, 0)
}

func (s *RedisStore) GetClient(ctx context.Context, clientID string) (*RegisteredClient, error) {
	var client RegisteredClient
	if err := s.getJSON(ctx, s.clientKey(clientID), &client); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &client, nil
}

func (s *RedisStore) SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error {
	c := *code
	c.Code = ""
	return s.setJSON(ctx, s.codeKey(code.Code), &c, s.ttlUntil(code.ExpiresAt))
}

func (s *RedisStore) ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	var stored AuthorizationCode
	if err := s.getJSON(ctx, s.codeKey(code), &stored); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("get authorization code: %w", err)
	}

	// SETNX is the atomic check-and-mark: only the first redeemer creates the key.
	won, err := s.rdb.SetNX(ctx, s.usedKey(code), s.now().Unix(), s.ttlUntil(stored.ExpiresAt)).Result()
	if err != nil {
		return nil, fmt.Errorf("mark authorization code used: %w", err)
	}
	if !won {
		return nil, ErrCodeConsumed
	}

	stored.Code = code
	stored.Consumed = false
	return &stored, nil
}

func (s *RedisStore) SaveAccessToken(ctx context.Context, token *AccessToken) error {
	t := *token
	t.Token = ""
	return s.setJSON(ctx, s.tokenKey(token.Token), &t, s.ttlUntil(token.ExpiresAt))
}

func (s *RedisStore) GetAccessToken(ctx context.Context, token string) (*AccessToken, error) {
	var stored AccessToken
	if err := s.getJSON(ctx, s.tokenKey(token), &stored); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("get access token: %w", err)
	}
	stored.Token = token
	return &stored, nil
}

func (s *RedisStore) DeleteAccessToken(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, s.tokenKey(token)).Err(); err != nil {
		return fmt.Errorf("delete access token: %w", err)
	}
	return nil
}

// Ping checks connectivity. Used by the readiness probe.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
