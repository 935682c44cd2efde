package calendar

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	calendar "google.golang.org/api/calendar/v3"
)

// DefaultClientCacheTTL is how long an authorized per-subject client is reused.
const DefaultClientCacheTTL = 10 * time.Minute

// subjectClient is the authorized API access for one subject.
type subjectClient struct {
	svc        *calendar.Service
	httpClient *http.Client
	email      string
}

// clientCache memoizes subject clients. Concurrent misses for the same
// subject build the client once.
type clientCache struct {
	cache *gocache.Cache
	group singleflight.Group
}

func newClientCache(ttl time.Duration) *clientCache {
	if ttl <= 0 {
		ttl = DefaultClientCacheTTL
	}
	return &clientCache{cache: gocache.New(ttl, 2*ttl)}
}

func cacheKey(subject string) string {
	sum := sha256.Sum256([]byte(subject))
	return hex.EncodeToString(sum[:])
}

func (c *clientCache) get(subject string, build func() (*subjectClient, error)) (*subjectClient, error) {
	key := cacheKey(subject)
	if v, ok := c.cache.Get(key); ok {
		return v.(*subjectClient), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.cache.Get(key); ok {
			return v, nil
		}
		client, err := build()
		if err != nil {
			return nil, err
		}
		c.cache.SetDefault(key, client)
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*subjectClient), nil
}

func (c *clientCache) invalidate(subject string) {
	c.cache.Delete(cacheKey(subject))
}
