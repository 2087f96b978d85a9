package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vasilistotskas/recommendation-engine/internal/cache"
)

// fakeCache is a minimal in-memory cache.Cache used so engine tests can
// exercise cache-hit/cache-miss branches without a real Redis.
type fakeCache struct {
	entries map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (c *fakeCache) Get(ctx context.Context, key string, value interface{}) error {
	raw, ok := c.entries[key]
	if !ok {
		return cache.ErrNotFound
	}
	return json.Unmarshal(raw, value)
}

func (c *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

func (c *fakeCache) DeletePattern(ctx context.Context, pattern string) error {
	return nil
}

func (c *fakeCache) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := c.entries[key]
	return ok, nil
}

func (c *fakeCache) Close() error { return nil }
