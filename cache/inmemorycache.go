package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type item struct {
	data       []byte
	expiration time.Time
}

// InMemoryBackend is a process-local Backend, usable as an L2 where no
// distributed cache is configured; nothing in this module installs it by
// default.
type InMemoryBackend struct {
	mu    sync.RWMutex
	mru   Cache[string, item]
	locks map[string]time.Time
}

// NewInMemoryBackend returns a Backend held entirely in process memory.
func NewInMemoryBackend() Backend {
	return &InMemoryBackend{
		mru:   NewCache[string, item](1000, 10000),
		locks: make(map[string]time.Time),
	}
}

func (c *InMemoryBackend) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var exp time.Time
	if expiration > 0 {
		exp = time.Now().Add(expiration)
	}

	c.mru.Set([]KeyValuePair[string, item]{
		{Key: key, Value: item{data: []byte(value), expiration: exp}},
	})
	return nil
}

func (c *InMemoryBackend) Get(ctx context.Context, key string) (bool, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := c.mru.Get([]string{key})
	if len(items) == 0 || items[0].data == nil {
		return false, "", nil
	}
	it := items[0]
	if !it.expiration.IsZero() && time.Now().After(it.expiration) {
		c.mru.Delete([]string{key})
		return false, "", nil
	}
	return true, string(it.data), nil
}

func (c *InMemoryBackend) SetStruct(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, string(data), expiration)
}

func (c *InMemoryBackend) GetStruct(ctx context.Context, key string, target any) (bool, error) {
	found, raw, err := c.Get(ctx, key)
	if !found || err != nil {
		return found, err
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return false, err
	}
	return true, nil
}

func (c *InMemoryBackend) Delete(ctx context.Context, keys []string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mru.Delete(keys)
	return true, nil
}

func (c *InMemoryBackend) Ping(ctx context.Context) error {
	return nil
}

func (c *InMemoryBackend) Lock(ctx context.Context, key string, duration time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lockKey := fmt.Sprintf("lock:%s", key)
	if expiresAt, held := c.locks[lockKey]; held && time.Now().Before(expiresAt) {
		return false, nil
	}
	c.locks[lockKey] = time.Now().Add(duration)
	return true, nil
}

func (c *InMemoryBackend) Unlock(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locks, fmt.Sprintf("lock:%s", key))
	return nil
}
