package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/cache"
)

// lockTokens remembers the lock id this process holds for a given key, so
// Unlock only deletes a lock this client actually owns.
type client struct {
	conn       *Connection
	marshaler  localstore.Marshaler
	lockTokens map[string]string
}

// NewClient returns a cache.Backend backed by the package-level singleton
// Redis connection. OpenConnection must have been called first.
func NewClient() cache.Backend {
	return &client{
		conn:       connection,
		marshaler:  localstore.NewMarshaler(),
		lockTokens: make(map[string]string),
	}
}

// NewConnectionClient opens a dedicated Redis connection with the given
// options, useful for isolating one caller from the shared singleton.
func NewConnectionClient(options Options) cache.Backend {
	return &client{
		conn:       openConnection(options),
		marshaler:  localstore.NewMarshaler(),
		lockTokens: make(map[string]string),
	}
}

func (c *client) keyNotFound(err error) bool {
	return err == redis.Nil
}

func (c *client) Ping(ctx context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("redis: connection is not open")
	}
	return c.conn.Client.Ping(ctx).Err()
}

func (c *client) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if c.conn == nil {
		return fmt.Errorf("redis: connection is not open")
	}
	if expiration < 0 {
		return nil
	}
	return c.conn.Client.Set(ctx, key, value, expiration).Err()
}

func (c *client) Get(ctx context.Context, key string) (bool, string, error) {
	if c.conn == nil {
		return false, "", fmt.Errorf("redis: connection is not open")
	}
	s, err := c.conn.Client.Get(ctx, key).Result()
	found := err == nil
	if c.keyNotFound(err) {
		err = nil
	}
	return found, s, err
}

func (c *client) SetStruct(ctx context.Context, key string, value any, expiration time.Duration) error {
	if c.conn == nil {
		return fmt.Errorf("redis: connection is not open")
	}
	if expiration < 0 {
		return nil
	}
	ba, err := c.marshaler.Marshal(value)
	if err != nil {
		return err
	}
	return c.conn.Client.Set(ctx, key, ba, expiration).Err()
}

func (c *client) GetStruct(ctx context.Context, key string, target any) (bool, error) {
	if c.conn == nil {
		return false, fmt.Errorf("redis: connection is not open")
	}
	ba, err := c.conn.Client.Get(ctx, key).Bytes()
	if err == nil {
		err = c.marshaler.Unmarshal(ba, target)
	}
	found := err == nil
	if c.keyNotFound(err) {
		err = nil
	}
	return found, err
}

func (c *client) Delete(ctx context.Context, keys []string) (bool, error) {
	if c.conn == nil {
		return false, fmt.Errorf("redis: connection is not open")
	}
	err := c.conn.Client.Del(ctx, keys...).Err()
	found := err == nil
	if c.keyNotFound(err) {
		err = nil
	}
	return found, err
}

// Lock acquires key using SETNX so only one contender wins, remembering the
// token this client set so Unlock only clears a lock it actually owns.
func (c *client) Lock(ctx context.Context, key string, duration time.Duration) (bool, error) {
	if c.conn == nil {
		return false, fmt.Errorf("redis: connection is not open")
	}
	lockKey := c.formatLockKey(key)
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	ok, err := c.conn.Client.SetNX(ctx, lockKey, token, duration).Result()
	if err != nil {
		return false, err
	}
	if ok {
		c.lockTokens[lockKey] = token
	}
	return ok, nil
}

// LockWithRetry acquires key, retrying with jittered Fibonacci backoff while
// another process holds it, instead of failing on the first contended
// attempt. Deployments that can tolerate a blocking lock acquisition (e.g.
// the deferred-GC sweep coordinating against a concurrent writer) should
// call this instead of Lock.
func (c *client) LockWithRetry(ctx context.Context, key string, duration time.Duration) error {
	return localstore.Retry(ctx, func(ctx context.Context) error {
		ok, err := c.Lock(ctx, key, duration)
		if err != nil {
			return err
		}
		if !ok {
			localstore.RandomSleep(ctx)
			return retry.RetryableError(fmt.Errorf("redis: lock %q held by another process", key))
		}
		return nil
	}, nil)
}

func (c *client) Unlock(ctx context.Context, key string) error {
	if c.conn == nil {
		return fmt.Errorf("redis: connection is not open")
	}
	lockKey := c.formatLockKey(key)
	token, owned := c.lockTokens[lockKey]
	if !owned {
		return nil
	}
	current, err := c.conn.Client.Get(ctx, lockKey).Result()
	if err != nil && !c.keyNotFound(err) {
		return err
	}
	if current == token {
		if err := c.conn.Client.Del(ctx, lockKey).Err(); err != nil {
			return err
		}
	}
	delete(c.lockTokens, lockKey)
	return nil
}

func (c *client) formatLockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}
