package cache

import (
	"context"
	"time"
)

// Backend is the L2 cache contract: a string-keyed, TTL-aware store with
// advisory locking, implemented by the in-process cache here and by the
// Redis-backed cache for the persistent regime.
type Backend interface {
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Get(ctx context.Context, key string) (bool, string, error)
	SetStruct(ctx context.Context, key string, value any, expiration time.Duration) error
	GetStruct(ctx context.Context, key string, target any) (bool, error)
	Delete(ctx context.Context, keys []string) (bool, error)
	Ping(ctx context.Context) error

	// Lock attempts to acquire an exclusive lock for key, held for duration.
	// It returns false if another owner already holds it.
	Lock(ctx context.Context, key string, duration time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// RetryLocker is an optional Backend capability: a blocking lock acquisition
// that retries with jittered backoff while another owner holds the key,
// instead of failing on the first contended attempt. The Redis-backed
// Backend implements this; the in-process Backend does not need to, since
// there is only ever one writer within a single process.
type RetryLocker interface {
	LockWithRetry(ctx context.Context, key string, duration time.Duration) error
}
