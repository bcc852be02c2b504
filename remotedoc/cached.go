package remotedoc

import (
	"context"
	"time"

	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/cache"
	"github.com/sharedcode/localstore/query"
)

// cachedCache fronts an inner RemoteDocumentCache with a two-tier
// (L1 in-process + optional L2 backend) read-through cache, used by the
// persistent regime where the inner Cache is a durable table and repeated
// Get calls would otherwise round-trip to it.
type cachedCache struct {
	inner Cache
	l1    *cache.DocumentCache
	ttl   time.Duration
}

// NewCachedCache wraps inner with a DocumentCache front, backed by l2
// (nil disables the L2 tier). ttl bounds how long an L2 entry stays fresh.
func NewCachedCache(inner Cache, l2 cache.Backend, ttl time.Duration) Cache {
	return &cachedCache{
		inner: inner,
		l1:    cache.NewDocumentCache(l2, cache.DefaultMinCapacity, cache.DefaultMaxCapacity),
		ttl:   ttl,
	}
}

func (c *cachedCache) Get(key localstore.DocumentKey) (localstore.MaybeDocument, bool) {
	if doc, ok, err := c.l1.Get(context.Background(), key, c.ttl); ok && err == nil {
		return doc, true
	}
	doc, ok := c.inner.Get(key)
	if ok {
		c.l1.Set(context.Background(), doc, c.ttl)
	}
	return doc, ok
}

func (c *cachedCache) GetAll(keys []localstore.DocumentKey) map[localstore.DocumentKey]localstore.MaybeDocument {
	out := make(map[localstore.DocumentKey]localstore.MaybeDocument, len(keys))
	for _, key := range keys {
		if doc, ok := c.Get(key); ok {
			out[key] = doc
		}
	}
	return out
}

// GetMatching always consults the inner cache: query evaluation needs the
// full path-ordered index, which the L1 tier does not maintain.
func (c *cachedCache) GetMatching(q query.Query) *localstore.DocumentMap {
	return c.inner.GetMatching(q)
}

func (c *cachedCache) Add(doc localstore.MaybeDocument) {
	c.inner.Add(doc)
	c.l1.Set(context.Background(), doc, c.ttl)
}

func (c *cachedCache) Remove(key localstore.DocumentKey) {
	c.inner.Remove(key)
	_, _ = c.l1.Delete(context.Background(), []localstore.DocumentKey{key})
}
