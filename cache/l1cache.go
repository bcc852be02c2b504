// Package cache also provides DocumentCache, the two-tier read-through
// cache the persistent regime puts in front of its durable
// RemoteDocumentCache table: an in-process L1 MRU plus an optional L2
// Backend (Redis) shared across processes.
package cache

import (
	"context"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	localstore "github.com/sharedcode/localstore"
)

type l1CacheEntry struct {
	version localstore.SnapshotVersion
	fields  localstore.Fields
	isTomb  bool
	dllNode *node[localstore.DocumentKey]
}

// DocumentCache is an in-memory MRU cache of documents, optionally backed by
// an L2 Backend for cross-process sharing and TTL.
type DocumentCache struct {
	lookup map[localstore.DocumentKey]*l1CacheEntry
	mru    *l1_mru
	l2     Backend
	locker sync.Mutex
}

// DefaultMinCapacity is the default minimum number of entries to retain before evictions are considered.
var DefaultMinCapacity = 1000

// DefaultMaxCapacity is the default hard limit of entries allowed in the L1 cache.
var DefaultMaxCapacity = 1350

// NewDocumentCache constructs a DocumentCache with the given L2 backend
// (nil disables the L2 tier) and capacity bounds.
func NewDocumentCache(l2 Backend, minCapacity, maxCapacity int) *DocumentCache {
	dc := &DocumentCache{
		lookup: make(map[localstore.DocumentKey]*l1CacheEntry, maxCapacity),
		l2:     l2,
	}
	dc.mru = newL1Mru(dc, minCapacity, maxCapacity)
	return dc
}

type wireDoc struct {
	Type    localstore.DocumentType
	Version localstore.SnapshotVersion
	Fields  localstore.Fields
}

// Set caches doc in the L1 MRU and, if configured, the L2 backend.
func (c *DocumentCache) Set(ctx context.Context, doc localstore.MaybeDocument, ttl time.Duration) {
	c.setToMRU(doc)
	if c.l2 == nil {
		return
	}
	w := wireDoc{Type: doc.Type, Version: doc.Version, Fields: doc.Fields}
	if err := c.l2.SetStruct(ctx, formatDocKey(doc.Key), w, ttl); err != nil {
		log.Warn(fmt.Sprintf("failed to cache document %s in L2: %v", doc.Key, err))
	}
}

func (c *DocumentCache) setToMRU(doc localstore.MaybeDocument) {
	c.locker.Lock()
	defer c.locker.Unlock()
	if v, ok := c.lookup[doc.Key]; ok {
		v.version = doc.Version
		v.fields = doc.Fields
		v.isTomb = doc.Type != localstore.DocumentTypeDocument
		c.mru.remove(v.dllNode)
		v.dllNode = c.mru.add(doc.Key)
		return
	}
	n := c.mru.add(doc.Key)
	c.lookup[doc.Key] = &l1CacheEntry{
		version: doc.Version,
		fields:  doc.Fields,
		isTomb:  doc.Type != localstore.DocumentTypeDocument,
		dllNode: n,
	}
	c.mru.evict()
}

// GetFromMRU returns the document from L1 if its cached version is at least
// minVersion; it does not fall through to L2.
func (c *DocumentCache) GetFromMRU(key localstore.DocumentKey, minVersion localstore.SnapshotVersion) (localstore.MaybeDocument, bool) {
	c.locker.Lock()
	defer c.locker.Unlock()
	v, ok := c.lookup[key]
	if !ok || v.version.Less(minVersion) {
		return localstore.MaybeDocument{}, false
	}
	c.mru.remove(v.dllNode)
	v.dllNode = c.mru.add(key)
	return toMaybeDocument(key, v), true
}

// Get returns the document, checking L1 first and falling through to L2 (if
// configured) on a miss, refreshing L1 from whatever L2 returns.
func (c *DocumentCache) Get(ctx context.Context, key localstore.DocumentKey, ttl time.Duration) (localstore.MaybeDocument, bool, error) {
	if doc, ok := c.GetFromMRU(key, localstore.MinSnapshotVersion); ok {
		return doc, true, nil
	}
	if c.l2 == nil {
		return localstore.MaybeDocument{}, false, nil
	}
	var w wireDoc
	found, err := c.l2.GetStruct(ctx, formatDocKey(key), &w)
	if !found || err != nil {
		return localstore.MaybeDocument{}, false, err
	}
	doc := localstore.MaybeDocument{Type: w.Type, Key: key, Version: w.Version, Fields: w.Fields}
	c.setToMRU(doc)
	if ttl > 0 {
		_ = c.l2.SetStruct(ctx, formatDocKey(key), w, ttl)
	}
	return doc, true, nil
}

func toMaybeDocument(key localstore.DocumentKey, v *l1CacheEntry) localstore.MaybeDocument {
	if v.isTomb {
		return localstore.NewNoDocument(key, v.version, false)
	}
	return localstore.NewDocument(key, v.version, v.fields, false)
}

// Delete removes the given keys from both L1 and L2.
func (c *DocumentCache) Delete(ctx context.Context, keys []localstore.DocumentKey) (bool, error) {
	var removed bool
	c.locker.Lock()
	for _, key := range keys {
		if v, ok := c.lookup[key]; ok {
			c.mru.remove(v.dllNode)
			delete(c.lookup, key)
			removed = true
		}
	}
	c.locker.Unlock()

	if c.l2 == nil {
		return removed, nil
	}
	l2Keys := make([]string, len(keys))
	for i, key := range keys {
		l2Keys[i] = formatDocKey(key)
	}
	ok, err := c.l2.Delete(ctx, l2Keys)
	return removed || ok, err
}

// Count returns the number of entries currently stored in L1.
func (c *DocumentCache) Count() int {
	c.locker.Lock()
	defer c.locker.Unlock()
	return len(c.lookup)
}

// IsFull reports whether the L1 cache has reached its maximum capacity.
func (c *DocumentCache) IsFull() bool {
	c.locker.Lock()
	defer c.locker.Unlock()
	return c.mru.isFull()
}

// Evict removes least-recently-used entries until L1 is within capacity.
func (c *DocumentCache) Evict() {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.mru.evict()
}

// formatDocKey prefixes the document's path to form its L2 cache key.
func formatDocKey(key localstore.DocumentKey) string {
	return fmt.Sprintf("D%s", key.String())
}
