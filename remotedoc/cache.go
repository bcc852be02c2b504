// Package remotedoc implements the RemoteDocumentCache component: the
// latest server-known version of each document, present or tombstone. It
// applies no mutation overlay; that is localdocuments' job.
package remotedoc

import (
	"sort"
	"strings"
	"sync"

	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/query"
)

// Cache is the RemoteDocumentCache interface.
type Cache interface {
	Get(key localstore.DocumentKey) (localstore.MaybeDocument, bool)
	GetAll(keys []localstore.DocumentKey) map[localstore.DocumentKey]localstore.MaybeDocument
	GetMatching(q query.Query) *localstore.DocumentMap
	Add(doc localstore.MaybeDocument)
	Remove(key localstore.DocumentKey)
}

// memoryCache is an in-process RemoteDocumentCache backed by a path-prefix
// index (a sorted key slice, binary-searched on collection path), mirroring
// the in-memory regime's cache backend.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[localstore.DocumentKey]localstore.MaybeDocument
	// sortedKeys is kept ordered to support prefix range scans for
	// collection-query matching without rescanning the whole cache.
	sortedKeys []localstore.DocumentKey
}

// NewMemoryCache returns an in-memory RemoteDocumentCache.
func NewMemoryCache() Cache {
	return &memoryCache{entries: make(map[localstore.DocumentKey]localstore.MaybeDocument)}
}

func (c *memoryCache) Get(key localstore.DocumentKey) (localstore.MaybeDocument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.entries[key]
	return d, ok
}

func (c *memoryCache) GetAll(keys []localstore.DocumentKey) map[localstore.DocumentKey]localstore.MaybeDocument {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[localstore.DocumentKey]localstore.MaybeDocument, len(keys))
	for _, k := range keys {
		if d, ok := c.entries[k]; ok {
			out[k] = d
		}
	}
	return out
}

// GetMatching returns only Document variants whose key satisfies the
// query's membership test: a direct child of the
// collection path for collection queries, or an exact key match for
// single-document queries. The path-prefix index narrows collection scans
// to the candidate range before the query's own filter runs.
func (c *memoryCache) GetMatching(q query.Query) *localstore.DocumentMap {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := localstore.NewDocumentMap()
	if q.IsDocumentGet {
		if d, ok := c.entries[q.DocumentKey]; ok && q.Matches(d) {
			out.Set(q.DocumentKey, d)
		}
		return out
	}

	prefix := q.CollectionPath + "/"
	lo := sort.Search(len(c.sortedKeys), func(i int) bool {
		return c.sortedKeys[i].Path() >= prefix
	})
	for i := lo; i < len(c.sortedKeys); i++ {
		key := c.sortedKeys[i]
		if !strings.HasPrefix(key.Path(), prefix) {
			break
		}
		d, ok := c.entries[key]
		if ok && q.Matches(d) {
			out.Set(key, d)
		}
	}
	return out
}

// Add overwrites the entry for doc.Key unconditionally; callers are
// responsible for the version-monotonicity invariant.
func (c *memoryCache) Add(doc localstore.MaybeDocument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[doc.Key]; !exists {
		c.insertSorted(doc.Key)
	}
	c.entries[doc.Key] = doc
}

func (c *memoryCache) Remove(key localstore.DocumentKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		return
	}
	delete(c.entries, key)
	i := sort.Search(len(c.sortedKeys), func(i int) bool { return !c.sortedKeys[i].Less(key) })
	if i < len(c.sortedKeys) && c.sortedKeys[i] == key {
		c.sortedKeys = append(c.sortedKeys[:i], c.sortedKeys[i+1:]...)
	}
}

func (c *memoryCache) insertSorted(key localstore.DocumentKey) {
	i := sort.Search(len(c.sortedKeys), func(i int) bool { return !c.sortedKeys[i].Less(key) })
	c.sortedKeys = append(c.sortedKeys, localstore.DocumentKey{})
	copy(c.sortedKeys[i+1:], c.sortedKeys[i:])
	c.sortedKeys[i] = key
}
