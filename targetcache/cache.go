// Package targetcache implements the TargetCache component: the registry
// of active queries (targets), their resume metadata, and the set of
// documents each has matched.
package targetcache

import (
	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/query"
)

// Purpose tags why a target is registered.
type Purpose int

const (
	PurposeListen Purpose = iota
	PurposeExistenceFilterMismatch
	PurposeLimboResolution
)

// QueryData is a target registration.
type QueryData struct {
	TargetID        int
	Query           query.Query
	Purpose         Purpose
	SequenceNumber  int64
	SnapshotVersion localstore.SnapshotVersion
	ResumeToken     []byte
	// Active is false for a deferred-GC release awaiting re-allocation.
	// Eager GC never leaves an inactive registration behind: releaseQuery
	// removes it outright instead.
	Active bool
}

// reservedTargetIDs is the count of target ids set aside for system
// purposes before the first allocatable id.
const reservedTargetIDs = 2

// Cache is the TargetCache interface.
type Cache interface {
	AllocateTargetID() int
	AddQueryData(data QueryData)
	UpdateQueryData(data QueryData)
	RemoveQueryData(targetID int)
	Deactivate(targetID int)
	GetQueryData(q query.Query) (QueryData, bool)
	GetQueryDataByTargetID(targetID int) (QueryData, bool)
	AddMatchingKeys(keys []localstore.DocumentKey, targetID int)
	RemoveMatchingKeys(keys []localstore.DocumentKey, targetID int)
	GetMatchingKeysForTargetID(targetID int) map[localstore.DocumentKey]bool
	ContainsKey(key localstore.DocumentKey) bool
}

type memoryCache struct {
	nextTargetID int
	byTargetID   map[int]QueryData
	byQueryID    map[string]int // query.CanonicalID() -> targetID
	matchingKeys map[int]map[localstore.DocumentKey]bool
	// keyRefCount counts, across all targets, how many targets reference a key.
	keyRefCount map[localstore.DocumentKey]int
}

// New returns an in-memory TargetCache.
func New() Cache {
	return &memoryCache{
		nextTargetID: reservedTargetIDs,
		byTargetID:   make(map[int]QueryData),
		byQueryID:    make(map[string]int),
		matchingKeys: make(map[int]map[localstore.DocumentKey]bool),
		keyRefCount:  make(map[localstore.DocumentKey]int),
	}
}

// AllocateTargetID returns the next monotonic, unused target id, starting at 2.
func (c *memoryCache) AllocateTargetID() int {
	id := c.nextTargetID
	c.nextTargetID++
	return id
}

func (c *memoryCache) AddQueryData(data QueryData) {
	data.Active = true
	c.byTargetID[data.TargetID] = data
	c.byQueryID[data.Query.CanonicalID()] = data.TargetID
	if _, ok := c.matchingKeys[data.TargetID]; !ok {
		c.matchingKeys[data.TargetID] = make(map[localstore.DocumentKey]bool)
	}
}

// Deactivate marks a registration inactive without removing it, preserving
// its ResumeToken and SnapshotVersion for a future allocateQuery on the
// same canonical query.
func (c *memoryCache) Deactivate(targetID int) {
	if data, ok := c.byTargetID[targetID]; ok {
		data.Active = false
		c.byTargetID[targetID] = data
	}
}

// UpdateQueryData overwrites an existing registration's metadata,
// respecting the resume-token non-empty-only rule:
// an empty token never clobbers a previously stored non-empty one.
func (c *memoryCache) UpdateQueryData(data QueryData) {
	if existing, ok := c.byTargetID[data.TargetID]; ok && len(data.ResumeToken) == 0 {
		data.ResumeToken = existing.ResumeToken
	}
	c.byTargetID[data.TargetID] = data
	c.byQueryID[data.Query.CanonicalID()] = data.TargetID
}

func (c *memoryCache) RemoveQueryData(targetID int) {
	if data, ok := c.byTargetID[targetID]; ok {
		delete(c.byQueryID, data.Query.CanonicalID())
	}
	for key := range c.matchingKeys[targetID] {
		c.decrementRef(key)
	}
	delete(c.matchingKeys, targetID)
	delete(c.byTargetID, targetID)
}

func (c *memoryCache) GetQueryData(q query.Query) (QueryData, bool) {
	id, ok := c.byQueryID[q.CanonicalID()]
	if !ok {
		return QueryData{}, false
	}
	return c.byTargetID[id], true
}

func (c *memoryCache) GetQueryDataByTargetID(targetID int) (QueryData, bool) {
	d, ok := c.byTargetID[targetID]
	return d, ok
}

func (c *memoryCache) AddMatchingKeys(keys []localstore.DocumentKey, targetID int) {
	set, ok := c.matchingKeys[targetID]
	if !ok {
		set = make(map[localstore.DocumentKey]bool)
		c.matchingKeys[targetID] = set
	}
	for _, key := range keys {
		if !set[key] {
			set[key] = true
			c.keyRefCount[key]++
		}
	}
}

func (c *memoryCache) RemoveMatchingKeys(keys []localstore.DocumentKey, targetID int) {
	set := c.matchingKeys[targetID]
	for _, key := range keys {
		if set[key] {
			delete(set, key)
			c.decrementRef(key)
		}
	}
}

func (c *memoryCache) decrementRef(key localstore.DocumentKey) {
	c.keyRefCount[key]--
	if c.keyRefCount[key] <= 0 {
		delete(c.keyRefCount, key)
	}
}

func (c *memoryCache) GetMatchingKeysForTargetID(targetID int) map[localstore.DocumentKey]bool {
	out := make(map[localstore.DocumentKey]bool, len(c.matchingKeys[targetID]))
	for k := range c.matchingKeys[targetID] {
		out[k] = true
	}
	return out
}

func (c *memoryCache) ContainsKey(key localstore.DocumentKey) bool {
	return c.keyRefCount[key] > 0
}
