// Package reference implements the ReferenceSet / Pinning component:
// tracking which document keys are currently referenced by a target, a
// pending mutation, or a local view pin.
package reference

import (
	localstore "github.com/sharedcode/localstore"
)

// Source tags the three pin sources a key's reference count can come from.
type Source int

const (
	// SourceTarget: the key is synced to an active query target.
	SourceTarget Source = iota
	// SourceMutation: a pending MutationBatch touches the key.
	SourceMutation
	// SourceLocalView: a user-facing listener pins the key directly.
	SourceLocalView
)

// id identifies one (source, owner) reference slot; a given owner can pin
// the same key at most once per source, matching a target or batch adding
// the same key twice having no additional effect.
type id struct {
	source Source
	owner  int64
	key    localstore.DocumentKey
}

// Set tracks references to document keys from the three pin sources and
// exposes whether a key is currently referenced at all.
type Set struct {
	refs  map[id]bool
	count map[localstore.DocumentKey]int
}

// NewSet returns an empty ReferenceSet.
func NewSet() *Set {
	return &Set{
		refs:  make(map[id]bool),
		count: make(map[localstore.DocumentKey]int),
	}
}

// AddReference pins key on behalf of (source, owner). owner is a target id
// for SourceTarget, a batch id for SourceMutation, or the target id of the
// listener's view for SourceLocalView.
func (s *Set) AddReference(source Source, owner int64, key localstore.DocumentKey) {
	ref := id{source: source, owner: owner, key: key}
	if s.refs[ref] {
		return
	}
	s.refs[ref] = true
	s.count[key]++
}

// RemoveReference releases key's pin from (source, owner), if present.
func (s *Set) RemoveReference(source Source, owner int64, key localstore.DocumentKey) {
	ref := id{source: source, owner: owner, key: key}
	if !s.refs[ref] {
		return
	}
	delete(s.refs, ref)
	s.count[key]--
	if s.count[key] <= 0 {
		delete(s.count, key)
	}
}

// RemoveReferencesForID releases every pin held by (source, owner),
// e.g. when a target is released or a batch is acknowledged/rejected.
func (s *Set) RemoveReferencesForID(source Source, owner int64) []localstore.DocumentKey {
	var released []localstore.DocumentKey
	for ref := range s.refs {
		if ref.source == source && ref.owner == owner {
			delete(s.refs, ref)
			s.count[ref.key]--
			if s.count[ref.key] <= 0 {
				delete(s.count, ref.key)
				released = append(released, ref.key)
			}
		}
	}
	return released
}

// IsReferenced reports whether key is pinned by any source.
func (s *Set) IsReferenced(key localstore.DocumentKey) bool {
	return s.count[key] > 0
}

// ReferenceCount returns the number of distinct (source, owner) pins
// currently held on key, for admin/diagnostic reporting.
func (s *Set) ReferenceCount(key localstore.DocumentKey) int {
	return s.count[key]
}

// ReferencedKeyCount returns the number of distinct keys with at least one
// pin, for admin/diagnostic reporting.
func (s *Set) ReferencedKeyCount() int {
	return len(s.count)
}
