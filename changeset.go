package localstore

import "sort"

// DocumentMap is a deterministic, path-lex-ordered collection of documents
// keyed by DocumentKey. Several operations (executeQuery results, the
// recomputed views of writeLocally, acknowledgeBatch, rejectBatch and
// applyRemoteEvent, getDocuments batches) return one of these
// instead of a bare map so that callers see stable iteration order without
// re-sorting at every call site.
type DocumentMap struct {
	entries map[DocumentKey]MaybeDocument
}

// NewDocumentMap builds an empty DocumentMap.
func NewDocumentMap() *DocumentMap {
	return &DocumentMap{entries: make(map[DocumentKey]MaybeDocument)}
}

// Set inserts or overwrites the entry for key.
func (m *DocumentMap) Set(key DocumentKey, doc MaybeDocument) {
	m.entries[key] = doc
}

// Get returns the entry for key, if any.
func (m *DocumentMap) Get(key DocumentKey) (MaybeDocument, bool) {
	d, ok := m.entries[key]
	return d, ok
}

// Delete removes the entry for key, if present.
func (m *DocumentMap) Delete(key DocumentKey) {
	delete(m.entries, key)
}

// Len returns the number of entries.
func (m *DocumentMap) Len() int {
	return len(m.entries)
}

// Keys returns all keys in path-lex order.
func (m *DocumentMap) Keys() []DocumentKey {
	keys := make([]DocumentKey, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// ForEach visits every entry in path-lex order.
func (m *DocumentMap) ForEach(fn func(DocumentKey, MaybeDocument)) {
	for _, k := range m.Keys() {
		fn(k, m.entries[k])
	}
}

// ChangeType tags one entry of a DocumentChangeSet.
type ChangeType int

const (
	// ChangeAdded means the key's document is newly visible in the view.
	ChangeAdded ChangeType = iota
	// ChangeModified means the key's document content or metadata changed.
	ChangeModified
	// ChangeRemoved means the key's document is no longer visible in the view.
	ChangeRemoved
)

// DocumentChange is one delta entry of the change-set applyRemoteEvent returns.
type DocumentChange struct {
	Type     ChangeType
	Key      DocumentKey
	Document MaybeDocument
}

// DocumentChangeSet accumulates DocumentChanges in path-lex order,
// collapsing repeated touches of the same key to their net effect.
type DocumentChangeSet struct {
	changes map[DocumentKey]DocumentChange
}

// NewDocumentChangeSet builds an empty DocumentChangeSet.
func NewDocumentChangeSet() *DocumentChangeSet {
	return &DocumentChangeSet{changes: make(map[DocumentKey]DocumentChange)}
}

// AddChange records a change, overwriting any prior entry for the same key.
func (s *DocumentChangeSet) AddChange(c DocumentChange) {
	s.changes[c.Key] = c
}

// Changes returns the recorded changes in path-lex order.
func (s *DocumentChangeSet) Changes() []DocumentChange {
	keys := make([]DocumentKey, 0, len(s.changes))
	for k := range s.changes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	out := make([]DocumentChange, len(keys))
	for i, k := range keys {
		out[i] = s.changes[k]
	}
	return out
}
