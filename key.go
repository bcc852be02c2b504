package localstore

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DocumentKey identifies a document by its resource path: an even number of
// slash-separated segments, alternating collection/id/collection/id/...
//. DocumentKey is comparable and usable as a map key.
type DocumentKey struct {
	path string
}

// NewDocumentKey builds a DocumentKey from a slash-separated path. It panics
// if the path does not have an even number of segments; callers at the
// collaborator boundary (wire protocol, query engine) are expected to only
// ever produce well-formed paths, so this is a programmer-error check, not a
// runtime validation path.
func NewDocumentKey(path string) DocumentKey {
	segs := splitPath(path)
	if len(segs)%2 != 0 || len(segs) == 0 {
		panic(fmt.Sprintf("localstore: document key path %q must have an even, non-zero number of segments", path))
	}
	return DocumentKey{path: strings.Join(segs, "/")}
}

// ParseDocumentKey validates path and builds a DocumentKey, for boundaries
// that receive a path from an untrusted caller (an HTTP query parameter, a
// CLI flag) rather than a collaborator that already guarantees well-formed
// input. Unlike NewDocumentKey it reports a malformed path as an error
// instead of panicking.
func ParseDocumentKey(path string) (DocumentKey, error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return DocumentKey{}, fmt.Errorf("localstore: document key path %q must not be empty", path)
	}
	if len(segs)%2 != 0 {
		return DocumentKey{}, fmt.Errorf("localstore: document key path %q must have an even number of segments", path)
	}
	return DocumentKey{path: strings.Join(segs, "/")}, nil
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Path returns the canonical slash-joined path.
func (k DocumentKey) Path() string {
	return k.path
}

// String implements fmt.Stringer.
func (k DocumentKey) String() string {
	return k.path
}

// CollectionPath returns the path of the collection that directly contains
// this document (all segments but the last).
func (k DocumentKey) CollectionPath() string {
	i := strings.LastIndex(k.path, "/")
	if i < 0 {
		return ""
	}
	return k.path[:i]
}

// IsDirectChildOf reports whether this key's collection path equals the
// given collection path exactly (the single-collection query match rule).
func (k DocumentKey) IsDirectChildOf(collectionPath string) bool {
	return k.CollectionPath() == strings.Trim(collectionPath, "/")
}

// Less orders keys by path-lex order, used to keep change-sets and
// executeQuery results deterministic.
func (k DocumentKey) Less(other DocumentKey) bool {
	return k.path < other.path
}

// MarshalJSON encodes a DocumentKey as its path string, so a MaybeDocument
// embedding one serializes to readable JSON for the admin API and any wire
// format that round-trips a document through encoding/json.
func (k DocumentKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.path)
}

// UnmarshalJSON decodes a DocumentKey from its path string.
func (k *DocumentKey) UnmarshalJSON(data []byte) error {
	var path string
	if err := json.Unmarshal(data, &path); err != nil {
		return err
	}
	k.path = path
	return nil
}
