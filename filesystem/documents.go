// Package filesystem adapts github.com/ncw/directio into a remotedoc.Cache:
// a single-node RemoteDocumentCache backed by one O_DIRECT file per
// document, for a deployment with no Cassandra cluster to talk to. Writes
// bypass the page cache, opening each backing file with O_DIRECT rather
// than buffered I/O.
package filesystem

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ncw/directio"

	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/query"
)

// DocumentStore is a remotedoc.Cache rooted at Dir, one file per document.
type DocumentStore struct {
	mu  sync.Mutex
	Dir string
}

// NewDocumentStore returns a filesystem-backed remotedoc.Cache rooted at
// dir. dir must already exist and be writable.
func NewDocumentStore(dir string) *DocumentStore {
	return &DocumentStore{Dir: dir}
}

type wireDoc struct {
	Type    localstore.DocumentType
	Version localstore.SnapshotVersion
	Fields  localstore.Fields
}

// fileName maps a DocumentKey's path to a flat file under Dir. A path
// segment cannot itself contain a slash, so replacing the path separator
// with an otherwise-illegal character is a collision-free escape.
func (s *DocumentStore) fileName(key localstore.DocumentKey) string {
	return filepath.Join(s.Dir, strings.ReplaceAll(key.Path(), "/", "_")+".doc")
}

func (s *DocumentStore) Get(key localstore.DocumentKey) (localstore.MaybeDocument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := readAligned(s.fileName(key))
	if !ok {
		return localstore.MaybeDocument{}, false
	}
	var w wireDoc
	if err := localstore.NewMarshaler().Unmarshal(raw, &w); err != nil {
		return localstore.MaybeDocument{}, false
	}
	return toMaybeDocument(key, w), true
}

func toMaybeDocument(key localstore.DocumentKey, w wireDoc) localstore.MaybeDocument {
	switch w.Type {
	case localstore.DocumentTypeDocument:
		return localstore.NewDocument(key, w.Version, w.Fields, false)
	case localstore.DocumentTypeUnknownDocument:
		return localstore.NewUnknownDocument(key, w.Version)
	default:
		return localstore.NewNoDocument(key, w.Version, false)
	}
}

func (s *DocumentStore) GetAll(keys []localstore.DocumentKey) map[localstore.DocumentKey]localstore.MaybeDocument {
	out := make(map[localstore.DocumentKey]localstore.MaybeDocument, len(keys))
	for _, key := range keys {
		if doc, ok := s.Get(key); ok {
			out[key] = doc
		}
	}
	return out
}

// GetMatching lists Dir and decodes every candidate file; the filesystem
// regime has no secondary index on collection prefix, so a collection
// query is a full directory scan, the way Cassandra's table scan is in
// cassandra.documentTable.GetMatching.
func (s *DocumentStore) GetMatching(q query.Query) *localstore.DocumentMap {
	out := localstore.NewDocumentMap()
	if q.IsDocumentGet {
		if doc, ok := s.Get(q.DocumentKey); ok && q.Matches(doc) {
			out.Set(q.DocumentKey, doc)
		}
		return out
	}

	s.mu.Lock()
	entries, err := os.ReadDir(s.Dir)
	s.mu.Unlock()
	if err != nil {
		return out
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".doc") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		path := strings.TrimSuffix(name, ".doc")
		key := localstore.NewDocumentKey(strings.ReplaceAll(path, "_", "/"))
		if doc, ok := s.Get(key); ok && q.Matches(doc) {
			out.Set(key, doc)
		}
	}
	return out
}

func (s *DocumentStore) Add(doc localstore.MaybeDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := wireDoc{Type: doc.Type, Version: doc.Version, Fields: doc.Fields}
	blob, err := localstore.NewMarshaler().Marshal(w)
	if err != nil {
		return
	}
	if err := writeAligned(s.fileName(doc.Key), blob); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

func (s *DocumentStore) Remove(key localstore.DocumentKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = os.Remove(s.fileName(key))
}

// lengthHeaderSize is the fixed-size prefix written before the payload so
// readAligned knows where the payload ends inside the last, zero-padded
// aligned block.
const lengthHeaderSize = 8

// writeAligned truncates and rewrites path as a sequence of
// directio.BlockSize-aligned blocks: an 8-byte little-endian length header
// followed by data, zero-padded out to the next block boundary.
func writeAligned(path string, data []byte) error {
	f, err := directio.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("filesystem: opening %s for direct write: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, lengthHeaderSize)
	binary.LittleEndian.PutUint64(header, uint64(len(data)))
	payload := append(header, data...)

	block := directio.AlignedBlock(directio.BlockSize)
	for written := 0; written < len(payload); written += directio.BlockSize {
		for i := range block {
			block[i] = 0
		}
		end := written + directio.BlockSize
		if end > len(payload) {
			end = len(payload)
		}
		copy(block, payload[written:end])
		if _, err := f.Write(block); err != nil {
			return fmt.Errorf("filesystem: direct write to %s: %w", path, err)
		}
	}
	return nil
}

// readAligned reads path back in directio.BlockSize blocks and trims the
// result to the length recorded by writeAligned's header.
func readAligned(path string) ([]byte, bool) {
	f, err := directio.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	var buf bytes.Buffer
	block := directio.AlignedBlock(directio.BlockSize)
	for {
		n, err := f.Read(block)
		if n > 0 {
			buf.Write(block[:n])
		}
		if err != nil {
			break
		}
	}
	raw := buf.Bytes()
	if len(raw) < lengthHeaderSize {
		return nil, false
	}
	size := binary.LittleEndian.Uint64(raw[:lengthHeaderSize])
	if lengthHeaderSize+size > uint64(len(raw)) {
		return nil, false
	}
	return raw[lengthHeaderSize : lengthHeaderSize+size], true
}
