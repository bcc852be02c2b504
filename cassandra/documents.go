package cassandra

import (
	"context"
	"fmt"
	log "log/slog"
	"time"

	"github.com/gocql/gocql"

	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/cache"
	"github.com/sharedcode/localstore/query"
)

// documentCacheDuration is how long a durable-table read is cached in the L2
// backend before the next Get re-reads Cassandra.
var documentCacheDuration = 12 * time.Hour

// documentTable is the durable RemoteDocumentCache: every write lands in
// Cassandra, and reads are fronted by an L2 Backend (normally Redis) the way
// registry.go fronts the handle table with a Redis cache.
type documentTable struct {
	l2 cache.Backend
}

// NewDocumentTable returns a remotedoc.Cache backed by the documents table.
// OpenConnection must have been called first. l2 may be nil to skip the
// read-through cache tier.
func NewDocumentTable(l2 cache.Backend) *documentTable {
	return &documentTable{l2: l2}
}

type wireDoc struct {
	Type    localstore.DocumentType
	Version localstore.SnapshotVersion
	Fields  localstore.Fields
}

func (t *documentTable) Get(key localstore.DocumentKey) (localstore.MaybeDocument, bool) {
	ctx := context.Background()
	if t.l2 != nil {
		var w wireDoc
		if found, err := t.l2.GetStruct(ctx, key.String(), &w); err == nil && found {
			return toMaybeDocument(key, w), true
		}
	}
	if connection == nil {
		return localstore.MaybeDocument{}, false
	}
	qry := connection.Session.Query(
		fmt.Sprintf("SELECT doc_type, version, fields FROM %s.documents WHERE path = ?;", connection.Config.Keyspace),
		key.String()).WithContext(ctx)
	if connection.Config.ConsistencyBook.DocumentsRead > gocql.Any {
		qry.Consistency(connection.Config.ConsistencyBook.DocumentsRead)
	}
	var w wireDoc
	var fieldsBlob []byte
	if err := qry.Scan((*int)(&w.Type), (*int64)(&w.Version), &fieldsBlob); err != nil {
		return localstore.MaybeDocument{}, false
	}
	if len(fieldsBlob) > 0 {
		if err := localstore.NewMarshaler().Unmarshal(fieldsBlob, &w.Fields); err != nil {
			log.Error(fmt.Sprintf("documents: decoding fields for %s failed: %v", key, err))
		}
	}
	if t.l2 != nil {
		if err := t.l2.SetStruct(ctx, key.String(), &w, documentCacheDuration); err != nil {
			log.Warn(fmt.Sprintf("documents: L2 refresh for %s failed: %v", key, err))
		}
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

func (t *documentTable) GetAll(keys []localstore.DocumentKey) map[localstore.DocumentKey]localstore.MaybeDocument {
	out := make(map[localstore.DocumentKey]localstore.MaybeDocument, len(keys))
	for _, key := range keys {
		if doc, ok := t.Get(key); ok {
			out[key] = doc
		}
	}
	return out
}

// GetMatching scans the documents table for rows whose path is a direct
// child of the query's collection; a secondary index on the collection
// prefix is a schema concern left to the deployment, not this adapter.
func (t *documentTable) GetMatching(q query.Query) *localstore.DocumentMap {
	out := localstore.NewDocumentMap()
	if connection == nil {
		return out
	}
	ctx := context.Background()
	if q.IsDocumentGet {
		if doc, ok := t.Get(q.DocumentKey); ok && q.Matches(doc) {
			out.Set(q.DocumentKey, doc)
		}
		return out
	}
	qry := connection.Session.Query(
		fmt.Sprintf("SELECT path, doc_type, version, fields FROM %s.documents;", connection.Config.Keyspace)).WithContext(ctx)
	iter := qry.Iter()
	var path string
	var w wireDoc
	var fieldsBlob []byte
	for iter.Scan(&path, (*int)(&w.Type), (*int64)(&w.Version), &fieldsBlob) {
		key := localstore.NewDocumentKey(path)
		if len(fieldsBlob) > 0 {
			_ = localstore.NewMarshaler().Unmarshal(fieldsBlob, &w.Fields)
		}
		doc := toMaybeDocument(key, w)
		if q.Matches(doc) {
			out.Set(key, doc)
		}
		w = wireDoc{}
	}
	_ = iter.Close()
	return out
}

// writeLockDuration bounds how long Add holds its per-key write lock, when
// the L2 backend supports one; it only needs to outlive one Cassandra write.
const writeLockDuration = 5 * time.Second

func (t *documentTable) Add(doc localstore.MaybeDocument) {
	if connection == nil {
		return
	}
	ctx := context.Background()

	// Serialize concurrent writers to the same key, e.g. a remote-event
	// apply racing a local acknowledgement, the way registry.go's handle
	// table guards a write with a distributed lock.
	if locker, ok := t.l2.(cache.RetryLocker); ok {
		lockKey := "write:" + doc.Key.String()
		if err := locker.LockWithRetry(ctx, lockKey, writeLockDuration); err != nil {
			log.Warn(fmt.Sprintf("documents: Add(%s) proceeding without write lock: %v", doc.Key, err))
		} else {
			defer t.l2.Unlock(ctx, lockKey)
		}
	}

	fieldsBlob, _ := localstore.NewMarshaler().Marshal(doc.Fields)
	qry := connection.Session.Query(
		fmt.Sprintf("INSERT INTO %s.documents (path, doc_type, version, fields) VALUES (?,?,?,?);", connection.Config.Keyspace),
		doc.Key.String(), int(doc.Type), int64(doc.Version), fieldsBlob).WithContext(ctx)
	if connection.Config.ConsistencyBook.DocumentsWrite > gocql.Any {
		qry.Consistency(connection.Config.ConsistencyBook.DocumentsWrite)
	}
	if err := qry.Exec(); err != nil {
		log.Error(fmt.Sprintf("documents: Add(%s) failed: %v", doc.Key, err))
		return
	}
	if t.l2 != nil {
		w := wireDoc{Type: doc.Type, Version: doc.Version, Fields: doc.Fields}
		if err := t.l2.SetStruct(ctx, doc.Key.String(), &w, documentCacheDuration); err != nil {
			log.Warn(fmt.Sprintf("documents: L2 set for %s failed: %v", doc.Key, err))
		}
	}
}

func (t *documentTable) Remove(key localstore.DocumentKey) {
	if connection == nil {
		return
	}
	ctx := context.Background()
	qry := connection.Session.Query(
		fmt.Sprintf("DELETE FROM %s.documents WHERE path = ?;", connection.Config.Keyspace),
		key.String()).WithContext(ctx)
	if err := qry.Exec(); err != nil {
		log.Error(fmt.Sprintf("documents: Remove(%s) failed: %v", key, err))
	}
	if t.l2 != nil {
		if _, err := t.l2.Delete(ctx, []string{key.String()}); err != nil {
			log.Warn(fmt.Sprintf("documents: L2 delete for %s failed: %v", key, err))
		}
	}
}
