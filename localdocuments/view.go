// Package localdocuments implements the LocalDocumentsView component: a
// pure function over (RemoteDocumentCache, MutationQueue) that computes
// the locally visible document by overlaying pending mutations on the
// remote baseline.
package localdocuments

import (
	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/mutationqueue"
	"github.com/sharedcode/localstore/query"
	"github.com/sharedcode/localstore/remotedoc"
)

// View computes locally visible documents. It holds no mutable state of
// its own; RemoteCache and Queue are the only state it reads.
type View struct {
	RemoteCache remotedoc.Cache
	Queue       mutationqueue.Queue
	Applier     localstore.TransformApplier
}

// New returns a LocalDocumentsView over the given cache and queue. A nil
// applier falls back to localstore.DefaultTransformApplier at overlay time.
func New(remoteCache remotedoc.Cache, queue mutationqueue.Queue, applier localstore.TransformApplier) *View {
	return &View{RemoteCache: remoteCache, Queue: queue, Applier: applier}
}

// GetDocument fetches the remote baseline for key (or treats it as
// non-existent) and applies every pending mutation affecting key in
// batch-insertion order.
func (v *View) GetDocument(key localstore.DocumentKey) localstore.MaybeDocument {
	baseline, exists := v.RemoteCache.Get(key)
	if !exists {
		baseline = localstore.NewNoDocument(key, localstore.MinSnapshotVersion, false)
	}
	return v.overlay(key, baseline, exists)
}

func (v *View) overlay(key localstore.DocumentKey, baseline localstore.MaybeDocument, existed bool) localstore.MaybeDocument {
	current := baseline
	exists := existed && current.IsDocument()
	applied := false
	for _, batch := range v.Queue.AllBatchesAffectingKey(key) {
		for _, m := range batch.MutationsFor(key) {
			result, ok := m.ApplyOverlay(key, current, exists, v.Applier)
			if ok {
				current = result
				exists = current.IsDocument()
				applied = true
			}
		}
	}
	if !applied {
		return baseline
	}
	current.HasLocalMutations = true
	return current
}

// GetDocuments batches GetDocument over keys.
func (v *View) GetDocuments(keys []localstore.DocumentKey) *localstore.DocumentMap {
	out := localstore.NewDocumentMap()
	for _, key := range keys {
		out.Set(key, v.GetDocument(key))
	}
	return out
}

// GetDocumentsMatchingQuery computes the overlay for every document that
// could possibly match q: the union of the remote cache's matching set and
// every key touched by a pending mutation whose path matches the query
//, then filters the overlay result down to Document
// variants that still satisfy q (a pending Delete can remove a document
// from the visible result; a pending Set/Patch can add one).
func (v *View) GetDocumentsMatchingQuery(q query.Query) *localstore.DocumentMap {
	candidates := v.RemoteCache.GetMatching(q)
	for _, batch := range v.Queue.AllBatchesAffectingQuery(q) {
		for _, key := range batch.Keys() {
			if q.IsDocumentGet && key != q.DocumentKey {
				continue
			}
			if !q.IsDocumentGet && !key.IsDirectChildOf(q.CollectionPath) {
				continue
			}
			if _, ok := candidates.Get(key); !ok {
				candidates.Set(key, localstore.NewNoDocument(key, localstore.MinSnapshotVersion, false))
			}
		}
	}

	out := localstore.NewDocumentMap()
	for _, key := range candidates.Keys() {
		doc := v.GetDocument(key)
		if doc.IsDocument() && q.Matches(doc) {
			out.Set(key, doc)
		}
	}
	return out
}
