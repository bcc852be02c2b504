package localdocuments

import (
	"testing"
	"time"

	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/mutationqueue"
	"github.com/sharedcode/localstore/query"
	"github.com/sharedcode/localstore/remotedoc"
)

func TestGetDocumentNoMutationsReturnsBaseline(t *testing.T) {
	cache := remotedoc.NewMemoryCache()
	key := localstore.NewDocumentKey("rooms/a")
	cache.Add(localstore.NewDocument(key, localstore.SnapshotVersion(5), localstore.Fields{"name": "a"}, false))

	v := New(cache, mutationqueue.New(), nil)
	doc := v.GetDocument(key)
	if doc.HasLocalMutations {
		t.Fatalf("expected no local mutations")
	}
	if doc.Version != 5 {
		t.Fatalf("expected baseline version 5, got %d", doc.Version)
	}
}

func TestGetDocumentAppliesPendingSet(t *testing.T) {
	cache := remotedoc.NewMemoryCache()
	queue := mutationqueue.New()
	key := localstore.NewDocumentKey("rooms/a")
	queue.AddBatch(time.Unix(0, 0), []localstore.Mutation{
		localstore.SetMutation(key, localstore.Fields{"name": "local"}, localstore.NoPrecondition),
	})

	v := New(cache, queue, nil)
	doc := v.GetDocument(key)
	if !doc.IsDocument() || !doc.HasLocalMutations {
		t.Fatalf("expected pending Set to produce a local document, got %+v", doc)
	}
	if doc.Fields["name"] != "local" {
		t.Fatalf("expected overlay fields, got %v", doc.Fields)
	}
	if doc.Version != localstore.MinSnapshotVersion {
		t.Fatalf("expected local overlay version to be Min, got %d", doc.Version)
	}
}

func TestBlindPatchIsInvisible(t *testing.T) {
	cache := remotedoc.NewMemoryCache()
	queue := mutationqueue.New()
	key := localstore.NewDocumentKey("rooms/a")
	queue.AddBatch(time.Unix(0, 0), []localstore.Mutation{
		localstore.PatchMutation(key, []string{"name"}, localstore.Fields{"name": "x"}, localstore.NoPrecondition),
	})

	v := New(cache, queue, nil)
	doc := v.GetDocument(key)
	if doc.IsDocument() {
		t.Fatalf("expected a blind patch against a nonexistent document to stay invisible, got %+v", doc)
	}
}

func TestPatchMergesOntoExistingOverlay(t *testing.T) {
	cache := remotedoc.NewMemoryCache()
	queue := mutationqueue.New()
	key := localstore.NewDocumentKey("rooms/a")
	cache.Add(localstore.NewDocument(key, localstore.SnapshotVersion(1), localstore.Fields{"name": "remote", "size": 10}, false))
	queue.AddBatch(time.Unix(0, 0), []localstore.Mutation{
		localstore.PatchMutation(key, []string{"name"}, localstore.Fields{"name": "patched"}, localstore.NoPrecondition),
	})

	v := New(cache, queue, nil)
	doc := v.GetDocument(key)
	if doc.Fields["name"] != "patched" || doc.Fields["size"] != 10 {
		t.Fatalf("expected field-mask merge to preserve unrelated fields, got %v", doc.Fields)
	}
}

func TestDeleteProducesLocalTombstone(t *testing.T) {
	cache := remotedoc.NewMemoryCache()
	queue := mutationqueue.New()
	key := localstore.NewDocumentKey("rooms/a")
	cache.Add(localstore.NewDocument(key, localstore.SnapshotVersion(1), localstore.Fields{"name": "remote"}, false))
	queue.AddBatch(time.Unix(0, 0), []localstore.Mutation{localstore.DeleteMutation(key, localstore.NoPrecondition)})

	v := New(cache, queue, nil)
	doc := v.GetDocument(key)
	if !doc.IsNoDocument() || !doc.HasLocalMutations {
		t.Fatalf("expected local tombstone, got %+v", doc)
	}
}

func TestTransformSkippedWithoutMaterializedDocument(t *testing.T) {
	cache := remotedoc.NewMemoryCache()
	queue := mutationqueue.New()
	key := localstore.NewDocumentKey("rooms/a")
	queue.AddBatch(time.Unix(0, 0), []localstore.Mutation{
		localstore.TransformMutation(key, []localstore.FieldTransform{{Field: "count", Op: "increment", Value: 1}}, localstore.NoPrecondition),
	})

	v := New(cache, queue, nil)
	doc := v.GetDocument(key)
	if doc.IsDocument() {
		t.Fatalf("expected transform with no prior materialized document to be skipped, got %+v", doc)
	}
}

func TestTransformAppliedAfterSetInSameBatch(t *testing.T) {
	cache := remotedoc.NewMemoryCache()
	queue := mutationqueue.New()
	key := localstore.NewDocumentKey("rooms/a")
	queue.AddBatch(time.Unix(0, 0), []localstore.Mutation{
		localstore.SetMutation(key, localstore.Fields{"count": 1}, localstore.NoPrecondition),
		localstore.TransformMutation(key, []localstore.FieldTransform{{Field: "count", Op: "increment", Value: 2}}, localstore.NoPrecondition),
	})

	v := New(cache, queue, nil)
	doc := v.GetDocument(key)
	if !doc.IsDocument() {
		t.Fatalf("expected transform chained after a Set in the same batch to materialize, got %+v", doc)
	}
	if doc.Fields["count"] != 2 {
		t.Fatalf("expected default applier to apply transform value, got %v", doc.Fields["count"])
	}
}

func TestGetDocumentsMatchingQueryUnionsRemoteAndPendingKeys(t *testing.T) {
	cache := remotedoc.NewMemoryCache()
	queue := mutationqueue.New()
	existing := localstore.NewDocumentKey("rooms/a")
	newOne := localstore.NewDocumentKey("rooms/b")
	cache.Add(localstore.NewDocument(existing, localstore.SnapshotVersion(1), localstore.Fields{"name": "a"}, false))
	queue.AddBatch(time.Unix(0, 0), []localstore.Mutation{
		localstore.SetMutation(newOne, localstore.Fields{"name": "b"}, localstore.NoPrecondition),
	})

	v := New(cache, queue, nil)
	result := v.GetDocumentsMatchingQuery(query.NewCollectionQuery("rooms", nil))
	if result.Len() != 2 {
		t.Fatalf("expected both the remote and pending-only document, got %d", result.Len())
	}
}

func TestGetDocumentsMatchingQueryExcludesPendingDeletes(t *testing.T) {
	cache := remotedoc.NewMemoryCache()
	queue := mutationqueue.New()
	key := localstore.NewDocumentKey("rooms/a")
	cache.Add(localstore.NewDocument(key, localstore.SnapshotVersion(1), localstore.Fields{"name": "a"}, false))
	queue.AddBatch(time.Unix(0, 0), []localstore.Mutation{localstore.DeleteMutation(key, localstore.NoPrecondition)})

	v := New(cache, queue, nil)
	result := v.GetDocumentsMatchingQuery(query.NewCollectionQuery("rooms", nil))
	if result.Len() != 0 {
		t.Fatalf("expected pending delete to remove the document from query results, got %d", result.Len())
	}
}
