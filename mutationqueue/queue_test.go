package mutationqueue

import (
	"testing"
	"time"

	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/query"
)

func TestAddBatchAssignsMonotonicIDs(t *testing.T) {
	q := New()
	key := localstore.NewDocumentKey("rooms/a")
	b1 := q.AddBatch(time.Unix(0, 0), []localstore.Mutation{localstore.SetMutation(key, localstore.Fields{}, localstore.NoPrecondition)})
	b2 := q.AddBatch(time.Unix(0, 0), []localstore.Mutation{localstore.SetMutation(key, localstore.Fields{}, localstore.NoPrecondition)})
	if b2.BatchID <= b1.BatchID {
		t.Fatalf("expected strictly increasing batch ids, got %d then %d", b1.BatchID, b2.BatchID)
	}
}

func TestAllBatchesAffectingKeyInsertionOrder(t *testing.T) {
	q := New()
	a := localstore.NewDocumentKey("rooms/a")
	b := localstore.NewDocumentKey("rooms/b")
	first := q.AddBatch(time.Unix(0, 0), []localstore.Mutation{localstore.SetMutation(a, localstore.Fields{}, localstore.NoPrecondition)})
	q.AddBatch(time.Unix(0, 0), []localstore.Mutation{localstore.SetMutation(b, localstore.Fields{}, localstore.NoPrecondition)})
	second := q.AddBatch(time.Unix(0, 0), []localstore.Mutation{localstore.SetMutation(a, localstore.Fields{}, localstore.NoPrecondition)})

	batches := q.AllBatchesAffectingKey(a)
	if len(batches) != 2 || batches[0].BatchID != first.BatchID || batches[1].BatchID != second.BatchID {
		t.Fatalf("expected [first, second] in insertion order, got %v", batches)
	}
}

func TestRemoveBatchOnlyFromHead(t *testing.T) {
	q := New()
	key := localstore.NewDocumentKey("rooms/a")
	first := q.AddBatch(time.Unix(0, 0), []localstore.Mutation{localstore.SetMutation(key, localstore.Fields{}, localstore.NoPrecondition)})
	second := q.AddBatch(time.Unix(0, 0), []localstore.Mutation{localstore.SetMutation(key, localstore.Fields{}, localstore.NoPrecondition)})

	if err := q.RemoveBatch(second); err == nil {
		t.Fatalf("expected error removing a non-head batch")
	}
	if err := q.RemoveBatch(first); err != nil {
		t.Fatalf("expected head removal to succeed: %v", err)
	}
	if _, ok := q.LookupBatch(first.BatchID); ok {
		t.Fatalf("expected first batch to be gone")
	}
}

func TestAcknowledgeBatchSetsStreamToken(t *testing.T) {
	q := New()
	key := localstore.NewDocumentKey("rooms/a")
	batch := q.AddBatch(time.Unix(0, 0), []localstore.Mutation{localstore.SetMutation(key, localstore.Fields{}, localstore.NoPrecondition)})
	if err := q.AcknowledgeBatch(batch, []byte("token-1")); err != nil {
		t.Fatalf("AcknowledgeBatch: %v", err)
	}
	if string(q.GetLastStreamToken()) != "token-1" {
		t.Fatalf("expected stream token to be persisted")
	}
	if _, ok := q.LookupBatch(batch.BatchID); ok {
		t.Fatalf("expected acknowledged batch to be removed")
	}
}

func TestAllBatchesAffectingQueryCollection(t *testing.T) {
	q := New()
	roomA := localstore.NewDocumentKey("rooms/a")
	userA := localstore.NewDocumentKey("users/a")
	q.AddBatch(time.Unix(0, 0), []localstore.Mutation{localstore.SetMutation(roomA, localstore.Fields{}, localstore.NoPrecondition)})
	q.AddBatch(time.Unix(0, 0), []localstore.Mutation{localstore.SetMutation(userA, localstore.Fields{}, localstore.NoPrecondition)})

	matches := q.AllBatchesAffectingQuery(query.NewCollectionQuery("rooms", nil))
	if len(matches) != 1 {
		t.Fatalf("expected 1 batch affecting rooms collection, got %d", len(matches))
	}
}

func TestNextBatchAfter(t *testing.T) {
	q := New()
	key := localstore.NewDocumentKey("rooms/a")
	first := q.AddBatch(time.Unix(0, 0), []localstore.Mutation{localstore.SetMutation(key, localstore.Fields{}, localstore.NoPrecondition)})
	second := q.AddBatch(time.Unix(0, 0), []localstore.Mutation{localstore.SetMutation(key, localstore.Fields{}, localstore.NoPrecondition)})

	next, ok := q.NextBatchAfter(first.BatchID)
	if !ok || next.BatchID != second.BatchID {
		t.Fatalf("expected batch after %d to be %d, got %v ok=%v", first.BatchID, second.BatchID, next, ok)
	}

	if _, ok := q.NextBatchAfter(second.BatchID); ok {
		t.Fatalf("expected no batch after the tail")
	}
}
