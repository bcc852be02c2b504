package query

import (
	"testing"

	localstore "github.com/sharedcode/localstore"
)

func TestDocumentQueryMatchesOnlyItsKey(t *testing.T) {
	key := localstore.NewDocumentKey("rooms/a")
	other := localstore.NewDocumentKey("rooms/b")
	q := NewDocumentQuery(key)

	doc := localstore.NewDocument(key, localstore.MinSnapshotVersion, localstore.Fields{"x": 1}, false)
	if !q.Matches(doc) {
		t.Fatalf("expected query to match its own key")
	}

	otherDoc := localstore.NewDocument(other, localstore.MinSnapshotVersion, localstore.Fields{"x": 1}, false)
	if q.Matches(otherDoc) {
		t.Fatalf("expected query not to match a different key")
	}
}

func TestCollectionQueryRequiresDirectChild(t *testing.T) {
	q := NewCollectionQuery("rooms", nil)

	direct := localstore.NewDocument(localstore.NewDocumentKey("rooms/a"), localstore.MinSnapshotVersion, localstore.Fields{}, false)
	if !q.Matches(direct) {
		t.Fatalf("expected direct child to match")
	}

	nested := localstore.NewDocument(localstore.NewDocumentKey("rooms/a/messages/m1"), localstore.MinSnapshotVersion, localstore.Fields{}, false)
	if q.Matches(nested) {
		t.Fatalf("expected nested grandchild not to match a single-collection query")
	}
}

func TestCollectionQueryAppliesFilter(t *testing.T) {
	eval, err := NewEvaluator(`fields["active"] == true`)
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	q := NewCollectionQuery("rooms", eval)

	active := localstore.NewDocument(localstore.NewDocumentKey("rooms/a"), localstore.MinSnapshotVersion, localstore.Fields{"active": true}, false)
	if !q.Matches(active) {
		t.Fatalf("expected active room to match")
	}

	inactive := localstore.NewDocument(localstore.NewDocumentKey("rooms/b"), localstore.MinSnapshotVersion, localstore.Fields{"active": false}, false)
	if q.Matches(inactive) {
		t.Fatalf("expected inactive room not to match")
	}
}

func TestQueryDoesNotMatchTombstones(t *testing.T) {
	q := NewCollectionQuery("rooms", nil)
	tombstone := localstore.NewNoDocument(localstore.NewDocumentKey("rooms/a"), localstore.MinSnapshotVersion, false)
	if q.Matches(tombstone) {
		t.Fatalf("expected NoDocument not to match any query")
	}
}

func TestCanonicalIDDistinguishesDocumentAndCollectionQueries(t *testing.T) {
	key := localstore.NewDocumentKey("rooms/a")
	docQ := NewDocumentQuery(key)
	colQ := NewCollectionQuery("rooms", nil)
	if docQ.CanonicalID() == colQ.CanonicalID() {
		t.Fatalf("expected distinct canonical ids, got %q for both", docQ.CanonicalID())
	}
}
