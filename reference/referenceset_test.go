package reference

import (
	"testing"

	localstore "github.com/sharedcode/localstore"
)

func TestAddReferenceMakesKeyReferenced(t *testing.T) {
	s := NewSet()
	key := localstore.NewDocumentKey("rooms/a")
	if s.IsReferenced(key) {
		t.Fatalf("expected key to start unreferenced")
	}
	s.AddReference(SourceTarget, 2, key)
	if !s.IsReferenced(key) {
		t.Fatalf("expected key to be referenced after AddReference")
	}
}

func TestMultipleSourcesKeepKeyReferencedUntilAllRemoved(t *testing.T) {
	s := NewSet()
	key := localstore.NewDocumentKey("rooms/a")
	s.AddReference(SourceTarget, 2, key)
	s.AddReference(SourceMutation, 7, key)

	s.RemoveReference(SourceTarget, 2, key)
	if !s.IsReferenced(key) {
		t.Fatalf("expected key to remain referenced while mutation pin remains")
	}

	s.RemoveReference(SourceMutation, 7, key)
	if s.IsReferenced(key) {
		t.Fatalf("expected key to become unreferenced once all pins are removed")
	}
}

func TestRemoveReferencesForIDReleasesAllKeysForThatOwner(t *testing.T) {
	s := NewSet()
	a := localstore.NewDocumentKey("rooms/a")
	b := localstore.NewDocumentKey("rooms/b")
	s.AddReference(SourceTarget, 2, a)
	s.AddReference(SourceTarget, 2, b)
	s.AddReference(SourceMutation, 99, a) // independent pin on a, should survive

	released := s.RemoveReferencesForID(SourceTarget, 2)
	if len(released) != 1 || released[0] != b {
		t.Fatalf("expected only b to be fully released, got %v", released)
	}
	if !s.IsReferenced(a) {
		t.Fatalf("expected a to remain referenced via its mutation pin")
	}
	if s.IsReferenced(b) {
		t.Fatalf("expected b to be unreferenced")
	}
}

func TestDuplicateAddReferenceIsIdempotent(t *testing.T) {
	s := NewSet()
	key := localstore.NewDocumentKey("rooms/a")
	s.AddReference(SourceTarget, 2, key)
	s.AddReference(SourceTarget, 2, key)
	s.RemoveReference(SourceTarget, 2, key)
	if s.IsReferenced(key) {
		t.Fatalf("expected a single RemoveReference to fully undo a duplicate AddReference")
	}
}
