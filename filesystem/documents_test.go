package filesystem

import (
	"testing"

	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/query"
)

func TestDocumentStoreRoundTrip(t *testing.T) {
	store := NewDocumentStore(t.TempDir())
	key := localstore.NewDocumentKey("rooms/a")

	if _, ok := store.Get(key); ok {
		t.Fatalf("expected no document before Add")
	}

	doc := localstore.NewDocument(key, 7, localstore.Fields{"name": "lobby"}, false)
	store.Add(doc)

	got, ok := store.Get(key)
	if !ok {
		t.Fatalf("expected document after Add")
	}
	if got.Version != 7 || got.Fields["name"] != "lobby" {
		t.Fatalf("expected round-tripped fields, got %+v", got)
	}

	store.Remove(key)
	if _, ok := store.Get(key); ok {
		t.Fatalf("expected document to be gone after Remove")
	}
}

func TestDocumentStoreGetMatchingScansCollection(t *testing.T) {
	store := NewDocumentStore(t.TempDir())
	a := localstore.NewDocumentKey("rooms/a")
	b := localstore.NewDocumentKey("rooms/b")
	other := localstore.NewDocumentKey("lobbies/c")

	store.Add(localstore.NewDocument(a, 1, localstore.Fields{}, false))
	store.Add(localstore.NewDocument(b, 1, localstore.Fields{}, false))
	store.Add(localstore.NewDocument(other, 1, localstore.Fields{}, false))

	matches := store.GetMatching(query.NewCollectionQuery("rooms", nil))
	if _, ok := matches.Get(a); !ok {
		t.Fatalf("expected rooms/a in result")
	}
	if _, ok := matches.Get(b); !ok {
		t.Fatalf("expected rooms/b in result")
	}
	if _, ok := matches.Get(other); ok {
		t.Fatalf("did not expect lobbies/c in rooms collection result")
	}
}

func TestDocumentStoreOversizedPayloadSpansMultipleBlocks(t *testing.T) {
	store := NewDocumentStore(t.TempDir())
	key := localstore.NewDocumentKey("rooms/big")

	big := make([]byte, 0, 8192)
	for i := 0; i < 500; i++ {
		big = append(big, []byte("0123456789")...)
	}
	doc := localstore.NewDocument(key, 1, localstore.Fields{"blob": string(big)}, false)
	store.Add(doc)

	got, ok := store.Get(key)
	if !ok {
		t.Fatalf("expected document spanning multiple blocks to round-trip")
	}
	if got.Fields["blob"] != string(big) {
		t.Fatalf("expected oversized payload to survive the round trip unchanged")
	}
}
