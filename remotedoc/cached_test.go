package remotedoc

import (
	"testing"

	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/query"
)

func TestCachedCacheServesFromL1AfterAdd(t *testing.T) {
	inner := NewMemoryCache()
	c := NewCachedCache(inner, nil, 0)
	key := localstore.NewDocumentKey("rooms/1")
	doc := localstore.NewDocument(key, 1, localstore.Fields{"name": "lobby"}, false)

	c.Add(doc)

	got, ok := c.Get(key)
	if !ok || got.Fields["name"] != "lobby" {
		t.Fatalf("Get() = %v, %v", got, ok)
	}
}

func TestCachedCacheFallsThroughToInnerOnMiss(t *testing.T) {
	inner := NewMemoryCache()
	key := localstore.NewDocumentKey("rooms/1")
	inner.Add(localstore.NewDocument(key, 1, localstore.Fields{"name": "lobby"}, false))

	c := NewCachedCache(inner, nil, 0)
	got, ok := c.Get(key)
	if !ok || got.Fields["name"] != "lobby" {
		t.Fatalf("Get() = %v, %v", got, ok)
	}
}

func TestCachedCacheRemovePropagatesToInnerAndL1(t *testing.T) {
	inner := NewMemoryCache()
	c := NewCachedCache(inner, nil, 0)
	key := localstore.NewDocumentKey("rooms/1")
	c.Add(localstore.NewDocument(key, 1, nil, false))

	c.Remove(key)

	if _, ok := c.Get(key); ok {
		t.Fatalf("Get() after Remove should miss")
	}
	if _, ok := inner.Get(key); ok {
		t.Fatalf("inner Get() after Remove should miss")
	}
}

func TestCachedCacheGetMatchingDelegatesToInner(t *testing.T) {
	inner := NewMemoryCache()
	c := NewCachedCache(inner, nil, 0)
	key := localstore.NewDocumentKey("rooms/1")
	c.Add(localstore.NewDocument(key, 1, nil, false))

	q := query.NewCollectionQuery("rooms", nil)
	matches := c.GetMatching(q)
	if matches.Len() != 1 {
		t.Fatalf("GetMatching Len() = %d, want 1", matches.Len())
	}
}
