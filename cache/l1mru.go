package cache

import localstore "github.com/sharedcode/localstore"

// l1_mru manages MRU ordering and eviction for the DocumentCache's L1 tier.
type l1_mru struct {
	minCapacity int
	maxCapacity int
	dll         *doublyLinkedList[localstore.DocumentKey]
	docCache    *DocumentCache
}

func newL1Mru(dc *DocumentCache, minCapacity, maxCapacity int) *l1_mru {
	return &l1_mru{
		docCache:    dc,
		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		dll:         newDoublyLinkedList[localstore.DocumentKey](),
	}
}

// add inserts the key at the head of the MRU list and returns its node handle.
func (m *l1_mru) add(key localstore.DocumentKey) *node[localstore.DocumentKey] {
	return m.dll.addToHead(key)
}

// remove unchains the node from the MRU list.
func (m *l1_mru) remove(n *node[localstore.DocumentKey]) {
	m.dll.delete(n)
}

// evict removes entries from the tail while the cache is at or above its
// maximum capacity, leaving at most maxCapacity-1 entries.
func (m *l1_mru) evict() {
	for {
		if !m.isFull() {
			break
		}
		if key, ok := m.dll.deleteFromTail(); ok {
			delete(m.docCache.lookup, key)
		} else {
			break
		}
	}
}

// isFull reports whether the L1 cache has reached its maximum capacity.
func (m *l1_mru) isFull() bool {
	return m.dll.count() >= m.maxCapacity
}
