// Package mutationqueue implements the MutationQueue component: a
// per-user ordered log of locally issued, not-yet-acknowledged mutation
// batches.
package mutationqueue

import (
	"fmt"
	"time"

	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/query"
)

// Queue is the MutationQueue interface, scoped to a single authenticated
// user.
type Queue interface {
	AddBatch(localWriteTime time.Time, mutations []localstore.Mutation) localstore.MutationBatch
	LookupBatch(id int64) (localstore.MutationBatch, bool)
	NextBatchAfter(id int64) (localstore.MutationBatch, bool)
	AllBatchesAffectingKey(key localstore.DocumentKey) []localstore.MutationBatch
	AllBatchesAffectingQuery(q query.Query) []localstore.MutationBatch
	RemoveBatch(batch localstore.MutationBatch) error
	AcknowledgeBatch(batch localstore.MutationBatch, streamToken []byte) error
	GetLastStreamToken() []byte
	SetLastStreamToken(token []byte)
	AllBatches() []localstore.MutationBatch
}

// memoryQueue is an in-process, single-user MutationQueue with a secondary
// key -> batchIds index, so AllBatchesAffectingKey does not scan the whole log.
type memoryQueue struct {
	nextBatchID int64
	batches     []localstore.MutationBatch // insertion order; head is index 0
	byKey       map[localstore.DocumentKey][]int64
	streamToken []byte
}

// New returns an in-memory MutationQueue for one user.
func New() Queue {
	return &memoryQueue{
		nextBatchID: 1,
		byKey:       make(map[localstore.DocumentKey][]int64),
	}
}

// AddBatch assigns the next monotonic batch id and appends to the log.
func (q *memoryQueue) AddBatch(localWriteTime time.Time, mutations []localstore.Mutation) localstore.MutationBatch {
	batch := localstore.MutationBatch{
		BatchID:        q.nextBatchID,
		LocalWriteTime: localWriteTime,
		Mutations:      mutations,
	}
	q.nextBatchID++
	q.batches = append(q.batches, batch)
	for _, key := range batch.Keys() {
		q.byKey[key] = append(q.byKey[key], batch.BatchID)
	}
	return batch
}

func (q *memoryQueue) indexOf(id int64) int {
	for i, b := range q.batches {
		if b.BatchID == id {
			return i
		}
	}
	return -1
}

func (q *memoryQueue) LookupBatch(id int64) (localstore.MutationBatch, bool) {
	if i := q.indexOf(id); i >= 0 {
		return q.batches[i], true
	}
	return localstore.MutationBatch{}, false
}

func (q *memoryQueue) NextBatchAfter(id int64) (localstore.MutationBatch, bool) {
	for _, b := range q.batches {
		if b.BatchID > id {
			return b, true
		}
	}
	return localstore.MutationBatch{}, false
}

// AllBatchesAffectingKey returns batches touching key in insertion order.
func (q *memoryQueue) AllBatchesAffectingKey(key localstore.DocumentKey) []localstore.MutationBatch {
	ids := q.byKey[key]
	out := make([]localstore.MutationBatch, 0, len(ids))
	for _, id := range ids {
		if b, ok := q.LookupBatch(id); ok {
			out = append(out, b)
		}
	}
	return out
}

// AllBatchesAffectingQuery scans the log for batches with at least one
// mutation whose key matches q. Collection queries necessarily scan the
// whole log since mutation keys are not indexed by collection path.
func (q *memoryQueue) AllBatchesAffectingQuery(search query.Query) []localstore.MutationBatch {
	var out []localstore.MutationBatch
	for _, b := range q.batches {
		for _, key := range b.Keys() {
			if search.IsDocumentGet {
				if key == search.DocumentKey {
					out = append(out, b)
					break
				}
				continue
			}
			if key.IsDirectChildOf(search.CollectionPath) {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// RemoveBatch removes batch from the log. Only the head may be removed;
// removing any other batch is a programmer error.
func (q *memoryQueue) RemoveBatch(batch localstore.MutationBatch) error {
	if len(q.batches) == 0 || q.batches[0].BatchID != batch.BatchID {
		return fmt.Errorf("mutationqueue: batch %d is not the head of the queue", batch.BatchID)
	}
	for _, key := range batch.Keys() {
		q.removeFromIndex(key, batch.BatchID)
	}
	q.batches = q.batches[1:]
	return nil
}

func (q *memoryQueue) removeFromIndex(key localstore.DocumentKey, id int64) {
	ids := q.byKey[key]
	for i, existing := range ids {
		if existing == id {
			q.byKey[key] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(q.byKey[key]) == 0 {
		delete(q.byKey, key)
	}
}

// AcknowledgeBatch removes the acknowledged head batch and persists the
// stream token in the same logical step.
func (q *memoryQueue) AcknowledgeBatch(batch localstore.MutationBatch, streamToken []byte) error {
	if err := q.RemoveBatch(batch); err != nil {
		return err
	}
	q.SetLastStreamToken(streamToken)
	return nil
}

func (q *memoryQueue) GetLastStreamToken() []byte {
	return q.streamToken
}

func (q *memoryQueue) SetLastStreamToken(token []byte) {
	q.streamToken = token
}

// AllBatches returns every batch currently queued, in insertion order.
func (q *memoryQueue) AllBatches() []localstore.MutationBatch {
	out := make([]localstore.MutationBatch, len(q.batches))
	copy(out, q.batches)
	return out
}
