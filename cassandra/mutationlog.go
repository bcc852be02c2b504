package cassandra

import (
	"context"
	"fmt"
	log "log/slog"
	"time"

	"github.com/gocql/gocql"

	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/mutationqueue"
	"github.com/sharedcode/localstore/query"
)

// mutationLog is a durable, per-user MutationQueue: every AddBatch/
// RemoveBatch is mirrored to the mutation_log table so a restarted client can
// recover its queue, while lookups are served from an in-process working set
// the same way transactionlog.go keeps its hour bucket in Redis rather than
// re-scanning Cassandra per call.
type mutationLog struct {
	userID      string
	nextBatchID int64
	batches     []localstore.MutationBatch
	byKey       map[localstore.DocumentKey][]int64
	streamToken []byte
}

// NewMutationLog returns a mutationqueue.Queue backed by the mutation_log
// table for the given user, replaying any rows already durable for that user.
func NewMutationLog(userID string) mutationqueue.Queue {
	q := &mutationLog{
		userID:      userID,
		nextBatchID: 1,
		byKey:       make(map[localstore.DocumentKey][]int64),
	}
	q.replay()
	return q
}

func (q *mutationLog) replay() {
	if connection == nil {
		return
	}
	iter := connection.Session.Query(
		fmt.Sprintf("SELECT batch_id, local_write_time, payload FROM %s.mutation_log WHERE user_id = ?;", connection.Config.Keyspace),
		q.userID).WithContext(context.Background()).Iter()
	defer iter.Close()

	var batchID, writeTimeMicros int64
	var payload []byte
	for iter.Scan(&batchID, &writeTimeMicros, &payload) {
		var mutations []localstore.Mutation
		if err := localstore.NewMarshaler().Unmarshal(payload, &mutations); err != nil {
			log.Error(fmt.Sprintf("mutationlog: decoding batch %d for %s failed: %v", batchID, q.userID, err))
			continue
		}
		batch := localstore.MutationBatch{
			BatchID:        batchID,
			LocalWriteTime: time.UnixMicro(writeTimeMicros),
			Mutations:      mutations,
		}
		q.batches = append(q.batches, batch)
		for _, key := range batch.Keys() {
			q.byKey[key] = append(q.byKey[key], batchID)
		}
		if batchID >= q.nextBatchID {
			q.nextBatchID = batchID + 1
		}
	}
}

func (q *mutationLog) AddBatch(localWriteTime time.Time, mutations []localstore.Mutation) localstore.MutationBatch {
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

	if connection != nil {
		payload, err := localstore.NewMarshaler().Marshal(mutations)
		if err != nil {
			log.Error(fmt.Sprintf("mutationlog: encoding batch %d for %s failed: %v", batch.BatchID, q.userID, err))
		} else {
			qry := connection.Session.Query(
				fmt.Sprintf("INSERT INTO %s.mutation_log (user_id, batch_id, local_write_time, payload) VALUES (?,?,?,?);", connection.Config.Keyspace),
				q.userID, batch.BatchID, localWriteTime.UnixMicro(), payload).WithContext(context.Background())
			if connection.Config.ConsistencyBook.MutationLogLog > gocql.Any {
				qry.Consistency(connection.Config.ConsistencyBook.MutationLogLog)
			}
			if err := qry.Exec(); err != nil {
				log.Error(fmt.Sprintf("mutationlog: AddBatch(%d) for %s failed: %v", batch.BatchID, q.userID, err))
			}
		}
	}
	return batch
}

func (q *mutationLog) indexOf(id int64) int {
	for i, b := range q.batches {
		if b.BatchID == id {
			return i
		}
	}
	return -1
}

func (q *mutationLog) LookupBatch(id int64) (localstore.MutationBatch, bool) {
	if i := q.indexOf(id); i >= 0 {
		return q.batches[i], true
	}
	return localstore.MutationBatch{}, false
}

func (q *mutationLog) NextBatchAfter(id int64) (localstore.MutationBatch, bool) {
	for _, b := range q.batches {
		if b.BatchID > id {
			return b, true
		}
	}
	return localstore.MutationBatch{}, false
}

func (q *mutationLog) AllBatchesAffectingKey(key localstore.DocumentKey) []localstore.MutationBatch {
	ids := q.byKey[key]
	out := make([]localstore.MutationBatch, 0, len(ids))
	for _, id := range ids {
		if b, ok := q.LookupBatch(id); ok {
			out = append(out, b)
		}
	}
	return out
}

func (q *mutationLog) AllBatchesAffectingQuery(search query.Query) []localstore.MutationBatch {
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

func (q *mutationLog) RemoveBatch(batch localstore.MutationBatch) error {
	if len(q.batches) == 0 || q.batches[0].BatchID != batch.BatchID {
		return fmt.Errorf("mutationlog: batch %d is not the head of the queue", batch.BatchID)
	}
	for _, key := range batch.Keys() {
		q.removeFromIndex(key, batch.BatchID)
	}
	q.batches = q.batches[1:]

	if connection != nil {
		qry := connection.Session.Query(
			fmt.Sprintf("DELETE FROM %s.mutation_log WHERE user_id = ? AND batch_id = ?;", connection.Config.Keyspace),
			q.userID, batch.BatchID).WithContext(context.Background())
		if err := qry.Exec(); err != nil {
			log.Error(fmt.Sprintf("mutationlog: RemoveBatch(%d) for %s failed: %v", batch.BatchID, q.userID, err))
		}
	}
	return nil
}

func (q *mutationLog) removeFromIndex(key localstore.DocumentKey, id int64) {
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

func (q *mutationLog) AcknowledgeBatch(batch localstore.MutationBatch, streamToken []byte) error {
	if err := q.RemoveBatch(batch); err != nil {
		return err
	}
	q.SetLastStreamToken(streamToken)
	return nil
}

func (q *mutationLog) GetLastStreamToken() []byte {
	return q.streamToken
}

func (q *mutationLog) SetLastStreamToken(token []byte) {
	q.streamToken = token
}

func (q *mutationLog) AllBatches() []localstore.MutationBatch {
	out := make([]localstore.MutationBatch, len(q.batches))
	copy(out, q.batches)
	return out
}
