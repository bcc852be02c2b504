// Package store implements the LocalStore coordinator: the public façade
// orchestrating RemoteDocumentCache, MutationQueue, TargetCache,
// LocalDocumentsView, the ReferenceSet, and the GarbageCollector so that
// every public operation is atomic with respect to observers.
package store

import (
	"context"
	"time"

	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/gc"
	"github.com/sharedcode/localstore/localdocuments"
	"github.com/sharedcode/localstore/mutationqueue"
	"github.com/sharedcode/localstore/persistence"
	"github.com/sharedcode/localstore/query"
	"github.com/sharedcode/localstore/reference"
	"github.com/sharedcode/localstore/remotedoc"
	"github.com/sharedcode/localstore/targetcache"
)

// Config selects the storage regime's collaborators.
type Config struct {
	RemoteCache remotedoc.Cache
	Queue       mutationqueue.Queue
	Targets     targetcache.Cache
	GC          gc.Collector
	Applier     localstore.TransformApplier
	// Archiver, when set, is consulted by RunDeferredSweep before a
	// deferred-GC candidate is dropped (e.g. the persistent regime's
	// S3-backed cold-archive tier). Ignored under Eager GC, which has no
	// out-of-band sweep.
	Archiver gc.Archiver
}

// LocalStore is the coordinator façade. It holds no business logic beyond
// orchestration: each façade operation (WriteLocally through
// GetRemoteDocumentKeys) opens one persistence.Transaction, drives the
// component writes, and returns the resulting change-set. RunDeferredSweep,
// GetStats and ReferenceCountFor run without a transaction.
type LocalStore struct {
	remoteCache remotedoc.Cache
	queue       mutationqueue.Queue
	targets     targetcache.Cache
	refs        *reference.Set
	view        *localdocuments.View
	collector   gc.Collector
	eager       bool
	archiver    gc.Archiver

	lastRemoteSnapshotVersion localstore.SnapshotVersion
}

// New builds a LocalStore from cfg. Missing collaborators default to the
// in-memory implementations and Eager GC.
func New(cfg Config) *LocalStore {
	if cfg.RemoteCache == nil {
		cfg.RemoteCache = remotedoc.NewMemoryCache()
	}
	if cfg.Queue == nil {
		cfg.Queue = mutationqueue.New()
	}
	if cfg.Targets == nil {
		cfg.Targets = targetcache.New()
	}
	if cfg.GC == nil {
		cfg.GC = gc.Eager{}
	}
	_, eager := cfg.GC.(gc.Eager)
	return &LocalStore{
		remoteCache: cfg.RemoteCache,
		queue:       cfg.Queue,
		targets:     cfg.Targets,
		refs:        reference.NewSet(),
		view:        localdocuments.New(cfg.RemoteCache, cfg.Queue, cfg.Applier),
		collector:   cfg.GC,
		eager:       eager,
		archiver:    cfg.Archiver,
	}
}

// RunDeferredSweep runs an out-of-band deferred-GC pass over candidates,
// archiving each removed document first when the store was built with an
// Archiver. It is a no-op under Eager GC, which has
// already swept eagerly on the hot path. Callers (e.g. a periodic admin
// task) supply candidates from their own idle/staleness bookkeeping.
func (s *LocalStore) RunDeferredSweep(ctx context.Context, candidates []localstore.DocumentKey) ([]localstore.DocumentKey, []error) {
	deferred, ok := s.collector.(gc.Deferred)
	if !ok {
		return nil, nil
	}
	if s.archiver == nil {
		return deferred.Run(s.refs, s.remoteCache, candidates), nil
	}
	return deferred.RunWithArchive(ctx, s.refs, s.remoteCache, candidates, s.archiver)
}

// withTransaction runs fn inside exactly one persistence.Transaction,
// committing on success and rolling back if fn errors.
func withTransaction[T any](fn func() (T, error)) (T, error) {
	tx := persistence.NewSession()
	var zero T
	if err := tx.Begin(); err != nil {
		return zero, localstore.NewError(localstore.Persistence, err, nil)
	}
	result, err := fn()
	if err != nil {
		_ = tx.Rollback()
		return zero, err
	}
	if err := tx.Commit(); err != nil {
		return zero, localstore.NewError(localstore.Persistence, err, nil)
	}
	return result, nil
}

func unionKeys(batches []localstore.Mutation) []localstore.DocumentKey {
	seen := make(map[localstore.DocumentKey]bool, len(batches))
	var out []localstore.DocumentKey
	for _, m := range batches {
		if !seen[m.Key] {
			seen[m.Key] = true
			out = append(out, m.Key)
		}
	}
	return out
}

func keySlice(set map[localstore.DocumentKey]bool) []localstore.DocumentKey {
	out := make([]localstore.DocumentKey, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// WriteResult is the return value of WriteLocally.
type WriteResult struct {
	BatchID int64
	Changes *localstore.DocumentMap
}

// WriteLocally queues mutations as a new batch and returns the recomputed
// local view for every key they touch.
func (s *LocalStore) WriteLocally(mutations []localstore.Mutation) (WriteResult, error) {
	return withTransaction(func() (WriteResult, error) {
		affectedKeys := unionKeys(mutations)
		batch := s.queue.AddBatch(time.Now(), mutations)
		for _, key := range affectedKeys {
			s.refs.AddReference(reference.SourceMutation, batch.BatchID, key)
		}
		changes := s.view.GetDocuments(affectedKeys)
		s.collector.Sweep(s.refs, s.remoteCache, affectedKeys)
		return WriteResult{BatchID: batch.BatchID, Changes: changes}, nil
	})
}

// RemoteEventResult is the return value of ApplyRemoteEvent: the recomputed
// local view together with a classified added/modified/removed diff, ready
// to hand to a listener without the caller re-deriving change type from
// document presence itself.
type RemoteEventResult struct {
	Changes   *localstore.DocumentMap
	ChangeSet *localstore.DocumentChangeSet
}

// buildChangeSet classifies each key in after against whether it existed in
// the remote baseline before this event, producing the ChangeSet that
// ApplyRemoteEvent returns in its RemoteEventResult.
func buildChangeSet(existedBefore map[localstore.DocumentKey]bool, after *localstore.DocumentMap) *localstore.DocumentChangeSet {
	set := localstore.NewDocumentChangeSet()
	after.ForEach(func(key localstore.DocumentKey, doc localstore.MaybeDocument) {
		changeType := localstore.ChangeModified
		switch {
		case doc.Type != localstore.DocumentTypeDocument:
			changeType = localstore.ChangeRemoved
		case !existedBefore[key]:
			changeType = localstore.ChangeAdded
		}
		set.AddChange(localstore.DocumentChange{Type: changeType, Key: key, Document: doc})
	})
	return set
}

// ApplyRemoteEvent folds a watch-stream event into the RemoteDocumentCache
// and TargetCache and recomputes the local view for every key whose remote
// baseline changed.
func (s *LocalStore) ApplyRemoteEvent(event RemoteEvent) (RemoteEventResult, error) {
	return withTransaction(func() (RemoteEventResult, error) {
		allocatedTouchedKeys := make(map[localstore.DocumentKey]bool)
		var keysToSweep []localstore.DocumentKey
		existedBefore := make(map[localstore.DocumentKey]bool)

		for targetID, tc := range event.TargetChanges {
			data, ok := s.targets.GetQueryDataByTargetID(targetID)
			if !ok {
				// Unknown targetId: ignored here; feeds the orphan rule below.
				continue
			}
			if len(tc.ResumeToken) > 0 {
				data.ResumeToken = tc.ResumeToken
			}
			if tc.SnapshotVersion >= data.SnapshotVersion {
				data.SnapshotVersion = tc.SnapshotVersion
			}
			s.targets.UpdateQueryData(data)

			for _, key := range tc.AddedDocs {
				allocatedTouchedKeys[key] = true
			}
			for _, key := range tc.ModifiedDocs {
				allocatedTouchedKeys[key] = true
			}
			s.targets.AddMatchingKeys(append(append([]localstore.DocumentKey{}, tc.AddedDocs...), tc.ModifiedDocs...), targetID)
			for _, key := range tc.AddedDocs {
				s.refs.AddReference(reference.SourceTarget, int64(targetID), key)
			}
			for _, key := range tc.ModifiedDocs {
				s.refs.AddReference(reference.SourceTarget, int64(targetID), key)
			}

			s.targets.RemoveMatchingKeys(tc.RemovedDocs, targetID)
			for _, key := range tc.RemovedDocs {
				s.refs.RemoveReference(reference.SourceTarget, int64(targetID), key)
				keysToSweep = append(keysToSweep, key)
			}
		}

		var changedKeys []localstore.DocumentKey
		for key, update := range event.DocumentUpdates {
			if !allocatedTouchedKeys[key] {
				// Orphan rule: discard silently.
				continue
			}
			existing, exists := s.remoteCache.Get(key)
			existedBefore[key] = exists && existing.Type == localstore.DocumentTypeDocument
			apply := !exists ||
				update.Version.Compare(existing.Version) > 0 ||
				(update.Version == existing.Version && update.Upgrades(existing, exists))
			if !apply {
				continue
			}
			s.remoteCache.Add(update)
			changedKeys = append(changedKeys, key)
		}

		s.lastRemoteSnapshotVersion = event.SnapshotVersion

		if s.eager {
			s.collector.Sweep(s.refs, s.remoteCache, keysToSweep)
		}

		changes := s.view.GetDocuments(changedKeys)
		return RemoteEventResult{Changes: changes, ChangeSet: buildChangeSet(existedBefore, changes)}, nil
	})
}

// AcknowledgeBatch commits a server-acknowledged batch's values to the
// RemoteDocumentCache and removes it from the head of the queue.
func (s *LocalStore) AcknowledgeBatch(result localstore.AcknowledgeBatchResult) (*localstore.DocumentMap, error) {
	return withTransaction(func() (*localstore.DocumentMap, error) {
		batch := result.Batch

		// Remove from the head of the queue first: AcknowledgeBatch validates
		// batch is the head, and must fail before any other component is
		// touched so a non-head ack leaves the RemoteDocumentCache untouched.
		if err := s.queue.AcknowledgeBatch(batch, result.StreamToken); err != nil {
			return nil, localstore.NewError(localstore.PreconditionViolation, err, batch.BatchID)
		}

		for i, m := range batch.Mutations {
			if i >= len(result.MutationResults) {
				break
			}
			mr := result.MutationResults[i]
			if !mr.HasValue {
				continue
			}
			existing, exists := s.remoteCache.Get(m.Key)
			if exists && result.CommitVersion.Compare(existing.Version) <= 0 {
				// A newer remote event already superseded this ack; hold it.
				continue
			}
			var doc localstore.MaybeDocument
			if mr.IsNoDocument {
				doc = localstore.NewNoDocument(m.Key, result.CommitVersion, false)
			} else {
				doc = localstore.NewDocument(m.Key, result.CommitVersion, mr.Fields, false)
			}
			s.remoteCache.Add(doc)
		}

		keys := batch.Keys()
		for _, key := range keys {
			s.refs.RemoveReference(reference.SourceMutation, batch.BatchID, key)
		}
		if s.eager {
			s.collector.Sweep(s.refs, s.remoteCache, keys)
		}
		return s.view.GetDocuments(keys), nil
	})
}

// RejectBatch drops batchId without writing anything to the
// RemoteDocumentCache; its overlay effect vanishes.
func (s *LocalStore) RejectBatch(batchID int64) (*localstore.DocumentMap, error) {
	return withTransaction(func() (*localstore.DocumentMap, error) {
		batch, ok := s.queue.LookupBatch(batchID)
		if !ok {
			return nil, localstore.NewError(localstore.PreconditionViolation, nil, batchID)
		}
		if err := s.queue.RemoveBatch(batch); err != nil {
			return nil, localstore.NewError(localstore.PreconditionViolation, err, batchID)
		}
		keys := batch.Keys()
		for _, key := range keys {
			s.refs.RemoveReference(reference.SourceMutation, batch.BatchID, key)
		}
		if s.eager {
			s.collector.Sweep(s.refs, s.remoteCache, keys)
		}
		return s.view.GetDocuments(keys), nil
	})
}

// AllocateQuery looks up an existing target registration for q by canonical
// representation, reusing and reactivating it if present, or allocates a
// fresh target id.
func (s *LocalStore) AllocateQuery(q query.Query) (targetcache.QueryData, error) {
	return withTransaction(func() (targetcache.QueryData, error) {
		if data, ok := s.targets.GetQueryData(q); ok {
			if !data.Active {
				s.targets.AddQueryData(data)
			}
			return data, nil
		}
		data := targetcache.QueryData{
			TargetID:        s.targets.AllocateTargetID(),
			Query:           q,
			Purpose:         targetcache.PurposeListen,
			SnapshotVersion: localstore.MinSnapshotVersion,
		}
		s.targets.AddQueryData(data)
		return data, nil
	})
}

// ReleaseQuery removes a target's matching-key and local-view references;
// under eager GC the QueryData is deleted outright, under deferred GC it is
// marked inactive, preserving ResumeToken and SnapshotVersion.
func (s *LocalStore) ReleaseQuery(q query.Query) error {
	_, err := withTransaction(func() (struct{}, error) {
		data, ok := s.targets.GetQueryData(q)
		if !ok {
			return struct{}{}, localstore.NewError(localstore.PreconditionViolation, nil, q.CanonicalID())
		}
		matching := s.targets.GetMatchingKeysForTargetID(data.TargetID)
		keys := keySlice(matching)
		s.targets.RemoveMatchingKeys(keys, data.TargetID)
		for _, key := range keys {
			s.refs.RemoveReference(reference.SourceTarget, int64(data.TargetID), key)
		}
		s.refs.RemoveReferencesForID(reference.SourceLocalView, int64(data.TargetID))

		if s.eager {
			s.targets.RemoveQueryData(data.TargetID)
		} else {
			s.targets.Deactivate(data.TargetID)
		}
		if s.eager {
			s.collector.Sweep(s.refs, s.remoteCache, keys)
		}
		return struct{}{}, nil
	})
	return err
}

// ExecuteQuery returns q's locally visible results, filtered to present
// Document variants.
func (s *LocalStore) ExecuteQuery(q query.Query) (*localstore.DocumentMap, error) {
	return withTransaction(func() (*localstore.DocumentMap, error) {
		return s.view.GetDocumentsMatchingQuery(q), nil
	})
}

// NotifyLocalViewChanges updates the local-view pin set: pins added keys,
// unpins removed keys, per listener target.
func (s *LocalStore) NotifyLocalViewChanges(changes []LocalViewChanges) error {
	_, err := withTransaction(func() (struct{}, error) {
		var toSweep []localstore.DocumentKey
		for _, c := range changes {
			for _, key := range c.Added {
				s.refs.AddReference(reference.SourceLocalView, int64(c.TargetID), key)
			}
			for _, key := range c.Removed {
				s.refs.RemoveReference(reference.SourceLocalView, int64(c.TargetID), key)
				toSweep = append(toSweep, key)
			}
		}
		if s.eager {
			s.collector.Sweep(s.refs, s.remoteCache, toSweep)
		}
		return struct{}{}, nil
	})
	return err
}

// ReadDocument returns key's locally visible document, which is
// MaybeDocument's NoDocument variant when absent — readDocument never
// returns an error for a missing key.
func (s *LocalStore) ReadDocument(key localstore.DocumentKey) (localstore.MaybeDocument, error) {
	return withTransaction(func() (localstore.MaybeDocument, error) {
		return s.view.GetDocument(key), nil
	})
}

// GetRemoteDocumentKeys returns the set of keys currently matched by
// targetID.
func (s *LocalStore) GetRemoteDocumentKeys(targetID int) (map[localstore.DocumentKey]bool, error) {
	return withTransaction(func() (map[localstore.DocumentKey]bool, error) {
		return s.targets.GetMatchingKeysForTargetID(targetID), nil
	})
}

// Stats is a read-only diagnostic snapshot surfaced by the admin API: how
// many distinct keys are currently pinned, how many batches are queued, and
// whether garbage collection is running eager or deferred.
type Stats struct {
	ReferencedKeyCount int
	QueuedBatchCount   int
	EagerGC            bool
}

// ReferenceCountFor returns how many distinct (source, owner) pins key
// currently holds, for admin inspection of why a key hasn't been collected.
func (s *LocalStore) ReferenceCountFor(key localstore.DocumentKey) int {
	return s.refs.ReferenceCount(key)
}

// GetStats returns a snapshot of the coordinator's current bookkeeping.
func (s *LocalStore) GetStats() Stats {
	return Stats{
		ReferencedKeyCount: s.refs.ReferencedKeyCount(),
		QueuedBatchCount:   len(s.queue.AllBatches()),
		EagerGC:            s.eager,
	}
}
