// Package gc implements the GarbageCollector component: two interchangeable
// strategies, invoked by the coordinator at well-defined hook points
// (post-write, post-ack, post-reject, post-remote-event, post-release,
// post-view-change), that decide when an unreferenced document leaves the
// RemoteDocumentCache.
package gc

import (
	"context"
	"sync"

	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/reference"
	"github.com/sharedcode/localstore/remotedoc"
)

// archiveConcurrency bounds how many documents RunWithArchive archives at
// once, via localstore.TaskRunner, so a large deferred sweep doesn't open
// one S3/Cassandra write per candidate simultaneously.
const archiveConcurrency = 8

// Collector is the GarbageCollector strategy interface. Sweep is called by
// the coordinator after every operation that could have unreferenced one
// or more keys; candidates lists the keys to check.
type Collector interface {
	Sweep(refs *reference.Set, cache remotedoc.Cache, candidates []localstore.DocumentKey)
}

// Eager removes a key from the RemoteDocumentCache the moment its
// reference count drops to zero.
type Eager struct{}

// Sweep implements Collector.
func (Eager) Sweep(refs *reference.Set, cache remotedoc.Cache, candidates []localstore.DocumentKey) {
	for _, key := range candidates {
		if !refs.IsReferenced(key) {
			cache.Remove(key)
		}
	}
}

// Deferred performs no removal on the hot path; callers invoke its Run
// method from an out-of-band sweep that consults reference counts (and,
// in the persistent regime, sequence numbers) to prune later.
type Deferred struct{}

// Sweep implements Collector as a no-op: deferred collection never removes
// anything on the hot path.
func (Deferred) Sweep(refs *reference.Set, cache remotedoc.Cache, candidates []localstore.DocumentKey) {
}

// Run performs an explicit deferred sweep over candidates, removing every
// unreferenced key from cache and returning the keys it removed.
func (Deferred) Run(refs *reference.Set, cache remotedoc.Cache, candidates []localstore.DocumentKey) []localstore.DocumentKey {
	var removed []localstore.DocumentKey
	for _, key := range candidates {
		if !refs.IsReferenced(key) {
			cache.Remove(key)
			removed = append(removed, key)
		}
	}
	return removed
}

// Archiver persists a document before a deferred sweep drops it from the
// RemoteDocumentCache, e.g. the persistent regime's S3-backed cold-archive
// tier. RunWithArchive collects its errors and returns them to the caller;
// they never block the sweep: a failed
// archive write must not leave an unreferenced document pinned forever.
type Archiver interface {
	Archive(doc localstore.MaybeDocument) error
}

// RunWithArchive behaves like Run but hands each removed document to arch
// before evicting it, so a persistent-regime deployment can recover a
// mistakenly-swept document within the archive's retention window. Archive
// writes for the unreferenced candidates run concurrently, bounded by a
// localstore.TaskRunner, since each is an independent network write; removal
// from cache happens after every archive attempt has finished.
func (d Deferred) RunWithArchive(ctx context.Context, refs *reference.Set, cache remotedoc.Cache, candidates []localstore.DocumentKey, arch Archiver) ([]localstore.DocumentKey, []error) {
	var unreferenced []localstore.DocumentKey
	for _, key := range candidates {
		if !refs.IsReferenced(key) {
			unreferenced = append(unreferenced, key)
		}
	}

	runner := localstore.NewTaskRunner(ctx, archiveConcurrency)
	var mu sync.Mutex
	var errs []error
	for _, key := range unreferenced {
		key := key
		runner.Go(func() error {
			doc, ok := cache.Get(key)
			if !ok {
				return nil
			}
			if err := arch.Archive(doc); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = runner.Wait()

	for _, key := range unreferenced {
		cache.Remove(key)
	}
	return unreferenced, errs
}
