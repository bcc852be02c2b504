package store

import (
	"context"
	"testing"
	"time"

	localstore "github.com/sharedcode/localstore"
	"github.com/sharedcode/localstore/gc"
	"github.com/sharedcode/localstore/query"
)

func ackResultFor(batchID int64, mutations []localstore.Mutation, commitVersion localstore.SnapshotVersion, results []localstore.MutationResult) localstore.AcknowledgeBatchResult {
	return localstore.AcknowledgeBatchResult{
		Batch: localstore.MutationBatch{
			BatchID:        batchID,
			LocalWriteTime: time.Unix(0, 0),
			Mutations:      mutations,
		},
		CommitVersion:   commitVersion,
		MutationResults: results,
	}
}

// Scenario 1: Set then ack, deferred GC.
func TestScenarioSetThenAckDeferredGC(t *testing.T) {
	s := New(Config{GC: gc.Deferred{}})
	key := localstore.NewDocumentKey("foo/bar")
	mutations := []localstore.Mutation{localstore.SetMutation(key, localstore.Fields{"foo": "bar"}, localstore.NoPrecondition)}

	wr, err := s.WriteLocally(mutations)
	if err != nil {
		t.Fatalf("WriteLocally: %v", err)
	}
	doc, _ := wr.Changes.Get(key)
	if !doc.IsDocument() || !doc.HasLocalMutations || doc.Fields["foo"] != "bar" {
		t.Fatalf("expected local overlay doc, got %+v", doc)
	}

	ack := ackResultFor(wr.BatchID, mutations, 0, []localstore.MutationResult{{HasValue: true, Fields: localstore.Fields{"foo": "bar"}}})
	if _, err := s.AcknowledgeBatch(ack); err != nil {
		t.Fatalf("AcknowledgeBatch: %v", err)
	}

	got, err := s.ReadDocument(key)
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if !got.IsDocument() || got.HasLocalMutations || got.Version != 0 {
		t.Fatalf("expected Doc(v0, local=false), got %+v", got)
	}
}

type fakeArchiver struct {
	archived []localstore.MaybeDocument
}

func (f *fakeArchiver) Archive(doc localstore.MaybeDocument) error {
	f.archived = append(f.archived, doc)
	return nil
}

func TestRunDeferredSweepArchivesBeforeRemoving(t *testing.T) {
	arch := &fakeArchiver{}
	s := New(Config{GC: gc.Deferred{}, Archiver: arch})
	key := localstore.NewDocumentKey("foo/bar")
	mutations := []localstore.Mutation{localstore.SetMutation(key, localstore.Fields{"foo": "bar"}, localstore.NoPrecondition)}

	wr, err := s.WriteLocally(mutations)
	if err != nil {
		t.Fatalf("WriteLocally: %v", err)
	}
	ack := ackResultFor(wr.BatchID, mutations, 0, []localstore.MutationResult{{HasValue: true, Fields: localstore.Fields{"foo": "bar"}}})
	if _, err := s.AcknowledgeBatch(ack); err != nil {
		t.Fatalf("AcknowledgeBatch: %v", err)
	}

	removed, errs := s.RunDeferredSweep(context.Background(), []localstore.DocumentKey{key})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(removed) != 1 || removed[0] != key {
		t.Fatalf("expected sweep to remove %v, got %v", key, removed)
	}
	if len(arch.archived) != 1 {
		t.Fatalf("expected document to be archived, got %v", arch.archived)
	}
}

func TestRunDeferredSweepIsNoopUnderEagerGC(t *testing.T) {
	s := New(Config{GC: gc.Eager{}})
	key := localstore.NewDocumentKey("foo/bar")
	removed, errs := s.RunDeferredSweep(context.Background(), []localstore.DocumentKey{key})
	if removed != nil || errs != nil {
		t.Fatalf("expected no-op under eager GC, got removed=%v errs=%v", removed, errs)
	}
}

// Scenario 2: Set then ack, eager GC.
func TestScenarioSetThenAckEagerGC(t *testing.T) {
	s := New(Config{GC: gc.Eager{}})
	key := localstore.NewDocumentKey("foo/bar")
	mutations := []localstore.Mutation{localstore.SetMutation(key, localstore.Fields{"foo": "bar"}, localstore.NoPrecondition)}

	wr, err := s.WriteLocally(mutations)
	if err != nil {
		t.Fatalf("WriteLocally: %v", err)
	}

	ack := ackResultFor(wr.BatchID, mutations, 0, []localstore.MutationResult{{HasValue: true, Fields: localstore.Fields{"foo": "bar"}}})
	if _, err := s.AcknowledgeBatch(ack); err != nil {
		t.Fatalf("AcknowledgeBatch: %v", err)
	}

	got, err := s.ReadDocument(key)
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if got.IsDocument() {
		t.Fatalf("expected document to vanish under eager GC with no target pin, got %+v", got)
	}
}

// Scenario 3: blind patch suppression.
func TestScenarioBlindPatchSuppression(t *testing.T) {
	s := New(Config{GC: gc.Deferred{}})
	key := localstore.NewDocumentKey("foo/bar")
	mutations := []localstore.Mutation{localstore.PatchMutation(key, []string{"foo"}, localstore.Fields{"foo": "bar"}, localstore.NoPrecondition)}

	wr, err := s.WriteLocally(mutations)
	if err != nil {
		t.Fatalf("WriteLocally: %v", err)
	}
	doc, _ := wr.Changes.Get(key)
	if doc.IsDocument() {
		t.Fatalf("expected blind patch to report absence, got %+v", doc)
	}

	got, _ := s.ReadDocument(key)
	if got.IsDocument() {
		t.Fatalf("expected absence before ack, got %+v", got)
	}

	ack := ackResultFor(wr.BatchID, mutations, 1, []localstore.MutationResult{{HasValue: false}})
	if _, err := s.AcknowledgeBatch(ack); err != nil {
		t.Fatalf("AcknowledgeBatch: %v", err)
	}

	got, _ = s.ReadDocument(key)
	if got.IsDocument() {
		t.Fatalf("expected absence after ack of a patch that produced no value, got %+v", got)
	}
}

// Scenario 4: held ack.
func TestScenarioHeldAck(t *testing.T) {
	s := New(Config{GC: gc.Deferred{}})
	fooQ := query.NewCollectionQuery("foo", nil)
	if _, err := s.AllocateQuery(fooQ); err != nil {
		t.Fatalf("AllocateQuery: %v", err)
	}

	fooBar := localstore.NewDocumentKey("foo/bar")
	fooMutations := []localstore.Mutation{localstore.SetMutation(fooBar, localstore.Fields{"foo": "bar"}, localstore.NoPrecondition)}
	wrFoo, err := s.WriteLocally(fooMutations)
	if err != nil {
		t.Fatalf("WriteLocally(foo/bar): %v", err)
	}

	ackFoo := ackResultFor(wrFoo.BatchID, fooMutations, 1, []localstore.MutationResult{{HasValue: true, Fields: localstore.Fields{"foo": "bar"}}})
	if _, err := s.AcknowledgeBatch(ackFoo); err != nil {
		t.Fatalf("AcknowledgeBatch(foo/bar): %v", err)
	}

	barBaz := localstore.NewDocumentKey("bar/baz")
	barMutations := []localstore.Mutation{localstore.SetMutation(barBaz, localstore.Fields{"bar": "baz"}, localstore.NoPrecondition)}
	wrBar, err := s.WriteLocally(barMutations)
	if err != nil {
		t.Fatalf("WriteLocally(bar/baz): %v", err)
	}
	if _, err := s.RejectBatch(wrBar.BatchID); err != nil {
		t.Fatalf("RejectBatch: %v", err)
	}

	event := RemoteEvent{
		SnapshotVersion: 2,
		TargetChanges: map[int]TargetChange{
			2: {ModifiedDocs: []localstore.DocumentKey{fooBar}},
		},
		DocumentUpdates: map[localstore.DocumentKey]localstore.MaybeDocument{
			fooBar: localstore.NewDocument(fooBar, 2, localstore.Fields{"it": "changed"}, false),
		},
	}
	if _, err := s.ApplyRemoteEvent(event); err != nil {
		t.Fatalf("ApplyRemoteEvent: %v", err)
	}

	got, _ := s.ReadDocument(fooBar)
	if !got.IsDocument() || got.Version != 2 || got.Fields["it"] != "changed" {
		t.Fatalf("expected foo/bar = Doc(v2, {it:changed}), got %+v", got)
	}

	gotBar, _ := s.ReadDocument(barBaz)
	if gotBar.IsDocument() {
		t.Fatalf("expected bar/baz to remain absent after reject, got %+v", gotBar)
	}
}

// Scenario 5: resume-token persistence.
func TestScenarioResumeTokenPersistence(t *testing.T) {
	s := New(Config{GC: gc.Deferred{}})
	q := query.NewCollectionQuery("foo", nil)
	data, err := s.AllocateQuery(q)
	if err != nil {
		t.Fatalf("AllocateQuery: %v", err)
	}

	if _, err := s.ApplyRemoteEvent(RemoteEvent{
		SnapshotVersion: 1000,
		TargetChanges: map[int]TargetChange{
			data.TargetID: {ResumeToken: []byte("T1"), SnapshotVersion: 1000, CurrentStatus: true},
		},
	}); err != nil {
		t.Fatalf("ApplyRemoteEvent 1: %v", err)
	}

	if _, err := s.ApplyRemoteEvent(RemoteEvent{
		SnapshotVersion: 2000,
		TargetChanges: map[int]TargetChange{
			data.TargetID: {ResumeToken: nil, SnapshotVersion: 2000, CurrentStatus: true},
		},
	}); err != nil {
		t.Fatalf("ApplyRemoteEvent 2: %v", err)
	}

	if err := s.ReleaseQuery(q); err != nil {
		t.Fatalf("ReleaseQuery: %v", err)
	}

	reallocated, err := s.AllocateQuery(q)
	if err != nil {
		t.Fatalf("AllocateQuery (2nd): %v", err)
	}
	if string(reallocated.ResumeToken) != "T1" {
		t.Fatalf("expected resume token T1 to survive release/reallocate, got %q", reallocated.ResumeToken)
	}
}

// Scenario 6: orphan discard.
func TestScenarioOrphanDiscard(t *testing.T) {
	s := New(Config{GC: gc.Deferred{}})
	key := localstore.NewDocumentKey("foo/bar")

	if _, err := s.ApplyRemoteEvent(RemoteEvent{
		SnapshotVersion: 1,
		TargetChanges: map[int]TargetChange{
			321: {AddedDocs: []localstore.DocumentKey{key}},
		},
		DocumentUpdates: map[localstore.DocumentKey]localstore.MaybeDocument{
			key: localstore.NewDocument(key, 1, localstore.Fields{}, false),
		},
	}); err != nil {
		t.Fatalf("ApplyRemoteEvent: %v", err)
	}

	got, _ := s.ReadDocument(key)
	if got.IsDocument() {
		t.Fatalf("expected orphan update to be discarded, got %+v", got)
	}
}

// P1: every pending batch's keys are in the reference set.
func TestInvariantP1MutationKeysReferenced(t *testing.T) {
	s := New(Config{GC: gc.Deferred{}})
	key := localstore.NewDocumentKey("rooms/a")
	if _, err := s.WriteLocally([]localstore.Mutation{localstore.SetMutation(key, localstore.Fields{}, localstore.NoPrecondition)}); err != nil {
		t.Fatalf("WriteLocally: %v", err)
	}
	if !s.refs.IsReferenced(key) {
		t.Fatalf("expected key touched by a pending batch to be referenced")
	}
}

// P2: every active target's matching keys are in the reference set.
func TestInvariantP2TargetKeysReferenced(t *testing.T) {
	s := New(Config{GC: gc.Deferred{}})
	q := query.NewCollectionQuery("rooms", nil)
	data, err := s.AllocateQuery(q)
	if err != nil {
		t.Fatalf("AllocateQuery: %v", err)
	}
	key := localstore.NewDocumentKey("rooms/a")
	if _, err := s.ApplyRemoteEvent(RemoteEvent{
		SnapshotVersion: 1,
		TargetChanges:   map[int]TargetChange{data.TargetID: {AddedDocs: []localstore.DocumentKey{key}}},
		DocumentUpdates: map[localstore.DocumentKey]localstore.MaybeDocument{key: localstore.NewDocument(key, 1, localstore.Fields{}, false)},
	}); err != nil {
		t.Fatalf("ApplyRemoteEvent: %v", err)
	}
	if !s.refs.IsReferenced(key) {
		t.Fatalf("expected key matched by an active target to be referenced")
	}
}

// P6: hasLocalMutations iff a pending batch touches the key.
func TestInvariantP6HasLocalMutations(t *testing.T) {
	s := New(Config{GC: gc.Deferred{}})
	key := localstore.NewDocumentKey("rooms/a")
	got, _ := s.ReadDocument(key)
	if got.HasLocalMutations {
		t.Fatalf("expected no local mutations before any write")
	}

	wr, err := s.WriteLocally([]localstore.Mutation{localstore.SetMutation(key, localstore.Fields{}, localstore.NoPrecondition)})
	if err != nil {
		t.Fatalf("WriteLocally: %v", err)
	}
	got, _ = s.ReadDocument(key)
	if !got.HasLocalMutations {
		t.Fatalf("expected local mutations flag once a batch touches the key")
	}

	if _, err := s.RejectBatch(wr.BatchID); err != nil {
		t.Fatalf("RejectBatch: %v", err)
	}
	got, _ = s.ReadDocument(key)
	if got.HasLocalMutations {
		t.Fatalf("expected local mutations flag to clear after reject")
	}
}

// R1: writeLocally followed by rejectBatch returns to the pre-write state.
func TestRoundTripR1WriteThenReject(t *testing.T) {
	s := New(Config{GC: gc.Deferred{}})
	key := localstore.NewDocumentKey("rooms/a")

	before, _ := s.ReadDocument(key)
	wr, err := s.WriteLocally([]localstore.Mutation{localstore.SetMutation(key, localstore.Fields{"x": 1}, localstore.NoPrecondition)})
	if err != nil {
		t.Fatalf("WriteLocally: %v", err)
	}
	if _, err := s.RejectBatch(wr.BatchID); err != nil {
		t.Fatalf("RejectBatch: %v", err)
	}
	after, _ := s.ReadDocument(key)
	if before.Type != after.Type || before.HasLocalMutations != after.HasLocalMutations || before.Version != after.Version {
		t.Fatalf("expected reject to restore pre-write state: before=%+v after=%+v", before, after)
	}
}

// R2: allocateQuery then releaseQuery under deferred GC preserves resume state.
func TestRoundTripR2AllocateRelease(t *testing.T) {
	s := New(Config{GC: gc.Deferred{}})
	q := query.NewCollectionQuery("rooms", nil)
	first, err := s.AllocateQuery(q)
	if err != nil {
		t.Fatalf("AllocateQuery: %v", err)
	}
	if _, err := s.ApplyRemoteEvent(RemoteEvent{
		SnapshotVersion: 5,
		TargetChanges:   map[int]TargetChange{first.TargetID: {ResumeToken: []byte("abc"), SnapshotVersion: 5}},
	}); err != nil {
		t.Fatalf("ApplyRemoteEvent: %v", err)
	}
	if err := s.ReleaseQuery(q); err != nil {
		t.Fatalf("ReleaseQuery: %v", err)
	}
	second, err := s.AllocateQuery(q)
	if err != nil {
		t.Fatalf("AllocateQuery (2nd): %v", err)
	}
	if string(second.ResumeToken) != "abc" || second.SnapshotVersion != 5 {
		t.Fatalf("expected resumeToken/snapshotVersion preserved, got %+v", second)
	}
}

func TestRejectNonHeadBatchIsPreconditionViolation(t *testing.T) {
	s := New(Config{GC: gc.Deferred{}})
	key := localstore.NewDocumentKey("rooms/a")
	_, _ = s.WriteLocally([]localstore.Mutation{localstore.SetMutation(key, localstore.Fields{}, localstore.NoPrecondition)})
	wr2, _ := s.WriteLocally([]localstore.Mutation{localstore.SetMutation(key, localstore.Fields{}, localstore.NoPrecondition)})

	_, err := s.RejectBatch(wr2.BatchID)
	if err == nil {
		t.Fatalf("expected rejecting a non-head batch to fail")
	}
	lsErr, ok := err.(localstore.Error)
	if !ok || lsErr.Code != localstore.PreconditionViolation {
		t.Fatalf("expected a PreconditionViolation error, got %v", err)
	}
}

// Acknowledging a batch that is not at the head of the queue must fail
// before any write reaches the RemoteDocumentCache, mirroring
// TestRejectNonHeadBatchIsPreconditionViolation: AcknowledgeBatch has the
// same atomicity requirement RejectBatch already honors.
func TestAcknowledgeNonHeadBatchIsPreconditionViolation(t *testing.T) {
	s := New(Config{GC: gc.Deferred{}})
	key := localstore.NewDocumentKey("rooms/a")
	mutations1 := []localstore.Mutation{localstore.SetMutation(key, localstore.Fields{"x": 1}, localstore.NoPrecondition)}
	mutations2 := []localstore.Mutation{localstore.SetMutation(key, localstore.Fields{"x": 2}, localstore.NoPrecondition)}
	_, _ = s.WriteLocally(mutations1)
	wr2, _ := s.WriteLocally(mutations2)

	before, _ := s.ReadDocument(key)

	ack := ackResultFor(wr2.BatchID, mutations2, 5, []localstore.MutationResult{{HasValue: true, Fields: localstore.Fields{"x": 2}}})
	_, err := s.AcknowledgeBatch(ack)
	if err == nil {
		t.Fatalf("expected acknowledging a non-head batch to fail")
	}
	lsErr, ok := err.(localstore.Error)
	if !ok || lsErr.Code != localstore.PreconditionViolation {
		t.Fatalf("expected a PreconditionViolation error, got %v", err)
	}

	after, _ := s.ReadDocument(key)
	if before.Type != after.Type || before.Version != after.Version || before.HasLocalMutations != after.HasLocalMutations {
		t.Fatalf("expected a failed ack to leave the RemoteDocumentCache untouched: before=%+v after=%+v", before, after)
	}
}

func TestReleaseUnallocatedQueryIsPreconditionViolation(t *testing.T) {
	s := New(Config{GC: gc.Deferred{}})
	err := s.ReleaseQuery(query.NewCollectionQuery("never-allocated", nil))
	if err == nil {
		t.Fatalf("expected releasing an unallocated query to fail")
	}
	lsErr, ok := err.(localstore.Error)
	if !ok || lsErr.Code != localstore.PreconditionViolation {
		t.Fatalf("expected a PreconditionViolation error, got %v", err)
	}
}
