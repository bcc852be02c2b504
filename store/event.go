package store

import (
	localstore "github.com/sharedcode/localstore"
)

// TargetChange is one target's delta within a RemoteEvent.
type TargetChange struct {
	ResumeToken     []byte
	SnapshotVersion localstore.SnapshotVersion
	CurrentStatus   bool
	AddedDocs       []localstore.DocumentKey
	ModifiedDocs    []localstore.DocumentKey
	RemovedDocs     []localstore.DocumentKey
}

// RemoteEvent is the input to applyRemoteEvent. The
// LocalStore must tolerate TargetChanges referring to unknown targetIds
// (the orphan rule).
type RemoteEvent struct {
	SnapshotVersion      localstore.SnapshotVersion
	TargetChanges        map[int]TargetChange
	DocumentUpdates      map[localstore.DocumentKey]localstore.MaybeDocument
	LimboDocumentChanges map[localstore.DocumentKey]bool
}

// LocalViewChanges is one listener's pin delta, the input to
// notifyLocalViewChanges.
type LocalViewChanges struct {
	TargetID int
	Added    []localstore.DocumentKey
	Removed  []localstore.DocumentKey
}
