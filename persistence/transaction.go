// Package persistence provides the transaction boundary the LocalStore
// coordinator opens around every public mutating operation: exactly one
// transaction encloses all component writes and commits before the
// change-set is returned; nested transactions are forbidden.
package persistence

import (
	"errors"

	localstore "github.com/sharedcode/localstore"
)

// Transaction is the minimal begin/commit/rollback boundary the coordinator
// drives around each operation.
type Transaction interface {
	Begin() error
	Commit() error
	Rollback() error
}

// Session is an in-memory Transaction: the in-memory storage regime has no
// I/O to roll back, so Commit and Rollback behave identically (both just
// end the session), but
// Begin still refuses to nest, preserving the one-transaction-per-operation
// rule uniformly across regimes.
type Session struct {
	ID      localstore.UUID
	Started bool
}

// NewSession returns a fresh, unstarted transaction session.
func NewSession() *Session {
	return &Session{ID: localstore.NewUUID()}
}

// Begin starts the session. It errors if called while already started,
// enforcing that nested transactions are forbidden.
func (s *Session) Begin() error {
	if s.Started {
		return errors.New("persistence: transaction already started (nested transactions are forbidden)")
	}
	s.Started = true
	return nil
}

// Commit ends the session successfully.
func (s *Session) Commit() error {
	if !s.Started {
		return errors.New("persistence: transaction not started")
	}
	s.Started = false
	return nil
}

// Rollback ends the session, discarding its effect. For the in-memory
// regime there is nothing to undo at the storage layer; callers that need
// true rollback of in-process state must snapshot before mutating and
// restore on a Rollback call, which the coordinator does by only applying
// component writes after a Begin succeeds and never partially.
func (s *Session) Rollback() error {
	if !s.Started {
		return errors.New("persistence: transaction not started")
	}
	s.Started = false
	return nil
}
