package state

import (
	"errors"
	"time"
)

var (
	ErrAttemptReleased = errors.New("attempt already released")
	ErrAttemptFinished = errors.New("attempt already finished")
)

// Attempt is the exclusively owned state of one execution attempt. It holds
// the write lock of its StateDB until Release, so at most one attempt per
// store is in flight.
//
// Two layers are stacked on the durable store: the durable view, which
// takes gas deposits, refunds and the sender nonce, and the atomic overlay
// on top of it, which stages the effects of the execution itself. Finish
// writes the durable view into the store; an attempt that is released
// without Finish leaves the store untouched.
type Attempt struct {
	db      *StateDB
	durable *Overlay
	atomic  *Overlay

	start    time.Time
	finished bool
	released bool
}

// Begin starts an attempt, blocking while another one is in flight.
func (s *StateDB) Begin() *Attempt {
	s.mu.Lock()
	return s.newAttempt()
}

// TryBegin starts an attempt if no other attempt is in flight.
func (s *StateDB) TryBegin() (*Attempt, bool) {
	if !s.mu.TryLock() {
		return nil, false
	}
	return s.newAttempt(), true
}

func (s *StateDB) newAttempt() *Attempt {
	durable := newOverlay(s, s.hooks)
	return &Attempt{
		db:      s,
		durable: durable,
		atomic:  newOverlay(durable, s.hooks),
		start:   time.Now(),
	}
}

// Atomic returns the overlay that stages execution effects.
func (a *Attempt) Atomic() *Overlay { return a.atomic }

// Durable returns the durable view of the attempt: changes made here survive
// a rollback of the atomic overlay.
func (a *Attempt) Durable() *Overlay { return a.durable }

// CommitAtomics merges the atomic overlay into the durable view.
func (a *Attempt) CommitAtomics() { a.atomic.CommitAtomics() }

// DiscardAtomics drops the atomic overlay.
func (a *Attempt) DiscardAtomics() { a.atomic.DiscardAtomics() }

// Finish writes the durable view into the store's dirty layer. Changes still
// staged in the atomic overlay are dropped.
func (a *Attempt) Finish() error {
	if a.released {
		return ErrAttemptReleased
	}
	if a.finished {
		return ErrAttemptFinished
	}
	a.atomic.DiscardAtomics()
	a.durable.CommitAtomics()
	a.finished = true
	return nil
}

// Finished reports whether Finish was called.
func (a *Attempt) Finished() bool { return a.finished }

// Release ends the attempt and unlocks the store. It is safe to call more
// than once.
func (a *Attempt) Release() {
	if a.released {
		return
	}
	a.released = true
	a.atomic.DiscardAtomics()
	a.durable.DiscardAtomics()
	a.db.mu.Unlock()
	attemptTimer.UpdateSince(a.start)
}
