package vm

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoBackend is returned when no interpreter is configured for a kind.
var ErrNoBackend = errors.New("no interpreter backend")

// Backend is an out-of-process interpreter. Call may block; the Invoker
// bounds it in time.
type Backend interface {
	// Kind returns the contract kind the backend executes.
	Kind() Kind

	// Name returns a short human identifier ("evm-rpc", "scilla-rpc" …).
	Name() string

	// Call runs one request and returns the structured result.
	Call(ctx context.Context, args *CallArgs) (*Result, error)

	// Reset drops the connection to the interpreter so that the next call
	// starts from a fresh one.
	Reset() error
}

// Backends dispatches calls to the backend configured for each kind.
type Backends struct {
	byKind map[Kind]Backend
}

// NewBackends registers the given backends. A later backend of the same
// kind replaces an earlier one.
func NewBackends(list ...Backend) *Backends {
	b := &Backends{byKind: make(map[Kind]Backend, len(list))}
	for _, be := range list {
		if be != nil {
			b.byKind[be.Kind()] = be
		}
	}
	return b
}

// For returns the backend serving kind.
func (b *Backends) For(kind Kind) (Backend, error) {
	if b != nil {
		if be, ok := b.byKind[kind]; ok {
			return be, nil
		}
	}
	return nil, fmt.Errorf("%w for %v", ErrNoBackend, kind)
}
