package core

import (
	"context"
	"fmt"

	"github.com/shardnode/txcore/core/state"
	"github.com/shardnode/txcore/core/types"
	"github.com/shardnode/txcore/core/vm"
	"github.com/shardnode/txcore/params"
)

// TxExecutor is an abstraction over a transaction execution backend. It hides
// the engine and its interpreters behind the interface the StateProcessor
// uses.
type TxExecutor interface {
	// Name returns a short human identifier.
	Name() string

	// ExecuteTx runs tx against the executor's state. A rejected transaction
	// returns an error that StatusOf maps to its status; the state is then
	// unchanged.
	ExecuteTx(ctx context.Context, tx *types.Transaction, header *types.Header) (*ExecutionResult, error)
}

var _ TxExecutor = (*Engine)(nil)

// NewTxExecutor constructs an engine that owns its invoker and session
// registry. Close releases the invoker's workers.
func NewTxExecutor(chain *params.ChainConfig, db *state.StateDB, backends *vm.Backends, vmConfig *vm.Config, config *Config) (*Engine, error) {
	invoker, err := vm.NewInvoker(backends, vmConfig)
	if err != nil {
		return nil, fmt.Errorf("tx executor: %w", err)
	}
	e := NewEngine(chain, db, invoker, vm.NewSessions(), config)
	e.ownsInvoker = true
	return e, nil
}

// Sessions returns the registry interpreters read state through.
func (e *Engine) Sessions() *vm.Sessions { return e.sessions }

// Close stops the invoker if the engine created it.
func (e *Engine) Close() {
	if e.ownsInvoker {
		e.invoker.Close()
	}
}
