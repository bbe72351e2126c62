package core

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/shardnode/txcore/core/state"
	"github.com/shardnode/txcore/core/types"
	"github.com/shardnode/txcore/core/vm"
	"github.com/shardnode/txcore/tracing"
)

var (
	errTrapDepth       = errors.New("too many nested interpreter requests")
	errUnsupportedTrap = errors.New("unsupported interpreter request")
)

// serveTrap stages a nested request in a delta on top of the atomic overlay
// and returns the continuation the interpreter resumes with. A nested
// creation that fails validation or staging is reported to the interpreter
// as unsuccessful and leaves the overlay untouched.
func (e *Engine) serveTrap(parent *ExecutionContext, atomic *state.Overlay, trap *vm.Trap) (*vm.Continuation, error) {
	if trap.Kind != vm.TrapCreate {
		return nil, fmt.Errorf("%w: %s", errUnsupportedTrap, trap.Kind)
	}
	failed := &vm.Continuation{ID: trap.ID}
	logger := e.log.New("tx", parent.TxHash(), "trap", uint64(trap.ID), "caller", trap.Caller)

	value := types.Amount{}
	if trap.Value != nil {
		wei, overflow := uint256.FromBig(trap.Value.ToInt())
		if overflow || trap.Value.ToInt().Sign() < 0 {
			logger.Debug("Nested creation value out of range", "value", trap.Value)
			return failed, nil
		}
		v, err := types.FromWei(wei)
		if err != nil {
			logger.Debug("Nested creation value out of range", "value", trap.Value)
			return failed, nil
		}
		value = v
	}
	code := vm.StripEvmPrefix(trap.Code)
	nested := newNestedContext(parent, trap.Caller, value, code, uint64(trap.GasLimit))

	delta := atomic.Clone()
	if !delta.Exists(trap.Caller) {
		logger.Debug("Nested creation from unknown account")
		return failed, nil
	}
	if status, ok := CheckAmount(nested, delta.GetBalance(trap.Caller)); !ok {
		logger.Debug("Nested creation rejected", "status", status)
		return failed, nil
	}
	if status, ok := CheckGasLimit(nested); !ok {
		logger.Debug("Nested creation rejected", "status", status)
		return failed, nil
	}

	var addr common.Address
	if trap.Salt != nil {
		addr = crypto.CreateAddress2(trap.Caller, *trap.Salt, crypto.Keccak256(code))
	} else {
		addr = delta.GetAddressForContract(trap.Caller, types.TxVersionEvm)
	}
	if err := nested.SetContractAddress(addr); err != nil {
		return nil, err
	}
	switch {
	case delta.Exists(addr) && len(delta.GetCode(addr)) > 0:
		logger.Debug("Nested creation collides with a contract", "addr", addr)
		return failed, nil
	case !delta.Exists(addr) && !delta.AddAccountAtomic(addr):
		return failed, nil
	}
	if !delta.TransferBalanceAtomic(trap.Caller, addr, value) {
		return failed, nil
	}
	if !delta.IncreaseNonceAtomic(trap.Caller, tracing.NonceChangeNestedCreate) {
		return failed, nil
	}
	delta.CommitAtomics()
	logger.Debug("Nested contract staged", "addr", addr, "value", value)
	return &vm.Continuation{ID: trap.ID, Succeeded: true, Address: &addr}, nil
}
