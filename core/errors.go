package core

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shardnode/txcore/core/types"
	"github.com/shardnode/txcore/core/vm"
)

var (
	// ErrContractAddressSet is returned when the contract address of a
	// context is assigned twice.
	ErrContractAddressSet = errors.New("contract address already assigned")

	// ErrExecutionReverted is returned by Call and EstimateGas when the
	// interpreter did not succeed.
	ErrExecutionReverted = errors.New("execution reverted")
)

// StatusError is a rejected execution. No state was changed.
type StatusError struct {
	Status types.TxnStatus
	Reason string
}

func (e *StatusError) Error() string {
	if e.Reason == "" {
		return e.Status.String()
	}
	return fmt.Sprintf("%v: %s", e.Status, e.Reason)
}

func reject(status types.TxnStatus, format string, args ...any) *StatusError {
	return &StatusError{Status: status, Reason: fmt.Sprintf(format, args...)}
}

// StatusOf maps an error returned by this package to the status reported to
// clients.
func StatusOf(err error) types.TxnStatus {
	if err == nil {
		return types.TxnStatusNotPresent
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	switch {
	case errors.Is(err, types.ErrAmountOverflow), errors.Is(err, types.ErrGasLimitOverflow),
		errors.Is(err, types.ErrGasPriceOverflow):
		return types.TxnStatusMathError
	case errors.Is(err, vm.ErrTimedOut), errors.Is(err, vm.ErrCallFailed):
		return types.TxnStatusError
	}
	return types.TxnStatusError
}

// InvariantViolation is the panic value raised when an interpreter reports a
// state change outside the representable domain. The attempt is released
// without writing anything.
type InvariantViolation struct {
	Address common.Address
	Field   string
	Value   string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s of %x out of range: %s", v.Field, v.Address, v.Value)
}
