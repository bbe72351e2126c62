package vm

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shardnode/txcore/core/types"
)

// ErrMalformedResult is returned for interpreter responses that break the
// call contract.
var ErrMalformedResult = errors.New("malformed interpreter result")

// ExitKind is the top-level outcome of an interpreter run.
type ExitKind string

const (
	ExitSucceed ExitKind = "succeed"
	ExitRevert  ExitKind = "revert"
	ExitAbort   ExitKind = "abort"
	ExitTrap    ExitKind = "trap"
)

type ExitReason struct {
	Kind   ExitKind `json:"kind"`
	Reason string   `json:"reason,omitempty"`
}

// TrapKind is the kind of sub-request a trapped run asks the host to serve.
type TrapKind string

const (
	TrapCreate TrapKind = "create"
	TrapCall   TrapKind = "call"
)

// Trap is a nested request that has to be staged before the interpreter can
// continue. Value is in Wei and GasLimit in EVM units.
type Trap struct {
	ID       hexutil.Uint64 `json:"id"`
	Kind     TrapKind       `json:"kind"`
	Caller   common.Address `json:"caller"`
	Target   common.Address `json:"target,omitempty"`
	Value    *hexutil.Big   `json:"value"`
	Code     hexutil.Bytes  `json:"code,omitempty"`
	Salt     *common.Hash   `json:"salt,omitempty"`
	GasLimit hexutil.Uint64 `json:"gas_limit"`
}

// ApplyDelete removes the value held by an account.
type ApplyDelete struct {
	Address common.Address `json:"address"`
}

// ApplyModify carries the new state of one account. Balance and nonce are
// absolute values; balance is in Wei. Nil fields are left unchanged.
type ApplyModify struct {
	Address      common.Address           `json:"address"`
	Balance      *hexutil.Big             `json:"balance,omitempty"`
	Nonce        *hexutil.Big             `json:"nonce,omitempty"`
	Code         hexutil.Bytes            `json:"code,omitempty"`
	Storage      map[string]hexutil.Bytes `json:"storage,omitempty"`
	Deletions    []string                 `json:"deletions,omitempty"`
	ResetStorage bool                     `json:"reset_storage,omitempty"`
}

// Apply is one state change reported by the interpreter. Exactly one of the
// fields is set.
type Apply struct {
	Delete *ApplyDelete `json:"delete,omitempty"`
	Modify *ApplyModify `json:"modify,omitempty"`
}

// Result is the interpreter response. RemainingGas is in EVM units.
type Result struct {
	ExitReason   ExitReason     `json:"exit_reason"`
	RemainingGas hexutil.Uint64 `json:"remaining_gas"`
	ReturnValue  hexutil.Bytes  `json:"return_value,omitempty"`
	Logs         []*types.Log   `json:"logs,omitempty"`
	Apply        []Apply        `json:"apply,omitempty"`
	Trap         *Trap          `json:"trap,omitempty"`
}

// Succeeded reports whether the run completed successfully.
func (r *Result) Succeeded() bool { return r.ExitReason.Kind == ExitSucceed }

// Validate checks the structural invariants of a response.
func (r *Result) Validate() error {
	switch r.ExitReason.Kind {
	case ExitSucceed, ExitRevert, ExitAbort:
		if r.Trap != nil {
			return fmt.Errorf("%w: trap on %s exit", ErrMalformedResult, r.ExitReason.Kind)
		}
	case ExitTrap:
		if r.Trap == nil {
			return fmt.Errorf("%w: trap exit without trap", ErrMalformedResult)
		}
	default:
		return fmt.Errorf("%w: unknown exit kind %q", ErrMalformedResult, r.ExitReason.Kind)
	}
	for i, a := range r.Apply {
		if (a.Delete == nil) == (a.Modify == nil) {
			return fmt.Errorf("%w: apply %d must set exactly one of delete and modify", ErrMalformedResult, i)
		}
	}
	for i, l := range r.Logs {
		if l == nil {
			return fmt.Errorf("%w: log %d is null", ErrMalformedResult, i)
		}
	}
	return nil
}
