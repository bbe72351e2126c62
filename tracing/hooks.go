package tracing

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type (
	// BalanceChangeHook is called when the balance of an account changes in
	// any state layer. Values are in Qa.
	BalanceChangeHook = func(addr common.Address, prev, new *uint256.Int, reason BalanceChangeReason)

	// NonceChangeHook is called when the nonce of an account changes.
	NonceChangeHook = func(addr common.Address, prev, new uint64, reason NonceChangeReason)
)

// Hooks observe state changes made during execution. Nil hooks are skipped.
// Changes made inside an attempt that is later rolled back are reported too.
type Hooks struct {
	OnBalanceChange BalanceChangeHook
	OnNonceChange   NonceChangeHook
}

func (h *Hooks) BalanceChanged(addr common.Address, prev, new *uint256.Int, reason BalanceChangeReason) {
	if h != nil && h.OnBalanceChange != nil {
		h.OnBalanceChange(addr, prev, new, reason)
	}
}

func (h *Hooks) NonceChanged(addr common.Address, prev, new uint64, reason NonceChangeReason) {
	if h != nil && h.OnNonceChange != nil {
		h.OnNonceChange(addr, prev, new, reason)
	}
}
