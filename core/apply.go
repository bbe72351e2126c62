package core

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/shardnode/txcore/core/state"
	"github.com/shardnode/txcore/core/types"
	"github.com/shardnode/txcore/core/vm"
)

// apply writes the state changes reported by a successful interpreter run
// into the atomic overlay. A change the overlay refuses yields a receipt
// error; the caller then discards the overlay.
//
// Values outside the representable domain are not recoverable and panic
// with an *InvariantViolation.
func (e *Engine) apply(ectx *ExecutionContext, atomic *state.Overlay, changes []vm.Apply) (types.ReceiptError, bool) {
	for _, change := range changes {
		if change.Delete != nil {
			addr := change.Delete.Address
			if atomic.Exists(addr) {
				atomic.SetBalanceAtomic(addr, types.Amount{})
			}
			atomic.MarkUpdated(addr)
			continue
		}
		m := change.Modify
		if !atomic.Exists(m.Address) && !atomic.AddAccountAtomic(m.Address) {
			e.log.Warn("Interpreter touched an account that cannot be created", "addr", m.Address)
			return types.ReceiptErrStateCorrupted, false
		}
		if m.Balance != nil {
			atomic.SetBalanceAtomic(m.Address, balanceFromWei(m.Address, m.Balance))
		}
		// The origin's nonce is owned by the engine.
		if m.Nonce != nil && m.Address != ectx.From() {
			atomic.SetNonceAtomic(m.Address, nonceFromBig(m.Address, m.Nonce))
		}
		if len(m.Code) > 0 {
			code := []byte(m.Code)
			if ectx.VMKind() == vm.KindEVM {
				code = vm.WithEvmPrefix(code)
			}
			if !bytes.Equal(code, atomic.GetCode(m.Address)) {
				if err := atomic.SetImmutableAtomic(m.Address, code, nil); err != nil {
					e.log.Warn("Interpreter replaced contract code", "addr", m.Address, "err", err)
					return types.ReceiptErrStateCorrupted, false
				}
			}
		}
		if m.ResetStorage || len(m.Storage) > 0 || len(m.Deletions) > 0 {
			entries := make(map[string][]byte, len(m.Storage))
			for k, v := range m.Storage {
				entries[k] = v
			}
			if !atomic.UpdateStates(m.Address, entries, m.Deletions, m.ResetStorage) {
				return types.ReceiptErrStateCorrupted, false
			}
		}
	}
	return 0, true
}

func balanceFromWei(addr common.Address, balance *hexutil.Big) types.Amount {
	v := balance.ToInt()
	wei, overflow := uint256.FromBig(v)
	if v.Sign() < 0 || overflow {
		panic(&InvariantViolation{Address: addr, Field: "balance", Value: v.String()})
	}
	amount, err := types.FromWei(wei)
	if err != nil {
		panic(&InvariantViolation{Address: addr, Field: "balance", Value: v.String()})
	}
	return amount
}

func nonceFromBig(addr common.Address, nonce *hexutil.Big) uint64 {
	v := (*big.Int)(nonce)
	if v.Sign() < 0 || !v.IsUint64() {
		panic(&InvariantViolation{Address: addr, Field: "nonce", Value: v.String()})
	}
	return v.Uint64()
}
