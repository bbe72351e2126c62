package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shardnode/txcore/core/types"
	"github.com/shardnode/txcore/tracing"
)

// Reader is the read side shared by the durable store and every overlay.
// Missing accounts read as zero.
type Reader interface {
	GetBalance(addr common.Address) types.Amount
	GetNonce(addr common.Address) uint64
	Exists(addr common.Address) bool
	GetCode(addr common.Address) []byte
	GetCodeHash(addr common.Address) common.Hash
	GetInitData(addr common.Address) []byte
	GetState(addr common.Address, key string) []byte
	FetchStateDataForContract(addr common.Address, prefix string, excludeMeta bool) map[string][]byte
	GetAddressForContract(addr common.Address, version types.TxVersion) common.Address
}

// AccountStore is the mutable, revertible view used during one execution
// attempt. Every mutation that reports failure leaves the store unchanged.
type AccountStore interface {
	Reader

	AccountExistsAtomic(addr common.Address) bool
	AddAccountAtomic(addr common.Address) bool
	TransferBalanceAtomic(from, to common.Address, amount types.Amount) bool
	SetBalanceAtomic(addr common.Address, amount types.Amount) bool
	IncreaseBalance(addr common.Address, amount types.Amount, reason tracing.BalanceChangeReason) bool
	DecreaseBalance(addr common.Address, amount types.Amount, reason tracing.BalanceChangeReason) bool
	SetNonceAtomic(addr common.Address, nonce uint64) bool
	IncreaseNonceAtomic(addr common.Address, reason tracing.NonceChangeReason) bool
	GetNonceForAccountAtomic(addr common.Address) (uint64, bool)
	UpdateStateValue(addr common.Address, key string, value []byte) bool
	UpdateStates(addr common.Address, entries map[string][]byte, deletions []string, resetAll bool) bool
	SetImmutableAtomic(addr common.Address, code, initData []byte) error
	MarkUpdated(addr common.Address)
	DiscardAtomics()
	CommitAtomics()
}

// layer is implemented by every level of the state stack. Accounts returned
// by account are shared and must be copied before modification. Callers
// hold whatever lock the layer requires.
type layer interface {
	account(addr common.Address) *types.Account
	storage(addr common.Address, key string) ([]byte, bool)
	storageRange(addr common.Address, prefix string) map[string][]byte
	merge(c *changeset)
}

var (
	_ AccountStore = (*Overlay)(nil)
	_ Reader       = (*StateDB)(nil)
	_ layer        = (*Overlay)(nil)
	_ layer        = (*StateDB)(nil)
)
