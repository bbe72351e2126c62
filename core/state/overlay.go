package state

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shardnode/txcore/core/types"
	"github.com/shardnode/txcore/tracing"
)

var (
	// ErrAccountNotFound is returned when an operation targets an account
	// that does not exist in any layer.
	ErrAccountNotFound = errors.New("account not found")

	// ErrImmutableSet is returned when code is set twice on one contract.
	ErrImmutableSet = errors.New("contract code already set")
)

// Overlay stages account and storage changes on top of a parent layer. It
// is written through to the parent only by CommitAtomics.
//
// An Overlay is not safe for concurrent use. The write lock of the owning
// StateDB is held for as long as any overlay of an Attempt is alive.
type Overlay struct {
	parent layer
	hooks  *tracing.Hooks
	changeset
}

func newOverlay(parent layer, hooks *tracing.Hooks) *Overlay {
	return &Overlay{parent: parent, hooks: hooks, changeset: newChangeset()}
}

// Clone returns a temporary overlay on top of o. Committing the clone merges
// its changes into o; discarding it leaves o untouched.
func (o *Overlay) Clone() *Overlay {
	return newOverlay(o, o.hooks)
}

func (o *Overlay) account(addr common.Address) *types.Account {
	if acc, ok := o.accounts[addr]; ok {
		return acc
	}
	return o.parent.account(addr)
}

func (o *Overlay) storage(addr common.Address, key string) ([]byte, bool) {
	if v, decided := o.lookupStorage(addr, key); decided {
		return v, v != nil
	}
	return o.parent.storage(addr, key)
}

func (o *Overlay) storageRange(addr common.Address, prefix string) map[string][]byte {
	return o.rangeStorage(o.parent.storageRange(addr, prefix), addr, prefix)
}

func (o *Overlay) merge(c *changeset) {
	o.changeset.merge(c)
}

// stage returns the overlay copy of addr, copying it from the parent on first
// touch. It returns nil if the account does not exist.
func (o *Overlay) stage(addr common.Address) *types.Account {
	if acc, ok := o.accounts[addr]; ok {
		return acc
	}
	acc := o.parent.account(addr)
	if acc == nil {
		return nil
	}
	cpy := acc.Copy()
	o.accounts[addr] = cpy
	return cpy
}

func (o *Overlay) GetBalance(addr common.Address) types.Amount { return readBalance(o, addr) }
func (o *Overlay) GetNonce(addr common.Address) uint64         { return readNonce(o, addr) }
func (o *Overlay) Exists(addr common.Address) bool             { return o.account(addr) != nil }
func (o *Overlay) GetCode(addr common.Address) []byte          { return readCode(o, addr) }
func (o *Overlay) GetCodeHash(addr common.Address) common.Hash { return readCodeHash(o, addr) }
func (o *Overlay) GetInitData(addr common.Address) []byte      { return readInitData(o, addr) }

func (o *Overlay) GetState(addr common.Address, key string) []byte {
	return readState(o, addr, key)
}

func (o *Overlay) FetchStateDataForContract(addr common.Address, prefix string, excludeMeta bool) map[string][]byte {
	return fetchStateData(o, addr, prefix, excludeMeta)
}

func (o *Overlay) GetAddressForContract(addr common.Address, version types.TxVersion) common.Address {
	return contractAddress(o, addr, version)
}

// AccountExistsAtomic reports whether addr is staged in this overlay.
func (o *Overlay) AccountExistsAtomic(addr common.Address) bool {
	_, ok := o.accounts[addr]
	return ok
}

// AddAccountAtomic stages an empty account. It fails if the overlay already
// holds one for addr.
func (o *Overlay) AddAccountAtomic(addr common.Address) bool {
	if _, ok := o.accounts[addr]; ok {
		return false
	}
	o.accounts[addr] = types.NewAccount(types.Amount{})
	o.updated.Add(addr)
	return true
}

// TransferBalanceAtomic moves amount from one account to another, creating
// the recipient if needed. Nothing changes if the sender cannot pay.
func (o *Overlay) TransferBalanceAtomic(from, to common.Address, amount types.Amount) bool {
	src := o.account(from)
	if src == nil {
		return false
	}
	srcBal, err := src.Balance.Sub(amount)
	if err != nil {
		return false
	}
	if from == to {
		return true
	}
	var dstPrev types.Amount
	if dst := o.account(to); dst != nil {
		dstPrev = dst.Balance
	}
	dstBal, err := dstPrev.Add(amount)
	if err != nil {
		return false
	}
	o.setBalance(from, src.Balance, srcBal, tracing.BalanceChangeTransfer)
	if o.account(to) == nil {
		o.AddAccountAtomic(to)
	}
	o.setBalance(to, dstPrev, dstBal, tracing.BalanceChangeTransfer)
	return true
}

func (o *Overlay) setBalance(addr common.Address, prev, next types.Amount, reason tracing.BalanceChangeReason) {
	o.stage(addr).Balance = next
	o.updated.Add(addr)
	o.hooks.BalanceChanged(addr, prev.ToQa(), next.ToQa(), reason)
}

// SetBalanceAtomic overwrites the balance of an existing account.
func (o *Overlay) SetBalanceAtomic(addr common.Address, amount types.Amount) bool {
	acc := o.account(addr)
	if acc == nil {
		return false
	}
	o.setBalance(addr, acc.Balance, amount, tracing.BalanceChangeInterpreterApply)
	return true
}

func (o *Overlay) IncreaseBalance(addr common.Address, amount types.Amount, reason tracing.BalanceChangeReason) bool {
	acc := o.account(addr)
	if acc == nil {
		return false
	}
	next, err := acc.Balance.Add(amount)
	if err != nil {
		return false
	}
	o.setBalance(addr, acc.Balance, next, reason)
	return true
}

func (o *Overlay) DecreaseBalance(addr common.Address, amount types.Amount, reason tracing.BalanceChangeReason) bool {
	acc := o.account(addr)
	if acc == nil {
		return false
	}
	next, err := acc.Balance.Sub(amount)
	if err != nil {
		return false
	}
	o.setBalance(addr, acc.Balance, next, reason)
	return true
}

func (o *Overlay) setNonce(addr common.Address, prev, next uint64, reason tracing.NonceChangeReason) {
	o.stage(addr).Nonce = next
	o.updated.Add(addr)
	o.hooks.NonceChanged(addr, prev, next, reason)
}

func (o *Overlay) SetNonceAtomic(addr common.Address, nonce uint64) bool {
	acc := o.account(addr)
	if acc == nil {
		return false
	}
	o.setNonce(addr, acc.Nonce, nonce, tracing.NonceChangeInterpreterApply)
	return true
}

// IncreaseNonceAtomic bumps the nonce of addr by one. The first touch copies
// the parent's nonce into the overlay, so the staged value is parent+1.
func (o *Overlay) IncreaseNonceAtomic(addr common.Address, reason tracing.NonceChangeReason) bool {
	acc := o.account(addr)
	if acc == nil || acc.Nonce == ^uint64(0) {
		return false
	}
	o.setNonce(addr, acc.Nonce, acc.Nonce+1, reason)
	return true
}

// GetNonceForAccountAtomic returns the nonce staged in this overlay.
func (o *Overlay) GetNonceForAccountAtomic(addr common.Address) (uint64, bool) {
	if acc, ok := o.accounts[addr]; ok {
		return acc.Nonce, true
	}
	return 0, false
}

func (o *Overlay) UpdateStateValue(addr common.Address, key string, value []byte) bool {
	if o.account(addr) == nil {
		return false
	}
	o.setStorage(addr, key, append([]byte{}, value...))
	o.updated.Add(addr)
	return true
}

// UpdateStates applies a storage delta to addr. With resetAll set, every
// previously stored key is dropped before entries are written.
func (o *Overlay) UpdateStates(addr common.Address, entries map[string][]byte, deletions []string, resetAll bool) bool {
	if o.account(addr) == nil {
		return false
	}
	if resetAll {
		o.resetStorage(addr)
	}
	for _, k := range deletions {
		o.setStorage(addr, k, nil)
	}
	for k, v := range entries {
		o.setStorage(addr, k, append([]byte{}, v...))
	}
	o.updated.Add(addr)
	return true
}

// SetImmutableAtomic sets the code and init data of a contract. Code can be
// set once per account lifetime.
func (o *Overlay) SetImmutableAtomic(addr common.Address, code, initData []byte) error {
	acc := o.account(addr)
	if acc == nil {
		return ErrAccountNotFound
	}
	if len(acc.Code) > 0 {
		return ErrImmutableSet
	}
	staged := o.stage(addr)
	staged.Code = common.CopyBytes(code)
	staged.CodeHash = crypto.Keccak256Hash(code)
	staged.InitData = common.CopyBytes(initData)
	o.updated.Add(addr)
	return nil
}

// MarkUpdated records addr for state root recomputation at commit.
func (o *Overlay) MarkUpdated(addr common.Address) {
	o.updated.Add(addr)
}

// DiscardAtomics drops every staged change. It is a no-op on an empty
// overlay.
func (o *Overlay) DiscardAtomics() {
	if !o.empty() {
		o.clear()
	}
}

// CommitAtomics merges the staged changes into the parent layer and empties
// the overlay.
func (o *Overlay) CommitAtomics() {
	if o.empty() {
		return
	}
	o.parent.merge(&o.changeset)
	o.clear()
}

// Dirty reports whether the overlay holds staged changes.
func (o *Overlay) Dirty() bool { return !o.empty() }
