package types

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// EmptyCodeHash is the code hash of an account without code.
	EmptyCodeHash = crypto.Keccak256Hash(nil)

	// EmptyRootHash is the storage root of an account without storage: the
	// hash of an RLP empty list.
	EmptyRootHash = crypto.Keccak256Hash([]byte{0xc0})
)

// Account is a snapshot of one account. Accounts handed out by the state
// package are copies and may be modified freely.
type Account struct {
	Balance     Amount        `json:"balance"`
	Nonce       uint64        `json:"nonce"`
	Code        hexutil.Bytes `json:"code,omitempty"`
	InitData    hexutil.Bytes `json:"initData,omitempty"`
	CodeHash    common.Hash   `json:"codeHash"`
	StorageRoot common.Hash   `json:"storageRoot"`
}

// NewAccount returns an empty account with the given balance.
func NewAccount(balance Amount) *Account {
	return &Account{Balance: balance, CodeHash: EmptyCodeHash, StorageRoot: EmptyRootHash}
}

// IsContract reports whether the account carries code.
func (a *Account) IsContract() bool {
	return len(a.Code) > 0
}

// Copy returns a deep copy of the account.
func (a *Account) Copy() *Account {
	cpy := *a
	cpy.Code = bytes.Clone(a.Code)
	cpy.InitData = bytes.Clone(a.InitData)
	return &cpy
}
