package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// TxVersion tags the origin of a transaction and selects the contract
// address derivation scheme.
type TxVersion uint32

const (
	TxVersionNative TxVersion = 1
	TxVersionEvm    TxVersion = 2
)

func (v TxVersion) String() string {
	switch v {
	case TxVersionNative:
		return "native"
	case TxVersionEvm:
		return "evm"
	}
	return "unknown"
}

// Transaction is a signed, pool-validated transaction ready for execution.
// A zero To address requests contract creation.
type Transaction struct {
	ChainID  uint64         `json:"chainId"`
	Version  TxVersion      `json:"version"`
	Nonce    uint64         `json:"nonce"`
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Amount   Amount         `json:"amount"`
	GasPrice Amount         `json:"gasPrice"` // Qa per native gas unit
	GasLimit uint64         `json:"gasLimit"` // native gas units
	Code     hexutil.Bytes  `json:"code,omitempty"`
	Data     hexutil.Bytes  `json:"data,omitempty"`
}

// IsCreation reports whether the transaction deploys a contract.
func (tx *Transaction) IsCreation() bool {
	return tx.To == (common.Address{})
}

type rlpTransaction struct {
	ChainID  uint64
	Version  uint32
	Nonce    uint64
	From     common.Address
	To       common.Address
	Amount   *big.Int
	GasPrice *big.Int
	GasLimit uint64
	Code     []byte
	Data     []byte
}

// Hash returns the keccak256 hash of the RLP encoding of the transaction.
func (tx *Transaction) Hash() common.Hash {
	enc := rlpTransaction{
		ChainID:  tx.ChainID,
		Version:  uint32(tx.Version),
		Nonce:    tx.Nonce,
		From:     tx.From,
		To:       tx.To,
		Amount:   tx.Amount.ToQa().ToBig(),
		GasPrice: tx.GasPrice.ToQa().ToBig(),
		GasLimit: tx.GasLimit,
		Code:     tx.Code,
		Data:     tx.Data,
	}
	blob, err := rlp.EncodeToBytes(&enc)
	if err != nil {
		// Every field has a fixed RLP encoding.
		panic(err)
	}
	return crypto.Keccak256Hash(blob)
}
