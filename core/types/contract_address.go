package types

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// CreateContractAddress derives the address of a contract deployed by sender
// at the given account nonce. EVM deployments use the Ethereum scheme,
// native deployments take the low 20 bytes of sha256(sender || nonce).
func CreateContractAddress(sender common.Address, nonce uint64, version TxVersion) common.Address {
	if version == TxVersionEvm {
		return crypto.CreateAddress(sender, nonce)
	}
	var buf [common.AddressLength + 8]byte
	copy(buf[:], sender.Bytes())
	binary.BigEndian.PutUint64(buf[common.AddressLength:], nonce)
	sum := sha256.Sum256(buf[:])
	return common.BytesToAddress(sum[len(sum)-common.AddressLength:])
}
