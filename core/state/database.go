package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/shardnode/txcore/core/types"
	"golang.org/x/exp/slices"
)

// Database layout:
//
//	"a" + address            -> rlp(storedAccount)
//	"c" + code hash          -> code
//	"s" + address + key      -> value
//	"LastStateRoot"          -> state root of the last commit
var (
	accountPrefix = []byte("a")
	codePrefix    = []byte("c")
	storagePrefix = []byte("s")
	stateRootKey  = []byte("LastStateRoot")
)

func accountKey(addr common.Address) []byte {
	return append(append([]byte{}, accountPrefix...), addr.Bytes()...)
}

func codeKey(hash common.Hash) []byte {
	return append(append([]byte{}, codePrefix...), hash.Bytes()...)
}

func storageKey(addr common.Address, key string) []byte {
	out := make([]byte, 0, len(storagePrefix)+common.AddressLength+len(key))
	out = append(out, storagePrefix...)
	out = append(out, addr.Bytes()...)
	return append(out, key...)
}

// storedAccount is the consensus encoding of an account. Code is stored
// separately, keyed by its hash.
type storedAccount struct {
	Balance     *big.Int
	Nonce       uint64
	CodeHash    common.Hash
	StorageRoot common.Hash
	InitData    []byte
}

func encodeAccount(acc *types.Account) ([]byte, error) {
	return rlp.EncodeToBytes(&storedAccount{
		Balance:     acc.Balance.ToQa().ToBig(),
		Nonce:       acc.Nonce,
		CodeHash:    acc.CodeHash,
		StorageRoot: acc.StorageRoot,
		InitData:    acc.InitData,
	})
}

func decodeAccount(blob []byte) (*types.Account, error) {
	var dec storedAccount
	if err := rlp.DecodeBytes(blob, &dec); err != nil {
		return nil, err
	}
	bal, overflow := uint256.FromBig(dec.Balance)
	if overflow {
		return nil, types.ErrAmountOverflow
	}
	balance, err := types.FromQa(bal)
	if err != nil {
		return nil, err
	}
	acc := &types.Account{
		Balance:     balance,
		Nonce:       dec.Nonce,
		CodeHash:    dec.CodeHash,
		StorageRoot: dec.StorageRoot,
	}
	if len(dec.InitData) > 0 {
		acc.InitData = dec.InitData
	}
	return acc, nil
}

// readStorageRange returns every stored value of addr whose key starts with
// prefix.
func readStorageRange(db ethdb.Iteratee, addr common.Address, prefix string) (map[string][]byte, error) {
	base := storageKey(addr, "")
	it := db.NewIterator(storageKey(addr, prefix), nil)
	defer it.Release()

	out := make(map[string][]byte)
	for it.Next() {
		out[string(it.Key()[len(base):])] = common.CopyBytes(it.Value())
	}
	return out, it.Error()
}

// storageRoot hashes the full key/value storage of one account.
func storageRoot(slots map[string][]byte) common.Hash {
	if len(slots) == 0 {
		return types.EmptyRootHash
	}
	keys := make([]string, 0, len(slots))
	for k := range slots {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	pairs := make([][2][]byte, len(keys))
	for i, k := range keys {
		pairs[i] = [2][]byte{[]byte(k), slots[k]}
	}
	blob, err := rlp.EncodeToBytes(pairs)
	if err != nil {
		panic(fmt.Sprintf("encode storage: %v", err))
	}
	return crypto.Keccak256Hash(blob)
}

// stateRoot hashes every stored account in key order.
func stateRoot(db ethdb.Iteratee) (common.Hash, error) {
	it := db.NewIterator(accountPrefix, nil)
	defer it.Release()

	hasher := crypto.NewKeccakState()
	for it.Next() {
		if len(it.Key()) != len(accountPrefix)+common.AddressLength {
			continue
		}
		hasher.Write(it.Key())
		hasher.Write(crypto.Keccak256(it.Value()))
	}
	if err := it.Error(); err != nil {
		return common.Hash{}, err
	}
	var root common.Hash
	hasher.Read(root[:])
	return root, nil
}
