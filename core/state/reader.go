package state

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shardnode/txcore/core/types"
	"github.com/shardnode/txcore/params"
)

// Read helpers shared by StateDB and Overlay. They never return memory
// owned by a layer.

func readBalance(l layer, addr common.Address) types.Amount {
	if acc := l.account(addr); acc != nil {
		return acc.Balance
	}
	return types.Amount{}
}

func readNonce(l layer, addr common.Address) uint64 {
	if acc := l.account(addr); acc != nil {
		return acc.Nonce
	}
	return 0
}

func readCode(l layer, addr common.Address) []byte {
	if acc := l.account(addr); acc != nil {
		return common.CopyBytes(acc.Code)
	}
	return nil
}

func readCodeHash(l layer, addr common.Address) common.Hash {
	if acc := l.account(addr); acc != nil {
		return acc.CodeHash
	}
	return common.Hash{}
}

func readInitData(l layer, addr common.Address) []byte {
	if acc := l.account(addr); acc != nil {
		return common.CopyBytes(acc.InitData)
	}
	return nil
}

func readState(l layer, addr common.Address, key string) []byte {
	v, ok := l.storage(addr, key)
	if !ok {
		return nil
	}
	return common.CopyBytes(v)
}

// fetchStateData returns the storage entries of addr under prefix. With
// excludeMeta set, contract metadata keys are skipped.
func fetchStateData(l layer, addr common.Address, prefix string, excludeMeta bool) map[string][]byte {
	out := make(map[string][]byte)
	for k, v := range l.storageRange(addr, prefix) {
		if excludeMeta && strings.HasPrefix(k, params.ContractMetadataKeyPrefix) {
			continue
		}
		out[k] = common.CopyBytes(v)
	}
	return out
}

func contractAddress(l layer, addr common.Address, version types.TxVersion) common.Address {
	return types.CreateContractAddress(addr, readNonce(l, addr), version)
}
