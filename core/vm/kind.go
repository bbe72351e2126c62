package vm

import (
	"bytes"
	"fmt"

	"github.com/shardnode/txcore/params"
)

// Kind selects the interpreter that runs a contract.
type Kind uint8

const (
	KindScilla Kind = iota
	KindEVM
)

func (k Kind) String() string {
	switch k {
	case KindScilla:
		return "scilla"
	case KindEVM:
		return "evm"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// KindForCode maps stored contract code to its interpreter. EVM contracts
// are stored with the params.EvmCodePrefix marker.
func KindForCode(code []byte) Kind {
	if bytes.HasPrefix(code, []byte(params.EvmCodePrefix)) {
		return KindEVM
	}
	return KindScilla
}

// StripEvmPrefix returns the bytecode of a stored EVM contract.
func StripEvmPrefix(code []byte) []byte {
	return bytes.TrimPrefix(code, []byte(params.EvmCodePrefix))
}

// WithEvmPrefix returns bytecode in its stored form.
func WithEvmPrefix(code []byte) []byte {
	if bytes.HasPrefix(code, []byte(params.EvmCodePrefix)) {
		return code
	}
	return append([]byte(params.EvmCodePrefix), code...)
}
