package vm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Extras carries the chain and block context of a call.
type Extras struct {
	ChainID         hexutil.Uint64 `json:"chain_id"`
	BlockTimestamp  hexutil.Uint64 `json:"block_timestamp"`
	BlockGasLimit   hexutil.Uint64 `json:"block_gas_limit"`
	BlockDifficulty hexutil.Uint64 `json:"block_difficulty"`
	BlockNumber     hexutil.Uint64 `json:"block_number"`
	GasPrice        *hexutil.Big   `json:"gas_price"` // Wei
}

// Continuation resumes an interpreter run that stopped on a trap.
type Continuation struct {
	ID        hexutil.Uint64  `json:"id"`
	Succeeded bool            `json:"succeeded"`
	Address   *common.Address `json:"address,omitempty"` // created contract
}

// CallArgs is the request sent to an interpreter. Gas is in EVM units and
// the apparent value in Wei.
type CallArgs struct {
	Address       common.Address `json:"address"`
	Origin        common.Address `json:"origin"`
	Code          hexutil.Bytes  `json:"code"`
	Data          hexutil.Bytes  `json:"data"`
	GasLimit      hexutil.Uint64 `json:"gas_limit"`
	ApparentValue *hexutil.Big   `json:"apparent_value"`
	Context       string         `json:"context"`
	Extras        Extras         `json:"extras"`
	EstimateOnly  bool           `json:"estimate"`
	Continuation  *Continuation  `json:"continuation,omitempty"`
}

// Copy returns a copy of args that shares no mutable state with it.
func (args *CallArgs) Copy() *CallArgs {
	cpy := *args
	cpy.Code = common.CopyBytes(args.Code)
	cpy.Data = common.CopyBytes(args.Data)
	if args.Continuation != nil {
		c := *args.Continuation
		cpy.Continuation = &c
	}
	return &cpy
}
