package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shardnode/txcore/core/types"
	"github.com/shardnode/txcore/core/vm"
	"github.com/shardnode/txcore/params"
)

// TxKind classifies an execution request. It is computed once, when the
// context is built.
type TxKind uint8

const (
	TxKindNonContract TxKind = iota
	TxKindContractCreation
	TxKindContractCall
	TxKindMalformed
)

func (k TxKind) String() string {
	switch k {
	case TxKindNonContract:
		return "non-contract"
	case TxKindContractCreation:
		return "contract-creation"
	case TxKindContractCall:
		return "contract-call"
	}
	return "malformed"
}

// CodeReader is what a context needs to classify its recipient.
type CodeReader interface {
	GetCode(addr common.Address) []byte
}

// ExecutionContext describes one execution attempt. It is immutable once
// built, except for the contract address of a creation, which the engine
// assigns exactly once.
type ExecutionContext struct {
	from    common.Address
	to      common.Address
	toSet   bool
	code    []byte
	data    []byte
	amount  types.Amount
	gas     types.GasConv
	header  types.Header
	chainID uint64
	version types.TxVersion
	nonce   uint64
	txHash  common.Hash

	kind   TxKind
	vmKind vm.Kind
	commit bool
	direct bool
}

// NewContextFromTx builds the context of a transaction. The recipient's code
// is read from state to classify the request. With commit unset the result
// of the execution is never persisted.
func NewContextFromTx(tx *types.Transaction, header *types.Header, state CodeReader, commit bool) (*ExecutionContext, error) {
	gas, err := types.GasConvFromNative(tx.GasPrice, tx.GasLimit)
	if err != nil {
		return nil, reject(types.TxnStatusMathError, "%v", err)
	}
	c := &ExecutionContext{
		from:    tx.From,
		to:      tx.To,
		toSet:   !tx.IsCreation(),
		code:    common.CopyBytes(tx.Code),
		data:    common.CopyBytes(tx.Data),
		amount:  tx.Amount,
		gas:     gas,
		header:  *header,
		chainID: tx.ChainID,
		version: tx.Version,
		nonce:   tx.Nonce,
		txHash:  tx.Hash(),
		commit:  commit,
	}
	c.classify(state)
	if status, ok := c.Validate(); !ok {
		return nil, reject(status, "tx %x", c.txHash)
	}
	return c, nil
}

// CallParams are the arguments of a direct, EVM-style call. Value and gas
// price are in Wei, gas in EVM units. A nil To deploys Data as init code.
type CallParams struct {
	From     common.Address
	To       *common.Address
	Data     []byte
	Value    *uint256.Int
	GasPrice *uint256.Int
	Gas      uint64
}

// NewContextFromCall builds the context of a direct call. Such contexts are
// always estimate-only.
func NewContextFromCall(p *CallParams, header *types.Header, chainID uint64, state CodeReader) (*ExecutionContext, error) {
	gas, err := types.GasConvFromEthApi(p.GasPrice, p.Gas)
	if err != nil {
		return nil, reject(types.TxnStatusMathError, "%v", err)
	}
	amount, err := types.FromWei(p.Value)
	if err != nil {
		return nil, reject(types.TxnStatusMathError, "value: %v", err)
	}
	c := &ExecutionContext{
		from:    p.From,
		amount:  amount,
		gas:     gas,
		header:  *header,
		chainID: chainID,
		version: types.TxVersionEvm,
		direct:  true,
	}
	if p.To == nil {
		c.code = common.CopyBytes(p.Data)
	} else {
		c.to, c.toSet = *p.To, true
		c.data = common.CopyBytes(p.Data)
	}
	c.classify(state)
	if status, ok := c.Validate(); !ok {
		return nil, reject(status, "call from %x", p.From)
	}
	return c, nil
}

// newNestedContext builds the context of a contract creation requested by a
// running contract. Nested creations carry no gas price: their gas is part
// of the outer execution.
func newNestedContext(parent *ExecutionContext, caller common.Address, value types.Amount, code []byte, gasLimit uint64) *ExecutionContext {
	gas, _ := types.GasConvFromEthApi(new(uint256.Int), gasLimit)
	return &ExecutionContext{
		from:    caller,
		code:    code,
		amount:  value,
		gas:     gas,
		header:  parent.header,
		chainID: parent.chainID,
		version: types.TxVersionEvm,
		kind:    TxKindContractCreation,
		vmKind:  vm.KindEVM,
		commit:  parent.commit,
		direct:  true,
	}
}

func (c *ExecutionContext) classify(state CodeReader) {
	switch {
	case !c.toSet:
		if len(c.code) == 0 || (len(c.data) > 0 && c.version == types.TxVersionEvm) {
			c.kind = TxKindMalformed
			return
		}
		c.kind = TxKindContractCreation
		if c.version == types.TxVersionEvm {
			c.vmKind = vm.KindEVM
		} else {
			c.vmKind = vm.KindForCode(c.code)
		}

	case len(c.code) > 0:
		c.kind = TxKindMalformed

	default:
		recipient := state.GetCode(c.to)
		switch {
		case len(recipient) > 0:
			c.kind = TxKindContractCall
			c.vmKind = vm.KindForCode(recipient)
		case len(c.data) > 0 && c.version != types.TxVersionEvm:
			c.kind = TxKindMalformed
		default:
			c.kind = TxKindNonContract
			c.vmKind = vm.KindEVM
		}
	}
}

// Validate runs the checks that depend on the context alone.
func (c *ExecutionContext) Validate() (types.TxnStatus, bool) {
	switch {
	case c.kind == TxKindMalformed:
		return types.TxnStatusIncorrectTxnType, false
	case c.version != types.TxVersionNative && c.version != types.TxVersionEvm:
		return types.TxnStatusIncorrectTxnType, false
	case len(c.code) > params.MaxCodeSize:
		return types.TxnStatusHighByteSizeCode, false
	case c.header.GasLimit > 0 && c.gas.LimitInEthApi() > c.header.GasLimit:
		return types.TxnStatusHighGasLimit, false
	}
	return types.TxnStatusNotPresent, true
}

func (c *ExecutionContext) From() common.Address     { return c.from }
func (c *ExecutionContext) Code() []byte             { return c.code }
func (c *ExecutionContext) Data() []byte             { return c.data }
func (c *ExecutionContext) Amount() types.Amount     { return c.amount }
func (c *ExecutionContext) Gas() types.GasConv       { return c.gas }
func (c *ExecutionContext) Header() types.Header     { return c.header }
func (c *ExecutionContext) Version() types.TxVersion { return c.version }
func (c *ExecutionContext) Nonce() uint64            { return c.nonce }
func (c *ExecutionContext) TxHash() common.Hash      { return c.txHash }
func (c *ExecutionContext) Kind() TxKind             { return c.kind }
func (c *ExecutionContext) VMKind() vm.Kind          { return c.vmKind }
func (c *ExecutionContext) Commit() bool             { return c.commit }
func (c *ExecutionContext) Direct() bool             { return c.direct }

// To returns the recipient or, for a creation, the assigned contract
// address. The second result is false until an address is known.
func (c *ExecutionContext) To() (common.Address, bool) { return c.to, c.toSet }

// SetContractAddress assigns the address of the contract being created. It
// may be called once.
func (c *ExecutionContext) SetContractAddress(addr common.Address) error {
	if c.toSet {
		return ErrContractAddressSet
	}
	c.to, c.toSet = addr, true
	return nil
}

// UsesInterpreter reports whether the execution needs an interpreter. Native
// value transfers are handled by the engine alone.
func (c *ExecutionContext) UsesInterpreter() bool {
	return c.kind != TxKindNonContract || c.version == types.TxVersionEvm
}

// GasDeposit returns gasLimit * gasPrice in Qa and whether it fit.
func (c *ExecutionContext) GasDeposit() (types.Amount, bool) {
	d, err := c.gas.PriceInNative().MulUint64(c.gas.LimitInNative())
	return d, err == nil
}

// IntrinsicGas returns the gas, in EVM units, reserved before the
// interpreter runs. A native transfer costs params.NormalTranGas native
// units, which is the same amount.
func (c *ExecutionContext) IntrinsicGas() uint64 {
	if c.kind == TxKindContractCreation {
		return params.DeploymentGas(c.code, c.data)
	}
	return params.MinEthGas
}
