package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/shardnode/txcore/core/state"
	"github.com/shardnode/txcore/core/types"
	"github.com/shardnode/txcore/core/vm"
	"github.com/shardnode/txcore/params"
	"github.com/shardnode/txcore/tracing"
)

// Keys written into the storage of every contract at creation.
const (
	creationBlockKey = params.ContractMetadataKeyPrefix + "creation_block"
	thisAddressKey   = params.ContractMetadataKeyPrefix + "this_address"
)

// ExecutionResult is the outcome of an execution that passed validation.
type ExecutionResult struct {
	Status          types.TxnStatus
	Receipt         *types.Receipt // nil when the execution was rejected
	ContractAddress common.Address // set for creations
	ReturnValue     []byte
	GasUsed         uint64 // native units charged to the sender
	GasUsedEth      uint64 // EVM units consumed, intrinsic gas included
}

// Failed reports whether the execution was rejected or rolled back.
func (r *ExecutionResult) Failed() bool {
	return r.Receipt == nil || !r.Receipt.Success
}

// Engine drives execution contexts through validation, interpreter
// invocation and state application against one StateDB.
type Engine struct {
	config   Config
	chain    *params.ChainConfig
	state    *state.StateDB
	invoker  *vm.Invoker
	sessions *vm.Sessions
	log      log.Logger

	ownsInvoker bool
}

// NewEngine creates an engine. The sessions registry must be the one served
// to the interpreters through vm.NewStateServer.
func NewEngine(chain *params.ChainConfig, db *state.StateDB, invoker *vm.Invoker, sessions *vm.Sessions, config *Config) *Engine {
	if config == nil {
		config = &DefaultConfig
	}
	cfg := *config
	if cfg.MaxTrapDepth <= 0 {
		cfg.MaxTrapDepth = params.MaxTrapDepth
	}
	if cfg.RPCGasCap == 0 {
		cfg.RPCGasCap = DefaultConfig.RPCGasCap
	}
	if chain == nil {
		chain = params.DefaultChainConfig
	}
	return &Engine{
		config:   cfg,
		chain:    chain,
		state:    db,
		invoker:  invoker,
		sessions: sessions,
		log:      log.New("module", "engine"),
	}
}

// Name implements TxExecutor.
func (e *Engine) Name() string { return "txcore" }

// Run executes ectx. It returns false if the request was rejected, in which
// case the store is unchanged and only the result's Status is set. An
// accepted execution always carries a finalized receipt, whether the
// execution itself succeeded or was rolled back.
func (e *Engine) Run(ctx context.Context, ectx *ExecutionContext) (*ExecutionResult, bool) {
	res, err := e.run(ctx, ectx)
	if err != nil {
		return &ExecutionResult{Status: err.Status}, false
	}
	return res, true
}

func (e *Engine) run(ctx context.Context, ectx *ExecutionContext) (*ExecutionResult, *StatusError) {
	start := time.Now()
	defer runTimer.UpdateSince(start)

	attempt := e.state.Begin()
	defer attempt.Release()

	res, err := e.execute(ctx, ectx, attempt)
	if err != nil {
		rejectedMeter.Mark(1)
		e.log.Debug("Execution rejected", "tx", ectx.TxHash(), "from", ectx.From(), "kind", ectx.Kind(), "err", err)
		return nil, err
	}
	if res.Receipt.Success {
		committedMeter.Mark(1)
	} else {
		rolledBackMeter.Mark(1)
	}
	e.log.Debug("Execution finished", "tx", ectx.TxHash(), "from", ectx.From(), "kind", ectx.Kind(),
		"success", res.Receipt.Success, "gas", res.GasUsed, "elapsed", common.PrettyDuration(time.Since(start)))
	return res, nil
}

func (e *Engine) execute(ctx context.Context, ectx *ExecutionContext, attempt *state.Attempt) (*ExecutionResult, *StatusError) {
	var (
		durable = attempt.Durable()
		from    = ectx.From()
	)
	if !durable.Exists(from) {
		return nil, reject(types.TxnStatusInvalidFromAccount, "sender %x does not exist", from)
	}
	if !ectx.Direct() {
		switch want := durable.GetNonce(from) + 1; {
		case ectx.Nonce() < want:
			return nil, reject(types.TxnStatusNonceTooLow, "nonce %d, want %d", ectx.Nonce(), want)
		case ectx.Nonce() > want:
			return nil, reject(types.TxnStatusPresentNonceHigh, "nonce %d, want %d", ectx.Nonce(), want)
		}
	}
	if status, ok := CheckAmount(ectx, durable.GetBalance(from)); !ok {
		return nil, reject(status, "balance %v of %x", durable.GetBalance(from), from)
	}
	if status, ok := CheckGasLimit(ectx); !ok {
		return nil, reject(status, "gas limit %d below %d", ectx.Gas().LimitInEthApi(), ectx.IntrinsicGas())
	}
	deposit, _ := ectx.GasDeposit()
	if !durable.DecreaseBalance(from, deposit, tracing.BalanceChangeGasDeposit) {
		return nil, reject(types.TxnStatusInsufficientBalance, "gas deposit %v", deposit)
	}

	res := &ExecutionResult{Status: types.TxnStatusNotPresent, Receipt: types.NewReceipt()}
	if !ectx.UsesInterpreter() {
		e.transfer(ectx, attempt, res)
		return res, nil
	}

	target, err := e.stage(ectx, attempt.Atomic())
	if err != nil {
		return nil, err
	}
	if ectx.Kind() == TxKindContractCreation {
		res.ContractAddress = target
	}
	e.invoke(ctx, ectx, attempt, target, res)
	return res, nil
}

// transfer moves value between two plain accounts without an interpreter.
func (e *Engine) transfer(ectx *ExecutionContext, attempt *state.Attempt, res *ExecutionResult) {
	to, _ := ectx.To()
	if attempt.Atomic().TransferBalanceAtomic(ectx.From(), to, ectx.Amount()) {
		attempt.CommitAtomics()
		res.Receipt.SetResult(true)
	} else {
		attempt.DiscardAtomics()
		res.Receipt.AddError(types.ReceiptErrBalanceTransferFailed)
	}
	res.GasUsedEth = params.NormalTranGas * params.GasScalingFactor
	e.settle(ectx, attempt, res, ectx.Gas().LimitInNative()-params.NormalTranGas)
}

// stage prepares the atomic overlay for the interpreter and returns the
// address the interpreter runs at.
func (e *Engine) stage(ectx *ExecutionContext, atomic *state.Overlay) (common.Address, *StatusError) {
	from := ectx.From()
	if ectx.Kind() != TxKindContractCreation {
		to, _ := ectx.To()
		if !atomic.TransferBalanceAtomic(from, to, ectx.Amount()) {
			return common.Address{}, reject(types.TxnStatusInsufficientBalance, "transfer of %v to %x", ectx.Amount(), to)
		}
		return to, nil
	}

	addr := atomic.GetAddressForContract(from, ectx.Version())
	if err := ectx.SetContractAddress(addr); err != nil {
		return common.Address{}, reject(types.TxnStatusError, "%v", err)
	}
	switch {
	case atomic.Exists(addr) && len(atomic.GetCode(addr)) > 0:
		return common.Address{}, reject(types.TxnStatusFailContractAccountCreation, "contract %x already exists", addr)
	case !atomic.Exists(addr) && !atomic.AddAccountAtomic(addr):
		return common.Address{}, reject(types.TxnStatusFailContractAccountCreation, "cannot create %x", addr)
	}
	if !atomic.TransferBalanceAtomic(from, addr, ectx.Amount()) {
		return common.Address{}, reject(types.TxnStatusInsufficientBalance, "endowment of %v to %x", ectx.Amount(), addr)
	}
	meta := map[string][]byte{
		creationBlockKey: []byte(strconv.FormatUint(ectx.Header().Number, 10)),
		thisAddressKey:   []byte(strings.ToLower(addr.Hex())),
	}
	if !atomic.UpdateStates(addr, meta, nil, false) {
		return common.Address{}, reject(types.TxnStatusFailContractInit, "metadata of %x", addr)
	}
	if ectx.VMKind() == vm.KindScilla {
		if err := atomic.SetImmutableAtomic(addr, ectx.Code(), ectx.Data()); err != nil {
			return common.Address{}, reject(types.TxnStatusFailContractInit, "%v", err)
		}
	}
	return addr, nil
}

func (e *Engine) callArgs(ectx *ExecutionContext, atomic *state.Overlay, target common.Address, gas uint64) *vm.CallArgs {
	var (
		header  = ectx.Header()
		chainID = ectx.chainID
		code    []byte
		data    = ectx.Data()
	)
	if ectx.VMKind() == vm.KindEVM {
		chainID = e.chain.EvmChainID()
	}
	switch ectx.Kind() {
	case TxKindContractCreation:
		code = ectx.Code()
	case TxKindContractCall:
		code = atomic.GetCode(target)
	}
	if ectx.VMKind() == vm.KindEVM {
		code = vm.StripEvmPrefix(code)
	}
	return &vm.CallArgs{
		Address:       target,
		Origin:        ectx.From(),
		Code:          code,
		Data:          data,
		GasLimit:      hexutil.Uint64(gas),
		ApparentValue: (*hexutil.Big)(ectx.Amount().ToWei().ToBig()),
		Extras: vm.Extras{
			ChainID:         hexutil.Uint64(chainID),
			BlockTimestamp:  hexutil.Uint64(header.Timestamp),
			BlockGasLimit:   hexutil.Uint64(header.GasLimit),
			BlockDifficulty: hexutil.Uint64(header.Difficulty),
			BlockNumber:     hexutil.Uint64(header.Number),
			GasPrice:        (*hexutil.Big)(ectx.Gas().PriceInEthApi().ToBig()),
		},
		EstimateOnly: !ectx.Commit(),
	}
}

// invoke runs the interpreter, applies or discards its effects and settles
// the gas of the attempt.
func (e *Engine) invoke(ctx context.Context, ectx *ExecutionContext, attempt *state.Attempt, target common.Address, res *ExecutionResult) {
	var (
		atomic  = attempt.Atomic()
		limit   = ectx.Gas().LimitInEthApi()
		gas     = limit - ectx.IntrinsicGas()
		receipt = res.Receipt
		applied bool
	)
	result, remaining, err := e.interpret(ctx, ectx, atomic, e.callArgs(ectx, atomic, target, gas))
	switch {
	case errors.Is(err, vm.ErrTimedOut):
		receipt.AddError(types.ReceiptErrExecuteCmdTimeout)
	case errors.Is(err, vm.ErrCallFailed):
		receipt.AddError(types.ReceiptErrExecuteCmdFailed)
	case errors.Is(err, errTrapDepth):
		receipt.AddError(types.ReceiptErrMaxEdgesReached)
	case errors.Is(err, errUnsupportedTrap):
		receipt.AddError(types.ReceiptErrCallContractFailed)
	case err != nil:
		e.log.Error("Unexpected interpreter error", "tx", ectx.TxHash(), "err", err)
		receipt.AddError(types.ReceiptErrExecuteCmdFailed)
	default:
		res.ReturnValue = result.ReturnValue
		switch result.ExitReason.Kind {
		case vm.ExitSucceed:
			if rerr, ok := e.apply(ectx, atomic, result.Apply); ok {
				receipt.AddLogs(result.Logs...)
				applied = true
			} else {
				receipt.AddError(rerr)
			}
		case vm.ExitRevert:
			receipt.AddError(e.revertError(ectx))
		default:
			receipt.AddError(types.ReceiptErrEvmAbort)
		}
		if !applied {
			e.log.Debug("Interpreter did not succeed", "tx", ectx.TxHash(), "exit", result.ExitReason.Kind, "reason", result.ExitReason.Reason)
		}
	}
	if remaining > gas {
		e.log.Warn("Interpreter reported more gas than it was given", "tx", ectx.TxHash(), "remaining", remaining, "gas", gas)
		remaining = gas
	}
	if applied {
		attempt.CommitAtomics()
		receipt.SetResult(true)
	} else {
		attempt.DiscardAtomics()
	}
	res.GasUsedEth = limit - remaining
	e.settle(ectx, attempt, res, types.GasEthToCore(remaining))
}

func (e *Engine) revertError(ectx *ExecutionContext) types.ReceiptError {
	switch {
	case ectx.VMKind() == vm.KindEVM:
		return types.ReceiptErrEvmRevert
	case ectx.Kind() == TxKindContractCreation:
		return types.ReceiptErrCreateContractFailed
	}
	return types.ReceiptErrCallContractFailed
}

// interpret invokes the interpreter and serves its traps until it exits.
// Every invocation gets its own session, closed before the overlay is
// touched again. The returned gas is the last remaining gas the interpreter
// reported, or the initial allowance before any report, also on error.
func (e *Engine) interpret(ctx context.Context, ectx *ExecutionContext, atomic *state.Overlay, args *vm.CallArgs) (*vm.Result, uint64, error) {
	remaining := uint64(args.GasLimit)
	for depth := 0; ; depth++ {
		session := e.sessions.Open(atomic)
		args.Context = session.ID()
		result, err := e.invoker.Invoke(ctx, ectx.VMKind(), args)
		e.sessions.Close(session)
		if err != nil {
			return nil, remaining, err
		}
		remaining = uint64(result.RemainingGas)
		if result.ExitReason.Kind != vm.ExitTrap {
			return result, remaining, nil
		}
		if depth >= e.config.MaxTrapDepth {
			return result, remaining, fmt.Errorf("%w: %d", errTrapDepth, depth)
		}
		trapMeter.Mark(1)
		cont, err := e.serveTrap(ectx, atomic, result.Trap)
		if err != nil {
			return result, remaining, err
		}
		args.Continuation = cont
		args.GasLimit = result.RemainingGas
	}
}

// settle refunds the unused gas, bumps the sender nonce and finalizes the
// receipt. The attempt is finished only for committing contexts.
func (e *Engine) settle(ectx *ExecutionContext, attempt *state.Attempt, res *ExecutionResult, remaining uint64) {
	var (
		durable = attempt.Durable()
		from    = ectx.From()
		limit   = ectx.Gas().LimitInNative()
	)
	if remaining > limit {
		remaining = limit
	}
	// The refund never exceeds the deposit, which fit.
	refund, _ := ectx.Gas().PriceInNative().MulUint64(remaining)
	if !durable.IncreaseBalance(from, refund, tracing.BalanceChangeGasRefund) {
		e.log.Error("Gas refund failed", "from", from, "refund", refund)
	}
	if !durable.IncreaseNonceAtomic(from, tracing.NonceChangeTxIncrement) {
		e.log.Error("Nonce increment failed", "from", from)
	}
	res.GasUsed = limit - remaining
	res.Receipt.SetCumulativeGas(res.GasUsed)
	if err := res.Receipt.Finalize(); err != nil {
		e.log.Error("Receipt finalization failed", "tx", ectx.TxHash(), "err", err)
	}
	if !ectx.Commit() {
		return
	}
	if err := attempt.Finish(); err != nil {
		e.log.Error("Attempt finish failed", "tx", ectx.TxHash(), "err", err)
	}
}

// ExecuteTx implements TxExecutor.
func (e *Engine) ExecuteTx(ctx context.Context, tx *types.Transaction, header *types.Header) (*ExecutionResult, error) {
	if tx.ChainID != e.chain.ChainID {
		return nil, reject(types.TxnStatusIncorrectTxnType, "chain id %d, want %d", tx.ChainID, e.chain.ChainID)
	}
	ectx, err := NewContextFromTx(tx, header, e.state, true)
	if err != nil {
		return nil, err
	}
	res, serr := e.run(ctx, ectx)
	if serr != nil {
		return nil, serr
	}
	return res, nil
}

// Call executes a direct call without persisting anything and returns the
// interpreter's return value. A reverted call returns its revert data along
// with an error wrapping ErrExecutionReverted.
func (e *Engine) Call(ctx context.Context, p *CallParams, header *types.Header) ([]byte, error) {
	res, err := e.direct(ctx, p, header)
	if res == nil {
		return nil, err
	}
	return res.ReturnValue, err
}

// EstimateGas returns the EVM gas a direct call consumes.
func (e *Engine) EstimateGas(ctx context.Context, p *CallParams, header *types.Header) (uint64, error) {
	res, err := e.direct(ctx, p, header)
	if err != nil {
		return 0, err
	}
	return res.GasUsedEth, nil
}

func (e *Engine) direct(ctx context.Context, p *CallParams, header *types.Header) (*ExecutionResult, error) {
	if p.Gas == 0 {
		cpy := *p
		cpy.Gas = e.config.RPCGasCap
		if header.GasLimit > 0 && cpy.Gas > header.GasLimit {
			cpy.Gas = header.GasLimit
		}
		p = &cpy
	}
	ectx, err := NewContextFromCall(p, header, e.chain.ChainID, e.state)
	if err != nil {
		return nil, err
	}
	res, serr := e.run(ctx, ectx)
	if serr != nil {
		return nil, serr
	}
	if res.Failed() {
		return res, fmt.Errorf("%w: %s", ErrExecutionReverted, receiptErrors(res.Receipt))
	}
	return res, nil
}

func receiptErrors(r *types.Receipt) string {
	names := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		names[i] = e.String()
	}
	return strings.Join(names, ",")
}
