package core

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/holiman/uint256"
	"github.com/shardnode/txcore/core/state"
	"github.com/shardnode/txcore/core/types"
	"github.com/shardnode/txcore/core/vm"
	"github.com/shardnode/txcore/core/vm/vmtest"
	"github.com/shardnode/txcore/params"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000ca401")

	evmContract    = common.HexToAddress("0x000000000000000000000000000000000000c0de")
	scillaContract = common.HexToAddress("0x000000000000000000000000000000000000511a")

	runtimeCode = []byte{0x60, 0x00, 0x60, 0x00, 0xf3}
	initCode    = []byte{0x60, 0x05, 0x60, 0x0c, 0x60, 0x00, 0x39, 0x60, 0x05, 0x60, 0x00, 0xf3}

	testHeader = &types.Header{Number: 7, Timestamp: 1_700_000_000, GasLimit: 84_000_000, Difficulty: 1}
	testChain  = params.DefaultChainConfig
)

func amt(v uint64) types.Amount { return types.AmountFromUint64(v) }

type testEnv struct {
	db     *state.StateDB
	engine *Engine
	evm    *vmtest.Backend
	scilla *vmtest.Backend
}

func defaultAlloc() state.GenesisAlloc {
	return state.GenesisAlloc{
		alice:          {Balance: amt(1_000_000)},
		bob:            {Balance: amt(1_000_000)},
		evmContract:    {Balance: amt(5), Code: vm.WithEvmPrefix(runtimeCode)},
		scillaContract: {Code: []byte("scilla_version 0\ncontract Hello()")},
	}
}

func newTestEnv(t *testing.T, alloc state.GenesisAlloc, vmConfig vm.Config, config Config, evm ...vmtest.Handler) *testEnv {
	t.Helper()
	db, err := state.New(memorydb.New(), nil)
	require.NoError(t, err)
	_, err = db.Genesis(alloc)
	require.NoError(t, err)

	env := &testEnv{
		db:     db,
		evm:    vmtest.New(vm.KindEVM, evm...),
		scilla: vmtest.New(vm.KindScilla),
	}
	engine, err := NewTxExecutor(testChain, db, vm.NewBackends(env.evm, env.scilla), &vmConfig, &config)
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func newDefaultEnv(t *testing.T, evm ...vmtest.Handler) *testEnv {
	return newTestEnv(t, defaultAlloc(), vm.DefaultConfig, DefaultConfig, evm...)
}

func testTx(version types.TxVersion, nonce uint64, from, to common.Address, amount, price, limit uint64) *types.Transaction {
	return &types.Transaction{
		ChainID:  testChain.ChainID,
		Version:  version,
		Nonce:    nonce,
		From:     from,
		To:       to,
		Amount:   amt(amount),
		GasPrice: amt(price),
		GasLimit: limit,
	}
}

func (env *testEnv) run(t *testing.T, tx *types.Transaction) (*ExecutionResult, bool) {
	t.Helper()
	ectx, err := NewContextFromTx(tx, testHeader, env.db, true)
	require.NoError(t, err)
	return env.engine.Run(context.Background(), ectx)
}

func TestEvmTransferScenario(t *testing.T) {
	env := newDefaultEnv(t, vmtest.Succeed(8400))
	res, ok := env.run(t, testTx(types.TxVersionEvm, 1, alice, carol, 500, 1, 100))
	require.True(t, ok)
	require.True(t, res.Receipt.Success)
	require.True(t, res.Receipt.Finalized())
	require.Equal(t, uint64(80), res.Receipt.CumulativeGas)
	require.Equal(t, uint64(80), res.GasUsed)
	require.Equal(t, uint64(42000-8400), res.GasUsedEth)

	require.Equal(t, "999420", env.db.GetBalance(alice).String())
	require.Equal(t, "500", env.db.GetBalance(carol).String())
	require.Equal(t, uint64(1), env.db.GetNonce(alice))
	require.True(t, env.db.HasPendingChanges())

	calls := env.evm.Calls()
	require.Len(t, calls, 1)
	args := calls[0]
	require.Equal(t, carol, args.Address)
	require.Equal(t, alice, args.Origin)
	require.Empty(t, args.Code)
	require.Equal(t, hexutil.Uint64(21000), args.GasLimit)
	require.Equal(t, "500000000", args.ApparentValue.ToInt().String())
	require.Equal(t, hexutil.Uint64(testChain.EvmChainID()), args.Extras.ChainID)
	require.Equal(t, hexutil.Uint64(testHeader.Number), args.Extras.BlockNumber)
	require.False(t, args.EstimateOnly)
	require.NotEmpty(t, args.Context)

	// The session of the call is closed once the engine is done with it.
	_, found := env.engine.Sessions().Lookup(args.Context)
	require.False(t, found)
}

func TestInsufficientBalanceRejected(t *testing.T) {
	env := newTestEnv(t, state.GenesisAlloc{alice: {Balance: amt(10)}}, vm.DefaultConfig, DefaultConfig)
	res, ok := env.run(t, testTx(types.TxVersionEvm, 1, alice, carol, 0, 5, 100))
	require.False(t, ok)
	require.Nil(t, res.Receipt)
	require.Equal(t, types.TxnStatusInsufficientBalance, res.Status)

	require.Equal(t, "10", env.db.GetBalance(alice).String())
	require.Zero(t, env.db.GetNonce(alice))
	require.False(t, env.db.HasPendingChanges())
	require.Empty(t, env.evm.Calls())
}

func TestValidationRejections(t *testing.T) {
	env := newDefaultEnv(t)
	tests := []struct {
		name string
		tx   *types.Transaction
		want types.TxnStatus
	}{
		{"unknown sender", testTx(types.TxVersionEvm, 1, carol, bob, 0, 1, 100), types.TxnStatusInvalidFromAccount},
		{"nonce too low", testTx(types.TxVersionEvm, 0, alice, bob, 0, 1, 100), types.TxnStatusNonceTooLow},
		{"nonce too high", testTx(types.TxVersionEvm, 2, alice, bob, 0, 1, 100), types.TxnStatusPresentNonceHigh},
		{"gas limit below intrinsic", testTx(types.TxVersionEvm, 1, alice, bob, 0, 1, 10), types.TxnStatusInsufficientGasLimit},
		{"value exceeds balance", testTx(types.TxVersionEvm, 1, alice, bob, 999_950, 1, 100), types.TxnStatusInsufficientBalance},
		{"creation below deployment gas", creationTx(initCode, 126), types.TxnStatusInsufficientGasLimit},
		{"gas deposit overflows", overpricedTx(), types.TxnStatusMathError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := env.run(t, tt.tx)
			require.False(t, ok)
			require.Equal(t, tt.want, res.Status)
			require.False(t, env.db.HasPendingChanges())
		})
	}
	require.Empty(t, env.evm.Calls())
}

func creationTx(code []byte, limit uint64) *types.Transaction {
	tx := testTx(types.TxVersionEvm, 1, alice, common.Address{}, 0, 1, limit)
	tx.Code = code
	return tx
}

func overpricedTx() *types.Transaction {
	tx := testTx(types.TxVersionEvm, 1, alice, bob, 0, 1, 100)
	tx.GasPrice = types.MustFromQa(new(uint256.Int).Lsh(uint256.NewInt(1), 127))
	return tx
}

func TestCreationGasFloor(t *testing.T) {
	// 20 non-zero and 5 zero bytes cost exactly 127 native gas units.
	code := append(bytesOf(0x01, 20), bytesOf(0x00, 5)...)
	require.Equal(t, 127*params.GasScalingFactor, params.DeploymentGas(code, nil))
	env := newDefaultEnv(t)

	below, err := NewContextFromTx(creationTx(code, 126), testHeader, env.db, true)
	require.NoError(t, err)
	status, ok := CheckGasLimit(below)
	require.False(t, ok)
	require.Equal(t, types.TxnStatusInsufficientGasLimit, status)

	exact, err := NewContextFromTx(creationTx(code, 127), testHeader, env.db, true)
	require.NoError(t, err)
	_, ok = CheckGasLimit(exact)
	require.True(t, ok)

	res, ok := env.engine.Run(context.Background(), exact)
	require.True(t, ok)
	require.True(t, res.Receipt.Success)
	require.Equal(t, uint64(127), res.GasUsed)
	require.Len(t, env.evm.Calls(), 1)
	require.Zero(t, env.evm.Calls()[0].GasLimit)
}

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestWideChainID(t *testing.T) {
	chain := *testChain
	chain.ChainID = 1<<33 + 1
	db, err := state.New(memorydb.New(), nil)
	require.NoError(t, err)
	_, err = db.Genesis(defaultAlloc())
	require.NoError(t, err)
	scilla := vmtest.New(vm.KindScilla)
	engine, err := NewTxExecutor(&chain, db, vm.NewBackends(vmtest.New(vm.KindEVM), scilla), nil, nil)
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	tx := testTx(types.TxVersionNative, 1, alice, scillaContract, 0, 1, 100)
	tx.ChainID = chain.ChainID
	res, err := engine.ExecuteTx(context.Background(), tx, testHeader)
	require.NoError(t, err)
	require.True(t, res.Receipt.Success)
	require.Equal(t, hexutil.Uint64(chain.ChainID), scilla.Calls()[0].Extras.ChainID)

	tx = testTx(types.TxVersionNative, 2, alice, scillaContract, 0, 1, 100)
	tx.ChainID = chain.ChainID & 0xffffffff
	_, err = engine.ExecuteTx(context.Background(), tx, testHeader)
	require.Equal(t, types.TxnStatusIncorrectTxnType, StatusOf(err))
}

func TestContextConstructionRejections(t *testing.T) {
	env := newDefaultEnv(t)

	malformed := testTx(types.TxVersionNative, 1, alice, bob, 0, 1, 100)
	malformed.Code = []byte("code with a recipient")
	_, err := NewContextFromTx(malformed, testHeader, env.db, true)
	require.Equal(t, types.TxnStatusIncorrectTxnType, StatusOf(err))

	tooHigh := testTx(types.TxVersionEvm, 1, alice, bob, 0, 1, testHeader.GasLimit)
	_, err = NewContextFromTx(tooHigh, testHeader, env.db, true)
	require.Equal(t, types.TxnStatusHighGasLimit, StatusOf(err))

	huge := testTx(types.TxVersionNative, 1, alice, common.Address{}, 0, 1, 100)
	huge.Code = make([]byte, params.MaxCodeSize+1)
	_, err = NewContextFromTx(huge, testHeader, env.db, true)
	require.Equal(t, types.TxnStatusHighByteSizeCode, StatusOf(err))

	wrongChain := testTx(types.TxVersionNative, 1, alice, bob, 0, 1, 100)
	wrongChain.ChainID++
	_, err = env.engine.ExecuteTx(context.Background(), wrongChain, testHeader)
	require.Equal(t, types.TxnStatusIncorrectTxnType, StatusOf(err))
}

func TestNativeTransfer(t *testing.T) {
	env := newDefaultEnv(t)
	res, ok := env.run(t, testTx(types.TxVersionNative, 1, alice, carol, 1000, 2, 100))
	require.True(t, ok)
	require.True(t, res.Receipt.Success)
	require.Equal(t, params.NormalTranGas, res.GasUsed)
	require.Empty(t, env.evm.Calls())
	require.Empty(t, env.scilla.Calls())

	require.Equal(t, "1000", env.db.GetBalance(carol).String())
	require.Equal(t, "998900", env.db.GetBalance(alice).String())
	require.Equal(t, uint64(1), env.db.GetNonce(alice))
}

func TestInterpreterTimeout(t *testing.T) {
	cfg := vm.DefaultConfig
	cfg.Timeout = 50 * time.Millisecond
	env := newTestEnv(t, defaultAlloc(), cfg, DefaultConfig, vmtest.Hang())

	res, ok := env.run(t, testTx(types.TxVersionEvm, 1, alice, evmContract, 100, 1, 100))
	require.True(t, ok)
	require.False(t, res.Receipt.Success)
	require.True(t, res.Receipt.HasError(types.ReceiptErrExecuteCmdTimeout))
	// Only the intrinsic gas is charged.
	require.Equal(t, uint64(50), res.GasUsed)
	require.Equal(t, "999950", env.db.GetBalance(alice).String())
	require.Equal(t, "5", env.db.GetBalance(evmContract).String())
	require.Equal(t, uint64(1), env.db.GetNonce(alice))

	require.Eventually(t, func() bool { return env.evm.Resets() == 1 }, 5*time.Second, 5*time.Millisecond)
}

func TestInterpreterTransportFailure(t *testing.T) {
	env := newDefaultEnv(t, vmtest.Fail(nil))
	res, ok := env.run(t, testTx(types.TxVersionEvm, 1, alice, evmContract, 100, 1, 100))
	require.True(t, ok)
	require.False(t, res.Receipt.Success)
	require.True(t, res.Receipt.HasError(types.ReceiptErrExecuteCmdFailed))
	require.Equal(t, "999950", env.db.GetBalance(alice).String())
	require.Equal(t, uint64(1), env.db.GetNonce(alice))
}

// A failure after a served trap charges the gas the interpreter reported
// before the trap.
func TestInterpreterFailureAfterTrap(t *testing.T) {
	trap := vmtest.TrapCreate(30_000, vm.Trap{
		ID:       1,
		Caller:   evmContract,
		Code:     initCode,
		GasLimit: 100_000,
	})
	tests := []struct {
		name    string
		handler vmtest.Handler
		want    types.ReceiptError
	}{
		{"timeout", vmtest.Hang(), types.ReceiptErrExecuteCmdTimeout},
		{"transport", vmtest.Fail(nil), types.ReceiptErrExecuteCmdFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := vm.DefaultConfig
			cfg.Timeout = 50 * time.Millisecond
			env := newTestEnv(t, defaultAlloc(), cfg, DefaultConfig, trap, tt.handler)

			res, ok := env.run(t, testTx(types.TxVersionEvm, 1, alice, evmContract, 0, 1, 1000))
			require.True(t, ok)
			require.False(t, res.Receipt.Success)
			require.True(t, res.Receipt.HasError(tt.want))
			require.Len(t, env.evm.Calls(), 2)

			// 30000 EVM units left are 71 native units: 929 are charged.
			require.Equal(t, uint64(929), res.GasUsed)
			require.Equal(t, uint64(1000*params.GasScalingFactor-30_000), res.GasUsedEth)
			require.Equal(t, "999071", env.db.GetBalance(alice).String())
			require.Zero(t, env.db.GetNonce(evmContract))
			require.Equal(t, uint64(1), env.db.GetNonce(alice))
		})
	}
}

func TestRevertDiscardsEffects(t *testing.T) {
	env := newDefaultEnv(t, vmtest.Revert(10_000,
		vmtest.SetBalance(bob, uint256.NewInt(1)),
		vmtest.SetStorage(evmContract, map[string][]byte{"k": {1}}),
	))
	res, ok := env.run(t, testTx(types.TxVersionEvm, 1, alice, evmContract, 100, 1, 100))
	require.True(t, ok)
	require.False(t, res.Receipt.Success)
	require.True(t, res.Receipt.HasError(types.ReceiptErrEvmRevert))

	// 10000 EVM units left are 23 native units: 77 are charged.
	require.Equal(t, uint64(77), res.GasUsed)
	require.Equal(t, "999923", env.db.GetBalance(alice).String())
	require.Equal(t, "5", env.db.GetBalance(evmContract).String())
	require.Equal(t, "1000000", env.db.GetBalance(bob).String())
	require.Nil(t, env.db.GetState(evmContract, "k"))
	require.Equal(t, uint64(1), env.db.GetNonce(alice))
}

func TestAbort(t *testing.T) {
	env := newDefaultEnv(t, vmtest.Abort(0))
	res, ok := env.run(t, testTx(types.TxVersionEvm, 1, alice, evmContract, 0, 1, 100))
	require.True(t, ok)
	require.True(t, res.Receipt.HasError(types.ReceiptErrEvmAbort))
	require.Equal(t, uint64(100), res.GasUsed)
	require.Equal(t, "999900", env.db.GetBalance(alice).String())
}

func TestApplyChanges(t *testing.T) {
	logs := []*types.Log{{Address: evmContract, Topics: []common.Hash{{0x01}}, Data: []byte{0xff}}}
	env := newDefaultEnv(t, vmtest.SucceedWithLogs(0, logs,
		vmtest.SetBalance(carol, uint256.NewInt(7_000_000)),
		vmtest.SetNonce(carol, big.NewInt(4)),
		vmtest.SetNonce(alice, big.NewInt(40)),
		vmtest.SetStorage(evmContract, map[string][]byte{"slot": {0x2a}}),
		vmtest.Delete(bob),
	))
	res, ok := env.run(t, testTx(types.TxVersionEvm, 1, alice, evmContract, 0, 1, 100))
	require.True(t, ok)
	require.True(t, res.Receipt.Success)
	require.Len(t, res.Receipt.Logs, 1)

	require.Equal(t, "7", env.db.GetBalance(carol).String())
	require.Equal(t, uint64(4), env.db.GetNonce(carol))
	require.Equal(t, []byte{0x2a}, env.db.GetState(evmContract, "slot"))
	// The origin nonce is only bumped by the engine.
	require.Equal(t, uint64(1), env.db.GetNonce(alice))
	// Delete zeroes the balance and keeps the account.
	require.True(t, env.db.AccountExists(bob))
	require.True(t, env.db.GetBalance(bob).IsZero())
	require.Contains(t, env.db.UpdatedAccounts(), bob)
}

func TestApplyReplacingCodeFails(t *testing.T) {
	env := newDefaultEnv(t, vmtest.Succeed(0,
		vmtest.SetBalance(carol, uint256.NewInt(1_000_000)),
		vmtest.SetCode(evmContract, []byte{0x00}),
	))
	res, ok := env.run(t, testTx(types.TxVersionEvm, 1, alice, evmContract, 0, 1, 100))
	require.True(t, ok)
	require.False(t, res.Receipt.Success)
	require.True(t, res.Receipt.HasError(types.ReceiptErrStateCorrupted))
	require.False(t, env.db.AccountExists(carol))
	require.Equal(t, vm.WithEvmPrefix(runtimeCode), env.db.GetCode(evmContract))
}

func recoverViolation(fn func()) (v *InvariantViolation) {
	defer func() {
		if r := recover(); r != nil {
			v, _ = r.(*InvariantViolation)
		}
	}()
	fn()
	return nil
}

func TestApplyOverflowPanics(t *testing.T) {
	tests := []struct {
		name  string
		apply vm.Apply
		field string
	}{
		{"balance beyond 256 bits", vmtest.SetBalanceBig(carol, new(big.Int).Lsh(big.NewInt(1), 300)), "balance"},
		{"balance beyond 128 bits in Qa", vmtest.SetBalanceBig(carol, new(big.Int).Lsh(big.NewInt(1), 200)), "balance"},
		{"negative balance", vmtest.SetBalanceBig(carol, big.NewInt(-1)), "balance"},
		{"nonce beyond 64 bits", vmtest.SetNonce(carol, new(big.Int).Lsh(big.NewInt(1), 64)), "nonce"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newDefaultEnv(t, vmtest.Succeed(0, tt.apply))
			tx := testTx(types.TxVersionEvm, 1, alice, evmContract, 0, 1, 100)

			v := recoverViolation(func() { env.run(t, tx) })
			require.NotNil(t, v)
			require.Equal(t, carol, v.Address)
			require.Equal(t, tt.field, v.Field)

			// Nothing was written and the store is usable again.
			require.Equal(t, "1000000", env.db.GetBalance(alice).String())
			require.Zero(t, env.db.GetNonce(alice))
			require.False(t, env.db.HasPendingChanges())
			attempt, ok := env.db.TryBegin()
			require.True(t, ok)
			attempt.Release()
		})
	}
}

func TestEvmContractCreation(t *testing.T) {
	want := types.CreateContractAddress(alice, 0, types.TxVersionEvm)
	env := newDefaultEnv(t, vmtest.Func(func(args *vm.CallArgs) (*vm.Result, error) {
		return &vm.Result{
			ExitReason:   vm.ExitReason{Kind: vm.ExitSucceed},
			RemainingGas: args.GasLimit / 2,
			Apply: []vm.Apply{
				vmtest.SetCode(args.Address, runtimeCode),
				vmtest.SetStorage(args.Address, map[string][]byte{"0x01": {0x2a}}),
			},
		}, nil
	}))
	tx := testTx(types.TxVersionEvm, 1, alice, common.Address{}, 300, 1, 1000)
	tx.Code = initCode

	res, ok := env.run(t, tx)
	require.True(t, ok)
	require.True(t, res.Receipt.Success)
	require.Equal(t, want, res.ContractAddress)

	args := env.evm.Calls()[0]
	require.Equal(t, want, args.Address)
	require.Equal(t, hexutil.Bytes(initCode), args.Code)
	require.Equal(t, hexutil.Uint64(420_000-params.DeploymentGas(initCode, nil)), args.GasLimit)

	require.Equal(t, vm.WithEvmPrefix(runtimeCode), env.db.GetCode(want))
	require.Equal(t, "300", env.db.GetBalance(want).String())
	require.Equal(t, []byte{0x2a}, env.db.GetState(want, "0x01"))
	require.Equal(t, []byte("7"), env.db.GetState(want, creationBlockKey))
	require.Equal(t, []byte(strings.ToLower(want.Hex())), env.db.GetState(want, thisAddressKey))
	require.Equal(t, uint64(1), env.db.GetNonce(alice))
}

func TestScillaContractCreation(t *testing.T) {
	env := newDefaultEnv(t)
	want := types.CreateContractAddress(alice, 0, types.TxVersionNative)
	code := []byte("scilla_version 0\ncontract Counter()")
	init := []byte(`[{"vname":"_scilla_version","type":"Uint32","value":"0"}]`)
	tx := testTx(types.TxVersionNative, 1, alice, common.Address{}, 0, 1, 1000)
	tx.Code, tx.Data = code, init

	res, ok := env.run(t, tx)
	require.True(t, ok)
	require.True(t, res.Receipt.Success)
	require.Equal(t, want, res.ContractAddress)
	require.Empty(t, env.evm.Calls())
	require.Len(t, env.scilla.Calls(), 1)

	require.Equal(t, code, env.db.GetCode(want))
	require.Equal(t, init, env.db.GetInitData(want))
	require.Equal(t, hexutil.Uint64(testChain.ChainID), env.scilla.Calls()[0].Extras.ChainID)
}

func TestCreationOverExistingContract(t *testing.T) {
	alloc := defaultAlloc()
	alloc[types.CreateContractAddress(alice, 0, types.TxVersionEvm)] = state.GenesisAccount{Code: vm.WithEvmPrefix(runtimeCode)}
	env := newTestEnv(t, alloc, vm.DefaultConfig, DefaultConfig)

	tx := testTx(types.TxVersionEvm, 1, alice, common.Address{}, 0, 1, 1000)
	tx.Code = initCode
	res, ok := env.run(t, tx)
	require.False(t, ok)
	require.Equal(t, types.TxnStatusFailContractAccountCreation, res.Status)
	require.Empty(t, env.evm.Calls())
	require.Equal(t, "1000000", env.db.GetBalance(alice).String())
	require.False(t, env.db.HasPendingChanges())
}

func TestNestedCreation(t *testing.T) {
	want := types.CreateContractAddress(evmContract, 0, types.TxVersionEvm)
	env := newDefaultEnv(t,
		vmtest.TrapCreate(30_000, vm.Trap{
			ID:       1,
			Caller:   evmContract,
			Value:    (*hexutil.Big)(big.NewInt(2_000_000)),
			Code:     initCode,
			GasLimit: 100_000,
		}),
		vmtest.Func(func(args *vm.CallArgs) (*vm.Result, error) {
			cont := args.Continuation
			if cont == nil || !cont.Succeeded || cont.Address == nil {
				return &vm.Result{ExitReason: vm.ExitReason{Kind: vm.ExitAbort}}, nil
			}
			return &vm.Result{
				ExitReason:   vm.ExitReason{Kind: vm.ExitSucceed},
				RemainingGas: 20_000,
				Apply:        []vm.Apply{vmtest.SetCode(*cont.Address, runtimeCode)},
			}, nil
		}),
	)
	res, ok := env.run(t, testTx(types.TxVersionEvm, 1, alice, evmContract, 0, 1, 1000))
	require.True(t, ok)
	require.True(t, res.Receipt.Success)

	calls := env.evm.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, hexutil.Uint64(30_000), calls[1].GasLimit)
	require.Equal(t, want, *calls[1].Continuation.Address)
	require.NotEqual(t, calls[0].Context, calls[1].Context)

	require.Equal(t, vm.WithEvmPrefix(runtimeCode), env.db.GetCode(want))
	require.Equal(t, "2", env.db.GetBalance(want).String())
	require.Equal(t, "3", env.db.GetBalance(evmContract).String())
	require.Equal(t, uint64(1), env.db.GetNonce(evmContract))
}

func TestNestedCreationUnaffordable(t *testing.T) {
	env := newDefaultEnv(t,
		vmtest.TrapCreate(30_000, vm.Trap{
			ID:       9,
			Caller:   evmContract,
			Value:    (*hexutil.Big)(big.NewInt(6_000_000)),
			Code:     initCode,
			GasLimit: 100_000,
		}),
		vmtest.Succeed(20_000),
	)
	res, ok := env.run(t, testTx(types.TxVersionEvm, 1, alice, evmContract, 0, 1, 1000))
	require.True(t, ok)
	require.True(t, res.Receipt.Success)

	cont := env.evm.Calls()[1].Continuation
	require.Equal(t, hexutil.Uint64(9), cont.ID)
	require.False(t, cont.Succeeded)
	require.Nil(t, cont.Address)
	require.Zero(t, env.db.GetNonce(evmContract))
	require.Equal(t, "5", env.db.GetBalance(evmContract).String())
}

func TestTrapDepthExceeded(t *testing.T) {
	cfg := DefaultConfig
	cfg.MaxTrapDepth = 2
	env := newTestEnv(t, defaultAlloc(), vm.DefaultConfig, cfg, vmtest.TrapCreate(30_000, vm.Trap{
		ID:       1,
		Caller:   evmContract,
		Code:     initCode,
		GasLimit: 100_000,
	}))
	res, ok := env.run(t, testTx(types.TxVersionEvm, 1, alice, evmContract, 0, 1, 1000))
	require.True(t, ok)
	require.False(t, res.Receipt.Success)
	require.True(t, res.Receipt.HasError(types.ReceiptErrMaxEdgesReached))
	require.Len(t, env.evm.Calls(), 3)
	// Nested creations served before the limit are rolled back.
	require.Zero(t, env.db.GetNonce(evmContract))
	require.Equal(t, uint64(1000-30_000/params.GasScalingFactor), res.GasUsed)
}

func TestCallTrapUnsupported(t *testing.T) {
	env := newDefaultEnv(t, vmtest.TrapCreate(0, vm.Trap{ID: 1, Kind: vm.TrapCall, Caller: evmContract, Target: bob}))
	res, ok := env.run(t, testTx(types.TxVersionEvm, 1, alice, evmContract, 0, 1, 100))
	require.True(t, ok)
	require.True(t, res.Receipt.HasError(types.ReceiptErrCallContractFailed))
	require.Len(t, env.evm.Calls(), 1)
}

func TestConservationOfValue(t *testing.T) {
	env := newDefaultEnv(t)
	total := func() uint64 {
		var sum uint64
		for _, a := range []common.Address{alice, bob, carol, evmContract, scillaContract} {
			v, ok := env.db.GetBalance(a).Uint64()
			require.True(t, ok)
			sum += v
		}
		return sum
	}
	before := total()

	var charged uint64
	nonces := map[common.Address]uint64{}
	for i, step := range []struct {
		from, to common.Address
		amount   uint64
	}{
		{alice, bob, 1000}, {bob, carol, 250_000}, {carol, alice, 10}, {alice, carol, 999_999_999}, {bob, alice, 1},
	} {
		nonces[step.from]++
		res, ok := env.run(t, testTx(types.TxVersionNative, nonces[step.from], step.from, step.to, step.amount, 3, 60))
		if !ok {
			nonces[step.from]--
			continue
		}
		charged += res.GasUsed * 3
		require.Equal(t, before, total()+charged, "step %d", i)
	}
	_, err := env.db.Commit()
	require.NoError(t, err)
	require.Equal(t, before, total()+charged)
}

func TestConcurrentExecutions(t *testing.T) {
	const senders = 8
	alloc := state.GenesisAlloc{}
	for i := 0; i < senders; i++ {
		alloc[common.BigToAddress(big.NewInt(int64(0x1000+i)))] = state.GenesisAccount{Balance: amt(1_000_000)}
	}
	env := newTestEnv(t, alloc, vm.DefaultConfig, DefaultConfig, vmtest.Succeed(0))

	var g errgroup.Group
	for i := 0; i < senders; i++ {
		from := common.BigToAddress(big.NewInt(int64(0x1000 + i)))
		g.Go(func() error {
			for nonce := uint64(1); nonce <= 5; nonce++ {
				_, err := env.engine.ExecuteTx(context.Background(), testTx(types.TxVersionEvm, nonce, from, carol, 10, 1, 100), testHeader)
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Equal(t, "400", env.db.GetBalance(carol).String())
	for addr := range alloc {
		require.Equal(t, uint64(5), env.db.GetNonce(addr))
		// Each transaction paid 10 and was charged its whole gas limit.
		require.Equal(t, "999450", env.db.GetBalance(addr).String())
	}
}

func TestCallAndEstimate(t *testing.T) {
	env := newDefaultEnv(t, vmtest.Func(func(args *vm.CallArgs) (*vm.Result, error) {
		return &vm.Result{
			ExitReason:   vm.ExitReason{Kind: vm.ExitSucceed},
			RemainingGas: args.GasLimit - 5000,
			ReturnValue:  []byte{0xca, 0xfe},
			Apply:        []vm.Apply{vmtest.SetStorage(args.Address, map[string][]byte{"k": {1}})},
		}, nil
	}))
	call := &CallParams{From: alice, To: &evmContract, Data: []byte{0x01}}

	out, err := env.engine.Call(context.Background(), call, testHeader)
	require.NoError(t, err)
	require.Equal(t, []byte{0xca, 0xfe}, out)

	gas, err := env.engine.EstimateGas(context.Background(), call, testHeader)
	require.NoError(t, err)
	require.Equal(t, uint64(21000+5000), gas)

	for _, args := range env.evm.Calls() {
		require.True(t, args.EstimateOnly)
	}
	require.False(t, env.db.HasPendingChanges())
	require.Zero(t, env.db.GetNonce(alice))
	require.Nil(t, env.db.GetState(evmContract, "k"))
	require.Equal(t, "1000000", env.db.GetBalance(alice).String())
}

func TestCallReverted(t *testing.T) {
	env := newDefaultEnv(t, vmtest.Func(func(args *vm.CallArgs) (*vm.Result, error) {
		return &vm.Result{
			ExitReason:   vm.ExitReason{Kind: vm.ExitRevert},
			RemainingGas: args.GasLimit,
			ReturnValue:  []byte{0x08, 0xc3},
		}, nil
	}))
	out, err := env.engine.Call(context.Background(), &CallParams{From: alice, To: &evmContract}, testHeader)
	require.ErrorIs(t, err, ErrExecutionReverted)
	require.Equal(t, []byte{0x08, 0xc3}, out)

	_, err = env.engine.Call(context.Background(), &CallParams{From: carol, To: &evmContract}, testHeader)
	require.Equal(t, types.TxnStatusInvalidFromAccount, StatusOf(err))
}
