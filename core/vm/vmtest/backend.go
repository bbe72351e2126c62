// Package vmtest provides a scripted interpreter backend for tests.
package vmtest

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/shardnode/txcore/core/types"
	"github.com/shardnode/txcore/core/vm"
)

// Handler answers one interpreter call.
type Handler func(ctx context.Context, args *vm.CallArgs) (*vm.Result, error)

// Backend is a vm.Backend replaying a sequence of handlers. The last handler
// answers every call beyond the sequence.
type Backend struct {
	kind     vm.Kind
	handlers []Handler

	mu     sync.Mutex
	calls  []*vm.CallArgs
	resets atomic.Int32
}

// New returns a backend of the given kind.
func New(kind vm.Kind, handlers ...Handler) *Backend {
	if len(handlers) == 0 {
		handlers = []Handler{Succeed(0)}
	}
	return &Backend{kind: kind, handlers: handlers}
}

func (b *Backend) Kind() vm.Kind { return b.kind }
func (b *Backend) Name() string  { return b.kind.String() + "-test" }

func (b *Backend) Call(ctx context.Context, args *vm.CallArgs) (*vm.Result, error) {
	b.mu.Lock()
	n := len(b.calls)
	b.calls = append(b.calls, args.Copy())
	h := b.handlers[len(b.handlers)-1]
	if n < len(b.handlers) {
		h = b.handlers[n]
	}
	b.mu.Unlock()
	return h(ctx, args)
}

func (b *Backend) Reset() error {
	b.resets.Add(1)
	return nil
}

// Calls returns the requests received so far.
func (b *Backend) Calls() []*vm.CallArgs {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*vm.CallArgs(nil), b.calls...)
}

// Resets returns how many times Reset was called.
func (b *Backend) Resets() int { return int(b.resets.Load()) }

func result(kind vm.ExitKind, remaining uint64, applies []vm.Apply) *vm.Result {
	return &vm.Result{
		ExitReason:   vm.ExitReason{Kind: kind},
		RemainingGas: hexutil.Uint64(remaining),
		Apply:        applies,
	}
}

// Succeed answers with a successful exit.
func Succeed(remaining uint64, applies ...vm.Apply) Handler {
	return func(context.Context, *vm.CallArgs) (*vm.Result, error) {
		return result(vm.ExitSucceed, remaining, applies), nil
	}
}

// SucceedWithLogs answers with a successful exit emitting logs.
func SucceedWithLogs(remaining uint64, logs []*types.Log, applies ...vm.Apply) Handler {
	return func(context.Context, *vm.CallArgs) (*vm.Result, error) {
		res := result(vm.ExitSucceed, remaining, applies)
		res.Logs = logs
		return res, nil
	}
}

// Revert answers with a reverted exit. Reported state changes must be
// ignored by the host.
func Revert(remaining uint64, applies ...vm.Apply) Handler {
	return func(context.Context, *vm.CallArgs) (*vm.Result, error) {
		res := result(vm.ExitRevert, remaining, applies)
		res.ExitReason.Reason = "reverted"
		return res, nil
	}
}

// Abort answers with an aborted exit.
func Abort(remaining uint64) Handler {
	return func(context.Context, *vm.CallArgs) (*vm.Result, error) {
		res := result(vm.ExitAbort, remaining, nil)
		res.ExitReason.Reason = "aborted"
		return res, nil
	}
}

// TrapCreate answers with a nested contract creation request.
func TrapCreate(remaining uint64, trap vm.Trap) Handler {
	return func(context.Context, *vm.CallArgs) (*vm.Result, error) {
		res := result(vm.ExitTrap, remaining, nil)
		t := trap
		if t.Kind == "" {
			t.Kind = vm.TrapCreate
		}
		res.Trap = &t
		return res, nil
	}
}

// Hang blocks until the call is abandoned.
func Hang() Handler {
	return func(ctx context.Context, _ *vm.CallArgs) (*vm.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// ErrTransport is the error returned by Fail handlers by default.
var ErrTransport = errors.New("connection refused")

// Fail answers with a transport error.
func Fail(err error) Handler {
	if err == nil {
		err = ErrTransport
	}
	return func(context.Context, *vm.CallArgs) (*vm.Result, error) {
		return nil, err
	}
}

// Func wraps an arbitrary handler.
func Func(fn func(args *vm.CallArgs) (*vm.Result, error)) Handler {
	return func(_ context.Context, args *vm.CallArgs) (*vm.Result, error) {
		return fn(args)
	}
}

// SetBalance is an apply entry setting the balance of addr, in Wei.
func SetBalance(addr common.Address, wei *uint256.Int) vm.Apply {
	return vm.Apply{Modify: &vm.ApplyModify{Address: addr, Balance: (*hexutil.Big)(wei.ToBig())}}
}

// SetBalanceBig is like SetBalance for values that may exceed 256 bits.
func SetBalanceBig(addr common.Address, wei *big.Int) vm.Apply {
	return vm.Apply{Modify: &vm.ApplyModify{Address: addr, Balance: (*hexutil.Big)(wei)}}
}

// SetNonce is an apply entry setting the nonce of addr.
func SetNonce(addr common.Address, nonce *big.Int) vm.Apply {
	return vm.Apply{Modify: &vm.ApplyModify{Address: addr, Nonce: (*hexutil.Big)(nonce)}}
}

// SetStorage is an apply entry writing storage of addr.
func SetStorage(addr common.Address, entries map[string][]byte, deletions ...string) vm.Apply {
	storage := make(map[string]hexutil.Bytes, len(entries))
	for k, v := range entries {
		storage[k] = v
	}
	return vm.Apply{Modify: &vm.ApplyModify{Address: addr, Storage: storage, Deletions: deletions}}
}

// SetCode is an apply entry deploying code at addr.
func SetCode(addr common.Address, code []byte) vm.Apply {
	return vm.Apply{Modify: &vm.ApplyModify{Address: addr, Code: code}}
}

// Delete is an apply entry deleting addr.
func Delete(addr common.Address) vm.Apply {
	return vm.Apply{Delete: &vm.ApplyDelete{Address: addr}}
}
