package vm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"
)

var (
	// ErrTimedOut is returned when the interpreter did not answer in time.
	ErrTimedOut = errors.New("interpreter call timed out")

	// ErrCallFailed wraps every other failure to obtain a result.
	ErrCallFailed = errors.New("interpreter call failed")
)

// Invoker runs interpreter calls on a worker pool and waits for them for at
// most the configured timeout. It is the only component that blocks on an
// external process.
type Invoker struct {
	backends *Backends
	pool     *ants.Pool
	config   Config
	resets   *rate.Limiter
	log      log.Logger
}

// NewInvoker creates an invoker over the given backends.
func NewInvoker(backends *Backends, config *Config) (*Invoker, error) {
	if config == nil {
		config = &DefaultConfig
	}
	cfg := config.sanitize()
	pool, err := ants.NewPool(cfg.PoolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("interpreter pool: %w", err)
	}
	return &Invoker{
		backends: backends,
		pool:     pool,
		config:   cfg,
		resets:   rate.NewLimiter(rate.Every(cfg.ResetInterval), 1),
		log:      log.New("module", "invoker"),
	}, nil
}

// Close stops the worker pool.
func (iv *Invoker) Close() {
	iv.pool.Release()
}

type outcome struct {
	res *Result
	err error
}

// Invoke sends args to the interpreter of the given kind. It returns
// ErrTimedOut if no answer arrived within the timeout and an error wrapping
// ErrCallFailed for transport failures and malformed answers. A call that
// returned an error has never succeeded.
func (iv *Invoker) Invoke(ctx context.Context, kind Kind, args *CallArgs) (*Result, error) {
	backend, err := iv.backends.For(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCallFailed, err)
	}
	start := time.Now()
	defer invokeTimer.UpdateSince(start)

	ctx, cancel := context.WithTimeout(ctx, iv.config.timeout(kind))
	defer cancel()

	// Buffered so a late answer never blocks the worker.
	done := make(chan outcome, 1)
	req := args.Copy()
	if err := iv.pool.Submit(func() {
		res, err := backend.Call(ctx, req)
		done <- outcome{res, err}
	}); err != nil {
		failureMeter.Mark(1)
		return nil, fmt.Errorf("%w: %v", ErrCallFailed, err)
	}

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, iv.timedOut(backend, args, start)
			}
			failureMeter.Mark(1)
			iv.log.Warn("Interpreter call failed", "backend", backend.Name(), "context", args.Context, "err", out.err)
			return nil, fmt.Errorf("%w: %v", ErrCallFailed, out.err)
		}
		if out.res == nil {
			failureMeter.Mark(1)
			return nil, fmt.Errorf("%w: %v", ErrCallFailed, ErrMalformedResult)
		}
		if err := out.res.Validate(); err != nil {
			failureMeter.Mark(1)
			return nil, fmt.Errorf("%w: %v", ErrCallFailed, err)
		}
		return out.res, nil

	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, iv.timedOut(backend, args, start)
		}
		failureMeter.Mark(1)
		return nil, fmt.Errorf("%w: %v", ErrCallFailed, ctx.Err())
	}
}

func (iv *Invoker) timedOut(backend Backend, args *CallArgs, start time.Time) error {
	timeoutMeter.Mark(1)
	iv.log.Warn("Interpreter call timed out", "backend", backend.Name(), "context", args.Context,
		"elapsed", time.Since(start), "timeout", iv.config.timeout(backend.Kind()))

	if iv.config.ResetOnTimeout && iv.resets.Allow() {
		resetMeter.Mark(1)
		go func() {
			if err := backend.Reset(); err != nil {
				iv.log.Warn("Interpreter reset failed", "backend", backend.Name(), "err", err)
			}
		}()
	}
	return ErrTimedOut
}
