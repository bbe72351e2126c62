package core

import (
	"context"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/shardnode/txcore/core/state"
	"github.com/shardnode/txcore/core/types"
)

// ProcessResult is the outcome of a processed block. Receipts and Statuses
// are indexed like the block's transactions; rejected transactions have a
// nil receipt.
type ProcessResult struct {
	Receipts []*types.Receipt
	Statuses []types.TxnStatus
	GasUsed  uint64 // native units
	Root     common.Hash
}

// StateProcessor is a basic Processor, which takes care of transitioning
// state from one point to another.
type StateProcessor struct {
	state    *state.StateDB
	executor TxExecutor
}

// NewStateProcessor initialises a new StateProcessor.
func NewStateProcessor(db *state.StateDB, executor TxExecutor) *StateProcessor {
	return &StateProcessor{
		state:    db,
		executor: executor,
	}
}

// Process processes the state changes according to the block's transactions
// by running them through the executor one at a time, then commits the
// store.
//
// Process returns the receipts and statuses of the transactions, the gas
// used and the new state root. Rejected transactions do not make Process
// fail; an error is returned only if the context was cancelled or the store
// could not be written. After a cancellation the transactions already
// executed stay in the store's dirty layer.
func (p *StateProcessor) Process(ctx context.Context, block *types.Block) (*ProcessResult, error) {
	var (
		start  = time.Now()
		header = block.Header
		txs    = block.Transactions
		result = &ProcessResult{
			Receipts: make([]*types.Receipt, len(txs)),
			Statuses: make([]types.TxnStatus, len(txs)),
		}
	)
	defer blockTimer.UpdateSince(start)

	// Collect all accounts that will be touched by this block's transactions
	touched := mapset.NewThreadUnsafeSet[common.Address]()
	for _, tx := range txs {
		touched.Add(tx.From)
		if !tx.IsCreation() {
			touched.Add(tx.To)
		}
	}
	keys := make([]state.BatchKey, 0, touched.Cardinality())
	touched.Each(func(addr common.Address) bool {
		keys = append(keys, state.BatchKey{Address: addr})
		return false
	})
	state.ResetProfileCounters()
	p.state.Prefetch(keys)
	log.Debug("Prefetched block accounts", "block", block.Number(), "accounts", len(keys), "txs", len(txs))

	for i, tx := range txs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := p.executor.ExecuteTx(ctx, tx, header)
		if err != nil {
			result.Statuses[i] = StatusOf(err)
			log.Debug("Transaction rejected", "block", block.Number(), "index", i, "hash", tx.Hash(), "status", result.Statuses[i], "err", err)
			continue
		}
		result.Receipts[i] = res.Receipt
		result.Statuses[i] = types.TxnStatusConfirmed
		result.GasUsed += res.GasUsed
	}

	root, err := p.state.Commit()
	if err != nil {
		return nil, fmt.Errorf("could not commit block %d: %w", block.Number(), err)
	}
	result.Root = root

	accMiss, storMiss := state.ProfileCounters()
	log.Info("Processed block", "number", block.Number(), "txs", len(txs), "gas", result.GasUsed,
		"root", root, "accountMiss", accMiss, "storageMiss", storMiss, "elapsed", common.PrettyDuration(time.Since(start)))
	return result, nil
}
