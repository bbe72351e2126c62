package state

import (
	"sync/atomic"

	"github.com/ethereum/go-ethereum/metrics"
)

var (
	accountMissMeter = metrics.NewRegisteredMeter("txcore/state/account/miss", nil)
	storageMissMeter = metrics.NewRegisteredMeter("txcore/state/storage/miss", nil)
	commitTimer      = metrics.NewRegisteredTimer("txcore/state/commit", nil)
	attemptTimer     = metrics.NewRegisteredTimer("txcore/state/attempt", nil)

	accountMisses atomic.Int64
	storageMisses atomic.Int64
)

// ResetProfileCounters zeros the database miss counters.
func ResetProfileCounters() {
	accountMisses.Store(0)
	storageMisses.Store(0)
}

// ProfileCounters returns (accountMisses, storageMisses) since last reset.
func ProfileCounters() (int64, int64) {
	return accountMisses.Load(), storageMisses.Load()
}

func markAccountMiss() {
	accountMisses.Add(1)
	accountMissMeter.Mark(1)
}

func markStorageMiss() {
	storageMisses.Add(1)
	storageMissMeter.Mark(1)
}
