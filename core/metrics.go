package core

import "github.com/ethereum/go-ethereum/metrics"

var (
	runTimer        = metrics.NewRegisteredTimer("txcore/engine/run", nil)
	rejectedMeter   = metrics.NewRegisteredMeter("txcore/engine/rejected", nil)
	committedMeter  = metrics.NewRegisteredMeter("txcore/engine/committed", nil)
	rolledBackMeter = metrics.NewRegisteredMeter("txcore/engine/rolledback", nil)
	trapMeter       = metrics.NewRegisteredMeter("txcore/engine/trap", nil)
	blockTimer      = metrics.NewRegisteredTimer("txcore/block/process", nil)
)
