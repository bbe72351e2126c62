package vm

import "github.com/ethereum/go-ethereum/metrics"

var (
	invokeTimer   = metrics.NewRegisteredTimer("txcore/vm/invoke", nil)
	timeoutMeter  = metrics.NewRegisteredMeter("txcore/vm/timeout", nil)
	failureMeter  = metrics.NewRegisteredMeter("txcore/vm/failure", nil)
	resetMeter    = metrics.NewRegisteredMeter("txcore/vm/reset", nil)
	sessionsGauge = metrics.NewRegisteredGauge("txcore/vm/sessions", nil)
)
