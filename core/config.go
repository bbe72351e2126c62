package core

import "github.com/shardnode/txcore/params"

// Config are the engine settings.
type Config struct {
	MaxTrapDepth int    // interpreter continuations serviced per execution
	RPCGasCap    uint64 // gas limit of direct calls that do not set one, EVM units
}

// DefaultConfig contains the default engine settings.
var DefaultConfig = Config{
	MaxTrapDepth: params.MaxTrapDepth,
	RPCGasCap:    50_000_000,
}
