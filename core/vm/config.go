package vm

import (
	"time"

	"github.com/shardnode/txcore/params"
)

// Config are the interpreter invocation settings.
type Config struct {
	Timeout        time.Duration // upper bound of one EVM call
	ScillaTimeout  time.Duration // upper bound of one Scilla call
	ResetOnTimeout bool          // recycle the interpreter connection after a timeout
	ResetInterval  time.Duration // minimum time between two resets
	PoolSize       int           // concurrent interpreter calls

	EVMEndpoint    string `toml:",omitempty"`
	ScillaEndpoint string `toml:",omitempty"`
}

// DefaultConfig contains the default interpreter settings.
var DefaultConfig = Config{
	Timeout:        params.EvmRpcTimeout,
	ScillaTimeout:  params.ScillaRpcTimeout,
	ResetOnTimeout: true,
	ResetInterval:  10 * time.Second,
	PoolSize:       64,
}

func (c *Config) sanitize() Config {
	out := *c
	if out.Timeout <= 0 {
		out.Timeout = DefaultConfig.Timeout
	}
	if out.ScillaTimeout <= 0 {
		out.ScillaTimeout = out.Timeout
	}
	if out.ResetInterval <= 0 {
		out.ResetInterval = DefaultConfig.ResetInterval
	}
	if out.PoolSize <= 0 {
		out.PoolSize = DefaultConfig.PoolSize
	}
	return out
}

func (c *Config) timeout(kind Kind) time.Duration {
	if kind == KindScilla {
		return c.ScillaTimeout
	}
	return c.Timeout
}
