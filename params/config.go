package params

import "fmt"

// ChainConfig is the core config which determines the chain parameters handed
// to the interpreters with every call.
type ChainConfig struct {
	ChainID       uint64 // Chain identifier reported to the interpreter
	BlockGasLimit uint64 // Block gas limit in EVM units
	Difficulty    uint64 // Reported block difficulty
}

// DefaultChainConfig contains the values used by the command line tool and tests.
var DefaultChainConfig = &ChainConfig{
	ChainID:       33101,
	BlockGasLimit: 84_000_000,
	Difficulty:    1,
}

// String implements fmt.Stringer.
func (c *ChainConfig) String() string {
	return fmt.Sprintf("{ChainID: %d BlockGasLimit: %d Difficulty: %d}", c.ChainID, c.BlockGasLimit, c.Difficulty)
}

// EvmChainID returns the chain id the EVM interpreter should see. EVM chain
// ids are offset so they never collide with Ethereum networks.
func (c *ChainConfig) EvmChainID() uint64 {
	return c.ChainID | 0x8000
}
