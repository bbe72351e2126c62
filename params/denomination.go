package params

// These are the multipliers for the native and EVM denominations.
// Example: To get the Wei value of an amount in Qa, use
//
//	new(uint256.Int).Mul(value, uint256.NewInt(params.EvmZilScalingFactor))
const (
	Qa  = 1
	Li  = 1_000_000
	Zil = 1_000_000_000_000

	Wei  = 1
	GWei = 1_000_000_000

	// EvmZilScalingFactor is the number of Wei in one Qa.
	EvmZilScalingFactor = 1_000_000
)
