package types

import (
	"errors"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"
	"github.com/shardnode/txcore/params"
)

var (
	ErrGasLimitOverflow = errors.New("gas limit overflows in EVM units")
	ErrGasPriceOverflow = errors.New("gas price overflows")

	gasScale = uint256.NewInt(params.GasScalingFactor)
)

// GasConv carries a gas price and limit in both the native and the EVM unit
// systems. Both projections are computed once, when the value is built, and
// are related by params.GasScalingFactor for the lifetime of the value.
type GasConv struct {
	priceCore uint256.Int // Qa per native gas unit
	priceEth  uint256.Int // Wei per EVM gas unit
	limitCore uint64
	limitEth  uint64
	fromEth   bool
}

// GasConvFromNative builds a converter from a native price (Qa per native gas)
// and a native gas limit.
func GasConvFromNative(price Amount, limit uint64) (GasConv, error) {
	limitEth, overflow := math.SafeMul(limit, params.GasScalingFactor)
	if overflow {
		return GasConv{}, ErrGasLimitOverflow
	}
	g := GasConv{limitCore: limit, limitEth: limitEth}
	g.priceCore.Set(&price.qa)
	// Wei per EVM gas = Qa per core gas * Wei per Qa / EVM gas per core gas.
	g.priceEth.Mul(&price.qa, weiScale)
	g.priceEth.Div(&g.priceEth, gasScale)
	return g, nil
}

// GasConvFromEthApi builds a converter from an EVM price (Wei per EVM gas) and
// an EVM gas limit. The native price is rounded up so the protocol never
// undercharges, and the EVM limit is truncated to a whole number of native units.
func GasConvFromEthApi(price *uint256.Int, limit uint64) (GasConv, error) {
	g := GasConv{fromEth: true}
	if price != nil {
		g.priceEth.Set(price)
	}
	var (
		num uint256.Int
		rem uint256.Int
	)
	if _, overflow := num.MulOverflow(&g.priceEth, gasScale); overflow {
		return GasConv{}, ErrGasPriceOverflow
	}
	g.priceCore.DivMod(&num, weiScale, &rem)
	if !rem.IsZero() {
		g.priceCore.AddUint64(&g.priceCore, 1)
	}
	if g.priceCore.BitLen() > maxAmountBits {
		return GasConv{}, ErrGasPriceOverflow
	}
	g.limitCore = GasEthToCore(limit)
	g.limitEth = g.limitCore * params.GasScalingFactor
	return g, nil
}

// PriceInNative returns the price in Qa per native gas unit.
func (g GasConv) PriceInNative() Amount {
	return Amount{qa: g.priceCore}
}

// PriceInEthApi returns the price in Wei per EVM gas unit.
func (g GasConv) PriceInEthApi() *uint256.Int {
	return new(uint256.Int).Set(&g.priceEth)
}

func (g GasConv) LimitInNative() uint64 { return g.limitCore }
func (g GasConv) LimitInEthApi() uint64 { return g.limitEth }

// FromEthApi reports whether the price was given in EVM units.
func (g GasConv) FromEthApi() bool { return g.fromEth }

// GasEthToCore converts EVM gas units to native units, truncating.
func GasEthToCore(gas uint64) uint64 {
	return gas / params.GasScalingFactor
}

// GasCoreToEth converts native gas units to EVM units and reports whether
// the result fit in 64 bits.
func GasCoreToEth(gas uint64) (uint64, bool) {
	v, overflow := math.SafeMul(gas, params.GasScalingFactor)
	return v, !overflow
}
