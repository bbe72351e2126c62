package types

import (
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/shardnode/txcore/params"
	"github.com/stretchr/testify/require"
)

func TestGasScalingFactor(t *testing.T) {
	require.Equal(t, uint64(420), uint64(params.GasScalingFactor))
}

func TestGasConvFromNative(t *testing.T) {
	g, err := GasConvFromNative(AmountFromUint64(2_000_000), 100)
	require.NoError(t, err)

	require.Equal(t, uint64(100), g.LimitInNative())
	require.Equal(t, uint64(42_000), g.LimitInEthApi())
	require.Equal(t, "2000000", g.PriceInNative().String())
	// 2e6 Qa * 1e6 Wei/Qa / 420 gas
	require.Equal(t, "4761904761", g.PriceInEthApi().Dec())
	require.False(t, g.FromEthApi())

	_, err = GasConvFromNative(AmountFromUint64(1), math.MaxUint64)
	require.ErrorIs(t, err, ErrGasLimitOverflow)
}

func TestGasConvFromEthApi(t *testing.T) {
	g, err := GasConvFromEthApi(uint256.NewInt(4_761_904_761), 42_419)
	require.NoError(t, err)

	// Limit truncates to whole native units and the EVM limit is re-derived.
	require.Equal(t, uint64(100), g.LimitInNative())
	require.Equal(t, uint64(42_000), g.LimitInEthApi())
	// 4761904761 * 420 / 1e6 = 1999999.99962, rounded up.
	require.Equal(t, "2000000", g.PriceInNative().String())
	require.Equal(t, "4761904761", g.PriceInEthApi().Dec())
	require.True(t, g.FromEthApi())

	exact, err := GasConvFromEthApi(uint256.NewInt(params.EvmZilScalingFactor), 21_000)
	require.NoError(t, err)
	require.Equal(t, "420", exact.PriceInNative().String())
}

func TestGasConvLimitInvariant(t *testing.T) {
	for _, limit := range []uint64{0, 1, 419, 420, 421, 21_000, 1_000_000_007} {
		g, err := GasConvFromEthApi(uint256.NewInt(1), limit)
		require.NoError(t, err)
		require.Equal(t, g.LimitInNative()*params.GasScalingFactor, g.LimitInEthApi())
		require.LessOrEqual(t, g.LimitInEthApi(), limit)

		n, err := GasConvFromNative(AmountFromUint64(1), limit)
		require.NoError(t, err)
		require.Equal(t, n.LimitInNative()*params.GasScalingFactor, n.LimitInEthApi())
	}
}

func TestGasConvPriceOverflow(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	_, err := GasConvFromEthApi(max, 21_000)
	require.ErrorIs(t, err, ErrGasPriceOverflow)
}

func TestGasUnitHelpers(t *testing.T) {
	require.Equal(t, uint64(0), GasEthToCore(419))
	require.Equal(t, uint64(1), GasEthToCore(420))
	require.Equal(t, uint64(20), GasEthToCore(8_400))

	v, ok := GasCoreToEth(50)
	require.True(t, ok)
	require.Equal(t, uint64(21_000), v)

	_, ok = GasCoreToEth(math.MaxUint64)
	require.False(t, ok)
}
