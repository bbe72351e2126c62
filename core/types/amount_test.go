package types

import (
	"encoding/json"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestAmountWeiRoundTrip(t *testing.T) {
	for _, v := range []string{"0", "1", "999", "1000000000000", "340282366920938463463374607431768211455"} {
		qa := uint256.MustFromDecimal(v)
		a, err := FromQa(qa)
		require.NoError(t, err)

		wei := a.ToWei()
		back := new(uint256.Int).Div(wei, weiScale)
		require.True(t, back.Eq(qa), "toWei/scale mismatch for %s", v)

		b, err := FromWei(wei)
		require.NoError(t, err)
		require.True(t, b.Eq(a))
		require.True(t, new(uint256.Int).Mul(b.ToQa(), weiScale).Eq(wei))
	}
}

func TestAmountFromWeiTruncates(t *testing.T) {
	a, err := FromWei(uint256.NewInt(2_999_999))
	require.NoError(t, err)
	require.Equal(t, "2", a.String())

	a, err = FromWei(uint256.NewInt(999_999))
	require.NoError(t, err)
	require.True(t, a.IsZero())
}

func TestAmountOverflow(t *testing.T) {
	big := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	_, err := FromQa(big)
	require.ErrorIs(t, err, ErrAmountOverflow)

	// 2^128 Qa expressed in Wei still leaves the native domain.
	_, err = FromWei(new(uint256.Int).Mul(big, weiScale))
	require.ErrorIs(t, err, ErrAmountOverflow)

	max := MustFromQa(new(uint256.Int).Sub(big, uint256.NewInt(1)))
	_, err = max.Add(AmountFromUint64(1))
	require.ErrorIs(t, err, ErrAmountOverflow)

	_, err = max.MulUint64(2)
	require.ErrorIs(t, err, ErrAmountOverflow)
}

func TestAmountArithmetic(t *testing.T) {
	a := AmountFromUint64(1000)
	b := AmountFromUint64(300)

	sum, err := a.Add(b)
	require.NoError(t, err)
	require.Equal(t, "1300", sum.String())

	diff, err := a.Sub(b)
	require.NoError(t, err)
	require.Equal(t, "700", diff.String())

	_, err = b.Sub(a)
	require.ErrorIs(t, err, ErrAmountUnderflow)

	prod, err := b.MulUint64(3)
	require.NoError(t, err)
	require.Equal(t, "900", prod.String())

	require.True(t, b.Lt(a))
	require.True(t, a.Gt(b))
	require.Equal(t, 0, a.Cmp(AmountFromUint64(1000)))
}

func TestAmountJSON(t *testing.T) {
	type wrapper struct {
		V Amount `json:"v"`
	}
	blob, err := json.Marshal(wrapper{V: AmountFromUint64(42)})
	require.NoError(t, err)
	require.JSONEq(t, `{"v":"42"}`, string(blob))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"v":"123456789"}`), &w))
	require.Equal(t, "123456789", w.V.String())

	require.Error(t, json.Unmarshal([]byte(`{"v":"-1"}`), &w))
}
