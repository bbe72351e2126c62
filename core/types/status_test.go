package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTxnStatusDropped(t *testing.T) {
	for s := TxnStatusNotPresent; s <= TxnStatusPresentValidConsensusNotReached; s++ {
		require.False(t, s.IsDropped(), "%v", s)
	}
	for s := TxnStatusMathError; s <= TxnStatusNonceTooLow; s++ {
		require.True(t, s.IsDropped(), "%v", s)
	}
	require.True(t, TxnStatusError.IsDropped())

	require.True(t, TxnStatusPresentNonceHigh.IsPending())
	require.False(t, TxnStatusConfirmed.IsPending())
}

func TestTxnStatusNames(t *testing.T) {
	require.Equal(t, "INSUFFICIENT_BALANCE", TxnStatusInsufficientBalance.String())
	require.Equal(t, uint8(21), uint8(TxnStatusInsufficientBalance))
	require.Equal(t, uint8(26), uint8(TxnStatusFailContractAccountCreation))
	require.Equal(t, "TxnStatus(9)", TxnStatus(9).String())
}

func TestStatusRecordNeverLeavesDropped(t *testing.T) {
	var r StatusRecord
	require.NoError(t, r.Update(TxnStatusDispatched))
	require.NoError(t, r.Update(TxnStatusInsufficientGas))

	err := r.Update(TxnStatusConfirmed)
	require.ErrorIs(t, err, ErrStatusFinal)
	require.Equal(t, TxnStatusInsufficientGas, r.Status())

	// Re-recording the same terminal status is harmless.
	require.NoError(t, r.Update(TxnStatusInsufficientGas))
}
