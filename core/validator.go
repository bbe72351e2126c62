package core

import (
	"github.com/shardnode/txcore/core/types"
)

// CheckAmount verifies that owned covers the gas deposit plus the value
// transferred. It is a pure function of its inputs.
func CheckAmount(ctx *ExecutionContext, owned types.Amount) (types.TxnStatus, bool) {
	deposit, ok := ctx.GasDeposit()
	if !ok {
		return types.TxnStatusMathError, false
	}
	needed, err := deposit.Add(ctx.Amount())
	if err != nil {
		return types.TxnStatusMathError, false
	}
	if needed.Gt(owned) {
		return types.TxnStatusInsufficientBalance, false
	}
	return types.TxnStatusNotPresent, true
}

// CheckGasLimit verifies that the gas limit covers the intrinsic cost of the
// request: the deployment base fee for creations, the minimum transaction
// gas otherwise. It is a pure function of its input.
func CheckGasLimit(ctx *ExecutionContext) (types.TxnStatus, bool) {
	if ctx.Gas().LimitInEthApi() < ctx.IntrinsicGas() {
		return types.TxnStatusInsufficientGasLimit, false
	}
	return types.TxnStatusNotPresent, true
}
