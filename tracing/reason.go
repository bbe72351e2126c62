package tracing

// BalanceChangeReason is a description of the reason why a balance was changed.
type BalanceChangeReason int

const (
	BalanceChangeUnspecified BalanceChangeReason = iota
	BalanceChangeTransfer
	BalanceChangeGasDeposit
	BalanceChangeGasRefund
	BalanceChangeInterpreterApply
	BalanceChangeSelfDestruct
	BalanceChangeContractEndowment
	BalanceChangeGenesis
)

// NonceChangeReason is a description of the reason why a nonce was changed.
type NonceChangeReason int

const (
	NonceChangeUnspecified NonceChangeReason = iota
	NonceChangeTxIncrement
	NonceChangeInterpreterApply
	NonceChangeNestedCreate
)

// String returns a human-readable string for the reason.
func (r BalanceChangeReason) String() string {
	switch r {
	case BalanceChangeUnspecified:
		return "unspecified"
	case BalanceChangeTransfer:
		return "transfer"
	case BalanceChangeGasDeposit:
		return "gas_deposit"
	case BalanceChangeGasRefund:
		return "gas_refund"
	case BalanceChangeInterpreterApply:
		return "interpreter_apply"
	case BalanceChangeSelfDestruct:
		return "self_destruct"
	case BalanceChangeContractEndowment:
		return "contract_endowment"
	case BalanceChangeGenesis:
		return "genesis"
	}
	return "unknown"
}

// String returns a human-readable string for the reason.
func (r NonceChangeReason) String() string {
	switch r {
	case NonceChangeUnspecified:
		return "unspecified"
	case NonceChangeTxIncrement:
		return "tx_increment"
	case NonceChangeInterpreterApply:
		return "interpreter_apply"
	case NonceChangeNestedCreate:
		return "nested_create"
	}
	return "unknown"
}
