package types

import (
	"errors"
	"fmt"
)

// TxnStatus is the outcome of an execution attempt as exposed to clients.
// Codes at or above DroppedThreshold are terminal.
type TxnStatus uint8

const (
	TxnStatusNotPresent                      TxnStatus = 0
	TxnStatusDispatched                      TxnStatus = 1
	TxnStatusSoftConfirmed                   TxnStatus = 2
	TxnStatusConfirmed                       TxnStatus = 3
	TxnStatusPresentNonceHigh                TxnStatus = 4
	TxnStatusPresentGasExceeded              TxnStatus = 5
	TxnStatusPresentValidConsensusNotReached TxnStatus = 6

	TxnStatusMathError                   TxnStatus = 10
	TxnStatusFailScillaLib               TxnStatus = 11
	TxnStatusFailContractInit            TxnStatus = 12
	TxnStatusInvalidFromAccount          TxnStatus = 13
	TxnStatusHighGasLimit                TxnStatus = 14
	TxnStatusIncorrectTxnType            TxnStatus = 15
	TxnStatusIncorrectShard              TxnStatus = 16
	TxnStatusContractCallWrongShard      TxnStatus = 17
	TxnStatusHighByteSizeCode            TxnStatus = 18
	TxnStatusVerifError                  TxnStatus = 19
	TxnStatusInsufficientGasLimit        TxnStatus = 20
	TxnStatusInsufficientBalance         TxnStatus = 21
	TxnStatusInsufficientGas             TxnStatus = 22
	TxnStatusMempoolAlreadyPresent       TxnStatus = 23
	TxnStatusMempoolSameNonceLowerGas    TxnStatus = 24
	TxnStatusInvalidToAccount            TxnStatus = 25
	TxnStatusFailContractAccountCreation TxnStatus = 26
	TxnStatusNonceTooLow                 TxnStatus = 27
	TxnStatusError                       TxnStatus = 255

	// DroppedThreshold is the lowest status code that marks a transaction
	// as permanently failed.
	DroppedThreshold = TxnStatusMathError
)

var statusNames = map[TxnStatus]string{
	TxnStatusNotPresent:                      "NOT_PRESENT",
	TxnStatusDispatched:                      "DISPATCHED",
	TxnStatusSoftConfirmed:                   "SOFT_CONFIRMED",
	TxnStatusConfirmed:                       "CONFIRMED",
	TxnStatusPresentNonceHigh:                "PRESENT_NONCE_HIGH",
	TxnStatusPresentGasExceeded:              "PRESENT_GAS_EXCEEDED",
	TxnStatusPresentValidConsensusNotReached: "PRESENT_VALID_CONSENSUS_NOT_REACHED",
	TxnStatusMathError:                       "MATH_ERROR",
	TxnStatusFailScillaLib:                   "FAIL_SCILLA_LIB",
	TxnStatusFailContractInit:                "FAIL_CONTRACT_INIT",
	TxnStatusInvalidFromAccount:              "INVALID_FROM_ACCOUNT",
	TxnStatusHighGasLimit:                    "HIGH_GAS_LIMIT",
	TxnStatusIncorrectTxnType:                "INCORRECT_TXN_TYPE",
	TxnStatusIncorrectShard:                  "INCORRECT_SHARD",
	TxnStatusContractCallWrongShard:          "CONTRACT_CALL_WRONG_SHARD",
	TxnStatusHighByteSizeCode:                "HIGH_BYTE_SIZE_CODE",
	TxnStatusVerifError:                      "VERIF_ERROR",
	TxnStatusInsufficientGasLimit:            "INSUFFICIENT_GAS_LIMIT",
	TxnStatusInsufficientBalance:             "INSUFFICIENT_BALANCE",
	TxnStatusInsufficientGas:                 "INSUFFICIENT_GAS",
	TxnStatusMempoolAlreadyPresent:           "MEMPOOL_ALREADY_PRESENT",
	TxnStatusMempoolSameNonceLowerGas:        "MEMPOOL_SAME_NONCE_LOWER_GAS",
	TxnStatusInvalidToAccount:                "INVALID_TO_ACCOUNT",
	TxnStatusFailContractAccountCreation:     "FAIL_CONTRACT_ACCOUNT_CREATION",
	TxnStatusNonceTooLow:                     "NONCE_TOO_LOW",
	TxnStatusError:                           "ERROR",
}

// String returns the wire name of the status.
func (s TxnStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("TxnStatus(%d)", uint8(s))
}

// IsDropped reports whether the status is a permanent failure.
func (s TxnStatus) IsDropped() bool { return s >= DroppedThreshold }

// IsPending reports whether the transaction is waiting for a later epoch.
func (s TxnStatus) IsPending() bool {
	return s >= TxnStatusPresentNonceHigh && s <= TxnStatusPresentValidConsensusNotReached
}

// ErrStatusFinal is returned when a terminal status would be overwritten.
var ErrStatusFinal = errors.New("transaction status is final")

// StatusRecord tracks the status of one transaction as seen by query APIs.
// Once a dropped status is recorded it can never be replaced.
type StatusRecord struct {
	status TxnStatus
}

// Status returns the current status.
func (r *StatusRecord) Status() TxnStatus { return r.status }

// Update moves the record to a new status.
func (r *StatusRecord) Update(next TxnStatus) error {
	if r.status.IsDropped() && next != r.status {
		return fmt.Errorf("%w: %v -> %v", ErrStatusFinal, r.status, next)
	}
	r.status = next
	return nil
}
