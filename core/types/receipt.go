package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// ReceiptError is an execution error code recorded in a receipt.
type ReceiptError uint8

const (
	ReceiptErrCheckerFailed ReceiptError = iota
	ReceiptErrRunnerFailed
	ReceiptErrBalanceTransferFailed
	ReceiptErrExecuteCmdFailed
	ReceiptErrExecuteCmdTimeout
	ReceiptErrNoGasRemainingFound
	ReceiptErrCallContractFailed
	ReceiptErrCreateContractFailed
	ReceiptErrJSONOutputCorrupted
	ReceiptErrContractNotExist
	ReceiptErrStateCorrupted
	ReceiptErrMaxEdgesReached
	ReceiptErrGasNotSufficient
	ReceiptErrInternalError
	ReceiptErrEvmRevert
	ReceiptErrEvmAbort
)

var receiptErrorNames = [...]string{
	ReceiptErrCheckerFailed:         "CHECKER_FAILED",
	ReceiptErrRunnerFailed:          "RUNNER_FAILED",
	ReceiptErrBalanceTransferFailed: "BALANCE_TRANSFER_FAILED",
	ReceiptErrExecuteCmdFailed:      "EXECUTE_CMD_FAILED",
	ReceiptErrExecuteCmdTimeout:     "EXECUTE_CMD_TIMEOUT",
	ReceiptErrNoGasRemainingFound:   "NO_GAS_REMAINING_FOUND",
	ReceiptErrCallContractFailed:    "CALL_CONTRACT_FAILED",
	ReceiptErrCreateContractFailed:  "CREATE_CONTRACT_FAILED",
	ReceiptErrJSONOutputCorrupted:   "JSON_OUTPUT_CORRUPTED",
	ReceiptErrContractNotExist:      "CONTRACT_NOT_EXIST",
	ReceiptErrStateCorrupted:        "STATE_CORRUPTED",
	ReceiptErrMaxEdgesReached:       "MAX_EDGES_REACHED",
	ReceiptErrGasNotSufficient:      "GAS_NOT_SUFFICIENT",
	ReceiptErrInternalError:         "INTERNAL_ERROR",
	ReceiptErrEvmRevert:             "EVM_REVERT",
	ReceiptErrEvmAbort:              "EVM_ABORT",
}

func (e ReceiptError) String() string {
	if int(e) < len(receiptErrorNames) {
		return receiptErrorNames[e]
	}
	return fmt.Sprintf("ReceiptError(%d)", uint8(e))
}

// ParseReceiptError returns the error code for its wire name.
func ParseReceiptError(name string) (ReceiptError, error) {
	for i, n := range receiptErrorNames {
		if n == name {
			return ReceiptError(i), nil
		}
	}
	return 0, fmt.Errorf("unknown receipt error %q", name)
}

// ErrReceiptFinalized is returned when a finalized receipt is modified or
// finalized again.
var ErrReceiptFinalized = errors.New("receipt already finalized")

// Receipt accumulates the outcome of one execution attempt. It is built
// incrementally by the engine and sealed by Finalize.
type Receipt struct {
	Success       bool
	CumulativeGas uint64 // native gas units
	Logs          []*Log
	Errors        []ReceiptError

	hash      common.Hash
	finalized bool
}

// NewReceipt returns an empty, unsuccessful receipt.
func NewReceipt() *Receipt {
	return &Receipt{}
}

func (r *Receipt) SetResult(ok bool) {
	if !r.finalized {
		r.Success = ok
	}
}

func (r *Receipt) SetCumulativeGas(gas uint64) {
	if !r.finalized {
		r.CumulativeGas = gas
	}
}

func (r *Receipt) AddError(e ReceiptError) {
	if !r.finalized {
		r.Errors = append(r.Errors, e)
	}
}

func (r *Receipt) AddLogs(logs ...*Log) {
	if !r.finalized {
		r.Logs = append(r.Logs, logs...)
	}
}

// HasError reports whether e was recorded.
func (r *Receipt) HasError(e ReceiptError) bool {
	for _, have := range r.Errors {
		if have == e {
			return true
		}
	}
	return false
}

// Finalized reports whether Finalize has been called.
func (r *Receipt) Finalized() bool { return r.finalized }

// Hash returns the content hash. It is zero until the receipt is finalized.
func (r *Receipt) Hash() common.Hash { return r.hash }

type rlpReceipt struct {
	Success       bool
	CumulativeGas uint64
	Logs          []rlpLog
	Errors        []uint8
}

type rlpLog struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Finalize computes the content hash and seals the receipt.
func (r *Receipt) Finalize() error {
	if r.finalized {
		return ErrReceiptFinalized
	}
	enc := rlpReceipt{
		Success:       r.Success,
		CumulativeGas: r.CumulativeGas,
		Logs:          make([]rlpLog, len(r.Logs)),
		Errors:        make([]uint8, len(r.Errors)),
	}
	for i, l := range r.Logs {
		enc.Logs[i] = rlpLog{Address: l.Address, Topics: l.Topics, Data: l.Data}
	}
	for i, e := range r.Errors {
		enc.Errors[i] = uint8(e)
	}
	blob, err := rlp.EncodeToBytes(&enc)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}
	r.hash = crypto.Keccak256Hash(blob)
	r.finalized = true
	return nil
}

type receiptJSON struct {
	Success       bool   `json:"success"`
	CumulativeGas string `json:"cumulative_gas"`
	EventLogs     []*Log `json:"event_logs"`
	Error         string `json:"error,omitempty"`
}

// MarshalJSON encodes the receipt in the shape served by the RPC layer.
func (r *Receipt) MarshalJSON() ([]byte, error) {
	logs := r.Logs
	if logs == nil {
		logs = []*Log{}
	}
	names := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		names[i] = e.String()
	}
	return json.Marshal(receiptJSON{
		Success:       r.Success,
		CumulativeGas: strconv.FormatUint(r.CumulativeGas, 10),
		EventLogs:     logs,
		Error:         strings.Join(names, ","),
	})
}

// UnmarshalJSON decodes the RPC form. The result is not finalized.
func (r *Receipt) UnmarshalJSON(input []byte) error {
	var dec receiptJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	gas, err := strconv.ParseUint(dec.CumulativeGas, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid cumulative_gas %q: %w", dec.CumulativeGas, err)
	}
	*r = Receipt{Success: dec.Success, CumulativeGas: gas, Logs: dec.EventLogs}
	if dec.Error != "" {
		for _, name := range strings.Split(dec.Error, ",") {
			e, err := ParseReceiptError(name)
			if err != nil {
				return err
			}
			r.Errors = append(r.Errors, e)
		}
	}
	return nil
}
