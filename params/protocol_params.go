package params

import "time"

const (
	// MinEthGas is the gas, in EVM units, charged for the cheapest EVM transaction.
	MinEthGas uint64 = 21000
	// NormalTranGas is the gas, in native units, charged for a plain value transfer.
	NormalTranGas uint64 = 50
	// GasScalingFactor converts native gas units to EVM gas units.
	GasScalingFactor = MinEthGas / NormalTranGas

	ContractCreateGas         uint64 = 32000 // Base cost of a contract deployment, EVM units
	TxDataZeroGas             uint64 = 4     // Per zero byte of code or data at deployment
	TxDataNonZeroGas          uint64 = 16    // Per non-zero byte of code or data at deployment
	MaxCodeSize                      = 48 * 1024
	MaxTrapDepth                     = 64 // Interpreter continuations serviced per execution
	EvmRpcTimeout                    = 35 * time.Second
	ScillaRpcTimeout                 = 35 * time.Second
	EvmCodePrefix                    = "EVM"
	ContractMetadataKeyPrefix        = "_"
)

// DeploymentGas returns the minimum gas, in EVM units, a contract creation
// carrying the given code and init data must provide. The same amount is
// withheld from the interpreter as the intrinsic deployment cost.
func DeploymentGas(code, data []byte) uint64 {
	gas := MinEthGas + ContractCreateGas
	for _, blob := range [][]byte{code, data} {
		for _, b := range blob {
			if b != 0 {
				gas += TxDataNonZeroGas
			} else {
				gas += TxDataZeroGas
			}
		}
	}
	return gas
}
