package ledger

// Rent parameters. An account is rent exempt when it holds at least two
// years of rent for its storage footprint.
const (
	AccountStorageOverhead = 128
	LamportsPerByteYear    = 3480
	ExemptionYears         = 2
)

// MinimumBalance returns the lamports an account with dataLen bytes of data
// must hold to stay rent exempt.
func MinimumBalance(dataLen int) uint64 {
	return uint64(AccountStorageOverhead+dataLen) * LamportsPerByteYear * ExemptionYears
}
