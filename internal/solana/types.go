package solana

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       []byte // decoded from base64
	Executable bool
	RentEpoch  uint64
}

// MaxMultipleAccounts is the cluster limit for getMultipleAccounts.
const MaxMultipleAccounts = 100
