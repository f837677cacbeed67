package domain

import "nft-escrow-market/internal/pubkey"

// Account is a ledger entry: a lamport balance plus program-owned data.
type Account struct {
	Address  pubkey.PublicKey // account address
	Owner    pubkey.PublicKey // program allowed to modify Data and debit Lamports
	Lamports uint64           // native currency balance, smallest unit
	Data     []byte           // program-defined state
	Version  uint64           // storage version, incremented on every committed write
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.Data != nil {
		c.Data = make([]byte, len(a.Data))
		copy(c.Data, a.Data)
	}
	return &c
}
