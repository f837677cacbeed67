// Package token implements the fungible and non-fungible token primitive:
// mints, token accounts, associated token addresses and the transfer, mint
// and close instructions the marketplace composes.
package token

import (
	"fmt"
	"math/bits"

	"nft-escrow-market/internal/ledger"
	"nft-escrow-market/internal/pubkey"
)

// Program ids.
var (
	ProgramID           = pubkey.MustParse("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedProgramID = pubkey.MustParse("ATokenGPvbdGVxr1b2hvZbsiqW5xvSRbTsGYnGtYmKwW")
)

// AssociatedAddress returns the canonical token account of owner for mint.
func AssociatedAddress(owner, mint pubkey.PublicKey) (pubkey.PublicKey, error) {
	addr, _, err := pubkey.FindProgramAddress(associatedSeeds(owner, mint), AssociatedProgramID)
	if err != nil {
		return pubkey.Zero, fmt.Errorf("derive associated token address: %w", err)
	}
	return addr, nil
}

func associatedSeeds(owner, mint pubkey.PublicKey) [][]byte {
	return [][]byte{owner[:], ProgramID[:], mint[:]}
}

// InitializeMint creates a mint at the mint signer's address.
func InitializeMint(tx *ledger.Tx, payer, mint pubkey.Signer, decimals uint8, authority pubkey.PublicKey) error {
	if err := ledger.CreateAccount(tx, payer, mint, MintSize, ProgramID); err != nil {
		return fmt.Errorf("create mint account: %w", err)
	}
	return putMint(tx, mint.PublicKey(), &Mint{
		MintAuthority: &authority,
		Decimals:      decimals,
		IsInitialized: true,
	})
}

// CreateAssociatedAccount creates the associated token account of owner for
// mint, funded by payer. Returns ledger.ErrAccountAlreadyInUse if it exists.
func CreateAssociatedAccount(tx *ledger.Tx, payer pubkey.Signer, owner, mint pubkey.PublicKey) (pubkey.PublicKey, error) {
	seeds := associatedSeeds(owner, mint)
	addr, bump, err := pubkey.FindProgramAddress(seeds, AssociatedProgramID)
	if err != nil {
		return pubkey.Zero, fmt.Errorf("derive associated token address: %w", err)
	}
	if _, err := GetMint(tx, mint); err != nil {
		return pubkey.Zero, err
	}

	signer, err := pubkey.NewProgramSigner(AssociatedProgramID, seeds, bump)
	if err != nil {
		return pubkey.Zero, err
	}
	if err := ledger.CreateAccount(tx, payer, signer, AccountSize, ProgramID); err != nil {
		return pubkey.Zero, fmt.Errorf("create associated token account: %w", err)
	}

	err = putAccount(tx, addr, &Account{
		Mint:  mint,
		Owner: owner,
		State: StateInitialized,
	})
	return addr, err
}

// CreateAssociatedAccountIdempotent is CreateAssociatedAccount that accepts an
// existing token account as long as it belongs to owner and mint.
func CreateAssociatedAccountIdempotent(tx *ledger.Tx, payer pubkey.Signer, owner, mint pubkey.PublicKey) (pubkey.PublicKey, error) {
	addr, err := AssociatedAddress(owner, mint)
	if err != nil {
		return pubkey.Zero, err
	}
	allocated, err := ledger.Allocated(tx, addr)
	if err != nil {
		return pubkey.Zero, err
	}
	if !allocated {
		return CreateAssociatedAccount(tx, payer, owner, mint)
	}

	acc, err := GetAccount(tx, addr)
	if err != nil {
		return pubkey.Zero, err
	}
	if acc.Mint != mint {
		return pubkey.Zero, ErrMintMismatch
	}
	if acc.Owner != owner {
		return pubkey.Zero, ErrUnauthorized
	}
	return addr, nil
}

// Transfer moves amount units from one token account to another. authority
// must be the source owner or its delegate.
func Transfer(tx *ledger.Tx, from, to pubkey.PublicKey, authority pubkey.Signer, amount uint64) error {
	src, err := GetAccount(tx, from)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	dst, err := GetAccount(tx, to)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	if src.Mint != dst.Mint {
		return ErrMintMismatch
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientBalance, from, src.Amount, amount)
	}

	switch {
	case authority.Can(src.Owner):
	case src.Delegate != nil && authority.Can(*src.Delegate):
		if src.DelegatedAmount < amount {
			return fmt.Errorf("%w: delegated %d, needs %d", ErrInsufficientBalance, src.DelegatedAmount, amount)
		}
		src.DelegatedAmount -= amount
		if src.DelegatedAmount == 0 {
			src.Delegate = nil
		}
	default:
		return ErrUnauthorized
	}

	if from == to {
		return putAccount(tx, from, src)
	}

	sum, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	src.Amount -= amount
	dst.Amount = sum

	if err := putAccount(tx, from, src); err != nil {
		return err
	}
	return putAccount(tx, to, dst)
}

// Approve lets delegate move up to amount units out of account.
func Approve(tx *ledger.Tx, account pubkey.PublicKey, owner pubkey.Signer, delegate pubkey.PublicKey, amount uint64) error {
	acc, err := GetAccount(tx, account)
	if err != nil {
		return err
	}
	if !owner.Can(acc.Owner) {
		return ErrUnauthorized
	}
	acc.Delegate = &delegate
	acc.DelegatedAmount = amount
	return putAccount(tx, account, acc)
}

// MintTo issues amount new units of mint into dest.
func MintTo(tx *ledger.Tx, mint, dest pubkey.PublicKey, authority pubkey.Signer, amount uint64) error {
	m, err := GetMint(tx, mint)
	if err != nil {
		return err
	}
	if m.MintAuthority == nil {
		return ErrFixedSupply
	}
	if !authority.Can(*m.MintAuthority) {
		return ErrUnauthorized
	}

	acc, err := GetAccount(tx, dest)
	if err != nil {
		return err
	}
	if acc.Mint != mint {
		return ErrMintMismatch
	}

	supply, carry := bits.Add64(m.Supply, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	balance, carry := bits.Add64(acc.Amount, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	m.Supply = supply
	acc.Amount = balance

	if err := putMint(tx, mint, m); err != nil {
		return err
	}
	return putAccount(tx, dest, acc)
}

// SetMintAuthority replaces the mint authority. A nil authority fixes the supply.
func SetMintAuthority(tx *ledger.Tx, mint pubkey.PublicKey, current pubkey.Signer, next *pubkey.PublicKey) error {
	m, err := GetMint(tx, mint)
	if err != nil {
		return err
	}
	if m.MintAuthority == nil {
		return ErrFixedSupply
	}
	if !current.Can(*m.MintAuthority) {
		return ErrUnauthorized
	}
	m.MintAuthority = next
	return putMint(tx, mint, m)
}

// CloseAccount removes an empty token account and sends its lamports to
// dest. authority must be the close authority, or the owner if none is set.
func CloseAccount(tx *ledger.Tx, account, dest pubkey.PublicKey, authority pubkey.Signer) error {
	acc, err := GetAccount(tx, account)
	if err != nil {
		return err
	}
	if acc.Amount != 0 {
		return fmt.Errorf("%w: %s holds %d", ErrNotEmpty, account, acc.Amount)
	}

	closer := acc.Owner
	if acc.CloseAuthority != nil {
		closer = *acc.CloseAuthority
	}
	if !authority.Can(closer) {
		return ErrUnauthorized
	}

	return ledger.CloseAccount(tx, ProgramID, account, dest)
}

// GetMint decodes the staged mint at addr.
func GetMint(tx *ledger.Tx, addr pubkey.PublicKey) (*Mint, error) {
	raw, err := tx.Get(addr)
	if err != nil {
		return nil, fmt.Errorf("mint %s: %w", addr, err)
	}
	if raw.Owner != ProgramID {
		return nil, fmt.Errorf("%w: mint %s not owned by token program", ErrInvalidAccountData, addr)
	}
	m, err := DecodeMint(raw.Data)
	if err != nil {
		return nil, err
	}
	if !m.IsInitialized {
		return nil, ErrUninitialized
	}
	return m, nil
}

// GetAccount decodes the staged token account at addr.
func GetAccount(tx *ledger.Tx, addr pubkey.PublicKey) (*Account, error) {
	raw, err := tx.Get(addr)
	if err != nil {
		return nil, fmt.Errorf("token account %s: %w", addr, err)
	}
	if raw.Owner != ProgramID {
		return nil, fmt.Errorf("%w: %s not owned by token program", ErrInvalidAccountData, addr)
	}
	acc, err := DecodeAccount(raw.Data)
	if err != nil {
		return nil, err
	}
	if acc.State == StateUninitialized {
		return nil, ErrUninitialized
	}
	return acc, nil
}

func putMint(tx *ledger.Tx, addr pubkey.PublicKey, m *Mint) error {
	raw, err := tx.Get(addr)
	if err != nil {
		return err
	}
	raw.Data = m.Encode()
	return nil
}

func putAccount(tx *ledger.Tx, addr pubkey.PublicKey, a *Account) error {
	raw, err := tx.Get(addr)
	if err != nil {
		return err
	}
	raw.Data = a.Encode()
	return nil
}
