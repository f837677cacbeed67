package ledger

import (
	"fmt"
	"math"
	"math/bits"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/pubkey"
)

// SystemProgramID owns plain lamport accounts (wallets, treasuries).
var SystemProgramID = pubkey.Zero

// MaxLamports caps any single balance so it fits a signed 64-bit column.
const MaxLamports = math.MaxInt64

// CreateAccount allocates space bytes at the signer's address, assigns it to
// owner and funds it with the rent-exempt minimum taken from payer. An
// address that only holds lamports is taken over: payer tops it up to the
// minimum and the lamports already there stay with the account.
func CreateAccount(tx *Tx, payer, account pubkey.Signer, space int, owner pubkey.PublicKey) error {
	if !payer.Valid() || !account.Valid() {
		return ErrMissingSignature
	}
	addr := account.PublicKey()

	exists, err := tx.Exists(addr)
	if err != nil {
		return err
	}
	if !exists {
		rent := MinimumBalance(space)
		if err := debit(tx, payer.PublicKey(), rent); err != nil {
			return fmt.Errorf("fund new account: %w", err)
		}
		return tx.Create(&domain.Account{
			Address:  addr,
			Owner:    owner,
			Lamports: rent,
			Data:     make([]byte, space),
		})
	}

	acc, err := tx.Get(addr)
	if err != nil {
		return err
	}
	if !unallocated(acc) || payer.PublicKey() == addr {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyInUse, addr)
	}
	if rent := MinimumBalance(space); acc.Lamports < rent {
		if err := debit(tx, payer.PublicKey(), rent-acc.Lamports); err != nil {
			return fmt.Errorf("fund new account: %w", err)
		}
		acc.Lamports = rent
	}
	acc.Owner = owner
	acc.Data = make([]byte, space)
	return nil
}

// Allocated reports whether addr holds an account that a program owns or
// that carries data. An address that was only sent lamports is not allocated.
func Allocated(tx *Tx, addr pubkey.PublicKey) (bool, error) {
	exists, err := tx.Exists(addr)
	if err != nil || !exists {
		return false, err
	}
	acc, err := tx.Get(addr)
	if err != nil {
		return false, err
	}
	return !unallocated(acc), nil
}

// CreationCost returns the lamports CreateAccount takes from the payer to
// allocate space bytes at addr. It is 0 when addr is already allocated.
func CreationCost(tx *Tx, addr pubkey.PublicKey, space int) (uint64, error) {
	exists, err := tx.Exists(addr)
	if err != nil {
		return 0, err
	}
	rent := MinimumBalance(space)
	if !exists {
		return rent, nil
	}
	acc, err := tx.Get(addr)
	if err != nil {
		return 0, err
	}
	if !unallocated(acc) || acc.Lamports >= rent {
		return 0, nil
	}
	return rent - acc.Lamports, nil
}

func unallocated(acc *domain.Account) bool {
	return acc.Owner == SystemProgramID && len(acc.Data) == 0
}

// Transfer moves lamports from a system account to any account. A missing
// destination is created as a system account.
func Transfer(tx *Tx, from pubkey.Signer, to pubkey.PublicKey, lamports uint64) error {
	if !from.Valid() {
		return ErrMissingSignature
	}
	if lamports == 0 {
		return nil
	}
	if err := debit(tx, from.PublicKey(), lamports); err != nil {
		return err
	}
	return credit(tx, to, lamports)
}

// CloseAccount drains every lamport of an account owned by program into
// dest and removes it. The caller is the program that owns the account.
func CloseAccount(tx *Tx, program, address, dest pubkey.PublicKey) error {
	acc, err := tx.Get(address)
	if err != nil {
		return err
	}
	if acc.Owner != program {
		return fmt.Errorf("%w: %s", ErrInvalidAccountOwner, address)
	}

	if err := credit(tx, dest, acc.Lamports); err != nil {
		return err
	}
	return tx.Delete(address)
}

// debit takes lamports from a system-owned account.
func debit(tx *Tx, from pubkey.PublicKey, lamports uint64) error {
	exists, err := tx.Exists(from)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s has 0, needs %d", ErrInsufficientFunds, from, lamports)
	}

	acc, err := tx.Get(from)
	if err != nil {
		return err
	}
	if acc.Owner != SystemProgramID {
		return fmt.Errorf("%w: %s", ErrInvalidAccountOwner, from)
	}
	if acc.Lamports < lamports {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, acc.Lamports, lamports)
	}
	acc.Lamports -= lamports
	return nil
}

// credit adds lamports to an account, creating a system account if missing.
// The resulting balance may not exceed MaxLamports.
func credit(tx *Tx, to pubkey.PublicKey, lamports uint64) error {
	exists, err := tx.Exists(to)
	if err != nil {
		return err
	}
	if !exists {
		if lamports == 0 {
			return nil
		}
		if lamports > MaxLamports {
			return fmt.Errorf("%w: %s", ErrLamportOverflow, to)
		}
		return tx.Create(&domain.Account{Address: to, Owner: SystemProgramID, Lamports: lamports})
	}

	acc, err := tx.Get(to)
	if err != nil {
		return err
	}
	sum, carry := bits.Add64(acc.Lamports, lamports, 0)
	if carry != 0 || sum > MaxLamports {
		return fmt.Errorf("%w: %s", ErrLamportOverflow, to)
	}
	acc.Lamports = sum
	return nil
}
