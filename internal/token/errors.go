package token

import "errors"

// Token program errors.
var (
	// ErrUnauthorized is returned when the signer is neither the owner nor an
	// approved delegate of the source account, or not the mint authority.
	ErrUnauthorized = errors.New("token: owner does not match")

	// ErrInsufficientBalance is returned when an account holds fewer units
	// than requested.
	ErrInsufficientBalance = errors.New("token: insufficient funds")

	// ErrNotEmpty is returned when closing an account that still holds units.
	ErrNotEmpty = errors.New("token: non-native account can only be closed if its balance is zero")

	// ErrMintMismatch is returned when accounts of different mints are mixed.
	ErrMintMismatch = errors.New("token: account not associated with this mint")

	// ErrOverflow is returned when an amount or supply would overflow.
	ErrOverflow = errors.New("token: operation overflowed")

	// ErrInvalidAccountData is returned when account data cannot be decoded
	// or the account is not owned by the token program.
	ErrInvalidAccountData = errors.New("token: invalid account data")

	// ErrUninitialized is returned when an account or mint is not initialized.
	ErrUninitialized = errors.New("token: state is uninitialized")

	// ErrFixedSupply is returned when minting to a mint without authority.
	ErrFixedSupply = errors.New("token: fixed supply")
)
