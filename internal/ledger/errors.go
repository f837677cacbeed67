package ledger

import "errors"

// Ledger errors.
var (
	// ErrAccountNotDeclared is returned when a transaction touches an address
	// outside its declared account set.
	ErrAccountNotDeclared = errors.New("account not declared by transaction")

	// ErrAccountNotFound is returned when a declared account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountAlreadyInUse is returned when creating an account that exists.
	ErrAccountAlreadyInUse = errors.New("account already in use")

	// ErrMissingSignature is returned when a required signer is absent or
	// does not act as the expected address.
	ErrMissingSignature = errors.New("missing required signature")

	// ErrInvalidAccountOwner is returned when an account is not owned by the
	// program that tries to modify it.
	ErrInvalidAccountOwner = errors.New("invalid account owner")

	// ErrInsufficientFunds is returned when a lamport debit exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient lamports")

	// ErrLamportOverflow is returned when a credit would overflow a balance.
	ErrLamportOverflow = errors.New("lamport balance overflow")

	// ErrRentNotExempt is returned at commit when an account holding data is
	// funded below its minimum balance.
	ErrRentNotExempt = errors.New("account balance below rent-exempt minimum")
)
