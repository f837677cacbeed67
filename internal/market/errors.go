package market

import (
	"errors"

	"nft-escrow-market/internal/ledger"
	"nft-escrow-market/internal/storage"
	"nft-escrow-market/internal/token"
	"nft-escrow-market/internal/verify"
)

// Validation errors.
var (
	ErrInvalidFee   = errors.New("fee must be between 0 and 10000 basis points")
	ErrInvalidName  = errors.New("registry name must not be empty")
	ErrNameTooLong  = errors.New("registry name longer than 32 bytes")
	ErrInvalidAsset = errors.New("asset is not a zero-decimal mint")
)

// Authorization errors.
var (
	ErrUnauthorized = errors.New("signer is not authorized for this operation")
)

// State errors.
var (
	ErrAlreadyExists                = errors.New("registry already exists")
	ErrRegistryNotFound             = errors.New("registry not found")
	ErrListingNotFound              = errors.New("listing not found")
	ErrAlreadyListed                = errors.New("asset already listed")
	ErrAlreadyClosed                = errors.New("listing already closed")
	ErrInsufficientBalance          = errors.New("maker does not hold the asset")
	ErrInsufficientFunds            = errors.New("insufficient funds")
	ErrCollectionVerificationFailed = errors.New("collection verification failed")
	ErrMakerMismatch                = errors.New("maker does not match listing")
	ErrVaultEmpty                   = errors.New("escrow vault is empty")
	ErrInvariantViolation           = errors.New("listing and escrow vault out of step")
	ErrInvalidAccount               = errors.New("account data does not match expected layout")
)

// Arithmetic errors.
var (
	ErrPriceOverflow = errors.New("price arithmetic overflow")
	ErrFeeOverflow   = errors.New("fee arithmetic overflow")
)

// Kind classifies an operation error.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthorization
	KindState
	KindArithmetic
	KindCollaborator
)

// String returns the string representation.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindArithmetic:
		return "arithmetic"
	case KindCollaborator:
		return "collaborator"
	}
	return "unknown"
}

// KindOf classifies err. Marketplace sentinels take precedence over the
// lower-level errors they may wrap. Anything unrecognised, including
// transport and context errors, is a collaborator failure.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case isAny(err, ErrInvalidFee, ErrInvalidName, ErrNameTooLong, ErrInvalidAsset):
		return KindValidation
	case isAny(err, ErrUnauthorized):
		return KindAuthorization
	case isAny(err, ErrPriceOverflow, ErrFeeOverflow):
		return KindArithmetic
	case isAny(err,
		ErrAlreadyExists, ErrRegistryNotFound, ErrListingNotFound, ErrAlreadyListed,
		ErrAlreadyClosed, ErrInsufficientBalance, ErrInsufficientFunds,
		ErrCollectionVerificationFailed, ErrMakerMismatch, ErrVaultEmpty,
		ErrInvariantViolation, ErrInvalidAccount):
		return KindState
	case isAny(err, ledger.ErrMissingSignature, token.ErrUnauthorized):
		return KindAuthorization
	case isAny(err, ledger.ErrLamportOverflow, token.ErrOverflow):
		return KindArithmetic
	case isAny(err, storage.ErrConflict, ledger.ErrAccountAlreadyInUse, ledger.ErrInsufficientFunds,
		ledger.ErrRentNotExempt, token.ErrInsufficientBalance, verify.ErrNotVerified):
		return KindState
	}
	return KindCollaborator
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
