package market

import (
	"errors"
	"fmt"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/ledger"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/token"
)

// escrow is a listing record together with the vault holding its asset.
// It is the only code that creates or destroys either, and it always does
// both. Opening or loading an escrow registers a commit check that the
// record exists exactly when the vault holds one unit of the asset.
type escrow struct {
	listing *domain.Listing
	vault   pubkey.PublicKey
	signer  pubkey.Signer // acts as the listing address, which owns the vault
}

// openEscrow allocates the listing record and its vault, paid by maker, and
// moves one unit of the asset from source into the vault.
func openEscrow(tx *ledger.Tx, registry pubkey.PublicKey, maker pubkey.Signer, asset, source pubkey.PublicKey, price uint64) (*escrow, error) {
	address, bump, err := ListingAddress(registry, asset)
	if err != nil {
		return nil, err
	}
	signer, err := pubkey.NewProgramSigner(ProgramID, listingSeeds(registry, asset), bump)
	if err != nil {
		return nil, err
	}

	if err := ledger.CreateAccount(tx, maker, signer, ListingSize, ProgramID); err != nil {
		if errors.Is(err, ledger.ErrAccountAlreadyInUse) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyListed, asset)
		}
		return nil, fmt.Errorf("allocate listing: %w", err)
	}

	vault, err := token.CreateAssociatedAccountIdempotent(tx, maker, address, asset)
	if err != nil {
		return nil, fmt.Errorf("allocate vault: %w", err)
	}
	held, err := token.GetAccount(tx, vault)
	if err != nil {
		return nil, err
	}
	if held.Amount != 0 {
		return nil, fmt.Errorf("%w: vault %s already holds %d", ErrInvariantViolation, vault, held.Amount)
	}

	if err := token.Transfer(tx, source, vault, maker, 1); err != nil {
		return nil, fmt.Errorf("deposit asset: %w", err)
	}

	e := &escrow{
		listing: &domain.Listing{
			Address:    address,
			Registry:   registry,
			Maker:      maker.PublicKey(),
			Asset:      asset,
			Price:      price,
			Bump:       bump,
			CreatedSeq: tx.Seq(),
		},
		vault:  vault,
		signer: signer,
	}
	if err := e.write(tx); err != nil {
		return nil, err
	}
	tx.Check(e.checkPaired)
	return e, nil
}

// holdsRecord reports whether addr holds a market record with the given
// discriminator. Lamports sent to an unallocated address do not count.
func holdsRecord(tx *ledger.Tx, addr pubkey.PublicKey, disc []byte) (bool, error) {
	allocated, err := ledger.Allocated(tx, addr)
	if err != nil || !allocated {
		return false, err
	}
	raw, err := tx.Get(addr)
	if err != nil {
		return false, err
	}
	return isRecord(raw, disc), nil
}

// loadEscrow reads the listing of asset under registry and verifies its
// vault holds exactly one unit.
func loadEscrow(tx *ledger.Tx, registry, asset pubkey.PublicKey) (*escrow, error) {
	address, _, err := ListingAddress(registry, asset)
	if err != nil {
		return nil, err
	}

	raw, err := tx.Get(address)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyClosed, asset)
		}
		return nil, err
	}
	if raw.Owner == ledger.SystemProgramID && len(raw.Data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyClosed, asset)
	}
	if raw.Owner != ProgramID {
		return nil, fmt.Errorf("%w: listing %s owned by %s", ErrInvariantViolation, address, raw.Owner)
	}
	listing, err := decodeListing(address, raw.Data)
	if err != nil {
		return nil, err
	}

	signer, err := pubkey.NewProgramSigner(ProgramID, listingSeeds(registry, asset), listing.Bump)
	if err != nil {
		return nil, err
	}
	if !signer.Can(address) {
		return nil, fmt.Errorf("%w: listing bump does not derive %s", ErrInvariantViolation, address)
	}

	vault, err := VaultAddress(address, asset)
	if err != nil {
		return nil, err
	}
	e := &escrow{listing: listing, vault: vault, signer: signer}
	if err := e.checkVault(tx); err != nil {
		return nil, err
	}
	tx.Check(e.checkPaired)
	return e, nil
}

// checkVault verifies the vault holds exactly one unit of the asset and is
// controlled by the listing.
func (e *escrow) checkVault(tx *ledger.Tx) error {
	exists, err := tx.Exists(e.vault)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: vault %s missing", ErrInvariantViolation, e.vault)
	}

	held, err := token.GetAccount(tx, e.vault)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvariantViolation, err)
	}
	switch {
	case held.Mint != e.listing.Asset || held.Owner != e.listing.Address:
		return fmt.Errorf("%w: vault %s not bound to listing", ErrInvariantViolation, e.vault)
	case held.Amount == 0:
		return fmt.Errorf("%w: %s", ErrVaultEmpty, e.vault)
	case held.Amount != 1:
		return fmt.Errorf("%w: vault %s holds %d", ErrInvariantViolation, e.vault, held.Amount)
	}
	return nil
}

// release moves the escrowed unit into dest, signed by the listing.
func (e *escrow) release(tx *ledger.Tx, dest pubkey.PublicKey) error {
	if err := token.Transfer(tx, e.vault, dest, e.signer, 1); err != nil {
		return fmt.Errorf("release asset: %w", err)
	}
	return nil
}

// close removes the empty vault and the listing record, sending both rent
// deposits to refund.
func (e *escrow) close(tx *ledger.Tx, refund pubkey.PublicKey) error {
	if err := token.CloseAccount(tx, e.vault, refund, e.signer); err != nil {
		return fmt.Errorf("close vault: %w", err)
	}
	if err := ledger.CloseAccount(tx, ProgramID, e.listing.Address, refund); err != nil {
		return fmt.Errorf("close listing: %w", err)
	}
	return nil
}

func (e *escrow) write(tx *ledger.Tx) error {
	raw, err := tx.Get(e.listing.Address)
	if err != nil {
		return err
	}
	raw.Data = encodeListing(e.listing)
	return nil
}

// checkPaired runs before commit: the record exists exactly when the vault
// exists and holds one unit.
func (e *escrow) checkPaired(tx *ledger.Tx) error {
	recordExists, err := tx.Exists(e.listing.Address)
	if err != nil {
		return err
	}
	vaultExists, err := tx.Exists(e.vault)
	if err != nil {
		return err
	}

	if !recordExists {
		if vaultExists {
			return fmt.Errorf("%w: vault %s outlives listing", ErrInvariantViolation, e.vault)
		}
		return nil
	}
	if err := e.checkVault(tx); err != nil {
		if errors.Is(err, ErrVaultEmpty) {
			return fmt.Errorf("%w: %w", ErrInvariantViolation, err)
		}
		return err
	}
	return nil
}
