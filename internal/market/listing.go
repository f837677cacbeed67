package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/ledger"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/token"
	"nft-escrow-market/internal/verify"
)

// CreateListing offers the asset held by maker for price lamports under
// registry. The asset moves into an escrow vault controlled by the listing
// until it is cancelled or bought.
func (e *Engine) CreateListing(ctx context.Context, maker pubkey.Signer, registry, asset pubkey.PublicKey, price uint64) (listing *domain.Listing, err error) {
	start := time.Now()
	defer func() { e.observe("create_listing", start, err) }()

	if !maker.Valid() {
		return nil, ErrUnauthorized
	}

	reg, err := e.Registry(ctx, registry)
	if err != nil {
		return nil, err
	}
	if reg.Collection != nil {
		if err := e.verifyCollection(ctx, asset, *reg.Collection); err != nil {
			return nil, err
		}
	}

	address, _, err := ListingAddress(registry, asset)
	if err != nil {
		return nil, err
	}
	vault, err := VaultAddress(address, asset)
	if err != nil {
		return nil, err
	}
	source, err := token.AssociatedAddress(maker.PublicKey(), asset)
	if err != nil {
		return nil, err
	}

	// Registries are immutable and read outside the transaction.
	keys := []pubkey.PublicKey{maker.PublicKey(), asset, source, address, vault}
	seq, err := e.bank.Execute(ctx, keys, func(tx *ledger.Tx) error {
		mint, err := token.GetMint(tx, asset)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidAsset, err)
		}
		if mint.Decimals != 0 {
			return fmt.Errorf("%w: %s has %d decimals", ErrInvalidAsset, asset, mint.Decimals)
		}

		listed, err := holdsRecord(tx, address, listingDiscriminator)
		if err != nil {
			return err
		}
		if listed {
			return fmt.Errorf("%w: %s", ErrAlreadyListed, asset)
		}

		if err := requireHolding(tx, source, maker.PublicKey(), asset); err != nil {
			return err
		}

		esc, err := openEscrow(tx, registry, maker, asset, source, price)
		if err != nil {
			return err
		}
		listing = esc.listing
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return nil, fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
		}
		return nil, err
	}

	e.metrics.RecordListed()
	e.logger.Info("listing created",
		zap.String("registry", registry.String()),
		zap.String("asset", asset.String()),
		zap.String("maker", listing.Maker.String()),
		zap.Uint64("price", price),
		zap.Uint64("seq", seq),
	)

	event := e.newEvent(domain.EventListed, registry, keyPtr(asset), seq)
	event.Maker = keyPtr(listing.Maker)
	event.Price = price
	e.publish(ctx, event)

	return listing, nil
}

// CancelListing withdraws the listing of asset under registry. Only the maker
// may cancel; the asset and both rent deposits return to the maker.
func (e *Engine) CancelListing(ctx context.Context, maker pubkey.Signer, registry, asset pubkey.PublicKey) (listing *domain.Listing, err error) {
	start := time.Now()
	defer func() { e.observe("cancel_listing", start, err) }()

	if !maker.Valid() {
		return nil, ErrUnauthorized
	}

	address, _, err := ListingAddress(registry, asset)
	if err != nil {
		return nil, err
	}
	vault, err := VaultAddress(address, asset)
	if err != nil {
		return nil, err
	}
	dest, err := token.AssociatedAddress(maker.PublicKey(), asset)
	if err != nil {
		return nil, err
	}

	keys := []pubkey.PublicKey{maker.PublicKey(), asset, dest, address, vault}
	seq, err := e.bank.Execute(ctx, keys, func(tx *ledger.Tx) error {
		esc, err := loadEscrow(tx, registry, asset)
		if err != nil {
			return err
		}
		if !maker.Can(esc.listing.Maker) {
			return fmt.Errorf("%w: %s is not the maker of %s", ErrUnauthorized, maker.PublicKey(), asset)
		}

		// The maker may have closed its token account after listing.
		if _, err := token.CreateAssociatedAccountIdempotent(tx, maker, maker.PublicKey(), asset); err != nil {
			return fmt.Errorf("recreate maker token account: %w", err)
		}
		if err := esc.release(tx, dest); err != nil {
			return err
		}
		if err := esc.close(tx, maker.PublicKey()); err != nil {
			return err
		}
		listing = esc.listing
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.RecordCancelled()
	e.logger.Info("listing cancelled",
		zap.String("registry", registry.String()),
		zap.String("asset", asset.String()),
		zap.String("maker", listing.Maker.String()),
		zap.Uint64("seq", seq),
	)

	event := e.newEvent(domain.EventCancelled, registry, keyPtr(asset), seq)
	event.Maker = keyPtr(listing.Maker)
	event.Price = listing.Price
	e.publish(ctx, event)

	return listing, nil
}

// Listing reads the active listing of asset under registry.
func (e *Engine) Listing(ctx context.Context, registry, asset pubkey.PublicKey) (*domain.Listing, error) {
	address, _, err := ListingAddress(registry, asset)
	if err != nil {
		return nil, err
	}
	raw, err := e.bank.Account(ctx, address)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrListingNotFound, asset)
		}
		return nil, err
	}
	if !isRecord(raw, listingDiscriminator) {
		return nil, fmt.Errorf("%w: %s", ErrListingNotFound, asset)
	}
	return decodeListing(address, raw.Data)
}

// Listings returns every active listing of registry.
func (e *Engine) Listings(ctx context.Context, registry pubkey.PublicKey) ([]*domain.Listing, error) {
	accounts, err := e.bank.AccountsByOwner(ctx, ProgramID, listingPrefix(registry))
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Listing, 0, len(accounts))
	for _, raw := range accounts {
		l, err := decodeListing(raw.Address, raw.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// requireHolding checks that the token account at source belongs to owner
// and holds at least one unit of asset.
func requireHolding(tx *ledger.Tx, source, owner, asset pubkey.PublicKey) error {
	exists, err := tx.Exists(source)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s has no token account for %s", ErrInsufficientBalance, owner, asset)
	}

	held, err := token.GetAccount(tx, source)
	if err != nil {
		return err
	}
	if held.Owner != owner || held.Mint != asset || held.Amount < 1 {
		return fmt.Errorf("%w: %s holds %d of %s", ErrInsufficientBalance, owner, held.Amount, asset)
	}
	return nil
}

// verifyCollection asks the verifier to attest that asset belongs to
// collection. Transport failures are returned as is, not as a rejection.
func (e *Engine) verifyCollection(ctx context.Context, asset, collection pubkey.PublicKey) error {
	if e.verifier == nil {
		e.metrics.RecordVerification("rejected")
		return fmt.Errorf("%w: no verifier configured", ErrCollectionVerificationFailed)
	}

	err := e.verifier.VerifyCollection(ctx, asset, collection)
	switch {
	case err == nil:
		e.metrics.RecordVerification("verified")
		return nil
	case errors.Is(err, verify.ErrNotVerified):
		e.metrics.RecordVerification("rejected")
		return fmt.Errorf("%w: %w", ErrCollectionVerificationFailed, err)
	default:
		e.metrics.RecordVerification("error")
		return fmt.Errorf("verify collection: %w", err)
	}
}
