package market

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/ledger"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/token"
	"nft-escrow-market/internal/verify"
)

func TestCreateListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin, maker := f.wallet(t, 10*sol), f.wallet(t, 10*sol)
	reg := f.registry(t, admin, "test", 250)
	asset := f.mintNFT(t, maker)
	before := f.balance(t, maker.PublicKey())

	listing, err := f.engine.CreateListing(ctx, maker.Signer(), reg.Address, asset, 10*sol)
	require.NoError(t, err)

	assert.Equal(t, reg.Address, listing.Registry)
	assert.Equal(t, maker.PublicKey(), listing.Maker)
	assert.Equal(t, asset, listing.Asset)
	assert.Equal(t, uint64(10*sol), listing.Price)
	assert.NotZero(t, listing.CreatedSeq)

	accounts, err := DeriveListingAccounts(reg.Address, asset)
	require.NoError(t, err)
	assert.Equal(t, accounts.Listing, listing.Address)
	assert.Equal(t, uint64(0), f.holding(t, maker.PublicKey(), asset))
	assert.Equal(t, uint64(1), f.tokenAmount(t, accounts.Vault))

	rent := ledger.MinimumBalance(ListingSize) + ledger.MinimumBalance(token.AccountSize)
	assert.Equal(t, before-rent, f.balance(t, maker.PublicKey()), "maker pays rent for record and vault")

	stored, err := f.engine.Listing(ctx, reg.Address, asset)
	require.NoError(t, err)
	assert.Equal(t, listing, stored)

	event := f.sink.last()
	assert.Equal(t, domain.EventListed, event.Type)
	require.NotNil(t, event.Asset)
	assert.Equal(t, asset, *event.Asset)
	assert.Equal(t, uint64(10*sol), event.Price)
}

func TestListThenCancel_RestoresMaker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin, maker := f.wallet(t, 10*sol), f.wallet(t, 10*sol)
	reg := f.registry(t, admin, "test", 250)
	asset := f.mintNFT(t, maker)
	before := f.balance(t, maker.PublicKey())

	_, err := f.engine.CreateListing(ctx, maker.Signer(), reg.Address, asset, sol)
	require.NoError(t, err)

	cancelled, err := f.engine.CancelListing(ctx, maker.Signer(), reg.Address, asset)
	require.NoError(t, err)
	assert.Equal(t, asset, cancelled.Asset)

	accounts, err := DeriveListingAccounts(reg.Address, asset)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.holding(t, maker.PublicKey(), asset))
	assert.False(t, f.exists(t, accounts.Listing), "listing record closed")
	assert.False(t, f.exists(t, accounts.Vault), "vault closed")
	assert.Equal(t, before, f.balance(t, maker.PublicKey()), "both rent deposits refunded")

	_, err = f.engine.Listing(ctx, reg.Address, asset)
	assert.ErrorIs(t, err, ErrListingNotFound)

	assert.Equal(t, []domain.EventType{
		domain.EventRegistryCreated, domain.EventListed, domain.EventCancelled,
	}, f.sink.types())

	// The asset can be listed again after cancellation.
	_, err = f.engine.CreateListing(ctx, maker.Signer(), reg.Address, asset, 2*sol)
	require.NoError(t, err)
}

func TestCreateListing_Duplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listed(t, 250, sol)

	_, err := f.engine.CreateListing(ctx, l.maker.Signer(), l.registry.Address, l.asset, 5*sol)
	require.ErrorIs(t, err, ErrAlreadyListed)
	assert.Equal(t, KindState, KindOf(err))

	stored, err := f.engine.Listing(ctx, l.registry.Address, l.asset)
	require.NoError(t, err)
	assert.Equal(t, l.listing, stored, "original listing intact")
	assert.Equal(t, uint64(1), f.tokenAmount(t, l.accounts.Vault))
}

func TestCreateListing_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin, maker, stranger := f.wallet(t, 10*sol), f.wallet(t, 10*sol), f.wallet(t, 10*sol)
	reg := f.registry(t, admin, "test", 250)
	asset := f.mintNFT(t, maker)

	// A fungible mint is not a listable asset.
	fungible, err := pubkey.NewKeypair()
	require.NoError(t, err)
	_, err = f.bank.Execute(ctx, []pubkey.PublicKey{maker.PublicKey(), fungible.PublicKey()}, func(tx *ledger.Tx) error {
		return token.InitializeMint(tx, maker.Signer(), fungible.Signer(), 6, maker.PublicKey())
	})
	require.NoError(t, err)

	missingRegistry, _, err := RegistryAddress("missing")
	require.NoError(t, err)

	tests := []struct {
		name     string
		signer   pubkey.Signer
		registry pubkey.PublicKey
		asset    pubkey.PublicKey
		wantErr  error
	}{
		{name: "maker does not hold asset", signer: stranger.Signer(), registry: reg.Address, asset: asset, wantErr: ErrInsufficientBalance},
		{name: "registry missing", signer: maker.Signer(), registry: missingRegistry, asset: asset, wantErr: ErrRegistryNotFound},
		{name: "not a zero-decimal mint", signer: maker.Signer(), registry: reg.Address, asset: fungible.PublicKey(), wantErr: ErrInvalidAsset},
		{name: "asset does not exist", signer: maker.Signer(), registry: reg.Address, asset: stranger.PublicKey(), wantErr: ErrInvalidAsset},
		{name: "no signer", signer: pubkey.Signer{}, registry: reg.Address, asset: asset, wantErr: ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateListing(ctx, tt.signer, tt.registry, tt.asset, sol)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Equal(t, uint64(1), f.holding(t, maker.PublicKey(), asset), "failed listings moved nothing")
}

func TestCancelListing_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listed(t, 250, sol)
	stranger := f.wallet(t, sol)

	_, err := f.engine.CancelListing(ctx, stranger.Signer(), l.registry.Address, l.asset)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, KindAuthorization, KindOf(err))
	assert.True(t, f.exists(t, l.accounts.Listing))
	assert.Equal(t, uint64(1), f.tokenAmount(t, l.accounts.Vault))

	_, err = f.engine.CancelListing(ctx, l.maker.Signer(), l.registry.Address, l.asset)
	require.NoError(t, err)

	_, err = f.engine.CancelListing(ctx, l.maker.Signer(), l.registry.Address, l.asset)
	assert.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestCancelListing_RecreatesClosedTokenAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listed(t, 0, sol)

	// The maker closes its emptied token account while the asset is escrowed.
	source, err := token.AssociatedAddress(l.maker.PublicKey(), l.asset)
	require.NoError(t, err)
	_, err = f.bank.Execute(ctx, []pubkey.PublicKey{l.maker.PublicKey(), source}, func(tx *ledger.Tx) error {
		return token.CloseAccount(tx, source, l.maker.PublicKey(), l.maker.Signer())
	})
	require.NoError(t, err)
	require.False(t, f.exists(t, source))

	_, err = f.engine.CancelListing(ctx, l.maker.Signer(), l.registry.Address, l.asset)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.holding(t, l.maker.PublicKey(), l.asset))
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin, maker := f.wallet(t, 10*sol), f.wallet(t, 10*sol)
	alpha := f.registry(t, admin, "alpha", 100)
	beta := f.registry(t, admin, "beta", 100)

	for _, reg := range []*domain.Registry{alpha, alpha, beta} {
		asset := f.mintNFT(t, maker)
		_, err := f.engine.CreateListing(ctx, maker.Signer(), reg.Address, asset, sol)
		require.NoError(t, err)
	}

	listings, err := f.engine.Listings(ctx, alpha.Address)
	require.NoError(t, err)
	assert.Len(t, listings, 2)
	for _, l := range listings {
		assert.Equal(t, alpha.Address, l.Registry)
	}

	listings, err = f.engine.Listings(ctx, beta.Address)
	require.NoError(t, err)
	assert.Len(t, listings, 1)
}

func TestCreateListing_CollectionVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin, maker := f.wallet(t, 10*sol), f.wallet(t, 10*sol)
	collection := f.wallet(t, 0).PublicKey()
	reg := f.registry(t, admin, "curated", 250, WithCollection(collection))
	asset := f.mintNFT(t, maker)

	_, err := f.engine.CreateListing(ctx, maker.Signer(), reg.Address, asset, sol)
	require.ErrorIs(t, err, ErrCollectionVerificationFailed)
	assert.ErrorIs(t, err, verify.ErrNotVerified)
	assert.Equal(t, uint64(1), f.holding(t, maker.PublicKey(), asset))

	f.verifier.Add(asset, collection)
	_, err = f.engine.CreateListing(ctx, maker.Signer(), reg.Address, asset, sol)
	require.NoError(t, err)
}

func TestCreateListing_VerifierTransportError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin, maker := f.wallet(t, 10*sol), f.wallet(t, 10*sol)
	reg := f.registry(t, admin, "curated", 250, WithCollection(f.wallet(t, 0).PublicKey()))
	asset := f.mintNFT(t, maker)

	rpcDown := errors.New("rpc unavailable")
	f.engine.verifier = verify.Func(func(context.Context, pubkey.PublicKey, pubkey.PublicKey) error {
		return rpcDown
	})
	_, err := f.engine.CreateListing(ctx, maker.Signer(), reg.Address, asset, sol)
	require.ErrorIs(t, err, rpcDown)
	assert.NotErrorIs(t, err, ErrCollectionVerificationFailed)
	assert.Equal(t, KindCollaborator, KindOf(err))

	f.engine.verifier = nil
	_, err = f.engine.CreateListing(ctx, maker.Signer(), reg.Address, asset, sol)
	assert.ErrorIs(t, err, ErrCollectionVerificationFailed)
}

func TestCreateListing_PrefundedListingAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin, maker, griefer := f.wallet(t, 10*sol), f.wallet(t, 10*sol), f.wallet(t, sol)
	reg := f.registry(t, admin, "test", 250)
	asset := f.mintNFT(t, maker)
	accounts, err := DeriveListingAccounts(reg.Address, asset)
	require.NoError(t, err)

	_, err = f.bank.Execute(ctx, []pubkey.PublicKey{griefer.PublicKey(), accounts.Listing}, func(tx *ledger.Tx) error {
		return ledger.Transfer(tx, griefer.Signer(), accounts.Listing, 1)
	})
	require.NoError(t, err)

	_, err = f.engine.Listing(ctx, reg.Address, asset)
	assert.ErrorIs(t, err, ErrListingNotFound)
	_, err = f.engine.CancelListing(ctx, maker.Signer(), reg.Address, asset)
	assert.ErrorIs(t, err, ErrAlreadyClosed)

	before := f.balance(t, maker.PublicKey())
	_, err = f.engine.CreateListing(ctx, maker.Signer(), reg.Address, asset, sol)
	require.NoError(t, err)
	listing, err := f.engine.Listing(ctx, reg.Address, asset)
	require.NoError(t, err)
	assert.Equal(t, maker.PublicKey(), listing.Maker)
	assert.Equal(t, uint64(1), f.tokenAmount(t, accounts.Vault))

	_, err = f.engine.CreateListing(ctx, maker.Signer(), reg.Address, asset, sol)
	assert.ErrorIs(t, err, ErrAlreadyListed)

	// Cancelling refunds both deposits, including the lamport sent beforehand.
	_, err = f.engine.CancelListing(ctx, maker.Signer(), reg.Address, asset)
	require.NoError(t, err)
	assert.Equal(t, before+1, f.balance(t, maker.PublicKey()))
	assert.Equal(t, uint64(1), f.holding(t, maker.PublicKey(), asset))
	assert.False(t, f.exists(t, accounts.Listing))
}

func TestCreateListing_PrefundedVault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin, maker := f.wallet(t, 10*sol), f.wallet(t, 10*sol)
	reg := f.registry(t, admin, "test", 250)
	asset := f.mintNFT(t, maker)
	accounts, err := DeriveListingAccounts(reg.Address, asset)
	require.NoError(t, err)

	_, err = f.bank.Airdrop(ctx, accounts.Vault, 1)
	require.NoError(t, err)

	_, err = f.engine.CreateListing(ctx, maker.Signer(), reg.Address, asset, sol)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.tokenAmount(t, accounts.Vault))

	taker := f.wallet(t, 10*sol)
	_, err = f.engine.Purchase(ctx, taker.Signer(), reg.Address, asset, maker.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.holding(t, taker.PublicKey(), asset))
	assert.False(t, f.exists(t, accounts.Vault))
}

func TestListing_ForeignAccountIsNotAListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listed(t, 250, sol)
	other := f.mintNFT(t, l.maker)
	address, _, err := ListingAddress(l.registry.Address, other)
	require.NoError(t, err)

	// A token-owned account at the listing address is not a listing record.
	_, err = f.bank.Execute(ctx, []pubkey.PublicKey{l.maker.PublicKey(), address}, func(tx *ledger.Tx) error {
		signer, err := pubkey.NewProgramSigner(ProgramID, listingSeeds(l.registry.Address, other), mustBump(t, l.registry.Address, other))
		if err != nil {
			return err
		}
		return ledger.CreateAccount(tx, l.maker.Signer(), signer, 8, token.ProgramID)
	})
	require.NoError(t, err)

	_, err = f.engine.Listing(ctx, l.registry.Address, other)
	assert.ErrorIs(t, err, ErrListingNotFound)
	assert.Equal(t, KindState, KindOf(err))
}

func mustBump(t *testing.T, registry, asset pubkey.PublicKey) uint8 {
	t.Helper()
	_, bump, err := ListingAddress(registry, asset)
	require.NoError(t, err)
	return bump
}
