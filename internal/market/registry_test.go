package market

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/ledger"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/token"
)

func TestCreateRegistry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.wallet(t, 10*sol)

	reg, err := f.engine.CreateRegistry(ctx, admin.Signer(), "test", 250)
	require.NoError(t, err)

	assert.Equal(t, "9F3aYzEhL7mVofVb471K78HpxD6cGFyq8cKntFiPYWUC", reg.Address.String())
	assert.Equal(t, admin.PublicKey(), reg.Admin)
	assert.Equal(t, uint16(250), reg.FeeBps)
	assert.Equal(t, uint8(253), reg.SelfBump)
	assert.Equal(t, uint8(255), reg.TreasuryBump)
	assert.Equal(t, uint8(254), reg.RewardAuthorityBump)
	assert.Equal(t, uint64(DefaultRewardPerPurchase), reg.RewardPerPurchase)
	assert.Nil(t, reg.Collection)

	stored, err := f.engine.RegistryByName(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, reg, stored)

	// Admin paid rent for the registry and the reward mint.
	rent := ledger.MinimumBalance(RegistrySize) + ledger.MinimumBalance(token.MintSize)
	assert.Equal(t, 10*sol-rent, f.balance(t, admin.PublicKey()))

	rewardMint, _, err := RewardMintAddress(reg.Address)
	require.NoError(t, err)
	raw, err := f.bank.Account(ctx, rewardMint)
	require.NoError(t, err)
	mint, err := token.ReadMint(raw)
	require.NoError(t, err)
	assert.Equal(t, uint8(RewardDecimals), mint.Decimals)
	require.NotNil(t, mint.MintAuthority)
	assert.Equal(t, rewardMint, *mint.MintAuthority, "reward mint is its own authority")

	assert.Equal(t, []domain.EventType{domain.EventRegistryCreated}, f.sink.types())
	event := f.sink.last()
	assert.Equal(t, reg.Address, event.Registry)
	assert.Nil(t, event.Asset)
	assert.Len(t, event.EventID, 64)
}

func TestCreateRegistry_OncePerName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.wallet(t, 10*sol)
	other := f.wallet(t, 10*sol)

	first := f.registry(t, admin, "test", 250)
	balance := f.balance(t, other.PublicKey())

	_, err := f.engine.CreateRegistry(ctx, other.Signer(), "test", 0)
	require.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, KindState, KindOf(err))

	stored, err := f.engine.Registry(ctx, first.Address)
	require.NoError(t, err)
	assert.Equal(t, first, stored, "existing registry untouched")
	assert.Equal(t, balance, f.balance(t, other.PublicKey()), "failed attempt charged nothing")
}

func TestCreateRegistry_Validation(t *testing.T) {
	f := newFixture(t)
	admin := f.wallet(t, 10*sol)

	tests := []struct {
		name     string
		signer   pubkey.Signer
		regName  string
		feeBps   uint16
		wantErr  error
		wantKind Kind
	}{
		{name: "empty name", signer: admin.Signer(), regName: "", feeBps: 0, wantErr: ErrInvalidName, wantKind: KindValidation},
		{name: "name too long", signer: admin.Signer(), regName: strings.Repeat("a", 33), feeBps: 0, wantErr: ErrNameTooLong, wantKind: KindValidation},
		{name: "fee above 10000", signer: admin.Signer(), regName: "fees", feeBps: 10_001, wantErr: ErrInvalidFee, wantKind: KindValidation},
		{name: "no signer", signer: pubkey.Signer{}, regName: "nosig", feeBps: 0, wantErr: ErrUnauthorized, wantKind: KindAuthorization},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateRegistry(context.Background(), tt.signer, tt.regName, tt.feeBps)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantKind, KindOf(err))
		})
	}

	// 32 bytes and 10000 bps are the inclusive limits.
	reg := f.registry(t, admin, strings.Repeat("a", 32), 10_000)
	assert.Equal(t, strings.Repeat("a", 32), reg.Name)
}

func TestCreateRegistry_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	poor := f.wallet(t, 1_000)

	_, err := f.engine.CreateRegistry(context.Background(), poor.Signer(), "test", 0)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = f.engine.RegistryByName(context.Background(), "test")
	assert.ErrorIs(t, err, ErrRegistryNotFound)
}

func TestCreateRegistry_Options(t *testing.T) {
	f := newFixture(t)
	admin := f.wallet(t, 10*sol)
	collection := f.wallet(t, 0).PublicKey()

	reg := f.registry(t, admin, "curated", 100, WithCollection(collection), WithRewardPerPurchase(0))
	require.NotNil(t, reg.Collection)
	assert.Equal(t, collection, *reg.Collection)
	assert.Zero(t, reg.RewardPerPurchase)

	stored, err := f.engine.RegistryByName(context.Background(), "curated")
	require.NoError(t, err)
	assert.Equal(t, reg, stored)
}

func TestRegistries(t *testing.T) {
	f := newFixture(t)
	admin := f.wallet(t, 10*sol)
	f.registry(t, admin, "alpha", 100)
	f.registry(t, admin, "beta", 200)

	regs, err := f.engine.Registries(context.Background())
	require.NoError(t, err)
	require.Len(t, regs, 2)

	names := []string{regs[0].Name, regs[1].Name}
	assert.ElementsMatch(t, []string{"alpha", "beta"}, names)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("sink down")
	admin := f.wallet(t, 10*sol)

	reg, err := f.engine.CreateRegistry(context.Background(), admin.Signer(), "test", 0)
	require.NoError(t, err)

	stored, err := f.engine.Registry(context.Background(), reg.Address)
	require.NoError(t, err)
	assert.Equal(t, reg, stored)
}

func TestRegistry_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.RegistryByName(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRegistryNotFound)

	// A wallet address is not a registry.
	wallet := f.wallet(t, sol)
	_, err = f.engine.Registry(context.Background(), wallet.PublicKey())
	assert.ErrorIs(t, err, ErrRegistryNotFound)
}

func TestCreateRegistry_PrefundedAddresses(t *testing.T) {
	tests := []struct {
		name   string
		target func(t *testing.T, registry pubkey.PublicKey) pubkey.PublicKey
	}{
		{name: "registry", target: func(t *testing.T, registry pubkey.PublicKey) pubkey.PublicKey {
			return registry
		}},
		{name: "reward mint", target: mustRewardMint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			admin := f.wallet(t, 10*sol)
			address, _, err := RegistryAddress("victim")
			require.NoError(t, err)

			_, err = f.bank.Airdrop(ctx, tt.target(t, address), 1)
			require.NoError(t, err)

			_, err = f.engine.RegistryByName(ctx, "victim")
			assert.ErrorIs(t, err, ErrRegistryNotFound)

			reg := f.registry(t, admin, "victim", 250)
			stored, err := f.engine.RegistryByName(ctx, "victim")
			require.NoError(t, err)
			assert.Equal(t, reg, stored)
			assert.Zero(t, f.supply(t, mustRewardMint(t, reg.Address)))

			_, err = f.engine.CreateRegistry(ctx, admin.Signer(), "victim", 250)
			assert.ErrorIs(t, err, ErrAlreadyExists)
		})
	}
}

func mustRewardMint(t *testing.T, registry pubkey.PublicKey) pubkey.PublicKey {
	t.Helper()
	mint, _, err := RewardMintAddress(registry)
	require.NoError(t, err)
	return mint
}
