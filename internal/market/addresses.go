package market

import (
	"fmt"

	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/token"
)

// ProgramID owns every registry and listing record.
var ProgramID = pubkey.MustParse("3rQUfjWdfmKMt26pzJKLPozPwkF92YeYaS2LGep6ERMu")

// Derivation seed prefixes.
const (
	seedRegistry = "marketplace"
	seedTreasury = "treasury"
	seedRewards  = "rewards"
)

func registrySeeds(name string) [][]byte {
	return [][]byte{[]byte(seedRegistry), []byte(name)}
}

func treasurySeeds(registry pubkey.PublicKey) [][]byte {
	return [][]byte{[]byte(seedTreasury), registry[:]}
}

func rewardSeeds(registry pubkey.PublicKey) [][]byte {
	return [][]byte{[]byte(seedRewards), registry[:]}
}

func listingSeeds(registry, asset pubkey.PublicKey) [][]byte {
	return [][]byte{registry[:], asset[:]}
}

// RegistryAddress derives the registry address of name.
func RegistryAddress(name string) (pubkey.PublicKey, uint8, error) {
	if err := validateName(name); err != nil {
		return pubkey.Zero, 0, err
	}
	return derive("registry", registrySeeds(name))
}

// TreasuryAddress derives the fee account of registry.
func TreasuryAddress(registry pubkey.PublicKey) (pubkey.PublicKey, uint8, error) {
	return derive("treasury", treasurySeeds(registry))
}

// RewardMintAddress derives the reward token mint of registry. The mint is
// its own mint authority.
func RewardMintAddress(registry pubkey.PublicKey) (pubkey.PublicKey, uint8, error) {
	return derive("reward mint", rewardSeeds(registry))
}

// ListingAddress derives the listing record of asset under registry. At most
// one listing can exist per (registry, asset).
func ListingAddress(registry, asset pubkey.PublicKey) (pubkey.PublicKey, uint8, error) {
	return derive("listing", listingSeeds(registry, asset))
}

// VaultAddress returns the escrow token account of a listing: the associated
// token account of the listing address for asset.
func VaultAddress(listing, asset pubkey.PublicKey) (pubkey.PublicKey, error) {
	return token.AssociatedAddress(listing, asset)
}

func derive(what string, seeds [][]byte) (pubkey.PublicKey, uint8, error) {
	addr, bump, err := pubkey.FindProgramAddress(seeds, ProgramID)
	if err != nil {
		return pubkey.Zero, 0, fmt.Errorf("derive %s address: %w", what, err)
	}
	return addr, bump, nil
}

// ListingAccounts is the full account set of one listing. Every address is
// computable from the registry and the asset alone.
type ListingAccounts struct {
	Registry   pubkey.PublicKey
	Treasury   pubkey.PublicKey
	RewardMint pubkey.PublicKey
	Listing    pubkey.PublicKey
	Vault      pubkey.PublicKey
}

// DeriveListingAccounts computes the listing account set of asset under registry.
func DeriveListingAccounts(registry, asset pubkey.PublicKey) (ListingAccounts, error) {
	out := ListingAccounts{Registry: registry}

	var err error
	if out.Treasury, _, err = TreasuryAddress(registry); err != nil {
		return ListingAccounts{}, err
	}
	if out.RewardMint, _, err = RewardMintAddress(registry); err != nil {
		return ListingAccounts{}, err
	}
	if out.Listing, _, err = ListingAddress(registry, asset); err != nil {
		return ListingAccounts{}, err
	}
	if out.Vault, err = VaultAddress(out.Listing, asset); err != nil {
		return ListingAccounts{}, err
	}
	return out, nil
}

// Addresses computes the listing account set of asset under the registry
// called name.
func Addresses(name string, asset pubkey.PublicKey) (ListingAccounts, error) {
	registry, _, err := RegistryAddress(name)
	if err != nil {
		return ListingAccounts{}, err
	}
	return DeriveListingAccounts(registry, asset)
}
