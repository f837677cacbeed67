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
)

// RewardDecimals is the precision of every registry's reward token.
const RewardDecimals = 6

// RegistryOption customizes CreateRegistry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	collection *pubkey.PublicKey
	reward     *uint64
}

// WithCollection restricts listings to assets verified as members of collection.
func WithCollection(collection pubkey.PublicKey) RegistryOption {
	return func(c *registryConfig) {
		c.collection = &collection
	}
}

// WithRewardPerPurchase sets the reward minted to the taker of every purchase.
// Zero disables rewards.
func WithRewardPerPurchase(amount uint64) RegistryOption {
	return func(c *registryConfig) {
		c.reward = &amount
	}
}

// CreateRegistry creates the marketplace called name, administered and paid
// for by admin, together with its reward mint. A name can be taken once.
func (e *Engine) CreateRegistry(ctx context.Context, admin pubkey.Signer, name string, feeBps uint16, opts ...RegistryOption) (reg *domain.Registry, err error) {
	start := time.Now()
	defer func() { e.observe("create_registry", start, err) }()

	if !admin.Valid() {
		return nil, ErrUnauthorized
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateFee(feeBps); err != nil {
		return nil, err
	}

	cfg := registryConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	reward := e.defaultReward
	if cfg.reward != nil {
		reward = *cfg.reward
	}

	address, selfBump, err := RegistryAddress(name)
	if err != nil {
		return nil, err
	}
	_, treasuryBump, err := TreasuryAddress(address)
	if err != nil {
		return nil, err
	}
	rewardMint, rewardBump, err := RewardMintAddress(address)
	if err != nil {
		return nil, err
	}

	reg = &domain.Registry{
		Address:             address,
		Admin:               admin.PublicKey(),
		FeeBps:              feeBps,
		Name:                name,
		SelfBump:            selfBump,
		TreasuryBump:        treasuryBump,
		RewardAuthorityBump: rewardBump,
		Collection:          cfg.collection,
		RewardPerPurchase:   reward,
	}

	keys := []pubkey.PublicKey{admin.PublicKey(), address, rewardMint}
	seq, err := e.bank.Execute(ctx, keys, func(tx *ledger.Tx) error {
		exists, err := holdsRecord(tx, address, registryDiscriminator)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
		}

		registrySigner, err := pubkey.NewProgramSigner(ProgramID, registrySeeds(name), selfBump)
		if err != nil {
			return err
		}
		if err := ledger.CreateAccount(tx, admin, registrySigner, RegistrySize, ProgramID); err != nil {
			return fmt.Errorf("allocate registry: %w", err)
		}
		raw, err := tx.Get(address)
		if err != nil {
			return err
		}
		raw.Data = encodeRegistry(reg)

		rewardSigner, err := pubkey.NewProgramSigner(ProgramID, rewardSeeds(address), rewardBump)
		if err != nil {
			return err
		}
		if err := token.InitializeMint(tx, admin, rewardSigner, RewardDecimals, rewardMint); err != nil {
			return fmt.Errorf("initialize reward mint: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return nil, fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
		}
		return nil, err
	}

	e.logger.Info("registry created",
		zap.String("registry", address.String()),
		zap.String("name", name),
		zap.String("admin", reg.Admin.String()),
		zap.Uint16("fee_bps", feeBps),
		zap.Uint64("seq", seq),
	)

	event := e.newEvent(domain.EventRegistryCreated, address, nil, seq)
	event.Maker = keyPtr(reg.Admin)
	event.Fee = uint64(feeBps)
	event.Reward = reward
	e.publish(ctx, event)

	return reg, nil
}

// Registry reads the registry at address.
func (e *Engine) Registry(ctx context.Context, address pubkey.PublicKey) (*domain.Registry, error) {
	raw, err := e.bank.Account(ctx, address)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRegistryNotFound, address)
		}
		return nil, err
	}
	if !isRecord(raw, registryDiscriminator) {
		return nil, fmt.Errorf("%w: %s", ErrRegistryNotFound, address)
	}
	return decodeRegistry(address, raw.Data)
}

// RegistryByName reads the registry called name.
func (e *Engine) RegistryByName(ctx context.Context, name string) (*domain.Registry, error) {
	address, _, err := RegistryAddress(name)
	if err != nil {
		return nil, err
	}
	return e.Registry(ctx, address)
}

// Registries lists every registry.
func (e *Engine) Registries(ctx context.Context) ([]*domain.Registry, error) {
	accounts, err := e.bank.AccountsByOwner(ctx, ProgramID, registryDiscriminator)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Registry, 0, len(accounts))
	for _, raw := range accounts {
		reg, err := decodeRegistry(raw.Address, raw.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, nil
}
