package market

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"go.uber.org/zap"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/idhash"
	"nft-escrow-market/internal/ledger"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/token"
)

// Purchase buys the listing of asset under registry for taker. In one
// transaction the taker pays the maker's proceeds and the treasury fee, the
// asset moves from the vault to the taker, reward tokens are minted to the
// taker, and the vault and listing close with their rent returned to maker.
func (e *Engine) Purchase(ctx context.Context, taker pubkey.Signer, registry, asset, maker pubkey.PublicKey) (sale *domain.Sale, err error) {
	start := time.Now()
	defer func() { e.observe("purchase", start, err) }()

	if !taker.Valid() {
		return nil, ErrUnauthorized
	}

	reg, err := e.Registry(ctx, registry)
	if err != nil {
		return nil, err
	}
	accounts, err := DeriveListingAccounts(registry, asset)
	if err != nil {
		return nil, err
	}
	takerAsset, err := token.AssociatedAddress(taker.PublicKey(), asset)
	if err != nil {
		return nil, err
	}
	takerReward, err := token.AssociatedAddress(taker.PublicKey(), accounts.RewardMint)
	if err != nil {
		return nil, err
	}

	keys := []pubkey.PublicKey{
		taker.PublicKey(), maker, asset,
		accounts.Treasury, accounts.RewardMint, accounts.Listing, accounts.Vault,
		takerAsset, takerReward,
	}
	seq, err := e.bank.Execute(ctx, keys, func(tx *ledger.Tx) error {
		esc, err := loadEscrow(tx, registry, asset)
		if err != nil {
			return err
		}
		if esc.listing.Maker != maker {
			return fmt.Errorf("%w: listing maker is %s", ErrMakerMismatch, esc.listing.Maker)
		}

		price := esc.listing.Price
		fee, proceeds, err := ComputeFee(price, reg.FeeBps)
		if err != nil {
			return err
		}
		if err := preflightFunds(tx, taker.PublicKey(), price, reg.RewardPerPurchase > 0, takerAsset, takerReward); err != nil {
			return err
		}

		// Currency legs first.
		if err := ledger.Transfer(tx, taker, maker, proceeds); err != nil {
			return fmt.Errorf("pay maker: %w", fundsError(err))
		}
		if err := ledger.Transfer(tx, taker, accounts.Treasury, fee); err != nil {
			return fmt.Errorf("pay treasury: %w", fundsError(err))
		}

		dest, err := token.CreateAssociatedAccountIdempotent(tx, taker, taker.PublicKey(), asset)
		if err != nil {
			return fmt.Errorf("taker token account: %w", fundsError(err))
		}
		if err := esc.release(tx, dest); err != nil {
			return err
		}

		if reg.RewardPerPurchase > 0 {
			if err := e.mintReward(tx, reg, taker, accounts.RewardMint); err != nil {
				return err
			}
		}

		if err := esc.close(tx, maker); err != nil {
			return err
		}

		sale = &domain.Sale{
			SaleID:     idhash.ComputeSaleID(registry, asset, maker, taker.PublicKey(), price, tx.Seq()),
			Registry:   registry,
			Asset:      asset,
			Maker:      maker,
			Taker:      taker.PublicKey(),
			Price:      price,
			Fee:        fee,
			Proceeds:   proceeds,
			Reward:     reg.RewardPerPurchase,
			Seq:        tx.Seq(),
			ExecutedAt: e.now().UnixMilli(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.RecordSale(sale.Price, sale.Fee, sale.Reward, sale.ExecutedAt/1000)
	e.logger.Info("listing sold",
		zap.String("sale_id", sale.SaleID),
		zap.String("registry", registry.String()),
		zap.String("asset", asset.String()),
		zap.String("maker", maker.String()),
		zap.String("taker", sale.Taker.String()),
		zap.Uint64("price", sale.Price),
		zap.Uint64("fee", sale.Fee),
		zap.Uint64("seq", seq),
	)

	event := e.newEvent(domain.EventSold, registry, keyPtr(asset), seq)
	event.Maker = keyPtr(maker)
	event.Taker = keyPtr(sale.Taker)
	event.Price = sale.Price
	event.Fee = sale.Fee
	event.Reward = sale.Reward
	event.Sale = sale
	e.publish(ctx, event)

	return sale, nil
}

// mintReward issues the registry's per-purchase reward into the taker's
// reward account, signed by the reward mint itself.
func (e *Engine) mintReward(tx *ledger.Tx, reg *domain.Registry, taker pubkey.Signer, rewardMint pubkey.PublicKey) error {
	authority, err := pubkey.NewProgramSigner(ProgramID, rewardSeeds(reg.Address), reg.RewardAuthorityBump)
	if err != nil {
		return err
	}
	dest, err := token.CreateAssociatedAccountIdempotent(tx, taker, taker.PublicKey(), rewardMint)
	if err != nil {
		return fmt.Errorf("taker reward account: %w", fundsError(err))
	}
	if err := token.MintTo(tx, rewardMint, dest, authority, reg.RewardPerPurchase); err != nil {
		return fmt.Errorf("mint reward: %w", err)
	}
	return nil
}

// preflightFunds checks, before any lamports move, that taker can pay price
// plus rent for the token accounts the purchase will create.
func preflightFunds(tx *ledger.Tx, taker pubkey.PublicKey, price uint64, rewards bool, takerAsset, takerReward pubkey.PublicKey) error {
	need := price
	newAccounts := []pubkey.PublicKey{takerAsset}
	if rewards {
		newAccounts = append(newAccounts, takerReward)
	}
	for _, addr := range newAccounts {
		cost, err := ledger.CreationCost(tx, addr, token.AccountSize)
		if err != nil {
			return err
		}
		var carry uint64
		need, carry = bits.Add64(need, cost, 0)
		if carry != 0 {
			return fmt.Errorf("%w: price %d plus rent", ErrPriceOverflow, price)
		}
	}

	var balance uint64
	exists, err := tx.Exists(taker)
	if err != nil {
		return err
	}
	if exists {
		acc, err := tx.Get(taker)
		if err != nil {
			return err
		}
		balance = acc.Lamports
	}
	if balance < need {
		return fmt.Errorf("%w: %s has %d lamports, needs %d", ErrInsufficientFunds, taker, balance, need)
	}
	return nil
}

func fundsError(err error) error {
	if errors.Is(err, ledger.ErrInsufficientFunds) && !errors.Is(err, ErrInsufficientFunds) {
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	}
	return err
}
