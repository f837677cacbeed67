package storage

import (
	"context"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/pubkey"
)

// AccountRef identifies an account at a specific stored version.
type AccountRef struct {
	Address pubkey.PublicKey
	Version uint64
}

// AccountBatch is the set of writes produced by one ledger transaction.
//
// Every account in Puts carries its new version. Version 1 means the account
// is created and must not exist yet; version N > 1 replaces the stored
// version N-1. Deletes name the version expected to be stored.
type AccountBatch struct {
	Puts    []*domain.Account
	Deletes []AccountRef
}

// AccountStore provides access to ledger account state.
type AccountStore interface {
	// Get retrieves an account by address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address pubkey.PublicKey) (*domain.Account, error)

	// GetMany retrieves the accounts that exist among addresses, keyed by address.
	GetMany(ctx context.Context, addresses []pubkey.PublicKey) (map[pubkey.PublicKey]*domain.Account, error)

	// GetByOwner retrieves accounts owned by a program whose data starts with
	// dataPrefix, ordered by address. An empty prefix matches all.
	GetByOwner(ctx context.Context, owner pubkey.PublicKey, dataPrefix []byte) ([]*domain.Account, error)

	// Commit applies the batch atomically. Returns ErrConflict if any account
	// version does not match, in which case nothing is written.
	Commit(ctx context.Context, batch AccountBatch) error
}

// SaleStore provides access to sales storage.
type SaleStore interface {
	// Insert adds a new sale. Returns ErrDuplicateKey if sale_id exists.
	Insert(ctx context.Context, s *domain.Sale) error

	// GetByID retrieves a sale by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, saleID string) (*domain.Sale, error)

	// GetByRegistry retrieves all sales of a registry, ordered by seq ASC.
	GetByRegistry(ctx context.Context, registry pubkey.PublicKey) ([]*domain.Sale, error)

	// GetByAsset retrieves the sale history of an asset, ordered by seq ASC.
	GetByAsset(ctx context.Context, asset pubkey.PublicKey) ([]*domain.Sale, error)
}

// MarketEventStore provides access to market_events storage.
type MarketEventStore interface {
	// InsertBulk adds multiple events atomically. Fails entire batch on duplicate event_id.
	InsertBulk(ctx context.Context, events []*domain.Event) error

	// GetByRegistry retrieves events of a registry within [start, end] (inclusive, unix ms),
	// ordered by seq ASC.
	GetByRegistry(ctx context.Context, registry pubkey.PublicKey, start, end int64) ([]*domain.Event, error)
}

// VolumeStore provides aggregated sale volume.
type VolumeStore interface {
	// GetDailyVolume returns per-day totals of SOLD events of a registry for
	// the UTC days covering [start, end] (unix ms), ordered by day ASC.
	// Days without sales are omitted.
	GetDailyVolume(ctx context.Context, registry pubkey.PublicKey, start, end int64) ([]*domain.DailyVolume, error)
}
