package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/storage"
)

// SaleStore implements storage.SaleStore using PostgreSQL.
type SaleStore struct {
	pool *Pool
}

// NewSaleStore creates a new SaleStore.
func NewSaleStore(pool *Pool) *SaleStore {
	return &SaleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SaleStore = (*SaleStore)(nil)

// Insert adds a new sale. Returns ErrDuplicateKey if sale_id exists.
func (s *SaleStore) Insert(ctx context.Context, sale *domain.Sale) error {
	if sale == nil || sale.SaleID == "" {
		return storage.ErrInvalidInput
	}

	amounts := make([]int64, 4)
	for i, v := range []uint64{sale.Price, sale.Fee, sale.Proceeds, sale.Reward} {
		n, err := toBigint(v)
		if err != nil {
			return err
		}
		amounts[i] = n
	}
	seq, err := toBigint(sale.Seq)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sales (
			sale_id, registry, asset, maker, taker, price, fee, proceeds, reward, seq, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	start := time.Now()
	_, err = s.pool.Exec(ctx, query,
		sale.SaleID,
		sale.Registry.String(),
		sale.Asset.String(),
		sale.Maker.String(),
		sale.Taker.String(),
		amounts[0],
		amounts[1],
		amounts[2],
		amounts[3],
		seq,
		sale.ExecutedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			observe("sale_insert", start, nil)
			return storage.ErrDuplicateKey
		}
		observe("sale_insert", start, err)
		return fmt.Errorf("insert sale: %w", err)
	}
	observe("sale_insert", start, nil)
	return nil
}

// GetByID retrieves a sale by its ID. Returns ErrNotFound if not exists.
func (s *SaleStore) GetByID(ctx context.Context, saleID string) (*domain.Sale, error) {
	query := `
		SELECT sale_id, registry, asset, maker, taker, price, fee, proceeds, reward, seq, executed_at, created_at
		FROM sales
		WHERE sale_id = $1
	`

	sale, err := scanSale(s.pool.QueryRow(ctx, query, saleID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get sale by id: %w", err)
	}
	return sale, nil
}

// GetByRegistry retrieves all sales of a registry, ordered by seq ASC.
func (s *SaleStore) GetByRegistry(ctx context.Context, registry pubkey.PublicKey) ([]*domain.Sale, error) {
	query := `
		SELECT sale_id, registry, asset, maker, taker, price, fee, proceeds, reward, seq, executed_at, created_at
		FROM sales
		WHERE registry = $1
		ORDER BY seq ASC, sale_id ASC
	`

	rows, err := s.pool.Query(ctx, query, registry.String())
	if err != nil {
		return nil, fmt.Errorf("get sales by registry: %w", err)
	}
	defer rows.Close()

	return scanSales(rows)
}

// GetByAsset retrieves the sale history of an asset, ordered by seq ASC.
func (s *SaleStore) GetByAsset(ctx context.Context, asset pubkey.PublicKey) ([]*domain.Sale, error) {
	query := `
		SELECT sale_id, registry, asset, maker, taker, price, fee, proceeds, reward, seq, executed_at, created_at
		FROM sales
		WHERE asset = $1
		ORDER BY seq ASC, sale_id ASC
	`

	rows, err := s.pool.Query(ctx, query, asset.String())
	if err != nil {
		return nil, fmt.Errorf("get sales by asset: %w", err)
	}
	defer rows.Close()

	return scanSales(rows)
}

// scanSale scans a single row into a Sale.
func scanSale(row pgx.Row) (*domain.Sale, error) {
	var (
		sale                          domain.Sale
		registry, asset, maker, taker string
		price, fee, proceeds, reward  int64
		seq                           int64
	)

	err := row.Scan(
		&sale.SaleID,
		&registry,
		&asset,
		&maker,
		&taker,
		&price,
		&fee,
		&proceeds,
		&reward,
		&seq,
		&sale.ExecutedAt,
		&sale.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	keys := []struct {
		dst *pubkey.PublicKey
		src string
	}{
		{&sale.Registry, registry},
		{&sale.Asset, asset},
		{&sale.Maker, maker},
		{&sale.Taker, taker},
	}
	for _, k := range keys {
		if *k.dst, err = pubkey.Parse(k.src); err != nil {
			return nil, fmt.Errorf("parse sale address: %w", err)
		}
	}

	amounts := []struct {
		dst *uint64
		src int64
	}{
		{&sale.Price, price},
		{&sale.Fee, fee},
		{&sale.Proceeds, proceeds},
		{&sale.Reward, reward},
		{&sale.Seq, seq},
	}
	for _, a := range amounts {
		if *a.dst, err = fromBigint(a.src); err != nil {
			return nil, fmt.Errorf("sale amount: %w", err)
		}
	}

	return &sale, nil
}

// scanSales scans multiple rows into a slice of Sale.
func scanSales(rows pgx.Rows) ([]*domain.Sale, error) {
	var sales []*domain.Sale

	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale row: %w", err)
		}
		sales = append(sales, sale)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale rows: %w", err)
	}

	return sales, nil
}
