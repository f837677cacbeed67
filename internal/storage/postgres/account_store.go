package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/storage"
)

// AccountStore implements storage.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *Pool
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool *Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

// Get retrieves an account by address. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(ctx context.Context, address pubkey.PublicKey) (*domain.Account, error) {
	query := `
		SELECT address, owner, lamports, data, version
		FROM accounts
		WHERE address = $1
	`

	acc, err := scanAccount(s.pool.QueryRow(ctx, query, address.String()))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return acc, nil
}

// GetMany retrieves the accounts that exist among addresses.
func (s *AccountStore) GetMany(ctx context.Context, addresses []pubkey.PublicKey) (_ map[pubkey.PublicKey]*domain.Account, err error) {
	start := time.Now()
	defer func() { observe("account_get_many", start, err) }()

	result := make(map[pubkey.PublicKey]*domain.Account, len(addresses))
	if len(addresses) == 0 {
		return result, nil
	}

	keys := make([]string, len(addresses))
	for i, a := range addresses {
		keys[i] = a.String()
	}

	query := `
		SELECT address, owner, lamports, data, version
		FROM accounts
		WHERE address = ANY($1)
	`

	rows, err := s.pool.Query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}
	defer rows.Close()

	accounts, err := scanAccounts(rows)
	if err != nil {
		return nil, err
	}
	for _, acc := range accounts {
		result[acc.Address] = acc
	}
	return result, nil
}

// GetByOwner retrieves accounts owned by a program whose data starts with dataPrefix.
func (s *AccountStore) GetByOwner(ctx context.Context, owner pubkey.PublicKey, dataPrefix []byte) ([]*domain.Account, error) {
	if dataPrefix == nil {
		dataPrefix = []byte{}
	}

	query := `
		SELECT address, owner, lamports, data, version
		FROM accounts
		WHERE owner = $1 AND substring(data FROM 1 FOR length($2::bytea)) = $2::bytea
		ORDER BY address ASC
	`

	rows, err := s.pool.Query(ctx, query, owner.String(), dataPrefix)
	if err != nil {
		return nil, fmt.Errorf("get accounts by owner: %w", err)
	}
	defer rows.Close()

	accounts, err := scanAccounts(rows)
	if err != nil {
		return nil, err
	}

	// Text ordering of base58 differs from byte ordering
	sortAccounts(accounts)
	return accounts, nil
}

// Commit applies the batch in one transaction. Returns ErrConflict if any
// version check fails.
func (s *AccountStore) Commit(ctx context.Context, batch storage.AccountBatch) (err error) {
	if len(batch.Puts) == 0 && len(batch.Deletes) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		if errors.Is(err, storage.ErrConflict) {
			observe("account_commit", start, nil)
			return
		}
		observe("account_commit", start, err)
	}()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insertQuery := `
		INSERT INTO accounts (address, owner, lamports, data, version)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (address) DO NOTHING
	`
	updateQuery := `
		UPDATE accounts
		SET owner = $2, lamports = $3, data = $4, version = $5, updated_at = now()
		WHERE address = $1 AND version = $6
	`
	deleteQuery := `
		DELETE FROM accounts
		WHERE address = $1 AND version = $2
	`

	for _, acc := range batch.Puts {
		if acc == nil || acc.Version == 0 {
			return storage.ErrInvalidInput
		}
		lamports, err := toBigint(acc.Lamports)
		if err != nil {
			return err
		}
		version, err := toBigint(acc.Version)
		if err != nil {
			return err
		}
		data := acc.Data
		if data == nil {
			data = []byte{}
		}

		var tag pgconn.CommandTag
		if acc.Version == 1 {
			tag, err = tx.Exec(ctx, insertQuery, acc.Address.String(), acc.Owner.String(), lamports, data)
		} else {
			tag, err = tx.Exec(ctx, updateQuery, acc.Address.String(), acc.Owner.String(), lamports, data, version, version-1)
		}
		if err != nil {
			return fmt.Errorf("write account %s: %w", acc.Address, err)
		}
		if tag.RowsAffected() != 1 {
			return storage.ErrConflict
		}
	}

	for _, ref := range batch.Deletes {
		version, err := toBigint(ref.Version)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, deleteQuery, ref.Address.String(), version)
		if err != nil {
			return fmt.Errorf("delete account %s: %w", ref.Address, err)
		}
		if tag.RowsAffected() != 1 {
			return storage.ErrConflict
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// scanAccount scans a single row into an Account.
func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		address, owner    string
		lamports, version int64
		acc               domain.Account
	)

	if err := row.Scan(&address, &owner, &lamports, &acc.Data, &version); err != nil {
		return nil, err
	}

	var err error
	if acc.Address, err = pubkey.Parse(address); err != nil {
		return nil, fmt.Errorf("parse account address: %w", err)
	}
	if acc.Owner, err = pubkey.Parse(owner); err != nil {
		return nil, fmt.Errorf("parse account owner: %w", err)
	}
	if acc.Lamports, err = fromBigint(lamports); err != nil {
		return nil, fmt.Errorf("account lamports: %w", err)
	}
	if acc.Version, err = fromBigint(version); err != nil {
		return nil, fmt.Errorf("account version: %w", err)
	}
	return &acc, nil
}

// scanAccounts scans multiple rows into a slice of Account.
func scanAccounts(rows pgx.Rows) ([]*domain.Account, error) {
	var accounts []*domain.Account

	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		accounts = append(accounts, acc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}

	return accounts, nil
}

func sortAccounts(accounts []*domain.Account) {
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Address.Compare(accounts[j].Address) < 0
	})
}
