// Package ledger is the account runtime the marketplace programs execute on.
//
// A Bank runs each operation as a Tx over an explicitly declared set of
// accounts. Declared accounts are locked for the duration of the operation,
// staged copies are mutated, and the resulting batch is committed to the
// AccountStore atomically. An error anywhere discards every staged change.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/storage"
)

// Bank executes transactions against an AccountStore.
type Bank struct {
	store  storage.AccountStore
	locks  *lockTable
	seq    atomic.Uint64
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Bank.
type Option func(*Bank)

// WithLogger sets the logger used for commit diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bank) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock overrides the time source used to seed commit sequences.
func WithClock(now func() time.Time) Option {
	return func(b *Bank) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBank creates a Bank over store.
func NewBank(store storage.AccountStore, opts ...Option) *Bank {
	b := &Bank{
		store:  store,
		locks:  newLockTable(),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Execute runs fn against the accounts named by keys and commits its staged
// writes atomically. It returns the commit sequence of the transaction.
//
// Operations on disjoint key sets run concurrently; operations sharing a
// key are serialized. If fn, a registered check, or the commit fails,
// nothing is written.
func (b *Bank) Execute(ctx context.Context, keys []pubkey.PublicKey, fn func(tx *Tx) error) (uint64, error) {
	keys = normalizeKeys(keys)

	release, err := b.locks.acquire(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("acquire account locks: %w", err)
	}
	defer release()

	loaded, err := b.store.GetMany(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("load accounts: %w", err)
	}

	tx := newTx(ctx, b.nextSeq(), keys, loaded)
	if err := fn(tx); err != nil {
		return 0, err
	}
	for _, check := range tx.checks {
		if err := check(tx); err != nil {
			return 0, err
		}
	}

	batch, err := tx.batch()
	if err != nil {
		return 0, err
	}
	if err := b.store.Commit(ctx, batch); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			b.logger.Warn("commit rejected by store",
				zap.Uint64("seq", tx.seq),
				zap.Int("accounts", len(keys)),
			)
		}
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return tx.seq, nil
}

// Airdrop credits lamports to a system account, creating it if needed.
func (b *Bank) Airdrop(ctx context.Context, to pubkey.PublicKey, lamports uint64) (uint64, error) {
	return b.Execute(ctx, []pubkey.PublicKey{to}, func(tx *Tx) error {
		return credit(tx, to, lamports)
	})
}

// Account reads committed account state. Returns ErrAccountNotFound if the
// account does not exist.
func (b *Bank) Account(ctx context.Context, address pubkey.PublicKey) (*domain.Account, error) {
	acc, err := b.store.Get(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return acc, nil
}

// Balance returns the committed lamports of address, zero if it does not exist.
func (b *Bank) Balance(ctx context.Context, address pubkey.PublicKey) (uint64, error) {
	acc, err := b.Account(ctx, address)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return acc.Lamports, nil
}

// AccountsByOwner reads committed accounts owned by program whose data starts
// with prefix.
func (b *Bank) AccountsByOwner(ctx context.Context, program pubkey.PublicKey, prefix []byte) ([]*domain.Account, error) {
	accounts, err := b.store.GetByOwner(ctx, program, prefix)
	if err != nil {
		return nil, fmt.Errorf("get accounts by owner: %w", err)
	}
	return accounts, nil
}

// nextSeq returns a strictly increasing sequence seeded from the wall clock,
// so sequences stay unique across restarts.
func (b *Bank) nextSeq() uint64 {
	for {
		prev := b.seq.Load()
		next := uint64(b.now().UnixNano())
		if next <= prev {
			next = prev + 1
		}
		if b.seq.CompareAndSwap(prev, next) {
			return next
		}
	}
}

// normalizeKeys sorts keys and removes duplicates.
func normalizeKeys(keys []pubkey.PublicKey) []pubkey.PublicKey {
	out := make([]pubkey.PublicKey, len(keys))
	copy(out, keys)
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })

	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}
