package ledger

import (
	"bytes"
	"context"
	"fmt"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/storage"
)

// Tx is the staged view of one operation's declared accounts. Accounts
// returned by Get are staged copies; mutating them changes only the
// transaction until the Bank commits it.
type Tx struct {
	ctx    context.Context
	seq    uint64
	keys   []pubkey.PublicKey
	orig   map[pubkey.PublicKey]*domain.Account
	staged map[pubkey.PublicKey]*domain.Account
	checks []func(*Tx) error
}

func newTx(ctx context.Context, seq uint64, keys []pubkey.PublicKey, loaded map[pubkey.PublicKey]*domain.Account) *Tx {
	tx := &Tx{
		ctx:    ctx,
		seq:    seq,
		keys:   keys,
		orig:   make(map[pubkey.PublicKey]*domain.Account, len(keys)),
		staged: make(map[pubkey.PublicKey]*domain.Account, len(keys)),
	}
	for _, k := range keys {
		acc := loaded[k]
		tx.orig[k] = acc
		tx.staged[k] = acc.Clone()
	}
	return tx
}

// Context returns the context the transaction runs under.
func (tx *Tx) Context() context.Context {
	return tx.ctx
}

// Seq returns the commit sequence assigned to the transaction.
func (tx *Tx) Seq() uint64 {
	return tx.seq
}

// Get returns the staged account at addr.
func (tx *Tx) Get(addr pubkey.PublicKey) (*domain.Account, error) {
	acc, declared := tx.staged[addr]
	if !declared {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotDeclared, addr)
	}
	if acc == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	return acc, nil
}

// Exists reports whether the staged account at addr exists.
func (tx *Tx) Exists(addr pubkey.PublicKey) (bool, error) {
	acc, declared := tx.staged[addr]
	if !declared {
		return false, fmt.Errorf("%w: %s", ErrAccountNotDeclared, addr)
	}
	return acc != nil, nil
}

// Create stages a new account. Returns ErrAccountAlreadyInUse if one exists.
func (tx *Tx) Create(acc *domain.Account) error {
	exists, err := tx.Exists(acc.Address)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyInUse, acc.Address)
	}
	tx.staged[acc.Address] = acc.Clone()
	return nil
}

// Delete stages removal of the account at addr.
func (tx *Tx) Delete(addr pubkey.PublicKey) error {
	if _, err := tx.Get(addr); err != nil {
		return err
	}
	tx.staged[addr] = nil
	return nil
}

// Check registers fn to run after the operation body and before commit.
// A failing check aborts the transaction.
func (tx *Tx) Check(fn func(*Tx) error) {
	tx.checks = append(tx.checks, fn)
}

// batch converts staged state into a versioned write set. Accounts drained
// to zero lamports are removed.
func (tx *Tx) batch() (storage.AccountBatch, error) {
	var batch storage.AccountBatch

	for _, k := range tx.keys {
		orig, cur := tx.orig[k], tx.staged[k]
		if cur != nil && cur.Lamports == 0 {
			cur = nil
		}

		switch {
		case cur == nil && orig == nil:
			continue
		case cur == nil:
			batch.Deletes = append(batch.Deletes, storage.AccountRef{Address: k, Version: orig.Version})
			continue
		}

		if len(cur.Data) > 0 && cur.Lamports < MinimumBalance(len(cur.Data)) {
			return storage.AccountBatch{}, fmt.Errorf("%w: %s", ErrRentNotExempt, k)
		}

		put := cur.Clone()
		put.Address = k
		if orig == nil {
			put.Version = 1
		} else {
			if unchanged(orig, cur) {
				continue
			}
			put.Version = orig.Version + 1
		}
		batch.Puts = append(batch.Puts, put)
	}

	return batch, nil
}

func unchanged(a, b *domain.Account) bool {
	return a.Owner == b.Owner && a.Lamports == b.Lamports && bytes.Equal(a.Data, b.Data)
}
