package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/storage"
)

// AccountStore is an in-memory implementation of storage.AccountStore.
type AccountStore struct {
	mu   sync.RWMutex
	data map[pubkey.PublicKey]*domain.Account
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		data: make(map[pubkey.PublicKey]*domain.Account),
	}
}

// Get retrieves an account by address. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(_ context.Context, address pubkey.PublicKey) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.data[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return acc.Clone(), nil
}

// GetMany retrieves the accounts that exist among addresses.
func (s *AccountStore) GetMany(_ context.Context, addresses []pubkey.PublicKey) (map[pubkey.PublicKey]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[pubkey.PublicKey]*domain.Account, len(addresses))
	for _, addr := range addresses {
		if acc, ok := s.data[addr]; ok {
			result[addr] = acc.Clone()
		}
	}
	return result, nil
}

// GetByOwner retrieves accounts owned by a program whose data starts with dataPrefix.
func (s *AccountStore) GetByOwner(_ context.Context, owner pubkey.PublicKey, dataPrefix []byte) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Account
	for _, acc := range s.data {
		if acc.Owner == owner && bytes.HasPrefix(acc.Data, dataPrefix) {
			result = append(result, acc.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Address.Compare(result[j].Address) < 0
	})

	return result, nil
}

// Commit applies the batch atomically. Returns ErrConflict on any version mismatch.
func (s *AccountStore) Commit(_ context.Context, batch storage.AccountBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: validate every version against current state
	for _, acc := range batch.Puts {
		if acc == nil || acc.Version == 0 {
			return storage.ErrInvalidInput
		}
		current, exists := s.data[acc.Address]
		if acc.Version == 1 {
			if exists {
				return storage.ErrConflict
			}
			continue
		}
		if !exists || current.Version != acc.Version-1 {
			return storage.ErrConflict
		}
	}
	for _, ref := range batch.Deletes {
		current, exists := s.data[ref.Address]
		if !exists || current.Version != ref.Version {
			return storage.ErrConflict
		}
	}

	// Second pass: apply
	for _, acc := range batch.Puts {
		s.data[acc.Address] = acc.Clone()
	}
	for _, ref := range batch.Deletes {
		delete(s.data, ref.Address)
	}

	return nil
}

var _ storage.AccountStore = (*AccountStore)(nil)
