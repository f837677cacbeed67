package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/storage"
)

// SaleStore is an in-memory implementation of storage.SaleStore.
type SaleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Sale // keyed by sale_id
}

// NewSaleStore creates a new in-memory sale store.
func NewSaleStore() *SaleStore {
	return &SaleStore{
		data: make(map[string]*domain.Sale),
	}
}

// Insert adds a new sale. Returns ErrDuplicateKey if sale_id exists.
func (s *SaleStore) Insert(_ context.Context, sale *domain.Sale) error {
	if sale == nil || sale.SaleID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sale.SaleID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *sale
	if copy.CreatedAt == 0 {
		copy.CreatedAt = time.Now().UnixMilli()
	}
	s.data[sale.SaleID] = &copy
	return nil
}

// GetByID retrieves a sale by its ID. Returns ErrNotFound if not exists.
func (s *SaleStore) GetByID(_ context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.data[saleID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *sale
	return &copy, nil
}

// GetByRegistry retrieves all sales of a registry, ordered by seq ASC.
func (s *SaleStore) GetByRegistry(_ context.Context, registry pubkey.PublicKey) ([]*domain.Sale, error) {
	return s.filter(func(sale *domain.Sale) bool { return sale.Registry == registry }), nil
}

// GetByAsset retrieves the sale history of an asset, ordered by seq ASC.
func (s *SaleStore) GetByAsset(_ context.Context, asset pubkey.PublicKey) ([]*domain.Sale, error) {
	return s.filter(func(sale *domain.Sale) bool { return sale.Asset == asset }), nil
}

func (s *SaleStore) filter(match func(*domain.Sale) bool) []*domain.Sale {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Sale
	for _, sale := range s.data {
		if match(sale) {
			copy := *sale
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Seq != result[j].Seq {
			return result[i].Seq < result[j].Seq
		}
		return result[i].SaleID < result[j].SaleID
	})

	return result
}

var _ storage.SaleStore = (*SaleStore)(nil)
