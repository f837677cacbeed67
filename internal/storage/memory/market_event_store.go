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

// MarketEventStore is an in-memory implementation of storage.MarketEventStore.
type MarketEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Event // keyed by event_id
}

// NewMarketEventStore creates a new in-memory market event store.
func NewMarketEventStore() *MarketEventStore {
	return &MarketEventStore{
		data: make(map[string]*domain.Event),
	}
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *MarketEventStore) InsertBulk(_ context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" || !e.Type.IsValid() {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[e.EventID] = struct{}{}
	}

	for _, e := range events {
		s.data[e.EventID] = cloneEvent(e)
	}

	return nil
}

// GetByRegistry retrieves events of a registry within [start, end] (inclusive), ordered by seq ASC.
func (s *MarketEventStore) GetByRegistry(_ context.Context, registry pubkey.PublicKey, start, end int64) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for _, e := range s.data {
		if e.Registry == registry && e.Timestamp >= start && e.Timestamp <= end {
			result = append(result, cloneEvent(e))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Seq != result[j].Seq {
			return result[i].Seq < result[j].Seq
		}
		return result[i].EventID < result[j].EventID
	})

	return result, nil
}

// GetDailyVolume aggregates SOLD events of a registry by UTC day.
func (s *MarketEventStore) GetDailyVolume(_ context.Context, registry pubkey.PublicKey, start, end int64) ([]*domain.DailyVolume, error) {
	first, last := utcDay(start), utcDay(end)

	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := make(map[string]*domain.DailyVolume)
	for _, e := range s.data {
		if e.Registry != registry || e.Type != domain.EventSold {
			continue
		}
		day := utcDay(e.Timestamp)
		if day < first || day > last {
			continue
		}
		v, ok := byDay[day]
		if !ok {
			v = &domain.DailyVolume{Registry: registry, Day: day}
			byDay[day] = v
		}
		v.Sales++
		v.Volume += e.Price
		v.Fees += e.Fee
		v.Rewards += e.Reward
	}

	result := make([]*domain.DailyVolume, 0, len(byDay))
	for _, v := range byDay {
		result = append(result, v)
	}
	// DayLayout sorts lexically in date order
	sort.Slice(result, func(i, j int) bool {
		return result[i].Day < result[j].Day
	})
	return result, nil
}

func utcDay(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(domain.DayLayout)
}

// cloneEvent copies e without the in-process sale receipt.
func cloneEvent(e *domain.Event) *domain.Event {
	c := *e
	c.Asset = cloneKey(e.Asset)
	c.Maker = cloneKey(e.Maker)
	c.Taker = cloneKey(e.Taker)
	c.Sale = nil
	return &c
}

func cloneKey(k *pubkey.PublicKey) *pubkey.PublicKey {
	if k == nil {
		return nil
	}
	v := *k
	return &v
}

var (
	_ storage.MarketEventStore = (*MarketEventStore)(nil)
	_ storage.VolumeStore      = (*MarketEventStore)(nil)
)
