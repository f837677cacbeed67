package clickhouse

import (
	"context"
	"fmt"
	"time"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/observability"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/storage"
)

// MarketEventStore implements storage.MarketEventStore using ClickHouse.
type MarketEventStore struct {
	conn *Conn
}

// NewMarketEventStore creates a new MarketEventStore.
func NewMarketEventStore(conn *Conn) *MarketEventStore {
	return &MarketEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.MarketEventStore = (*MarketEventStore)(nil)

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *MarketEventStore) InsertBulk(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" || !e.Type.IsValid() {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.EventID] = struct{}{}
	}

	// Check for duplicates against existing rows
	for _, e := range events {
		exists, err := s.exists(ctx, e.EventID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	start := time.Now()
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO market_events (
			event_id, event_type, registry, asset, maker, taker,
			price, fee, reward, seq, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.EventID, string(e.Type), e.Registry.String(),
			keyString(e.Asset), keyString(e.Maker), keyString(e.Taker),
			e.Price, e.Fee, e.Reward, e.Seq, e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	err = batch.Send()
	observability.RecordDBQuery("clickhouse", "market_event_insert", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByRegistry retrieves events of a registry within [start, end] (inclusive), ordered by seq ASC.
func (s *MarketEventStore) GetByRegistry(ctx context.Context, registry pubkey.PublicKey, start, end int64) ([]*domain.Event, error) {
	query := `
		SELECT
			event_id, event_type, registry, asset, maker, taker,
			price, fee, reward, seq, timestamp_ms
		FROM market_events FINAL
		WHERE registry = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY seq ASC, event_id ASC
	`

	rows, err := s.conn.Query(ctx, query, registry.String(), start, end)
	if err != nil {
		return nil, fmt.Errorf("query market events: %w", err)
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		var (
			e                   domain.Event
			eventType, reg      string
			asset, maker, taker *string
		)
		err := rows.Scan(
			&e.EventID, &eventType, &reg, &asset, &maker, &taker,
			&e.Price, &e.Fee, &e.Reward, &e.Seq, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan market event: %w", err)
		}

		e.Type = domain.EventType(eventType)
		if e.Registry, err = pubkey.Parse(reg); err != nil {
			return nil, fmt.Errorf("parse event registry: %w", err)
		}
		if e.Asset, err = parseKey(asset); err != nil {
			return nil, fmt.Errorf("parse event asset: %w", err)
		}
		if e.Maker, err = parseKey(maker); err != nil {
			return nil, fmt.Errorf("parse event maker: %w", err)
		}
		if e.Taker, err = parseKey(taker); err != nil {
			return nil, fmt.Errorf("parse event taker: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate market events: %w", err)
	}

	return events, nil
}

func (s *MarketEventStore) exists(ctx context.Context, eventID string) (bool, error) {
	query := `SELECT count(*) FROM market_events FINAL WHERE event_id = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, eventID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func keyString(k *pubkey.PublicKey) *string {
	if k == nil {
		return nil
	}
	s := k.String()
	return &s
}

func parseKey(s *string) (*pubkey.PublicKey, error) {
	if s == nil {
		return nil, nil
	}
	k, err := pubkey.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &k, nil
}
