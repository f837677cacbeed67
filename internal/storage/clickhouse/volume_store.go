package clickhouse

import (
	"context"
	"fmt"
	"time"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/storage"
)

// VolumeStore implements storage.VolumeStore over the registry_daily_volume view.
type VolumeStore struct {
	conn *Conn
}

// NewVolumeStore creates a new VolumeStore.
func NewVolumeStore(conn *Conn) *VolumeStore {
	return &VolumeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.VolumeStore = (*VolumeStore)(nil)

// GetDailyVolume returns per-day sale totals for the UTC days covering [start, end].
func (s *VolumeStore) GetDailyVolume(ctx context.Context, registry pubkey.PublicKey, start, end int64) ([]*domain.DailyVolume, error) {
	query := `
		SELECT day, sales, volume, fees, rewards
		FROM registry_daily_volume
		WHERE registry = ? AND day >= toDate(?) AND day <= toDate(?)
		ORDER BY day ASC
	`

	first := time.UnixMilli(start).UTC().Format(domain.DayLayout)
	last := time.UnixMilli(end).UTC().Format(domain.DayLayout)

	rows, err := s.conn.Query(ctx, query, registry.String(), first, last)
	if err != nil {
		return nil, fmt.Errorf("query daily volume: %w", err)
	}
	defer rows.Close()

	return scanDailyVolume(rows, registry)
}

// scanDailyVolume scans multiple rows.
func scanDailyVolume(rows chRows, registry pubkey.PublicKey) ([]*domain.DailyVolume, error) {
	var volumes []*domain.DailyVolume

	for rows.Next() {
		var (
			v   = domain.DailyVolume{Registry: registry}
			day time.Time
		)
		if err := rows.Scan(&day, &v.Sales, &v.Volume, &v.Fees, &v.Rewards); err != nil {
			return nil, fmt.Errorf("scan daily volume row: %w", err)
		}
		v.Day = day.UTC().Format(domain.DayLayout)
		volumes = append(volumes, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily volume rows: %w", err)
	}

	return volumes, nil
}
