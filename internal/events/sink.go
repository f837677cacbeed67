// Package events distributes committed marketplace events: to live
// websocket subscribers through a Hub, and to sale and event history stores
// through a Recorder.
package events

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/storage"
)

// Sink receives events of committed operations.
type Sink interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// Multi publishes every event to each sink in order. All sinks are tried;
// their errors are joined.
type Multi []Sink

// Publish implements Sink.
func (m Multi) Publish(ctx context.Context, event *domain.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder persists sale receipts and the event history.
type Recorder struct {
	sales  storage.SaleStore
	events storage.MarketEventStore
	logger *zap.Logger
}

// NewRecorder creates a recorder. Either store may be nil.
func NewRecorder(sales storage.SaleStore, events storage.MarketEventStore, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{sales: sales, events: events, logger: logger}
}

// Publish implements Sink. Re-delivered events are ignored.
func (r *Recorder) Publish(ctx context.Context, event *domain.Event) error {
	var errs []error

	if event.Sale != nil && r.sales != nil {
		if err := r.sales.Insert(ctx, event.Sale); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			errs = append(errs, err)
		}
	}
	if r.events != nil {
		err := r.events.InsertBulk(ctx, []*domain.Event{event})
		switch {
		case errors.Is(err, storage.ErrDuplicateKey):
			r.logger.Debug("event already recorded", zap.String("event_id", event.EventID))
		case err != nil:
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

var (
	_ Sink = Multi(nil)
	_ Sink = (*Recorder)(nil)
	_ Sink = (*Hub)(nil)
)
