// Package market implements the escrow marketplace: named registries,
// the listing lifecycle and atomic purchase settlement. Every operation runs
// as one ledger transaction; any error leaves all accounts untouched.
package market

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/idhash"
	"nft-escrow-market/internal/ledger"
	"nft-escrow-market/internal/observability"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/verify"
)

// EventSink receives events of committed operations.
type EventSink interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// Options configures an Engine.
type Options struct {
	Bank          *ledger.Bank              // required
	Verifier      verify.CollectionVerifier // needed for registries that name a collection
	Sink          EventSink                 // optional
	Metrics       *observability.Metrics    // defaults to observability.DefaultMetrics
	Logger        *zap.Logger               // defaults to a nop logger
	Now           func() time.Time          // defaults to time.Now
	DefaultReward uint64                    // reward per purchase for new registries, 0 = DefaultRewardPerPurchase
}

// Engine executes marketplace operations against a ledger.
type Engine struct {
	bank          *ledger.Bank
	verifier      verify.CollectionVerifier
	sink          EventSink
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           func() time.Time
	defaultReward uint64
}

// NewEngine creates an engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Bank == nil {
		return nil, errors.New("market: bank is required")
	}

	e := &Engine{
		bank:          opts.Bank,
		verifier:      opts.Verifier,
		sink:          opts.Sink,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		now:           opts.Now,
		defaultReward: opts.DefaultReward,
	}
	if e.metrics == nil {
		e.metrics = observability.DefaultMetrics
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.defaultReward == 0 {
		e.defaultReward = DefaultRewardPerPurchase
	}
	return e, nil
}

// Bank returns the ledger the engine operates on.
func (e *Engine) Bank() *ledger.Bank {
	return e.bank
}

// observe records the outcome of one operation.
func (e *Engine) observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = KindOf(err).String()
	}
	e.metrics.RecordOperation(op, status, time.Since(start).Seconds())
}

func (e *Engine) newEvent(typ domain.EventType, registry pubkey.PublicKey, asset *pubkey.PublicKey, seq uint64) *domain.Event {
	return &domain.Event{
		EventID:   idhash.ComputeEventID(typ, registry, asset, seq),
		Type:      typ,
		Registry:  registry,
		Asset:     asset,
		Seq:       seq,
		Timestamp: e.now().UnixMilli(),
	}
}

// publish hands a committed event to the sink. The operation already
// committed, so failures are logged and counted only.
func (e *Engine) publish(ctx context.Context, event *domain.Event) {
	if e.sink == nil {
		return
	}

	err := e.sink.Publish(context.WithoutCancel(ctx), event)
	e.metrics.RecordPublish(event.Type.String(), err)
	if err != nil {
		e.logger.Warn("publish event failed",
			zap.String("type", event.Type.String()),
			zap.String("event_id", event.EventID),
			zap.Uint64("seq", event.Seq),
			zap.Error(err),
		)
	}
}

func keyPtr(k pubkey.PublicKey) *pubkey.PublicKey {
	return &k
}
