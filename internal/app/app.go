// Package app assembles the marketplace from configuration: stores, ledger,
// verifier, engine and event sinks.
package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"nft-escrow-market/internal/config"
	"nft-escrow-market/internal/events"
	"nft-escrow-market/internal/ledger"
	"nft-escrow-market/internal/market"
	"nft-escrow-market/internal/observability"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/solana"
	"nft-escrow-market/internal/storage"
	chstore "nft-escrow-market/internal/storage/clickhouse"
	"nft-escrow-market/internal/storage/memory"
	"nft-escrow-market/internal/storage/migrations"
	pgstore "nft-escrow-market/internal/storage/postgres"
	"nft-escrow-market/internal/verify"
)

// App holds the assembled components.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Engine  *market.Engine
	Hub     *events.Hub
	Sales   storage.SaleStore
	Events  storage.MarketEventStore
	Volumes storage.VolumeStore
	RPC     solana.RPCClient // nil unless VERIFIER=rpc

	cleanup []func()
}

// stores holds the storage implementations selected by MARKET_STORE.
type stores struct {
	accounts storage.AccountStore
	sales    storage.SaleStore
	events   storage.MarketEventStore
	volumes  storage.VolumeStore
}

// Open builds an App. Close releases its connections.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	st, err := a.createStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Verifier == config.VerifierRPC {
		a.RPC = solana.NewHTTPClient(cfg.RPCEndpoint)
	}
	verifier, err := newVerifier(cfg, a.RPC, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Sales = st.sales
	a.Events = st.events
	a.Volumes = st.volumes
	a.Hub = events.NewHub(events.DefaultSubscriberBuffer, logger.Named("hub"))

	bank := ledger.NewBank(st.accounts, ledger.WithLogger(logger.Named("ledger")))
	a.Engine, err = market.NewEngine(market.Options{
		Bank:          bank,
		Verifier:      verifier,
		Sink:          events.Multi{events.NewRecorder(st.sales, st.events, logger.Named("recorder")), a.Hub},
		Metrics:       observability.DefaultMetrics,
		Logger:        logger.Named("market"),
		DefaultReward: cfg.RewardPerPurchase,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases store connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

func (a *App) createStores(ctx context.Context) (*stores, error) {
	if a.Config.Store == config.StoreMemory {
		a.Logger.Warn("using in-memory storage, state is lost on exit")
		eventStore := memory.NewMarketEventStore()
		return &stores{
			accounts: memory.NewAccountStore(),
			sales:    memory.NewSaleStore(),
			events:   eventStore,
			volumes:  eventStore,
		}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, a.Config.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.cleanup = append(a.cleanup, pool.Close)
	if err := migrations.RunPostgresMigrations(ctx, pool, a.Logger); err != nil {
		return nil, err
	}

	// ClickHouse
	chConn, err := migrations.RunClickhouseMigrations(ctx, a.Config.ClickhouseDSN, a.Logger)
	if err != nil {
		return nil, err
	}
	a.cleanup = append(a.cleanup, func() { chConn.Close() })

	return &stores{
		accounts: pgstore.NewAccountStore(pool),
		sales:    pgstore.NewSaleStore(pool),
		events:   chstore.NewMarketEventStore(chConn),
		volumes:  chstore.NewVolumeStore(chConn),
	}, nil
}

// newVerifier returns nil for VERIFIER=none, so registries with a
// collection reject every listing.
func newVerifier(cfg *config.Config, rpc solana.RPCClient, logger *zap.Logger) (verify.CollectionVerifier, error) {
	switch cfg.Verifier {
	case config.VerifierRPC:
		return verify.NewRPCVerifier(rpc, cfg.VerifierCacheTTL, logger.Named("verify")), nil
	case config.VerifierStatic:
		return parseMembers(cfg.StaticMembers)
	default:
		return nil, nil
	}
}

// parseMembers builds a static verifier from "asset:collection" pairs.
func parseMembers(pairs []string) (*verify.Static, error) {
	s := verify.NewStatic()
	for _, p := range pairs {
		assetStr, collStr, ok := strings.Cut(p, ":")
		if !ok {
			return nil, fmt.Errorf("verifier member %q: want asset:collection", p)
		}
		asset, err := pubkey.Parse(assetStr)
		if err != nil {
			return nil, fmt.Errorf("verifier member asset: %w", err)
		}
		collection, err := pubkey.Parse(collStr)
		if err != nil {
			return nil, fmt.Errorf("verifier member collection: %w", err)
		}
		s.Add(asset, collection)
	}
	return s, nil
}
