package market

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/ledger"
	"nft-escrow-market/internal/observability"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/storage/memory"
	"nft-escrow-market/internal/token"
	"nft-escrow-market/internal/verify"
)

const sol = 1_000_000_000

type recordingSink struct {
	mu     sync.Mutex
	events []*domain.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, event *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []domain.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

func (s *recordingSink) last() *domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return nil
	}
	return s.events[len(s.events)-1]
}

type fixture struct {
	bank     *ledger.Bank
	engine   *Engine
	sink     *recordingSink
	verifier *verify.Static
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		bank:     ledger.NewBank(memory.NewAccountStore()),
		sink:     &recordingSink{},
		verifier: verify.NewStatic(),
	}
	engine, err := NewEngine(Options{
		Bank:     f.bank,
		Verifier: f.verifier,
		Sink:     f.sink,
		Metrics:  observability.NewMetricsWith(prometheus.NewRegistry(), "test"),
	})
	require.NoError(t, err)
	f.engine = engine
	return f
}

func (f *fixture) wallet(t *testing.T, lamports uint64) *pubkey.Keypair {
	t.Helper()
	kp, err := pubkey.NewKeypair()
	require.NoError(t, err)
	if lamports > 0 {
		_, err = f.bank.Airdrop(context.Background(), kp.PublicKey(), lamports)
		require.NoError(t, err)
	}
	return kp
}

// mintNFT creates a unique asset held by owner.
func (f *fixture) mintNFT(t *testing.T, owner *pubkey.Keypair) pubkey.PublicKey {
	t.Helper()
	mint, err := pubkey.NewKeypair()
	require.NoError(t, err)
	holder, err := token.AssociatedAddress(owner.PublicKey(), mint.PublicKey())
	require.NoError(t, err)

	keys := []pubkey.PublicKey{owner.PublicKey(), mint.PublicKey(), holder}
	_, err = f.bank.Execute(context.Background(), keys, func(tx *ledger.Tx) error {
		_, err := token.MintNFT(tx, owner.Signer(), mint.Signer(), owner.PublicKey())
		return err
	})
	require.NoError(t, err)
	return mint.PublicKey()
}

func (f *fixture) registry(t *testing.T, admin *pubkey.Keypair, name string, feeBps uint16, opts ...RegistryOption) *domain.Registry {
	t.Helper()
	reg, err := f.engine.CreateRegistry(context.Background(), admin.Signer(), name, feeBps, opts...)
	require.NoError(t, err)
	return reg
}

func (f *fixture) balance(t *testing.T, addr pubkey.PublicKey) uint64 {
	t.Helper()
	b, err := f.bank.Balance(context.Background(), addr)
	require.NoError(t, err)
	return b
}

// holding returns the amount of mint in owner's associated account.
func (f *fixture) holding(t *testing.T, owner, mint pubkey.PublicKey) uint64 {
	t.Helper()
	addr, err := token.AssociatedAddress(owner, mint)
	require.NoError(t, err)
	return f.tokenAmount(t, addr)
}

func (f *fixture) tokenAmount(t *testing.T, addr pubkey.PublicKey) uint64 {
	t.Helper()
	raw, err := f.bank.Account(context.Background(), addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return 0
	}
	require.NoError(t, err)
	acc, err := token.ReadAccount(raw)
	require.NoError(t, err)
	return acc.Amount
}

func (f *fixture) supply(t *testing.T, mint pubkey.PublicKey) uint64 {
	t.Helper()
	raw, err := f.bank.Account(context.Background(), mint)
	require.NoError(t, err)
	m, err := token.ReadMint(raw)
	require.NoError(t, err)
	return m.Supply
}

func (f *fixture) exists(t *testing.T, addr pubkey.PublicKey) bool {
	t.Helper()
	_, err := f.bank.Account(context.Background(), addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return false
	}
	require.NoError(t, err)
	return true
}

// listed is a ready marketplace with one listed asset.
type listed struct {
	admin    *pubkey.Keypair
	maker    *pubkey.Keypair
	registry *domain.Registry
	asset    pubkey.PublicKey
	listing  *domain.Listing
	accounts ListingAccounts
}

func (f *fixture) listed(t *testing.T, feeBps uint16, price uint64, opts ...RegistryOption) *listed {
	t.Helper()
	l := &listed{
		admin: f.wallet(t, 10*sol),
		maker: f.wallet(t, 10*sol),
	}
	l.registry = f.registry(t, l.admin, "test", feeBps, opts...)
	l.asset = f.mintNFT(t, l.maker)

	listing, err := f.engine.CreateListing(context.Background(), l.maker.Signer(), l.registry.Address, l.asset, price)
	require.NoError(t, err)
	l.listing = listing

	l.accounts, err = DeriveListingAccounts(l.registry.Address, l.asset)
	require.NoError(t, err)
	return l
}
