package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nft-escrow-market/internal/app"
	"nft-escrow-market/internal/config"
	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/market"
	"nft-escrow-market/internal/pubkey"
)

type harness struct {
	env *cliEnv
	out *bytes.Buffer
	dir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	a, err := app.Open(context.Background(), &config.Config{Store: config.StoreMemory, Verifier: config.VerifierNone}, nil)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	env := &cliEnv{app: a, logger: zap.NewNop(), out: out}
	t.Cleanup(env.close)
	return &harness{env: env, out: out, dir: t.TempDir()}
}

// run executes one command and returns its trimmed output.
func (h *harness) run(t *testing.T, args ...string) string {
	t.Helper()
	h.out.Reset()
	err := newApp(h.env).Run(append([]string{"marketctl"}, args...))
	require.NoError(t, err, "marketctl %s", strings.Join(args, " "))
	return strings.TrimSpace(h.out.String())
}

func (h *harness) runErr(args ...string) error {
	h.out.Reset()
	return newApp(h.env).Run(append([]string{"marketctl"}, args...))
}

func (h *harness) wallet(t *testing.T, name string) (string, pubkey.PublicKey) {
	t.Helper()
	path := filepath.Join(h.dir, name+".json")
	addr, err := pubkey.Parse(h.run(t, "keygen", "--out", path))
	require.NoError(t, err)
	h.run(t, "airdrop", "--to", path, "--lamports", "50000000000")
	return path, addr
}

func TestMarketctl_ListAndBuy(t *testing.T) {
	h := newHarness(t)
	admin, _ := h.wallet(t, "admin")
	maker, makerAddr := h.wallet(t, "maker")
	taker, takerAddr := h.wallet(t, "taker")

	var reg domain.Registry
	out := h.run(t, "create-registry", "--admin", admin, "--name", "cli", "--fee-bps", "500")
	require.NoError(t, json.Unmarshal([]byte(out), &reg))
	assert.Equal(t, uint16(500), reg.FeeBps)
	assert.Equal(t, uint64(market.DefaultRewardPerPurchase), reg.RewardPerPurchase)

	asset := h.run(t, "mint-nft", "--owner", maker)

	var listing domain.Listing
	out = h.run(t, "list", "--maker", maker, "--registry", "cli", "--asset", asset, "--price", "4000000000")
	require.NoError(t, json.Unmarshal([]byte(out), &listing))
	assert.Equal(t, makerAddr, listing.Maker)

	var view struct {
		Listings []domain.Listing `json:"listings"`
	}
	require.NoError(t, json.Unmarshal([]byte(h.run(t, "show", "--registry", "cli")), &view))
	require.Len(t, view.Listings, 1)

	var sale domain.Sale
	out = h.run(t, "buy", "--taker", taker, "--registry", "cli", "--asset", asset, "--maker", makerAddr.String())
	require.NoError(t, json.Unmarshal([]byte(out), &sale))
	assert.Equal(t, takerAddr, sale.Taker)
	assert.Equal(t, uint64(200_000_000), sale.Fee)
	assert.Equal(t, uint64(3_800_000_000), sale.Proceeds)

	err := h.runErr("show", "--registry", "cli", "--asset", asset)
	assert.ErrorIs(t, err, market.ErrListingNotFound)
}

func TestMarketctl_ListAndCancel(t *testing.T) {
	h := newHarness(t)
	admin, _ := h.wallet(t, "admin")
	maker, _ := h.wallet(t, "maker")
	other, _ := h.wallet(t, "other")

	h.run(t, "create-registry", "--admin", admin, "--name", "cli", "--reward", "0")
	asset := h.run(t, "mint-nft", "--owner", maker)
	h.run(t, "list", "--maker", maker, "--registry", "cli", "--asset", asset, "--price", "1")

	err := h.runErr("cancel", "--maker", other, "--registry", "cli", "--asset", asset)
	assert.ErrorIs(t, err, market.ErrUnauthorized)

	h.run(t, "cancel", "--maker", maker, "--registry", "cli", "--asset", asset)
	err = h.runErr("cancel", "--maker", maker, "--registry", "cli", "--asset", asset)
	assert.ErrorIs(t, err, market.ErrAlreadyClosed)
}

func TestMarketctl_Validation(t *testing.T) {
	h := newHarness(t)
	admin, _ := h.wallet(t, "admin")

	err := h.runErr("create-registry", "--admin", admin, "--name", "cli", "--fee-bps", "10001")
	assert.ErrorIs(t, err, market.ErrInvalidFee)

	err = h.runErr("airdrop", "--to", filepath.Join(h.dir, "nobody.json"))
	assert.Error(t, err)

	err = h.runErr("list", "--maker", admin, "--registry", "cli", "--asset", "not-a-key", "--price", "1")
	assert.Error(t, err)
}
