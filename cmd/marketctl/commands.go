package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"nft-escrow-market/internal/app"
	"nft-escrow-market/internal/config"
	"nft-escrow-market/internal/events"
	"nft-escrow-market/internal/ledger"
	"nft-escrow-market/internal/logging"
	"nft-escrow-market/internal/market"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/token"
)

// cliEnv carries state shared by commands. The marketplace is opened on
// first use so keygen and watch need no store.
type cliEnv struct {
	app      *app.App
	logger   *zap.Logger
	closeLog func()
	out      io.Writer
}

func (e *cliEnv) open(c *cli.Context) (*app.App, error) {
	if e.app != nil {
		return e.app, nil
	}

	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return nil, err
	}
	a, err := app.Open(c.Context, cfg, e.logger)
	if err != nil {
		return nil, err
	}
	e.app = a
	return a, nil
}

func (e *cliEnv) close() {
	if e.app != nil {
		e.app.Close()
	}
	if e.closeLog != nil {
		e.closeLog()
	}
}

func (e *cliEnv) printJSON(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newApp(env *cliEnv) *cli.App {
	keypairFlag := func(name, usage string) cli.Flag {
		return &cli.StringFlag{Name: name, Usage: usage, Required: true}
	}
	registryFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "registry", Usage: "registry name", Required: true}
	}
	assetFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "asset", Usage: "asset mint address", Required: true}
	}

	return &cli.App{
		Name:  "marketctl",
		Usage: "operate the NFT escrow marketplace",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file with store settings"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Before: func(c *cli.Context) error {
			if env.logger != nil {
				return nil
			}
			logger, closeLog, err := logging.New(logging.Options{Debug: c.Bool("debug"), Console: os.Stderr})
			if err != nil {
				return err
			}
			env.logger, env.closeLog = logger, closeLog
			zap.ReplaceGlobals(logger)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "keygen",
				Usage:  "generate a wallet keypair file",
				Action: env.keygen,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "keypair file to write", Required: true},
				},
			},
			{
				Name:   "airdrop",
				Usage:  "credit lamports to an address",
				Action: env.airdrop,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "to", Usage: "address or keypair file", Required: true},
					&cli.Uint64Flag{Name: "lamports", Value: 10_000_000_000, Usage: "amount to credit"},
				},
			},
			{
				Name:   "mint-nft",
				Usage:  "mint a new unique asset into a wallet",
				Action: env.mintNFT,
				Flags: []cli.Flag{
					keypairFlag("owner", "owner keypair file, pays for the mint"),
				},
			},
			{
				Name:   "create-registry",
				Usage:  "create a named marketplace registry",
				Action: env.createRegistry,
				Flags: []cli.Flag{
					keypairFlag("admin", "admin keypair file"),
					&cli.StringFlag{Name: "name", Usage: "registry name", Required: true},
					&cli.UintFlag{Name: "fee-bps", Usage: "platform fee in basis points"},
					&cli.StringFlag{Name: "collection", Usage: "restrict listings to this verified collection"},
					&cli.Uint64Flag{Name: "reward", Usage: "reward base units minted per purchase (default REWARD_PER_PURCHASE)"},
				},
			},
			{
				Name:   "list",
				Usage:  "escrow an asset for sale",
				Action: env.list,
				Flags: []cli.Flag{
					keypairFlag("maker", "seller keypair file"),
					registryFlag(),
					assetFlag(),
					&cli.Uint64Flag{Name: "price", Usage: "price in lamports", Required: true},
				},
			},
			{
				Name:   "cancel",
				Usage:  "withdraw a listing and return the asset",
				Action: env.cancel,
				Flags: []cli.Flag{
					keypairFlag("maker", "seller keypair file"),
					registryFlag(),
					assetFlag(),
				},
			},
			{
				Name:   "buy",
				Usage:  "purchase a listed asset",
				Action: env.buy,
				Flags: []cli.Flag{
					keypairFlag("taker", "buyer keypair file"),
					registryFlag(),
					assetFlag(),
					&cli.StringFlag{Name: "maker", Usage: "expected seller address", Required: true},
				},
			},
			{
				Name:   "show",
				Usage:  "print a registry with its listings, or a single listing",
				Action: env.show,
				Flags: []cli.Flag{
					registryFlag(),
					&cli.StringFlag{Name: "asset", Usage: "show only this listing"},
				},
			},
			{
				Name:   "watch",
				Usage:  "tail the live event feed of a server",
				Action: env.watch,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "endpoint", Value: "ws://localhost:8080/v1/feed", Usage: "feed websocket URL"},
					&cli.StringFlag{Name: "registry", Usage: "only events of this registry name"},
				},
			},
		},
	}
}

func (e *cliEnv) keygen(c *cli.Context) error {
	kp, err := pubkey.NewKeypair()
	if err != nil {
		return err
	}
	if err := pubkey.WriteKeypairFile(c.String("out"), kp); err != nil {
		return err
	}
	fmt.Fprintln(e.out, kp.PublicKey())
	return nil
}

func (e *cliEnv) airdrop(c *cli.Context) error {
	a, err := e.open(c)
	if err != nil {
		return err
	}
	to, err := resolveAddress(c.String("to"))
	if err != nil {
		return err
	}
	if _, err := a.Engine.Bank().Airdrop(c.Context, to, c.Uint64("lamports")); err != nil {
		return err
	}
	balance, err := a.Engine.Bank().Balance(c.Context, to)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%s %d\n", to, balance)
	return nil
}

func (e *cliEnv) mintNFT(c *cli.Context) error {
	a, err := e.open(c)
	if err != nil {
		return err
	}
	owner, err := pubkey.LoadKeypairFile(c.String("owner"))
	if err != nil {
		return err
	}
	asset, err := mintNFT(c.Context, a.Engine.Bank(), owner)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, asset)
	return nil
}

// mintNFT creates a fresh mint with supply 1 held by owner's associated
// token account.
func mintNFT(ctx context.Context, bank *ledger.Bank, owner *pubkey.Keypair) (pubkey.PublicKey, error) {
	mint, err := pubkey.NewKeypair()
	if err != nil {
		return pubkey.PublicKey{}, err
	}
	holder, err := token.AssociatedAddress(owner.PublicKey(), mint.PublicKey())
	if err != nil {
		return pubkey.PublicKey{}, err
	}

	keys := []pubkey.PublicKey{owner.PublicKey(), mint.PublicKey(), holder}
	_, err = bank.Execute(ctx, keys, func(tx *ledger.Tx) error {
		_, err := token.MintNFT(tx, owner.Signer(), mint.Signer(), owner.PublicKey())
		return err
	})
	if err != nil {
		return pubkey.PublicKey{}, fmt.Errorf("mint nft: %w", err)
	}
	return mint.PublicKey(), nil
}

func (e *cliEnv) createRegistry(c *cli.Context) error {
	a, err := e.open(c)
	if err != nil {
		return err
	}
	admin, err := pubkey.LoadKeypairFile(c.String("admin"))
	if err != nil {
		return err
	}
	fee := c.Uint("fee-bps")
	if fee > market.MaxFeeBps {
		return fmt.Errorf("%w: %d", market.ErrInvalidFee, fee)
	}

	var opts []market.RegistryOption
	if c.IsSet("reward") {
		opts = append(opts, market.WithRewardPerPurchase(c.Uint64("reward")))
	}
	if v := c.String("collection"); v != "" {
		collection, err := pubkey.Parse(v)
		if err != nil {
			return fmt.Errorf("collection: %w", err)
		}
		opts = append(opts, market.WithCollection(collection))
	}

	reg, err := a.Engine.CreateRegistry(c.Context, admin.Signer(), c.String("name"), uint16(fee), opts...)
	if err != nil {
		return err
	}
	return e.printJSON(reg)
}

func (e *cliEnv) list(c *cli.Context) error {
	a, err := e.open(c)
	if err != nil {
		return err
	}
	maker, err := pubkey.LoadKeypairFile(c.String("maker"))
	if err != nil {
		return err
	}
	registry, asset, err := listingTarget(c)
	if err != nil {
		return err
	}

	listing, err := a.Engine.CreateListing(c.Context, maker.Signer(), registry, asset, c.Uint64("price"))
	if err != nil {
		return err
	}
	return e.printJSON(listing)
}

func (e *cliEnv) cancel(c *cli.Context) error {
	a, err := e.open(c)
	if err != nil {
		return err
	}
	maker, err := pubkey.LoadKeypairFile(c.String("maker"))
	if err != nil {
		return err
	}
	registry, asset, err := listingTarget(c)
	if err != nil {
		return err
	}

	listing, err := a.Engine.CancelListing(c.Context, maker.Signer(), registry, asset)
	if err != nil {
		return err
	}
	return e.printJSON(listing)
}

func (e *cliEnv) buy(c *cli.Context) error {
	a, err := e.open(c)
	if err != nil {
		return err
	}
	taker, err := pubkey.LoadKeypairFile(c.String("taker"))
	if err != nil {
		return err
	}
	registry, asset, err := listingTarget(c)
	if err != nil {
		return err
	}
	maker, err := pubkey.Parse(c.String("maker"))
	if err != nil {
		return fmt.Errorf("maker: %w", err)
	}

	sale, err := a.Engine.Purchase(c.Context, taker.Signer(), registry, asset, maker)
	if err != nil {
		return err
	}
	return e.printJSON(sale)
}

type registryView struct {
	Registry any `json:"registry"`
	Listings any `json:"listings"`
}

func (e *cliEnv) show(c *cli.Context) error {
	a, err := e.open(c)
	if err != nil {
		return err
	}
	reg, err := a.Engine.RegistryByName(c.Context, c.String("registry"))
	if err != nil {
		return err
	}

	if v := c.String("asset"); v != "" {
		asset, err := pubkey.Parse(v)
		if err != nil {
			return fmt.Errorf("asset: %w", err)
		}
		listing, err := a.Engine.Listing(c.Context, reg.Address, asset)
		if err != nil {
			return err
		}
		return e.printJSON(listing)
	}

	listings, err := a.Engine.Listings(c.Context, reg.Address)
	if err != nil {
		return err
	}
	return e.printJSON(registryView{Registry: reg, Listings: listings})
}

func (e *cliEnv) watch(c *cli.Context) error {
	var registry *pubkey.PublicKey
	if name := c.String("registry"); name != "" {
		addr, _, err := market.RegistryAddress(name)
		if err != nil {
			return err
		}
		registry = &addr
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := events.NewClient(ctx, c.String("endpoint"), registry, nil, e.logger.Named("feed"))
	if err != nil {
		return err
	}
	defer client.Close()

	enc := json.NewEncoder(e.out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-client.Events():
			if !ok {
				return nil
			}
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
	}
}

// listingTarget resolves the --registry name and --asset flags.
func listingTarget(c *cli.Context) (registry, asset pubkey.PublicKey, err error) {
	registry, _, err = market.RegistryAddress(c.String("registry"))
	if err != nil {
		return registry, asset, err
	}
	asset, err = pubkey.Parse(c.String("asset"))
	if err != nil {
		return registry, asset, fmt.Errorf("asset: %w", err)
	}
	return registry, asset, nil
}

// resolveAddress accepts a base58 address or a keypair file.
func resolveAddress(v string) (pubkey.PublicKey, error) {
	if addr, err := pubkey.Parse(v); err == nil {
		return addr, nil
	}
	kp, err := pubkey.LoadKeypairFile(v)
	if err != nil {
		return pubkey.PublicKey{}, err
	}
	return kp.PublicKey(), nil
}
