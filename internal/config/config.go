// Package config reads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Collection verifier modes.
const (
	VerifierNone   = "none"
	VerifierStatic = "static"
	VerifierRPC    = "rpc"
)

// Config holds the settings shared by the server and the operator CLI.
type Config struct {
	Store             string
	PostgresDSN       string
	ClickhouseDSN     string
	RPCEndpoint       string
	HTTPAddr          string
	LogFile           string
	Debug             bool
	RewardPerPurchase uint64
	Verifier          string
	VerifierCacheTTL  time.Duration
	// StaticMembers lists "asset:collection" pairs for VERIFIER=static.
	StaticMembers     []string
}

// Load reads the given .env files (".env" when none are given) without
// overriding variables already set, then builds a Config. Missing files are
// not an error.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Get()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get builds a Config from the current environment.
func Get() *Config {
	return &Config{
		Store:             strings.ToLower(getString("MARKET_STORE", StoreMemory)),
		PostgresDSN:       getString("POSTGRES_DSN", ""),
		ClickhouseDSN:     getString("CLICKHOUSE_DSN", ""),
		RPCEndpoint:       getString("SOLANA_RPC_ENDPOINT", ""),
		HTTPAddr:          getString("HTTP_ADDR", ":8080"),
		LogFile:           getString("LOG_FILE", ""),
		Debug:             getBool("DEBUG", false),
		RewardPerPurchase: getUint64("REWARD_PER_PURCHASE", 0),
		Verifier:          strings.ToLower(getString("VERIFIER", VerifierNone)),
		VerifierCacheTTL:  getDuration("VERIFIER_CACHE_TTL", 10*time.Minute),
		StaticMembers:     getSlice("VERIFIER_MEMBERS", nil, ","),
	}
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" || c.ClickhouseDSN == "" {
			return fmt.Errorf("MARKET_STORE=postgres requires POSTGRES_DSN and CLICKHOUSE_DSN")
		}
	default:
		return fmt.Errorf("unknown MARKET_STORE %q", c.Store)
	}

	switch c.Verifier {
	case VerifierNone, VerifierStatic:
	case VerifierRPC:
		if c.RPCEndpoint == "" {
			return fmt.Errorf("VERIFIER=rpc requires SOLANA_RPC_ENDPOINT")
		}
	default:
		return fmt.Errorf("unknown VERIFIER %q", c.Verifier)
	}
	return nil
}

func getString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if val, err := strconv.ParseBool(getString(key, "")); err == nil {
		return val
	}
	return defaultValue
}

func getUint64(key string, defaultValue uint64) uint64 {
	if val, err := strconv.ParseUint(getString(key, ""), 10, 64); err == nil {
		return val
	}
	return defaultValue
}

func getSlice(key string, defaultVal []string, sep string) []string {
	valStr := getString(key, "")
	if valStr == "" {
		return defaultVal
	}

	var out []string
	for _, v := range strings.Split(valStr, sep) {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if val, err := time.ParseDuration(getString(key, "")); err == nil {
		return val
	}
	return defaultValue
}
