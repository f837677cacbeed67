// Package main runs the marketplace HTTP service: read endpoints over
// registries, listings and sales, Prometheus metrics and the live event feed.
package main

import (
	"context"
	"errors"
	"log"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nft-escrow-market/internal/app"
	"nft-escrow-market/internal/config"
	"nft-escrow-market/internal/events"
	"nft-escrow-market/internal/logging"
)

func main() {
	// Load .env file if exists
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Parse flags (env vars as defaults)
	addr := flag.String("addr", cfg.HTTPAddr, "HTTP listen address")
	debug := flag.Bool("debug", cfg.Debug, "Enable debug logging")
	logFile := flag.String("log-file", cfg.LogFile, "Also write JSON logs to this file")
	flag.Parse()

	logger, closeLog, err := logging.New(logging.Options{Debug: *debug, File: *logFile})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer closeLog()
	zap.ReplaceGlobals(logger)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open marketplace", zap.Error(err))
	}
	defer a.Close()

	api := &API{
		engine:  a.Engine,
		sales:   a.Sales,
		volumes: a.Volumes,
		feed:    events.NewFeedHandler(a.Hub, a.Events, nil, logger.Named("feed")),
		hub:     a.Hub,
		rpc:     a.RPC,
		store:   cfg.Store,
		started: time.Now(),
		logger:  logger.Named("api"),
	}
	srv := &http.Server{
		Addr:              *addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()

		shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("starting HTTP server", zap.String("addr", *addr), zap.String("store", cfg.Store))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("HTTP server error", zap.Error(err))
	}

	logger.Info("shutdown complete")
}
