package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frequent-batch-auction/internal/book"
	"github.com/frequent-batch-auction/internal/config"
	"github.com/frequent-batch-auction/internal/server"
	"github.com/frequent-batch-auction/pkg/observability"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize observability (logger, metrics, tracing, health)
	obs, err := observability.NewProvider(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize observability: %v", err)
	}

	obs.Logger.Info(ctx, "Starting frequent batch auction engine", map[string]interface{}{
		"listen_addr":     cfg.Server.ListenAddr,
		"interval_millis": cfg.Engine.IntervalMillis,
		"ops_port":        cfg.Ops.Port,
	})

	// Order book and server
	bk := book.New()
	srv := server.New(obs, cfg, bk)

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Health checks need a running server to probe
	obs.Health.RegisterCheck("listener", observability.ListenerHealthCheck(srv.Accepting))
	obs.Health.RegisterCheck("book", observability.BookHealthCheck(bk.Depth, bk.RestingQty))
	obs.Health.RegisterCheck("batch_loop", observability.BatchFreshnessCheck(
		srv.LastBatchTime, 10*cfg.Engine.Interval()))

	obs.Start(ctx)

	obs.Logger.Info(ctx, "Engine ready and accepting orders", map[string]interface{}{
		"addr": srv.Addr().String(),
	})

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	obs.Logger.Info(ctx, "Shutdown signal received", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		obs.Logger.Error(shutdownCtx, "Failed to stop server", err)
	}
	if err := obs.Stop(shutdownCtx); err != nil {
		obs.Logger.Error(shutdownCtx, "Failed to stop observability provider", err)
	}

	obs.Logger.Info(ctx, "Engine stopped", map[string]interface{}{
		"batches_run": srv.Stats().BatchesRun,
		"trades":      srv.Stats().Trades,
	})
}
