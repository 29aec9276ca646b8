// Context router server: authorizes, deduplicates, loop-classifies, and
// fans out agent events over signed HTTP callbacks.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentmesh/contextrouter/pkg/api"
	"github.com/agentmesh/contextrouter/pkg/audit"
	"github.com/agentmesh/contextrouter/pkg/config"
	"github.com/agentmesh/contextrouter/pkg/delivery"
	"github.com/agentmesh/contextrouter/pkg/ingest"
	"github.com/agentmesh/contextrouter/pkg/loopguard"
	"github.com/agentmesh/contextrouter/pkg/store"
	"github.com/agentmesh/contextrouter/pkg/version"
	"github.com/agentmesh/contextrouter/pkg/whitelist"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env if present; real environment always wins.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}

	cfg := config.Load()

	slog.Info("Starting context router",
		"version", version.Full(),
		"port", cfg.Port,
		"sqlite_path", cfg.SQLitePath)

	// 1. Audit sink (persistent)
	sink, err := audit.Open(cfg.SQLitePath)
	if err != nil {
		slog.Error("Failed to open audit sink", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Error("Error closing audit sink", "error", err)
		}
	}()
	slog.Info("Audit sink ready", "path", cfg.SQLitePath)

	// 2. In-memory state
	sessionStore := store.NewSessionStore()
	agents := whitelist.NewStore()

	// 3. Loop guard
	guard := loopguard.New(sessionStore, loopguard.Config{
		MaxPerMinute:   cfg.LoopMaxPerMinute,
		DefaultDelayMs: cfg.LoopDelayDefaultMs,
		BurstDelayMs:   cfg.LoopDelayBurstMs,
	})

	// 4. Delivery engine
	engine := delivery.NewEngine(delivery.Config{
		MaxRetries:     cfg.DeliveryMaxRetries,
		BaseDelay:      cfg.DeliveryBaseDelay,
		AttemptTimeout: cfg.DeliveryAttemptTimeout,
	}, sink)

	// 5. Ingest pipeline
	pipeline := ingest.New(sessionStore, agents, guard, engine, sink)

	// 6. HTTP server
	httpServer := api.NewServer(cfg, pipeline, agents, sessionStore, sink)

	if cfg.AdminPassword == "" {
		slog.Warn("ADMIN_PASSWORD not set; admin surface is disabled")
	}

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Graceful shutdown. Pending delivery retries and delayed appends are
	// abandoned; they are not persisted across restarts.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
