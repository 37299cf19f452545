// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Lead ingestion service.
//
// Entry point for the email-to-lead pipeline. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL, and to Redis when configured
//  3. Polls the IMAP mailbox on an interval
//  4. Extracts, validates, and matches leads from new mail
//  5. Persists leads and publishes lead events
//  6. Serves health and dry-run extraction endpoints
//  7. Handles graceful shutdown on SIGTERM/SIGINT
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sbscrm/leadingest/internal/api"
	"github.com/sbscrm/leadingest/internal/catalog"
	"github.com/sbscrm/leadingest/internal/config"
	"github.com/sbscrm/leadingest/internal/dedup"
	"github.com/sbscrm/leadingest/internal/extract"
	"github.com/sbscrm/leadingest/internal/leadstore"
	"github.com/sbscrm/leadingest/internal/mailbox"
	"github.com/sbscrm/leadingest/internal/pipeline"
	"github.com/sbscrm/leadingest/internal/queue"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting lead ingestion service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"mailbox", cfg.Mailbox.Username,
		"fetch_mode", cfg.Mailbox.FetchMode,
		"match_mode", cfg.MatchMode,
		"poll_interval", cfg.PollInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// --- Stores ---
	catalogStore := catalog.NewStore(pgPool)

	leads, err := leadstore.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise lead store", "error", err)
		os.Exit(1)
	}

	// --- Redis (optional: dedup filter + lead event queue) ---
	var (
		filter    *dedup.Filter
		publisher *queue.Publisher
		rdb       *redis.Client
	)
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)

		publisher = queue.NewPublisher(rdb, cfg.LeadsQueue)
		if err := publisher.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		filter = dedup.NewFilter(rdb)
		slog.Info("connected to Redis", "queue", cfg.LeadsQueue)
	} else {
		slog.Warn("Redis not configured: running without dedup filter and event queue")
	}

	// --- Extraction Client ---
	extractor := extract.NewClient(cfg.Extraction)

	// --- Matching Strategy ---
	var (
		matcher  catalog.Matcher
		snapshot pipeline.Snapshotter
	)
	switch cfg.MatchMode {
	case "ai":
		matcher = catalog.NewTrustedMatcher()
		snapshot = catalogStore
	default:
		matcher = catalog.NewLocalMatcher(catalogStore)
	}

	// --- Mailbox ---
	mbx := mailbox.NewConn(func() (*mailbox.Client, error) {
		return mailbox.Connect(cfg.Mailbox)
	})
	defer mbx.Close()

	// --- Pipeline ---
	// Interface conversions: nil collaborators must stay nil interfaces.
	var dedupFilter pipeline.Deduper
	if filter != nil {
		dedupFilter = filter
	}
	var events pipeline.Publisher
	if publisher != nil {
		events = publisher
	}

	proc := pipeline.NewProcessor(*cfg, mbx, extractor, matcher, snapshot, leads, dedupFilter, events)
	poller := pipeline.NewPoller(proc, cfg.PollInterval)
	go poller.Run(ctx)

	// --- HTTP Server (health + dry-run extraction) ---
	var redisPinger api.Pinger
	if publisher != nil {
		redisPinger = publisher
	}
	handler := api.NewHandler(extractor, matcher, snapshot, leads, cfg.Extraction.MinConfidence, pgPool, redisPinger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.Mux(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // stop the poller

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		if rdb != nil {
			rdb.Close()
		}
		mbx.Close()
		pgPool.Close()
	}()

	slog.Info("lead ingestion service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("lead ingestion service stopped")
}
