package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streetwatch/internal/cache"
	"streetwatch/internal/config"
	"streetwatch/internal/fetch"
	"streetwatch/internal/nextbus"
	"streetwatch/internal/realtime"
	"streetwatch/internal/refresh"
	"streetwatch/internal/server"
	"streetwatch/internal/storage"
)

func main() {
	cfg := config.Load()

	// CLI flags
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite snapshot cache path (empty = in-memory)")
	flag.StringVar(&cfg.RoutesFile, "routes", cfg.RoutesFile, "YAML route table (default: Toronto streetcars)")
	flag.Parse()

	logger := cfg.NewLogger(os.Stderr)

	routes, err := config.LoadRoutes(cfg.RoutesFile)
	if err != nil {
		logger.Error("failed to load route table", "error", err)
		os.Exit(1)
	}

	// Context with cancellation for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Snapshot cache: SQLite when a path is set, memory otherwise
	var (
		backend cache.Backend = cache.NewMemory()
		db      *storage.DB
	)
	if cfg.DBPath != "" {
		db, err = storage.Open(cfg.DBPath, logger)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		backend = db
		logCachedState(ctx, db, logger)
	} else {
		logger.Warn("no database path set, cached snapshots will not survive restart")
	}
	snapshots := cache.New(backend, logger)

	client := nextbus.NewClient(cfg.FeedURL, cfg.Agency, cfg.RequestTimeout, logger)
	orch := fetch.New(client, snapshots, cfg.FetchTimeout, logger)

	// Optional GTFS-RT advisories
	var (
		advisories refresh.Advisories
		rtStore    *realtime.Store
	)
	if cfg.AlertsURL != "" {
		rtStore = realtime.NewStore()
		alertsFetcher := realtime.NewFetcher(cfg.AlertsURL, rtStore, cfg.RequestTimeout, logger)
		go alertsFetcher.Start(ctx)
		advisories = rtStore
	}

	cycle := refresh.NewCycle(orch, routes, advisories, cfg.Predictions, logger)
	store := refresh.NewStore()

	var onResult func(*refresh.Result)
	if db != nil {
		onResult = func(res *refresh.Result) {
			key := "last_refresh"
			if res.TotalOutage {
				key = "last_outage"
			}
			if err := db.SetMetadata(ctx, key, res.CompletedAt.UTC().Format(time.RFC3339)); err != nil {
				logger.Error("recording refresh time", "error", err)
			}
		}
	}

	poller := refresh.NewPoller(cycle, routes.Tags(), store, cfg.RefreshInterval, onResult, logger)
	go poller.Start(ctx)

	logger.Info("monitoring routes", "routes", routes.Tags(), "interval", cfg.RefreshInterval)

	srv := server.New(cfg.Port, store, cycle, rtStore, logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("shut down")
}

// logCachedState reports what a previous run left in the database.
func logCachedState(ctx context.Context, db *storage.DB, logger *slog.Logger) {
	vehicles, err := db.SnapshotCount(ctx, cache.KindVehicles)
	if err != nil {
		logger.Error("counting cached snapshots", "error", err)
		return
	}
	configs, err := db.SnapshotCount(ctx, cache.KindRouteConfig)
	if err != nil {
		logger.Error("counting cached snapshots", "error", err)
		return
	}
	lastRefresh, err := db.GetMetadata(ctx, "last_refresh")
	if err != nil {
		logger.Error("reading last refresh", "error", err)
	}
	lastOutage, err := db.GetMetadata(ctx, "last_outage")
	if err != nil {
		logger.Error("reading last outage", "error", err)
	}
	logger.Info("cached snapshots available",
		"vehicles", vehicles,
		"route_configs", configs,
		"last_refresh", lastRefresh,
		"last_outage", lastOutage,
	)
}
