package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"MiniCatalog/internal/catalog"
	"MiniCatalog/internal/config"
	"MiniCatalog/pkg/kit"
)

const service = "catalog"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := kit.NewLogger(service, "info")
		boot.Fatal("load config", zap.Error(err))
	}

	log := kit.NewLogger(service, cfg.Log.Level)
	defer func() { _ = log.Sync() }()

	log.Info("config loaded", zap.Stringer("config", cfg))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("catalog stopped", zap.Error(err))
		stop()
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	instrumented := catalog.NewInstrumentedStore(store, reg)

	if cfg.Seed.Enabled {
		if err := catalog.Seed(ctx, instrumented, log, catalog.DefaultSeed()); err != nil {
			return err
		}
	}

	h := catalog.NewHandler(&catalog.Server{Store: instrumented, Log: log}, catalog.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsToken:   cfg.Metrics.Token,
		RateLimit:      cfg.RateLimit.Limit,
		RateWindow:     cfg.RateLimit.Window,
	})

	return kit.RunHTTPServer(ctx, kit.ServerOptions{
		Addr:              cfg.Addr(),
		ReadTimeout:       cfg.Server.Timeout.Read,
		WriteTimeout:      cfg.Server.Timeout.Write,
		IdleTimeout:       cfg.Server.Timeout.Idle,
		ReadHeaderTimeout: cfg.Server.Timeout.ReadHeader,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
	}, h, log)
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (catalog.Store, func(), error) {
	noop := func() {}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return catalog.NewMemStore(log), noop, nil

	case config.DriverPostgres:
		db, err := catalog.OpenPostgres(ctx, cfg.Database.URL)
		if err != nil {
			return nil, noop, err
		}
		s := catalog.NewPostgresStore(db, log)
		if err := s.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, noop, fmt.Errorf("ensure schema: %w", err)
		}
		return s, func() { _ = db.Close() }, nil

	default:
		s, err := catalog.NewFileStore(cfg.Storage.Path, log)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	}
}
