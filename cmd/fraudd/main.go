package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/davidleathers/risk-engine/internal/infrastructure/cache"
	"github.com/davidleathers/risk-engine/internal/infrastructure/config"
	"github.com/davidleathers/risk-engine/internal/infrastructure/database"
	"github.com/davidleathers/risk-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/risk-engine/internal/metrics"
	"github.com/davidleathers/risk-engine/internal/service/fraud"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("fraudd failed", zap.Error(err))
	}
}

// backends holds whatever infrastructure the configured stores need
type backends struct {
	stores   fraud.Stores
	recorder fraud.VerdictRecorder
	checks   map[string]func(context.Context) error
	closers  []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting fraudd",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("blacklist", cfg.Storage.Blacklist))

	telCfg := cfg.Telemetry
	telCfg.ServiceVersion = cfg.Version
	telCfg.Environment = cfg.Environment
	provider, err := telemetry.InitializeOpenTelemetry(ctx, telCfg)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", zap.Error(err))
		}
	}()

	registry, err := metrics.NewRegistry("risk-engine/fraud")
	if err != nil {
		return fmt.Errorf("create metrics registry: %w", err)
	}

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.close()

	opts := []fraud.Option{fraud.WithMetrics(registry)}
	if b.recorder != nil {
		opts = append(opts, fraud.WithVerdictRecorder(b.recorder))
	}
	svc, err := fraud.NewService(logger, cfg.Fraud, b.stores, opts...)
	if err != nil {
		return fmt.Errorf("create fraud service: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := svc.Close(closeCtx); err != nil {
			logger.Warn("pending verdict records abandoned", zap.Error(err))
		}
	}()

	if err := fraud.SeedBlacklist(ctx, svc, cfg.Fraud.BlacklistSeed); err != nil {
		return err
	}
	if n := len(cfg.Fraud.BlacklistSeed); n > 0 {
		logger.Info("blacklist seeded", zap.Int("addresses", n))
	}

	collector := newStatsCollector(svc, logger)
	go collector.run(ctx, cfg.Server.StatsInterval)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthHandler(b.checks))

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func openBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backends, error) {
	mem := fraud.NewMemoryStores()
	b := &backends{stores: mem, checks: map[string]func(context.Context) error{}}

	if cfg.NeedsRedis() {
		m, err := cache.NewManager(&cfg.Redis, cfg.Fraud.ProfileRetention, logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { m.Close() })
		b.checks["redis"] = m.Health

		if cfg.Storage.Backend == config.BackendRedis {
			b.stores.Profiles = m.Profiles
			b.stores.Devices = m.Devices
		}
		if cfg.Storage.Blacklist == config.BackendRedis {
			b.stores.Blacklist = m.Blacklist
		}
	}

	if cfg.NeedsPostgres() {
		if cfg.Database.MigrateOnStart {
			if err := database.Migrate(cfg.Database.URL); err != nil {
				b.close()
				return nil, err
			}
			logger.Info("database migrations applied")
		}

		pool, err := database.NewConnectionPool(ctx, &cfg.Database, logger.Named("database"))
		if err != nil {
			b.close()
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		b.checks["postgres"] = pool.Health

		if cfg.Storage.Blacklist == config.BackendPostgres {
			b.stores.Blacklist = database.NewBlacklistRepository(pool.Pool())
		}
		if cfg.Storage.AuditEnabled {
			b.recorder = database.NewVerdictRepository(pool.Pool())
		}
	}

	return b, nil
}

func healthHandler(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				http.Error(w, name+": "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
