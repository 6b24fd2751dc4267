package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"kedaipos/backend/internal/config"
	"kedaipos/backend/internal/counter"
	"kedaipos/backend/internal/httpapi"
	"kedaipos/backend/internal/logging"
	"kedaipos/backend/internal/metrics"
	"kedaipos/backend/internal/service"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/store/memory"
	"kedaipos/backend/internal/store/mongodb"
	pgstore "kedaipos/backend/internal/store/postgres"
)

const sessionReapInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}
	loc, _ := cfg.Location()
	taxRate, _ := cfg.TaxRate()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, closers, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("repository unavailable", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	logger.Info("repository ready", zap.String("driver", cfg.StoreDriver))

	var receipts counter.Counter = counter.NewMemoryCounter()
	if cfg.RedisAddr != "" {
		redisCounter := counter.NewRedisCounter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCounter.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, receipt sequence is per process", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			_ = redisCounter.Close()
		} else {
			receipts = redisCounter
			closers = append(closers, redisCounter.Close)
			logger.Info("receipt counter: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		logger.Info("receipt counter: memory")
	}

	m := metrics.New()
	svc := service.New(repo, service.Options{
		Counter:        receipts,
		Logger:         logger,
		Metrics:        m,
		Location:       loc,
		DefaultTaxRate: &taxRate,
		TopProducts:    cfg.TopProductsLimit,
		SessionIdle:    cfg.SessionIdle(),
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(svc, auth, m, logger, cfg.AllowedOrigin)

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go svc.RunSessionReaper(reaperCtx, sessionReapInterval)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("POS backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	stopReaper()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

// openRepository connects the configured backend. A configured database
// that cannot be reached is fatal; there is no silent in-memory fallback.
func openRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Repository, []func() error, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return pg, []func() error{pg.Close}, nil
	case config.DriverMongo:
		mg, err := mongodb.New(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := mg.EnsureIndexes(ctx); err != nil {
			_ = mg.Close()
			return nil, nil, fmt.Errorf("ensure indexes: %w", err)
		}
		return mg, []func() error{mg.Close}, nil
	default:
		return memory.NewSeeded(logger), nil, nil
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case config.DriverMongo:
		if cfg.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for the mongo driver")
		}
	}
	return nil
}
