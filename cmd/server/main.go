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

	"modalku/backend/internal/cache"
	"modalku/backend/internal/config"
	"modalku/backend/internal/httpapi"
	"modalku/backend/internal/ledger"
	"modalku/backend/internal/logging"
	"modalku/backend/internal/money"
	"modalku/backend/internal/service"
	"modalku/backend/internal/store"
	"modalku/backend/internal/store/memory"
	pgstore "modalku/backend/internal/store/postgres"
	"modalku/backend/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, closers, err := openRepository(startCtx, cfg, logger)
	if err != nil {
		logger.Fatal("open repository", zap.Error(err))
	}
	idem, idemClosers := openIdempotencyCache(startCtx, cfg, logger)
	closers = append(closers, idemClosers...)

	engine := ledger.NewEngine(repo,
		ledger.WithLogger(logger.Named("ledger")),
		ledger.WithTimeout(cfg.LedgerTimeout()),
	)
	svc := service.New(repo, engine, cfg.StoreID, money.NewFormatter(cfg.CurrencyLocale), logger.Named("service"))
	auth := httpapi.NewAuthManager(startCtx, cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo, logger.Named("auth"))
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin:  cfg.AllowedOrigin,
		Idempotency:    idem,
		IdempotencyTTL: cfg.IdempotencyTTL(),
		Logger:         logger.Named("http"),
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.LedgerTimeout() + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("ledger backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

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

// openRepository picks Postgres when DATABASE_URL is set, SQLite when
// SQLITE_PATH is set and the seeded memory store otherwise. A configured
// database that cannot be reached is fatal; there is no silent fallback.
func openRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Repository, []func() error, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unavailable: %w", err)
		}
		if err := pg.Migrate(ctx, logger.Named("migrate")); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
		logger.Info("repository: postgres")
		return pg, []func() error{pg.Close}, nil
	case cfg.SQLitePath != "":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite unavailable: %w", err)
		}
		logger.Info("repository: sqlite", zap.String("path", cfg.SQLitePath))
		return db, []func() error{db.Close}, nil
	default:
		logger.Warn("repository: in-memory, ledger is lost on restart")
		return memory.NewSeeded(), nil, nil
	}
}

// openIdempotencyCache falls back to the noop cache when Redis is not
// configured or not reachable at startup.
func openIdempotencyCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (cache.IdempotencyCache, []func() error) {
	if cfg.RedisAddr == "" {
		logger.Info("idempotency cache: noop")
		return cache.NoopIdempotencyCache{}, nil
	}
	redisCache := cache.NewRedisIdempotencyCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, using noop idempotency cache", zap.Error(err))
		_ = redisCache.Close()
		return cache.NoopIdempotencyCache{}, nil
	}
	logger.Info("idempotency cache: redis", zap.String("addr", cfg.RedisAddr))
	return redisCache, []func() error{redisCache.Close}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.LedgerTimeout() <= 0 {
		return fmt.Errorf("LEDGER_TIMEOUT_SECONDS must be positive")
	}
	return nil
}
