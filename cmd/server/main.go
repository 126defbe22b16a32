// Command server starts the order API: intake, retrieval and the catalog
// admin surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/orderflow/internal/adapter/httpserver"
	"github.com/fairyhunter13/orderflow/internal/adapter/observability"
	"github.com/fairyhunter13/orderflow/internal/adapter/orderjob"
	"github.com/fairyhunter13/orderflow/internal/adapter/queue/redisq"
	"github.com/fairyhunter13/orderflow/internal/adapter/repo/memory"
	"github.com/fairyhunter13/orderflow/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/orderflow/internal/app"
	"github.com/fairyhunter13/orderflow/internal/config"
	"github.com/fairyhunter13/orderflow/internal/domain"
	"github.com/fairyhunter13/orderflow/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	// An empty signing key would verify attacker-minted tokens; Validate
	// rejects that in prod, dev gets a loud warning.
	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET empty, tokens signed with an empty key are accepted")
	}

	// Stores: Postgres when configured, in-memory twins otherwise (dev).
	var (
		products domain.ProductRepository
		stocks   domain.StockRepository
		orders   domain.OrderRepository
		pool     *pgxpool.Pool
	)
	if cfg.DBURL != "" {
		pool, err = connectPostgres(ctx, cfg.DBURL)
		if err != nil {
			slog.Error("db connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			slog.Error("db migrate failed", slog.Any("error", err))
			os.Exit(1)
		}
		products = postgres.NewProductRepo(pool)
		stocks = postgres.NewStockRepo(pool)
		orders = postgres.NewOrderRepo(pool)
	} else {
		slog.Warn("DB_URL empty, using in-memory stores")
		products = memory.NewProductStore()
		stocks = memory.NewStockStore()
		orders = memory.NewOrderStore()
	}

	rdb, err := connectRedis(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	queue := redisq.New(rdb, redisq.Options{
		Name:          cfg.QueueName,
		MaxAttempts:   cfg.QueueMaxAttempts,
		BackoffBase:   cfg.QueueBackoffBase,
		KeepCompleted: cfg.QueueKeepCompleted,
		KeepFailed:    cfg.QueueKeepFailed,
		StallTimeout:  cfg.QueueStallTimeout,
		PollInterval:  cfg.QueuePollInterval,
	})

	srv := httpserver.NewServer(
		usecase.NewSubmitService(orders, stocks, orderjob.EnqueueAdapter{Q: queue}, cfg.VIPPriority, cfg.DefaultPriority),
		usecase.NewOrderQueryService(orders, products, stocks),
		usecase.NewCatalogService(products, stocks),
	)

	var pinger app.Pinger
	if pool != nil {
		pinger = pool
	}
	checks := []app.ReadyCheck{app.DBCheck(pinger), app.RedisCheck(rdb)}
	handler := app.BuildRouter(cfg, srv, checks)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}

func connectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	op := func() error {
		var err error
		pool, err = postgres.NewPool(ctx, dsn)
		if err != nil {
			return err
		}
		return pool.Ping(ctx)
	}
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return pool, nil
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	op := func() error { return rdb.Ping(ctx).Err() }
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
