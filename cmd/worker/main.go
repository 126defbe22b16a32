// Command worker processes queued orders: it reserves stock, runs the
// payment step and settles each order, with the dead-letter observer as a
// backstop for exhausted jobs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/orderflow/internal/adapter/events/redpanda"
	"github.com/fairyhunter13/orderflow/internal/adapter/observability"
	"github.com/fairyhunter13/orderflow/internal/adapter/orderjob"
	"github.com/fairyhunter13/orderflow/internal/adapter/payment"
	"github.com/fairyhunter13/orderflow/internal/adapter/queue/redisq"
	"github.com/fairyhunter13/orderflow/internal/adapter/repo/memory"
	"github.com/fairyhunter13/orderflow/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/orderflow/internal/config"
	"github.com/fairyhunter13/orderflow/internal/domain"
	"github.com/fairyhunter13/orderflow/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

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

	var (
		stocks domain.StockRepository
		orders domain.OrderRepository
		pool   *pgxpool.Pool
	)
	if cfg.DBURL != "" {
		pool, err = connectPostgres(ctx, cfg.DBURL)
		if err != nil {
			slog.Error("db connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		// Idempotent; keeps the worker startable before the API server on a
		// fresh database.
		if err := postgres.Migrate(ctx, pool); err != nil {
			slog.Error("db migrate failed", slog.Any("error", err))
			os.Exit(1)
		}
		stocks = postgres.NewStockRepo(pool)
		orders = postgres.NewOrderRepo(pool)
	} else {
		if cfg.IsProd() {
			slog.Error("DB_URL is required outside dev mode")
			os.Exit(1)
		}
		// Dev-only: the worker's memory stores are separate from the API's;
		// for a full local loop run against Postgres instead.
		slog.Warn("DB_URL empty, using in-memory stores")
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

	var events domain.EventPublisher = redpanda.Nop{}
	if cfg.EventsEnabled() {
		publisher, pubErr := redpanda.NewPublisher(cfg.KafkaBrokers)
		if pubErr != nil {
			slog.Error("event publisher connect failed", slog.Any("error", pubErr))
			os.Exit(1)
		}
		defer publisher.Close()
		events = publisher
	}

	var gateway domain.PaymentGateway = payment.NewNoop()
	if cfg.IsDev() && cfg.PaymentFailureProbability > 0 {
		slog.Warn("flaky payment gateway enabled",
			slog.Float64("probability", cfg.PaymentFailureProbability))
		gateway = payment.NewFlaky(cfg.PaymentFailureProbability)
	}

	processor := usecase.NewProcessService(orders, stocks, gateway, cfg.PaymentTimeout)
	handler := orderjob.NewHandler(queue, processor, events)
	queue.Subscribe(orderjob.NewDLQObserver(orders, events))

	worker := redisq.NewWorker(queue, handler, cfg.Concurrency(), cfg.WorkerShutdownGrace)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.String("queue", cfg.QueueName),
		slog.Int("concurrency", cfg.Concurrency()))
	if err := worker.Run(runCtx); err != nil {
		slog.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
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
