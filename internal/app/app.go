// Package app wires the storage, cache and domain services shared by the
// server and the worker.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"factorydesk/internal/config"
	"factorydesk/internal/domain/catalogs/production_group"
	"factorydesk/internal/domain/documents/sales_order"
	"factorydesk/internal/domain/registers/production_summary"
	"factorydesk/internal/infrastructure/cache"
	"factorydesk/internal/infrastructure/metrics"
	"factorydesk/internal/infrastructure/storage/postgres"
	"factorydesk/internal/infrastructure/storage/postgres/catalog_repo"
	"factorydesk/internal/infrastructure/storage/postgres/document_repo"
	"factorydesk/internal/infrastructure/storage/postgres/register_repo"
	"factorydesk/pkg/logger"
	"factorydesk/pkg/numerator"
)

// App holds process-wide dependencies.
type App struct {
	Config    *config.Config
	Log       *logger.Logger
	Pool      *postgres.Pool
	Redis     *redis.Client
	TxManager *postgres.TxManager
	Metrics   *metrics.Metrics
	Cache     *cache.DayCache
	Outbox    *postgres.OutboxPublisher
	Audit     *postgres.AuditStore
	Idem      *postgres.IdempotencyStore

	Summaries *production_summary.Service
	Groups    *production_group.Service
	Orders    *sales_order.Service
}

// New connects to PostgreSQL and Redis and builds the services. An
// unreachable Redis is logged and tolerated; the cache then misses.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.PGDSN, cfg.PGMaxConns, cfg.PGMinConns))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	txOpts := postgres.DefaultTxOptions()
	txOpts.StatementTimeout = cfg.PGTxTimeout
	txOpts.Retries = cfg.PGTxRetries
	txManager := postgres.NewTxManagerWithOptions(pool, txOpts)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warnw("redis unavailable, day cache will miss", "addr", cfg.RedisAddr, "error", err)
	}
	dayCache := cache.NewDayCache(rdb, cfg.SummaryCacheTTL)

	auditStore, err := postgres.NewAuditStore(txManager)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("create audit store: %w", err)
	}

	m := metrics.New()
	outbox := postgres.NewOutboxPublisher(txManager)
	numbers := numerator.NewWithQuerier(func(ctx context.Context) numerator.Querier {
		return txManager.GetQuerier(ctx)
	})

	products := catalog_repo.NewProductRepo(txManager)
	groupRepo := catalog_repo.NewProductionGroupRepo(txManager)
	summaryRepo := register_repo.NewProductionSummaryRepo(txManager)
	orderRepo := document_repo.NewSalesOrderRepo(txManager)

	summaries := production_summary.NewService(production_summary.Deps{
		Repo:      summaryRepo,
		Orders:    orderRepo,
		Catalog:   products,
		Groups:    groupRepo,
		TxManager: txManager,
		Cache:     dayCache,
		Audit:     auditStore,
		Metrics:   m,
	}, production_summary.Config{
		Location:        cfg.Location(),
		BulkConcurrency: cfg.BulkApproveConcurrency,
	})

	groups := production_group.NewService(groupRepo, products, txManager, dayCache)
	orders := sales_order.NewService(orderRepo, products, txManager, numbers, summaries, outbox, auditStore)

	return &App{
		Config:    cfg,
		Log:       log,
		Pool:      pool,
		Redis:     rdb,
		TxManager: txManager,
		Metrics:   m,
		Cache:     dayCache,
		Outbox:    outbox,
		Audit:     auditStore,
		Idem:      postgres.NewIdempotencyStore(txManager, cfg.IdempotencyTTL),
		Summaries: summaries,
		Groups:    groups,
		Orders:    orders,
	}, nil
}

// Close releases connections.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Warnw("close redis", "error", err)
		}
	}
	a.Pool.Close()
}
