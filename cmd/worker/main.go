// Package main is the entry point for the factorydesk background worker.
// It relays outbox events: summary refreshes that failed as order side
// effects are retried here.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"factorydesk/internal/app"
	"factorydesk/internal/config"
	appctx "factorydesk/internal/core/context"
	"factorydesk/internal/domain/registers/production_summary"
	"factorydesk/internal/infrastructure/metrics"
	"factorydesk/internal/infrastructure/storage/postgres"
	"factorydesk/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting factorydesk worker")

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to initialize", "error", err)
	}
	defer a.Close()

	relay := postgres.NewOutboxRelay(a.TxManager, cfg.WorkerBatchSize, postgres.OutboxHandlers{
		production_summary.EventRefreshRequested: a.Summaries.HandleRefreshRequested,
	}).WithCommitHooks(postgres.OutboxCommitHooks{
		production_summary.EventRefreshRequested: a.Summaries.HandleRefreshCommitted,
	})
	worker := NewWorker(relay, a.Idem, a.Pool, a.Metrics, cfg, log)

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           a.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("metrics server failed", "error", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()
	wg.Wait()

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer stop()
	_ = metricsServer.Shutdown(shutdownCtx)

	log.Info("worker stopped")
}

// Worker polls the outbox and runs periodic cleanup.
type Worker struct {
	relay   *postgres.OutboxRelay
	idem    *postgres.IdempotencyStore
	pool    *postgres.Pool
	metrics *metrics.Metrics
	cfg     *config.Config
	log     *logger.Logger
}

func NewWorker(relay *postgres.OutboxRelay, idem *postgres.IdempotencyStore, pool *postgres.Pool, m *metrics.Metrics, cfg *config.Config, log *logger.Logger) *Worker {
	return &Worker{
		relay:   relay,
		idem:    idem,
		pool:    pool,
		metrics: m,
		cfg:     cfg,
		log:     log.WithComponent("worker"),
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.WorkerPollInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(w.cfg.WorkerCleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOutbox(ctx)
		case <-cleanupTicker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *Worker) processOutbox(ctx context.Context) {
	// Drain while full batches keep coming.
	for ctx.Err() == nil {
		batchCtx := appctx.WithTrace(ctx, appctx.NewTraceContext())
		n, err := w.relay.ProcessBatch(batchCtx)
		if err != nil {
			w.log.Errorw("outbox batch failed", "request_id", appctx.GetRequestID(batchCtx), "error", err)
			w.metrics.ObserveOutbox("error", 1)
			return
		}
		w.metrics.ObserveOutbox("published", n)
		if n > 0 {
			w.log.Debugw("processed outbox batch", "count", n)
		}
		if n < w.cfg.WorkerBatchSize {
			return
		}
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	moved, err := w.relay.MoveToDLQ(ctx)
	if err != nil {
		w.log.Errorw("move outbox messages to dead letter table", "error", err)
	} else if moved > 0 {
		w.log.Warnw("outbox messages moved to dead letter table", "count", moved)
		w.metrics.ObserveOutbox("dead_lettered", int(moved))
	}

	deleted, err := w.relay.DeletePublished(ctx, w.cfg.OutboxRetention)
	if err != nil {
		w.log.Errorw("delete published outbox messages", "error", err)
	} else if deleted > 0 {
		w.log.Infow("deleted published outbox messages", "count", deleted)
	}

	expired, err := w.idem.CleanupExpired(ctx)
	if err != nil {
		w.log.Errorw("delete expired idempotency keys", "error", err)
	} else if expired > 0 {
		w.log.Infow("deleted expired idempotency keys", "count", expired)
	}

	w.pool.LogStats(ctx)
}
