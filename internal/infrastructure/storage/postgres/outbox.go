package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"factorydesk/internal/core/id"
	"factorydesk/internal/domain/registers/production_summary"
	"factorydesk/pkg/logger"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// DefaultOutboxMaxAttempts is how many times a message is handled before
// it is parked as failed.
const DefaultOutboxMaxAttempts = 5

// OutboxMessage represents a message in the transactional outbox.
type OutboxMessage struct {
	ID            id.ID        `db:"id"`
	AggregateType string       `db:"aggregate_type"`
	AggregateID   id.ID        `db:"aggregate_id"`
	EventType     string       `db:"event_type"`
	Payload       []byte       `db:"payload"`
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	NextRetryAt   *time.Time   `db:"next_retry_at"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

// DomainEvent represents an event to be published via outbox.
type DomainEvent struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

const insertOutboxSQL = `
	INSERT INTO sys_outbox (id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

// OutboxPublisher writes events to the outbox table. Inside a transaction
// the event commits or rolls back with the caller's writes.
type OutboxPublisher struct {
	txManager *TxManager
}

// NewOutboxPublisher creates a new outbox publisher.
func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txManager: txManager}
}

// Publish writes one event to the outbox.
func (p *OutboxPublisher) Publish(ctx context.Context, event DomainEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = p.txManager.GetQuerier(ctx).Exec(ctx, insertOutboxSQL,
		id.New(), event.AggregateType, event.AggregateID, event.EventType, payload,
		OutboxStatusPending, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// EnqueueRefresh schedules an asynchronous recompute of one summary row.
func (p *OutboxPublisher) EnqueueRefresh(ctx context.Context, key production_summary.Key) error {
	return p.Publish(ctx, DomainEvent{
		AggregateType: production_summary.AggregateType,
		AggregateID:   key.ProductID,
		EventType:     production_summary.EventRefreshRequested,
		Payload:       production_summary.RefreshRequestedFor(key),
	})
}

// OutboxHandler processes outbox messages.
type OutboxHandler interface {
	// Handle processes a message and returns error if failed
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// OutboxHandlers dispatches messages to a handler per event type.
type OutboxHandlers map[string]func(ctx context.Context, payload []byte) error

// Handle implements OutboxHandler.
func (h OutboxHandlers) Handle(ctx context.Context, msg *OutboxMessage) error {
	fn, ok := h[msg.EventType]
	if !ok {
		return fmt.Errorf("no handler for event type %q", msg.EventType)
	}
	return fn(ctx, msg.Payload)
}

// OutboxCommitHooks run after a batch commits, for each message of the
// event type whose handler succeeded. They see committed data, unlike the
// handler itself.
type OutboxCommitHooks map[string]func(ctx context.Context, payload []byte)

// Run calls the hook of every message that has one.
func (h OutboxCommitHooks) Run(ctx context.Context, messages []*OutboxMessage) {
	for _, msg := range messages {
		if fn, ok := h[msg.EventType]; ok {
			fn(ctx, msg.Payload)
		}
	}
}

// OutboxRelay reads and processes messages from the outbox.
// Used by the background worker.
type OutboxRelay struct {
	txManager   *TxManager
	batchSize   int
	maxAttempts int
	handler     OutboxHandler
	hooks       OutboxCommitHooks
}

// NewOutboxRelay creates a new outbox relay.
func NewOutboxRelay(txManager *TxManager, batchSize int, handler OutboxHandler) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{
		txManager:   txManager,
		batchSize:   batchSize,
		maxAttempts: DefaultOutboxMaxAttempts,
		handler:     handler,
	}
}

// WithCommitHooks sets the hooks run after each committed batch.
func (r *OutboxRelay) WithCommitHooks(hooks OutboxCommitHooks) *OutboxRelay {
	r.hooks = hooks
	return r
}

// ProcessBatch fetches and processes due messages in one transaction.
// Rows stay locked until commit so concurrent workers skip them. Each
// message runs under its own savepoint: a failing handler rolls back only
// its own writes and the retry bookkeeping still commits.
// Returns number of successfully handled messages.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	var handled []*OutboxMessage
	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		handled = handled[:0]
		q := r.txManager.GetQuerier(ctx)

		var messages []*OutboxMessage
		err := pgxscan.Select(ctx, q, &messages, `
			SELECT id, aggregate_type, aggregate_id, event_type, payload, status,
			       retry_count, last_error, next_retry_at, created_at, published_at
			FROM sys_outbox
			WHERE status = $1
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`, OutboxStatusPending, r.batchSize)
		if err != nil {
			return fmt.Errorf("fetch outbox messages: %w", err)
		}

		for _, msg := range messages {
			handleErr := r.txManager.RunInSavepoint(ctx, func(ctx context.Context) error {
				return r.handler.Handle(ctx, msg)
			})
			if handleErr != nil {
				logger.Warn(ctx, "outbox message failed",
					"message_id", msg.ID, "event_type", msg.EventType,
					"attempt", msg.RetryCount+1, "error", handleErr)
				if err := r.markFailed(ctx, q, msg, handleErr); err != nil {
					return err
				}
				continue
			}
			if err := r.markPublished(ctx, q, msg); err != nil {
				return err
			}
			handled = append(handled, msg)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.hooks.Run(ctx, handled)
	return len(handled), nil
}

func (r *OutboxRelay) markPublished(ctx context.Context, q Querier, msg *OutboxMessage) error {
	_, err := q.Exec(ctx, `
		UPDATE sys_outbox
		SET status = $1, published_at = $2
		WHERE id = $3
	`, OutboxStatusPublished, time.Now().UTC(), msg.ID)
	if err != nil {
		return fmt.Errorf("mark outbox message published: %w", err)
	}
	return nil
}

func (r *OutboxRelay) markFailed(ctx context.Context, q Querier, msg *OutboxMessage, cause error) error {
	status, nextRetry := nextAttempt(msg.RetryCount, r.maxAttempts, time.Now().UTC())
	_, err := q.Exec(ctx, `
		UPDATE sys_outbox
		SET retry_count = retry_count + 1,
		    last_error = $1,
		    next_retry_at = $2,
		    status = $3
		WHERE id = $4
	`, cause.Error(), nextRetry, status, msg.ID)
	if err != nil {
		return fmt.Errorf("update failed message: %w", err)
	}
	return nil
}

// nextAttempt returns the status and retry time after a failed attempt.
// Backoff grows by one minute per attempt.
func nextAttempt(retryCount, maxAttempts int, now time.Time) (OutboxStatus, time.Time) {
	if retryCount+1 >= maxAttempts {
		return OutboxStatusFailed, now
	}
	return OutboxStatusPending, now.Add(time.Duration(retryCount+1) * time.Minute)
}

// MoveToDLQ moves failed messages to dead letter queue.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		WITH moved AS (
			DELETE FROM sys_outbox
			WHERE status = $1
			RETURNING id, aggregate_type, aggregate_id, event_type, payload,
			          retry_count, last_error, created_at
		)
		INSERT INTO sys_outbox_dlq (id, aggregate_type, aggregate_id, event_type, payload,
		                            retry_count, last_error, created_at, failed_at)
		SELECT id, aggregate_type, aggregate_id, event_type, payload,
		       retry_count, last_error, created_at, NOW()
		FROM moved
	`, OutboxStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("move to DLQ: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeletePublished removes published messages older than retention.
func (r *OutboxRelay) DeletePublished(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM sys_outbox
		WHERE status = $1 AND published_at < $2
	`, OutboxStatusPublished, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("delete published outbox messages: %w", err)
	}
	return tag.RowsAffected(), nil
}
