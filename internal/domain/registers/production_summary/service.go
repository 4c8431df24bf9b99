package production_summary

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"factorydesk/internal/core/apperror"
	appctx "factorydesk/internal/core/context"
	"factorydesk/internal/core/id"
	"factorydesk/internal/core/tx"
	"factorydesk/internal/core/types"
	"factorydesk/internal/domain/audit"
	"factorydesk/pkg/logger"
)

var tracer = otel.Tracer("factorydesk/production_summary")

const entityName = "daily_product_summary"

// Deps are the collaborators of Service. Cache, Audit and Metrics are
// optional.
type Deps struct {
	Repo      Repository
	Orders    OrderSource
	Catalog   ProductCatalog
	Groups    GroupSource
	TxManager tx.Manager
	Cache     DayCache
	Audit     audit.Recorder
	Metrics   Metrics
}

// Config tunes Service.
type Config struct {
	// Location is the company time zone that defines calendar days.
	Location *time.Location
	// BulkConcurrency bounds parallel approvals and recomputes.
	BulkConcurrency int
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Service runs the aggregation, derivation and approval operations. Every
// write locks the summary row inside a transaction.
type Service struct {
	repo      Repository
	orders    OrderSource
	catalog   ProductCatalog
	groups    GroupSource
	txManager tx.Manager
	cache     DayCache
	audit     audit.Recorder
	metrics   Metrics

	loc             *time.Location
	bulkConcurrency int
	now             func() time.Time
}

// NewService creates a summary service.
func NewService(deps Deps, cfg Config) *Service {
	s := &Service{
		repo:            deps.Repo,
		orders:          deps.Orders,
		catalog:         deps.Catalog,
		groups:          deps.Groups,
		txManager:       deps.TxManager,
		cache:           deps.Cache,
		audit:           deps.Audit,
		metrics:         deps.Metrics,
		loc:             cfg.Location,
		bulkConcurrency: cfg.BulkConcurrency,
		now:             cfg.Now,
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.bulkConcurrency < 1 {
		s.bulkConcurrency = 4
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// UpdateRequest is an update-summary call: inputs are applied first, then
// the status transition.
type UpdateRequest struct {
	Inputs InputsPatch
	Status *Status
}

// ItemFailure explains why one product of a batch operation failed.
type ItemFailure struct {
	ProductID id.ID  `json:"productId"`
	Code      string `json:"code"`
	Reason    string `json:"reason"`
}

// BulkResult reports a non-atomic batch operation.
type BulkResult struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Failures  []ItemFailure `json:"failures"`
}

// Location returns the time zone that defines calendar days.
func (s *Service) Location() *time.Location {
	return s.loc
}

// KeyFor builds the key an order at orderDate contributes to.
func (s *Service) KeyFor(companyID, productID id.ID, orderDate time.Time) Key {
	return Key{CompanyID: companyID, ProductID: productID, Date: types.DayOf(orderDate, s.loc)}
}

// UpdateProductSummary recomputes the sales aggregate of productID on the
// day of orderDate. A nil companyID skips the call.
func (s *Service) UpdateProductSummary(ctx context.Context, productID id.ID, orderDate time.Time, companyID id.ID) error {
	if id.IsNil(companyID) {
		logger.Warn(ctx, "summary aggregation skipped: no company", "product_id", productID, "order_date", orderDate)
		return nil
	}
	_, err := s.Recompute(ctx, s.KeyFor(companyID, productID, orderDate))
	return err
}

// Recompute rebuilds the sales breakdown and totals of one row from the
// order store, creating the row on first use. Inputs and status are kept;
// derived figures follow the new total.
func (s *Service) Recompute(ctx context.Context, key Key) (row *DailyProductSummary, err error) {
	ctx, span := tracer.Start(ctx, "production_summary.Recompute",
		trace.WithAttributes(attribute.String("summary.key", key.String())))
	defer span.End()
	defer s.observe("recompute", time.Now(), &err)

	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureTarget(ctx, key); err != nil {
		return nil, err
	}

	from, to := key.Date.Bounds(s.loc)
	err = s.runRow(ctx, key, func(ctx context.Context) error {
		if err := s.repo.Ensure(ctx, key); err != nil {
			return err
		}
		locked, err := s.repo.GetForUpdate(ctx, key)
		if err != nil {
			return err
		}
		// Read orders only after the lock so a slower refresh never writes
		// an older snapshot over a newer one.
		lines, err := s.orders.SalesLines(ctx, key.CompanyID, key.ProductID, from, to)
		if err != nil {
			return fmt.Errorf("read sales lines: %w", err)
		}

		locked.SetBreakdown(BuildBreakdown(lines))
		locked.Recalculate()
		if err := s.repo.Save(ctx, locked); err != nil {
			return err
		}
		row = locked
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.InvalidateDay(ctx, key.CompanyID, key.Date)
	logger.Debug(ctx, "summary recomputed",
		"key", key.String(),
		"total_quantity", row.TotalQuantity.String(),
		"total_orders", row.TotalOrders,
	)
	return row, nil
}

// ApplyProductionInputs stores the present inputs, derives the production
// figures and resets the row to pending.
func (s *Service) ApplyProductionInputs(ctx context.Context, key Key, inputs InputsPatch) (*DailyProductSummary, error) {
	if inputs.IsEmpty() {
		return nil, apperror.NewValidation("no production inputs given")
	}
	return s.update(ctx, "apply_inputs", key, UpdateRequest{Inputs: inputs})
}

// UpdateSummary applies inputs and a status transition to one row in a
// single transaction.
func (s *Service) UpdateSummary(ctx context.Context, key Key, req UpdateRequest) (*DailyProductSummary, error) {
	return s.update(ctx, "update", key, req)
}

// Approve marks an existing row approved.
func (s *Service) Approve(ctx context.Context, key Key) (*DailyProductSummary, error) {
	approved := StatusApproved
	return s.update(ctx, "approve", key, UpdateRequest{Status: &approved})
}

func (s *Service) update(ctx context.Context, op string, key Key, req UpdateRequest) (row *DailyProductSummary, err error) {
	defer s.observe(op, time.Now(), &err)

	if err := key.Validate(); err != nil {
		return nil, err
	}
	if req.Inputs.IsEmpty() && req.Status == nil {
		return nil, apperror.NewValidation("nothing to update: give physicalStock, batchAdjusted, qtyPerBatch or status")
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, apperror.NewValidation("unknown summary status").
			WithDetail("field", "status").
			WithDetail("value", string(*req.Status))
	}

	userID := appctx.GetUserID(ctx)
	err = s.runRow(ctx, key, func(ctx context.Context) error {
		locked, err := s.repo.GetForUpdate(ctx, key)
		if err != nil {
			return err
		}
		before := locked.snapshot()

		action := audit.ActionStatusChanged
		if !req.Inputs.IsEmpty() {
			in, err := req.Inputs.Merge(locked.Inputs())
			if err != nil {
				return err
			}
			locked.SetInputs(in)
			locked.Recalculate()
			locked.MarkPending()
			action = audit.ActionInputsChanged
		}

		if req.Status != nil {
			switch *req.Status {
			case StatusApproved:
				locked.MarkApproved(userID, s.now())
			case StatusPending:
				locked.MarkPending()
			}
		}

		if err := s.repo.Save(ctx, locked); err != nil {
			return err
		}

		if changes := audit.Diff(before, locked.snapshot()); len(changes) > 0 {
			if err := s.audit.Record(ctx, audit.Entry{
				EntityType: entityName,
				EntityID:   locked.ID,
				Action:     action,
				Changes:    changes,
			}); err != nil {
				return fmt.Errorf("audit summary change: %w", err)
			}
		}

		row = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.InvalidateDay(ctx, key.CompanyID, key.Date)
	logger.Info(ctx, "summary updated",
		"op", op,
		"key", key.String(),
		"status", string(row.Status),
		"version", row.Version,
	)
	return row, nil
}

// BulkApprove approves productIDs on the same day. Each approval is its own
// transaction; failures are collected, not propagated.
func (s *Service) BulkApprove(ctx context.Context, companyID id.ID, day types.Day, productIDs []id.ID) (*BulkResult, error) {
	ctx, span := tracer.Start(ctx, "production_summary.BulkApprove",
		trace.WithAttributes(attribute.Int("summary.products", len(productIDs))))
	defer span.End()

	if id.IsNil(companyID) {
		return nil, apperror.NewValidation("companyId is required")
	}
	if day.IsZero() {
		return nil, apperror.NewValidation("date is required")
	}
	ids := dedupe(productIDs)
	if len(ids) == 0 {
		return nil, apperror.NewValidation("productIds must not be empty")
	}

	errs := s.forEach(ctx, ids, func(ctx context.Context, productID id.ID) error {
		_, err := s.Approve(ctx, Key{CompanyID: companyID, ProductID: productID, Date: day})
		return err
	})

	result := collect(ctx, ids, errs)
	logger.Info(ctx, "bulk approval finished",
		"date", day.String(),
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	return result, nil
}

// RefreshResult reports a whole-day recompute.
type RefreshResult struct {
	Date types.Day `json:"date"`
	BulkResult
}

// RefreshDay recomputes every product of the company that has a row or an
// order line on day.
func (s *Service) RefreshDay(ctx context.Context, companyID id.ID, day types.Day) (*RefreshResult, error) {
	if id.IsNil(companyID) {
		return nil, apperror.NewValidation("companyId is required")
	}
	if day.IsZero() {
		return nil, apperror.NewValidation("date is required")
	}

	rows, err := s.repo.ListByDate(ctx, companyID, day)
	if err != nil {
		return nil, err
	}
	from, to := day.Bounds(s.loc)
	ordered, err := s.orders.ProductsOrdered(ctx, companyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list ordered products: %w", err)
	}

	candidates := make([]id.ID, 0, len(rows)+len(ordered))
	for _, r := range rows {
		candidates = append(candidates, r.ProductID)
	}
	candidates = append(candidates, ordered...)
	ids := dedupe(candidates)
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	errs := s.forEach(ctx, ids, func(ctx context.Context, productID id.ID) error {
		_, err := s.Recompute(ctx, Key{CompanyID: companyID, ProductID: productID, Date: day})
		return err
	})

	result := &RefreshResult{Date: day, BulkResult: *collect(ctx, ids, errs)}
	logger.Info(ctx, "day refreshed",
		"date", day.String(),
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	return result, nil
}

// GetByDate returns the company's rows on day laid out by production group.
func (s *Service) GetByDate(ctx context.Context, companyID id.ID, day types.Day) (*DayView, error) {
	if id.IsNil(companyID) {
		return nil, apperror.NewValidation("companyId is required")
	}
	if day.IsZero() {
		return nil, apperror.NewValidation("date is required")
	}

	// The stamp is read before the rows; a write that commits in between
	// bumps the day version and the fill below lands on a dead key.
	var stamp CacheStamp
	fill := false
	if s.cache != nil {
		view, st, ok, err := s.cache.Get(ctx, companyID, day)
		switch {
		case err != nil:
			logger.Warn(ctx, "summary cache read failed", "date", day.String(), "error", err)
		case ok:
			return view, nil
		default:
			stamp, fill = st, true
		}
	}

	rows, err := s.repo.ListByDate(ctx, companyID, day)
	if err != nil {
		return nil, err
	}
	groups, err := s.groups.List(ctx, companyID)
	if err != nil {
		return nil, err
	}
	view := BuildDayView(day, rows, groups)

	if fill {
		if err := s.cache.Set(ctx, companyID, day, stamp, view); err != nil {
			logger.Warn(ctx, "summary cache write failed", "date", day.String(), "error", err)
		}
	}
	return view, nil
}

// GetSummary returns one row. A missing row is a not-found error, distinct
// from a row with zero quantity.
func (s *Service) GetSummary(ctx context.Context, key Key) (*DailyProductSummary, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, key)
}

// InvalidateDay drops the cached layout of the company's day.
func (s *Service) InvalidateDay(ctx context.Context, companyID id.ID, day types.Day) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, companyID, day); err != nil {
		logger.Warn(ctx, "summary cache invalidation failed", "date", day.String(), "error", err)
	}
}

// ensureTarget lets an existing row always be recomputed, even after its
// product left the catalog; only a new row needs a live product.
func (s *Service) ensureTarget(ctx context.Context, key Key) error {
	_, err := s.repo.Get(ctx, key)
	if err == nil {
		return nil
	}
	if !apperror.IsNotFound(err) {
		return fmt.Errorf("check summary row: %w", err)
	}

	ok, err := s.catalog.Exists(ctx, key.CompanyID, key.ProductID)
	if err != nil {
		return fmt.Errorf("check product: %w", err)
	}
	if !ok {
		return apperror.NewValidation("unknown product").
			WithDetail("field", "productId").
			WithDetail("productId", key.ProductID.String())
	}
	return nil
}

func (s *Service) runRow(ctx context.Context, key Key, fn func(ctx context.Context) error) error {
	err := s.txManager.RunInTransaction(ctx, fn)
	if tx.IsConflict(err) {
		return apperror.NewConcurrentModification(entityName, key.String()).WithCause(err)
	}
	return err
}

// forEach runs fn for every id with bounded parallelism and returns the
// errors by position.
func (s *Service) forEach(ctx context.Context, ids []id.ID, fn func(ctx context.Context, productID id.ID) error) []error {
	errs := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(s.bulkConcurrency)
	for i, productID := range ids {
		g.Go(func() error {
			errs[i] = fn(ctx, productID)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (s *Service) observe(op string, start time.Time, err *error) {
	outcome := "ok"
	if *err != nil {
		outcome = strings.ToLower(apperror.CodeOf(*err))
	}
	s.metrics.ObserveSummaryOperation(op, outcome, time.Since(start))
}

func collect(ctx context.Context, ids []id.ID, errs []error) *BulkResult {
	result := &BulkResult{Failures: []ItemFailure{}}
	for i, err := range errs {
		if err == nil {
			result.Succeeded++
			continue
		}
		result.Failed++
		failure := ItemFailure{ProductID: ids[i]}
		if appErr, ok := apperror.AsAppError(err); ok && appErr.Code != apperror.CodeInternal {
			failure.Code = appErr.Code
			failure.Reason = appErr.Message
		} else {
			logger.Error(ctx, "summary batch item failed", "product_id", ids[i], "error", err)
			failure.Code = apperror.CodeInternal
			failure.Reason = "internal error"
		}
		result.Failures = append(result.Failures, failure)
	}
	return result
}

func dedupe(ids []id.ID) []id.ID {
	seen := make(map[id.ID]struct{}, len(ids))
	out := make([]id.ID, 0, len(ids))
	for _, v := range ids {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
