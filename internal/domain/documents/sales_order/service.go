package sales_order

import (
	"context"
	"fmt"
	"sort"
	"time"

	"factorydesk/internal/core/apperror"
	appctx "factorydesk/internal/core/context"
	"factorydesk/internal/core/id"
	"factorydesk/internal/core/tx"
	"factorydesk/internal/core/types"
	"factorydesk/internal/domain/audit"
	"factorydesk/internal/domain/registers/production_summary"
	"factorydesk/pkg/logger"
	"factorydesk/pkg/numerator"
)

// EntityName names orders in errors and the audit log.
const EntityName = "sales_order"

// ProductChecker reports unknown products.
type ProductChecker interface {
	Missing(ctx context.Context, companyID id.ID, ids []id.ID) ([]id.ID, error)
}

// Numerator allocates order numbers.
type Numerator interface {
	GetNextNumber(ctx context.Context, scope string, cfg numerator.Config, opts *numerator.Options, period time.Time) (string, error)
}

// SummaryRefresher is the aggregator as seen by the order service.
type SummaryRefresher interface {
	KeyFor(companyID, productID id.ID, orderDate time.Time) production_summary.Key
	UpdateProductSummary(ctx context.Context, productID id.ID, orderDate time.Time, companyID id.ID) error
	InvalidateDay(ctx context.Context, companyID id.ID, day types.Day)
}

// RefreshQueue schedules a summary refresh for the worker. It writes inside
// the transaction in ctx.
type RefreshQueue interface {
	EnqueueRefresh(ctx context.Context, key production_summary.Key) error
}

// Service provides business operations for sales orders.
type Service struct {
	repo      Repository
	products  ProductChecker
	txManager tx.Manager
	numerator Numerator
	summaries SummaryRefresher
	queue     RefreshQueue
	audit     audit.Recorder
}

// NewService creates a sales order service. recorder may be nil.
func NewService(
	repo Repository,
	products ProductChecker,
	txManager tx.Manager,
	numerator Numerator,
	summaries SummaryRefresher,
	queue RefreshQueue,
	recorder audit.Recorder,
) *Service {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Service{
		repo:      repo,
		products:  products,
		txManager: txManager,
		numerator: numerator,
		summaries: summaries,
		queue:     queue,
		audit:     recorder,
	}
}

// touch is a summary row an order write affects.
type touch struct {
	key production_summary.Key
	at  time.Time
}

// Create numbers and stores a new pending order, then refreshes the
// summaries of its products.
func (s *Service) Create(ctx context.Context, o *SalesOrder) error {
	if id.IsNil(o.ID) {
		o.ID = id.New()
	}
	o.Status = StatusPending
	o.Version = 1
	s.scopeToUser(ctx, o)
	o.Recalculate()

	if err := o.Validate(ctx); err != nil {
		return err
	}

	var touches []touch
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		companyID, err := s.companyOf(ctx, o)
		if err != nil {
			return err
		}
		if err := s.checkProducts(ctx, companyID, o); err != nil {
			return err
		}

		if o.Number == "" {
			number, err := s.numerator.GetNextNumber(ctx, numberScope(companyID),
				numerator.DefaultConfig(NumberPrefix),
				&numerator.Options{Strategy: NumeratorStrategy},
				o.OrderDate)
			if err != nil {
				return fmt.Errorf("generate number: %w", err)
			}
			o.Number = number
		}

		if err := s.repo.Create(ctx, o); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := s.record(ctx, o.ID, audit.ActionCreate, nil, o.snapshot()); err != nil {
			return err
		}

		touches = dedupeTouches(s.touchesOf(ctx, companyID, o))
		s.refreshSummaries(ctx, touches)
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, touches)
	logger.Info(ctx, "sales order created", "id", o.ID, "number", o.Number, "lines", len(o.Lines))
	return nil
}

// Update replaces an open order. o.Version must be the version the caller
// read. Summaries of both the old and the new products and days are
// refreshed.
func (s *Service) Update(ctx context.Context, o *SalesOrder) error {
	o.Recalculate()

	var touches []touch
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		old, err := s.repo.GetForUpdate(ctx, o.ID)
		if err != nil {
			return err
		}
		if err := s.checkAccess(ctx, old); err != nil {
			return err
		}
		if old.Status.IsTerminal() {
			return apperror.NewBusinessRule("order is closed").
				WithDetail("status", string(old.Status))
		}
		if old.Version != o.Version {
			return apperror.NewConcurrentModification(EntityName, o.ID.String()).
				WithDetail("expectedVersion", o.Version).
				WithDetail("actualVersion", old.Version)
		}

		o.Number = old.Number
		o.Status = old.Status
		o.CreatedAt = old.CreatedAt
		if o.CompanyID == nil {
			o.CompanyID = old.CompanyID
		}
		s.scopeToUser(ctx, o)
		if err := o.Validate(ctx); err != nil {
			return err
		}

		oldCompany, err := s.companyOf(ctx, old)
		if err != nil {
			return err
		}
		newCompany, err := s.companyOf(ctx, o)
		if err != nil {
			return err
		}
		if err := s.checkProducts(ctx, newCompany, o); err != nil {
			return err
		}

		if err := s.repo.Update(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if err := s.record(ctx, o.ID, audit.ActionUpdate, old.snapshot(), o.snapshot()); err != nil {
			return err
		}

		touches = dedupeTouches(append(s.touchesOf(ctx, oldCompany, old), s.touchesOf(ctx, newCompany, o)...))
		s.refreshSummaries(ctx, touches)
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, touches)
	logger.Info(ctx, "sales order updated", "id", o.ID, "version", o.Version)
	return nil
}

// Delete removes an order and withdraws it from the summaries.
func (s *Service) Delete(ctx context.Context, orderID id.ID) error {
	var touches []touch
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		old, err := s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.checkAccess(ctx, old); err != nil {
			return err
		}
		companyID, err := s.companyOf(ctx, old)
		if err != nil {
			return err
		}

		if err := s.repo.Delete(ctx, orderID); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		if err := s.record(ctx, orderID, audit.ActionDelete, old.snapshot(), nil); err != nil {
			return err
		}

		touches = dedupeTouches(s.touchesOf(ctx, companyID, old))
		s.refreshSummaries(ctx, touches)
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, touches)
	logger.Info(ctx, "sales order deleted", "id", orderID)
	return nil
}

// ChangeStatus moves the order along its lifecycle. Summaries count orders
// in every status, so they are not refreshed.
func (s *Service) ChangeStatus(ctx context.Context, orderID id.ID, next Status) (*SalesOrder, error) {
	if !next.Valid() {
		return nil, apperror.NewValidation("unknown order status").
			WithDetail("field", "status").
			WithDetail("value", string(next))
	}

	var order *SalesOrder
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.checkAccess(ctx, current); err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(next) {
			return apperror.NewInvalidTransition(EntityName, string(current.Status), string(next))
		}

		before := current.snapshot()
		if err := s.repo.UpdateStatus(ctx, orderID, next); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		current.Status = next
		current.Version++
		if err := s.record(ctx, orderID, audit.ActionStatusChanged, before, current.snapshot()); err != nil {
			return err
		}

		order = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "sales order status changed", "id", orderID, "status", string(next))
	return order, nil
}

// Get returns an order with lines.
func (s *Service) Get(ctx context.Context, orderID id.ID) (*SalesOrder, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAccess(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// List returns order headers of a company.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*SalesOrder, int, error) {
	if id.IsNil(filter.CompanyID) {
		return nil, 0, apperror.NewValidation("companyId is required")
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, 0, apperror.NewValidation("unknown order status").
			WithDetail("field", "status")
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}

// refreshSummaries recomputes each touched row under its own savepoint, in
// key order so concurrent writers lock rows in the same sequence. A failed
// refresh is rolled back to its savepoint and queued for the worker; the
// order itself still commits.
func (s *Service) refreshSummaries(ctx context.Context, touches []touch) {
	for _, t := range touches {
		err := s.txManager.RunInSavepoint(ctx, func(ctx context.Context) error {
			return s.summaries.UpdateProductSummary(ctx, t.key.ProductID, t.at, t.key.CompanyID)
		})
		if err == nil {
			continue
		}

		logger.Warn(ctx, "summary refresh failed, queued for retry", "key", t.key.String(), "error", err)
		if err := s.queue.EnqueueRefresh(ctx, t.key); err != nil {
			logger.Error(ctx, "summary refresh could not be queued", "key", t.key.String(), "error", err)
		}
	}
}

func (s *Service) invalidate(ctx context.Context, touches []touch) {
	for _, t := range touches {
		if !id.IsNil(t.key.CompanyID) {
			s.summaries.InvalidateDay(ctx, t.key.CompanyID, t.key.Date)
		}
	}
}

// touchesOf returns the summary rows of o. Orders without a company touch
// nothing.
func (s *Service) touchesOf(ctx context.Context, companyID id.ID, o *SalesOrder) []touch {
	if id.IsNil(companyID) {
		logger.Warn(ctx, "order has no company, summaries not refreshed", "order_id", o.ID)
		return nil
	}
	out := make([]touch, 0, len(o.Lines))
	for _, productID := range o.ProductIDs() {
		out = append(out, touch{key: s.summaries.KeyFor(companyID, productID, o.OrderDate), at: o.OrderDate})
	}
	return out
}

func (s *Service) companyOf(ctx context.Context, o *SalesOrder) (id.ID, error) {
	if o.CompanyID != nil {
		return *o.CompanyID, nil
	}
	if o.SalesPersonID == nil {
		return id.Nil(), nil
	}
	companyID, err := s.repo.SalesPersonCompany(ctx, *o.SalesPersonID)
	if err != nil {
		return id.Nil(), fmt.Errorf("resolve sales person company: %w", err)
	}
	return id.Deref(companyID), nil
}

// scopeToUser pins orders of company users to their company.
func (s *Service) scopeToUser(ctx context.Context, o *SalesOrder) {
	user := appctx.GetUser(ctx)
	if user == nil || user.IsSuperAdmin || id.IsNil(user.CompanyID) {
		return
	}
	companyID := user.CompanyID
	o.CompanyID = &companyID
}

// checkAccess hides orders of other companies.
func (s *Service) checkAccess(ctx context.Context, o *SalesOrder) error {
	user := appctx.GetUser(ctx)
	if user == nil || user.IsSuperAdmin {
		return nil
	}
	owner := o.ResolvedCompanyID
	if owner == nil {
		owner = o.CompanyID
	}
	if owner == nil || *owner != user.CompanyID {
		return apperror.NewNotFound(EntityName, o.ID.String())
	}
	return nil
}

func (s *Service) checkProducts(ctx context.Context, companyID id.ID, o *SalesOrder) error {
	if id.IsNil(companyID) {
		return nil
	}
	missing, err := s.products.Missing(ctx, companyID, o.ProductIDs())
	if err != nil {
		return fmt.Errorf("check products: %w", err)
	}
	if len(missing) > 0 {
		return apperror.NewValidation("unknown products").
			WithDetail("field", "lines").
			WithDetail("productIds", missing)
	}
	return nil
}

func (s *Service) record(ctx context.Context, orderID id.ID, action audit.Action, before, after map[string]any) error {
	changes := audit.Diff(before, after)
	if len(changes) == 0 {
		return nil
	}
	if err := s.audit.Record(ctx, audit.Entry{
		EntityType: EntityName,
		EntityID:   orderID,
		Action:     action,
		Changes:    changes,
	}); err != nil {
		return fmt.Errorf("audit order: %w", err)
	}
	return nil
}

func numberScope(companyID id.ID) string {
	if id.IsNil(companyID) {
		return "global"
	}
	return companyID.String()
}

// dedupeTouches keeps the first touch of each key and sorts by key.
func dedupeTouches(touches []touch) []touch {
	seen := make(map[production_summary.Key]struct{}, len(touches))
	out := make([]touch, 0, len(touches))
	for _, t := range touches {
		if _, ok := seen[t.key]; ok {
			continue
		}
		seen[t.key] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key.Less(out[j].key) })
	return out
}
