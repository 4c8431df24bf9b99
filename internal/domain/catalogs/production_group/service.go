package production_group

import (
	"context"
	"strings"

	"factorydesk/internal/core/apperror"
	"factorydesk/internal/core/id"
	"factorydesk/internal/core/tx"
	"factorydesk/pkg/logger"
)

// ProductChecker reports unknown products.
type ProductChecker interface {
	Missing(ctx context.Context, companyID id.ID, ids []id.ID) ([]id.ID, error)
}

// LayoutCache drops cached day layouts of a company after group changes.
type LayoutCache interface {
	InvalidateCompany(ctx context.Context, companyID id.ID) error
}

// Service manages production groups.
type Service struct {
	repo      Repository
	products  ProductChecker
	txManager tx.Manager
	cache     LayoutCache
}

// NewService creates a production group service. cache may be nil.
func NewService(repo Repository, products ProductChecker, txManager tx.Manager, cache LayoutCache) *Service {
	return &Service{
		repo:      repo,
		products:  products,
		txManager: txManager,
		cache:     cache,
	}
}

// Create validates and stores a new group.
func (s *Service) Create(ctx context.Context, g *ProductionGroup) error {
	g.Name = strings.TrimSpace(g.Name)
	if id.IsNil(g.ID) {
		g.ID = id.New()
	}
	g.Version = 1

	if err := s.check(ctx, g); err != nil {
		return err
	}

	if err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, g)
	}); err != nil {
		return err
	}

	logger.Info(ctx, "production group created", "group_id", g.ID, "products", len(g.ProductIDs))
	s.invalidate(ctx, g.CompanyID)
	return nil
}

// Update replaces a group's fields. g.Version must be the version the
// caller read.
func (s *Service) Update(ctx context.Context, g *ProductionGroup) error {
	g.Name = strings.TrimSpace(g.Name)
	if err := s.check(ctx, g); err != nil {
		return err
	}

	if err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetByID(ctx, g.CompanyID, g.ID); err != nil {
			return err
		}
		return s.repo.Update(ctx, g)
	}); err != nil {
		return err
	}

	logger.Info(ctx, "production group updated", "group_id", g.ID, "version", g.Version)
	s.invalidate(ctx, g.CompanyID)
	return nil
}

// Delete removes a group. Summaries are not affected.
func (s *Service) Delete(ctx context.Context, companyID, groupID id.ID) error {
	if err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Delete(ctx, companyID, groupID)
	}); err != nil {
		return err
	}

	logger.Info(ctx, "production group deleted", "group_id", groupID)
	s.invalidate(ctx, companyID)
	return nil
}

// Get returns one group.
func (s *Service) Get(ctx context.Context, companyID, groupID id.ID) (*ProductionGroup, error) {
	return s.repo.GetByID(ctx, companyID, groupID)
}

// List returns the company's groups ordered by name.
func (s *Service) List(ctx context.Context, companyID id.ID) ([]*ProductionGroup, error) {
	if id.IsNil(companyID) {
		return nil, apperror.NewValidation("companyId is required")
	}
	return s.repo.List(ctx, companyID)
}

func (s *Service) check(ctx context.Context, g *ProductionGroup) error {
	if err := g.Validate(ctx); err != nil {
		return err
	}

	taken, err := s.repo.NameTaken(ctx, g.CompanyID, g.Name, g.ID)
	if err != nil {
		return err
	}
	if taken {
		return apperror.NewDuplicate("production group", "name", g.Name)
	}

	if len(g.ProductIDs) == 0 {
		return nil
	}
	missing, err := s.products.Missing(ctx, g.CompanyID, g.ProductIDs)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		ids := make([]string, len(missing))
		for i, m := range missing {
			ids[i] = m.String()
		}
		return apperror.NewValidation("unknown products in group").
			WithDetail("field", "productIds").
			WithDetail("missing", ids)
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, companyID id.ID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateCompany(ctx, companyID); err != nil {
		logger.Warn(ctx, "production group cache invalidation failed", "company_id", companyID, "error", err)
	}
}
