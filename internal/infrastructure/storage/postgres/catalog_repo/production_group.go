package catalog_repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"factorydesk/internal/core/apperror"
	"factorydesk/internal/core/id"
	"factorydesk/internal/domain/catalogs/production_group"
	"factorydesk/internal/infrastructure/storage/postgres"
)

const productionGroupsTable = "cat_production_groups"

var productionGroupColumns = postgres.ExtractDBColumns[production_group.ProductionGroup]()

// ProductionGroupRepo implements production_group.Repository.
type ProductionGroupRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ production_group.Repository = (*ProductionGroupRepo)(nil)

// NewProductionGroupRepo creates a new production group repository.
func NewProductionGroupRepo(txManager *postgres.TxManager) *ProductionGroupRepo {
	return &ProductionGroupRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new group.
func (r *ProductionGroupRepo) Create(ctx context.Context, g *production_group.ProductionGroup) error {
	now := time.Now().UTC()
	g.CreatedAt, g.UpdatedAt = now, now

	sql, args, err := r.builder.
		Insert(productionGroupsTable).
		SetMap(postgres.PickColumns(postgres.StructToMap(g), productionGroupColumns)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "production group")
	}
	return nil
}

// updateQuery builds the optimistic-lock UPDATE for g.
func (r *ProductionGroupRepo) updateQuery(g *production_group.ProductionGroup) squirrel.UpdateBuilder {
	data := postgres.StructToMap(g)
	for _, col := range []string{"id", "company_id", "version", "created_at"} {
		delete(data, col)
	}
	data["updated_at"] = squirrel.Expr("NOW()")

	return r.builder.
		Update(productionGroupsTable).
		SetMap(data).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": g.ID, "company_id": g.CompanyID, "version": g.Version})
}

// Update writes g when the stored version matches and bumps it.
func (r *ProductionGroupRepo) Update(ctx context.Context, g *production_group.ProductionGroup) error {
	sql, args, err := r.updateQuery(g).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "production group")
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, g.CompanyID, g.ID); err != nil {
			return err
		}
		return apperror.NewConcurrentModification("production group", g.ID)
	}
	g.Version++
	return nil
}

// Delete removes a group of the company.
func (r *ProductionGroupRepo) Delete(ctx context.Context, companyID, groupID id.ID) error {
	sql, args, err := r.builder.
		Delete(productionGroupsTable).
		Where(squirrel.Eq{"id": groupID, "company_id": companyID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete production group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("production group", groupID.String())
	}
	return nil
}

// GetByID returns a group of the company or a not-found error.
func (r *ProductionGroupRepo) GetByID(ctx context.Context, companyID, groupID id.ID) (*production_group.ProductionGroup, error) {
	sql, args, err := r.builder.
		Select(productionGroupColumns...).
		From(productionGroupsTable).
		Where(squirrel.Eq{"id": groupID, "company_id": companyID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var g production_group.ProductionGroup
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &g, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("production group", groupID.String())
		}
		return nil, fmt.Errorf("get production group: %w", err)
	}
	return &g, nil
}

// List returns the company's groups ordered by name.
func (r *ProductionGroupRepo) List(ctx context.Context, companyID id.ID) ([]*production_group.ProductionGroup, error) {
	sql, args, err := r.builder.
		Select(productionGroupColumns...).
		From(productionGroupsTable).
		Where(squirrel.Eq{"company_id": companyID}).
		OrderBy("name", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var groups []*production_group.ProductionGroup
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &groups, sql, args...); err != nil {
		return nil, fmt.Errorf("list production groups: %w", err)
	}
	return groups, nil
}

// nameTakenQuery matches names case-insensitively, ignoring surrounding spaces.
func (r *ProductionGroupRepo) nameTakenQuery(companyID id.ID, name string, exclude id.ID) squirrel.SelectBuilder {
	sub := r.builder.Select("1").
		From(productionGroupsTable).
		Where(squirrel.Eq{"company_id": companyID}).
		Where(squirrel.Expr("lower(name) = ?", strings.ToLower(strings.TrimSpace(name))))
	if !id.IsNil(exclude) {
		sub = sub.Where(squirrel.NotEq{"id": exclude})
	}
	return r.builder.Select().Column(squirrel.Expr("EXISTS(?)", sub))
}

// NameTaken reports whether another group of the company uses name.
func (r *ProductionGroupRepo) NameTaken(ctx context.Context, companyID id.ID, name string, exclude id.ID) (bool, error) {
	sql, args, err := r.nameTakenQuery(companyID, name, exclude).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var taken bool
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&taken); err != nil {
		return false, fmt.Errorf("check group name: %w", err)
	}
	return taken, nil
}
