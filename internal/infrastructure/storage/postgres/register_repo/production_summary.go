// Package register_repo provides PostgreSQL implementations for register repositories.
package register_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"factorydesk/internal/core/apperror"
	"factorydesk/internal/core/id"
	"factorydesk/internal/core/types"
	"factorydesk/internal/domain/registers/production_summary"
	"factorydesk/internal/infrastructure/storage/postgres"
)

const (
	summariesTable = "reg_production_daily_summaries"
	productsTable  = "cat_products"
)

// summaryColumns are the stored columns; product_name is joined in.
var summaryColumns = postgres.ExtractDBColumns[production_summary.DailyProductSummary]("product_name")

// summaryMutable are the columns Save rewrites.
var summaryMutable = []string{
	"sales_breakdown", "total_quantity", "total_orders",
	"physical_stock", "batch_adjusted", "qty_per_batch",
	"to_be_produced_day", "production_final_batches", "produce_batches",
	"to_be_produced_batches", "expiry_shortage",
	"status", "approved_by", "approved_at",
}

// ProductionSummaryRepo implements production_summary.Repository.
type ProductionSummaryRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ production_summary.Repository = (*ProductionSummaryRepo)(nil)

// NewProductionSummaryRepo creates a new summary register repository.
func NewProductionSummaryRepo(txManager *postgres.TxManager) *ProductionSummaryRepo {
	return &ProductionSummaryRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ensureQuery inserts an empty pending row unless the key already exists.
func (r *ProductionSummaryRepo) ensureQuery(key production_summary.Key, now time.Time) squirrel.InsertBuilder {
	row := production_summary.NewDailyProductSummary(key)
	row.Version = 1
	row.CreatedAt, row.UpdatedAt = now, now

	return r.builder.
		Insert(summariesTable).
		SetMap(postgres.PickColumns(postgres.StructToMap(row), summaryColumns)).
		Suffix("ON CONFLICT (company_id, product_id, date) DO NOTHING")
}

// Ensure inserts an empty pending row for key unless one exists.
func (r *ProductionSummaryRepo) Ensure(ctx context.Context, key production_summary.Key) error {
	sql, args, err := r.ensureQuery(key, time.Now().UTC()).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "daily product summary")
	}
	return nil
}

// baseSelect selects summary rows with their product names.
func (r *ProductionSummaryRepo) baseSelect() squirrel.SelectBuilder {
	cols := make([]string, 0, len(summaryColumns)+1)
	for _, c := range summaryColumns {
		cols = append(cols, "s."+c)
	}
	cols = append(cols, "COALESCE(p.name, '') AS product_name")

	return r.builder.
		Select(cols...).
		From(summariesTable + " s").
		LeftJoin(productsTable + " p ON p.id = s.product_id")
}

func keyPredicate(key production_summary.Key) squirrel.Eq {
	return squirrel.Eq{
		"s.company_id": key.CompanyID,
		"s.product_id": key.ProductID,
		"s.date":       key.Date,
	}
}

func (r *ProductionSummaryRepo) get(ctx context.Context, q squirrel.SelectBuilder, key production_summary.Key) (*production_summary.DailyProductSummary, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row production_summary.DailyProductSummary
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("daily product summary", key.String())
		}
		return nil, fmt.Errorf("get summary: %w", err)
	}
	return &row, nil
}

// GetForUpdate locks and returns the row, or a not-found error.
func (r *ProductionSummaryRepo) GetForUpdate(ctx context.Context, key production_summary.Key) (*production_summary.DailyProductSummary, error) {
	return r.get(ctx, r.baseSelect().Where(keyPredicate(key)).Suffix("FOR UPDATE OF s"), key)
}

// Get returns the row without locking, or a not-found error.
func (r *ProductionSummaryRepo) Get(ctx context.Context, key production_summary.Key) (*production_summary.DailyProductSummary, error) {
	return r.get(ctx, r.baseSelect().Where(keyPredicate(key)), key)
}

// ListByDate returns every row of the company on day, by product name.
func (r *ProductionSummaryRepo) ListByDate(ctx context.Context, companyID id.ID, day types.Day) ([]*production_summary.DailyProductSummary, error) {
	sql, args, err := r.baseSelect().
		Where(squirrel.Eq{"s.company_id": companyID, "s.date": day}).
		OrderBy("product_name", "s.product_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []*production_summary.DailyProductSummary
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	return rows, nil
}

func (r *ProductionSummaryRepo) saveQuery(s *production_summary.DailyProductSummary) squirrel.UpdateBuilder {
	data := postgres.PickColumns(postgres.StructToMap(s), summaryMutable)
	data["updated_at"] = squirrel.Expr("NOW()")

	return r.builder.
		Update(summariesTable).
		SetMap(data).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": s.ID, "version": s.Version})
}

// Save writes the row when its version is current and increments it.
func (r *ProductionSummaryRepo) Save(ctx context.Context, s *production_summary.DailyProductSummary) error {
	sql, args, err := r.saveQuery(s).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "daily product summary")
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("daily product summary", s.Key().String())
	}
	s.Version++
	return nil
}
