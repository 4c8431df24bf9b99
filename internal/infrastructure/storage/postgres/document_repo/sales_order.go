// Package document_repo provides PostgreSQL implementations for document repositories.
package document_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"factorydesk/internal/core/apperror"
	"factorydesk/internal/core/id"
	"factorydesk/internal/domain/documents/sales_order"
	"factorydesk/internal/domain/registers/production_summary"
	"factorydesk/internal/infrastructure/storage/postgres"
)

const (
	ordersTable       = "doc_sales_orders"
	orderLinesTable   = "doc_sales_order_lines"
	salesPersonsTable = "cat_sales_persons"

	// ownerExpr is the company an order belongs to after sales person
	// attribution.
	ownerExpr = "COALESCE(o.company_id, sp.company_id)"
)

var (
	orderColumns = postgres.ExtractDBColumns[sales_order.SalesOrder]("resolved_company_id")
	lineColumns  = append([]string{"order_id"}, postgres.ExtractDBColumns[sales_order.Line]()...)
)

// SalesOrderRepo implements sales_order.Repository and the order read side
// of the summary aggregator.
type SalesOrderRepo struct {
	txManager *postgres.TxManager
	inserter  *postgres.BatchInserter
	builder   squirrel.StatementBuilderType
}

var (
	_ sales_order.Repository         = (*SalesOrderRepo)(nil)
	_ production_summary.OrderSource = (*SalesOrderRepo)(nil)
)

// NewSalesOrderRepo creates a new sales order repository.
func NewSalesOrderRepo(txManager *postgres.TxManager) *SalesOrderRepo {
	return &SalesOrderRepo{
		txManager: txManager,
		inserter:  postgres.NewBatchInserter(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts the order and its lines.
func (r *SalesOrderRepo) Create(ctx context.Context, o *sales_order.SalesOrder) error {
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now

	sql, args, err := r.builder.
		Insert(ordersTable).
		SetMap(postgres.PickColumns(postgres.StructToMap(o), orderColumns)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "sales order")
	}
	return r.insertLines(ctx, o)
}

func (r *SalesOrderRepo) insertLines(ctx context.Context, o *sales_order.SalesOrder) error {
	rows := make([][]any, 0, len(o.Lines))
	for _, l := range o.Lines {
		rows = append(rows, []any{o.ID, l.LineID, l.LineNo, l.ProductID, l.Quantity, l.Price, l.Amount})
	}
	if _, err := r.inserter.CopyFromSlice(ctx, orderLinesTable, lineColumns, rows); err != nil {
		return postgres.MapError(fmt.Errorf("copy order lines: %w", err), "sales order line")
	}
	return nil
}

func (r *SalesOrderRepo) updateQuery(o *sales_order.SalesOrder) squirrel.UpdateBuilder {
	data := postgres.PickColumns(postgres.StructToMap(o), orderColumns)
	for _, col := range []string{"id", "number", "version", "created_at"} {
		delete(data, col)
	}
	data["updated_at"] = squirrel.Expr("NOW()")

	return r.builder.
		Update(ordersTable).
		SetMap(data).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": o.ID, "version": o.Version})
}

// Update replaces the header and lines when o.Version is current.
func (r *SalesOrderRepo) Update(ctx context.Context, o *sales_order.SalesOrder) error {
	sql, args, err := r.updateQuery(o).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	q := r.txManager.GetQuerier(ctx)
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "sales order")
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("sales order", o.ID)
	}

	if _, err := q.Exec(ctx, "DELETE FROM "+orderLinesTable+" WHERE order_id = $1", o.ID); err != nil {
		return fmt.Errorf("delete order lines: %w", err)
	}
	if err := r.insertLines(ctx, o); err != nil {
		return err
	}
	o.Version++
	return nil
}

// UpdateStatus sets the status and increments the version.
func (r *SalesOrderRepo) UpdateStatus(ctx context.Context, orderID id.ID, status sales_order.Status) error {
	sql, args, err := r.builder.
		Update(ordersTable).
		Set("status", status).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": orderID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("sales order", orderID.String())
	}
	return nil
}

// Delete removes the order; lines cascade.
func (r *SalesOrderRepo) Delete(ctx context.Context, orderID id.ID) error {
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, "DELETE FROM "+ordersTable+" WHERE id = $1", orderID)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("sales order", orderID.String())
	}
	return nil
}

// headerSelect selects order headers with the attributed company.
func (r *SalesOrderRepo) headerSelect() squirrel.SelectBuilder {
	cols := make([]string, 0, len(orderColumns)+1)
	for _, c := range orderColumns {
		cols = append(cols, "o."+c)
	}
	cols = append(cols, ownerExpr+" AS resolved_company_id")

	return r.builder.
		Select(cols...).
		From(ordersTable + " o").
		LeftJoin(salesPersonsTable + " sp ON sp.id = o.sales_person_id")
}

func (r *SalesOrderRepo) get(ctx context.Context, orderID id.ID, suffix string) (*sales_order.SalesOrder, error) {
	q := r.headerSelect().Where(squirrel.Eq{"o.id": orderID})
	if suffix != "" {
		q = q.Suffix(suffix)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var o sales_order.SalesOrder
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &o, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("sales order", orderID.String())
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &o.Lines, `
		SELECT line_id, line_no, product_id, quantity, price, amount
		FROM `+orderLinesTable+`
		WHERE order_id = $1
		ORDER BY line_no
	`, orderID); err != nil {
		return nil, fmt.Errorf("select order lines: %w", err)
	}
	if o.Lines == nil {
		o.Lines = []sales_order.Line{}
	}
	return &o, nil
}

// GetByID returns the order with lines, or a not-found error.
func (r *SalesOrderRepo) GetByID(ctx context.Context, orderID id.ID) (*sales_order.SalesOrder, error) {
	return r.get(ctx, orderID, "")
}

// GetForUpdate locks the order row and returns it with lines.
func (r *SalesOrderRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*sales_order.SalesOrder, error) {
	return r.get(ctx, orderID, "FOR UPDATE OF o")
}

// listWhere applies the filter to an order select.
func listWhere(q squirrel.SelectBuilder, f sales_order.ListFilter) squirrel.SelectBuilder {
	q = q.Where(squirrel.Expr(ownerExpr+" = ?", f.CompanyID))
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"o.order_date": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.Lt{"o.order_date": *f.To})
	}
	if f.Status != nil {
		q = q.Where(squirrel.Eq{"o.status": *f.Status})
	}
	return q
}

// List returns headers matching the filter, newest first, and the total count.
func (r *SalesOrderRepo) List(ctx context.Context, f sales_order.ListFilter) ([]*sales_order.SalesOrder, int, error) {
	querier := r.txManager.GetQuerier(ctx)

	countSQL, countArgs, err := listWhere(
		r.builder.Select("COUNT(*)").From(ordersTable+" o").
			LeftJoin(salesPersonsTable+" sp ON sp.id = o.sales_person_id"),
		f,
	).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	sql, args, err := listWhere(r.headerSelect(), f).
		OrderBy("o.order_date DESC", "o.number DESC").
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}

	var orders []*sales_order.SalesOrder
	if err := pgxscan.Select(ctx, querier, &orders, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

// SalesPersonCompany returns the company of a sales person, or nil.
func (r *SalesOrderRepo) SalesPersonCompany(ctx context.Context, salesPersonID id.ID) (*id.ID, error) {
	var companyID *id.ID
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx,
		"SELECT company_id FROM "+salesPersonsTable+" WHERE id = $1", salesPersonID,
	).Scan(&companyID)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, apperror.NewValidation("sales person does not exist").
				WithDetail("salesPersonId", salesPersonID.String())
		}
		return nil, fmt.Errorf("get sales person company: %w", err)
	}
	return companyID, nil
}

// salesLinesQuery selects the product's lines of the company's orders
// dated in [from, to).
func (r *SalesOrderRepo) salesLinesQuery(companyID, productID id.ID, from, to time.Time) squirrel.SelectBuilder {
	return r.builder.
		Select("o.id AS order_id", "o.sales_person_id", "sp.name AS sales_person_name", "l.quantity").
		From(orderLinesTable + " l").
		Join(ordersTable + " o ON o.id = l.order_id").
		LeftJoin(salesPersonsTable + " sp ON sp.id = o.sales_person_id").
		Where(squirrel.Expr(ownerExpr+" = ?", companyID)).
		Where(squirrel.Eq{"l.product_id": productID}).
		Where(squirrel.GtOrEq{"o.order_date": from}).
		Where(squirrel.Lt{"o.order_date": to}).
		OrderBy("o.order_date", "o.id", "l.line_no")
}

// SalesLines returns the product's order lines for orders dated in [from, to).
func (r *SalesOrderRepo) SalesLines(ctx context.Context, companyID, productID id.ID, from, to time.Time) ([]production_summary.SalesLine, error) {
	sql, args, err := r.salesLinesQuery(companyID, productID, from, to).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []production_summary.SalesLine
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("select sales lines: %w", err)
	}
	return lines, nil
}

// ProductsOrdered returns the distinct products ordered in [from, to).
func (r *SalesOrderRepo) ProductsOrdered(ctx context.Context, companyID id.ID, from, to time.Time) ([]id.ID, error) {
	sql, args, err := r.builder.
		Select("DISTINCT l.product_id").
		From(orderLinesTable + " l").
		Join(ordersTable + " o ON o.id = l.order_id").
		LeftJoin(salesPersonsTable + " sp ON sp.id = o.sales_person_id").
		Where(squirrel.Expr(ownerExpr+" = ?", companyID)).
		Where(squirrel.GtOrEq{"o.order_date": from}).
		Where(squirrel.Lt{"o.order_date": to}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ids []id.ID
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("select ordered products: %w", err)
	}
	return ids, nil
}
