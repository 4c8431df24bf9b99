// Package catalog_repo provides PostgreSQL implementations for catalog repositories.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"factorydesk/internal/core/id"
	"factorydesk/internal/domain/catalogs/product"
	"factorydesk/internal/infrastructure/storage/postgres"
)

const productsTable = "cat_products"

// ProductRepo implements product.Repository.
type ProductRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ product.Repository = (*ProductRepo)(nil)

// NewProductRepo creates a new product repository.
func NewProductRepo(txManager *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// live selects the company's products not marked for deletion.
func (r *ProductRepo) live(companyID id.ID, cols ...string) squirrel.SelectBuilder {
	return r.builder.Select(cols...).
		From(productsTable).
		Where(squirrel.Eq{"company_id": companyID, "deletion_mark": false})
}

// Exists reports whether productID is a live product of the company.
func (r *ProductRepo) Exists(ctx context.Context, companyID, productID id.ID) (bool, error) {
	sub := r.live(companyID, "1").Where(squirrel.Eq{"id": productID})
	sql, args, err := r.builder.Select().Column(squirrel.Expr("EXISTS(?)", sub)).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var exists bool
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check product: %w", err)
	}
	return exists, nil
}

// Missing returns the IDs from ids that are not live products of the company.
func (r *ProductRepo) Missing(ctx context.Context, companyID id.ID, ids []id.ID) ([]id.ID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	sql, args, err := r.live(companyID, "id").
		Where(squirrel.Expr("id = ANY(?)", ids)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var found []id.ID
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &found, sql, args...); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return missingIDs(ids, found), nil
}

// missingIDs returns the members of want absent from found, in want order.
func missingIDs(want, found []id.ID) []id.ID {
	present := make(map[id.ID]struct{}, len(found))
	for _, f := range found {
		present[f] = struct{}{}
	}

	var missing []id.ID
	for _, w := range want {
		if _, ok := present[w]; !ok {
			missing = append(missing, w)
			present[w] = struct{}{}
		}
	}
	return missing
}
