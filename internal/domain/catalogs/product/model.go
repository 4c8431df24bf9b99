// Package product describes the read side of the product catalog used by
// production planning and orders.
package product

import (
	"context"

	"factorydesk/internal/core/id"
)

// Repository reads products. Marked-for-deletion products do not exist for
// any of these methods.
type Repository interface {
	// Exists reports whether productID is a live product of the company.
	Exists(ctx context.Context, companyID, productID id.ID) (bool, error)

	// Missing returns the IDs from ids that are not live products of the company.
	Missing(ctx context.Context, companyID id.ID, ids []id.ID) ([]id.ID, error)
}
