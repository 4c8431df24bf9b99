package production_group

import (
	"context"

	"factorydesk/internal/core/id"
)

// Repository persists production groups.
type Repository interface {
	Create(ctx context.Context, g *ProductionGroup) error

	// Update writes g when the stored version equals g.Version and bumps
	// it. A stale version is a concurrent modification error.
	Update(ctx context.Context, g *ProductionGroup) error

	Delete(ctx context.Context, companyID, groupID id.ID) error

	GetByID(ctx context.Context, companyID, groupID id.ID) (*ProductionGroup, error)

	// List returns the company's groups ordered by name.
	List(ctx context.Context, companyID id.ID) ([]*ProductionGroup, error)

	// NameTaken reports whether another group of the company uses name.
	NameTaken(ctx context.Context, companyID id.ID, name string, exclude id.ID) (bool, error)
}
