package catalog_repo

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factorydesk/internal/core/id"
	"factorydesk/internal/domain/catalogs/production_group"
)

func TestProductionGroupColumns(t *testing.T) {
	assert.Equal(t, []string{
		"id", "company_id", "name", "product_ids", "moulding_time", "unloading_time",
		"production_loss", "version", "created_at", "updated_at",
	}, productionGroupColumns)
}

func TestNameTakenQuery(t *testing.T) {
	repo := NewProductionGroupRepo(nil)
	company, self := id.New(), id.New()

	sql, args, err := repo.nameTakenQuery(company, "  Breads ", self).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT EXISTS(SELECT 1 FROM cat_production_groups WHERE company_id = $1 AND lower(name) = $2 AND id <> $3)",
		sql)
	assert.Equal(t, []string{company.String(), "breads", self.String()}, argStrings(args))

	sql, args, err = repo.nameTakenQuery(company, "Breads", id.Nil()).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sql, "id <>")
	assert.Len(t, args, 2)
}

func TestUpdateQuery_OptimisticLock(t *testing.T) {
	repo := NewProductionGroupRepo(nil)
	g := production_group.NewProductionGroup(id.New(), "Breads")
	g.ProductionLoss = decimal.NewFromInt(2)
	g.Version = 4

	sql, args, err := repo.updateQuery(g).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "UPDATE cat_production_groups SET")
	assert.Contains(t, sql, "updated_at = NOW()")
	assert.Contains(t, sql, "version = version + 1")
	assert.NotContains(t, sql, "created_at")
	assert.Contains(t, sql, "WHERE company_id = $")
	assert.Contains(t, argStrings(args), "4", "expected version is bound")
	assert.Contains(t, argStrings(args), g.ID.String())
}

func TestMissingIDs(t *testing.T) {
	a, b, c := id.New(), id.New(), id.New()

	assert.Equal(t, []id.ID{b, c}, missingIDs([]id.ID{a, b, c, b}, []id.ID{a}))
	assert.Empty(t, missingIDs([]id.ID{a}, []id.ID{a}))
}

// argStrings renders bound arguments; squirrel may pass IDs through their
// driver.Valuer.
func argStrings(args []any) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = fmt.Sprint(a)
	}
	return out
}
