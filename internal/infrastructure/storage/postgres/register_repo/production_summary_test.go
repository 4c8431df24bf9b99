package register_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factorydesk/internal/core/id"
	"factorydesk/internal/core/types"
	"factorydesk/internal/domain/registers/production_summary"
)

func testKey() production_summary.Key {
	return production_summary.Key{
		CompanyID: id.New(),
		ProductID: id.New(),
		Date:      types.DayFromDate(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)),
	}
}

func TestSummaryColumns_ExcludeJoinedName(t *testing.T) {
	assert.NotContains(t, summaryColumns, "product_name")
	assert.Contains(t, summaryColumns, "sales_breakdown")
	for _, c := range summaryMutable {
		assert.Contains(t, summaryColumns, c)
	}
}

func TestEnsureQuery(t *testing.T) {
	repo := NewProductionSummaryRepo(nil)

	sql, args, err := repo.ensureQuery(testKey(), time.Now()).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "INSERT INTO reg_production_daily_summaries")
	assert.Contains(t, sql, "ON CONFLICT (company_id, product_id, date) DO NOTHING")
	assert.Len(t, args, len(summaryColumns))
}

func TestGetForUpdateLocksSummaryOnly(t *testing.T) {
	repo := NewProductionSummaryRepo(nil)

	sql, _, err := repo.baseSelect().Where(keyPredicate(testKey())).Suffix("FOR UPDATE OF s").ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "LEFT JOIN cat_products p ON p.id = s.product_id")
	assert.Contains(t, sql, "COALESCE(p.name, '') AS product_name")
	assert.Contains(t, sql, "s.company_id = $1 AND s.date = $2 AND s.product_id = $3")
	assert.True(t, len(sql) > 0 && sql[len(sql)-len("FOR UPDATE OF s"):] == "FOR UPDATE OF s")
}

func TestSaveQuery_VersionCheck(t *testing.T) {
	repo := NewProductionSummaryRepo(nil)
	row := production_summary.NewDailyProductSummary(testKey())
	row.Version = 7

	sql, args, err := repo.saveQuery(row).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "version = version + 1")
	assert.Contains(t, sql, "updated_at = NOW()")
	assert.Contains(t, sql, "WHERE id = $")
	assert.NotContains(t, sql, "company_id")
	assert.Equal(t, 7, args[len(args)-1])
}
