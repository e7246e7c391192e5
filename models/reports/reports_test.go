package reports

import (
	"bytes"
	"testing"

	"github.com/mmdatafocus/erp_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBuildTrialBalance_NetsPerCombination(t *testing.T) {
	tb := buildTrialBalance([]trialBalanceSum{
		{CombinationId: 1, CombinationKey: "01-1000", TotalDebit: dec("150"), TotalCredit: dec("50")},
		{CombinationId: 2, CombinationKey: "01-4000", TotalDebit: dec("0"), TotalCredit: dec("100")},
		{CombinationId: 3, CombinationKey: "01-2000", TotalDebit: dec("30"), TotalCredit: dec("30")},
	})

	require.Len(t, tb.Rows, 2)
	assert.True(t, tb.Rows[0].Debit.Equal(dec("100")))
	assert.True(t, tb.Rows[0].Credit.IsZero())
	assert.True(t, tb.Rows[1].Credit.Equal(dec("100")))
	assert.True(t, tb.TotalDebit.Equal(dec("100")))
	assert.True(t, tb.Balanced)
}

func TestBuildTrialBalance_FlagsImbalance(t *testing.T) {
	tb := buildTrialBalance([]trialBalanceSum{
		{CombinationId: 1, TotalDebit: dec("10")},
	})
	assert.False(t, tb.Balanced)
}

func TestBuildBudgetUtilization(t *testing.T) {
	rows := buildBudgetUtilization(
		[]models.BudgetAmount{{SegmentId: 7, Original: dec("1000"), Adjustment: dec("200"), Committed: dec("300"), Actual: dec("300")}},
		[]models.Segment{{ID: 7, Code: "CC10", Alias: "Marketing"}},
	)
	require.Len(t, rows, 1)
	assert.Equal(t, "CC10", rows[0].SegmentCode)
	assert.True(t, rows[0].Budget.Equal(dec("1200")))
	assert.True(t, rows[0].Available.Equal(dec("600")))
	assert.True(t, rows[0].Utilization.Equal(dec("50")))
}

func TestWriteExcel_WritesHeadingsAndRows(t *testing.T) {
	var buf bytes.Buffer
	rows := []*TrialBalanceRow{{CombinationKey: "01-1000", Description: "Cash", Debit: dec("12.5")}}
	require.NoError(t, WriteExcel(&buf, "Trial Balance", TrialBalanceHeadings, rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue("Trial Balance", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Combination", v)
	v, err = f.GetCellValue("Trial Balance", "C2")
	require.NoError(t, err)
	assert.Equal(t, "12.50", v)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "Report:TrialBalance:2026-01-01:USD", cacheKey("TrialBalance", "2026-01-01", "USD"))
}
