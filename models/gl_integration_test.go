package models_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/mmdatafocus/erp_backend/models/reports"
	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_CombinationJournalTrialBalance(t *testing.T) {
	env := integration(t)
	ctx := env.admin

	cashPairs := env.pairs("100", "1010")
	cash, created, err := models.GetOrCreateCombination(ctx, nil, cashPairs, "Cash")
	require.NoError(t, err)
	assert.True(t, created)

	// Pair order does not change the combination.
	again, created, err := models.GetOrCreateCombination(ctx, nil, []models.SegmentPair{cashPairs[1], cashPairs[0]}, "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, cash.ID, again.ID)

	_, _, err = models.GetOrCreateCombination(ctx, nil, cashPairs[:1], "")
	assert.True(t, utils.IsValidationError(err), "missing required segment type must fail")

	date := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	amount := decimal.RequireFromString("250.00")
	entry, err := models.CreateJournalEntry(ctx, &models.NewJournalEntry{
		Date:         date,
		CurrencyCode: "USD",
		Memo:         "cash sale",
		Lines: []models.NewJournalLine{
			{Amount: amount, Type: models.EntryTypeDebit, CombinationId: cash.ID},
			{Amount: amount, Type: models.EntryTypeCredit, Segments: env.pairs("100", "4000")},
		},
	})
	require.NoError(t, err)

	_, err = models.PostJournalEntry(ctx, entry.ID)
	assert.True(t, utils.IsValidationError(err), "posting into a closed period must fail")

	env.openPeriod(t, "Jan-2026", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	posted, err := models.PostJournalEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, posted.Posted)

	_, err = models.PostJournalEntry(ctx, entry.ID)
	assert.True(t, errors.Is(err, utils.ErrorConflict))

	tb, err := reports.GetTrialBalance(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), "USD")
	require.NoError(t, err)
	assert.True(t, tb.Balanced)
	assert.True(t, tb.TotalDebit.Equal(amount))
	assert.Len(t, tb.Rows, 2)
}

func TestIntegration_PostedRowsAreImmutable(t *testing.T) {
	env := integration(t)
	ctx := env.admin

	comb, _, err := models.GetOrCreateCombination(ctx, nil, env.pairs("200", "1100"), "Branch bank")
	require.NoError(t, err)

	err = config.GetDB().Model(comb).Update("description", "renamed").Error
	assert.ErrorIs(t, err, models.ErrCombinationImmutable)
	err = config.GetDB().Delete(&models.SegmentCombination{ID: comb.ID}).Error
	assert.ErrorIs(t, err, models.ErrCombinationImmutable)
	err = config.GetDB().Model(&models.SegmentCombinationDetail{}).
		Where("combination_id = ?", comb.ID).Update("segment_id", 0).Error
	assert.ErrorIs(t, err, models.ErrCombinationImmutable)
	assert.True(t, utils.IsValidationError(models.UpdateCombination(ctx, comb.ID)))
	assert.True(t, utils.IsValidationError(models.DeleteCombination(ctx, comb.ID)))

	stored, err := models.GetCombination(ctx, comb.ID)
	require.NoError(t, err)
	assert.Equal(t, "Branch bank", stored.Description)
	assert.Len(t, stored.Details, 2)

	env.openPeriod(t, "Feb-2026", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	amount := decimal.NewFromInt(75)
	input := &models.NewJournalEntry{
		Date:         time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		CurrencyCode: "GBP",
		Memo:         "transfer",
		Lines: []models.NewJournalLine{
			{Amount: amount, Type: models.EntryTypeDebit, CombinationId: comb.ID},
			{Amount: amount, Type: models.EntryTypeCredit, Segments: env.pairs("200", "4000")},
		},
	}
	entry, err := models.CreateJournalEntry(ctx, input)
	require.NoError(t, err)
	_, err = models.PostJournalEntry(ctx, entry.ID)
	require.NoError(t, err)

	input.Memo = "edited"
	_, err = models.UpdateJournalEntry(ctx, entry.ID, input)
	assert.True(t, utils.IsValidationError(err))
	_, err = models.DeleteJournalEntry(ctx, entry.ID)
	assert.True(t, utils.IsValidationError(err))
	_, err = models.AddJournalLine(ctx, entry.ID, &input.Lines[0])
	assert.True(t, utils.IsValidationError(err))
	_, err = models.DeleteJournalLine(ctx, entry.ID, entry.Lines[0].ID)
	assert.True(t, utils.IsValidationError(err))

	stored2, err := models.GetJournalEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "transfer", stored2.Memo)
	assert.Len(t, stored2.Lines, 2)
}

func TestIntegration_ConcurrentGetOrCreateCombinationConverges(t *testing.T) {
	env := integration(t)
	ctx := env.admin

	_, err := models.CreateSegment(ctx, &models.NewSegment{SegmentTypeId: env.account.ID, Code: "6100", Alias: "Travel"})
	require.NoError(t, err)
	pairs := env.pairs("200", "6100")

	const callers = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = make(map[int]bool)
		created int
		errs    []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			comb, isNew, err := models.GetOrCreateCombination(ctx, nil, pairs, "")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids[comb.ID] = true
			if isNew {
				created++
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, ids, 1, "every caller must get the same row")
	assert.Equal(t, 1, created)

	var rows int64
	require.NoError(t, config.GetDB().Model(&models.SegmentCombinationDetail{}).
		Joins("JOIN segments s ON s.id = segment_combination_details.segment_id").
		Where("s.code = ?", "6100").Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestIntegration_LedgerSegmentFilters(t *testing.T) {
	env := integration(t)
	ctx := env.admin

	date := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	entry := func(memo string, debit, credit []models.SegmentPair) *models.JournalEntry {
		amount := decimal.NewFromInt(40)
		e, err := models.CreateJournalEntry(ctx, &models.NewJournalEntry{
			Date:         date,
			CurrencyCode: "EUR",
			Memo:         memo,
			Lines: []models.NewJournalLine{
				{Amount: amount, Type: models.EntryTypeDebit, Segments: debit},
				{Amount: amount, Type: models.EntryTypeCredit, Segments: credit},
			},
		})
		require.NoError(t, err)
		return e
	}
	sale := entry("sale", env.pairs("100", "1010"), env.pairs("100", "4000"))
	spend := entry("spend", env.pairs("200", "5000"), env.pairs("200", "1100"))

	from, to := date, date
	list := func(mode models.SegmentFilterMode, segs ...models.SegmentPair) []int {
		rows, _, err := models.ListJournalEntries(ctx, models.LedgerFilter{Mode: mode, Segments: segs, FromDate: &from, ToDate: &to})
		require.NoError(t, err)
		ids := make([]int, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.ID)
		}
		return ids
	}
	cashAcct := models.SegmentPair{SegmentTypeId: env.account.ID, Code: "1010"}
	revenue := models.SegmentPair{SegmentTypeId: env.account.ID, Code: "4000"}
	expenses := models.SegmentPair{SegmentTypeId: env.account.ID, Code: "5000"}
	branch := models.SegmentPair{SegmentTypeId: env.company.ID, Code: "200"}
	missing := models.SegmentPair{SegmentTypeId: env.account.ID, Code: "9999"}

	assert.ElementsMatch(t, []int{sale.ID, spend.ID}, list(""))
	assert.Equal(t, []int{sale.ID}, list(models.SegmentFilterOne, revenue))
	// cash and revenue sit on different lines of the sale
	assert.Equal(t, []int{sale.ID}, list(models.SegmentFilterAll, cashAcct, revenue))
	assert.Equal(t, []int{sale.ID}, list(models.SegmentFilterAll, cashAcct, revenue, revenue))
	assert.Empty(t, list(models.SegmentFilterAll, cashAcct, expenses))
	assert.Empty(t, list(models.SegmentFilterAll, branch, revenue))
	assert.Empty(t, list(models.SegmentFilterAll, cashAcct, missing))
	assert.ElementsMatch(t, []int{sale.ID, spend.ID}, list(models.SegmentFilterAny, revenue, expenses))
	assert.Equal(t, []int{spend.ID}, list(models.SegmentFilterAny, expenses, missing))
}
