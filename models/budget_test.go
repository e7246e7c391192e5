package models

import (
	"testing"
	"time"

	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBudget() BudgetHeader {
	return BudgetHeader{
		ID:                  7,
		Code:                "FY26",
		StartDate:           time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:             time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		DefaultControlLevel: ControlLevelAbsolute,
	}
}

func budgetAmount(segment int, original, committed, actual string) BudgetAmount {
	return BudgetAmount{SegmentId: segment, Original: dec(original), Committed: dec(committed), Actual: dec(actual)}
}

func TestBudgetAmountFigures(t *testing.T) {
	a := BudgetAmount{Original: dec("1000"), Adjustment: dec("200"), Committed: dec("300"), Encumbered: dec("100"), Actual: dec("200")}
	assert.True(t, a.TotalBudget().Equal(dec("1200")))
	assert.True(t, a.Consumed().Equal(dec("600")))
	assert.True(t, a.Available().Equal(dec("600")))
	assert.True(t, a.Utilization().Equal(dec("50")))
	assert.True(t, BudgetAmount{}.Utilization().IsZero())
}

func TestBudgetConsumeAndRelease(t *testing.T) {
	a := BudgetAmount{Original: dec("500")}
	a.consume(bucketCommitted, dec("120"))
	a.consume(bucketActual, dec("80"))
	assert.True(t, a.Committed.Equal(dec("120")))
	assert.True(t, a.Actual.Equal(dec("80")))

	released := a.release(bucketCommitted, dec("200"))
	assert.True(t, released.Equal(dec("120")))
	assert.True(t, a.Committed.IsZero())
	assert.True(t, a.release(bucketEncumbered, dec("10")).IsZero())
}

func TestStrictestLevel(t *testing.T) {
	assert.Equal(t, ControlLevelNone, strictestLevel(nil))
	assert.Equal(t, ControlLevelAdvisory, strictestLevel([]ControlLevel{ControlLevelTrackOnly, ControlLevelAdvisory, ControlLevelNone}))
	assert.Equal(t, ControlLevelAbsolute, strictestLevel([]ControlLevel{ControlLevelAbsolute, ControlLevelAdvisory}))
}

func TestSegmentEffectiveLevel(t *testing.T) {
	advisory := ControlLevelAdvisory
	bogus := ControlLevel("LOOSE")
	assert.Equal(t, ControlLevelAdvisory, BudgetSegmentValue{ControlLevel: &advisory}.effectiveLevel(ControlLevelAbsolute))
	assert.Equal(t, ControlLevelAbsolute, BudgetSegmentValue{}.effectiveLevel(ControlLevelAbsolute))
	assert.Equal(t, ControlLevelTrackOnly, BudgetSegmentValue{ControlLevel: &bogus}.effectiveLevel(ControlLevelTrackOnly))
}

func TestEvaluateBudget(t *testing.T) {
	h := sampleBudget()
	inPeriod := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	t.Run("outside period", func(t *testing.T) {
		r := evaluateBudget(h, nil, dec("10"), time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC))
		assert.False(t, r.Allowed)
		assert.Equal(t, ControlLevelAbsolute, r.ControlLevel)
		assert.Contains(t, r.Message, "outside budget period")
	})

	t.Run("no applicable segments", func(t *testing.T) {
		r := evaluateBudget(h, nil, dec("10"), inPeriod)
		assert.True(t, r.Allowed)
		assert.Equal(t, ControlLevelNone, r.ControlLevel)
		require.NotNil(t, r.BudgetId)
		assert.Equal(t, 7, *r.BudgetId)
	})

	t.Run("within budget", func(t *testing.T) {
		lines := []budgetLine{{Amount: budgetAmount(1, "1000", "200", "0"), Level: ControlLevelAbsolute}}
		r := evaluateBudget(h, lines, dec("800"), inPeriod)
		assert.True(t, r.Allowed)
		assert.Empty(t, r.Violations)
	})

	t.Run("absolute blocks", func(t *testing.T) {
		lines := []budgetLine{
			{Amount: budgetAmount(1, "1000", "200", "0"), Level: ControlLevelAbsolute},
			{Amount: budgetAmount(2, "5000", "0", "0"), Level: ControlLevelAdvisory},
		}
		r := evaluateBudget(h, lines, dec("900"), inPeriod)
		assert.False(t, r.Allowed)
		assert.Equal(t, ControlLevelAbsolute, r.ControlLevel)
		require.Len(t, r.Violations, 1)
		v := r.Violations[0]
		assert.Equal(t, 1, v.SegmentId)
		assert.True(t, v.Available.Equal(dec("800")))
		assert.True(t, v.Shortage.Equal(dec("100")))
	})

	t.Run("advisory warns", func(t *testing.T) {
		lines := []budgetLine{{Amount: budgetAmount(3, "100", "0", "90"), Level: ControlLevelAdvisory}}
		r := evaluateBudget(h, lines, dec("50"), inPeriod)
		assert.True(t, r.Allowed)
		assert.Equal(t, ControlLevelAdvisory, r.ControlLevel)
		assert.Len(t, r.Violations, 1)
	})

	t.Run("period bounds inclusive", func(t *testing.T) {
		assert.True(t, h.Covers(h.StartDate))
		assert.True(t, h.Covers(h.EndDate.Add(23*time.Hour)))
		assert.False(t, h.Covers(h.StartDate.AddDate(0, 0, -1)))
	})
}

func TestNewBudgetValidate(t *testing.T) {
	valid := func() *NewBudget {
		return &NewBudget{
			Code:         "FY26",
			Name:         "Operating",
			StartDate:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:      time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
			CurrencyCode: "USD",
			Segments:     []NewBudgetSegment{{SegmentId: 1, Amount: dec("100")}},
		}
	}
	require.NoError(t, valid().validate())

	reversed := valid()
	reversed.EndDate = reversed.StartDate.AddDate(0, 0, -1)
	assert.True(t, utils.IsValidationError(reversed.validate()))

	dup := valid()
	dup.Segments = append(dup.Segments, NewBudgetSegment{SegmentId: 1, Amount: dec("5")})
	assert.Error(t, dup.validate())

	negative := valid()
	negative.Segments[0].Amount = dec("-1")
	assert.Error(t, negative.validate())
}
