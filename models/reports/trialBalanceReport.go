package reports

import (
	"context"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/shopspring/decimal"
)

type TrialBalanceRow struct {
	CombinationId  int             `json:"combination_id"`
	CombinationKey string          `json:"combination_key"`
	Description    string          `json:"description"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
}

func (r TrialBalanceRow) GetCellValues() []interface{} {
	return []interface{}{r.CombinationKey, r.Description, r.Debit.StringFixed(2), r.Credit.StringFixed(2)}
}

type TrialBalance struct {
	FromDate     time.Time          `json:"from_date"`
	ToDate       time.Time          `json:"to_date"`
	CurrencyCode string             `json:"currency_code"`
	Rows         []*TrialBalanceRow `json:"rows"`
	TotalDebit   decimal.Decimal    `json:"total_debit"`
	TotalCredit  decimal.Decimal    `json:"total_credit"`
	Balanced     bool               `json:"balanced"`
}

var TrialBalanceHeadings = []string{"Combination", "Description", "Debit", "Credit"}

type trialBalanceSum struct {
	CombinationId  int
	CombinationKey string
	Description    string
	TotalDebit     decimal.Decimal
	TotalCredit    decimal.Decimal
}

// GetTrialBalance nets posted journal lines per combination between from and
// to inclusive. An empty currency covers every currency.
func GetTrialBalance(ctx context.Context, from, to time.Time, currency string) (*TrialBalance, error) {
	from, to = utils.DateOnly(from), utils.DateOnly(to)
	if to.Before(from) {
		return nil, utils.NewValidationError("to date must not be before from date")
	}
	key := cacheKey("TrialBalance", from.Format(time.DateOnly), to.Format(time.DateOnly), currency)
	return cached(key, func() (*TrialBalance, error) {
		started := time.Now()
		defer logSlowReport(ctx, "TrialBalance", started, nil)

		q := config.GetDB().WithContext(ctx).
			Table("journal_lines AS jl").
			Select(`jl.combination_id AS combination_id,
				sc.combination_key AS combination_key,
				sc.description AS description,
				SUM(CASE WHEN jl.type = ? THEN jl.amount ELSE 0 END) AS total_debit,
				SUM(CASE WHEN jl.type = ? THEN jl.amount ELSE 0 END) AS total_credit`,
				models.EntryTypeDebit, models.EntryTypeCredit).
			Joins("JOIN journal_entries AS je ON je.id = jl.entry_id").
			Joins("JOIN segment_combinations AS sc ON sc.id = jl.combination_id").
			Where("je.posted = ? AND je.date BETWEEN ? AND ?", true, from, to)
		if currency != "" {
			q = q.Where("je.currency_code = ?", currency)
		}
		var sums []trialBalanceSum
		if err := q.Group("jl.combination_id, sc.combination_key, sc.description").
			Order("sc.combination_key").
			Scan(&sums).Error; err != nil {
			return nil, err
		}
		tb := buildTrialBalance(sums)
		tb.FromDate, tb.ToDate, tb.CurrencyCode = from, to, currency
		return tb, nil
	})
}

// buildTrialBalance puts each combination's net balance on its natural side
// and drops combinations that net to zero.
func buildTrialBalance(sums []trialBalanceSum) *TrialBalance {
	tb := &TrialBalance{Rows: make([]*TrialBalanceRow, 0, len(sums))}
	for _, s := range sums {
		net := s.TotalDebit.Sub(s.TotalCredit)
		if net.IsZero() {
			continue
		}
		row := &TrialBalanceRow{
			CombinationId:  s.CombinationId,
			CombinationKey: s.CombinationKey,
			Description:    s.Description,
		}
		if net.IsPositive() {
			row.Debit = net
		} else {
			row.Credit = net.Neg()
		}
		tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
		tb.Rows = append(tb.Rows, row)
	}
	tb.Balanced = tb.TotalDebit.Equal(tb.TotalCredit)
	return tb
}
