package models

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	scoreExactAmount  = 50
	scoreReference    = 30
	scoreDate         = 20
	scorePartnerName  = 10
	autoMatchMinScore = 50
	autoMatchLockTTL  = 2 * time.Minute
)

var reconciliationTracer = otel.Tracer("reconciliation")

// matchCandidate is a posted payment with what is still open on it.
type matchCandidate struct {
	Payment     Payment
	PartnerName string
	Open        decimal.Decimal
}

type matchScore struct {
	Total     int  `json:"total"`
	Amount    int  `json:"amount"`
	Reference int  `json:"reference"`
	Date      int  `json:"date"`
	Partner   int  `json:"partner"`
	DaysApart int  `json:"days_apart"`
	Exact     bool `json:"exact_amount"`
}

type AutoMatchResult struct {
	StatementId     int                       `json:"statement_id"`
	LinesConsidered int                       `json:"lines_considered"`
	Suggested       int                       `json:"suggested"`
	Confirmed       int                       `json:"confirmed"`
	Matches         []*BankStatementLineMatch `json:"matches"`
}

func daysBetween(a, b time.Time) int {
	d := utils.DateOnly(a).Sub(utils.DateOnly(b)).Hours() / 24
	if d < 0 {
		d = -d
	}
	return int(d)
}

// scoreCandidate rates how well a payment explains a statement line.
func scoreCandidate(line BankStatementLine, c matchCandidate, windowDays int) matchScore {
	var s matchScore
	if utils.WithinTolerance(line.Amount().Abs(), c.Open) {
		s.Amount = scoreExactAmount
		s.Exact = true
	}
	number := strings.ToLower(c.Payment.PaymentNumber)
	ref := strings.ToLower(strings.TrimSpace(line.ReferenceNumber))
	desc := strings.ToLower(line.Description)
	payRef := strings.ToLower(strings.TrimSpace(c.Payment.Reference))
	switch {
	case ref != "" && (ref == number || (payRef != "" && ref == payRef)):
		s.Reference = scoreReference
	case number != "" && strings.Contains(desc, number):
		s.Reference = scoreReference
	}
	s.DaysApart = daysBetween(line.TransactionDate, c.Payment.Date)
	if s.DaysApart <= windowDays {
		s.Date = scoreDate * (windowDays + 1 - s.DaysApart) / (windowDays + 1)
	}
	if name := strings.ToLower(strings.TrimSpace(c.PartnerName)); name != "" {
		if strings.Contains(desc, name) || strings.Contains(strings.ToLower(line.PayeePayer), name) {
			s.Partner = scorePartnerName
		}
	}
	s.Total = s.Amount + s.Reference + s.Date + s.Partner
	return s
}

type scoredCandidate struct {
	index int
	score matchScore
}

// bestCandidate picks the highest score above the minimum among candidates
// not used yet. Ties go to the closer date, then the lower payment id.
func bestCandidate(line BankStatementLine, candidates []matchCandidate, used map[int]bool, windowDays int) (int, matchScore, bool) {
	var scored []scoredCandidate
	for i, c := range candidates {
		if used[c.Payment.ID] || !directionCompatible(line, c.Payment.Direction) || !c.Open.IsPositive() {
			continue
		}
		s := scoreCandidate(line, c, windowDays)
		if s.Total > autoMatchMinScore {
			scored = append(scored, scoredCandidate{index: i, score: s})
		}
	}
	if len(scored) == 0 {
		return -1, matchScore{}, false
	}
	sort.SliceStable(scored, func(a, b int) bool {
		sa, sb := scored[a].score, scored[b].score
		if sa.Total != sb.Total {
			return sa.Total > sb.Total
		}
		if sa.DaysApart != sb.DaysApart {
			return sa.DaysApart < sb.DaysApart
		}
		return candidates[scored[a].index].Payment.ID < candidates[scored[b].index].Payment.ID
	})
	return scored[0].index, scored[0].score, true
}

func autoMatchStatus(score int) MatchStatus {
	threshold, ok := config.AutoMatchConfirmThreshold()
	if ok && decimal.NewFromInt(int64(score)).GreaterThanOrEqual(threshold) {
		return MatchStatusMatched
	}
	return MatchStatusSuggested
}

func loadMatchCandidates(tx *gorm.DB, accountId int) ([]matchCandidate, error) {
	var payments []Payment
	if err := tx.Preload("Partner").
		Where("bank_account_id = ? AND is_posted = ? AND status <> ? AND reconciliation_status <> ?",
			accountId, true, PaymentStatusVoided, ReconciliationStatusReconciled).
		Order("date, id").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	candidates := make([]matchCandidate, 0, len(payments))
	for _, p := range payments {
		matched, err := sumEffectiveMatched(tx, "payment_id", p.ID, 0)
		if err != nil {
			return nil, err
		}
		c := matchCandidate{Payment: p, Open: p.Amount.Sub(matched)}
		if p.Partner != nil {
			c.PartnerName = p.Partner.Name
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// AutoMatchStatement suggests one payment per unmatched line of the
// statement. Lines that already have a match, including a rejected one, are
// left alone.
func AutoMatchStatement(ctx context.Context, statementId int) (*AutoMatchResult, error) {
	ctx, span := reconciliationTracer.Start(ctx, "models.AutoMatchStatement")
	defer span.End()
	span.SetAttributes(attribute.Int("statement.id", statementId))

	result := &AutoMatchResult{StatementId: statementId}
	key := fmt.Sprintf("AutoMatch:%d", statementId)
	err := withLock(ctx, key, autoMatchLockTTL, func() error {
		return runInTx(ctx, func(tx *gorm.DB) error {
			stmt, err := fetchModelForUpdate[BankStatement](ctx, tx, statementId)
			if err != nil {
				return err
			}
			var lines []BankStatementLine
			if err := tx.Where("statement_id = ? AND reconciliation_status = ?", stmt.ID, ReconciliationStatusUnreconciled).
				Where("NOT EXISTS (SELECT 1 FROM bank_statement_line_matches m WHERE m.statement_line_id = bank_statement_lines.id)").
				Order("line_number, id").
				Find(&lines).Error; err != nil {
				return err
			}
			candidates, err := loadMatchCandidates(tx, stmt.BankAccountId)
			if err != nil {
				return err
			}
			window := config.AutoMatchDateWindowDays()
			used := make(map[int]bool)
			for _, line := range lines {
				result.LinesConsidered++
				idx, score, ok := bestCandidate(line, candidates, used, window)
				if !ok {
					continue
				}
				c := candidates[idx]
				used[c.Payment.ID] = true
				parties, err := lockMatchParties(ctx, tx, line.ID, c.Payment.ID)
				if err != nil {
					return err
				}
				details, err := json.Marshal(score)
				if err != nil {
					return err
				}
				m, err := createMatchTx(ctx, tx, parties, BankStatementLineMatch{
					StatementLineId: line.ID,
					PaymentId:       c.Payment.ID,
					MatchStatus:     autoMatchStatus(score.Total),
					MatchType:       MatchTypeAuto,
					Score:           score.Total,
					Details:         datatypes.JSON(details),
					Notes:           "auto-matched",
				}, nil)
				if err != nil {
					return err
				}
				if m.MatchStatus == MatchStatusMatched {
					result.Confirmed++
				} else {
					result.Suggested++
				}
				result.Matches = append(result.Matches, m)
			}
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("lines.considered", result.LinesConsidered),
		attribute.Int("matches.suggested", result.Suggested),
		attribute.Int("matches.confirmed", result.Confirmed),
	)
	return result, nil
}
