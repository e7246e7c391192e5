package models

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type BankStatementLineMatch struct {
	ID                int             `gorm:"primary_key" json:"id"`
	StatementLineId   int             `gorm:"not null;index:uniq_line_payment,unique,priority:1" json:"statement_line_id"`
	PaymentId         int             `gorm:"not null;index:uniq_line_payment,unique,priority:2;index" json:"payment_id"`
	MatchedAmount     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"matched_amount"`
	DiscrepancyAmount decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discrepancy_amount"`
	MatchStatus       MatchStatus     `gorm:"size:20;not null;default:'SUGGESTED'" json:"match_status"`
	MatchType         MatchType       `gorm:"size:10;not null;default:'MANUAL'" json:"match_type"`
	Score             int             `gorm:"not null;default:0" json:"score"`
	Details           datatypes.JSON  `json:"details"`
	MatchedBy         *int            `json:"matched_by"`
	MatchedAt         *time.Time      `json:"matched_at"`
	Notes             string          `gorm:"type:text" json:"notes"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewStatementMatch struct {
	StatementLineId int              `json:"statement_line_id" validate:"required"`
	PaymentId       int              `json:"payment_id" validate:"required"`
	MatchedAmount   *decimal.Decimal `json:"matched_amount"`
	MatchStatus     MatchStatus      `json:"match_status"`
	Notes           string           `json:"notes"`
}

type ReconciliationSummary struct {
	StatementId         int             `json:"statement_id"`
	TotalLines          int             `json:"total_lines"`
	Reconciled          int             `json:"reconciled"`
	PartiallyReconciled int             `json:"partially_reconciled"`
	Unreconciled        int             `json:"unreconciled"`
	MatchedAmount       decimal.Decimal `json:"matched_amount"`
	UnmatchedAmount     decimal.Decimal `json:"unmatched_amount"`
	OpeningBalance      decimal.Decimal `json:"opening_balance"`
	ClosingBalance      decimal.Decimal `json:"closing_balance"`
	ComputedClosing     decimal.Decimal `json:"computed_closing"`
	Difference          decimal.Decimal `json:"difference"`
	Status              StatementStatus `json:"status"`
}

// effectiveMatchStatuses count toward reconciled amounts. Suggestions do not.
var effectiveMatchStatuses = []MatchStatus{MatchStatusPartial, MatchStatusMatched}

func (m BankStatementLineMatch) Effective() bool {
	return m.MatchStatus == MatchStatusPartial || m.MatchStatus == MatchStatusMatched
}

// directionCompatible pairs credit lines with incoming payments and debit
// lines with outgoing ones.
func directionCompatible(line BankStatementLine, direction PaymentDirection) bool {
	if line.IsCredit() {
		return direction == PaymentDirectionIncoming
	}
	return direction == PaymentDirectionOutgoing
}

// reconciliationStatusFor compares the effectively matched total with the
// amount to reconcile.
func reconciliationStatusFor(total, matched decimal.Decimal) ReconciliationStatus {
	switch {
	case !matched.IsPositive():
		return ReconciliationStatusUnreconciled
	case utils.WithinTolerance(total, matched) || matched.GreaterThan(total):
		return ReconciliationStatusReconciled
	default:
		return ReconciliationStatusPartiallyReconciled
	}
}

func statementStatusFor(lines []ReconciliationStatus, anyMatch bool) StatementStatus {
	if len(lines) > 0 {
		all := true
		for _, s := range lines {
			if s != ReconciliationStatusReconciled {
				all = false
				break
			}
		}
		if all {
			return StatementStatusReconciled
		}
	}
	if anyMatch {
		return StatementStatusInProgress
	}
	return StatementStatusNotStarted
}

func sumEffectiveMatched(tx *gorm.DB, column string, id int, excludeMatchId int) (decimal.Decimal, error) {
	q := tx.Model(&BankStatementLineMatch{}).
		Where(column+" = ? AND match_status IN ?", id, effectiveMatchStatuses)
	if excludeMatchId > 0 {
		q = q.Where("id <> ?", excludeMatchId)
	}
	var total decimal.Decimal
	if err := q.Select("COALESCE(SUM(matched_amount), 0)").Row().Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

type matchParties struct {
	line      *BankStatementLine
	statement *BankStatement
	payment   *Payment
}

// lockMatchParties locks the line and the payment, in that order, and checks
// they can be matched at all.
func lockMatchParties(ctx context.Context, tx *gorm.DB, lineId, paymentId int) (*matchParties, error) {
	line, err := fetchModelForUpdate[BankStatementLine](ctx, tx, lineId)
	if err != nil {
		return nil, err
	}
	stmt, err := fetchModel[BankStatement](ctx, tx, line.StatementId)
	if err != nil {
		return nil, err
	}
	payment, err := fetchModelForUpdate[Payment](ctx, tx, paymentId)
	if err != nil {
		return nil, err
	}
	if !payment.IsPosted || payment.Status == PaymentStatusVoided {
		return nil, utils.NewValidationError("payment %s must be posted and not voided", payment.PaymentNumber)
	}
	if !directionCompatible(*line, payment.Direction) {
		return nil, utils.NewValidationError("a %s line cannot match an %s payment",
			strings.ToLower(string(lineSide(*line))), strings.ToLower(string(payment.Direction)))
	}
	if payment.BankAccountId != stmt.BankAccountId {
		return nil, utils.NewValidationError("payment %s belongs to another bank account", payment.PaymentNumber)
	}
	return &matchParties{line: line, statement: stmt, payment: payment}, nil
}

func lineSide(line BankStatementLine) EntryType {
	if line.IsCredit() {
		return EntryTypeCredit
	}
	return EntryTypeDebit
}

// openAmounts returns what remains unmatched on the line and the payment,
// ignoring excludeMatchId.
func (p *matchParties) openAmounts(tx *gorm.DB, excludeMatchId int) (lineOpen, paymentOpen decimal.Decimal, err error) {
	lineMatched, err := sumEffectiveMatched(tx, "statement_line_id", p.line.ID, excludeMatchId)
	if err != nil {
		return
	}
	paymentMatched, err := sumEffectiveMatched(tx, "payment_id", p.payment.ID, excludeMatchId)
	if err != nil {
		return
	}
	return p.line.Amount().Abs().Sub(lineMatched), p.payment.Amount.Sub(paymentMatched), nil
}

func checkMatchCapacity(amount, lineOpen, paymentOpen decimal.Decimal) error {
	if amount.Sub(lineOpen).GreaterThan(utils.MoneyTolerance) {
		return utils.NewValidationError("matched amount %s exceeds the line's open amount %s", amount.StringFixed(2), lineOpen.StringFixed(2))
	}
	if amount.Sub(paymentOpen).GreaterThan(utils.MoneyTolerance) {
		return utils.NewValidationError("matched amount %s exceeds the payment's open amount %s", amount.StringFixed(2), paymentOpen.StringFixed(2))
	}
	return nil
}

func CreateMatch(ctx context.Context, input *NewStatementMatch) (*BankStatementLineMatch, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	status := input.MatchStatus
	if status == "" {
		status = MatchStatusMatched
	}
	if !status.IsValid() || status == MatchStatusUnmatched {
		return nil, utils.NewFieldValidationError("invalid match status", map[string]string{"match_status": "oneof"})
	}
	var match *BankStatementLineMatch
	err := runInTx(ctx, func(tx *gorm.DB) error {
		parties, err := lockMatchParties(ctx, tx, input.StatementLineId, input.PaymentId)
		if err != nil {
			return err
		}
		m := BankStatementLineMatch{
			StatementLineId: parties.line.ID,
			PaymentId:       parties.payment.ID,
			MatchStatus:     status,
			MatchType:       MatchTypeManual,
			Notes:           input.Notes,
		}
		match, err = createMatchTx(ctx, tx, parties, m, input.MatchedAmount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

// createMatchTx sizes the match, checks capacity for effective matches and
// refreshes every affected status.
func createMatchTx(ctx context.Context, tx *gorm.DB, parties *matchParties, m BankStatementLineMatch, amount *decimal.Decimal) (*BankStatementLineMatch, error) {
	lineOpen, paymentOpen, err := parties.openAmounts(tx, 0)
	if err != nil {
		return nil, err
	}
	if amount != nil {
		m.MatchedAmount = *amount
	} else {
		m.MatchedAmount = utils.MinDecimal(lineOpen, paymentOpen)
	}
	if !m.MatchedAmount.IsPositive() {
		return nil, utils.NewValidationError("nothing left to match on line %d or payment %s", parties.line.LineNumber, parties.payment.PaymentNumber)
	}
	if m.Effective() {
		if err := checkMatchCapacity(m.MatchedAmount, lineOpen, paymentOpen); err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		m.MatchedAt = &now
		m.MatchedBy = currentUserId(ctx)
	}
	err = tx.Create(&m).Error
	if isDuplicateKeyError(err) {
		return nil, utils.ConflictError("line %d is already matched to payment %s", parties.line.LineNumber, parties.payment.PaymentNumber)
	}
	if err != nil {
		return nil, err
	}
	if err := refreshMatchState(tx, parties.line.ID, parties.payment.ID); err != nil {
		return nil, err
	}
	return &m, nil
}

// lockMatchRows locks the line, the payment and then the match, the same
// order lockMatchParties and refreshMatchState use.
func lockMatchRows(ctx context.Context, tx *gorm.DB, matchId int) (*BankStatementLineMatch, error) {
	m, err := fetchModel[BankStatementLineMatch](ctx, tx, matchId)
	if err != nil {
		return nil, err
	}
	if _, err := fetchModelForUpdate[BankStatementLine](ctx, tx, m.StatementLineId); err != nil {
		return nil, err
	}
	if _, err := fetchModelForUpdate[Payment](ctx, tx, m.PaymentId); err != nil {
		return nil, err
	}
	return fetchModelForUpdate[BankStatementLineMatch](ctx, tx, matchId)
}

// lockMatch is lockMatchRows plus the checks a match must pass to count.
func lockMatch(ctx context.Context, tx *gorm.DB, matchId int) (*BankStatementLineMatch, *matchParties, error) {
	m, err := fetchModel[BankStatementLineMatch](ctx, tx, matchId)
	if err != nil {
		return nil, nil, err
	}
	parties, err := lockMatchParties(ctx, tx, m.StatementLineId, m.PaymentId)
	if err != nil {
		return nil, nil, err
	}
	m, err = fetchModelForUpdate[BankStatementLineMatch](ctx, tx, matchId)
	if err != nil {
		return nil, nil, err
	}
	return m, parties, nil
}

// ConfirmMatch turns a suggested or partial match into MATCHED.
func ConfirmMatch(ctx context.Context, matchId int) (*BankStatementLineMatch, error) {
	var result *BankStatementLineMatch
	err := runInTx(ctx, func(tx *gorm.DB) error {
		m, parties, err := lockMatch(ctx, tx, matchId)
		if err != nil {
			return err
		}
		if m.MatchStatus == MatchStatusMatched {
			return utils.ConflictError("match %d is already confirmed", m.ID)
		}
		lineOpen, paymentOpen, err := parties.openAmounts(tx, m.ID)
		if err != nil {
			return err
		}
		if err := checkMatchCapacity(m.MatchedAmount, lineOpen, paymentOpen); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.Model(m).Updates(map[string]interface{}{
			"MatchStatus": MatchStatusMatched,
			"MatchedAt":   &now,
			"MatchedBy":   currentUserId(ctx),
		}).Error; err != nil {
			return err
		}
		if err := refreshMatchState(tx, m.StatementLineId, m.PaymentId); err != nil {
			return err
		}
		result, err = fetchModel[BankStatementLineMatch](ctx, tx, m.ID)
		return err
	})
	return result, err
}

// RejectMatch marks a match UNMATCHED and keeps the row. Its amount stops
// counting toward the line and the payment.
func RejectMatch(ctx context.Context, matchId int, notes string) (*BankStatementLineMatch, error) {
	var result *BankStatementLineMatch
	err := runInTx(ctx, func(tx *gorm.DB) error {
		m, err := lockMatchRows(ctx, tx, matchId)
		if err != nil {
			return err
		}
		if m.MatchStatus == MatchStatusUnmatched {
			return utils.ConflictError("match %d is already rejected", m.ID)
		}
		updates := map[string]interface{}{
			"MatchStatus": MatchStatusUnmatched,
			"MatchedAt":   nil,
			"MatchedBy":   nil,
		}
		if notes = strings.TrimSpace(notes); notes != "" {
			updates["Notes"] = notes
		}
		if err := tx.Model(m).Updates(updates).Error; err != nil {
			return err
		}
		if err := refreshMatchState(tx, m.StatementLineId, m.PaymentId); err != nil {
			return err
		}
		result, err = fetchModel[BankStatementLineMatch](ctx, tx, m.ID)
		return err
	})
	return result, err
}

// DeleteMatch unmatches a line and a payment whatever the match status.
func DeleteMatch(ctx context.Context, matchId int) error {
	return runInTx(ctx, func(tx *gorm.DB) error {
		m, err := lockMatchRows(ctx, tx, matchId)
		if err != nil {
			return err
		}
		if err := tx.Delete(m).Error; err != nil {
			return err
		}
		return refreshMatchState(tx, m.StatementLineId, m.PaymentId)
	})
}

func ListLineMatches(ctx context.Context, lineId int) ([]*BankStatementLineMatch, error) {
	var matches []*BankStatementLineMatch
	err := config.GetDB().WithContext(ctx).Where("statement_line_id = ?", lineId).Order("id").Find(&matches).Error
	return matches, err
}

// refreshMatchState recomputes the line with its match discrepancies, the
// payment, and the statement owning the line.
func refreshMatchState(tx *gorm.DB, lineId, paymentId int) error {
	var line BankStatementLine
	if err := tx.First(&line, lineId).Error; err != nil {
		return err
	}
	lineMatched, err := sumEffectiveMatched(tx, "statement_line_id", lineId, 0)
	if err != nil {
		return err
	}
	lineAbs := line.Amount().Abs()
	if err := tx.Model(&line).Update("ReconciliationStatus", reconciliationStatusFor(lineAbs, lineMatched)).Error; err != nil {
		return err
	}
	if err := tx.Model(&BankStatementLineMatch{}).Where("statement_line_id = ?", lineId).
		Update("discrepancy_amount", lineAbs.Sub(lineMatched)).Error; err != nil {
		return err
	}

	var payment Payment
	if err := tx.First(&payment, paymentId).Error; err != nil {
		return err
	}
	paymentMatched, err := sumEffectiveMatched(tx, "payment_id", paymentId, 0)
	if err != nil {
		return err
	}
	if err := tx.Model(&payment).Update("ReconciliationStatus", reconciliationStatusFor(payment.Amount, paymentMatched)).Error; err != nil {
		return err
	}
	return refreshStatementStatus(tx, line.StatementId)
}

func refreshStatementStatus(tx *gorm.DB, statementId int) error {
	var statuses []ReconciliationStatus
	if err := tx.Model(&BankStatementLine{}).Where("statement_id = ?", statementId).
		Pluck("reconciliation_status", &statuses).Error; err != nil {
		return err
	}
	var matches int64
	if err := tx.Model(&BankStatementLineMatch{}).
		Joins("JOIN bank_statement_lines ON bank_statement_lines.id = bank_statement_line_matches.statement_line_id").
		Where("bank_statement_lines.statement_id = ? AND bank_statement_line_matches.match_status <> ?", statementId, MatchStatusUnmatched).
		Count(&matches).Error; err != nil {
		return err
	}
	return tx.Model(&BankStatement{}).Where("id = ?", statementId).
		Update("reconciliation_status", statementStatusFor(statuses, matches > 0)).Error
}

func summarizeStatement(stmt *BankStatement, matchedByLine map[int]decimal.Decimal) ReconciliationSummary {
	s := ReconciliationSummary{
		StatementId:     stmt.ID,
		TotalLines:      len(stmt.Lines),
		MatchedAmount:   decimal.Zero,
		UnmatchedAmount: decimal.Zero,
		OpeningBalance:  stmt.OpeningBalance,
		ClosingBalance:  stmt.ClosingBalance,
		Status:          stmt.ReconciliationStatus,
	}
	net := decimal.Zero
	for _, l := range stmt.Lines {
		switch l.ReconciliationStatus {
		case ReconciliationStatusReconciled:
			s.Reconciled++
		case ReconciliationStatusPartiallyReconciled:
			s.PartiallyReconciled++
		default:
			s.Unreconciled++
		}
		net = net.Add(l.Amount())
		matched := utils.MinDecimal(matchedByLine[l.ID], l.Amount().Abs())
		s.MatchedAmount = s.MatchedAmount.Add(matched)
		s.UnmatchedAmount = s.UnmatchedAmount.Add(l.Amount().Abs().Sub(matched))
	}
	s.ComputedClosing = stmt.OpeningBalance.Add(net)
	s.Difference = stmt.ClosingBalance.Sub(s.ComputedClosing)
	return s
}

func GetReconciliationSummary(ctx context.Context, statementId int) (*ReconciliationSummary, error) {
	stmt, err := GetBankStatement(ctx, statementId)
	if err != nil {
		return nil, err
	}
	matched := make(map[int]decimal.Decimal, len(stmt.Lines))
	for _, l := range stmt.Lines {
		for _, m := range l.Matches {
			if m.Effective() {
				matched[l.ID] = matched[l.ID].Add(m.MatchedAmount)
			}
		}
	}
	s := summarizeStatement(stmt, matched)
	return &s, nil
}
