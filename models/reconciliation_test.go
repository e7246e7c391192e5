package models

import (
	"testing"
	"time"

	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestBankAccountBalanceChange(t *testing.T) {
	a := BankAccount{AccountNumber: "001", CurrentBalance: dec("100")}
	require.NoError(t, a.applyBalanceChange(dec("50"), true))
	assert.True(t, a.CurrentBalance.Equal(dec("150")))
	require.NoError(t, a.applyBalanceChange(dec("150"), false))
	assert.True(t, a.CurrentBalance.IsZero())

	err := a.applyBalanceChange(dec("0.01"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient balance")
	assert.True(t, utils.IsValidationError(err))

	assert.Error(t, a.applyBalanceChange(dec("-1"), true))
}

func TestStatementLineAmountAndTotals(t *testing.T) {
	stmt := BankStatement{Lines: []BankStatementLine{
		{TransactionDate: day(5), CreditAmount: dec("500")},
		{TransactionDate: day(2), DebitAmount: dec("120.50")},
		{TransactionDate: day(9), DebitAmount: dec("10")},
	}}
	assert.True(t, stmt.Lines[0].Amount().Equal(dec("500")))
	assert.True(t, stmt.Lines[1].Amount().Equal(dec("-120.50")))
	assert.True(t, stmt.Lines[0].IsCredit())
	assert.False(t, stmt.Lines[1].IsCredit())

	statementTotals(&stmt)
	assert.Equal(t, 3, stmt.TransactionCount)
	assert.True(t, stmt.TotalDebits.Equal(dec("130.50")))
	assert.True(t, stmt.TotalCredits.Equal(dec("500")))
	assert.Equal(t, day(2), stmt.FromDate)
	assert.Equal(t, day(9), stmt.ToDate)
}

func TestNewStatementLineNeedsOneSide(t *testing.T) {
	assert.NoError(t, NewBankStatementLine{CreditAmount: dec("1")}.validate())
	assert.Error(t, NewBankStatementLine{}.validate())
	assert.Error(t, NewBankStatementLine{CreditAmount: dec("1"), DebitAmount: dec("1")}.validate())
	assert.Error(t, NewBankStatementLine{DebitAmount: dec("-1")}.validate())
}

func TestReconciliationStatusFor(t *testing.T) {
	assert.Equal(t, ReconciliationStatusUnreconciled, reconciliationStatusFor(dec("100"), dec("0")))
	assert.Equal(t, ReconciliationStatusPartiallyReconciled, reconciliationStatusFor(dec("100"), dec("40")))
	assert.Equal(t, ReconciliationStatusReconciled, reconciliationStatusFor(dec("100"), dec("100")))
	assert.Equal(t, ReconciliationStatusReconciled, reconciliationStatusFor(dec("100"), dec("99.995")))
}

func TestStatementStatusFor(t *testing.T) {
	assert.Equal(t, StatementStatusNotStarted, statementStatusFor(nil, false))
	assert.Equal(t, StatementStatusNotStarted,
		statementStatusFor([]ReconciliationStatus{ReconciliationStatusUnreconciled}, false))
	assert.Equal(t, StatementStatusInProgress,
		statementStatusFor([]ReconciliationStatus{ReconciliationStatusReconciled, ReconciliationStatusUnreconciled}, true))
	assert.Equal(t, StatementStatusReconciled,
		statementStatusFor([]ReconciliationStatus{ReconciliationStatusReconciled, ReconciliationStatusReconciled}, true))
}

func TestDirectionCompatible(t *testing.T) {
	credit := BankStatementLine{CreditAmount: dec("10")}
	debit := BankStatementLine{DebitAmount: dec("10")}
	assert.True(t, directionCompatible(credit, PaymentDirectionIncoming))
	assert.False(t, directionCompatible(credit, PaymentDirectionOutgoing))
	assert.True(t, directionCompatible(debit, PaymentDirectionOutgoing))
	assert.False(t, directionCompatible(debit, PaymentDirectionIncoming))
}

func TestCheckMatchCapacity(t *testing.T) {
	assert.NoError(t, checkMatchCapacity(dec("50"), dec("50"), dec("80")))
	assert.ErrorContains(t, checkMatchCapacity(dec("60"), dec("50"), dec("80")), "line's open amount")
	assert.ErrorContains(t, checkMatchCapacity(dec("60"), dec("100"), dec("55")), "payment's open amount")
}

func TestSummarizeStatement(t *testing.T) {
	stmt := BankStatement{
		ID:             4,
		OpeningBalance: dec("1000"),
		ClosingBalance: dec("1380"),
		Lines: []BankStatementLine{
			{ID: 1, CreditAmount: dec("500"), ReconciliationStatus: ReconciliationStatusReconciled},
			{ID: 2, DebitAmount: dec("100"), ReconciliationStatus: ReconciliationStatusPartiallyReconciled},
			{ID: 3, DebitAmount: dec("20"), ReconciliationStatus: ReconciliationStatusUnreconciled},
		},
	}
	s := summarizeStatement(&stmt, map[int]decimal.Decimal{1: dec("500"), 2: dec("60")})
	assert.Equal(t, 3, s.TotalLines)
	assert.Equal(t, 1, s.Reconciled)
	assert.Equal(t, 1, s.PartiallyReconciled)
	assert.Equal(t, 1, s.Unreconciled)
	assert.True(t, s.MatchedAmount.Equal(dec("560")))
	assert.True(t, s.UnmatchedAmount.Equal(dec("60")))
	assert.True(t, s.ComputedClosing.Equal(dec("1380")))
	assert.True(t, s.Difference.IsZero())
}

func paymentCandidate(id int, amount string, date time.Time, number, partner string) matchCandidate {
	return matchCandidate{
		Payment: Payment{
			ID:            id,
			PaymentNumber: number,
			Direction:     PaymentDirectionIncoming,
			Amount:        dec(amount),
			Date:          date,
		},
		PartnerName: partner,
		Open:        dec(amount),
	}
}

func TestScoreCandidate(t *testing.T) {
	line := BankStatementLine{
		TransactionDate: day(3),
		CreditAmount:    dec("500"),
		ReferenceNumber: "RCP-000001",
		Description:     "Transfer from ACME Ltd",
	}
	s := scoreCandidate(line, paymentCandidate(1, "500", day(2), "RCP-000001", "Acme Ltd"), 3)
	assert.Equal(t, 50, s.Amount)
	assert.Equal(t, 30, s.Reference)
	assert.Equal(t, 15, s.Date)
	assert.Equal(t, 10, s.Partner)
	assert.Equal(t, 105, s.Total)

	far := scoreCandidate(line, paymentCandidate(2, "499", day(20), "RCP-000009", "Other"), 3)
	assert.Equal(t, 0, far.Total)

	sameDay := scoreCandidate(BankStatementLine{TransactionDate: day(3), CreditAmount: dec("10"), Description: "paid RCP-000004"},
		paymentCandidate(3, "10", day(3), "RCP-000004", ""), 3)
	assert.Equal(t, 100, sameDay.Total)
}

func TestBestCandidate(t *testing.T) {
	line := BankStatementLine{TransactionDate: day(10), CreditAmount: dec("300")}
	candidates := []matchCandidate{
		paymentCandidate(1, "300", day(13), "RCP-000001", ""),
		paymentCandidate(2, "300", day(10), "RCP-000002", ""),
		paymentCandidate(3, "120", day(10), "RCP-000003", ""),
	}
	idx, score, ok := bestCandidate(line, candidates, map[int]bool{}, 3)
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 70, score.Total)

	idx, _, ok = bestCandidate(line, candidates, map[int]bool{2: true}, 3)
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	// amount only with no date score is not above the minimum
	_, _, ok = bestCandidate(line, candidates[:1], map[int]bool{}, 2)
	assert.False(t, ok)

	debit := BankStatementLine{TransactionDate: day(10), DebitAmount: dec("300")}
	_, _, ok = bestCandidate(debit, candidates, map[int]bool{}, 3)
	assert.False(t, ok)
}

func TestAutoMatchStatusHonoursThreshold(t *testing.T) {
	t.Setenv("AUTO_MATCH_CONFIRM_THRESHOLD", "")
	assert.Equal(t, MatchStatusSuggested, autoMatchStatus(110))
	t.Setenv("AUTO_MATCH_CONFIRM_THRESHOLD", "90")
	assert.Equal(t, MatchStatusMatched, autoMatchStatus(95))
	assert.Equal(t, MatchStatusSuggested, autoMatchStatus(80))
}
