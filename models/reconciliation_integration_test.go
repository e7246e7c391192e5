package models_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconciliationFixture struct {
	account    *models.BankAccount
	statement  *models.BankStatement
	invoiced   *models.Payment
	deposit    *models.Payment
	supplies   *models.Payment
	unposted   *models.Payment
	invoiceRef *models.BankStatementLine
	depositRef *models.BankStatementLine
	spend      *models.BankStatementLine
}

func setupReconciliation(t *testing.T, env *integrationEnv) *reconciliationFixture {
	t.Helper()
	ctx := env.admin
	bank, err := models.CreateBank(ctx, &models.NewBank{BankName: "First Bank", BankCode: "FB01"})
	require.NoError(t, err)
	branch, err := models.CreateBankBranch(ctx, &models.NewBankBranch{BankId: bank.ID, BranchName: "Main", BranchCode: "MAIN"})
	require.NoError(t, err)
	account, err := models.CreateBankAccount(ctx, &models.NewBankAccount{
		BranchId:      branch.ID,
		AccountNumber: "001-2345",
		AccountName:   "Operating",
		AccountType:   models.BankAccountTypeCurrent,
		CurrencyCode:  "USD",
	})
	require.NoError(t, err)
	partner, err := models.CreateBusinessPartner(ctx, &models.NewBusinessPartner{Name: "Acme Trading", Type: models.PartnerTypeBoth})
	require.NoError(t, err)

	date := time.Date(2026, 4, 8, 0, 0, 0, 0, time.UTC)
	payment := func(direction models.PaymentDirection, amount int64, reference string) *models.Payment {
		p, err := models.CreatePayment(ctx, &models.NewPayment{
			Direction:     direction,
			PartnerId:     partner.ID,
			BankAccountId: account.ID,
			Date:          date,
			Amount:        decimal.NewFromInt(amount),
			CurrencyCode:  "USD",
			Reference:     reference,
		})
		require.NoError(t, err)
		return p
	}
	f := &reconciliationFixture{
		account:  account,
		invoiced: payment(models.PaymentDirectionIncoming, 500, "INV-1001"),
		deposit:  payment(models.PaymentDirectionIncoming, 300, ""),
		supplies: payment(models.PaymentDirectionOutgoing, 120, ""),
		unposted: payment(models.PaymentDirectionIncoming, 300, ""),
	}
	// Posting runs through approval and the GL; matching only needs the flag.
	require.NoError(t, config.GetDB().Model(&models.Payment{}).
		Where("id IN ?", []int{f.invoiced.ID, f.deposit.ID, f.supplies.ID}).
		UpdateColumns(map[string]interface{}{"is_posted": true, "status": models.PaymentStatusApproved}).Error)

	f.statement, err = models.CreateBankStatement(ctx, &models.NewBankStatement{
		BankAccountId:   account.ID,
		StatementNumber: "2026-04",
		StatementDate:   time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC),
		OpeningBalance:  decimal.NewFromInt(1000),
		ClosingBalance:  decimal.NewFromInt(1680),
		Lines: []models.NewBankStatementLine{
			{TransactionDate: date, CreditAmount: decimal.NewFromInt(500), ReferenceNumber: "INV-1001", Description: "Transfer from Acme Trading", PayeePayer: "Acme Trading"},
			{TransactionDate: date, CreditAmount: decimal.NewFromInt(300), Description: "Cash deposit"},
			{TransactionDate: date, DebitAmount: decimal.NewFromInt(120), Description: "Office supplies"},
		},
	})
	require.NoError(t, err)
	require.Len(t, f.statement.Lines, 3)
	f.invoiceRef, f.depositRef, f.spend = &f.statement.Lines[0], &f.statement.Lines[1], &f.statement.Lines[2]
	return f
}

type matchState struct {
	line      models.ReconciliationStatus
	payment   models.ReconciliationStatus
	statement models.StatementStatus
}

func (f *reconciliationFixture) state(t *testing.T, line *models.BankStatementLine, payment *models.Payment) matchState {
	t.Helper()
	stmt, err := models.GetBankStatement(context.Background(), f.statement.ID)
	require.NoError(t, err)
	p, err := models.GetPayment(context.Background(), payment.ID)
	require.NoError(t, err)
	s := matchState{payment: p.ReconciliationStatus, statement: stmt.ReconciliationStatus}
	for _, l := range stmt.Lines {
		if l.ID == line.ID {
			s.line = l.ReconciliationStatus
		}
	}
	return s
}

func TestIntegration_Reconciliation(t *testing.T) {
	env := integration(t)
	ctx := env.admin
	f := setupReconciliation(t, env)
	untouched := matchState{models.ReconciliationStatusUnreconciled, models.ReconciliationStatusUnreconciled, models.StatementStatusNotStarted}

	t.Run("manual match lifecycle", func(t *testing.T) {
		partial := decimal.NewFromInt(200)
		m, err := models.CreateMatch(ctx, &models.NewStatementMatch{
			StatementLineId: f.depositRef.ID,
			PaymentId:       f.deposit.ID,
			MatchedAmount:   &partial,
			MatchStatus:     models.MatchStatusPartial,
		})
		require.NoError(t, err)
		assert.Equal(t, matchState{
			models.ReconciliationStatusPartiallyReconciled,
			models.ReconciliationStatusPartiallyReconciled,
			models.StatementStatusInProgress,
		}, f.state(t, f.depositRef, f.deposit))

		_, err = models.CreateMatch(ctx, &models.NewStatementMatch{StatementLineId: f.depositRef.ID, PaymentId: f.deposit.ID})
		assert.True(t, errors.Is(err, utils.ErrorConflict), "a line and payment pair matches once")

		confirmed, err := models.ConfirmMatch(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MatchStatusMatched, confirmed.MatchStatus)
		assert.NotNil(t, confirmed.MatchedAt)
		_, err = models.ConfirmMatch(ctx, m.ID)
		assert.True(t, errors.Is(err, utils.ErrorConflict))

		rejected, err := models.RejectMatch(ctx, m.ID, "wrong deposit")
		require.NoError(t, err)
		assert.Equal(t, models.MatchStatusUnmatched, rejected.MatchStatus)
		assert.Equal(t, "wrong deposit", rejected.Notes)
		assert.Nil(t, rejected.MatchedAt)
		assert.Equal(t, untouched, f.state(t, f.depositRef, f.deposit))
		_, err = models.RejectMatch(ctx, m.ID, "")
		assert.True(t, errors.Is(err, utils.ErrorConflict))

		kept, err := models.ListLineMatches(ctx, f.depositRef.ID)
		require.NoError(t, err)
		require.Len(t, kept, 1, "rejecting keeps the row")
		require.NoError(t, models.DeleteMatch(ctx, m.ID))
		kept, err = models.ListLineMatches(ctx, f.depositRef.ID)
		require.NoError(t, err)
		assert.Empty(t, kept)

		full, err := models.CreateMatch(ctx, &models.NewStatementMatch{StatementLineId: f.depositRef.ID, PaymentId: f.deposit.ID})
		require.NoError(t, err)
		assert.Equal(t, models.MatchStatusMatched, full.MatchStatus)
		assert.True(t, full.MatchedAmount.Equal(decimal.NewFromInt(300)))
		assert.Equal(t, matchState{
			models.ReconciliationStatusReconciled,
			models.ReconciliationStatusReconciled,
			models.StatementStatusInProgress,
		}, f.state(t, f.depositRef, f.deposit))

		require.NoError(t, models.DeleteMatch(ctx, full.ID))
		assert.Equal(t, untouched, f.state(t, f.depositRef, f.deposit))
	})

	t.Run("match guards", func(t *testing.T) {
		tooMuch := decimal.NewFromInt(150)
		_, err := models.CreateMatch(ctx, &models.NewStatementMatch{StatementLineId: f.spend.ID, PaymentId: f.supplies.ID, MatchedAmount: &tooMuch})
		assert.True(t, utils.IsValidationError(err), "matched amount above the open amount")

		_, err = models.CreateMatch(ctx, &models.NewStatementMatch{StatementLineId: f.spend.ID, PaymentId: f.invoiced.ID})
		assert.True(t, utils.IsValidationError(err), "debit line against an incoming payment")

		_, err = models.CreateMatch(ctx, &models.NewStatementMatch{StatementLineId: f.depositRef.ID, PaymentId: f.unposted.ID})
		assert.True(t, utils.IsValidationError(err), "draft payments cannot match")

		_, err = models.CreateMatch(ctx, &models.NewStatementMatch{StatementLineId: f.depositRef.ID, PaymentId: f.deposit.ID, MatchStatus: models.MatchStatusUnmatched})
		assert.True(t, utils.IsValidationError(err), "a new match cannot start unmatched")

		kept, err := models.ListLineMatches(ctx, f.spend.ID)
		require.NoError(t, err)
		assert.Empty(t, kept)
	})

	t.Run("auto match then review", func(t *testing.T) {
		result, err := models.AutoMatchStatement(ctx, f.statement.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, result.LinesConsidered)
		assert.Equal(t, 3, result.Suggested)
		assert.Zero(t, result.Confirmed)
		require.Len(t, result.Matches, 3)

		byLine := make(map[int]*models.BankStatementLineMatch, len(result.Matches))
		for _, m := range result.Matches {
			assert.Equal(t, models.MatchStatusSuggested, m.MatchStatus)
			assert.Equal(t, models.MatchTypeAuto, m.MatchType)
			byLine[m.StatementLineId] = m
		}
		assert.Equal(t, f.invoiced.ID, byLine[f.invoiceRef.ID].PaymentId)
		assert.Equal(t, 110, byLine[f.invoiceRef.ID].Score)
		assert.Equal(t, f.deposit.ID, byLine[f.depositRef.ID].PaymentId)
		assert.Equal(t, f.supplies.ID, byLine[f.spend.ID].PaymentId)

		// Suggestions do not reconcile anything yet.
		assert.Equal(t, matchState{
			models.ReconciliationStatusUnreconciled,
			models.ReconciliationStatusUnreconciled,
			models.StatementStatusInProgress,
		}, f.state(t, f.invoiceRef, f.invoiced))

		_, err = models.ConfirmMatch(ctx, byLine[f.invoiceRef.ID].ID)
		require.NoError(t, err)
		_, err = models.RejectMatch(ctx, byLine[f.spend.ID].ID, "not ours")
		require.NoError(t, err)
		assert.Equal(t, models.ReconciliationStatusReconciled, f.state(t, f.invoiceRef, f.invoiced).payment)

		again, err := models.AutoMatchStatement(ctx, f.statement.ID)
		require.NoError(t, err)
		assert.Zero(t, again.LinesConsidered, "lines with any match row are left alone")
		assert.Empty(t, again.Matches)

		summary, err := models.GetReconciliationSummary(ctx, f.statement.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, summary.TotalLines)
		assert.Equal(t, 1, summary.Reconciled)
		assert.Equal(t, 2, summary.Unreconciled)
		assert.True(t, summary.MatchedAmount.Equal(decimal.NewFromInt(500)))
		assert.True(t, summary.UnmatchedAmount.Equal(decimal.NewFromInt(420)))
		assert.True(t, summary.ComputedClosing.Equal(decimal.NewFromInt(1680)))
		assert.True(t, summary.Difference.IsZero())
		assert.Equal(t, models.StatementStatusInProgress, summary.Status)
	})
}
