package handlers

import (
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/shopspring/decimal"
)

func listBanks(c *gin.Context) {
	active, valid := queryBool(c, "active")
	if !valid {
		return
	}
	banks, err := models.ListBanks(c.Request.Context(), active != nil && *active)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, banks)
}

func bankHierarchy(c *gin.Context) {
	banks, err := models.GetBankHierarchy(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, banks)
}

func getBank(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	b, err := models.GetBank(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, b)
}

func bankSummary(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	s, err := models.GetBankSummary(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, s)
}

func createBank(c *gin.Context) {
	var in models.NewBank
	if !bind(c, &in) {
		return
	}
	b, err := models.CreateBank(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, b)
}

func updateBank(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in models.NewBank
	if !bind(c, &in) {
		return
	}
	b, err := models.UpdateBank(c.Request.Context(), id, &in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, b)
}

func setBankActive(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in activeInput
	if !bind(c, &in) {
		return
	}
	b, err := models.SetBankActive(c.Request.Context(), id, in.IsActive)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, b)
}

func listBankBranches(c *gin.Context) {
	bankId, valid := queryInt(c, "bank_id")
	if !valid {
		return
	}
	rows, err := models.ListBankBranches(c.Request.Context(), bankId)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func createBankBranch(c *gin.Context) {
	var in models.NewBankBranch
	if !bind(c, &in) {
		return
	}
	b, err := models.CreateBankBranch(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, b)
}

func updateBankBranch(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in models.NewBankBranch
	if !bind(c, &in) {
		return
	}
	b, err := models.UpdateBankBranch(c.Request.Context(), id, &in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, b)
}

func setBankBranchActive(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in activeInput
	if !bind(c, &in) {
		return
	}
	b, err := models.SetBankBranchActive(c.Request.Context(), id, in.IsActive)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, b)
}

func listBankAccounts(c *gin.Context) {
	branchId, valid := queryInt(c, "branch_id")
	if !valid {
		return
	}
	active, valid := queryBool(c, "active")
	if !valid {
		return
	}
	rows, err := models.ListBankAccounts(c.Request.Context(), branchId, active != nil && *active)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func getBankAccount(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	a, err := models.GetBankAccount(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, a)
}

func bankAccountBalance(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	s, err := models.GetBalanceSummary(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, s)
}

func createBankAccount(c *gin.Context) {
	var in models.NewBankAccount
	if !bind(c, &in) {
		return
	}
	a, err := models.CreateBankAccount(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, a)
}

func updateBankAccount(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in models.NewBankAccount
	if !bind(c, &in) {
		return
	}
	a, err := models.UpdateBankAccount(c.Request.Context(), id, &in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, a)
}

func setBankAccountActive(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in activeInput
	if !bind(c, &in) {
		return
	}
	a, err := models.SetBankAccountActive(c.Request.Context(), id, in.IsActive)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, a)
}

func freezeBankAccount(freeze bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := pathId(c, "id")
		if !valid {
			return
		}
		var (
			a   *models.BankAccount
			err error
		)
		if freeze {
			a, err = models.FreezeBankAccount(c.Request.Context(), id)
		} else {
			a, err = models.UnfreezeBankAccount(c.Request.Context(), id)
		}
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, a)
	}
}

func adjustBankBalance(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in struct {
		Amount   decimal.Decimal `json:"amount"`
		Increase bool            `json:"increase"`
	}
	if !bind(c, &in) {
		return
	}
	a, err := models.UpdateBankBalance(c.Request.Context(), id, in.Amount, in.Increase)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, a)
}

func listStatements(c *gin.Context) {
	accountId, valid := queryInt(c, "bank_account_id")
	if !valid {
		return
	}
	rows, err := models.ListBankStatements(c.Request.Context(), accountId)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func getStatement(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	s, err := models.GetBankStatement(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, s)
}

func createStatement(c *gin.Context) {
	var in models.NewBankStatement
	if !bind(c, &in) {
		return
	}
	s, err := models.CreateBankStatement(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, s)
}

func deleteStatement(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	if err := models.DeleteBankStatement(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"deleted": id})
}

// importHeaderFrom reads the statement header from multipart form fields.
func importHeaderFrom(c *gin.Context) (*models.StatementImportHeader, error) {
	accountId, err := strconv.Atoi(c.PostForm("bank_account_id"))
	if err != nil || accountId <= 0 {
		return nil, utils.NewFieldValidationError("invalid form", map[string]string{"bank_account_id": "required"})
	}
	h := &models.StatementImportHeader{
		BankAccountId:   accountId,
		StatementNumber: strings.TrimSpace(c.PostForm("statement_number")),
	}
	if v := strings.TrimSpace(c.PostForm("statement_date")); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return nil, utils.NewFieldValidationError("invalid form", map[string]string{"statement_date": "expected YYYY-MM-DD"})
		}
		h.StatementDate = &d
	}
	for field, dst := range map[string]*decimal.Decimal{"opening_balance": &h.OpeningBalance, "closing_balance": &h.ClosingBalance} {
		if v := strings.TrimSpace(c.PostForm(field)); v != "" {
			amount, err := utils.ParseAmount(v)
			if err != nil {
				return nil, utils.NewFieldValidationError("invalid form", map[string]string{field: err.Error()})
			}
			*dst = amount
		}
	}
	return h, nil
}

func formFile(c *gin.Context) (*multipart.FileHeader, multipart.File, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return nil, nil, false
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, "cannot read file: %s", err.Error())
		return nil, nil, false
	}
	return fh, f, true
}

func importStatement(c *gin.Context) {
	header, err := importHeaderFrom(c)
	if err != nil {
		fail(c, err)
		return
	}
	fh, f, valid := formFile(c)
	if !valid {
		return
	}
	defer f.Close()
	s, err := models.ImportStatement(c.Request.Context(), header, fh.Filename, f)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, s)
}

func previewStatement(c *gin.Context) {
	header, err := importHeaderFrom(c)
	if err != nil {
		fail(c, err)
		return
	}
	fh, f, valid := formFile(c)
	if !valid {
		return
	}
	defer f.Close()
	p, err := models.PreviewStatement(c.Request.Context(), header.BankAccountId, fh.Filename, f)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

func listStatementLines(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var status *models.ReconciliationStatus
	if v := queryString(c, "status"); v != nil {
		s := models.ReconciliationStatus(*v)
		status = &s
	}
	rows, err := models.ListStatementLines(c.Request.Context(), id, status)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func autoMatchStatement(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	res, err := models.AutoMatchStatement(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func reconciliationSummary(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	s, err := models.GetReconciliationSummary(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, s)
}

func listLineMatches(c *gin.Context) {
	lineId, valid := pathId(c, "lineId")
	if !valid {
		return
	}
	rows, err := models.ListLineMatches(c.Request.Context(), lineId)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func createMatch(c *gin.Context) {
	var in models.NewStatementMatch
	if !bind(c, &in) {
		return
	}
	m, err := models.CreateMatch(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, m)
}

func confirmMatch(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	m, err := models.ConfirmMatch(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, m)
}

type matchNotesInput struct {
	Notes string `json:"notes"`
}

func rejectMatch(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in matchNotesInput
	if !bindOptional(c, &in) {
		return
	}
	m, err := models.RejectMatch(c.Request.Context(), id, in.Notes)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, m)
}

type matchStatusInput struct {
	MatchStatus models.MatchStatus `json:"match_status" binding:"required"`
	Notes       string             `json:"notes"`
}

// updateMatchStatus moves a match to MATCHED (confirm) or UNMATCHED (reject).
func updateMatchStatus(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in matchStatusInput
	if !bind(c, &in) {
		return
	}
	var (
		m   *models.BankStatementLineMatch
		err error
	)
	switch in.MatchStatus {
	case models.MatchStatusMatched:
		m, err = models.ConfirmMatch(c.Request.Context(), id)
	case models.MatchStatusUnmatched:
		m, err = models.RejectMatch(c.Request.Context(), id, in.Notes)
	default:
		badRequest(c, "match_status must be %s or %s", models.MatchStatusMatched, models.MatchStatusUnmatched)
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, m)
}

func deleteMatch(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	if err := models.DeleteMatch(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"deleted": id})
}
