package models

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/statementimport"
	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BankStatement struct {
	ID                   int                 `gorm:"primary_key" json:"id"`
	BankAccountId        int                 `gorm:"not null;index:uniq_account_statement_number,unique,priority:1" json:"bank_account_id"`
	StatementNumber      string              `gorm:"size:50;not null;index:uniq_account_statement_number,unique,priority:2" json:"statement_number"`
	StatementDate        time.Time           `gorm:"type:date;not null" json:"statement_date"`
	FromDate             time.Time           `gorm:"type:date;not null" json:"from_date"`
	ToDate               time.Time           `gorm:"type:date;not null" json:"to_date"`
	OpeningBalance       decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"opening_balance"`
	ClosingBalance       decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"closing_balance"`
	TransactionCount     int                 `gorm:"not null;default:0" json:"transaction_count"`
	TotalDebits          decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"total_debits"`
	TotalCredits         decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"total_credits"`
	ImportFileName       string              `gorm:"size:255" json:"import_file_name"`
	ImportFileKey        string              `gorm:"size:500" json:"import_file_key"`
	ImportedAt           *time.Time          `json:"imported_at"`
	ImportedBy           *int                `json:"imported_by"`
	ReconciliationStatus StatementStatus     `gorm:"size:20;not null;default:'NOT_STARTED'" json:"reconciliation_status"`
	Lines                []BankStatementLine `gorm:"foreignKey:StatementId" json:"lines,omitempty"`
	CreatedBy            int                 `json:"created_by"`
	UpdatedBy            int                 `json:"updated_by"`
	CreatedAt            time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type BankStatementLine struct {
	ID                   int                      `gorm:"primary_key" json:"id"`
	StatementId          int                      `gorm:"not null;index" json:"statement_id"`
	LineNumber           int                      `gorm:"not null" json:"line_number"`
	TransactionDate      time.Time                `gorm:"type:date;not null;index" json:"transaction_date"`
	ValueDate            time.Time                `gorm:"type:date;not null" json:"value_date"`
	DebitAmount          decimal.Decimal          `gorm:"type:decimal(20,4);not null;default:0" json:"debit_amount"`
	CreditAmount         decimal.Decimal          `gorm:"type:decimal(20,4);not null;default:0" json:"credit_amount"`
	Balance              decimal.Decimal          `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`
	ReferenceNumber      string                   `gorm:"size:100;index" json:"reference_number"`
	Description          string                   `gorm:"type:text" json:"description"`
	PayeePayer           string                   `gorm:"size:200" json:"payee_payer"`
	ReconciliationStatus ReconciliationStatus     `gorm:"size:25;not null;default:'UNRECONCILED';index" json:"reconciliation_status"`
	Matches              []BankStatementLineMatch `gorm:"foreignKey:StatementLineId" json:"matches,omitempty"`
	CreatedAt            time.Time                `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time                `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBankStatement struct {
	BankAccountId   int                    `json:"bank_account_id" validate:"required"`
	StatementNumber string                 `json:"statement_number" validate:"required,max=50"`
	StatementDate   time.Time              `json:"statement_date" validate:"required"`
	OpeningBalance  decimal.Decimal        `json:"opening_balance"`
	ClosingBalance  decimal.Decimal        `json:"closing_balance"`
	Lines           []NewBankStatementLine `json:"lines" validate:"min=1,dive"`
}

type NewBankStatementLine struct {
	LineNumber      int             `json:"line_number"`
	TransactionDate time.Time       `json:"transaction_date" validate:"required"`
	ValueDate       *time.Time      `json:"value_date"`
	DebitAmount     decimal.Decimal `json:"debit_amount"`
	CreditAmount    decimal.Decimal `json:"credit_amount"`
	Balance         decimal.Decimal `json:"balance"`
	ReferenceNumber string          `json:"reference_number" validate:"max=100"`
	Description     string          `json:"description" validate:"required"`
	PayeePayer      string          `json:"payee_payer" validate:"max=200"`
}

// StatementImportHeader carries what the file cannot: the number and the
// balances printed on the statement.
type StatementImportHeader struct {
	BankAccountId   int             `json:"bank_account_id" validate:"required"`
	StatementNumber string          `json:"statement_number" validate:"max=50"`
	StatementDate   *time.Time      `json:"statement_date"`
	OpeningBalance  decimal.Decimal `json:"opening_balance"`
	ClosingBalance  decimal.Decimal `json:"closing_balance"`
}

type StatementPreview struct {
	Success    bool                       `json:"success"`
	Summary    statementimport.Summary    `json:"summary"`
	Lines      []statementimport.Line     `json:"lines_preview"`
	TotalLines int                        `json:"total_lines"`
	Errors     []statementimport.RowError `json:"errors"`
}

// Amount is signed: credits positive, debits negative.
func (l BankStatementLine) Amount() decimal.Decimal {
	return l.CreditAmount.Sub(l.DebitAmount)
}

func (l BankStatementLine) IsCredit() bool {
	return l.Amount().IsPositive()
}

func (input NewBankStatementLine) validate() error {
	if input.DebitAmount.IsNegative() || input.CreditAmount.IsNegative() {
		return utils.NewValidationError("line amounts cannot be negative")
	}
	if input.DebitAmount.IsPositive() == input.CreditAmount.IsPositive() {
		return utils.NewValidationError("a line needs exactly one of debit or credit")
	}
	return nil
}

// statementTotals fills the counters and the covered date range.
func statementTotals(stmt *BankStatement) {
	stmt.TransactionCount = len(stmt.Lines)
	stmt.TotalDebits, stmt.TotalCredits = decimal.Zero, decimal.Zero
	for i, l := range stmt.Lines {
		stmt.TotalDebits = stmt.TotalDebits.Add(l.DebitAmount)
		stmt.TotalCredits = stmt.TotalCredits.Add(l.CreditAmount)
		if i == 0 || l.TransactionDate.Before(stmt.FromDate) {
			stmt.FromDate = l.TransactionDate
		}
		if i == 0 || l.TransactionDate.After(stmt.ToDate) {
			stmt.ToDate = l.TransactionDate
		}
	}
}

func saveStatement(ctx context.Context, tx *gorm.DB, stmt *BankStatement) error {
	account, err := fetchModel[BankAccount](ctx, tx, stmt.BankAccountId)
	if err != nil {
		return err
	}
	if !account.Active() {
		return utils.NewValidationError("bank account %s is inactive", account.AccountNumber)
	}
	statementTotals(stmt)
	stmt.ReconciliationStatus = StatementStatusNotStarted
	err = tx.Create(stmt).Error
	if isDuplicateKeyError(err) {
		return utils.NewFieldValidationError("statement number already exists for this account", map[string]string{"statement_number": "unique"})
	}
	return err
}

func CreateBankStatement(ctx context.Context, input *NewBankStatement) (*BankStatement, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	stmt := BankStatement{
		BankAccountId:   input.BankAccountId,
		StatementNumber: strings.TrimSpace(input.StatementNumber),
		StatementDate:   utils.DateOnly(input.StatementDate),
		OpeningBalance:  input.OpeningBalance,
		ClosingBalance:  input.ClosingBalance,
	}
	for i, l := range input.Lines {
		if err := l.validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		valueDate := l.TransactionDate
		if l.ValueDate != nil {
			valueDate = *l.ValueDate
		}
		number := l.LineNumber
		if number == 0 {
			number = i + 1
		}
		stmt.Lines = append(stmt.Lines, BankStatementLine{
			LineNumber:           number,
			TransactionDate:      utils.DateOnly(l.TransactionDate),
			ValueDate:            utils.DateOnly(valueDate),
			DebitAmount:          l.DebitAmount,
			CreditAmount:         l.CreditAmount,
			Balance:              l.Balance,
			ReferenceNumber:      l.ReferenceNumber,
			Description:          l.Description,
			PayeePayer:           l.PayeePayer,
			ReconciliationStatus: ReconciliationStatusUnreconciled,
		})
	}
	if err := runInTx(ctx, func(tx *gorm.DB) error {
		return saveStatement(ctx, tx, &stmt)
	}); err != nil {
		return nil, err
	}
	return &stmt, nil
}

func statementLinesFromImport(lines []statementimport.Line) []BankStatementLine {
	result := make([]BankStatementLine, 0, len(lines))
	for _, l := range lines {
		balance := decimal.Zero
		if l.Balance != nil {
			balance = *l.Balance
		}
		result = append(result, BankStatementLine{
			LineNumber:           l.LineNumber,
			TransactionDate:      l.TransactionDate,
			ValueDate:            l.ValueDate,
			DebitAmount:          l.DebitAmount(),
			CreditAmount:         l.CreditAmount(),
			Balance:              balance,
			ReferenceNumber:      l.ReferenceNumber,
			Description:          l.Description,
			PayeePayer:           l.PayeePayer,
			ReconciliationStatus: ReconciliationStatusUnreconciled,
		})
	}
	return result
}

func parseStatementFile(ctx context.Context, fileName string, r io.Reader) (*statementimport.Result, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read upload: %w", err)
	}
	result, err := statementimport.ParseFile(ctx, fileName, bytes.NewReader(data))
	if err != nil {
		return nil, nil, utils.NewValidationError("%s", err.Error())
	}
	return result, data, nil
}

// ImportStatement saves a parsed statement file. Any row error rejects the
// whole file. The raw file is archived when storage is configured.
func ImportStatement(ctx context.Context, header *StatementImportHeader, fileName string, r io.Reader) (*BankStatement, error) {
	if err := utils.ValidateStruct(header); err != nil {
		return nil, err
	}
	if _, err := fetchModel[BankAccount](ctx, nil, header.BankAccountId); err != nil {
		return nil, err
	}
	result, data, err := parseStatementFile(ctx, fileName, r)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, utils.NewValidationError("%s", err.Error())
	}
	if len(result.Lines) == 0 {
		return nil, utils.NewValidationError("no valid transaction lines found in file")
	}

	now := time.Now().UTC()
	stmt := BankStatement{
		BankAccountId:   header.BankAccountId,
		StatementNumber: strings.TrimSpace(header.StatementNumber),
		StatementDate:   utils.DateOnly(now),
		OpeningBalance:  header.OpeningBalance,
		ClosingBalance:  header.ClosingBalance,
		ImportFileName:  filepath.Base(fileName),
		ImportedAt:      &now,
		ImportedBy:      currentUserId(ctx),
		Lines:           statementLinesFromImport(result.Lines),
	}
	if header.StatementDate != nil {
		stmt.StatementDate = utils.DateOnly(*header.StatementDate)
	}
	if stmt.StatementNumber == "" {
		stmt.StatementNumber = "IMP-" + now.Format("20060102-150405")
	}

	err = runInTx(ctx, func(tx *gorm.DB) error {
		if err := saveStatement(ctx, tx, &stmt); err != nil {
			return err
		}
		if !utils.StorageConfigured() {
			return nil
		}
		key := fmt.Sprintf("statements/%d/%s", stmt.BankAccountId, utils.GenerateUniqueFilename(fileName))
		if err := utils.UploadBytesToGCS(ctx, key, data, ""); err != nil {
			return fmt.Errorf("archive statement file: %w", err)
		}
		stmt.ImportFileKey = key
		return tx.Model(&stmt).Update("ImportFileKey", key).Error
	})
	if err != nil {
		config.LogError(config.GetLogger(), "models", "ImportStatement", fileName, header, err)
		return nil, err
	}
	return &stmt, nil
}

// PreviewStatement parses the file without saving anything.
func PreviewStatement(ctx context.Context, accountId int, fileName string, r io.Reader) (*StatementPreview, error) {
	if _, err := fetchModel[BankAccount](ctx, nil, accountId); err != nil {
		return nil, err
	}
	result, _, err := parseStatementFile(ctx, fileName, r)
	if err != nil {
		return nil, err
	}
	return &StatementPreview{
		Success:    result.OK(),
		Summary:    result.Summary,
		Lines:      result.Preview(),
		TotalLines: len(result.Lines),
		Errors:     result.Errors,
	}, nil
}

func GetBankStatement(ctx context.Context, id int) (*BankStatement, error) {
	var stmt BankStatement
	err := config.GetDB().WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_number, id") }).
		Preload("Lines.Matches").
		First(&stmt, id).Error
	if err != nil {
		return nil, notFound[BankStatement](err)
	}
	return &stmt, nil
}

func ListBankStatements(ctx context.Context, accountId int) ([]*BankStatement, error) {
	q := config.GetDB().WithContext(ctx)
	if accountId > 0 {
		q = q.Where("bank_account_id = ?", accountId)
	}
	var results []*BankStatement
	err := q.Order("statement_date DESC, id DESC").Limit(config.ListLimit).Find(&results).Error
	return results, err
}

func ListStatementLines(ctx context.Context, statementId int, status *ReconciliationStatus) ([]*BankStatementLine, error) {
	q := config.GetDB().WithContext(ctx).Where("statement_id = ?", statementId)
	if status != nil {
		q = q.Where("reconciliation_status = ?", *status)
	}
	var lines []*BankStatementLine
	err := q.Preload("Matches").Order("line_number, id").Find(&lines).Error
	return lines, err
}

// DeleteBankStatement removes a statement that has no matches yet.
func DeleteBankStatement(ctx context.Context, id int) error {
	var fileKey string
	err := runInTx(ctx, func(tx *gorm.DB) error {
		stmt, err := fetchModelForUpdate[BankStatement](ctx, tx, id)
		if err != nil {
			return err
		}
		var matches int64
		if err := tx.Model(&BankStatementLineMatch{}).
			Joins("JOIN bank_statement_lines ON bank_statement_lines.id = bank_statement_line_matches.statement_line_id").
			Where("bank_statement_lines.statement_id = ?", id).
			Count(&matches).Error; err != nil {
			return err
		}
		if matches > 0 {
			return utils.NewValidationError("statement %s has matches; unmatch first", stmt.StatementNumber)
		}
		if err := tx.Where("statement_id = ?", id).Delete(&BankStatementLine{}).Error; err != nil {
			return err
		}
		fileKey = stmt.ImportFileKey
		return tx.Delete(stmt).Error
	})
	if err != nil {
		return err
	}
	if fileKey != "" {
		if err := utils.DeleteFromGCS(ctx, fileKey); err != nil {
			config.LogError(config.GetLogger(), "models", "DeleteBankStatement", fileKey, id, err)
		}
	}
	return nil
}
