// Package statementimport turns bank statement files into typed lines.
// It has no database access; the models package saves what it returns.
package statementimport

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const PreviewLineCount = 10

var tracer = otel.Tracer("statementimport")

type LineType string

const (
	Debit  LineType = "DEBIT"
	Credit LineType = "CREDIT"
)

type Line struct {
	RowNumber       int              `json:"row_number"`
	LineNumber      int              `json:"line_number"`
	TransactionDate time.Time        `json:"transaction_date"`
	ValueDate       time.Time        `json:"value_date"`
	Type            LineType         `json:"transaction_type"`
	Amount          decimal.Decimal  `json:"amount"`
	Balance         *decimal.Decimal `json:"balance,omitempty"`
	ReferenceNumber string           `json:"reference_number"`
	Description     string           `json:"description"`
	PayeePayer      string           `json:"payee_payer"`
}

func (l Line) DebitAmount() decimal.Decimal {
	if l.Type == Debit {
		return l.Amount
	}
	return decimal.Zero
}

func (l Line) CreditAmount() decimal.Decimal {
	if l.Type == Credit {
		return l.Amount
	}
	return decimal.Zero
}

// RowError is a problem in one data row. Row is the spreadsheet row number
// (header is row 1); 0 means the whole file.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"error"`
}

func (e RowError) Error() string {
	if e.Row == 0 {
		return "file: " + e.Message
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

type Summary struct {
	TotalRows    int             `json:"total_rows"`
	ValidRows    int             `json:"valid_rows"`
	ErrorRows    int             `json:"error_rows"`
	TotalDebits  decimal.Decimal `json:"total_debits"`
	TotalCredits decimal.Decimal `json:"total_credits"`
	FromDate     *time.Time      `json:"from_date"`
	ToDate       *time.Time      `json:"to_date"`
}

type Result struct {
	Lines   []Line     `json:"lines"`
	Summary Summary    `json:"summary"`
	Errors  []RowError `json:"errors"`
}

func (r *Result) OK() bool { return len(r.Errors) == 0 }

func (r *Result) Preview() []Line {
	if len(r.Lines) <= PreviewLineCount {
		return r.Lines
	}
	return r.Lines[:PreviewLineCount]
}

// Err joins row errors into one error, or returns nil.
func (r *Result) Err() error {
	if r.OK() {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return fmt.Errorf("file has %d validation errors: %s", len(r.Errors), strings.Join(msgs, "; "))
}

// ParseFile reads and parses an uploaded statement.
func ParseFile(ctx context.Context, fileName string, r io.Reader) (*Result, error) {
	_, span := tracer.Start(ctx, "statementimport.ParseFile")
	defer span.End()
	span.SetAttributes(attribute.String("file.name", fileName))

	table, err := Read(fileName, r)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	result := Parse(table)
	span.SetAttributes(
		attribute.Int("rows.total", result.Summary.TotalRows),
		attribute.Int("rows.valid", result.Summary.ValidRows),
		attribute.Int("rows.error", result.Summary.ErrorRows),
	)
	return result, nil
}

type rowValues struct {
	lineNumber      *int
	transactionDate *time.Time
	valueDate       *time.Time
	debit           *decimal.Decimal
	credit          *decimal.Decimal
	amount          *decimal.Decimal
	balance         *decimal.Decimal
	txType          string
	description     string
	reference       string
	payeePayer      string
}

func Parse(t *Table) *Result {
	result := &Result{
		Summary: Summary{TotalDebits: decimal.Zero, TotalCredits: decimal.Zero},
	}
	cols := mapColumns(t.Header)
	if missing := missingColumns(cols); len(missing) > 0 {
		result.Errors = append(result.Errors, RowError{Message: "missing required columns: " + strings.Join(missing, ", ")})
		return result
	}

	for idx, row := range t.Rows {
		rowNum := idx + 2
		result.Summary.TotalRows++
		values, errs := readRow(t, cols, row)

		lineType, amount, ok := detectType(values)
		if !ok {
			continue
		}
		if values.transactionDate == nil {
			errs = append(errs, "missing or invalid transaction date")
		}
		if values.description == "" {
			errs = append(errs, "missing description")
		}
		if len(errs) > 0 {
			result.Summary.ErrorRows++
			for _, e := range errs {
				result.Errors = append(result.Errors, RowError{Row: rowNum, Message: e})
			}
			continue
		}

		line := Line{
			RowNumber:       rowNum,
			TransactionDate: *values.transactionDate,
			ValueDate:       *values.transactionDate,
			Type:            lineType,
			Amount:          amount,
			Balance:         values.balance,
			ReferenceNumber: values.reference,
			Description:     values.description,
			PayeePayer:      values.payeePayer,
		}
		if values.valueDate != nil {
			line.ValueDate = *values.valueDate
		}
		line.LineNumber = len(result.Lines) + 1
		if values.lineNumber != nil {
			line.LineNumber = *values.lineNumber
		}
		result.Lines = append(result.Lines, line)
		result.Summary.ValidRows++
		if lineType == Debit {
			result.Summary.TotalDebits = result.Summary.TotalDebits.Add(amount)
		} else {
			result.Summary.TotalCredits = result.Summary.TotalCredits.Add(amount)
		}
		if result.Summary.FromDate == nil || line.TransactionDate.Before(*result.Summary.FromDate) {
			d := line.TransactionDate
			result.Summary.FromDate = &d
		}
		if result.Summary.ToDate == nil || line.TransactionDate.After(*result.Summary.ToDate) {
			d := line.TransactionDate
			result.Summary.ToDate = &d
		}
	}
	return result
}

func readRow(t *Table, cols map[string]int, row []string) (rowValues, []string) {
	cell := func(col string) string {
		i, ok := cols[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	amount := func(col string) *decimal.Decimal {
		if d, err := utils.ParseAmount(cell(col)); err == nil {
			return &d
		}
		return nil
	}
	date := func(col string) *time.Time {
		if d, ok := ParseDate(cell(col), t.Serial); ok {
			return &d
		}
		return nil
	}

	var errs []string
	v := rowValues{
		transactionDate: date(colTransactionDate),
		valueDate:       date(colValueDate),
		debit:           amount(colDebit),
		credit:          amount(colCredit),
		amount:          amount(colAmount),
		balance:         amount(colBalance),
		txType:          strings.ToUpper(cell(colType)),
		description:     cell(colDescription),
		reference:       cell(colReference),
		payeePayer:      cell(colPayeePayer),
	}
	if s := cell(colLineNumber); s != "" {
		n, err := strconv.Atoi(strings.TrimSuffix(s, ".0"))
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid line number %q", s))
		} else {
			v.lineNumber = &n
		}
	}
	return v, errs
}

func nonZero(d *decimal.Decimal) bool {
	return d != nil && !d.IsZero()
}

func firstNonZero(ds ...*decimal.Decimal) (decimal.Decimal, bool) {
	for _, d := range ds {
		if nonZero(d) {
			return d.Abs(), true
		}
	}
	return decimal.Zero, false
}

// detectType prefers an explicit type column, then the debit and credit
// columns, then the sign of amount. ok is false for informational rows.
func detectType(v rowValues) (LineType, decimal.Decimal, bool) {
	if v.txType != "" {
		switch {
		case strings.Contains(v.txType, "DEBIT"), strings.Contains(v.txType, "DR"), strings.Contains(v.txType, "WITHDRAWAL"):
			a, ok := firstNonZero(v.amount, v.debit)
			return Debit, a, ok
		case strings.Contains(v.txType, "CREDIT"), strings.Contains(v.txType, "CR"), strings.Contains(v.txType, "DEPOSIT"):
			a, ok := firstNonZero(v.amount, v.credit)
			return Credit, a, ok
		}
	}
	if nonZero(v.debit) {
		return Debit, v.debit.Abs(), true
	}
	if nonZero(v.credit) {
		return Credit, v.credit.Abs(), true
	}
	if nonZero(v.amount) {
		if v.amount.IsNegative() {
			return Debit, v.amount.Abs(), true
		}
		return Credit, *v.amount, true
	}
	return "", decimal.Zero, false
}
