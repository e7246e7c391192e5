package statementimport

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	want := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2026-01-15", "15/01/2026", "01/15/2026", "15-01-2026", "2026/01/15", "2026.01.15", "15.01.2026", "15 Jan 2026", "15 January 2026"} {
		got, ok := ParseDate(in, false)
		require.True(t, ok, in)
		assert.True(t, got.Equal(want), "%s parsed as %s", in, got)
	}

	// ambiguous dates resolve day-first
	got, ok := ParseDate("02/03/2026", false)
	require.True(t, ok)
	assert.Equal(t, time.March, got.Month())

	_, ok = ParseDate("46037", false)
	assert.False(t, ok)
	got, ok = ParseDate("46037", true)
	require.True(t, ok)
	assert.Equal(t, 2026, got.Year())
}

func TestMapColumnsIgnoresCaseAndSeparators(t *testing.T) {
	cols := mapColumns([]string{"Trans Date", "NARRATIVE", "Debit_Amount", "credit amount", "Ref No"})
	assert.Equal(t, 0, cols[colTransactionDate])
	assert.Equal(t, 1, cols[colDescription])
	assert.Equal(t, 2, cols[colDebit])
	assert.Equal(t, 3, cols[colCredit])
	assert.Equal(t, 4, cols[colReference])
	assert.Empty(t, missingColumns(cols))
}

func TestParseMissingColumns(t *testing.T) {
	result := Parse(&Table{Header: []string{"Date", "Amount"}})
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "file: missing required columns: description", result.Errors[0].Error())

	result = Parse(&Table{Header: []string{"Date", "Description"}})
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "debit/credit or amount")
}

const sampleCSV = `Date,Description,Debit,Credit,Balance,Reference
2026-01-02,Opening balance,,,1000.00,
2026-01-03,Customer receipt,,500.00,1500.00,RCP-000001
2026-01-05,Supplier payment,"1,200.50",,299.50,PMT-000004
2026-01-04,Bank fee,10,,289.50,
`

func TestParseCSV(t *testing.T) {
	table, err := Read("statement.csv", strings.NewReader(sampleCSV))
	require.NoError(t, err)
	result := Parse(table)
	require.True(t, result.OK(), result.Errors)

	require.Len(t, result.Lines, 3)
	assert.Equal(t, 4, result.Summary.TotalRows)
	assert.Equal(t, 3, result.Summary.ValidRows)

	receipt := result.Lines[0]
	assert.Equal(t, Credit, receipt.Type)
	assert.Equal(t, 3, receipt.RowNumber)
	assert.Equal(t, 1, receipt.LineNumber)
	assert.True(t, receipt.CreditAmount().Equal(decimal.NewFromInt(500)))
	assert.True(t, receipt.DebitAmount().IsZero())
	assert.Equal(t, "RCP-000001", receipt.ReferenceNumber)
	assert.True(t, receipt.ValueDate.Equal(receipt.TransactionDate))

	assert.Equal(t, Debit, result.Lines[1].Type)
	assert.True(t, result.Lines[1].Amount.Equal(decimal.RequireFromString("1200.50")))

	assert.True(t, result.Summary.TotalDebits.Equal(decimal.RequireFromString("1210.50")))
	assert.True(t, result.Summary.TotalCredits.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 3, result.Summary.FromDate.Day())
	assert.Equal(t, 5, result.Summary.ToDate.Day())
}

func TestParseTypeColumnAndSignedAmount(t *testing.T) {
	table := &Table{
		Header: []string{"Date", "Details", "Type", "Amount"},
		Rows: [][]string{
			{"2026-02-01", "ATM", "DEBIT CARD", "40"},
			{"2026-02-02", "Salary", "CR", "900"},
			{"2026-02-03", "Refund", "", "15.25"},
			{"2026-02-04", "Charge", "", "(3.00)"},
		},
	}
	result := Parse(table)
	require.True(t, result.OK())
	require.Len(t, result.Lines, 4)
	assert.Equal(t, Debit, result.Lines[0].Type)
	assert.Equal(t, Credit, result.Lines[1].Type)
	assert.Equal(t, Credit, result.Lines[2].Type)
	assert.Equal(t, Debit, result.Lines[3].Type)
	assert.True(t, result.Lines[3].Amount.Equal(decimal.NewFromInt(3)))
}

func TestParseFormattedAmounts(t *testing.T) {
	table := &Table{
		Header: []string{"Date", "Description", "Type", "Amount"},
		Rows: [][]string{
			{"2026-02-01", "Invoice 12", "CR", "1.234,56"},
			{"2026-02-02", "Fees", "DR", "\u00a0€ 12,50"},
			{"2026-02-03", "Transfer", "CR", "$ 2,000.00"},
		},
	}
	result := Parse(table)
	require.True(t, result.OK())
	require.Len(t, result.Lines, 3)
	assert.True(t, result.Lines[0].Amount.Equal(decimal.RequireFromString("1234.56")))
	assert.True(t, result.Lines[1].Amount.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, result.Lines[2].Amount.Equal(decimal.NewFromInt(2000)))
}

func TestParseRowErrors(t *testing.T) {
	table := &Table{
		Header: []string{"Date", "Description", "Amount"},
		Rows: [][]string{
			{"2026-02-01", "ok", "10"},
			{"not a date", "bad date", "10"},
			{"2026-02-03", "", "5"},
			{"garbage", "no amount", ""},
		},
	}
	result := Parse(table)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "row 3: missing or invalid transaction date", result.Errors[0].Error())
	assert.Equal(t, "row 4: missing description", result.Errors[1].Error())
	assert.Equal(t, 2, result.Summary.ErrorRows)
	assert.Len(t, result.Lines, 1)
	assert.Error(t, result.Err())
}

func TestPreviewLimitsLines(t *testing.T) {
	table := &Table{Header: []string{"Date", "Description", "Amount"}}
	for i := 0; i < 15; i++ {
		table.Rows = append(table.Rows, []string{"2026-03-01", "line", "1"})
	}
	result := Parse(table)
	assert.Len(t, result.Lines, 15)
	assert.Len(t, result.Preview(), PreviewLineCount)
	assert.Equal(t, 15, result.Lines[14].LineNumber)
}

func TestReadRejectsUnknownExtension(t *testing.T) {
	_, err := Read("statement.pdf", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
