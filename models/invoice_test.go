package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleItems() []InvoiceItem {
	return []InvoiceItem{
		{Name: "paper", Quantity: dec("2"), UnitPrice: dec("12.50"), CombinationId: 11},
		{Name: "ink", Quantity: dec("1"), UnitPrice: dec("40"), CombinationId: 12},
	}
}

func TestInvoiceTotals(t *testing.T) {
	subtotal, total, err := invoiceTotals(sampleItems(), dec("6.50"), nil)
	require.NoError(t, err)
	assert.Equal(t, "65", subtotal.String())
	assert.Equal(t, "71.5", total.String())

	supplied := dec("71.51")
	_, _, err = invoiceTotals(sampleItems(), dec("6.50"), &supplied)
	assert.NoError(t, err)

	supplied = dec("72")
	_, _, err = invoiceTotals(sampleItems(), dec("6.50"), &supplied)
	assert.Error(t, err)
}

func TestInvoiceJournalLinesPayable(t *testing.T) {
	lines := invoiceJournalLines(InvoiceTypeAP, sampleItems(), dec("6.50"), 99)
	require.Len(t, lines, 3)
	assert.Equal(t, EntryTypeDebit, lines[0].Type)
	assert.Equal(t, "31.5", lines[0].Amount.String())
	assert.Equal(t, EntryTypeCredit, lines[2].Type)
	assert.Equal(t, 99, lines[2].CombinationId)
	assert.True(t, JournalEntry{Lines: lines}.IsBalanced())
}

func TestInvoiceJournalLinesReceivable(t *testing.T) {
	lines := invoiceJournalLines(InvoiceTypeAR, sampleItems(), decimal.Zero, 7)
	require.Len(t, lines, 3)
	assert.Equal(t, EntryTypeCredit, lines[0].Type)
	assert.Equal(t, EntryTypeDebit, lines[2].Type)
	assert.Equal(t, "65", lines[2].Amount.String())
	assert.True(t, JournalEntry{Lines: lines}.IsBalanced())
}

func TestInvoicePaymentTransitions(t *testing.T) {
	inv := Invoice{Total: dec("100")}
	require.NoError(t, inv.RecordPayment(dec("40")))
	assert.Equal(t, InvoicePaymentStatusPartiallyPaid, inv.PaymentStatus)
	assert.Equal(t, "60", inv.Balance().String())

	assert.Error(t, inv.RecordPayment(dec("60.02")))
	require.NoError(t, inv.RecordPayment(dec("60")))
	assert.Equal(t, InvoicePaymentStatusPaid, inv.PaymentStatus)

	assert.Error(t, inv.RefundPayment(dec("150")))
	require.NoError(t, inv.RefundPayment(dec("100")))
	assert.Equal(t, InvoicePaymentStatusUnpaid, inv.PaymentStatus)
	assert.True(t, inv.PaidAmount.IsZero())

	assert.Error(t, inv.RecordPayment(decimal.Zero))
}
