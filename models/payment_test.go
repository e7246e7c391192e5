package models

import (
	"testing"

	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayment() Payment {
	return Payment{
		ID:        1,
		Direction: PaymentDirectionIncoming,
		PartnerId: 7,
		Amount:    dec("1000"),
		Allocations: []PaymentAllocation{
			{InvoiceId: 1, AllocatedAmount: dec("400"), DiscountAmount: dec("10")},
		},
	}
}

func TestPaymentAllocationTotals(t *testing.T) {
	p := samplePayment()
	assert.True(t, p.TotalAllocated().Equal(dec("400")))
	assert.True(t, p.Unallocated().Equal(dec("600")))
	assert.False(t, p.IsFullyAllocated())

	p.Allocations = append(p.Allocations, PaymentAllocation{InvoiceId: 2, AllocatedAmount: dec("599.995")})
	assert.True(t, p.IsFullyAllocated())
	assert.True(t, p.Allocations[0].Settlement().Equal(dec("410")))
}

func TestValidateAllocation(t *testing.T) {
	p := samplePayment()
	inv := Invoice{
		Number:         "INV-000003",
		InvoiceType:    InvoiceTypeAR,
		PartnerId:      7,
		Total:          dec("500"),
		PaidAmount:     dec("100"),
		ApprovalStatus: ApprovalStatusApproved,
	}
	ok := NewPaymentAllocation{InvoiceId: 3, AllocatedAmount: dec("380"), DiscountAmount: dec("20")}
	require.NoError(t, validateAllocation(p, inv, ok))

	tests := []struct {
		name string
		mod  func(*Payment, *Invoice, *NewPaymentAllocation)
		msg  string
	}{
		{"payable invoice on incoming payment", func(_ *Payment, i *Invoice, _ *NewPaymentAllocation) { i.InvoiceType = InvoiceTypeAP }, "cannot settle"},
		{"zero allocation", func(_ *Payment, _ *Invoice, a *NewPaymentAllocation) { a.AllocatedAmount = dec("0") }, "greater than zero"},
		{"negative write-off", func(_ *Payment, _ *Invoice, a *NewPaymentAllocation) { a.WriteOffAmount = dec("-1") }, "cannot be negative"},
		{"other partner", func(_ *Payment, i *Invoice, _ *NewPaymentAllocation) { i.PartnerId = 8 }, "another partner"},
		{"unapproved invoice", func(_ *Payment, i *Invoice, _ *NewPaymentAllocation) { i.ApprovalStatus = ApprovalStatusDraft }, "not approved"},
		{"settlement over balance", func(_ *Payment, _ *Invoice, a *NewPaymentAllocation) { a.DiscountAmount = dec("30") }, "exceeds invoice"},
		{"over payment amount", func(p *Payment, i *Invoice, a *NewPaymentAllocation) {
			i.Total = dec("5000")
			a.AllocatedAmount = dec("700")
			a.DiscountAmount = dec("0")
		}, "exceed payment amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, inv, a := samplePayment(), inv, ok
			tt.mod(&p, &inv, &a)
			err := validateAllocation(p, inv, a)
			require.Error(t, err)
			assert.True(t, utils.IsValidationError(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestInvoiceMatchesDirection(t *testing.T) {
	assert.True(t, invoiceMatchesDirection(PaymentDirectionIncoming, InvoiceTypeAR))
	assert.False(t, invoiceMatchesDirection(PaymentDirectionIncoming, InvoiceTypeAP))
	assert.True(t, invoiceMatchesDirection(PaymentDirectionOutgoing, InvoiceTypeAP))
	assert.True(t, invoiceMatchesDirection(PaymentDirectionOutgoing, InvoiceTypeOneTimeSupplier))
	assert.False(t, invoiceMatchesDirection(PaymentDirectionOutgoing, InvoiceTypeAR))
}

func TestPaymentJournalLines(t *testing.T) {
	in := paymentJournalLines(PaymentDirectionIncoming, dec("250"), 11, 22)
	require.Len(t, in, 2)
	assert.Equal(t, EntryTypeDebit, in[0].Type)
	assert.Equal(t, 11, in[0].CombinationId)
	assert.Equal(t, EntryTypeCredit, in[1].Type)
	assert.Equal(t, 22, in[1].CombinationId)

	out := paymentJournalLines(PaymentDirectionOutgoing, dec("250"), 11, 33)
	assert.Equal(t, EntryTypeCredit, out[0].Type)
	assert.Equal(t, EntryTypeDebit, out[1].Type)
	entry := JournalEntry{Lines: out}
	assert.True(t, entry.IsBalanced())
}

func TestPaymentSeries(t *testing.T) {
	assert.Equal(t, SeriesPaymentIncoming, Payment{Direction: PaymentDirectionIncoming}.seriesName())
	assert.Equal(t, SeriesPaymentOutgoing, Payment{Direction: PaymentDirectionOutgoing}.seriesName())
}
