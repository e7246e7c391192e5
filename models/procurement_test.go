package models

import (
	"testing"
	"time"

	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poLine(number int, ordered, received string) PurchaseOrderLine {
	return PurchaseOrderLine{LineNumber: number, Quantity: dec(ordered), ReceivedQuantity: dec(received), UnitPrice: dec("2.5"), CombinationId: number}
}

func TestRequisitionTotals(t *testing.T) {
	lines := []PurchaseRequisitionLine{
		{Quantity: dec("3"), UnitPrice: dec("10"), CombinationId: 4},
		{Quantity: dec("1.5"), UnitPrice: dec("4"), CombinationId: 9},
		{Quantity: dec("2"), UnitPrice: dec("1"), CombinationId: 4},
	}
	assert.True(t, requisitionTotal(lines).Equal(dec("38")))

	byComb := amountsByCombination(lines)
	require.Len(t, byComb, 2)
	assert.True(t, byComb[4].Equal(dec("32")))
	assert.True(t, byComb[9].Equal(dec("6")))
	assert.Equal(t, []int{4, 9}, sortedKeys(byComb))
}

func TestReceiptStatus(t *testing.T) {
	cases := []struct {
		name  string
		lines []PurchaseOrderLine
		want  PurchaseOrderStatus
	}{
		{"nothing received", []PurchaseOrderLine{poLine(1, "5", "0"), poLine(2, "2", "0")}, PurchaseOrderStatusConfirmed},
		{"one line partial", []PurchaseOrderLine{poLine(1, "5", "2"), poLine(2, "2", "0")}, PurchaseOrderStatusPartiallyReceived},
		{"one line full", []PurchaseOrderLine{poLine(1, "5", "5"), poLine(2, "2", "0")}, PurchaseOrderStatusPartiallyReceived},
		{"all full", []PurchaseOrderLine{poLine(1, "5", "5"), poLine(2, "2", "2")}, PurchaseOrderStatusReceived},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, receiptStatus(tc.lines))
		})
	}
}

func TestPurchaseOrderLineReceivable(t *testing.T) {
	l := poLine(3, "10", "7")
	assert.True(t, l.OpenQuantity().Equal(dec("3")))
	assert.True(t, l.LineTotal().Equal(dec("25")))
	require.NoError(t, l.receivable(dec("3")))

	err := l.receivable(dec("3.5"))
	require.Error(t, err)
	assert.True(t, utils.IsValidationError(err))
	assert.Contains(t, err.Error(), "exceeds open quantity")

	assert.Error(t, l.receivable(dec("0")))
}

func TestNewPurchaseRequisitionValidate(t *testing.T) {
	valid := func() *NewPurchaseRequisition {
		return &NewPurchaseRequisition{
			Date:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			Title:        "Laptops",
			CurrencyCode: "USD",
			Lines:        []NewPurchaseRequisitionLine{{ItemName: "Laptop", Quantity: dec("2"), UnitPrice: dec("900"), CombinationId: 3}},
		}
	}
	require.NoError(t, valid().validate())

	noQty := valid()
	noQty.Lines[0].Quantity = dec("0")
	assert.Error(t, noQty.validate())

	noAccount := valid()
	noAccount.Lines[0].CombinationId = 0
	assert.Error(t, noAccount.validate())

	badPriority := valid()
	badPriority.Priority = Priority("SOMEDAY")
	assert.Error(t, badPriority.validate())

	early := valid()
	required := early.Date.AddDate(0, 0, -1)
	early.RequiredDate = &required
	assert.Error(t, early.validate())

	noLines := valid()
	noLines.Lines = nil
	assert.Error(t, noLines.validate())
}
