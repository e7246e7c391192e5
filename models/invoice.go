package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	ContentTypePayableInvoice    = "ap_invoice"
	ContentTypeReceivableInvoice = "ar_invoice"
	ContentTypeOneTimeInvoice    = "one_time_supplier_invoice"
)

type Invoice struct {
	ID             int                  `gorm:"primary_key" json:"id"`
	InvoiceType    InvoiceType          `gorm:"size:20;not null;index" json:"invoice_type"`
	Number         string               `gorm:"size:50;not null;unique" json:"number"`
	PartnerId      int                  `gorm:"not null;index" json:"partner_id"`
	Partner        *BusinessPartner     `gorm:"foreignKey:PartnerId" json:"partner,omitempty"`
	Date           time.Time            `gorm:"type:date;not null;index" json:"date"`
	DueDate        *time.Time           `gorm:"type:date" json:"due_date"`
	CurrencyCode   string               `gorm:"size:3;not null" json:"currency_code"`
	Subtotal       decimal.Decimal      `gorm:"type:decimal(20,4);not null;default:0" json:"subtotal"`
	TaxAmount      decimal.Decimal      `gorm:"type:decimal(20,4);not null;default:0" json:"tax_amount"`
	Total          decimal.Decimal      `gorm:"type:decimal(20,4);not null;default:0" json:"total"`
	PaidAmount     decimal.Decimal      `gorm:"type:decimal(20,4);not null;default:0" json:"paid_amount"`
	ApprovalStatus ApprovalStatus       `gorm:"size:20;not null;default:'DRAFT';index" json:"approval_status"`
	PaymentStatus  InvoicePaymentStatus `gorm:"size:20;not null;default:'UNPAID';index" json:"payment_status"`
	JournalEntryId *int                 `json:"journal_entry_id"`
	PostingStatus  PostingStatus        `gorm:"size:20;not null;default:'NOT_POSTED'" json:"posting_status"`
	PostingError   string               `gorm:"type:text" json:"posting_error"`
	Memo           string               `gorm:"type:text" json:"memo"`
	Items          []InvoiceItem        `gorm:"foreignKey:InvoiceId" json:"items"`
	CreatedBy      int                  `json:"created_by"`
	UpdatedBy      int                  `json:"updated_by"`
	CreatedAt      time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

type InvoiceItem struct {
	ID            int             `gorm:"primary_key" json:"id"`
	InvoiceId     int             `gorm:"not null;index" json:"invoice_id"`
	Name          string          `gorm:"size:255;not null" json:"name"`
	Description   string          `gorm:"type:text" json:"description"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	CombinationId int             `gorm:"not null;index" json:"combination_id"`
}

type NewInvoice struct {
	InvoiceType  InvoiceType      `json:"invoice_type" validate:"required"`
	Number       string           `json:"number" validate:"max=50"`
	PartnerId    int              `json:"partner_id" validate:"required"`
	Date         time.Time        `json:"date" validate:"required"`
	DueDate      *time.Time       `json:"due_date"`
	CurrencyCode string           `json:"currency_code" validate:"required,len=3"`
	TaxAmount    decimal.Decimal  `json:"tax_amount"`
	Total        *decimal.Decimal `json:"total"`
	Memo         string           `json:"memo"`
	Items        []NewInvoiceItem `json:"items" validate:"required,min=1,dive"`
}

type NewInvoiceItem struct {
	Name          string          `json:"name" validate:"required"`
	Description   string          `json:"description"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	CombinationId int             `json:"combination_id"`
	Segments      []SegmentPair   `json:"segments"`
}

type InvoiceFilter struct {
	InvoiceType    *InvoiceType
	PartnerId      int
	ApprovalStatus *ApprovalStatus
	PaymentStatus  *InvoicePaymentStatus
}

// InvoicePostingPayload is the outbox payload that asks the worker to post
// an approved invoice's journal entry.
type InvoicePostingPayload struct {
	InvoiceId      int `json:"invoice_id"`
	JournalEntryId int `json:"journal_entry_id"`
}

func init() {
	for _, ct := range []string{ContentTypePayableInvoice, ContentTypeReceivableInvoice, ContentTypeOneTimeInvoice} {
		RegisterApprovable(ct, loadInvoiceApprovable)
	}
}

func loadInvoiceApprovable(ctx context.Context, tx *gorm.DB, id int) (Approvable, error) {
	return fetchModelForUpdate[Invoice](ctx, tx, id)
}

func (inv Invoice) Balance() decimal.Decimal {
	return inv.Total.Sub(inv.PaidAmount)
}

func (inv Invoice) PostingModule() PeriodModule {
	if inv.InvoiceType.IsPayable() {
		return PeriodModuleAP
	}
	return PeriodModuleAR
}

func (inv Invoice) defaultTransactionType() TransactionType {
	if inv.InvoiceType.IsPayable() {
		return TransactionTypeAPInvoice
	}
	return TransactionTypeARInvoice
}

func (item InvoiceItem) LineTotal() decimal.Decimal {
	return item.Quantity.Mul(item.UnitPrice)
}

// invoiceTotals returns subtotal and total. A caller supplied total must agree
// with the computed one within the money tolerance.
func invoiceTotals(items []InvoiceItem, tax decimal.Decimal, supplied *decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.LineTotal())
	}
	total := subtotal.Add(tax)
	if supplied != nil && !utils.WithinTolerance(*supplied, total) {
		return subtotal, total, utils.NewFieldValidationError(
			fmt.Sprintf("total %s does not match subtotal plus tax %s", supplied.StringFixed(2), total.StringFixed(2)),
			map[string]string{"total": "mismatch"})
	}
	return subtotal, total, nil
}

// invoiceJournalLines builds the balanced lines of an invoice entry. Payable
// invoices debit each item and credit the control account; receivable
// invoices do the opposite. Tax rides on the first item line.
func invoiceJournalLines(invoiceType InvoiceType, items []InvoiceItem, tax decimal.Decimal, controlCombinationId int) []JournalLine {
	itemSide, controlSide := EntryTypeCredit, EntryTypeDebit
	if invoiceType.IsPayable() {
		itemSide, controlSide = EntryTypeDebit, EntryTypeCredit
	}
	lines := make([]JournalLine, 0, len(items)+1)
	total := decimal.Zero
	for i, it := range items {
		amount := it.LineTotal()
		if i == 0 {
			amount = amount.Add(tax)
		}
		total = total.Add(amount)
		lines = append(lines, JournalLine{Amount: amount, Type: itemSide, CombinationId: it.CombinationId, Description: it.Name})
	}
	lines = append(lines, JournalLine{Amount: total, Type: controlSide, CombinationId: controlCombinationId, Description: "control"})
	return lines
}

func (inv Invoice) contentType() string {
	switch inv.InvoiceType {
	case InvoiceTypeAP:
		return ContentTypePayableInvoice
	case InvoiceTypeOneTimeSupplier:
		return ContentTypeOneTimeInvoice
	}
	return ContentTypeReceivableInvoice
}

func (input *NewInvoice) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.InvoiceType.IsValid() {
		return utils.NewFieldValidationError("invalid invoice type", map[string]string{"invoice_type": "oneof"})
	}
	if input.TaxAmount.IsNegative() {
		return utils.NewFieldValidationError("tax amount cannot be negative", map[string]string{"tax_amount": "gte"})
	}
	if input.DueDate != nil && input.DueDate.Before(input.Date) {
		return utils.NewFieldValidationError("due date is before invoice date", map[string]string{"due_date": "gtefield"})
	}
	for i, it := range input.Items {
		if !it.Quantity.IsPositive() {
			return utils.NewValidationError("item %d: quantity must be greater than zero", i+1)
		}
		if it.UnitPrice.IsNegative() {
			return utils.NewValidationError("item %d: unit price cannot be negative", i+1)
		}
		if it.CombinationId == 0 && len(it.Segments) == 0 {
			return utils.NewValidationError("item %d: combination or segments required", i+1)
		}
	}
	return nil
}

func CreateInvoice(ctx context.Context, input *NewInvoice) (*Invoice, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	var invoice Invoice
	err := runInTx(ctx, func(tx *gorm.DB) error {
		partner, err := fetchModel[BusinessPartner](ctx, tx, input.PartnerId)
		if err != nil {
			return err
		}
		if !partner.Active() {
			return utils.NewValidationError("business partner %s is inactive", partner.Name)
		}
		if input.InvoiceType.IsPayable() && !partner.Type.IsSupplier() {
			return utils.NewValidationError("business partner %s is not a supplier", partner.Name)
		}
		if !input.InvoiceType.IsPayable() && !partner.Type.IsCustomer() {
			return utils.NewValidationError("business partner %s is not a customer", partner.Name)
		}
		invoice = Invoice{
			InvoiceType:    input.InvoiceType,
			PartnerId:      partner.ID,
			Date:           utils.DateOnly(input.Date),
			DueDate:        input.DueDate,
			CurrencyCode:   strings.ToUpper(input.CurrencyCode),
			TaxAmount:      input.TaxAmount,
			ApprovalStatus: ApprovalStatusDraft,
			PaymentStatus:  InvoicePaymentStatusUnpaid,
			PostingStatus:  PostingStatusNotPosted,
			Memo:           input.Memo,
		}
		if err := ValidatePeriodOpen(ctx, tx, invoice.PostingModule(), invoice.Date); err != nil {
			return err
		}
		for i, in := range input.Items {
			combId := in.CombinationId
			if combId == 0 {
				comb, _, err := GetOrCreateCombination(ctx, tx, in.Segments, "")
				if err != nil {
					return fmt.Errorf("item %d: %w", i+1, err)
				}
				combId = comb.ID
			} else if _, err := fetchModel[SegmentCombination](ctx, tx, combId); err != nil {
				return fmt.Errorf("item %d: %w", i+1, err)
			}
			invoice.Items = append(invoice.Items, InvoiceItem{
				Name:          in.Name,
				Description:   in.Description,
				Quantity:      in.Quantity,
				UnitPrice:     in.UnitPrice,
				CombinationId: combId,
			})
		}
		invoice.Subtotal, invoice.Total, err = invoiceTotals(invoice.Items, invoice.TaxAmount, input.Total)
		if err != nil {
			return err
		}
		if !invoice.Total.IsPositive() {
			return utils.NewValidationError("invoice total must be greater than zero")
		}
		control, err := GetDefaultFor(ctx, invoice.defaultTransactionType())
		if err != nil {
			return err
		}
		entry := &JournalEntry{
			Date:         invoice.Date,
			CurrencyCode: invoice.CurrencyCode,
			Memo:         fmt.Sprintf("%s invoice", invoice.InvoiceType),
			SourceType:   string(OutboxReferenceInvoicePosting),
			Lines:        invoiceJournalLines(invoice.InvoiceType, invoice.Items, invoice.TaxAmount, control.CombinationId),
		}
		if !utils.WithinTolerance(entry.TotalDebit(), entry.TotalCredit()) {
			return utils.NewValidationError("invoice entry is unbalanced by %s", entry.Difference().StringFixed(2))
		}
		if err := createJournalEntryTx(ctx, tx, entry); err != nil {
			return err
		}
		invoice.JournalEntryId = &entry.ID
		invoice.Number = strings.TrimSpace(input.Number)
		if invoice.Number == "" {
			series := SeriesReceivableInvoice
			if invoice.InvoiceType.IsPayable() {
				series = SeriesPayableInvoice
			}
			if invoice.Number, err = nextDocumentNumber(ctx, tx, series); err != nil {
				return err
			}
		}
		if err := tx.Create(&invoice).Error; err != nil {
			if isDuplicateKeyError(err) {
				return utils.NewFieldValidationError("invoice number already exists", map[string]string{"number": "unique"})
			}
			return err
		}
		return tx.Model(entry).Update("SourceId", invoice.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return GetInvoice(ctx, invoice.ID)
}

func GetInvoice(ctx context.Context, id int) (*Invoice, error) {
	return fetchModel[Invoice](ctx, nil, id, "Items", "Partner")
}

func ListInvoices(ctx context.Context, filter InvoiceFilter) ([]*Invoice, error) {
	q := config.GetDB().WithContext(ctx)
	if filter.InvoiceType != nil {
		q = q.Where("invoice_type = ?", *filter.InvoiceType)
	}
	if filter.PartnerId > 0 {
		q = q.Where("partner_id = ?", filter.PartnerId)
	}
	if filter.ApprovalStatus != nil {
		q = q.Where("approval_status = ?", *filter.ApprovalStatus)
	}
	if filter.PaymentStatus != nil {
		q = q.Where("payment_status = ?", *filter.PaymentStatus)
	}
	var results []*Invoice
	err := q.Preload("Items").Order("date DESC, id DESC").Limit(config.ListLimit).Find(&results).Error
	return results, err
}

// DeleteInvoice removes a draft invoice and its unposted entry.
func DeleteInvoice(ctx context.Context, id int) (*Invoice, error) {
	var invoice *Invoice
	err := runInTx(ctx, func(tx *gorm.DB) error {
		var err error
		invoice, err = fetchModelForUpdate[Invoice](ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice.ApprovalStatus != ApprovalStatusDraft && invoice.ApprovalStatus != ApprovalStatusRejected {
			return utils.NewValidationError("only draft or rejected invoices can be deleted")
		}
		var allocations int64
		if err := tx.Model(&PaymentAllocation{}).Where("invoice_id = ?", id).Count(&allocations).Error; err != nil {
			return err
		}
		if allocations > 0 {
			return utils.NewValidationError("invoice has payment allocations")
		}
		if err := tx.Where("invoice_id = ?", id).Delete(&InvoiceItem{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(invoice).Error; err != nil {
			return err
		}
		if invoice.JournalEntryId != nil {
			if err := tx.Where("entry_id = ?", *invoice.JournalEntryId).Delete(&JournalLine{}).Error; err != nil {
				return err
			}
			return tx.Where("id = ? AND posted = ?", *invoice.JournalEntryId, false).Delete(&JournalEntry{}).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func SubmitInvoiceForApproval(ctx context.Context, id int) (*Invoice, error) {
	err := runInTx(ctx, func(tx *gorm.DB) error {
		invoice, err := fetchModelForUpdate[Invoice](ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice.ApprovalStatus != ApprovalStatusDraft && invoice.ApprovalStatus != ApprovalStatusRejected {
			return utils.NewValidationError("invoice is %s", invoice.ApprovalStatus)
		}
		if err := tx.Model(invoice).Update("ApprovalStatus", ApprovalStatusPendingApproval).Error; err != nil {
			return err
		}
		invoice.ApprovalStatus = ApprovalStatusPendingApproval
		_, err = StartWorkflow(ctx, tx, invoice)
		return err
	})
	if err != nil {
		return nil, err
	}
	return GetInvoice(ctx, id)
}

func (inv *Invoice) ApprovalContentType() string { return inv.contentType() }

func (inv *Invoice) ApprovalObjectId() int { return inv.ID }

func (inv *Invoice) ApprovalOwnerId() int { return inv.CreatedBy }

func (inv *Invoice) CanRestartApproval() error {
	if inv.PostingStatus != PostingStatusNotPosted && inv.PostingStatus != "" {
		return utils.NewValidationError("invoice %s is %s and cannot restart approval", inv.Number, inv.PostingStatus)
	}
	switch inv.ApprovalStatus {
	case ApprovalStatusPendingApproval, ApprovalStatusRejected:
		return nil
	}
	return utils.NewValidationError("invoice %s is %s and cannot restart approval", inv.Number, inv.ApprovalStatus)
}

func (inv *Invoice) OnApprovalStarted(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance) error {
	inv.ApprovalStatus = ApprovalStatusPendingApproval
	return tx.Model(inv).Update("ApprovalStatus", ApprovalStatusPendingApproval).Error
}

func (inv *Invoice) OnStageApproved(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance, stage *ApprovalWorkflowStageInstance) error {
	return nil
}

// OnFullyApproved queues the GL posting of the invoice's entry.
func (inv *Invoice) OnFullyApproved(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance) error {
	if err := tx.Model(inv).Updates(map[string]interface{}{
		"ApprovalStatus": ApprovalStatusApproved,
		"PostingStatus":  PostingStatusPosting,
	}).Error; err != nil {
		return err
	}
	inv.ApprovalStatus = ApprovalStatusApproved
	inv.PostingStatus = PostingStatusPosting
	if inv.JournalEntryId == nil {
		return fmt.Errorf("invoice %d has no journal entry", inv.ID)
	}
	payload := InvoicePostingPayload{InvoiceId: inv.ID, JournalEntryId: *inv.JournalEntryId}
	return PublishEvent(ctx, tx, inv.Date, inv.ID, OutboxReferenceInvoicePosting, payload, OutboxActionCreate)
}

func (inv *Invoice) OnRejected(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance, comment string) error {
	inv.ApprovalStatus = ApprovalStatusRejected
	return tx.Model(inv).Update("ApprovalStatus", ApprovalStatusRejected).Error
}

func (inv *Invoice) OnCancelled(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance, reason string) error {
	inv.ApprovalStatus = ApprovalStatusDraft
	return tx.Model(inv).Update("ApprovalStatus", ApprovalStatusDraft).Error
}

// PostInvoiceJournal posts an approved invoice's entry, records budget
// actuals and marks the invoice POSTED. Posting an already posted invoice is
// a no-op.
func PostInvoiceJournal(ctx context.Context, tx *gorm.DB, invoiceId int) error {
	invoice, err := fetchModelForUpdate[Invoice](ctx, tx, invoiceId)
	if err != nil {
		return err
	}
	if invoice.PostingStatus == PostingStatusPosted {
		return nil
	}
	if invoice.ApprovalStatus != ApprovalStatusApproved {
		return utils.NewValidationError("invoice %s is not approved", invoice.Number)
	}
	if invoice.JournalEntryId == nil {
		return fmt.Errorf("invoice %d has no journal entry", invoice.ID)
	}
	entry, err := fetchModelForUpdate[JournalEntry](ctx, tx, *invoice.JournalEntryId)
	if err != nil {
		return err
	}
	if err := tx.Where("entry_id = ?", entry.ID).Find(&entry.Lines).Error; err != nil {
		return err
	}
	if !entry.Posted {
		if err := postJournalEntryTx(ctx, tx, entry); err != nil {
			return err
		}
	}
	var items []InvoiceItem
	if err := tx.Where("invoice_id = ?", invoice.ID).Find(&items).Error; err != nil {
		return err
	}
	if invoice.InvoiceType.IsPayable() {
		for _, it := range items {
			segmentIds, err := combinationSegmentIds(ctx, tx, []int{it.CombinationId})
			if err != nil {
				return err
			}
			if err := ConsumeActual(ctx, tx, segmentIds, it.LineTotal(), invoice.Date); err != nil {
				return err
			}
		}
	}
	return tx.Model(invoice).Updates(map[string]interface{}{
		"PostingStatus": PostingStatusPosted,
		"PostingError":  "",
	}).Error
}

// MarkInvoicePostingFailed is called when the posting event is dead.
func MarkInvoicePostingFailed(ctx context.Context, invoiceId int, reason string) error {
	return runInTx(ctx, func(tx *gorm.DB) error {
		invoice, err := fetchModelForUpdate[Invoice](ctx, tx, invoiceId)
		if err != nil {
			return err
		}
		if invoice.PostingStatus == PostingStatusPosted {
			return nil
		}
		return tx.Model(invoice).Updates(map[string]interface{}{
			"PostingStatus": PostingStatusFailed,
			"PostingError":  reason,
		}).Error
	})
}

// RecordPayment adds amount to the paid amount. The paid amount cannot
// exceed the total.
func (inv *Invoice) RecordPayment(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return utils.NewValidationError("payment amount must be greater than zero")
	}
	if inv.PaidAmount.Add(amount).Sub(inv.Total).GreaterThan(utils.MoneyTolerance) {
		return utils.NewValidationError("payment %s exceeds invoice balance %s", amount.StringFixed(2), inv.Balance().StringFixed(2))
	}
	inv.PaidAmount = inv.PaidAmount.Add(amount)
	inv.UpdatePaymentStatus()
	return nil
}

// RefundPayment takes amount off the paid amount, never below zero.
func (inv *Invoice) RefundPayment(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return utils.NewValidationError("refund amount must be greater than zero")
	}
	if amount.Sub(inv.PaidAmount).GreaterThan(utils.MoneyTolerance) {
		return utils.NewValidationError("refund amount %s exceeds paid amount %s", amount.StringFixed(2), inv.PaidAmount.StringFixed(2))
	}
	inv.PaidAmount = decimal.Max(decimal.Zero, inv.PaidAmount.Sub(amount))
	inv.UpdatePaymentStatus()
	return nil
}

func (inv *Invoice) UpdatePaymentStatus() {
	switch {
	case inv.PaidAmount.IsPositive() && !inv.PaidAmount.LessThan(inv.Total.Sub(utils.MoneyTolerance)):
		inv.PaymentStatus = InvoicePaymentStatusPaid
	case inv.PaidAmount.IsPositive():
		inv.PaymentStatus = InvoicePaymentStatusPartiallyPaid
	default:
		inv.PaymentStatus = InvoicePaymentStatusUnpaid
	}
}

func (inv *Invoice) savePaid(tx *gorm.DB) error {
	return tx.Model(inv).Updates(map[string]interface{}{
		"PaidAmount":    inv.PaidAmount,
		"PaymentStatus": inv.PaymentStatus,
	}).Error
}

// RecalculatePaidAmount rebuilds the paid amount from the settlements of
// posted, non-voided payments.
func RecalculatePaidAmount(ctx context.Context, tx *gorm.DB, invoiceId int) (*Invoice, error) {
	run := func(tx *gorm.DB) (*Invoice, error) {
		invoice, err := fetchModelForUpdate[Invoice](ctx, tx, invoiceId)
		if err != nil {
			return nil, err
		}
		var sum struct{ Total decimal.Decimal }
		if err := tx.Model(&PaymentAllocation{}).
			Select("COALESCE(SUM(payment_allocations.allocated_amount + payment_allocations.discount_amount + payment_allocations.write_off_amount), 0) AS total").
			Joins("JOIN payments ON payments.id = payment_allocations.payment_id").
			Where("payment_allocations.invoice_id = ? AND payments.is_posted = ? AND payments.status <> ?", invoiceId, true, PaymentStatusVoided).
			Scan(&sum).Error; err != nil {
			return nil, err
		}
		invoice.PaidAmount = sum.Total
		invoice.UpdatePaymentStatus()
		if err := invoice.savePaid(tx); err != nil {
			return nil, err
		}
		return invoice, nil
	}
	if tx != nil {
		return run(tx.WithContext(ctx))
	}
	var invoice *Invoice
	err := runInTx(ctx, func(tx *gorm.DB) error {
		var err error
		invoice, err = run(tx)
		return err
	})
	return invoice, err
}

