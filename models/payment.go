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

const ContentTypePayment = "payment"

type Payment struct {
	ID                     int                  `gorm:"primary_key" json:"id"`
	PaymentNumber          string               `gorm:"size:50;not null;unique" json:"payment_number"`
	Direction              PaymentDirection     `gorm:"size:10;not null;index" json:"direction"`
	PartnerId              int                  `gorm:"not null;index" json:"partner_id"`
	Partner                *BusinessPartner     `gorm:"foreignKey:PartnerId" json:"partner,omitempty"`
	BankAccountId          int                  `gorm:"not null;index" json:"bank_account_id"`
	Date                   time.Time            `gorm:"type:date;not null;index" json:"date"`
	Amount                 decimal.Decimal      `gorm:"type:decimal(20,4);not null" json:"amount"`
	CurrencyCode           string               `gorm:"size:3;not null" json:"currency_code"`
	Reference              string               `gorm:"size:100" json:"reference"`
	Status                 PaymentStatus        `gorm:"size:20;not null;default:'DRAFT';index" json:"status"`
	RejectionReason        string               `gorm:"type:text" json:"rejection_reason"`
	IsPosted               bool                 `gorm:"not null;default:false" json:"is_posted"`
	PostedDate             *time.Time           `json:"posted_date"`
	JournalEntryId         *int                 `json:"journal_entry_id"`
	ReversalJournalEntryId *int                 `json:"reversal_journal_entry_id"`
	VoidReason             string               `gorm:"type:text" json:"void_reason"`
	ReconciliationStatus   ReconciliationStatus `gorm:"size:25;not null;default:'UNRECONCILED'" json:"reconciliation_status"`
	Allocations            []PaymentAllocation  `gorm:"foreignKey:PaymentId" json:"allocations"`
	CreatedBy              int                  `json:"created_by"`
	UpdatedBy              int                  `json:"updated_by"`
	CreatedAt              time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

type PaymentAllocation struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PaymentId       int             `gorm:"not null;index:uniq_payment_invoice,unique,priority:1" json:"payment_id"`
	InvoiceId       int             `gorm:"not null;index:uniq_payment_invoice,unique,priority:2;index" json:"invoice_id"`
	AllocatedAmount decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"allocated_amount"`
	DiscountAmount  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discount_amount"`
	WriteOffAmount  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"write_off_amount"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewPayment struct {
	Direction     PaymentDirection `json:"direction" validate:"required"`
	PartnerId     int              `json:"partner_id" validate:"required"`
	BankAccountId int              `json:"bank_account_id" validate:"required"`
	Date          time.Time        `json:"date" validate:"required"`
	Amount        decimal.Decimal  `json:"amount"`
	CurrencyCode  string           `json:"currency_code" validate:"required,len=3"`
	Reference     string           `json:"reference" validate:"max=100"`
}

type NewPaymentAllocation struct {
	InvoiceId       int             `json:"invoice_id" validate:"required"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	WriteOffAmount  decimal.Decimal `json:"write_off_amount"`
}

type PaymentFilter struct {
	Direction     *PaymentDirection
	Status        *PaymentStatus
	PartnerId     int
	BankAccountId int
}

// PaymentPostingPayload is the outbox payload of payment posting and void
// events.
type PaymentPostingPayload struct {
	PaymentId int `json:"payment_id"`
}

func init() {
	RegisterApprovable(ContentTypePayment, func(ctx context.Context, tx *gorm.DB, id int) (Approvable, error) {
		return fetchModelForUpdate[Payment](ctx, tx, id)
	})
}

func (a PaymentAllocation) Settlement() decimal.Decimal {
	return a.AllocatedAmount.Add(a.DiscountAmount).Add(a.WriteOffAmount)
}

func (p Payment) TotalAllocated() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		total = total.Add(a.AllocatedAmount)
	}
	return total
}

func (p Payment) Unallocated() decimal.Decimal {
	return p.Amount.Sub(p.TotalAllocated())
}

func (p Payment) IsFullyAllocated() bool {
	return utils.WithinTolerance(p.Amount, p.TotalAllocated())
}

func (p Payment) seriesName() string {
	if p.Direction == PaymentDirectionIncoming {
		return SeriesPaymentIncoming
	}
	return SeriesPaymentOutgoing
}

// invoiceMatchesDirection: incoming payments settle receivable invoices,
// outgoing payments settle payable ones.
func invoiceMatchesDirection(direction PaymentDirection, invoiceType InvoiceType) bool {
	if direction == PaymentDirectionIncoming {
		return invoiceType == InvoiceTypeAR
	}
	return invoiceType.IsPayable()
}

// validateAllocation checks one allocation against the invoice balance and
// the payment's remaining amount.
func validateAllocation(p Payment, inv Invoice, in NewPaymentAllocation) error {
	if !invoiceMatchesDirection(p.Direction, inv.InvoiceType) {
		return utils.NewValidationError("%s payments cannot settle %s invoices", strings.ToLower(string(p.Direction)), inv.InvoiceType)
	}
	if !in.AllocatedAmount.IsPositive() {
		return utils.NewFieldValidationError("allocated amount must be greater than zero", map[string]string{"allocated_amount": "gt"})
	}
	if in.DiscountAmount.IsNegative() || in.WriteOffAmount.IsNegative() {
		return utils.NewValidationError("discount and write-off cannot be negative")
	}
	if inv.PartnerId != p.PartnerId {
		return utils.NewValidationError("invoice %s belongs to another partner", inv.Number)
	}
	if inv.ApprovalStatus != ApprovalStatusApproved {
		return utils.NewValidationError("invoice %s is not approved", inv.Number)
	}
	settlement := in.AllocatedAmount.Add(in.DiscountAmount).Add(in.WriteOffAmount)
	if settlement.Sub(inv.Balance()).GreaterThan(utils.MoneyTolerance) {
		return utils.NewValidationError("settlement %s exceeds invoice %s balance %s",
			settlement.StringFixed(2), inv.Number, inv.Balance().StringFixed(2))
	}
	if p.TotalAllocated().Add(in.AllocatedAmount).Sub(p.Amount).GreaterThan(utils.MoneyTolerance) {
		return utils.NewValidationError("allocations exceed payment amount %s", p.Amount.StringFixed(2))
	}
	return nil
}

func (input *NewPayment) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.Direction.IsValid() {
		return utils.NewFieldValidationError("invalid direction", map[string]string{"direction": "oneof"})
	}
	if input.Amount.IsNegative() {
		return utils.NewFieldValidationError("amount cannot be negative", map[string]string{"amount": "gte"})
	}
	return nil
}

func checkPaymentParties(ctx context.Context, tx *gorm.DB, input *NewPayment) error {
	partner, err := fetchModel[BusinessPartner](ctx, tx, input.PartnerId)
	if err != nil {
		return err
	}
	if input.Direction == PaymentDirectionIncoming && !partner.Type.IsCustomer() {
		return utils.NewValidationError("business partner %s is not a customer", partner.Name)
	}
	if input.Direction == PaymentDirectionOutgoing && !partner.Type.IsSupplier() {
		return utils.NewValidationError("business partner %s is not a supplier", partner.Name)
	}
	account, err := fetchModel[BankAccount](ctx, tx, input.BankAccountId)
	if err != nil {
		return err
	}
	if !account.Active() {
		return utils.NewValidationError("bank account %s is inactive", account.AccountNumber)
	}
	if !strings.EqualFold(account.CurrencyCode, input.CurrencyCode) {
		return utils.NewValidationError("bank account currency is %s", account.CurrencyCode)
	}
	return nil
}

func CreatePayment(ctx context.Context, input *NewPayment) (*Payment, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	payment := Payment{
		Direction:            input.Direction,
		PartnerId:            input.PartnerId,
		BankAccountId:        input.BankAccountId,
		Date:                 utils.DateOnly(input.Date),
		Amount:               input.Amount,
		CurrencyCode:         strings.ToUpper(input.CurrencyCode),
		Reference:            input.Reference,
		Status:               PaymentStatusDraft,
		ReconciliationStatus: ReconciliationStatusUnreconciled,
	}
	err := runInTx(ctx, func(tx *gorm.DB) error {
		if err := checkPaymentParties(ctx, tx, input); err != nil {
			return err
		}
		number, err := nextDocumentNumber(ctx, tx, payment.seriesName())
		if err != nil {
			return err
		}
		payment.PaymentNumber = number
		return tx.Create(&payment).Error
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// withDraftPayment locks a draft payment with its allocations and runs fn.
func withDraftPayment(ctx context.Context, id int, fn func(tx *gorm.DB, p *Payment) error) (*Payment, error) {
	err := runInTx(ctx, func(tx *gorm.DB) error {
		p, err := lockPayment(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.Status != PaymentStatusDraft {
			return utils.NewValidationError("payment %s is %s", p.PaymentNumber, p.Status)
		}
		return fn(tx, p)
	})
	if err != nil {
		return nil, err
	}
	return GetPayment(ctx, id)
}

func lockPayment(ctx context.Context, tx *gorm.DB, id int) (*Payment, error) {
	p, err := fetchModelForUpdate[Payment](ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Where("payment_id = ?", id).Order("id").Find(&p.Allocations).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func UpdatePayment(ctx context.Context, id int, input *NewPayment) (*Payment, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	return withDraftPayment(ctx, id, func(tx *gorm.DB, p *Payment) error {
		if input.Direction != p.Direction {
			return utils.NewValidationError("payment direction cannot change")
		}
		if err := checkPaymentParties(ctx, tx, input); err != nil {
			return err
		}
		if len(p.Allocations) > 0 && input.PartnerId != p.PartnerId {
			return utils.NewValidationError("remove allocations before changing the partner")
		}
		if input.Amount.Sub(p.TotalAllocated()).LessThan(utils.MoneyTolerance.Neg()) {
			return utils.NewValidationError("amount is below allocated total %s", p.TotalAllocated().StringFixed(2))
		}
		return tx.Model(p).Updates(map[string]interface{}{
			"PartnerId":     input.PartnerId,
			"BankAccountId": input.BankAccountId,
			"Date":          utils.DateOnly(input.Date),
			"Amount":        input.Amount,
			"CurrencyCode":  strings.ToUpper(input.CurrencyCode),
			"Reference":     input.Reference,
		}).Error
	})
}

func AddAllocation(ctx context.Context, paymentId int, input *NewPaymentAllocation) (*Payment, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	return withDraftPayment(ctx, paymentId, func(tx *gorm.DB, p *Payment) error {
		inv, err := fetchModel[Invoice](ctx, tx, input.InvoiceId)
		if err != nil {
			return err
		}
		if err := validateAllocation(*p, *inv, *input); err != nil {
			return err
		}
		err = tx.Create(&PaymentAllocation{
			PaymentId:       p.ID,
			InvoiceId:       inv.ID,
			AllocatedAmount: input.AllocatedAmount,
			DiscountAmount:  input.DiscountAmount,
			WriteOffAmount:  input.WriteOffAmount,
		}).Error
		if isDuplicateKeyError(err) {
			return utils.NewValidationError("invoice %s is already allocated on this payment", inv.Number)
		}
		return err
	})
}

func RemoveAllocation(ctx context.Context, paymentId int, allocationId int) (*Payment, error) {
	return withDraftPayment(ctx, paymentId, func(tx *gorm.DB, p *Payment) error {
		res := tx.Where("id = ? AND payment_id = ?", allocationId, paymentId).Delete(&PaymentAllocation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("payment allocation %w", utils.ErrorRecordNotFound)
		}
		return nil
	})
}

func GetPayment(ctx context.Context, id int) (*Payment, error) {
	return fetchModel[Payment](ctx, nil, id, "Allocations", "Partner")
}

func ListPayments(ctx context.Context, filter PaymentFilter) ([]*Payment, error) {
	q := config.GetDB().WithContext(ctx)
	if filter.Direction != nil {
		q = q.Where("direction = ?", *filter.Direction)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.PartnerId > 0 {
		q = q.Where("partner_id = ?", filter.PartnerId)
	}
	if filter.BankAccountId > 0 {
		q = q.Where("bank_account_id = ?", filter.BankAccountId)
	}
	var results []*Payment
	err := q.Preload("Allocations").Order("date DESC, id DESC").Limit(config.ListLimit).Find(&results).Error
	return results, err
}

func SubmitPayment(ctx context.Context, id int) (*Payment, error) {
	return withDraftPayment(ctx, id, func(tx *gorm.DB, p *Payment) error {
		if !p.Amount.IsPositive() {
			return utils.NewValidationError("payment amount must be greater than zero")
		}
		if p.Date.IsZero() {
			return utils.NewValidationError("payment date is required")
		}
		if len(p.Allocations) == 0 {
			return utils.NewValidationError("payment needs at least one allocation")
		}
		if err := tx.Model(p).Updates(map[string]interface{}{
			"Status":          PaymentStatusPendingApproval,
			"RejectionReason": "",
		}).Error; err != nil {
			return err
		}
		p.Status = PaymentStatusPendingApproval
		_, err := StartWorkflow(ctx, tx, p)
		return err
	})
}

func (p *Payment) ApprovalContentType() string { return ContentTypePayment }

func (p *Payment) ApprovalObjectId() int { return p.ID }

func (p *Payment) ApprovalOwnerId() int { return p.CreatedBy }

func (p *Payment) CanRestartApproval() error {
	if p.IsPosted {
		return utils.NewValidationError("payment %s is posted and cannot restart approval", p.PaymentNumber)
	}
	switch p.Status {
	case PaymentStatusPendingApproval, PaymentStatusRejected:
		return nil
	}
	return utils.NewValidationError("payment %s is %s and cannot restart approval", p.PaymentNumber, p.Status)
}

func (p *Payment) OnApprovalStarted(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance) error {
	p.Status = PaymentStatusPendingApproval
	return tx.Model(p).Update("Status", PaymentStatusPendingApproval).Error
}

func (p *Payment) OnStageApproved(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance, stage *ApprovalWorkflowStageInstance) error {
	return nil
}

func (p *Payment) OnFullyApproved(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance) error {
	p.Status = PaymentStatusApproved
	return tx.Model(p).Update("Status", PaymentStatusApproved).Error
}

func (p *Payment) OnRejected(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance, comment string) error {
	p.Status = PaymentStatusRejected
	return tx.Model(p).Updates(map[string]interface{}{
		"Status":          PaymentStatusRejected,
		"RejectionReason": comment,
	}).Error
}

func (p *Payment) OnCancelled(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance, reason string) error {
	p.Status = PaymentStatusDraft
	return tx.Model(p).Update("Status", PaymentStatusDraft).Error
}

// RejectPayment rejects a payment outside the workflow. A running workflow is
// cancelled first.
func RejectPayment(ctx context.Context, id int, reason string) (*Payment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, utils.NewFieldValidationError("rejection reason is required", map[string]string{"reason": "required"})
	}
	err := runInTx(ctx, func(tx *gorm.DB) error {
		p, err := fetchModelForUpdate[Payment](ctx, tx, id)
		if err != nil {
			return err
		}
		if p.Status != PaymentStatusPendingApproval && p.Status != PaymentStatusApproved {
			return utils.NewValidationError("payment %s is %s", p.PaymentNumber, p.Status)
		}
		if p.IsPosted {
			return utils.NewValidationError("posted payments cannot be rejected; void instead")
		}
		if err := CancelWorkflowFor(ctx, tx, p, "Rejected: "+reason); err != nil {
			return err
		}
		return tx.Model(p).Updates(map[string]interface{}{
			"Status":          PaymentStatusRejected,
			"RejectionReason": reason,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return GetPayment(ctx, id)
}

func RevertPaymentToDraft(ctx context.Context, id int) (*Payment, error) {
	err := runInTx(ctx, func(tx *gorm.DB) error {
		p, err := fetchModelForUpdate[Payment](ctx, tx, id)
		if err != nil {
			return err
		}
		if p.Status != PaymentStatusRejected && p.Status != PaymentStatusPendingApproval {
			return utils.NewValidationError("only rejected or pending payments can return to draft")
		}
		if err := CancelWorkflowFor(ctx, tx, p, "Reverted to draft"); err != nil {
			return err
		}
		return tx.Model(p).Updates(map[string]interface{}{
			"Status":          PaymentStatusDraft,
			"RejectionReason": "",
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return GetPayment(ctx, id)
}

// PostPayment applies an approved payment to its invoices and bank account
// and queues the GL entry.
func PostPayment(ctx context.Context, id int) (*Payment, error) {
	err := runInTx(ctx, func(tx *gorm.DB) error {
		p, err := lockPayment(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.Status != PaymentStatusApproved {
			return utils.NewValidationError("payment %s is %s", p.PaymentNumber, p.Status)
		}
		if p.IsPosted {
			return utils.ConflictError("payment %s is already posted", p.PaymentNumber)
		}
		module := PeriodModuleAR
		if p.Direction == PaymentDirectionOutgoing {
			module = PeriodModuleAP
		}
		if err := ValidatePeriodOpen(ctx, tx, module, p.Date); err != nil {
			return err
		}
		for _, a := range p.Allocations {
			inv, err := fetchModelForUpdate[Invoice](ctx, tx, a.InvoiceId)
			if err != nil {
				return err
			}
			if err := inv.RecordPayment(a.Settlement()); err != nil {
				return fmt.Errorf("invoice %s: %w", inv.Number, err)
			}
			if err := inv.savePaid(tx); err != nil {
				return err
			}
		}
		if _, err := updateBankBalance(ctx, tx, p.BankAccountId, p.Amount, p.Direction == PaymentDirectionIncoming); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.Model(p).Updates(map[string]interface{}{
			"IsPosted":   true,
			"PostedDate": &now,
		}).Error; err != nil {
			return err
		}
		return PublishEvent(ctx, tx, p.Date, p.ID, OutboxReferencePaymentPosting, PaymentPostingPayload{PaymentId: p.ID}, OutboxActionCreate)
	})
	if err != nil {
		return nil, err
	}
	return GetPayment(ctx, id)
}

// VoidPayment undoes a posted payment on invoices and the bank account and
// queues the reversing GL entry.
func VoidPayment(ctx context.Context, id int, reason string) (*Payment, error) {
	err := runInTx(ctx, func(tx *gorm.DB) error {
		p, err := lockPayment(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.Status == PaymentStatusVoided {
			return utils.ConflictError("payment %s is already voided", p.PaymentNumber)
		}
		if !p.IsPosted {
			return utils.NewValidationError("only posted payments can be voided")
		}
		var matches int64
		if err := tx.Model(&BankStatementLineMatch{}).Where("payment_id = ?", p.ID).Count(&matches).Error; err != nil {
			return err
		}
		if matches > 0 {
			return utils.NewValidationError("payment %s is matched to bank statement lines; unmatch first", p.PaymentNumber)
		}
		for _, a := range p.Allocations {
			inv, err := fetchModelForUpdate[Invoice](ctx, tx, a.InvoiceId)
			if err != nil {
				return err
			}
			if err := inv.RefundPayment(a.Settlement()); err != nil {
				return fmt.Errorf("invoice %s: %w", inv.Number, err)
			}
			if err := inv.savePaid(tx); err != nil {
				return err
			}
		}
		if _, err := updateBankBalance(ctx, tx, p.BankAccountId, p.Amount, p.Direction == PaymentDirectionOutgoing); err != nil {
			return err
		}
		if err := tx.Model(p).Updates(map[string]interface{}{
			"Status":     PaymentStatusVoided,
			"VoidReason": reason,
		}).Error; err != nil {
			return err
		}
		return PublishEvent(ctx, tx, time.Now().UTC(), p.ID, OutboxReferencePaymentVoid, PaymentPostingPayload{PaymentId: p.ID}, OutboxActionDelete)
	})
	if err != nil {
		return nil, err
	}
	return GetPayment(ctx, id)
}

// paymentJournalLines debits cash and credits the receivable control for
// incoming payments; outgoing payments mirror it.
func paymentJournalLines(direction PaymentDirection, amount decimal.Decimal, cashCombinationId, controlCombinationId int) []JournalLine {
	cashSide, controlSide := EntryTypeDebit, EntryTypeCredit
	if direction == PaymentDirectionOutgoing {
		cashSide, controlSide = EntryTypeCredit, EntryTypeDebit
	}
	return []JournalLine{
		{Amount: amount, Type: cashSide, CombinationId: cashCombinationId, Description: "cash"},
		{Amount: amount, Type: controlSide, CombinationId: controlCombinationId, Description: "control"},
	}
}

func paymentCombinations(ctx context.Context, tx *gorm.DB, p *Payment) (cash int, control int, err error) {
	account, err := fetchModel[BankAccount](ctx, tx, p.BankAccountId)
	if err != nil {
		return 0, 0, err
	}
	cashType, controlType := TransactionTypePaymentIncoming, TransactionTypeARInvoice
	if p.Direction == PaymentDirectionOutgoing {
		cashType, controlType = TransactionTypePaymentOutgoing, TransactionTypeAPInvoice
	}
	if account.CashCombinationId != nil {
		cash = *account.CashCombinationId
	} else {
		def, err := GetDefaultFor(ctx, cashType)
		if err != nil {
			return 0, 0, err
		}
		cash = def.CombinationId
	}
	def, err := GetDefaultFor(ctx, controlType)
	if err != nil {
		return 0, 0, err
	}
	return cash, def.CombinationId, nil
}

// PostPaymentJournal creates and posts the GL entry of a posted payment.
// A payment already carrying an entry, or voided before posting, is skipped.
func PostPaymentJournal(ctx context.Context, tx *gorm.DB, paymentId int) error {
	p, err := fetchModelForUpdate[Payment](ctx, tx, paymentId)
	if err != nil {
		return err
	}
	if p.JournalEntryId != nil || p.Status == PaymentStatusVoided || !p.IsPosted {
		return nil
	}
	cash, control, err := paymentCombinations(ctx, tx, p)
	if err != nil {
		return err
	}
	entry := &JournalEntry{
		Date:         p.Date,
		CurrencyCode: p.CurrencyCode,
		Memo:         "Payment " + p.PaymentNumber,
		SourceType:   string(OutboxReferencePaymentPosting),
		SourceId:     p.ID,
		Lines:        paymentJournalLines(p.Direction, p.Amount, cash, control),
	}
	if err := createJournalEntryTx(ctx, tx, entry); err != nil {
		return err
	}
	if err := postJournalEntryTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Model(p).Update("JournalEntryId", entry.ID).Error
}

// ReversePaymentJournal posts the reversing entry of a voided payment.
func ReversePaymentJournal(ctx context.Context, tx *gorm.DB, paymentId int) error {
	p, err := fetchModelForUpdate[Payment](ctx, tx, paymentId)
	if err != nil {
		return err
	}
	if p.Status != PaymentStatusVoided || p.JournalEntryId == nil || p.ReversalJournalEntryId != nil {
		return nil
	}
	original, err := fetchModel[JournalEntry](ctx, tx, *p.JournalEntryId, "Lines")
	if err != nil {
		return err
	}
	rev, err := reverseJournalEntryTx(ctx, tx, original, time.Now().UTC(), "Void of payment "+p.PaymentNumber)
	if err != nil {
		return err
	}
	return tx.Model(p).Update("ReversalJournalEntryId", rev.ID).Error
}
