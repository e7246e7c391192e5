package models

import (
	"encoding/json"
	"fmt"
	"slices"
)

// enumValid reports whether v is one of allowed. Each enum type exposes it as IsValid.
func enumValid[T ~string](v T, allowed []T) bool {
	return slices.Contains(allowed, v)
}

// unmarshalEnum rejects JSON strings outside allowed so handlers return 400.
func unmarshalEnum[T ~string](data []byte, dest *T, name string, allowed []T) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%s must be string", name)
	}
	v := T(s)
	if v != "" && !enumValid(v, allowed) {
		return fmt.Errorf("invalid %s %q", name, s)
	}
	*dest = v
	return nil
}

// ---- approval

type DecisionPolicy string

const (
	DecisionPolicyAll    DecisionPolicy = "ALL"
	DecisionPolicyAny    DecisionPolicy = "ANY"
	DecisionPolicyQuorum DecisionPolicy = "QUORUM"
)

var decisionPolicies = []DecisionPolicy{DecisionPolicyAll, DecisionPolicyAny, DecisionPolicyQuorum}

func (t DecisionPolicy) IsValid() bool { return enumValid(t, decisionPolicies) }

func (t *DecisionPolicy) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, t, "decision policy", decisionPolicies)
}

type WorkflowStatus string

const (
	WorkflowStatusPending    WorkflowStatus = "pending"
	WorkflowStatusInProgress WorkflowStatus = "in_progress"
	WorkflowStatusApproved   WorkflowStatus = "approved"
	WorkflowStatusRejected   WorkflowStatus = "rejected"
	WorkflowStatusCancelled  WorkflowStatus = "cancelled"
)

// IsFinished is true for approved, rejected and cancelled instances.
func (t WorkflowStatus) IsFinished() bool {
	return t == WorkflowStatusApproved || t == WorkflowStatusRejected || t == WorkflowStatusCancelled
}

type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusActive    StageStatus = "active"
	StageStatusCompleted StageStatus = "completed"
	StageStatusSkipped   StageStatus = "skipped"
	StageStatusCancelled StageStatus = "cancelled"
)

type AssignmentStatus string

const (
	AssignmentStatusPending   AssignmentStatus = "pending"
	AssignmentStatusApproved  AssignmentStatus = "approved"
	AssignmentStatusRejected  AssignmentStatus = "rejected"
	AssignmentStatusDelegated AssignmentStatus = "delegated"
)

type ApprovalActionType string

const (
	ApprovalActionApprove  ApprovalActionType = "approve"
	ApprovalActionReject   ApprovalActionType = "reject"
	ApprovalActionDelegate ApprovalActionType = "delegate"
	ApprovalActionComment  ApprovalActionType = "comment"
)

var approvalActionTypes = []ApprovalActionType{ApprovalActionApprove, ApprovalActionReject, ApprovalActionDelegate, ApprovalActionComment}

func (t ApprovalActionType) IsValid() bool { return enumValid(t, approvalActionTypes) }

// ---- gl

type SegmentNodeType string

const (
	SegmentNodeParent    SegmentNodeType = "parent"
	SegmentNodeSubParent SegmentNodeType = "sub_parent"
	SegmentNodeChild     SegmentNodeType = "child"
)

var segmentNodeTypes = []SegmentNodeType{SegmentNodeParent, SegmentNodeSubParent, SegmentNodeChild}

func (t SegmentNodeType) IsValid() bool { return enumValid(t, segmentNodeTypes) }

func (t *SegmentNodeType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, t, "node type", segmentNodeTypes)
}

type EntryType string

const (
	EntryTypeDebit  EntryType = "DEBIT"
	EntryTypeCredit EntryType = "CREDIT"
)

var entryTypes = []EntryType{EntryTypeDebit, EntryTypeCredit}

func (t EntryType) IsValid() bool { return enumValid(t, entryTypes) }

func (t *EntryType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, t, "entry type", entryTypes)
}

type TransactionType string

const (
	TransactionTypeAPInvoice       TransactionType = "AP_INVOICE"
	TransactionTypeARInvoice       TransactionType = "AR_INVOICE"
	TransactionTypePaymentIncoming TransactionType = "PAYMENT_INCOMING"
	TransactionTypePaymentOutgoing TransactionType = "PAYMENT_OUTGOING"
)

var transactionTypes = []TransactionType{TransactionTypeAPInvoice, TransactionTypeARInvoice, TransactionTypePaymentIncoming, TransactionTypePaymentOutgoing}

func AllTransactionTypes() []TransactionType { return slices.Clone(transactionTypes) }

func (t TransactionType) IsValid() bool { return enumValid(t, transactionTypes) }

func (t *TransactionType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, t, "transaction type", transactionTypes)
}

// ---- period

type PeriodModule string

const (
	PeriodModuleAR PeriodModule = "AR"
	PeriodModuleAP PeriodModule = "AP"
	PeriodModuleGL PeriodModule = "GL"
)

var periodModules = []PeriodModule{PeriodModuleAR, PeriodModuleAP, PeriodModuleGL}

func (t PeriodModule) IsValid() bool { return enumValid(t, periodModules) }

func (t *PeriodModule) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, t, "period module", periodModules)
}

type PeriodState string

const (
	PeriodStateOpen   PeriodState = "open"
	PeriodStateClosed PeriodState = "closed"
)

// ---- partners

type PartnerType string

const (
	PartnerTypeSupplier PartnerType = "SUPPLIER"
	PartnerTypeCustomer PartnerType = "CUSTOMER"
	PartnerTypeBoth     PartnerType = "BOTH"
)

var partnerTypes = []PartnerType{PartnerTypeSupplier, PartnerTypeCustomer, PartnerTypeBoth}

func (t PartnerType) IsValid() bool { return enumValid(t, partnerTypes) }

func (t *PartnerType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, t, "partner type", partnerTypes)
}

func (t PartnerType) IsSupplier() bool { return t == PartnerTypeSupplier || t == PartnerTypeBoth }

func (t PartnerType) IsCustomer() bool { return t == PartnerTypeCustomer || t == PartnerTypeBoth }

// ---- invoices

type InvoiceType string

const (
	InvoiceTypeAP              InvoiceType = "AP"
	InvoiceTypeAR              InvoiceType = "AR"
	InvoiceTypeOneTimeSupplier InvoiceType = "ONE_TIME_SUPPLIER"
)

var invoiceTypes = []InvoiceType{InvoiceTypeAP, InvoiceTypeAR, InvoiceTypeOneTimeSupplier}

func (t InvoiceType) IsValid() bool { return enumValid(t, invoiceTypes) }

func (t *InvoiceType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, t, "invoice type", invoiceTypes)
}

// IsPayable is true for supplier side invoices.
func (t InvoiceType) IsPayable() bool { return t == InvoiceTypeAP || t == InvoiceTypeOneTimeSupplier }

type ApprovalStatus string

const (
	ApprovalStatusDraft           ApprovalStatus = "DRAFT"
	ApprovalStatusPendingApproval ApprovalStatus = "PENDING_APPROVAL"
	ApprovalStatusApproved        ApprovalStatus = "APPROVED"
	ApprovalStatusRejected        ApprovalStatus = "REJECTED"
)

type InvoicePaymentStatus string

const (
	InvoicePaymentStatusUnpaid        InvoicePaymentStatus = "UNPAID"
	InvoicePaymentStatusPartiallyPaid InvoicePaymentStatus = "PARTIALLY_PAID"
	InvoicePaymentStatusPaid          InvoicePaymentStatus = "PAID"
)

type PostingStatus string

const (
	PostingStatusNotPosted PostingStatus = "NOT_POSTED"
	PostingStatusPosting   PostingStatus = "POSTING"
	PostingStatusPosted    PostingStatus = "POSTED"
	PostingStatusFailed    PostingStatus = "FAILED"
)

// ---- payments

type PaymentDirection string

const (
	PaymentDirectionIncoming PaymentDirection = "INCOMING"
	PaymentDirectionOutgoing PaymentDirection = "OUTGOING"
)

var paymentDirections = []PaymentDirection{PaymentDirectionIncoming, PaymentDirectionOutgoing}

func (t PaymentDirection) IsValid() bool { return enumValid(t, paymentDirections) }

func (t *PaymentDirection) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, t, "payment direction", paymentDirections)
}

type PaymentStatus string

const (
	PaymentStatusDraft           PaymentStatus = "DRAFT"
	PaymentStatusPendingApproval PaymentStatus = "PENDING_APPROVAL"
	PaymentStatusApproved        PaymentStatus = "APPROVED"
	PaymentStatusRejected        PaymentStatus = "REJECTED"
	PaymentStatusVoided          PaymentStatus = "VOIDED"
)

type ReconciliationStatus string

const (
	ReconciliationStatusUnreconciled        ReconciliationStatus = "UNRECONCILED"
	ReconciliationStatusPartiallyReconciled ReconciliationStatus = "PARTIALLY_RECONCILED"
	ReconciliationStatusReconciled          ReconciliationStatus = "RECONCILED"
)

// ---- cash management

type BankAccountType string

const (
	BankAccountTypeCurrent BankAccountType = "CURRENT"
	BankAccountTypeSavings BankAccountType = "SAVINGS"
	BankAccountTypeDeposit BankAccountType = "DEPOSIT"
)

var bankAccountTypes = []BankAccountType{BankAccountTypeCurrent, BankAccountTypeSavings, BankAccountTypeDeposit}

func (t BankAccountType) IsValid() bool { return enumValid(t, bankAccountTypes) }

func (t *BankAccountType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, t, "account type", bankAccountTypes)
}

type StatementStatus string

const (
	StatementStatusNotStarted StatementStatus = "NOT_STARTED"
	StatementStatusInProgress StatementStatus = "IN_PROGRESS"
	StatementStatusReconciled StatementStatus = "RECONCILED"
)

type MatchStatus string

const (
	MatchStatusSuggested MatchStatus = "SUGGESTED"
	MatchStatusPartial   MatchStatus = "PARTIAL"
	MatchStatusMatched   MatchStatus = "MATCHED"
	// MatchStatusUnmatched marks a rejected match. The row stays for audit
	// until it is deleted and never counts toward reconciliation.
	MatchStatusUnmatched MatchStatus = "UNMATCHED"
)

var matchStatuses = []MatchStatus{MatchStatusSuggested, MatchStatusPartial, MatchStatusMatched, MatchStatusUnmatched}

func (t MatchStatus) IsValid() bool { return enumValid(t, matchStatuses) }

func (t *MatchStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, t, "match status", matchStatuses)
}

type MatchType string

const (
	MatchTypeManual MatchType = "MANUAL"
	MatchTypeAuto   MatchType = "AUTO"
)

// ---- budget

type ControlLevel string

const (
	ControlLevelNone      ControlLevel = "NONE"
	ControlLevelTrackOnly ControlLevel = "TRACK_ONLY"
	ControlLevelAdvisory  ControlLevel = "ADVISORY"
	ControlLevelAbsolute  ControlLevel = "ABSOLUTE"
)

var controlLevels = []ControlLevel{ControlLevelNone, ControlLevelTrackOnly, ControlLevelAdvisory, ControlLevelAbsolute}

func (t ControlLevel) IsValid() bool { return enumValid(t, controlLevels) }

func (t *ControlLevel) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, t, "control level", controlLevels)
}

// Rank orders levels from NONE (1) to ABSOLUTE (4). Unknown levels rank 0.
func (t ControlLevel) Rank() int {
	return slices.Index(controlLevels, t) + 1
}

type BudgetStatus string

const (
	BudgetStatusDraft  BudgetStatus = "DRAFT"
	BudgetStatusActive BudgetStatus = "ACTIVE"
	BudgetStatusClosed BudgetStatus = "CLOSED"
)

// ---- procurement

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

var priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func (t Priority) IsValid() bool { return enumValid(t, priorities) }

func (t *Priority) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, t, "priority", priorities)
}

type RequisitionStatus string

const (
	RequisitionStatusDraft           RequisitionStatus = "DRAFT"
	RequisitionStatusPendingApproval RequisitionStatus = "PENDING_APPROVAL"
	RequisitionStatusApproved        RequisitionStatus = "APPROVED"
	RequisitionStatusRejected        RequisitionStatus = "REJECTED"
	RequisitionStatusCancelled       RequisitionStatus = "CANCELLED"
	RequisitionStatusConvertedToPO   RequisitionStatus = "CONVERTED_TO_PO"
)

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft             PurchaseOrderStatus = "DRAFT"
	PurchaseOrderStatusConfirmed         PurchaseOrderStatus = "CONFIRMED"
	PurchaseOrderStatusPartiallyReceived PurchaseOrderStatus = "PARTIALLY_RECEIVED"
	PurchaseOrderStatusReceived          PurchaseOrderStatus = "RECEIVED"
	PurchaseOrderStatusCancelled         PurchaseOrderStatus = "CANCELLED"
)

// ---- outbox

// OutboxReferenceType names the document an outbox event posts.
type OutboxReferenceType string

const (
	OutboxReferenceInvoicePosting OutboxReferenceType = "IV"
	OutboxReferencePaymentPosting OutboxReferenceType = "PMT"
	OutboxReferencePaymentVoid    OutboxReferenceType = "PMTV"
)

type OutboxAction string

const (
	OutboxActionCreate OutboxAction = "C"
	OutboxActionUpdate OutboxAction = "U"
	OutboxActionDelete OutboxAction = "D"
)
