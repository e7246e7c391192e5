package models

import (
	"log"

	"github.com/mmdatafocus/erp_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{}, &Role{},
		&ApprovalWorkflowTemplate{}, &ApprovalWorkflowStageTemplate{},
		&ApprovalWorkflowInstance{}, &ApprovalWorkflowStageInstance{}, &ApprovalAssignment{}, &ApprovalAction{}, &ApprovalDelegation{},
		&SegmentType{}, &Segment{}, &SegmentCombination{}, &SegmentCombinationDetail{}, &DefaultCombination{},
		&JournalEntry{}, &JournalLine{}, &GeneralLedger{},
		&Period{}, &ModulePeriodState{},
		&BusinessPartner{}, &Invoice{}, &InvoiceItem{}, &Payment{}, &PaymentAllocation{},
		&Bank{}, &BankBranch{}, &BankAccount{}, &BankStatement{}, &BankStatementLine{}, &BankStatementLineMatch{},
		&BudgetHeader{}, &BudgetSegmentValue{}, &BudgetAmount{},
		&PurchaseRequisition{}, &PurchaseRequisitionLine{},
		&PurchaseOrder{}, &PurchaseOrderLine{}, &GoodsReceipt{}, &GoodsReceiptLine{},
		&Organization{}, &Job{}, &Position{}, &Person{},
		&Attachment{}, &TransactionNumberSeries{},
		&OutboxRecord{}, &IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
