package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_backend/middlewares"
)

// Register mounts the REST API under /api/v1. Admin checks happen in the
// model operations so every transport applies them.
func Register(r gin.IRouter) {
	api := r.Group("/api/v1")

	api.POST("/auth/login", login)
	api.POST("/auth/token", issueToken)

	g := api.Group("", middlewares.RequireUser())
	g.POST("/auth/logout", logout)
	g.GET("/auth/me", me)

	g.GET("/users", listUsers)
	g.POST("/users", createUser)
	g.GET("/users/:id", getUser)
	g.PUT("/users/:id/roles", assignRoles)
	g.PUT("/users/:id/active", setUserActive)
	g.GET("/roles", listRoles)
	g.POST("/roles", createRole)

	g.GET("/approvals/templates", listWorkflowTemplates)
	g.POST("/approvals/templates", createWorkflowTemplate)
	g.GET("/approvals/templates/:id", getWorkflowTemplate)
	g.POST("/approvals/templates/:id/deactivate", deactivateWorkflowTemplate)
	g.GET("/approvals/content-types", approvableTypes)
	g.GET("/approvals/pending", pendingApprovals)
	g.GET("/approvals/overdue", overdueStages)
	g.GET("/approvals/instances/:id", getWorkflowInstance)
	g.POST("/approvals/instances/:id/actions", approvalAction)
	g.POST("/approvals/instances/:id/delegate", delegateApproval)
	g.GET("/approvals/status/:contentType/:objectId", getWorkflowStatus)
	g.POST("/approvals/status/:contentType/:objectId/restart", restartWorkflow)

	gl := g.Group("/gl")
	gl.GET("/segment-types", listSegmentTypes)
	gl.POST("/segment-types", createSegmentType)
	gl.GET("/segment-types/:id", getSegmentType)
	gl.PUT("/segment-types/:id", updateSegmentType)
	gl.DELETE("/segment-types/:id", deleteSegmentType)
	gl.GET("/segments", listSegments)
	gl.POST("/segments", createSegment)
	gl.GET("/segments/:id", getSegment)
	gl.GET("/segments/:id/children", segmentChildren)
	gl.PUT("/segments/:id", updateSegment)
	gl.DELETE("/segments/:id", deleteSegment)
	gl.GET("/combinations", listCombinations)
	gl.POST("/combinations", resolveCombination)
	gl.POST("/combinations/find", findCombination)
	gl.GET("/combinations/:id", getCombination)
	gl.PUT("/combinations/:id", updateCombination)
	gl.DELETE("/combinations/:id", deleteCombination)
	gl.GET("/journals", listJournalEntries)
	gl.POST("/journals/search", listJournalEntries)
	gl.POST("/journals", createJournalEntry)
	gl.GET("/journals/:id", getJournalEntry)
	gl.PUT("/journals/:id", updateJournalEntry)
	gl.DELETE("/journals/:id", deleteJournalEntry)
	gl.POST("/journals/:id/lines", addJournalLine)
	gl.DELETE("/journals/:id/lines/:lineId", deleteJournalLine)
	gl.POST("/journals/:id/post", postJournalEntry)
	gl.GET("/ledger", listGeneralLedger)
	gl.POST("/ledger/search", listGeneralLedger)
	gl.GET("/defaults", listDefaultCombinations)
	gl.PUT("/defaults", upsertDefaultCombination)
	gl.GET("/defaults/check", checkDefaultCombinations)
	gl.GET("/defaults/:type", getDefaultCombination)
	gl.GET("/number-series", listNumberSeries)
	gl.PUT("/number-series", updateNumberSeries)

	g.GET("/periods", listPeriods)
	g.POST("/periods", createPeriod)
	g.POST("/periods/generate", generatePeriods)
	g.POST("/periods/:id/:module/open", setPeriodState(true))
	g.POST("/periods/:id/:module/close", setPeriodState(false))

	g.GET("/partners", listPartners)
	g.POST("/partners", createPartner)
	g.GET("/partners/:id", getPartner)
	g.PUT("/partners/:id", updatePartner)
	g.PUT("/partners/:id/active", setPartnerActive)

	g.GET("/invoices", listInvoices)
	g.POST("/invoices", createInvoice)
	g.GET("/invoices/:id", getInvoice)
	g.DELETE("/invoices/:id", deleteInvoice)
	g.POST("/invoices/:id/submit", submitInvoice)

	g.GET("/payments", listPayments)
	g.POST("/payments", createPayment)
	g.GET("/payments/:id", getPayment)
	g.PUT("/payments/:id", updatePayment)
	g.POST("/payments/:id/allocations", addAllocation)
	g.DELETE("/payments/:id/allocations/:allocationId", removeAllocation)
	g.POST("/payments/:id/submit", paymentTransition(submitPayment))
	g.POST("/payments/:id/reject", paymentTransition(rejectPayment))
	g.POST("/payments/:id/revert", paymentTransition(revertPayment))
	g.POST("/payments/:id/post", paymentTransition(postPayment))
	g.POST("/payments/:id/void", paymentTransition(voidPayment))

	cash := g.Group("/cash")
	cash.GET("/banks", listBanks)
	cash.GET("/banks/hierarchy", bankHierarchy)
	cash.POST("/banks", createBank)
	cash.GET("/banks/:id", getBank)
	cash.GET("/banks/:id/summary", bankSummary)
	cash.PUT("/banks/:id", updateBank)
	cash.PUT("/banks/:id/active", setBankActive)
	cash.GET("/branches", listBankBranches)
	cash.POST("/branches", createBankBranch)
	cash.PUT("/branches/:id", updateBankBranch)
	cash.PUT("/branches/:id/active", setBankBranchActive)
	cash.GET("/accounts", listBankAccounts)
	cash.POST("/accounts", createBankAccount)
	cash.GET("/accounts/:id", getBankAccount)
	cash.GET("/accounts/:id/balance", bankAccountBalance)
	cash.PUT("/accounts/:id", updateBankAccount)
	cash.PUT("/accounts/:id/active", setBankAccountActive)
	cash.POST("/accounts/:id/freeze", freezeBankAccount(true))
	cash.POST("/accounts/:id/unfreeze", freezeBankAccount(false))
	cash.POST("/accounts/:id/balance", adjustBankBalance)
	cash.GET("/statements", listStatements)
	cash.POST("/statements", createStatement)
	cash.POST("/statements/import", importStatement)
	cash.POST("/statements/preview", previewStatement)
	cash.GET("/statements/:id", getStatement)
	cash.DELETE("/statements/:id", deleteStatement)
	cash.GET("/statements/:id/lines", listStatementLines)
	cash.POST("/statements/:id/auto-match", autoMatchStatement)
	cash.GET("/statements/:id/summary", reconciliationSummary)
	cash.GET("/lines/:lineId/matches", listLineMatches)
	cash.POST("/matches", createMatch)
	cash.POST("/matches/:id/confirm", confirmMatch)
	cash.POST("/matches/:id/reject", rejectMatch)
	cash.PATCH("/matches/:id", updateMatchStatus)
	cash.DELETE("/matches/:id", deleteMatch)

	g.GET("/budgets", listBudgets)
	g.POST("/budgets", createBudget)
	g.POST("/budgets/check", checkBudget)
	g.GET("/budgets/:id", getBudget)
	g.PUT("/budgets/:id", updateBudget)
	g.DELETE("/budgets/:id", deleteBudget)
	g.PUT("/budgets/:id/segments", setBudgetSegment)
	g.DELETE("/budgets/:id/segments/:segmentId", removeBudgetSegment)
	g.POST("/budgets/:id/activate", budgetTransition(true))
	g.POST("/budgets/:id/close", budgetTransition(false))
	g.POST("/budgets/:id/adjust", adjustBudget)

	g.GET("/requisitions", listRequisitions)
	g.POST("/requisitions", createRequisition)
	g.GET("/requisitions/:id", getRequisition)
	g.PUT("/requisitions/:id", updateRequisition)
	g.DELETE("/requisitions/:id", deleteRequisition)
	g.POST("/requisitions/:id/submit", submitRequisition)
	g.POST("/requisitions/:id/cancel", cancelRequisition)
	g.POST("/requisitions/:id/convert", convertRequisition)
	g.GET("/purchase-orders", listPurchaseOrders)
	g.POST("/purchase-orders", createPurchaseOrder)
	g.GET("/purchase-orders/:id", getPurchaseOrder)
	g.PUT("/purchase-orders/:id", updatePurchaseOrder)
	g.POST("/purchase-orders/:id/confirm", confirmPurchaseOrder)
	g.POST("/purchase-orders/:id/cancel", cancelPurchaseOrder)
	g.POST("/purchase-orders/:id/receipts", receiveGoods)
	g.GET("/purchase-orders/:id/receipts", listGoodsReceipts)
	g.GET("/receipts/:id", getGoodsReceipt)

	registerHR(g.Group("/hr"))

	g.GET("/attachments/:referenceType/:referenceId", listAttachments)
	g.POST("/attachments/:referenceType/:referenceId", uploadAttachment)
	g.GET("/attachment-files/:id", downloadAttachment)
	g.DELETE("/attachment-files/:id", deleteAttachment)

	g.GET("/outbox/summary", outboxSummary)
	g.GET("/outbox/dead", deadOutbox)
	g.GET("/outbox/:referenceType/:referenceId", outboxStatus)
	g.POST("/outbox/:referenceType/:referenceId/reprocess", reprocessOutbox)

	g.GET("/reports/trial-balance", trialBalance)
	g.GET("/reports/budgets/:id/utilization", budgetUtilization)
}
