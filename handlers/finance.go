package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_backend/models"
)

func listPartners(c *gin.Context) {
	var f models.PartnerFilter
	if t := queryString(c, "type"); t != nil {
		pt := models.PartnerType(*t)
		f.Type = &pt
	}
	active, valid := queryBool(c, "active")
	if !valid {
		return
	}
	f.ActiveOnly = active != nil && *active
	f.Name = c.Query("name")
	rows, err := models.ListBusinessPartners(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func getPartner(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	p, err := models.GetBusinessPartner(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

func createPartner(c *gin.Context) {
	var in models.NewBusinessPartner
	if !bind(c, &in) {
		return
	}
	p, err := models.CreateBusinessPartner(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, p)
}

func updatePartner(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in models.NewBusinessPartner
	if !bind(c, &in) {
		return
	}
	p, err := models.UpdateBusinessPartner(c.Request.Context(), id, &in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

func setPartnerActive(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in activeInput
	if !bind(c, &in) {
		return
	}
	p, err := models.SetBusinessPartnerActive(c.Request.Context(), id, in.IsActive)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

func listInvoices(c *gin.Context) {
	var f models.InvoiceFilter
	if v := queryString(c, "invoice_type"); v != nil {
		t := models.InvoiceType(*v)
		f.InvoiceType = &t
	}
	if v := queryString(c, "approval_status"); v != nil {
		s := models.ApprovalStatus(*v)
		f.ApprovalStatus = &s
	}
	if v := queryString(c, "payment_status"); v != nil {
		s := models.InvoicePaymentStatus(*v)
		f.PaymentStatus = &s
	}
	var valid bool
	if f.PartnerId, valid = queryInt(c, "partner_id"); !valid {
		return
	}
	rows, err := models.ListInvoices(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func getInvoice(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	inv, err := models.GetInvoice(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, inv)
}

func createInvoice(c *gin.Context) {
	var in models.NewInvoice
	if !bind(c, &in) {
		return
	}
	inv, err := models.CreateInvoice(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, inv)
}

func deleteInvoice(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	inv, err := models.DeleteInvoice(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, inv)
}

func submitInvoice(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	inv, err := models.SubmitInvoiceForApproval(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, inv)
}

func listPayments(c *gin.Context) {
	var f models.PaymentFilter
	if v := queryString(c, "direction"); v != nil {
		d := models.PaymentDirection(*v)
		f.Direction = &d
	}
	if v := queryString(c, "status"); v != nil {
		s := models.PaymentStatus(*v)
		f.Status = &s
	}
	var valid bool
	if f.PartnerId, valid = queryInt(c, "partner_id"); !valid {
		return
	}
	if f.BankAccountId, valid = queryInt(c, "bank_account_id"); !valid {
		return
	}
	rows, err := models.ListPayments(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func getPayment(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	p, err := models.GetPayment(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

func createPayment(c *gin.Context) {
	var in models.NewPayment
	if !bind(c, &in) {
		return
	}
	p, err := models.CreatePayment(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, p)
}

func updatePayment(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in models.NewPayment
	if !bind(c, &in) {
		return
	}
	p, err := models.UpdatePayment(c.Request.Context(), id, &in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

func addAllocation(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in models.NewPaymentAllocation
	if !bind(c, &in) {
		return
	}
	p, err := models.AddAllocation(c.Request.Context(), id, &in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

func removeAllocation(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	allocationId, valid := pathId(c, "allocationId")
	if !valid {
		return
	}
	p, err := models.RemoveAllocation(c.Request.Context(), id, allocationId)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

// paymentTransition wraps the id-only payment state changes.
func paymentTransition(fn func(*gin.Context, int) (*models.Payment, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := pathId(c, "id")
		if !valid {
			return
		}
		p, err := fn(c, id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, p)
	}
}

func submitPayment(c *gin.Context, id int) (*models.Payment, error) {
	return models.SubmitPayment(c.Request.Context(), id)
}

func postPayment(c *gin.Context, id int) (*models.Payment, error) {
	return models.PostPayment(c.Request.Context(), id)
}

func revertPayment(c *gin.Context, id int) (*models.Payment, error) {
	return models.RevertPaymentToDraft(c.Request.Context(), id)
}

func rejectPayment(c *gin.Context, id int) (*models.Payment, error) {
	var in reasonInput
	if err := decodeOptional(c, &in); err != nil {
		return nil, err
	}
	return models.RejectPayment(c.Request.Context(), id, in.Reason)
}

func voidPayment(c *gin.Context, id int) (*models.Payment, error) {
	var in reasonInput
	if err := decodeOptional(c, &in); err != nil {
		return nil, err
	}
	return models.VoidPayment(c.Request.Context(), id, in.Reason)
}

func outboxStatus(c *gin.Context) {
	refId, valid := pathId(c, "referenceId")
	if !valid {
		return
	}
	st, err := models.GetOutboxStatus(c.Request.Context(), models.OutboxReferenceType(c.Param("referenceType")), refId)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, st)
}

func outboxSummary(c *gin.Context) {
	s, err := models.GetOutboxSummary(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, s)
}

func deadOutbox(c *gin.Context) {
	limit, valid := queryInt(c, "limit")
	if !valid {
		return
	}
	rows, err := models.ListDeadOutbox(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func reprocessOutbox(c *gin.Context) {
	refId, valid := pathId(c, "referenceId")
	if !valid {
		return
	}
	st, err := models.ReprocessOutbox(c.Request.Context(), models.OutboxReferenceType(c.Param("referenceType")), refId)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, st)
}
