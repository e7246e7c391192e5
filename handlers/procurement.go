package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/shopspring/decimal"
)

func listBudgets(c *gin.Context) {
	var status *models.BudgetStatus
	if v := queryString(c, "status"); v != nil {
		s := models.BudgetStatus(*v)
		status = &s
	}
	rows, err := models.ListBudgets(c.Request.Context(), status)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func getBudget(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	b, err := models.GetBudget(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, b)
}

func createBudget(c *gin.Context) {
	var in models.NewBudget
	if !bind(c, &in) {
		return
	}
	b, err := models.CreateBudget(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, b)
}

func updateBudget(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in models.NewBudget
	if !bind(c, &in) {
		return
	}
	b, err := models.UpdateBudget(c.Request.Context(), id, &in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, b)
}

func deleteBudget(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	if err := models.DeleteBudget(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"deleted": id})
}

func setBudgetSegment(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in models.NewBudgetSegment
	if !bind(c, &in) {
		return
	}
	b, err := models.SetBudgetSegment(c.Request.Context(), id, &in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, b)
}

func removeBudgetSegment(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	segmentId, valid := pathId(c, "segmentId")
	if !valid {
		return
	}
	b, err := models.RemoveBudgetSegment(c.Request.Context(), id, segmentId)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, b)
}

func budgetTransition(activate bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := pathId(c, "id")
		if !valid {
			return
		}
		var (
			b   *models.BudgetHeader
			err error
		)
		if activate {
			b, err = models.ActivateBudget(c.Request.Context(), id)
		} else {
			b, err = models.CloseBudget(c.Request.Context(), id)
		}
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, b)
	}
}

func adjustBudget(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in struct {
		SegmentId int             `json:"segment_id" binding:"required"`
		Delta     decimal.Decimal `json:"delta"`
		Reason    string          `json:"reason"`
	}
	if !bind(c, &in) {
		return
	}
	a, err := models.AdjustBudget(c.Request.Context(), id, in.SegmentId, in.Delta, in.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, a)
}

// checkBudget evaluates an amount against active budgets without consuming.
func checkBudget(c *gin.Context) {
	var in struct {
		SegmentIds []int           `json:"segment_ids" binding:"required"`
		Amount     decimal.Decimal `json:"amount"`
		Date       *time.Time      `json:"date"`
	}
	if !bind(c, &in) {
		return
	}
	date := time.Now()
	if in.Date != nil {
		date = *in.Date
	}
	res, err := models.CheckBudget(c.Request.Context(), nil, in.SegmentIds, in.Amount, date)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func listRequisitions(c *gin.Context) {
	var f models.RequisitionFilter
	if v := queryString(c, "status"); v != nil {
		s := models.RequisitionStatus(*v)
		f.Status = &s
	}
	var valid bool
	if f.RequesterId, valid = queryInt(c, "requester_id"); !valid {
		return
	}
	rows, err := models.ListPurchaseRequisitions(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func getRequisition(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	pr, err := models.GetPurchaseRequisition(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, pr)
}

func createRequisition(c *gin.Context) {
	var in models.NewPurchaseRequisition
	if !bind(c, &in) {
		return
	}
	pr, err := models.CreatePurchaseRequisition(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, pr)
}

func updateRequisition(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in models.NewPurchaseRequisition
	if !bind(c, &in) {
		return
	}
	pr, err := models.UpdatePurchaseRequisition(c.Request.Context(), id, &in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, pr)
}

func deleteRequisition(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	pr, err := models.DeletePurchaseRequisition(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, pr)
}

func submitRequisition(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	pr, err := models.SubmitPurchaseRequisition(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, pr)
}

func cancelRequisition(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in reasonInput
	if !bindOptional(c, &in) {
		return
	}
	pr, err := models.CancelPurchaseRequisition(c.Request.Context(), id, in.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, pr)
}

func convertRequisition(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in models.NewRequisitionConversion
	if !bind(c, &in) {
		return
	}
	po, err := models.ConvertToPurchaseOrder(c.Request.Context(), id, &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, po)
}

func listPurchaseOrders(c *gin.Context) {
	var f models.PurchaseOrderFilter
	if v := queryString(c, "status"); v != nil {
		s := models.PurchaseOrderStatus(*v)
		f.Status = &s
	}
	var valid bool
	if f.SupplierId, valid = queryInt(c, "supplier_id"); !valid {
		return
	}
	if f.RequisitionId, valid = queryInt(c, "requisition_id"); !valid {
		return
	}
	rows, err := models.ListPurchaseOrders(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func getPurchaseOrder(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	po, err := models.GetPurchaseOrder(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, po)
}

func createPurchaseOrder(c *gin.Context) {
	var in models.NewPurchaseOrder
	if !bind(c, &in) {
		return
	}
	po, err := models.CreatePurchaseOrder(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, po)
}

func updatePurchaseOrder(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in models.NewPurchaseOrder
	if !bind(c, &in) {
		return
	}
	po, err := models.UpdatePurchaseOrder(c.Request.Context(), id, &in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, po)
}

func confirmPurchaseOrder(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	po, err := models.ConfirmPurchaseOrder(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, po)
}

func cancelPurchaseOrder(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in reasonInput
	if !bindOptional(c, &in) {
		return
	}
	po, err := models.CancelPurchaseOrder(c.Request.Context(), id, in.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, po)
}

func receiveGoods(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in models.NewGoodsReceipt
	if !bind(c, &in) {
		return
	}
	gr, err := models.ReceiveGoods(c.Request.Context(), id, &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, gr)
}

func listGoodsReceipts(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	rows, err := models.ListGoodsReceipts(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func getGoodsReceipt(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	gr, err := models.GetGoodsReceipt(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gr)
}
