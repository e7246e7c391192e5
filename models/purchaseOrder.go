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

type PurchaseOrder struct {
	ID                 int                 `gorm:"primary_key" json:"id"`
	Number             string              `gorm:"size:50;not null;unique" json:"number"`
	SupplierId         int                 `gorm:"not null;index" json:"supplier_id"`
	Supplier           *BusinessPartner    `gorm:"foreignKey:SupplierId" json:"supplier,omitempty"`
	RequisitionId      *int                `gorm:"index" json:"requisition_id"`
	OrderDate          time.Time           `gorm:"type:date;not null" json:"order_date"`
	ExpectedDate       *time.Time          `gorm:"type:date" json:"expected_date"`
	CurrencyCode       string              `gorm:"size:3;not null" json:"currency_code"`
	Status             PurchaseOrderStatus `gorm:"size:20;not null;default:'DRAFT';index" json:"status"`
	Total              decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"total"`
	IsEncumbered       bool                `gorm:"not null;default:false" json:"is_encumbered"`
	Notes              string              `gorm:"type:text" json:"notes"`
	ConfirmedAt        *time.Time          `json:"confirmed_at"`
	CancelledAt        *time.Time          `json:"cancelled_at"`
	CancellationReason string              `gorm:"type:text" json:"cancellation_reason"`
	Lines              []PurchaseOrderLine `gorm:"foreignKey:PurchaseOrderId" json:"lines"`
	CreatedBy          int                 `json:"created_by"`
	UpdatedBy          int                 `json:"updated_by"`
	CreatedAt          time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderLine struct {
	ID                int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId   int             `gorm:"not null;index" json:"purchase_order_id"`
	LineNumber        int             `gorm:"not null" json:"line_number"`
	RequisitionLineId *int            `json:"requisition_line_id"`
	ItemName          string          `gorm:"size:255;not null" json:"item_name"`
	Description       string          `gorm:"type:text" json:"description"`
	Quantity          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	ReceivedQuantity  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"received_quantity"`
	Unit              string          `gorm:"size:20" json:"unit"`
	UnitPrice         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	CombinationId     int             `gorm:"not null;index" json:"combination_id"`
}

type GoodsReceipt struct {
	ID              int                `gorm:"primary_key" json:"id"`
	Number          string             `gorm:"size:50;not null;unique" json:"number"`
	PurchaseOrderId int                `gorm:"not null;index" json:"purchase_order_id"`
	ReceiptDate     time.Time          `gorm:"type:date;not null" json:"receipt_date"`
	ReceivedBy      int                `json:"received_by"`
	Notes           string             `gorm:"type:text" json:"notes"`
	Lines           []GoodsReceiptLine `gorm:"foreignKey:ReceiptId" json:"lines"`
	CreatedAt       time.Time          `gorm:"autoCreateTime" json:"created_at"`
}

type GoodsReceiptLine struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	ReceiptId           int             `gorm:"not null;index" json:"receipt_id"`
	PurchaseOrderLineId int             `gorm:"not null;index" json:"purchase_order_line_id"`
	Quantity            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Notes               string          `gorm:"type:text" json:"notes"`
}

type NewPurchaseOrder struct {
	SupplierId   int                    `json:"supplier_id" validate:"required"`
	OrderDate    time.Time              `json:"order_date" validate:"required"`
	ExpectedDate *time.Time             `json:"expected_date"`
	CurrencyCode string                 `json:"currency_code" validate:"required,len=3"`
	Notes        string                 `json:"notes"`
	Lines        []NewPurchaseOrderLine `json:"lines" validate:"required,min=1,dive"`
}

type NewPurchaseOrderLine struct {
	ItemName      string          `json:"item_name" validate:"required,max=255"`
	Description   string          `json:"description"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          string          `json:"unit" validate:"max=20"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	CombinationId int             `json:"combination_id"`
	Segments      []SegmentPair   `json:"segments"`
}

// NewRequisitionConversion carries the PO header fields a requisition lacks.
type NewRequisitionConversion struct {
	SupplierId   int        `json:"supplier_id" validate:"required"`
	OrderDate    *time.Time `json:"order_date"`
	ExpectedDate *time.Time `json:"expected_date"`
	Notes        string     `json:"notes"`
}

type NewGoodsReceipt struct {
	ReceiptDate time.Time             `json:"receipt_date" validate:"required"`
	Notes       string                `json:"notes"`
	Lines       []NewGoodsReceiptLine `json:"lines" validate:"required,min=1,dive"`
}

type NewGoodsReceiptLine struct {
	PurchaseOrderLineId int             `json:"purchase_order_line_id" validate:"required"`
	Quantity            decimal.Decimal `json:"quantity"`
	Notes               string          `json:"notes"`
}

type PurchaseOrderFilter struct {
	Status        *PurchaseOrderStatus
	SupplierId    int
	RequisitionId int
}

func (l PurchaseOrderLine) LineTotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice).Round(4)
}

func (l PurchaseOrderLine) OpenQuantity() decimal.Decimal {
	return l.Quantity.Sub(l.ReceivedQuantity)
}

func (l PurchaseOrderLine) budgetKey() (int, decimal.Decimal) {
	return l.CombinationId, l.LineTotal()
}

func purchaseOrderTotal(lines []PurchaseOrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal())
	}
	return total
}

// receivable reports whether qty more units may be received on l.
func (l PurchaseOrderLine) receivable(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return utils.NewValidationError("line %d: received quantity must be greater than zero", l.LineNumber)
	}
	if qty.GreaterThan(l.OpenQuantity()) {
		return utils.NewValidationError("line %d: received quantity %s exceeds open quantity %s",
			l.LineNumber, qty.String(), l.OpenQuantity().String())
	}
	return nil
}

// receiptStatus derives the order status from its received quantities.
func receiptStatus(lines []PurchaseOrderLine) PurchaseOrderStatus {
	anyReceived, allReceived := false, true
	for _, l := range lines {
		if l.ReceivedQuantity.IsPositive() {
			anyReceived = true
		}
		if l.OpenQuantity().IsPositive() {
			allReceived = false
		}
	}
	switch {
	case anyReceived && allReceived:
		return PurchaseOrderStatusReceived
	case anyReceived:
		return PurchaseOrderStatusPartiallyReceived
	default:
		return PurchaseOrderStatusConfirmed
	}
}

func (input *NewPurchaseOrder) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	for i, l := range input.Lines {
		if !l.Quantity.IsPositive() {
			return utils.NewValidationError("line %d: quantity must be greater than zero", i+1)
		}
		if l.UnitPrice.IsNegative() {
			return utils.NewValidationError("line %d: unit price cannot be negative", i+1)
		}
		if l.CombinationId == 0 && len(l.Segments) == 0 {
			return utils.NewValidationError("line %d: combination or segments are required", i+1)
		}
	}
	return nil
}

func activeSupplier(ctx context.Context, tx *gorm.DB, id int) (*BusinessPartner, error) {
	partner, err := fetchModel[BusinessPartner](ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !partner.Active() {
		return nil, utils.NewValidationError("business partner %s is inactive", partner.Name)
	}
	if !partner.Type.IsSupplier() {
		return nil, utils.NewValidationError("business partner %s is not a supplier", partner.Name)
	}
	return partner, nil
}

func buildPurchaseOrderLines(ctx context.Context, tx *gorm.DB, input []NewPurchaseOrderLine) ([]PurchaseOrderLine, error) {
	lines := make([]PurchaseOrderLine, 0, len(input))
	for i, in := range input {
		combId, err := resolveCombination(ctx, tx, in.CombinationId, in.Segments)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		lines = append(lines, PurchaseOrderLine{
			LineNumber:    i + 1,
			ItemName:      in.ItemName,
			Description:   in.Description,
			Quantity:      in.Quantity,
			Unit:          in.Unit,
			UnitPrice:     in.UnitPrice,
			CombinationId: combId,
		})
	}
	return lines, nil
}

// CreatePurchaseOrder creates a draft order that does not come from a
// requisition. Its budget is encumbered on confirmation.
func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	userId := currentUserIdOrZero(ctx)
	var po PurchaseOrder
	err := runInTx(ctx, func(tx *gorm.DB) error {
		if _, err := activeSupplier(ctx, tx, input.SupplierId); err != nil {
			return err
		}
		lines, err := buildPurchaseOrderLines(ctx, tx, input.Lines)
		if err != nil {
			return err
		}
		number, err := nextDocumentNumber(ctx, tx, SeriesPurchaseOrder)
		if err != nil {
			return err
		}
		po = PurchaseOrder{
			Number:       number,
			SupplierId:   input.SupplierId,
			OrderDate:    utils.DateOnly(input.OrderDate),
			ExpectedDate: input.ExpectedDate,
			CurrencyCode: strings.ToUpper(input.CurrencyCode),
			Status:       PurchaseOrderStatusDraft,
			Total:        purchaseOrderTotal(lines),
			Notes:        input.Notes,
			Lines:        lines,
			CreatedBy:    userId,
			UpdatedBy:    userId,
		}
		return tx.Create(&po).Error
	})
	if err != nil {
		return nil, err
	}
	return GetPurchaseOrder(ctx, po.ID)
}

func purchaseOrderLines(ctx context.Context, tx *gorm.DB, id int) ([]PurchaseOrderLine, error) {
	var lines []PurchaseOrderLine
	err := tx.WithContext(ctx).Where("purchase_order_id = ?", id).Order("line_number").Find(&lines).Error
	return lines, err
}

// UpdatePurchaseOrder replaces header and lines of a draft order. An
// encumbered order moves its encumbrance to the new lines.
func UpdatePurchaseOrder(ctx context.Context, id int, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	err := runInTx(ctx, func(tx *gorm.DB) error {
		po, err := fetchModelForUpdate[PurchaseOrder](ctx, tx, id)
		if err != nil {
			return err
		}
		if po.Status != PurchaseOrderStatusDraft {
			return utils.NewValidationError("purchase order %s is %s", po.Number, po.Status)
		}
		if _, err := activeSupplier(ctx, tx, input.SupplierId); err != nil {
			return err
		}
		old, err := purchaseOrderLines(ctx, tx, po.ID)
		if err != nil {
			return err
		}
		lines, err := buildPurchaseOrderLines(ctx, tx, input.Lines)
		if err != nil {
			return err
		}
		orderDate := utils.DateOnly(input.OrderDate)
		if po.IsEncumbered {
			if err := moveLinesBudget(ctx, tx, amountsByCombination(old), po.OrderDate, ReleaseEncumbrance); err != nil {
				return err
			}
			if err := moveLinesBudget(ctx, tx, amountsByCombination(lines), orderDate, ConsumeEncumbrance); err != nil {
				return err
			}
		}
		if err := tx.Where("purchase_order_id = ?", po.ID).Delete(&PurchaseOrderLine{}).Error; err != nil {
			return err
		}
		for i := range lines {
			lines[i].PurchaseOrderId = po.ID
		}
		if err := tx.Create(&lines).Error; err != nil {
			return err
		}
		return tx.Model(po).Updates(map[string]interface{}{
			"SupplierId":   input.SupplierId,
			"OrderDate":    orderDate,
			"ExpectedDate": input.ExpectedDate,
			"CurrencyCode": strings.ToUpper(input.CurrencyCode),
			"Notes":        input.Notes,
			"Total":        purchaseOrderTotal(lines),
			"UpdatedBy":    currentUserIdOrZero(ctx),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return GetPurchaseOrder(ctx, id)
}

// ConvertToPurchaseOrder turns an approved requisition into a draft order.
// The requisition's commitment becomes an encumbrance of the order.
func ConvertToPurchaseOrder(ctx context.Context, requisitionId int, input *NewRequisitionConversion) (*PurchaseOrder, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	userId := currentUserIdOrZero(ctx)
	var po PurchaseOrder
	err := runInTx(ctx, func(tx *gorm.DB) error {
		pr, err := fetchModelForUpdate[PurchaseRequisition](ctx, tx, requisitionId)
		if err != nil {
			return err
		}
		if pr.Status != RequisitionStatusApproved {
			return utils.NewValidationError("only approved requisitions can be converted; %s is %s", pr.Number, pr.Status)
		}
		if _, err := activeSupplier(ctx, tx, input.SupplierId); err != nil {
			return err
		}
		prLines, err := requisitionLines(ctx, tx, pr.ID)
		if err != nil {
			return err
		}
		orderDate := utils.DateOnly(time.Now())
		if input.OrderDate != nil {
			orderDate = utils.DateOnly(*input.OrderDate)
		}
		lines := make([]PurchaseOrderLine, 0, len(prLines))
		for _, l := range prLines {
			lineId := l.ID
			lines = append(lines, PurchaseOrderLine{
				LineNumber:        l.LineNumber,
				RequisitionLineId: &lineId,
				ItemName:          l.ItemName,
				Description:       l.Description,
				Quantity:          l.Quantity,
				Unit:              l.Unit,
				UnitPrice:         l.UnitPrice,
				CombinationId:     l.CombinationId,
			})
		}
		number, err := nextDocumentNumber(ctx, tx, SeriesPurchaseOrder)
		if err != nil {
			return err
		}
		expected := input.ExpectedDate
		if expected == nil {
			expected = pr.RequiredDate
		}
		po = PurchaseOrder{
			Number:        number,
			SupplierId:    input.SupplierId,
			RequisitionId: &pr.ID,
			OrderDate:     orderDate,
			ExpectedDate:  expected,
			CurrencyCode:  pr.CurrencyCode,
			Status:        PurchaseOrderStatusDraft,
			Total:         purchaseOrderTotal(lines),
			IsEncumbered:  true,
			Notes:         input.Notes,
			Lines:         lines,
			CreatedBy:     userId,
			UpdatedBy:     userId,
		}
		if err := tx.Create(&po).Error; err != nil {
			return err
		}
		if err := moveLinesBudget(ctx, tx, amountsByCombination(prLines), pr.Date, ReleaseCommitment); err != nil {
			return err
		}
		if err := moveLinesBudget(ctx, tx, amountsByCombination(lines), po.OrderDate, ConsumeEncumbrance); err != nil {
			return err
		}
		return tx.Model(pr).Update("Status", RequisitionStatusConvertedToPO).Error
	})
	if err != nil {
		return nil, err
	}
	return GetPurchaseOrder(ctx, po.ID)
}

// ConfirmPurchaseOrder sends a draft order to the supplier. Orders without a
// requisition pass a budget check and encumber here.
func ConfirmPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	err := runInTx(ctx, func(tx *gorm.DB) error {
		po, err := fetchModelForUpdate[PurchaseOrder](ctx, tx, id)
		if err != nil {
			return err
		}
		if po.Status != PurchaseOrderStatusDraft {
			return utils.NewValidationError("purchase order %s is %s", po.Number, po.Status)
		}
		lines, err := purchaseOrderLines(ctx, tx, po.ID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return utils.NewValidationError("purchase order has no lines")
		}
		now := time.Now().UTC()
		updates := map[string]interface{}{
			"Status":      PurchaseOrderStatusConfirmed,
			"ConfirmedAt": &now,
		}
		if !po.IsEncumbered {
			amounts := amountsByCombination(lines)
			if _, err := checkLinesBudget(ctx, tx, amounts, po.OrderDate); err != nil {
				return err
			}
			if err := moveLinesBudget(ctx, tx, amounts, po.OrderDate, ConsumeEncumbrance); err != nil {
				return err
			}
			updates["IsEncumbered"] = true
		}
		return tx.Model(po).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return GetPurchaseOrder(ctx, id)
}

// CancelPurchaseOrder cancels an order with nothing received yet and releases
// its encumbrance.
func CancelPurchaseOrder(ctx context.Context, id int, reason string) (*PurchaseOrder, error) {
	err := runInTx(ctx, func(tx *gorm.DB) error {
		po, err := fetchModelForUpdate[PurchaseOrder](ctx, tx, id)
		if err != nil {
			return err
		}
		if po.Status != PurchaseOrderStatusDraft && po.Status != PurchaseOrderStatusConfirmed {
			return utils.NewValidationError("purchase order %s is %s", po.Number, po.Status)
		}
		lines, err := purchaseOrderLines(ctx, tx, po.ID)
		if err != nil {
			return err
		}
		if receiptStatus(lines) != PurchaseOrderStatusConfirmed {
			return utils.NewValidationError("purchase order %s has received goods", po.Number)
		}
		if po.IsEncumbered {
			if err := moveLinesBudget(ctx, tx, amountsByCombination(lines), po.OrderDate, ReleaseEncumbrance); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		return tx.Model(po).Updates(map[string]interface{}{
			"Status":             PurchaseOrderStatusCancelled,
			"IsEncumbered":       false,
			"CancelledAt":        &now,
			"CancellationReason": reason,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return GetPurchaseOrder(ctx, id)
}

func GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	var po PurchaseOrder
	err := config.GetDB().WithContext(ctx).
		Preload("Supplier").
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_number") }).
		First(&po, id).Error
	if err != nil {
		return nil, notFound[PurchaseOrder](err)
	}
	return &po, nil
}

func ListPurchaseOrders(ctx context.Context, filter PurchaseOrderFilter) ([]*PurchaseOrder, error) {
	q := config.GetDB().WithContext(ctx)
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.SupplierId > 0 {
		q = q.Where("supplier_id = ?", filter.SupplierId)
	}
	if filter.RequisitionId > 0 {
		q = q.Where("requisition_id = ?", filter.RequisitionId)
	}
	var results []*PurchaseOrder
	err := q.Order("order_date DESC, id DESC").Limit(config.ListLimit).Find(&results).Error
	return results, err
}

// ReceiveGoods records a receipt against a confirmed order. No line may
// receive more than it has open.
func ReceiveGoods(ctx context.Context, purchaseOrderId int, input *NewGoodsReceipt) (*GoodsReceipt, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	var receipt GoodsReceipt
	err := runInTx(ctx, func(tx *gorm.DB) error {
		po, err := fetchModelForUpdate[PurchaseOrder](ctx, tx, purchaseOrderId)
		if err != nil {
			return err
		}
		if po.Status != PurchaseOrderStatusConfirmed && po.Status != PurchaseOrderStatusPartiallyReceived {
			return utils.NewValidationError("purchase order %s is %s", po.Number, po.Status)
		}
		var lines []PurchaseOrderLine
		if err := lockForUpdate(tx.WithContext(ctx)).Where("purchase_order_id = ?", po.ID).
			Order("line_number").Find(&lines).Error; err != nil {
			return err
		}
		index := make(map[int]int, len(lines))
		for i, l := range lines {
			index[l.ID] = i
		}
		receipt = GoodsReceipt{
			PurchaseOrderId: po.ID,
			ReceiptDate:     utils.DateOnly(input.ReceiptDate),
			ReceivedBy:      currentUserIdOrZero(ctx),
			Notes:           input.Notes,
		}
		for _, in := range input.Lines {
			i, ok := index[in.PurchaseOrderLineId]
			if !ok {
				return utils.NewValidationError("line %d does not belong to purchase order %s", in.PurchaseOrderLineId, po.Number)
			}
			if err := lines[i].receivable(in.Quantity); err != nil {
				return err
			}
			lines[i].ReceivedQuantity = lines[i].ReceivedQuantity.Add(in.Quantity)
			receipt.Lines = append(receipt.Lines, GoodsReceiptLine{
				PurchaseOrderLineId: in.PurchaseOrderLineId,
				Quantity:            in.Quantity,
				Notes:               in.Notes,
			})
		}
		if receipt.Number, err = nextDocumentNumber(ctx, tx, SeriesGoodsReceipt); err != nil {
			return err
		}
		if err := tx.Create(&receipt).Error; err != nil {
			return err
		}
		for _, l := range lines {
			if err := tx.Model(&PurchaseOrderLine{ID: l.ID}).Update("ReceivedQuantity", l.ReceivedQuantity).Error; err != nil {
				return err
			}
		}
		return tx.Model(po).Update("Status", receiptStatus(lines)).Error
	})
	if err != nil {
		return nil, err
	}
	return GetGoodsReceipt(ctx, receipt.ID)
}

func GetGoodsReceipt(ctx context.Context, id int) (*GoodsReceipt, error) {
	return fetchModel[GoodsReceipt](ctx, nil, id, "Lines")
}

func ListGoodsReceipts(ctx context.Context, purchaseOrderId int) ([]*GoodsReceipt, error) {
	var results []*GoodsReceipt
	err := config.GetDB().WithContext(ctx).Preload("Lines").
		Where("purchase_order_id = ?", purchaseOrderId).
		Order("receipt_date, id").Find(&results).Error
	return results, err
}
