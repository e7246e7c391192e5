package models

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const ContentTypePurchaseRequisition = "purchase_requisition"

type PurchaseRequisition struct {
	ID                 int                       `gorm:"primary_key" json:"id"`
	Number             string                    `gorm:"size:50;not null;unique" json:"number"`
	RequesterId        int                       `gorm:"not null;index" json:"requester_id"`
	Date               time.Time                 `gorm:"type:date;not null" json:"date"`
	RequiredDate       *time.Time                `gorm:"type:date" json:"required_date"`
	Title              string                    `gorm:"size:255;not null" json:"title"`
	Description        string                    `gorm:"type:text" json:"description"`
	Priority           Priority                  `gorm:"size:10;not null;default:'MEDIUM'" json:"priority"`
	Status             RequisitionStatus         `gorm:"size:20;not null;default:'DRAFT';index" json:"status"`
	CurrencyCode       string                    `gorm:"size:3;not null" json:"currency_code"`
	Total              decimal.Decimal           `gorm:"type:decimal(20,4);not null;default:0" json:"total"`
	BudgetWarning      string                    `gorm:"type:text" json:"budget_warning"`
	RejectionReason    string                    `gorm:"type:text" json:"rejection_reason"`
	CancellationReason string                    `gorm:"type:text" json:"cancellation_reason"`
	SubmittedAt        *time.Time                `json:"submitted_at"`
	ApprovedAt         *time.Time                `json:"approved_at"`
	Lines              []PurchaseRequisitionLine `gorm:"foreignKey:RequisitionId" json:"lines"`
	CreatedBy          int                       `json:"created_by"`
	UpdatedBy          int                       `json:"updated_by"`
	CreatedAt          time.Time                 `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time                 `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseRequisitionLine struct {
	ID            int             `gorm:"primary_key" json:"id"`
	RequisitionId int             `gorm:"not null;index" json:"requisition_id"`
	LineNumber    int             `gorm:"not null" json:"line_number"`
	ItemName      string          `gorm:"size:255;not null" json:"item_name"`
	Description   string          `gorm:"type:text" json:"description"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Unit          string          `gorm:"size:20" json:"unit"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	CombinationId int             `gorm:"not null;index" json:"combination_id"`
}

type NewPurchaseRequisition struct {
	Date         time.Time                    `json:"date" validate:"required"`
	RequiredDate *time.Time                   `json:"required_date"`
	Title        string                       `json:"title" validate:"required,max=255"`
	Description  string                       `json:"description"`
	Priority     Priority                     `json:"priority"`
	CurrencyCode string                       `json:"currency_code" validate:"required,len=3"`
	Lines        []NewPurchaseRequisitionLine `json:"lines" validate:"required,min=1,dive"`
}

type NewPurchaseRequisitionLine struct {
	ItemName      string          `json:"item_name" validate:"required,max=255"`
	Description   string          `json:"description"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          string          `json:"unit" validate:"max=20"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	CombinationId int             `json:"combination_id"`
	Segments      []SegmentPair   `json:"segments"`
}

type RequisitionFilter struct {
	Status      *RequisitionStatus
	RequesterId int
}

func init() {
	RegisterApprovable(ContentTypePurchaseRequisition, func(ctx context.Context, tx *gorm.DB, id int) (Approvable, error) {
		return fetchModelForUpdate[PurchaseRequisition](ctx, tx, id)
	})
}

func (l PurchaseRequisitionLine) LineTotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice).Round(4)
}

func requisitionTotal(lines []PurchaseRequisitionLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal())
	}
	return total
}

// amountsByCombination sums line totals per GL combination.
func amountsByCombination[L interface{ budgetKey() (int, decimal.Decimal) }](lines []L) map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal)
	for _, l := range lines {
		comb, amount := l.budgetKey()
		out[comb] = out[comb].Add(amount)
	}
	return out
}

func (l PurchaseRequisitionLine) budgetKey() (int, decimal.Decimal) {
	return l.CombinationId, l.LineTotal()
}

func (input *NewPurchaseRequisition) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.Priority != "" && !input.Priority.IsValid() {
		return utils.NewFieldValidationError("invalid priority", map[string]string{"priority": "oneof"})
	}
	if input.RequiredDate != nil && utils.DateOnly(*input.RequiredDate).Before(utils.DateOnly(input.Date)) {
		return utils.NewFieldValidationError("required date is before the requisition date", map[string]string{"required_date": "gtefield"})
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

// resolveCombination returns combId when set, otherwise finds or creates the
// combination of segments.
func resolveCombination(ctx context.Context, tx *gorm.DB, combId int, segments []SegmentPair) (int, error) {
	if combId > 0 {
		if _, err := fetchModel[SegmentCombination](ctx, tx, combId); err != nil {
			return 0, err
		}
		return combId, nil
	}
	comb, _, err := GetOrCreateCombination(ctx, tx, segments, "")
	if err != nil {
		return 0, err
	}
	return comb.ID, nil
}

func buildRequisitionLines(ctx context.Context, tx *gorm.DB, input []NewPurchaseRequisitionLine) ([]PurchaseRequisitionLine, error) {
	lines := make([]PurchaseRequisitionLine, 0, len(input))
	for i, in := range input {
		combId, err := resolveCombination(ctx, tx, in.CombinationId, in.Segments)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		lines = append(lines, PurchaseRequisitionLine{
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

func CreatePurchaseRequisition(ctx context.Context, input *NewPurchaseRequisition) (*PurchaseRequisition, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	priority := input.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	userId := currentUserIdOrZero(ctx)
	var pr PurchaseRequisition
	err := runInTx(ctx, func(tx *gorm.DB) error {
		lines, err := buildRequisitionLines(ctx, tx, input.Lines)
		if err != nil {
			return err
		}
		number, err := nextDocumentNumber(ctx, tx, SeriesPurchaseRequisition)
		if err != nil {
			return err
		}
		pr = PurchaseRequisition{
			Number:       number,
			RequesterId:  userId,
			Date:         utils.DateOnly(input.Date),
			RequiredDate: input.RequiredDate,
			Title:        input.Title,
			Description:  input.Description,
			Priority:     priority,
			Status:       RequisitionStatusDraft,
			CurrencyCode: strings.ToUpper(input.CurrencyCode),
			Total:        requisitionTotal(lines),
			Lines:        lines,
			CreatedBy:    userId,
			UpdatedBy:    userId,
		}
		return tx.Create(&pr).Error
	})
	if err != nil {
		return nil, err
	}
	return GetPurchaseRequisition(ctx, pr.ID)
}

// UpdatePurchaseRequisition replaces header and lines of a draft or rejected
// requisition. A rejected one returns to draft.
func UpdatePurchaseRequisition(ctx context.Context, id int, input *NewPurchaseRequisition) (*PurchaseRequisition, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	err := runInTx(ctx, func(tx *gorm.DB) error {
		pr, err := fetchModelForUpdate[PurchaseRequisition](ctx, tx, id)
		if err != nil {
			return err
		}
		if pr.Status != RequisitionStatusDraft && pr.Status != RequisitionStatusRejected {
			return utils.NewValidationError("requisition %s is %s", pr.Number, pr.Status)
		}
		lines, err := buildRequisitionLines(ctx, tx, input.Lines)
		if err != nil {
			return err
		}
		if err := tx.Where("requisition_id = ?", pr.ID).Delete(&PurchaseRequisitionLine{}).Error; err != nil {
			return err
		}
		for i := range lines {
			lines[i].RequisitionId = pr.ID
		}
		if err := tx.Create(&lines).Error; err != nil {
			return err
		}
		priority := input.Priority
		if priority == "" {
			priority = pr.Priority
		}
		return tx.Model(pr).Updates(map[string]interface{}{
			"Date":            utils.DateOnly(input.Date),
			"RequiredDate":    input.RequiredDate,
			"Title":           input.Title,
			"Description":     input.Description,
			"Priority":        priority,
			"CurrencyCode":    strings.ToUpper(input.CurrencyCode),
			"Total":           requisitionTotal(lines),
			"Status":          RequisitionStatusDraft,
			"RejectionReason": "",
			"BudgetWarning":   "",
			"UpdatedBy":       currentUserIdOrZero(ctx),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return GetPurchaseRequisition(ctx, id)
}

func DeletePurchaseRequisition(ctx context.Context, id int) (*PurchaseRequisition, error) {
	var pr *PurchaseRequisition
	err := runInTx(ctx, func(tx *gorm.DB) error {
		var err error
		if pr, err = fetchModelForUpdate[PurchaseRequisition](ctx, tx, id); err != nil {
			return err
		}
		if pr.Status != RequisitionStatusDraft {
			return utils.NewValidationError("only draft requisitions can be deleted")
		}
		if err := tx.Where("requisition_id = ?", pr.ID).Delete(&PurchaseRequisitionLine{}).Error; err != nil {
			return err
		}
		return tx.Delete(pr).Error
	})
	if err != nil {
		return nil, err
	}
	return pr, nil
}

func GetPurchaseRequisition(ctx context.Context, id int) (*PurchaseRequisition, error) {
	var pr PurchaseRequisition
	err := config.GetDB().WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_number") }).
		First(&pr, id).Error
	if err != nil {
		return nil, notFound[PurchaseRequisition](err)
	}
	return &pr, nil
}

func ListPurchaseRequisitions(ctx context.Context, filter RequisitionFilter) ([]*PurchaseRequisition, error) {
	q := config.GetDB().WithContext(ctx)
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.RequesterId > 0 {
		q = q.Where("requester_id = ?", filter.RequesterId)
	}
	var results []*PurchaseRequisition
	err := q.Order("date DESC, id DESC").Limit(config.ListLimit).Find(&results).Error
	return results, err
}

// checkLinesBudget runs CheckBudget per combination. The first blocking
// result is returned as a validation error; non-blocking violations are
// collected into the warning text.
func checkLinesBudget(ctx context.Context, tx *gorm.DB, amounts map[int]decimal.Decimal, date time.Time) (string, error) {
	if !config.BudgetControlEnabled() {
		return "", nil
	}
	var warnings []string
	for _, combId := range sortedKeys(amounts) {
		segmentIds, err := combinationSegmentIds(ctx, tx, []int{combId})
		if err != nil {
			return "", err
		}
		result, err := CheckBudget(ctx, tx, segmentIds, amounts[combId], date)
		if err != nil {
			return "", err
		}
		if !result.Allowed {
			fields := make(map[string]string, len(result.Violations))
			for _, v := range result.Violations {
				fields[fmt.Sprintf("segment_%d", v.SegmentId)] = fmt.Sprintf("shortage %s", v.Shortage.StringFixed(2))
			}
			return "", utils.NewFieldValidationError(result.Message, fields)
		}
		if len(result.Violations) > 0 {
			warnings = append(warnings, result.Message)
		}
	}
	return strings.Join(utils.UniqueSlice(warnings), "; "), nil
}

// moveLinesBudget applies fn to the segments of every combination.
func moveLinesBudget(ctx context.Context, tx *gorm.DB, amounts map[int]decimal.Decimal, date time.Time,
	fn func(context.Context, *gorm.DB, []int, decimal.Decimal, time.Time) error) error {
	for _, combId := range sortedKeys(amounts) {
		segmentIds, err := combinationSegmentIds(ctx, tx, []int{combId})
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, segmentIds, amounts[combId], date); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func requisitionLines(ctx context.Context, tx *gorm.DB, id int) ([]PurchaseRequisitionLine, error) {
	var lines []PurchaseRequisitionLine
	err := tx.WithContext(ctx).Where("requisition_id = ?", id).Order("line_number").Find(&lines).Error
	return lines, err
}

// SubmitPurchaseRequisition checks the budget and starts the approval
// workflow. ABSOLUTE budget violations block the submission.
func SubmitPurchaseRequisition(ctx context.Context, id int) (*PurchaseRequisition, error) {
	err := runInTx(ctx, func(tx *gorm.DB) error {
		pr, err := fetchModelForUpdate[PurchaseRequisition](ctx, tx, id)
		if err != nil {
			return err
		}
		if pr.Status != RequisitionStatusDraft {
			return utils.NewValidationError("requisition %s is %s", pr.Number, pr.Status)
		}
		lines, err := requisitionLines(ctx, tx, pr.ID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return utils.NewValidationError("requisition has no lines")
		}
		warning, err := checkLinesBudget(ctx, tx, amountsByCombination(lines), pr.Date)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.Model(pr).Updates(map[string]interface{}{
			"Status":        RequisitionStatusPendingApproval,
			"SubmittedAt":   &now,
			"BudgetWarning": warning,
		}).Error; err != nil {
			return err
		}
		pr.Status = RequisitionStatusPendingApproval
		_, err = StartWorkflow(ctx, tx, pr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return GetPurchaseRequisition(ctx, id)
}

// CancelPurchaseRequisition cancels a requisition that has not been
// converted. An approved one releases its budget commitment.
func CancelPurchaseRequisition(ctx context.Context, id int, reason string) (*PurchaseRequisition, error) {
	err := runInTx(ctx, func(tx *gorm.DB) error {
		pr, err := fetchModelForUpdate[PurchaseRequisition](ctx, tx, id)
		if err != nil {
			return err
		}
		switch pr.Status {
		case RequisitionStatusPendingApproval:
			if err := CancelWorkflowFor(ctx, tx, pr, reason); err != nil {
				return err
			}
		case RequisitionStatusApproved:
			lines, err := requisitionLines(ctx, tx, pr.ID)
			if err != nil {
				return err
			}
			if err := moveLinesBudget(ctx, tx, amountsByCombination(lines), pr.Date, ReleaseCommitment); err != nil {
				return err
			}
		case RequisitionStatusDraft, RequisitionStatusRejected:
		default:
			return utils.NewValidationError("requisition %s is %s", pr.Number, pr.Status)
		}
		return tx.Model(pr).Updates(map[string]interface{}{
			"Status":             RequisitionStatusCancelled,
			"CancellationReason": reason,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return GetPurchaseRequisition(ctx, id)
}

func (pr *PurchaseRequisition) ApprovalContentType() string { return ContentTypePurchaseRequisition }

func (pr *PurchaseRequisition) ApprovalObjectId() int { return pr.ID }

func (pr *PurchaseRequisition) ApprovalOwnerId() int { return pr.RequesterId }

func (pr *PurchaseRequisition) CanRestartApproval() error {
	switch pr.Status {
	case RequisitionStatusPendingApproval, RequisitionStatusRejected, RequisitionStatusCancelled:
		return nil
	}
	return utils.NewValidationError("requisition %s is %s and cannot restart approval", pr.Number, pr.Status)
}

func (pr *PurchaseRequisition) OnApprovalStarted(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance) error {
	pr.Status = RequisitionStatusPendingApproval
	return tx.Model(pr).Update("Status", RequisitionStatusPendingApproval).Error
}

func (pr *PurchaseRequisition) OnStageApproved(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance, stage *ApprovalWorkflowStageInstance) error {
	return nil
}

// OnFullyApproved commits the requisition amount against the budget.
func (pr *PurchaseRequisition) OnFullyApproved(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance) error {
	now := time.Now().UTC()
	if err := tx.Model(pr).Updates(map[string]interface{}{
		"Status":     RequisitionStatusApproved,
		"ApprovedAt": &now,
	}).Error; err != nil {
		return err
	}
	pr.Status = RequisitionStatusApproved
	lines, err := requisitionLines(ctx, tx, pr.ID)
	if err != nil {
		return err
	}
	return moveLinesBudget(ctx, tx, amountsByCombination(lines), pr.Date, ConsumeCommitment)
}

func (pr *PurchaseRequisition) OnRejected(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance, comment string) error {
	pr.Status = RequisitionStatusRejected
	return tx.Model(pr).Updates(map[string]interface{}{
		"Status":          RequisitionStatusRejected,
		"RejectionReason": comment,
	}).Error
}

func (pr *PurchaseRequisition) OnCancelled(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance, reason string) error {
	pr.Status = RequisitionStatusCancelled
	return tx.Model(pr).Updates(map[string]interface{}{
		"Status":             RequisitionStatusCancelled,
		"CancellationReason": reason,
	}).Error
}
