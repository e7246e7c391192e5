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

type BudgetHeader struct {
	ID                  int                  `gorm:"primary_key" json:"id"`
	Code                string               `gorm:"size:50;not null;unique" json:"code"`
	Name                string               `gorm:"size:200;not null" json:"name"`
	StartDate           time.Time            `gorm:"type:date;not null" json:"start_date"`
	EndDate             time.Time            `gorm:"type:date;not null" json:"end_date"`
	CurrencyCode        string               `gorm:"size:3;not null" json:"currency_code"`
	DefaultControlLevel ControlLevel         `gorm:"size:20;not null;default:'ABSOLUTE'" json:"default_control_level"`
	Status              BudgetStatus         `gorm:"size:20;not null;default:'DRAFT';index" json:"status"`
	IsActive            *bool                `gorm:"not null;default:false" json:"is_active"`
	Description         string               `gorm:"type:text" json:"description"`
	ActivatedAt         *time.Time           `json:"activated_at"`
	ActivatedBy         *int                 `json:"activated_by"`
	SegmentValues       []BudgetSegmentValue `gorm:"foreignKey:HeaderId" json:"segment_values,omitempty"`
	Amounts             []BudgetAmount       `gorm:"foreignKey:HeaderId" json:"amounts,omitempty"`
	CreatedBy           int                  `json:"created_by"`
	UpdatedBy           int                  `json:"updated_by"`
	CreatedAt           time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

type BudgetSegmentValue struct {
	ID           int           `gorm:"primary_key" json:"id"`
	HeaderId     int           `gorm:"not null;index:uniq_budget_segment_value,unique,priority:1" json:"header_id"`
	SegmentId    int           `gorm:"not null;index:uniq_budget_segment_value,unique,priority:2" json:"segment_id"`
	ControlLevel *ControlLevel `gorm:"size:20" json:"control_level"`
	IsActive     *bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

type BudgetAmount struct {
	ID             int             `gorm:"primary_key" json:"id"`
	HeaderId       int             `gorm:"not null;index:uniq_budget_amount,unique,priority:1" json:"header_id"`
	SegmentId      int             `gorm:"not null;index:uniq_budget_amount,unique,priority:2" json:"segment_id"`
	Original       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"original"`
	Adjustment     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"adjustment"`
	Committed      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"committed"`
	Encumbered     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"encumbered"`
	Actual         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"actual"`
	Notes          string          `gorm:"type:text" json:"notes"`
	LastAdjustedAt *time.Time      `json:"last_adjusted_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBudget struct {
	Code                string             `json:"code" validate:"required,max=50"`
	Name                string             `json:"name" validate:"required,max=200"`
	StartDate           time.Time          `json:"start_date" validate:"required"`
	EndDate             time.Time          `json:"end_date" validate:"required"`
	CurrencyCode        string             `json:"currency_code" validate:"required,len=3"`
	DefaultControlLevel ControlLevel       `json:"default_control_level"`
	Description         string             `json:"description"`
	Segments            []NewBudgetSegment `json:"segments" validate:"dive"`
}

type NewBudgetSegment struct {
	SegmentId    int             `json:"segment_id" validate:"required"`
	ControlLevel *ControlLevel   `json:"control_level"`
	Amount       decimal.Decimal `json:"amount"`
}

type BudgetViolation struct {
	SegmentId    int             `json:"segment_id"`
	ControlLevel ControlLevel    `json:"control_level"`
	TotalBudget  decimal.Decimal `json:"total_budget"`
	Committed    decimal.Decimal `json:"committed"`
	Encumbered   decimal.Decimal `json:"encumbered"`
	Actual       decimal.Decimal `json:"actual"`
	Available    decimal.Decimal `json:"available"`
	Requested    decimal.Decimal `json:"requested"`
	Shortage     decimal.Decimal `json:"shortage"`
}

type BudgetCheckResult struct {
	Allowed      bool              `json:"allowed"`
	BudgetId     *int              `json:"budget_id"`
	ControlLevel ControlLevel      `json:"control_level"`
	Violations   []BudgetViolation `json:"violations"`
	Message      string            `json:"message"`
}

// budgetLine pairs an amount row with its effective control level.
type budgetLine struct {
	Amount BudgetAmount
	Level  ControlLevel
}

func (h BudgetHeader) Covers(date time.Time) bool {
	d := utils.DateOnly(date)
	return !d.Before(utils.DateOnly(h.StartDate)) && !d.After(utils.DateOnly(h.EndDate))
}

func (a BudgetAmount) TotalBudget() decimal.Decimal {
	return a.Original.Add(a.Adjustment)
}

func (a BudgetAmount) Consumed() decimal.Decimal {
	return a.Committed.Add(a.Encumbered).Add(a.Actual)
}

func (a BudgetAmount) Available() decimal.Decimal {
	return a.TotalBudget().Sub(a.Consumed())
}

// Utilization is the consumed share of the budget in percent.
func (a BudgetAmount) Utilization() decimal.Decimal {
	total := a.TotalBudget()
	if total.IsZero() {
		return decimal.Zero
	}
	return a.Consumed().Div(total).Mul(decimal.NewFromInt(100)).Round(2)
}

func (v BudgetSegmentValue) effectiveLevel(def ControlLevel) ControlLevel {
	if v.ControlLevel != nil && v.ControlLevel.IsValid() {
		return *v.ControlLevel
	}
	return def
}

func strictestLevel(levels []ControlLevel) ControlLevel {
	strictest := ControlLevelNone
	for _, l := range levels {
		if l.Rank() > strictest.Rank() {
			strictest = l
		}
	}
	return strictest
}

// evaluateBudget checks amount against every applicable line. Only an
// ABSOLUTE strictest level blocks.
func evaluateBudget(header BudgetHeader, lines []budgetLine, amount decimal.Decimal, date time.Time) BudgetCheckResult {
	id := header.ID
	result := BudgetCheckResult{Allowed: true, BudgetId: &id, ControlLevel: ControlLevelNone}
	if !header.Covers(date) {
		result.Allowed = false
		result.ControlLevel = ControlLevelAbsolute
		result.Message = fmt.Sprintf("transaction date %s is outside budget period (%s to %s)",
			date.Format("2006-01-02"), header.StartDate.Format("2006-01-02"), header.EndDate.Format("2006-01-02"))
		return result
	}
	if len(lines) == 0 {
		result.Message = "no budget control defined for these segments"
		return result
	}
	levels := make([]ControlLevel, 0, len(lines))
	for _, l := range lines {
		levels = append(levels, l.Level)
		available := l.Amount.Available()
		if available.LessThan(amount) {
			result.Violations = append(result.Violations, BudgetViolation{
				SegmentId:    l.Amount.SegmentId,
				ControlLevel: l.Level,
				TotalBudget:  l.Amount.TotalBudget(),
				Committed:    l.Amount.Committed,
				Encumbered:   l.Amount.Encumbered,
				Actual:       l.Amount.Actual,
				Available:    available,
				Requested:    amount,
				Shortage:     amount.Sub(available),
			})
		}
	}
	result.ControlLevel = strictestLevel(levels)
	if len(result.Violations) == 0 {
		result.Message = "budget check passed"
		return result
	}
	switch result.ControlLevel {
	case ControlLevelAbsolute:
		result.Allowed = false
		result.Message = "budget exceeded, transaction blocked by absolute control"
	case ControlLevelAdvisory:
		result.Message = "budget exceeded, advisory warning issued"
	case ControlLevelTrackOnly:
		result.Message = "budget exceeded, tracked for reporting only"
	default:
		result.Message = "budget exceeded but no control enforced"
	}
	return result
}

func (input *NewBudget) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.EndDate.Before(input.StartDate) {
		return utils.NewFieldValidationError("end date is before start date", map[string]string{"end_date": "gtefield"})
	}
	if input.DefaultControlLevel != "" && !input.DefaultControlLevel.IsValid() {
		return utils.NewFieldValidationError("invalid control level", map[string]string{"default_control_level": "oneof"})
	}
	seen := make(map[int]bool, len(input.Segments))
	for _, s := range input.Segments {
		if err := s.validate(); err != nil {
			return err
		}
		if seen[s.SegmentId] {
			return utils.NewValidationError("segment %d is listed twice", s.SegmentId)
		}
		seen[s.SegmentId] = true
	}
	return nil
}

func (s NewBudgetSegment) validate() error {
	if s.ControlLevel != nil && !s.ControlLevel.IsValid() {
		return utils.NewFieldValidationError("invalid control level", map[string]string{"control_level": "oneof"})
	}
	if s.Amount.IsNegative() {
		return utils.NewFieldValidationError("budget amount cannot be negative", map[string]string{"amount": "gte"})
	}
	return nil
}

func CreateBudget(ctx context.Context, input *NewBudget) (*BudgetHeader, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	level := input.DefaultControlLevel
	if level == "" {
		level = ControlLevelAbsolute
	}
	header := BudgetHeader{
		Code:                strings.ToUpper(strings.TrimSpace(input.Code)),
		Name:                input.Name,
		StartDate:           utils.DateOnly(input.StartDate),
		EndDate:             utils.DateOnly(input.EndDate),
		CurrencyCode:        strings.ToUpper(input.CurrencyCode),
		DefaultControlLevel: level,
		Status:              BudgetStatusDraft,
		IsActive:            utils.NewFalse(),
		Description:         input.Description,
	}
	err := runInTx(ctx, func(tx *gorm.DB) error {
		err := tx.Create(&header).Error
		if isDuplicateKeyError(err) {
			return utils.NewFieldValidationError("budget code already exists", map[string]string{"code": "unique"})
		}
		if err != nil {
			return err
		}
		for _, s := range input.Segments {
			if err := upsertBudgetSegment(ctx, tx, header.ID, s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetBudget(ctx, header.ID)
}

func upsertBudgetSegment(ctx context.Context, tx *gorm.DB, headerId int, s NewBudgetSegment) error {
	if _, err := fetchModel[Segment](ctx, tx, s.SegmentId); err != nil {
		return err
	}
	var value BudgetSegmentValue
	err := tx.Where("header_id = ? AND segment_id = ?", headerId, s.SegmentId).
		Attrs(BudgetSegmentValue{IsActive: utils.NewTrue()}).
		FirstOrCreate(&value, BudgetSegmentValue{HeaderId: headerId, SegmentId: s.SegmentId}).Error
	if err != nil {
		return err
	}
	if err := tx.Model(&value).Update("ControlLevel", s.ControlLevel).Error; err != nil {
		return err
	}
	var amount BudgetAmount
	if err := tx.Where("header_id = ? AND segment_id = ?", headerId, s.SegmentId).
		FirstOrCreate(&amount, BudgetAmount{HeaderId: headerId, SegmentId: s.SegmentId}).Error; err != nil {
		return err
	}
	return tx.Model(&amount).Update("Original", s.Amount).Error
}

// withDraftBudget locks a draft budget and runs fn.
func withDraftBudget(ctx context.Context, id int, fn func(tx *gorm.DB, h *BudgetHeader) error) (*BudgetHeader, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	err := runInTx(ctx, func(tx *gorm.DB) error {
		h, err := fetchModelForUpdate[BudgetHeader](ctx, tx, id)
		if err != nil {
			return err
		}
		if h.Status != BudgetStatusDraft {
			return utils.NewValidationError("budget %s is %s", h.Code, h.Status)
		}
		return fn(tx, h)
	})
	if err != nil {
		return nil, err
	}
	return GetBudget(ctx, id)
}

func UpdateBudget(ctx context.Context, id int, input *NewBudget) (*BudgetHeader, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	return withDraftBudget(ctx, id, func(tx *gorm.DB, h *BudgetHeader) error {
		level := input.DefaultControlLevel
		if level == "" {
			level = h.DefaultControlLevel
		}
		if err := tx.Model(h).Updates(map[string]interface{}{
			"Name":                input.Name,
			"StartDate":           utils.DateOnly(input.StartDate),
			"EndDate":             utils.DateOnly(input.EndDate),
			"CurrencyCode":        strings.ToUpper(input.CurrencyCode),
			"DefaultControlLevel": level,
			"Description":         input.Description,
		}).Error; err != nil {
			return err
		}
		for _, s := range input.Segments {
			if err := upsertBudgetSegment(ctx, tx, h.ID, s); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetBudgetSegment adds or replaces one segment line of a draft budget.
func SetBudgetSegment(ctx context.Context, id int, input *NewBudgetSegment) (*BudgetHeader, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	return withDraftBudget(ctx, id, func(tx *gorm.DB, h *BudgetHeader) error {
		return upsertBudgetSegment(ctx, tx, h.ID, *input)
	})
}

func RemoveBudgetSegment(ctx context.Context, id int, segmentId int) (*BudgetHeader, error) {
	return withDraftBudget(ctx, id, func(tx *gorm.DB, h *BudgetHeader) error {
		if err := tx.Where("header_id = ? AND segment_id = ?", h.ID, segmentId).Delete(&BudgetAmount{}).Error; err != nil {
			return err
		}
		return tx.Where("header_id = ? AND segment_id = ?", h.ID, segmentId).Delete(&BudgetSegmentValue{}).Error
	})
}

func DeleteBudget(ctx context.Context, id int) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	return runInTx(ctx, func(tx *gorm.DB) error {
		h, err := fetchModelForUpdate[BudgetHeader](ctx, tx, id)
		if err != nil {
			return err
		}
		if h.Status != BudgetStatusDraft {
			return utils.NewValidationError("budget %s is %s", h.Code, h.Status)
		}
		var consumed int64
		if err := tx.Model(&BudgetAmount{}).
			Where("header_id = ? AND (committed <> 0 OR encumbered <> 0 OR actual <> 0)", h.ID).
			Count(&consumed).Error; err != nil {
			return err
		}
		if consumed > 0 {
			return utils.NewValidationError("budget %s has consumption recorded", h.Code)
		}
		if err := tx.Where("header_id = ?", h.ID).Delete(&BudgetAmount{}).Error; err != nil {
			return err
		}
		if err := tx.Where("header_id = ?", h.ID).Delete(&BudgetSegmentValue{}).Error; err != nil {
			return err
		}
		return tx.Delete(h).Error
	})
}

func GetBudget(ctx context.Context, id int) (*BudgetHeader, error) {
	return fetchModel[BudgetHeader](ctx, nil, id, "SegmentValues", "Amounts")
}

func ListBudgets(ctx context.Context, status *BudgetStatus) ([]*BudgetHeader, error) {
	q := config.GetDB().WithContext(ctx)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var results []*BudgetHeader
	err := q.Order("start_date DESC, id DESC").Limit(config.ListLimit).Find(&results).Error
	return results, err
}

// ActivateBudget requires segment lines and no other active budget over an
// overlapping period.
func ActivateBudget(ctx context.Context, id int) (*BudgetHeader, error) {
	return withDraftBudget(ctx, id, func(tx *gorm.DB, h *BudgetHeader) error {
		var values, amounts, overlapping int64
		if err := tx.Model(&BudgetSegmentValue{}).Where("header_id = ?", h.ID).Count(&values).Error; err != nil {
			return err
		}
		if err := tx.Model(&BudgetAmount{}).Where("header_id = ?", h.ID).Count(&amounts).Error; err != nil {
			return err
		}
		if values == 0 || amounts == 0 {
			return utils.NewValidationError("budget must have at least one segment and amount before activation")
		}
		if err := tx.Model(&BudgetHeader{}).
			Where("id <> ? AND status = ? AND start_date <= ? AND end_date >= ?", h.ID, BudgetStatusActive, h.EndDate, h.StartDate).
			Count(&overlapping).Error; err != nil {
			return err
		}
		if overlapping > 0 {
			return utils.ConflictError("another active budget covers part of %s to %s",
				h.StartDate.Format("2006-01-02"), h.EndDate.Format("2006-01-02"))
		}
		now := time.Now().UTC()
		return tx.Model(h).Updates(map[string]interface{}{
			"Status":      BudgetStatusActive,
			"IsActive":    true,
			"ActivatedAt": &now,
			"ActivatedBy": currentUserId(ctx),
		}).Error
	})
}

func CloseBudget(ctx context.Context, id int) (*BudgetHeader, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	err := runInTx(ctx, func(tx *gorm.DB) error {
		h, err := fetchModelForUpdate[BudgetHeader](ctx, tx, id)
		if err != nil {
			return err
		}
		if h.Status == BudgetStatusClosed {
			return utils.ConflictError("budget %s is already closed", h.Code)
		}
		return tx.Model(h).Updates(map[string]interface{}{
			"Status":   BudgetStatusClosed,
			"IsActive": false,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return GetBudget(ctx, id)
}

// AdjustBudget moves the adjustment of one segment by delta. The total budget
// may not fall below what is already consumed.
func AdjustBudget(ctx context.Context, id int, segmentId int, delta decimal.Decimal, reason string) (*BudgetAmount, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if delta.IsZero() {
		return nil, utils.NewValidationError("adjustment cannot be zero")
	}
	var amount BudgetAmount
	err := runInTx(ctx, func(tx *gorm.DB) error {
		h, err := fetchModel[BudgetHeader](ctx, tx, id)
		if err != nil {
			return err
		}
		if h.Status == BudgetStatusClosed {
			return utils.NewValidationError("budget %s is closed", h.Code)
		}
		if err := lockForUpdate(tx).Where("header_id = ? AND segment_id = ?", id, segmentId).First(&amount).Error; err != nil {
			return notFound[BudgetAmount](err)
		}
		amount.Adjustment = amount.Adjustment.Add(delta)
		if amount.TotalBudget().LessThan(amount.Consumed()) {
			return utils.NewValidationError("adjustment leaves the budget below consumed %s", amount.Consumed().StringFixed(2))
		}
		now := time.Now().UTC()
		notes := amount.Notes
		if reason = strings.TrimSpace(reason); reason != "" {
			notes = strings.TrimSpace(fmt.Sprintf("%s\n[%s] Adjustment: %s - %s", notes, now.Format("2006-01-02"), delta.String(), reason))
		}
		return tx.Model(&amount).Updates(map[string]interface{}{
			"Adjustment":     amount.Adjustment,
			"Notes":          notes,
			"LastAdjustedAt": &now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &amount, nil
}

func activeBudgetFor(ctx context.Context, tx *gorm.DB, date time.Time) (*BudgetHeader, error) {
	var h BudgetHeader
	err := txOrDB(ctx, tx).
		Where("status = ? AND is_active = ? AND start_date <= ? AND end_date >= ?", BudgetStatusActive, true, utils.DateOnly(date), utils.DateOnly(date)).
		Order("id").
		First(&h).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func applicableBudgetLines(ctx context.Context, tx *gorm.DB, h *BudgetHeader, segmentIds []int, forUpdate bool) ([]budgetLine, error) {
	if len(segmentIds) == 0 {
		return nil, nil
	}
	var values []BudgetSegmentValue
	if err := txOrDB(ctx, tx).Where("header_id = ? AND segment_id IN ? AND is_active = ?", h.ID, segmentIds, true).
		Find(&values).Error; err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	levelBySegment := make(map[int]ControlLevel, len(values))
	ids := make([]int, 0, len(values))
	for _, v := range values {
		levelBySegment[v.SegmentId] = v.effectiveLevel(h.DefaultControlLevel)
		ids = append(ids, v.SegmentId)
	}
	q := txOrDB(ctx, tx)
	if forUpdate {
		q = lockForUpdate(q)
	}
	var amounts []BudgetAmount
	if err := q.Where("header_id = ? AND segment_id IN ?", h.ID, ids).Order("segment_id").Find(&amounts).Error; err != nil {
		return nil, err
	}
	lines := make([]budgetLine, 0, len(amounts))
	for _, a := range amounts {
		lines = append(lines, budgetLine{Amount: a, Level: levelBySegment[a.SegmentId]})
	}
	return lines, nil
}

// CheckBudget reports whether amount fits the active budget on date for the
// given segments. No active budget means allowed.
func CheckBudget(ctx context.Context, tx *gorm.DB, segmentIds []int, amount decimal.Decimal, date time.Time) (*BudgetCheckResult, error) {
	h, err := activeBudgetFor(ctx, tx, date)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return &BudgetCheckResult{Allowed: true, ControlLevel: ControlLevelNone, Message: "no active budget for this date"}, nil
	}
	lines, err := applicableBudgetLines(ctx, tx, h, utils.UniqueSlice(segmentIds), false)
	if err != nil {
		return nil, err
	}
	result := evaluateBudget(*h, lines, amount, date)
	return &result, nil
}

type budgetBucket string

const (
	bucketCommitted  budgetBucket = "Committed"
	bucketEncumbered budgetBucket = "Encumbered"
	bucketActual     budgetBucket = "Actual"
)

func (a *BudgetAmount) bucket(b budgetBucket) *decimal.Decimal {
	switch b {
	case bucketCommitted:
		return &a.Committed
	case bucketEncumbered:
		return &a.Encumbered
	default:
		return &a.Actual
	}
}

// consume adds amount to the bucket.
func (a *BudgetAmount) consume(b budgetBucket, amount decimal.Decimal) {
	p := a.bucket(b)
	*p = p.Add(amount)
}

// release takes amount out of the bucket, never below zero, and returns what
// was actually released.
func (a *BudgetAmount) release(b budgetBucket, amount decimal.Decimal) decimal.Decimal {
	p := a.bucket(b)
	released := utils.MinDecimal(*p, amount)
	*p = p.Sub(released)
	return released
}

// moveBudget applies one consumption change to every applicable amount row
// of the active budget on date.
func moveBudget(ctx context.Context, tx *gorm.DB, segmentIds []int, amount decimal.Decimal, date time.Time, b budgetBucket, consume bool) error {
	if !config.BudgetControlEnabled() || !amount.IsPositive() {
		return nil
	}
	h, err := activeBudgetFor(ctx, tx, date)
	if err != nil || h == nil {
		return err
	}
	lines, err := applicableBudgetLines(ctx, tx, h, utils.UniqueSlice(segmentIds), true)
	if err != nil {
		return err
	}
	for _, l := range lines {
		a := l.Amount
		if consume {
			a.consume(b, amount)
		} else {
			a.release(b, amount)
		}
		if err := tx.Model(&a).Update(string(b), *a.bucket(b)).Error; err != nil {
			return err
		}
	}
	return nil
}

func ConsumeCommitment(ctx context.Context, tx *gorm.DB, segmentIds []int, amount decimal.Decimal, date time.Time) error {
	return moveBudget(ctx, tx, segmentIds, amount, date, bucketCommitted, true)
}

func ReleaseCommitment(ctx context.Context, tx *gorm.DB, segmentIds []int, amount decimal.Decimal, date time.Time) error {
	return moveBudget(ctx, tx, segmentIds, amount, date, bucketCommitted, false)
}

func ConsumeEncumbrance(ctx context.Context, tx *gorm.DB, segmentIds []int, amount decimal.Decimal, date time.Time) error {
	return moveBudget(ctx, tx, segmentIds, amount, date, bucketEncumbered, true)
}

func ReleaseEncumbrance(ctx context.Context, tx *gorm.DB, segmentIds []int, amount decimal.Decimal, date time.Time) error {
	return moveBudget(ctx, tx, segmentIds, amount, date, bucketEncumbered, false)
}

// ConsumeActual records posted spending. It never blocks.
func ConsumeActual(ctx context.Context, tx *gorm.DB, segmentIds []int, amount decimal.Decimal, date time.Time) error {
	return moveBudget(ctx, tx, segmentIds, amount, date, bucketActual, true)
}
