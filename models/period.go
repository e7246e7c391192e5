package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"gorm.io/gorm"
)

// Period is an accounting period. Each module (AR, AP, GL) opens and closes
// it independently through ModulePeriodState.
type Period struct {
	ID           int                 `gorm:"primary_key" json:"id"`
	Name         string              `gorm:"size:50;not null;unique" json:"name"`
	StartDate    time.Time           `gorm:"type:date;not null;index" json:"start_date"`
	EndDate      time.Time           `gorm:"type:date;not null;index" json:"end_date"`
	FiscalYear   int                 `gorm:"not null;index:uniq_period_number,unique,priority:1" json:"fiscal_year"`
	PeriodNumber int                 `gorm:"not null;index:uniq_period_number,unique,priority:2" json:"period_number"`
	IsAdjustment bool                `gorm:"not null;default:false" json:"is_adjustment"`
	States       []ModulePeriodState `gorm:"foreignKey:PeriodId" json:"states"`
	CreatedAt    time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type ModulePeriodState struct {
	ID        int          `gorm:"primary_key" json:"id"`
	PeriodId  int          `gorm:"not null;index:uniq_period_module,unique,priority:1" json:"period_id"`
	Module    PeriodModule `gorm:"size:2;not null;index:uniq_period_module,unique,priority:2" json:"module"`
	State     PeriodState  `gorm:"size:10;not null;default:'closed'" json:"state"`
	UpdatedBy int          `json:"updated_by"`
	UpdatedAt time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPeriod struct {
	Name         string    `json:"name" validate:"required,max=50"`
	StartDate    time.Time `json:"start_date" validate:"required"`
	EndDate      time.Time `json:"end_date" validate:"required"`
	FiscalYear   int       `json:"fiscal_year" validate:"required"`
	PeriodNumber int       `json:"period_number" validate:"required,gte=1"`
	IsAdjustment bool      `json:"is_adjustment"`
}

type GeneratePeriodsInput struct {
	FiscalYear        int       `json:"fiscal_year" validate:"required"`
	StartDate         time.Time `json:"start_date" validate:"required"`
	NumPeriods        int       `json:"num_periods" validate:"required,gte=1,lte=24"`
	AdjustmentPeriods int       `json:"adjustment_periods" validate:"gte=0,lte=4"`
}

func (p Period) Contains(date time.Time) bool {
	d := utils.DateOnly(date)
	return !d.Before(utils.DateOnly(p.StartDate)) && !d.After(utils.DateOnly(p.EndDate))
}

func (p Period) StateOf(module PeriodModule) PeriodState {
	for _, s := range p.States {
		if s.Module == module {
			return s.State
		}
	}
	return PeriodStateClosed
}

func (input *NewPeriod) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if utils.DateOnly(input.EndDate).Before(utils.DateOnly(input.StartDate)) {
		return utils.NewFieldValidationError("end date is before start date", map[string]string{"end_date": "gtefield"})
	}
	return nil
}

func CreatePeriod(ctx context.Context, input *NewPeriod) (*Period, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	period := newPeriodRow(*input)
	if err := config.GetDB().WithContext(ctx).Create(&period).Error; err != nil {
		if isDuplicateKeyError(err) {
			return nil, utils.ConflictError("period %s or number %d/%d already exists", input.Name, input.FiscalYear, input.PeriodNumber)
		}
		return nil, err
	}
	return &period, nil
}

func newPeriodRow(input NewPeriod) Period {
	states := make([]ModulePeriodState, 0, len(periodModules))
	for _, m := range periodModules {
		states = append(states, ModulePeriodState{Module: m, State: PeriodStateClosed})
	}
	return Period{
		Name:         input.Name,
		StartDate:    utils.DateOnly(input.StartDate),
		EndDate:      utils.DateOnly(input.EndDate),
		FiscalYear:   input.FiscalYear,
		PeriodNumber: input.PeriodNumber,
		IsAdjustment: input.IsAdjustment,
		States:       states,
	}
}

// buildPeriods lays out numPeriods monthly periods from start, then
// adjustment periods dated on the last day of the final month.
func buildPeriods(input GeneratePeriodsInput) []NewPeriod {
	start := utils.DateOnly(input.StartDate)
	out := make([]NewPeriod, 0, input.NumPeriods+input.AdjustmentPeriods)
	var lastEnd time.Time
	for i := 0; i < input.NumPeriods; i++ {
		ps := start.AddDate(0, i, 0)
		pe := start.AddDate(0, i+1, -1)
		lastEnd = pe
		out = append(out, NewPeriod{
			Name:         fmt.Sprintf("%s-%d", ps.Format("Jan"), input.FiscalYear),
			StartDate:    ps,
			EndDate:      pe,
			FiscalYear:   input.FiscalYear,
			PeriodNumber: i + 1,
		})
	}
	for i := 0; i < input.AdjustmentPeriods; i++ {
		out = append(out, NewPeriod{
			Name:         fmt.Sprintf("ADJ%d-%d", i+1, input.FiscalYear),
			StartDate:    lastEnd,
			EndDate:      lastEnd,
			FiscalYear:   input.FiscalYear,
			PeriodNumber: input.NumPeriods + i + 1,
			IsAdjustment: true,
		})
	}
	return out
}

func GeneratePeriods(ctx context.Context, input *GeneratePeriodsInput) ([]*Period, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.StartDate.Day() != 1 {
		return nil, utils.NewFieldValidationError("start date must be the first day of a month", map[string]string{"start_date": "first_day"})
	}
	var results []*Period
	err := runInTx(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Period{}).Where("fiscal_year = ?", input.FiscalYear).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return utils.ConflictError("fiscal year %d already has %d periods", input.FiscalYear, count)
		}
		for _, np := range buildPeriods(*input) {
			p := newPeriodRow(np)
			if err := tx.Create(&p).Error; err != nil {
				if isDuplicateKeyError(err) {
					return utils.ConflictError("period %s already exists", np.Name)
				}
				return err
			}
			results = append(results, &p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func ListPeriods(ctx context.Context, fiscalYear int) ([]*Period, error) {
	q := config.GetDB().WithContext(ctx).Preload("States").Order("fiscal_year, period_number")
	if fiscalYear > 0 {
		q = q.Where("fiscal_year = ?", fiscalYear)
	}
	var results []*Period
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func OpenPeriod(ctx context.Context, periodId int, module PeriodModule) (*Period, error) {
	return setPeriodState(ctx, periodId, module, PeriodStateOpen)
}

func ClosePeriod(ctx context.Context, periodId int, module PeriodModule) (*Period, error) {
	return setPeriodState(ctx, periodId, module, PeriodStateClosed)
}

func setPeriodState(ctx context.Context, periodId int, module PeriodModule, state PeriodState) (*Period, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if !module.IsValid() {
		return nil, utils.NewValidationError("invalid period module %s", module)
	}
	err := runInTx(ctx, func(tx *gorm.DB) error {
		if _, err := fetchModelForUpdate[Period](ctx, tx, periodId); err != nil {
			return err
		}
		var ps ModulePeriodState
		err := tx.Where("period_id = ? AND module = ?", periodId, module).First(&ps).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ps = ModulePeriodState{PeriodId: periodId, Module: module, State: state, UpdatedBy: currentUserIdOrZero(ctx)}
			return tx.Create(&ps).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&ps).Updates(map[string]interface{}{"State": state, "UpdatedBy": currentUserIdOrZero(ctx)}).Error
	})
	if err != nil {
		return nil, err
	}
	return fetchModel[Period](ctx, nil, periodId, "States")
}

// ValidatePeriodOpen fails unless a normal (non adjustment) period covering
// date is open for module.
func ValidatePeriodOpen(ctx context.Context, tx *gorm.DB, module PeriodModule, date time.Time) error {
	d := utils.DateOnly(date)
	var period Period
	err := txOrDB(ctx, tx).Preload("States").
		Where("is_adjustment = ? AND start_date <= ? AND end_date >= ?", false, d, d).
		Order("start_date DESC").First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NewValidationError("no %s period found for %s", module, d.Format("2006-01-02"))
		}
		return err
	}
	return checkPeriodOpen(period, module)
}

func checkPeriodOpen(period Period, module PeriodModule) error {
	if period.StateOf(module) != PeriodStateOpen {
		return utils.NewValidationError("%s period %s is closed", module, period.Name)
	}
	return nil
}
