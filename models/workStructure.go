package models

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/erp_backend/utils"
	"gorm.io/gorm"
)

type Organization struct {
	ID         int    `gorm:"primary_key" json:"id"`
	Code       string `gorm:"size:50;not null;index" json:"code"`
	Name       string `gorm:"size:128;not null" json:"name"`
	ParentCode string `gorm:"size:50;index" json:"parent_code"`
	Location   string `gorm:"size:255" json:"location"`
	EffectivePeriod
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Job struct {
	ID          int    `gorm:"primary_key" json:"id"`
	Code        string `gorm:"size:50;not null;index" json:"code"`
	Name        string `gorm:"size:128;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	EffectivePeriod
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Position struct {
	ID               int    `gorm:"primary_key" json:"id"`
	Code             string `gorm:"size:50;not null;index" json:"code"`
	Name             string `gorm:"size:128;not null" json:"name"`
	OrganizationCode string `gorm:"size:50;not null;index" json:"organization_code"`
	JobCode          string `gorm:"size:50;not null;index" json:"job_code"`
	Headcount        int    `gorm:"not null;default:1" json:"headcount"`
	EffectivePeriod
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOrganization struct {
	Code               string     `json:"code" validate:"required,max=50"`
	Name               string     `json:"name" validate:"required,max=128"`
	ParentCode         string     `json:"parent_code" validate:"max=50"`
	Location           string     `json:"location" validate:"max=255"`
	EffectiveStartDate time.Time  `json:"effective_start_date" validate:"required"`
	EffectiveEndDate   *time.Time `json:"effective_end_date"`
}

type OrganizationChanges struct {
	Name               *string    `json:"name" validate:"omitempty,max=128"`
	ParentCode         *string    `json:"parent_code" validate:"omitempty,max=50"`
	Location           *string    `json:"location" validate:"omitempty,max=255"`
	EffectiveStartDate *time.Time `json:"effective_start_date"`
}

type NewJob struct {
	Code               string     `json:"code" validate:"required,max=50"`
	Name               string     `json:"name" validate:"required,max=128"`
	Description        string     `json:"description"`
	EffectiveStartDate time.Time  `json:"effective_start_date" validate:"required"`
	EffectiveEndDate   *time.Time `json:"effective_end_date"`
}

type JobChanges struct {
	Name               *string    `json:"name" validate:"omitempty,max=128"`
	Description        *string    `json:"description"`
	EffectiveStartDate *time.Time `json:"effective_start_date"`
}

type NewPosition struct {
	Code               string     `json:"code" validate:"required,max=50"`
	Name               string     `json:"name" validate:"required,max=128"`
	OrganizationCode   string     `json:"organization_code" validate:"required,max=50"`
	JobCode            string     `json:"job_code" validate:"required,max=50"`
	Headcount          int        `json:"headcount" validate:"gte=0"`
	EffectiveStartDate time.Time  `json:"effective_start_date" validate:"required"`
	EffectiveEndDate   *time.Time `json:"effective_end_date"`
}

type PositionChanges struct {
	Name               *string    `json:"name" validate:"omitempty,max=128"`
	OrganizationCode   *string    `json:"organization_code" validate:"omitempty,max=50"`
	JobCode            *string    `json:"job_code" validate:"omitempty,max=50"`
	Headcount          *int       `json:"headcount" validate:"omitempty,gte=0"`
	EffectiveStartDate *time.Time `json:"effective_start_date"`
}

func (o *Organization) versionKey() (string, string) { return "code", o.Code }
func (o *Organization) effective() *EffectivePeriod { return &o.EffectivePeriod }
func (o *Organization) recordId() int { return o.ID }
func (o *Organization) resetId() { o.ID = 0 }

func (j *Job) versionKey() (string, string) { return "code", j.Code }
func (j *Job) effective() *EffectivePeriod { return &j.EffectivePeriod }
func (j *Job) recordId() int { return j.ID }
func (j *Job) resetId() { j.ID = 0 }

func (p *Position) versionKey() (string, string) { return "code", p.Code }
func (p *Position) effective() *EffectivePeriod { return &p.EffectivePeriod }
func (p *Position) recordId() int { return p.ID }
func (p *Position) resetId() { p.ID = 0 }

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func newEffectivePeriod(start time.Time, end *time.Time) EffectivePeriod {
	p := EffectivePeriod{EffectiveStartDate: utils.DateOnly(start)}
	if end != nil {
		d := utils.DateOnly(*end)
		p.EffectiveEndDate = &d
	}
	return p
}

func (o *Organization) checkParent(ctx context.Context, tx *gorm.DB) error {
	if o.ParentCode == "" {
		return nil
	}
	if o.ParentCode == o.Code {
		return utils.NewFieldValidationError("organization cannot be its own parent", map[string]string{"parent_code": "self"})
	}
	return requireActiveReference[Organization](ctx, tx, "code", o.ParentCode, o.EffectiveStartDate, "parent_code")
}

func (p *Position) checkReferences(ctx context.Context, tx *gorm.DB) error {
	if err := requireActiveReference[Organization](ctx, tx, "code", p.OrganizationCode, p.EffectiveStartDate, "organization_code"); err != nil {
		return err
	}
	return requireActiveReference[Job](ctx, tx, "code", p.JobCode, p.EffectiveStartDate, "job_code")
}

func CreateOrganization(ctx context.Context, input *NewOrganization) (*Organization, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	org := &Organization{
		Code:            normalizeCode(input.Code),
		Name:            input.Name,
		ParentCode:      normalizeCode(input.ParentCode),
		Location:        input.Location,
		EffectivePeriod: newEffectivePeriod(input.EffectiveStartDate, input.EffectiveEndDate),
	}
	err := runInTx(ctx, func(tx *gorm.DB) error {
		if err := org.checkParent(ctx, tx); err != nil {
			return err
		}
		return saveVersion[Organization](ctx, tx, org)
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

func UpdateOrganization(ctx context.Context, id int, input *OrganizationChanges) (*Organization, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	return updateVersion[Organization](ctx, id, input.EffectiveStartDate, func(tx *gorm.DB, o *Organization) error {
		if input.Name != nil {
			o.Name = *input.Name
		}
		if input.ParentCode != nil {
			o.ParentCode = normalizeCode(*input.ParentCode)
		}
		if input.Location != nil {
			o.Location = *input.Location
		}
		return o.checkParent(ctx, tx)
	})
}

func DeactivateOrganization(ctx context.Context, id int, endDate *time.Time) (*Organization, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return deactivateVersion[Organization](ctx, id, endDate)
}

func GetOrganization(ctx context.Context, id int) (*Organization, error) {
	return fetchModel[Organization](ctx, nil, id)
}

func GetOrganizationOn(ctx context.Context, code string, date time.Time) (*Organization, error) {
	return findVersionOn[Organization](ctx, nil, "code", normalizeCode(code), date)
}

func ListOrganizations(ctx context.Context, activeOn *time.Time) ([]*Organization, error) {
	return listVersionsOn[Organization](ctx, activeOn, "code, effective_start_date DESC")
}

func OrganizationHistory(ctx context.Context, code string) ([]*Organization, error) {
	return versionHistory[Organization](ctx, "code", normalizeCode(code))
}

func CreateJob(ctx context.Context, input *NewJob) (*Job, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	job := &Job{
		Code:            normalizeCode(input.Code),
		Name:            input.Name,
		Description:     input.Description,
		EffectivePeriod: newEffectivePeriod(input.EffectiveStartDate, input.EffectiveEndDate),
	}
	err := runInTx(ctx, func(tx *gorm.DB) error {
		return saveVersion[Job](ctx, tx, job)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func UpdateJob(ctx context.Context, id int, input *JobChanges) (*Job, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	return updateVersion[Job](ctx, id, input.EffectiveStartDate, func(tx *gorm.DB, j *Job) error {
		if input.Name != nil {
			j.Name = *input.Name
		}
		if input.Description != nil {
			j.Description = *input.Description
		}
		return nil
	})
}

func DeactivateJob(ctx context.Context, id int, endDate *time.Time) (*Job, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return deactivateVersion[Job](ctx, id, endDate)
}

func GetJobOn(ctx context.Context, code string, date time.Time) (*Job, error) {
	return findVersionOn[Job](ctx, nil, "code", normalizeCode(code), date)
}

func ListJobs(ctx context.Context, activeOn *time.Time) ([]*Job, error) {
	return listVersionsOn[Job](ctx, activeOn, "code, effective_start_date DESC")
}

func JobHistory(ctx context.Context, code string) ([]*Job, error) {
	return versionHistory[Job](ctx, "code", normalizeCode(code))
}

func CreatePosition(ctx context.Context, input *NewPosition) (*Position, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	headcount := input.Headcount
	if headcount == 0 {
		headcount = 1
	}
	pos := &Position{
		Code:             normalizeCode(input.Code),
		Name:             input.Name,
		OrganizationCode: normalizeCode(input.OrganizationCode),
		JobCode:          normalizeCode(input.JobCode),
		Headcount:        headcount,
		EffectivePeriod:  newEffectivePeriod(input.EffectiveStartDate, input.EffectiveEndDate),
	}
	err := runInTx(ctx, func(tx *gorm.DB) error {
		if err := pos.checkReferences(ctx, tx); err != nil {
			return err
		}
		return saveVersion[Position](ctx, tx, pos)
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

func UpdatePosition(ctx context.Context, id int, input *PositionChanges) (*Position, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	return updateVersion[Position](ctx, id, input.EffectiveStartDate, func(tx *gorm.DB, p *Position) error {
		if input.Name != nil {
			p.Name = *input.Name
		}
		if input.OrganizationCode != nil {
			p.OrganizationCode = normalizeCode(*input.OrganizationCode)
		}
		if input.JobCode != nil {
			p.JobCode = normalizeCode(*input.JobCode)
		}
		if input.Headcount != nil {
			p.Headcount = *input.Headcount
		}
		return p.checkReferences(ctx, tx)
	})
}

func DeactivatePosition(ctx context.Context, id int, endDate *time.Time) (*Position, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return deactivateVersion[Position](ctx, id, endDate)
}

func GetPositionOn(ctx context.Context, code string, date time.Time) (*Position, error) {
	return findVersionOn[Position](ctx, nil, "code", normalizeCode(code), date)
}

func ListPositions(ctx context.Context, activeOn *time.Time) ([]*Position, error) {
	return listVersionsOn[Position](ctx, activeOn, "code, effective_start_date DESC")
}

func PositionHistory(ctx context.Context, code string) ([]*Position, error) {
	return versionHistory[Position](ctx, "code", normalizeCode(code))
}
