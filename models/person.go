package models

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/erp_backend/utils"
	"gorm.io/gorm"
)

type Person struct {
	ID             int        `gorm:"primary_key" json:"id"`
	EmployeeNumber string     `gorm:"size:30;not null;index" json:"employee_number"`
	FirstName      string     `gorm:"size:100;not null" json:"first_name"`
	MiddleName     string     `gorm:"size:100" json:"middle_name"`
	LastName       string     `gorm:"size:100;not null" json:"last_name"`
	Email          string     `gorm:"size:255;index" json:"email"`
	Phone          string     `gorm:"size:20" json:"phone"`
	Country        string     `gorm:"size:2" json:"country"`
	DateOfBirth    *time.Time `gorm:"type:date" json:"date_of_birth"`
	HireDate       *time.Time `gorm:"type:date" json:"hire_date"`
	PositionCode   string     `gorm:"size:50;index" json:"position_code"`
	UserId         *int       `gorm:"index" json:"user_id"`
	EffectivePeriod
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPerson struct {
	EmployeeNumber     string     `json:"employee_number" validate:"required,max=30"`
	FirstName          string     `json:"first_name" validate:"required,max=100"`
	MiddleName         string     `json:"middle_name" validate:"max=100"`
	LastName           string     `json:"last_name" validate:"required,max=100"`
	Email              string     `json:"email" validate:"omitempty,email,max=255"`
	Phone              string     `json:"phone"`
	Country            string     `json:"country" validate:"omitempty,len=2"`
	DateOfBirth        *time.Time `json:"date_of_birth"`
	HireDate           *time.Time `json:"hire_date"`
	PositionCode       string     `json:"position_code" validate:"max=50"`
	UserId             *int       `json:"user_id"`
	EffectiveStartDate time.Time  `json:"effective_start_date" validate:"required"`
	EffectiveEndDate   *time.Time `json:"effective_end_date"`
}

type PersonChanges struct {
	FirstName          *string    `json:"first_name" validate:"omitempty,max=100"`
	MiddleName         *string    `json:"middle_name" validate:"omitempty,max=100"`
	LastName           *string    `json:"last_name" validate:"omitempty,max=100"`
	Email              *string    `json:"email" validate:"omitempty,email,max=255"`
	Phone              *string    `json:"phone"`
	Country            *string    `json:"country" validate:"omitempty,len=2"`
	PositionCode       *string    `json:"position_code" validate:"omitempty,max=50"`
	EffectiveStartDate *time.Time `json:"effective_start_date"`
}

func (p *Person) versionKey() (string, string) { return "employee_number", p.EmployeeNumber }
func (p *Person) effective() *EffectivePeriod { return &p.EffectivePeriod }
func (p *Person) recordId() int { return p.ID }
func (p *Person) resetId() { p.ID = 0 }

func (p Person) FullName() string {
	return strings.Join(strings.Fields(p.FirstName+" "+p.MiddleName+" "+p.LastName), " ")
}

// normalize validates the contact fields and stores the phone in E.164 form.
func (p *Person) normalize() error {
	p.Country = strings.ToUpper(strings.TrimSpace(p.Country))
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.Phone != "" && p.Country == "" {
		return utils.NewFieldValidationError("country is required to validate the phone number", map[string]string{"country": "required_with"})
	}
	phone, err := utils.ValidatePhoneNumber(p.Phone, p.Country)
	if err != nil {
		return err
	}
	p.Phone = phone
	if p.DateOfBirth != nil && p.HireDate != nil && !p.HireDate.After(*p.DateOfBirth) {
		return utils.NewFieldValidationError("hire date must be after date of birth", map[string]string{"hire_date": "gtfield"})
	}
	return nil
}

func (p *Person) checkReferences(ctx context.Context, tx *gorm.DB) error {
	if p.UserId != nil {
		if _, err := fetchModel[User](ctx, tx, *p.UserId); err != nil {
			return err
		}
	}
	return requireActiveReference[Position](ctx, tx, "code", p.PositionCode, p.EffectiveStartDate, "position_code")
}

func CreatePerson(ctx context.Context, input *NewPerson) (*Person, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	person := &Person{
		EmployeeNumber:  normalizeCode(input.EmployeeNumber),
		FirstName:       strings.TrimSpace(input.FirstName),
		MiddleName:      strings.TrimSpace(input.MiddleName),
		LastName:        strings.TrimSpace(input.LastName),
		Email:           input.Email,
		Phone:           input.Phone,
		Country:         input.Country,
		DateOfBirth:     input.DateOfBirth,
		HireDate:        input.HireDate,
		PositionCode:    normalizeCode(input.PositionCode),
		UserId:          input.UserId,
		EffectivePeriod: newEffectivePeriod(input.EffectiveStartDate, input.EffectiveEndDate),
	}
	if person.HireDate == nil {
		start := person.EffectiveStartDate
		person.HireDate = &start
	}
	if err := person.normalize(); err != nil {
		return nil, err
	}
	err := runInTx(ctx, func(tx *gorm.DB) error {
		if err := person.checkReferences(ctx, tx); err != nil {
			return err
		}
		return saveVersion[Person](ctx, tx, person)
	})
	if err != nil {
		return nil, err
	}
	return person, nil
}

func UpdatePerson(ctx context.Context, id int, input *PersonChanges) (*Person, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	return updateVersion[Person](ctx, id, input.EffectiveStartDate, func(tx *gorm.DB, p *Person) error {
		if input.FirstName != nil {
			p.FirstName = strings.TrimSpace(*input.FirstName)
		}
		if input.MiddleName != nil {
			p.MiddleName = strings.TrimSpace(*input.MiddleName)
		}
		if input.LastName != nil {
			p.LastName = strings.TrimSpace(*input.LastName)
		}
		if input.Email != nil {
			p.Email = *input.Email
		}
		if input.Phone != nil {
			p.Phone = *input.Phone
		}
		if input.Country != nil {
			p.Country = *input.Country
		}
		if input.PositionCode != nil {
			p.PositionCode = normalizeCode(*input.PositionCode)
		}
		if err := p.normalize(); err != nil {
			return err
		}
		return p.checkReferences(ctx, tx)
	})
}

func DeactivatePerson(ctx context.Context, id int, endDate *time.Time) (*Person, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return deactivateVersion[Person](ctx, id, endDate)
}

func GetPerson(ctx context.Context, id int) (*Person, error) {
	return fetchModel[Person](ctx, nil, id)
}

func GetPersonOn(ctx context.Context, employeeNumber string, date time.Time) (*Person, error) {
	return findVersionOn[Person](ctx, nil, "employee_number", normalizeCode(employeeNumber), date)
}

func ListPeople(ctx context.Context, activeOn *time.Time) ([]*Person, error) {
	return listVersionsOn[Person](ctx, activeOn, "employee_number, effective_start_date DESC")
}

func PersonHistory(ctx context.Context, employeeNumber string) ([]*Person, error) {
	return versionHistory[Person](ctx, "employee_number", normalizeCode(employeeNumber))
}
