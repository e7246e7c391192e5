package models

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"gorm.io/gorm"
)

type BusinessPartner struct {
	ID        int         `gorm:"primary_key" json:"id"`
	Name      string      `gorm:"size:255;not null;index" json:"name"`
	Type      PartnerType `gorm:"size:10;not null;index" json:"type"`
	Email     string      `gorm:"size:255" json:"email"`
	Phone     string      `gorm:"size:20" json:"phone"`
	Country   string      `gorm:"size:2" json:"country"`
	Address   string      `gorm:"type:text" json:"address"`
	IsActive  *bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedBy int         `json:"created_by"`
	UpdatedBy int         `json:"updated_by"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBusinessPartner struct {
	Name    string      `json:"name" validate:"required,max=255"`
	Type    PartnerType `json:"type" validate:"required"`
	Email   string      `json:"email" validate:"omitempty,email"`
	Phone   string      `json:"phone"`
	Country string      `json:"country" validate:"omitempty,len=2"`
	Address string      `json:"address"`
}

type PartnerFilter struct {
	Type       *PartnerType
	ActiveOnly bool
	Name       string
}

func (p BusinessPartner) Active() bool { return p.IsActive == nil || *p.IsActive }

func (input *NewBusinessPartner) normalize() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.Type.IsValid() {
		return utils.NewFieldValidationError("invalid partner type", map[string]string{"type": "oneof"})
	}
	input.Country = strings.ToUpper(strings.TrimSpace(input.Country))
	if input.Phone != "" && input.Country == "" {
		return utils.NewFieldValidationError("country is required to validate the phone number", map[string]string{"country": "required_with"})
	}
	phone, err := utils.ValidatePhoneNumber(input.Phone, input.Country)
	if err != nil {
		return err
	}
	input.Phone = phone
	return nil
}

func CreateBusinessPartner(ctx context.Context, input *NewBusinessPartner) (*BusinessPartner, error) {
	if err := input.normalize(); err != nil {
		return nil, err
	}
	partner := BusinessPartner{
		Name:     input.Name,
		Type:     input.Type,
		Email:    input.Email,
		Phone:    input.Phone,
		Country:  input.Country,
		Address:  input.Address,
		IsActive: utils.NewTrue(),
	}
	if err := config.GetDB().WithContext(ctx).Create(&partner).Error; err != nil {
		return nil, err
	}
	return &partner, nil
}

func UpdateBusinessPartner(ctx context.Context, id int, input *NewBusinessPartner) (*BusinessPartner, error) {
	if err := input.normalize(); err != nil {
		return nil, err
	}
	err := runInTx(ctx, func(tx *gorm.DB) error {
		partner, err := fetchModelForUpdate[BusinessPartner](ctx, tx, id)
		if err != nil {
			return err
		}
		if partner.Type != input.Type {
			if err := checkPartnerTypeChange(ctx, tx, partner.ID, input.Type); err != nil {
				return err
			}
		}
		return tx.Model(partner).Updates(map[string]interface{}{
			"Name":    input.Name,
			"Type":    input.Type,
			"Email":   input.Email,
			"Phone":   input.Phone,
			"Country": input.Country,
			"Address": input.Address,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return GetBusinessPartner(ctx, id)
}

// checkPartnerTypeChange refuses to drop a role the partner's invoices need.
func checkPartnerTypeChange(ctx context.Context, tx *gorm.DB, partnerId int, newType PartnerType) error {
	var payable, receivable int64
	if err := tx.WithContext(ctx).Model(&Invoice{}).
		Where("partner_id = ? AND invoice_type IN ?", partnerId, []InvoiceType{InvoiceTypeAP, InvoiceTypeOneTimeSupplier}).
		Count(&payable).Error; err != nil {
		return err
	}
	if err := tx.WithContext(ctx).Model(&Invoice{}).
		Where("partner_id = ? AND invoice_type = ?", partnerId, InvoiceTypeAR).
		Count(&receivable).Error; err != nil {
		return err
	}
	if payable > 0 && !newType.IsSupplier() {
		return utils.NewValidationError("partner has supplier invoices")
	}
	if receivable > 0 && !newType.IsCustomer() {
		return utils.NewValidationError("partner has customer invoices")
	}
	return nil
}

func GetBusinessPartner(ctx context.Context, id int) (*BusinessPartner, error) {
	return fetchModel[BusinessPartner](ctx, nil, id)
}

func ListBusinessPartners(ctx context.Context, filter PartnerFilter) ([]*BusinessPartner, error) {
	q := config.GetDB().WithContext(ctx)
	if filter.Type != nil {
		switch *filter.Type {
		case PartnerTypeSupplier, PartnerTypeCustomer:
			q = q.Where("type IN ?", []PartnerType{*filter.Type, PartnerTypeBoth})
		default:
			q = q.Where("type = ?", *filter.Type)
		}
	}
	if filter.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	if name := strings.TrimSpace(filter.Name); name != "" {
		q = q.Where("name LIKE ?", "%"+name+"%")
	}
	var results []*BusinessPartner
	err := q.Order("name").Limit(config.ListLimit).Find(&results).Error
	return results, err
}

func SetBusinessPartnerActive(ctx context.Context, id int, isActive bool) (*BusinessPartner, error) {
	partner, err := fetchModel[BusinessPartner](ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := config.GetDB().WithContext(ctx).Model(partner).Update("IsActive", isActive).Error; err != nil {
		return nil, err
	}
	partner.IsActive = &isActive
	return partner, nil
}
