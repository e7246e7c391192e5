package models

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
)

// Role is the unit of approval assignment: a stage requiring role FIN_MGR
// assigns every active user holding it.
type Role struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Code      string    `gorm:"size:50;not null;unique" json:"code"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewRole struct {
	Code string `json:"code" validate:"required,max=50"`
	Name string `json:"name" validate:"required,max=100"`
}

func CreateRole(ctx context.Context, input *NewRole) (*Role, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	role := Role{Code: strings.ToUpper(strings.TrimSpace(input.Code)), Name: input.Name}
	if err := config.GetDB().WithContext(ctx).Create(&role).Error; err != nil {
		if isDuplicateKeyError(err) {
			return nil, utils.ConflictError("role %s already exists", role.Code)
		}
		return nil, err
	}
	if err := config.RemoveRedisKey("RoleList"); err != nil {
		return nil, err
	}
	return &role, nil
}

func ListRoles(ctx context.Context) ([]*Role, error) {
	var roles []*Role
	exists, err := config.GetRedisObject("RoleList", &roles)
	if err != nil {
		return nil, err
	}
	if exists {
		return roles, nil
	}
	if err := config.GetDB().WithContext(ctx).Order("code").Find(&roles).Error; err != nil {
		return nil, err
	}
	if err := config.SetRedisObject("RoleList", &roles, config.CacheLifespan()); err != nil {
		return nil, err
	}
	return roles, nil
}
