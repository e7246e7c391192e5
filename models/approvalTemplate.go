package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ApprovalWorkflowTemplate is an ordered set of stages for one content type.
// StartWorkflow picks the active template with the highest version.
type ApprovalWorkflowTemplate struct {
	ID          int                             `gorm:"primary_key" json:"id"`
	Code        string                          `gorm:"size:50;not null;unique" json:"code"`
	Name        string                          `gorm:"size:255;not null" json:"name"`
	ContentType string                          `gorm:"size:50;not null;index" json:"content_type"`
	IsActive    *bool                           `gorm:"not null;default:true" json:"is_active"`
	Version     int                             `gorm:"not null;default:1" json:"version"`
	Description string                          `gorm:"type:text" json:"description"`
	Stages      []ApprovalWorkflowStageTemplate `gorm:"foreignKey:TemplateId" json:"stages"`
	CreatedAt   time.Time                       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time                       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ApprovalWorkflowStageTemplate is one stage. OrderIndex is unique within a
// template; the engine still evaluates every active stage of the lowest order
// as one group.
type ApprovalWorkflowStageTemplate struct {
	ID             int            `gorm:"primary_key" json:"id"`
	TemplateId     int            `gorm:"not null;index:uniq_template_order,unique,priority:1" json:"template_id"`
	OrderIndex     int            `gorm:"not null;index:uniq_template_order,unique,priority:2" json:"order_index"`
	Name           string         `gorm:"size:255;not null" json:"name"`
	DecisionPolicy DecisionPolicy `gorm:"size:10;not null;default:'ALL'" json:"decision_policy"`
	QuorumCount    *int           `json:"quorum_count"`
	RequiredRole   string         `gorm:"size:50" json:"required_role"`
	DynamicFilter  datatypes.JSON `json:"dynamic_filter"`
	AllowReject    bool           `gorm:"not null;default:true" json:"allow_reject"`
	AllowDelegate  bool           `gorm:"not null;default:false" json:"allow_delegate"`
	SlaHours       *int           `json:"sla_hours"`
	ParallelGroup  string         `gorm:"size:50" json:"parallel_group"`
}

type NewWorkflowTemplate struct {
	Code        string             `json:"code" validate:"required,max=50"`
	Name        string             `json:"name" validate:"required"`
	ContentType string             `json:"content_type" validate:"required"`
	Version     int                `json:"version" validate:"gte=0"`
	Description string             `json:"description"`
	Stages      []NewStageTemplate `json:"stages" validate:"required,min=1,dive"`
}

type NewStageTemplate struct {
	OrderIndex     int            `json:"order_index" validate:"gte=1"`
	Name           string         `json:"name" validate:"required"`
	DecisionPolicy DecisionPolicy `json:"decision_policy"`
	QuorumCount    *int           `json:"quorum_count"`
	RequiredRole   string         `json:"required_role"`
	DynamicFilter  datatypes.JSON `json:"dynamic_filter"`
	AllowReject    *bool          `json:"allow_reject"`
	AllowDelegate  bool           `json:"allow_delegate"`
	SlaHours       *int           `json:"sla_hours" validate:"omitempty,gte=1"`
	ParallelGroup  string         `json:"parallel_group"`
}

func (input *NewWorkflowTemplate) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !approvableRegistered(input.ContentType) {
		return utils.NewValidationError("unknown content type %s", input.ContentType)
	}
	seen := make(map[int]bool, len(input.Stages))
	for _, s := range input.Stages {
		if s.OrderIndex < 1 {
			return utils.NewValidationError("stage %s: order_index must be at least 1", s.Name)
		}
		if seen[s.OrderIndex] {
			return utils.NewValidationError("stage %s: order_index %d is used twice", s.Name, s.OrderIndex)
		}
		seen[s.OrderIndex] = true
		policy := s.DecisionPolicy
		if policy == "" {
			policy = DecisionPolicyAll
		}
		if !policy.IsValid() {
			return utils.NewValidationError("stage %s: invalid decision policy %s", s.Name, s.DecisionPolicy)
		}
		if s.QuorumCount != nil && (policy != DecisionPolicyQuorum || *s.QuorumCount < 1) {
			return utils.NewValidationError("stage %s: quorum_count must be at least 1 and only set for QUORUM", s.Name)
		}
		if _, err := parseStageFilter(s.DynamicFilter); err != nil {
			return utils.NewValidationError("stage %s: %s", s.Name, err.Error())
		}
	}
	return nil
}

/*
caches:
	WorkflowTemplateList
*/

func CreateWorkflowTemplate(ctx context.Context, input *NewWorkflowTemplate) (*ApprovalWorkflowTemplate, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	version := input.Version
	if version == 0 {
		version = 1
	}
	template := ApprovalWorkflowTemplate{
		Code:        input.Code,
		Name:        input.Name,
		ContentType: input.ContentType,
		IsActive:    utils.NewTrue(),
		Version:     version,
		Description: input.Description,
	}
	for _, s := range input.Stages {
		policy := s.DecisionPolicy
		if policy == "" {
			policy = DecisionPolicyAll
		}
		allowReject := true
		if s.AllowReject != nil {
			allowReject = *s.AllowReject
		}
		template.Stages = append(template.Stages, ApprovalWorkflowStageTemplate{
			OrderIndex:     s.OrderIndex,
			Name:           s.Name,
			DecisionPolicy: policy,
			QuorumCount:    s.QuorumCount,
			RequiredRole:   s.RequiredRole,
			DynamicFilter:  s.DynamicFilter,
			AllowReject:    allowReject,
			AllowDelegate:  s.AllowDelegate,
			SlaHours:       s.SlaHours,
			ParallelGroup:  s.ParallelGroup,
		})
	}
	if err := config.GetDB().WithContext(ctx).Create(&template).Error; err != nil {
		if isDuplicateKeyError(err) {
			return nil, utils.NewFieldValidationError("workflow template code already exists", map[string]string{"code": "unique"})
		}
		return nil, err
	}
	if err := config.RemoveRedisKey("WorkflowTemplateList"); err != nil {
		return nil, err
	}
	return &template, nil
}

func GetWorkflowTemplate(ctx context.Context, id int) (*ApprovalWorkflowTemplate, error) {
	return fetchModel[ApprovalWorkflowTemplate](ctx, nil, id, "Stages")
}

func ListWorkflowTemplates(ctx context.Context) ([]*ApprovalWorkflowTemplate, error) {
	var results []*ApprovalWorkflowTemplate
	exists, err := config.GetRedisObject("WorkflowTemplateList", &results)
	if err != nil {
		return nil, err
	}
	if exists {
		return results, nil
	}
	if err := config.GetDB().WithContext(ctx).Preload("Stages").
		Order("content_type, version DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	if err := config.SetRedisObject("WorkflowTemplateList", &results, config.CacheLifespan()); err != nil {
		return nil, err
	}
	return results, nil
}

// DeactivateWorkflowTemplate stops new instances from using the template.
// Running instances keep their stages.
func DeactivateWorkflowTemplate(ctx context.Context, id int) (*ApprovalWorkflowTemplate, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	template, err := fetchModel[ApprovalWorkflowTemplate](ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := config.GetDB().WithContext(ctx).Model(template).Update("IsActive", false).Error; err != nil {
		return nil, err
	}
	if err := config.RemoveRedisKey("WorkflowTemplateList"); err != nil {
		return nil, err
	}
	return GetWorkflowTemplate(ctx, id)
}

// activeTemplateFor returns the highest version active template or nil.
func activeTemplateFor(ctx context.Context, tx *gorm.DB, contentType string) (*ApprovalWorkflowTemplate, error) {
	var template ApprovalWorkflowTemplate
	err := tx.WithContext(ctx).Preload("Stages").
		Where("content_type = ? AND is_active = ?", contentType, true).
		Order("version DESC, id DESC").First(&template).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &template, nil
}
