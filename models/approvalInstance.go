package models

import (
	"time"
)

type ApprovalWorkflowInstance struct {
	ID                     int                             `gorm:"primary_key" json:"id"`
	TemplateId             int                             `gorm:"not null;index" json:"template_id"`
	Template               *ApprovalWorkflowTemplate       `gorm:"foreignKey:TemplateId" json:"template,omitempty"`
	ContentType            string                          `gorm:"size:50;not null;index:idx_approval_object,priority:1" json:"content_type"`
	ObjectId               int                             `gorm:"not null;index:idx_approval_object,priority:2" json:"object_id"`
	Status                 WorkflowStatus                  `gorm:"size:20;not null;default:'pending';index" json:"status"`
	CurrentStageTemplateId *int                            `json:"current_stage_template_id"`
	StartedAt              time.Time                       `gorm:"not null" json:"started_at"`
	FinishedAt             *time.Time                      `json:"finished_at"`
	CompletedStageCount    int                             `gorm:"not null;default:0" json:"completed_stage_count"`
	StageInstances         []ApprovalWorkflowStageInstance `gorm:"foreignKey:InstanceId" json:"stage_instances,omitempty"`
	UpdatedAt              time.Time                       `gorm:"autoUpdateTime" json:"updated_at"`
}

type ApprovalWorkflowStageInstance struct {
	ID              int                            `gorm:"primary_key" json:"id"`
	InstanceId      int                            `gorm:"not null;index" json:"instance_id"`
	StageTemplateId int                            `gorm:"not null;index" json:"stage_template_id"`
	StageTemplate   *ApprovalWorkflowStageTemplate `gorm:"foreignKey:StageTemplateId" json:"stage_template,omitempty"`
	Status          StageStatus                    `gorm:"size:20;not null;default:'pending';index" json:"status"`
	ActivatedAt     *time.Time                     `json:"activated_at"`
	CompletedAt     *time.Time                     `json:"completed_at"`
	Assignments     []ApprovalAssignment           `gorm:"foreignKey:StageInstanceId" json:"assignments,omitempty"`
	Actions         []ApprovalAction               `gorm:"foreignKey:StageInstanceId" json:"actions,omitempty"`
}

type ApprovalAssignment struct {
	ID              int              `gorm:"primary_key" json:"id"`
	StageInstanceId int              `gorm:"not null;index:uniq_stage_user,unique,priority:1" json:"stage_instance_id"`
	UserId          int              `gorm:"not null;index:uniq_stage_user,unique,priority:2;index" json:"user_id"`
	RoleSnapshot    string           `gorm:"size:255" json:"role_snapshot"`
	Status          AssignmentStatus `gorm:"size:20;not null;default:'pending'" json:"status"`
	IsMandatory     bool             `gorm:"not null;default:true" json:"is_mandatory"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// ApprovalAction is the audit trail of a stage. A nil UserId marks an action
// taken by the system.
type ApprovalAction struct {
	ID                      int                `gorm:"primary_key" json:"id"`
	StageInstanceId         int                `gorm:"not null;index" json:"stage_instance_id"`
	UserId                  *int               `gorm:"index" json:"user_id"`
	AssignmentId            *int               `json:"assignment_id"`
	Action                  ApprovalActionType `gorm:"size:20;not null" json:"action"`
	Comment                 string             `gorm:"type:text" json:"comment"`
	TriggersStageCompletion bool               `gorm:"not null;default:false" json:"triggers_stage_completion"`
	CreatedAt               time.Time          `gorm:"autoCreateTime" json:"created_at"`
}

type ApprovalDelegation struct {
	ID              int        `gorm:"primary_key" json:"id"`
	FromUserId      int        `gorm:"not null;index" json:"from_user_id"`
	ToUserId        int        `gorm:"not null;index" json:"to_user_id"`
	StageInstanceId int        `gorm:"not null;index" json:"stage_instance_id"`
	StartDate       time.Time  `gorm:"not null" json:"start_date"`
	EndDate         *time.Time `json:"end_date"`
	Active          bool       `gorm:"not null;default:true" json:"active"`
	DeactivatedAt   *time.Time `json:"deactivated_at"`
}

// PendingApproval is one row of a user's approval inbox.
type PendingApproval struct {
	InstanceId      int        `json:"instance_id"`
	ContentType     string     `json:"content_type"`
	ObjectId        int        `json:"object_id"`
	StageInstanceId int        `json:"stage_instance_id"`
	StageName       string     `json:"stage_name"`
	AssignmentId    int        `json:"assignment_id"`
	ActivatedAt     *time.Time `json:"activated_at"`
}

// OverdueStage is an active stage past its SLA.
type OverdueStage struct {
	StageInstanceId int       `json:"stage_instance_id"`
	InstanceId      int       `json:"instance_id"`
	ContentType     string    `json:"content_type"`
	ObjectId        int       `json:"object_id"`
	StageName       string    `json:"stage_name"`
	ActivatedAt     time.Time `json:"activated_at"`
	DueAt           time.Time `json:"due_at"`
}
