package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"gorm.io/gorm"
)

const approvalLockTTL = 15 * time.Second

func approvalLockKey(instanceId int) string {
	return fmt.Sprintf("ApprovalInstance:%d", instanceId)
}

// StartWorkflow creates an instance for doc from the newest active template
// of its content type and activates the first stage. tx may be nil.
func StartWorkflow(ctx context.Context, tx *gorm.DB, doc Approvable) (*ApprovalWorkflowInstance, error) {
	var instance *ApprovalWorkflowInstance
	start := func(tx *gorm.DB) error {
		var err error
		instance, err = startWorkflowTx(ctx, tx, doc)
		return err
	}
	var err error
	if tx != nil {
		err = start(tx.WithContext(ctx))
	} else {
		err = runInTx(ctx, start)
	}
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func startWorkflowTx(ctx context.Context, tx *gorm.DB, doc Approvable) (*ApprovalWorkflowInstance, error) {
	contentType, objectId := doc.ApprovalContentType(), doc.ApprovalObjectId()
	var running int64
	if err := lockForUpdate(tx.Model(&ApprovalWorkflowInstance{})).
		Where("content_type = ? AND object_id = ? AND status IN ?", contentType, objectId,
			[]WorkflowStatus{WorkflowStatusPending, WorkflowStatusInProgress}).
		Count(&running).Error; err != nil {
		return nil, err
	}
	if running > 0 {
		return nil, utils.ConflictError("workflow already in progress for %s %d", contentType, objectId)
	}
	template, err := activeTemplateFor(ctx, tx, contentType)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, utils.NewValidationError("no active workflow template for %s", contentType)
	}
	instance := ApprovalWorkflowInstance{
		TemplateId:  template.ID,
		ContentType: contentType,
		ObjectId:    objectId,
		Status:      WorkflowStatusInProgress,
		StartedAt:   time.Now().UTC(),
	}
	if err := tx.Create(&instance).Error; err != nil {
		return nil, err
	}
	instance.Template = template
	// Activation can finish the instance when every stage is skipped, so the
	// document must be pending before that.
	if err := doc.OnApprovalStarted(ctx, tx, &instance); err != nil {
		return nil, err
	}
	if err := activateNextStages(ctx, tx, &instance, doc); err != nil {
		return nil, err
	}
	return &instance, nil
}

// activateNextStages opens the next order of stages. Stages without eligible
// approvers are skipped; when a whole order is skipped the following one is
// tried, and when no order is left the instance is approved.
func activateNextStages(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance, doc Approvable) error {
	template := instance.Template
	if template == nil {
		var err error
		template, err = fetchModel[ApprovalWorkflowTemplate](ctx, tx, instance.TemplateId, "Stages")
		if err != nil {
			return err
		}
		instance.Template = template
	}
	orders := make([]int, 0, len(template.Stages))
	for _, s := range template.Stages {
		orders = append(orders, s.OrderIndex)
	}
	for {
		reached, err := reachedOrders(ctx, tx, instance.ID)
		if err != nil {
			return err
		}
		next, ok := nextOrderIndex(orders, reached)
		if !ok {
			return finishApproved(ctx, tx, instance, doc)
		}
		now := time.Now().UTC()
		activated := 0
		var first *int
		for i := range template.Stages {
			tpl := template.Stages[i]
			if tpl.OrderIndex != next {
				continue
			}
			if first == nil {
				id := tpl.ID
				first = &id
			}
			stage := ApprovalWorkflowStageInstance{
				InstanceId:      instance.ID,
				StageTemplateId: tpl.ID,
				Status:          StageStatusActive,
				ActivatedAt:     &now,
			}
			if err := tx.Create(&stage).Error; err != nil {
				return err
			}
			users, err := eligibleApprovers(ctx, tx, tpl)
			if err != nil {
				return err
			}
			if len(users) == 0 {
				if err := tx.Model(&stage).Updates(map[string]interface{}{
					"Status":      StageStatusSkipped,
					"CompletedAt": &now,
				}).Error; err != nil {
					return err
				}
				if err := logSystemAction(tx, stage.ID, ApprovalActionComment, "Stage auto-skipped: no eligible approvers", true); err != nil {
					return err
				}
				continue
			}
			assignments := make([]ApprovalAssignment, 0, len(users))
			for _, u := range users {
				assignments = append(assignments, ApprovalAssignment{
					StageInstanceId: stage.ID,
					UserId:          u.ID,
					RoleSnapshot:    roleSnapshot(tpl, u),
					Status:          AssignmentStatusPending,
					IsMandatory:     true,
				})
			}
			if err := tx.Create(&assignments).Error; err != nil {
				return err
			}
			activated++
		}
		instance.Status = WorkflowStatusInProgress
		instance.CurrentStageTemplateId = first
		if err := tx.Model(instance).Updates(map[string]interface{}{
			"Status":                 instance.Status,
			"CurrentStageTemplateId": first,
		}).Error; err != nil {
			return err
		}
		if activated > 0 {
			return nil
		}
	}
}

func reachedOrders(ctx context.Context, tx *gorm.DB, instanceId int) ([]int, error) {
	var orders []int
	err := tx.WithContext(ctx).Model(&ApprovalWorkflowStageInstance{}).
		Joins("JOIN approval_workflow_stage_templates t ON t.id = approval_workflow_stage_instances.stage_template_id").
		Where("approval_workflow_stage_instances.instance_id = ? AND approval_workflow_stage_instances.status IN ?", instanceId,
			[]StageStatus{StageStatusActive, StageStatusCompleted, StageStatusSkipped}).
		Pluck("t.order_index", &orders).Error
	return orders, err
}

func eligibleApprovers(ctx context.Context, tx *gorm.DB, tpl ApprovalWorkflowStageTemplate) ([]User, error) {
	users, err := ListUsersWithRole(ctx, tx, tpl.RequiredRole)
	if err != nil {
		return nil, err
	}
	filter, err := parseStageFilter(tpl.DynamicFilter)
	if err != nil {
		return nil, err
	}
	return filter.apply(users), nil
}

func roleSnapshot(tpl ApprovalWorkflowStageTemplate, u User) string {
	if tpl.RequiredRole != "" {
		return tpl.RequiredRole
	}
	return strings.Join(u.RoleCodes(), ",")
}

func logSystemAction(tx *gorm.DB, stageInstanceId int, action ApprovalActionType, comment string, triggers bool) error {
	return tx.Create(&ApprovalAction{
		StageInstanceId:         stageInstanceId,
		Action:                  action,
		Comment:                 comment,
		TriggersStageCompletion: triggers,
	}).Error
}

func finishApproved(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance, doc Approvable) error {
	now := time.Now().UTC()
	instance.Status = WorkflowStatusApproved
	instance.FinishedAt = &now
	instance.CurrentStageTemplateId = nil
	if err := tx.Model(instance).Updates(map[string]interface{}{
		"Status":                 WorkflowStatusApproved,
		"FinishedAt":             &now,
		"CurrentStageTemplateId": nil,
	}).Error; err != nil {
		return err
	}
	return doc.OnFullyApproved(ctx, tx, instance)
}

// activeGroup loads the active stages of the lowest order with templates and
// assignments.
func activeGroup(ctx context.Context, tx *gorm.DB, instanceId int) ([]ApprovalWorkflowStageInstance, error) {
	var stages []ApprovalWorkflowStageInstance
	if err := tx.WithContext(ctx).Preload("StageTemplate").Preload("Assignments").
		Where("instance_id = ? AND status = ?", instanceId, StageStatusActive).
		Find(&stages).Error; err != nil {
		return nil, err
	}
	return lowestOrderGroup(stages), nil
}

type ActionInput struct {
	Action       ApprovalActionType `json:"action" validate:"required"`
	Comment      string             `json:"comment"`
	TargetUserId *int               `json:"target_user_id"`
}

// ProcessAction applies the acting user's approve, reject, delegate or
// comment to the instance's active stage group.
func ProcessAction(ctx context.Context, instanceId int, input *ActionInput) (*ApprovalWorkflowInstance, error) {
	userId := currentUserId(ctx)
	if userId == nil {
		return nil, utils.ErrorUnauthorized
	}
	if !input.Action.IsValid() {
		return nil, utils.NewValidationError("invalid action %s", input.Action)
	}
	err := withLock(ctx, approvalLockKey(instanceId), approvalLockTTL, func() error {
		return runInTx(ctx, func(tx *gorm.DB) error {
			return processActionTx(ctx, tx, instanceId, *userId, input)
		})
	})
	if err != nil {
		return nil, err
	}
	return GetWorkflowInstance(ctx, instanceId)
}

func processActionTx(ctx context.Context, tx *gorm.DB, instanceId int, userId int, input *ActionInput) error {
	instance, err := fetchModelForUpdate[ApprovalWorkflowInstance](ctx, tx, instanceId)
	if err != nil {
		return err
	}
	if instance.Status != WorkflowStatusInProgress {
		return utils.NewValidationError("workflow is %s", instance.Status)
	}
	group, err := activeGroup(ctx, tx, instanceId)
	if err != nil {
		return err
	}
	if len(group) == 0 {
		return utils.NewValidationError("no active stage to act on")
	}
	stageIdx, assignment := findAssignment(group, userId)
	if assignment == nil {
		return fmt.Errorf("user %d has no assignment in the active stage: %w", userId, utils.ErrorForbidden)
	}
	stage := &group[stageIdx]
	tpl := stage.StageTemplate
	switch input.Action {
	case ApprovalActionReject:
		if !tpl.AllowReject {
			return utils.NewValidationError("rejection is not allowed in stage %s", tpl.Name)
		}
	case ApprovalActionDelegate:
		if !tpl.AllowDelegate {
			return utils.NewValidationError("delegation is not allowed in stage %s", tpl.Name)
		}
		if input.TargetUserId == nil || *input.TargetUserId <= 0 {
			return utils.NewFieldValidationError("target user is required for delegation", map[string]string{"target_user_id": "required"})
		}
		return delegateTx(ctx, tx, stage, assignment, *input.TargetUserId, input.Comment)
	}
	if input.Action == ApprovalActionApprove || input.Action == ApprovalActionReject {
		switch assignment.Status {
		case AssignmentStatusApproved, AssignmentStatusRejected:
			return utils.ConflictError("user %d already acted on this stage", userId)
		case AssignmentStatusDelegated:
			return utils.NewValidationError("assignment was delegated")
		}
	}
	assignmentId := assignment.ID
	if err := tx.Create(&ApprovalAction{
		StageInstanceId: stage.ID,
		UserId:          &userId,
		AssignmentId:    &assignmentId,
		Action:          input.Action,
		Comment:         input.Comment,
	}).Error; err != nil {
		return err
	}
	if input.Action == ApprovalActionComment {
		return nil
	}
	newStatus := AssignmentStatusApproved
	if input.Action == ApprovalActionReject {
		newStatus = AssignmentStatusRejected
	}
	if err := tx.Model(assignment).Update("Status", newStatus).Error; err != nil {
		return err
	}
	assignment.Status = newStatus

	doc, err := loadApprovable(ctx, tx, instance.ContentType, instance.ObjectId)
	if err != nil {
		return err
	}
	switch evaluateGroup(group) {
	case stageOutcomeApproved:
		return completeApprovedGroup(ctx, tx, instance, group, doc)
	case stageOutcomeRejected:
		return completeRejectedGroup(ctx, tx, instance, group, doc, input.Comment)
	}
	return nil
}

// findAssignment returns the user's pending assignment in the group. A user
// can sit in several parallel stages; only when none is pending is an acted
// assignment returned, so comments still attach and repeat decisions report
// what already happened.
func findAssignment(group []ApprovalWorkflowStageInstance, userId int) (int, *ApprovalAssignment) {
	stageIdx, fallback := -1, (*ApprovalAssignment)(nil)
	for i := range group {
		for j := range group[i].Assignments {
			a := &group[i].Assignments[j]
			if a.UserId != userId {
				continue
			}
			if a.Status == AssignmentStatusPending {
				return i, a
			}
			if fallback == nil {
				stageIdx, fallback = i, a
			}
		}
	}
	return stageIdx, fallback
}

// closeStages completes (or cancels) stages, ends their delegations and
// drops assignments nobody acted on.
func closeStages(tx *gorm.DB, stageIds []int, status StageStatus, now time.Time) error {
	if len(stageIds) == 0 {
		return nil
	}
	if err := tx.Model(&ApprovalWorkflowStageInstance{}).Where("id IN ?", stageIds).
		Updates(map[string]interface{}{"Status": status, "CompletedAt": &now}).Error; err != nil {
		return err
	}
	if err := tx.Model(&ApprovalDelegation{}).Where("stage_instance_id IN ? AND active = ?", stageIds, true).
		Updates(map[string]interface{}{"Active": false, "DeactivatedAt": &now}).Error; err != nil {
		return err
	}
	if status == StageStatusCancelled {
		return nil
	}
	return tx.Where("stage_instance_id IN ? AND status = ?", stageIds, AssignmentStatusPending).
		Delete(&ApprovalAssignment{}).Error
}

func stageIdsOf(group []ApprovalWorkflowStageInstance) []int {
	ids := make([]int, 0, len(group))
	for _, s := range group {
		ids = append(ids, s.ID)
	}
	return ids
}

func completeApprovedGroup(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance, group []ApprovalWorkflowStageInstance, doc Approvable) error {
	now := time.Now().UTC()
	if err := closeStages(tx, stageIdsOf(group), StageStatusCompleted, now); err != nil {
		return err
	}
	instance.CompletedStageCount += len(group)
	if err := tx.Model(instance).Update("CompletedStageCount", instance.CompletedStageCount).Error; err != nil {
		return err
	}
	for i := range group {
		group[i].Status = StageStatusCompleted
		group[i].CompletedAt = &now
		if err := doc.OnStageApproved(ctx, tx, instance, &group[i]); err != nil {
			return err
		}
	}
	return activateNextStages(ctx, tx, instance, doc)
}

func completeRejectedGroup(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance, group []ApprovalWorkflowStageInstance, doc Approvable, comment string) error {
	now := time.Now().UTC()
	if err := closeStages(tx, stageIdsOf(group), StageStatusCompleted, now); err != nil {
		return err
	}
	instance.Status = WorkflowStatusRejected
	instance.FinishedAt = &now
	instance.CurrentStageTemplateId = nil
	if err := tx.Model(instance).Updates(map[string]interface{}{
		"Status":                 WorkflowStatusRejected,
		"FinishedAt":             &now,
		"CurrentStageTemplateId": nil,
	}).Error; err != nil {
		return err
	}
	if comment == "" {
		comment = "Workflow rejected"
	}
	if err := logSystemAction(tx, group[0].ID, ApprovalActionReject, comment, true); err != nil {
		return err
	}
	return doc.OnRejected(ctx, tx, instance, comment)
}

// Delegate hands the acting user's pending assignment to targetUserId.
func Delegate(ctx context.Context, instanceId int, targetUserId int, comment string) (*ApprovalWorkflowInstance, error) {
	return ProcessAction(ctx, instanceId, &ActionInput{
		Action:       ApprovalActionDelegate,
		Comment:      comment,
		TargetUserId: &targetUserId,
	})
}

func delegateTx(ctx context.Context, tx *gorm.DB, stage *ApprovalWorkflowStageInstance, from *ApprovalAssignment, targetUserId int, comment string) error {
	if from.Status != AssignmentStatusPending {
		return utils.NewValidationError("assignment already processed")
	}
	if targetUserId == from.UserId {
		return utils.NewValidationError("cannot delegate to yourself")
	}
	for _, a := range stage.Assignments {
		if a.UserId == targetUserId {
			return utils.NewValidationError("target user is already involved in this stage")
		}
	}
	target, err := fetchModel[User](ctx, tx, targetUserId)
	if err != nil {
		return err
	}
	if !target.Active() {
		return utils.NewValidationError("target user is inactive")
	}
	now := time.Now().UTC()
	if err := tx.Create(&ApprovalDelegation{
		FromUserId:      from.UserId,
		ToUserId:        target.ID,
		StageInstanceId: stage.ID,
		StartDate:       now,
		Active:          true,
	}).Error; err != nil {
		return err
	}
	if err := tx.Create(&ApprovalAssignment{
		StageInstanceId: stage.ID,
		UserId:          target.ID,
		RoleSnapshot:    from.RoleSnapshot,
		Status:          AssignmentStatusPending,
		IsMandatory:     from.IsMandatory,
	}).Error; err != nil {
		return err
	}
	if err := tx.Model(from).Update("Status", AssignmentStatusDelegated).Error; err != nil {
		return err
	}
	if comment == "" {
		comment = fmt.Sprintf("Delegated to %s", target.Username)
	}
	fromUser, fromAssignment := from.UserId, from.ID
	return tx.Create(&ApprovalAction{
		StageInstanceId: stage.ID,
		UserId:          &fromUser,
		AssignmentId:    &fromAssignment,
		Action:          ApprovalActionDelegate,
		Comment:         comment,
	}).Error
}

// CancelWorkflow cancels a running instance. Finished instances are returned
// unchanged. tx may be nil.
func CancelWorkflow(ctx context.Context, tx *gorm.DB, instanceId int, reason string) (*ApprovalWorkflowInstance, error) {
	cancel := func(tx *gorm.DB) error {
		_, err := cancelWorkflowTx(ctx, tx, instanceId, reason)
		return err
	}
	var err error
	if tx != nil {
		err = cancel(tx.WithContext(ctx))
	} else {
		err = withLock(ctx, approvalLockKey(instanceId), approvalLockTTL, func() error {
			return runInTx(ctx, cancel)
		})
	}
	if err != nil {
		return nil, err
	}
	return fetchModel[ApprovalWorkflowInstance](ctx, tx, instanceId)
}

func cancelWorkflowTx(ctx context.Context, tx *gorm.DB, instanceId int, reason string) (*ApprovalWorkflowInstance, error) {
	instance, err := fetchModelForUpdate[ApprovalWorkflowInstance](ctx, tx, instanceId)
	if err != nil {
		return nil, err
	}
	if instance.Status.IsFinished() {
		return instance, nil
	}
	var open []ApprovalWorkflowStageInstance
	if err := tx.Where("instance_id = ? AND status IN ?", instanceId,
		[]StageStatus{StageStatusActive, StageStatusPending}).Order("id").Find(&open).Error; err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := closeStages(tx, stageIdsOf(open), StageStatusCancelled, now); err != nil {
		return nil, err
	}
	instance.Status = WorkflowStatusCancelled
	instance.FinishedAt = &now
	instance.CurrentStageTemplateId = nil
	if err := tx.Model(instance).Updates(map[string]interface{}{
		"Status":                 WorkflowStatusCancelled,
		"FinishedAt":             &now,
		"CurrentStageTemplateId": nil,
	}).Error; err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "No reason provided"
	}
	if len(open) > 0 {
		if err := logSystemAction(tx, open[0].ID, ApprovalActionComment, "Workflow cancelled. Reason: "+reason, false); err != nil {
			return nil, err
		}
	}
	doc, err := loadApprovable(ctx, tx, instance.ContentType, instance.ObjectId)
	if err != nil {
		return nil, err
	}
	if err := doc.OnCancelled(ctx, tx, instance, reason); err != nil {
		return nil, err
	}
	return instance, nil
}

// CancelWorkflowFor cancels the running instance of doc, if any.
func CancelWorkflowFor(ctx context.Context, tx *gorm.DB, doc Approvable, reason string) error {
	instance, err := runningInstance(ctx, tx, doc.ApprovalContentType(), doc.ApprovalObjectId())
	if err != nil || instance == nil {
		return err
	}
	_, err = cancelWorkflowTx(ctx, tx, instance.ID, reason)
	return err
}

// RestartWorkflow cancels the running instance of a document and starts a
// fresh one. Only admins and the document owner may restart, and only while
// the document is still awaiting a decision or was rejected or cancelled.
func RestartWorkflow(ctx context.Context, contentType string, objectId int) (*ApprovalWorkflowInstance, error) {
	var instance *ApprovalWorkflowInstance
	err := runInTx(ctx, func(tx *gorm.DB) error {
		doc, err := loadApprovable(ctx, tx, contentType, objectId)
		if err != nil {
			return err
		}
		if err := canRestart(ctx, doc); err != nil {
			return err
		}
		if err := CancelWorkflowFor(ctx, tx, doc, "Restarted"); err != nil {
			return err
		}
		instance, err = startWorkflowTx(ctx, tx, doc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func canRestart(ctx context.Context, doc Approvable) error {
	if admin, _ := utils.GetIsAdminFromContext(ctx); !admin {
		userId := currentUserId(ctx)
		if userId == nil {
			return utils.ErrorUnauthorized
		}
		if *userId != doc.ApprovalOwnerId() {
			return fmt.Errorf("only the owner or an admin can restart approval: %w", utils.ErrorForbidden)
		}
	}
	return doc.CanRestartApproval()
}

func runningInstance(ctx context.Context, tx *gorm.DB, contentType string, objectId int) (*ApprovalWorkflowInstance, error) {
	var instance ApprovalWorkflowInstance
	err := txOrDB(ctx, tx).
		Where("content_type = ? AND object_id = ? AND status IN ?", contentType, objectId,
			[]WorkflowStatus{WorkflowStatusPending, WorkflowStatusInProgress}).
		Order("started_at DESC, id DESC").First(&instance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &instance, nil
}

func GetWorkflowInstance(ctx context.Context, id int) (*ApprovalWorkflowInstance, error) {
	return fetchModel[ApprovalWorkflowInstance](ctx, nil, id,
		"StageInstances", "StageInstances.StageTemplate", "StageInstances.Assignments", "StageInstances.Actions")
}

// GetWorkflowStatus returns the latest instance of a document with its
// stages, assignments and actions.
func GetWorkflowStatus(ctx context.Context, contentType string, objectId int) (*ApprovalWorkflowInstance, error) {
	var instance ApprovalWorkflowInstance
	err := config.GetDB().WithContext(ctx).
		Preload("StageInstances").Preload("StageInstances.StageTemplate").
		Preload("StageInstances.Assignments").Preload("StageInstances.Actions").
		Where("content_type = ? AND object_id = ?", contentType, objectId).
		Order("started_at DESC, id DESC").First(&instance).Error
	if err != nil {
		return nil, notFound[ApprovalWorkflowInstance](err)
	}
	return &instance, nil
}

// IsWorkflowFinished reports whether the latest instance of a document is
// finished and its status; "no_instance" when none exists.
func IsWorkflowFinished(ctx context.Context, contentType string, objectId int) (bool, string, error) {
	instance, err := GetWorkflowStatus(ctx, contentType, objectId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return false, "no_instance", nil
		}
		return false, "", err
	}
	return instance.Status.IsFinished(), string(instance.Status), nil
}

func GetUserPendingApprovals(ctx context.Context, userId int) ([]*PendingApproval, error) {
	results := make([]*PendingApproval, 0)
	err := config.GetDB().WithContext(ctx).Table("approval_assignments a").
		Select(`i.id AS instance_id, i.content_type, i.object_id, s.id AS stage_instance_id,
			t.name AS stage_name, a.id AS assignment_id, s.activated_at`).
		Joins("JOIN approval_workflow_stage_instances s ON s.id = a.stage_instance_id").
		Joins("JOIN approval_workflow_instances i ON i.id = s.instance_id").
		Joins("JOIN approval_workflow_stage_templates t ON t.id = s.stage_template_id").
		Where("a.user_id = ? AND a.status = ? AND s.status = ? AND i.status = ?",
			userId, AssignmentStatusPending, StageStatusActive, WorkflowStatusInProgress).
		Order("s.activated_at, i.id").
		Scan(&results).Error
	return results, err
}

// ListOverdueStages returns active stages whose SLA elapsed before now.
func ListOverdueStages(ctx context.Context, now time.Time) ([]*OverdueStage, error) {
	var stages []ApprovalWorkflowStageInstance
	err := config.GetDB().WithContext(ctx).Preload("StageTemplate").
		Joins("JOIN approval_workflow_stage_templates t ON t.id = approval_workflow_stage_instances.stage_template_id").
		Where("approval_workflow_stage_instances.status = ? AND t.sla_hours IS NOT NULL", StageStatusActive).
		Find(&stages).Error
	if err != nil {
		return nil, err
	}
	instanceIds := make([]int, 0, len(stages))
	for _, s := range stages {
		instanceIds = append(instanceIds, s.InstanceId)
	}
	var instances []ApprovalWorkflowInstance
	if len(instanceIds) > 0 {
		if err := config.GetDB().WithContext(ctx).Where("id IN ?", utils.UniqueSlice(instanceIds)).Find(&instances).Error; err != nil {
			return nil, err
		}
	}
	byId := make(map[int]ApprovalWorkflowInstance, len(instances))
	for _, i := range instances {
		byId[i.ID] = i
	}
	results := make([]*OverdueStage, 0)
	for _, s := range stages {
		due, ok := stageDueAt(s)
		if !ok || !due.Before(now) {
			continue
		}
		inst := byId[s.InstanceId]
		results = append(results, &OverdueStage{
			StageInstanceId: s.ID,
			InstanceId:      s.InstanceId,
			ContentType:     inst.ContentType,
			ObjectId:        inst.ObjectId,
			StageName:       s.StageTemplate.Name,
			ActivatedAt:     *s.ActivatedAt,
			DueAt:           due,
		})
	}
	return results, nil
}
