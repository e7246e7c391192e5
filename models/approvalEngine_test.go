package models

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAssignmentPrefersPendingAcrossParallelStages(t *testing.T) {
	tpl := &ApprovalWorkflowStageTemplate{OrderIndex: 1, DecisionPolicy: DecisionPolicyAll}
	group := []ApprovalWorkflowStageInstance{
		{ID: 10, StageTemplate: tpl, Assignments: []ApprovalAssignment{
			{ID: 100, StageInstanceId: 10, UserId: 7, Status: AssignmentStatusApproved},
			{ID: 101, StageInstanceId: 10, UserId: 8, Status: AssignmentStatusPending},
		}},
		{ID: 11, StageTemplate: tpl, Assignments: []ApprovalAssignment{
			{ID: 110, StageInstanceId: 11, UserId: 7, Status: AssignmentStatusPending},
		}},
	}

	idx, a := findAssignment(group, 7)
	require.NotNil(t, a)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 110, a.ID)
	assert.Equal(t, AssignmentStatusPending, a.Status)

	// The returned pointer lets the caller update the group in place.
	a.Status = AssignmentStatusApproved
	assert.Equal(t, stageOutcomePending, evaluateGroup(group))
	group[0].Assignments[1].Status = AssignmentStatusApproved
	assert.Equal(t, stageOutcomeApproved, evaluateGroup(group))
}

func TestFindAssignmentFallsBackToActedAssignment(t *testing.T) {
	tpl := &ApprovalWorkflowStageTemplate{OrderIndex: 1}
	group := []ApprovalWorkflowStageInstance{
		{ID: 10, StageTemplate: tpl, Assignments: []ApprovalAssignment{{ID: 100, UserId: 7, Status: AssignmentStatusApproved}}},
		{ID: 11, StageTemplate: tpl, Assignments: []ApprovalAssignment{{ID: 110, UserId: 7, Status: AssignmentStatusDelegated}}},
	}
	idx, a := findAssignment(group, 7)
	require.NotNil(t, a)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 100, a.ID)

	idx, a = findAssignment(group, 9)
	assert.Nil(t, a)
	assert.Equal(t, -1, idx)
}

func userCtx(userId int, admin bool) context.Context {
	ctx := utils.SetUserIdInContext(context.Background(), userId)
	return utils.SetIsAdminInContext(ctx, admin)
}

func TestCanRestartPermissions(t *testing.T) {
	pr := &PurchaseRequisition{ID: 1, Number: "PR-000001", RequesterId: 5, Status: RequisitionStatusRejected}

	assert.NoError(t, canRestart(userCtx(5, false), pr), "owner")
	assert.NoError(t, canRestart(userCtx(9, true), pr), "admin")

	err := canRestart(userCtx(9, false), pr)
	assert.True(t, errors.Is(err, utils.ErrorForbidden))

	err = canRestart(context.Background(), pr)
	assert.True(t, errors.Is(err, utils.ErrorUnauthorized))
}

func TestCanRestartApprovalDocumentStates(t *testing.T) {
	admin := userCtx(1, true)
	cases := []struct {
		name string
		doc  Approvable
		ok   bool
	}{
		{"requisition pending", &PurchaseRequisition{Status: RequisitionStatusPendingApproval}, true},
		{"requisition rejected", &PurchaseRequisition{Status: RequisitionStatusRejected}, true},
		{"requisition cancelled", &PurchaseRequisition{Status: RequisitionStatusCancelled}, true},
		{"requisition approved", &PurchaseRequisition{Status: RequisitionStatusApproved}, false},
		{"requisition converted", &PurchaseRequisition{Status: RequisitionStatusConvertedToPO}, false},
		{"requisition draft", &PurchaseRequisition{Status: RequisitionStatusDraft}, false},
		{"payment pending", &Payment{Status: PaymentStatusPendingApproval}, true},
		{"payment rejected", &Payment{Status: PaymentStatusRejected}, true},
		{"payment approved", &Payment{Status: PaymentStatusApproved}, false},
		{"payment voided", &Payment{Status: PaymentStatusVoided}, false},
		{"payment posted", &Payment{Status: PaymentStatusRejected, IsPosted: true}, false},
		{"invoice pending", &Invoice{ApprovalStatus: ApprovalStatusPendingApproval, PostingStatus: PostingStatusNotPosted}, true},
		{"invoice rejected", &Invoice{ApprovalStatus: ApprovalStatusRejected, PostingStatus: PostingStatusNotPosted}, true},
		{"invoice approved", &Invoice{ApprovalStatus: ApprovalStatusApproved, PostingStatus: PostingStatusNotPosted}, false},
		{"invoice posted", &Invoice{ApprovalStatus: ApprovalStatusRejected, PostingStatus: PostingStatusPosted}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := canRestart(admin, tc.doc)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, utils.IsValidationError(err), "got %v", err)
		})
	}
}
