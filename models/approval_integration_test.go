package models_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/erp_backend/models"
	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type approvalActors struct {
	requester, manager1, manager2, finance, deputy *models.User
}

func setupApprovalActors(t *testing.T, env *integrationEnv) approvalActors {
	t.Helper()
	for _, r := range []models.NewRole{{Code: "MGR", Name: "Manager"}, {Code: "FIN", Name: "Finance"}, {Code: "BOARD", Name: "Board"}} {
		_, err := models.CreateRole(env.admin, &r)
		require.NoError(t, err)
	}
	user := func(username string, roles ...string) *models.User {
		u, err := models.CreateUser(env.admin, &models.NewUser{Username: username, Name: username, Password: "secret-pass-1", Roles: roles})
		require.NoError(t, err)
		return u
	}
	return approvalActors{
		requester: user("requester"),
		manager1:  user("manager1", "MGR"),
		manager2:  user("manager2", "MGR"),
		finance:   user("finance1", "FIN"),
		deputy:    user("deputy"),
	}
}

func submitRequisition(t *testing.T, env *integrationEnv, ctx context.Context, title string) *models.PurchaseRequisition {
	t.Helper()
	pr, err := models.CreatePurchaseRequisition(ctx, &models.NewPurchaseRequisition{
		Date:         time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC),
		Title:        title,
		CurrencyCode: "USD",
		Lines: []models.NewPurchaseRequisitionLine{{
			ItemName:  "Laptop",
			Quantity:  decimal.NewFromInt(2),
			UnitPrice: decimal.NewFromInt(900),
			Segments:  env.pairs("100", "5000"),
		}},
	})
	require.NoError(t, err)
	pr, err = models.SubmitPurchaseRequisition(ctx, pr.ID)
	require.NoError(t, err)
	return pr
}

func requisitionStatus(t *testing.T, id int) models.RequisitionStatus {
	t.Helper()
	pr, err := models.GetPurchaseRequisition(context.Background(), id)
	require.NoError(t, err)
	return pr.Status
}

func latestInstance(t *testing.T, prId int) *models.ApprovalWorkflowInstance {
	t.Helper()
	inst, err := models.GetWorkflowStatus(context.Background(), models.ContentTypePurchaseRequisition, prId)
	require.NoError(t, err)
	return inst
}

func stageStatuses(inst *models.ApprovalWorkflowInstance) map[string]models.StageStatus {
	out := make(map[string]models.StageStatus, len(inst.StageInstances))
	for _, s := range inst.StageInstances {
		out[s.StageTemplate.Name] = s.Status
	}
	return out
}

func TestIntegration_ApprovalWorkflow(t *testing.T) {
	env := integration(t)
	actors := setupApprovalActors(t, env)
	requesterCtx := userContext(actors.requester)
	m1Ctx, m2Ctx := userContext(actors.manager1), userContext(actors.manager2)
	financeCtx, deputyCtx := userContext(actors.finance), userContext(actors.deputy)

	_, err := models.CreateWorkflowTemplate(env.admin, &models.NewWorkflowTemplate{
		Code:        "PR-STD",
		Name:        "Requisition approval",
		ContentType: models.ContentTypePurchaseRequisition,
		Stages: []models.NewStageTemplate{
			{OrderIndex: 1, Name: "Manager", RequiredRole: "MGR", DecisionPolicy: models.DecisionPolicyAny, AllowDelegate: true},
			{OrderIndex: 2, Name: "Board", RequiredRole: "BOARD"},
			{OrderIndex: 3, Name: "Finance", RequiredRole: "FIN"},
		},
	})
	require.NoError(t, err)

	t.Run("delegate then approve every stage", func(t *testing.T) {
		pr := submitRequisition(t, env, requesterCtx, "Laptops")
		assert.Equal(t, models.RequisitionStatusPendingApproval, pr.Status)
		inst := latestInstance(t, pr.ID)
		require.Equal(t, models.WorkflowStatusInProgress, inst.Status)

		pending, err := models.GetUserPendingApprovals(context.Background(), actors.manager1.ID)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "Manager", pending[0].StageName)

		_, err = models.Delegate(m1Ctx, inst.ID, actors.manager1.ID, "")
		assert.True(t, utils.IsValidationError(err), "delegating to yourself must fail")
		_, err = models.Delegate(m1Ctx, inst.ID, actors.manager2.ID, "")
		assert.True(t, utils.IsValidationError(err), "delegating to someone already assigned must fail")
		_, err = models.Delegate(m1Ctx, inst.ID, actors.deputy.ID, "on leave")
		require.NoError(t, err)

		_, err = models.ProcessAction(m1Ctx, inst.ID, &models.ActionInput{Action: models.ApprovalActionApprove})
		assert.True(t, utils.IsValidationError(err), "a delegated assignment cannot approve")

		_, err = models.ProcessAction(deputyCtx, inst.ID, &models.ActionInput{Action: models.ApprovalActionApprove, Comment: "ok"})
		require.NoError(t, err)
		inst = latestInstance(t, pr.ID)
		assert.Equal(t, models.WorkflowStatusInProgress, inst.Status)
		assert.Equal(t, map[string]models.StageStatus{
			"Manager": models.StageStatusCompleted,
			"Board":   models.StageStatusSkipped,
			"Finance": models.StageStatusActive,
		}, stageStatuses(inst))

		pending, err = models.GetUserPendingApprovals(context.Background(), actors.manager2.ID)
		require.NoError(t, err)
		assert.Empty(t, pending, "untouched assignments close with the stage")

		_, err = models.ProcessAction(m2Ctx, inst.ID, &models.ActionInput{Action: models.ApprovalActionApprove})
		assert.True(t, errors.Is(err, utils.ErrorForbidden))

		_, err = models.ProcessAction(financeCtx, inst.ID, &models.ActionInput{Action: models.ApprovalActionComment, Comment: "checking quotes"})
		require.NoError(t, err)
		done, err := models.ProcessAction(financeCtx, inst.ID, &models.ActionInput{Action: models.ApprovalActionApprove})
		require.NoError(t, err)
		assert.Equal(t, models.WorkflowStatusApproved, done.Status)
		assert.Equal(t, models.RequisitionStatusApproved, requisitionStatus(t, pr.ID))

		finished, status, err := models.IsWorkflowFinished(context.Background(), models.ContentTypePurchaseRequisition, pr.ID)
		require.NoError(t, err)
		assert.True(t, finished)
		assert.Equal(t, string(models.WorkflowStatusApproved), status)

		_, err = models.RestartWorkflow(requesterCtx, models.ContentTypePurchaseRequisition, pr.ID)
		assert.True(t, utils.IsValidationError(err), "an approved requisition cannot restart")
		assert.Equal(t, models.RequisitionStatusApproved, requisitionStatus(t, pr.ID))
	})

	t.Run("reject restart and cancel", func(t *testing.T) {
		pr := submitRequisition(t, env, requesterCtx, "Monitors")
		first := latestInstance(t, pr.ID)

		_, err := models.ProcessAction(m2Ctx, first.ID, &models.ActionInput{Action: models.ApprovalActionReject, Comment: "over budget"})
		require.NoError(t, err)
		stored, err := models.GetPurchaseRequisition(context.Background(), pr.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequisitionStatusRejected, stored.Status)
		assert.Equal(t, "over budget", stored.RejectionReason)

		_, err = models.RestartWorkflow(m1Ctx, models.ContentTypePurchaseRequisition, pr.ID)
		assert.True(t, errors.Is(err, utils.ErrorForbidden), "only the owner or an admin can restart")
		_, err = models.RestartWorkflow(context.Background(), models.ContentTypePurchaseRequisition, pr.ID)
		assert.True(t, errors.Is(err, utils.ErrorUnauthorized))

		second, err := models.RestartWorkflow(requesterCtx, models.ContentTypePurchaseRequisition, pr.ID)
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, models.WorkflowStatusInProgress, second.Status)
		assert.Equal(t, models.RequisitionStatusPendingApproval, requisitionStatus(t, pr.ID))

		// Restarting a pending workflow cancels the running instance.
		third, err := models.RestartWorkflow(requesterCtx, models.ContentTypePurchaseRequisition, pr.ID)
		require.NoError(t, err)
		old, err := models.GetWorkflowInstance(context.Background(), second.ID)
		require.NoError(t, err)
		assert.Equal(t, models.WorkflowStatusCancelled, old.Status)
		assert.Equal(t, models.RequisitionStatusPendingApproval, requisitionStatus(t, pr.ID))

		cancelled, err := models.CancelWorkflow(env.admin, nil, third.ID, "withdrawn")
		require.NoError(t, err)
		assert.Equal(t, models.WorkflowStatusCancelled, cancelled.Status)
		stored, err = models.GetPurchaseRequisition(context.Background(), pr.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequisitionStatusCancelled, stored.Status)
		assert.Equal(t, "withdrawn", stored.CancellationReason)

		again, err := models.CancelWorkflow(env.admin, nil, third.ID, "twice")
		require.NoError(t, err)
		assert.Equal(t, models.WorkflowStatusCancelled, again.Status)

		_, err = models.ProcessAction(m1Ctx, third.ID, &models.ActionInput{Action: models.ApprovalActionApprove})
		assert.True(t, utils.IsValidationError(err), "a cancelled workflow takes no actions")

		fourth, err := models.RestartWorkflow(env.admin, models.ContentTypePurchaseRequisition, pr.ID)
		require.NoError(t, err)
		assert.Equal(t, models.WorkflowStatusInProgress, fourth.Status)
		assert.Equal(t, models.RequisitionStatusPendingApproval, requisitionStatus(t, pr.ID))
	})

	t.Run("every stage skipped approves at submit", func(t *testing.T) {
		skip, err := models.CreateWorkflowTemplate(env.admin, &models.NewWorkflowTemplate{
			Code:        "PR-BOARD",
			Name:        "Board only",
			ContentType: models.ContentTypePurchaseRequisition,
			Version:     2,
			Stages:      []models.NewStageTemplate{{OrderIndex: 1, Name: "Board", RequiredRole: "BOARD"}},
		})
		require.NoError(t, err)
		t.Cleanup(func() { _, _ = models.DeactivateWorkflowTemplate(env.admin, skip.ID) })

		pr := submitRequisition(t, env, requesterCtx, "Chairs")
		assert.Equal(t, models.RequisitionStatusApproved, pr.Status)
		inst := latestInstance(t, pr.ID)
		assert.Equal(t, models.WorkflowStatusApproved, inst.Status)
		require.Len(t, inst.StageInstances, 1)
		assert.Equal(t, models.StageStatusSkipped, inst.StageInstances[0].Status)
		require.Len(t, inst.StageInstances[0].Actions, 1)
		assert.Nil(t, inst.StageInstances[0].Actions[0].UserId)
	})
}
