package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_backend/middlewares"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/mmdatafocus/erp_backend/utils"
)

// instanceView carries the instance plus the names of every user that is
// assigned to or acted on one of its stages.
type instanceView struct {
	*models.ApprovalWorkflowInstance
	Users map[int]string `json:"users"`
}

func viewInstance(ctx context.Context, inst *models.ApprovalWorkflowInstance) instanceView {
	var ids []int
	for _, st := range inst.StageInstances {
		for _, a := range st.Assignments {
			ids = append(ids, a.UserId)
		}
		for _, a := range st.Actions {
			if a.UserId != nil {
				ids = append(ids, *a.UserId)
			}
		}
	}
	ids = utils.UniqueSlice(ids)
	names := make(map[int]string, len(ids))
	if len(ids) > 0 {
		users, _ := middlewares.GetUsers(ctx, ids)
		for _, u := range users {
			if u != nil {
				names[u.ID] = u.Name
			}
		}
	}
	return instanceView{ApprovalWorkflowInstance: inst, Users: names}
}

func listWorkflowTemplates(c *gin.Context) {
	templates, err := models.ListWorkflowTemplates(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, templates)
}

func getWorkflowTemplate(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	t, err := models.GetWorkflowTemplate(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, t)
}

func createWorkflowTemplate(c *gin.Context) {
	var in models.NewWorkflowTemplate
	if !bind(c, &in) {
		return
	}
	t, err := models.CreateWorkflowTemplate(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, t)
}

func deactivateWorkflowTemplate(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	t, err := models.DeactivateWorkflowTemplate(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, t)
}

func getWorkflowInstance(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	inst, err := models.GetWorkflowInstance(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, viewInstance(c.Request.Context(), inst))
}

// getWorkflowStatus answers GET /approvals/status/:contentType/:objectId.
func getWorkflowStatus(c *gin.Context) {
	objectId, valid := pathId(c, "objectId")
	if !valid {
		return
	}
	ctx := c.Request.Context()
	inst, err := models.GetWorkflowStatus(ctx, c.Param("contentType"), objectId)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, viewInstance(ctx, inst))
}

func approvalAction(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in models.ActionInput
	if !bind(c, &in) {
		return
	}
	ctx := c.Request.Context()
	inst, err := models.ProcessAction(ctx, id, &in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, viewInstance(ctx, inst))
}

func delegateApproval(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in struct {
		TargetUserId int    `json:"target_user_id" binding:"required"`
		Comment      string `json:"comment"`
	}
	if !bind(c, &in) {
		return
	}
	ctx := c.Request.Context()
	inst, err := models.Delegate(ctx, id, in.TargetUserId, in.Comment)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, viewInstance(ctx, inst))
}

func restartWorkflow(c *gin.Context) {
	objectId, valid := pathId(c, "objectId")
	if !valid {
		return
	}
	ctx := c.Request.Context()
	inst, err := models.RestartWorkflow(ctx, c.Param("contentType"), objectId)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, viewInstance(ctx, inst))
}

func pendingApprovals(c *gin.Context) {
	ctx := c.Request.Context()
	userId, _ := utils.GetUserIdFromContext(ctx)
	rows, err := models.GetUserPendingApprovals(ctx, userId)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func overdueStages(c *gin.Context) {
	rows, err := models.ListOverdueStages(c.Request.Context(), time.Now())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func approvableTypes(c *gin.Context) {
	ok(c, models.ApprovableContentTypes())
}
