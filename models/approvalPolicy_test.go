package models

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func assignmentsWith(statuses ...AssignmentStatus) []ApprovalAssignment {
	out := make([]ApprovalAssignment, 0, len(statuses))
	for i, s := range statuses {
		out = append(out, ApprovalAssignment{ID: i + 1, UserId: i + 1, Status: s})
	}
	return out
}

func TestEvaluateStagePolicies(t *testing.T) {
	two := 2
	cases := []struct {
		name     string
		tpl      ApprovalWorkflowStageTemplate
		statuses []AssignmentStatus
		want     stageOutcome
	}{
		{"all pending", ApprovalWorkflowStageTemplate{DecisionPolicy: DecisionPolicyAll, AllowReject: true},
			[]AssignmentStatus{AssignmentStatusApproved, AssignmentStatusPending}, stageOutcomePending},
		{"all approved", ApprovalWorkflowStageTemplate{DecisionPolicy: DecisionPolicyAll, AllowReject: true},
			[]AssignmentStatus{AssignmentStatusApproved, AssignmentStatusApproved}, stageOutcomeApproved},
		{"all ignores delegated", ApprovalWorkflowStageTemplate{DecisionPolicy: DecisionPolicyAll, AllowReject: true},
			[]AssignmentStatus{AssignmentStatusDelegated, AssignmentStatusApproved}, stageOutcomeApproved},
		{"any one approval", ApprovalWorkflowStageTemplate{DecisionPolicy: DecisionPolicyAny, AllowReject: true},
			[]AssignmentStatus{AssignmentStatusPending, AssignmentStatusApproved, AssignmentStatusPending}, stageOutcomeApproved},
		{"any none", ApprovalWorkflowStageTemplate{DecisionPolicy: DecisionPolicyAny, AllowReject: true},
			[]AssignmentStatus{AssignmentStatusPending, AssignmentStatusPending}, stageOutcomePending},
		{"reject wins", ApprovalWorkflowStageTemplate{DecisionPolicy: DecisionPolicyAny, AllowReject: true},
			[]AssignmentStatus{AssignmentStatusApproved, AssignmentStatusRejected}, stageOutcomeRejected},
		{"quorum explicit", ApprovalWorkflowStageTemplate{DecisionPolicy: DecisionPolicyQuorum, QuorumCount: &two, AllowReject: true},
			[]AssignmentStatus{AssignmentStatusApproved, AssignmentStatusApproved, AssignmentStatusPending, AssignmentStatusPending}, stageOutcomeApproved},
		{"quorum majority short", ApprovalWorkflowStageTemplate{DecisionPolicy: DecisionPolicyQuorum, AllowReject: true},
			[]AssignmentStatus{AssignmentStatusApproved, AssignmentStatusApproved, AssignmentStatusPending, AssignmentStatusPending}, stageOutcomePending},
		{"quorum majority met", ApprovalWorkflowStageTemplate{DecisionPolicy: DecisionPolicyQuorum, AllowReject: true},
			[]AssignmentStatus{AssignmentStatusApproved, AssignmentStatusApproved, AssignmentStatusPending}, stageOutcomeApproved},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, evaluateStage(tc.tpl, assignmentsWith(tc.statuses...)))
		})
	}
}

func TestQuorumFor(t *testing.T) {
	three := 3
	assert.Equal(t, 1, quorumFor(nil, 1))
	assert.Equal(t, 2, quorumFor(nil, 2))
	assert.Equal(t, 3, quorumFor(nil, 4))
	assert.Equal(t, 3, quorumFor(&three, 10))
}

func TestEvaluateGroup(t *testing.T) {
	all := &ApprovalWorkflowStageTemplate{DecisionPolicy: DecisionPolicyAll, AllowReject: true}
	anyTpl := &ApprovalWorkflowStageTemplate{DecisionPolicy: DecisionPolicyAny, AllowReject: true}
	group := []ApprovalWorkflowStageInstance{
		{ID: 1, StageTemplate: all, Assignments: assignmentsWith(AssignmentStatusApproved)},
		{ID: 2, StageTemplate: anyTpl, Assignments: assignmentsWith(AssignmentStatusPending)},
	}
	assert.Equal(t, stageOutcomePending, evaluateGroup(group))

	group[1].Assignments[0].Status = AssignmentStatusApproved
	assert.Equal(t, stageOutcomeApproved, evaluateGroup(group))

	group[0].Assignments[0].Status = AssignmentStatusRejected
	assert.Equal(t, stageOutcomeRejected, evaluateGroup(group))

	assert.Equal(t, stageOutcomePending, evaluateGroup(nil))
}

func TestNextOrderIndex(t *testing.T) {
	orders := []int{1, 2, 5}
	next, ok := nextOrderIndex(orders, nil)
	require.True(t, ok)
	assert.Equal(t, 1, next)

	next, ok = nextOrderIndex(orders, []int{1, 2})
	require.True(t, ok)
	assert.Equal(t, 5, next)

	_, ok = nextOrderIndex(orders, []int{1, 2, 5})
	assert.False(t, ok)

	_, ok = nextOrderIndex(nil, nil)
	assert.False(t, ok)
}

func TestLowestOrderGroup(t *testing.T) {
	stages := []ApprovalWorkflowStageInstance{
		{ID: 1, StageTemplate: &ApprovalWorkflowStageTemplate{OrderIndex: 3}},
		{ID: 2, StageTemplate: &ApprovalWorkflowStageTemplate{OrderIndex: 2}},
		{ID: 3, StageTemplate: &ApprovalWorkflowStageTemplate{OrderIndex: 2}},
	}
	group := lowestOrderGroup(stages)
	require.Len(t, group, 2)
	assert.Equal(t, 2, group[0].ID)
	assert.Equal(t, 3, group[1].ID)
}

func TestStageFilter(t *testing.T) {
	f, err := parseStageFilter(datatypes.JSON(`{"user_ids": [2, 3]}`))
	require.NoError(t, err)
	users := []User{{ID: 1}, {ID: 2}, {ID: 3}}
	got := f.apply(users)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].ID)

	empty, err := parseStageFilter(nil)
	require.NoError(t, err)
	assert.Len(t, empty.apply(users), 3)

	_, err = parseStageFilter(datatypes.JSON(`[1,2]`))
	assert.Error(t, err)
}

func TestStageDueAt(t *testing.T) {
	activated := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	hours := 4
	stage := ApprovalWorkflowStageInstance{
		ActivatedAt:   &activated,
		StageTemplate: &ApprovalWorkflowStageTemplate{SlaHours: &hours},
	}
	due, ok := stageDueAt(stage)
	require.True(t, ok)
	assert.Equal(t, activated.Add(4*time.Hour), due)

	stage.StageTemplate.SlaHours = nil
	_, ok = stageDueAt(stage)
	assert.False(t, ok)
}

func TestWorkflowTemplateValidation(t *testing.T) {
	RegisterApprovable("test_document", func(_ context.Context, _ *gorm.DB, _ int) (Approvable, error) { return nil, nil })
	zero := 0
	base := func() *NewWorkflowTemplate {
		return &NewWorkflowTemplate{
			Code:        "TEST",
			Name:        "Test",
			ContentType: "test_document",
			Stages:      []NewStageTemplate{{OrderIndex: 1, Name: "Manager"}},
		}
	}
	require.NoError(t, base().validate())

	dup := base()
	dup.Stages = append(dup.Stages, NewStageTemplate{OrderIndex: 1, Name: "Again"})
	assert.Error(t, dup.validate())

	quorum := base()
	quorum.Stages[0].DecisionPolicy = DecisionPolicyQuorum
	quorum.Stages[0].QuorumCount = &zero
	assert.Error(t, quorum.validate())

	unknown := base()
	unknown.ContentType = "nothing"
	assert.Error(t, unknown.validate())

	noStages := base()
	noStages.Stages = nil
	assert.Error(t, noStages.validate())
}
