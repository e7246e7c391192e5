package models

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"gorm.io/datatypes"
)

type stageOutcome string

const (
	stageOutcomePending  stageOutcome = "pending"
	stageOutcomeApproved stageOutcome = "approved"
	stageOutcomeRejected stageOutcome = "rejected"
)

// quorumFor is the approvals a QUORUM stage needs. Without an explicit count
// it is a simple majority of n.
func quorumFor(quorumCount *int, n int) int {
	if quorumCount != nil && *quorumCount > 0 {
		return *quorumCount
	}
	return n/2 + 1
}

// evaluateStage decides one stage from its assignments. Delegated
// assignments are replaced by the delegate's and do not count.
func evaluateStage(tpl ApprovalWorkflowStageTemplate, assignments []ApprovalAssignment) stageOutcome {
	approved, eligible := 0, 0
	for _, a := range assignments {
		switch a.Status {
		case AssignmentStatusDelegated:
			continue
		case AssignmentStatusRejected:
			if tpl.AllowReject {
				return stageOutcomeRejected
			}
		case AssignmentStatusApproved:
			approved++
		}
		eligible++
	}
	switch tpl.DecisionPolicy {
	case DecisionPolicyAny:
		if approved >= 1 {
			return stageOutcomeApproved
		}
	case DecisionPolicyQuorum:
		if eligible > 0 && approved >= quorumFor(tpl.QuorumCount, eligible) {
			return stageOutcomeApproved
		}
	default:
		if eligible > 0 && approved == eligible {
			return stageOutcomeApproved
		}
	}
	return stageOutcomePending
}

// evaluateGroup combines the stages of one order: any rejection rejects the
// group, the group approves once every stage approved.
func evaluateGroup(stages []ApprovalWorkflowStageInstance) stageOutcome {
	allApproved := len(stages) > 0
	for _, s := range stages {
		if s.StageTemplate == nil {
			return stageOutcomePending
		}
		switch evaluateStage(*s.StageTemplate, s.Assignments) {
		case stageOutcomeRejected:
			return stageOutcomeRejected
		case stageOutcomePending:
			allApproved = false
		}
	}
	if allApproved {
		return stageOutcomeApproved
	}
	return stageOutcomePending
}

// nextOrderIndex returns the smallest template order above every order
// already reached. ok is false when the workflow has no further stages.
func nextOrderIndex(templateOrders []int, reached []int) (int, bool) {
	highest := 0
	for _, o := range reached {
		if o > highest {
			highest = o
		}
	}
	best, ok := 0, false
	for _, o := range templateOrders {
		if o > highest && (!ok || o < best) {
			best, ok = o, true
		}
	}
	return best, ok
}

// lowestOrderGroup keeps the stages sharing the smallest order index.
func lowestOrderGroup(stages []ApprovalWorkflowStageInstance) []ApprovalWorkflowStageInstance {
	if len(stages) == 0 {
		return nil
	}
	sorted := make([]ApprovalWorkflowStageInstance, len(stages))
	copy(sorted, stages)
	sort.SliceStable(sorted, func(i, j int) bool { return stageOrder(sorted[i]) < stageOrder(sorted[j]) })
	lowest := stageOrder(sorted[0])
	group := make([]ApprovalWorkflowStageInstance, 0, len(sorted))
	for _, s := range sorted {
		if stageOrder(s) == lowest {
			group = append(group, s)
		}
	}
	return group
}

func stageOrder(s ApprovalWorkflowStageInstance) int {
	if s.StageTemplate == nil {
		return 0
	}
	return s.StageTemplate.OrderIndex
}

// stageFilter is the dynamic filter of a stage template.
// {"user_ids": [3, 7]} narrows the role's users to those ids.
type stageFilter struct {
	UserIds []int `json:"user_ids"`
}

func parseStageFilter(raw datatypes.JSON) (stageFilter, error) {
	var f stageFilter
	if len(raw) == 0 || string(raw) == "null" {
		return f, nil
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, errors.New("dynamic_filter must be an object like {\"user_ids\": [1, 2]}")
	}
	return f, nil
}

func (f stageFilter) apply(users []User) []User {
	if len(f.UserIds) == 0 {
		return users
	}
	allowed := make(map[int]bool, len(f.UserIds))
	for _, id := range f.UserIds {
		allowed[id] = true
	}
	out := make([]User, 0, len(users))
	for _, u := range users {
		if allowed[u.ID] {
			out = append(out, u)
		}
	}
	return out
}

// stageDueAt is the SLA deadline of an active stage; ok is false without SLA.
func stageDueAt(stage ApprovalWorkflowStageInstance) (time.Time, bool) {
	if stage.StageTemplate == nil || stage.StageTemplate.SlaHours == nil || stage.ActivatedAt == nil {
		return time.Time{}, false
	}
	return stage.ActivatedAt.Add(time.Duration(*stage.StageTemplate.SlaHours) * time.Hour), true
}
