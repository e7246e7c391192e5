package models

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"
)

// Approvable is a document that runs through an approval workflow. Hooks run
// inside the engine's transaction; an error rolls back the whole action.
type Approvable interface {
	ApprovalContentType() string
	ApprovalObjectId() int
	// ApprovalOwnerId is the user who may restart the document's workflow.
	ApprovalOwnerId() int
	// CanRestartApproval returns a validation error when the document state
	// no longer allows a new workflow, e.g. after posting or conversion.
	CanRestartApproval() error
	OnApprovalStarted(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance) error
	OnStageApproved(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance, stage *ApprovalWorkflowStageInstance) error
	OnFullyApproved(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance) error
	OnRejected(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance, comment string) error
	OnCancelled(ctx context.Context, tx *gorm.DB, instance *ApprovalWorkflowInstance, reason string) error
}

// ApprovableLoader loads the document of an instance back by id.
type ApprovableLoader func(ctx context.Context, tx *gorm.DB, id int) (Approvable, error)

var (
	approvableMu       sync.RWMutex
	approvableRegistry = map[string]ApprovableLoader{}
)

func RegisterApprovable(contentType string, loader ApprovableLoader) {
	approvableMu.Lock()
	defer approvableMu.Unlock()
	approvableRegistry[contentType] = loader
}

func approvableRegistered(contentType string) bool {
	approvableMu.RLock()
	defer approvableMu.RUnlock()
	_, ok := approvableRegistry[contentType]
	return ok
}

func ApprovableContentTypes() []string {
	approvableMu.RLock()
	defer approvableMu.RUnlock()
	out := make([]string, 0, len(approvableRegistry))
	for k := range approvableRegistry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func loadApprovable(ctx context.Context, tx *gorm.DB, contentType string, id int) (Approvable, error) {
	approvableMu.RLock()
	loader, ok := approvableRegistry[contentType]
	approvableMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no approvable registered for %s", contentType)
	}
	return loader(ctx, tx, id)
}
