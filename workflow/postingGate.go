package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/mmdatafocus/erp_backend/utils"
	"gorm.io/gorm"
)

// ErrPostingGateBlocked marks messages that can never post as they are, such
// as entries dated in a closed period. They are not retried.
var ErrPostingGateBlocked = errors.New("posting gate blocked")

// PeriodModulesFor lists the period modules that must be open to post msg.
// Every posting writes the GL; invoices also need their subledger open.
func PeriodModulesFor(ctx context.Context, tx *gorm.DB, msg config.PubSubMessage) ([]models.PeriodModule, error) {
	switch models.OutboxReferenceType(msg.ReferenceType) {
	case models.OutboxReferenceInvoicePosting:
		var inv models.Invoice
		if err := tx.WithContext(ctx).Select("id", "invoice_type").First(&inv, msg.ReferenceId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("invoice %d %w", msg.ReferenceId, utils.ErrorRecordNotFound)
			}
			return nil, err
		}
		return []models.PeriodModule{inv.PostingModule(), models.PeriodModuleGL}, nil
	case models.OutboxReferencePaymentPosting, models.OutboxReferencePaymentVoid:
		return []models.PeriodModule{models.PeriodModuleGL}, nil
	}
	return nil, nil
}

// EnforcePostingGate checks period state in the worker, so a period closed
// between approval and posting still blocks the entry.
func EnforcePostingGate(ctx context.Context, tx *gorm.DB, msg config.PubSubMessage) error {
	modules, err := PeriodModulesFor(ctx, tx, msg)
	if err != nil {
		return err
	}
	for _, module := range modules {
		if err := models.ValidatePeriodOpen(ctx, tx, module, msg.TransactionDateTime); err != nil {
			if utils.IsValidationError(err) {
				return fmt.Errorf("%w: %v", ErrPostingGateBlocked, err)
			}
			return err
		}
	}
	return nil
}
