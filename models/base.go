package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PublishEvent writes an outbox row inside the caller's transaction. The
// dispatcher publishes it after commit, so a rolled back business change never
// produces an event.
func PublishEvent(ctx context.Context, tx *gorm.DB, transactionDateTime time.Time, refId int, refType OutboxReferenceType, payload any, action OutboxAction) error {
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}

	record := OutboxRecord{
		TransactionDateTime: transactionDateTime,
		ReferenceId:         refId,
		ReferenceType:       refType,
		Action:              action,
		Payload:             data,
		PublishStatus:       OutboxPublishStatusPending,
		ProcessingStatus:    OutboxProcessStatusPending,
		CorrelationId:       correlationIdFromContextOrNew(ctx),
	}
	return tx.WithContext(ctx).Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// runInTx runs fn in one transaction on the global connection.
func runInTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return config.GetDB().WithContext(ctx).Transaction(fn)
}

// txOrDB lets helpers run inside a caller's transaction or standalone.
func txOrDB(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return config.GetDB().WithContext(ctx)
}

// lockForUpdate adds SELECT ... FOR UPDATE.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// fetchModel loads one row by id and maps a missing row to
// utils.ErrorRecordNotFound with the model name in the message.
func fetchModel[T any](ctx context.Context, tx *gorm.DB, id int, preloads ...string) (*T, error) {
	var result T
	q := txOrDB(ctx, tx)
	for _, p := range preloads {
		q = q.Preload(p)
	}
	if err := q.First(&result, id).Error; err != nil {
		return nil, notFound[T](err)
	}
	return &result, nil
}

// fetchModelForUpdate is fetchModel holding a row lock until tx ends.
func fetchModelForUpdate[T any](ctx context.Context, tx *gorm.DB, id int) (*T, error) {
	var result T
	if err := lockForUpdate(tx.WithContext(ctx)).First(&result, id).Error; err != nil {
		return nil, notFound[T](err)
	}
	return &result, nil
}

func notFound[T any](err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		var zero T
		return fmt.Errorf("%s %w", modelName(zero), utils.ErrorRecordNotFound)
	}
	return err
}

func modelName(v any) string {
	switch v.(type) {
	case User:
		return "user"
	case Role:
		return "role"
	case SegmentType:
		return "segment type"
	case Segment:
		return "segment"
	case SegmentCombination:
		return "segment combination"
	case JournalEntry:
		return "journal entry"
	case ApprovalWorkflowTemplate:
		return "workflow template"
	case ApprovalWorkflowInstance:
		return "workflow instance"
	case Period:
		return "period"
	case BusinessPartner:
		return "business partner"
	case Invoice:
		return "invoice"
	case Payment:
		return "payment"
	case PaymentAllocation:
		return "payment allocation"
	case Bank:
		return "bank"
	case BankBranch:
		return "bank branch"
	case BankAccount:
		return "bank account"
	case BankStatement:
		return "bank statement"
	case BankStatementLine:
		return "statement line"
	case BankStatementLineMatch:
		return "statement match"
	case BudgetHeader:
		return "budget"
	case BudgetAmount:
		return "budget amount"
	case PurchaseRequisition:
		return "purchase requisition"
	case PurchaseOrder:
		return "purchase order"
	case GoodsReceipt:
		return "goods receipt"
	case Organization:
		return "organization"
	case Job:
		return "job"
	case Position:
		return "position"
	case Person:
		return "person"
	case Attachment:
		return "attachment"
	case OutboxRecord:
		return "outbox record"
	}
	return "record"
}

// isDuplicateKeyError reports MySQL error 1062.
func isDuplicateKeyError(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// currentUserId is the acting user of ctx; nil for system work.
func currentUserId(ctx context.Context) *int {
	id, ok := utils.GetUserIdFromContext(ctx)
	if !ok || id <= 0 {
		return nil
	}
	return &id
}

func currentUserIdOrZero(ctx context.Context) int {
	if id := currentUserId(ctx); id != nil {
		return *id
	}
	return 0
}

func requireAdmin(ctx context.Context) error {
	if ok, _ := utils.GetIsAdminFromContext(ctx); !ok {
		return fmt.Errorf("admin role required: %w", utils.ErrorForbidden)
	}
	return nil
}

// withLock runs fn while holding a redis lock on key. Without redis fn runs
// unguarded and the database row locks taken inside fn apply.
func withLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	lock, ok, err := config.ObtainLock(ctx, key, ttl)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return utils.ConflictError("%s is busy, try again", key)
		}
		return err
	}
	if ok {
		defer lock.Release(context.Background())
	}
	return fn()
}
