package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/mmdatafocus/erp_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxDirectProcessor applies outbox rows in-process, without Pub/Sub.
// It covers local setups and deployments where delivery is misconfigured.
type OutboxDirectProcessor struct {
	DB        *gorm.DB
	Logger    *logrus.Logger
	WorkerID  string
	BatchSize int
	Interval  time.Duration
	LockTTL   time.Duration
	Processor *workflow.Processor
}

func NewOutboxDirectProcessor(db *gorm.DB, logger *logrus.Logger) *OutboxDirectProcessor {
	return &OutboxDirectProcessor{
		DB:        db,
		Logger:    logger,
		WorkerID:  "direct-" + uuid.NewString(),
		BatchSize: 50,
		Interval:  2 * time.Second,
		LockTTL:   30 * time.Second,
		Processor: workflow.NewProcessor(db, logger),
	}
}

func (p *OutboxDirectProcessor) Run(ctx context.Context) {
	if p == nil || p.DB == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := p.processOnce(ctx); err != nil && p.Logger != nil {
			p.Logger.WithFields(logrus.Fields{
				"field":     "OutboxDirectProcessor",
				"worker_id": p.WorkerID,
			}).Error("outbox claim failed: " + err.Error())
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval):
		}
	}
}

// claim locks unprocessed rows that are due. DEAD rows wait for an admin
// replay; rows held by another worker are taken over once their lock is stale.
func (p *OutboxDirectProcessor) claim(ctx context.Context) ([]models.OutboxRecord, error) {
	now := time.Now().UTC()
	staleBefore := now.Add(-p.LockTTL)

	var claimed []models.OutboxRecord
	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("is_processed = ?", false).
			Where("processing_status <> ?", models.OutboxProcessStatusDead).
			Where(`
				(processing_status IN ? AND (next_process_attempt_at IS NULL OR next_process_attempt_at <= ?) AND (locked_at IS NULL OR locked_at <= ?))
				OR
				(processing_status = ? AND (locked_at IS NULL OR locked_at <= ?))
			`, []models.OutboxProcessStatus{models.OutboxProcessStatusPending, models.OutboxProcessStatusFailed}, now, staleBefore,
				models.OutboxProcessStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(p.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			if err := tx.Model(&models.OutboxRecord{}).
				Where("id = ?", claimed[i].ID).
				Updates(map[string]interface{}{
					"locked_at": &now,
					"locked_by": p.WorkerID,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

// processOnce returns the number of rows processed without error.
func (p *OutboxDirectProcessor) processOnce(ctx context.Context) (int, error) {
	claimed, err := p.claim(ctx)
	if err != nil || len(claimed) == 0 {
		return 0, err
	}

	done := 0
	for _, rec := range claimed {
		if err := p.Processor.ProcessMessage(ctx, rec.Message()); err != nil {
			if p.Logger != nil {
				p.Logger.WithFields(logrus.Fields{
					"field":          "OutboxDirectProcessor",
					"reference_type": rec.ReferenceType,
					"reference_id":   rec.ReferenceId,
					"record_id":      rec.ID,
					"correlation_id": rec.CorrelationId,
				}).Error("direct processing failed: " + err.Error())
			}
			p.unlock(ctx, rec.ID)
			continue
		}
		done++
	}
	return done, nil
}

func (p *OutboxDirectProcessor) unlock(ctx context.Context, id int) {
	_ = p.DB.WithContext(ctx).Model(&models.OutboxRecord{}).
		Where("id = ? AND locked_by = ?", id, p.WorkerID).
		Updates(map[string]interface{}{
			"locked_at": nil,
			"locked_by": nil,
		}).Error
}
