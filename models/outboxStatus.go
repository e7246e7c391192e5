package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
)

// OutboxStatus is the API view of the latest outbox row for a document.
type OutboxStatus struct {
	RecordId             int                 `json:"record_id"`
	ReferenceType        OutboxReferenceType `json:"reference_type"`
	ReferenceId          int                 `json:"reference_id"`
	PublishStatus        OutboxPublishStatus `json:"publish_status"`
	ProcessingStatus     OutboxProcessStatus `json:"processing_status"`
	PublishAttempts      int                 `json:"publish_attempts"`
	ProcessAttempts      int                 `json:"process_attempts"`
	NextAttemptAt        *time.Time          `json:"next_attempt_at"`
	NextProcessAttemptAt *time.Time          `json:"next_process_attempt_at"`
	LastPublishError     *string             `json:"last_publish_error"`
	LastProcessError     *string             `json:"last_process_error"`
	CorrelationId        string              `json:"correlation_id"`
	CreatedAt            time.Time           `json:"created_at"`
	PublishedAt          *time.Time          `json:"published_at"`
	ProcessedAt          *time.Time          `json:"processed_at"`
}

// OutboxSummary counts rows per processing status.
type OutboxSummary struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Succeeded  int64 `json:"succeeded"`
}

func outboxStatusOf(rec OutboxRecord) *OutboxStatus {
	processing := rec.ProcessingStatus
	switch {
	case rec.IsProcessed && processing != OutboxProcessStatusDead:
		processing = OutboxProcessStatusSucceeded
	case processing == "":
		processing = OutboxProcessStatusPending
	}
	return &OutboxStatus{
		RecordId:             rec.ID,
		ReferenceType:        rec.ReferenceType,
		ReferenceId:          rec.ReferenceId,
		PublishStatus:        rec.PublishStatus,
		ProcessingStatus:     processing,
		PublishAttempts:      rec.PublishAttempts,
		ProcessAttempts:      rec.ProcessAttempts,
		NextAttemptAt:        rec.NextAttemptAt,
		NextProcessAttemptAt: rec.NextProcessAttemptAt,
		LastPublishError:     rec.LastPublishError,
		LastProcessError:     rec.LastProcessError,
		CorrelationId:        rec.CorrelationId,
		CreatedAt:            rec.CreatedAt,
		PublishedAt:          rec.PublishedAt,
		ProcessedAt:          rec.ProcessedAt,
	}
}

func GetOutboxStatus(ctx context.Context, referenceType OutboxReferenceType, referenceId int) (*OutboxStatus, error) {
	var rec OutboxRecord
	if err := config.GetDB().WithContext(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceId).
		Order("id DESC").
		First(&rec).Error; err != nil {
		return nil, notFound[OutboxRecord](err)
	}
	return outboxStatusOf(rec), nil
}

// ListDeadOutbox returns rows that exhausted publish or processing retries.
func ListDeadOutbox(ctx context.Context, limit int) ([]*OutboxStatus, error) {
	if limit <= 0 || limit > config.ListLimit {
		limit = config.ListLimit
	}
	var recs []OutboxRecord
	if err := config.GetDB().WithContext(ctx).
		Where("publish_status = ? OR processing_status = ?", OutboxPublishStatusDead, OutboxProcessStatusDead).
		Order("id DESC").Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*OutboxStatus, 0, len(recs))
	for _, r := range recs {
		out = append(out, outboxStatusOf(r))
	}
	return out, nil
}

func GetOutboxSummary(ctx context.Context) (*OutboxSummary, error) {
	var rows []struct {
		ProcessingStatus OutboxProcessStatus
		Count            int64
	}
	if err := config.GetDB().WithContext(ctx).Model(&OutboxRecord{}).
		Select("processing_status, COUNT(*) AS count").
		Group("processing_status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	var s OutboxSummary
	for _, r := range rows {
		switch r.ProcessingStatus {
		case OutboxProcessStatusPending:
			s.Pending = r.Count
		case OutboxProcessStatusProcessing:
			s.Processing = r.Count
		case OutboxProcessStatusFailed:
			s.Failed = r.Count
		case OutboxProcessStatusDead:
			s.Dead = r.Count
		case OutboxProcessStatusSucceeded:
			s.Succeeded = r.Count
		}
	}
	return &s, nil
}

// ReprocessOutbox resets unprocessed rows of a document so the dispatcher and
// worker pick them up again.
func ReprocessOutbox(ctx context.Context, referenceType OutboxReferenceType, referenceId int) (*OutboxStatus, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res := config.GetDB().WithContext(ctx).
		Model(&OutboxRecord{}).
		Where("reference_type = ? AND reference_id = ? AND is_processed = ?", referenceType, referenceId, false).
		Updates(map[string]interface{}{
			"locked_at":               nil,
			"locked_by":               nil,
			"publish_status":          OutboxPublishStatusPending,
			"publish_attempts":        0,
			"next_attempt_at":         nil,
			"last_publish_error":      nil,
			"processing_status":       OutboxProcessStatusPending,
			"process_attempts":        0,
			"next_process_attempt_at": &now,
			"last_process_error":      nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("unprocessed outbox record %w", utils.ErrorRecordNotFound)
	}
	return GetOutboxStatus(ctx, referenceType, referenceId)
}

// ReplayOutboxRecord resets the rows of the document that record id belongs to.
func ReplayOutboxRecord(ctx context.Context, id int) (*OutboxStatus, error) {
	rec, err := fetchModel[OutboxRecord](ctx, nil, id)
	if err != nil {
		return nil, err
	}
	return ReprocessOutbox(ctx, rec.ReferenceType, rec.ReferenceId)
}
