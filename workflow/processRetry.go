package workflow

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ProcessRetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// ProcessRetryConfigFromEnv reads OUTBOX_PROCESS_MAX_ATTEMPTS,
// OUTBOX_PROCESS_BASE_BACKOFF_SECONDS and OUTBOX_PROCESS_MAX_BACKOFF_SECONDS.
func ProcessRetryConfigFromEnv() ProcessRetryConfig {
	cfg := ProcessRetryConfig{
		MaxAttempts: 10,
		BaseBackoff: 5 * time.Second,
		MaxBackoff:  10 * time.Minute,
	}
	if n := positiveIntFromEnv("OUTBOX_PROCESS_MAX_ATTEMPTS"); n > 0 {
		cfg.MaxAttempts = n
	}
	if n := positiveIntFromEnv("OUTBOX_PROCESS_BASE_BACKOFF_SECONDS"); n > 0 {
		cfg.BaseBackoff = time.Duration(n) * time.Second
	}
	if n := positiveIntFromEnv("OUTBOX_PROCESS_MAX_BACKOFF_SECONDS"); n > 0 {
		cfg.MaxBackoff = time.Duration(n) * time.Second
	}
	return cfg
}

func positiveIntFromEnv(key string) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

// backoff is base * 2^(attempt-1), capped at ceiling.
func backoff(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt <= 1 {
		return base
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if ceiling > 0 && delay >= ceiling {
			return ceiling
		}
	}
	return delay
}

// nextProcessState is the status and retry time after a failed attempt.
func nextProcessState(attempts int, cfg ProcessRetryConfig, now time.Time) (models.OutboxProcessStatus, *time.Time) {
	if attempts >= cfg.MaxAttempts {
		return models.OutboxProcessStatusDead, nil
	}
	t := now.Add(backoff(attempts, cfg.BaseBackoff, cfg.MaxBackoff))
	return models.OutboxProcessStatusFailed, &t
}

func markOutboxProcessing(ctx context.Context, db *gorm.DB, id int) {
	if id <= 0 {
		return
	}
	_ = db.WithContext(ctx).
		Model(&models.OutboxRecord{}).
		Where("id = ? AND processing_status <> ?", id, models.OutboxProcessStatusDead).
		Update("processing_status", models.OutboxProcessStatusProcessing).Error
}

// markOutboxProcessed runs inside the posting transaction.
func markOutboxProcessed(tx *gorm.DB, id int) error {
	if id <= 0 {
		return nil
	}
	now := time.Now().UTC()
	return tx.Model(&models.OutboxRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_processed":            true,
			"processing_status":       models.OutboxProcessStatusSucceeded,
			"processed_at":            &now,
			"next_process_attempt_at": nil,
			"last_process_error":      nil,
			"locked_at":               nil,
			"locked_by":               nil,
		}).Error
}

// markOutboxDead makes a row terminal without counting an attempt. The row
// stays unprocessed so an admin replay can pick it up.
func markOutboxDead(ctx context.Context, db *gorm.DB, id int, cause error) {
	if id <= 0 {
		return
	}
	msg := cause.Error()
	_ = db.WithContext(ctx).Model(&models.OutboxRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processing_status":       models.OutboxProcessStatusDead,
			"last_process_error":      &msg,
			"next_process_attempt_at": nil,
			"locked_at":               nil,
			"locked_by":               nil,
		}).Error
}

// markOutboxProcessFailure counts a failed attempt and reports whether the
// row is now DEAD.
func markOutboxProcessFailure(ctx context.Context, db *gorm.DB, logger *logrus.Logger, cfg ProcessRetryConfig, m config.PubSubMessage, cause error) bool {
	if m.ID <= 0 {
		return false
	}
	errMsg := cause.Error()

	var rec models.OutboxRecord
	if err := db.WithContext(ctx).Select("id", "process_attempts").First(&rec, m.ID).Error; err != nil {
		_ = db.WithContext(ctx).Model(&models.OutboxRecord{}).
			Where("id = ?", m.ID).
			Updates(map[string]interface{}{
				"last_process_error": &errMsg,
				"processing_status":  models.OutboxProcessStatusFailed,
			}).Error
		return false
	}

	attempts := rec.ProcessAttempts + 1
	status, next := nextProcessState(attempts, cfg, time.Now().UTC())
	_ = db.WithContext(ctx).Model(&models.OutboxRecord{}).
		Where("id = ?", m.ID).
		Updates(map[string]interface{}{
			"last_process_error":      &errMsg,
			"process_attempts":        attempts,
			"next_process_attempt_at": next,
			"processing_status":       status,
			"locked_at":               nil,
			"locked_by":               nil,
		}).Error

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":             "OutboxProcessing",
			"reference_type":    m.ReferenceType,
			"reference_id":      m.ReferenceId,
			"record_id":         m.ID,
			"processing_status": status,
			"process_attempts":  attempts,
			"correlation_id":    m.CorrelationId,
		}).WithFields(traceFields(ctx)).Error("outbox processing failed: " + errMsg)
	}
	return status == models.OutboxProcessStatusDead
}
