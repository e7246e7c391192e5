package models

import (
	"time"

	"github.com/mmdatafocus/erp_backend/config"
)

// OutboxPublishStatus tracks delivery of a row to Pub/Sub.
type OutboxPublishStatus string

const (
	OutboxPublishStatusPending    OutboxPublishStatus = "PENDING"
	OutboxPublishStatusProcessing OutboxPublishStatus = "PROCESSING"
	OutboxPublishStatusSent       OutboxPublishStatus = "SENT"
	OutboxPublishStatusFailed     OutboxPublishStatus = "FAILED"
	OutboxPublishStatusDead       OutboxPublishStatus = "DEAD"
)

// OutboxProcessStatus tracks the worker side of a row.
type OutboxProcessStatus string

const (
	OutboxProcessStatusPending    OutboxProcessStatus = "PENDING"
	OutboxProcessStatusProcessing OutboxProcessStatus = "PROCESSING"
	OutboxProcessStatusSucceeded  OutboxProcessStatus = "SUCCEEDED"
	OutboxProcessStatusFailed     OutboxProcessStatus = "FAILED"
	OutboxProcessStatusDead       OutboxProcessStatus = "DEAD"
)

func (s OutboxProcessStatus) IsTerminal() bool {
	return s == OutboxProcessStatusSucceeded || s == OutboxProcessStatusDead
}

// OutboxRecord is one posting event written in the business transaction.
// Publishing and processing are tracked separately so a published event that
// fails in the worker can be retried without publishing again.
type OutboxRecord struct {
	ID                  int                 `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	TransactionDateTime time.Time           `gorm:"index;not null" json:"transaction_date_time"`
	ReferenceId         int                 `gorm:"index:idx_outbox_reference,priority:2" json:"reference_id"`
	ReferenceType       OutboxReferenceType `gorm:"size:10;not null;index:idx_outbox_reference,priority:1" json:"reference_type"`
	Action              OutboxAction        `gorm:"size:1;not null" json:"action"`
	Payload             []byte              `gorm:"type:blob" json:"payload"`
	IsProcessed         bool                `gorm:"index;not null" json:"is_processed"`

	PublishStatus    OutboxPublishStatus `gorm:"size:20;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time          `json:"published_at"`
	PubSubMessageId  *string             `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int                 `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time          `gorm:"index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time          `gorm:"index" json:"locked_at"`
	LockedBy         *string             `gorm:"size:100" json:"locked_by"`
	LastPublishError *string             `gorm:"type:text" json:"last_publish_error"`

	ProcessingStatus     OutboxProcessStatus `gorm:"size:20;not null;default:'PENDING';index:idx_outbox_process,priority:1" json:"processing_status"`
	ProcessAttempts      int                 `gorm:"not null;default:0" json:"process_attempts"`
	NextProcessAttemptAt *time.Time          `gorm:"index:idx_outbox_process,priority:2" json:"next_process_attempt_at"`
	LastProcessError     *string             `gorm:"type:text" json:"last_process_error"`
	ProcessedAt          *time.Time          `json:"processed_at"`

	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (rec OutboxRecord) Message() config.PubSubMessage {
	return config.PubSubMessage{
		ID:                  rec.ID,
		TransactionDateTime: rec.TransactionDateTime,
		ReferenceId:         rec.ReferenceId,
		ReferenceType:       string(rec.ReferenceType),
		Action:              string(rec.Action),
		Payload:             rec.Payload,
		CorrelationId:       rec.CorrelationId,
	}
}

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

// IdempotencyKey records that a worker handler ran for a message. Pub/Sub
// delivers at least once, so handlers check it before posting.
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	HandlerName string            `gorm:"size:100;not null;index:uniq_idempotency_key,unique" json:"handler_name"`
	MessageId   string            `gorm:"size:255;not null;index:uniq_idempotency_key,unique" json:"message_id"`
	Status      IdempotencyStatus `gorm:"size:20;not null;index" json:"status"`
	LastError   *string           `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
