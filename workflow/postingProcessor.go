package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("workflow")

// PostingHandler applies one posting event inside the worker transaction.
type PostingHandler func(ctx context.Context, tx *gorm.DB, msg config.PubSubMessage) error

var postingHandlers = map[models.OutboxReferenceType]PostingHandler{
	models.OutboxReferenceInvoicePosting: func(ctx context.Context, tx *gorm.DB, msg config.PubSubMessage) error {
		return models.PostInvoiceJournal(ctx, tx, msg.ReferenceId)
	},
	models.OutboxReferencePaymentPosting: func(ctx context.Context, tx *gorm.DB, msg config.PubSubMessage) error {
		return models.PostPaymentJournal(ctx, tx, msg.ReferenceId)
	},
	models.OutboxReferencePaymentVoid: func(ctx context.Context, tx *gorm.DB, msg config.PubSubMessage) error {
		return models.ReversePaymentJournal(ctx, tx, msg.ReferenceId)
	},
}

func handlerFor(referenceType string) (PostingHandler, bool) {
	h, ok := postingHandlers[models.OutboxReferenceType(referenceType)]
	return h, ok
}

// Processor runs posting events. Pub/Sub push, pull and the direct processor
// all go through ProcessMessage.
type Processor struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Retry  ProcessRetryConfig
}

func NewProcessor(db *gorm.DB, logger *logrus.Logger) *Processor {
	return &Processor{DB: db, Logger: logger, Retry: ProcessRetryConfigFromEnv()}
}

// ProcessMessage posts msg in one transaction guarded by the posting lock,
// the posting gate and the idempotency key. A nil return means the message
// can be acknowledged, including messages dropped as permanently blocked.
func (p *Processor) ProcessMessage(ctx context.Context, msg config.PubSubMessage) error {
	ctx = utils.SystemContext(ctx, msg.CorrelationId)
	ctx, span := tracer.Start(ctx, "workflow.ProcessMessage")
	defer span.End()
	span.SetAttributes(
		attribute.Int("outbox.id", msg.ID),
		attribute.String("outbox.reference_type", msg.ReferenceType),
		attribute.Int("outbox.reference_id", msg.ReferenceId),
	)

	handler, ok := handlerFor(msg.ReferenceType)
	if !ok {
		p.log(ctx, msg).Warn("no posting handler for reference type; dropping message")
		markOutboxDead(ctx, p.DB, msg.ID, fmt.Errorf("no posting handler for %q", msg.ReferenceType))
		return nil
	}

	markOutboxProcessing(ctx, p.DB, msg.ID)
	messageId := strconv.Itoa(msg.ID)

	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquirePostingLock(tx, postingLockName); err != nil {
			return err
		}
		defer ReleasePostingLock(tx, postingLockName)

		if err := EnforcePostingGate(ctx, tx, msg); err != nil {
			return err
		}
		skip, err := BeginIdempotency(tx, msg.ReferenceType, messageId)
		if err != nil {
			return err
		}
		if !skip {
			if err := handler(ctx, tx, msg); err != nil {
				return err
			}
			if err := MarkIdempotencySucceeded(tx, msg.ReferenceType, messageId); err != nil {
				return err
			}
		}
		return markOutboxProcessed(tx, msg.ID)
	})
	if err == nil {
		p.log(ctx, msg).Info("outbox processed successfully")
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	switch {
	case errors.Is(err, ErrPostingGateBlocked), errors.Is(err, utils.ErrorRecordNotFound), utils.IsValidationError(err):
		markOutboxDead(ctx, p.DB, msg.ID, err)
		p.log(ctx, msg).Warn("posting dropped: " + err.Error())
		p.onDead(ctx, msg, err)
		return nil
	case errors.Is(err, ErrIdempotencyInProgress):
		return err
	}

	_ = MarkIdempotencyFailed(p.DB.WithContext(ctx), msg.ReferenceType, messageId, err)
	if markOutboxProcessFailure(ctx, p.DB, p.Logger, p.Retry, msg, err) {
		p.onDead(ctx, msg, err)
		return nil
	}
	return fmt.Errorf("process %s %d: %w", msg.ReferenceType, msg.ReferenceId, err)
}

// onDead surfaces a dead posting on the document.
func (p *Processor) onDead(ctx context.Context, msg config.PubSubMessage, cause error) {
	if models.OutboxReferenceType(msg.ReferenceType) != models.OutboxReferenceInvoicePosting {
		return
	}
	if err := models.MarkInvoicePostingFailed(ctx, msg.ReferenceId, cause.Error()); err != nil {
		p.log(ctx, msg).Warn("failed to mark invoice posting failed: " + err.Error())
		return
	}
	p.log(ctx, msg).Info("invoice marked FAILED after dead posting")
}

func (p *Processor) log(ctx context.Context, msg config.PubSubMessage) *logrus.Entry {
	logger := p.Logger
	if logger == nil {
		logger = config.GetLogger()
	}
	fields := logrus.Fields{
		"field":          "PostingProcessor",
		"record_id":      msg.ID,
		"reference_type": msg.ReferenceType,
		"reference_id":   msg.ReferenceId,
		"correlation_id": msg.CorrelationId,
	}
	return logger.WithFields(fields).WithFields(traceFields(ctx))
}

// traceFields returns trace_id and span_id when ctx carries a valid span context.
func traceFields(ctx context.Context) logrus.Fields {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return logrus.Fields{
		"trace_id": sc.TraceID().String(),
		"span_id":  sc.SpanID().String(),
	}
}
