package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/models"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{4, 40 * time.Second},
		{10, time.Minute},
	}
	for _, c := range cases {
		got := backoff(c.attempt, 5*time.Second, time.Minute)
		if got != c.want {
			t.Fatalf("attempt %d: got %s want %s", c.attempt, got, c.want)
		}
	}
}

func TestNextProcessState(t *testing.T) {
	cfg := ProcessRetryConfig{MaxAttempts: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	status, next := nextProcessState(1, cfg, now)
	assert.Equal(t, models.OutboxProcessStatusFailed, status)
	require.NotNil(t, next)
	assert.Equal(t, now.Add(time.Second), *next)

	status, next = nextProcessState(2, cfg, now)
	assert.Equal(t, models.OutboxProcessStatusFailed, status)
	assert.Equal(t, now.Add(2*time.Second), *next)

	status, next = nextProcessState(3, cfg, now)
	assert.Equal(t, models.OutboxProcessStatusDead, status)
	assert.Nil(t, next)
}

func TestProcessRetryConfigFromEnv(t *testing.T) {
	t.Setenv("OUTBOX_PROCESS_MAX_ATTEMPTS", "4")
	t.Setenv("OUTBOX_PROCESS_BASE_BACKOFF_SECONDS", "2")
	t.Setenv("OUTBOX_PROCESS_MAX_BACKOFF_SECONDS", "bad")

	cfg := ProcessRetryConfigFromEnv()
	assert.Equal(t, 4, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.BaseBackoff)
	assert.Equal(t, 10*time.Minute, cfg.MaxBackoff)
}

func TestIdempotencyDecision(t *testing.T) {
	now := time.Now()

	skip, err := idempotencyDecision(models.IdempotencyKey{Status: models.IdempotencyStatusSucceeded}, now)
	require.NoError(t, err)
	assert.True(t, skip)

	_, err = idempotencyDecision(models.IdempotencyKey{Status: models.IdempotencyStatusStarted, UpdatedAt: now.Add(-time.Minute)}, now)
	assert.ErrorIs(t, err, ErrIdempotencyInProgress)

	skip, err = idempotencyDecision(models.IdempotencyKey{Status: models.IdempotencyStatusStarted, UpdatedAt: now.Add(-10 * time.Minute)}, now)
	require.NoError(t, err)
	assert.False(t, skip)

	skip, err = idempotencyDecision(models.IdempotencyKey{Status: models.IdempotencyStatusFailed, UpdatedAt: now}, now)
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestHandlerFor(t *testing.T) {
	for _, rt := range []models.OutboxReferenceType{
		models.OutboxReferenceInvoicePosting,
		models.OutboxReferencePaymentPosting,
		models.OutboxReferencePaymentVoid,
	} {
		_, ok := handlerFor(string(rt))
		assert.True(t, ok, rt)
	}
	_, ok := handlerFor("Reconcile")
	assert.False(t, ok)
}

func TestProcessorLogCarriesTraceIds(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	p := &Processor{Logger: logger}
	msg := config.PubSubMessage{ID: 9, ReferenceType: string(models.OutboxReferencePaymentPosting), ReferenceId: 4, CorrelationId: "c-1"}

	p.log(context.Background(), msg).Info("no span")
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, 9, entry.Data["record_id"])
	assert.NotContains(t, entry.Data, "trace_id")

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03},
		SpanID:     trace.SpanID{0x0a, 0x0b},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	p.log(ctx, msg).Info("with span")
	entry = hook.LastEntry()
	assert.Equal(t, sc.TraceID().String(), entry.Data["trace_id"])
	assert.Equal(t, sc.SpanID().String(), entry.Data["span_id"])
	assert.Equal(t, "c-1", entry.Data["correlation_id"])
}
