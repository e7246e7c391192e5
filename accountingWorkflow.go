package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"

	"cloud.google.com/go/pubsub"
	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/workflow"
	"github.com/sirupsen/logrus"
)

// pullConcurrency reads PUBSUB_MAX_OUTSTANDING (default 10).
func pullConcurrency() int {
	n, err := strconv.Atoi(os.Getenv("PUBSUB_MAX_OUTSTANDING"))
	if err != nil || n <= 0 {
		return 10
	}
	return n
}

// RunAccountingWorkflow starts a pull subscriber on PUBSUB_SUBSCRIPTION that
// feeds posting events to the processor until ctx is cancelled.
func RunAccountingWorkflow(ctx context.Context) error {
	logger := config.GetLogger()
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(client, os.Getenv("PUBSUB_TOPIC"))
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, os.Getenv("PUBSUB_SUBSCRIPTION"), topic)
	if err != nil {
		return err
	}
	sub.ReceiveSettings.MaxOutstandingMessages = pullConcurrency()

	processor := workflow.NewProcessor(config.GetDB(), logger)
	callback := func(ctx context.Context, msg *pubsub.Message) {
		m := config.PubSubMessage{}
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			config.LogError(logger, "accountingWorkflow.go", "RunAccountingWorkflow", "Unmarshaling pubsub message", string(msg.Data), err)
			msg.Ack()
			return
		}
		if m.CorrelationId == "" {
			m.CorrelationId = msg.ID
		}
		err := withDocumentLock(ctx, logger, m, func() error {
			return processor.ProcessMessage(ctx, m)
		})
		if err != nil {
			logger.WithFields(logrus.Fields{
				"field":          "AccountingWorkflow",
				"reference_type": m.ReferenceType,
				"reference_id":   m.ReferenceId,
				"message_id":     msg.ID,
				"correlation_id": m.CorrelationId,
			}).Error("pubsub processing failed: " + err.Error())
			msg.Nack()
			return
		}
		msg.Ack()
	}

	go func() {
		if err := sub.Receive(ctx, callback); err != nil {
			config.LogError(logger, "accountingWorkflow.go", "RunAccountingWorkflow", "Failed to receive messages", nil, err)
		}
	}()
	return nil
}
