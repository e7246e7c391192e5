package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

// PubSubMessage is the envelope of a posting event. ID is the outbox row id.
type PubSubMessage struct {
	ID                  int       `json:"id"`
	TransactionDateTime time.Time `json:"transaction_date_time"`
	ReferenceId         int       `json:"reference_id"`
	ReferenceType       string    `json:"reference_type"`
	Action              string    `json:"action"`
	Payload             []byte    `json:"payload,omitempty"`
	CorrelationId       string    `json:"correlation_id"`
}

// OrderingKey keeps the events of one document in publish order.
func (m PubSubMessage) OrderingKey() string {
	return m.ReferenceType + ":" + strconv.Itoa(m.ReferenceId)
}

var (
	pubsubMu     sync.Mutex
	pubsubClient *pubsub.Client
	postingTopic *pubsub.Topic
)

func init() {
	godotenv.Load()
}

func pubSubProjectID() string {
	for _, key := range []string{"PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "GCP_PROJECT"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// PubSubConfigured reports whether a project and topic are set.
func PubSubConfigured() bool {
	return pubSubProjectID() != "" && os.Getenv("PUBSUB_TOPIC") != ""
}

// GetClient returns the shared Pub/Sub client, connecting with retries on
// first use. PUBSUB_CREDENTIALS_JSON overrides Application Default Credentials.
func GetClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubMu.Lock()
	defer pubsubMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}
	projectID := pubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}
	var opts []option.ClientOption
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}
	retryForever("pubsub client "+projectID, func(int) error {
		c, err := pubsub.NewClient(ctx, projectID, opts...)
		if err != nil {
			return err
		}
		pubsubClient = c
		return nil
	})
	return pubsubClient, nil
}

func CreateTopicIfNotExists(c *pubsub.Client, topic string) (*pubsub.Topic, error) {
	if c == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	ctx := context.Background()
	t := c.Topic(topic)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return t, nil
	}
	t, err = c.CreateTopic(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", topic, err)
	}
	return t, nil
}

// CreateSubscriptionIfNotExists creates an ordered subscription on topic.
func CreateSubscriptionIfNotExists(client *pubsub.Client, name string, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	if client == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if name == "" {
		return nil, errors.New("subscription name is required")
	}
	if topic == nil {
		return nil, errors.New("topic is required")
	}
	ctx := context.Background()
	sub := client.Subscription(name)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check subscription exists: %w", err)
	}
	if exists {
		return sub, nil
	}
	sub, err = client.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{
		Topic:                 topic,
		AckDeadline:           30 * time.Second,
		EnableMessageOrdering: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription %q: %w", name, err)
	}
	return sub, nil
}

func postingTopicHandle(ctx context.Context) (*pubsub.Topic, error) {
	client, err := GetClient(ctx)
	if err != nil {
		return nil, err
	}
	name := os.Getenv("PUBSUB_TOPIC")
	if name == "" {
		return nil, errors.New("PUBSUB_TOPIC is required")
	}
	pubsubMu.Lock()
	defer pubsubMu.Unlock()
	if postingTopic == nil {
		postingTopic = client.Topic(name)
		postingTopic.EnableMessageOrdering = true
	}
	return postingTopic, nil
}

// PublishPostingEvent publishes msg to PUBSUB_TOPIC and returns the server
// assigned message id.
func PublishPostingEvent(ctx context.Context, msg PubSubMessage) (string, error) {
	t, err := postingTopicHandle(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	key := msg.OrderingKey()
	id, err := t.Publish(ctx, &pubsub.Message{
		Data:        data,
		OrderingKey: key,
		Attributes: map[string]string{
			"reference_type": msg.ReferenceType,
			"correlation_id": msg.CorrelationId,
		},
	}).Get(ctx)
	if err != nil {
		// An ordered key stays paused after a failure until resumed.
		t.ResumePublish(key)
		return "", err
	}
	return id, nil
}

// ClosePubSub flushes pending publishes and closes the client.
func ClosePubSub() {
	pubsubMu.Lock()
	defer pubsubMu.Unlock()
	if postingTopic != nil {
		postingTopic.Stop()
		postingTopic = nil
	}
	if pubsubClient != nil {
		_ = pubsubClient.Close()
		pubsubClient = nil
	}
}
