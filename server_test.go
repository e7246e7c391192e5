package main

import (
	"encoding/json"
	"testing"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pushBody(t *testing.T, msg any, messageId string) []byte {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	var env PubSubPushEnvelope
	env.Message.Data = data
	env.Message.ID = messageId
	env.Subscription = "projects/p/subscriptions/posting"
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return body
}

func TestDecodePushEnvelope(t *testing.T) {
	body := pushBody(t, config.PubSubMessage{ID: 7, ReferenceType: "IV", ReferenceId: 12}, "m-1")

	m, id, err := decodePushEnvelope(body)
	require.NoError(t, err)
	assert.Equal(t, "m-1", id)
	assert.Equal(t, 7, m.ID)
	assert.Equal(t, 12, m.ReferenceId)
	assert.Equal(t, "m-1", m.CorrelationId, "falls back to the broker message id")
}

func TestDecodePushEnvelope_RejectsPoisonedMessages(t *testing.T) {
	_, _, err := decodePushEnvelope([]byte("not json"))
	assert.Error(t, err)

	body := pushBody(t, config.PubSubMessage{ID: 7}, "m-2")
	_, _, err = decodePushEnvelope(body)
	assert.Error(t, err)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim("  "))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, splitAndTrim(" https://a.example, ,https://b.example "))
}

func TestPostingLockKey(t *testing.T) {
	assert.Equal(t, "lock:posting:PMT:9", postingLockKey(config.PubSubMessage{ReferenceType: "PMT", ReferenceId: 9}))
}
