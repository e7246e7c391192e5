package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnectBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, connectBackoff(1))
	assert.Equal(t, 16*time.Second, connectBackoff(4))
	assert.Equal(t, maxConnectBackoff, connectBackoff(5))
	assert.Equal(t, maxConnectBackoff, connectBackoff(40))
}

func TestDatabaseDSN(t *testing.T) {
	t.Setenv("DB_USER", "erp")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "erp_test")

	dsn := databaseDSN()
	assert.Contains(t, dsn, "erp:secret@tcp(127.0.0.1:3306)/erp_test")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "transaction_isolation=")

	t.Setenv("DB_HOST", "/cloudsql/proj:region:inst")
	assert.Contains(t, databaseDSN(), "@unix(/cloudsql/proj:region:inst)/erp_test")
}

func TestBoolFromEnv(t *testing.T) {
	t.Setenv("ERP_TEST_FLAG", "")
	assert.True(t, boolFromEnv("ERP_TEST_FLAG", true))
	t.Setenv("ERP_TEST_FLAG", "No")
	assert.False(t, boolFromEnv("ERP_TEST_FLAG", true))
	t.Setenv("ERP_TEST_FLAG", "maybe")
	assert.False(t, boolFromEnv("ERP_TEST_FLAG", false))
}

func TestOutboxDirectProcessing(t *testing.T) {
	t.Setenv("PUBSUB_TOPIC", "")
	t.Setenv("OUTBOX_DIRECT_PROCESSING", "false")
	assert.True(t, OutboxDirectProcessing(), "forced on without a topic")

	t.Setenv("PUBSUB_TOPIC", "posting")
	assert.False(t, OutboxDirectProcessing())
	t.Setenv("OUTBOX_DIRECT_PROCESSING", "true")
	assert.True(t, OutboxDirectProcessing())
}

func TestPubSubMessageOrderingKey(t *testing.T) {
	assert.Equal(t, "IV:42", PubSubMessage{ReferenceType: "IV", ReferenceId: 42}.OrderingKey())
}

func TestRedisHelpersWithoutRedis(t *testing.T) {
	SetRedisClient(nil)

	var dest map[string]string
	found, err := GetRedisObject("k", &dest)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, SetRedisObject("k", map[string]string{"a": "b"}, time.Minute))
	assert.NoError(t, RemoveRedisPattern("k*"))

	lock, ok, err := ObtainLock(context.Background(), "lock:test", time.Second)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, lock)
}
