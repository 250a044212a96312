package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
app:
  env: development
  port: 9000
mongodb:
  uri: mongodb://localhost:27017
mqtt:
  broker_url: tcp://localhost:1883
kafka:
  brokers: ["localhost:9092"]
jwt:
  alg: HS256
  hs_secret: dev-secret
fanout:
  shards: 8
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileWithDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.True(t, c.App.Development())
	assert.Equal(t, "9000", c.App.PortString())
	assert.Equal(t, 8, c.Fanout.Shards)
	assert.Equal(t, 1024, c.Fanout.QueueSize)
	assert.Equal(t, "chat/v1/receipts", c.MQTT.ReceiptsTopic)
	assert.Equal(t, 30*time.Second, c.MQTTConnectTimeout())
	assert.Equal(t, 2*time.Second, c.MQTTPublishReadyTimeout())
	assert.Equal(t, "chat.push", c.Kafka.TopicPush)
	assert.Equal(t, "chat-core", c.Consul.ServiceName)
	assert.Empty(t, c.Consul.Addr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHAT_MONGODB_URI", "mongodb://db:27017")
	t.Setenv("CHAT_APP_PORT", "7000")
	t.Setenv("CHAT_KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "mongodb://db:27017", c.Mongo.URI)
	assert.Equal(t, 7000, c.App.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
}

func TestEnvOnly(t *testing.T) {
	t.Setenv("CHAT_MONGODB_URI", "mongodb://db:27017")
	t.Setenv("CHAT_MQTT_BROKER_URL", "tcp://mqtt:1883")
	t.Setenv("CHAT_KAFKA_BROKERS", "k1:9092")
	t.Setenv("CHAT_JWT_ALG", "HS256")
	t.Setenv("CHAT_JWT_HS_SECRET", "s")

	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8085, c.App.Port)
	assert.Equal(t, "production", c.App.Env)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"no mongo":    "mqtt: {broker_url: tcp://x}\nkafka: {brokers: [k]}\njwt: {alg: HS256, hs_secret: s}\n",
		"no mqtt":     "mongodb: {uri: mongodb://x}\nkafka: {brokers: [k]}\njwt: {alg: HS256, hs_secret: s}\n",
		"no kafka":    "mongodb: {uri: mongodb://x}\nmqtt: {broker_url: tcp://x}\njwt: {alg: HS256, hs_secret: s}\n",
		"rs256 key":   "mongodb: {uri: mongodb://x}\nmqtt: {broker_url: tcp://x}\nkafka: {brokers: [k]}\n",
		"bad alg":     "mongodb: {uri: mongodb://x}\nmqtt: {broker_url: tcp://x}\nkafka: {brokers: [k]}\njwt: {alg: none}\n",
		"hs256 empty": "mongodb: {uri: mongodb://x}\nmqtt: {broker_url: tcp://x}\nkafka: {brokers: [k]}\njwt: {alg: HS256}\n",
	}
	for name, body := range cases {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, name)
	}
}
