package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Env             string `mapstructure:"env"`
	Port            int    `mapstructure:"port"`
	ShutdownSeconds int    `mapstructure:"shutdown_seconds"`
}

func (a *AppConfig) PortString() string { return fmt.Sprintf("%d", a.Port) }

func (a *AppConfig) Development() bool { return a.Env == "development" }

type MongoConfig struct {
	URI                   string `mapstructure:"uri"`
	Database              string `mapstructure:"database"`
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds"`
}

type RedisConfig struct {
	Addr              string `mapstructure:"addr"`
	Password          string `mapstructure:"password"`
	DB                int    `mapstructure:"db"`
	Prefix            string `mapstructure:"prefix"`
	ProfileTTLSeconds int    `mapstructure:"profile_ttl_seconds"`
}

type MQTTConfig struct {
	BrokerURL             string `mapstructure:"broker_url"`
	ClientID              string `mapstructure:"client_id"`
	Username              string `mapstructure:"username"`
	Password              string `mapstructure:"password"`
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds"`
	PublishReadyTimeoutMS int    `mapstructure:"publish_ready_timeout_ms"`
	ReconnectSeconds      int    `mapstructure:"reconnect_seconds"`
	ReceiptsTopic         string `mapstructure:"receipts_topic"`
}

type KafkaConfig struct {
	Brokers              []string `mapstructure:"brokers"`
	TopicPush            string   `mapstructure:"topic_push"`
	TopicPrivateComments string   `mapstructure:"topic_private_comments"`
	GroupID              string   `mapstructure:"group_id"`
}

type JWTConfig struct {
	Alg           string `mapstructure:"alg"`
	PublicKeyPath string `mapstructure:"public_key_path"`
	HSSecret      string `mapstructure:"hs_secret"`
}

type FanoutConfig struct {
	Shards    int `mapstructure:"shards"`
	QueueSize int `mapstructure:"queue_size"`
}

type PushConfig struct {
	Workers               int `mapstructure:"workers"`
	QueueSize             int `mapstructure:"queue_size"`
	BreakerMaxFailures    int `mapstructure:"breaker_max_failures"`
	BreakerTimeoutSeconds int `mapstructure:"breaker_timeout_seconds"`
}

type IngressConfig struct {
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// ConsulConfig enables service registration when Addr is set.
type ConsulConfig struct {
	Addr           string `mapstructure:"addr"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceAddress string `mapstructure:"service_address"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Mongo   MongoConfig   `mapstructure:"mongodb"`
	Redis   RedisConfig   `mapstructure:"redis"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Fanout  FanoutConfig  `mapstructure:"fanout"`
	Push    PushConfig    `mapstructure:"push"`
	Ingress IngressConfig `mapstructure:"ingress"`
	Consul  ConsulConfig  `mapstructure:"consul"`
	Log     LogConfig     `mapstructure:"log"`
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.App.ShutdownSeconds) * time.Second
}

func (c *Config) MongoConnectTimeout() time.Duration {
	return time.Duration(c.Mongo.ConnectTimeoutSeconds) * time.Second
}

func (c *Config) ProfileTTL() time.Duration {
	return time.Duration(c.Redis.ProfileTTLSeconds) * time.Second
}

func (c *Config) MQTTConnectTimeout() time.Duration {
	return time.Duration(c.MQTT.ConnectTimeoutSeconds) * time.Second
}

func (c *Config) MQTTPublishReadyTimeout() time.Duration {
	return time.Duration(c.MQTT.PublishReadyTimeoutMS) * time.Millisecond
}

func (c *Config) MQTTReconnectInterval() time.Duration {
	return time.Duration(c.MQTT.ReconnectSeconds) * time.Second
}

func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.Push.BreakerTimeoutSeconds) * time.Second
}

// Load reads the YAML file at path (optional) with CHAT_* environment
// overrides, e.g. CHAT_MONGODB_URI for mongodb.uri.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isMissingFile(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&c)
	if err := validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// AutomaticEnv only resolves keys viper already knows about, so every key
// that may come from the environment alone is registered here.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"app.env", "app.port", "app.shutdown_seconds",
		"mongodb.uri", "mongodb.database", "mongodb.connect_timeout_seconds",
		"redis.addr", "redis.password", "redis.db", "redis.prefix", "redis.profile_ttl_seconds",
		"mqtt.broker_url", "mqtt.client_id", "mqtt.username", "mqtt.password",
		"mqtt.connect_timeout_seconds", "mqtt.publish_ready_timeout_ms", "mqtt.reconnect_seconds", "mqtt.receipts_topic",
		"kafka.brokers", "kafka.topic_push", "kafka.topic_private_comments", "kafka.group_id",
		"jwt.alg", "jwt.public_key_path", "jwt.hs_secret",
		"fanout.shards", "fanout.queue_size",
		"push.workers", "push.queue_size", "push.breaker_max_failures", "push.breaker_timeout_seconds",
		"ingress.rate_per_second", "ingress.burst",
		"consul.addr", "consul.service_name", "consul.service_address",
		"log.level",
	} {
		_ = v.BindEnv(key)
	}
}

func applyDefaults(c *Config) {
	if c.App.Env == "" {
		c.App.Env = "production"
	}
	if c.App.Port == 0 {
		c.App.Port = 8085
	}
	if c.App.ShutdownSeconds == 0 {
		c.App.ShutdownSeconds = 10
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "chat"
	}
	if c.Mongo.ConnectTimeoutSeconds == 0 {
		c.Mongo.ConnectTimeoutSeconds = 10
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "chat"
	}
	if c.Redis.ProfileTTLSeconds == 0 {
		c.Redis.ProfileTTLSeconds = 300
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "chat-core"
	}
	if c.MQTT.ConnectTimeoutSeconds == 0 {
		c.MQTT.ConnectTimeoutSeconds = 30
	}
	if c.MQTT.PublishReadyTimeoutMS == 0 {
		c.MQTT.PublishReadyTimeoutMS = 2000
	}
	if c.MQTT.ReconnectSeconds == 0 {
		c.MQTT.ReconnectSeconds = 5
	}
	if c.MQTT.ReceiptsTopic == "" {
		c.MQTT.ReceiptsTopic = "chat/v1/receipts"
	}
	if c.Kafka.TopicPush == "" {
		c.Kafka.TopicPush = "chat.push"
	}
	if c.Kafka.TopicPrivateComments == "" {
		c.Kafka.TopicPrivateComments = "posts.private_comment_created"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "chat-core"
	}
	if c.JWT.Alg == "" {
		c.JWT.Alg = "RS256"
	}
	if c.Fanout.Shards == 0 {
		c.Fanout.Shards = 16
	}
	if c.Fanout.QueueSize == 0 {
		c.Fanout.QueueSize = 1024
	}
	if c.Push.Workers == 0 {
		c.Push.Workers = 4
	}
	if c.Push.QueueSize == 0 {
		c.Push.QueueSize = 1024
	}
	if c.Push.BreakerMaxFailures == 0 {
		c.Push.BreakerMaxFailures = 5
	}
	if c.Push.BreakerTimeoutSeconds == 0 {
		c.Push.BreakerTimeoutSeconds = 30
	}
	if c.Ingress.RatePerSecond == 0 {
		c.Ingress.RatePerSecond = 50
	}
	if c.Ingress.Burst == 0 {
		c.Ingress.Burst = 100
	}
	if c.Consul.ServiceName == "" {
		c.Consul.ServiceName = "chat-core"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func validate(c *Config) error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return errors.New("app.port missing or invalid")
	}
	if c.Mongo.URI == "" {
		return errors.New("mongodb.uri is required")
	}
	if c.MQTT.BrokerURL == "" {
		return errors.New("mqtt.broker_url is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	switch c.JWT.Alg {
	case "RS256":
		if c.JWT.PublicKeyPath == "" {
			return errors.New("jwt.public_key_path is required for RS256")
		}
	case "HS256":
		if c.JWT.HSSecret == "" {
			return errors.New("jwt.hs_secret is required for HS256")
		}
	default:
		return fmt.Errorf("jwt.alg %q unsupported", c.JWT.Alg)
	}
	if c.Fanout.Shards < 1 || c.Push.Workers < 1 {
		return errors.New("fanout.shards and push.workers must be positive")
	}
	return nil
}

func isMissingFile(err error) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr)
}
