package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "guildlytics"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Env var names, exported so tests can set the exact keys the loader reads.
const (
	EnvAppEnv             = "GUILDLYTICS_APP_ENV"
	EnvPort               = "GUILDLYTICS_APP_PORT"
	EnvGuildID            = "GUILDLYTICS_GATEWAY_GUILD_ID"
	EnvGCPProjectID       = "GUILDLYTICS_GCP_PROJECT_ID"
	EnvRedisURL           = "GUILDLYTICS_REDIS_URL"
	EnvEventsSubscription = "GUILDLYTICS_PUBSUB_EVENTS_SUBSCRIPTION"
	EnvBigQueryDataset    = "GUILDLYTICS_BIGQUERY_DATASET"
)

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	Gateway  GatewayConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	BigQuery BigQueryConfig
	Redis    RedisConfig
	Eventing EventingConfig
	Flush    FlushConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Flush.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GUILDLYTICS_APP_ENV" required:"true"`
	Port         string `envconfig:"GUILDLYTICS_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"GUILDLYTICS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GUILDLYTICS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GUILDLYTICS_SERVICE_KIND" default:"collector"`
}

// GatewayConfig scopes ingestion to a single guild; events from any other
// guild are dropped at the ingress layer.
type GatewayConfig struct {
	GuildID string `envconfig:"GUILDLYTICS_GATEWAY_GUILD_ID" required:"true"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"GUILDLYTICS_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"GUILDLYTICS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GUILDLYTICS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	EventsTopic        string `envconfig:"GUILDLYTICS_PUBSUB_EVENTS_TOPIC" default:"guild-gateway-events"`
	EventsSubscription string `envconfig:"GUILDLYTICS_PUBSUB_EVENTS_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Dataset     string `envconfig:"GUILDLYTICS_BIGQUERY_DATASET" default:"guild_analytics"`
	TablePrefix string `envconfig:"GUILDLYTICS_BIGQUERY_TABLE_PREFIX"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GUILDLYTICS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GUILDLYTICS_REDIS_ADDR"`
	Password     string        `envconfig:"GUILDLYTICS_REDIS_PASSWORD"`
	DB           int           `envconfig:"GUILDLYTICS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GUILDLYTICS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GUILDLYTICS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GUILDLYTICS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GUILDLYTICS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GUILDLYTICS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"GUILDLYTICS_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

// FlushConfig holds the per-category flush cadences. Defaults mirror the
// production deployment: hourly for high-volume categories, twice daily for
// threads, daily for presence logins.
type FlushConfig struct {
	MemberInterval   time.Duration `envconfig:"GUILDLYTICS_FLUSH_MEMBER_INTERVAL" default:"1h"`
	MessageInterval  time.Duration `envconfig:"GUILDLYTICS_FLUSH_MESSAGE_INTERVAL" default:"1h"`
	VoiceInterval    time.Duration `envconfig:"GUILDLYTICS_FLUSH_VOICE_INTERVAL" default:"1h"`
	ThreadInterval   time.Duration `envconfig:"GUILDLYTICS_FLUSH_THREAD_INTERVAL" default:"12h"`
	PresenceInterval time.Duration `envconfig:"GUILDLYTICS_FLUSH_PRESENCE_INTERVAL" default:"24h"`
	ShutdownGrace    time.Duration `envconfig:"GUILDLYTICS_FLUSH_SHUTDOWN_GRACE" default:"30s"`
}

func (f FlushConfig) validate() error {
	intervals := map[string]time.Duration{
		"member":   f.MemberInterval,
		"message":  f.MessageInterval,
		"voice":    f.VoiceInterval,
		"thread":   f.ThreadInterval,
		"presence": f.PresenceInterval,
	}
	for name, interval := range intervals {
		if interval <= 0 {
			return fmt.Errorf("flush interval for %s must be positive, got %s", name, interval)
		}
	}
	if f.ShutdownGrace <= 0 {
		return fmt.Errorf("flush shutdown grace must be positive, got %s", f.ShutdownGrace)
	}
	return nil
}
