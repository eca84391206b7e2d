package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App       AppConfig
	Service   ServiceConfig
	DB        DBConfig
	Redis     RedisConfig
	Features  FeatureFlagsConfig
	Eventing  EventingConfig
	GCP       GCPConfig
	GCS       GCSConfig
	PubSub    PubSubConfig
	Outbox    OutboxConfig
	Actions   ActionsConfig
	Workflow  WorkflowConfig
	Registers RegistersConfig
	TextParse TextParseConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"CAISSEFLOW_APP_ENV" required:"true"`
	Port         string   `envconfig:"CAISSEFLOW_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"CAISSEFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"CAISSEFLOW_LOG_WARN_STACK" default:"false"`
	TimeZone     string   `envconfig:"CAISSEFLOW_TIMEZONE" default:"Africa/Abidjan"`
	CORSOrigins  []string `envconfig:"CAISSEFLOW_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// Location resolves the business time zone used for date-only comparisons and reference periods.
func (a AppConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(a.TimeZone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", name, err)
	}
	return loc, nil
}

type ServiceConfig struct {
	Kind string `envconfig:"CAISSEFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN             string        `envconfig:"CAISSEFLOW_DB_DSN" required:"true"`
	MaxOpenConns    int           `envconfig:"CAISSEFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CAISSEFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CAISSEFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CAISSEFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CAISSEFLOW_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"CAISSEFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CAISSEFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CAISSEFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CAISSEFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CAISSEFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CAISSEFLOW_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"CAISSEFLOW_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	HTTPIdempotencyTTL   time.Duration `envconfig:"CAISSEFLOW_HTTP_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"CAISSEFLOW_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON string `envconfig:"CAISSEFLOW_GCP_CREDENTIALS_JSON"`
}

type GCSConfig struct {
	LedgerBucket   string `envconfig:"CAISSEFLOW_GCS_LEDGER_BUCKET" required:"true"`
	SnapshotPrefix string `envconfig:"CAISSEFLOW_GCS_SNAPSHOT_PREFIX" default:"ledger-snapshots"`
	Endpoint       string `envconfig:"CAISSEFLOW_GCS_ENDPOINT"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"CAISSEFLOW_PUBSUB_NOTIFICATION_TOPIC" default:"caisseflow-notifications"`
	EventsTopic       string `envconfig:"CAISSEFLOW_PUBSUB_EVENTS_TOPIC" default:"caisseflow-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CAISSEFLOW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CAISSEFLOW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CAISSEFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type ActionsConfig struct {
	BatchSize      int           `envconfig:"CAISSEFLOW_ACTIONS_BATCH_SIZE" default:"20"`
	PollInterval   time.Duration `envconfig:"CAISSEFLOW_ACTIONS_POLL_INTERVAL" default:"500ms"`
	MaxAttempts    int           `envconfig:"CAISSEFLOW_ACTIONS_MAX_ATTEMPTS" default:"5"`
	InitialBackoff time.Duration `envconfig:"CAISSEFLOW_ACTIONS_INITIAL_BACKOFF" default:"1s"`
	MaxBackoff     time.Duration `envconfig:"CAISSEFLOW_ACTIONS_MAX_BACKOFF" default:"1m"`
	StaleAfter     time.Duration `envconfig:"CAISSEFLOW_ACTIONS_STALE_AFTER" default:"5m"`
}

type WorkflowConfig struct {
	// MobileMoneyFeeCapPercent bounds the operator fee that may push a payment past the remaining amount.
	MobileMoneyFeeCapPercent decimal.Decimal `envconfig:"CAISSEFLOW_MOBILE_MONEY_FEE_CAP_PERCENT" default:"3"`
	DocSyncAttempts          int             `envconfig:"CAISSEFLOW_DOCSYNC_ATTEMPTS" default:"3"`
	DocSyncBackoff           time.Duration   `envconfig:"CAISSEFLOW_DOCSYNC_BACKOFF" default:"2s"`
	SnapshotTransactionLimit int             `envconfig:"CAISSEFLOW_SNAPSHOT_TRANSACTION_LIMIT" default:"50"`
}

type RegistersConfig struct {
	TypeCacheTTL  time.Duration `envconfig:"CAISSEFLOW_REGISTER_TYPE_CACHE_TTL" default:"5m"`
	DefaultPrefix string        `envconfig:"CAISSEFLOW_DEFAULT_REGISTER_PREFIX" default:"CP"`
}

type TextParseConfig struct {
	Timeout time.Duration `envconfig:"CAISSEFLOW_TEXTPARSE_TIMEOUT" default:"5s"`
}

func (c *Config) validate() error {
	if _, err := c.App.Location(); err != nil {
		return err
	}
	if c.Workflow.MobileMoneyFeeCapPercent.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvMobileMoneyFeeCap)
	}
	if c.Actions.MaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvActionsMaxAttempts)
	}
	if c.Workflow.DocSyncAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvDocSyncAttempts)
	}
	return nil
}
