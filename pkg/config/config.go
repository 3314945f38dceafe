package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	// EnvPrefix is the envconfig prefix shared by every binary.
	EnvPrefix = "LOYALTY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "LOYALTY_DB_DSN"
	EnvDBHost = "LOYALTY_DB_HOST"
	EnvDBUser = "LOYALTY_DB_USER"
	EnvDBName = "LOYALTY_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Loyalty      LoyaltyConfig
	Segmentation SegmentationConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LOYALTY_APP_ENV" required:"true"`
	Port         string `envconfig:"LOYALTY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"LOYALTY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LOYALTY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"LOYALTY_DB_DSN"`

	LegacyHost     string `envconfig:"LOYALTY_DB_HOST"`
	LegacyPort     int    `envconfig:"LOYALTY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LOYALTY_DB_USER"`
	LegacyPassword string `envconfig:"LOYALTY_DB_PASSWORD"`
	LegacyName     string `envconfig:"LOYALTY_DB_NAME"`
	LegacySSLMode  string `envconfig:"LOYALTY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LOYALTY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LOYALTY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LOYALTY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LOYALTY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// TxAcquireTimeout bounds how long a settlement/cancellation waits for
	// row locks; TxExecTimeout bounds the whole transaction. A timeout
	// surfaces as a retryable failure, never a partial write.
	TxAcquireTimeout time.Duration `envconfig:"LOYALTY_DB_TX_ACQUIRE_TIMEOUT" default:"10s"`
	TxExecTimeout    time.Duration `envconfig:"LOYALTY_DB_TX_EXEC_TIMEOUT" default:"30s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LOYALTY_REDIS_URL"`
	Address      string        `envconfig:"LOYALTY_REDIS_ADDR"`
	Password     string        `envconfig:"LOYALTY_REDIS_PASSWORD"`
	DB           int           `envconfig:"LOYALTY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LOYALTY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LOYALTY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LOYALTY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LOYALTY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LOYALTY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type LoyaltyConfig struct {
	// DefaultBasePointRate is points per currency unit when the restaurant
	// has no override. 0.1 means one point per ten currency units.
	DefaultBasePointRate decimal.Decimal `envconfig:"LOYALTY_BASE_POINT_RATE" default:"0.1"`

	// SettingsCacheTTL bounds how long tenant settings live in Redis.
	SettingsCacheTTL time.Duration `envconfig:"LOYALTY_SETTINGS_CACHE_TTL" default:"5m"`
}

type SegmentationConfig struct {
	// DebounceWindow collapses repeated recompute requests for the same
	// customer into one pass.
	DebounceWindow time.Duration `envconfig:"LOYALTY_SEGMENTATION_DEBOUNCE" default:"2s"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"LOYALTY_CRON_INTERVAL" default:"24h"`
	LockTTL  time.Duration `envconfig:"LOYALTY_CRON_LOCK_TTL" default:"25h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"LOYALTY_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	EventsTopic        string `envconfig:"LOYALTY_PUBSUB_EVENTS_TOPIC" default:"loyalty-events"`
	EventsSubscription string `envconfig:"LOYALTY_PUBSUB_EVENTS_SUBSCRIPTION" default:"loyalty-events-worker"`
	PublishTimeout     time.Duration `envconfig:"LOYALTY_PUBSUB_PUBLISH_TIMEOUT" default:"15s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LOYALTY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LOYALTY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LOYALTY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LOYALTY_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
