package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "CHOPDIRECT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "CHOPDIRECT_DB_DSN"
	EnvDBHost = "CHOPDIRECT_DB_HOST"
	EnvDBUser = "CHOPDIRECT_DB_USER"
	EnvDBName = "CHOPDIRECT_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App        AppConfig
	Service    ServiceConfig
	DB         DBConfig
	Redis      RedisConfig
	Gateway    GatewayConfig
	Settlement SettlementConfig
	Cron       CronConfig
	PubSub     PubSubConfig
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
	Env          string `envconfig:"CHOPDIRECT_APP_ENV" required:"true"`
	Port         string `envconfig:"CHOPDIRECT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CHOPDIRECT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CHOPDIRECT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CHOPDIRECT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CHOPDIRECT_DB_DSN"`
	Driver string `envconfig:"CHOPDIRECT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CHOPDIRECT_DB_HOST"`
	LegacyPort     int    `envconfig:"CHOPDIRECT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CHOPDIRECT_DB_USER"`
	LegacyPassword string `envconfig:"CHOPDIRECT_DB_PASSWORD"`
	LegacyName     string `envconfig:"CHOPDIRECT_DB_NAME"`
	LegacySSLMode  string `envconfig:"CHOPDIRECT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CHOPDIRECT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CHOPDIRECT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CHOPDIRECT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CHOPDIRECT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"CHOPDIRECT_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CHOPDIRECT_REDIS_URL"`
	Address      string        `envconfig:"CHOPDIRECT_REDIS_ADDR"`
	Password     string        `envconfig:"CHOPDIRECT_REDIS_PASSWORD"`
	DB           int           `envconfig:"CHOPDIRECT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CHOPDIRECT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CHOPDIRECT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CHOPDIRECT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CHOPDIRECT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CHOPDIRECT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// GatewayConfig points at the external mobile-money payment gateway.
type GatewayConfig struct {
	BaseURL       string        `envconfig:"CHOPDIRECT_GATEWAY_BASE_URL"`
	SecretKey     string        `envconfig:"CHOPDIRECT_GATEWAY_SECRET_KEY"`
	WebhookSecret string        `envconfig:"CHOPDIRECT_GATEWAY_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"CHOPDIRECT_GATEWAY_TIMEOUT" default:"15s"`
	MaxRetries    uint64        `envconfig:"CHOPDIRECT_GATEWAY_MAX_RETRIES" default:"3"`
}

// SettlementConfig carries the engine defaults. Per-tenant settings
// override the commission and hold values at lookup time.
type SettlementConfig struct {
	DefaultCommissionBps int64         `envconfig:"CHOPDIRECT_DEFAULT_COMMISSION_BPS" default:"1000"`
	DefaultHoldHours     int           `envconfig:"CHOPDIRECT_DEFAULT_HOLD_HOURS" default:"72"`
	PaymentRetryWindow   time.Duration `envconfig:"CHOPDIRECT_PAYMENT_RETRY_WINDOW" default:"15m"`
	MaxPaymentAttempts   int           `envconfig:"CHOPDIRECT_MAX_PAYMENT_ATTEMPTS" default:"3"`
	Currency             string        `envconfig:"CHOPDIRECT_CURRENCY" default:"NGN"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"CHOPDIRECT_CRON_INTERVAL" default:"5m"`
	LockKey  string        `envconfig:"CHOPDIRECT_CRON_LOCK_KEY" default:"chopdirect:cron:lock"`
	LockTTL  time.Duration `envconfig:"CHOPDIRECT_CRON_LOCK_TTL" default:"10m"`
}

type PubSubConfig struct {
	ProjectID string `envconfig:"CHOPDIRECT_PUBSUB_PROJECT_ID"`
	TopicID   string `envconfig:"CHOPDIRECT_PUBSUB_TOPIC_ID" default:"settlement-events"`
	BatchSize int    `envconfig:"CHOPDIRECT_OUTBOX_BATCH_SIZE" default:"100"`
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
