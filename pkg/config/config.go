package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Telegram     TelegramConfig
	Carrier      CarrierConfig
	Payments     PaymentsConfig
	Fulfillment  FulfillmentConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FULFILLMENT_APP_ENV" required:"true"`
	Port         string `envconfig:"FULFILLMENT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FULFILLMENT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FULFILLMENT_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"FULFILLMENT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FULFILLMENT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FULFILLMENT_DB_DSN"`
	Driver string `envconfig:"FULFILLMENT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FULFILLMENT_DB_HOST"`
	LegacyPort     int    `envconfig:"FULFILLMENT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FULFILLMENT_DB_USER"`
	LegacyPassword string `envconfig:"FULFILLMENT_DB_PASSWORD"`
	LegacyName     string `envconfig:"FULFILLMENT_DB_NAME"`
	LegacySSLMode  string `envconfig:"FULFILLMENT_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"FULFILLMENT_SQLITE_PATH" default:"fulfillment.db"`

	MaxOpenConns    int           `envconfig:"FULFILLMENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FULFILLMENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FULFILLMENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FULFILLMENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FULFILLMENT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FULFILLMENT_REDIS_ADDR"`
	Password     string        `envconfig:"FULFILLMENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"FULFILLMENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FULFILLMENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FULFILLMENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FULFILLMENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FULFILLMENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FULFILLMENT_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"FULFILLMENT_REDIS_KEY_PREFIX" default:"fulfillment"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FULFILLMENT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FULFILLMENT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FULFILLMENT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FULFILLMENT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FULFILLMENT_AUTO_MIGRATE" default:"false"`
}

type TelegramConfig struct {
	BotToken          string `envconfig:"FULFILLMENT_TELEGRAM_BOT_TOKEN"`
	BaseURL           string `envconfig:"FULFILLMENT_TELEGRAM_BASE_URL" default:"https://api.telegram.org"`
	AdminChatIDs      string `envconfig:"FULFILLMENT_TELEGRAM_ADMIN_CHAT_IDS"`
	WebhookSecret     string `envconfig:"FULFILLMENT_TELEGRAM_WEBHOOK_SECRET"`
	CallbackNamespace string `envconfig:"FULFILLMENT_TELEGRAM_CALLBACK_NAMESPACE" default:"file"`
}

// ChatIDs parses the comma separated admin chat list, skipping malformed entries.
func (t TelegramConfig) ChatIDs() []int64 {
	var ids []int64
	for _, raw := range strings.Split(t.AdminChatIDs, ",") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		id, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

type CarrierConfig struct {
	WebhookToken string `envconfig:"FULFILLMENT_CARRIER_WEBHOOK_TOKEN"`
}

type PaymentsConfig struct {
	WebhookSecret  string        `envconfig:"FULFILLMENT_PAYMENTS_WEBHOOK_SECRET"`
	IdempotencyTTL time.Duration `envconfig:"FULFILLMENT_PAYMENTS_IDEMPOTENCY_TTL" default:"720h"`
}

type FulfillmentConfig struct {
	DownloadTTL        time.Duration `envconfig:"FULFILLMENT_DOWNLOAD_TTL" default:"720h"`
	OrderNumberRetries int           `envconfig:"FULFILLMENT_ORDER_NUMBER_RETRIES" default:"5"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"FULFILLMENT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"FULFILLMENT_PUBSUB_ORDERS_TOPIC" default:"fulfillment-order-events"`
	FilesTopic  string `envconfig:"FULFILLMENT_PUBSUB_FILES_TOPIC" default:"fulfillment-file-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FULFILLMENT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FULFILLMENT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FULFILLMENT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"FULFILLMENT_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"FULFILLMENT_CRON_LOCK_TTL" default:"10m"`

	ParcelResyncBatch     int `envconfig:"FULFILLMENT_CRON_PARCEL_RESYNC_BATCH" default:"100"`
	NotificationRetention int `envconfig:"FULFILLMENT_CRON_NOTIFICATION_RETENTION_DAYS" default:"30"`
	OutboxRetention       int `envconfig:"FULFILLMENT_CRON_OUTBOX_RETENTION_DAYS" default:"14"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.DSN = db.SQLitePath
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
