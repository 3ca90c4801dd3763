package config

// EnvPrefix is handed to envconfig; every field carries an explicit key so the prefix only matters for
// untagged fields.
const EnvPrefix = "FULFILLMENT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "FULFILLMENT_APP_ENV"
	EnvPort      = "FULFILLMENT_APP_PORT"
	EnvDBDSN     = "FULFILLMENT_DB_DSN"
	EnvDBHost    = "FULFILLMENT_DB_HOST"
	EnvDBUser    = "FULFILLMENT_DB_USER"
	EnvDBName    = "FULFILLMENT_DB_NAME"
	EnvUseSQLite = "FULFILLMENT_USE_SQLITE"
	EnvRedisURL  = "FULFILLMENT_REDIS_URL"
	EnvJWTSecret = "FULFILLMENT_JWT_SECRET"
	EnvJWTIssuer = "FULFILLMENT_JWT_ISSUER"

	EnvTelegramAdminChats = "FULFILLMENT_TELEGRAM_ADMIN_CHAT_IDS"
	EnvOrderNumberRetries = "FULFILLMENT_ORDER_NUMBER_RETRIES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
