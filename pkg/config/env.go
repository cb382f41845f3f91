package config

// EnvPrefix is handed to envconfig; every field carries an explicit name so the
// prefix only matters for untagged fields.
const EnvPrefix = "TIPSPLIT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "TIPSPLIT_APP_ENV"
	EnvPort     = "TIPSPLIT_APP_PORT"
	EnvLogLevel = "TIPSPLIT_LOG_LEVEL"

	EnvDBDSN    = "TIPSPLIT_DB_DSN"
	EnvDBDriver = "TIPSPLIT_DB_DRIVER"
	EnvDBHost   = "TIPSPLIT_DB_HOST"
	EnvDBUser   = "TIPSPLIT_DB_USER"
	EnvDBName   = "TIPSPLIT_DB_NAME"

	EnvRedisURL = "TIPSPLIT_REDIS_URL"

	EnvCacheTTL = "TIPSPLIT_CACHE_TTL"

	EnvMerchantDestination = "TIPSPLIT_MERCHANT_DESTINATION"
	EnvTransferMaxAttempts = "TIPSPLIT_TRANSFER_MAX_ATTEMPTS"

	EnvReaperInterval  = "TIPSPLIT_REAPER_INTERVAL"
	EnvReaperRetention = "TIPSPLIT_REAPER_RETENTION"

	EnvLightningBaseURL  = "TIPSPLIT_LIGHTNING_BASE_URL"
	EnvLightningAdminKey = "TIPSPLIT_LIGHTNING_ADMIN_KEY"

	EnvGCPProjectID        = "TIPSPLIT_GCP_PROJECT_ID"
	EnvPubSubSettlementSub = "TIPSPLIT_PUBSUB_SETTLEMENT_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
