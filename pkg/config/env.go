package config

// EnvPrefix is handed to envconfig; every field declares its full name explicitly.
const EnvPrefix = "SETTLEZ"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv           = "SETTLEZ_APP_ENV"
	EnvPort             = "SETTLEZ_APP_PORT"
	EnvLogFormat        = "SETTLEZ_LOG_FORMAT"
	EnvDBDSN            = "SETTLEZ_DB_DSN"
	EnvDBDriver         = "SETTLEZ_DB_DRIVER"
	EnvDBHost           = "SETTLEZ_DB_HOST"
	EnvDBUser           = "SETTLEZ_DB_USER"
	EnvDBName           = "SETTLEZ_DB_NAME"
	EnvDBPassword       = "SETTLEZ_DB_PASSWORD"
	EnvUseSQLite        = "SETTLEZ_USE_SQLITE"
	EnvRedisURL         = "SETTLEZ_REDIS_URL"
	EnvPaymentTolerance = "SETTLEZ_PAYMENT_TOLERANCE"
	EnvCashIncrement    = "SETTLEZ_CASH_INCREMENT"
	EnvNumberWidth      = "SETTLEZ_DOCUMENT_NUMBER_WIDTH"
	EnvGCPProjectID     = "SETTLEZ_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
