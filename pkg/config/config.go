package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Settlement   SettlementConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	GCS          GCSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"SETTLEZ_APP_ENV" required:"true"`
	Port         string   `envconfig:"SETTLEZ_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"SETTLEZ_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"SETTLEZ_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"SETTLEZ_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"SETTLEZ_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SETTLEZ_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SETTLEZ_DB_DSN"`
	Driver string `envconfig:"SETTLEZ_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SETTLEZ_DB_HOST"`
	LegacyPort     int    `envconfig:"SETTLEZ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SETTLEZ_DB_USER"`
	LegacyPassword string `envconfig:"SETTLEZ_DB_PASSWORD"`
	LegacyName     string `envconfig:"SETTLEZ_DB_NAME"`
	LegacySSLMode  string `envconfig:"SETTLEZ_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"SETTLEZ_SQLITE_PATH" default:"settlez.db"`

	MaxOpenConns    int           `envconfig:"SETTLEZ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SETTLEZ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SETTLEZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SETTLEZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"SETTLEZ_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

// IsSQLite reports whether the sqlite dialector should be used.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"SETTLEZ_REDIS_URL"`
	Address      string        `envconfig:"SETTLEZ_REDIS_ADDR"`
	Password     string        `envconfig:"SETTLEZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"SETTLEZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SETTLEZ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SETTLEZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SETTLEZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SETTLEZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SETTLEZ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SETTLEZ_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SETTLEZ_AUTO_MIGRATE" default:"false"`
}

// SettlementConfig carries the money rules of the settlement engine.
type SettlementConfig struct {
	PaymentTolerance string `envconfig:"SETTLEZ_PAYMENT_TOLERANCE" default:"0.03"`
	CashIncrement    string `envconfig:"SETTLEZ_CASH_INCREMENT" default:"0.05"`
	OrderPrefix      string `envconfig:"SETTLEZ_ORDER_NUMBER_PREFIX" default:"ORD"`
	RefundPrefix     string `envconfig:"SETTLEZ_REFUND_NUMBER_PREFIX" default:"REF"`
	NumberWidth      int    `envconfig:"SETTLEZ_DOCUMENT_NUMBER_WIDTH" default:"6"`
}

// Tolerance returns the parsed payment tolerance.
func (s SettlementConfig) Tolerance() decimal.Decimal {
	v, err := decimal.NewFromString(s.PaymentTolerance)
	if err != nil {
		return decimal.RequireFromString("0.03")
	}
	return v
}

// Increment returns the parsed cash rounding increment.
func (s SettlementConfig) Increment() decimal.Decimal {
	v, err := decimal.NewFromString(s.CashIncrement)
	if err != nil {
		return decimal.RequireFromString("0.05")
	}
	return v
}

func (s SettlementConfig) validate() error {
	tol, err := decimal.NewFromString(s.PaymentTolerance)
	if err != nil || tol.IsNegative() {
		return fmt.Errorf("%s must be a non-negative decimal", EnvPaymentTolerance)
	}
	inc, err := decimal.NewFromString(s.CashIncrement)
	if err != nil || inc.Sign() <= 0 {
		return fmt.Errorf("%s must be a positive decimal", EnvCashIncrement)
	}
	if s.NumberWidth <= 0 {
		return fmt.Errorf("%s must be positive", EnvNumberWidth)
	}
	return nil
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SETTLEZ_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SETTLEZ_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SETTLEZ_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CronConfig drives the maintenance jobs run by cmd/cron-worker.
type CronConfig struct {
	Interval            time.Duration `envconfig:"SETTLEZ_CRON_INTERVAL" default:"1h"`
	JobTimeout          time.Duration `envconfig:"SETTLEZ_CRON_JOB_TIMEOUT" default:"15m"`
	OutboxRetentionDays int           `envconfig:"SETTLEZ_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	StaleDrawerAfter    time.Duration `envconfig:"SETTLEZ_CRON_STALE_DRAWER_AFTER" default:"18h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SETTLEZ_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SETTLEZ_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	SettlementTopic       string `envconfig:"SETTLEZ_PUBSUB_SETTLEMENT_TOPIC" default:"settlement-events"`
	AnalyticsSubscription string `envconfig:"SETTLEZ_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"settlement-events-analytics"`
}

// BigQueryConfig names the analytics sink. With AutoCreate the dataset and
// tables are created on startup instead of failing when absent.
type BigQueryConfig struct {
	Dataset               string `envconfig:"SETTLEZ_BIGQUERY_DATASET" default:"settlement"`
	Location              string `envconfig:"SETTLEZ_BIGQUERY_LOCATION" default:"US"`
	AutoCreate            bool   `envconfig:"SETTLEZ_BIGQUERY_AUTO_CREATE" default:"false"`
	SettlementEventsTable string `envconfig:"SETTLEZ_BIGQUERY_SETTLEMENT_EVENTS_TABLE" default:"settlement_events"`
	DrawerFactsTable      string `envconfig:"SETTLEZ_BIGQUERY_DRAWER_FACTS_TABLE" default:"drawer_session_facts"`
}

// GCSConfig locates the bucket drawer close reports are archived to. An
// empty bucket disables archiving.
type GCSConfig struct {
	BucketName   string `envconfig:"SETTLEZ_GCS_BUCKET_NAME"`
	ReportPrefix string `envconfig:"SETTLEZ_GCS_REPORT_PREFIX" default:"drawer-reports"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
	}
	if db.IsSQLite() {
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}
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
