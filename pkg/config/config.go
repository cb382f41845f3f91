package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Cache        CacheConfig
	Forwarding   ForwardingConfig
	Reaper       ReaperConfig
	Lightning    LightningConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
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
	Env          string `envconfig:"TIPSPLIT_APP_ENV" required:"true"`
	Port         string `envconfig:"TIPSPLIT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TIPSPLIT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TIPSPLIT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"TIPSPLIT_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TIPSPLIT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TIPSPLIT_DB_DSN"`
	Driver string `envconfig:"TIPSPLIT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TIPSPLIT_DB_HOST"`
	LegacyPort     int    `envconfig:"TIPSPLIT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TIPSPLIT_DB_USER"`
	LegacyPassword string `envconfig:"TIPSPLIT_DB_PASSWORD"`
	LegacyName     string `envconfig:"TIPSPLIT_DB_NAME"`
	LegacySSLMode  string `envconfig:"TIPSPLIT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TIPSPLIT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TIPSPLIT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TIPSPLIT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TIPSPLIT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the durable store runs on the embedded driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"TIPSPLIT_REDIS_URL"`
	Address      string        `envconfig:"TIPSPLIT_REDIS_ADDR"`
	Password     string        `envconfig:"TIPSPLIT_REDIS_PASSWORD"`
	DB           int           `envconfig:"TIPSPLIT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TIPSPLIT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TIPSPLIT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TIPSPLIT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TIPSPLIT_REDIS_READ_TIMEOUT" default:"2s"`
	WriteTimeout time.Duration `envconfig:"TIPSPLIT_REDIS_WRITE_TIMEOUT" default:"2s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TIPSPLIT_AUTO_MIGRATE" default:"false"`
}

type CacheConfig struct {
	SplitTTL       time.Duration `envconfig:"TIPSPLIT_CACHE_TTL" default:"1h"`
	BacklogSize    int           `envconfig:"TIPSPLIT_CACHE_INVALIDATION_BACKLOG" default:"1024"`
	OperationLimit time.Duration `envconfig:"TIPSPLIT_CACHE_OPERATION_TIMEOUT" default:"250ms"`
}

type ForwardingConfig struct {
	MerchantDestination string        `envconfig:"TIPSPLIT_MERCHANT_DESTINATION"`
	MaxAttempts         int           `envconfig:"TIPSPLIT_TRANSFER_MAX_ATTEMPTS" default:"3"`
	InitialBackoff      time.Duration `envconfig:"TIPSPLIT_TRANSFER_INITIAL_BACKOFF" default:"500ms"`
	MaxBackoff          time.Duration `envconfig:"TIPSPLIT_TRANSFER_MAX_BACKOFF" default:"5s"`
	BackoffMultiplier   float64       `envconfig:"TIPSPLIT_TRANSFER_BACKOFF_MULTIPLIER" default:"2"`
	BackoffJitter       time.Duration `envconfig:"TIPSPLIT_TRANSFER_BACKOFF_JITTER" default:"250ms"`
	AttemptTimeout      time.Duration `envconfig:"TIPSPLIT_TRANSFER_ATTEMPT_TIMEOUT" default:"15s"`
	ConsumerGoroutines  int           `envconfig:"TIPSPLIT_SETTLEMENT_CONSUMER_GOROUTINES" default:"4"`
}

type ReaperConfig struct {
	Interval  time.Duration `envconfig:"TIPSPLIT_REAPER_INTERVAL" default:"10m"`
	Retention time.Duration `envconfig:"TIPSPLIT_REAPER_RETENTION" default:"24h"`
	BatchSize int           `envconfig:"TIPSPLIT_REAPER_BATCH_SIZE" default:"500"`
	// TipRetryLease bounds how long a split may stay in retrying_tip.
	TipRetryLease time.Duration `envconfig:"TIPSPLIT_REAPER_TIP_RETRY_LEASE" default:"15m"`
}

type LightningConfig struct {
	BaseURL     string        `envconfig:"TIPSPLIT_LIGHTNING_BASE_URL"`
	AdminKey    string        `envconfig:"TIPSPLIT_LIGHTNING_ADMIN_KEY"`
	InvoiceKey  string        `envconfig:"TIPSPLIT_LIGHTNING_INVOICE_KEY"`
	HTTPTimeout time.Duration `envconfig:"TIPSPLIT_LIGHTNING_HTTP_TIMEOUT" default:"20s"`
	InvoiceTTL  time.Duration `envconfig:"TIPSPLIT_LIGHTNING_INVOICE_EXPIRY" default:"1h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"TIPSPLIT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	SettlementSubscription string `envconfig:"TIPSPLIT_PUBSUB_SETTLEMENT_SUBSCRIPTION"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DBDriverSQLite)
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
