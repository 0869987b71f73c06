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
	EnvPrefix = "ZENERGY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "ZENERGY_APP_ENV"
	EnvPort         = "ZENERGY_APP_PORT"
	EnvDBDSN        = "ZENERGY_DB_DSN"
	EnvDBHost       = "ZENERGY_DB_HOST"
	EnvDBUser       = "ZENERGY_DB_USER"
	EnvDBName       = "ZENERGY_DB_NAME"
	EnvRedisURL     = "ZENERGY_REDIS_URL"
	EnvJWTSecret    = "ZENERGY_JWT_SECRET"
	EnvJWTIssuer    = "ZENERGY_JWT_ISSUER"
	EnvJWTExpMins   = "ZENERGY_JWT_EXPIRATION_MINUTES"
	EnvGCPProjectID = "ZENERGY_GCP_PROJECT_ID"
	EnvOutboxSink   = "ZENERGY_OUTBOX_SINK"
	EnvVQRBankBin   = "ZENERGY_VQR_BANK_BIN"
	EnvVQRAccountNo = "ZENERGY_VQR_ACCOUNT_NO"
	EnvVQRAccount   = "ZENERGY_VQR_ACCOUNT_NAME"
	EnvShippingFee  = "ZENERGY_CHECKOUT_SHIPPING_FEE"
	EnvTaxRate      = "ZENERGY_CHECKOUT_TAX_RATE"

	OutboxSinkPubSub = "pubsub"
	OutboxSinkKafka  = "kafka"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Checkout     CheckoutConfig
	VietQR       VietQRConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Outbox.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ZENERGY_APP_ENV" required:"true"`
	Port         string `envconfig:"ZENERGY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ZENERGY_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"ZENERGY_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"ZENERGY_LOG_WARN_STACK" default:"false"`

	CORSOrigins     []string      `envconfig:"ZENERGY_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout time.Duration `envconfig:"ZENERGY_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ZENERGY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ZENERGY_DB_DSN"`
	Driver string `envconfig:"ZENERGY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ZENERGY_DB_HOST"`
	LegacyPort     int    `envconfig:"ZENERGY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ZENERGY_DB_USER"`
	LegacyPassword string `envconfig:"ZENERGY_DB_PASSWORD"`
	LegacyName     string `envconfig:"ZENERGY_DB_NAME"`
	LegacySSLMode  string `envconfig:"ZENERGY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ZENERGY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ZENERGY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ZENERGY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ZENERGY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// LockTimeout bounds how long a transaction waits on a row lock before
	// the database aborts it. Zero disables the bound.
	LockTimeout time.Duration `envconfig:"ZENERGY_DB_LOCK_TIMEOUT" default:"5s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ZENERGY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ZENERGY_REDIS_ADDR"`
	Password     string        `envconfig:"ZENERGY_REDIS_PASSWORD"`
	DB           int           `envconfig:"ZENERGY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ZENERGY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ZENERGY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ZENERGY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ZENERGY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ZENERGY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ZENERGY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ZENERGY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ZENERGY_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ZENERGY_AUTO_MIGRATE" default:"false"`
}

// CheckoutConfig holds the pricing constants applied at order creation.
type CheckoutConfig struct {
	ShippingFee string `envconfig:"ZENERGY_CHECKOUT_SHIPPING_FEE" default:"50000"`
	TaxRate     string `envconfig:"ZENERGY_CHECKOUT_TAX_RATE" default:"0.10"`
}

// ShippingFeeAmount parses the configured flat shipping fee.
func (c CheckoutConfig) ShippingFeeAmount() decimal.Decimal {
	fee, err := decimal.NewFromString(strings.TrimSpace(c.ShippingFee))
	if err != nil {
		return decimal.Zero
	}
	return fee
}

// TaxRateValue parses the configured tax rate applied to the subtotal.
func (c CheckoutConfig) TaxRateValue() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.TaxRate))
	if err != nil {
		return decimal.Zero
	}
	return rate
}

func (c CheckoutConfig) validate() error {
	fee, err := decimal.NewFromString(strings.TrimSpace(c.ShippingFee))
	if err != nil {
		return fmt.Errorf("%s: %w", EnvShippingFee, err)
	}
	if fee.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvShippingFee)
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(c.TaxRate))
	if err != nil {
		return fmt.Errorf("%s: %w", EnvTaxRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be between 0 and 1", EnvTaxRate)
	}
	return nil
}

// VietQRConfig identifies the receiving bank account rendered in payment QR codes.
type VietQRConfig struct {
	BankBin     string `envconfig:"ZENERGY_VQR_BANK_BIN"`
	AccountNo   string `envconfig:"ZENERGY_VQR_ACCOUNT_NO"`
	AccountName string `envconfig:"ZENERGY_VQR_ACCOUNT_NAME"`
	BaseURL     string `envconfig:"ZENERGY_VQR_BASE_URL" default:"https://img.vietqr.io/image"`
	Template    string `envconfig:"ZENERGY_VQR_TEMPLATE" default:"compact2"`
}

// Configured reports whether the bank account fields are present.
func (v VietQRConfig) Configured() bool {
	return strings.TrimSpace(v.BankBin) != "" && strings.TrimSpace(v.AccountNo) != ""
}

type GCPConfig struct {
	ProjectID string `envconfig:"ZENERGY_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"ZENERGY_PUBSUB_ORDERS_TOPIC" default:"zenergy-order-events"`
	WalletTopic string `envconfig:"ZENERGY_PUBSUB_WALLET_TOPIC" default:"zenergy-wallet-events"`
}

type KafkaConfig struct {
	Brokers string `envconfig:"ZENERGY_KAFKA_BROKERS"`
}

// BrokerList splits the comma separated broker list.
func (k KafkaConfig) BrokerList() []string {
	brokers := []string{}
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

type OutboxConfig struct {
	Sink           string `envconfig:"ZENERGY_OUTBOX_SINK" default:"pubsub"`
	BatchSize      int    `envconfig:"ZENERGY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"ZENERGY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"ZENERGY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (o OutboxConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(o.Sink)) {
	case OutboxSinkPubSub, OutboxSinkKafka:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvOutboxSink, OutboxSinkPubSub, OutboxSinkKafka)
	}
}

// RateLimitConfig bounds mutating requests per caller.
type RateLimitConfig struct {
	Window time.Duration `envconfig:"ZENERGY_RATE_LIMIT_WINDOW" default:"1m"`
	Writes int           `envconfig:"ZENERGY_RATE_LIMIT_WRITES" default:"30"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"ZENERGY_CRON_INTERVAL" default:"1h"`
	OutboxRetentionDays int           `envconfig:"ZENERGY_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	StalePendingAfter   time.Duration `envconfig:"ZENERGY_CRON_STALE_PENDING_AFTER" default:"48h"`
	// Jobs restricts the worker to the named jobs; empty runs all of them.
	Jobs []string `envconfig:"ZENERGY_CRON_JOBS"`
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
