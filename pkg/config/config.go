package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = ""

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Stripe       StripeConfig
	Billing      BillingConfig
	Usage        UsageConfig
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
	Env          string `envconfig:"BILLINGDASH_APP_ENV" required:"true"`
	Port         string `envconfig:"BILLINGDASH_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"BILLINGDASH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BILLINGDASH_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"BILLINGDASH_DB_DSN"`
	Driver string `envconfig:"BILLINGDASH_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"BILLINGDASH_DB_HOST"`
	Port     int    `envconfig:"BILLINGDASH_DB_PORT" default:"5432"`
	User     string `envconfig:"BILLINGDASH_DB_USER"`
	Password string `envconfig:"BILLINGDASH_DB_PASSWORD"`
	Name     string `envconfig:"BILLINGDASH_DB_NAME"`
	SSLMode  string `envconfig:"BILLINGDASH_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BILLINGDASH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BILLINGDASH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BILLINGDASH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BILLINGDASH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BILLINGDASH_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BILLINGDASH_REDIS_ADDR"`
	Password     string        `envconfig:"BILLINGDASH_REDIS_PASSWORD"`
	DB           int           `envconfig:"BILLINGDASH_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BILLINGDASH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BILLINGDASH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BILLINGDASH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BILLINGDASH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BILLINGDASH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BILLINGDASH_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BILLINGDASH_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BILLINGDASH_JWT_EXPIRATION_MINUTES" default:"60"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"BILLINGDASH_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"BILLINGDASH_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"BILLINGDASH_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type BillingConfig struct {
	AppURL                string        `envconfig:"BILLINGDASH_APP_URL" default:"http://localhost:3000"`
	CheckoutSuccessPath   string        `envconfig:"BILLINGDASH_CHECKOUT_SUCCESS_PATH" default:"/dashboard?success=true&session_id={CHECKOUT_SESSION_ID}"`
	CheckoutCancelPath    string        `envconfig:"BILLINGDASH_CHECKOUT_CANCEL_PATH" default:"/dashboard/plans"`
	PortalReturnPath      string        `envconfig:"BILLINGDASH_PORTAL_RETURN_PATH" default:"/dashboard/billing"`
	WebhookIdempotencyTTL time.Duration `envconfig:"BILLINGDASH_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

// CheckoutSuccessURL assembles the absolute redirect target for completed checkouts.
func (b BillingConfig) CheckoutSuccessURL() string {
	return b.AppURL + b.CheckoutSuccessPath
}

// CheckoutCancelURL assembles the absolute redirect target for abandoned checkouts.
func (b BillingConfig) CheckoutCancelURL() string {
	return b.AppURL + b.CheckoutCancelPath
}

// PortalReturnURL assembles the absolute return target for the billing portal.
func (b BillingConfig) PortalReturnURL() string {
	return b.AppURL + b.PortalReturnPath
}

type UsageConfig struct {
	DefaultAPICallLimit    int64 `envconfig:"BILLINGDASH_USAGE_DEFAULT_API_CALL_LIMIT" default:"100"`
	DefaultStorageLimitGB  int64 `envconfig:"BILLINGDASH_USAGE_DEFAULT_STORAGE_LIMIT_GB" default:"1"`
	DefaultTeamMemberLimit int64 `envconfig:"BILLINGDASH_USAGE_DEFAULT_TEAM_MEMBER_LIMIT" default:"1"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BILLINGDASH_AUTO_MIGRATE" default:"false"`
	SeedPlans   bool `envconfig:"BILLINGDASH_SEED_PLANS" default:"true"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
