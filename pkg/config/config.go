package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Vouchers     VouchersConfig
	Square       SquareConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
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
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Vouchers.validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.Square.Locations(); err != nil {
		return nil, err
	}
	if cfg.App.IsProd() && strings.TrimSpace(cfg.Square.WebhookSignatureKey) == "" {
		return nil, fmt.Errorf("%s is required in production", EnvSquareWebhookSignatureKey)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VOUCHERZ_APP_ENV" required:"true"`
	Port         string `envconfig:"VOUCHERZ_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"VOUCHERZ_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"VOUCHERZ_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"VOUCHERZ_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma separated list added to the localhost default.
	CORSOrigins []string `envconfig:"VOUCHERZ_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"VOUCHERZ_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"VOUCHERZ_DB_DSN"`
	Driver string `envconfig:"VOUCHERZ_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VOUCHERZ_DB_HOST"`
	LegacyPort     int    `envconfig:"VOUCHERZ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VOUCHERZ_DB_USER"`
	LegacyPassword string `envconfig:"VOUCHERZ_DB_PASSWORD"`
	LegacyName     string `envconfig:"VOUCHERZ_DB_NAME"`
	LegacySSLMode  string `envconfig:"VOUCHERZ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VOUCHERZ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VOUCHERZ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VOUCHERZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VOUCHERZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQueryThreshold logs statements that take longer; zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"VOUCHERZ_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VOUCHERZ_REDIS_URL"`
	Address      string        `envconfig:"VOUCHERZ_REDIS_ADDR"`
	Password     string        `envconfig:"VOUCHERZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"VOUCHERZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VOUCHERZ_REDIS_POOL_SIZE" default:"20"`
	MinIdleConns int           `envconfig:"VOUCHERZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VOUCHERZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VOUCHERZ_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"VOUCHERZ_REDIS_WRITE_TIMEOUT" default:"3s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"VOUCHERZ_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"VOUCHERZ_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"VOUCHERZ_JWT_EXPIRATION_MINUTES" default:"60"`
}

// VouchersConfig carries the allocation engine knobs. LockTimeout doubles as the
// backoff between lock attempts and between background release attempts.
type VouchersConfig struct {
	LockTimeout        time.Duration `envconfig:"VOUCHERZ_VOUCHERS_LOCK_TIMEOUT" default:"2s"`
	ReserveAttempts    int           `envconfig:"VOUCHERZ_VOUCHERS_RESERVE_ATTEMPTS" default:"5"`
	ReleaseMaxAttempts int           `envconfig:"VOUCHERZ_VOUCHERS_RELEASE_MAX_ATTEMPTS" default:"20"`
	ReservationHold    time.Duration `envconfig:"VOUCHERZ_VOUCHERS_RESERVATION_HOLD" default:"30m"`
	ReserveRateLimit   int           `envconfig:"VOUCHERZ_VOUCHERS_RESERVE_RATE_LIMIT" default:"10"`
	ReserveRateWindow  time.Duration `envconfig:"VOUCHERZ_VOUCHERS_RESERVE_RATE_WINDOW" default:"1m"`
}

func (v VouchersConfig) validate() error {
	if v.LockTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvVouchersLockTimeout)
	}
	if v.ReserveAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvVouchersReserveAttempts)
	}
	if v.ReleaseMaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvVouchersReleaseMaxAttempts)
	}
	return nil
}

type SquareConfig struct {
	AccessToken         string            `envconfig:"VOUCHERZ_SQUARE_ACCESS_TOKEN"`
	Env                 string            `envconfig:"VOUCHERZ_SQUARE_ENV" default:"sandbox"`
	WebhookSignatureKey string            `envconfig:"VOUCHERZ_SQUARE_WEBHOOK_SIGNATURE_KEY"`
	WebhookURL          string            `envconfig:"VOUCHERZ_SQUARE_WEBHOOK_URL"`
	PartnerLocations    map[string]string `envconfig:"VOUCHERZ_SQUARE_PARTNER_LOCATIONS"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// Locations parses the partner -> Square location mapping.
func (s SquareConfig) Locations() (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(s.PartnerLocations))
	for rawPartner, location := range s.PartnerLocations {
		partnerID, err := uuid.Parse(strings.TrimSpace(rawPartner))
		if err != nil {
			return nil, fmt.Errorf("%s: invalid partner id %q: %w", EnvSquarePartnerLocations, rawPartner, err)
		}
		location = strings.TrimSpace(location)
		if location == "" {
			return nil, fmt.Errorf("%s: empty location for partner %s", EnvSquarePartnerLocations, partnerID)
		}
		out[partnerID] = location
	}
	return out, nil
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"VOUCHERZ_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"VOUCHERZ_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"VOUCHERZ_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"VOUCHERZ_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	SalesTopic string `envconfig:"VOUCHERZ_PUBSUB_SALES_TOPIC" default:"voucher-sales"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"VOUCHERZ_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"VOUCHERZ_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"VOUCHERZ_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"VOUCHERZ_OUTBOX_RETENTION_DAYS" default:"30"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"VOUCHERZ_CRON_INTERVAL" default:"5m"`
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
