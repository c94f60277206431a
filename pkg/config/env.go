package config

const EnvPrefix = "VOUCHERZ"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "VOUCHERZ_APP_ENV"
	EnvPort      = "VOUCHERZ_APP_PORT"
	EnvLogLevel  = "VOUCHERZ_LOG_LEVEL"
	EnvLogFormat = "VOUCHERZ_LOG_FORMAT"

	EnvDBDSN  = "VOUCHERZ_DB_DSN"
	EnvDBHost = "VOUCHERZ_DB_HOST"
	EnvDBUser = "VOUCHERZ_DB_USER"
	EnvDBName = "VOUCHERZ_DB_NAME"

	EnvRedisURL = "VOUCHERZ_REDIS_URL"

	EnvJWTSecret = "VOUCHERZ_JWT_SECRET"
	EnvJWTIssuer = "VOUCHERZ_JWT_ISSUER"

	EnvVouchersLockTimeout        = "VOUCHERZ_VOUCHERS_LOCK_TIMEOUT"
	EnvVouchersReserveAttempts    = "VOUCHERZ_VOUCHERS_RESERVE_ATTEMPTS"
	EnvVouchersReleaseMaxAttempts = "VOUCHERZ_VOUCHERS_RELEASE_MAX_ATTEMPTS"
	EnvVouchersReservationHold    = "VOUCHERZ_VOUCHERS_RESERVATION_HOLD"
	EnvVouchersReserveRateLimit   = "VOUCHERZ_VOUCHERS_RESERVE_RATE_LIMIT"

	EnvSquareAccessToken         = "VOUCHERZ_SQUARE_ACCESS_TOKEN"
	EnvSquarePartnerLocations    = "VOUCHERZ_SQUARE_PARTNER_LOCATIONS"
	EnvSquareWebhookSignatureKey = "VOUCHERZ_SQUARE_WEBHOOK_SIGNATURE_KEY"

	EnvGCPProjectID       = "VOUCHERZ_GCP_PROJECT_ID"
	EnvPubSubSalesTopic   = "VOUCHERZ_PUBSUB_SALES_TOPIC"
	EnvCronInterval       = "VOUCHERZ_CRON_INTERVAL"
	EnvOutboxMaxAttempts  = "VOUCHERZ_OUTBOX_MAX_ATTEMPTS"
	EnvFeatureAutoMigrate = "VOUCHERZ_AUTO_MIGRATE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
