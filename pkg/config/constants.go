package config

const (
	EnvPrefix = "MARKETPLACE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	OrdersModeRemote = "remote"
	OrdersModeLocal  = "local"
	OrdersModeAuto   = "auto"

	OutboxSinkPubSub = "pubsub"
	OutboxSinkKafka  = "kafka"
)

const (
	EnvAppEnv    = "MARKETPLACE_APP_ENV"
	EnvPort      = "MARKETPLACE_APP_PORT"
	EnvLogLevel  = "MARKETPLACE_LOG_LEVEL"
	EnvDBDSN     = "MARKETPLACE_DB_DSN"
	EnvDBHost    = "MARKETPLACE_DB_HOST"
	EnvDBUser    = "MARKETPLACE_DB_USER"
	EnvDBName    = "MARKETPLACE_DB_NAME"
	EnvUseSQLite = "MARKETPLACE_USE_SQLITE"
	EnvRedisURL  = "MARKETPLACE_REDIS_URL"
	EnvJWTSecret = "MARKETPLACE_JWT_SECRET"
	EnvJWTIssuer = "MARKETPLACE_JWT_ISSUER"

	EnvOrdersMode            = "MARKETPLACE_ORDERS_MODE"
	EnvConfirmDelay          = "MARKETPLACE_ORDERS_CONFIRM_DELAY"
	EnvReturnWindowDays      = "MARKETPLACE_ORDERS_RETURN_WINDOW_DAYS"
	EnvNotificationFeedLimit = "MARKETPLACE_ORDERS_NOTIFICATION_FEED_LIMIT"
	EnvKafkaBrokers          = "MARKETPLACE_KAFKA_BROKERS"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
