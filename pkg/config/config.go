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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Orders       OrdersConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Orders.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARKETPLACE_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETPLACE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARKETPLACE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MARKETPLACE_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"MARKETPLACE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETPLACE_DB_DSN"`
	Driver string `envconfig:"MARKETPLACE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"MARKETPLACE_DB_HOST"`
	Port     int    `envconfig:"MARKETPLACE_DB_PORT" default:"5432"`
	User     string `envconfig:"MARKETPLACE_DB_USER"`
	Password string `envconfig:"MARKETPLACE_DB_PASSWORD"`
	Name     string `envconfig:"MARKETPLACE_DB_NAME"`
	SSLMode  string `envconfig:"MARKETPLACE_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"MARKETPLACE_SQLITE_PATH" default:"file:marketplace.db?cache=shared"`

	MaxOpenConns    int           `envconfig:"MARKETPLACE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETPLACE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETPLACE_REDIS_URL"`
	Address      string        `envconfig:"MARKETPLACE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETPLACE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETPLACE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETPLACE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETPLACE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETPLACE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"MARKETPLACE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MARKETPLACE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MARKETPLACE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MARKETPLACE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MARKETPLACE_AUTO_MIGRATE" default:"false"`
}

// OrdersConfig drives the lifecycle engine: storage mode, progression timers and
// the buyer-facing windows.
type OrdersConfig struct {
	Mode                  string        `envconfig:"MARKETPLACE_ORDERS_MODE" default:"auto"`
	SnapshotStore         string        `envconfig:"MARKETPLACE_ORDERS_SNAPSHOT_STORE" default:"marketplace"`
	ProgressionEnabled    bool          `envconfig:"MARKETPLACE_ORDERS_PROGRESSION_ENABLED" default:"true"`
	ConfirmDelay          time.Duration `envconfig:"MARKETPLACE_ORDERS_CONFIRM_DELAY" default:"10s"`
	ShipDelay             time.Duration `envconfig:"MARKETPLACE_ORDERS_SHIP_DELAY" default:"30s"`
	ReturnWindowDays      int           `envconfig:"MARKETPLACE_ORDERS_RETURN_WINDOW_DAYS" default:"7"`
	CODDeliveryDays       int           `envconfig:"MARKETPLACE_ORDERS_COD_DELIVERY_DAYS" default:"5"`
	StandardDeliveryDays  int           `envconfig:"MARKETPLACE_ORDERS_STANDARD_DELIVERY_DAYS" default:"3"`
	NotificationFeedLimit int           `envconfig:"MARKETPLACE_ORDERS_NOTIFICATION_FEED_LIMIT" default:"50"`
}

func (o OrdersConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(o.Mode)) {
	case OrdersModeRemote, OrdersModeLocal, OrdersModeAuto:
	default:
		return fmt.Errorf("%s must be one of %s, %s, %s", EnvOrdersMode, OrdersModeRemote, OrdersModeLocal, OrdersModeAuto)
	}
	if o.ReturnWindowDays <= 0 {
		return fmt.Errorf("%s must be positive", EnvReturnWindowDays)
	}
	if o.NotificationFeedLimit <= 0 {
		return fmt.Errorf("%s must be positive", EnvNotificationFeedLimit)
	}
	return nil
}

// NormalizedMode returns the lower-cased storage mode.
func (o OrdersConfig) NormalizedMode() string {
	return strings.ToLower(strings.TrimSpace(o.Mode))
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MARKETPLACE_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"MARKETPLACE_CRON_LOCK_TTL" default:"5m"`
	// SweepLimit caps how many stale orders one progression sweep advances per status.
	SweepLimit                int `envconfig:"MARKETPLACE_CRON_SWEEP_LIMIT" default:"200"`
	OutboxRetentionDays       int `envconfig:"MARKETPLACE_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	NotificationRetentionDays int `envconfig:"MARKETPLACE_CRON_NOTIFICATION_RETENTION_DAYS" default:"90"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"MARKETPLACE_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"MARKETPLACE_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"MARKETPLACE_PUBSUB_ORDERS_TOPIC" default:"marketplace-order-events"`
	OrdersSubscription string `envconfig:"MARKETPLACE_PUBSUB_ORDERS_SUBSCRIPTION"`
}

type KafkaConfig struct {
	Brokers     []string `envconfig:"MARKETPLACE_KAFKA_BROKERS"`
	OrdersTopic string   `envconfig:"MARKETPLACE_KAFKA_ORDERS_TOPIC" default:"marketplace.orders"`
}

type OutboxConfig struct {
	Sink           string `envconfig:"MARKETPLACE_OUTBOX_SINK" default:"pubsub"`
	BatchSize      int    `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"MARKETPLACE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// RateLimitConfig throttles checkout per actor and per client IP. A zero
// window disables it.
type RateLimitConfig struct {
	CheckoutWindow     time.Duration `envconfig:"MARKETPLACE_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutActorLimit int           `envconfig:"MARKETPLACE_RATE_LIMIT_CHECKOUT_ACTOR" default:"10"`
	CheckoutIPLimit    int           `envconfig:"MARKETPLACE_RATE_LIMIT_CHECKOUT_IP" default:"30"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" || sqlite {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
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
