package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	HTTP          HTTPConfig
	FeatureFlags  FeatureFlagsConfig
	RateLimit     RateLimitConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Consolidation ConsolidationConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Consolidation.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"QUOTEHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"QUOTEHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"QUOTEHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"QUOTEHUB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"QUOTEHUB_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"QUOTEHUB_DB_DSN"`
	Driver string `envconfig:"QUOTEHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"QUOTEHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"QUOTEHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"QUOTEHUB_DB_USER"`
	LegacyPassword string `envconfig:"QUOTEHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"QUOTEHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"QUOTEHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns       int           `envconfig:"QUOTEHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns       int           `envconfig:"QUOTEHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime    time.Duration `envconfig:"QUOTEHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime    time.Duration `envconfig:"QUOTEHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQueryThreshold time.Duration `envconfig:"QUOTEHUB_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL            string        `envconfig:"QUOTEHUB_REDIS_URL" required:"true"`
	Address        string        `envconfig:"QUOTEHUB_REDIS_ADDR"`
	Password       string        `envconfig:"QUOTEHUB_REDIS_PASSWORD"`
	DB             int           `envconfig:"QUOTEHUB_REDIS_DB" default:"0"`
	PoolSize       int           `envconfig:"QUOTEHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns   int           `envconfig:"QUOTEHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout    time.Duration `envconfig:"QUOTEHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout    time.Duration `envconfig:"QUOTEHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout   time.Duration `envconfig:"QUOTEHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
	IdempotencyTTL time.Duration `envconfig:"QUOTEHUB_REDIS_IDEMPOTENCY_TTL" default:"24h"`
}

type JWTConfig struct {
	Secret            string `envconfig:"QUOTEHUB_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"QUOTEHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"QUOTEHUB_JWT_EXPIRATION_MINUTES" default:"60"`
}

// HTTPConfig holds the API surface settings.
type HTTPConfig struct {
	AllowedOrigins []string      `envconfig:"QUOTEHUB_HTTP_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	ReadTimeout    time.Duration `envconfig:"QUOTEHUB_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout   time.Duration `envconfig:"QUOTEHUB_HTTP_WRITE_TIMEOUT" default:"30s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"QUOTEHUB_AUTO_MIGRATE" default:"false"`
}

// RateLimitConfig throttles per-distributor write traffic. A zero limit disables the policy.
type RateLimitConfig struct {
	Window             time.Duration `envconfig:"QUOTEHUB_RATE_LIMIT_WINDOW" default:"1m"`
	MutationsPerWindow int           `envconfig:"QUOTEHUB_RATE_LIMIT_MUTATIONS" default:"120"`
	SendsPerWindow     int           `envconfig:"QUOTEHUB_RATE_LIMIT_SENDS" default:"10"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"QUOTEHUB_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"QUOTEHUB_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"QUOTEHUB_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	ConsolidationTopic string `envconfig:"QUOTEHUB_PUBSUB_CONSOLIDATION_TOPIC" required:"true"`
	OutboxDLQTopic     string `envconfig:"QUOTEHUB_PUBSUB_OUTBOX_DLQ_TOPIC"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"QUOTEHUB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"QUOTEHUB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"QUOTEHUB_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"QUOTEHUB_OUTBOX_RETENTION_DAYS" default:"30"`
}

// ConsolidationConfig tunes the consolidated order engine.
type ConsolidationConfig struct {
	DefaultDeliveryMethod string `envconfig:"QUOTEHUB_CONSOLIDATION_DEFAULT_DELIVERY_METHOD" default:"shipping"`
	NotesMaxLength        int    `envconfig:"QUOTEHUB_CONSOLIDATION_NOTES_MAX_LENGTH" default:"2000"`
	StaleDraftTTLDays     int    `envconfig:"QUOTEHUB_CONSOLIDATION_STALE_DRAFT_TTL_DAYS" default:"30"`
	ExpiryBatchSize       int    `envconfig:"QUOTEHUB_CONSOLIDATION_EXPIRY_BATCH_SIZE" default:"100"`
}

// StaleDraftTTL returns the idle window after which open drafts are cancelled.
func (c ConsolidationConfig) StaleDraftTTL() time.Duration {
	if c.StaleDraftTTLDays <= 0 {
		return 0
	}
	return time.Duration(c.StaleDraftTTLDays) * 24 * time.Hour
}

func (c ConsolidationConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.DefaultDeliveryMethod)) {
	case "shipping", "pickup":
		return nil
	default:
		return fmt.Errorf("%s must be shipping or pickup, got %q", EnvConsolidationDeliveryMethod, c.DefaultDeliveryMethod)
	}
}

type CronConfig struct {
	Interval time.Duration `envconfig:"QUOTEHUB_CRON_INTERVAL" default:"1h"`
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
