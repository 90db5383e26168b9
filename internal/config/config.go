package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	Stripe    StripeConfig
	Auth      AuthConfig
	Cron      CronConfig
	AMQP      AMQPConfig
	Usage     UsageConfig
	Metrics   MetricsPushConfig
	PlansFile string
}

// TelemetryConfig feeds logging, tracing and OTLP metrics export.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	LogSQL        bool
	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	WebhookTolerance time.Duration
	PriceIDPro       string
	PriceIDElite     string
	SuccessURL       string
	CancelURL        string
}

type AuthConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	Disabled bool
}

// CronConfig protects and schedules the credit reset trigger.
type CronConfig struct {
	Secret                string
	SecretHash            string
	SchedulerEnabled      bool
	CreditResetSchedule   string
	DeferredDebitSchedule string
	ResetConcurrency      int
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

type UsageConfig struct {
	GenerateCost      int64
	GenerateRate      float64
	GenerateBurst     int
	MaxSettleAttempts int
}

type MetricsPushConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "promptly"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "promptly"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", ""))),
			LogSQL:        getenvBool("LOG_SQL", false),
			OtelEnabled:   getenvBool("OTEL_ENABLED", true),
			OTLPEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
			OTLPProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", -1),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Stripe: StripeConfig{
			SecretKey:        strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:    strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			WebhookTolerance: getenvDuration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),
			PriceIDPro:       strings.TrimSpace(getenv("STRIPE_PRICE_ID_PRO", "")),
			PriceIDElite:     strings.TrimSpace(getenv("STRIPE_PRICE_ID_ELITE", "")),
			SuccessURL:       strings.TrimSpace(getenv("STRIPE_SUCCESS_URL", "http://localhost:3000/billing/success")),
			CancelURL:        strings.TrimSpace(getenv("STRIPE_CANCEL_URL", "http://localhost:3000/billing/cancel")),
		},
		Auth: AuthConfig{
			Issuer:   strings.TrimSpace(getenv("AUTH_ISSUER", "")),
			Audience: strings.TrimSpace(getenv("AUTH_AUDIENCE", "")),
			JWKSURL:  strings.TrimSpace(getenv("AUTH_JWKS_URL", "")),
			Disabled: getenvBool("AUTH_DISABLED", false),
		},
		Cron: CronConfig{
			Secret:                strings.TrimSpace(getenv("CRON_SECRET", "")),
			SecretHash:            strings.TrimSpace(getenv("CRON_SECRET_HASH", "")),
			SchedulerEnabled:      getenvBool("SCHEDULER_ENABLED", true),
			CreditResetSchedule:   getenv("CREDIT_RESET_SCHEDULE", "@daily"),
			DeferredDebitSchedule: getenv("DEFERRED_DEBIT_SCHEDULE", "@every 5m"),
			ResetConcurrency:      getenvInt("CREDIT_RESET_CONCURRENCY", 8),
		},
		AMQP: AMQPConfig{
			URL:      strings.TrimSpace(getenv("AMQP_URL", "")),
			Exchange: getenv("AMQP_EXCHANGE", "promptly.events"),
		},
		Usage: UsageConfig{
			GenerateCost:      getenvInt64("GENERATE_COST", 1),
			GenerateRate:      getenvFloat("GENERATE_RATE_PER_SEC", 1),
			GenerateBurst:     getenvInt("GENERATE_BURST", 5),
			MaxSettleAttempts: getenvInt("DEFERRED_DEBIT_MAX_ATTEMPTS", 5),
		},
		Metrics: MetricsPushConfig{
			Enabled:   getenvBool("METRICS_PUSH_ENABLED", false),
			Exporter:  strings.ToLower(getenv("METRICS_PUSH_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
			Interval:  getenvDuration("METRICS_PUSH_INTERVAL", 5*time.Minute),
		},
		PlansFile: strings.TrimSpace(getenv("PLANS_FILE", "")),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// IsLocal reports whether the process runs in a developer environment.
func (c Config) IsLocal() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "local", "dev", "development", "test":
		return true
	default:
		return false
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
