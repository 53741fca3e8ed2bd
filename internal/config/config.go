package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Escalation   EscalationConfig
	Relay        RelayConfig
	Agent        AgentConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects the
// in-memory repositories.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values used by the relay.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// EscalationConfig drives the help request lifecycle.
type EscalationConfig struct {
	TimeoutMinutes        int
	SweepIntervalSeconds  int
	FallbackMessage       string
	RejectTerminalResolve bool
	SeedData              bool
}

// RelayConfig holds the real-time room service credentials.
type RelayConfig struct {
	URL             string
	APIKey          string
	APISecret       string
	TokenTTLMinutes int
}

// AgentConfig tunes the conversation agent.
type AgentConfig struct {
	CaptureSeconds   int
	DeferralPhrase   string
	RecordUsageOnHit bool
	CallerCustomerID string
}

// NotificationConfig holds supervisor alert endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// DefaultFallbackMessage is stored on requests that time out unanswered.
const DefaultFallbackMessage = "Sorry for the delay. We are still checking. Would you like to share your email for follow-up or request a callback?"

// DefaultDeferralPhrase is spoken when no learned answer matches.
const DefaultDeferralPhrase = "Let me check with my supervisor and get back to you."

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "escalation-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Escalation: EscalationConfig{
			TimeoutMinutes:        getEnvAsInt("ESCALATION_TIMEOUT_MINUTES", 15),
			SweepIntervalSeconds:  getEnvAsInt("ESCALATION_SWEEP_INTERVAL_SECONDS", 30),
			FallbackMessage:       getEnv("ESCALATION_FALLBACK_MESSAGE", DefaultFallbackMessage),
			RejectTerminalResolve: getEnvAsBool("ESCALATION_REJECT_TERMINAL_RESOLVE", false),
			SeedData:              getEnvAsBool("ESCALATION_SEED_DATA", true),
		},
		Relay: RelayConfig{
			URL:             os.Getenv("RELAY_URL"),
			APIKey:          os.Getenv("RELAY_API_KEY"),
			APISecret:       os.Getenv("RELAY_API_SECRET"),
			TokenTTLMinutes: getEnvAsInt("RELAY_TOKEN_TTL_MINUTES", 60),
		},
		Agent: AgentConfig{
			CaptureSeconds:   getEnvAsInt("AGENT_CAPTURE_SECONDS", 5),
			DeferralPhrase:   getEnv("AGENT_DEFERRAL_PHRASE", DefaultDeferralPhrase),
			RecordUsageOnHit: getEnvAsBool("AGENT_RECORD_USAGE_ON_HIT", false),
			CallerCustomerID: getEnv("AGENT_CALLER_CUSTOMER_ID", "cust_101"),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Horizon returns the default time a help request may stay pending.
func (e EscalationConfig) Horizon() time.Duration {
	if e.TimeoutMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(e.TimeoutMinutes) * time.Minute
}

// SweepInterval returns the background sweep period, zero when disabled.
func (e EscalationConfig) SweepInterval() time.Duration {
	if e.SweepIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(e.SweepIntervalSeconds) * time.Second
}

// Configured reports whether tokens can be minted.
func (r RelayConfig) Configured() bool {
	return r.APIKey != "" && r.APISecret != ""
}

// TokenTTL returns the lifetime of minted join tokens.
func (r RelayConfig) TokenTTL() time.Duration {
	if r.TokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(r.TokenTTLMinutes) * time.Minute
}

// CaptureCeiling returns the hard cap on a single audio capture.
func (a AgentConfig) CaptureCeiling() time.Duration {
	if a.CaptureSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(a.CaptureSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
