// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Session store backends.
const (
	StoreFile   = "file"
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// APIBaseURL is the Koursa REST API root (e.g. http://10.0.2.2:8000/api).
	APIBaseURL string `mapstructure:"API_BASE_URL"`
	// APITimeout bounds every HTTP request (e.g. "10s").
	APITimeout string `mapstructure:"API_TIMEOUT"`

	// SessionStore selects where authToken, refreshToken and user persist: file, memory or redis.
	SessionStore string `mapstructure:"SESSION_STORE"`
	// SessionFile is the JSON file used by the file store. Empty means ~/.koursa/session.json.
	SessionFile string `mapstructure:"SESSION_FILE"`
	// RedisAddr, RedisPassword and RedisDB configure the redis store.
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int    `mapstructure:"REDIS_DB"`
	RedisKeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`
	// TokenRefreshSkew refreshes the access token when it expires within this window (e.g. "30s").
	TokenRefreshSkew string `mapstructure:"TOKEN_REFRESH_SKEW"`

	// OTel. When OTLPEndpoint is empty, telemetry is disabled.
	OTLPEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// EventsKafkaBrokers is a comma-separated list of Kafka brokers; when set, workflow events are also produced to Kafka.
	EventsKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// EventsKafkaTopic is the Kafka topic for workflow events.
	EventsKafkaTopic string `mapstructure:"EVENTS_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group of cmd/worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is the Grafana Loki base URL (e.g. http://localhost:3100). The CLI pushes events there
	// directly when set; cmd/worker forwards the Kafka topic there.
	LokiURL string `mapstructure:"LOKI_URL"`

	// DatabaseURL is the Postgres DSN for the local fiche archive; empty disables archive commands.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// PolicyFile optionally replaces the built-in Rego policy.
	PolicyFile string `mapstructure:"POLICY_FILE"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// Dev backend only.
	DevServerAddr string `mapstructure:"DEVSERVER_ADDR"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file. Empty means an ephemeral key.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// ValidationTokenTTL is how long a confirm-password validation token stays usable (e.g. "5m").
	ValidationTokenTTL string `mapstructure:"VALIDATION_TOKEN_TTL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("API_BASE_URL", "http://10.0.2.2:8000/api")
	v.SetDefault("API_TIMEOUT", "10s")
	v.SetDefault("SESSION_STORE", StoreFile)
	v.SetDefault("SESSION_FILE", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "koursa:session:")
	v.SetDefault("TOKEN_REFRESH_SKEW", "30s")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", true)
	v.SetDefault("OTEL_SERVICE_NAME", "koursa-client")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("EVENTS_KAFKA_TOPIC", "koursa-events")
	v.SetDefault("KAFKA_GROUP_ID", "koursa-events-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("POLICY_FILE", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("DEVSERVER_ADDR", ":8000")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "koursa-dev")
	v.SetDefault("JWT_AUDIENCE", "koursa-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("VALIDATION_TOKEN_TTL", "5m")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if cfg.APIBaseURL == "" {
		return nil, errors.New("config: API_BASE_URL must be set")
	}

	cfg.SessionStore = strings.ToLower(strings.TrimSpace(cfg.SessionStore))
	switch cfg.SessionStore {
	case StoreFile, StoreMemory:
	case StoreRedis:
		if cfg.RedisAddr == "" {
			return nil, errors.New("config: REDIS_ADDR must be set when SESSION_STORE=redis")
		}
	default:
		return nil, errors.New("config: SESSION_STORE must be one of file, memory, redis")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

// Timeout parses APITimeout. Returns 10s if unset or invalid.
func (c *Config) Timeout() time.Duration {
	return parseDuration(c.APITimeout, 10*time.Second)
}

// RefreshSkew parses TokenRefreshSkew. Returns 30s if unset or invalid; 0 is allowed.
func (c *Config) RefreshSkew() time.Duration {
	d, err := time.ParseDuration(c.TokenRefreshSkew)
	if err != nil || d < 0 {
		return 30 * time.Second
	}
	return d
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// ValidationTTL parses ValidationTokenTTL. Returns 5m if unset or invalid.
func (c *Config) ValidationTTL() time.Duration {
	return parseDuration(c.ValidationTokenTTL, 5*time.Minute)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the Kafka sink is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.EventsKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.EventsKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
