// Package config builds runtime configuration from environment variables so
// main stays lean. Every knob has a development-friendly default; production
// deployments override through the environment.
package config

import (
	"os"
	"strings"
	"time"
)

// Config is the full runtime configuration of the consent service.
type Config struct {
	Addr        string
	Environment string

	// API access. Static keys map key -> client name; the JWT secret enables
	// bearer-token callers when set.
	APIKeys     map[string]string
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	AdminToken  string

	// ConsentBaseURL is the public base used to build click-to-consent links.
	ConsentBaseURL string

	Database Database
	Redis    Redis
	Kafka    Kafka
	Twilio   Twilio
	SendGrid SendGrid

	DispatchTimeout   time.Duration
	CheckCacheTTL     time.Duration
	ReconcileInterval time.Duration
	ReconcileBatch    int
}

// Database holds Postgres connection settings. An empty URL selects the
// in-memory store.
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Redis holds check-cache connection settings. An empty URL disables caching.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka holds audit fan-out settings. Empty brokers disable the Kafka sink.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Twilio holds SMS provider credentials. Empty account SID disables SMS.
type Twilio struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// SendGrid holds email provider credentials. Empty API key disables email.
type SendGrid struct {
	APIKey    string
	FromEmail string
}

// FromEnv builds the configuration from environment variables.
func FromEnv() Config {
	return Config{
		Addr:        envOr("CONSENTD_ADDR", ":8080"),
		Environment: envOr("CONSENTD_ENV", "development"),

		APIKeys:     parseAPIKeys(os.Getenv("CONSENTD_API_KEYS")),
		JWTSecret:   os.Getenv("CONSENTD_JWT_SECRET"),
		JWTIssuer:   os.Getenv("CONSENTD_JWT_ISSUER"),
		JWTAudience: os.Getenv("CONSENTD_JWT_AUDIENCE"),
		AdminToken:  os.Getenv("CONSENTD_ADMIN_TOKEN"),

		ConsentBaseURL: envOr("CONSENT_BASE_URL", "http://localhost:8080"),

		Database: Database{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{
			Brokers: splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("KAFKA_AUDIT_TOPIC", "consent.audit"),
		},
		Twilio: Twilio{
			AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
			FromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		},
		SendGrid: SendGrid{
			APIKey:    os.Getenv("SENDGRID_API_KEY"),
			FromEmail: os.Getenv("SENDGRID_FROM_EMAIL"),
		},

		DispatchTimeout:   durationOr("CONSENTD_DISPATCH_TIMEOUT", 10*time.Second),
		CheckCacheTTL:     durationOr("CONSENTD_CHECK_CACHE_TTL", 30*time.Second),
		ReconcileInterval: durationOr("CONSENTD_RECONCILE_INTERVAL", time.Minute),
		ReconcileBatch:    100,
	}
}

// IsProduction reports whether the service runs in production mode. Test
// tooling endpoints are disabled there.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseAPIKeys reads "key1:agent-one,key2:agent-two" into a lookup map.
func parseAPIKeys(raw string) map[string]string {
	keys := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, name, found := strings.Cut(pair, ":")
		if !found || key == "" {
			continue
		}
		keys[key] = name
	}
	return keys
}
