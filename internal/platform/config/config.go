package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultAddr           = ":8080"
	defaultInviteTTL      = 24 * time.Hour
	defaultDraftTTL       = 30 * time.Minute
	defaultIdempotencyTTL = 24 * time.Hour
	devSigningKey         = "dev-secret-key-change-in-production"
)

// Server captures process level configuration. Every field has an
// environment variable; see FromEnv.
type Server struct {
	Addr           string
	Environment    string
	LogLevel       string
	PublicBaseURL  string
	RegimePackPath string

	Auth     AuthConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig

	InviteTTL      time.Duration
	DraftTTL       time.Duration
	IdempotencyTTL time.Duration

	// problems collects parse failures so Validate can report them after
	// defaults were applied.
	problems []string
}

// AuthConfig holds signing keys for capability tokens and invitations.
type AuthConfig struct {
	JWTSigningKey    string
	InviteSigningKey string
	Issuer           string
	Audience         string
}

// DatabaseConfig selects Postgres. Empty URL means in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig selects Redis. Empty URL means in-memory idempotency and drafts.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the audit relay and the asset change consumer.
type KafkaConfig struct {
	Brokers          []string
	AuditTopic       string
	AssetEventsTopic string
	ConsumerGroup    string
	OutboxInterval   time.Duration
	OutboxBatchSize  int
}

// Enabled reports whether brokers are configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:           envOr("POLICY_KERNEL_ADDR", defaultAddr),
		Environment:    envOr("ENVIRONMENT", "development"),
		LogLevel:       envOr("LOG_LEVEL", "info"),
		PublicBaseURL:  strings.TrimRight(envOr("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		RegimePackPath: os.Getenv("REGIME_PACK_PATH"),
		Auth: AuthConfig{
			JWTSigningKey:    envOr("JWT_SIGNING_KEY", devSigningKey),
			InviteSigningKey: envOr("INVITE_SIGNING_KEY", devSigningKey),
			Issuer:           "policy-kernel",
			Audience:         "policy-kernel-api",
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			AuditTopic:       envOr("KAFKA_AUDIT_TOPIC", "policy-kernel.audit"),
			AssetEventsTopic: envOr("KAFKA_ASSET_EVENTS_TOPIC", "registry.asset-events"),
			ConsumerGroup:    envOr("KAFKA_CONSUMER_GROUP", "policy-kernel"),
			OutboxInterval:   2 * time.Second,
			OutboxBatchSize:  100,
		},
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}
	cfg.InviteTTL = cfg.duration("INVITE_TTL", defaultInviteTTL)
	cfg.DraftTTL = cfg.duration("DRAFT_TTL", defaultDraftTTL)
	cfg.IdempotencyTTL = cfg.duration("IDEMPOTENCY_TTL", defaultIdempotencyTTL)
	return cfg
}

// IsProduction reports whether the service runs in production.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// Validate reports configuration that would make the service unsafe to start.
func (s Server) Validate() error {
	var errs []error
	for _, p := range s.problems {
		errs = append(errs, errors.New(p))
	}
	if s.IsProduction() {
		if s.Auth.JWTSigningKey == devSigningKey {
			errs = append(errs, errors.New("JWT_SIGNING_KEY must be set in production"))
		}
		if s.Auth.InviteSigningKey == devSigningKey {
			errs = append(errs, errors.New("INVITE_SIGNING_KEY must be set in production"))
		}
		if s.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL must be set in production"))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		s.problems = append(s.problems, fmt.Sprintf("%s: invalid duration %q, using %s", key, raw, def))
		return def
	}
	return d
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
