package config

import (
	"context"
	"strings"
	"time"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	DatastoreSQLite   = "sqlite"
	DatastorePostgres = "postgres"
)

// Config holds all configuration for the chat store.
type Config struct {
	// Datastore backend type: "sqlite" or "postgres".
	DatastoreType string

	// DBURL is a postgres connection URL or a sqlite file path.
	DBURL string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Encryption.
	// EncryptionKEKKind selects the KEK provider: "none", "local", "vault" or "kms".
	EncryptionKEKKind string
	// EncryptionKEK is the hex or base64 master key used by the "local" provider.
	EncryptionKEK             string
	EncryptionVaultTransitKey string
	// EncryptionKMSKeyID is the AWS KMS key ID or ARN used by the "kms" provider.
	EncryptionKMSKeyID string

	// Stream guard backend type: "local" or "redis".
	StreamGuardType string
	RedisURL        string
	// StreamGuardTTL bounds how long a crashed producer can hold a conversation.
	StreamGuardTTL time.Duration

	// Retention. RetentionDays == 0 disables the sweeper.
	RetentionDays      int
	RetentionInterval  time.Duration
	RetentionBatchSize int

	// Management server (/health, /ready, /metrics). A negative port disables it.
	ManagementPort int
	// ManagementTLS serves TLS next to plaintext on the management port. Without
	// a cert/key pair a self-signed certificate is generated.
	ManagementTLS       bool
	TLSCertFile         string
	TLSKeyFile          string
	ReadHeaderTimeout   time.Duration
	ManagementAccessLog bool

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	MetricsLabels string

	LogLevel string

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DatastoreType:           DatastoreSQLite,
		DBURL:                   "chat-store.db",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,
		EncryptionKEKKind:       "none",
		StreamGuardType:         "local",
		StreamGuardTTL:          10 * time.Minute,
		RetentionInterval:       time.Hour,
		RetentionBatchSize:      500,
		ManagementPort:          9090,
		ReadHeaderTimeout:       5 * time.Second,
		MetricsLabels:           "service=chat-store",
		LogLevel:                "info",
		DrainTimeout:            30,
	}
}

// RetentionEnabled reports whether the background sweeper should run.
func (c *Config) RetentionEnabled() bool {
	return c != nil && c.RetentionDays > 0
}

// ResolvedKEKKind normalises the configured KEK kind, treating empty as "none".
func (c *Config) ResolvedKEKKind() string {
	if c == nil {
		return "none"
	}
	kind := strings.ToLower(strings.TrimSpace(c.EncryptionKEKKind))
	if kind == "" {
		return "none"
	}
	return kind
}
