package serve

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/chirino/chat-store/internal/config"
	registryencrypt "github.com/chirino/chat-store/internal/registry/encrypt"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
	"github.com/chirino/chat-store/internal/registry/streamguard"

	// Import all plugins to trigger init() registration
	_ "github.com/chirino/chat-store/internal/plugin/encrypt/awskms"
	_ "github.com/chirino/chat-store/internal/plugin/encrypt/local"
	_ "github.com/chirino/chat-store/internal/plugin/encrypt/none"
	_ "github.com/chirino/chat-store/internal/plugin/encrypt/vault"
	_ "github.com/chirino/chat-store/internal/plugin/route/system"
	_ "github.com/chirino/chat-store/internal/plugin/store/gormstore"
	_ "github.com/chirino/chat-store/internal/plugin/streamguard/local"
	_ "github.com/chirino/chat-store/internal/plugin/streamguard/redis"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the chat store background services and management server",
		Flags: append(Flags(&cfg), ServeFlags(&cfg)...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cfg.ApplyEnv(); err != nil {
				return err
			}
			return run(config.WithContext(ctx, &cfg), &cfg)
		},
	}
}

// Flags are the store, encryption and logging flags shared by every sub-command.
func Flags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{

		// ── Database ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars(config.EnvPrefix + "DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Backend store (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars(config.EnvPrefix + "DB_URL"),
			Destination: &cfg.DBURL,
			Value:       cfg.DBURL,
			Usage:       "Postgres connection URL or sqlite file path",
		},

		// ── Encryption ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "encryption-kek-kind",
			Category:    "Encryption:",
			Sources:     cli.EnvVars(config.EnvPrefix + "ENCRYPTION_KEK_KIND"),
			Destination: &cfg.EncryptionKEKKind,
			Value:       cfg.EncryptionKEKKind,
			Usage:       "KEK provider (" + strings.Join(registryencrypt.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "encryption-kek",
			Category:    "Encryption:",
			Sources:     cli.EnvVars(config.EnvPrefix + "ENCRYPTION_KEK"),
			Destination: &cfg.EncryptionKEK,
			Usage:       "Master key for the local KEK provider (hex or base64, 16/24/32 bytes). Extra comma-separated keys unwrap only",
		},

		// ── Logging ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "log-level",
			Category:    "Logging:",
			Sources:     cli.EnvVars(config.EnvPrefix + "LOG_LEVEL"),
			Destination: &cfg.LogLevel,
			Value:       cfg.LogLevel,
			Usage:       "Log level (debug|info|warn|error)",
		},
	}
}

// ServeFlags are the flags only the long-running server needs.
func ServeFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{

		// ── Stream Guard ──────────────────────────────────────────
		&cli.StringFlag{
			Name:        "stream-guard-kind",
			Category:    "Stream Guard:",
			Sources:     cli.EnvVars(config.EnvPrefix + "STREAM_GUARD_KIND"),
			Destination: &cfg.StreamGuardType,
			Value:       cfg.StreamGuardType,
			Usage:       "Stream guard backend (" + strings.Join(streamguard.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Stream Guard:",
			Sources:     cli.EnvVars(config.EnvPrefix + "REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL for the redis stream guard",
		},

		// ── Retention ─────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "retention-days",
			Category:    "Retention:",
			Sources:     cli.EnvVars(config.EnvPrefix + "RETENTION_DAYS"),
			Destination: &cfg.RetentionDays,
			Value:       cfg.RetentionDays,
			Usage:       "Hard-delete unpinned conversations idle for this many days (0 disables the sweeper)",
		},

		// ── Management Network Listener ───────────────────────────
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars(config.EnvPrefix + "MANAGEMENT_PORT"),
			Destination: &cfg.ManagementPort,
			Value:       cfg.ManagementPort,
			Usage:       "Port for /health, /ready and /metrics (0 = OS-assigned random port, negative disables)",
		},
		&cli.BoolFlag{
			Name:        "management-tls",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars(config.EnvPrefix + "MANAGEMENT_TLS"),
			Destination: &cfg.ManagementTLS,
			Usage:       "Also accept TLS on the management port",
		},
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars(config.EnvPrefix + "TLS_CERT_FILE"),
			Destination: &cfg.TLSCertFile,
			Usage:       "TLS certificate file; a self-signed certificate is generated when unset",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars(config.EnvPrefix + "TLS_KEY_FILE"),
			Destination: &cfg.TLSKeyFile,
			Usage:       "TLS private key file",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars(config.EnvPrefix + "MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Log every management request",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars(config.EnvPrefix + "DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Graceful shutdown timeout in seconds",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars(config.EnvPrefix + "METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       cfg.MetricsLabels,
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	srv, err := StartServer(ctx, cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}
