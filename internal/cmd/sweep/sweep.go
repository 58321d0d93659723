package sweep

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/chirino/chat-store/internal/cmd/serve"
	"github.com/chirino/chat-store/internal/config"
	"github.com/chirino/chat-store/internal/monitoring"
	registrymigrate "github.com/chirino/chat-store/internal/registry/migrate"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
	"github.com/chirino/chat-store/internal/service"

	_ "github.com/chirino/chat-store/internal/plugin/store/gormstore"
)

// Command returns the sweep sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	days := 0
	return &cli.Command{
		Name:  "sweep",
		Usage: "Run one retention sweep and exit",
		Flags: append(serve.Flags(&cfg),
			&cli.IntFlag{
				Name:        "days",
				Category:    "Retention:",
				Sources:     cli.EnvVars(config.EnvPrefix + "RETENTION_DAYS"),
				Destination: &days,
				Usage:       "Delete unpinned conversations idle for more than this many days",
				Required:    true,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cfg.ApplyEnv(); err != nil {
				return err
			}
			if err := monitoring.ConfigureLogging(cfg.LogLevel); err != nil {
				return err
			}
			result := Run(config.WithContext(ctx, &cfg), days)
			log.Info("Retention sweep finished",
				"conversations", result.Conversations,
				"messages", result.Messages,
				"batches", result.Batches,
			)
			return nil
		},
	}
}

// Run performs one sweep. An unreachable store is logged and yields an
// empty result so scheduled jobs do not fail.
func Run(ctx context.Context, days int) service.SweepResult {
	cfg := config.FromContext(ctx)
	if err := registrymigrate.RunAll(ctx); err != nil {
		log.Warn("Retention sweep skipped: migrations failed", "err", err)
		return service.SweepResult{}
	}
	loader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		log.Warn("Retention sweep skipped", "err", err)
		return service.SweepResult{}
	}
	store, err := loader(ctx)
	if err != nil {
		log.Warn("Retention sweep skipped: store unavailable", "err", err)
		return service.SweepResult{}
	}
	defer store.Close()

	sweeper := service.NewRetentionSweeper(store, days, cfg.RetentionInterval, cfg.RetentionBatchSize)
	return sweeper.Sweep(ctx, days)
}
