package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/chirino/chat-store/internal/cmd/serve"
	"github.com/chirino/chat-store/internal/config"
	"github.com/chirino/chat-store/internal/monitoring"
	registrymigrate "github.com/chirino/chat-store/internal/registry/migrate"

	// Store plugins register their own migrators alongside their primary interface.
	_ "github.com/chirino/chat-store/internal/plugin/store/gormstore"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the database schema and exit",
		Flags: serve.Flags(&cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cfg.ApplyEnv(); err != nil {
				return err
			}
			if err := monitoring.ConfigureLogging(cfg.LogLevel); err != nil {
				return err
			}
			// An explicit migrate always runs, whatever the start-up setting says.
			cfg.DatastoreMigrateAtStart = true
			return Run(config.WithContext(ctx, &cfg))
		},
	}
}

// Run applies every registered migrator for the config in ctx.
func Run(ctx context.Context) error {
	log.Info("Running migrations...")
	if err := registrymigrate.RunAll(ctx); err != nil {
		return err
	}
	log.Info("All migrations completed successfully")
	return nil
}
