package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/chirino/chat-store/internal/cmd/migrate"
	"github.com/chirino/chat-store/internal/cmd/serve"
	"github.com/chirino/chat-store/internal/cmd/sweep"
	"github.com/chirino/chat-store/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		log.Fatal(err)
	}

	app := &cli.Command{
		Name:  "chat-store",
		Usage: "Persistence layer for LLM chat conversations",
		Commands: []*cli.Command{
			serve.Command(),
			migrate.Command(),
			sweep.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
