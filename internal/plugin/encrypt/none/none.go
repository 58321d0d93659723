// Package none registers the "none" KEK provider: no master key is
// configured and sensitive values are stored as plaintext.
package none

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/chirino/chat-store/internal/config"
	"github.com/chirino/chat-store/internal/registry/encrypt"
)

func init() {
	encrypt.Register(encrypt.Plugin{
		Name: "none",
		Loader: func(_ context.Context, _ *config.Config) (encrypt.KEK, error) {
			log.Info("No KEK configured; sensitive settings will be stored in plaintext")
			return nil, nil
		},
	})
}
