package encrypt

import (
	"context"
	"fmt"

	"github.com/chirino/chat-store/internal/config"
)

// KEK wraps and unwraps per-user data encryption keys. Implementations own
// their wrapped format; the result is stored verbatim on the user row.
type KEK interface {
	// ID names the provider (e.g. "local", "vault", "kms").
	ID() string

	// Wrap encrypts a raw DEK.
	Wrap(ctx context.Context, dek []byte) ([]byte, error)

	// Unwrap recovers a raw DEK produced by Wrap.
	Unwrap(ctx context.Context, wrapped []byte) ([]byte, error)
}

// Plugin bundles a KEK kind with its loader. A loader may return a nil KEK,
// which means no master key is configured.
type Plugin struct {
	Name   string
	Loader func(ctx context.Context, cfg *config.Config) (KEK, error)
}

var plugins []Plugin

// Register adds a KEK provider plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered provider names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the Plugin for the given name.
func Select(name string) (Plugin, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p, nil
		}
	}
	return Plugin{}, fmt.Errorf("unknown KEK provider %q; registered: %v", name, Names())
}

// Load selects and loads the KEK configured in cfg.
func Load(ctx context.Context, cfg *config.Config) (KEK, error) {
	p, err := Select(cfg.ResolvedKEKKind())
	if err != nil {
		return nil, err
	}
	return p.Loader(ctx, cfg)
}
