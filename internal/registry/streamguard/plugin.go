package streamguard

import (
	"context"
	"fmt"
	"time"
)

// Guard enforces at most one in-flight stream per conversation, across
// every process that shares the same backend.
type Guard interface {
	// Acquire claims the conversation for holder. It returns false when another
	// holder owns an unexpired claim. ttl bounds how long a crashed holder blocks others.
	Acquire(ctx context.Context, conversationID string, holder string, ttl time.Duration) (bool, error)
	// Release drops the claim if it is still owned by holder.
	Release(ctx context.Context, conversationID string, holder string) error
	// Close releases backend resources.
	Close() error
}

// Loader creates a guard from the config carried in ctx.
type Loader func(ctx context.Context) (Guard, error)

// Plugin represents a stream guard plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a stream guard plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered stream guard plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named stream guard plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown stream guard %q; valid: %v", name, Names())
}
