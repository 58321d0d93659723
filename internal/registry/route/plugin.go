package route

import (
	"sort"
	"sync"

	"github.com/gin-gonic/gin"

	registrystore "github.com/chirino/chat-store/internal/registry/store"
)

// Deps are the subsystems a route plugin may use.
type Deps struct {
	Store registrystore.ChatStore
}

// RouterLoader initializes routes on the gin engine.
type RouterLoader func(r *gin.Engine, deps Deps) error

// Plugin represents a management route plugin with an order for deterministic mount sequence.
type Plugin struct {
	Order  int
	Loader RouterLoader
}

var (
	plugins  []Plugin
	sortOnce sync.Once
)

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Loaders returns every registered loader, sorted by order.
func Loaders() []RouterLoader {
	sortOnce.Do(func() {
		sort.SliceStable(plugins, func(i, j int) bool { return plugins[i].Order < plugins[j].Order })
	})
	loaders := make([]RouterLoader, len(plugins))
	for i, p := range plugins {
		loaders[i] = p.Loader
	}
	return loaders
}
