package local

import (
	"context"
	"sync"
	"time"

	"github.com/chirino/chat-store/internal/registry/streamguard"
)

func init() {
	streamguard.Register(streamguard.Plugin{
		Name: "local",
		Loader: func(ctx context.Context) (streamguard.Guard, error) {
			return New(), nil
		},
	})
}

type claim struct {
	holder  string
	expires time.Time
}

// Guard is an in-process stream guard. It only protects against concurrent
// streams within one process.
type Guard struct {
	mu     sync.Mutex
	claims map[string]claim
	now    func() time.Time
}

// New returns an empty in-process guard.
func New() *Guard {
	return &Guard{claims: map[string]claim{}, now: time.Now}
}

func (g *Guard) Acquire(_ context.Context, conversationID string, holder string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if c, ok := g.claims[conversationID]; ok && c.holder != holder && now.Before(c.expires) {
		return false, nil
	}
	g.claims[conversationID] = claim{holder: holder, expires: now.Add(ttl)}
	return true, nil
}

func (g *Guard) Release(_ context.Context, conversationID string, holder string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.claims[conversationID]; ok && c.holder == holder {
		delete(g.claims, conversationID)
	}
	return nil
}

func (g *Guard) Close() error { return nil }

var _ streamguard.Guard = (*Guard)(nil)
