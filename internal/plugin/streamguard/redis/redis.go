package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/chat-store/internal/config"
	"github.com/chirino/chat-store/internal/registry/streamguard"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 10 * time.Minute

func init() {
	streamguard.Register(streamguard.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (streamguard.Guard, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis stream guard: CHAT_STORE_REDIS_URL is required")
	}
	return LoadFromURL(ctx, cfg.RedisURL)
}

// LoadFromURL creates a Guard from a Redis-compatible URL.
func LoadFromURL(ctx context.Context, redisURL string) (*Guard, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis stream guard: invalid URL: %w", err)
	}
	return LoadFromOptions(ctx, opts)
}

// LoadFromOptions creates a Guard from go-redis Options.
func LoadFromOptions(ctx context.Context, opts *goredis.Options) (*Guard, error) {
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis stream guard: ping failed: %w", err)
	}
	return &Guard{client: client}, nil
}

// releaseScript deletes the key only when it still holds the caller's token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Guard claims conversations with SET NX PX so that every process sharing
// the Redis instance sees the same in-flight stream.
type Guard struct {
	client *goredis.Client
}

func streamKey(conversationID string) string {
	return fmt.Sprintf("chat-stream:%s", conversationID)
}

func (g *Guard) Acquire(ctx context.Context, conversationID string, holder string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	key := streamKey(conversationID)
	ok, err := g.client.SetNX(ctx, key, holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis stream guard: acquire: %w", err)
	}
	if ok {
		return true, nil
	}
	// Re-entrant for the same holder: refresh the expiry.
	current, err := g.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis stream guard: acquire: %w", err)
	}
	if current != holder {
		return false, nil
	}
	if err := g.client.PExpire(ctx, key, ttl).Err(); err != nil {
		return false, fmt.Errorf("redis stream guard: refresh: %w", err)
	}
	return true, nil
}

func (g *Guard) Release(ctx context.Context, conversationID string, holder string) error {
	if err := releaseScript.Run(ctx, g.client, []string{streamKey(conversationID)}, holder).Err(); err != nil && err != goredis.Nil {
		return fmt.Errorf("redis stream guard: release: %w", err)
	}
	return nil
}

func (g *Guard) Close() error {
	return g.client.Close()
}

var _ streamguard.Guard = (*Guard)(nil)
