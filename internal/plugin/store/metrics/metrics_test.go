package metrics_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirino/chat-store/internal/config"
	"github.com/chirino/chat-store/internal/content"
	"github.com/chirino/chat-store/internal/model"
	"github.com/chirino/chat-store/internal/monitoring"
	_ "github.com/chirino/chat-store/internal/plugin/store/gormstore"
	"github.com/chirino/chat-store/internal/plugin/store/metrics"
	registrymigrate "github.com/chirino/chat-store/internal/registry/migrate"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
)

func TestWrapRecordsLatencyPerOperation(t *testing.T) {
	monitoring.InitMetrics(nil)

	cfg := config.DefaultConfig()
	cfg.DBURL = filepath.Join(t.TempDir(), "chat.db")
	ctx := config.WithContext(context.Background(), &cfg)
	require.NoError(t, registrymigrate.RunAll(ctx))
	loader, err := registrystore.Select("sqlite")
	require.NoError(t, err)
	inner, err := loader(ctx)
	require.NoError(t, err)

	store := metrics.Wrap(inner)
	t.Cleanup(func() { _ = store.Close() })

	owner := model.UserOwner("metrics-user")
	conv, err := store.CreateConversation(ctx, owner, registrystore.NewConversation{Title: "observed"})
	require.NoError(t, err)
	_, err = store.InsertUserMessage(ctx, conv.ID, registrystore.MessageInput{Content: content.Text("hi")})
	require.NoError(t, err)
	page, err := store.GetMessagesPage(ctx, conv.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, page.Data, 1, "results pass through unchanged")

	// create_conversation, insert_message and get_messages_page series.
	assert.Equal(t, 3, testutil.CollectAndCount(monitoring.StoreLatency))
}
