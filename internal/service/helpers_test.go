package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chirino/chat-store/internal/config"
	"github.com/chirino/chat-store/internal/dataencryption"
	"github.com/chirino/chat-store/internal/plugin/encrypt/local"
	_ "github.com/chirino/chat-store/internal/plugin/store/gormstore"
	registrymigrate "github.com/chirino/chat-store/internal/registry/migrate"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
)

func newTestStore(t *testing.T) (context.Context, registrystore.ChatStore) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DBURL = filepath.Join(t.TempDir(), "chat.db")
	ctx := config.WithContext(context.Background(), &cfg)
	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registrystore.Select(config.DatastoreSQLite)
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return ctx, store
}

func newTestCrypto(store registrystore.ChatStore) *dataencryption.Service {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(0xA0 + i)
	}
	return dataencryption.New(local.New(key), store, nil)
}

func newTestUser(t *testing.T, ctx context.Context, store registrystore.ChatStore) string {
	t.Helper()
	user, err := store.CreateUser(ctx, registrystore.NewUser{DisplayName: "tester"})
	require.NoError(t, err)
	return user.ID
}
