package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirino/chat-store/internal/dataencryption"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
)

func TestSettingsService_SensitiveValuesAreEncrypted(t *testing.T) {
	ctx, store := newTestStore(t)
	userID := newTestUser(t, ctx, store)
	svc := NewSettingsService(store, newTestCrypto(store))

	require.NoError(t, svc.Set(ctx, userID, "search.tavily_api_key", "tvly-secret"))
	require.NoError(t, svc.Set(ctx, userID, "theme", "dark"))

	raw, err := store.GetUserSetting(ctx, userID, "search.tavily_api_key")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw.Value, dataencryption.Marker))
	assert.NotContains(t, raw.Value, "tvly-secret")

	raw, err = store.GetUserSetting(ctx, userID, "theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", raw.Value)

	value, ok, err := svc.Get(ctx, userID, "search.tavily_api_key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tvly-secret", value)

	all, err := svc.List(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"search.tavily_api_key": "tvly-secret", "theme": "dark"}, all)
}

func TestSettingsService_UndecryptableValueReadsAsAbsent(t *testing.T) {
	ctx, store := newTestStore(t)
	userID := newTestUser(t, ctx, store)
	svc := NewSettingsService(store, newTestCrypto(store))

	require.NoError(t, store.PutUserSetting(ctx, userID, "search.brave_api_key", dataencryption.Marker+"bm90IGEgcmVhbCBlbnZlbG9wZQ=="))

	_, ok, err := svc.Get(ctx, userID, "search.brave_api_key")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := svc.List(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSettingsService_WithoutKEKStoresPlaintext(t *testing.T) {
	ctx, store := newTestStore(t)
	userID := newTestUser(t, ctx, store)
	svc := NewSettingsService(store, dataencryption.New(nil, store, nil))

	require.NoError(t, svc.Set(ctx, userID, "search.exa_api_key", "exa-key"))
	raw, err := store.GetUserSetting(ctx, userID, "search.exa_api_key")
	require.NoError(t, err)
	assert.Equal(t, "exa-key", raw.Value)
}

func TestSettingsService_MissingAndDeleted(t *testing.T) {
	ctx, store := newTestStore(t)
	userID := newTestUser(t, ctx, store)
	svc := NewSettingsService(store, newTestCrypto(store))

	_, ok, err := svc.Get(ctx, userID, "theme")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.Set(ctx, userID, "theme", "dark"))
	deleted, err := svc.Delete(ctx, userID, "theme")
	require.NoError(t, err)
	assert.True(t, deleted)

	err = svc.Set(ctx, userID, " ", "x")
	assert.True(t, registrystore.IsInvalidArgument(err))
	err = svc.Set(ctx, "", "theme", "x")
	assert.True(t, registrystore.IsInvalidArgument(err))
}
