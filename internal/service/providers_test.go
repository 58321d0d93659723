package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirino/chat-store/internal/dataencryption"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
)

func TestProviderService_APIKeyIsEncryptedAndHidden(t *testing.T) {
	ctx, store := newTestStore(t)
	userID := newTestUser(t, ctx, store)
	svc := NewProviderService(store, newTestCrypto(store))

	view, err := svc.Create(ctx, userID, NewProvider{Name: "OpenAI", ProviderType: "openai", APIKey: "sk-live", IsDefault: true})
	require.NoError(t, err)
	assert.True(t, view.HasAPIKey)
	assert.True(t, view.Enabled)

	raw, err := store.GetProvider(ctx, userID, view.ID)
	require.NoError(t, err)
	require.NotNil(t, raw.APIKey)
	assert.True(t, strings.HasPrefix(*raw.APIKey, dataencryption.Marker))

	key, ok, err := svc.APIKey(ctx, userID, view.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk-live", key)

	changed, err := svc.UpdateAPIKey(ctx, userID, view.ID, "")
	require.NoError(t, err)
	assert.True(t, changed)
	got, err := svc.Get(ctx, userID, view.ID)
	require.NoError(t, err)
	assert.False(t, got.HasAPIKey)
	_, ok, err = svc.APIKey(ctx, userID, view.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProviderService_DefaultFlip(t *testing.T) {
	ctx, store := newTestStore(t)
	userID := newTestUser(t, ctx, store)
	svc := NewProviderService(store, newTestCrypto(store))

	first, err := svc.Create(ctx, userID, NewProvider{Name: "a", ProviderType: "openai", IsDefault: true})
	require.NoError(t, err)
	second, err := svc.Create(ctx, userID, NewProvider{Name: "b", ProviderType: "ollama", IsDefault: true})
	require.NoError(t, err)

	list, err := svc.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "the default sorts first")
	assert.False(t, list[1].IsDefault)

	changed, err := svc.SetDefault(ctx, userID, first.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	list, err = svc.List(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, list[0].ID)
	assert.True(t, list[0].IsDefault)
	assert.False(t, list[1].IsDefault)

	deleted, err := svc.Delete(ctx, userID, first.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, _, err = svc.APIKey(ctx, userID, first.ID)
	assert.True(t, registrystore.IsNotFound(err))

	_, err = svc.Create(ctx, userID, NewProvider{ProviderType: "openai"})
	assert.True(t, registrystore.IsInvalidArgument(err))
}
