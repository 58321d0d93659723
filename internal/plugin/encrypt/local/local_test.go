package local_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chirino/chat-store/internal/config"
	"github.com/chirino/chat-store/internal/dataencryption"
	"github.com/chirino/chat-store/internal/registry/encrypt"

	_ "github.com/chirino/chat-store/internal/plugin/encrypt/local"
)

// 32-byte AES-256 keys encoded as hex.
const testKeyHex = "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"
const legacyKeyHex = "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2"

func newKEK(t *testing.T, keys string) encrypt.KEK {
	t.Helper()
	plugin, err := encrypt.Select("local")
	require.NoError(t, err)
	k, err := plugin.Loader(context.Background(), &config.Config{EncryptionKEK: keys})
	require.NoError(t, err)
	require.NotNil(t, k)
	return k
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	ctx := context.Background()
	k := newKEK(t, testKeyHex)
	dek, err := dataencryption.NewDEK()
	require.NoError(t, err)

	wrapped, err := k.Wrap(ctx, dek)
	require.NoError(t, err)
	require.True(t, dataencryption.HasMagic(wrapped), "wrapped DEK must have MSEH magic")
	require.NotContains(t, string(wrapped), string(dek))

	got, err := k.Unwrap(ctx, wrapped)
	require.NoError(t, err)
	require.Equal(t, dek, got)
}

// A DEK wrapped under a retired key still unwraps when that key is listed as legacy.
func TestUnwrapWithKeyRotation(t *testing.T) {
	ctx := context.Background()
	wrapped, err := newKEK(t, legacyKeyHex).Wrap(ctx, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	rotated := newKEK(t, testKeyHex+","+legacyKeyHex)
	got, err := rotated.Unwrap(ctx, wrapped)
	require.NoError(t, err)
	require.Equal(t, []byte("0123456789abcdef0123456789abcdef"), got)

	_, err = newKEK(t, testKeyHex).Unwrap(ctx, wrapped)
	require.Error(t, err)
}

func TestUnwrapRejectsForeignData(t *testing.T) {
	k := newKEK(t, testKeyHex)
	_, err := k.Unwrap(context.Background(), []byte("plain bytes"))
	require.Error(t, err)

	other := dataencryption.Seal(dataencryption.Header{Version: 1, ProviderID: "vault", Nonce: make([]byte, 12)}, []byte("x"))
	_, err = k.Unwrap(context.Background(), other)
	require.ErrorContains(t, err, "vault")
}

func TestLoaderRequiresKey(t *testing.T) {
	plugin, err := encrypt.Select("local")
	require.NoError(t, err)
	_, err = plugin.Loader(context.Background(), &config.Config{})
	require.Error(t, err)
}
