package config

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeEncryptionKey_HexAndBase64(t *testing.T) {
	hexKey := "00112233445566778899aabbccddeeff"
	key, err := DecodeEncryptionKey(hexKey)
	require.NoError(t, err)
	require.Len(t, key, 16)

	raw := []byte("0123456789abcdef0123456789abcdef")
	b64 := base64.StdEncoding.EncodeToString(raw)
	key, err = DecodeEncryptionKey(b64)
	require.NoError(t, err)
	require.Equal(t, raw, key)
}

func TestDecodeEncryptionKey_RejectsBadLength(t *testing.T) {
	_, err := DecodeEncryptionKey("abcd")
	require.Error(t, err)

	_, err = DecodeEncryptionKey("   ")
	require.Error(t, err)
}

func TestKEKKeys(t *testing.T) {
	var cfg Config
	keys, err := cfg.KEKKeys()
	require.NoError(t, err)
	require.Nil(t, keys)

	cfg.EncryptionKEK = "00112233445566778899aabbccddeeff, " + base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	keys, err = cfg.KEKKeys()
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.Len(t, keys[0], 16)
	require.Len(t, keys[1], 32)

	cfg.EncryptionKEK = "not-a-key"
	_, err = cfg.KEKKeys()
	require.Error(t, err)
}
