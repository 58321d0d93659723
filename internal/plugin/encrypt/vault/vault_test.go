package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	vaultapi "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/require"
)

// fakeTransit mimics transit/encrypt and transit/decrypt by base64 round-tripping
// behind a "vault:v1:" prefix.
type fakeTransit struct {
	paths []string
	fail  bool
}

func (f *fakeTransit) WriteWithContext(_ context.Context, path string, data map[string]interface{}) (*vaultapi.Secret, error) {
	f.paths = append(f.paths, path)
	if f.fail {
		return nil, errors.New("permission denied")
	}
	switch {
	case strings.HasPrefix(path, "transit/encrypt/"):
		return &vaultapi.Secret{Data: map[string]interface{}{
			"ciphertext": "vault:v1:" + data["plaintext"].(string),
		}}, nil
	case strings.HasPrefix(path, "transit/decrypt/"):
		return &vaultapi.Secret{Data: map[string]interface{}{
			"plaintext": strings.TrimPrefix(data["ciphertext"].(string), "vault:v1:"),
		}}, nil
	}
	return nil, errors.New("unexpected path " + path)
}

func TestWrapUnwrap(t *testing.T) {
	ctx := context.Background()
	fake := &fakeTransit{}
	k := New(fake, "chat-dek")

	dek := []byte("0123456789abcdef0123456789abcdef")
	wrapped, err := k.Wrap(ctx, dek)
	require.NoError(t, err)
	require.Equal(t, "vault:v1:"+base64.StdEncoding.EncodeToString(dek), string(wrapped))

	got, err := k.Unwrap(ctx, wrapped)
	require.NoError(t, err)
	require.Equal(t, dek, got)
	require.Equal(t, []string{"transit/encrypt/chat-dek", "transit/decrypt/chat-dek"}, fake.paths)
}

func TestWrapPropagatesErrors(t *testing.T) {
	k := New(&fakeTransit{fail: true}, "chat-dek")
	_, err := k.Wrap(context.Background(), []byte("x"))
	require.ErrorContains(t, err, "transit/encrypt")
	_, err = k.Unwrap(context.Background(), []byte("vault:v1:eA=="))
	require.ErrorContains(t, err, "transit/decrypt")
}
