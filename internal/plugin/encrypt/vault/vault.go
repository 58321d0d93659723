// Package vault registers the "vault" KEK provider backed by HashiCorp Vault
// Transit. Vault is called only to wrap a new DEK or unwrap one on a cache
// miss, never per value.
package vault

import (
	"context"
	"encoding/base64"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/chirino/chat-store/internal/config"
	"github.com/chirino/chat-store/internal/registry/encrypt"
)

func init() {
	encrypt.Register(encrypt.Plugin{
		Name: "vault",
		Loader: func(ctx context.Context, cfg *config.Config) (encrypt.KEK, error) {
			if cfg.EncryptionVaultTransitKey == "" {
				return nil, fmt.Errorf("vault KEK: CHAT_STORE_ENCRYPTION_VAULT_TRANSIT_KEY is required")
			}
			// Address and token come from VAULT_ADDR / VAULT_TOKEN.
			client, err := vaultapi.NewClient(vaultapi.DefaultConfig())
			if err != nil {
				return nil, fmt.Errorf("vault KEK: creating client: %w", err)
			}
			return New(client.Logical(), cfg.EncryptionVaultTransitKey), nil
		},
	})
}

// Logical is the subset of the Vault logical API used for Transit calls.
type Logical interface {
	WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*vaultapi.Secret, error)
}

// KEK wraps DEKs with a Vault Transit key.
type KEK struct {
	logical    Logical
	transitKey string
}

// New returns a KEK that calls Transit through logical.
func New(logical Logical, transitKey string) *KEK {
	return &KEK{logical: logical, transitKey: transitKey}
}

func (k *KEK) ID() string { return "vault" }

// Wrap calls transit/encrypt. The returned bytes are the "vault:v1:..." ciphertext.
func (k *KEK) Wrap(ctx context.Context, dek []byte) ([]byte, error) {
	path := fmt.Sprintf("transit/encrypt/%s", k.transitKey)
	secret, err := k.logical.WriteWithContext(ctx, path, map[string]any{
		"plaintext": base64.StdEncoding.EncodeToString(dek),
	})
	if err != nil {
		return nil, fmt.Errorf("vault: transit/encrypt: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("vault: transit/encrypt: empty response")
	}
	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("vault: transit/encrypt: missing ciphertext in response")
	}
	return []byte(ciphertext), nil
}

// Unwrap calls transit/decrypt.
func (k *KEK) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	path := fmt.Sprintf("transit/decrypt/%s", k.transitKey)
	secret, err := k.logical.WriteWithContext(ctx, path, map[string]any{
		"ciphertext": string(wrapped),
	})
	if err != nil {
		return nil, fmt.Errorf("vault: transit/decrypt: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("vault: transit/decrypt: empty response")
	}
	plaintextB64, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("vault: transit/decrypt: missing plaintext in response")
	}
	plain, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, fmt.Errorf("vault: transit/decrypt: decoding plaintext: %w", err)
	}
	return plain, nil
}

var _ encrypt.KEK = (*KEK)(nil)
