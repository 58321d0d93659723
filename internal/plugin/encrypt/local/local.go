// Package local registers the "local" KEK provider: DEKs are wrapped with
// AES-GCM under a master key taken from the configuration.
package local

import (
	"context"
	"fmt"

	"github.com/chirino/chat-store/internal/config"
	"github.com/chirino/chat-store/internal/dataencryption"
	"github.com/chirino/chat-store/internal/registry/encrypt"
)

const providerID = "local"

// wrapAAD binds wrapped DEKs to this provider.
var wrapAAD = []byte("chat-store/user-dek")

func init() {
	encrypt.Register(encrypt.Plugin{
		Name: providerID,
		Loader: func(_ context.Context, cfg *config.Config) (encrypt.KEK, error) {
			// EncryptionKEK is CSV: first entry is primary (for wrapping),
			// subsequent entries are legacy (unwrap-only key rotation).
			keys, err := cfg.KEKKeys()
			if err != nil {
				return nil, fmt.Errorf("local KEK: %w", err)
			}
			if len(keys) == 0 {
				return nil, fmt.Errorf("local KEK: CHAT_STORE_ENCRYPTION_KEK is required")
			}
			return New(keys[0], keys[1:]...), nil
		},
	})
}

// KEK wraps DEKs with AES-GCM inside an MSEH envelope.
type KEK struct {
	primaryKey []byte
	legacyKeys [][]byte
}

// New returns a KEK using primary for wrapping and every key for unwrapping.
func New(primary []byte, legacy ...[]byte) *KEK {
	return &KEK{primaryKey: primary, legacyKeys: legacy}
}

func (k *KEK) ID() string { return providerID }

func (k *KEK) Wrap(_ context.Context, dek []byte) ([]byte, error) {
	nonce, ciphertext, err := dataencryption.AESGCMSeal(k.primaryKey, dek, wrapAAD)
	if err != nil {
		return nil, err
	}
	return dataencryption.Seal(dataencryption.Header{
		Version:    1,
		ProviderID: providerID,
		Nonce:      nonce,
	}, ciphertext), nil
}

// Unwrap tries the primary key then all legacy keys.
func (k *KEK) Unwrap(_ context.Context, wrapped []byte) ([]byte, error) {
	h, payload, ok, err := dataencryption.Open(wrapped)
	if err != nil {
		return nil, fmt.Errorf("local KEK: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("local KEK: expected MSEH envelope")
	}
	if h.ProviderID != providerID {
		return nil, fmt.Errorf("local KEK: DEK was wrapped by provider %q", h.ProviderID)
	}
	keys := append([][]byte{k.primaryKey}, k.legacyKeys...)
	var lastErr error
	for _, key := range keys {
		plain, err := dataencryption.AESGCMOpen(key, h.Nonce, payload, wrapAAD)
		if err == nil {
			return plain, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("local KEK: unwrap failed with all keys: %w", lastErr)
}

var _ encrypt.KEK = (*KEK)(nil)
