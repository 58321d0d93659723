package service

import "context"

// Crypto encrypts and decrypts per-user string values. *dataencryption.Service
// satisfies it.
type Crypto interface {
	EncryptForUser(ctx context.Context, userID string, plaintext string) (string, error)
	// DecryptForUser returns ok=false when a ciphertext cannot be read.
	DecryptForUser(ctx context.Context, userID string, value string) (string, bool, error)
}
