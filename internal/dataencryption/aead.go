package dataencryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// DEKSize is the length of generated data encryption keys (AES-256).
const DEKSize = 32

// NewDEK returns a fresh random key from the system CSPRNG.
func NewDEK() ([]byte, error) {
	key := make([]byte, DEKSize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("dataencryption: generating DEK: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("dataencryption: AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("dataencryption: GCM: %w", err)
	}
	return gcm, nil
}

// AESGCMSeal encrypts plaintext with AES-GCM using key, a random nonce and aad.
func AESGCMSeal(key, plaintext, aad []byte) (nonce, ciphertext []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("dataencryption: generating nonce: %w", err)
	}
	return nonce, gcm.Seal(nil, nonce, plaintext, aad), nil
}

// AESGCMOpen decrypts ciphertext (with appended GCM tag) using key, nonce and aad.
func AESGCMOpen(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("dataencryption: invalid nonce length %d", len(nonce))
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("dataencryption: AES-GCM open: %w", err)
	}
	return plain, nil
}
