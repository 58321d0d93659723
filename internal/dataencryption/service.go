package dataencryption

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/chirino/chat-store/internal/monitoring"
	"github.com/chirino/chat-store/internal/registry/encrypt"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
)

// Marker prefixes every ciphertext string produced by EncryptForUser.
const Marker = "enc:v1:"

// ProviderID is written into the MSEH header of data ciphertext.
const ProviderID = "dek"

// ErrDEKUnwrap is returned when the stored DEK cannot be opened with the
// configured KEK, e.g. after the KEK was replaced.
var ErrDEKUnwrap = errors.New("dataencryption: unable to unwrap DEK")

// UserKeyStore persists the wrapped DEK on the user record.
type UserKeyStore interface {
	// GetUserDEK returns the wrapped DEK and its version, or nil when none exists.
	// An unknown user yields a NotFoundError.
	GetUserDEK(ctx context.Context, userID string) ([]byte, int, error)
	// StoreUserDEKIfAbsent persists wrapped unless a DEK already exists.
	StoreUserDEKIfAbsent(ctx context.Context, userID string, wrapped []byte, version int) (bool, error)
}

type contextKey struct{}

// WithContext returns a new context carrying the given Service.
func WithContext(ctx context.Context, svc *Service) context.Context {
	return context.WithValue(ctx, contextKey{}, svc)
}

// FromContext retrieves the Service from the context. Returns nil if none was set.
func FromContext(ctx context.Context) *Service {
	svc, _ := ctx.Value(contextKey{}).(*Service)
	return svc
}

// Service issues per-user DEKs wrapped by the process KEK and encrypts
// opaque string values with them. Without a KEK it degrades to plaintext.
type Service struct {
	kek   encrypt.KEK
	keys  UserKeyStore
	cache *DEKCache

	kekMissingOnce    sync.Once
	decryptFailedOnce sync.Once
}

// New constructs a Service. kek may be nil (no master key configured). A nil
// cache gets a fresh one.
func New(kek encrypt.KEK, keys UserKeyStore, cache *DEKCache) *Service {
	if cache == nil {
		cache = NewDEKCache()
	}
	return &Service{kek: kek, keys: keys, cache: cache}
}

// KEKConfigured reports whether a master key is available.
func (s *Service) KEKConfigured() bool {
	return s != nil && s.kek != nil
}

// IsCiphertext reports whether value carries the ciphertext marker.
func IsCiphertext(value string) bool {
	return strings.HasPrefix(value, Marker)
}

func requireUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return &registrystore.InvalidArgumentError{Field: "userId", Message: "is required"}
	}
	return nil
}

// EnsureUserDEK returns the raw DEK for userID, creating and persisting a
// wrapped one on first use. It returns (nil, nil) when no KEK is configured.
func (s *Service) EnsureUserDEK(ctx context.Context, userID string) ([]byte, error) {
	dek, _, err := s.ensureUserDEK(ctx, userID)
	return dek, err
}

func (s *Service) ensureUserDEK(ctx context.Context, userID string) ([]byte, int, error) {
	if err := requireUserID(userID); err != nil {
		return nil, 0, err
	}
	if !s.KEKConfigured() {
		return nil, 0, nil
	}
	if dek, version, ok := s.cache.Get(userID); ok {
		monitoring.RecordEncryptionEvent(monitoring.EventDEKCacheHit)
		return dek, version, nil
	}

	wrapped, version, err := s.keys.GetUserDEK(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if wrapped == nil {
		wrapped, version, err = s.createUserDEK(ctx, userID)
		if err != nil {
			return nil, 0, err
		}
	}

	dek, err := s.kek.Unwrap(ctx, wrapped)
	if err != nil {
		return nil, 0, fmt.Errorf("%w for user %s: %w", ErrDEKUnwrap, userID, err)
	}
	dek, version = s.cache.LoadOrStore(userID, dek, version)
	return dek, version, nil
}

// createUserDEK generates and persists a wrapped DEK. When another writer
// stored one first, the winner's DEK is returned instead.
func (s *Service) createUserDEK(ctx context.Context, userID string) ([]byte, int, error) {
	dek, err := NewDEK()
	if err != nil {
		return nil, 0, err
	}
	wrapped, err := s.kek.Wrap(ctx, dek)
	if err != nil {
		return nil, 0, fmt.Errorf("dataencryption: wrapping DEK for user %s: %w", userID, err)
	}
	const version = 1
	stored, err := s.keys.StoreUserDEKIfAbsent(ctx, userID, wrapped, version)
	if err != nil {
		return nil, 0, err
	}
	if stored {
		log.Debug("Created user DEK", "userId", userID, "kek", s.kek.ID())
		monitoring.RecordEncryptionEvent(monitoring.EventDEKCreated)
		return wrapped, version, nil
	}
	winner, winnerVersion, err := s.keys.GetUserDEK(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if winner == nil {
		return nil, 0, fmt.Errorf("dataencryption: no DEK found for user %s after concurrent create", userID)
	}
	return winner, winnerVersion, nil
}

// EncryptForUser encrypts plaintext with the user's DEK. Values that already
// carry the ciphertext marker are returned unchanged, and without a KEK the
// plaintext is returned as is.
func (s *Service) EncryptForUser(ctx context.Context, userID string, plaintext string) (string, error) {
	if err := requireUserID(userID); err != nil {
		return "", err
	}
	if IsCiphertext(plaintext) {
		return plaintext, nil
	}
	dek, version, err := s.ensureUserDEK(ctx, userID)
	if err != nil {
		return "", err
	}
	if dek == nil {
		return plaintext, nil
	}
	nonce, ciphertext, err := AESGCMSeal(dek, []byte(plaintext), []byte(userID))
	if err != nil {
		return "", err
	}
	envelope := Seal(Header{
		Version:    1,
		ProviderID: ProviderID,
		Nonce:      nonce,
		KeyVersion: uint32(version),
	}, ciphertext)
	return Marker + base64.StdEncoding.EncodeToString(envelope), nil
}

// DecryptForUser returns (plaintext, true, nil) for plaintext input or a
// successful decryption. It returns ("", false, nil) when value is ciphertext
// but no KEK is configured, or when decryption fails; each of those
// conditions is logged once per Service.
func (s *Service) DecryptForUser(ctx context.Context, userID string, value string) (string, bool, error) {
	if err := requireUserID(userID); err != nil {
		return "", false, err
	}
	if !IsCiphertext(value) {
		return value, true, nil
	}
	if !s.KEKConfigured() {
		monitoring.RecordEncryptionEvent(monitoring.EventKEKMissing)
		s.kekMissingOnce.Do(func() {
			log.Warn("Encrypted value found but no KEK is configured; treating it as absent")
		})
		return "", false, nil
	}
	dek, _, err := s.ensureUserDEK(ctx, userID)
	if errors.Is(err, ErrDEKUnwrap) {
		s.decryptFailed(err)
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	plain, err := openValue(dek, userID, value)
	if err != nil {
		s.decryptFailed(err)
		return "", false, nil
	}
	return plain, true, nil
}

func (s *Service) decryptFailed(err error) {
	monitoring.RecordEncryptionEvent(monitoring.EventDecryptFailed)
	s.decryptFailedOnce.Do(func() {
		log.Warn("Failed to decrypt value; treating it as absent", "err", err)
	})
}

func openValue(dek []byte, userID string, value string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Marker))
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	h, payload, ok, err := Open(raw)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("ciphertext has no MSEH envelope")
	}
	if h.ProviderID != ProviderID {
		return "", fmt.Errorf("unexpected provider %q in envelope", h.ProviderID)
	}
	plain, err := AESGCMOpen(dek, h.Nonce, payload, []byte(userID))
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
