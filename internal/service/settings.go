package service

import (
	"context"
	"fmt"
	"strings"

	registrystore "github.com/chirino/chat-store/internal/registry/store"
)

// SensitiveSettings names the settings whose values are encrypted at rest.
var SensitiveSettings = map[string]bool{
	"search.tavily_api_key":  true,
	"search.brave_api_key":   true,
	"search.exa_api_key":     true,
	"search.serper_api_key":  true,
	"search.searxng_api_key": true,
}

// IsSensitiveSetting reports whether name is stored encrypted.
func IsSensitiveSetting(name string) bool {
	return SensitiveSettings[name]
}

// SettingsService reads and writes named per-user settings.
type SettingsService struct {
	store  registrystore.SettingsStore
	crypto Crypto
}

// NewSettingsService creates a settings service.
func NewSettingsService(store registrystore.SettingsStore, crypto Crypto) *SettingsService {
	return &SettingsService{store: store, crypto: crypto}
}

func validSettingKey(userID, name string) error {
	if strings.TrimSpace(userID) == "" {
		return &registrystore.InvalidArgumentError{Field: "userId", Message: "is required"}
	}
	if strings.TrimSpace(name) == "" {
		return &registrystore.InvalidArgumentError{Field: "name", Message: "is required"}
	}
	return nil
}

func (s *SettingsService) Set(ctx context.Context, userID, name, value string) error {
	if err := validSettingKey(userID, name); err != nil {
		return err
	}
	if IsSensitiveSetting(name) {
		enc, err := s.crypto.EncryptForUser(ctx, userID, value)
		if err != nil {
			return fmt.Errorf("failed to encrypt setting %s: %w", name, err)
		}
		value = enc
	}
	return s.store.PutUserSetting(ctx, userID, name, value)
}

// Get returns the setting value. ok is false when the setting is absent or
// is a sensitive value that cannot be decrypted.
func (s *SettingsService) Get(ctx context.Context, userID, name string) (string, bool, error) {
	if err := validSettingKey(userID, name); err != nil {
		return "", false, err
	}
	setting, err := s.store.GetUserSetting(ctx, userID, name)
	if err != nil || setting == nil {
		return "", false, err
	}
	return s.reveal(ctx, userID, name, setting.Value)
}

// List returns every readable setting of the user.
func (s *SettingsService) List(ctx context.Context, userID string) (map[string]string, error) {
	settings, err := s.store.ListUserSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(settings))
	for _, setting := range settings {
		value, ok, err := s.reveal(ctx, userID, setting.Name, setting.Value)
		if err != nil {
			return nil, err
		}
		if ok {
			out[setting.Name] = value
		}
	}
	return out, nil
}

func (s *SettingsService) Delete(ctx context.Context, userID, name string) (bool, error) {
	if err := validSettingKey(userID, name); err != nil {
		return false, err
	}
	return s.store.DeleteUserSetting(ctx, userID, name)
}

func (s *SettingsService) reveal(ctx context.Context, userID, name, value string) (string, bool, error) {
	if !IsSensitiveSetting(name) {
		return value, true, nil
	}
	return s.crypto.DecryptForUser(ctx, userID, value)
}
