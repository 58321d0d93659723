package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/chirino/chat-store/internal/model"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
)

// ProviderView is the client view of a provider. The API key never leaves
// the service; callers only learn whether one is set.
type ProviderView struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	ProviderType string          `json:"providerType"`
	BaseURL      *string         `json:"baseUrl,omitempty"`
	HasAPIKey    bool            `json:"hasApiKey"`
	IsDefault    bool            `json:"isDefault"`
	Enabled      bool            `json:"enabled"`
	CreatedAt    model.Timestamp `json:"createdAt"`
	UpdatedAt    model.Timestamp `json:"updatedAt"`
}

func newProviderView(p *model.Provider) ProviderView {
	return ProviderView{
		ID:           p.ID,
		Name:         p.Name,
		ProviderType: p.ProviderType,
		BaseURL:      p.BaseURL,
		HasAPIKey:    p.APIKey != nil && *p.APIKey != "",
		IsDefault:    p.IsDefault,
		Enabled:      p.Enabled,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// NewProvider is the input for ProviderService.Create. Enabled defaults to true.
type NewProvider struct {
	Name         string
	ProviderType string
	BaseURL      *string
	APIKey       string
	IsDefault    bool
	Enabled      *bool
}

// ProviderService manages per-user LLM provider credentials.
type ProviderService struct {
	store  registrystore.ProviderStore
	crypto Crypto
}

// NewProviderService creates a provider service.
func NewProviderService(store registrystore.ProviderStore, crypto Crypto) *ProviderService {
	return &ProviderService{store: store, crypto: crypto}
}

func (s *ProviderService) Create(ctx context.Context, userID string, in NewProvider) (*ProviderView, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, &registrystore.InvalidArgumentError{Field: "name", Message: "is required"}
	}
	if strings.TrimSpace(in.ProviderType) == "" {
		return nil, &registrystore.InvalidArgumentError{Field: "providerType", Message: "is required"}
	}
	key, err := s.sealKey(ctx, userID, in.APIKey)
	if err != nil {
		return nil, err
	}
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	p, err := s.store.CreateProvider(ctx, &model.Provider{
		UserID:       userID,
		Name:         strings.TrimSpace(in.Name),
		ProviderType: in.ProviderType,
		BaseURL:      in.BaseURL,
		APIKey:       key,
		IsDefault:    in.IsDefault,
		Enabled:      enabled,
	})
	if err != nil {
		return nil, err
	}
	view := newProviderView(p)
	return &view, nil
}

func (s *ProviderService) Get(ctx context.Context, userID, providerID string) (*ProviderView, error) {
	p, err := s.store.GetProvider(ctx, userID, providerID)
	if err != nil || p == nil {
		return nil, err
	}
	view := newProviderView(p)
	return &view, nil
}

func (s *ProviderService) List(ctx context.Context, userID string) ([]ProviderView, error) {
	providers, err := s.store.ListProviders(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]ProviderView, len(providers))
	for i := range providers {
		views[i] = newProviderView(&providers[i])
	}
	return views, nil
}

// APIKey returns the decrypted key for use by a provider client. ok is false
// when no key is set or it cannot be decrypted.
func (s *ProviderService) APIKey(ctx context.Context, userID, providerID string) (string, bool, error) {
	p, err := s.store.GetProvider(ctx, userID, providerID)
	if err != nil {
		return "", false, err
	}
	if p == nil {
		return "", false, &registrystore.NotFoundError{Resource: "provider", ID: providerID}
	}
	if p.APIKey == nil || *p.APIKey == "" {
		return "", false, nil
	}
	return s.crypto.DecryptForUser(ctx, userID, *p.APIKey)
}

// UpdateAPIKey replaces the stored key. An empty key clears it.
func (s *ProviderService) UpdateAPIKey(ctx context.Context, userID, providerID, apiKey string) (bool, error) {
	key, err := s.sealKey(ctx, userID, apiKey)
	if err != nil {
		return false, err
	}
	return s.store.UpdateProviderAPIKey(ctx, userID, providerID, key)
}

func (s *ProviderService) SetDefault(ctx context.Context, userID, providerID string) (bool, error) {
	return s.store.SetDefaultProvider(ctx, userID, providerID)
}

func (s *ProviderService) Delete(ctx context.Context, userID, providerID string) (bool, error) {
	return s.store.DeleteProvider(ctx, userID, providerID)
}

func (s *ProviderService) sealKey(ctx context.Context, userID, apiKey string) (*string, error) {
	if apiKey == "" {
		return nil, nil
	}
	enc, err := s.crypto.EncryptForUser(ctx, userID, apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt provider api key: %w", err)
	}
	return &enc, nil
}
