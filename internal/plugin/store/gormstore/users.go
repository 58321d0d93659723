package gormstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/chirino/chat-store/internal/model"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
)

func (s *Store) CreateUser(ctx context.Context, in registrystore.NewUser) (*model.User, error) {
	now := model.Now()
	user := model.User{
		ID:          strings.TrimSpace(in.ID),
		Email:       in.Email,
		DisplayName: in.DisplayName,
		DEKVersion:  1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, &registrystore.ConflictError{Message: "user already exists", Code: registrystore.CodeDuplicateKey}
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var users []model.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).Limit(1).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

func (s *Store) CreateSession(ctx context.Context, sessionID string) (*model.Session, error) {
	now := model.Now()
	session := model.Session{ID: strings.TrimSpace(sessionID), CreatedAt: now, LastSeenAt: now}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, &registrystore.ConflictError{Message: "session already exists", Code: registrystore.CodeDuplicateKey}
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &session, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	var sessions []model.Session
	if err := s.db.WithContext(ctx).Where("id = ?", sessionID).Limit(1).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

func (s *Store) TouchSession(ctx context.Context, sessionID string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ?", sessionID).
		Update("last_seen_at", model.Now())
	if result.Error != nil {
		return false, fmt.Errorf("failed to touch session: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GetUserDEK returns the wrapped DEK and its version. The DEK is nil when the
// user has none yet; an unknown user is a NotFoundError.
func (s *Store) GetUserDEK(ctx context.Context, userID string) ([]byte, int, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, 0, &registrystore.InvalidArgumentError{Field: "userId", Message: "is required"}
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if user == nil {
		return nil, 0, &registrystore.NotFoundError{Resource: "user", ID: userID}
	}
	if len(user.EncryptedDEK) == 0 {
		return nil, user.DEKVersion, nil
	}
	return user.EncryptedDEK, user.DEKVersion, nil
}

// StoreUserDEKIfAbsent writes the wrapped DEK only when the user has none, so
// of two concurrent creators exactly one wins.
func (s *Store) StoreUserDEKIfAbsent(ctx context.Context, userID string, wrapped []byte, version int) (bool, error) {
	now := model.Now()
	result := s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND encrypted_dek IS NULL", userID).
		Updates(map[string]any{
			"encrypted_dek":  wrapped,
			"dek_created_at": now,
			"dek_version":    version,
			"updated_at":     now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to store user DEK: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, &registrystore.NotFoundError{Resource: "user", ID: userID}
	}
	return false, nil
}
