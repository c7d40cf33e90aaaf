package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"socialsync/internal/model"
	"socialsync/internal/store"
)

type refreshTokenRecord struct {
	UserID     string `json:"userId"`
	ExpiresAt  int64  `json:"expiresAt"`
	CreatedAt  int64  `json:"createdAt"`
	RevokedAt  int64  `json:"revokedAt,omitempty"`
	ReplacedBy string `json:"replacedBy,omitempty"`
	DeviceInfo string `json:"deviceInfo,omitempty"`
	IPAddress  string `json:"ipAddress,omitempty"`
}

type refreshTokenRepository struct {
	store store.Store
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(s store.Store) RefreshTokenRepository {
	return &refreshTokenRepository{store: s}
}

// Create stores the token under its hash and adds it to the user's index
func (r *refreshTokenRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	if token.CreatedAt == 0 {
		token.CreatedAt = time.Now().UnixMilli()
	}
	rec := refreshTokenRecord{
		UserID:     token.UserID,
		ExpiresAt:  token.ExpiresAt,
		CreatedAt:  token.CreatedAt,
		DeviceInfo: token.DeviceInfo,
		IPAddress:  token.IPAddress,
	}
	if err := r.store.Set(ctx, store.Join(colRefreshTokens, token.TokenHash), rec); err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	idx := map[string]int64{"expiresAt": token.ExpiresAt}
	if err := r.store.Set(ctx, store.Join(colUserRefreshTokens, token.UserID, token.TokenHash), idx); err != nil {
		return fmt.Errorf("failed to index refresh token: %w", err)
	}
	return nil
}

// FindByTokenHash retrieves a refresh token by its hash
func (r *refreshTokenRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var rec refreshTokenRecord
	err := r.store.Get(ctx, store.Join(colRefreshTokens, tokenHash), &rec)
	if errors.Is(err, store.ErrNotFound) {
		return nil, model.ErrRefreshTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}
	return &model.RefreshToken{
		UserID:     rec.UserID,
		TokenHash:  tokenHash,
		ExpiresAt:  rec.ExpiresAt,
		CreatedAt:  rec.CreatedAt,
		RevokedAt:  rec.RevokedAt,
		ReplacedBy: rec.ReplacedBy,
		DeviceInfo: rec.DeviceInfo,
		IPAddress:  rec.IPAddress,
	}, nil
}

// Revoke marks a token as revoked, optionally linking to its replacement
func (r *refreshTokenRepository) Revoke(ctx context.Context, tokenHash string, replacedBy string) error {
	fields := map[string]any{"revokedAt": time.Now().UnixMilli()}
	if replacedBy != "" {
		fields["replacedBy"] = replacedBy
	}
	if err := r.store.Update(ctx, store.Join(colRefreshTokens, tokenHash), fields); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every token listed in the user's index
func (r *refreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	snaps, err := r.store.List(ctx, store.Join(colUserRefreshTokens, userID), store.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list refresh tokens: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, snap := range snaps {
		var rec refreshTokenRecord
		err := r.store.Get(ctx, store.Join(colRefreshTokens, snap.Key), &rec)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load refresh token: %w", err)
		}
		if rec.RevokedAt != 0 {
			continue
		}
		if err := r.store.Update(ctx, store.Join(colRefreshTokens, snap.Key), map[string]any{"revokedAt": now}); err != nil {
			return fmt.Errorf("failed to revoke all tokens: %w", err)
		}
	}
	return nil
}
