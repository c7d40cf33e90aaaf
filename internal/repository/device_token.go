package repository

import (
	"context"
	"fmt"
	"time"

	"socialsync/internal/model"
	"socialsync/internal/store"
)

type deviceTokenRecord struct {
	Token     string `json:"token"`
	Platform  string `json:"platform"`
	UpdatedAt int64  `json:"updatedAt"`
}

type deviceTokenRepository struct {
	store store.Store
}

func NewDeviceTokenRepository(s store.Store) DeviceTokenRepository {
	return &deviceTokenRepository{store: s}
}

// Upsert creates or refreshes deviceTokens/{uid}/{sha256(token)}.
func (r *deviceTokenRepository) Upsert(ctx context.Context, userID, token, platform string) error {
	rec := deviceTokenRecord{Token: token, Platform: platform, UpdatedAt: time.Now().UnixMilli()}
	if err := r.store.Set(ctx, store.Join(colDeviceTokens, userID, hashKey(token)), rec); err != nil {
		return fmt.Errorf("upsert device token: %w", err)
	}
	return nil
}

// GetByUserID returns all device tokens for a user.
func (r *deviceTokenRepository) GetByUserID(ctx context.Context, userID string) ([]model.DeviceToken, error) {
	snaps, err := r.store.List(ctx, store.Join(colDeviceTokens, userID), store.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("get device tokens: %w", err)
	}
	tokens := make([]model.DeviceToken, 0, len(snaps))
	for _, snap := range snaps {
		var rec deviceTokenRecord
		if err := snap.Decode(&rec); err != nil {
			continue
		}
		tokens = append(tokens, model.DeviceToken{
			UserID:    userID,
			Token:     rec.Token,
			Platform:  rec.Platform,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	return tokens, nil
}

// Delete removes a device token.
func (r *deviceTokenRepository) Delete(ctx context.Context, userID, token string) error {
	if err := r.store.Delete(ctx, store.Join(colDeviceTokens, userID, hashKey(token))); err != nil {
		return fmt.Errorf("delete device token: %w", err)
	}
	return nil
}
