package repository

import (
	"context"
	"errors"
	"fmt"

	"socialsync/internal/model"
	"socialsync/internal/store"
)

type credentialRecord struct {
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
}

type emailRecord struct {
	UID string `json:"uid"`
}

// credentialRepository keeps password hashes apart from the public profile.
// credentials/{uid} holds the hash, emails/{sha256(email)} maps back to uid.
type credentialRepository struct {
	store store.Store
}

func NewCredentialRepository(s store.Store) CredentialRepository {
	return &credentialRepository{store: s}
}

// Create writes the credential record and then the email index.
func (r *credentialRepository) Create(ctx context.Context, uid, email, passwordHash string) error {
	email = normalizeEmail(email)
	if err := r.store.Set(ctx, store.Join(colCredentials, uid), credentialRecord{Email: email, PasswordHash: passwordHash}); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := r.store.Set(ctx, store.Join(colEmails, hashKey(email)), emailRecord{UID: uid}); err != nil {
		return fmt.Errorf("failed to write email index: %w", err)
	}
	return nil
}

func (r *credentialRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	ok, err := r.store.Exists(ctx, store.Join(colEmails, hashKey(normalizeEmail(email))))
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return ok, nil
}

// GetUIDByEmail returns ErrUserNotFound for unknown emails.
func (r *credentialRepository) GetUIDByEmail(ctx context.Context, email string) (string, error) {
	var rec emailRecord
	err := r.store.Get(ctx, store.Join(colEmails, hashKey(normalizeEmail(email))), &rec)
	if errors.Is(err, store.ErrNotFound) {
		return "", model.ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up email: %w", err)
	}
	return rec.UID, nil
}

func (r *credentialRepository) GetPasswordHash(ctx context.Context, uid string) (string, error) {
	var rec credentialRecord
	err := r.store.Get(ctx, store.Join(colCredentials, uid), &rec)
	if errors.Is(err, store.ErrNotFound) {
		return "", model.ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get credentials: %w", err)
	}
	return rec.PasswordHash, nil
}

func (r *credentialRepository) UpdatePasswordHash(ctx context.Context, uid, passwordHash string) error {
	if err := r.store.Update(ctx, store.Join(colCredentials, uid), map[string]any{"passwordHash": passwordHash}); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}
