package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"socialsync/internal/model"
	"socialsync/internal/store"
)

// userRecord is the stored shape of users/{uid}.
type userRecord struct {
	DisplayName string `json:"displayName"`
	LastName    string `json:"lastName,omitempty"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photoURL,omitempty"`
	Birthday    string `json:"birthday,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
}

func (r userRecord) toModel(id string) *model.User {
	return &model.User{
		ID:          id,
		Email:       r.Email,
		Username:    r.Username,
		DisplayName: r.DisplayName,
		LastName:    r.LastName,
		PhotoURL:    r.PhotoURL,
		Birthday:    r.Birthday,
		PhoneNumber: r.PhoneNumber,
		CreatedAt:   r.CreatedAt,
	}
}

type usernameRecord struct {
	UID string `json:"uid"`
}

// userRepository implements UserRepository on the document store
type userRepository struct {
	store store.Store
}

// NewUserRepository creates a new user repository
func NewUserRepository(s store.Store) UserRepository {
	return &userRepository{store: s}
}

// Create writes the profile at users/{uid}
func (r *userRepository) Create(ctx context.Context, u *model.User) error {
	rec := userRecord{
		DisplayName: u.DisplayName,
		LastName:    u.LastName,
		Username:    u.Username,
		Email:       u.Email,
		PhotoURL:    u.PhotoURL,
		Birthday:    u.Birthday,
		PhoneNumber: u.PhoneNumber,
		CreatedAt:   u.CreatedAt,
	}
	if err := r.store.Set(ctx, store.Join(colUsers, u.ID), rec); err != nil {
		return fmt.Errorf("failed to write user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var rec userRecord
	err := r.store.Get(ctx, store.Join(colUsers, id), &rec)
	if errors.Is(err, store.ErrNotFound) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return rec.toModel(id), nil
}

// GetSummaries loads the compact profile of each id. Unknown ids are skipped.
func (r *userRepository) GetSummaries(ctx context.Context, ids []string) (map[string]model.UserSummary, error) {
	out := make(map[string]model.UserSummary, len(ids))
	for _, id := range ids {
		if _, done := out[id]; done {
			continue
		}
		u, err := r.GetByID(ctx, id)
		if errors.Is(err, model.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = u.Summary()
	}
	return out, nil
}

// UpdateProfile merges the non-nil request fields into users/{uid}
func (r *userRepository) UpdateProfile(ctx context.Context, id string, req model.UpdateProfileRequest) error {
	fields := map[string]any{}
	set := func(name string, v *string) {
		if v != nil {
			fields[name] = strings.TrimSpace(*v)
		}
	}
	set("username", req.Username)
	set("displayName", req.DisplayName)
	set("lastName", req.LastName)
	set("birthday", req.Birthday)
	set("phoneNumber", req.PhoneNumber)
	set("photoURL", req.PhotoURL)
	if len(fields) == 0 {
		return nil
	}
	if err := r.store.Update(ctx, store.Join(colUsers, id), fields); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// ReserveUsername claims usernames/{hash(lower(username))} for uid.
func (r *userRepository) ReserveUsername(ctx context.Context, uid, username string) error {
	path := store.Join(colUsernames, hashKey(normalizeUsername(username)))

	var rec usernameRecord
	err := r.store.Get(ctx, path, &rec)
	switch {
	case err == nil && rec.UID != uid:
		return model.ErrUsernameExists
	case err == nil:
		return nil
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("failed to check username: %w", err)
	}

	if err := r.store.Set(ctx, path, usernameRecord{UID: uid}); err != nil {
		return fmt.Errorf("failed to reserve username: %w", err)
	}
	return nil
}

// ReleaseUsername frees a username after a rename.
func (r *userRepository) ReleaseUsername(ctx context.Context, username string) error {
	if err := r.store.Delete(ctx, store.Join(colUsernames, hashKey(normalizeUsername(username)))); err != nil {
		return fmt.Errorf("failed to release username: %w", err)
	}
	return nil
}

// ExistsByUsername checks if a username is already taken
func (r *userRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	ok, err := r.store.Exists(ctx, store.Join(colUsernames, hashKey(normalizeUsername(username))))
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return ok, nil
}

// Search returns users whose username or display name starts with query,
// case-insensitive, ordered by username.
func (r *userRepository) Search(ctx context.Context, query string, limit int) ([]model.UserSummary, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []model.UserSummary{}, nil
	}

	snaps, err := r.store.List(ctx, colUsers, store.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}

	users := []model.UserSummary{}
	for _, snap := range snaps {
		var rec userRecord
		if err := snap.Decode(&rec); err != nil {
			continue
		}
		if strings.HasPrefix(strings.ToLower(rec.Username), q) ||
			strings.HasPrefix(strings.ToLower(rec.DisplayName), q) {
			users = append(users, rec.toModel(snap.Key).Summary())
		}
	}

	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}
