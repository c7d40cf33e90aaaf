package repository

import (
	"context"
	"errors"
	"fmt"

	"socialsync/internal/model"
	"socialsync/internal/store"
)

type friendRequestRecord struct {
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
	RequestDate string `json:"requestDate"`
}

type friendRecord struct {
	Since int64 `json:"since"`
}

type friendRepository struct {
	store store.Store
}

func NewFriendRepository(s store.Store) FriendRepository {
	return &friendRepository{store: s}
}

// CreateRequest writes friendRequests/{recipient}/{requester}.
func (r *friendRepository) CreateRequest(ctx context.Context, req *model.FriendRequest) error {
	rec := friendRequestRecord{DisplayName: req.DisplayName, PhotoURL: req.PhotoURL, RequestDate: req.RequestDate}
	if err := r.store.Set(ctx, store.Join(FriendRequestsPath(req.RecipientID), req.RequesterID), rec); err != nil {
		return fmt.Errorf("create friend request: %w", err)
	}
	return nil
}

func (r *friendRepository) GetRequest(ctx context.Context, recipientID, requesterID string) (*model.FriendRequest, error) {
	var rec friendRequestRecord
	err := r.store.Get(ctx, store.Join(FriendRequestsPath(recipientID), requesterID), &rec)
	if errors.Is(err, store.ErrNotFound) {
		return nil, model.ErrFriendRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get friend request: %w", err)
	}
	return &model.FriendRequest{
		RequesterID: requesterID,
		RecipientID: recipientID,
		DisplayName: rec.DisplayName,
		PhotoURL:    rec.PhotoURL,
		RequestDate: rec.RequestDate,
	}, nil
}

func (r *friendRepository) RequestExists(ctx context.Context, recipientID, requesterID string) (bool, error) {
	ok, err := r.store.Exists(ctx, store.Join(FriendRequestsPath(recipientID), requesterID))
	if err != nil {
		return false, fmt.Errorf("check friend request: %w", err)
	}
	return ok, nil
}

func (r *friendRepository) DeleteRequest(ctx context.Context, recipientID, requesterID string) error {
	if err := r.store.Delete(ctx, store.Join(FriendRequestsPath(recipientID), requesterID)); err != nil {
		return fmt.Errorf("delete friend request: %w", err)
	}
	return nil
}

// ListRequests returns the pending requests addressed to recipientID.
func (r *friendRepository) ListRequests(ctx context.Context, recipientID string) ([]model.FriendRequest, error) {
	snaps, err := r.store.List(ctx, FriendRequestsPath(recipientID), store.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list friend requests: %w", err)
	}
	out := make([]model.FriendRequest, 0, len(snaps))
	for _, snap := range snaps {
		var rec friendRequestRecord
		if err := snap.Decode(&rec); err != nil {
			continue
		}
		out = append(out, model.FriendRequest{
			RequesterID: snap.Key,
			RecipientID: recipientID,
			DisplayName: rec.DisplayName,
			PhotoURL:    rec.PhotoURL,
			RequestDate: rec.RequestDate,
		})
	}
	return out, nil
}

func (r *friendRepository) AddFriend(ctx context.Context, userID, otherID string, since int64) error {
	if err := r.store.Set(ctx, store.Join(FriendsPath(userID), otherID), friendRecord{Since: since}); err != nil {
		return fmt.Errorf("add friend: %w", err)
	}
	return nil
}

func (r *friendRepository) RemoveFriend(ctx context.Context, userID, otherID string) error {
	if err := r.store.Delete(ctx, store.Join(FriendsPath(userID), otherID)); err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	return nil
}

func (r *friendRepository) AreFriends(ctx context.Context, userID, otherID string) (bool, error) {
	ok, err := r.store.Exists(ctx, store.Join(FriendsPath(userID), otherID))
	if err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	return ok, nil
}

func (r *friendRepository) ListFriends(ctx context.Context, userID string) ([]FriendEdge, error) {
	snaps, err := r.store.List(ctx, FriendsPath(userID), store.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	out := make([]FriendEdge, 0, len(snaps))
	for _, snap := range snaps {
		var rec friendRecord
		if err := snap.Decode(&rec); err != nil {
			continue
		}
		out = append(out, FriendEdge{UserID: snap.Key, Since: rec.Since})
	}
	return out, nil
}

// GetFriendIDs is the id-only view used by timeline fan-out.
func (r *friendRepository) GetFriendIDs(ctx context.Context, userID string) ([]string, error) {
	edges, err := r.ListFriends(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(edges))
	for i, e := range edges {
		ids[i] = e.UserID
	}
	return ids, nil
}
