package repository

import (
	"context"
	"errors"
	"fmt"

	"socialsync/internal/model"
	"socialsync/internal/store"
)

type notificationRecord struct {
	Type          string `json:"type"`
	ActorID       string `json:"actorId"`
	ActorName     string `json:"actorName"`
	ActorPhotoURL string `json:"actorPhotoURL,omitempty"`
	PostID        string `json:"postId,omitempty"`
	Comment       string `json:"comment,omitempty"`
	Timestamp     int64  `json:"timestamp"`
	Read          bool   `json:"read"`
}

func (r notificationRecord) toModel(recipientID, id string) model.Notification {
	return model.Notification{
		ID:            id,
		RecipientID:   recipientID,
		Type:          r.Type,
		ActorID:       r.ActorID,
		ActorName:     r.ActorName,
		ActorPhotoURL: r.ActorPhotoURL,
		PostID:        r.PostID,
		Comment:       r.Comment,
		Timestamp:     r.Timestamp,
		Read:          r.Read,
	}
}

type notificationRepository struct {
	store store.Store
}

// DecodeNotification builds a notification from a change event on
// notifications/{recipientId}.
func DecodeNotification(ev store.Event) (model.Notification, error) {
	var rec notificationRecord
	if err := ev.Decode(&rec); err != nil {
		return model.Notification{}, err
	}
	return rec.toModel(store.Base(ev.Parent), ev.Key), nil
}

func NewNotificationRepository(s store.Store) NotificationRepository {
	return &notificationRepository{store: s}
}

// Create appends a notification to the recipient's log.
func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) (string, error) {
	rec := notificationRecord{
		Type:          n.Type,
		ActorID:       n.ActorID,
		ActorName:     n.ActorName,
		ActorPhotoURL: n.ActorPhotoURL,
		PostID:        n.PostID,
		Comment:       n.Comment,
		Timestamp:     n.Timestamp,
		Read:          n.Read,
	}
	id, err := r.store.Push(ctx, NotificationsPath(n.RecipientID), rec)
	if err != nil {
		return "", fmt.Errorf("insert notification: %w", err)
	}
	n.ID = id
	return id, nil
}

func (r *notificationRepository) GetByID(ctx context.Context, userID, notificationID string) (*model.Notification, error) {
	var rec notificationRecord
	err := r.store.Get(ctx, store.Join(NotificationsPath(userID), notificationID), &rec)
	if errors.Is(err, store.ErrNotFound) {
		return nil, model.ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	n := rec.toModel(userID, notificationID)
	return &n, nil
}

func (r *notificationRepository) List(ctx context.Context, userID string, limit int, before string) ([]model.Notification, error) {
	snaps, err := r.store.List(ctx, NotificationsPath(userID), store.ListOptions{Limit: limit, Before: before, Descending: true})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]model.Notification, 0, len(snaps))
	for _, snap := range snaps {
		var rec notificationRecord
		if err := snap.Decode(&rec); err != nil {
			continue
		}
		out = append(out, rec.toModel(userID, snap.Key))
	}
	return out, nil
}

func (r *notificationRepository) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	snaps, err := r.store.List(ctx, NotificationsPath(userID), store.ListOptions{})
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	count := 0
	for _, snap := range snaps {
		var rec notificationRecord
		if err := snap.Decode(&rec); err == nil && !rec.Read {
			count++
		}
	}
	return count, nil
}

// notificationPaths resolves ids to their paths, failing before any write
// when one of them is not a single valid key. Join drops empty segments, so
// an unchecked "" would address the whole log.
func notificationPaths(userID string, ids []string) ([]string, error) {
	paths := make([]string, len(ids))
	for i, id := range ids {
		if err := store.ValidateKey(id); err != nil {
			return nil, fmt.Errorf("notification id: %w", err)
		}
		paths[i] = store.Join(NotificationsPath(userID), id)
	}
	return paths, nil
}

// MarkAsRead flags the given notifications. Unknown ids are ignored rather
// than recreated as empty nodes.
func (r *notificationRepository) MarkAsRead(ctx context.Context, userID string, notificationIDs []string) error {
	paths, err := notificationPaths(userID, notificationIDs)
	if err != nil {
		return err
	}
	for _, path := range paths {
		ok, err := r.store.Exists(ctx, path)
		if err != nil {
			return fmt.Errorf("mark notification read: %w", err)
		}
		if !ok {
			continue
		}
		if err := r.store.Update(ctx, path, map[string]any{"read": true}); err != nil {
			return fmt.Errorf("mark notification read: %w", err)
		}
	}
	return nil
}

func (r *notificationRepository) MarkAllAsRead(ctx context.Context, userID string) error {
	snaps, err := r.store.List(ctx, NotificationsPath(userID), store.ListOptions{})
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	for _, snap := range snaps {
		var rec notificationRecord
		if err := snap.Decode(&rec); err != nil || rec.Read {
			continue
		}
		if err := r.store.Update(ctx, snap.Path, map[string]any{"read": true}); err != nil {
			return fmt.Errorf("mark all notifications read: %w", err)
		}
	}
	return nil
}

func (r *notificationRepository) Delete(ctx context.Context, userID string, notificationIDs []string) error {
	paths, err := notificationPaths(userID, notificationIDs)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := r.store.Delete(ctx, path); err != nil {
			return fmt.Errorf("delete notification: %w", err)
		}
	}
	return nil
}
