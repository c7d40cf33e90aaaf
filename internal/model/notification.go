package model

import (
	"errors"
)

// Notification types
const (
	NotificationTypeLike          = "like"
	NotificationTypeLaugh         = "laugh"
	NotificationTypeComment       = "comment"
	NotificationTypeShare         = "share"
	NotificationTypeFriendRequest = "friend_request"
	NotificationTypeFriendAccept  = "friend_accept"
)

// Notification is one entry of notifications/{recipientId}. Entries form an
// append-only log: removing a reaction does not retract the entry it caused.
type Notification struct {
	ID            string `json:"id"`
	RecipientID   string `json:"recipient_id"`
	Type          string `json:"type"`
	ActorID       string `json:"actor_id"`
	ActorName     string `json:"actor_name"`
	ActorPhotoURL string `json:"actor_photo_url,omitempty"`
	PostID        string `json:"post_id,omitempty"`
	Comment       string `json:"comment,omitempty"`
	Timestamp     int64  `json:"timestamp"`
	Read          bool   `json:"read"`
}

// NotificationExtra carries the optional fields of a notification.
type NotificationExtra struct {
	PostID  string
	Comment string
}

// NotificationListResponse is the notification list response, newest first.
type NotificationListResponse struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
	NextCursor    *string        `json:"next_cursor,omitempty"`
	HasMore       bool           `json:"has_more"`
}

// MarkReadRequest is the request body for marking notifications as read.
type MarkReadRequest struct {
	NotificationIDs []string `json:"notification_ids"`
}

// DeleteNotificationsRequest is the request body for DELETE /notifications.
type DeleteNotificationsRequest struct {
	NotificationIDs []string `json:"notification_ids"`
}

// DeleteNotificationsResponse tells the client whether the deletion was
// stored or only acknowledged, depending on the configured mode.
type DeleteNotificationsResponse struct {
	Mode      string   `json:"mode"`
	Persisted bool     `json:"persisted"`
	IDs       []string `json:"ids"`
}

// Activity kinds for the derived activity feed
const (
	ActivityLike    = "like"
	ActivityLaugh   = "laugh"
	ActivityComment = "comment"
)

// Activity is an entry of the activity view derived from reactions and
// comments other users left on the viewer's own posts.
type Activity struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	PostID        string `json:"post_id"`
	ActorID       string `json:"actor_id"`
	ActorName     string `json:"actor_name"`
	ActorPhotoURL string `json:"actor_photo_url,omitempty"`
	Comment       string `json:"comment,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}

// ActivityListResponse is returned by GET /notifications/activity.
type ActivityListResponse struct {
	Activities []Activity `json:"activities"`
}

// Notification errors
var (
	ErrNotificationNotFound = errors.New("notification not found")
)
