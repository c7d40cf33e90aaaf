package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types carried on the social stream
const (
	EventPostCreated         = "post_created"
	EventPostDeleted         = "post_deleted"
	EventFriendshipCreated   = "friendship_created"
	EventFriendshipRemoved   = "friendship_removed"
	EventNotificationCreated = "notification_created"
	EventMessageSent         = "message_sent"
)

// Stream names
const (
	StreamSocial = "stream:social"
)

// Consumer group name for background workers
const (
	ConsumerGroupWorkers = "social_workers"
)

// Event is published to the social stream. Fields not used by a type are
// left empty.
type Event struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // Unix ms when the event occurred

	// Post events (PostCreated, PostDeleted)
	PostID   string `json:"post_id,omitempty"`
	AuthorID string `json:"author_id,omitempty"`

	// Friendship events: both directions are handled from one event
	UserID   string `json:"user_id,omitempty"`
	FriendID string `json:"friend_id,omitempty"`

	// Push events (NotificationCreated, MessageSent)
	RecipientID    string `json:"recipient_id,omitempty"`
	ActorID        string `json:"actor_id,omitempty"`
	ActorName      string `json:"actor_name,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
	NotifType      string `json:"notif_type,omitempty"`
	ChatID         string `json:"chat_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Preview        string `json:"preview,omitempty"`
}

// NewPostCreatedEvent is fanned out to the author's and friends' timelines.
// createdAt is the score the post gets in each timeline.
func NewPostCreatedEvent(postID, authorID string, createdAt int64) Event {
	return Event{
		Type:      EventPostCreated,
		Timestamp: createdAt,
		PostID:    postID,
		AuthorID:  authorID,
	}
}

// NewPostDeletedEvent removes the post from the same timelines.
func NewPostDeletedEvent(postID, authorID string) Event {
	return Event{
		Type:      EventPostDeleted,
		Timestamp: time.Now().UnixMilli(),
		PostID:    postID,
		AuthorID:  authorID,
	}
}

// NewFriendshipCreatedEvent backfills each user's timeline with the other's recent posts.
func NewFriendshipCreatedEvent(userID, friendID string) Event {
	return Event{
		Type:      EventFriendshipCreated,
		Timestamp: time.Now().UnixMilli(),
		UserID:    userID,
		FriendID:  friendID,
	}
}

// NewFriendshipRemovedEvent strips each user's posts from the other's timeline.
func NewFriendshipRemovedEvent(userID, friendID string) Event {
	return Event{
		Type:      EventFriendshipRemoved,
		Timestamp: time.Now().UnixMilli(),
		UserID:    userID,
		FriendID:  friendID,
	}
}

// NewNotificationCreatedEvent asks a worker to push a stored notification
// to the recipient's devices.
func NewNotificationCreatedEvent(recipientID, notificationID, notifType, actorID, actorName, preview string) Event {
	return Event{
		Type:           EventNotificationCreated,
		Timestamp:      time.Now().UnixMilli(),
		RecipientID:    recipientID,
		NotificationID: notificationID,
		NotifType:      notifType,
		ActorID:        actorID,
		ActorName:      actorName,
		Preview:        preview,
	}
}

// NewMessageSentEvent asks a worker to push a chat message to the receiver.
func NewMessageSentEvent(chatID, messageID, senderID, senderName, receiverID, preview string) Event {
	return Event{
		Type:        EventMessageSent,
		Timestamp:   time.Now().UnixMilli(),
		ChatID:      chatID,
		MessageID:   messageID,
		ActorID:     senderID,
		ActorName:   senderName,
		RecipientID: receiverID,
		Preview:     preview,
	}
}

// ToMap converts the event to a map for Redis XADD.
// Redis Streams store field-value pairs, so we serialize to JSON in a "data" field.
func (e Event) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseEvent parses an Event from Redis stream message values.
func ParseEvent(values map[string]interface{}) (Event, error) {
	data, ok := values["data"].(string)
	if !ok {
		return Event{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
