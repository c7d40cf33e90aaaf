package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"socialsync/internal/config"
	"socialsync/internal/logging"
	"socialsync/internal/metrics"
	"socialsync/internal/model"
	"socialsync/internal/queue"
	"socialsync/internal/repository"
	"socialsync/internal/store"
)

// Notifier appends entries to a recipient's notification log.
type Notifier interface {
	Emit(ctx context.Context, recipientID string, actor model.Identity, notifType string, extra model.NotificationExtra) error
}

// activityPostLimit bounds how many of the viewer's posts the activity view scans.
const activityPostLimit = 50

// NotificationService manages the notification log, device tokens and push
// delivery. Push is sent by workers from the notification_created event so
// the request that caused the notification never waits on a push provider.
type NotificationService struct {
	notifRepo  repository.NotificationRepository
	tokenRepo  repository.DeviceTokenRepository
	postRepo   repository.PostRepository
	publisher  queue.Publisher // nil when no queue is configured
	pusher     PushSender      // nil when push is disabled
	deleteMode string
	now        func() time.Time
}

func NewNotificationService(
	notifRepo repository.NotificationRepository,
	tokenRepo repository.DeviceTokenRepository,
	postRepo repository.PostRepository,
	publisher queue.Publisher,
	pusher PushSender,
	deleteMode string,
) *NotificationService {
	if deleteMode == "" {
		deleteMode = config.NotificationDeletePersist
	}
	return &NotificationService{
		notifRepo:  notifRepo,
		tokenRepo:  tokenRepo,
		postRepo:   postRepo,
		publisher:  publisher,
		pusher:     pusher,
		deleteMode: deleteMode,
		now:        time.Now,
	}
}

func (s *NotificationService) log() *logrus.Entry {
	return logging.For("NotificationService")
}

// Emit writes one notification. Nothing is written when the actor is the
// recipient. Entries are never retracted.
func (s *NotificationService) Emit(ctx context.Context, recipientID string, actor model.Identity, notifType string, extra model.NotificationExtra) error {
	if recipientID == "" || recipientID == actor.UID {
		return nil
	}

	n := &model.Notification{
		RecipientID:   recipientID,
		Type:          notifType,
		ActorID:       actor.UID,
		ActorName:     actor.DisplayName,
		ActorPhotoURL: actor.PhotoURL,
		PostID:        extra.PostID,
		Comment:       extra.Comment,
		Timestamp:     s.now().UnixMilli(),
	}

	id, err := s.notifRepo.Create(ctx, n)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	metrics.NotificationsEmitted.WithLabelValues(notifType).Inc()

	if s.publisher != nil {
		event := queue.NewNotificationCreatedEvent(recipientID, id, notifType, actor.UID, actor.DisplayName, extra.Comment)
		if _, err := s.publisher.Publish(ctx, queue.StreamSocial, event); err != nil {
			s.log().WithError(err).WithField("notification_id", id).Warn("Publish NotificationCreated FAILED")
		}
	}

	return nil
}

// List returns a page of notifications newest first with the unread badge count.
func (s *NotificationService) List(ctx context.Context, userID string, limit int, before string) (*model.NotificationListResponse, error) {
	limit = model.ClampLimit(limit)

	items, err := s.notifRepo.List(ctx, userID, limit+1, before)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor *string
	if hasMore && len(items) > 0 {
		c := items[len(items)-1].ID
		nextCursor = &c
	}

	unread, err := s.notifRepo.GetUnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &model.NotificationListResponse{
		Notifications: items,
		UnreadCount:   unread,
		NextCursor:    nextCursor,
		HasMore:       hasMore,
	}, nil
}

// MarkAsRead marks specific notifications as read.
func (s *NotificationService) MarkAsRead(ctx context.Context, userID string, notificationIDs []string) error {
	return s.notifRepo.MarkAsRead(ctx, userID, notificationIDs)
}

// MarkAllAsRead marks all notifications for a user as read.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID string) error {
	return s.notifRepo.MarkAllAsRead(ctx, userID)
}

// GetUnreadCount returns the number of unread notifications (for badge display).
func (s *NotificationService) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	return s.notifRepo.GetUnreadCount(ctx, userID)
}

// Delete removes notifications in persist mode. In acknowledge mode the
// store is left untouched and the ids are only echoed back, so the client
// hides them for the current session.
func (s *NotificationService) Delete(ctx context.Context, userID string, ids []string) (*model.DeleteNotificationsResponse, error) {
	resp := &model.DeleteNotificationsResponse{Mode: s.deleteMode, IDs: ids}
	if resp.IDs == nil {
		resp.IDs = []string{}
	}
	for _, id := range ids {
		if err := store.ValidateKey(id); err != nil {
			return nil, fmt.Errorf("notification id: %w", err)
		}
	}
	if s.deleteMode != config.NotificationDeletePersist {
		return resp, nil
	}
	if err := s.notifRepo.Delete(ctx, userID, ids); err != nil {
		return nil, err
	}
	resp.Persisted = true
	return resp, nil
}

// Activity derives the "what happened on my posts" view from the reaction
// sets and comments of the viewer's own posts, newest first.
func (s *NotificationService) Activity(ctx context.Context, userID string) (*model.ActivityListResponse, error) {
	posts, err := s.postRepo.ListByUser(ctx, userID, activityPostLimit, "")
	if err != nil {
		return nil, err
	}

	activities := []model.Activity{}
	for _, p := range posts {
		if p.AuthorID != userID || p.SharedBy != nil {
			continue
		}
		for uid, info := range p.Likes {
			if uid == userID {
				continue
			}
			activities = append(activities, reactionActivity(p.ID, model.ActivityLike, uid, info))
		}
		for uid, info := range p.Laughs {
			if uid == userID {
				continue
			}
			activities = append(activities, reactionActivity(p.ID, model.ActivityLaugh, uid, info))
		}
		for _, c := range p.Comments {
			if c.AuthorID == userID {
				continue
			}
			activities = append(activities, model.Activity{
				ID:            p.ID + "_comment_" + c.ID,
				Type:          model.ActivityComment,
				PostID:        p.ID,
				ActorID:       c.AuthorID,
				ActorName:     c.Username,
				ActorPhotoURL: c.UserPhotoURL,
				Comment:       c.Text,
				Timestamp:     c.CreatedAt,
			})
		}
	}

	sort.SliceStable(activities, func(i, j int) bool {
		if activities[i].Timestamp != activities[j].Timestamp {
			return activities[i].Timestamp > activities[j].Timestamp
		}
		return activities[i].ID < activities[j].ID
	})

	return &model.ActivityListResponse{Activities: activities}, nil
}

func reactionActivity(postID, kind, uid string, info model.ReactionInfo) model.Activity {
	return model.Activity{
		ID:            postID + "_" + kind + "_" + uid,
		Type:          kind,
		PostID:        postID,
		ActorID:       uid,
		ActorName:     info.Username,
		ActorPhotoURL: info.UserPhotoURL,
		Timestamp:     info.Timestamp,
	}
}

// RegisterDeviceToken stores or refreshes a device's push token.
func (s *NotificationService) RegisterDeviceToken(ctx context.Context, userID, token, platform string) error {
	return s.tokenRepo.Upsert(ctx, userID, strings.TrimSpace(token), platform)
}

// RemoveDeviceToken removes a device token (e.g., on logout).
func (s *NotificationService) RemoveDeviceToken(ctx context.Context, userID, token string) error {
	return s.tokenRepo.Delete(ctx, userID, strings.TrimSpace(token))
}

// DeliverPush sends the push message for a notification or chat event to
// all of the recipient's devices. Called by workers.
func (s *NotificationService) DeliverPush(ctx context.Context, event queue.Event) error {
	if s.pusher == nil {
		return nil
	}

	tokens, err := s.tokenRepo.GetByUserID(ctx, event.RecipientID)
	if err != nil {
		return fmt.Errorf("get device tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	tokenStrings := make([]string, len(tokens))
	for i, t := range tokens {
		tokenStrings[i] = t.Token
	}

	title, body := buildPushMessage(event)
	data := map[string]string{
		"type":     event.Type,
		"actor_id": event.ActorID,
	}
	switch event.Type {
	case queue.EventNotificationCreated:
		data["notification_id"] = event.NotificationID
		data["notif_type"] = event.NotifType
	case queue.EventMessageSent:
		data["chat_id"] = event.ChatID
		data["message_id"] = event.MessageID
	}

	err = s.pusher.SendToTokens(ctx, tokenStrings, title, body, data)
	metrics.PushDeliveries.WithLabelValues(s.pusher.Provider(), metrics.Result(err)).Inc()
	if err != nil {
		s.log().WithError(err).WithField("recipient_id", event.RecipientID).Error("DeliverPush FAILED")
		return err
	}
	return nil
}

// buildPushMessage creates the title and body for a push notification.
func buildPushMessage(event queue.Event) (title, body string) {
	actor := event.ActorName
	if actor == "" {
		actor = "Someone"
	}
	if event.Type == queue.EventMessageSent {
		return actor, event.Preview
	}

	switch event.NotifType {
	case model.NotificationTypeLike:
		title = "New Like"
		body = actor + " liked your post"
	case model.NotificationTypeLaugh:
		title = "New Reaction"
		body = actor + " laughed at your post"
	case model.NotificationTypeComment:
		title = "New Comment"
		body = actor + " commented: " + event.Preview
	case model.NotificationTypeShare:
		title = "New Share"
		body = actor + " shared your post"
	case model.NotificationTypeFriendRequest:
		title = "Friend Request"
		body = actor + " sent you a friend request"
	case model.NotificationTypeFriendAccept:
		title = "Friend Request Accepted"
		body = actor + " accepted your friend request"
	default:
		title = "socialsync"
		body = "You have a new notification"
	}
	return
}
