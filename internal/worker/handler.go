package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"socialsync/internal/cache"
	"socialsync/internal/logging"
	"socialsync/internal/metrics"
	"socialsync/internal/queue"
)

const (
	// backfillLimit is how many recent posts a new friend contributes
	backfillLimit = 20
	// removeLimit bounds the posts stripped from a timeline on unfriend
	removeLimit = 100
)

// FriendProvider abstracts the friend repository so workers don't depend
// on the store directly.
type FriendProvider interface {
	GetFriendIDs(ctx context.Context, userID string) ([]string, error)
}

// RecentPostsProvider returns (postID, timestamp) pairs for a user's posts.
type RecentPostsProvider interface {
	GetRecentPostsByUser(ctx context.Context, userID string, limit int) ([]cache.PostScore, error)
}

// PushDeliverer sends a push message for a notification or chat event.
type PushDeliverer interface {
	DeliverPush(ctx context.Context, event queue.Event) error
}

// Handler processes events from the social stream.
type Handler struct {
	timeline cache.TimelineCache
	friends  FriendProvider
	posts    RecentPostsProvider
	pusher   PushDeliverer // nil when push is disabled
}

// NewHandler creates a new event handler.
func NewHandler(
	timeline cache.TimelineCache,
	friends FriendProvider,
	posts RecentPostsProvider,
	pusher PushDeliverer,
) *Handler {
	return &Handler{
		timeline: timeline,
		friends:  friends,
		posts:    posts,
		pusher:   pusher,
	}
}

func (h *Handler) log() *logrus.Entry {
	return logging.For("Worker")
}

// HandleEvent routes an event to the matching handler.
func (h *Handler) HandleEvent(ctx context.Context, event queue.Event) error {
	startTime := time.Now()
	var err error

	switch event.Type {
	case queue.EventPostCreated:
		err = h.handlePostCreated(ctx, event)
	case queue.EventPostDeleted:
		err = h.handlePostDeleted(ctx, event)
	case queue.EventFriendshipCreated:
		err = h.handleFriendshipCreated(ctx, event)
	case queue.EventFriendshipRemoved:
		err = h.handleFriendshipRemoved(ctx, event)
	case queue.EventNotificationCreated, queue.EventMessageSent:
		err = h.handlePush(ctx, event)
	default:
		err = fmt.Errorf("unknown event type: %s", event.Type)
	}

	metrics.WorkerEvents.WithLabelValues(event.Type, metrics.Result(err)).Inc()
	log := h.log().WithFields(logrus.Fields{"type": event.Type, "duration": time.Since(startTime)})
	if err != nil {
		log.WithError(err).Error("HandleEvent FAILED")
		return err
	}
	log.Debug("HandleEvent OK")
	return nil
}

// handlePostCreated adds the post to the author's and every friend's timeline.
func (h *Handler) handlePostCreated(ctx context.Context, event queue.Event) error {
	friends, err := h.friends.GetFriendIDs(ctx, event.AuthorID)
	if err != nil {
		return fmt.Errorf("get friends: %w", err)
	}

	// Failures for one user don't stop the fan-out
	var failCount int
	for _, uid := range append(friends, event.AuthorID) {
		if err := h.timeline.AddPost(ctx, uid, event.PostID, event.Timestamp); err != nil {
			failCount++
		}
	}

	h.log().WithFields(logrus.Fields{
		"post": event.PostID, "fanout": len(friends) + 1, "failed": failCount,
	}).Info("PostCreated DONE")
	return nil
}

// handlePostDeleted removes the post from the same set of timelines.
func (h *Handler) handlePostDeleted(ctx context.Context, event queue.Event) error {
	friends, err := h.friends.GetFriendIDs(ctx, event.AuthorID)
	if err != nil {
		return fmt.Errorf("get friends: %w", err)
	}

	var failCount int
	for _, uid := range append(friends, event.AuthorID) {
		if err := h.timeline.RemovePost(ctx, uid, event.PostID); err != nil {
			failCount++
		}
	}

	h.log().WithFields(logrus.Fields{
		"post": event.PostID, "fanout": len(friends) + 1, "failed": failCount,
	}).Info("PostDeleted DONE")
	return nil
}

// handleFriendshipCreated backfills both timelines with the other side's recent posts.
func (h *Handler) handleFriendshipCreated(ctx context.Context, event queue.Event) error {
	if err := h.backfill(ctx, event.UserID, event.FriendID); err != nil {
		return err
	}
	return h.backfill(ctx, event.FriendID, event.UserID)
}

func (h *Handler) backfill(ctx context.Context, viewerID, authorID string) error {
	posts, err := h.posts.GetRecentPostsByUser(ctx, authorID, backfillLimit)
	if err != nil {
		return fmt.Errorf("get recent posts: %w", err)
	}
	if len(posts) == 0 {
		return nil
	}
	if err := h.timeline.Warm(ctx, viewerID, posts); err != nil {
		return fmt.Errorf("backfill timeline: %w", err)
	}

	h.log().WithFields(logrus.Fields{"viewer": viewerID, "author": authorID, "posts": len(posts)}).Info("Backfill DONE")
	return nil
}

// handleFriendshipRemoved strips each side's posts from the other's timeline.
func (h *Handler) handleFriendshipRemoved(ctx context.Context, event queue.Event) error {
	if err := h.strip(ctx, event.UserID, event.FriendID); err != nil {
		return err
	}
	return h.strip(ctx, event.FriendID, event.UserID)
}

func (h *Handler) strip(ctx context.Context, viewerID, authorID string) error {
	posts, err := h.posts.GetRecentPostsByUser(ctx, authorID, removeLimit)
	if err != nil {
		return fmt.Errorf("get posts to remove: %w", err)
	}

	var failCount int
	for _, p := range posts {
		if err := h.timeline.RemovePost(ctx, viewerID, p.PostID); err != nil {
			failCount++
		}
	}

	h.log().WithFields(logrus.Fields{
		"viewer": viewerID, "author": authorID, "removed": len(posts), "failed": failCount,
	}).Info("Strip DONE")
	return nil
}

func (h *Handler) handlePush(ctx context.Context, event queue.Event) error {
	if h.pusher == nil {
		return nil
	}
	return h.pusher.DeliverPush(ctx, event)
}
