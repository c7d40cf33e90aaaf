package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"socialsync/internal/logging"
	"socialsync/internal/metrics"
	"socialsync/internal/model"
	"socialsync/internal/queue"
	"socialsync/internal/repository"
)

type PostService struct {
	postRepo  repository.PostRepository
	notifier  Notifier
	publisher queue.Publisher // nil when no queue is configured
	now       func() time.Time
}

func NewPostService(
	postRepo repository.PostRepository,
	notifier Notifier,
	publisher queue.Publisher,
) *PostService {
	return &PostService{
		postRepo:  postRepo,
		notifier:  notifier,
		publisher: publisher,
		now:       time.Now,
	}
}

func (s *PostService) log() *logrus.Entry {
	return logging.For("PostService")
}

// owner is the user a post copy belongs to: the sharer for shares, the
// author otherwise. It is also the user whose index lists the post.
func owner(p *model.Post) string {
	if p.SharedBy != nil {
		return p.SharedBy.UserID
	}
	return p.AuthorID
}

// Create creates a new post and publishes an event for timeline fan-out.
func (s *PostService) Create(ctx context.Context, actor model.Identity, req model.CreatePostRequest) (*model.Post, error) {
	text := strings.TrimSpace(req.Text)
	var imageURL *string
	if req.ImageURL != nil && strings.TrimSpace(*req.ImageURL) != "" {
		u := strings.TrimSpace(*req.ImageURL)
		imageURL = &u
	}
	if text == "" && imageURL == nil {
		return nil, model.ErrEmptyPost
	}
	if len([]rune(text)) > model.MaxPostTextLength {
		return nil, model.ErrPostTextTooLong
	}

	post := &model.Post{
		AuthorID:       actor.UID,
		AuthorName:     actor.DisplayName,
		AuthorPhotoURL: actor.PhotoURL,
		Text:           text,
		ImageURL:       imageURL,
		CreatedAt:      s.now().UnixMilli(),
	}

	post, err := s.postRepo.Create(ctx, post, actor.UID)
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	post.ComputeDerived(actor.UID)
	metrics.Interactions.WithLabelValues("post_created").Inc()

	s.publish(ctx, queue.NewPostCreatedEvent(post.ID, actor.UID, post.CreatedAt))
	return post, nil
}

// Get retrieves a single post with counts and viewer flags.
func (s *PostService) Get(ctx context.Context, postID, viewerID string) (*model.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	post.ComputeDerived(viewerID)
	return post, nil
}

// ListRecent is the global feed, newest first. before is the last post id
// of the previous page.
func (s *PostService) ListRecent(ctx context.Context, viewerID string, limit int, before string) (*model.PostListResponse, error) {
	limit = model.ClampLimit(limit)
	posts, err := s.postRepo.ListRecent(ctx, limit+1, before)
	if err != nil {
		return nil, err
	}
	return pagePosts(posts, limit, viewerID), nil
}

// ListByUser returns the posts and shares listed on a user's profile.
func (s *PostService) ListByUser(ctx context.Context, userID, viewerID string, limit int, before string) (*model.PostListResponse, error) {
	limit = model.ClampLimit(limit)
	posts, err := s.postRepo.ListByUser(ctx, userID, limit+1, before)
	if err != nil {
		return nil, err
	}
	return pagePosts(posts, limit, viewerID), nil
}

func pagePosts(posts []model.Post, limit int, viewerID string) *model.PostListResponse {
	hasMore := len(posts) > limit
	if hasMore {
		posts = posts[:limit]
	}
	for i := range posts {
		posts[i].ComputeDerived(viewerID)
	}

	var nextCursor *string
	if hasMore && len(posts) > 0 {
		c := posts[len(posts)-1].ID
		nextCursor = &c
	}
	return &model.PostListResponse{Posts: posts, NextCursor: nextCursor, HasMore: hasMore}
}

// Delete removes a post with its reactions and comments. Only the owner
// may delete; for a share copy that is the sharer.
func (s *PostService) Delete(ctx context.Context, actor model.Identity, postID string) error {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if owner(post) != actor.UID {
		return model.ErrNotPostOwner
	}

	if err := s.postRepo.Delete(ctx, postID, actor.UID); err != nil {
		return err
	}
	metrics.Interactions.WithLabelValues("post_deleted").Inc()

	s.publish(ctx, queue.NewPostDeletedEvent(postID, actor.UID))
	return nil
}

// Share pushes a copy of the post body tagged with the sharer. Reactions
// and comments stay on the original, which is never modified. Every call
// creates a new copy.
func (s *PostService) Share(ctx context.Context, actor model.Identity, postID string) (*model.Post, error) {
	original, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	copyPost := &model.Post{
		AuthorID:       original.AuthorID,
		AuthorName:     original.AuthorName,
		AuthorPhotoURL: original.AuthorPhotoURL,
		Text:           original.Text,
		ImageURL:       original.ImageURL,
		CreatedAt:      original.CreatedAt,
		SharedBy: &model.ShareInfo{
			UserID:       actor.UID,
			Username:     actor.DisplayName,
			UserPhotoURL: actor.PhotoURL,
			Timestamp:    s.now().UnixMilli(),
		},
	}

	shared, err := s.postRepo.Create(ctx, copyPost, actor.UID)
	if err != nil {
		return nil, fmt.Errorf("share post: %w", err)
	}
	shared.ComputeDerived(actor.UID)
	metrics.Interactions.WithLabelValues("post_shared").Inc()

	s.log().WithFields(logrus.Fields{"post_id": postID, "share_id": shared.ID, "user_id": actor.UID}).Info("Share OK")

	s.publish(ctx, queue.NewPostCreatedEvent(shared.ID, actor.UID, shared.SharedBy.Timestamp))

	if err := s.notifier.Emit(ctx, original.AuthorID, actor, model.NotificationTypeShare, model.NotificationExtra{PostID: postID}); err != nil {
		s.log().WithError(err).WithField("post_id", postID).Error("Share notification FAILED")
		return shared, err
	}
	return shared, nil
}

func (s *PostService) publish(ctx context.Context, event queue.Event) {
	if s.publisher == nil {
		return
	}
	msgID, err := s.publisher.Publish(ctx, queue.StreamSocial, event)
	if err != nil {
		// The post is stored; timelines catch up on the next cache warm
		s.log().WithError(err).WithFields(logrus.Fields{"type": event.Type, "post_id": event.PostID}).Warn("Publish FAILED")
		return
	}
	s.log().WithFields(logrus.Fields{"type": event.Type, "post_id": event.PostID, "msg_id": msgID}).Debug("Published")
}
