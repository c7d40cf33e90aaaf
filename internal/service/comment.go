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
	"socialsync/internal/repository"
)

type CommentService struct {
	commentRepo repository.CommentRepository
	postRepo    repository.PostRepository
	notifier    Notifier
	now         func() time.Time
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	postRepo repository.PostRepository,
	notifier Notifier,
) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		postRepo:    postRepo,
		notifier:    notifier,
		now:         time.Now,
	}
}

func (s *CommentService) log() *logrus.Entry {
	return logging.For("CommentService")
}

// Add appends a comment to a post. Blank text is a silent no-op and
// returns a nil comment.
func (s *CommentService) Add(ctx context.Context, actor model.Identity, postID, text string) (*model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if len([]rune(text)) > model.MaxCommentLength {
		return nil, model.ErrContentTooLong
	}

	authorID, err := s.postRepo.GetAuthorID(ctx, postID)
	if err != nil {
		return nil, err
	}

	comment, err := s.commentRepo.Create(ctx, &model.Comment{
		PostID:       postID,
		AuthorID:     actor.UID,
		Username:     actor.DisplayName,
		UserPhotoURL: actor.PhotoURL,
		Text:         text,
		CreatedAt:    s.now().UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	metrics.Interactions.WithLabelValues("comment_added").Inc()

	s.log().WithFields(logrus.Fields{"post_id": postID, "comment_id": comment.ID, "user_id": actor.UID}).Info("Add OK")

	extra := model.NotificationExtra{PostID: postID, Comment: text}
	if err := s.notifier.Emit(ctx, authorID, actor, model.NotificationTypeComment, extra); err != nil {
		s.log().WithError(err).WithField("post_id", postID).Error("Comment notification FAILED")
		return comment, err
	}

	return comment, nil
}

// Delete hard-deletes a comment. Only its author may delete it.
func (s *CommentService) Delete(ctx context.Context, actor model.Identity, postID, commentID string) error {
	comment, err := s.commentRepo.GetByID(ctx, postID, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != actor.UID {
		return model.ErrNotCommentOwner
	}

	if err := s.commentRepo.Delete(ctx, postID, commentID); err != nil {
		return err
	}
	metrics.Interactions.WithLabelValues("comment_deleted").Inc()

	s.log().WithFields(logrus.Fields{"post_id": postID, "comment_id": commentID}).Info("Delete OK")
	return nil
}

// List returns a post's comments oldest first.
func (s *CommentService) List(ctx context.Context, postID string) (*model.CommentListResponse, error) {
	exists, err := s.postRepo.Exists(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("check post exists: %w", err)
	}
	if !exists {
		return nil, model.ErrPostNotFound
	}

	comments, err := s.commentRepo.GetByPostID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("get comments: %w", err)
	}
	return &model.CommentListResponse{Comments: comments}, nil
}
