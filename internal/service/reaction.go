package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"socialsync/internal/logging"
	"socialsync/internal/metrics"
	"socialsync/internal/model"
	"socialsync/internal/repository"
)

// ReactionService toggles like and laugh membership on posts.
//
// Toggle reads membership and then writes; two concurrent toggles by the
// same user can both observe the same state. Each write is last-write-wins
// on its own path and membership stays a set either way.
type ReactionService struct {
	postRepo repository.PostRepository
	notifier Notifier
	now      func() time.Time
}

func NewReactionService(postRepo repository.PostRepository, notifier Notifier) *ReactionService {
	return &ReactionService{
		postRepo: postRepo,
		notifier: notifier,
		now:      time.Now,
	}
}

func (s *ReactionService) log() *logrus.Entry {
	return logging.For("ReactionService")
}

// Toggle adds the actor to the post's set for kind, or removes them when
// already present. Only the adding direction notifies the post author;
// removal leaves earlier notifications in place.
func (s *ReactionService) Toggle(ctx context.Context, actor model.Identity, postID string, kind model.ReactionKind) (*model.ReactionResult, error) {
	if _, err := model.ParseReactionKind(string(kind)); err != nil {
		return nil, err
	}

	authorID, err := s.postRepo.GetAuthorID(ctx, postID)
	if err != nil {
		return nil, err
	}

	reacted, err := s.postRepo.HasReaction(ctx, postID, kind, actor.UID)
	if err != nil {
		return nil, fmt.Errorf("check reaction: %w", err)
	}

	log := s.log().WithFields(logrus.Fields{"post_id": postID, "user_id": actor.UID, "kind": kind})

	if reacted {
		if err := s.postRepo.RemoveReaction(ctx, postID, kind, actor.UID); err != nil {
			return nil, err
		}
		metrics.Interactions.WithLabelValues(string(kind) + "_removed").Inc()
		log.Debug("Reaction removed")
	} else {
		info := model.ReactionInfo{
			Username:     actor.DisplayName,
			UserPhotoURL: actor.PhotoURL,
			Timestamp:    s.now().UnixMilli(),
		}
		if err := s.postRepo.AddReaction(ctx, postID, kind, actor.UID, info); err != nil {
			return nil, err
		}
		metrics.Interactions.WithLabelValues(string(kind) + "_added").Inc()
		log.Debug("Reaction added")

		if err := s.notifier.Emit(ctx, authorID, actor, kind.NotificationType(), model.NotificationExtra{PostID: postID}); err != nil {
			log.WithError(err).Error("Reaction notification FAILED")
			return nil, err
		}
	}

	set, err := s.postRepo.GetReactions(ctx, postID, kind)
	if err != nil {
		return nil, err
	}

	return &model.ReactionResult{
		PostID:  postID,
		Kind:    kind,
		Reacted: !reacted,
		Count:   set.Len(),
	}, nil
}
