package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"socialsync/internal/cache"
	"socialsync/internal/logging"
	"socialsync/internal/model"
	"socialsync/internal/repository"
)

// perUserWarmLimit is how many recent posts each friend contributes when a
// timeline is rebuilt from the userPosts indexes.
const perUserWarmLimit = 100

// FeedService serves the home feed: posts by the user and their friends,
// newest first. With Redis the feed comes from the per-user timeline that
// workers keep up to date; without it the feed is merged from the userPosts
// indexes on every request.
type FeedService struct {
	timeline   cache.TimelineCache // nil without Redis
	postRepo   repository.PostRepository
	friendRepo repository.FriendRepository
}

func NewFeedService(
	timeline cache.TimelineCache,
	postRepo repository.PostRepository,
	friendRepo repository.FriendRepository,
) *FeedService {
	return &FeedService{
		timeline:   timeline,
		postRepo:   postRepo,
		friendRepo: friendRepo,
	}
}

func (s *FeedService) log() *logrus.Entry {
	return logging.For("FeedService")
}

// HomeFeed retrieves the user's home feed with cursor-based pagination.
//
// Flow:
// 1. Check if the timeline exists for the user
// 2. If not, warm it from the author and friends' userPosts indexes
// 3. Read post ids older than the cursor
// 4. Hydrate the posts from the store
// 5. Build the next cursor from the last post
func (s *FeedService) HomeFeed(ctx context.Context, userID string, limit int, cursor string) (*model.PostListResponse, error) {
	startTime := time.Now()
	limit = model.ClampLimit(limit)

	var after *cache.Cursor
	if cursor != "" {
		c, err := parseFeedCursor(cursor)
		if err != nil {
			return nil, model.ErrInvalidCursor
		}
		after = &c
	}

	var (
		postIDs []string
		scores  []float64
		err     error
	)
	if s.timeline != nil {
		postIDs, scores, err = s.fromTimeline(ctx, userID, after, limit+1)
	} else {
		postIDs, scores, err = s.fromIndexes(ctx, userID, after, limit+1)
	}
	if err != nil {
		return nil, err
	}

	hasMore := len(postIDs) > limit
	if hasMore {
		postIDs = postIDs[:limit]
		scores = scores[:limit]
	}

	posts, err := s.postRepo.GetByIDs(ctx, postIDs)
	if err != nil {
		return nil, fmt.Errorf("hydrate posts: %w", err)
	}
	for i := range posts {
		posts[i].ComputeDerived(userID)
	}

	var nextCursor *string
	if hasMore && len(postIDs) > 0 {
		c := formatFeedCursor(scores[len(scores)-1], postIDs[len(postIDs)-1])
		nextCursor = &c
	}

	s.log().WithFields(logrus.Fields{
		"user_id":  userID,
		"posts":    len(posts),
		"has_more": hasMore,
		"duration": time.Since(startTime),
	}).Debug("HomeFeed OK")

	return &model.PostListResponse{
		Posts:      posts,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func (s *FeedService) fromTimeline(ctx context.Context, userID string, after *cache.Cursor, limit int) ([]string, []float64, error) {
	exists, err := s.timeline.Exists(ctx, userID)
	if err != nil {
		// Continue without the cache
		s.log().WithError(err).WithField("user_id", userID).Warn("Timeline check FAILED, reading indexes")
		return s.fromIndexes(ctx, userID, after, limit)
	}

	if !exists {
		if err := s.warm(ctx, userID); err != nil {
			s.log().WithError(err).WithField("user_id", userID).Warn("Timeline warm FAILED, reading indexes")
			return s.fromIndexes(ctx, userID, after, limit)
		}
	}

	postIDs, scores, err := s.timeline.GetTimeline(ctx, userID, after, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("get timeline: %w", err)
	}
	return postIDs, scores, nil
}

// warm populates the user's timeline from the store.
func (s *FeedService) warm(ctx context.Context, userID string) error {
	startTime := time.Now()

	posts, err := s.collect(ctx, userID)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		return nil
	}
	if err := s.timeline.Warm(ctx, userID, posts); err != nil {
		return fmt.Errorf("warm timeline: %w", err)
	}

	s.log().WithFields(logrus.Fields{
		"user_id":  userID,
		"posts":    len(posts),
		"duration": time.Since(startTime),
	}).Info("Timeline warmed")
	return nil
}

func (s *FeedService) fromIndexes(ctx context.Context, userID string, after *cache.Cursor, limit int) ([]string, []float64, error) {
	posts, err := s.collect(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	var (
		postIDs []string
		scores  []float64
	)
	for _, p := range posts {
		if after != nil && !after.Follows(float64(p.Timestamp), p.PostID) {
			continue
		}
		postIDs = append(postIDs, p.PostID)
		scores = append(scores, float64(p.Timestamp))
		if len(postIDs) == limit {
			break
		}
	}
	return postIDs, scores, nil
}

// collect merges the recent posts of the user and their friends in
// timeline order, capped at the timeline size.
func (s *FeedService) collect(ctx context.Context, userID string) ([]cache.PostScore, error) {
	friendIDs, err := s.friendRepo.GetFriendIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get friend ids: %w", err)
	}

	var all []cache.PostScore
	for _, id := range append([]string{userID}, friendIDs...) {
		posts, err := s.postRepo.GetRecentPostsByUser(ctx, id, perUserWarmLimit)
		if err != nil {
			return nil, fmt.Errorf("get recent posts: %w", err)
		}
		all = append(all, posts...)
	}

	cache.SortNewestFirst(all)
	if len(all) > cache.TimelineCap {
		all = all[:cache.TimelineCap]
	}
	return all, nil
}

// parseFeedCursor parses the "timestamp:id" cursor. The id orders posts
// that share a timestamp.
func parseFeedCursor(cursor string) (cache.Cursor, error) {
	parts := strings.SplitN(cursor, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return cache.Cursor{}, fmt.Errorf("invalid cursor format, expected timestamp:id")
	}
	score, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return cache.Cursor{}, fmt.Errorf("invalid timestamp in cursor: %w", err)
	}
	return cache.Cursor{Score: score, PostID: parts[1]}, nil
}

func formatFeedCursor(score float64, id string) string {
	return fmt.Sprintf("%.0f:%s", score, id)
}
