package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"socialsync/internal/logging"
)

const (
	// TimelinePrefix is the key prefix for per-user home timelines
	TimelinePrefix = "timeline:user:"

	// TimelineCap is the maximum number of posts kept per user
	TimelineCap = 500

	// TimelineTTL is the TTL for a home timeline (7 days)
	TimelineTTL = 7 * 24 * time.Hour
)

// PostScore is a post id with its creation time (Unix ms) used as the
// sorted-set score.
type PostScore struct {
	PostID    string
	Timestamp int64
}

// Cursor is the last entry of a timeline page. Entries that share a score
// are ordered by post id, descending, which is how ZREVRANGE orders them.
type Cursor struct {
	Score  float64
	PostID string
}

// Follows reports whether the entry (score, postID) comes after c in
// newest-first order.
func (c Cursor) Follows(score float64, postID string) bool {
	return score < c.Score || (score == c.Score && postID < c.PostID)
}

// SortNewestFirst orders posts by timestamp, then post id, both descending.
func SortNewestFirst(posts []PostScore) {
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].Timestamp != posts[j].Timestamp {
			return posts[i].Timestamp > posts[j].Timestamp
		}
		return posts[i].PostID > posts[j].PostID
	})
}

// TimelineCache holds each user's home timeline: post ids from the user and
// their friends, newest first.
type TimelineCache interface {
	// AddPost adds a post to a user's timeline.
	// Pipeline: ZADD + ZREMRANGEBYRANK (keep cap) + EXPIRE (refresh TTL)
	AddPost(ctx context.Context, userID, postID string, timestamp int64) error

	// RemovePost removes a post from a user's timeline.
	RemovePost(ctx context.Context, userID, postID string) error

	// GetTimeline returns post ids newest first. With a cursor only the
	// entries that follow it are returned.
	GetTimeline(ctx context.Context, userID string, cursor *Cursor, limit int) (postIDs []string, scores []float64, err error)

	// GetScore returns (score, found, error) for a post in a user's timeline.
	GetScore(ctx context.Context, userID, postID string) (int64, bool, error)

	// Warm bulk-inserts posts into a user's timeline.
	Warm(ctx context.Context, userID string, posts []PostScore) error

	// Size returns the number of posts in a user's timeline.
	Size(ctx context.Context, userID string) (int64, error)

	// Exists reports whether a timeline key is present. A missing key means
	// a new user or an expired TTL; callers warm it from the store.
	Exists(ctx context.Context, userID string) (bool, error)
}

// RedisTimelineCache implements TimelineCache using Redis sorted sets.
type RedisTimelineCache struct {
	client *redis.Client
}

// NewTimelineCache creates a TimelineCache backed by Redis.
func NewTimelineCache(client *redis.Client) TimelineCache {
	return &RedisTimelineCache{client: client}
}

func timelineKey(userID string) string {
	return TimelinePrefix + userID
}

func (c *RedisTimelineCache) log() *logrus.Entry {
	return logging.For("TimelineCache")
}

// AddPost adds a post with its timestamp as score.
func (c *RedisTimelineCache) AddPost(ctx context.Context, userID, postID string, timestamp int64) error {
	key := timelineKey(userID)
	startTime := time.Now()

	pipe := c.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(timestamp), Member: postID})
	// Rank 0 is the oldest post; keep the newest TimelineCap entries
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-TimelineCap-1))
	pipe.Expire(ctx, key, TimelineTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		c.log().WithFields(logrus.Fields{"user": userID, "post": postID}).WithError(err).Error("AddPost FAILED")
		return fmt.Errorf("add post to timeline: %w", err)
	}

	c.log().WithFields(logrus.Fields{
		"user": userID, "post": postID, "duration": time.Since(startTime),
	}).Debug("AddPost OK")
	return nil
}

// RemovePost removes a post from a user's timeline.
func (c *RedisTimelineCache) RemovePost(ctx context.Context, userID, postID string) error {
	removed, err := c.client.ZRem(ctx, timelineKey(userID), postID).Result()
	if err != nil {
		c.log().WithFields(logrus.Fields{"user": userID, "post": postID}).WithError(err).Error("RemovePost FAILED")
		return fmt.Errorf("remove post from timeline: %w", err)
	}

	c.log().WithFields(logrus.Fields{"user": userID, "post": postID, "removed": removed}).Debug("RemovePost OK")
	return nil
}

// GetTimeline uses ZREVRANGE without a cursor. With one it reads
// ZREVRANGEBYSCORE up to and including the cursor score, widened by the
// number of entries at that score, and drops the ties at or above the
// cursor id.
func (c *RedisTimelineCache) GetTimeline(ctx context.Context, userID string, cursor *Cursor, limit int) ([]string, []float64, error) {
	key := timelineKey(userID)

	var results []redis.Z
	var err error
	if cursor == nil {
		results, err = c.client.ZRevRangeWithScores(ctx, key, 0, int64(limit-1)).Result()
	} else {
		maxScore := strconv.FormatFloat(cursor.Score, 'f', -1, 64)
		var ties int64
		ties, err = c.client.ZCount(ctx, key, maxScore, maxScore).Result()
		if err == nil {
			results, err = c.client.ZRevRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
				Min:   "-inf",
				Max:   maxScore,
				Count: int64(limit) + ties,
			}).Result()
		}
	}
	if err != nil {
		c.log().WithField("user", userID).WithError(err).Error("GetTimeline FAILED")
		return nil, nil, fmt.Errorf("get timeline: %w", err)
	}

	c.client.Expire(ctx, key, TimelineTTL)

	postIDs := make([]string, 0, len(results))
	scores := make([]float64, 0, len(results))
	for _, z := range results {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		if cursor != nil && !cursor.Follows(z.Score, id) {
			continue
		}
		if len(postIDs) == limit {
			break
		}
		postIDs = append(postIDs, id)
		scores = append(scores, z.Score)
	}

	c.log().WithFields(logrus.Fields{"user": userID, "returned": len(postIDs)}).Debug("GetTimeline OK")
	return postIDs, scores, nil
}

// GetScore returns the timestamp score for a post in a user's timeline.
func (c *RedisTimelineCache) GetScore(ctx context.Context, userID, postID string) (int64, bool, error) {
	score, err := c.client.ZScore(ctx, timelineKey(userID), postID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get score: %w", err)
	}
	return int64(score), true, nil
}

// Warm bulk-inserts posts using a pipeline.
func (c *RedisTimelineCache) Warm(ctx context.Context, userID string, posts []PostScore) error {
	if len(posts) == 0 {
		return nil
	}

	key := timelineKey(userID)
	startTime := time.Now()

	members := make([]redis.Z, len(posts))
	for i, p := range posts {
		members[i] = redis.Z{Score: float64(p.Timestamp), Member: p.PostID}
	}

	pipe := c.client.Pipeline()
	pipe.ZAdd(ctx, key, members...)
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-TimelineCap-1))
	pipe.Expire(ctx, key, TimelineTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		c.log().WithFields(logrus.Fields{"user": userID, "posts": len(posts)}).WithError(err).Error("Warm FAILED")
		return fmt.Errorf("warm timeline: %w", err)
	}

	c.log().WithFields(logrus.Fields{
		"user": userID, "posts": len(posts), "duration": time.Since(startTime),
	}).Info("Warm OK")
	return nil
}

// Size returns the number of posts in a user's timeline.
func (c *RedisTimelineCache) Size(ctx context.Context, userID string) (int64, error) {
	size, err := c.client.ZCard(ctx, timelineKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("get timeline size: %w", err)
	}
	return size, nil
}

// Exists checks if a user has a timeline key.
func (c *RedisTimelineCache) Exists(ctx context.Context, userID string) (bool, error) {
	n, err := c.client.Exists(ctx, timelineKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("check timeline exists: %w", err)
	}
	return n > 0, nil
}
