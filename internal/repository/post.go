package repository

import (
	"context"
	"errors"
	"fmt"

	"socialsync/internal/cache"
	"socialsync/internal/model"
	"socialsync/internal/store"
)

// postRecord is the stored body of posts/{postId}. Reactions and comments
// are child collections and never part of the body.
type postRecord struct {
	AuthorID       string       `json:"authorId"`
	AuthorName     string       `json:"authorName"`
	AuthorPhotoURL string       `json:"authorPhotoURL,omitempty"`
	Text           string       `json:"text"`
	ImageURL       *string      `json:"imageUrl,omitempty"`
	CreatedAt      int64        `json:"createdAt"`
	SharedBy       *shareRecord `json:"sharedBy,omitempty"`
}

type shareRecord struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	UserPhotoURL string `json:"userPhotoURL,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

type reactionRecord struct {
	Username     string `json:"username"`
	UserPhotoURL string `json:"userPhotoURL,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

type userPostRecord struct {
	CreatedAt int64 `json:"createdAt"`
}

func newPostRecord(p *model.Post) postRecord {
	rec := postRecord{
		AuthorID:       p.AuthorID,
		AuthorName:     p.AuthorName,
		AuthorPhotoURL: p.AuthorPhotoURL,
		Text:           p.Text,
		ImageURL:       p.ImageURL,
		CreatedAt:      p.CreatedAt,
	}
	if p.SharedBy != nil {
		rec.SharedBy = &shareRecord{
			UserID:       p.SharedBy.UserID,
			Username:     p.SharedBy.Username,
			UserPhotoURL: p.SharedBy.UserPhotoURL,
			Timestamp:    p.SharedBy.Timestamp,
		}
	}
	return rec
}

func (r postRecord) toModel(id string) *model.Post {
	p := &model.Post{
		ID:             id,
		AuthorID:       r.AuthorID,
		AuthorName:     r.AuthorName,
		AuthorPhotoURL: r.AuthorPhotoURL,
		Text:           r.Text,
		ImageURL:       r.ImageURL,
		CreatedAt:      r.CreatedAt,
		Likes:          model.ReactionSet{},
		Laughs:         model.ReactionSet{},
		Comments:       []model.Comment{},
	}
	if r.SharedBy != nil {
		p.SharedBy = &model.ShareInfo{
			UserID:       r.SharedBy.UserID,
			Username:     r.SharedBy.Username,
			UserPhotoURL: r.SharedBy.UserPhotoURL,
			Timestamp:    r.SharedBy.Timestamp,
		}
	}
	return p
}

type postRepository struct {
	store store.Store
}

func NewPostRepository(s store.Store) PostRepository {
	return &postRepository{store: s}
}

// Create pushes the post body and writes userPosts/{indexOwner}/{postId}.
// The two writes are independent; a failed index write leaves the post in
// the global feed only.
func (r *postRepository) Create(ctx context.Context, p *model.Post, indexOwner string) (*model.Post, error) {
	id, err := r.store.Push(ctx, colPosts, newPostRecord(p))
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	p.ID = id
	if p.Likes == nil {
		p.Likes = model.ReactionSet{}
	}
	if p.Laughs == nil {
		p.Laughs = model.ReactionSet{}
	}
	if p.Comments == nil {
		p.Comments = []model.Comment{}
	}

	indexedAt := p.CreatedAt
	if p.SharedBy != nil {
		indexedAt = p.SharedBy.Timestamp
	}
	if err := r.store.Set(ctx, store.Join(colUserPosts, indexOwner, id), userPostRecord{CreatedAt: indexedAt}); err != nil {
		return p, fmt.Errorf("index post: %w", err)
	}
	return p, nil
}

// GetByID assembles the post body with its reaction sets and comments.
func (r *postRepository) GetByID(ctx context.Context, postID string) (*model.Post, error) {
	var rec postRecord
	err := r.store.Get(ctx, PostPath(postID), &rec)
	if errors.Is(err, store.ErrNotFound) {
		return nil, model.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return r.assemble(ctx, postID, rec)
}

func (r *postRepository) assemble(ctx context.Context, postID string, rec postRecord) (*model.Post, error) {
	p := rec.toModel(postID)

	var err error
	if p.Likes, err = r.GetReactions(ctx, postID, model.ReactionLike); err != nil {
		return nil, err
	}
	if p.Laughs, err = r.GetReactions(ctx, postID, model.ReactionLaugh); err != nil {
		return nil, err
	}

	snaps, err := r.store.List(ctx, CommentsPath(postID), store.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("get comments: %w", err)
	}
	for _, snap := range snaps {
		var c commentRecord
		if err := snap.Decode(&c); err != nil {
			continue
		}
		p.Comments = append(p.Comments, *c.toModel(postID, snap.Key))
	}
	return p, nil
}

// GetByIDs loads posts in the given order, skipping ids that no longer exist.
func (r *postRepository) GetByIDs(ctx context.Context, postIDs []string) ([]model.Post, error) {
	posts := make([]model.Post, 0, len(postIDs))
	for _, id := range postIDs {
		p, err := r.GetByID(ctx, id)
		if errors.Is(err, model.ErrPostNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, nil
}

func (r *postRepository) Exists(ctx context.Context, postID string) (bool, error) {
	ok, err := r.store.Exists(ctx, PostPath(postID))
	if err != nil {
		return false, fmt.Errorf("check post exists: %w", err)
	}
	return ok, nil
}

func (r *postRepository) GetAuthorID(ctx context.Context, postID string) (string, error) {
	var rec postRecord
	err := r.store.Get(ctx, PostPath(postID), &rec)
	if errors.Is(err, store.ErrNotFound) {
		return "", model.ErrPostNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get post author: %w", err)
	}
	return rec.AuthorID, nil
}

// Delete removes the post subtree (body, reactions, comments) and then the
// owner's index entry.
func (r *postRepository) Delete(ctx context.Context, postID, indexOwner string) error {
	if err := r.store.Delete(ctx, PostPath(postID)); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if err := r.store.Delete(ctx, store.Join(colUserPosts, indexOwner, postID)); err != nil {
		return fmt.Errorf("delete post index: %w", err)
	}
	return nil
}

// ListRecent returns the newest posts across all users.
func (r *postRepository) ListRecent(ctx context.Context, limit int, before string) ([]model.Post, error) {
	snaps, err := r.store.List(ctx, colPosts, store.ListOptions{Limit: limit, Before: before, Descending: true})
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	posts := make([]model.Post, 0, len(snaps))
	for _, snap := range snaps {
		var rec postRecord
		if err := snap.Decode(&rec); err != nil {
			continue
		}
		p, err := r.assemble(ctx, snap.Key, rec)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, nil
}

// ListByUser returns the posts a user created or shared, newest first.
func (r *postRepository) ListByUser(ctx context.Context, userID string, limit int, before string) ([]model.Post, error) {
	snaps, err := r.store.List(ctx, store.Join(colUserPosts, userID), store.ListOptions{Limit: limit, Before: before, Descending: true})
	if err != nil {
		return nil, fmt.Errorf("list user posts: %w", err)
	}
	ids := make([]string, len(snaps))
	for i, snap := range snaps {
		ids[i] = snap.Key
	}
	return r.GetByIDs(ctx, ids)
}

func (r *postRepository) GetRecentPostsByUser(ctx context.Context, userID string, limit int) ([]cache.PostScore, error) {
	snaps, err := r.store.List(ctx, store.Join(colUserPosts, userID), store.ListOptions{Limit: limit, Descending: true})
	if err != nil {
		return nil, fmt.Errorf("list user posts: %w", err)
	}
	posts := make([]cache.PostScore, 0, len(snaps))
	for _, snap := range snaps {
		var rec userPostRecord
		if err := snap.Decode(&rec); err != nil {
			continue
		}
		posts = append(posts, cache.PostScore{PostID: snap.Key, Timestamp: rec.CreatedAt})
	}
	return posts, nil
}

func (r *postRepository) HasReaction(ctx context.Context, postID string, kind model.ReactionKind, userID string) (bool, error) {
	ok, err := r.store.Exists(ctx, store.Join(ReactionsPath(postID, kind), userID))
	if err != nil {
		return false, fmt.Errorf("check %s: %w", kind, err)
	}
	return ok, nil
}

// AddReaction writes the entry keyed by userID, so a user is a member of a
// set at most once.
func (r *postRepository) AddReaction(ctx context.Context, postID string, kind model.ReactionKind, userID string, info model.ReactionInfo) error {
	rec := reactionRecord{Username: info.Username, UserPhotoURL: info.UserPhotoURL, Timestamp: info.Timestamp}
	if err := r.store.Set(ctx, store.Join(ReactionsPath(postID, kind), userID), rec); err != nil {
		return fmt.Errorf("add %s: %w", kind, err)
	}
	return nil
}

func (r *postRepository) RemoveReaction(ctx context.Context, postID string, kind model.ReactionKind, userID string) error {
	if err := r.store.Delete(ctx, store.Join(ReactionsPath(postID, kind), userID)); err != nil {
		return fmt.Errorf("remove %s: %w", kind, err)
	}
	return nil
}

func (r *postRepository) GetReactions(ctx context.Context, postID string, kind model.ReactionKind) (model.ReactionSet, error) {
	snaps, err := r.store.List(ctx, ReactionsPath(postID, kind), store.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", kind.Collection(), err)
	}
	set := make(model.ReactionSet, len(snaps))
	for _, snap := range snaps {
		var rec reactionRecord
		if err := snap.Decode(&rec); err != nil {
			continue
		}
		set[snap.Key] = model.ReactionInfo{Username: rec.Username, UserPhotoURL: rec.UserPhotoURL, Timestamp: rec.Timestamp}
	}
	return set, nil
}
