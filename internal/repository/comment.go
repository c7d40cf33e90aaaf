package repository

import (
	"context"
	"errors"
	"fmt"

	"socialsync/internal/model"
	"socialsync/internal/store"
)

type commentRecord struct {
	AuthorID     string `json:"authorId"`
	Username     string `json:"username"`
	UserPhotoURL string `json:"userPhotoURL,omitempty"`
	Text         string `json:"text"`
	CreatedAt    int64  `json:"createdAt"`
}

func (r commentRecord) toModel(postID, id string) *model.Comment {
	return &model.Comment{
		ID:           id,
		PostID:       postID,
		AuthorID:     r.AuthorID,
		Username:     r.Username,
		UserPhotoURL: r.UserPhotoURL,
		Text:         r.Text,
		CreatedAt:    r.CreatedAt,
	}
}

type commentRepository struct {
	store store.Store
}

// DecodeComment builds a comment from a change event on
// posts/{postId}/comments.
func DecodeComment(ev store.Event) (*model.Comment, error) {
	var rec commentRecord
	if err := ev.Decode(&rec); err != nil {
		return nil, err
	}
	return rec.toModel(store.Base(store.Parent(ev.Parent)), ev.Key), nil
}

func NewCommentRepository(s store.Store) CommentRepository {
	return &commentRepository{store: s}
}

// Create appends the comment under posts/{postId}/comments.
func (r *commentRepository) Create(ctx context.Context, c *model.Comment) (*model.Comment, error) {
	rec := commentRecord{
		AuthorID:     c.AuthorID,
		Username:     c.Username,
		UserPhotoURL: c.UserPhotoURL,
		Text:         c.Text,
		CreatedAt:    c.CreatedAt,
	}
	id, err := r.store.Push(ctx, CommentsPath(c.PostID), rec)
	if err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	c.ID = id
	return c, nil
}

func (r *commentRepository) GetByID(ctx context.Context, postID, commentID string) (*model.Comment, error) {
	var rec commentRecord
	err := r.store.Get(ctx, store.Join(CommentsPath(postID), commentID), &rec)
	if errors.Is(err, store.ErrNotFound) {
		return nil, model.ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return rec.toModel(postID, commentID), nil
}

func (r *commentRepository) Delete(ctx context.Context, postID, commentID string) error {
	if err := r.store.Delete(ctx, store.Join(CommentsPath(postID), commentID)); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

// GetByPostID returns comments in key order, which is creation order.
func (r *commentRepository) GetByPostID(ctx context.Context, postID string) ([]model.Comment, error) {
	snaps, err := r.store.List(ctx, CommentsPath(postID), store.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("get comments: %w", err)
	}
	comments := make([]model.Comment, 0, len(snaps))
	for _, snap := range snaps {
		var rec commentRecord
		if err := snap.Decode(&rec); err != nil {
			continue
		}
		comments = append(comments, *rec.toModel(postID, snap.Key))
	}
	return comments, nil
}
