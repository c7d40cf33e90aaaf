package model

import (
	"errors"
)

// Comment is stored under posts/{postId}/comments/{commentId}.
type Comment struct {
	ID           string `json:"id"`
	PostID       string `json:"post_id"`
	AuthorID     string `json:"author_id"`
	Username     string `json:"username"`
	UserPhotoURL string `json:"user_photo_url,omitempty"`
	Text         string `json:"text"`
	CreatedAt    int64  `json:"created_at"`
}

// CreateCommentRequest is the request body for creating a comment.
type CreateCommentRequest struct {
	Text string `json:"text"`
}

// CommentListResponse lists a post's comments oldest first.
type CommentListResponse struct {
	Comments []Comment `json:"comments"`
}

// Comment constraints
const (
	MaxCommentLength = 2200
)

// Comment errors
var (
	ErrCommentNotFound = errors.New("comment not found")
	ErrNotCommentOwner = errors.New("not the owner of this comment")
	ErrContentTooLong  = errors.New("comment content too long")
)
