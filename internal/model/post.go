package model

import (
	"errors"
	"sort"
)

// ReactionKind selects one of the per-post reaction sets.
type ReactionKind string

const (
	ReactionLike  ReactionKind = "like"
	ReactionLaugh ReactionKind = "laugh"
)

// ParseReactionKind validates a kind coming from a request.
func ParseReactionKind(s string) (ReactionKind, error) {
	switch ReactionKind(s) {
	case ReactionLike, ReactionLaugh:
		return ReactionKind(s), nil
	}
	return "", ErrInvalidReactionKind
}

// Collection is the child collection under a post that holds this kind.
func (k ReactionKind) Collection() string {
	switch k {
	case ReactionLaugh:
		return "laughs"
	default:
		return "likes"
	}
}

// NotificationType is the notification emitted when this reaction is added.
func (k ReactionKind) NotificationType() string {
	if k == ReactionLaugh {
		return NotificationTypeLaugh
	}
	return NotificationTypeLike
}

// ReactionInfo is stored under posts/{postId}/{likes|laughs}/{uid}.
type ReactionInfo struct {
	Username     string `json:"username"`
	UserPhotoURL string `json:"user_photo_url,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// ReactionSet maps a reacting user id to the reaction entry. Membership is
// key presence, so a user appears at most once per set.
type ReactionSet map[string]ReactionInfo

// Has reports whether uid reacted.
func (s ReactionSet) Has(uid string) bool {
	_, ok := s[uid]
	return ok
}

// Len is the reaction count shown next to the post.
func (s ReactionSet) Len() int {
	return len(s)
}

// UserIDs returns the reacting user ids in a stable order.
func (s ReactionSet) UserIDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ShareInfo tags a post copy created by a share.
type ShareInfo struct {
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	UserPhotoURL string `json:"user_photo_url,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// Post is the assembled view of posts/{postId} and its child collections.
// Counts are derived from the sets at read time and never stored.
type Post struct {
	ID             string      `json:"id"`
	AuthorID       string      `json:"author_id"`
	AuthorName     string      `json:"author_name"`
	AuthorPhotoURL string      `json:"author_photo_url,omitempty"`
	Text           string      `json:"text"`
	ImageURL       *string     `json:"image_url"`
	CreatedAt      int64       `json:"created_at"`
	SharedBy       *ShareInfo  `json:"shared_by,omitempty"`
	Likes          ReactionSet `json:"likes"`
	Laughs         ReactionSet `json:"laughs"`
	Comments       []Comment   `json:"comments"`

	LikeCount    int `json:"like_count"`
	LaughCount   int `json:"laugh_count"`
	CommentCount int `json:"comment_count"`

	// Viewer flags, filled when the request is authenticated
	LikedByMe   bool `json:"liked_by_me"`
	LaughedByMe bool `json:"laughed_by_me"`
}

// ComputeDerived refreshes counts and viewer flags from the loaded sets.
func (p *Post) ComputeDerived(viewerID string) {
	p.LikeCount = p.Likes.Len()
	p.LaughCount = p.Laughs.Len()
	p.CommentCount = len(p.Comments)
	if viewerID != "" {
		p.LikedByMe = p.Likes.Has(viewerID)
		p.LaughedByMe = p.Laughs.Has(viewerID)
	}
}

// CreatePostRequest is the request body for POST /posts.
type CreatePostRequest struct {
	Text     string  `json:"text"`
	ImageURL *string `json:"image_url,omitempty"`
}

// ReactionResult is returned by a reaction toggle.
type ReactionResult struct {
	PostID  string       `json:"post_id"`
	Kind    ReactionKind `json:"kind"`
	Reacted bool         `json:"reacted"`
	Count   int          `json:"count"`
}

// PostListResponse is the paginated post list response.
type PostListResponse struct {
	Posts      []Post  `json:"posts"`
	NextCursor *string `json:"next_cursor,omitempty"`
	HasMore    bool    `json:"has_more"`
}

// Post constraints
const (
	MaxPostTextLength = 2200
	DefaultPageSize   = 20
	MaxPageSize       = 50
)

// Post errors
var (
	ErrPostNotFound        = errors.New("post not found")
	ErrNotPostOwner        = errors.New("not the owner of this post")
	ErrEmptyPost           = errors.New("post needs text or an image")
	ErrPostTextTooLong     = errors.New("post text too long")
	ErrInvalidReactionKind = errors.New("invalid reaction kind")
	ErrInvalidCursor       = errors.New("invalid cursor")
)

// ClampLimit applies the default and maximum page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
