package repository

import (
	"context"

	"socialsync/internal/cache"
	"socialsync/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetSummaries(ctx context.Context, ids []string) (map[string]model.UserSummary, error)
	UpdateProfile(ctx context.Context, id string, req model.UpdateProfileRequest) error
	// ReserveUsername claims a username for uid. Returns ErrUsernameExists
	// when another user holds it.
	ReserveUsername(ctx context.Context, uid, username string) error
	ReleaseUsername(ctx context.Context, username string) error
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Search(ctx context.Context, query string, limit int) ([]model.UserSummary, error)
}

type CredentialRepository interface {
	Create(ctx context.Context, uid, email, passwordHash string) error
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	GetUIDByEmail(ctx context.Context, email string) (string, error)
	GetPasswordHash(ctx context.Context, uid string) (string, error)
	UpdatePasswordHash(ctx context.Context, uid, passwordHash string) error
}

type RefreshTokenRepository interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	Revoke(ctx context.Context, tokenHash string, replacedBy string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

type PostRepository interface {
	// Create pushes a new post and indexes it under indexOwner's userPosts.
	Create(ctx context.Context, post *model.Post, indexOwner string) (*model.Post, error)
	GetByID(ctx context.Context, postID string) (*model.Post, error)
	GetByIDs(ctx context.Context, postIDs []string) ([]model.Post, error)
	Exists(ctx context.Context, postID string) (bool, error)
	GetAuthorID(ctx context.Context, postID string) (string, error)
	Delete(ctx context.Context, postID, indexOwner string) error
	ListRecent(ctx context.Context, limit int, before string) ([]model.Post, error)
	ListByUser(ctx context.Context, userID string, limit int, before string) ([]model.Post, error)
	// GetRecentPostsByUser returns (postID, createdAt) pairs from the
	// userPosts index, newest first. Used to fill home timelines.
	GetRecentPostsByUser(ctx context.Context, userID string, limit int) ([]cache.PostScore, error)

	HasReaction(ctx context.Context, postID string, kind model.ReactionKind, userID string) (bool, error)
	AddReaction(ctx context.Context, postID string, kind model.ReactionKind, userID string, info model.ReactionInfo) error
	RemoveReaction(ctx context.Context, postID string, kind model.ReactionKind, userID string) error
	GetReactions(ctx context.Context, postID string, kind model.ReactionKind) (model.ReactionSet, error)
}

type CommentRepository interface {
	Create(ctx context.Context, comment *model.Comment) (*model.Comment, error)
	GetByID(ctx context.Context, postID, commentID string) (*model.Comment, error)
	Delete(ctx context.Context, postID, commentID string) error
	GetByPostID(ctx context.Context, postID string) ([]model.Comment, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) (string, error)
	GetByID(ctx context.Context, userID, notificationID string) (*model.Notification, error)
	// List returns notifications newest first, keys strictly below before.
	List(ctx context.Context, userID string, limit int, before string) ([]model.Notification, error)
	GetUnreadCount(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, userID string, notificationIDs []string) error
	MarkAllAsRead(ctx context.Context, userID string) error
	Delete(ctx context.Context, userID string, notificationIDs []string) error
}

type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) (*model.Message, error)
	GetByID(ctx context.Context, chatID, messageID string) (*model.Message, error)
	// List returns messages oldest first, the newest limit entries with keys
	// strictly below before.
	List(ctx context.Context, chatID string, limit int, before string) ([]model.Message, error)
	MarkRead(ctx context.Context, chatID, messageID, userID string) error
	UpsertConversation(ctx context.Context, userID string, conv model.Conversation) error
	ListConversations(ctx context.Context, userID string) ([]model.Conversation, error)
}

// FriendEdge is one entry of a user's friend list.
type FriendEdge struct {
	UserID string
	Since  int64
}

type FriendRepository interface {
	CreateRequest(ctx context.Context, req *model.FriendRequest) error
	GetRequest(ctx context.Context, recipientID, requesterID string) (*model.FriendRequest, error)
	RequestExists(ctx context.Context, recipientID, requesterID string) (bool, error)
	DeleteRequest(ctx context.Context, recipientID, requesterID string) error
	ListRequests(ctx context.Context, recipientID string) ([]model.FriendRequest, error)

	// AddFriend writes one direction of a friendship.
	AddFriend(ctx context.Context, userID, otherID string, since int64) error
	RemoveFriend(ctx context.Context, userID, otherID string) error
	AreFriends(ctx context.Context, userID, otherID string) (bool, error)
	ListFriends(ctx context.Context, userID string) ([]FriendEdge, error)
	GetFriendIDs(ctx context.Context, userID string) ([]string, error)
}

type DeviceTokenRepository interface {
	// Upsert creates or updates a device token for a user
	Upsert(ctx context.Context, userID, token, platform string) error
	// GetByUserID returns all device tokens for a user
	GetByUserID(ctx context.Context, userID string) ([]model.DeviceToken, error)
	// Delete removes a device token
	Delete(ctx context.Context, userID, token string) error
}
