package repository

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"socialsync/internal/model"
	"socialsync/internal/store"
)

// Top-level collections of the document tree.
const (
	colUsers             = "users"
	colUsernames         = "usernames"
	colCredentials       = "credentials"
	colEmails            = "emails"
	colRefreshTokens     = "refreshTokens"
	colUserRefreshTokens = "userRefreshTokens"
	colPosts             = "posts"
	colUserPosts         = "userPosts"
	colNotifications     = "notifications"
	colMessages          = "messages"
	colUserChats         = "userChats"
	colFriendRequests    = "friendRequests"
	colFriends           = "friends"
	colDeviceTokens      = "deviceTokens"
)

// PostPath returns posts/{postId}.
func PostPath(postID string) string {
	return store.Join(colPosts, postID)
}

// CommentsPath returns the comment collection of a post.
func CommentsPath(postID string) string {
	return store.Join(colPosts, postID, "comments")
}

// ReactionsPath returns the like or laugh collection of a post.
func ReactionsPath(postID string, kind model.ReactionKind) string {
	return store.Join(colPosts, postID, kind.Collection())
}

// MessagesPath returns messages/{chatId}.
func MessagesPath(chatID string) string {
	return store.Join(colMessages, chatID)
}

// NotificationsPath returns notifications/{recipientId}.
func NotificationsPath(userID string) string {
	return store.Join(colNotifications, userID)
}

// FriendRequestsPath returns friendRequests/{recipientId}.
func FriendRequestsPath(recipientID string) string {
	return store.Join(colFriendRequests, recipientID)
}

// FriendsPath returns friends/{uid}.
func FriendsPath(userID string) string {
	return store.Join(colFriends, userID)
}

// hashKey turns free-form text (emails, push tokens) into a key that is
// valid in every backend.
func hashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
