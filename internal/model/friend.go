package model

import (
	"errors"
)

// FriendStatus is the relationship between two users as seen by the first.
type FriendStatus string

const (
	FriendStatusNone            FriendStatus = "none"
	FriendStatusPendingOutgoing FriendStatus = "pending_outgoing"
	FriendStatusPendingIncoming FriendStatus = "pending_incoming"
	FriendStatusFriends         FriendStatus = "friends"
)

// FriendRequest is stored at friendRequests/{recipientId}/{requesterId}.
type FriendRequest struct {
	RequesterID string `json:"requester_id"`
	RecipientID string `json:"recipient_id"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
	RequestDate string `json:"request_date"` // RFC 3339
}

// Friend is one entry of friends/{uid}.
type Friend struct {
	User  UserSummary `json:"user"`
	Since int64       `json:"since"`
}

// FriendStatusResponse is returned by GET /friends/{id}/status.
type FriendStatusResponse struct {
	UserID string       `json:"user_id"`
	Status FriendStatus `json:"status"`
}

// FriendListResponse is returned by GET /friends.
type FriendListResponse struct {
	Friends []Friend `json:"friends"`
}

// FriendRequestListResponse is returned by GET /friends/requests.
type FriendRequestListResponse struct {
	Requests []FriendRequest `json:"requests"`
}

// Friend errors
var (
	ErrSelfFriendRequest     = errors.New("cannot send a friend request to yourself")
	ErrAlreadyFriends        = errors.New("already friends")
	ErrFriendRequestExists   = errors.New("friend request already pending")
	ErrFriendRequestNotFound = errors.New("friend request not found")
	ErrNotFriends            = errors.New("not friends")
)
