package model

import (
	"errors"
	"sort"
	"strings"
)

// ChatID returns the canonical conversation id for two users: both ids
// sorted and joined with "-". The result does not depend on argument order.
func ChatID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "-")
}

// Message is one entry of messages/{chatId}. Exactly one of Content or
// AudioURL is set. Read holds one flag per participant.
type Message struct {
	ID         string          `json:"id"`
	ChatID     string          `json:"chat_id"`
	SenderID   string          `json:"sender_id"`
	ReceiverID string          `json:"receiver_id"`
	Content    string          `json:"content,omitempty"`
	AudioURL   string          `json:"audio_url,omitempty"`
	Timestamp  int64           `json:"timestamp"`
	Read       map[string]bool `json:"read"`
}

// NeedsReceipt reports whether self should write a read receipt for m.
func (m *Message) NeedsReceipt(self string) bool {
	return m.ReceiverID == self && !m.Read[self]
}

// Conversation is one row of the chat list.
type Conversation struct {
	ChatID       string       `json:"chat_id"`
	PeerID       string       `json:"peer_id"`
	Peer         *UserSummary `json:"peer,omitempty"`
	LastMessage  string       `json:"last_message"`
	LastSenderID string       `json:"last_sender_id"`
	Timestamp    int64        `json:"timestamp"`
	UnreadCount  int          `json:"unread_count"`
}

// SendMessageRequest is the request body for POST /chats/{peerId}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// MessageListResponse lists a conversation oldest first.
type MessageListResponse struct {
	ChatID     string    `json:"chat_id"`
	Messages   []Message `json:"messages"`
	NextCursor *string   `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}

// ConversationListResponse lists conversations newest first.
type ConversationListResponse struct {
	Conversations []Conversation `json:"conversations"`
}

// VoiceMessagePreview is stored as the conversation summary text of an audio message.
const VoiceMessagePreview = "Voice message"

// Message constraints
const (
	MaxMessageLength = 4000
)

// Chat errors
var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrMessageTooLong  = errors.New("message too long")
	ErrSelfChat        = errors.New("cannot chat with yourself")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotChatMember   = errors.New("not a participant of this chat")
)
