package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"socialsync/internal/model"
	"socialsync/internal/store"
)

type messageRecord struct {
	SenderID   string          `json:"senderId"`
	ReceiverID string          `json:"receiverId"`
	Content    string          `json:"content,omitempty"`
	AudioURL   string          `json:"audioUrl,omitempty"`
	Timestamp  int64           `json:"timestamp"`
	Read       map[string]bool `json:"read"`
}

func (r messageRecord) toModel(chatID, id string) model.Message {
	read := r.Read
	if read == nil {
		read = map[string]bool{}
	}
	return model.Message{
		ID:         id,
		ChatID:     chatID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Content:    r.Content,
		AudioURL:   r.AudioURL,
		Timestamp:  r.Timestamp,
		Read:       read,
	}
}

// DecodeMessage builds a message from a change event on messages/{chatId}.
func DecodeMessage(ev store.Event) (model.Message, error) {
	var rec messageRecord
	if err := ev.Decode(&rec); err != nil {
		return model.Message{}, err
	}
	return rec.toModel(store.Base(ev.Parent), ev.Key), nil
}

type conversationRecord struct {
	PeerID       string `json:"peerId"`
	LastMessage  string `json:"lastMessage"`
	LastSenderID string `json:"lastSenderId"`
	Timestamp    int64  `json:"timestamp"`
}

type messageRepository struct {
	store store.Store
}

func NewMessageRepository(s store.Store) MessageRepository {
	return &messageRepository{store: s}
}

func (r *messageRepository) Create(ctx context.Context, m *model.Message) (*model.Message, error) {
	rec := messageRecord{
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		AudioURL:   m.AudioURL,
		Timestamp:  m.Timestamp,
		Read:       m.Read,
	}
	id, err := r.store.Push(ctx, MessagesPath(m.ChatID), rec)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	m.ID = id
	return m, nil
}

func (r *messageRepository) GetByID(ctx context.Context, chatID, messageID string) (*model.Message, error) {
	var rec messageRecord
	err := r.store.Get(ctx, store.Join(MessagesPath(chatID), messageID), &rec)
	if errors.Is(err, store.ErrNotFound) {
		return nil, model.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	m := rec.toModel(chatID, messageID)
	return &m, nil
}

// List reads the newest page descending and flips it, so callers get
// chronological order.
func (r *messageRepository) List(ctx context.Context, chatID string, limit int, before string) ([]model.Message, error) {
	snaps, err := r.store.List(ctx, MessagesPath(chatID), store.ListOptions{Limit: limit, Before: before, Descending: true})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]model.Message, 0, len(snaps))
	for i := len(snaps) - 1; i >= 0; i-- {
		var rec messageRecord
		if err := snaps[i].Decode(&rec); err != nil {
			continue
		}
		out = append(out, rec.toModel(chatID, snaps[i].Key))
	}
	return out, nil
}

// MarkRead sets read/{userID} on one message.
func (r *messageRepository) MarkRead(ctx context.Context, chatID, messageID, userID string) error {
	err := r.store.Update(ctx, store.Join(MessagesPath(chatID), messageID), map[string]any{
		store.Join("read", userID): true,
	})
	if err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	return nil
}

func (r *messageRepository) UpsertConversation(ctx context.Context, userID string, conv model.Conversation) error {
	rec := conversationRecord{
		PeerID:       conv.PeerID,
		LastMessage:  conv.LastMessage,
		LastSenderID: conv.LastSenderID,
		Timestamp:    conv.Timestamp,
	}
	if err := r.store.Set(ctx, store.Join(colUserChats, userID, conv.ChatID), rec); err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return nil
}

// ListConversations returns the user's conversation summaries, newest first.
func (r *messageRepository) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	snaps, err := r.store.List(ctx, store.Join(colUserChats, userID), store.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out := make([]model.Conversation, 0, len(snaps))
	for _, snap := range snaps {
		var rec conversationRecord
		if err := snap.Decode(&rec); err != nil {
			continue
		}
		out = append(out, model.Conversation{
			ChatID:       snap.Key,
			PeerID:       rec.PeerID,
			LastMessage:  rec.LastMessage,
			LastSenderID: rec.LastSenderID,
			Timestamp:    rec.Timestamp,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}
