package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"socialsync/internal/logging"
	"socialsync/internal/metrics"
	"socialsync/internal/model"
	"socialsync/internal/queue"
	"socialsync/internal/repository"
	"socialsync/internal/store"
)

// unreadScanLimit bounds how many recent messages are inspected per
// conversation when counting unread messages.
const unreadScanLimit = 100

// VoiceUploader stores a recorded audio clip and returns its public URL.
type VoiceUploader interface {
	UploadVoice(ctx context.Context, chatID string, audio io.Reader, size int64, contentType string) (*model.UploadResult, error)
}

// ChatService implements one-to-one chat. Both participants address the
// same messages/{chatId} collection, where chatId is model.ChatID.
type ChatService struct {
	msgRepo   repository.MessageRepository
	userRepo  repository.UserRepository
	watcher   store.Watcher
	voice     VoiceUploader   // nil when object storage is not configured
	publisher queue.Publisher // nil when no queue is configured
	now       func() time.Time
}

func NewChatService(
	msgRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	watcher store.Watcher,
	voice VoiceUploader,
	publisher queue.Publisher,
) *ChatService {
	return &ChatService{
		msgRepo:   msgRepo,
		userRepo:  userRepo,
		watcher:   watcher,
		voice:     voice,
		publisher: publisher,
		now:       time.Now,
	}
}

func (s *ChatService) log() *logrus.Entry {
	return logging.For("ChatService")
}

// Send appends a text message. The sender's read flag starts true and the
// receiver's false.
func (s *ChatService) Send(ctx context.Context, sender model.Identity, receiverID, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, model.ErrEmptyMessage
	}
	if len([]rune(content)) > model.MaxMessageLength {
		return nil, model.ErrMessageTooLong
	}
	if err := s.checkPeer(ctx, sender.UID, receiverID); err != nil {
		return nil, err
	}

	msg := &model.Message{
		ChatID:     model.ChatID(sender.UID, receiverID),
		SenderID:   sender.UID,
		ReceiverID: receiverID,
		Content:    content,
	}
	return s.deliver(ctx, sender, msg, content)
}

// SendVoice uploads an audio clip and appends a message pointing at it.
func (s *ChatService) SendVoice(ctx context.Context, sender model.Identity, receiverID string, audio io.Reader, size int64, contentType string) (*model.Message, error) {
	if s.voice == nil {
		return nil, model.ErrMediaStorageDisabled
	}
	if err := s.checkPeer(ctx, sender.UID, receiverID); err != nil {
		return nil, err
	}

	chatID := model.ChatID(sender.UID, receiverID)
	upload, err := s.voice.UploadVoice(ctx, chatID, audio, size, contentType)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		ChatID:     chatID,
		SenderID:   sender.UID,
		ReceiverID: receiverID,
		AudioURL:   upload.URL,
	}
	return s.deliver(ctx, sender, msg, model.VoiceMessagePreview)
}

func (s *ChatService) checkPeer(ctx context.Context, selfID, peerID string) error {
	if peerID == "" || peerID == selfID {
		return model.ErrSelfChat
	}
	if _, err := s.userRepo.GetByID(ctx, peerID); err != nil {
		return err
	}
	return nil
}

// deliver writes the message, then the two conversation summaries, then
// the push event. Only the message write is fatal.
func (s *ChatService) deliver(ctx context.Context, sender model.Identity, msg *model.Message, preview string) (*model.Message, error) {
	msg.Timestamp = s.now().UnixMilli()
	msg.Read = map[string]bool{msg.SenderID: true, msg.ReceiverID: false}

	msg, err := s.msgRepo.Create(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	metrics.Interactions.WithLabelValues("message_sent").Inc()

	log := s.log().WithFields(logrus.Fields{"chat_id": msg.ChatID, "message_id": msg.ID})

	for _, side := range [][2]string{{msg.SenderID, msg.ReceiverID}, {msg.ReceiverID, msg.SenderID}} {
		conv := model.Conversation{
			ChatID:       msg.ChatID,
			PeerID:       side[1],
			LastMessage:  preview,
			LastSenderID: msg.SenderID,
			Timestamp:    msg.Timestamp,
		}
		if err := s.msgRepo.UpsertConversation(ctx, side[0], conv); err != nil {
			log.WithError(err).WithField("user_id", side[0]).Warn("Update conversation FAILED")
		}
	}

	if s.publisher != nil {
		event := queue.NewMessageSentEvent(msg.ChatID, msg.ID, sender.UID, sender.DisplayName, msg.ReceiverID, preview)
		if _, err := s.publisher.Publish(ctx, queue.StreamSocial, event); err != nil {
			log.WithError(err).Warn("Publish MessageSent FAILED")
		}
	}

	log.Debug("Send OK")
	return msg, nil
}

// History returns a page of the conversation in chronological order.
// before is the id of the oldest message the client already has.
func (s *ChatService) History(ctx context.Context, selfID, peerID string, limit int, before string) (*model.MessageListResponse, error) {
	if peerID == "" || peerID == selfID {
		return nil, model.ErrSelfChat
	}
	limit = model.ClampLimit(limit)
	chatID := model.ChatID(selfID, peerID)

	msgs, err := s.msgRepo.List(ctx, chatID, limit+1, before)
	if err != nil {
		return nil, err
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[1:]
	}

	var nextCursor *string
	if hasMore && len(msgs) > 0 {
		c := msgs[0].ID
		nextCursor = &c
	}

	return &model.MessageListResponse{
		ChatID:     chatID,
		Messages:   msgs,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// MarkRead writes the read receipt for one message. It only writes when
// self is the receiver and has not read it yet, so repeating it is a no-op.
func (s *ChatService) MarkRead(ctx context.Context, selfID, peerID, messageID string) error {
	chatID := model.ChatID(selfID, peerID)
	msg, err := s.msgRepo.GetByID(ctx, chatID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != selfID && msg.ReceiverID != selfID {
		return model.ErrNotChatMember
	}
	if !msg.NeedsReceipt(selfID) {
		return nil
	}
	return s.msgRepo.MarkRead(ctx, chatID, messageID, selfID)
}

// MarkAllRead writes receipts for every unread message addressed to self.
func (s *ChatService) MarkAllRead(ctx context.Context, selfID, peerID string) (int, error) {
	chatID := model.ChatID(selfID, peerID)
	msgs, err := s.msgRepo.List(ctx, chatID, 0, "")
	if err != nil {
		return 0, err
	}

	marked := 0
	for i := range msgs {
		if !msgs[i].NeedsReceipt(selfID) {
			continue
		}
		if err := s.msgRepo.MarkRead(ctx, chatID, msgs[i].ID, selfID); err != nil {
			return marked, err
		}
		marked++
	}
	return marked, nil
}

// Watch subscribes to the conversation between self and peer. fn receives
// each change with its event type: a new message arrives once as
// child_added, and later receipt writes arrive as child_changed. Every
// observed message addressed to self that is still unread gets its read
// receipt written before it is passed to fn. Messages already unread when
// the watch starts are marked as well. The returned handle stops delivery.
func (s *ChatService) Watch(ctx context.Context, selfID, peerID string, fn func(store.EventType, model.Message)) (store.Subscription, error) {
	if peerID == "" || peerID == selfID {
		return nil, model.ErrSelfChat
	}
	chatID := model.ChatID(selfID, peerID)
	log := s.log().WithFields(logrus.Fields{"chat_id": chatID, "user_id": selfID})

	sub, err := s.watcher.Subscribe(ctx, repository.MessagesPath(chatID), func(ev store.Event) {
		if ev.Type == store.ChildRemoved {
			return
		}
		msg, err := repository.DecodeMessage(ev)
		if err != nil {
			log.WithError(err).WithField("key", ev.Key).Warn("Skipping undecodable message")
			return
		}
		if msg.NeedsReceipt(selfID) {
			if err := s.msgRepo.MarkRead(ctx, chatID, msg.ID, selfID); err != nil {
				log.WithError(err).WithField("message_id", msg.ID).Warn("Read receipt FAILED")
			} else {
				msg.Read[selfID] = true
			}
		}
		fn(ev.Type, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("watch chat: %w", err)
	}

	if _, err := s.MarkAllRead(ctx, selfID, peerID); err != nil {
		log.WithError(err).Warn("Initial read receipts FAILED")
	}
	return sub, nil
}

// Conversations lists the chats self takes part in, newest first, with the
// peer profile and the number of unread messages.
func (s *ChatService) Conversations(ctx context.Context, selfID string) (*model.ConversationListResponse, error) {
	convs, err := s.msgRepo.ListConversations(ctx, selfID)
	if err != nil {
		return nil, err
	}

	peerIDs := make([]string, len(convs))
	for i, c := range convs {
		peerIDs[i] = c.PeerID
	}
	peers, err := s.userRepo.GetSummaries(ctx, peerIDs)
	if err != nil {
		return nil, err
	}

	for i := range convs {
		if p, ok := peers[convs[i].PeerID]; ok {
			peer := p
			convs[i].Peer = &peer
		}
		msgs, err := s.msgRepo.List(ctx, convs[i].ChatID, unreadScanLimit, "")
		if err != nil {
			s.log().WithError(err).WithField("chat_id", convs[i].ChatID).Warn("Unread count FAILED")
			continue
		}
		for j := range msgs {
			if msgs[j].NeedsReceipt(selfID) {
				convs[i].UnreadCount++
			}
		}
	}

	return &model.ConversationListResponse{Conversations: convs}, nil
}
