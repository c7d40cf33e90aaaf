package service

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"socialsync/internal/logging"
	"socialsync/internal/metrics"
	"socialsync/internal/model"
	"socialsync/internal/queue"
	"socialsync/internal/repository"
)

// FriendService runs the friend-request state machine:
//
//	none -> pending (SendRequest) -> friends (AcceptRequest)
//	pending -> none (CancelRequest, DeleteRequest)
//	friends -> none (Unfriend)
//
// Accepting performs three independent writes without compensation; a
// failure midway leaves whatever was already written.
type FriendService struct {
	friendRepo repository.FriendRepository
	userRepo   repository.UserRepository
	notifier   Notifier
	publisher  queue.Publisher // nil when no queue is configured
	now        func() time.Time
}

func NewFriendService(
	friendRepo repository.FriendRepository,
	userRepo repository.UserRepository,
	notifier Notifier,
	publisher queue.Publisher,
) *FriendService {
	return &FriendService{
		friendRepo: friendRepo,
		userRepo:   userRepo,
		notifier:   notifier,
		publisher:  publisher,
		now:        time.Now,
	}
}

func (s *FriendService) log() *logrus.Entry {
	return logging.For("FriendService")
}

// Status reports the relationship between self and other as seen by self.
func (s *FriendService) Status(ctx context.Context, selfID, otherID string) (model.FriendStatus, error) {
	if selfID == otherID {
		return model.FriendStatusNone, nil
	}

	friends, err := s.friendRepo.AreFriends(ctx, selfID, otherID)
	if err != nil {
		return "", err
	}
	if friends {
		return model.FriendStatusFriends, nil
	}

	outgoing, err := s.friendRepo.RequestExists(ctx, otherID, selfID)
	if err != nil {
		return "", err
	}
	if outgoing {
		return model.FriendStatusPendingOutgoing, nil
	}

	incoming, err := s.friendRepo.RequestExists(ctx, selfID, otherID)
	if err != nil {
		return "", err
	}
	if incoming {
		return model.FriendStatusPendingIncoming, nil
	}

	return model.FriendStatusNone, nil
}

// SendRequest writes friendRequests/{to}/{from} and notifies the recipient.
func (s *FriendService) SendRequest(ctx context.Context, from model.Identity, toID string) (*model.FriendRequest, error) {
	if from.UID == toID {
		return nil, model.ErrSelfFriendRequest
	}
	if _, err := s.userRepo.GetByID(ctx, toID); err != nil {
		return nil, err
	}

	status, err := s.Status(ctx, from.UID, toID)
	if err != nil {
		return nil, err
	}
	switch status {
	case model.FriendStatusFriends:
		return nil, model.ErrAlreadyFriends
	case model.FriendStatusPendingOutgoing, model.FriendStatusPendingIncoming:
		return nil, model.ErrFriendRequestExists
	}

	req := &model.FriendRequest{
		RequesterID: from.UID,
		RecipientID: toID,
		DisplayName: from.DisplayName,
		PhotoURL:    from.PhotoURL,
		RequestDate: s.now().UTC().Format(time.RFC3339),
	}
	if err := s.friendRepo.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	metrics.Interactions.WithLabelValues("friend_request_sent").Inc()

	if err := s.notifier.Emit(ctx, toID, from, model.NotificationTypeFriendRequest, model.NotificationExtra{}); err != nil {
		s.log().WithError(err).WithField("recipient_id", toID).Error("Friend request notification FAILED")
		return req, err
	}
	return req, nil
}

// AcceptRequest turns a pending request from requesterID into a friendship.
func (s *FriendService) AcceptRequest(ctx context.Context, current model.Identity, requesterID string) error {
	if _, err := s.friendRepo.GetRequest(ctx, current.UID, requesterID); err != nil {
		return err
	}

	log := s.log().WithFields(logrus.Fields{"user_id": current.UID, "requester_id": requesterID})
	since := s.now().UnixMilli()

	if err := s.friendRepo.AddFriend(ctx, current.UID, requesterID, since); err != nil {
		log.WithError(err).Error("Accept FAILED at first friend entry")
		return err
	}
	if err := s.friendRepo.AddFriend(ctx, requesterID, current.UID, since); err != nil {
		log.WithError(err).Error("Accept FAILED at second friend entry")
		return err
	}
	if err := s.friendRepo.DeleteRequest(ctx, current.UID, requesterID); err != nil {
		log.WithError(err).Error("Accept FAILED removing request")
		return err
	}
	metrics.Interactions.WithLabelValues("friend_request_accepted").Inc()
	log.Info("Accept OK")

	s.publish(ctx, queue.NewFriendshipCreatedEvent(current.UID, requesterID))

	if err := s.notifier.Emit(ctx, requesterID, current, model.NotificationTypeFriendAccept, model.NotificationExtra{}); err != nil {
		log.WithError(err).Error("Accept notification FAILED")
		return err
	}
	return nil
}

// CancelRequest withdraws a request self sent to toID.
func (s *FriendService) CancelRequest(ctx context.Context, selfID, toID string) error {
	return s.friendRepo.DeleteRequest(ctx, toID, selfID)
}

// DeleteRequest declines a request requesterID sent to self.
func (s *FriendService) DeleteRequest(ctx context.Context, selfID, requesterID string) error {
	return s.friendRepo.DeleteRequest(ctx, selfID, requesterID)
}

// Unfriend removes both directions of the friendship.
func (s *FriendService) Unfriend(ctx context.Context, selfID, otherID string) error {
	friends, err := s.friendRepo.AreFriends(ctx, selfID, otherID)
	if err != nil {
		return err
	}
	if !friends {
		return model.ErrNotFriends
	}

	if err := s.friendRepo.RemoveFriend(ctx, selfID, otherID); err != nil {
		return err
	}
	if err := s.friendRepo.RemoveFriend(ctx, otherID, selfID); err != nil {
		return err
	}
	metrics.Interactions.WithLabelValues("unfriended").Inc()

	s.publish(ctx, queue.NewFriendshipRemovedEvent(selfID, otherID))
	return nil
}

// ListFriends returns the user's friends with their profiles, newest first.
func (s *FriendService) ListFriends(ctx context.Context, userID string) (*model.FriendListResponse, error) {
	edges, err := s.friendRepo.ListFriends(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(edges))
	for i, e := range edges {
		ids[i] = e.UserID
	}
	users, err := s.userRepo.GetSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}

	friends := make([]model.Friend, 0, len(edges))
	for _, e := range edges {
		u, ok := users[e.UserID]
		if !ok {
			u = model.UserSummary{ID: e.UserID}
		}
		friends = append(friends, model.Friend{User: u, Since: e.Since})
	}
	sort.SliceStable(friends, func(i, j int) bool { return friends[i].Since > friends[j].Since })

	return &model.FriendListResponse{Friends: friends}, nil
}

// ListRequests returns the pending requests addressed to userID.
func (s *FriendService) ListRequests(ctx context.Context, userID string) (*model.FriendRequestListResponse, error) {
	reqs, err := s.friendRepo.ListRequests(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.FriendRequestListResponse{Requests: reqs}, nil
}

func (s *FriendService) publish(ctx context.Context, event queue.Event) {
	if s.publisher == nil {
		return
	}
	msgID, err := s.publisher.Publish(ctx, queue.StreamSocial, event)
	if err != nil {
		s.log().WithError(err).WithFields(logrus.Fields{"type": event.Type, "user_id": event.UserID, "friend_id": event.FriendID}).
			Warn("Publish FAILED")
		return
	}
	s.log().WithFields(logrus.Fields{"type": event.Type, "msg_id": msgID}).Debug("Published")
}
