package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialsync/internal/cache"
	"socialsync/internal/model"
	"socialsync/internal/queue"
	"socialsync/internal/store"
)

// =============================================================================
// CHAT TESTS
// =============================================================================

func TestChatService_TwoWayConversation(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice", "Alice")
	bob := e.user(t, "bob", "Bob")

	m1, err := e.chat.Send(e.ctx, alice, "bob", "hi")
	require.NoError(t, err)
	_, err = e.chat.Send(e.ctx, bob, "alice", "hey")
	require.NoError(t, err)
	_, err = e.chat.Send(e.ctx, alice, "bob", " how are you ")
	require.NoError(t, err)

	assert.Equal(t, "alice-bob", m1.ChatID)
	assert.True(t, m1.Read["alice"])
	assert.False(t, m1.Read["bob"])

	fromAlice, err := e.chat.History(e.ctx, "alice", "bob", 0, "")
	require.NoError(t, err)
	fromBob, err := e.chat.History(e.ctx, "bob", "alice", 0, "")
	require.NoError(t, err)

	assert.Equal(t, fromAlice.ChatID, fromBob.ChatID)
	require.Len(t, fromAlice.Messages, 3)
	assert.Equal(t, fromAlice.Messages, fromBob.Messages)

	var texts []string
	for _, m := range fromAlice.Messages {
		texts = append(texts, m.Content)
	}
	assert.Equal(t, []string{"hi", "hey", "how are you"}, texts)
	assert.Len(t, e.pub.ofType(queue.EventMessageSent), 3)
}

func TestChatService_HistoryPages(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice", "Alice")
	e.user(t, "bob", "Bob")
	for _, text := range []string{"one", "two", "three"} {
		_, err := e.chat.Send(e.ctx, alice, "bob", text)
		require.NoError(t, err)
	}

	page, err := e.chat.History(e.ctx, "bob", "alice", 2, "")
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "two", page.Messages[0].Content)
	assert.Equal(t, "three", page.Messages[1].Content)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextCursor)

	page, err = e.chat.History(e.ctx, "bob", "alice", 2, *page.NextCursor)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "one", page.Messages[0].Content)
	assert.False(t, page.HasMore)
}

func TestChatService_SendValidation(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice", "Alice")

	_, err := e.chat.Send(e.ctx, alice, "bob", "   ")
	assert.ErrorIs(t, err, model.ErrEmptyMessage)
	_, err = e.chat.Send(e.ctx, alice, "alice", "hi")
	assert.ErrorIs(t, err, model.ErrSelfChat)
	_, err = e.chat.Send(e.ctx, alice, "nobody", "hi")
	assert.ErrorIs(t, err, model.ErrUserNotFound)
	_, err = e.chat.Send(e.ctx, alice, "nobody", strings.Repeat("x", model.MaxMessageLength+1))
	assert.ErrorIs(t, err, model.ErrMessageTooLong)
}

func TestChatService_MarkReadIsIdempotent(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice", "Alice")
	e.user(t, "bob", "Bob")

	m, err := e.chat.Send(e.ctx, alice, "bob", "hi")
	require.NoError(t, err)

	require.NoError(t, e.chat.MarkRead(e.ctx, "bob", "alice", m.ID))
	require.NoError(t, e.chat.MarkRead(e.ctx, "bob", "alice", m.ID))
	// The sender's own flag is already set; nothing to write.
	require.NoError(t, e.chat.MarkRead(e.ctx, "alice", "bob", m.ID))

	stored, err := e.msgs.GetByID(e.ctx, m.ChatID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"alice": true, "bob": true}, stored.Read)

	assert.ErrorIs(t, e.chat.MarkRead(e.ctx, "bob", "alice", "missing"), model.ErrMessageNotFound)
}

func TestChatService_WatchWritesReceipts(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice", "Alice")
	e.user(t, "bob", "Bob")

	early, err := e.chat.Send(e.ctx, alice, "bob", "before watching")
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen = map[string]model.Message{}
	)
	sub, err := e.chat.Watch(e.ctx, "bob", "alice", func(_ store.EventType, m model.Message) {
		mu.Lock()
		seen[m.ID] = m
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Cancel()

	stored, err := e.msgs.GetByID(e.ctx, early.ChatID, early.ID)
	require.NoError(t, err)
	assert.True(t, stored.Read["bob"], "unread messages are marked when the watch starts")

	live, err := e.chat.Send(e.ctx, alice, "bob", "while watching")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		m, ok := seen[live.ID]
		return ok && m.Read["bob"]
	}, 2*time.Second, 5*time.Millisecond)

	stored, err = e.msgs.GetByID(e.ctx, live.ChatID, live.ID)
	require.NoError(t, err)
	assert.True(t, stored.Read["bob"])
	assert.True(t, stored.Read["alice"])
}

func TestChatService_WatchDoesNotMarkOwnMessages(t *testing.T) {
	e := newEnv(t)
	e.user(t, "alice", "Alice")
	bob := e.user(t, "bob", "Bob")

	var (
		mu   sync.Mutex
		seen []model.Message
	)
	sub, err := e.chat.Watch(e.ctx, "bob", "alice", func(typ store.EventType, m model.Message) {
		mu.Lock()
		if typ == store.ChildAdded {
			seen = append(seen, m)
		}
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Cancel()

	m, err := e.chat.Send(e.ctx, bob, "alice", "mine")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, 2*time.Second, 5*time.Millisecond)

	stored, err := e.msgs.GetByID(e.ctx, m.ChatID, m.ID)
	require.NoError(t, err)
	assert.False(t, stored.Read["alice"])
}

// chatEvent is one delivery observed by a chat watcher.
type chatEvent struct {
	typ store.EventType
	id  string
}

func TestChatService_WatchSeesTwoWayExchangeOnceInOrder(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice", "Alice")
	bob := e.user(t, "bob", "Bob")

	var (
		mu     sync.Mutex
		events []chatEvent
		stamps = map[string]int64{}
	)
	sub, err := e.chat.Watch(e.ctx, "bob", "alice", func(typ store.EventType, m model.Message) {
		mu.Lock()
		events = append(events, chatEvent{typ, m.ID})
		stamps[m.ID] = m.Timestamp
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Cancel()

	m1, err := e.chat.Send(e.ctx, alice, "bob", "hi bob")
	require.NoError(t, err)
	m2, err := e.chat.Send(e.ctx, bob, "alice", "hi alice")
	require.NoError(t, err)

	// Two adds plus the echo of bob's receipt on m1.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) > 3
	}, 100*time.Millisecond, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	var added, changed []string
	for _, ev := range events {
		switch ev.typ {
		case store.ChildAdded:
			added = append(added, ev.id)
		case store.ChildChanged:
			changed = append(changed, ev.id)
		}
	}
	assert.Equal(t, []string{m1.ID, m2.ID}, added, "each message is added exactly once, in send order")
	assert.Equal(t, []string{m1.ID}, changed, "only the receipt write on m1 shows up as a change")
	assert.Equal(t, chatEvent{store.ChildAdded, m1.ID}, events[0])
	assert.Less(t, stamps[m1.ID], stamps[m2.ID])
}

func TestChatService_Conversations(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice", "Alice")
	e.user(t, "bob", "Bob")
	carol := e.user(t, "carol", "Carol")

	_, err := e.chat.Send(e.ctx, alice, "bob", "hi bob")
	require.NoError(t, err)
	_, err = e.chat.Send(e.ctx, alice, "bob", "still there?")
	require.NoError(t, err)
	_, err = e.chat.Send(e.ctx, carol, "bob", "hello from carol")
	require.NoError(t, err)

	list, err := e.chat.Conversations(e.ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list.Conversations, 2)

	latest := list.Conversations[0]
	assert.Equal(t, "carol", latest.PeerID)
	require.NotNil(t, latest.Peer)
	assert.Equal(t, "Carol", latest.Peer.DisplayName)
	assert.Equal(t, "hello from carol", latest.LastMessage)
	assert.Equal(t, 1, latest.UnreadCount)

	assert.Equal(t, "alice", list.Conversations[1].PeerID)
	assert.Equal(t, 2, list.Conversations[1].UnreadCount)

	n, err := e.chat.MarkAllRead(e.ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err = e.chat.Conversations(e.ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, list.Conversations[1].UnreadCount)

	mine, err := e.chat.Conversations(e.ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mine.Conversations, 1)
	assert.Zero(t, mine.Conversations[0].UnreadCount)
	assert.Equal(t, "alice", mine.Conversations[0].LastSenderID)
}

type fakeVoice struct {
	chatID string
}

func (v *fakeVoice) UploadVoice(ctx context.Context, chatID string, audio io.Reader, size int64, contentType string) (*model.UploadResult, error) {
	v.chatID = chatID
	return &model.UploadResult{URL: "https://cdn.example.com/voice_messages/" + chatID + "/clip.m4a"}, nil
}

func TestChatService_SendVoice(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice", "Alice")
	e.user(t, "bob", "Bob")

	_, err := e.chat.SendVoice(e.ctx, alice, "bob", strings.NewReader("data"), 4, "audio/m4a")
	assert.ErrorIs(t, err, model.ErrMediaStorageDisabled)

	voice := &fakeVoice{}
	e.chat.voice = voice
	m, err := e.chat.SendVoice(e.ctx, alice, "bob", strings.NewReader("data"), 4, "audio/m4a")
	require.NoError(t, err)
	assert.Equal(t, "alice-bob", voice.chatID)
	assert.Empty(t, m.Content)
	assert.Contains(t, m.AudioURL, "voice_messages/alice-bob/")

	list, err := e.chat.Conversations(e.ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, model.VoiceMessagePreview, list.Conversations[0].LastMessage)
}

// =============================================================================
// FRIEND TESTS
// =============================================================================

func TestFriendService_RequestAcceptUnfriend(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice", "Alice")
	bob := e.user(t, "bob", "Bob")

	status := func(self, other string) model.FriendStatus {
		s, err := e.friendSvc.Status(e.ctx, self, other)
		require.NoError(t, err)
		return s
	}
	assert.Equal(t, model.FriendStatusNone, status("alice", "bob"))

	req, err := e.friendSvc.SendRequest(e.ctx, alice, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Alice", req.DisplayName)
	_, err = time.Parse(time.RFC3339, req.RequestDate)
	require.NoError(t, err)

	assert.Equal(t, model.FriendStatusPendingOutgoing, status("alice", "bob"))
	assert.Equal(t, model.FriendStatusPendingIncoming, status("bob", "alice"))

	_, err = e.friendSvc.SendRequest(e.ctx, alice, "bob")
	assert.ErrorIs(t, err, model.ErrFriendRequestExists)
	_, err = e.friendSvc.SendRequest(e.ctx, bob, "alice")
	assert.ErrorIs(t, err, model.ErrFriendRequestExists)

	inbox := e.inbox(t, "bob")
	require.Len(t, inbox, 1)
	assert.Equal(t, model.NotificationTypeFriendRequest, inbox[0].Type)

	require.NoError(t, e.friendSvc.AcceptRequest(e.ctx, bob, "alice"))
	assert.Equal(t, model.FriendStatusFriends, status("alice", "bob"))
	assert.Equal(t, model.FriendStatusFriends, status("bob", "alice"))

	pending, err := e.friends.RequestExists(e.ctx, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, pending)

	inbox = e.inbox(t, "alice")
	require.Len(t, inbox, 1)
	assert.Equal(t, model.NotificationTypeFriendAccept, inbox[0].Type)
	assert.Equal(t, "bob", inbox[0].ActorID)
	assert.Len(t, e.pub.ofType(queue.EventFriendshipCreated), 1)

	list, err := e.friendSvc.ListFriends(e.ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list.Friends, 1)
	assert.Equal(t, "bob", list.Friends[0].User.ID)

	_, err = e.friendSvc.SendRequest(e.ctx, alice, "bob")
	assert.ErrorIs(t, err, model.ErrAlreadyFriends)

	require.NoError(t, e.friendSvc.Unfriend(e.ctx, "bob", "alice"))
	assert.Equal(t, model.FriendStatusNone, status("alice", "bob"))
	assert.ErrorIs(t, e.friendSvc.Unfriend(e.ctx, "bob", "alice"), model.ErrNotFriends)
	assert.Len(t, e.pub.ofType(queue.EventFriendshipRemoved), 1)
}

func TestFriendService_CancelAndDecline(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice", "Alice")
	e.user(t, "bob", "Bob")
	carol := e.user(t, "carol", "Carol")

	_, err := e.friendSvc.SendRequest(e.ctx, alice, "bob")
	require.NoError(t, err)
	require.NoError(t, e.friendSvc.CancelRequest(e.ctx, "alice", "bob"))

	reqs, err := e.friendSvc.ListRequests(e.ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, reqs.Requests)

	_, err = e.friendSvc.SendRequest(e.ctx, carol, "bob")
	require.NoError(t, err)
	require.NoError(t, e.friendSvc.DeleteRequest(e.ctx, "bob", "carol"))

	s, err := e.friendSvc.Status(e.ctx, "carol", "bob")
	require.NoError(t, err)
	assert.Equal(t, model.FriendStatusNone, s)
}

func TestFriendService_Errors(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice", "Alice")
	bob := e.user(t, "bob", "Bob")

	_, err := e.friendSvc.SendRequest(e.ctx, alice, "alice")
	assert.ErrorIs(t, err, model.ErrSelfFriendRequest)
	_, err = e.friendSvc.SendRequest(e.ctx, alice, "nobody")
	assert.ErrorIs(t, err, model.ErrUserNotFound)
	assert.ErrorIs(t, e.friendSvc.AcceptRequest(e.ctx, bob, "alice"), model.ErrFriendRequestNotFound)
}

// =============================================================================
// FEED TESTS
// =============================================================================

// memTimeline is an in-memory TimelineCache.
type memTimeline struct {
	mu        sync.Mutex
	lines     map[string][]cache.PostScore
	existsErr error
	warmed    []string
}

func newMemTimeline() *memTimeline {
	return &memTimeline{lines: map[string][]cache.PostScore{}}
}

func (m *memTimeline) AddPost(ctx context.Context, userID, postID string, timestamp int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines[userID] = append(m.lines[userID], cache.PostScore{PostID: postID, Timestamp: timestamp})
	return nil
}

func (m *memTimeline) RemovePost(ctx context.Context, userID, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	line := m.lines[userID][:0]
	for _, p := range m.lines[userID] {
		if p.PostID != postID {
			line = append(line, p)
		}
	}
	m.lines[userID] = line
	return nil
}

func (m *memTimeline) GetTimeline(ctx context.Context, userID string, cursor *cache.Cursor, limit int) ([]string, []float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	line := append([]cache.PostScore(nil), m.lines[userID]...)
	cache.SortNewestFirst(line)

	var (
		ids    []string
		scores []float64
	)
	for _, p := range line {
		if cursor != nil && !cursor.Follows(float64(p.Timestamp), p.PostID) {
			continue
		}
		ids = append(ids, p.PostID)
		scores = append(scores, float64(p.Timestamp))
		if len(ids) == limit {
			break
		}
	}
	return ids, scores, nil
}

func (m *memTimeline) GetScore(ctx context.Context, userID, postID string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.lines[userID] {
		if p.PostID == postID {
			return p.Timestamp, true, nil
		}
	}
	return 0, false, nil
}

func (m *memTimeline) Warm(ctx context.Context, userID string, posts []cache.PostScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warmed = append(m.warmed, userID)
	m.lines[userID] = append(m.lines[userID], posts...)
	return nil
}

func (m *memTimeline) Size(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.lines[userID])), nil
}

func (m *memTimeline) Exists(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.lines[userID]
	return ok, nil
}

// befriend makes a and b friends through the request flow.
func (e *env) befriend(t *testing.T, a, b model.Identity) {
	t.Helper()
	_, err := e.friendSvc.SendRequest(e.ctx, a, b.UID)
	require.NoError(t, err)
	require.NoError(t, e.friendSvc.AcceptRequest(e.ctx, b, a.UID))
}

func feedTexts(resp *model.PostListResponse) []string {
	texts := make([]string, len(resp.Posts))
	for i, p := range resp.Posts {
		texts[i] = p.Text
	}
	return texts
}

func TestFeedService_HomeFeedFromIndexes(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice", "Alice")
	bob := e.user(t, "bob", "Bob")
	carol := e.user(t, "carol", "Carol")
	e.befriend(t, alice, bob)

	e.post(t, alice, "alice 1")
	e.post(t, carol, "carol 1")
	e.post(t, bob, "bob 1")
	e.post(t, alice, "alice 2")

	page, err := e.feed.HomeFeed(e.ctx, "alice", 2, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice 2", "bob 1"}, feedTexts(page))
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextCursor)

	page, err = e.feed.HomeFeed(e.ctx, "alice", 2, *page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice 1"}, feedTexts(page))
	assert.False(t, page.HasMore)

	_, err = e.feed.HomeFeed(e.ctx, "alice", 2, "garbage")
	assert.ErrorIs(t, err, model.ErrInvalidCursor)
}

func TestFeedService_PagesThroughPostsSharingATimestamp(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice", "Alice")
	bob := e.user(t, "bob", "Bob")
	e.befriend(t, alice, bob)

	fixed := time.UnixMilli(1_700_000_500_000)
	e.postSvc.now = func() time.Time { return fixed }
	var want []string
	for i := 0; i < 5; i++ {
		author := alice
		if i%2 == 1 {
			author = bob
		}
		p := e.post(t, author, "same ms "+string(rune('a'+i)))
		want = append(want, p.Text)
	}

	for name, feed := range map[string]*FeedService{
		"indexes":  e.feed,
		"timeline": NewFeedService(newMemTimeline(), e.posts, e.friends),
	} {
		t.Run(name, func(t *testing.T) {
			var got []string
			cursor := ""
			for page := 0; page < 5; page++ {
				resp, err := feed.HomeFeed(e.ctx, "alice", 2, cursor)
				require.NoError(t, err)
				got = append(got, feedTexts(resp)...)
				if !resp.HasMore {
					break
				}
				require.NotNil(t, resp.NextCursor)
				cursor = *resp.NextCursor
			}
			assert.Len(t, got, len(want), "no post skipped or repeated across pages")
			assert.ElementsMatch(t, want, got)
		})
	}
}

func TestFeedService_WarmsMissingTimeline(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice", "Alice")
	bob := e.user(t, "bob", "Bob")
	e.befriend(t, alice, bob)
	e.post(t, bob, "bob 1")
	e.post(t, alice, "alice 1")

	timeline := newMemTimeline()
	feed := NewFeedService(timeline, e.posts, e.friends)

	page, err := feed.HomeFeed(e.ctx, "alice", 10, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice 1", "bob 1"}, feedTexts(page))
	assert.Equal(t, []string{"alice"}, timeline.warmed)

	// A second read is served from the warmed timeline.
	_, err = feed.HomeFeed(e.ctx, "alice", 10, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, timeline.warmed)
}

func TestFeedService_FallsBackWhenCacheFails(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice", "Alice")
	e.post(t, alice, "alice 1")

	timeline := newMemTimeline()
	timeline.existsErr = errors.New("redis down")
	feed := NewFeedService(timeline, e.posts, e.friends)

	page, err := feed.HomeFeed(e.ctx, "alice", 10, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice 1"}, feedTexts(page))
	assert.Empty(t, timeline.warmed)
}
