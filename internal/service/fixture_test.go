package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"socialsync/internal/config"
	"socialsync/internal/model"
	"socialsync/internal/queue"
	"socialsync/internal/repository"
	"socialsync/internal/store"
)

// =============================================================================
// FAKES
// =============================================================================

// fakePublisher records published events instead of writing to Redis.
type fakePublisher struct {
	mu     sync.Mutex
	events []queue.Event
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, stream string, event queue.Event) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return "1-0", nil
}

func (p *fakePublisher) ofType(typ string) []queue.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []queue.Event
	for _, e := range p.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// fakePusher records push sends.
type fakePusher struct {
	calls []pushCall
	err   error
}

type pushCall struct {
	Tokens []string
	Title  string
	Body   string
	Data   map[string]string
}

func (p *fakePusher) Provider() string { return "fake" }

func (p *fakePusher) SendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	p.calls = append(p.calls, pushCall{Tokens: tokens, Title: title, Body: body, Data: data})
	return p.err
}

// fakeClock hands out strictly increasing times.
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{cur: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Millisecond)
	return c.cur
}

// =============================================================================
// FIXTURE
// =============================================================================

// env wires every service over one in-memory store, the way the server
// wires them over the configured backend.
type env struct {
	ctx   context.Context
	store *store.Watched
	clock *fakeClock
	pub   *fakePublisher

	users   repository.UserRepository
	posts   repository.PostRepository
	notifs  repository.NotificationRepository
	msgs    repository.MessageRepository
	friends repository.FriendRepository
	devices repository.DeviceTokenRepository

	notifications *NotificationService
	postSvc       *PostService
	reactions     *ReactionService
	comments      *CommentService
	chat          *ChatService
	friendSvc     *FriendService
	feed          *FeedService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s := store.NewWatched(store.NewMemory(), store.NewLocalBus())
	e := &env{
		ctx:   context.Background(),
		store: s,
		clock: newFakeClock(),
		pub:   &fakePublisher{},

		users:   repository.NewUserRepository(s),
		posts:   repository.NewPostRepository(s),
		notifs:  repository.NewNotificationRepository(s),
		msgs:    repository.NewMessageRepository(s),
		friends: repository.NewFriendRepository(s),
		devices: repository.NewDeviceTokenRepository(s),
	}

	e.notifications = NewNotificationService(e.notifs, e.devices, e.posts, e.pub, nil, config.NotificationDeletePersist)
	e.notifications.now = e.clock.Now
	e.postSvc = NewPostService(e.posts, e.notifications, e.pub)
	e.postSvc.now = e.clock.Now
	e.reactions = NewReactionService(e.posts, e.notifications)
	e.reactions.now = e.clock.Now
	e.comments = NewCommentService(repository.NewCommentRepository(s), e.posts, e.notifications)
	e.comments.now = e.clock.Now
	e.chat = NewChatService(e.msgs, e.users, s, nil, e.pub)
	e.chat.now = e.clock.Now
	e.friendSvc = NewFriendService(e.friends, e.users, e.notifications, e.pub)
	e.friendSvc.now = e.clock.Now
	e.feed = NewFeedService(nil, e.posts, e.friends)
	return e
}

// user creates a profile and returns its identity.
func (e *env) user(t *testing.T, uid, name string) model.Identity {
	t.Helper()
	require.NoError(t, e.users.Create(e.ctx, &model.User{ID: uid, Username: uid, DisplayName: name}))
	return model.Identity{UID: uid, DisplayName: name}
}

func (e *env) post(t *testing.T, author model.Identity, text string) *model.Post {
	t.Helper()
	p, err := e.postSvc.Create(e.ctx, author, model.CreatePostRequest{Text: text})
	require.NoError(t, err)
	return p
}

func (e *env) inbox(t *testing.T, uid string) []model.Notification {
	t.Helper()
	list, err := e.notifs.List(e.ctx, uid, 0, "")
	require.NoError(t, err)
	return list
}
