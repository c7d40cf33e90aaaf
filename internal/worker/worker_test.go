package worker_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialsync/internal/cache"
	"socialsync/internal/queue"
	"socialsync/internal/worker"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeFriends maps userID -> friend ids.
type fakeFriends map[string][]string

func (f fakeFriends) GetFriendIDs(ctx context.Context, userID string) ([]string, error) {
	return append([]string(nil), f[userID]...), nil
}

// fakePosts maps authorID -> posts newest first.
type fakePosts map[string][]cache.PostScore

func (f fakePosts) GetRecentPostsByUser(ctx context.Context, userID string, limit int) ([]cache.PostScore, error) {
	posts := f[userID]
	if len(posts) > limit {
		return posts[:limit], nil
	}
	return posts, nil
}

type fakePusher struct {
	mu     sync.Mutex
	events []queue.Event
}

func (p *fakePusher) DeliverPush(ctx context.Context, event queue.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// memTimeline is an in-process TimelineCache.
type memTimeline struct {
	mu    sync.Mutex
	lines map[string]map[string]int64
}

func newMemTimeline() *memTimeline {
	return &memTimeline{lines: map[string]map[string]int64{}}
}

func (m *memTimeline) AddPost(ctx context.Context, userID, postID string, ts int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lines[userID] == nil {
		m.lines[userID] = map[string]int64{}
	}
	m.lines[userID][postID] = ts
	return nil
}

func (m *memTimeline) RemovePost(ctx context.Context, userID, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lines[userID], postID)
	if len(m.lines[userID]) == 0 {
		delete(m.lines, userID)
	}
	return nil
}

func (m *memTimeline) GetTimeline(ctx context.Context, userID string, cursor *cache.Cursor, limit int) ([]string, []float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var line []cache.PostScore
	for id, ts := range m.lines[userID] {
		if cursor == nil || cursor.Follows(float64(ts), id) {
			line = append(line, cache.PostScore{PostID: id, Timestamp: ts})
		}
	}
	cache.SortNewestFirst(line)
	if len(line) > limit {
		line = line[:limit]
	}
	ids := make([]string, len(line))
	scores := make([]float64, len(line))
	for i, p := range line {
		ids[i] = p.PostID
		scores[i] = float64(p.Timestamp)
	}
	return ids, scores, nil
}

func (m *memTimeline) GetScore(ctx context.Context, userID, postID string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.lines[userID][postID]
	return ts, ok, nil
}

func (m *memTimeline) Warm(ctx context.Context, userID string, posts []cache.PostScore) error {
	for _, p := range posts {
		_ = m.AddPost(ctx, userID, p.PostID, p.Timestamp)
	}
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
	_, ok := m.lines[userID]
	return ok, nil
}

// =============================================================================
// Handler tests
// =============================================================================

func TestPostCreatedFanout(t *testing.T) {
	ctx := context.Background()
	timeline := newMemTimeline()
	friends := fakeFriends{"alice": {"bob", "carol"}}
	h := worker.NewHandler(timeline, friends, fakePosts{}, nil)

	require.NoError(t, h.HandleEvent(ctx, queue.NewPostCreatedEvent("p1", "alice", 1000)))

	for _, uid := range []string{"alice", "bob", "carol"} {
		score, found, err := timeline.GetScore(ctx, uid, "p1")
		require.NoError(t, err)
		assert.True(t, found, "post missing from %s", uid)
		assert.Equal(t, int64(1000), score)
	}
}

func TestPostDeletedRemoval(t *testing.T) {
	ctx := context.Background()
	timeline := newMemTimeline()
	friends := fakeFriends{"alice": {"bob"}}
	h := worker.NewHandler(timeline, friends, fakePosts{}, nil)

	for _, uid := range []string{"alice", "bob"} {
		require.NoError(t, timeline.AddPost(ctx, uid, "p1", 1000))
	}

	require.NoError(t, h.HandleEvent(ctx, queue.NewPostDeletedEvent("p1", "alice")))

	for _, uid := range []string{"alice", "bob"} {
		_, found, _ := timeline.GetScore(ctx, uid, "p1")
		assert.False(t, found)
	}
}

func TestFriendshipCreatedBackfillsBothSides(t *testing.T) {
	ctx := context.Background()
	timeline := newMemTimeline()
	posts := fakePosts{
		"alice": {{PostID: "a2", Timestamp: 20}, {PostID: "a1", Timestamp: 10}},
		"bob":   {{PostID: "b1", Timestamp: 15}},
	}
	h := worker.NewHandler(timeline, fakeFriends{}, posts, nil)

	require.NoError(t, h.HandleEvent(ctx, queue.NewFriendshipCreatedEvent("alice", "bob")))

	bobSize, _ := timeline.Size(ctx, "bob")
	aliceSize, _ := timeline.Size(ctx, "alice")
	assert.Equal(t, int64(2), bobSize)
	assert.Equal(t, int64(1), aliceSize)

	ids, _, err := timeline.GetTimeline(ctx, "bob", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "a1"}, ids)
}

func TestFriendshipRemovedStripsBothSides(t *testing.T) {
	ctx := context.Background()
	timeline := newMemTimeline()
	posts := fakePosts{
		"alice": {{PostID: "a1", Timestamp: 10}},
		"bob":   {{PostID: "b1", Timestamp: 15}},
		"carol": {{PostID: "c1", Timestamp: 12}},
	}
	h := worker.NewHandler(timeline, fakeFriends{}, posts, nil)

	require.NoError(t, timeline.AddPost(ctx, "bob", "a1", 10))
	require.NoError(t, timeline.AddPost(ctx, "bob", "c1", 12))
	require.NoError(t, timeline.AddPost(ctx, "alice", "b1", 15))

	require.NoError(t, h.HandleEvent(ctx, queue.NewFriendshipRemovedEvent("alice", "bob")))

	_, found, _ := timeline.GetScore(ctx, "bob", "a1")
	assert.False(t, found)
	_, found, _ = timeline.GetScore(ctx, "bob", "c1")
	assert.True(t, found, "posts of other friends stay")
	exists, _ := timeline.Exists(ctx, "alice")
	assert.False(t, exists)
}

func TestPushEventsReachDeliverer(t *testing.T) {
	ctx := context.Background()
	pusher := &fakePusher{}
	h := worker.NewHandler(newMemTimeline(), fakeFriends{}, fakePosts{}, pusher)

	require.NoError(t, h.HandleEvent(ctx, queue.NewNotificationCreatedEvent("alice", "n1", "like", "bob", "Bob", "")))
	require.NoError(t, h.HandleEvent(ctx, queue.NewMessageSentEvent("alice-bob", "m1", "bob", "Bob", "alice", "hi")))

	require.Len(t, pusher.events, 2)
	assert.Equal(t, queue.EventNotificationCreated, pusher.events[0].Type)
	assert.Equal(t, "hi", pusher.events[1].Preview)
}

func TestUnknownEventType(t *testing.T) {
	h := worker.NewHandler(newMemTimeline(), fakeFriends{}, fakePosts{}, nil)
	assert.Error(t, h.HandleEvent(context.Background(), queue.Event{Type: "bogus"}))
}

// =============================================================================
// Manager tests
// =============================================================================

// fakeConsumer serves one batch and records acks.
type fakeConsumer struct {
	mu      sync.Mutex
	pending []queue.Message
	batch   []queue.Message
	acked   []string
}

func (c *fakeConsumer) EnsureGroup(ctx context.Context, stream, group string) error { return nil }

func (c *fakeConsumer) Read(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]queue.Message, error) {
	c.mu.Lock()
	batch := c.batch
	c.batch = nil
	c.mu.Unlock()
	if batch == nil {
		select {
		case <-ctx.Done():
		case <-time.After(10 * time.Millisecond):
		}
	}
	return batch, nil
}

func (c *fakeConsumer) Ack(ctx context.Context, stream, group string, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acked = append(c.acked, ids...)
	return nil
}

func (c *fakeConsumer) Pending(ctx context.Context, stream, group string) (int64, error) { return 0, nil }

func (c *fakeConsumer) ReadPending(ctx context.Context, stream, group, consumer string, count int64) ([]queue.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pending
	c.pending = nil
	return p, nil
}

func (c *fakeConsumer) ackedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.acked...)
}

func TestManagerAcksPendingAndNewMessages(t *testing.T) {
	consumer := &fakeConsumer{
		pending: []queue.Message{{ID: "1-0", Event: queue.NewPostCreatedEvent("p0", "alice", 1)}},
		batch: []queue.Message{
			{ID: "2-0", Event: queue.NewPostCreatedEvent("p1", "alice", 2)},
			{ID: "3-0", Event: queue.Event{Type: "bogus"}},
		},
	}
	timeline := newMemTimeline()
	h := worker.NewHandler(timeline, fakeFriends{}, fakePosts{}, nil)
	m := worker.NewManager(consumer, h, worker.ManagerConfig{WorkerCount: 1})

	require.NoError(t, m.Start(context.Background()))
	require.Eventually(t, func() bool { return len(consumer.ackedIDs()) == 3 }, time.Second, 5*time.Millisecond)
	m.Stop()

	assert.ElementsMatch(t, []string{"1-0", "2-0", "3-0"}, consumer.ackedIDs())
	size, _ := timeline.Size(context.Background(), "alice")
	assert.Equal(t, int64(2), size)
}

// =============================================================================
// Stream + Redis integration
// =============================================================================

func setupTestRedis(t *testing.T) *redis.Client {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	// DB 1 keeps tests away from dev data
	opts.DB = 1

	client := redis.NewClient(opts)
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
	}
	client.FlushDB(ctx)

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

// TestStreamToWorkerIntegration runs Publisher -> Stream -> Consumer -> Handler -> Redis timeline.
func TestStreamToWorkerIntegration(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	timeline := cache.NewTimelineCache(client)
	publisher := queue.NewPublisher(client)
	consumer := queue.NewConsumer(client)
	h := worker.NewHandler(timeline, fakeFriends{"alice": {"bob", "carol"}}, fakePosts{}, nil)

	require.NoError(t, consumer.EnsureGroup(ctx, queue.StreamSocial, queue.ConsumerGroupWorkers))

	_, err := publisher.Publish(ctx, queue.StreamSocial, queue.NewPostCreatedEvent("p1", "alice", time.Now().UnixMilli()))
	require.NoError(t, err)

	messages, err := consumer.Read(ctx, queue.StreamSocial, queue.ConsumerGroupWorkers, "test-worker", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	require.NoError(t, h.HandleEvent(ctx, messages[0].Event))
	require.NoError(t, consumer.Ack(ctx, queue.StreamSocial, queue.ConsumerGroupWorkers, messages[0].ID))

	for _, uid := range []string{"alice", "bob", "carol"} {
		_, found, err := timeline.GetScore(ctx, uid, "p1")
		require.NoError(t, err)
		assert.True(t, found, "post missing from %s", uid)
	}

	pending, err := consumer.Pending(ctx, queue.StreamSocial, queue.ConsumerGroupWorkers)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestRedisTimeline_CursorAndCap(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	timeline := cache.NewTimelineCache(client)

	require.NoError(t, timeline.Warm(ctx, "alice", []cache.PostScore{
		{PostID: "p1", Timestamp: 100},
		{PostID: "p2", Timestamp: 200},
		{PostID: "p3", Timestamp: 300},
	}))

	ids, scores, err := timeline.GetTimeline(ctx, "alice", nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3", "p2"}, ids)

	cursor := cache.Cursor{Score: scores[1], PostID: ids[1]}
	ids, _, err = timeline.GetTimeline(ctx, "alice", &cursor, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)
}

func TestRedisTimeline_CursorBreaksTiesByID(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	timeline := cache.NewTimelineCache(client)

	require.NoError(t, timeline.Warm(ctx, "alice", []cache.PostScore{
		{PostID: "a", Timestamp: 100},
		{PostID: "b", Timestamp: 200},
		{PostID: "c", Timestamp: 200},
		{PostID: "d", Timestamp: 200},
		{PostID: "e", Timestamp: 300},
	}))

	var all []string
	var cursor *cache.Cursor
	for page := 0; page < 5; page++ {
		ids, scores, err := timeline.GetTimeline(ctx, "alice", cursor, 2)
		require.NoError(t, err)
		if len(ids) == 0 {
			break
		}
		all = append(all, ids...)
		cursor = &cache.Cursor{Score: scores[len(scores)-1], PostID: ids[len(ids)-1]}
	}
	assert.Equal(t, []string{"e", "d", "c", "b", "a"}, all)
}
