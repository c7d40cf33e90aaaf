package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialsync/internal/model"
	"socialsync/internal/repository"
	"socialsync/internal/store"
)

func TestPostRepository_AssemblesReactionsAndComments(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	posts := repository.NewPostRepository(s)
	comments := repository.NewCommentRepository(s)

	p, err := posts.Create(ctx, &model.Post{AuthorID: "alice", AuthorName: "Alice", Text: "hi", CreatedAt: 100}, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)

	require.NoError(t, posts.AddReaction(ctx, p.ID, model.ReactionLike, "bob", model.ReactionInfo{Username: "Bob", Timestamp: 110}))
	// Writing the same member twice keeps one entry.
	require.NoError(t, posts.AddReaction(ctx, p.ID, model.ReactionLike, "bob", model.ReactionInfo{Username: "Bob", Timestamp: 120}))
	require.NoError(t, posts.AddReaction(ctx, p.ID, model.ReactionLaugh, "carol", model.ReactionInfo{Username: "Carol", Timestamp: 130}))
	_, err = comments.Create(ctx, &model.Comment{PostID: p.ID, AuthorID: "bob", Username: "Bob", Text: "nice", CreatedAt: 140})
	require.NoError(t, err)

	got, err := posts.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Text)
	assert.Equal(t, 1, got.Likes.Len())
	assert.Equal(t, int64(120), got.Likes["bob"].Timestamp)
	assert.True(t, got.Laughs.Has("carol"))
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "nice", got.Comments[0].Text)

	require.NoError(t, posts.RemoveReaction(ctx, p.ID, model.ReactionLike, "bob"))
	ok, err := posts.HasReaction(ctx, p.ID, model.ReactionLike, "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, posts.Delete(ctx, p.ID, "alice"))
	_, err = posts.GetByID(ctx, p.ID)
	assert.ErrorIs(t, err, model.ErrPostNotFound)
	recent, err := posts.GetRecentPostsByUser(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestPostRepository_ListByUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	posts := repository.NewPostRepository(s)

	var ids []string
	for i := 0; i < 3; i++ {
		p, err := posts.Create(ctx, &model.Post{AuthorID: "alice", Text: "p", CreatedAt: int64(100 + i)}, "alice")
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	page, err := posts.ListByUser(ctx, "alice", 2, "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)

	page, err = posts.ListByUser(ctx, "alice", 2, page[1].ID)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)

	scores, err := posts.GetRecentPostsByUser(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Equal(t, int64(102), scores[0].Timestamp)
}

func TestMessageRepository_ListAndMarkRead(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	msgs := repository.NewMessageRepository(s)
	chatID := model.ChatID("alice", "bob")

	for i, text := range []string{"one", "two", "three"} {
		_, err := msgs.Create(ctx, &model.Message{
			ChatID: chatID, SenderID: "alice", ReceiverID: "bob", Content: text,
			Timestamp: int64(i), Read: map[string]bool{"alice": true, "bob": false},
		})
		require.NoError(t, err)
	}

	all, err := msgs.List(ctx, chatID, 0, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "one", all[0].Content)
	assert.Equal(t, "three", all[2].Content)

	last, err := msgs.List(ctx, chatID, 2, "")
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "two", last[0].Content)

	require.NoError(t, msgs.MarkRead(ctx, chatID, all[0].ID, "bob"))
	m, err := msgs.GetByID(ctx, chatID, all[0].ID)
	require.NoError(t, err)
	assert.True(t, m.Read["bob"])
	assert.True(t, m.Read["alice"])
	assert.Equal(t, "one", m.Content)
}

func TestMessageRepository_ConversationsNewestFirst(t *testing.T) {
	ctx := context.Background()
	msgs := repository.NewMessageRepository(store.NewMemory())

	require.NoError(t, msgs.UpsertConversation(ctx, "alice", model.Conversation{ChatID: model.ChatID("alice", "bob"), PeerID: "bob", LastMessage: "old", Timestamp: 1}))
	require.NoError(t, msgs.UpsertConversation(ctx, "alice", model.Conversation{ChatID: model.ChatID("alice", "carol"), PeerID: "carol", LastMessage: "new", Timestamp: 2}))

	convs, err := msgs.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "carol", convs[0].PeerID)
	assert.Equal(t, "bob", convs[1].PeerID)
}

func TestNotificationRepository_ReadAndDelete(t *testing.T) {
	ctx := context.Background()
	notifs := repository.NewNotificationRepository(store.NewMemory())

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := notifs.Create(ctx, &model.Notification{RecipientID: "alice", ActorID: "bob", Type: model.NotificationTypeLike, Timestamp: int64(i)})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	list, err := notifs.List(ctx, "alice", 10, "")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID)

	require.NoError(t, notifs.MarkAsRead(ctx, "alice", []string{ids[0], "missing"}))
	unread, err := notifs.GetUnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	_, err = notifs.GetByID(ctx, "alice", "missing")
	assert.ErrorIs(t, err, model.ErrNotificationNotFound)

	require.NoError(t, notifs.MarkAllAsRead(ctx, "alice"))
	unread, err = notifs.GetUnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, unread)

	require.NoError(t, notifs.Delete(ctx, "alice", ids[:2]))
	list, err = notifs.List(ctx, "alice", 10, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ids[2], list[0].ID)
}

func TestNotificationRepository_RejectsIDsOutsideOneKey(t *testing.T) {
	ctx := context.Background()
	notifs := repository.NewNotificationRepository(store.NewMemory())

	id, err := notifs.Create(ctx, &model.Notification{RecipientID: "alice", ActorID: "bob", Type: model.NotificationTypeLike, Timestamp: 1})
	require.NoError(t, err)

	for _, bad := range []string{"", "/", "a/b", "x.y"} {
		assert.ErrorIs(t, notifs.Delete(ctx, "alice", []string{bad}), store.ErrInvalidPath, "delete %q", bad)
		assert.ErrorIs(t, notifs.MarkAsRead(ctx, "alice", []string{bad}), store.ErrInvalidPath, "mark %q", bad)
	}
	// A bad id anywhere in the batch stops the whole batch.
	assert.ErrorIs(t, notifs.Delete(ctx, "alice", []string{id, ""}), store.ErrInvalidPath)

	list, err := notifs.List(ctx, "alice", 10, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.False(t, list[0].Read)
}

func TestUserRepository_UsernameAndSearch(t *testing.T) {
	ctx := context.Background()
	users := repository.NewUserRepository(store.NewMemory())

	require.NoError(t, users.Create(ctx, &model.User{ID: "u1", Username: "alice", DisplayName: "Alice"}))
	require.NoError(t, users.Create(ctx, &model.User{ID: "u2", Username: "alan", DisplayName: "Alan"}))
	require.NoError(t, users.Create(ctx, &model.User{ID: "u3", Username: "bob", DisplayName: "Bob"}))

	require.NoError(t, users.ReserveUsername(ctx, "u1", "alice"))
	require.NoError(t, users.ReserveUsername(ctx, "u1", "Alice"))
	assert.ErrorIs(t, users.ReserveUsername(ctx, "u2", "ALICE"), model.ErrUsernameExists)

	found, err := users.Search(ctx, "AL", 10)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "alan", found[0].Username)
	assert.Equal(t, "alice", found[1].Username)

	name := "alicia"
	require.NoError(t, users.UpdateProfile(ctx, "u1", model.UpdateProfileRequest{DisplayName: &name}))
	u, err := users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alicia", u.DisplayName)
	assert.Equal(t, "alice", u.Username)

	_, err = users.GetByID(ctx, "nobody")
	assert.ErrorIs(t, err, model.ErrUserNotFound)
}

func TestCredentialRepository_EmailIndex(t *testing.T) {
	ctx := context.Background()
	creds := repository.NewCredentialRepository(store.NewMemory())

	require.NoError(t, creds.Create(ctx, "u1", " Alice@Example.com ", "hash1"))

	ok, err := creds.ExistsByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	uid, err := creds.GetUIDByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	require.NoError(t, creds.UpdatePasswordHash(ctx, "u1", "hash2"))
	hash, err := creds.GetPasswordHash(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "hash2", hash)

	_, err = creds.GetUIDByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, model.ErrUserNotFound)
}

func TestRefreshTokenRepository_RevokeAll(t *testing.T) {
	ctx := context.Background()
	tokens := repository.NewRefreshTokenRepository(store.NewMemory())

	require.NoError(t, tokens.Create(ctx, &model.RefreshToken{UserID: "u1", TokenHash: "h1", ExpiresAt: 1 << 60}))
	require.NoError(t, tokens.Create(ctx, &model.RefreshToken{UserID: "u1", TokenHash: "h2", ExpiresAt: 1 << 60}))

	require.NoError(t, tokens.Revoke(ctx, "h1", "h2"))
	t1, err := tokens.FindByTokenHash(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, t1.IsRevoked())
	assert.Equal(t, "h2", t1.ReplacedBy)

	require.NoError(t, tokens.RevokeAllForUser(ctx, "u1"))
	t2, err := tokens.FindByTokenHash(ctx, "h2")
	require.NoError(t, err)
	assert.False(t, t2.IsValid())

	_, err = tokens.FindByTokenHash(ctx, "nope")
	assert.ErrorIs(t, err, model.ErrRefreshTokenNotFound)
}

func TestDeviceTokenRepository_UpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	devices := repository.NewDeviceTokenRepository(store.NewMemory())

	require.NoError(t, devices.Upsert(ctx, "u1", "ExponentPushToken[abc]", model.PlatformIOS))
	require.NoError(t, devices.Upsert(ctx, "u1", "ExponentPushToken[abc]", model.PlatformAndroid))

	list, err := devices.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.PlatformAndroid, list[0].Platform)
	assert.Equal(t, "ExponentPushToken[abc]", list[0].Token)

	require.NoError(t, devices.Delete(ctx, "u1", "ExponentPushToken[abc]"))
	list, err = devices.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}
