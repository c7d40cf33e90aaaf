package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChatID_IsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"B", "A"},
		{"uid-9", "uid-10"},
	}
	for _, p := range pairs {
		assert.Equal(t, ChatID(p[0], p[1]), ChatID(p[1], p[0]))
	}
	assert.Equal(t, "A-B", ChatID("B", "A"))
}

func TestMessage_NeedsReceipt(t *testing.T) {
	m := Message{SenderID: "alice", ReceiverID: "bob", Read: map[string]bool{"alice": true, "bob": false}}
	assert.True(t, m.NeedsReceipt("bob"))
	assert.False(t, m.NeedsReceipt("alice"))

	m.Read["bob"] = true
	assert.False(t, m.NeedsReceipt("bob"))
}

func TestParseReactionKind(t *testing.T) {
	k, err := ParseReactionKind("laugh")
	assert.NoError(t, err)
	assert.Equal(t, "laughs", k.Collection())
	assert.Equal(t, NotificationTypeLaugh, k.NotificationType())

	_, err = ParseReactionKind("love")
	assert.ErrorIs(t, err, ErrInvalidReactionKind)
}

func TestPost_ComputeDerived(t *testing.T) {
	p := Post{
		Likes:    ReactionSet{"bob": {}, "carol": {}},
		Laughs:   ReactionSet{"alice": {}},
		Comments: []Comment{{ID: "c1"}},
	}
	p.ComputeDerived("alice")
	assert.Equal(t, 2, p.LikeCount)
	assert.Equal(t, 1, p.LaughCount)
	assert.Equal(t, 1, p.CommentCount)
	assert.False(t, p.LikedByMe)
	assert.True(t, p.LaughedByMe)
	assert.Equal(t, []string{"bob", "carol"}, p.Likes.UserIDs())
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, ClampLimit(0))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxPageSize, ClampLimit(1000))
}
