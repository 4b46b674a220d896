package models

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMarkReadByIdempotent(t *testing.T) {
	msg := Message{DeliveryStatus: StatusSent}
	reader := primitive.NewObjectID()
	now := time.Now()

	added := msg.MarkReadBy(reader, "alice", now)
	require.True(t, added)
	require.Len(t, msg.ReadBy, 1)
	assert.Equal(t, StatusRead, msg.DeliveryStatus)

	added = msg.MarkReadBy(reader, "alice", now.Add(time.Minute))
	assert.False(t, added)
	assert.Len(t, msg.ReadBy, 1, "second mark must not duplicate the receipt")
	assert.Equal(t, now, msg.ReadBy[0].ReadAt, "original receipt timestamp must survive")
}

func TestAdvanceStatusForwardOnly(t *testing.T) {
	msg := Message{DeliveryStatus: StatusRead}

	msg.AdvanceStatus(StatusDelivered)
	assert.Equal(t, StatusRead, msg.DeliveryStatus, "read is sticky")

	msg = Message{DeliveryStatus: StatusSending}
	msg.AdvanceStatus(StatusDelivered)
	assert.Equal(t, StatusDelivered, msg.DeliveryStatus)
	msg.AdvanceStatus(StatusSent)
	assert.Equal(t, StatusDelivered, msg.DeliveryStatus)

	// failed is a client-only terminal state and never part of the
	// forward chain
	msg = Message{DeliveryStatus: StatusFailed}
	msg.AdvanceStatus(StatusRead)
	assert.Equal(t, StatusFailed, msg.DeliveryStatus)
}

func TestAddReactionReplacesExistingPair(t *testing.T) {
	msg := Message{}
	user := primitive.NewObjectID()
	first := time.Now()
	second := first.Add(time.Hour)

	msg.AddReaction(user, "alice", "👍", first)
	msg.AddReaction(user, "alice", "👍", second)

	require.Len(t, msg.Reactions, 1)
	assert.Equal(t, second, msg.Reactions[0].ReactedAt)

	// a different emoji from the same user is a separate entry
	msg.AddReaction(user, "alice", "🎉", second)
	assert.Len(t, msg.Reactions, 2)
}

func TestRemoveReaction(t *testing.T) {
	msg := Message{}
	alice := primitive.NewObjectID()
	bob := primitive.NewObjectID()
	now := time.Now()

	msg.AddReaction(alice, "alice", "👍", now)
	msg.AddReaction(bob, "bob", "👍", now)

	assert.True(t, msg.RemoveReaction(alice, "👍"))
	require.Len(t, msg.Reactions, 1)
	assert.Equal(t, bob, msg.Reactions[0].UserID)

	assert.False(t, msg.RemoveReaction(alice, "👍"), "removing twice reports nothing removed")
}

func TestApplyEditAppendsHistory(t *testing.T) {
	editor := primitive.NewObjectID()
	msg := Message{Content: "first"}
	at := time.Now()

	msg.ApplyEdit(editor, "second", "", at)
	msg.ApplyEdit(editor, "third", "typo", at.Add(time.Minute))

	assert.Equal(t, "third", msg.Content)
	assert.True(t, msg.IsEdited)
	require.Len(t, msg.EditHistory, 2)
	assert.Equal(t, "first", msg.EditHistory[0].PreviousContent)
	assert.Equal(t, "second", msg.EditHistory[1].PreviousContent)
	assert.Equal(t, "typo", msg.EditHistory[1].Reason)
}

func TestScrubForEveryone(t *testing.T) {
	actor := primitive.NewObjectID()
	msg := Message{
		ID:      primitive.NewObjectID(),
		ChatID:  primitive.NewObjectID(),
		Content: "secret",
		Attachments: []Attachment{
			{FileID: "f1", FileName: "leak.pdf"},
		},
	}
	id, chatID := msg.ID, msg.ChatID

	msg.ScrubForEveryone(actor, time.Now())

	assert.Equal(t, DeletedPlaceholder, msg.Content)
	assert.Empty(t, msg.Attachments)
	assert.True(t, msg.IsDeleted)
	assert.Equal(t, DeleteForEveryone, msg.DeletedFor)
	require.NotNil(t, msg.DeletedBy)
	assert.Equal(t, actor, *msg.DeletedBy)
	assert.Equal(t, id, msg.ID, "the record stays addressable")
	assert.Equal(t, chatID, msg.ChatID)
}

func TestVisibilityAfterSenderDelete(t *testing.T) {
	sender := primitive.NewObjectID()
	other := primitive.NewObjectID()
	msg := Message{Sender: UserSnapshot{UserID: sender, Name: "alice"}, Content: "hi"}

	assert.True(t, msg.VisibleTo(sender))
	assert.True(t, msg.VisibleTo(other))

	msg.HideForSender(sender, time.Now())

	assert.False(t, msg.VisibleTo(sender), "sender-scoped delete hides from the sender")
	assert.True(t, msg.VisibleTo(other), "everyone else keeps seeing the message")
	assert.Equal(t, "hi", msg.Content, "content is retained for other viewers")
}

func TestVisibilityAfterEveryoneDelete(t *testing.T) {
	sender := primitive.NewObjectID()
	other := primitive.NewObjectID()
	msg := Message{Sender: UserSnapshot{UserID: sender}}

	msg.ScrubForEveryone(sender, time.Now())

	// everyone-scoped deletes stay visible as a placeholder
	assert.True(t, msg.VisibleTo(sender))
	assert.True(t, msg.VisibleTo(other))
}

func TestUnpinClearsMetadata(t *testing.T) {
	pinner := primitive.NewObjectID()
	at := time.Now()
	msg := Message{
		IsPinned:     true,
		PinnedBy:     &pinner,
		PinnedAt:     &at,
		PinnedReason: "important",
	}

	msg.Unpin()

	assert.False(t, msg.IsPinned)
	assert.Nil(t, msg.PinnedBy)
	assert.Nil(t, msg.PinnedAt)
	assert.Empty(t, msg.PinnedReason)
}

func TestNewReplySnapshotTruncatesPreview(t *testing.T) {
	target := &Message{
		ID:        primitive.NewObjectID(),
		Sender:    UserSnapshot{UserID: primitive.NewObjectID(), Name: "bob"},
		Content:   strings.Repeat("x", 250),
		CreatedAt: time.Now(),
	}

	snap := NewReplySnapshot(target)

	assert.Equal(t, target.ID, snap.MessageID)
	assert.Equal(t, "bob", snap.SenderName)
	assert.Len(t, snap.Content, 100)

	short := &Message{Content: "short"}
	assert.Equal(t, "short", NewReplySnapshot(short).Content)
}

func TestNewReplySnapshotKeepsRunesIntact(t *testing.T) {
	// 3-byte runes straddle the byte cutoff
	target := &Message{Content: strings.Repeat("日", 50)}

	snap := NewReplySnapshot(target)

	assert.True(t, utf8.ValidString(snap.Content))
	assert.Equal(t, strings.Repeat("日", 33), snap.Content)
	assert.LessOrEqual(t, len(snap.Content), 100)
}

func TestMessageTypeValid(t *testing.T) {
	assert.True(t, MessageTypeText.Valid())
	assert.True(t, MessageTypeSystem.Valid())
	assert.False(t, MessageType("sticker").Valid())
}
