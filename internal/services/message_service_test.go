package services

import (
	"testing"
	"time"

	"teamchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func testChat(sender primitive.ObjectID, perms ...models.Permission) *models.Chat {
	return &models.Chat{
		ID:        primitive.NewObjectID(),
		ChatType:  models.ChatTypeGroup,
		CreatedBy: primitive.NewObjectID(),
		Settings:  models.DefaultChatSettings(),
		Participants: []models.Participant{
			{
				ID:          "p1",
				UserID:      sender,
				Name:        "alice",
				Role:        models.RoleMember,
				IsActive:    true,
				Permissions: perms,
			},
		},
	}
}

func TestValidateSendRequiresMembership(t *testing.T) {
	sender := primitive.NewObjectID()
	chat := testChat(sender, models.PermSendMessages)

	err := validateSend(chat, SendMessageInput{
		Sender:  models.UserSnapshot{UserID: primitive.NewObjectID()},
		Content: "hello",
	}, 4000, time.Now())

	// non-members get not-found, not forbidden, so the chat's
	// existence is never confirmed
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateSendEmptyContent(t *testing.T) {
	sender := primitive.NewObjectID()
	chat := testChat(sender, models.PermSendMessages, models.PermSendFiles)

	err := validateSend(chat, SendMessageInput{
		Sender: models.UserSnapshot{UserID: sender},
	}, 4000, time.Now())
	assert.ErrorIs(t, err, ErrValidation)

	// attachments alone are a valid payload
	err = validateSend(chat, SendMessageInput{
		Sender:      models.UserSnapshot{UserID: sender},
		Attachments: []models.Attachment{{FileID: "f1"}},
	}, 4000, time.Now())
	assert.NoError(t, err)
}

func TestValidateSendUnknownType(t *testing.T) {
	sender := primitive.NewObjectID()
	chat := testChat(sender, models.PermSendMessages)

	err := validateSend(chat, SendMessageInput{
		Sender:      models.UserSnapshot{UserID: sender},
		Content:     "hello",
		MessageType: "sticker",
	}, 4000, time.Now())
	assert.ErrorIs(t, err, ErrValidation)

	// an empty type defaults to text
	err = validateSend(chat, SendMessageInput{
		Sender:  models.UserSnapshot{UserID: sender},
		Content: "hello",
	}, 4000, time.Now())
	assert.NoError(t, err)
}

func TestValidateSendPermissions(t *testing.T) {
	sender := primitive.NewObjectID()

	chat := testChat(sender)
	err := validateSend(chat, SendMessageInput{
		Sender:  models.UserSnapshot{UserID: sender},
		Content: "hello",
	}, 4000, time.Now())
	assert.ErrorIs(t, err, ErrPermissionDenied)

	chat = testChat(sender, models.PermSendMessages)
	err = validateSend(chat, SendMessageInput{
		Sender:      models.UserSnapshot{UserID: sender},
		Content:     "report",
		Attachments: []models.Attachment{{FileID: "f1"}},
	}, 4000, time.Now())
	assert.ErrorIs(t, err, ErrPermissionDenied, "attachments need send-files on top of send-messages")
}

func TestValidateSendSettingsToggles(t *testing.T) {
	sender := primitive.NewObjectID()
	replyTo := primitive.NewObjectID()

	chat := testChat(sender, models.PermSendMessages, models.PermSendFiles)
	chat.Settings.AllowFileSharing = false
	err := validateSend(chat, SendMessageInput{
		Sender:      models.UserSnapshot{UserID: sender},
		Attachments: []models.Attachment{{FileID: "f1"}},
	}, 4000, time.Now())
	assert.ErrorIs(t, err, ErrValidation)

	chat = testChat(sender, models.PermSendMessages)
	chat.Settings.AllowThreads = false
	err = validateSend(chat, SendMessageInput{
		Sender:    models.UserSnapshot{UserID: sender},
		Content:   "reply",
		ReplyToID: &replyTo,
	}, 4000, time.Now())
	assert.ErrorIs(t, err, ErrValidation)

	chat = testChat(sender, models.PermSendMessages)
	chat.Settings.AllowMentions = false
	err = validateSend(chat, SendMessageInput{
		Sender:   models.UserSnapshot{UserID: sender},
		Content:  "hey @bob",
		Mentions: []models.Mention{{UserID: primitive.NewObjectID(), Name: "bob"}},
	}, 4000, time.Now())
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidateSendContentLimit(t *testing.T) {
	sender := primitive.NewObjectID()
	chat := testChat(sender, models.PermSendMessages)

	err := validateSend(chat, SendMessageInput{
		Sender:  models.UserSnapshot{UserID: sender},
		Content: "this is far too long",
	}, 10, time.Now())
	assert.ErrorIs(t, err, ErrValidation)

	// zero disables the limit
	err = validateSend(chat, SendMessageInput{
		Sender:  models.UserSnapshot{UserID: sender},
		Content: "this is far too long",
	}, 0, time.Now())
	assert.NoError(t, err)
}

func TestMessageRecipients(t *testing.T) {
	sender := primitive.NewObjectID()
	active := primitive.NewObjectID()
	departed := primitive.NewObjectID()
	muted := primitive.NewObjectID()
	lapsed := primitive.NewObjectID()
	now := time.Now()
	until := now.Add(time.Hour)
	expired := now.Add(-time.Hour)

	chat := testChat(sender, models.PermSendMessages)
	chat.Participants = append(chat.Participants,
		models.Participant{ID: "p2", UserID: active, Role: models.RoleMember, IsActive: true},
		models.Participant{ID: "p3", UserID: departed, Role: models.RoleMember, IsActive: false},
		models.Participant{ID: "p4", UserID: muted, Role: models.RoleMember, IsActive: true,
			IsMuted: true, MutedUntil: &until},
		models.Participant{ID: "p5", UserID: lapsed, Role: models.RoleMember, IsActive: true,
			IsMuted: true, MutedUntil: &expired},
	)

	got := messageRecipients(chat, sender, now)

	// a lapsed mute counts again; the sender, departed and still-muted
	// participants never do
	assert.ElementsMatch(t, []primitive.ObjectID{active, lapsed}, got)
}

func TestHistoryPageCursorMatchesSort(t *testing.T) {
	chatID := primitive.NewObjectID()
	before := primitive.NewObjectID()

	filter, opts := historyPage(chatID, &before, 50)
	assert.Equal(t, chatID, filter["chat_id"])
	assert.Equal(t, bson.M{"$lt": before}, filter["_id"])

	sort, ok := opts.Sort.(bson.D)
	require.True(t, ok)
	require.Len(t, sort, 1)
	assert.Equal(t, "_id", sort[0].Key)
	assert.Equal(t, -1, sort[0].Value)
	require.NotNil(t, opts.Limit)
	assert.EqualValues(t, 50, *opts.Limit)

	filter, _ = historyPage(chatID, nil, 50)
	_, hasCursor := filter["_id"]
	assert.False(t, hasCursor)
}

func TestCanEditMessageWindow(t *testing.T) {
	sender := primitive.NewObjectID()
	chat := testChat(sender, models.PermSendMessages)
	created := time.Now()
	msg := &models.Message{
		Sender:    models.UserSnapshot{UserID: sender},
		Content:   "typo",
		CreatedAt: created,
	}

	assert.NoError(t, canEditMessage(chat, msg, sender, created.Add(time.Hour)))
	assert.NoError(t, canEditMessage(chat, msg, sender, created.Add(models.EditWindow)))

	err := canEditMessage(chat, msg, sender, created.Add(models.EditWindow+time.Minute))
	assert.ErrorIs(t, err, ErrPermissionDenied, "the window closes after 24 hours")
}

func TestCanEditMessageModeratorBypass(t *testing.T) {
	sender := primitive.NewObjectID()
	moderator := primitive.NewObjectID()
	chat := testChat(sender, models.PermSendMessages)
	chat.Participants = append(chat.Participants, models.Participant{
		ID:          "p2",
		UserID:      moderator,
		Role:        models.RoleModerator,
		IsActive:    true,
		Permissions: []models.Permission{models.PermEditAnyMessages},
	})
	created := time.Now().Add(-48 * time.Hour)
	msg := &models.Message{
		Sender:    models.UserSnapshot{UserID: sender},
		CreatedAt: created,
	}

	// edit-any-messages ignores both authorship and the window
	assert.NoError(t, canEditMessage(chat, msg, moderator, time.Now()))
}

func TestCanEditMessageGuards(t *testing.T) {
	sender := primitive.NewObjectID()
	other := primitive.NewObjectID()
	chat := testChat(sender, models.PermSendMessages)
	chat.Participants = append(chat.Participants, models.Participant{
		ID: "p2", UserID: other, Role: models.RoleMember, IsActive: true,
		Permissions: []models.Permission{models.PermSendMessages},
	})
	now := time.Now()
	msg := &models.Message{
		Sender:    models.UserSnapshot{UserID: sender},
		CreatedAt: now,
	}

	err := canEditMessage(chat, msg, other, now)
	assert.ErrorIs(t, err, ErrPermissionDenied, "only the sender may edit")

	chat.Settings.AllowEditing = false
	err = canEditMessage(chat, msg, sender, now)
	assert.ErrorIs(t, err, ErrValidation)
	chat.Settings.AllowEditing = true

	deleted := &models.Message{Sender: models.UserSnapshot{UserID: sender}, CreatedAt: now}
	deleted.ScrubForEveryone(sender, now)
	err = canEditMessage(chat, deleted, sender, now)
	assert.ErrorIs(t, err, ErrValidation, "a scrubbed message cannot be edited")
}

func TestCanDeleteMessage(t *testing.T) {
	sender := primitive.NewObjectID()
	other := primitive.NewObjectID()
	moderator := primitive.NewObjectID()
	chat := testChat(sender, models.PermSendMessages)
	chat.Participants = append(chat.Participants,
		models.Participant{
			ID: "p2", UserID: other, Role: models.RoleMember, IsActive: true,
			Permissions: []models.Permission{models.PermSendMessages},
		},
		models.Participant{
			ID: "p3", UserID: moderator, Role: models.RoleModerator, IsActive: true,
			Permissions: []models.Permission{models.PermDeleteAnyMessages},
		},
	)
	msg := &models.Message{Sender: models.UserSnapshot{UserID: sender}}

	assert.NoError(t, canDeleteMessage(chat, msg, sender))
	assert.NoError(t, canDeleteMessage(chat, msg, moderator))
	assert.ErrorIs(t, canDeleteMessage(chat, msg, other), ErrPermissionDenied)

	chat.Settings.AllowDeleting = false
	assert.ErrorIs(t, canDeleteMessage(chat, msg, sender), ErrValidation)
}

func TestSendMessageInputDefaults(t *testing.T) {
	sender := primitive.NewObjectID()
	chat := testChat(sender, models.PermSendMessages)

	input := SendMessageInput{
		ChatID:  chat.ID,
		Sender:  models.UserSnapshot{UserID: sender, Name: "alice"},
		Content: "hello",
	}
	require.NoError(t, validateSend(chat, input, 4000, time.Now()))
}
