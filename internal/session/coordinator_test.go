package session

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"teamchat/internal/models"
	"teamchat/internal/realtime"
	"teamchat/internal/websocket"
	"teamchat/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

type fakeAPI struct {
	mu            sync.Mutex
	chat          *models.Chat
	messages      []models.Message
	sendFunc      func(chatID string, input SendInput) (*models.Message, error)
	markReadCalls int
	markReadErr   error
}

func (f *fakeAPI) GetChat(chatID string) (*models.Chat, error) {
	if f.chat == nil {
		return nil, fmt.Errorf("chat not found")
	}
	return f.chat, nil
}

func (f *fakeAPI) GetMessages(chatID string, limit int) ([]models.Message, error) {
	return append([]models.Message(nil), f.messages...), nil
}

func (f *fakeAPI) SendMessage(chatID string, input SendInput) (*models.Message, error) {
	if f.sendFunc != nil {
		return f.sendFunc(chatID, input)
	}
	return nil, fmt.Errorf("no send configured")
}

func (f *fakeAPI) MarkChatRead(chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadCalls++
	return f.markReadErr
}

func (f *fakeAPI) readCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markReadCalls
}

type fakeLink struct {
	mu     sync.Mutex
	sent   []*websocket.Event
	status realtime.Status
	closed bool
}

func (f *fakeLink) Send(event *websocket.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, event)
}

func (f *fakeLink) Status() realtime.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeLink) sentOfType(eventType websocket.EventType) []*websocket.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := make([]*websocket.Event, 0)
	for _, e := range f.sent {
		if e.Type == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

var chatHex = primitive.NewObjectID().Hex()

func newTestCoordinator(t *testing.T, api *fakeAPI, link *fakeLink, opts ...Option) (*Coordinator, primitive.ObjectID) {
	t.Helper()
	userID := primitive.NewObjectID()
	if api.chat == nil {
		api.chat = &models.Chat{
			ID:       chatObjectID(chatHex),
			ChatType: models.ChatTypeGroup,
			Participants: []models.Participant{
				{UserID: userID, Name: "alice", IsActive: true},
			},
		}
	}
	c := NewCoordinator(chatHex, userID, "alice", api, link, opts...)
	require.NoError(t, c.Load())
	t.Cleanup(func() { c.Close() })
	return c, userID
}

func remoteMessage(sender primitive.ObjectID, content string) models.Message {
	return models.Message{
		ID:             primitive.NewObjectID(),
		ChatID:         chatObjectID(chatHex),
		Sender:         models.UserSnapshot{UserID: sender, Name: "bob"},
		Content:        content,
		MessageType:    models.MessageTypeText,
		DeliveryStatus: models.StatusSent,
		CreatedAt:      time.Now(),
	}
}

func newMessageEvent(t *testing.T, msg models.Message) *websocket.Event {
	t.Helper()
	event, err := websocket.NewEvent(websocket.EventNewMessage, chatHex, msg)
	require.NoError(t, err)
	return event
}

func TestLoadPullsChatAndHistory(t *testing.T) {
	sender := primitive.NewObjectID()
	api := &fakeAPI{messages: []models.Message{remoteMessage(sender, "hello")}}
	c, _ := newTestCoordinator(t, api, &fakeLink{})

	require.NotNil(t, c.Chat())
	messages := c.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Content)
}

func TestOptimisticSendSuccess(t *testing.T) {
	api := &fakeAPI{}
	c, userID := newTestCoordinator(t, api, &fakeLink{})

	stored := models.Message{
		ID:             primitive.NewObjectID(),
		Sender:         models.UserSnapshot{UserID: userID, Name: "alice"},
		Content:        "hi there",
		DeliveryStatus: models.StatusSent,
	}
	api.sendFunc = func(chatID string, input SendInput) (*models.Message, error) {
		// while the request is in flight the placeholder is visible
		messages := c.Messages()
		require.Len(t, messages, 1)
		assert.Equal(t, models.StatusSending, messages[0].DeliveryStatus)
		assert.NotEmpty(t, messages[0].LocalID)
		out := stored
		return &out, nil
	}

	msg, err := c.SendMessage(SendInput{Content: "hi there"})
	require.NoError(t, err)
	assert.Equal(t, stored.ID, msg.ID)

	messages := c.Messages()
	require.Len(t, messages, 1, "the placeholder is replaced, not duplicated")
	assert.Equal(t, stored.ID, messages[0].ID)
	assert.Equal(t, models.StatusSent, messages[0].DeliveryStatus)
}

func TestOptimisticSendFailureMarksInPlace(t *testing.T) {
	api := &fakeAPI{}
	c, _ := newTestCoordinator(t, api, &fakeLink{})
	api.sendFunc = func(chatID string, input SendInput) (*models.Message, error) {
		return nil, fmt.Errorf("boom")
	}

	_, err := c.SendMessage(SendInput{Content: "doomed"})
	require.Error(t, err)

	messages := c.Messages()
	require.Len(t, messages, 1, "the failed entry stays visible for retry")
	assert.Equal(t, models.StatusFailed, messages[0].DeliveryStatus)
	assert.Equal(t, "doomed", messages[0].Content)
	assert.NotEmpty(t, messages[0].LocalID)
}

func TestSocketEchoBeatsResponse(t *testing.T) {
	api := &fakeAPI{}
	c, userID := newTestCoordinator(t, api, &fakeLink{})

	storedID := primitive.NewObjectID()
	api.sendFunc = func(chatID string, input SendInput) (*models.Message, error) {
		// simulate the broadcast arriving before the HTTP response;
		// the echo carries the sender's correlation id
		echo := models.Message{
			ID:             storedID,
			Sender:         models.UserSnapshot{UserID: userID, Name: "alice"},
			Content:        input.Content,
			DeliveryStatus: models.StatusSent,
		}
		c.mu.Lock()
		localID := c.messages[len(c.messages)-1].LocalID
		c.mu.Unlock()
		echo.LocalID = localID
		c.HandleEvent(newMessageEvent(t, echo))

		stored := echo
		return &stored, nil
	}

	_, err := c.SendMessage(SendInput{Content: "raced"})
	require.NoError(t, err)

	messages := c.Messages()
	require.Len(t, messages, 1, "echo and response must collapse into one entry")
	assert.Equal(t, storedID, messages[0].ID)
}

func TestHandleNewMessageDeduplicates(t *testing.T) {
	api := &fakeAPI{}
	c, _ := newTestCoordinator(t, api, &fakeLink{})

	msg := remoteMessage(primitive.NewObjectID(), "once")
	event := newMessageEvent(t, msg)
	c.HandleEvent(event)
	c.HandleEvent(event)

	assert.Len(t, c.Messages(), 1)
}

func TestHandleMessageUpdated(t *testing.T) {
	api := &fakeAPI{}
	c, _ := newTestCoordinator(t, api, &fakeLink{})

	msg := remoteMessage(primitive.NewObjectID(), "original")
	c.HandleEvent(newMessageEvent(t, msg))

	msg.Content = "edited"
	msg.IsEdited = true
	event, err := websocket.NewEvent(websocket.EventMessageUpdated, chatHex, msg)
	require.NoError(t, err)
	c.HandleEvent(event)

	messages := c.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "edited", messages[0].Content)
	assert.True(t, messages[0].IsEdited)
}

func TestHandleMessageDeleted(t *testing.T) {
	api := &fakeAPI{}
	c, _ := newTestCoordinator(t, api, &fakeLink{})

	msg := remoteMessage(primitive.NewObjectID(), "going away")
	c.HandleEvent(newMessageEvent(t, msg))

	event, err := websocket.NewEvent(websocket.EventMessageDeleted, chatHex, websocket.DeletedPayload{
		MessageID: msg.ID.Hex(),
		Scope:     string(models.DeleteForEveryone),
	})
	require.NoError(t, err)
	c.HandleEvent(event)

	assert.Empty(t, c.Messages())
}

func TestHandleReactionReplacesWholesale(t *testing.T) {
	api := &fakeAPI{}
	c, _ := newTestCoordinator(t, api, &fakeLink{})

	msg := remoteMessage(primitive.NewObjectID(), "react to me")
	msg.Reactions = []models.Reaction{{UserID: primitive.NewObjectID(), Emoji: "👍"}}
	c.HandleEvent(newMessageEvent(t, msg))

	// the authoritative set no longer contains the old reaction
	updated := msg
	updated.Reactions = []models.Reaction{{UserID: primitive.NewObjectID(), Emoji: "🎉"}}
	event, err := websocket.NewEvent(websocket.EventMessageReaction, chatHex, updated)
	require.NoError(t, err)
	c.HandleEvent(event)

	messages := c.Messages()
	require.Len(t, messages, 1)
	require.Len(t, messages[0].Reactions, 1)
	assert.Equal(t, "🎉", messages[0].Reactions[0].Emoji)
}

func TestTypingIndicators(t *testing.T) {
	api := &fakeAPI{}
	c, userID := newTestCoordinator(t, api, &fakeLink{})

	bob := primitive.NewObjectID()
	start, err := websocket.NewEvent(websocket.EventTypingStart, chatHex, websocket.TypingPayload{
		UserID: bob.Hex(), UserName: "bob",
	})
	require.NoError(t, err)

	c.HandleEvent(start)
	c.HandleEvent(start)
	typing := c.TypingUsers()
	require.Len(t, typing, 1, "repeated starts do not duplicate")
	assert.Equal(t, "bob", typing[0].Name)

	// own indicator is never reflected back
	self, err := websocket.NewEvent(websocket.EventTypingStart, chatHex, websocket.TypingPayload{
		UserID: userID.Hex(), UserName: "alice",
	})
	require.NoError(t, err)
	c.HandleEvent(self)
	assert.Len(t, c.TypingUsers(), 1)

	stop, err := websocket.NewEvent(websocket.EventTypingStop, chatHex, websocket.TypingPayload{
		UserID: bob.Hex(),
	})
	require.NoError(t, err)
	c.HandleEvent(stop)
	assert.Empty(t, c.TypingUsers())
}

func TestStartTypingEmitsOnceAndAutoStops(t *testing.T) {
	api := &fakeAPI{}
	link := &fakeLink{}
	c, _ := newTestCoordinator(t, api, link, WithTypingIdle(20*time.Millisecond))

	c.StartTyping()
	c.StartTyping()
	c.StartTyping()
	assert.Len(t, link.sentOfType(websocket.EventTypingStart), 1,
		"repeated keystrokes only push the idle timer back")

	require.Eventually(t, func() bool {
		return len(link.sentOfType(websocket.EventTypingStop)) == 1
	}, 2*time.Second, 5*time.Millisecond, "idle timer should stop typing")

	c.StopTyping()
	assert.Len(t, link.sentOfType(websocket.EventTypingStop), 1,
		"stopping while not typing is a no-op")
}

func TestMarkAsReadNoopWhenNothingUnread(t *testing.T) {
	api := &fakeAPI{}
	link := &fakeLink{}
	c, _ := newTestCoordinator(t, api, link)

	require.NoError(t, c.MarkAsRead())
	assert.Zero(t, api.readCalls())
	assert.Empty(t, link.sentOfType(websocket.EventMarkRead))
}

func TestMarkAsReadPatchesReceiptsAndHints(t *testing.T) {
	bob := primitive.NewObjectID()
	api := &fakeAPI{messages: []models.Message{
		remoteMessage(bob, "unread one"),
		remoteMessage(bob, "unread two"),
	}}
	link := &fakeLink{}
	c, userID := newTestCoordinator(t, api, link)

	require.NoError(t, c.MarkAsRead())
	assert.Equal(t, 1, api.readCalls(), "one bulk call covers the whole chat")

	for _, m := range c.Messages() {
		assert.True(t, m.HasReadBy(userID))
	}

	hints := link.sentOfType(websocket.EventMarkRead)
	require.Len(t, hints, 1)
	var payload websocket.ReadPayload
	require.NoError(t, hints[0].Decode(&payload))
	assert.Len(t, payload.MessageIDs, 2)

	// already read, so the second call is a pure no-op
	require.NoError(t, c.MarkAsRead())
	assert.Equal(t, 1, api.readCalls())
}

func TestRemoteReadMarksOwnMessages(t *testing.T) {
	api := &fakeAPI{}
	c, userID := newTestCoordinator(t, api, &fakeLink{})

	mine := remoteMessage(userID, "sent by me")
	mine.Sender = models.UserSnapshot{UserID: userID, Name: "alice"}
	c.HandleEvent(newMessageEvent(t, mine))

	bob := primitive.NewObjectID()
	event, err := websocket.NewEvent(websocket.EventMarkRead, chatHex, websocket.ReadPayload{
		UserID: bob.Hex(), UserName: "bob",
	})
	require.NoError(t, err)
	c.HandleEvent(event)

	messages := c.Messages()
	require.Len(t, messages, 1)
	assert.True(t, messages[0].HasReadBy(bob))
	assert.Equal(t, models.StatusRead, messages[0].DeliveryStatus)
}

func TestPresenceEventsPatchParticipants(t *testing.T) {
	bob := primitive.NewObjectID()
	api := &fakeAPI{chat: &models.Chat{
		ID: chatObjectID(chatHex),
		Participants: []models.Participant{
			{UserID: bob, Name: "bob", IsActive: true},
		},
	}}
	c, _ := newTestCoordinator(t, api, &fakeLink{})

	online, err := websocket.NewEvent(websocket.EventUserOnline, chatHex, websocket.PresencePayload{UserID: bob.Hex()})
	require.NoError(t, err)
	c.HandleEvent(online)
	assert.True(t, c.Chat().FindParticipant(bob).IsOnline)

	// going offline also clears any stale typing state
	start, err := websocket.NewEvent(websocket.EventTypingStart, chatHex, websocket.TypingPayload{UserID: bob.Hex(), UserName: "bob"})
	require.NoError(t, err)
	c.HandleEvent(start)
	require.Len(t, c.TypingUsers(), 1)

	offline, err := websocket.NewEvent(websocket.EventUserOffline, chatHex, websocket.PresencePayload{UserID: bob.Hex()})
	require.NoError(t, err)
	c.HandleEvent(offline)
	assert.False(t, c.Chat().FindParticipant(bob).IsOnline)
	assert.Empty(t, c.TypingUsers())
}

func TestAutoReadAfterIncomingMessage(t *testing.T) {
	api := &fakeAPI{}
	link := &fakeLink{status: realtime.StatusConnected}
	c, _ := newTestCoordinator(t, api, link, WithMarkReadWait(10*time.Millisecond))
	c.HandleStatus(realtime.StatusConnected)

	c.HandleEvent(newMessageEvent(t, remoteMessage(primitive.NewObjectID(), "ping")))

	require.Eventually(t, func() bool {
		return api.readCalls() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestAutoReadSkippedWhileOffline(t *testing.T) {
	api := &fakeAPI{}
	link := &fakeLink{}
	c, _ := newTestCoordinator(t, api, link, WithMarkReadWait(10*time.Millisecond))
	c.HandleStatus(realtime.StatusDisconnected)

	c.HandleEvent(newMessageEvent(t, remoteMessage(primitive.NewObjectID(), "ping")))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, api.readCalls(), "offline sessions must not fabricate receipts")
}

func TestMessagesHideSenderDeleted(t *testing.T) {
	api := &fakeAPI{}
	c, userID := newTestCoordinator(t, api, &fakeLink{})

	mine := remoteMessage(userID, "regret")
	mine.Sender = models.UserSnapshot{UserID: userID, Name: "alice"}
	mine.HideForSender(userID, time.Now())
	c.HandleEvent(newMessageEvent(t, mine))

	assert.Empty(t, c.Messages(), "sender-deleted entries are filtered from this user's view")
}

func TestCloseTearsDownLink(t *testing.T) {
	api := &fakeAPI{}
	link := &fakeLink{}
	c, _ := newTestCoordinator(t, api, link)

	require.NoError(t, c.Close())
	link.mu.Lock()
	defer link.mu.Unlock()
	assert.True(t, link.closed)
}
