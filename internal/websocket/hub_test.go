package websocket

import (
	"encoding/json"
	"os"
	"sync"
	"testing"

	"teamchat/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

type fakePresence struct {
	mu    sync.Mutex
	calls []presenceCall
}

type presenceCall struct {
	userID string
	online bool
}

func (f *fakePresence) SetUserOnline(userID string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, presenceCall{userID: userID, online: online})
	return nil
}

func (f *fakePresence) recorded() []presenceCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]presenceCall(nil), f.calls...)
}

func newTestClient(hub *Hub, userID string) *Client {
	return NewClient(nil, hub, userID, userID, nil)
}

// drain discards everything queued on the client.
func drain(c *Client) {
	for {
		select {
		case <-c.Send:
		default:
			return
		}
	}
}

// mustReceive pops one queued frame and decodes the envelope.
func mustReceive(t *testing.T, c *Client) *Event {
	t.Helper()
	select {
	case raw := <-c.Send:
		var event Event
		require.NoError(t, json.Unmarshal(raw, &event))
		return &event
	default:
		t.Fatal("expected a queued event")
		return nil
	}
}

func TestPresencePersistedOncePerUser(t *testing.T) {
	presence := &fakePresence{}
	hub := NewHub(presence)

	first := newTestClient(hub, "alice")
	second := newTestClient(hub, "alice")

	hub.registerClient(first)
	hub.registerClient(second)

	calls := presence.recorded()
	require.Len(t, calls, 1, "a second tab must not re-announce")
	assert.Equal(t, presenceCall{userID: "alice", online: true}, calls[0])

	hub.unregisterClient(first)
	assert.Len(t, presence.recorded(), 1, "offline waits for the last connection")

	hub.unregisterClient(second)
	calls = presence.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, presenceCall{userID: "alice", online: false}, calls[1])
}

func TestNilPresenceIsSafe(t *testing.T) {
	hub := NewHub(nil)
	client := newTestClient(hub, "alice")

	hub.registerClient(client)
	hub.unregisterClient(client)

	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestJoinChatAnnouncesToOtherMembers(t *testing.T) {
	hub := NewHub(nil)
	alice := newTestClient(hub, "alice")
	bob := newTestClient(hub, "bob")
	hub.registerClient(alice)
	hub.registerClient(bob)

	hub.JoinChat(bob, "chat-1")
	drain(bob)

	hub.JoinChat(alice, "chat-1")

	event := mustReceive(t, bob)
	assert.Equal(t, EventUserOnline, event.Type)
	var payload PresencePayload
	require.NoError(t, event.Decode(&payload))
	assert.Equal(t, "alice", payload.UserID)

	assert.Empty(t, alice.Send, "the joiner does not hear their own announcement")
}

func TestUnregisterAnnouncesOffline(t *testing.T) {
	hub := NewHub(nil)
	alice := newTestClient(hub, "alice")
	bob := newTestClient(hub, "bob")
	hub.registerClient(alice)
	hub.registerClient(bob)
	hub.JoinChat(alice, "chat-1")
	hub.JoinChat(bob, "chat-1")
	drain(alice)
	drain(bob)

	hub.unregisterClient(alice)

	event := mustReceive(t, bob)
	assert.Equal(t, EventUserOffline, event.Type)
	var payload PresencePayload
	require.NoError(t, event.Decode(&payload))
	assert.Equal(t, "alice", payload.UserID)

	_, open := <-alice.Send
	assert.False(t, open, "the departed client's send channel is closed")
}

func TestBroadcastExcludesOriginator(t *testing.T) {
	hub := NewHub(nil)
	alice := newTestClient(hub, "alice")
	bob := newTestClient(hub, "bob")
	hub.registerClient(alice)
	hub.registerClient(bob)
	hub.JoinChat(alice, "chat-1")
	hub.JoinChat(bob, "chat-1")
	drain(alice)
	drain(bob)

	event, err := NewEvent(EventTypingStart, "chat-1", TypingPayload{UserID: "alice"})
	require.NoError(t, err)
	hub.broadcastToChat(&ChatEvent{ChatID: "chat-1", Event: event, Exclude: "alice"})

	assert.Empty(t, alice.Send)
	received := mustReceive(t, bob)
	assert.Equal(t, EventTypingStart, received.Type)
}

func TestChatUsersDeduplicatesConnections(t *testing.T) {
	hub := NewHub(nil)
	tab1 := newTestClient(hub, "alice")
	tab2 := newTestClient(hub, "alice")
	hub.registerClient(tab1)
	hub.registerClient(tab2)
	hub.JoinChat(tab1, "chat-1")
	hub.JoinChat(tab2, "chat-1")

	assert.Equal(t, []string{"alice"}, hub.ChatUsers("chat-1"))
	assert.Empty(t, hub.ChatUsers("chat-2"))
}

func TestLeaveChatStopsDelivery(t *testing.T) {
	hub := NewHub(nil)
	alice := newTestClient(hub, "alice")
	hub.registerClient(alice)
	hub.JoinChat(alice, "chat-1")
	drain(alice)

	hub.LeaveChat(alice, "chat-1")

	event, err := NewEvent(EventNewMessage, "chat-1", nil)
	require.NoError(t, err)
	hub.broadcastToChat(&ChatEvent{ChatID: "chat-1", Event: event})
	assert.Empty(t, alice.Send)
	assert.Empty(t, alice.JoinedChats())
}

func TestStats(t *testing.T) {
	hub := NewHub(nil)
	alice := newTestClient(hub, "alice")
	hub.registerClient(alice)
	hub.JoinChat(alice, "chat-1")

	stats := hub.Stats()
	assert.Equal(t, 1, stats["total_clients"])
	assert.Equal(t, 1, stats["online_users"])
	assert.Equal(t, 1, stats["active_chats"])
	assert.True(t, hub.IsUserOnline("alice"))
	assert.False(t, hub.IsUserOnline("bob"))
}
