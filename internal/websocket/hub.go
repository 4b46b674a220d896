package websocket

import (
	"sync"
	"time"

	"teamchat/pkg/logger"
)

// Presence is the piece of the chat directory the hub needs: it flips
// the participant online flags when a user's connection comes and goes.
type Presence interface {
	SetUserOnline(userID string, online bool) error
}

// Hub maintains the set of active clients and fans events out to the
// chat rooms they have joined.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Clients organized by user ID
	userClients map[string]map[*Client]bool

	// Clients organized by chat ID
	chatClients map[string]map[*Client]bool

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// Broadcast events to a specific chat
	ChatBroadcast chan *ChatEvent

	presence Presence

	mu sync.RWMutex
}

// ChatEvent is an event scoped to one chat room, optionally excluding
// the originating user.
type ChatEvent struct {
	ChatID  string
	Event   *Event
	Exclude string // User ID to exclude from broadcast
}

// NewHub creates a new WebSocket hub. presence may be nil, in which
// case online flags are not persisted.
func NewHub(presence Presence) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		userClients:   make(map[string]map[*Client]bool),
		chatClients:   make(map[string]map[*Client]bool),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		ChatBroadcast: make(chan *ChatEvent),
		presence:      presence,
	}
}

// Run starts the hub and handles client registration/unregistration.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case chatEvent := <-h.ChatBroadcast:
			h.broadcastToChat(chatEvent)
		}
	}
}

// registerClient registers a new client connection.
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true

	firstConnection := len(h.userClients[client.UserID]) == 0
	if h.userClients[client.UserID] == nil {
		h.userClients[client.UserID] = make(map[*Client]bool)
	}
	h.userClients[client.UserID][client] = true
	total := len(h.clients)
	h.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"user_id":       client.UserID,
		"total_clients": total,
	}).Info("Client registered")

	// Only the first connection flips presence; a second tab does not
	// re-announce.
	if firstConnection {
		h.persistPresence(client.UserID, true)
	}
}

// unregisterClient unregisters a client connection.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)

	if conns, exists := h.userClients[client.UserID]; exists {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.userClients, client.UserID)
		}
	}
	lastConnection := len(h.userClients[client.UserID]) == 0

	chatIDs := client.JoinedChats()
	for _, chatID := range chatIDs {
		h.removeFromChat(client, chatID)
	}

	close(client.Send)
	total := len(h.clients)
	h.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"user_id":       client.UserID,
		"total_clients": total,
	}).Info("Client unregistered")

	if lastConnection {
		h.persistPresence(client.UserID, false)
		h.announcePresence(client.UserID, false, chatIDs)
	}
}

// JoinChat subscribes a client to a chat room. Membership must be
// verified by the caller before joining.
func (h *Hub) JoinChat(client *Client, chatID string) {
	h.mu.Lock()
	if h.chatClients[chatID] == nil {
		h.chatClients[chatID] = make(map[*Client]bool)
	}
	h.chatClients[chatID][client] = true
	client.addChat(chatID)
	size := len(h.chatClients[chatID])
	h.mu.Unlock()

	logger.LogChatEvent("user_joined_chat", chatID, client.UserID, map[string]interface{}{
		"room_size": size,
	})

	h.announcePresence(client.UserID, true, []string{chatID})
}

// LeaveChat unsubscribes a client from a chat room.
func (h *Hub) LeaveChat(client *Client, chatID string) {
	h.mu.Lock()
	h.removeFromChat(client, chatID)
	h.mu.Unlock()
}

// removeFromChat must be called with h.mu held.
func (h *Hub) removeFromChat(client *Client, chatID string) {
	if clients, exists := h.chatClients[chatID]; exists {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.chatClients, chatID)
		}
	}
	client.removeChat(chatID)
}

// broadcastToChat fans an event out to every subscribed client.
func (h *Hub) broadcastToChat(chatEvent *ChatEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, exists := h.chatClients[chatEvent.ChatID]
	if !exists {
		return
	}

	data, err := chatEvent.Event.ToJSON()
	if err != nil {
		logger.WithError(err).Error("Failed to marshal chat event")
		return
	}

	for client := range clients {
		if chatEvent.Exclude != "" && client.UserID == chatEvent.Exclude {
			continue
		}
		select {
		case client.Send <- data:
		default:
			// Client send buffer is full, drop the connection
			go func(c *Client) { h.Unregister <- c }(client)
		}
	}
}

// BroadcastToChat sends an event to every client in a chat.
func (h *Hub) BroadcastToChat(chatID string, event *Event) {
	h.ChatBroadcast <- &ChatEvent{ChatID: chatID, Event: event}
}

// BroadcastToChatExcept sends an event to a chat, skipping one user.
func (h *Hub) BroadcastToChatExcept(chatID, excludeUserID string, event *Event) {
	h.ChatBroadcast <- &ChatEvent{ChatID: chatID, Event: event, Exclude: excludeUserID}
}

// BroadcastTyping relays a typing indicator to the chat, excluding the
// typist.
func (h *Hub) BroadcastTyping(chatID, userID, userName string, typing bool) {
	eventType := EventTypingStop
	if typing {
		eventType = EventTypingStart
	}
	event, err := NewEvent(eventType, chatID, TypingPayload{UserID: userID, UserName: userName})
	if err != nil {
		logger.WithError(err).Error("Failed to build typing event")
		return
	}
	h.BroadcastToChatExcept(chatID, userID, event)
}

// IsUserOnline reports whether the user has at least one connection.
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID]) > 0
}

// OnlineUsers returns the IDs of all connected users.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]string, 0, len(h.userClients))
	for userID := range h.userClients {
		users = append(users, userID)
	}
	return users
}

// ChatUsers returns the IDs of users subscribed to a chat.
func (h *Hub) ChatUsers(chatID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, exists := h.chatClients[chatID]
	if !exists {
		return []string{}
	}
	seen := make(map[string]bool, len(clients))
	users := make([]string, 0, len(clients))
	for client := range clients {
		if !seen[client.UserID] {
			seen[client.UserID] = true
			users = append(users, client.UserID)
		}
	}
	return users
}

// persistPresence writes the participant online flag through the chat
// directory, when one is attached.
func (h *Hub) persistPresence(userID string, online bool) {
	if h.presence == nil {
		return
	}
	if err := h.presence.SetUserOnline(userID, online); err != nil {
		logger.LogError(err, "Failed to persist presence", map[string]interface{}{
			"user_id": userID,
			"online":  online,
		})
	}
}

// announcePresence broadcasts an online/offline event to the given
// chats, skipping the user's own connections. It writes directly
// rather than through the broadcast channel so it stays safe to call
// from the hub goroutine itself.
func (h *Hub) announcePresence(userID string, online bool, chatIDs []string) {
	eventType := EventUserOffline
	if online {
		eventType = EventUserOnline
	}
	for _, chatID := range chatIDs {
		event, err := NewEvent(eventType, chatID, PresencePayload{UserID: userID})
		if err != nil {
			continue
		}
		h.broadcastToChat(&ChatEvent{ChatID: chatID, Event: event, Exclude: userID})
	}
}

// ConnectionCount reports the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats summarizes hub state for the health endpoint.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"total_clients": len(h.clients),
		"online_users":  len(h.userClients),
		"active_chats":  len(h.chatClients),
		"collected_at":  time.Now(),
	}
}
