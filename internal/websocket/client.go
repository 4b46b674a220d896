package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"teamchat/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Buffer size for client send channel
	sendBufferSize = 256
)

var newline = []byte{'\n'}

// Membership answers whether a user actively belongs to a chat. The
// hub consults it before honoring a join-chat request.
type Membership interface {
	IsMember(chatID, userID string) bool
}

// Client represents one WebSocket connection for one user.
type Client struct {
	// WebSocket connection
	Conn *websocket.Conn

	// Hub that manages this client
	Hub *Hub

	// Buffered channel of outbound events
	Send chan []byte

	UserID   string
	UserName string

	membership Membership

	// Chats this connection has joined
	chats map[string]bool

	ConnectedAt time.Time
	LastPong    time.Time

	mu sync.RWMutex
}

// NewClient creates a new WebSocket client.
func NewClient(conn *websocket.Conn, hub *Hub, userID, userName string, membership Membership) *Client {
	return &Client{
		Conn:        conn,
		Hub:         hub,
		Send:        make(chan []byte, sendBufferSize),
		UserID:      userID,
		UserName:    userName,
		membership:  membership,
		chats:       make(map[string]bool),
		ConnectedAt: time.Now(),
		LastPong:    time.Now(),
	}
}

// ReadPump pumps events from the WebSocket connection to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
		c.logDisconnection()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.LastPong = time.Now()
		c.mu.Unlock()
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	logger.LogUserAction(c.UserID, "websocket_connected", nil)

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WithFields(map[string]interface{}{
					"user_id": c.UserID,
					"error":   err.Error(),
				}).Error("WebSocket read error")
			}
			break
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			c.sendError(fmt.Sprintf("invalid event format: %v", err))
			continue
		}
		if err := event.Validate(); err != nil {
			c.sendError(err.Error())
			continue
		}

		c.handleEvent(&event)
	}
}

// WritePump pumps events from the hub to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued events into the same frame
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleEvent dispatches a client-originated event. Unknown types are
// ignored so the protocol stays additive.
func (c *Client) handleEvent(event *Event) {
	switch event.Type {
	case EventJoinChat:
		c.handleJoinChat(event)
	case EventTypingStart, EventTypingStop:
		c.handleTyping(event)
	case EventMarkRead:
		c.handleMarkRead(event)
	case EventSendMessage:
		// Message creation goes through the REST API; the socket only
		// carries fan-out. Acknowledge nothing.
		logger.WithFields(map[string]interface{}{
			"user_id": c.UserID,
			"chat_id": event.ChatID,
		}).Debug("Ignoring send-message over socket")
	default:
		logger.WithFields(map[string]interface{}{
			"user_id": c.UserID,
			"type":    event.Type,
		}).Debug("Ignoring unknown event type")
	}
}

// handleJoinChat subscribes the connection to a chat room after
// verifying membership.
func (c *Client) handleJoinChat(event *Event) {
	if c.membership != nil && !c.membership.IsMember(event.ChatID, c.UserID) {
		c.sendError("not a member of this chat")
		return
	}
	c.Hub.JoinChat(c, event.ChatID)
}

// handleTyping relays a typing indicator to the chat, except back to
// the typist.
func (c *Client) handleTyping(event *Event) {
	if !c.inChat(event.ChatID) {
		return
	}
	relay, err := NewEvent(event.Type, event.ChatID, TypingPayload{UserID: c.UserID, UserName: c.UserName})
	if err != nil {
		return
	}
	c.Hub.BroadcastToChatExcept(event.ChatID, c.UserID, relay)
}

// handleMarkRead relays a read hint to the chat so other members can
// refresh receipts. Persistence happens over the REST API.
func (c *Client) handleMarkRead(event *Event) {
	if !c.inChat(event.ChatID) {
		return
	}
	payload := ReadPayload{UserID: c.UserID, UserName: c.UserName}
	if len(event.Data) > 0 {
		event.Decode(&payload)
		payload.UserID = c.UserID
		payload.UserName = c.UserName
	}
	relay, err := NewEvent(EventMarkRead, event.ChatID, payload)
	if err != nil {
		return
	}
	c.Hub.BroadcastToChatExcept(event.ChatID, c.UserID, relay)
}

// SendEvent queues an event for delivery to this connection.
func (c *Client) SendEvent(event *Event) error {
	data, err := event.ToJSON()
	if err != nil {
		return err
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return fmt.Errorf("client send buffer full")
	}
}

func (c *Client) sendError(message string) {
	event, err := NewEvent(EventError, "", map[string]interface{}{"message": message})
	if err != nil {
		return
	}
	c.SendEvent(event)
}

func (c *Client) addChat(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats[chatID] = true
}

func (c *Client) removeChat(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.chats, chatID)
}

func (c *Client) inChat(chatID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chats[chatID]
}

// JoinedChats returns the chats this connection is subscribed to.
func (c *Client) JoinedChats() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.chats))
	for chatID := range c.chats {
		ids = append(ids, chatID)
	}
	return ids
}

func (c *Client) logDisconnection() {
	logger.LogUserAction(c.UserID, "websocket_disconnected", map[string]interface{}{
		"duration_seconds": time.Since(c.ConnectedAt).Seconds(),
	})
}
