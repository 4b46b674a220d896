// Package session coordinates one user's view of one chat: message
// history, optimistic sends, typing indicators, read receipts and the
// realtime connection state, reconciled between the REST API and the
// websocket stream.
package session

import (
	"fmt"
	"sync"
	"time"

	"teamchat/internal/models"
	"teamchat/internal/realtime"
	"teamchat/internal/websocket"
	"teamchat/pkg/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	defaultTypingIdle   = 3 * time.Second
	defaultMarkReadWait = time.Second
)

// ChatAPI is the REST surface the coordinator needs. The HTTP client
// in this package implements it; tests substitute fakes.
type ChatAPI interface {
	GetChat(chatID string) (*models.Chat, error)
	GetMessages(chatID string, limit int) ([]models.Message, error)
	SendMessage(chatID string, input SendInput) (*models.Message, error)
	MarkChatRead(chatID string) error
}

// Link is the slice of the realtime transport the coordinator uses.
type Link interface {
	Send(event *websocket.Event)
	Status() realtime.Status
	Close() error
}

// SendInput is an outbound message request.
type SendInput struct {
	Content     string              `json:"content"`
	MessageType models.MessageType  `json:"message_type,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
	ReplyToID   string              `json:"reply_to_id,omitempty"`
}

// Coordinator holds the live session state for one user in one chat.
type Coordinator struct {
	chatID   string
	userID   primitive.ObjectID
	userName string

	api  ChatAPI
	link Link

	typingIdle   time.Duration
	markReadWait time.Duration

	mu          sync.Mutex
	chat        *models.Chat
	messages    []models.Message
	typingUsers []models.UserSnapshot
	status      realtime.Status
	typingTimer *time.Timer
	readTimer   *time.Timer
	isTyping    bool
	closed      bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTypingIdle overrides the typing auto-stop delay.
func WithTypingIdle(d time.Duration) Option {
	return func(c *Coordinator) { c.typingIdle = d }
}

// WithMarkReadWait overrides the auto-mark-read delay.
func WithMarkReadWait(d time.Duration) Option {
	return func(c *Coordinator) { c.markReadWait = d }
}

// NewCoordinator creates a session for one user in one chat. Call Load
// to pull the initial state, and wire HandleEvent and HandleStatus
// into the transport's callbacks.
func NewCoordinator(chatID string, userID primitive.ObjectID, userName string, api ChatAPI, link Link, opts ...Option) *Coordinator {
	c := &Coordinator{
		chatID:       chatID,
		userID:       userID,
		userName:     userName,
		api:          api,
		link:         link,
		typingIdle:   defaultTypingIdle,
		markReadWait: defaultMarkReadWait,
		status:       realtime.StatusDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load pulls the chat and its recent history from the API.
func (c *Coordinator) Load() error {
	chat, err := c.api.GetChat(c.chatID)
	if err != nil {
		return fmt.Errorf("failed to load chat: %w", err)
	}
	messages, err := c.api.GetMessages(c.chatID, 50)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}

	c.mu.Lock()
	c.chat = chat
	c.messages = messages
	c.mu.Unlock()
	return nil
}

// Chat returns the loaded chat, or nil before Load.
func (c *Coordinator) Chat() *models.Chat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chat
}

// Status returns the last observed transport status.
func (c *Coordinator) Status() realtime.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Messages returns the session's messages in order, hiding entries the
// user deleted for themselves.
func (c *Coordinator) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	visible := make([]models.Message, 0, len(c.messages))
	for _, m := range c.messages {
		if m.VisibleTo(c.userID) {
			visible = append(visible, m)
		}
	}
	return visible
}

// TypingUsers returns who is currently typing, excluding the user.
func (c *Coordinator) TypingUsers() []models.UserSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.UserSnapshot(nil), c.typingUsers...)
}

// SendMessage performs an optimistic send: a local placeholder with
// status sending appears immediately, then the API call either
// replaces it with the stored message or marks it failed in place.
// The failed placeholder never reaches the server.
func (c *Coordinator) SendMessage(input SendInput) (*models.Message, error) {
	localID := uuid.NewString()
	now := time.Now()

	local := models.Message{
		LocalID: localID,
		ChatID:  chatObjectID(c.chatID),
		Sender: models.UserSnapshot{
			UserID: c.userID,
			Name:   c.userName,
		},
		Content:        input.Content,
		MessageType:    input.MessageType,
		Attachments:    input.Attachments,
		DeliveryStatus: models.StatusSending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if local.MessageType == "" {
		local.MessageType = models.MessageTypeText
	}

	c.mu.Lock()
	c.messages = append(c.messages, local)
	c.mu.Unlock()

	c.StopTyping()

	stored, err := c.api.SendMessage(c.chatID, input)
	if err != nil {
		c.mu.Lock()
		for i := range c.messages {
			if c.messages[i].LocalID == localID {
				c.messages[i].DeliveryStatus = models.StatusFailed
				break
			}
		}
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// The socket echo can beat the HTTP response; when the stored id
	// is already present, any placeholder that is still a separate
	// entry goes away. The echo itself carries the same correlation id,
	// so matching on localID alone would delete the reconciled message.
	if i := c.indexByID(stored.ID); i >= 0 {
		for j := range c.messages {
			if j != i && c.messages[j].LocalID == localID {
				c.messages = append(c.messages[:j], c.messages[j+1:]...)
				break
			}
		}
		return stored, nil
	}
	for i := range c.messages {
		if c.messages[i].LocalID == localID {
			c.messages[i] = *stored
			return stored, nil
		}
	}
	c.messages = append(c.messages, *stored)
	return stored, nil
}

// MarkAsRead marks every unread message from other senders as read:
// one bulk API call, local receipt patches, and a mark-read hint on
// the socket.
func (c *Coordinator) MarkAsRead() error {
	c.mu.Lock()
	unread := make([]string, 0)
	for i := range c.messages {
		m := &c.messages[i]
		if m.Sender.UserID != c.userID && !m.HasReadBy(c.userID) && !m.ID.IsZero() {
			unread = append(unread, m.ID.Hex())
		}
	}
	c.mu.Unlock()

	if len(unread) == 0 {
		return nil
	}

	if err := c.api.MarkChatRead(c.chatID); err != nil {
		return fmt.Errorf("failed to mark chat read: %w", err)
	}

	now := time.Now()
	c.mu.Lock()
	for i := range c.messages {
		m := &c.messages[i]
		if m.Sender.UserID != c.userID {
			m.MarkReadBy(c.userID, c.userName, now)
		}
	}
	c.mu.Unlock()

	event, err := websocket.NewEvent(websocket.EventMarkRead, c.chatID, websocket.ReadPayload{
		UserID:     c.userID.Hex(),
		UserName:   c.userName,
		MessageIDs: unread,
	})
	if err == nil {
		c.link.Send(event)
	}
	return nil
}

// StartTyping announces typing and arms the idle timer; repeated calls
// while already typing only push the timer back.
func (c *Coordinator) StartTyping() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	wasTyping := c.isTyping
	c.isTyping = true
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingTimer = time.AfterFunc(c.typingIdle, c.StopTyping)
	c.mu.Unlock()

	if !wasTyping {
		event, err := websocket.NewEvent(websocket.EventTypingStart, c.chatID, websocket.TypingPayload{
			UserID:   c.userID.Hex(),
			UserName: c.userName,
		})
		if err == nil {
			c.link.Send(event)
		}
	}
}

// StopTyping announces the end of typing. Calling it while not typing
// is a no-op.
func (c *Coordinator) StopTyping() {
	c.mu.Lock()
	if !c.isTyping {
		c.mu.Unlock()
		return
	}
	c.isTyping = false
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	c.mu.Unlock()

	event, err := websocket.NewEvent(websocket.EventTypingStop, c.chatID, websocket.TypingPayload{
		UserID: c.userID.Hex(),
	})
	if err == nil {
		c.link.Send(event)
	}
}

// HandleStatus is the transport status callback.
func (c *Coordinator) HandleStatus(status realtime.Status) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}

// HandleEvent is the transport event callback: it reconciles inbound
// realtime events into the local message list.
func (c *Coordinator) HandleEvent(event *websocket.Event) {
	switch event.Type {
	case websocket.EventNewMessage:
		c.handleNewMessage(event)
	case websocket.EventMessageUpdated:
		c.handleMessageUpdated(event)
	case websocket.EventMessageDeleted:
		c.handleMessageDeleted(event)
	case websocket.EventMessageReaction:
		c.handleMessageReaction(event)
	case websocket.EventTypingStart:
		c.handleTyping(event, true)
	case websocket.EventTypingStop:
		c.handleTyping(event, false)
	case websocket.EventMarkRead:
		c.handleRemoteRead(event)
	case websocket.EventUserOnline:
		c.handlePresence(event, true)
	case websocket.EventUserOffline:
		c.handlePresence(event, false)
	default:
		// Additive protocol: unknown events are ignored.
	}
}

func (c *Coordinator) handleNewMessage(event *websocket.Event) {
	var msg models.Message
	if err := event.Decode(&msg); err != nil {
		logger.WithError(err).Debug("Dropped malformed new-message event")
		return
	}

	c.mu.Lock()
	grew := false
	if c.indexByID(msg.ID) < 0 {
		// The echo of our own optimistic send replaces the
		// placeholder instead of duplicating it.
		replaced := false
		if msg.LocalID != "" {
			for i := range c.messages {
				if c.messages[i].LocalID == msg.LocalID {
					c.messages[i] = msg
					replaced = true
					break
				}
			}
		}
		if !replaced {
			c.messages = append(c.messages, msg)
			grew = msg.Sender.UserID != c.userID
		}
	}
	c.mu.Unlock()

	if grew {
		c.scheduleAutoRead()
	}
}

func (c *Coordinator) handleMessageUpdated(event *websocket.Event) {
	var msg models.Message
	if err := event.Decode(&msg); err != nil {
		return
	}
	c.mu.Lock()
	if i := c.indexByID(msg.ID); i >= 0 {
		c.messages[i] = msg
	}
	c.mu.Unlock()
}

func (c *Coordinator) handleMessageDeleted(event *websocket.Event) {
	var payload websocket.DeletedPayload
	if err := event.Decode(&payload); err != nil {
		return
	}
	id, err := primitive.ObjectIDFromHex(payload.MessageID)
	if err != nil {
		return
	}
	c.mu.Lock()
	if i := c.indexByID(id); i >= 0 {
		c.messages = append(c.messages[:i], c.messages[i+1:]...)
	}
	c.mu.Unlock()
}

func (c *Coordinator) handleMessageReaction(event *websocket.Event) {
	var msg models.Message
	if err := event.Decode(&msg); err != nil {
		return
	}
	c.mu.Lock()
	// Reactions arrive as the full authoritative set; replace, never
	// merge.
	if i := c.indexByID(msg.ID); i >= 0 {
		c.messages[i].Reactions = msg.Reactions
	}
	c.mu.Unlock()
}

func (c *Coordinator) handleTyping(event *websocket.Event, typing bool) {
	var payload websocket.TypingPayload
	if err := event.Decode(&payload); err != nil {
		return
	}
	userID, err := primitive.ObjectIDFromHex(payload.UserID)
	if err != nil || userID == c.userID {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, u := range c.typingUsers {
		if u.UserID == userID {
			if !typing {
				c.typingUsers = append(c.typingUsers[:i], c.typingUsers[i+1:]...)
			}
			return
		}
	}
	if typing {
		c.typingUsers = append(c.typingUsers, models.UserSnapshot{UserID: userID, Name: payload.UserName})
	}
}

func (c *Coordinator) handleRemoteRead(event *websocket.Event) {
	var payload websocket.ReadPayload
	if err := event.Decode(&payload); err != nil {
		return
	}
	readerID, err := primitive.ObjectIDFromHex(payload.UserID)
	if err != nil || readerID == c.userID {
		return
	}

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		m := &c.messages[i]
		if m.Sender.UserID == c.userID {
			m.MarkReadBy(readerID, payload.UserName, now)
		}
	}
}

func (c *Coordinator) handlePresence(event *websocket.Event, online bool) {
	var payload websocket.PresencePayload
	if err := event.Decode(&payload); err != nil {
		return
	}
	userID, err := primitive.ObjectIDFromHex(payload.UserID)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chat == nil {
		return
	}
	if p := c.chat.FindParticipant(userID); p != nil {
		p.IsOnline = online
	}
	if !online {
		for i, u := range c.typingUsers {
			if u.UserID == userID {
				c.typingUsers = append(c.typingUsers[:i], c.typingUsers[i+1:]...)
				break
			}
		}
	}
}

// scheduleAutoRead marks the chat read shortly after new messages
// arrive, but only while the socket is connected; offline sessions
// must not fabricate receipts.
func (c *Coordinator) scheduleAutoRead() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.readTimer != nil {
		c.readTimer.Stop()
	}
	c.readTimer = time.AfterFunc(c.markReadWait, func() {
		if c.Status() != realtime.StatusConnected {
			return
		}
		if err := c.MarkAsRead(); err != nil {
			logger.WithError(err).Debug("Auto mark-read failed")
		}
	})
	c.mu.Unlock()
}

// Close stops timers and tears down the transport.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	if c.readTimer != nil {
		c.readTimer.Stop()
		c.readTimer = nil
	}
	c.isTyping = false
	c.mu.Unlock()

	if c.link != nil {
		return c.link.Close()
	}
	return nil
}

// indexByID must be called with c.mu held.
func (c *Coordinator) indexByID(id primitive.ObjectID) int {
	if id.IsZero() {
		return -1
	}
	for i := range c.messages {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func chatObjectID(hex string) primitive.ObjectID {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID
	}
	return id
}
