package websocket

import (
	"encoding/json"
	"fmt"
)

// EventType identifies a realtime event on the wire.
type EventType string

const (
	// Client-originated events
	EventJoinChat    EventType = "join-chat"
	EventSendMessage EventType = "send-message"
	EventTypingStart EventType = "typing-start"
	EventTypingStop  EventType = "typing-stop"
	EventMarkRead    EventType = "mark-read"

	// Server-originated events
	EventNewMessage      EventType = "new-message"
	EventMessageUpdated  EventType = "message-updated"
	EventMessageDeleted  EventType = "message-deleted"
	EventMessageReaction EventType = "message-reaction"
	EventUserOnline      EventType = "user-online"
	EventUserOffline     EventType = "user-offline"

	EventError EventType = "error"
)

// Event is the wire envelope shared by both directions: a type tag, an
// optional chat scope and an opaque payload.
type Event struct {
	Type   EventType       `json:"type"`
	ChatID string          `json:"chatId,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an event, marshalling the payload in place.
func NewEvent(eventType EventType, chatID string, payload interface{}) (*Event, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode event payload: %w", err)
		}
		data = raw
	}
	return &Event{Type: eventType, ChatID: chatID, Data: data}, nil
}

// ToJSON converts the event to JSON bytes.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s carries no payload", e.Type)
	}
	return json.Unmarshal(e.Data, v)
}

// Validate checks the envelope before dispatch.
func (e *Event) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("event type is required")
	}
	switch e.Type {
	case EventJoinChat, EventSendMessage, EventTypingStart, EventTypingStop, EventMarkRead:
		if e.ChatID == "" {
			return fmt.Errorf("chatId is required for %s", e.Type)
		}
	}
	return nil
}

// TypingPayload travels with typing-start and typing-stop.
type TypingPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// ReadPayload travels with mark-read.
type ReadPayload struct {
	UserID     string   `json:"userId"`
	UserName   string   `json:"userName,omitempty"`
	MessageIDs []string `json:"messageIds,omitempty"`
}

// PresencePayload travels with user-online and user-offline.
type PresencePayload struct {
	UserID string `json:"userId"`
}

// DeletedPayload travels with message-deleted.
type DeletedPayload struct {
	MessageID string `json:"messageId"`
	Scope     string `json:"scope,omitempty"`
}
