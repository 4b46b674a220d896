package handlers

import (
	"net/http"

	"teamchat/internal/services"
	"teamchat/internal/utils"
	"teamchat/internal/websocket"
	"teamchat/pkg/logger"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type WebSocketHandler struct {
	hub         *websocket.Hub
	chatService *services.ChatService
	upgrader    gorillaws.Upgrader
}

func NewWebSocketHandler(hub *websocket.Hub, chatService *services.ChatService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		chatService: chatService,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin is enforced by the CORS middleware in front
				return true
			},
		},
	}
}

// HandleWebSocket upgrades the connection and attaches the client to
// the hub. Authentication already ran in the middleware chain.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID := c.GetString("user_id")
	userName := c.GetString("user_name")
	if userID == "" {
		utils.UnauthorizedResponse(c, "Authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := websocket.NewClient(conn, h.hub, userID, userName, chatMembership{h.chatService})
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

// chatMembership adapts the chat directory to the hub's membership
// check.
type chatMembership struct {
	chats *services.ChatService
}

func (m chatMembership) IsMember(chatID, userID string) bool {
	cid, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		return false
	}
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return false
	}
	_, err = m.chats.GetChatForUser(cid, uid)
	return err == nil
}

// ChatPresence adapts the chat directory to the hub's presence sink.
type ChatPresence struct {
	Chats *services.ChatService
}

func (p ChatPresence) SetUserOnline(userID string, online bool) error {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return err
	}
	return p.Chats.SetUserOnline(uid, online)
}
