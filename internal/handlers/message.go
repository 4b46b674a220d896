package handlers

import (
	"net/http"
	"strconv"

	"teamchat/internal/models"
	"teamchat/internal/services"
	"teamchat/internal/utils"
	"teamchat/internal/websocket"
	"teamchat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageHandler struct {
	messageService *services.MessageService
	chatService    *services.ChatService
	hub            *websocket.Hub
}

func NewMessageHandler(messageService *services.MessageService, chatService *services.ChatService, hub *websocket.Hub) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		chatService:    chatService,
		hub:            hub,
	}
}

// broadcast fans a message event out to the chat room. Realtime
// delivery is best-effort; the REST response already carries the
// authoritative state.
func (h *MessageHandler) broadcast(eventType websocket.EventType, chatID string, payload interface{}) {
	event, err := websocket.NewEvent(eventType, chatID, payload)
	if err != nil {
		logger.WithError(err).Error("Failed to build broadcast event")
		return
	}
	h.hub.BroadcastToChat(chatID, event)
}

// SendMessage stores a new message in the chat and fans it out.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Content     string              `json:"content"`
		MessageType string              `json:"message_type"`
		Attachments []models.Attachment `json:"attachments"`
		ReplyToID   string              `json:"reply_to_id"`
		LocalID     string              `json:"local_id"`
		Mentions    []models.Mention    `json:"mentions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	input := services.SendMessageInput{
		ChatID:      chatID,
		Sender:      user,
		Content:     req.Content,
		MessageType: models.MessageType(req.MessageType),
		Attachments: req.Attachments,
		Mentions:    req.Mentions,
	}
	if req.ReplyToID != "" {
		replyTo, err := primitive.ObjectIDFromHex(req.ReplyToID)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid reply_to_id")
			return
		}
		input.ReplyToID = &replyTo
	}

	msg, err := h.messageService.Send(input)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	// Echo the sender's correlation id so their other clients can
	// reconcile the optimistic copy.
	msg.LocalID = req.LocalID
	h.broadcast(websocket.EventNewMessage, chatID.Hex(), msg)

	utils.SuccessResponseWithMessage(c, "Message sent", msg)
}

// GetMessages pages through the chat history, newest first.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	if _, err := h.chatService.GetChatForUser(chatID, user.UserID); err != nil {
		respondServiceError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	var before *primitive.ObjectID
	if cursor := c.Query("before"); cursor != "" {
		id, err := primitive.ObjectIDFromHex(cursor)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid before cursor")
			return
		}
		before = &id
	}

	messages, err := h.messageService.GetMessages(chatID, before, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponseWithMeta(c, messages, &utils.Meta{
		Limit: limit,
		Total: len(messages),
	})
}

// GetMessage returns a single message from a chat the caller belongs
// to.
func (h *MessageHandler) GetMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := pathObjectID(c, "messageId")
	if !ok {
		return
	}

	msg, _, err := h.messageService.GetMessageForUser(messageID, user.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, msg)
}

// EditMessage rewrites a message's content.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := pathObjectID(c, "messageId")
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
		Reason  string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Content is required")
		return
	}

	if _, _, err := h.messageService.GetMessageForUser(messageID, user.UserID); err != nil {
		respondServiceError(c, err)
		return
	}

	msg, err := h.messageService.Edit(messageID, user.UserID, req.Content, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.broadcast(websocket.EventMessageUpdated, msg.ChatID.Hex(), msg)
	utils.SuccessResponseWithMessage(c, "Message updated", msg)
}

// DeleteMessage soft-deletes a message for the sender or for everyone.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := pathObjectID(c, "messageId")
	if !ok {
		return
	}

	scope := models.DeleteScope(c.DefaultQuery("scope", string(models.DeleteForSender)))

	if _, _, err := h.messageService.GetMessageForUser(messageID, user.UserID); err != nil {
		respondServiceError(c, err)
		return
	}

	msg, err := h.messageService.SoftDelete(messageID, user.UserID, scope)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	// A sender-scoped delete only changes that user's view; the room
	// is not told.
	if scope == models.DeleteForEveryone {
		h.broadcast(websocket.EventMessageDeleted, msg.ChatID.Hex(), websocket.DeletedPayload{
			MessageID: messageID.Hex(),
			Scope:     string(scope),
		})
	}
	utils.SuccessResponseWithMessage(c, "Message deleted", msg)
}

// AddReaction upserts the caller's reaction on a message.
func (h *MessageHandler) AddReaction(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := pathObjectID(c, "messageId")
	if !ok {
		return
	}

	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Emoji is required")
		return
	}

	msg, err := h.messageService.React(messageID, user.UserID, user.Name, req.Emoji)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.broadcast(websocket.EventMessageReaction, msg.ChatID.Hex(), msg)
	utils.SuccessResponseWithMessage(c, "Reaction added", msg)
}

// RemoveReaction removes the caller's reaction from a message.
func (h *MessageHandler) RemoveReaction(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := pathObjectID(c, "messageId")
	if !ok {
		return
	}
	emoji := c.Param("emoji")

	if _, _, err := h.messageService.GetMessageForUser(messageID, user.UserID); err != nil {
		respondServiceError(c, err)
		return
	}

	msg, err := h.messageService.RemoveReaction(messageID, user.UserID, emoji)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.broadcast(websocket.EventMessageReaction, msg.ChatID.Hex(), msg)
	utils.SuccessResponseWithMessage(c, "Reaction removed", msg)
}

// MarkMessageRead appends the caller's read receipt to one message.
func (h *MessageHandler) MarkMessageRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := pathObjectID(c, "messageId")
	if !ok {
		return
	}

	if _, _, err := h.messageService.GetMessageForUser(messageID, user.UserID); err != nil {
		respondServiceError(c, err)
		return
	}

	if err := h.messageService.MarkRead(messageID, user.UserID, user.Name); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponseWithMessage(c, "Message marked as read", nil)
}

// MarkChatRead marks every unread message in the chat as read and
// resets the caller's unread counter.
func (h *MessageHandler) MarkChatRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	marked, err := h.messageService.MarkChatAsRead(chatID, user.UserID, user.Name)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"marked": marked})
}

// PinMessage pins a message to the chat.
func (h *MessageHandler) PinMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := pathObjectID(c, "messageId")
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	c.ShouldBindJSON(&req)

	if _, _, err := h.messageService.GetMessageForUser(messageID, user.UserID); err != nil {
		respondServiceError(c, err)
		return
	}

	msg, err := h.messageService.Pin(messageID, user.UserID, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.broadcast(websocket.EventMessageUpdated, msg.ChatID.Hex(), msg)
	utils.SuccessResponseWithMessage(c, "Message pinned", msg)
}

// UnpinMessage clears a message's pin.
func (h *MessageHandler) UnpinMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := pathObjectID(c, "messageId")
	if !ok {
		return
	}

	if _, _, err := h.messageService.GetMessageForUser(messageID, user.UserID); err != nil {
		respondServiceError(c, err)
		return
	}

	msg, err := h.messageService.Unpin(messageID, user.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.broadcast(websocket.EventMessageUpdated, msg.ChatID.Hex(), msg)
	utils.SuccessResponseWithMessage(c, "Message unpinned", msg)
}

// GetPinnedMessages lists the chat's pinned messages.
func (h *MessageHandler) GetPinnedMessages(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	if _, err := h.chatService.GetChatForUser(chatID, user.UserID); err != nil {
		respondServiceError(c, err)
		return
	}

	messages, err := h.messageService.GetPinnedMessages(chatID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, messages)
}

// GetUnreadMessages lists the chat's messages the caller has not read
// yet, oldest first.
func (h *MessageHandler) GetUnreadMessages(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	if _, err := h.chatService.GetChatForUser(chatID, user.UserID); err != nil {
		respondServiceError(c, err)
		return
	}

	messages, err := h.messageService.GetUnreadMessages(chatID, user.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, messages)
}

// GetSharedMedia lists the chat's messages that carry attachments.
func (h *MessageHandler) GetSharedMedia(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	if _, err := h.chatService.GetChatForUser(chatID, user.UserID); err != nil {
		respondServiceError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	messages, err := h.messageService.GetSharedAttachments(chatID, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, messages)
}

// ForwardMessage copies a message into another chat the caller
// belongs to.
func (h *MessageHandler) ForwardMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := pathObjectID(c, "messageId")
	if !ok {
		return
	}

	var req struct {
		TargetChatID string `json:"target_chat_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "target_chat_id is required")
		return
	}
	targetChatID, err := primitive.ObjectIDFromHex(req.TargetChatID)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid target_chat_id")
		return
	}

	msg, err := h.messageService.Forward(messageID, targetChatID, user)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.broadcast(websocket.EventNewMessage, targetChatID.Hex(), msg)
	utils.SuccessResponseWithMessage(c, "Message forwarded", msg)
}
