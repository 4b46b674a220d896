package handlers

import (
	"net/http"
	"strconv"

	"teamchat/internal/models"
	"teamchat/internal/services"
	"teamchat/internal/utils"
	"teamchat/internal/websocket"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ChatHandler struct {
	chatService    *services.ChatService
	messageService *services.MessageService
	hub            *websocket.Hub
}

func NewChatHandler(chatService *services.ChatService, messageService *services.MessageService, hub *websocket.Hub) *ChatHandler {
	return &ChatHandler{
		chatService:    chatService,
		messageService: messageService,
		hub:            hub,
	}
}

type memberRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Name   string `json:"name" binding:"required"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

func (m memberRequest) snapshot() (models.UserSnapshot, error) {
	userID, err := primitive.ObjectIDFromHex(m.UserID)
	if err != nil {
		return models.UserSnapshot{}, err
	}
	return models.UserSnapshot{
		UserID: userID,
		Name:   m.Name,
		Email:  m.Email,
		Avatar: m.Avatar,
	}, nil
}

// CreateChat creates a direct or group chat with the caller as owner.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		ChatType    string          `json:"chat_type" binding:"required"`
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Avatar      string          `json:"avatar"`
		Members     []memberRequest `json:"members" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ValidationErrorResponse(c, map[string]string{
			"body": err.Error(),
		})
		return
	}

	members := make([]models.UserSnapshot, 0, len(req.Members))
	for _, m := range req.Members {
		snapshot, err := m.snapshot()
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid member user_id")
			return
		}
		members = append(members, snapshot)
	}

	chat, err := h.chatService.CreateChat(services.CreateChatInput{
		ChatType:    models.ChatType(req.ChatType),
		Name:        req.Name,
		Description: req.Description,
		Avatar:      req.Avatar,
		Creator:     user,
		Members:     members,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponseWithMessage(c, "Chat created", chat)
}

// ListChats returns the caller's chats, most recently active first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	includeArchived := c.Query("include_archived") == "true"
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	chats, err := h.chatService.ListChatsForUser(user.UserID, includeArchived, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, chats, &utils.Meta{
		Limit: limit,
		Total: len(chats),
	})
}

// GetChat returns one chat the caller belongs to. includeDetails adds
// live presence and the pinned messages.
func (h *ChatHandler) GetChat(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	chat, err := h.chatService.GetChatForUser(chatID, user.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	if c.Query("includeDetails") != "true" {
		utils.SuccessResponse(c, chat)
		return
	}

	pinned, err := h.messageService.GetPinnedMessages(chatID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"chat":            chat,
		"pinned_messages": pinned,
		"online_users":    h.hub.ChatUsers(chatID.Hex()),
	})
}

// UpdateChat patches chat metadata or settings. Requires the
// edit-chat-info permission.
func (h *ChatHandler) UpdateChat(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	chat, err := h.chatService.GetChatForUser(chatID, user.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if !services.CanPerform(chat, user.UserID, models.PermEditChatInfo) {
		utils.ForbiddenResponse(c, "You can't edit this chat")
		return
	}

	var req struct {
		Name        *string              `json:"name"`
		Description *string              `json:"description"`
		Avatar      *string              `json:"avatar"`
		IsPinned    *bool                `json:"is_pinned"`
		Settings    *models.ChatSettings `json:"settings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	err = h.chatService.UpdateChat(chatID, services.ChatUpdate{
		Name:        req.Name,
		Description: req.Description,
		Avatar:      req.Avatar,
		IsPinned:    req.IsPinned,
		Settings:    req.Settings,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	updated, err := h.chatService.GetChatByID(chatID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponseWithMessage(c, "Chat updated", updated)
}

// DeleteChat leaves the chat, or archives it entirely when
// ?action=delete and the caller created it.
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	chat, err := h.chatService.GetChatForUser(chatID, user.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	if c.DefaultQuery("action", "leave") == "delete" {
		if chat.CreatedBy != user.UserID {
			utils.ForbiddenResponse(c, "Only the creator can delete a chat")
			return
		}
		if err := h.chatService.ArchiveChat(chatID); err != nil {
			respondServiceError(c, err)
			return
		}
		utils.SuccessResponseWithMessage(c, "Chat deleted", nil)
		return
	}

	if err := h.chatService.LeaveChat(chatID, user.UserID); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponseWithMessage(c, "Left chat", nil)
}

// GetParticipants lists the chat's active participants.
func (h *ChatHandler) GetParticipants(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	chat, err := h.chatService.GetChatForUser(chatID, user.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, chat.ActiveParticipants())
}

// AddParticipant adds (or reactivates) a member. Requires the
// add-members permission.
func (h *ChatHandler) AddParticipant(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}

	chat, err := h.chatService.GetChatForUser(chatID, user.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if !services.CanPerform(chat, user.UserID, models.PermAddMembers) {
		utils.ForbiddenResponse(c, "You can't add members to this chat")
		return
	}

	var req struct {
		memberRequest
		Role string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	snapshot, err := req.snapshot()
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid member user_id")
		return
	}
	role := models.Role(req.Role)
	if req.Role == "" {
		role = models.RoleMember
	}

	participant, err := h.chatService.AddParticipant(chatID, snapshot, role, user.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponseWithMessage(c, "Participant added", participant)
}

// UpdateParticipant patches a member's role, permissions or mute
// state. Requires the manage-chat permission.
func (h *ChatHandler) UpdateParticipant(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}
	participantID := c.Param("participantId")

	chat, err := h.chatService.GetChatForUser(chatID, user.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if !services.CanPerform(chat, user.UserID, models.PermManageChat) {
		utils.ForbiddenResponse(c, "You can't manage members in this chat")
		return
	}

	var req struct {
		Role        *string             `json:"role"`
		Permissions []models.Permission `json:"permissions"`
		IsMuted     *bool               `json:"is_muted"`
		MutedUntil  *string             `json:"muted_until"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	patch := services.ParticipantUpdate{
		Permissions: req.Permissions,
		IsMuted:     req.IsMuted,
	}
	if req.Role != nil {
		role := models.Role(*req.Role)
		patch.Role = &role
	}
	if req.MutedUntil != nil {
		until, err := parseTimestamp(*req.MutedUntil)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid muted_until timestamp")
			return
		}
		patch.MutedUntil = &until
	}

	participant, err := h.chatService.UpdateParticipant(chatID, participantID, patch)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponseWithMessage(c, "Participant updated", participant)
}

// RemoveParticipant soft-removes a member. Requires the remove-members
// permission; the owner can never be removed.
func (h *ChatHandler) RemoveParticipant(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}
	participantID := c.Param("participantId")

	chat, err := h.chatService.GetChatForUser(chatID, user.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if !services.CanPerform(chat, user.UserID, models.PermRemoveMembers) {
		utils.ForbiddenResponse(c, "You can't remove members from this chat")
		return
	}

	if err := h.chatService.RemoveParticipant(chatID, participantID); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.SuccessResponseWithMessage(c, "Participant removed", nil)
}
