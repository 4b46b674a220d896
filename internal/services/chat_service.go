package services

import (
	"context"
	"fmt"
	"time"

	"teamchat/internal/models"
	"teamchat/pkg/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ChatService is the chat directory and membership store. It owns the
// chats collection; message documents live with MessageService.
type ChatService struct {
	db         *mongo.Database
	collection *mongo.Collection
}

func NewChatService(db *mongo.Database) *ChatService {
	return &ChatService{
		db:         db,
		collection: db.Collection("chats"),
	}
}

// CreateChatInput carries everything needed to open a chat. Members
// excludes the creator, who always becomes the owner.
type CreateChatInput struct {
	ChatType    models.ChatType
	Name        string
	Description string
	Avatar      string
	Creator     models.UserSnapshot
	Members     []models.UserSnapshot
}

// ChatUpdate is a partial metadata/settings patch. Nil fields are left
// untouched.
type ChatUpdate struct {
	Name        *string
	Description *string
	Avatar      *string
	IsPinned    *bool
	Settings    *models.ChatSettings
}

// ParticipantUpdate is a partial membership patch. A non-nil Role with
// a nil Permissions list re-applies the new role's defaults; a non-nil
// Permissions list is an explicit override.
type ParticipantUpdate struct {
	Role        *models.Role
	Permissions []models.Permission
	IsMuted     *bool
	MutedUntil  *time.Time
}

func validateCreate(input CreateChatInput) error {
	if !input.ChatType.Valid() {
		return fmt.Errorf("%w: unknown chat type %q", ErrValidation, input.ChatType)
	}
	if input.Creator.IsZero() {
		return fmt.Errorf("%w: creator is required", ErrValidation)
	}
	seen := map[primitive.ObjectID]bool{input.Creator.UserID: true}
	for _, m := range input.Members {
		if seen[m.UserID] {
			return fmt.Errorf("%w: duplicate participant %s", ErrValidation, m.UserID.Hex())
		}
		seen[m.UserID] = true
	}
	if input.ChatType == models.ChatTypeDirect && len(input.Members) != 1 {
		return fmt.Errorf("%w: direct chats require exactly two participants", ErrValidation)
	}
	return nil
}

func newParticipant(user models.UserSnapshot, role models.Role, addedBy *primitive.ObjectID, now time.Time) models.Participant {
	return models.Participant{
		ID:          uuid.NewString(),
		UserID:      user.UserID,
		Name:        user.Name,
		Email:       user.Email,
		Avatar:      user.Avatar,
		Role:        role,
		Permissions: models.DefaultPermissions(role),
		IsActive:    true,
		JoinedAt:    now,
		AddedBy:     addedBy,
	}
}

// CreateChat opens a new chat with the creator as owner and the given
// members with member-role defaults. Direct chats derive their name
// from the counterpart when none is given.
func (s *ChatService) CreateChat(input CreateChatInput) (*models.Chat, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := validateCreate(input); err != nil {
		return nil, err
	}

	now := time.Now()
	creatorID := input.Creator.UserID

	participants := []models.Participant{newParticipant(input.Creator, models.RoleOwner, nil, now)}
	for _, m := range input.Members {
		participants = append(participants, newParticipant(m, models.RoleMember, &creatorID, now))
	}

	name := input.Name
	if name == "" && input.ChatType == models.ChatTypeDirect {
		name = input.Members[0].Name
	}

	chat := &models.Chat{
		ChatType:     input.ChatType,
		Name:         name,
		Description:  input.Description,
		Avatar:       input.Avatar,
		CreatedBy:    creatorID,
		Participants: participants,
		LastActivity: now,
		Settings:     models.DefaultChatSettings(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result, err := s.collection.InsertOne(ctx, chat)
	if err != nil {
		logger.LogError(err, "Failed to create chat", map[string]interface{}{
			"chat_type":  input.ChatType,
			"created_by": creatorID.Hex(),
		})
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	chat.ID = result.InsertedID.(primitive.ObjectID)
	logger.LogChatEvent("chat_created", chat.ID.Hex(), creatorID.Hex(), map[string]interface{}{
		"chat_type":    chat.ChatType,
		"participants": len(participants),
	})
	return chat, nil
}

// GetChatByID loads a chat by id.
func (s *ChatService) GetChatByID(chatID primitive.ObjectID) (*models.Chat, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var chat models.Chat
	err := s.collection.FindOne(ctx, bson.M{"_id": chatID}).Decode(&chat)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("chat %s: %w", chatID.Hex(), ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return &chat, nil
}

// GetChatForUser loads a chat only if the user is an active
// participant. Missing chat and missing membership are returned
// identically as ErrNotFound.
func (s *ChatService) GetChatForUser(chatID, userID primitive.ObjectID) (*models.Chat, error) {
	chat, err := s.GetChatByID(chatID)
	if err != nil {
		return nil, err
	}
	if chat.ActiveParticipant(userID) == nil {
		return nil, fmt.Errorf("chat %s: %w", chatID.Hex(), ErrNotFound)
	}
	return chat, nil
}

// ListChatsForUser returns the user's chats ordered by recent
// activity. Archived chats are excluded unless requested.
func (s *ChatService) ListChatsForUser(userID primitive.ObjectID, includeArchived bool, limit int) ([]models.Chat, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	filter := bson.M{
		"participants": bson.M{"$elemMatch": bson.M{
			"user_id":   userID,
			"is_active": true,
		}},
	}
	if !includeArchived {
		filter["is_archived"] = bson.M{"$ne": true}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "last_activity", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer cursor.Close(ctx)

	var chats []models.Chat
	if err = cursor.All(ctx, &chats); err != nil {
		return nil, fmt.Errorf("failed to decode chats: %w", err)
	}
	return chats, nil
}

// UpdateChat applies a metadata/settings patch.
func (s *ChatService) UpdateChat(chatID primitive.ObjectID, patch ChatUpdate) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	set := bson.M{"updated_at": time.Now()}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Avatar != nil {
		set["avatar"] = *patch.Avatar
	}
	if patch.IsPinned != nil {
		set["is_pinned"] = *patch.IsPinned
	}
	if patch.Settings != nil {
		set["settings"] = *patch.Settings
	}

	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": chatID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update chat: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("chat %s: %w", chatID.Hex(), ErrNotFound)
	}
	return nil
}

// ArchiveChat soft-deletes a chat. All data is retained; the chat just
// disappears from default listings.
func (s *ChatService) ArchiveChat(chatID primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": chatID}, bson.M{
		"$set": bson.M{"is_archived": true, "updated_at": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to archive chat: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("chat %s: %w", chatID.Hex(), ErrNotFound)
	}
	return nil
}

// AddParticipant adds a user to a chat, idempotently: an existing
// active membership is returned unchanged, a left membership is
// reactivated, otherwise a new record with the role's defaults is
// appended.
func (s *ChatService) AddParticipant(chatID primitive.ObjectID, user models.UserSnapshot, role models.Role, addedBy primitive.ObjectID) (*models.Participant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if !role.Valid() || role == models.RoleOwner {
		return nil, fmt.Errorf("%w: invalid participant role %q", ErrValidation, role)
	}

	chat, err := s.GetChatByID(chatID)
	if err != nil {
		return nil, err
	}
	if chat.ChatType == models.ChatTypeDirect {
		return nil, fmt.Errorf("%w: direct chats cannot gain participants", ErrValidation)
	}

	if existing := chat.FindParticipant(user.UserID); existing != nil {
		if existing.IsActive {
			return existing, nil
		}
		// Rejoin: reactivate the historical record with fresh defaults.
		existing.IsActive = true
		existing.LeftAt = nil
		existing.JoinedAt = time.Now()
		existing.AddedBy = &addedBy
		existing.Role = role
		existing.Permissions = models.DefaultPermissions(role)
		if err := s.replaceParticipant(ctx, chatID, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	p := newParticipant(user, role, &addedBy, time.Now())
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": chatID}, bson.M{
		"$push": bson.M{"participants": p},
		"$set":  bson.M{"updated_at": time.Now()},
	})
	if err != nil {
		logger.LogError(err, "Failed to add participant", map[string]interface{}{
			"chat_id": chatID.Hex(),
			"user_id": user.UserID.Hex(),
		})
		return nil, fmt.Errorf("failed to add participant: %w", err)
	}
	return &p, nil
}

// RemoveParticipant soft-removes a membership: the record is kept with
// isActive cleared so role/permission history stays inspectable. Owner
// records cannot be removed.
func (s *ChatService) RemoveParticipant(chatID primitive.ObjectID, participantID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	chat, err := s.GetChatByID(chatID)
	if err != nil {
		return err
	}
	p := chat.ParticipantByID(participantID)
	if p == nil {
		return fmt.Errorf("participant %s: %w", participantID, ErrNotFound)
	}
	if p.Role == models.RoleOwner {
		return fmt.Errorf("%w: owner cannot be removed from a chat", ErrValidation)
	}

	now := time.Now()
	p.IsActive = false
	p.IsOnline = false
	p.LeftAt = &now
	if err := s.replaceParticipant(ctx, chatID, p); err != nil {
		return err
	}

	logger.LogChatEvent("participant_removed", chatID.Hex(), p.UserID.Hex(), nil)
	return nil
}

// LeaveChat soft-removes the user's own membership. The owner cannot
// leave; they must archive the chat instead.
func (s *ChatService) LeaveChat(chatID, userID primitive.ObjectID) error {
	chat, err := s.GetChatByID(chatID)
	if err != nil {
		return err
	}
	p := chat.ActiveParticipant(userID)
	if p == nil {
		return fmt.Errorf("participant: %w", ErrNotFound)
	}
	if p.Role == models.RoleOwner {
		return fmt.Errorf("%w: owner cannot leave the chat", ErrValidation)
	}
	return s.RemoveParticipant(chatID, p.ID)
}

// UpdateParticipant applies a role/permission/mute patch. Role changes
// without an explicit permission list re-apply the new role's
// defaults; owner records reject role changes outright.
func (s *ChatService) UpdateParticipant(chatID primitive.ObjectID, participantID string, patch ParticipantUpdate) (*models.Participant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	chat, err := s.GetChatByID(chatID)
	if err != nil {
		return nil, err
	}
	p := chat.ParticipantByID(participantID)
	if p == nil {
		return nil, fmt.Errorf("participant %s: %w", participantID, ErrNotFound)
	}

	if patch.Role != nil {
		if err := applyRoleChange(p, *patch.Role, patch.Permissions); err != nil {
			return nil, err
		}
	} else if patch.Permissions != nil {
		if p.Role == models.RoleOwner {
			return nil, fmt.Errorf("%w: owner permissions cannot be edited", ErrValidation)
		}
		p.Permissions = patch.Permissions
	}
	if patch.IsMuted != nil {
		p.IsMuted = *patch.IsMuted
		p.MutedUntil = patch.MutedUntil
		if !p.IsMuted {
			p.MutedUntil = nil
		}
	}

	if err := s.replaceParticipant(ctx, chatID, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RecordMessage applies the chat-side effects of a successful message
// creation: counters, last-message reference and per-recipient unread
// increments. recipients is the exact set of participants whose unread
// counters go up; the aggregate delta and the arrayFilter both derive
// from it, so the two counters cannot drift apart. The total counter
// is append-only and never decremented on delete.
func (s *ChatService) RecordMessage(chatID, messageID primitive.ObjectID, recipients []primitive.ObjectID, at time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"last_message_id": messageID,
			"last_activity":   at,
			"updated_at":      at,
		},
		"$inc": bson.M{
			"total_messages": 1,
			"unread_count":   len(recipients),
		},
	}
	var opts *options.UpdateOptions
	if len(recipients) > 0 {
		update["$inc"].(bson.M)["participants.$[p].unread_count"] = 1
		opts = options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{bson.M{"p.user_id": bson.M{"$in": recipients}}},
		})
	}

	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": chatID}, update, opts)
	if err != nil {
		logger.LogError(err, "Failed to record message on chat", map[string]interface{}{
			"chat_id":    chatID.Hex(),
			"message_id": messageID.Hex(),
		})
		return fmt.Errorf("failed to record message: %w", err)
	}
	return nil
}

// MarkParticipantRead resets a participant's unread counter and
// records the last message they have seen.
func (s *ChatService) MarkParticipantRead(chatID, userID primitive.ObjectID, lastMessageID *primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	chat, err := s.GetChatByID(chatID)
	if err != nil {
		return err
	}
	p := chat.ActiveParticipant(userID)
	if p == nil {
		return fmt.Errorf("participant: %w", ErrNotFound)
	}

	set := bson.M{
		"participants.$[p].unread_count": 0,
		"updated_at":                     time.Now(),
	}
	if lastMessageID != nil {
		set["participants.$[p].last_read_message_id"] = *lastMessageID
	}
	update := bson.M{"$set": set}
	if p.UnreadCount > 0 {
		update["$inc"] = bson.M{"unread_count": -p.UnreadCount}
	}

	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"p.user_id": userID}},
	})
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": chatID}, update, opts)
	if err != nil {
		return fmt.Errorf("failed to mark participant read: %w", err)
	}
	return nil
}

// SetUserOnline patches the presence flag on every chat the user
// actively belongs to. Fan-out to connected peers is the hub's job.
func (s *ChatService) SetUserOnline(userID primitive.ObjectID, online bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{
		"participants": bson.M{"$elemMatch": bson.M{
			"user_id":   userID,
			"is_active": true,
		}},
	}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"p.user_id": userID}},
	})
	_, err := s.collection.UpdateMany(ctx, filter, bson.M{
		"$set": bson.M{"participants.$[p].is_online": online},
	}, opts)
	if err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

// replaceParticipant writes one embedded participant record back
// wholesale, matched by its record id.
func (s *ChatService) replaceParticipant(ctx context.Context, chatID primitive.ObjectID, p *models.Participant) error {
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"p.participant_id": p.ID}},
	})
	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": chatID}, bson.M{
		"$set": bson.M{
			"participants.$[p]": *p,
			"updated_at":        time.Now(),
		},
	}, opts)
	if err != nil {
		return fmt.Errorf("failed to update participant: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("chat %s: %w", chatID.Hex(), ErrNotFound)
	}
	return nil
}
