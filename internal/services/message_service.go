package services

import (
	"context"
	"fmt"
	"time"

	"teamchat/internal/config"
	"teamchat/internal/models"
	"teamchat/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageService is the message lifecycle engine: creation, edits,
// soft deletes, reactions, read receipts, pinning and threading.
// Chat-side counters are updated through ChatService as best-effort
// paired writes; there is no cross-document transaction.
type MessageService struct {
	db         *mongo.Database
	collection *mongo.Collection
	chats      *ChatService
	limits     config.ChatConfig
}

func NewMessageService(db *mongo.Database, chats *ChatService, limits config.ChatConfig) *MessageService {
	if limits.MaxForwardDepth <= 0 {
		limits.MaxForwardDepth = models.MaxForwardDepth
	}
	if limits.HistoryPageSize <= 0 || limits.HistoryPageSize > 100 {
		limits.HistoryPageSize = 50
	}
	return &MessageService{
		db:         db,
		collection: db.Collection("messages"),
		chats:      chats,
		limits:     limits,
	}
}

// SendMessageInput carries a message creation request.
type SendMessageInput struct {
	ChatID      primitive.ObjectID
	Sender      models.UserSnapshot
	Content     string
	MessageType models.MessageType
	Attachments []models.Attachment
	ReplyToID   *primitive.ObjectID
	Mentions    []models.Mention
}

func validateSend(chat *models.Chat, input SendMessageInput, maxContentLen int, now time.Time) error {
	sender := chat.ActiveParticipant(input.Sender.UserID)
	if sender == nil {
		return fmt.Errorf("chat %s: %w", chat.ID.Hex(), ErrNotFound)
	}
	if input.MessageType == "" {
		input.MessageType = models.MessageTypeText
	}
	if !input.MessageType.Valid() {
		return fmt.Errorf("%w: unknown message type %q", ErrValidation, input.MessageType)
	}
	if input.Content == "" && len(input.Attachments) == 0 {
		return fmt.Errorf("%w: message content is required", ErrValidation)
	}
	if maxContentLen > 0 && len(input.Content) > maxContentLen {
		return fmt.Errorf("%w: message exceeds %d characters", ErrValidation, maxContentLen)
	}
	if !CanPerform(chat, input.Sender.UserID, models.PermSendMessages) {
		return fmt.Errorf("%w: send-messages", ErrPermissionDenied)
	}
	if len(input.Attachments) > 0 {
		if !chat.Settings.AllowFileSharing {
			return fmt.Errorf("%w: file sharing is disabled for this chat", ErrValidation)
		}
		if !CanPerform(chat, input.Sender.UserID, models.PermSendFiles) {
			return fmt.Errorf("%w: send-files", ErrPermissionDenied)
		}
	}
	if input.ReplyToID != nil && !chat.Settings.AllowThreads {
		return fmt.Errorf("%w: threads are disabled for this chat", ErrValidation)
	}
	if len(input.Mentions) > 0 && !chat.Settings.AllowMentions {
		return fmt.Errorf("%w: mentions are disabled for this chat", ErrValidation)
	}
	return nil
}

// messageRecipients returns the participants whose unread counters a
// new message increments: active members other than the sender whose
// mute, if any, has lapsed by now.
func messageRecipients(chat *models.Chat, senderID primitive.ObjectID, now time.Time) []primitive.ObjectID {
	var recipients []primitive.ObjectID
	for _, p := range chat.ActiveParticipants() {
		if p.UserID != senderID && !p.MutedAt(now) {
			recipients = append(recipients, p.UserID)
		}
	}
	return recipients
}

// Send persists a new message and applies the chat-side effects:
// counters, last-activity and per-recipient unread increments. The
// sender identity is frozen into the document; reply targets are
// snapshotted rather than referenced.
func (s *MessageService) Send(input SendMessageInput) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	chat, err := s.chats.GetChatByID(input.ChatID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := validateSend(chat, input, s.limits.MaxMessageLength, now); err != nil {
		return nil, err
	}
	if input.MessageType == "" {
		input.MessageType = models.MessageTypeText
	}

	msg := &models.Message{
		ID:             primitive.NewObjectID(),
		ChatID:         chat.ID,
		Sender:         input.Sender,
		Content:        input.Content,
		MessageType:    input.MessageType,
		Attachments:    input.Attachments,
		Mentions:       input.Mentions,
		Reactions:      []models.Reaction{},
		ReadBy:         []models.ReadReceipt{},
		DeliveryStatus: models.StatusSent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if msg.Attachments == nil {
		msg.Attachments = []models.Attachment{}
	}

	if input.ReplyToID != nil {
		target, err := s.getMessageInChat(ctx, *input.ReplyToID, chat.ID)
		if err != nil {
			return nil, err
		}
		msg.ReplyTo = models.NewReplySnapshot(target)

		// The root message's own id becomes the thread id on its
		// first reply; later replies inherit it.
		threadID := target.ID
		if target.ThreadID != nil {
			threadID = *target.ThreadID
		}
		msg.ThreadID = &threadID

		if err := s.recordThreadReply(ctx, target, now); err != nil {
			logger.LogError(err, "Failed to record thread reply", map[string]interface{}{
				"message_id": target.ID.Hex(),
			})
		}
	}

	if _, err := s.collection.InsertOne(ctx, msg); err != nil {
		logger.LogError(err, "Failed to store message", map[string]interface{}{
			"chat_id":   chat.ID.Hex(),
			"sender_id": input.Sender.UserID.Hex(),
		})
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	recipients := messageRecipients(chat, input.Sender.UserID, now)
	// Best-effort paired update: the message exists even if the
	// counter write fails.
	if err := s.chats.RecordMessage(chat.ID, msg.ID, recipients, now); err != nil {
		logger.LogError(err, "Failed to update chat counters", map[string]interface{}{
			"chat_id":    chat.ID.Hex(),
			"message_id": msg.ID.Hex(),
		})
	}

	logger.LogChatEvent("message_sent", chat.ID.Hex(), input.Sender.UserID.Hex(), map[string]interface{}{
		"message_id":   msg.ID.Hex(),
		"message_type": msg.MessageType,
	})
	return msg, nil
}

// Forward copies a message into another chat, capping the chain depth.
func (s *MessageService) Forward(messageID, targetChatID primitive.ObjectID, sender models.UserSnapshot) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	original, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	sourceChat, err := s.chats.GetChatByID(original.ChatID)
	if err != nil {
		return nil, err
	}
	if sourceChat.ActiveParticipant(sender.UserID) == nil {
		return nil, fmt.Errorf("message %s: %w", messageID.Hex(), ErrNotFound)
	}
	if !sourceChat.Settings.AllowForwarding {
		return nil, fmt.Errorf("%w: forwarding is disabled for this chat", ErrValidation)
	}

	depth := 1
	if original.ForwardedFrom != nil {
		depth = original.ForwardedFrom.Depth + 1
	}
	if depth > s.limits.MaxForwardDepth {
		return nil, fmt.Errorf("%w: forward chain too deep", ErrValidation)
	}

	msg, err := s.Send(SendMessageInput{
		ChatID:      targetChatID,
		Sender:      sender,
		Content:     original.Content,
		MessageType: original.MessageType,
		Attachments: original.Attachments,
	})
	if err != nil {
		return nil, err
	}

	forwarded := models.ForwardInfo{
		MessageID:  original.ID,
		ChatID:     original.ChatID,
		SenderName: original.Sender.Name,
		Depth:      depth,
	}
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": msg.ID}, bson.M{
		"$set": bson.M{"forwarded_from": forwarded},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark forwarded message: %w", err)
	}
	msg.ForwardedFrom = &forwarded
	return msg, nil
}

func canEditMessage(chat *models.Chat, msg *models.Message, actorID primitive.ObjectID, now time.Time) error {
	if !chat.Settings.AllowEditing {
		return fmt.Errorf("%w: editing is disabled for this chat", ErrValidation)
	}
	if msg.IsDeleted && msg.DeletedFor == models.DeleteForEveryone {
		return fmt.Errorf("%w: deleted messages cannot be edited", ErrValidation)
	}
	if CanPerform(chat, actorID, models.PermEditAnyMessages) {
		return nil
	}
	if msg.Sender.UserID != actorID {
		return fmt.Errorf("%w: only the sender may edit a message", ErrPermissionDenied)
	}
	if now.Sub(msg.CreatedAt) > models.EditWindow {
		return fmt.Errorf("%w: edit window has closed", ErrPermissionDenied)
	}
	return nil
}

// Edit rewrites a message's content, appending an edit-history entry.
// Only the sender within the 24-hour window, or a holder of
// edit-any-messages, may edit.
func (s *MessageService) Edit(messageID primitive.ObjectID, actorID primitive.ObjectID, newContent, reason string) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if newContent == "" {
		return nil, fmt.Errorf("%w: content is required", ErrValidation)
	}

	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	chat, err := s.chats.GetChatByID(msg.ChatID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := canEditMessage(chat, msg, actorID, now); err != nil {
		return nil, err
	}

	record := models.EditRecord{
		PreviousContent: msg.Content,
		NewContent:      newContent,
		EditedBy:        actorID,
		Reason:          reason,
		EditedAt:        now,
	}
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": messageID}, bson.M{
		"$set": bson.M{
			"content":    newContent,
			"is_edited":  true,
			"edited_at":  now,
			"updated_at": now,
		},
		"$push": bson.M{"edit_history": record},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to edit message: %w", err)
	}

	msg.ApplyEdit(actorID, newContent, reason, now)
	return msg, nil
}

func canDeleteMessage(chat *models.Chat, msg *models.Message, actorID primitive.ObjectID) error {
	if !chat.Settings.AllowDeleting {
		return fmt.Errorf("%w: deleting is disabled for this chat", ErrValidation)
	}
	if msg.Sender.UserID == actorID {
		return nil
	}
	if CanPerform(chat, actorID, models.PermDeleteAnyMessages) {
		return nil
	}
	return fmt.Errorf("%w: delete-any-messages", ErrPermissionDenied)
}

// SoftDelete removes a message without dropping the record. Scope
// everyone scrubs content and attachments in place; scope sender only
// records the flag and leaves hiding to read-time filtering.
func (s *MessageService) SoftDelete(messageID primitive.ObjectID, actorID primitive.ObjectID, scope models.DeleteScope) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if scope != models.DeleteForSender && scope != models.DeleteForEveryone {
		return nil, fmt.Errorf("%w: unknown delete scope %q", ErrValidation, scope)
	}

	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	chat, err := s.chats.GetChatByID(msg.ChatID)
	if err != nil {
		return nil, err
	}
	if err := canDeleteMessage(chat, msg, actorID); err != nil {
		return nil, err
	}

	now := time.Now()
	set := bson.M{
		"is_deleted":  true,
		"deleted_for": scope,
		"deleted_by":  actorID,
		"deleted_at":  now,
		"updated_at":  now,
	}
	if scope == models.DeleteForEveryone {
		set["content"] = models.DeletedPlaceholder
		set["attachments"] = []models.Attachment{}
	}
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": messageID}, bson.M{"$set": set})
	if err != nil {
		return nil, fmt.Errorf("failed to delete message: %w", err)
	}

	if scope == models.DeleteForEveryone {
		msg.ScrubForEveryone(actorID, now)
	} else {
		msg.HideForSender(actorID, now)
	}
	logger.LogChatEvent("message_deleted", msg.ChatID.Hex(), actorID.Hex(), map[string]interface{}{
		"message_id": messageID.Hex(),
		"scope":      scope,
	})
	return msg, nil
}

// React upserts a (user, emoji) reaction: a repeated reaction with the
// same emoji replaces the existing entry instead of accumulating.
func (s *MessageService) React(messageID primitive.ObjectID, userID primitive.ObjectID, userName, emoji string) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if emoji == "" {
		return nil, fmt.Errorf("%w: emoji is required", ErrValidation)
	}

	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	chat, err := s.chats.GetChatByID(msg.ChatID)
	if err != nil {
		return nil, err
	}
	if chat.ActiveParticipant(userID) == nil {
		return nil, fmt.Errorf("message %s: %w", messageID.Hex(), ErrNotFound)
	}
	if !chat.Settings.AllowReactions {
		return nil, fmt.Errorf("%w: reactions are disabled for this chat", ErrValidation)
	}

	now := time.Now()
	// Pull-then-push keeps at most one entry per (user, emoji) pair.
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": messageID}, bson.M{
		"$pull": bson.M{"reactions": bson.M{"user_id": userID, "emoji": emoji}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to replace reaction: %w", err)
	}
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": messageID}, bson.M{
		"$push": bson.M{"reactions": models.Reaction{
			UserID:    userID,
			UserName:  userName,
			Emoji:     emoji,
			ReactedAt: now,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add reaction: %w", err)
	}

	msg.AddReaction(userID, userName, emoji, now)
	return msg, nil
}

// RemoveReaction deletes the matching (user, emoji) entry. Removing a
// reaction that does not exist is a no-op.
func (s *MessageService) RemoveReaction(messageID primitive.ObjectID, userID primitive.ObjectID, emoji string) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": messageID}, bson.M{
		"$pull": bson.M{"reactions": bson.M{"user_id": userID, "emoji": emoji}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to remove reaction: %w", err)
	}
	msg.RemoveReaction(userID, emoji)
	return msg, nil
}

// MarkRead appends a read receipt for the user if none exists yet.
// Receipts are append-only, so delivery status converges on read and
// stays there.
func (s *MessageService) MarkRead(messageID primitive.ObjectID, userID primitive.ObjectID, userName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now()
	// The filter makes the receipt append idempotent: a second call
	// for the same user matches nothing.
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": messageID, "read_by.user_id": bson.M{"$ne": userID}},
		bson.M{
			"$push": bson.M{"read_by": models.ReadReceipt{UserID: userID, UserName: userName, ReadAt: now}},
			"$set":  bson.M{"delivery_status": models.StatusRead, "updated_at": now},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	return nil
}

// MarkChatAsRead applies MarkRead to every unread message in the chat
// authored by someone else, then resets the caller's unread counter.
// It returns the number of messages newly marked.
func (s *MessageService) MarkChatAsRead(chatID primitive.ObjectID, userID primitive.ObjectID, userName string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	chat, err := s.chats.GetChatForUser(chatID, userID)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	result, err := s.collection.UpdateMany(ctx,
		bson.M{
			"chat_id":         chatID,
			"sender.user_id":  bson.M{"$ne": userID},
			"read_by.user_id": bson.M{"$ne": userID},
		},
		bson.M{
			"$push": bson.M{"read_by": models.ReadReceipt{UserID: userID, UserName: userName, ReadAt: now}},
			"$set":  bson.M{"delivery_status": models.StatusRead, "updated_at": now},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark chat read: %w", err)
	}

	if err := s.chats.MarkParticipantRead(chatID, userID, chat.LastMessageID); err != nil {
		logger.LogError(err, "Failed to reset unread counter", map[string]interface{}{
			"chat_id": chatID.Hex(),
			"user_id": userID.Hex(),
		})
	}
	return result.ModifiedCount, nil
}

// Pin marks a message as pinned. Requires the pin-messages permission
// and the chat's pinning toggle.
func (s *MessageService) Pin(messageID primitive.ObjectID, actorID primitive.ObjectID, reason string) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	chat, err := s.chats.GetChatByID(msg.ChatID)
	if err != nil {
		return nil, err
	}
	if !chat.Settings.AllowPinning {
		return nil, fmt.Errorf("%w: pinning is disabled for this chat", ErrValidation)
	}
	if !CanPerform(chat, actorID, models.PermPinMessages) {
		return nil, fmt.Errorf("%w: pin-messages", ErrPermissionDenied)
	}

	now := time.Now()
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": messageID}, bson.M{
		"$set": bson.M{
			"is_pinned":     true,
			"pinned_by":     actorID,
			"pinned_at":     now,
			"pinned_reason": reason,
			"updated_at":    now,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pin message: %w", err)
	}

	msg.IsPinned = true
	msg.PinnedBy = &actorID
	msg.PinnedAt = &now
	msg.PinnedReason = reason
	return msg, nil
}

// Unpin clears all pin metadata from a message.
func (s *MessageService) Unpin(messageID primitive.ObjectID, actorID primitive.ObjectID) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	chat, err := s.chats.GetChatByID(msg.ChatID)
	if err != nil {
		return nil, err
	}
	if !CanPerform(chat, actorID, models.PermPinMessages) {
		return nil, fmt.Errorf("%w: pin-messages", ErrPermissionDenied)
	}

	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": messageID}, bson.M{
		"$set":   bson.M{"is_pinned": false, "updated_at": time.Now()},
		"$unset": bson.M{"pinned_by": "", "pinned_at": "", "pinned_reason": ""},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unpin message: %w", err)
	}

	msg.Unpin()
	return msg, nil
}

// historyPage builds the query for one page of chat history. The sort
// and the cursor both use _id, so pages neither skip nor repeat around
// same-second inserts.
func historyPage(chatID primitive.ObjectID, before *primitive.ObjectID, limit int) (bson.M, *options.FindOptions) {
	filter := bson.M{"chat_id": chatID}
	if before != nil {
		filter["_id"] = bson.M{"$lt": *before}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	return filter, opts
}

// GetMessages pages through a chat's history, newest first. before is
// an optional exclusive cursor on message id.
func (s *MessageService) GetMessages(chatID primitive.ObjectID, before *primitive.ObjectID, limit int) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if limit <= 0 || limit > 100 {
		limit = s.limits.HistoryPageSize
	}

	filter, opts := historyPage(chatID, before, limit)
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}

// GetPinnedMessages returns a chat's pinned messages, newest first.
func (s *MessageService) GetPinnedMessages(chatID primitive.ObjectID) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "pinned_at", Value: -1}}).SetLimit(50)
	cursor, err := s.collection.Find(ctx, bson.M{"chat_id": chatID, "is_pinned": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get pinned messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode pinned messages: %w", err)
	}
	return messages, nil
}

// GetUnreadMessages returns messages in the chat authored by others
// that the user has not read yet, oldest first.
func (s *MessageService) GetUnreadMessages(chatID, userID primitive.ObjectID) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{
		"chat_id":         chatID,
		"sender.user_id":  bson.M{"$ne": userID},
		"read_by.user_id": bson.M{"$ne": userID},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(200)
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get unread messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode unread messages: %w", err)
	}
	return messages, nil
}

// GetSharedAttachments returns messages carrying attachments, newest
// first, for the chat's shared media and documents view.
func (s *MessageService) GetSharedAttachments(chatID primitive.ObjectID, limit int) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	filter := bson.M{
		"chat_id":       chatID,
		"attachments.0": bson.M{"$exists": true},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get shared attachments: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode shared attachments: %w", err)
	}
	return messages, nil
}

// GetMessageForUser loads a message only when the user actively
// belongs to its chat.
func (s *MessageService) GetMessageForUser(messageID, userID primitive.ObjectID) (*models.Message, *models.Chat, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	chat, err := s.chats.GetChatForUser(msg.ChatID, userID)
	if err != nil {
		return nil, nil, err
	}
	return msg, chat, nil
}

func (s *MessageService) getMessage(ctx context.Context, messageID primitive.ObjectID) (*models.Message, error) {
	var msg models.Message
	err := s.collection.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("message %s: %w", messageID.Hex(), ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

func (s *MessageService) getMessageInChat(ctx context.Context, messageID, chatID primitive.ObjectID) (*models.Message, error) {
	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ChatID != chatID {
		return nil, fmt.Errorf("message %s: %w", messageID.Hex(), ErrNotFound)
	}
	return msg, nil
}

func (s *MessageService) recordThreadReply(ctx context.Context, target *models.Message, at time.Time) error {
	update := bson.M{
		"$inc": bson.M{"thread_replies_count": 1},
		"$set": bson.M{"last_thread_reply_at": at},
	}
	if target.ThreadID == nil {
		update["$set"].(bson.M)["thread_id"] = target.ID
	}
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": target.ID}, update)
	return err
}
