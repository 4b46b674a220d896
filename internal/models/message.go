package models

import (
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MessageType identifies the message payload kind.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeFile     MessageType = "file"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeVideo    MessageType = "video"
	MessageTypeLocation MessageType = "location"
	MessageTypeContact  MessageType = "contact"
	MessageTypeSystem   MessageType = "system"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeAudio,
		MessageTypeVideo, MessageTypeLocation, MessageTypeContact, MessageTypeSystem:
		return true
	}
	return false
}

// DeliveryStatus tracks how far a message has progressed. Transitions
// are forward-only; read is sticky because readBy entries are
// append-only. StatusFailed is a client-only terminal state and is
// never persisted.
type DeliveryStatus string

const (
	StatusSending   DeliveryStatus = "sending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
)

var statusRank = map[DeliveryStatus]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// DeleteScope says who a soft delete applies to.
type DeleteScope string

const (
	DeleteForNone     DeleteScope = ""
	DeleteForSender   DeleteScope = "sender"
	DeleteForEveryone DeleteScope = "everyone"
)

const (
	// DeletedPlaceholder replaces the content of a message deleted for
	// everyone. The record itself is retained for audit.
	DeletedPlaceholder = "This message was deleted"

	// EditWindow is how long after creation the sender may edit.
	EditWindow = 24 * time.Hour

	// MaxForwardDepth caps the forwarding chain.
	MaxForwardDepth = 5

	replyPreviewLen = 100
)

// Attachment is file metadata embedded in a message. The blob itself
// lives in external storage.
type Attachment struct {
	FileID        string       `bson:"file_id" json:"file_id"`
	FileName      string       `bson:"file_name" json:"file_name"`
	FileType      string       `bson:"file_type" json:"file_type"`
	FileSize      int64        `bson:"file_size" json:"file_size"`
	URL           string       `bson:"url" json:"url"`
	ThumbnailURL  string       `bson:"thumbnail_url,omitempty" json:"thumbnail_url,omitempty"`
	UploadedBy    UserSnapshot `bson:"uploaded_by" json:"uploaded_by"`
	UploadedAt    time.Time    `bson:"uploaded_at" json:"uploaded_at"`
	DownloadCount int64        `bson:"download_count" json:"download_count"`
}

// ReplySnapshot is a frozen copy of the replied-to message. It stays
// valid even if the original is later edited or deleted.
type ReplySnapshot struct {
	MessageID  primitive.ObjectID `bson:"message_id" json:"message_id"`
	Content    string             `bson:"content" json:"content"`
	SenderName string             `bson:"sender_name" json:"sender_name"`
	SentAt     time.Time          `bson:"sent_at" json:"sent_at"`
}

// ForwardInfo records where a forwarded message originated.
type ForwardInfo struct {
	MessageID  primitive.ObjectID `bson:"message_id" json:"message_id"`
	ChatID     primitive.ObjectID `bson:"chat_id" json:"chat_id"`
	SenderName string             `bson:"sender_name" json:"sender_name"`
	Depth      int                `bson:"depth" json:"depth"`
}

// Reaction is a (user, emoji) pair. At most one entry exists per pair.
type Reaction struct {
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	UserName  string             `bson:"user_name" json:"user_name"`
	Emoji     string             `bson:"emoji" json:"emoji"`
	ReactedAt time.Time          `bson:"reacted_at" json:"reacted_at"`
}

// ReadReceipt marks that a user has read the message. Entries are
// append-only, one per reader.
type ReadReceipt struct {
	UserID   primitive.ObjectID `bson:"user_id" json:"user_id"`
	UserName string             `bson:"user_name" json:"user_name"`
	ReadAt   time.Time          `bson:"read_at" json:"read_at"`
}

// Mention carries its own read state, independent of the message's
// read receipts.
type Mention struct {
	UserID primitive.ObjectID `bson:"user_id" json:"user_id"`
	Name   string             `bson:"name" json:"name"`
	IsRead bool               `bson:"is_read" json:"is_read"`
	ReadAt *time.Time         `bson:"read_at,omitempty" json:"read_at,omitempty"`
}

// EditRecord is one append-only edit-history entry.
type EditRecord struct {
	PreviousContent string             `bson:"previous_content" json:"previous_content"`
	NewContent      string             `bson:"new_content" json:"new_content"`
	EditedBy        primitive.ObjectID `bson:"edited_by" json:"edited_by"`
	Reason          string             `bson:"reason,omitempty" json:"reason,omitempty"`
	EditedAt        time.Time          `bson:"edited_at" json:"edited_at"`
}

// Message is one chat message document.
type Message struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ChatID         primitive.ObjectID  `bson:"chat_id" json:"chat_id"`
	Sender         UserSnapshot        `bson:"sender" json:"sender"`
	Content        string              `bson:"content" json:"content"`
	MessageType    MessageType         `bson:"message_type" json:"message_type"`
	Attachments    []Attachment        `bson:"attachments" json:"attachments"`
	ReplyTo        *ReplySnapshot      `bson:"reply_to,omitempty" json:"reply_to,omitempty"`
	ForwardedFrom  *ForwardInfo        `bson:"forwarded_from,omitempty" json:"forwarded_from,omitempty"`
	Reactions      []Reaction          `bson:"reactions" json:"reactions"`
	Mentions       []Mention           `bson:"mentions" json:"mentions"`
	IsPinned       bool                `bson:"is_pinned" json:"is_pinned"`
	PinnedBy       *primitive.ObjectID `bson:"pinned_by,omitempty" json:"pinned_by,omitempty"`
	PinnedAt       *time.Time          `bson:"pinned_at,omitempty" json:"pinned_at,omitempty"`
	PinnedReason   string              `bson:"pinned_reason,omitempty" json:"pinned_reason,omitempty"`
	IsEdited       bool                `bson:"is_edited" json:"is_edited"`
	EditedAt       *time.Time          `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	EditHistory    []EditRecord        `bson:"edit_history,omitempty" json:"edit_history,omitempty"`
	IsDeleted      bool                `bson:"is_deleted" json:"is_deleted"`
	DeletedFor     DeleteScope         `bson:"deleted_for,omitempty" json:"deleted_for,omitempty"`
	DeletedBy      *primitive.ObjectID `bson:"deleted_by,omitempty" json:"deleted_by,omitempty"`
	DeletedAt      *time.Time          `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	DeliveryStatus DeliveryStatus      `bson:"delivery_status" json:"delivery_status"`
	ReadBy         []ReadReceipt       `bson:"read_by" json:"read_by"`
	ThreadID       *primitive.ObjectID `bson:"thread_id,omitempty" json:"thread_id,omitempty"`
	ThreadReplies  int64               `bson:"thread_replies_count" json:"thread_replies_count"`
	LastThreadAt   *time.Time          `bson:"last_thread_reply_at,omitempty" json:"last_thread_reply_at,omitempty"`
	CreatedAt      time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `bson:"updated_at" json:"updated_at"`

	// LocalID is a client-generated correlation id for optimistic
	// entries awaiting server confirmation. Never persisted.
	LocalID string `bson:"-" json:"local_id,omitempty"`
}

// NewReplySnapshot freezes the replied-to message into a snapshot,
// truncating long content for preview.
func NewReplySnapshot(target *Message) *ReplySnapshot {
	content := target.Content
	if len(content) > replyPreviewLen {
		cut := replyPreviewLen
		// back up to a rune boundary so the preview stays valid UTF-8
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}
	return &ReplySnapshot{
		MessageID:  target.ID,
		Content:    content,
		SenderName: target.Sender.Name,
		SentAt:     target.CreatedAt,
	}
}

// AdvanceStatus moves the delivery status forward. Backward
// transitions are ignored, which keeps read sticky.
func (m *Message) AdvanceStatus(to DeliveryStatus) {
	cur, okCur := statusRank[m.DeliveryStatus]
	next, okNext := statusRank[to]
	if !okCur || !okNext {
		return
	}
	if next > cur {
		m.DeliveryStatus = to
	}
}

// HasReadBy reports whether the user already has a read receipt.
func (m *Message) HasReadBy(userID primitive.ObjectID) bool {
	for i := range m.ReadBy {
		if m.ReadBy[i].UserID == userID {
			return true
		}
	}
	return false
}

// MarkReadBy appends a read receipt if the user has none yet and
// advances the status to read. It reports whether a receipt was added.
func (m *Message) MarkReadBy(userID primitive.ObjectID, userName string, at time.Time) bool {
	if m.HasReadBy(userID) {
		m.AdvanceStatus(StatusRead)
		return false
	}
	m.ReadBy = append(m.ReadBy, ReadReceipt{UserID: userID, UserName: userName, ReadAt: at})
	m.AdvanceStatus(StatusRead)
	return true
}

// AddReaction upserts a (user, emoji) reaction: an existing entry for
// the same pair is replaced rather than duplicated.
func (m *Message) AddReaction(userID primitive.ObjectID, userName, emoji string, at time.Time) {
	m.RemoveReaction(userID, emoji)
	m.Reactions = append(m.Reactions, Reaction{
		UserID:    userID,
		UserName:  userName,
		Emoji:     emoji,
		ReactedAt: at,
	})
}

// RemoveReaction deletes the matching (user, emoji) entries. It
// reports whether anything was removed.
func (m *Message) RemoveReaction(userID primitive.ObjectID, emoji string) bool {
	kept := m.Reactions[:0]
	removed := false
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	m.Reactions = kept
	return removed
}

// ApplyEdit replaces the content and appends an edit-history entry
// capturing the previous content. History is append-only.
func (m *Message) ApplyEdit(editorID primitive.ObjectID, newContent, reason string, at time.Time) {
	m.EditHistory = append(m.EditHistory, EditRecord{
		PreviousContent: m.Content,
		NewContent:      newContent,
		EditedBy:        editorID,
		Reason:          reason,
		EditedAt:        at,
	})
	m.Content = newContent
	m.IsEdited = true
	m.EditedAt = &at
	m.UpdatedAt = at
}

// ScrubForEveryone performs a delete-for-everyone: content is replaced
// with the deletion placeholder and attachments are cleared, while the
// record itself remains queryable.
func (m *Message) ScrubForEveryone(actorID primitive.ObjectID, at time.Time) {
	m.Content = DeletedPlaceholder
	m.Attachments = []Attachment{}
	m.IsDeleted = true
	m.DeletedFor = DeleteForEveryone
	m.DeletedBy = &actorID
	m.DeletedAt = &at
	m.UpdatedAt = at
}

// HideForSender performs a delete-for-sender: the flag is recorded but
// content is retained. Visibility filtering happens at read time.
func (m *Message) HideForSender(actorID primitive.ObjectID, at time.Time) {
	m.IsDeleted = true
	m.DeletedFor = DeleteForSender
	m.DeletedBy = &actorID
	m.DeletedAt = &at
	m.UpdatedAt = at
}

// VisibleTo reports whether the message should be shown to a viewer.
// Delete-for-sender hides the message from the sender only; delete-
// for-everyone stays visible as a placeholder.
func (m *Message) VisibleTo(viewerID primitive.ObjectID) bool {
	if m.DeletedFor == DeleteForSender && m.Sender.UserID == viewerID {
		return false
	}
	return true
}

// Unpin clears all pin metadata.
func (m *Message) Unpin() {
	m.IsPinned = false
	m.PinnedBy = nil
	m.PinnedAt = nil
	m.PinnedReason = ""
}

// HasAttachments reports whether the message carries files.
func (m *Message) HasAttachments() bool {
	return len(m.Attachments) > 0
}
