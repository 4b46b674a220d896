package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatType identifies the conversation shape.
type ChatType string

const (
	ChatTypeDirect       ChatType = "direct"
	ChatTypeGroup        ChatType = "group"
	ChatTypeChannel      ChatType = "channel"
	ChatTypeAnnouncement ChatType = "announcement"
)

// Valid reports whether t is a known chat type.
func (t ChatType) Valid() bool {
	switch t {
	case ChatTypeDirect, ChatTypeGroup, ChatTypeChannel, ChatTypeAnnouncement:
		return true
	}
	return false
}

// Role is a participant's role within a single chat.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
	RoleGuest     Role = "guest"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleModerator, RoleMember, RoleGuest:
		return true
	}
	return false
}

// Permission is a single chat capability. Permissions are granted
// explicitly per participant; roles only supply defaults at creation
// or at role-change time when no explicit list is given.
type Permission string

const (
	PermSendMessages        Permission = "send-messages"
	PermSendFiles           Permission = "send-files"
	PermCreatePolls         Permission = "create-polls"
	PermPinMessages         Permission = "pin-messages"
	PermDeleteAnyMessages   Permission = "delete-any-messages"
	PermEditAnyMessages     Permission = "edit-any-messages"
	PermMentionAll          Permission = "mention-all"
	PermAddMembers          Permission = "add-members"
	PermRemoveMembers       Permission = "remove-members"
	PermManageChat          Permission = "manage-chat"
	PermEditChatInfo        Permission = "edit-chat-info"
	PermCreateAnnouncements Permission = "create-announcements"
)

// DefaultPermissions returns the permission set a role grants when a
// participant is created or when a role change supplies no explicit list.
func DefaultPermissions(role Role) []Permission {
	switch role {
	case RoleOwner, RoleAdmin:
		return []Permission{
			PermSendMessages, PermSendFiles, PermCreatePolls, PermPinMessages,
			PermDeleteAnyMessages, PermEditAnyMessages, PermMentionAll,
			PermAddMembers, PermRemoveMembers, PermManageChat, PermEditChatInfo,
			PermCreateAnnouncements,
		}
	case RoleModerator:
		return []Permission{
			PermSendMessages, PermSendFiles, PermCreatePolls, PermPinMessages,
			PermDeleteAnyMessages, PermEditAnyMessages, PermMentionAll,
			PermCreateAnnouncements,
		}
	case RoleMember:
		return []Permission{PermSendMessages, PermSendFiles}
	case RoleGuest:
		return []Permission{PermSendMessages}
	default:
		return nil
	}
}

// Participant is a user's membership record inside one chat. It is an
// embedded value record, not a separate collection.
type Participant struct {
	ID                string              `bson:"participant_id" json:"participant_id"`
	UserID            primitive.ObjectID  `bson:"user_id" json:"user_id"`
	Name              string              `bson:"name" json:"name"`
	Email             string              `bson:"email,omitempty" json:"email,omitempty"`
	Avatar            string              `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Role              Role                `bson:"role" json:"role"`
	Permissions       []Permission        `bson:"permissions" json:"permissions"`
	IsActive          bool                `bson:"is_active" json:"is_active"`
	IsOnline          bool                `bson:"is_online" json:"is_online"`
	IsMuted           bool                `bson:"is_muted" json:"is_muted"`
	MutedUntil        *time.Time          `bson:"muted_until,omitempty" json:"muted_until,omitempty"`
	JoinedAt          time.Time           `bson:"joined_at" json:"joined_at"`
	LeftAt            *time.Time          `bson:"left_at,omitempty" json:"left_at,omitempty"`
	AddedBy           *primitive.ObjectID `bson:"added_by,omitempty" json:"added_by,omitempty"`
	LastReadMessageID *primitive.ObjectID `bson:"last_read_message_id,omitempty" json:"last_read_message_id,omitempty"`
	UnreadCount       int64               `bson:"unread_count" json:"unread_count"`
}

// HasPermission reports whether the participant's explicit permission
// list contains p. Role is deliberately not consulted here.
func (p *Participant) HasPermission(perm Permission) bool {
	for _, have := range p.Permissions {
		if have == perm {
			return true
		}
	}
	return false
}

// MutedAt reports whether the participant is muted at the given time.
// A nil MutedUntil with IsMuted set means muted indefinitely.
func (p *Participant) MutedAt(now time.Time) bool {
	if !p.IsMuted {
		return false
	}
	if p.MutedUntil == nil {
		return true
	}
	return now.Before(*p.MutedUntil)
}

// ChatSettings are per-chat feature toggles.
type ChatSettings struct {
	AllowFileSharing     bool       `bson:"allow_file_sharing" json:"allow_file_sharing"`
	AllowReactions       bool       `bson:"allow_reactions" json:"allow_reactions"`
	AllowMentions        bool       `bson:"allow_mentions" json:"allow_mentions"`
	AllowForwarding      bool       `bson:"allow_forwarding" json:"allow_forwarding"`
	AllowPinning         bool       `bson:"allow_pinning" json:"allow_pinning"`
	AllowThreads         bool       `bson:"allow_threads" json:"allow_threads"`
	AllowEditing         bool       `bson:"allow_editing" json:"allow_editing"`
	AllowDeleting        bool       `bson:"allow_deleting" json:"allow_deleting"`
	MessageRetentionDays int        `bson:"message_retention_days" json:"message_retention_days"`
	MaxFileSizeMB        int64      `bson:"max_file_size_mb" json:"max_file_size_mb"`
	AllowedFileTypes     []string   `bson:"allowed_file_types,omitempty" json:"allowed_file_types,omitempty"`
	MuteNotifications    bool       `bson:"mute_notifications" json:"mute_notifications"`
	MutedUntil           *time.Time `bson:"muted_until,omitempty" json:"muted_until,omitempty"`
	Theme                string     `bson:"theme,omitempty" json:"theme,omitempty"`
	Language             string     `bson:"language,omitempty" json:"language,omitempty"`
	Timezone             string     `bson:"timezone,omitempty" json:"timezone,omitempty"`
}

// DefaultChatSettings returns the settings applied to new chats.
func DefaultChatSettings() ChatSettings {
	return ChatSettings{
		AllowFileSharing: true,
		AllowReactions:   true,
		AllowMentions:    true,
		AllowForwarding:  true,
		AllowPinning:     true,
		AllowThreads:     true,
		AllowEditing:     true,
		AllowDeleting:    true,
		MaxFileSizeMB:    25,
	}
}

// Chat is a conversation document. Participants are embedded; messages
// live in their own collection keyed by chat id.
type Chat struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ChatType      ChatType            `bson:"chat_type" json:"chat_type"`
	Name          string              `bson:"name" json:"name"`
	Description   string              `bson:"description,omitempty" json:"description,omitempty"`
	Avatar        string              `bson:"avatar,omitempty" json:"avatar,omitempty"`
	CreatedBy     primitive.ObjectID  `bson:"created_by" json:"created_by"`
	Participants  []Participant       `bson:"participants" json:"participants"`
	LastMessageID *primitive.ObjectID `bson:"last_message_id,omitempty" json:"last_message_id,omitempty"`
	LastActivity  time.Time           `bson:"last_activity" json:"last_activity"`
	IsArchived    bool                `bson:"is_archived" json:"is_archived"`
	IsPinned      bool                `bson:"is_pinned" json:"is_pinned"`
	Settings      ChatSettings        `bson:"settings" json:"settings"`
	TotalMessages int64               `bson:"total_messages" json:"total_messages"`
	UnreadCount   int64               `bson:"unread_count" json:"unread_count"`
	CreatedAt     time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `bson:"updated_at" json:"updated_at"`
}

// FindParticipant returns the participant record for a user, active or
// not. Exactly one record per user is maintained per chat.
func (c *Chat) FindParticipant(userID primitive.ObjectID) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// ActiveParticipant returns the participant record for a user only if
// the membership is still active.
func (c *Chat) ActiveParticipant(userID primitive.ObjectID) *Participant {
	p := c.FindParticipant(userID)
	if p == nil || !p.IsActive {
		return nil
	}
	return p
}

// ParticipantByID looks a participant up by its record id.
func (c *Chat) ParticipantByID(participantID string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].ID == participantID {
			return &c.Participants[i]
		}
	}
	return nil
}

// ActiveParticipants returns all active membership records.
func (c *Chat) ActiveParticipants() []*Participant {
	active := make([]*Participant, 0, len(c.Participants))
	for i := range c.Participants {
		if c.Participants[i].IsActive {
			active = append(active, &c.Participants[i])
		}
	}
	return active
}

// DirectCounterpartName returns the display name of the other active
// participant in a direct chat. Direct chats auto-derive their name
// from it when none is set.
func (c *Chat) DirectCounterpartName(selfID primitive.ObjectID) string {
	for i := range c.Participants {
		p := &c.Participants[i]
		if p.IsActive && p.UserID != selfID {
			return p.Name
		}
	}
	return ""
}
