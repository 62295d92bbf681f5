package platform

import (
	"encoding/json"
	"time"
)

// Workspace is the remote community being backed up.
type Workspace struct {
	ID                 string
	Name               string
	Description        string
	IconURL            string
	BannerURL          string
	SplashURL          string
	OwnerID            string
	VerificationLevel  int
	ContentFilterLevel int
	Features           []string
	Locale             string
	VanityCode         string
	MemberCount        int
}

// RoleTags carries platform-managed role metadata.
type RoleTags struct {
	BotID         string `json:"bot_id,omitempty"`
	IntegrationID string `json:"integration_id,omitempty"`
}

// Role is a named permission group within a workspace.
type Role struct {
	ID          string
	Name        string
	Color       int
	Hoist       bool
	Position    int
	Permissions string // decimal bitmask; string to avoid 64-bit overflow in transit
	Managed     bool
	Mentionable bool
	IconURL     string
	Tags        *RoleTags
	MemberCount int
}

// PermissionOverwrite is a channel-level permission exception.
type PermissionOverwrite struct {
	PrincipalID   string `json:"principal_id"`
	PrincipalKind string `json:"principal_kind"` // "role" or "member"
	Allow         string `json:"allow"`
	Deny          string `json:"deny"`
}

// Channel kind discriminators used by the crawler.
const (
	ChannelKindText     = 0
	ChannelKindVoice    = 2
	ChannelKindCategory = 4
	ChannelKindNews     = 5
	ChannelKindStage    = 13
	ChannelKindForum    = 15
)

// Channel is a conversation surface within a workspace.
type Channel struct {
	ID                 string
	Name               string
	Kind               int
	Position           int
	ParentID           string
	Overwrites         []PermissionOverwrite
	Topic              string
	NSFW               bool
	SlowModeSeconds    int
	AutoArchiveMinutes int
	Bitrate            int
	UserLimit          int
	RTCRegion          string
	VideoQuality       int
}

// IsTextLike reports whether messages can be fetched from the channel.
func (c Channel) IsTextLike() bool {
	switch c.Kind {
	case ChannelKindText, ChannelKindNews, ChannelKindForum:
		return true
	default:
		return false
	}
}

// Author identifies the sender of a message.
type Author struct {
	ID          string
	Username    string
	DisplayName string
	AvatarURL   string
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	MirrorURL   string `json:"mirror_url,omitempty"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

// Reaction aggregates one emoji's reactions on a message.
type Reaction struct {
	EmojiID   string   `json:"emoji_id,omitempty"`
	EmojiName string   `json:"emoji_name"`
	Count     int      `json:"count"`
	UserIDs   []string `json:"user_ids,omitempty"`
}

// Mentions lists the principals a message references.
type Mentions struct {
	UserIDs    []string `json:"user_ids,omitempty"`
	RoleIDs    []string `json:"role_ids,omitempty"`
	ChannelIDs []string `json:"channel_ids,omitempty"`
}

// Message is one historical message in a channel.
type Message struct {
	ID                  string
	Author              Author
	Content             string
	Embeds              []json.RawMessage
	Attachments         []Attachment
	Reactions           []Reaction
	Mentions            Mentions
	Pinned              bool
	TTS                 bool
	Type                int
	Flags               int
	ReferencedMessageID string
	ThreadID            string
	CreatedAt           time.Time
	EditedAt            *time.Time
}

// Member is a workspace member's role assignment, used by the access guard.
type Member struct {
	UserID  string
	RoleIDs []string
}
