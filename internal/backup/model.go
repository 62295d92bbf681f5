package backup

import (
	"encoding/json"
	"errors"
	"time"
)

// Kind describes how a backup was initiated.
type Kind string

const (
	KindManual    Kind = "manual"
	KindScheduled Kind = "scheduled"
	KindAutomatic Kind = "automatic"
)

// Status is the lifecycle state of a backup job.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var (
	// ErrPolicyDisabled is returned when backups are not enabled for a workspace.
	ErrPolicyDisabled = errors.New("backups are disabled for this workspace")

	// ErrBackupInProgress is returned when a backup is already running for a workspace.
	ErrBackupInProgress = errors.New("a backup is already in progress for this workspace")

	// ErrNotFound is returned when a backup job does not exist.
	ErrNotFound = errors.New("backup not found")

	// ErrTimedOut wraps a job failure caused by exceeding the job deadline.
	ErrTimedOut = errors.New("backup timed out")
)

// BackupJob is one point-in-time capture attempt for a workspace.
type BackupJob struct {
	ID            string     `json:"id"`
	WorkspaceID   string     `json:"workspaceId"`
	WorkspaceName string     `json:"workspaceName"`
	Name          string     `json:"name"`
	Kind          Kind       `json:"kind"`
	Status        Status     `json:"status"`
	MemberCount   int        `json:"memberCount"`
	RoleCount     int        `json:"roleCount"`
	ChannelCount  int        `json:"channelCount"`
	MessageCount  int        `json:"messageCount"`
	ErrorLog      string     `json:"errorLog,omitempty"`
	RequestedBy   string     `json:"requestedBy"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// SettingsSnapshot captures workspace-level settings at backup time.
type SettingsSnapshot struct {
	BackupID           string   `json:"backupId"`
	Name               string   `json:"name"`
	Description        string   `json:"description,omitempty"`
	IconURL            string   `json:"iconUrl,omitempty"`
	BannerURL          string   `json:"bannerUrl,omitempty"`
	SplashURL          string   `json:"splashUrl,omitempty"`
	OwnerID            string   `json:"ownerId"`
	VerificationLevel  int      `json:"verificationLevel"`
	ContentFilterLevel int      `json:"contentFilterLevel"`
	Features           []string `json:"features"`
	Locale             string   `json:"locale,omitempty"`
	VanityCode         string   `json:"vanityCode,omitempty"`
}

// RoleSnapshot captures one role at backup time.
type RoleSnapshot struct {
	BackupID    string `json:"backupId"`
	RoleID      string `json:"roleId"`
	Name        string `json:"name"`
	Color       int    `json:"color"`
	Hoist       bool   `json:"hoist"`
	Position    int    `json:"position"`
	Permissions string `json:"permissions"`
	Managed     bool   `json:"managed"`
	Mentionable bool   `json:"mentionable"`
	IconURL     string `json:"iconUrl,omitempty"`
	Tags        string `json:"tags,omitempty"`
	MemberCount int    `json:"memberCount"`
}

// ChannelSnapshot captures one channel at backup time. ID is the database
// row id; message snapshots attach to it rather than to the platform
// channel id so that repeated backups of the same channel stay disjoint.
type ChannelSnapshot struct {
	ID                 int64               `json:"-"`
	BackupID           string              `json:"backupId"`
	ChannelID          string              `json:"channelId"`
	Name               string              `json:"name"`
	Kind               int                 `json:"kind"`
	Position           int                 `json:"position"`
	ParentID           string              `json:"parentId,omitempty"`
	Overwrites         []platformOverwrite `json:"overwrites"`
	Topic              string              `json:"topic,omitempty"`
	NSFW               bool                `json:"nsfw"`
	SlowModeSeconds    int                 `json:"slowModeSeconds"`
	AutoArchiveMinutes int                 `json:"autoArchiveMinutes,omitempty"`
	Bitrate            int                 `json:"bitrate,omitempty"`
	UserLimit          int                 `json:"userLimit,omitempty"`
	RTCRegion          string              `json:"rtcRegion,omitempty"`
	VideoQuality       int                 `json:"videoQuality,omitempty"`
	MessageCount       int                 `json:"messageCount"`
}

// platformOverwrite mirrors a permission overwrite in stored form.
type platformOverwrite struct {
	PrincipalID   string `json:"principalId"`
	PrincipalKind string `json:"principalKind"`
	Allow         string `json:"allow"`
	Deny          string `json:"deny"`
}

// MessageSnapshot captures one message at backup time.
type MessageSnapshot struct {
	ID                  int64             `json:"-"`
	ChannelBackupID     int64             `json:"-"`
	MessageID           string            `json:"messageId"`
	AuthorID            string            `json:"authorId"`
	AuthorUsername      string            `json:"authorUsername"`
	AuthorDisplayName   string            `json:"authorDisplayName,omitempty"`
	AuthorAvatarURL     string            `json:"authorAvatarUrl,omitempty"`
	Content             string            `json:"content"`
	Embeds              []json.RawMessage `json:"embeds"`
	Attachments         []AttachmentRef   `json:"attachments"`
	Reactions           []ReactionRef     `json:"reactions"`
	Mentions            MentionSet        `json:"mentions"`
	Pinned              bool              `json:"pinned"`
	TTS                 bool              `json:"tts"`
	MessageType         int               `json:"messageType"`
	Flags               int               `json:"flags"`
	ReferencedMessageID string            `json:"referencedMessageId,omitempty"`
	ThreadID            string            `json:"threadId,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	EditedAt            *time.Time        `json:"editedAt,omitempty"`
}

// AttachmentRef records an attachment without mirroring its bytes.
type AttachmentRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	MirrorURL   string `json:"mirrorUrl,omitempty"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
}

// ReactionRef records aggregate reaction state on a message.
type ReactionRef struct {
	EmojiID   string   `json:"emojiId,omitempty"`
	EmojiName string   `json:"emojiName"`
	Count     int      `json:"count"`
	UserIDs   []string `json:"userIds,omitempty"`
}

// MentionSet records the principals a message mentions.
type MentionSet struct {
	UserIDs    []string `json:"userIds,omitempty"`
	RoleIDs    []string `json:"roleIds,omitempty"`
	ChannelIDs []string `json:"channelIds,omitempty"`
}

// Settings is the per-workspace backup policy.
type Settings struct {
	WorkspaceID        string             `json:"workspaceId"`
	IsEnabled          bool               `json:"isEnabled"`
	IncludeMessages    bool               `json:"includeMessages"`
	ExcludedChannels   []string           `json:"excludedChannels"`
	MessageHistoryDays int                `json:"messageHistoryDays"`
	MaxBackupCount     int                `json:"maxBackupCount"`
	AllowedRoles       []string           `json:"allowedRoles"`
	Schedule           string             `json:"schedule,omitempty"`
	ExportDestination  *DestinationConfig `json:"exportDestination,omitempty"`
	LastRun            *time.Time         `json:"lastRun,omitempty"`
	NextRun            *time.Time         `json:"nextRun,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// DefaultSettings returns the policy applied before an admin saves one.
func DefaultSettings(workspaceID string) *Settings {
	return &Settings{
		WorkspaceID:        workspaceID,
		IsEnabled:          false,
		IncludeMessages:    true,
		ExcludedChannels:   []string{},
		MessageHistoryDays: 30,
		MaxBackupCount:     5,
		AllowedRoles:       []string{},
	}
}

// IsChannelExcluded reports whether a channel is excluded from capture.
func (s *Settings) IsChannelExcluded(channelID string) bool {
	for _, id := range s.ExcludedChannels {
		if id == channelID {
			return true
		}
	}
	return false
}
