package backup

import (
	"encoding/json"
	"time"

	"github.com/hostwell/guildvault/internal/platform"
)

// The normalizers translate platform entities into snapshot records. They
// never fail: missing or malformed fields map to zero values so that one
// odd entity cannot sink a whole capture phase.

func newSettingsSnapshot(backupID string, ws *platform.Workspace) *SettingsSnapshot {
	snap := &SettingsSnapshot{
		BackupID: backupID,
		Features: []string{},
	}
	if ws == nil {
		return snap
	}

	snap.Name = ws.Name
	snap.Description = ws.Description
	snap.IconURL = ws.IconURL
	snap.BannerURL = ws.BannerURL
	snap.SplashURL = ws.SplashURL
	snap.OwnerID = ws.OwnerID
	snap.VerificationLevel = ws.VerificationLevel
	snap.ContentFilterLevel = ws.ContentFilterLevel
	snap.Locale = ws.Locale
	snap.VanityCode = ws.VanityCode
	if ws.Features != nil {
		snap.Features = ws.Features
	}
	return snap
}

func newRoleSnapshot(backupID string, role platform.Role) *RoleSnapshot {
	permissions := role.Permissions
	if permissions == "" {
		permissions = "0"
	}

	tags := ""
	if role.Tags != nil {
		if encoded, err := json.Marshal(role.Tags); err == nil {
			tags = string(encoded)
		}
	}

	return &RoleSnapshot{
		BackupID:    backupID,
		RoleID:      role.ID,
		Name:        role.Name,
		Color:       role.Color,
		Hoist:       role.Hoist,
		Position:    role.Position,
		Permissions: permissions,
		Managed:     role.Managed,
		Mentionable: role.Mentionable,
		IconURL:     role.IconURL,
		Tags:        tags,
		MemberCount: role.MemberCount,
	}
}

func newChannelSnapshot(backupID string, ch platform.Channel) *ChannelSnapshot {
	overwrites := make([]platformOverwrite, 0, len(ch.Overwrites))
	for _, ow := range ch.Overwrites {
		overwrites = append(overwrites, platformOverwrite{
			PrincipalID:   ow.PrincipalID,
			PrincipalKind: ow.PrincipalKind,
			Allow:         ow.Allow,
			Deny:          ow.Deny,
		})
	}

	return &ChannelSnapshot{
		BackupID:           backupID,
		ChannelID:          ch.ID,
		Name:               ch.Name,
		Kind:               ch.Kind,
		Position:           ch.Position,
		ParentID:           ch.ParentID,
		Overwrites:         overwrites,
		Topic:              ch.Topic,
		NSFW:               ch.NSFW,
		SlowModeSeconds:    ch.SlowModeSeconds,
		AutoArchiveMinutes: ch.AutoArchiveMinutes,
		Bitrate:            ch.Bitrate,
		UserLimit:          ch.UserLimit,
		RTCRegion:          ch.RTCRegion,
		VideoQuality:       ch.VideoQuality,
	}
}

func newMessageSnapshot(channelBackupID int64, msg platform.Message) *MessageSnapshot {
	attachments := make([]AttachmentRef, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		attachments = append(attachments, AttachmentRef{
			ID:          att.ID,
			Name:        att.Name,
			URL:         att.URL,
			MirrorURL:   att.MirrorURL,
			Size:        att.Size,
			ContentType: att.ContentType,
		})
	}

	reactions := make([]ReactionRef, 0, len(msg.Reactions))
	for _, re := range msg.Reactions {
		reactions = append(reactions, ReactionRef{
			EmojiID:   re.EmojiID,
			EmojiName: re.EmojiName,
			Count:     re.Count,
			UserIDs:   re.UserIDs,
		})
	}

	embeds := msg.Embeds
	if embeds == nil {
		embeds = []json.RawMessage{}
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return &MessageSnapshot{
		ChannelBackupID:   channelBackupID,
		MessageID:         msg.ID,
		AuthorID:          msg.Author.ID,
		AuthorUsername:    msg.Author.Username,
		AuthorDisplayName: msg.Author.DisplayName,
		AuthorAvatarURL:   msg.Author.AvatarURL,
		Content:           msg.Content,
		Embeds:            embeds,
		Attachments:       attachments,
		Reactions:         reactions,
		Mentions: MentionSet{
			UserIDs:    msg.Mentions.UserIDs,
			RoleIDs:    msg.Mentions.RoleIDs,
			ChannelIDs: msg.Mentions.ChannelIDs,
		},
		Pinned:              msg.Pinned,
		TTS:                 msg.TTS,
		MessageType:         msg.Type,
		Flags:               msg.Flags,
		ReferencedMessageID: msg.ReferencedMessageID,
		ThreadID:            msg.ThreadID,
		CreatedAt:           createdAt,
		EditedAt:            msg.EditedAt,
	}
}
