package backup

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store persists backup jobs and their snapshot rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a backup store over an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertJob inserts a new job row with status in_progress.
func (s *Store) InsertJob(job *BackupJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.Status = StatusInProgress

	_, err := s.db.Exec(`
		INSERT INTO backup_jobs (
			id, workspace_id, workspace_name, name, kind, status,
			member_count, role_count, channel_count, message_count,
			error_log, requested_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.WorkspaceID, job.WorkspaceName, job.Name, string(job.Kind), string(job.Status),
		job.MemberCount, 0, 0, 0,
		"", job.RequestedBy, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert backup job: %w", err)
	}
	return nil
}

// MarkJobCompleted finalizes a job with its capture counts.
func (s *Store) MarkJobCompleted(jobID string, roleCount, channelCount, messageCount int) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		UPDATE backup_jobs
		SET status = ?, role_count = ?, channel_count = ?, message_count = ?, completed_at = ?
		WHERE id = ?`,
		string(StatusCompleted), roleCount, channelCount, messageCount, now, jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark backup completed: %w", err)
	}
	return nil
}

// MarkJobFailed finalizes a job as failed, keeping any rows already written.
func (s *Store) MarkJobFailed(jobID string, errorLog string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		UPDATE backup_jobs
		SET status = ?, error_log = ?, completed_at = ?
		WHERE id = ?`,
		string(StatusFailed), errorLog, now, jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark backup failed: %w", err)
	}
	return nil
}

// GetJob returns a job by id, or nil when it does not exist.
func (s *Store) GetJob(jobID string) (*BackupJob, error) {
	row := s.db.QueryRow(`
		SELECT id, workspace_id, workspace_name, name, kind, status,
		       member_count, role_count, channel_count, message_count,
		       error_log, requested_by, created_at, completed_at
		FROM backup_jobs WHERE id = ?`, jobID)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load backup job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs for a workspace, newest first.
func (s *Store) ListJobs(workspaceID string, limit int) ([]*BackupJob, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, workspace_id, workspace_name, name, kind, status,
		       member_count, role_count, channel_count, message_count,
		       error_log, requested_by, created_at, completed_at
		FROM backup_jobs
		WHERE workspace_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list backup jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*BackupJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// DeleteJob removes a job and, via cascading foreign keys, every snapshot
// row that hangs off it. Returns false when no such job exists for the
// workspace.
func (s *Store) DeleteJob(jobID, workspaceID string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM backup_jobs WHERE id = ? AND workspace_id = ?`, jobID, workspaceID)
	if err != nil {
		return false, fmt.Errorf("failed to delete backup job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RecoverStaleJobs marks every in_progress job as failed. Called once at
// startup: the process just started, so nothing can actually be running.
func (s *Store) RecoverStaleJobs() (int, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE backup_jobs
		SET status = ?, error_log = ?, completed_at = ?
		WHERE status = ?`,
		string(StatusFailed), "interrupted by restart", now, string(StatusInProgress),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// InsertSettingsSnapshot stores the workspace settings capture for a job.
func (s *Store) InsertSettingsSnapshot(snap *SettingsSnapshot) error {
	features, err := json.Marshal(emptyIfNil(snap.Features))
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO workspace_settings_snapshots (
			backup_id, name, description, icon_url, banner_url, splash_url,
			owner_id, verification_level, content_filter_level, features,
			locale, vanity_code
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.BackupID, snap.Name, snap.Description, snap.IconURL, snap.BannerURL, snap.SplashURL,
		snap.OwnerID, snap.VerificationLevel, snap.ContentFilterLevel, string(features),
		snap.Locale, snap.VanityCode,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settings snapshot: %w", err)
	}
	return nil
}

// GetSettingsSnapshot returns the settings capture for a job, or nil.
func (s *Store) GetSettingsSnapshot(backupID string) (*SettingsSnapshot, error) {
	var (
		snap     SettingsSnapshot
		features string
	)
	err := s.db.QueryRow(`
		SELECT backup_id, name, description, icon_url, banner_url, splash_url,
		       owner_id, verification_level, content_filter_level, features,
		       locale, vanity_code
		FROM workspace_settings_snapshots WHERE backup_id = ?`, backupID).Scan(
		&snap.BackupID, &snap.Name, &snap.Description, &snap.IconURL, &snap.BannerURL, &snap.SplashURL,
		&snap.OwnerID, &snap.VerificationLevel, &snap.ContentFilterLevel, &features,
		&snap.Locale, &snap.VanityCode,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(features), &snap.Features); err != nil {
		snap.Features = []string{}
	}
	return &snap, nil
}

// InsertRoleSnapshots stores role captures for a job in one transaction.
func (s *Store) InsertRoleSnapshots(roles []*RoleSnapshot) error {
	if len(roles) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO role_snapshots (
			backup_id, role_id, name, color, hoist, position,
			permissions, managed, mentionable, icon_url, tags, member_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare role insert: %w", err)
	}
	defer stmt.Close()

	for _, role := range roles {
		perms := role.Permissions
		if perms == "" {
			perms = "0"
		}
		if _, err := stmt.Exec(
			role.BackupID, role.RoleID, role.Name, role.Color, role.Hoist, role.Position,
			perms, role.Managed, role.Mentionable, role.IconURL, role.Tags, role.MemberCount,
		); err != nil {
			return fmt.Errorf("failed to insert role snapshot: %w", err)
		}
	}
	return tx.Commit()
}

// ListRoleSnapshots returns role captures for a job ordered by position.
func (s *Store) ListRoleSnapshots(backupID string) ([]*RoleSnapshot, error) {
	rows, err := s.db.Query(`
		SELECT backup_id, role_id, name, color, hoist, position,
		       permissions, managed, mentionable, icon_url, tags, member_count
		FROM role_snapshots WHERE backup_id = ? ORDER BY position DESC`, backupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role snapshots: %w", err)
	}
	defer rows.Close()

	var roles []*RoleSnapshot
	for rows.Next() {
		var role RoleSnapshot
		if err := rows.Scan(
			&role.BackupID, &role.RoleID, &role.Name, &role.Color, &role.Hoist, &role.Position,
			&role.Permissions, &role.Managed, &role.Mentionable, &role.IconURL, &role.Tags, &role.MemberCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan role snapshot: %w", err)
		}
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

// InsertChannelSnapshot stores one channel capture and returns its row id.
func (s *Store) InsertChannelSnapshot(ch *ChannelSnapshot) (int64, error) {
	overwrites, err := json.Marshal(ch.Overwrites)
	if err != nil {
		return 0, fmt.Errorf("failed to encode overwrites: %w", err)
	}

	res, err := s.db.Exec(`
		INSERT INTO channel_snapshots (
			backup_id, channel_id, name, kind, position, parent_id,
			overwrites, topic, nsfw, slow_mode_seconds, auto_archive_minutes,
			bitrate, user_limit, rtc_region, video_quality, message_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.BackupID, ch.ChannelID, ch.Name, ch.Kind, ch.Position, ch.ParentID,
		string(overwrites), ch.Topic, ch.NSFW, ch.SlowModeSeconds, ch.AutoArchiveMinutes,
		ch.Bitrate, ch.UserLimit, ch.RTCRegion, ch.VideoQuality, 0,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert channel snapshot: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	ch.ID = id
	return id, nil
}

// SetChannelMessageCount records how many messages a channel capture holds.
func (s *Store) SetChannelMessageCount(channelBackupID int64, count int) error {
	_, err := s.db.Exec(`UPDATE channel_snapshots SET message_count = ? WHERE id = ?`, count, channelBackupID)
	if err != nil {
		return fmt.Errorf("failed to update channel message count: %w", err)
	}
	return nil
}

// ListChannelSnapshots returns channel captures for a job ordered by position.
func (s *Store) ListChannelSnapshots(backupID string) ([]*ChannelSnapshot, error) {
	rows, err := s.db.Query(`
		SELECT id, backup_id, channel_id, name, kind, position, parent_id,
		       overwrites, topic, nsfw, slow_mode_seconds, auto_archive_minutes,
		       bitrate, user_limit, rtc_region, video_quality, message_count
		FROM channel_snapshots WHERE backup_id = ? ORDER BY position ASC, id ASC`, backupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel snapshots: %w", err)
	}
	defer rows.Close()

	var channels []*ChannelSnapshot
	for rows.Next() {
		var (
			ch         ChannelSnapshot
			overwrites string
		)
		if err := rows.Scan(
			&ch.ID, &ch.BackupID, &ch.ChannelID, &ch.Name, &ch.Kind, &ch.Position, &ch.ParentID,
			&overwrites, &ch.Topic, &ch.NSFW, &ch.SlowModeSeconds, &ch.AutoArchiveMinutes,
			&ch.Bitrate, &ch.UserLimit, &ch.RTCRegion, &ch.VideoQuality, &ch.MessageCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan channel snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(overwrites), &ch.Overwrites); err != nil {
			ch.Overwrites = []platformOverwrite{}
		}
		channels = append(channels, &ch)
	}
	return channels, rows.Err()
}

// InsertMessageSnapshots stores message captures for one channel capture in
// a single transaction.
func (s *Store) InsertMessageSnapshots(channelBackupID int64, messages []*MessageSnapshot) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO message_snapshots (
			channel_backup_id, message_id, author_id, author_username,
			author_display_name, author_avatar_url, content, embeds,
			attachments, reactions, mentions, pinned, tts, message_type,
			flags, referenced_message_id, thread_id, created_at, edited_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	for _, msg := range messages {
		embeds, err := json.Marshal(emptyIfNilRaw(msg.Embeds))
		if err != nil {
			return fmt.Errorf("failed to encode embeds: %w", err)
		}
		attachments, err := json.Marshal(msg.Attachments)
		if err != nil {
			return fmt.Errorf("failed to encode attachments: %w", err)
		}
		reactions, err := json.Marshal(msg.Reactions)
		if err != nil {
			return fmt.Errorf("failed to encode reactions: %w", err)
		}
		mentions, err := json.Marshal(msg.Mentions)
		if err != nil {
			return fmt.Errorf("failed to encode mentions: %w", err)
		}

		var editedAt interface{}
		if msg.EditedAt != nil {
			editedAt = *msg.EditedAt
		}

		if _, err := stmt.Exec(
			channelBackupID, msg.MessageID, msg.AuthorID, msg.AuthorUsername,
			msg.AuthorDisplayName, msg.AuthorAvatarURL, msg.Content, string(embeds),
			string(attachments), string(reactions), string(mentions), msg.Pinned, msg.TTS, msg.MessageType,
			msg.Flags, msg.ReferencedMessageID, msg.ThreadID, msg.CreatedAt, editedAt,
		); err != nil {
			return fmt.Errorf("failed to insert message snapshot: %w", err)
		}
	}
	return tx.Commit()
}

// ListMessageSnapshots returns message captures for one channel capture,
// oldest first.
func (s *Store) ListMessageSnapshots(channelBackupID int64) ([]*MessageSnapshot, error) {
	rows, err := s.db.Query(`
		SELECT id, channel_backup_id, message_id, author_id, author_username,
		       author_display_name, author_avatar_url, content, embeds,
		       attachments, reactions, mentions, pinned, tts, message_type,
		       flags, referenced_message_id, thread_id, created_at, edited_at
		FROM message_snapshots WHERE channel_backup_id = ? ORDER BY created_at ASC, id ASC`, channelBackupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list message snapshots: %w", err)
	}
	defer rows.Close()

	var messages []*MessageSnapshot
	for rows.Next() {
		var (
			msg                                     MessageSnapshot
			embeds, attachments, reactions, mention string
			editedAt                                sql.NullTime
		)
		if err := rows.Scan(
			&msg.ID, &msg.ChannelBackupID, &msg.MessageID, &msg.AuthorID, &msg.AuthorUsername,
			&msg.AuthorDisplayName, &msg.AuthorAvatarURL, &msg.Content, &embeds,
			&attachments, &reactions, &mention, &msg.Pinned, &msg.TTS, &msg.MessageType,
			&msg.Flags, &msg.ReferencedMessageID, &msg.ThreadID, &msg.CreatedAt, &editedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message snapshot: %w", err)
		}

		json.Unmarshal([]byte(embeds), &msg.Embeds)
		json.Unmarshal([]byte(attachments), &msg.Attachments)
		json.Unmarshal([]byte(reactions), &msg.Reactions)
		json.Unmarshal([]byte(mention), &msg.Mentions)
		if editedAt.Valid {
			t := editedAt.Time
			msg.EditedAt = &t
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// CountMessageSnapshots returns the number of stored messages for a job
// across all of its channel captures.
func (s *Store) CountMessageSnapshots(backupID string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*)
		FROM message_snapshots m
		JOIN channel_snapshots c ON c.id = m.channel_backup_id
		WHERE c.backup_id = ?`, backupID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count message snapshots: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*BackupJob, error) {
	var (
		job         BackupJob
		kind        string
		status      string
		completedAt sql.NullTime
	)
	err := row.Scan(
		&job.ID, &job.WorkspaceID, &job.WorkspaceName, &job.Name, &kind, &status,
		&job.MemberCount, &job.RoleCount, &job.ChannelCount, &job.MessageCount,
		&job.ErrorLog, &job.RequestedBy, &job.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Kind = Kind(kind)
	job.Status = Status(status)
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func emptyIfNilRaw(values []json.RawMessage) []json.RawMessage {
	if values == nil {
		return []json.RawMessage{}
	}
	return values
}
