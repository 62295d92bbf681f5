package backup

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hostwell/guildvault/internal/crypto"
)

// SettingsStore persists the per-workspace backup policy. Export
// destination secrets are encrypted before they touch the database.
type SettingsStore struct {
	db  *sql.DB
	enc *crypto.EncryptionManager
}

// NewSettingsStore creates a settings store.
func NewSettingsStore(db *sql.DB, enc *crypto.EncryptionManager) *SettingsStore {
	return &SettingsStore{db: db, enc: enc}
}

// Get returns the policy for a workspace, or nil when none has been saved.
func (s *SettingsStore) Get(workspaceID string) (*Settings, error) {
	var (
		settings                       Settings
		excluded, allowed, destination string
		lastRun, nextRun               sql.NullTime
	)
	err := s.db.QueryRow(`
		SELECT workspace_id, is_enabled, include_messages, excluded_channels,
		       message_history_days, max_backup_count, allowed_roles, schedule,
		       export_destination, last_run, next_run, created_at, updated_at
		FROM backup_settings WHERE workspace_id = ?`, workspaceID).Scan(
		&settings.WorkspaceID, &settings.IsEnabled, &settings.IncludeMessages, &excluded,
		&settings.MessageHistoryDays, &settings.MaxBackupCount, &allowed, &settings.Schedule,
		&destination, &lastRun, &nextRun, &settings.CreatedAt, &settings.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load backup settings: %w", err)
	}

	if err := json.Unmarshal([]byte(excluded), &settings.ExcludedChannels); err != nil {
		settings.ExcludedChannels = []string{}
	}
	if err := json.Unmarshal([]byte(allowed), &settings.AllowedRoles); err != nil {
		settings.AllowedRoles = []string{}
	}
	if lastRun.Valid {
		t := lastRun.Time
		settings.LastRun = &t
	}
	if nextRun.Valid {
		t := nextRun.Time
		settings.NextRun = &t
	}

	if destination != "" {
		var cfg DestinationConfig
		if err := json.Unmarshal([]byte(destination), &cfg); err == nil {
			if err := s.decryptSecrets(&cfg); err != nil {
				return nil, fmt.Errorf("failed to decrypt export credentials: %w", err)
			}
			settings.ExportDestination = &cfg
		}
	}
	return &settings, nil
}

// Save upserts the policy for a workspace. updated_at advances on every
// call; created_at is set only on first insert.
func (s *SettingsStore) Save(settings *Settings) error {
	excluded, err := json.Marshal(emptyIfNil(settings.ExcludedChannels))
	if err != nil {
		return fmt.Errorf("failed to encode excluded channels: %w", err)
	}
	allowed, err := json.Marshal(emptyIfNil(settings.AllowedRoles))
	if err != nil {
		return fmt.Errorf("failed to encode allowed roles: %w", err)
	}

	destination := ""
	if settings.ExportDestination != nil {
		cfg := *settings.ExportDestination
		if err := s.encryptSecrets(&cfg); err != nil {
			return fmt.Errorf("failed to encrypt export credentials: %w", err)
		}
		encoded, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode export destination: %w", err)
		}
		destination = string(encoded)
	}

	var lastRun, nextRun interface{}
	if settings.LastRun != nil {
		lastRun = *settings.LastRun
	}
	if settings.NextRun != nil {
		nextRun = *settings.NextRun
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO backup_settings (
			workspace_id, is_enabled, include_messages, excluded_channels,
			message_history_days, max_backup_count, allowed_roles, schedule,
			export_destination, last_run, next_run, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id) DO UPDATE SET
			is_enabled = excluded.is_enabled,
			include_messages = excluded.include_messages,
			excluded_channels = excluded.excluded_channels,
			message_history_days = excluded.message_history_days,
			max_backup_count = excluded.max_backup_count,
			allowed_roles = excluded.allowed_roles,
			schedule = excluded.schedule,
			export_destination = excluded.export_destination,
			last_run = excluded.last_run,
			next_run = excluded.next_run,
			updated_at = excluded.updated_at`,
		settings.WorkspaceID, settings.IsEnabled, settings.IncludeMessages, string(excluded),
		settings.MessageHistoryDays, settings.MaxBackupCount, string(allowed), settings.Schedule,
		destination, lastRun, nextRun, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save backup settings: %w", err)
	}
	return nil
}

// SetRuns records the last execution time and the next scheduled one.
func (s *SettingsStore) SetRuns(workspaceID string, lastRun time.Time, nextRun *time.Time) error {
	var next interface{}
	if nextRun != nil {
		next = *nextRun
	}
	_, err := s.db.Exec(`
		UPDATE backup_settings SET last_run = ?, next_run = ? WHERE workspace_id = ?`,
		lastRun, next, workspaceID,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule runs: %w", err)
	}
	return nil
}

// ListDue returns enabled, scheduled policies whose next run is at or
// before now.
func (s *SettingsStore) ListDue(now time.Time) ([]*Settings, error) {
	rows, err := s.db.Query(`
		SELECT workspace_id FROM backup_settings
		WHERE is_enabled = 1 AND schedule != '' AND next_run IS NOT NULL AND next_run <= ?`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due schedules: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var due []*Settings
	for _, id := range ids {
		settings, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		if settings != nil {
			due = append(due, settings)
		}
	}
	return due, nil
}

func (s *SettingsStore) encryptSecrets(cfg *DestinationConfig) error {
	if s.enc == nil {
		return nil
	}
	var err error
	if cfg.SFTPPassword != "" {
		if cfg.SFTPPassword, err = s.enc.EncryptString(cfg.SFTPPassword); err != nil {
			return err
		}
	}
	if cfg.S3SecretKey != "" {
		if cfg.S3SecretKey, err = s.enc.EncryptString(cfg.S3SecretKey); err != nil {
			return err
		}
	}
	return nil
}

func (s *SettingsStore) decryptSecrets(cfg *DestinationConfig) error {
	if s.enc == nil {
		return nil
	}
	var err error
	if cfg.SFTPPassword != "" {
		if cfg.SFTPPassword, err = s.enc.DecryptString(cfg.SFTPPassword); err != nil {
			return err
		}
	}
	if cfg.S3SecretKey != "" {
		if cfg.S3SecretKey, err = s.enc.DecryptString(cfg.S3SecretKey); err != nil {
			return err
		}
	}
	return nil
}
