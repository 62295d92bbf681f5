package backup

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hostwell/guildvault/internal/logging"
)

// Archive is the exported form of one completed backup: the job record
// plus every snapshot row, serialized as gzip-compressed JSON.
type Archive struct {
	Version    int               `json:"version"`
	ExportedAt time.Time         `json:"exportedAt"`
	Job        *BackupJob        `json:"job"`
	Settings   *SettingsSnapshot `json:"settings,omitempty"`
	Roles      []*RoleSnapshot   `json:"roles"`
	Channels   []ArchiveChannel  `json:"channels"`
}

// ArchiveChannel pairs a channel capture with its message captures.
type ArchiveChannel struct {
	Channel  *ChannelSnapshot   `json:"channel"`
	Messages []*MessageSnapshot `json:"messages"`
}

// Exporter assembles archives from stored snapshots and ships them to a
// destination.
type Exporter struct {
	store *Store
}

// NewExporter creates an exporter.
func NewExporter(store *Store) *Exporter {
	return &Exporter{store: store}
}

// Build assembles the archive for a completed backup.
func (e *Exporter) Build(backupID string) (*Archive, error) {
	job, err := e.store.GetJob(backupID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrNotFound
	}
	if job.Status != StatusCompleted {
		return nil, fmt.Errorf("cannot export backup %s: status is %s", backupID, job.Status)
	}

	settings, err := e.store.GetSettingsSnapshot(backupID)
	if err != nil {
		return nil, err
	}
	roles, err := e.store.ListRoleSnapshots(backupID)
	if err != nil {
		return nil, err
	}
	channels, err := e.store.ListChannelSnapshots(backupID)
	if err != nil {
		return nil, err
	}

	archive := &Archive{
		Version:    1,
		ExportedAt: time.Now().UTC(),
		Job:        job,
		Settings:   settings,
		Roles:      roles,
		Channels:   make([]ArchiveChannel, 0, len(channels)),
	}
	if archive.Roles == nil {
		archive.Roles = []*RoleSnapshot{}
	}

	for _, ch := range channels {
		messages, err := e.store.ListMessageSnapshots(ch.ID)
		if err != nil {
			return nil, err
		}
		if messages == nil {
			messages = []*MessageSnapshot{}
		}
		archive.Channels = append(archive.Channels, ArchiveChannel{
			Channel:  ch,
			Messages: messages,
		})
	}
	return archive, nil
}

// Export builds the archive for a completed backup, compresses it and
// uploads it to the destination. Returns the archive filename.
func (e *Exporter) Export(backupID string, dest Destination) (string, error) {
	archive, err := e.Build(backupID)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(archive); err != nil {
		gz.Close()
		return "", fmt.Errorf("failed to encode archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("failed to compress archive: %w", err)
	}

	filename := ArchiveFilename(archive.Job)
	if err := dest.Upload(filename, &buf, int64(buf.Len())); err != nil {
		return "", err
	}

	logging.L().Info("backup_exported",
		"backup_id", backupID,
		"destination", dest.GetType(),
		"file", filename,
	)
	return filename, nil
}

// ArchiveFilename returns the canonical archive name for a job.
func ArchiveFilename(job *BackupJob) string {
	return fmt.Sprintf("%s_%s_%s.json.gz",
		job.WorkspaceID,
		job.ID,
		job.CreatedAt.UTC().Format("20060102T150405Z"),
	)
}
