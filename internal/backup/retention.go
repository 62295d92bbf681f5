package backup

import (
	"github.com/hostwell/guildvault/internal/logging"
)

// retentionScanLimit bounds how many jobs one sweep considers.
const retentionScanLimit = 1000

// RetentionManager prunes old backups down to the policy's maxBackupCount.
// Sweeps run only between jobs, never while one is in flight, so a sweep
// can never delete rows a running capture is still writing.
type RetentionManager struct {
	store    *Store
	settings *SettingsStore
}

// NewRetentionManager creates a retention manager.
func NewRetentionManager(store *Store, settings *SettingsStore) *RetentionManager {
	return &RetentionManager{store: store, settings: settings}
}

// Sweep deletes the oldest backups of a workspace beyond the retention
// limit and returns how many were removed. Failed jobs count against the
// limit like completed ones; cascading deletes take their snapshot rows.
func (r *RetentionManager) Sweep(workspaceID string) (int, error) {
	maxCount := DefaultSettings(workspaceID).MaxBackupCount
	settings, err := r.settings.Get(workspaceID)
	if err != nil {
		return 0, err
	}
	if settings != nil && settings.MaxBackupCount > 0 {
		maxCount = settings.MaxBackupCount
	}

	jobs, err := r.store.ListJobs(workspaceID, retentionScanLimit)
	if err != nil {
		return 0, err
	}
	if len(jobs) <= maxCount {
		return 0, nil
	}

	log := logging.L().With("workspace_id", workspaceID)
	deleted := 0
	// ListJobs is newest-first, so everything past maxCount is prunable,
	// oldest last. Delete from the end forward.
	for i := len(jobs) - 1; i >= maxCount; i-- {
		job := jobs[i]
		ok, err := r.store.DeleteJob(job.ID, workspaceID)
		if err != nil {
			log.Warn("retention_delete_failed", "backup_id", job.ID, "error", err)
			continue
		}
		if ok {
			deleted++
			log.Info("retention_deleted", "backup_id", job.ID, "created_at", job.CreatedAt)
		}
	}
	return deleted, nil
}
