package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hostwell/guildvault/internal/logging"
	"github.com/hostwell/guildvault/internal/platform"
)

// DefaultJobTimeout bounds how long a single backup may run before it is
// failed and its partial rows left behind for inspection.
const DefaultJobTimeout = 1 * time.Hour

// EventSink receives progress events while a backup runs. Implementations
// must not block; nil payload fields are allowed.
type EventSink interface {
	PublishBackupEvent(workspaceID, event string, payload map[string]interface{})
}

// CreateBackupParams describes one backup request.
type CreateBackupParams struct {
	WorkspaceID string
	Name        string
	Kind        Kind
	RequestedBy string
}

// Orchestrator runs the capture pipeline: job row, settings snapshot,
// roles, channels, then message history. One backup per workspace at a
// time; everything else queues behind ErrBackupInProgress.
type Orchestrator struct {
	client   platform.Client
	store    *Store
	settings *SettingsStore
	crawler  *Crawler
	events   EventSink
	timeout  time.Duration

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewOrchestrator wires the capture pipeline. events may be nil.
func NewOrchestrator(client platform.Client, store *Store, settings *SettingsStore, crawler *Crawler, events EventSink, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return &Orchestrator{
		client:   client,
		store:    store,
		settings: settings,
		crawler:  crawler,
		events:   events,
		timeout:  timeout,
		inFlight: make(map[string]bool),
	}
}

// InProgress reports whether a backup is currently running for a workspace.
func (o *Orchestrator) InProgress(workspaceID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight[workspaceID]
}

// CreateBackup runs a full capture for a workspace. On failure the returned
// job carries status failed and any rows written before the failure stay in
// place; the error describes what went wrong.
func (o *Orchestrator) CreateBackup(ctx context.Context, params CreateBackupParams) (*BackupJob, error) {
	settings, err := o.settings.Get(params.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if settings == nil || !settings.IsEnabled {
		return nil, ErrPolicyDisabled
	}

	if !o.acquire(params.WorkspaceID) {
		return nil, ErrBackupInProgress
	}
	defer o.release(params.WorkspaceID)

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	workspace, err := o.client.FetchWorkspace(ctx, params.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("workspace unreachable: %w", err)
	}

	kind := params.Kind
	if kind == "" {
		kind = KindManual
	}
	name := params.Name
	if name == "" {
		name = fmt.Sprintf("Backup %s", time.Now().UTC().Format("2006-01-02 15:04"))
	}

	job := &BackupJob{
		ID:            "backup-" + uuid.New().String()[:8],
		WorkspaceID:   params.WorkspaceID,
		WorkspaceName: workspace.Name,
		Name:          name,
		Kind:          kind,
		Status:        StatusInProgress,
		MemberCount:   workspace.MemberCount,
		RequestedBy:   params.RequestedBy,
		CreatedAt:     time.Now().UTC(),
	}
	if err := o.store.InsertJob(job); err != nil {
		return nil, err
	}

	log := logging.L().With("backup_id", job.ID, "workspace_id", job.WorkspaceID)
	log.Info("backup_started", "kind", string(kind), "requested_by", params.RequestedBy)
	o.publish(job.WorkspaceID, "backup_started", map[string]interface{}{
		"backupId": job.ID,
		"name":     job.Name,
	})

	roleCount, channelCount, messageCount, err := o.capture(ctx, job, workspace, settings, log)
	if err != nil {
		return o.fail(job, err, log)
	}

	if err := o.store.MarkJobCompleted(job.ID, roleCount, channelCount, messageCount); err != nil {
		return o.fail(job, err, log)
	}

	now := time.Now().UTC()
	job.Status = StatusCompleted
	job.RoleCount = roleCount
	job.ChannelCount = channelCount
	job.MessageCount = messageCount
	job.CompletedAt = &now

	log.Info("backup_completed",
		"roles", roleCount,
		"channels", channelCount,
		"messages", messageCount,
		"duration", now.Sub(job.CreatedAt).String(),
	)
	o.publish(job.WorkspaceID, "backup_completed", map[string]interface{}{
		"backupId": job.ID,
		"roles":    roleCount,
		"channels": channelCount,
		"messages": messageCount,
	})
	return job, nil
}

// capture runs the four phases and returns the counts of rows written.
// The settings phase is fatal; role, channel and message failures are
// isolated per entity so one broken channel cannot sink the job.
func (o *Orchestrator) capture(ctx context.Context, job *BackupJob, workspace *platform.Workspace, settings *Settings, log *slog.Logger) (int, int, int, error) {
	// Phase 1: workspace settings. Without these a snapshot is useless.
	if err := o.store.InsertSettingsSnapshot(newSettingsSnapshot(job.ID, workspace)); err != nil {
		return 0, 0, 0, fmt.Errorf("settings capture failed: %w", err)
	}
	o.publish(job.WorkspaceID, "backup_progress", map[string]interface{}{
		"backupId": job.ID, "phase": "settings",
	})

	// Phase 2: roles.
	roles, err := o.crawler.FetchRoles(ctx, job.WorkspaceID)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("role capture failed: %w", err)
	}
	snapshots := make([]*RoleSnapshot, 0, len(roles))
	for _, role := range roles {
		snapshots = append(snapshots, newRoleSnapshot(job.ID, role))
	}
	if err := o.store.InsertRoleSnapshots(snapshots); err != nil {
		return 0, 0, 0, fmt.Errorf("role capture failed: %w", err)
	}
	roleCount := len(snapshots)
	o.publish(job.WorkspaceID, "backup_progress", map[string]interface{}{
		"backupId": job.ID, "phase": "roles", "count": roleCount,
	})

	// Phase 3: channels. Individual insert failures are logged and skipped.
	channels, err := o.crawler.FetchChannels(ctx, job.WorkspaceID)
	if err != nil {
		return roleCount, 0, 0, fmt.Errorf("channel capture failed: %w", err)
	}
	sort.SliceStable(channels, func(i, j int) bool {
		return channels[i].Position < channels[j].Position
	})

	var captured []*ChannelSnapshot
	for _, ch := range channels {
		if settings.IsChannelExcluded(ch.ID) {
			continue
		}
		snap := newChannelSnapshot(job.ID, ch)
		if _, err := o.store.InsertChannelSnapshot(snap); err != nil {
			log.Warn("channel_capture_skipped", "channel_id", ch.ID, "error", err)
			continue
		}
		captured = append(captured, snap)
	}
	channelCount := len(captured)
	o.publish(job.WorkspaceID, "backup_progress", map[string]interface{}{
		"backupId": job.ID, "phase": "channels", "count": channelCount,
	})

	// Phase 4: message history, text-like channels only. A failing channel
	// keeps whatever pages it got; the rest of the run continues.
	messageCount := 0
	if settings.IncludeMessages {
		cutoff := time.Time{}
		if settings.MessageHistoryDays > 0 {
			cutoff = time.Now().UTC().AddDate(0, 0, -settings.MessageHistoryDays)
		}

		for _, snap := range captured {
			ch := platform.Channel{Kind: snap.Kind}
			if !ch.IsTextLike() {
				continue
			}
			if ctx.Err() != nil {
				return roleCount, channelCount, messageCount, ctx.Err()
			}

			messages, err := o.crawler.CrawlMessages(ctx, snap.ChannelID, cutoff)
			if err != nil && len(messages) == 0 {
				log.Warn("message_capture_skipped", "channel_id", snap.ChannelID, "error", err)
				continue
			}
			if err != nil {
				log.Warn("message_capture_truncated", "channel_id", snap.ChannelID, "captured", len(messages), "error", err)
			}

			records := make([]*MessageSnapshot, 0, len(messages))
			for _, msg := range messages {
				records = append(records, newMessageSnapshot(snap.ID, msg))
			}
			if err := o.store.InsertMessageSnapshots(snap.ID, records); err != nil {
				log.Warn("message_capture_skipped", "channel_id", snap.ChannelID, "error", err)
				continue
			}
			if err := o.store.SetChannelMessageCount(snap.ID, len(records)); err != nil {
				log.Warn("message_count_update_failed", "channel_id", snap.ChannelID, "error", err)
			}
			messageCount += len(records)

			o.publish(job.WorkspaceID, "backup_progress", map[string]interface{}{
				"backupId":  job.ID,
				"phase":     "messages",
				"channelId": snap.ChannelID,
				"count":     messageCount,
			})
		}
	}

	if err := ctx.Err(); err != nil {
		return roleCount, channelCount, messageCount, err
	}
	return roleCount, channelCount, messageCount, nil
}

// fail marks the job failed, keeping partial rows, and maps a deadline
// overrun to ErrTimedOut.
func (o *Orchestrator) fail(job *BackupJob, cause error, log *slog.Logger) (*BackupJob, error) {
	if errors.Is(cause, context.DeadlineExceeded) {
		cause = fmt.Errorf("%w after %s: %v", ErrTimedOut, o.timeout, cause)
	}

	if err := o.store.MarkJobFailed(job.ID, cause.Error()); err != nil {
		log.Error("backup_failure_record_failed", "error", err)
	}

	now := time.Now().UTC()
	job.Status = StatusFailed
	job.ErrorLog = cause.Error()
	job.CompletedAt = &now

	log.Error("backup_failed", "error", cause)
	o.publish(job.WorkspaceID, "backup_failed", map[string]interface{}{
		"backupId": job.ID,
		"error":    cause.Error(),
	})
	return job, cause
}

func (o *Orchestrator) publish(workspaceID, event string, payload map[string]interface{}) {
	if o.events != nil {
		o.events.PublishBackupEvent(workspaceID, event, payload)
	}
}

func (o *Orchestrator) acquire(workspaceID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight[workspaceID] {
		return false
	}
	o.inFlight[workspaceID] = true
	return true
}

func (o *Orchestrator) release(workspaceID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, workspaceID)
}
