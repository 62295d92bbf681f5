package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hostwell/guildvault/internal/logging"
)

// DefaultSchedulePollInterval is how often the runner checks for due
// schedules.
const DefaultSchedulePollInterval = 30 * time.Second

// scheduleParser accepts standard five-field cron expressions.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule reports whether a cron expression is acceptable.
func ValidateSchedule(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := scheduleParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// ComputeNextRun returns the next execution after the given instant, or
// nil when the expression is empty.
func ComputeNextRun(expr string, after time.Time) (*time.Time, error) {
	if expr == "" {
		return nil, nil
	}
	schedule, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	next := schedule.Next(after.UTC())
	return &next, nil
}

// ScheduleRunner polls for workspaces whose scheduled backup is due, runs
// the backup and then sweeps retention for that workspace.
type ScheduleRunner struct {
	orchestrator *Orchestrator
	retention    *RetentionManager
	settings     *SettingsStore
	interval     time.Duration
}

// NewScheduleRunner creates a schedule runner.
func NewScheduleRunner(orchestrator *Orchestrator, retention *RetentionManager, settings *SettingsStore, interval time.Duration) *ScheduleRunner {
	if interval <= 0 {
		interval = DefaultSchedulePollInterval
	}
	return &ScheduleRunner{
		orchestrator: orchestrator,
		retention:    retention,
		settings:     settings,
		interval:     interval,
	}
}

// Start blocks until the context is cancelled, polling on the configured
// interval. Run it in its own goroutine.
func (sr *ScheduleRunner) Start(ctx context.Context) {
	log := logging.L()
	log.Info("schedule_runner_started", "interval", sr.interval.String())

	ticker := time.NewTicker(sr.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("schedule_runner_stopped")
			return
		case now := <-ticker.C:
			sr.RunDue(ctx, now.UTC())
		}
	}
}

// RunDue executes every schedule that is due at the given instant. The
// next run is advanced before the backup starts so a slow capture cannot
// double-fire.
func (sr *ScheduleRunner) RunDue(ctx context.Context, now time.Time) {
	log := logging.L()

	due, err := sr.settings.ListDue(now)
	if err != nil {
		log.Error("schedule_poll_failed", "error", err)
		return
	}

	for _, settings := range due {
		next, err := ComputeNextRun(settings.Schedule, now)
		if err != nil {
			log.Error("schedule_parse_failed", "workspace_id", settings.WorkspaceID, "error", err)
			continue
		}
		if err := sr.settings.SetRuns(settings.WorkspaceID, now, next); err != nil {
			log.Error("schedule_update_failed", "workspace_id", settings.WorkspaceID, "error", err)
			continue
		}

		sr.execute(ctx, settings.WorkspaceID)
	}
}

func (sr *ScheduleRunner) execute(ctx context.Context, workspaceID string) {
	log := logging.L().With("workspace_id", workspaceID)

	job, err := sr.orchestrator.CreateBackup(ctx, CreateBackupParams{
		WorkspaceID: workspaceID,
		Name:        fmt.Sprintf("Scheduled %s", time.Now().UTC().Format("2006-01-02 15:04")),
		Kind:        KindAutomatic,
		RequestedBy: "scheduler",
	})
	if err != nil {
		if errors.Is(err, ErrBackupInProgress) {
			log.Info("scheduled_backup_skipped", "reason", "backup already running")
			return
		}
		log.Error("scheduled_backup_failed", "error", err)
		if job == nil {
			return
		}
	}

	deleted, err := sr.retention.Sweep(workspaceID)
	if err != nil {
		log.Error("retention_sweep_failed", "error", err)
		return
	}
	if deleted > 0 {
		log.Info("retention_sweep_completed", "deleted", deleted)
	}
}
