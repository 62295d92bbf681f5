package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hostwell/guildvault/internal/backup"
	"github.com/hostwell/guildvault/internal/config"
	"github.com/hostwell/guildvault/internal/logging"
	"github.com/hostwell/guildvault/internal/models"
)

// BackupHandler serves the backup, settings and retention endpoints.
type BackupHandler struct {
	config       *config.Config
	orchestrator *backup.Orchestrator
	store        *backup.Store
	settings     *backup.SettingsStore
	retention    *backup.RetentionManager
	exporter     *backup.Exporter
	guard        *backup.AccessGuard
}

// NewBackupHandler creates a backup handler.
func NewBackupHandler(cfg *config.Config, orchestrator *backup.Orchestrator, store *backup.Store, settings *backup.SettingsStore, retention *backup.RetentionManager, exporter *backup.Exporter, guard *backup.AccessGuard) *BackupHandler {
	return &BackupHandler{
		config:       cfg,
		orchestrator: orchestrator,
		store:        store,
		settings:     settings,
		retention:    retention,
		exporter:     exporter,
		guard:        guard,
	}
}

// CreateBackup starts a manual backup for a workspace. The capture runs in
// the background; progress is streamed over the websocket hub.
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	workspaceID := c.Param("id")
	username := c.GetString("username")

	var req models.CreateBackupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	settings, err := h.settings.Get(workspaceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load backup settings"})
		return
	}
	if settings == nil || !settings.IsEnabled {
		c.JSON(http.StatusBadRequest, gin.H{"error": backup.ErrPolicyDisabled.Error()})
		return
	}
	if h.orchestrator.InProgress(workspaceID) {
		c.JSON(http.StatusConflict, gin.H{"error": backup.ErrBackupInProgress.Error()})
		return
	}

	go func() {
		_, err := h.orchestrator.CreateBackup(context.Background(), backup.CreateBackupParams{
			WorkspaceID: workspaceID,
			Name:        req.Name,
			Kind:        backup.KindManual,
			RequestedBy: username,
		})
		if err != nil {
			logging.L().Error("manual_backup_failed", "workspace_id", workspaceID, "error", err)
			return
		}
		if _, err := h.retention.Sweep(workspaceID); err != nil {
			logging.L().Error("retention_sweep_failed", "workspace_id", workspaceID, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "Backup started", "workspaceId": workspaceID})
}

// ListBackups returns backups for a workspace, newest first.
func (h *BackupHandler) ListBackups(c *gin.Context) {
	workspaceID := c.Param("id")

	jobs, err := h.store.ListJobs(workspaceID, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list backups"})
		return
	}
	if jobs == nil {
		jobs = []*backup.BackupJob{}
	}
	c.JSON(http.StatusOK, gin.H{"backups": jobs})
}

// GetBackup returns one backup job.
func (h *BackupHandler) GetBackup(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job)
}

// GetBackupContents returns the full snapshot tree of a completed backup.
func (h *BackupHandler) GetBackupContents(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	archive, err := h.exporter.Build(job.ID)
	if err != nil {
		if errors.Is(err, backup.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Backup not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, archive)
}

// DeleteBackup removes a backup and all of its snapshot rows.
func (h *BackupHandler) DeleteBackup(c *gin.Context) {
	workspaceID := c.Param("id")
	backupID := c.Param("backupId")

	deleted, err := h.store.DeleteJob(backupID, workspaceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete backup"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Backup not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Backup deleted"})
}

// ExportBackup ships a completed backup to the configured destination, or
// to the local export directory when none is configured.
func (h *BackupHandler) ExportBackup(c *gin.Context) {
	workspaceID := c.Param("id")

	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	settings, err := h.settings.Get(workspaceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load backup settings"})
		return
	}

	destCfg := &backup.DestinationConfig{Type: "local", Path: h.config.Storage.ExportDir}
	if settings != nil && settings.ExportDestination != nil {
		destCfg = settings.ExportDestination
	}

	dest, err := backup.NewDestination(destCfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if closer, ok := dest.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	filename, err := h.exporter.Export(job.ID, dest)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Backup exported",
		"filename":    filename,
		"destination": dest.GetType(),
	})
}

// GetSettings returns the backup policy, falling back to defaults when
// none has been saved yet.
func (h *BackupHandler) GetSettings(c *gin.Context) {
	workspaceID := c.Param("id")

	settings, err := h.settings.Get(workspaceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load backup settings"})
		return
	}
	if settings == nil {
		c.JSON(http.StatusOK, gin.H{"settings": backup.DefaultSettings(workspaceID), "saved": false})
		return
	}
	if settings.ExportDestination != nil {
		// Never echo stored secrets back to the panel.
		settings.ExportDestination.SFTPPassword = ""
		settings.ExportDestination.S3SecretKey = ""
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings, "saved": true})
}

// UpdateSettings replaces the backup policy for a workspace.
func (h *BackupHandler) UpdateSettings(c *gin.Context) {
	workspaceID := c.Param("id")

	var req models.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := backup.ValidateSchedule(req.Schedule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings := &backup.Settings{
		WorkspaceID:        workspaceID,
		IsEnabled:          req.IsEnabled,
		IncludeMessages:    req.IncludeMessages,
		ExcludedChannels:   req.ExcludedChannels,
		MessageHistoryDays: req.MessageHistoryDays,
		MaxBackupCount:     req.MaxBackupCount,
		AllowedRoles:       req.AllowedRoles,
		Schedule:           req.Schedule,
	}
	if req.ExportDestination != nil {
		settings.ExportDestination = &backup.DestinationConfig{
			Type:           req.ExportDestination.Type,
			Path:           req.ExportDestination.Path,
			SFTPHost:       req.ExportDestination.SFTPHost,
			SFTPPort:       req.ExportDestination.SFTPPort,
			SFTPUsername:   req.ExportDestination.SFTPUsername,
			SFTPPassword:   req.ExportDestination.SFTPPassword,
			SFTPKeyPath:    req.ExportDestination.SFTPKeyPath,
			KnownHostsPath: req.ExportDestination.KnownHostsPath,
			S3Bucket:       req.ExportDestination.S3Bucket,
			S3Region:       req.ExportDestination.S3Region,
			S3AccessKey:    req.ExportDestination.S3AccessKey,
			S3SecretKey:    req.ExportDestination.S3SecretKey,
			S3Endpoint:     req.ExportDestination.S3Endpoint,
		}
	}

	if settings.Schedule != "" {
		next, err := backup.ComputeNextRun(settings.Schedule, time.Now().UTC())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		settings.NextRun = next
	}

	if err := h.settings.Save(settings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save backup settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Settings saved"})
}

// SweepRetention prunes backups beyond the retention limit right away.
func (h *BackupHandler) SweepRetention(c *gin.Context) {
	workspaceID := c.Param("id")

	if h.orchestrator.InProgress(workspaceID) {
		c.JSON(http.StatusConflict, gin.H{"error": backup.ErrBackupInProgress.Error()})
		return
	}

	deleted, err := h.retention.Sweep(workspaceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Retention sweep failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// CheckAccess reports whether a platform user may manage backups.
func (h *BackupHandler) CheckAccess(c *gin.Context) {
	workspaceID := c.Param("id")

	var req models.AccessCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	allowed, err := h.guard.CanManage(c.Request.Context(), workspaceID, req.ActorID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to check workspace access"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"allowed": allowed})
}

// loadJob fetches the backup named by the route and checks it belongs to
// the workspace in the route.
func (h *BackupHandler) loadJob(c *gin.Context) (*backup.BackupJob, bool) {
	workspaceID := c.Param("id")
	backupID := c.Param("backupId")

	job, err := h.store.GetJob(backupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load backup"})
		return nil, false
	}
	if job == nil || job.WorkspaceID != workspaceID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Backup not found"})
		return nil, false
	}
	return job, true
}
