package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hostwell/guildvault/internal/api/handlers"
	"github.com/hostwell/guildvault/internal/api/middleware"
	"github.com/hostwell/guildvault/internal/auth"
	"github.com/hostwell/guildvault/internal/backup"
	"github.com/hostwell/guildvault/internal/config"
	"github.com/hostwell/guildvault/internal/ws"
)

// Dependencies carries everything the router needs.
type Dependencies struct {
	Config       *config.Config
	JWT          *auth.JWTManager
	Users        *auth.UserStore
	Orchestrator *backup.Orchestrator
	Store        *backup.Store
	Settings     *backup.SettingsStore
	Retention    *backup.RetentionManager
	Exporter     *backup.Exporter
	Guard        *backup.AccessGuard
	Hub          *ws.Hub
}

// NewRouter builds the HTTP API.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(deps.Config.Security.CORS))
	router.Use(middleware.RateLimit(
		deps.Config.Security.RateLimit.Enabled,
		deps.Config.Security.RateLimit.RequestsPerMinute,
	))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authHandler := handlers.NewAuthHandler(deps.Users, deps.JWT, deps.Config.Auth.BcryptCost)
	backupHandler := handlers.NewBackupHandler(
		deps.Config, deps.Orchestrator, deps.Store, deps.Settings,
		deps.Retention, deps.Exporter, deps.Guard,
	)
	wsHandler := handlers.NewWSHandler(deps.Hub)

	v1 := router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	{
		authGroup.GET("/setup-status", authHandler.SetupStatus)
		authGroup.POST("/setup", authHandler.Setup)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)

		authed := authGroup.Group("")
		authed.Use(middleware.Auth(deps.JWT))
		authed.POST("/logout", authHandler.Logout)
		authed.GET("/me", authHandler.Me)
	}

	workspaces := v1.Group("/workspaces/:id")
	workspaces.Use(middleware.Auth(deps.JWT))
	{
		workspaces.GET("/backups", backupHandler.ListBackups)
		workspaces.POST("/backups", backupHandler.CreateBackup)
		workspaces.GET("/backups/:backupId", backupHandler.GetBackup)
		workspaces.GET("/backups/:backupId/contents", backupHandler.GetBackupContents)
		workspaces.DELETE("/backups/:backupId", backupHandler.DeleteBackup)
		workspaces.POST("/backups/:backupId/export", backupHandler.ExportBackup)

		workspaces.GET("/settings", backupHandler.GetSettings)
		workspaces.PUT("/settings", backupHandler.UpdateSettings)

		workspaces.POST("/retention/sweep", backupHandler.SweepRetention)
		workspaces.POST("/access-check", backupHandler.CheckAccess)
	}

	wsGroup := router.Group("/ws")
	wsGroup.Use(middleware.Auth(deps.JWT))
	wsGroup.GET("/workspaces/:id/backups", wsHandler.SubscribeBackups)

	return router
}
