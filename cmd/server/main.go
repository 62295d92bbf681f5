package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hostwell/guildvault/internal/api"
	"github.com/hostwell/guildvault/internal/auth"
	"github.com/hostwell/guildvault/internal/backup"
	"github.com/hostwell/guildvault/internal/config"
	"github.com/hostwell/guildvault/internal/crypto"
	"github.com/hostwell/guildvault/internal/database"
	"github.com/hostwell/guildvault/internal/logging"
	"github.com/hostwell/guildvault/internal/platform"
	"github.com/hostwell/guildvault/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.Init(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to init logging: %v", err)
	}
	defer logging.Close()

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Error("database_open_failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Error("database_migrate_failed", "error", err)
		os.Exit(1)
	}

	enc, err := crypto.NewEncryptionManager(cfg.Backup.EncryptionKey)
	if err != nil {
		logger.Error("encryption_init_failed", "error", err)
		os.Exit(1)
	}

	store := backup.NewStore(db.DB)
	settings := backup.NewSettingsStore(db.DB, enc)
	users := auth.NewUserStore(db.DB)

	// Jobs left in_progress by a crash are dead; fail them before anything
	// can list or delete around them.
	if recovered, err := store.RecoverStaleJobs(); err != nil {
		logger.Error("stale_job_recovery_failed", "error", err)
		os.Exit(1)
	} else if recovered > 0 {
		logger.Warn("stale_jobs_recovered", "count", recovered)
	}

	client := platform.NewRESTClient(
		cfg.Platform.APIBaseURL,
		cfg.Platform.BotToken,
		config.Duration(cfg.Platform.RequestTimeout, 30*time.Second),
	)

	hub := ws.NewHub()

	crawler := backup.NewCrawler(client, backup.CrawlerOptions{
		PageSize:         cfg.Backup.MessagePageSize,
		MaxPerChannel:    cfg.Backup.MaxMessagesPerChannel,
		MaxPerRun:        cfg.Backup.MaxMessagesPerRun,
		PageDelay:        config.Duration(cfg.Backup.MessagePageDelay, backup.DefaultMessagePageDelay),
		EntityFetchDelay: config.Duration(cfg.Backup.EntityFetchDelay, backup.DefaultEntityFetchDelay),
	})
	orchestrator := backup.NewOrchestrator(
		client, store, settings, crawler, hub,
		config.Duration(cfg.Backup.JobTimeout, backup.DefaultJobTimeout),
	)
	retention := backup.NewRetentionManager(store, settings)
	exporter := backup.NewExporter(store)
	guard := backup.NewAccessGuard(client, settings)

	jwtManager := auth.NewJWTManager(
		cfg.Auth.JWTSecret,
		config.Duration(cfg.Auth.AccessTokenDuration, 15*time.Minute),
		config.Duration(cfg.Auth.RefreshTokenDuration, 7*24*time.Hour),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	runner := backup.NewScheduleRunner(
		orchestrator, retention, settings,
		config.Duration(cfg.Backup.SchedulePollInterval, backup.DefaultSchedulePollInterval),
	)
	go runner.Start(ctx)

	router := api.NewRouter(api.Dependencies{
		Config:       cfg,
		JWT:          jwtManager,
		Users:        users,
		Orchestrator: orchestrator,
		Store:        store,
		Settings:     settings,
		Retention:    retention,
		Exporter:     exporter,
		Guard:        guard,
		Hub:          hub,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server_listening", "addr", addr, "tls", cfg.Server.TLS.Enabled)

		var err error
		if cfg.Server.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_failed", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("server_shutting_down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_failed", "error", err)
	}
	logger.Info("server_stopped")
}
