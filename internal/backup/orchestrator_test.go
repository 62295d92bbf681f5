package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hostwell/guildvault/internal/platform"
)

type orchestratorFixture struct {
	client   *fakeClient
	store    *Store
	settings *SettingsStore
	orch     *Orchestrator
}

func newOrchestratorFixture(t *testing.T, timeout time.Duration) *orchestratorFixture {
	t.Helper()

	store, settings := newTestStores(t)
	client := newFakeClient()
	crawler := fastCrawler(client)
	return &orchestratorFixture{
		client:   client,
		store:    store,
		settings: settings,
		orch:     NewOrchestrator(client, store, settings, crawler, nil, timeout),
	}
}

func TestCreateBackupHappyPath(t *testing.T) {
	fx := newOrchestratorFixture(t, time.Minute)
	enabledSettings(t, fx.settings, "ws-1")

	fx.client.roles = []platform.Role{
		{ID: "ws-1", Name: "everyone", Permissions: "0"},
		{ID: "r-mods", Name: "mods", Permissions: "8", Position: 2},
		{ID: "r-crew", Name: "crew", Permissions: "1024", Position: 1},
	}
	fx.client.channels = []platform.Channel{
		textChannel("c-general", "general", 1),
		textChannel("c-dev", "dev", 2),
		{ID: "c-voice", Name: "voice", Kind: platform.ChannelKindVoice, Position: 3},
	}
	now := time.Now().UTC()
	seedHistory(fx.client, "c-general", 5, now)
	seedHistory(fx.client, "c-dev", 3, now)

	job, err := fx.orch.CreateBackup(context.Background(), CreateBackupParams{
		WorkspaceID: "ws-1",
		Name:        "Nightly",
		Kind:        KindManual,
		RequestedBy: "user-1",
	})
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	if job.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
	if job.RoleCount != 2 {
		t.Errorf("expected 2 roles (everyone dropped), got %d", job.RoleCount)
	}
	if job.ChannelCount != 3 {
		t.Errorf("expected 3 channels, got %d", job.ChannelCount)
	}
	if job.MessageCount != 8 {
		t.Errorf("expected 8 messages, got %d", job.MessageCount)
	}
	if job.MemberCount != 42 {
		t.Errorf("expected member count from workspace, got %d", job.MemberCount)
	}

	// Job counts must equal the rows actually stored.
	stored, err := fx.store.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	roles, _ := fx.store.ListRoleSnapshots(job.ID)
	channels, _ := fx.store.ListChannelSnapshots(job.ID)
	messages, _ := fx.store.CountMessageSnapshots(job.ID)
	if stored.RoleCount != len(roles) {
		t.Errorf("role count %d != stored rows %d", stored.RoleCount, len(roles))
	}
	if stored.ChannelCount != len(channels) {
		t.Errorf("channel count %d != stored rows %d", stored.ChannelCount, len(channels))
	}
	if stored.MessageCount != messages {
		t.Errorf("message count %d != stored rows %d", stored.MessageCount, messages)
	}

	snap, err := fx.store.GetSettingsSnapshot(job.ID)
	if err != nil {
		t.Fatalf("GetSettingsSnapshot failed: %v", err)
	}
	if snap == nil || snap.Name != "Test Workspace" {
		t.Errorf("settings snapshot missing or wrong: %+v", snap)
	}

	// Voice channel captured but carries no messages.
	for _, ch := range channels {
		if ch.ChannelID == "c-voice" && ch.MessageCount != 0 {
			t.Errorf("voice channel has %d messages", ch.MessageCount)
		}
	}
}

func TestCreateBackupPolicyDisabled(t *testing.T) {
	fx := newOrchestratorFixture(t, time.Minute)

	// No settings saved at all.
	if _, err := fx.orch.CreateBackup(context.Background(), CreateBackupParams{WorkspaceID: "ws-1"}); !errors.Is(err, ErrPolicyDisabled) {
		t.Fatalf("expected ErrPolicyDisabled, got %v", err)
	}

	// Explicitly disabled.
	disabled := DefaultSettings("ws-1")
	if err := fx.settings.Save(disabled); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := fx.orch.CreateBackup(context.Background(), CreateBackupParams{WorkspaceID: "ws-1"}); !errors.Is(err, ErrPolicyDisabled) {
		t.Fatalf("expected ErrPolicyDisabled, got %v", err)
	}

	jobs, _ := fx.store.ListJobs("ws-1", 10)
	if len(jobs) != 0 {
		t.Fatalf("disabled policy produced %d job rows", len(jobs))
	}
}

func TestCreateBackupExcludedChannels(t *testing.T) {
	fx := newOrchestratorFixture(t, time.Minute)

	policy := enabledSettings(t, fx.settings, "ws-1")
	policy.ExcludedChannels = []string{"c-secret"}
	if err := fx.settings.Save(policy); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	fx.client.channels = []platform.Channel{
		textChannel("c-general", "general", 1),
		textChannel("c-secret", "secret", 2),
	}
	now := time.Now().UTC()
	seedHistory(fx.client, "c-general", 2, now)
	seedHistory(fx.client, "c-secret", 50, now)

	job, err := fx.orch.CreateBackup(context.Background(), CreateBackupParams{WorkspaceID: "ws-1"})
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	if job.ChannelCount != 1 {
		t.Errorf("expected excluded channel skipped, got %d channels", job.ChannelCount)
	}
	if job.MessageCount != 2 {
		t.Errorf("expected 2 messages, got %d", job.MessageCount)
	}
	channels, _ := fx.store.ListChannelSnapshots(job.ID)
	for _, ch := range channels {
		if ch.ChannelID == "c-secret" {
			t.Error("excluded channel was captured")
		}
	}
}

func TestCreateBackupIncludeMessagesOff(t *testing.T) {
	fx := newOrchestratorFixture(t, time.Minute)

	policy := enabledSettings(t, fx.settings, "ws-1")
	policy.IncludeMessages = false
	if err := fx.settings.Save(policy); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	fx.client.channels = []platform.Channel{textChannel("c-general", "general", 1)}
	seedHistory(fx.client, "c-general", 10, time.Now().UTC())

	job, err := fx.orch.CreateBackup(context.Background(), CreateBackupParams{WorkspaceID: "ws-1"})
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	if job.MessageCount != 0 {
		t.Errorf("expected 0 messages with history disabled, got %d", job.MessageCount)
	}
	if fx.client.pageFetches != 0 {
		t.Errorf("message pages fetched with history disabled: %d", fx.client.pageFetches)
	}
}

func TestCreateBackupRolePhaseFailureFailsJob(t *testing.T) {
	fx := newOrchestratorFixture(t, time.Minute)
	enabledSettings(t, fx.settings, "ws-1")
	fx.client.rolesErr = errors.New("upstream exploded")

	job, err := fx.orch.CreateBackup(context.Background(), CreateBackupParams{WorkspaceID: "ws-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if job == nil {
		t.Fatal("expected failed job to be returned")
	}
	if job.Status != StatusFailed {
		t.Errorf("expected status failed, got %s", job.Status)
	}
	if job.ErrorLog == "" {
		t.Error("expected error log")
	}

	// The settings snapshot written before the failure stays behind.
	snap, _ := fx.store.GetSettingsSnapshot(job.ID)
	if snap == nil {
		t.Error("partial settings snapshot rolled back")
	}
	stored, _ := fx.store.GetJob(job.ID)
	if stored.Status != StatusFailed || stored.CompletedAt == nil {
		t.Errorf("stored job not finalized: %+v", stored)
	}
}

func TestCreateBackupBrokenChannelIsolated(t *testing.T) {
	fx := newOrchestratorFixture(t, time.Minute)
	enabledSettings(t, fx.settings, "ws-1")

	fx.client.channels = []platform.Channel{
		textChannel("c-ok", "ok", 1),
		textChannel("c-broken", "broken", 2),
	}
	now := time.Now().UTC()
	seedHistory(fx.client, "c-ok", 4, now)
	fx.client.messagesErr["c-broken"] = errors.New("history fetch failed")

	job, err := fx.orch.CreateBackup(context.Background(), CreateBackupParams{WorkspaceID: "ws-1"})
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Fatalf("expected completed despite broken channel, got %s", job.Status)
	}
	if job.ChannelCount != 2 {
		t.Errorf("expected both channel snapshots, got %d", job.ChannelCount)
	}
	if job.MessageCount != 4 {
		t.Errorf("expected 4 messages from the healthy channel, got %d", job.MessageCount)
	}
}

func TestCreateBackupSingleFlight(t *testing.T) {
	fx := newOrchestratorFixture(t, time.Minute)
	enabledSettings(t, fx.settings, "ws-1")
	fx.client.fetchDelay = 200 * time.Millisecond

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := fx.orch.CreateBackup(context.Background(), CreateBackupParams{WorkspaceID: "ws-1"})
		done <- err
	}()

	<-started
	deadline := time.After(time.Second)
	for !fx.orch.InProgress("ws-1") {
		select {
		case <-deadline:
			t.Fatal("first backup never started")
		case <-time.After(time.Millisecond):
		}
	}

	_, err := fx.orch.CreateBackup(context.Background(), CreateBackupParams{WorkspaceID: "ws-1"})
	if !errors.Is(err, ErrBackupInProgress) {
		t.Fatalf("expected ErrBackupInProgress, got %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("first backup failed: %v", err)
	}

	// After the first finishes, the workspace is free again.
	if _, err := fx.orch.CreateBackup(context.Background(), CreateBackupParams{WorkspaceID: "ws-1"}); err != nil {
		t.Fatalf("follow-up backup failed: %v", err)
	}
}

func TestCreateBackupTimeout(t *testing.T) {
	fx := newOrchestratorFixture(t, 50*time.Millisecond)
	enabledSettings(t, fx.settings, "ws-1")

	fx.client.channels = []platform.Channel{textChannel("c-general", "general", 1)}
	seedHistory(fx.client, "c-general", 500, time.Now().UTC())

	// Page delay far beyond the job timeout.
	crawler := NewCrawler(fx.client, CrawlerOptions{
		PageSize:         100,
		PageDelay:        time.Second,
		EntityFetchDelay: time.Millisecond,
	})
	orch := NewOrchestrator(fx.client, fx.store, fx.settings, crawler, nil, 50*time.Millisecond)

	job, err := orch.CreateBackup(context.Background(), CreateBackupParams{WorkspaceID: "ws-1"})
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if job == nil || job.Status != StatusFailed {
		t.Fatalf("expected failed job, got %+v", job)
	}

	stored, _ := fx.store.GetJob(job.ID)
	if stored.Status != StatusFailed {
		t.Errorf("expected stored status failed, got %s", stored.Status)
	}
}
