package backup

import (
	"strings"
	"testing"
	"time"

	"github.com/hostwell/guildvault/internal/crypto"
)

func TestSettingsGetAbsentReturnsNil(t *testing.T) {
	_, settings := newTestStores(t)

	got, err := settings.Get("ws-unknown")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for absent settings, got %+v", got)
	}
}

func TestSettingsSaveRoundTrip(t *testing.T) {
	_, settings := newTestStores(t)

	in := &Settings{
		WorkspaceID:        "ws-1",
		IsEnabled:          true,
		IncludeMessages:    true,
		ExcludedChannels:   []string{"c-secret"},
		MessageHistoryDays: 14,
		MaxBackupCount:     3,
		AllowedRoles:       []string{"r-backup"},
		Schedule:           "0 4 * * *",
	}
	if err := settings.Save(in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := settings.Get("ws-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected settings, got nil")
	}
	if !got.IsEnabled || got.MessageHistoryDays != 14 || got.MaxBackupCount != 3 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if len(got.ExcludedChannels) != 1 || got.ExcludedChannels[0] != "c-secret" {
		t.Errorf("excluded channels lost: %+v", got.ExcludedChannels)
	}
	if len(got.AllowedRoles) != 1 || got.AllowedRoles[0] != "r-backup" {
		t.Errorf("allowed roles lost: %+v", got.AllowedRoles)
	}
	if got.Schedule != "0 4 * * *" {
		t.Errorf("schedule lost: %q", got.Schedule)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestSettingsUpsertAdvancesUpdatedAt(t *testing.T) {
	_, settings := newTestStores(t)

	in := DefaultSettings("ws-1")
	if err := settings.Save(in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	first, err := settings.Get("ws-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	in.MaxBackupCount = 9
	if err := settings.Save(in); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	second, err := settings.Get("ws-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if second.MaxBackupCount != 9 {
		t.Errorf("update not applied: %d", second.MaxBackupCount)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("updatedAt did not advance: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("createdAt changed on upsert: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
}

func TestExportCredentialsEncryptedAtRest(t *testing.T) {
	db := newTestDB(t)
	enc, err := crypto.NewEncryptionManager("")
	if err != nil {
		t.Fatalf("NewEncryptionManager failed: %v", err)
	}
	settings := NewSettingsStore(db.DB, enc)

	in := DefaultSettings("ws-1")
	in.ExportDestination = &DestinationConfig{
		Type:         "sftp",
		Path:         "/backups",
		SFTPHost:     "backup.example.com",
		SFTPUsername: "vault",
		SFTPPassword: "hunter2-plaintext",
	}
	if err := settings.Save(in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var raw string
	if err := db.QueryRow(`SELECT export_destination FROM backup_settings WHERE workspace_id = ?`, "ws-1").Scan(&raw); err != nil {
		t.Fatalf("raw query failed: %v", err)
	}
	if strings.Contains(raw, "hunter2-plaintext") {
		t.Error("SFTP password stored in plaintext")
	}

	got, err := settings.Get("ws-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ExportDestination == nil {
		t.Fatal("export destination lost")
	}
	if got.ExportDestination.SFTPPassword != "hunter2-plaintext" {
		t.Errorf("password did not decrypt: %q", got.ExportDestination.SFTPPassword)
	}
	if got.ExportDestination.SFTPHost != "backup.example.com" {
		t.Errorf("host lost: %q", got.ExportDestination.SFTPHost)
	}
}

func TestListDue(t *testing.T) {
	_, settings := newTestStores(t)

	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due := DefaultSettings("ws-due")
	due.IsEnabled = true
	due.Schedule = "0 4 * * *"
	due.NextRun = &past
	if err := settings.Save(due); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	notDue := DefaultSettings("ws-later")
	notDue.IsEnabled = true
	notDue.Schedule = "0 4 * * *"
	notDue.NextRun = &future
	if err := settings.Save(notDue); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	disabled := DefaultSettings("ws-off")
	disabled.Schedule = "0 4 * * *"
	disabled.NextRun = &past
	if err := settings.Save(disabled); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := settings.ListDue(now)
	if err != nil {
		t.Fatalf("ListDue failed: %v", err)
	}
	if len(got) != 1 || got[0].WorkspaceID != "ws-due" {
		t.Fatalf("expected only ws-due, got %+v", got)
	}
}

func TestSetRuns(t *testing.T) {
	_, settings := newTestStores(t)

	in := DefaultSettings("ws-1")
	in.Schedule = "0 4 * * *"
	if err := settings.Save(in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	last := time.Now().UTC().Truncate(time.Second)
	next := last.Add(24 * time.Hour)
	if err := settings.SetRuns("ws-1", last, &next); err != nil {
		t.Fatalf("SetRuns failed: %v", err)
	}

	got, err := settings.Get("ws-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.LastRun == nil || !got.LastRun.Equal(last) {
		t.Errorf("lastRun mismatch: %v", got.LastRun)
	}
	if got.NextRun == nil || !got.NextRun.Equal(next) {
		t.Errorf("nextRun mismatch: %v", got.NextRun)
	}
}
