package backup

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func seedCompletedBackup(t *testing.T, store *Store) *BackupJob {
	t.Helper()

	job := &BackupJob{
		ID:            "backup-export01",
		WorkspaceID:   "ws-1",
		WorkspaceName: "Test Workspace",
		Name:          "Exportable",
		Kind:          KindManual,
		MemberCount:   42,
	}
	if err := store.InsertJob(job); err != nil {
		t.Fatalf("InsertJob failed: %v", err)
	}
	if err := store.InsertSettingsSnapshot(&SettingsSnapshot{BackupID: job.ID, Name: "Test Workspace", OwnerID: "owner-1"}); err != nil {
		t.Fatalf("InsertSettingsSnapshot failed: %v", err)
	}
	if err := store.InsertRoleSnapshots([]*RoleSnapshot{{BackupID: job.ID, RoleID: "r1", Name: "mods", Permissions: "8"}}); err != nil {
		t.Fatalf("InsertRoleSnapshots failed: %v", err)
	}
	chID, err := store.InsertChannelSnapshot(&ChannelSnapshot{BackupID: job.ID, ChannelID: "c1", Name: "general"})
	if err != nil {
		t.Fatalf("InsertChannelSnapshot failed: %v", err)
	}
	if err := store.InsertMessageSnapshots(chID, []*MessageSnapshot{
		{MessageID: "m1", AuthorID: "u1", Content: "hello", CreatedAt: time.Now().UTC()},
		{MessageID: "m2", AuthorID: "u1", Content: "world", CreatedAt: time.Now().UTC()},
	}); err != nil {
		t.Fatalf("InsertMessageSnapshots failed: %v", err)
	}
	if err := store.MarkJobCompleted(job.ID, 1, 1, 2); err != nil {
		t.Fatalf("MarkJobCompleted failed: %v", err)
	}
	return job
}

func TestExportToLocalDestination(t *testing.T) {
	store, _ := newTestStores(t)
	job := seedCompletedBackup(t, store)

	dir := t.TempDir()
	exporter := NewExporter(store)

	filename, err := exporter.Export(job.ID, NewLocalDestination(dir))
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		t.Fatalf("reading exported archive failed: %v", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("archive is not gzip: %v", err)
	}
	defer gz.Close()

	var archive Archive
	if err := json.NewDecoder(gz).Decode(&archive); err != nil {
		t.Fatalf("archive is not JSON: %v", err)
	}

	if archive.Version != 1 {
		t.Errorf("unexpected version %d", archive.Version)
	}
	if archive.Job == nil || archive.Job.ID != job.ID {
		t.Fatalf("job missing from archive: %+v", archive.Job)
	}
	if archive.Settings == nil || archive.Settings.OwnerID != "owner-1" {
		t.Errorf("settings missing from archive: %+v", archive.Settings)
	}
	if len(archive.Roles) != 1 || archive.Roles[0].RoleID != "r1" {
		t.Errorf("roles missing from archive: %+v", archive.Roles)
	}
	if len(archive.Channels) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(archive.Channels))
	}
	if len(archive.Channels[0].Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(archive.Channels[0].Messages))
	}
}

func TestExportRejectsUnfinishedBackup(t *testing.T) {
	store, _ := newTestStores(t)

	job := &BackupJob{ID: "backup-running1", WorkspaceID: "ws-1", Kind: KindManual}
	if err := store.InsertJob(job); err != nil {
		t.Fatalf("InsertJob failed: %v", err)
	}

	exporter := NewExporter(store)
	if _, err := exporter.Export(job.ID, NewLocalDestination(t.TempDir())); err == nil {
		t.Fatal("expected error exporting in_progress backup")
	}
}

func TestExportMissingBackup(t *testing.T) {
	store, _ := newTestStores(t)

	exporter := NewExporter(store)
	_, err := exporter.Export("backup-nope", NewLocalDestination(t.TempDir()))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalDestinationRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dest := NewLocalDestination(dir)

	payload := []byte("archive bytes")
	if err := dest.Upload("a.json.gz", bytes.NewReader(payload), int64(len(payload))); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	var out bytes.Buffer
	if err := dest.Download("a.json.gz", &out); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if out.String() != "archive bytes" {
		t.Errorf("download mismatch: %q", out.String())
	}

	files, err := dest.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(files) != 1 || files[0].Filename != "a.json.gz" {
		t.Fatalf("unexpected listing: %+v", files)
	}

	if err := dest.Delete("a.json.gz"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	files, _ = dest.List()
	if len(files) != 0 {
		t.Fatalf("file survived delete: %+v", files)
	}
}
