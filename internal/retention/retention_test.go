// internal/retention/retention_test.go

package retention

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedDay(t *testing.T, root, camera, folder string, bytes int) {
	t.Helper()
	dir := filepath.Join(root, camera, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "14_00__15_00.avi"), make([]byte, bytes), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Root: "", KeepDays: 7}, testLogger()); err == nil {
		t.Fatal("missing root accepted")
	}
	if _, err := New(Config{Root: "/rec", KeepDays: 0}, testLogger()); err == nil {
		t.Fatal("zero keep days accepted")
	}
	if _, err := New(Config{Root: "/rec", KeepDays: 7, Schedule: "not cron"}, testLogger()); err == nil {
		t.Fatal("bad schedule accepted")
	}
	s, err := New(Config{Root: "/rec", KeepDays: 7}, testLogger())
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if s.cfg.Schedule != DefaultSchedule {
		t.Fatalf("schedule = %q, want default", s.cfg.Schedule)
	}
}

func TestSweep_RemovesOnlyAgedFolders(t *testing.T) {
	root := t.TempDir()
	seedDay(t, root, "Kiln A", "05-03-26", 2048) // aged
	seedDay(t, root, "Kiln A", "13-03-26", 1024) // exactly at the cutoff, kept
	seedDay(t, root, "Kiln A", "14-03-26", 1024) // inside the window
	seedDay(t, root, "Kiln B", "01-03-26", 4096) // aged, other camera

	s, err := New(Config{Root: root, KeepDays: 7}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	removed, freed, err := s.Sweep(now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if freed != 2048+4096 {
		t.Fatalf("freed = %d bytes", freed)
	}
	if exists(filepath.Join(root, "Kiln A", "05-03-26")) {
		t.Fatal("aged folder survived")
	}
	if !exists(filepath.Join(root, "Kiln A", "13-03-26")) {
		t.Fatal("cutoff-day folder was removed")
	}
	if !exists(filepath.Join(root, "Kiln A", "14-03-26")) {
		t.Fatal("in-window folder was removed")
	}
	if exists(filepath.Join(root, "Kiln B", "01-03-26")) {
		t.Fatal("aged folder for second camera survived")
	}
}

func TestSweep_SkipsUnrecognizedNames(t *testing.T) {
	root := t.TempDir()
	seedDay(t, root, "Kiln A", "keep-me", 512)
	seedDay(t, root, "Kiln A", "32-13-26", 512)
	if err := os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed stray: %v", err)
	}

	s, err := New(Config{Root: root, KeepDays: 7}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	removed, _, err := s.Sweep(time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
	if !exists(filepath.Join(root, "Kiln A", "keep-me")) {
		t.Fatal("unparseable folder was removed")
	}
	if !exists(filepath.Join(root, "Kiln A", "32-13-26")) {
		t.Fatal("invalid date folder was removed")
	}
}

func TestSweep_MissingRootFails(t *testing.T) {
	s, err := New(Config{Root: filepath.Join(t.TempDir(), "absent"), KeepDays: 7}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, err := s.Sweep(time.Now()); err == nil {
		t.Fatal("missing root did not error")
	}
}

func TestSweep_EmptyRootIsClean(t *testing.T) {
	s, err := New(Config{Root: t.TempDir(), KeepDays: 7}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	removed, freed, err := s.Sweep(time.Now())
	if err != nil || removed != 0 || freed != 0 {
		t.Fatalf("sweep of empty root = (%d, %d, %v)", removed, freed, err)
	}
}

func TestStartStop(t *testing.T) {
	s, err := New(Config{Root: t.TempDir(), KeepDays: 7}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Stop()
}
