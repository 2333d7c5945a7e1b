// internal/retention/retention.go

// Package retention prunes aged day folders from the recording tree on
// a cron schedule, keeping the disk from filling up on long-running
// installations.
package retention

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"

	"github.com/tamzrod/fieldrec/internal/record"
)

// DefaultSchedule runs the sweep nightly, off the usual working hours.
const DefaultSchedule = "30 3 * * *"

// Config carries the sweep policy.
type Config struct {
	// Root is the recording tree: <root>/<camera>/<DD-MM-YY>/...
	Root string

	// KeepDays is how many whole days of footage survive a sweep.
	KeepDays int

	// Schedule is a standard 5-field cron expression. Empty selects
	// DefaultSchedule.
	Schedule string
}

// Sweeper deletes day folders older than the keep window.
type Sweeper struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	cron *cron.Cron
}

// New validates the policy, schedule included, without touching disk.
func New(cfg Config, log *slog.Logger) (*Sweeper, error) {
	if cfg.Root == "" {
		return nil, errors.New("retention: root is required")
	}
	if cfg.KeepDays <= 0 {
		return nil, fmt.Errorf("retention: keep days %d must be positive", cfg.KeepDays)
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("retention: schedule %q: %w", cfg.Schedule, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{cfg: cfg, log: log, now: time.Now}, nil
}

// Start arms the schedule. The first sweep happens at the next cron
// tick, not immediately.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if _, _, err := s.Sweep(s.now()); err != nil {
			s.log.Error("retention sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("retention: schedule: %w", err)
	}
	s.cron.Start()
	s.log.Info("retention schedule armed",
		"schedule", s.cfg.Schedule, "keep_days", s.cfg.KeepDays, "root", s.cfg.Root)
	return nil
}

// Stop disarms the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep removes every day folder whose date is older than KeepDays
// whole days before now. It reports folders removed and bytes freed.
// Folder names that do not parse as a day are left alone with a
// warning; they may be someone's manual stash.
func (s *Sweeper) Sweep(now time.Time) (removed int, freed uint64, err error) {
	cutoff := dayStart(now).AddDate(0, 0, -s.cfg.KeepDays)

	cameras, err := os.ReadDir(s.cfg.Root)
	if err != nil {
		return 0, 0, fmt.Errorf("retention: read root: %w", err)
	}
	for _, cam := range cameras {
		if !cam.IsDir() {
			continue
		}
		camDir := filepath.Join(s.cfg.Root, cam.Name())
		days, err := os.ReadDir(camDir)
		if err != nil {
			s.log.Warn("retention cannot read camera folder", "dir", camDir, "error", err)
			continue
		}
		for _, day := range days {
			if !day.IsDir() {
				continue
			}
			date, perr := time.ParseInLocation(record.DayFolderLayout, day.Name(), now.Location())
			if perr != nil {
				s.log.Warn("skipping unrecognized folder",
					"camera", cam.Name(), "folder", day.Name())
				continue
			}
			if !date.Before(cutoff) {
				continue
			}
			target := filepath.Join(camDir, day.Name())
			size := dirSize(target)
			if rerr := os.RemoveAll(target); rerr != nil {
				s.log.Error("retention remove failed", "dir", target, "error", rerr)
				continue
			}
			removed++
			freed += size
			s.log.Info("aged recordings removed",
				"camera", cam.Name(), "folder", day.Name(), "size", humanize.Bytes(size))
		}
	}
	s.log.Info("retention sweep complete",
		"removed", removed, "freed", humanize.Bytes(freed))
	return removed, freed, nil
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// dirSize sums file sizes under dir, best effort.
func dirSize(dir string) uint64 {
	var total uint64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, ierr := d.Info(); ierr == nil {
			total += uint64(info.Size())
		}
		return nil
	})
	return total
}
