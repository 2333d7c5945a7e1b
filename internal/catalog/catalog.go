// internal/catalog/catalog.go

// Package catalog keeps a durable index of finalized recording
// segments in a local SQLite file, so operators can find footage
// without crawling the recording tree.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tamzrod/fieldrec/internal/record"
)

// Entry is one cataloged segment row.
type Entry struct {
	ID           int64
	Unit         string
	Camera       string
	PlannedStart time.Time
	PlannedEnd   time.Time
	ActualEnd    time.Time
	Path         string
	CreatedAt    time.Time
}

// Catalog is a single-writer index over one SQLite file.
type Catalog struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// Open creates or opens the catalog database at path.
func Open(path string, log *slog.Logger) (*Catalog, error) {
	if path == "" {
		return nil, errors.New("catalog: path is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("catalog: ensure dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA synchronous = NORMAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: pragmas: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("segment catalog open", "path", path)
	return &Catalog{db: db, log: log, now: time.Now}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS segments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    unit TEXT NOT NULL,
    camera TEXT NOT NULL,
    planned_start INTEGER NOT NULL,
    planned_end INTEGER NOT NULL,
    actual_end INTEGER NOT NULL,
    path TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_segments_unit_start ON segments(unit, planned_start);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("catalog: schema: %w", err)
	}
	return nil
}

// Add records one closed segment. Times are stored as UTC unix seconds.
func (c *Catalog) Add(seg record.Segment) error {
	_, err := c.db.Exec(`
INSERT INTO segments (unit, camera, planned_start, planned_end, actual_end, path, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		seg.Unit,
		seg.Camera,
		seg.PlannedStart.UTC().Unix(),
		seg.PlannedEnd.UTC().Unix(),
		seg.ActualEnd.UTC().Unix(),
		seg.Path,
		c.now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("catalog: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit segments for one unit, newest planned
// start first.
func (c *Catalog) Recent(unit string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := c.db.Query(`
SELECT id, unit, camera, planned_start, planned_end, actual_end, path, created_at
FROM segments WHERE unit = ? ORDER BY planned_start DESC, id DESC LIMIT ?`,
		unit, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var start, end, actual, created int64
		if err := rows.Scan(&e.ID, &e.Unit, &e.Camera, &start, &end, &actual, &e.Path, &created); err != nil {
			return nil, fmt.Errorf("catalog: scan: %w", err)
		}
		e.PlannedStart = time.Unix(start, 0).UTC()
		e.PlannedEnd = time.Unix(end, 0).UTC()
		e.ActualEnd = time.Unix(actual, 0).UTC()
		e.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
