// Package archive keeps exported records in a SQLite database so runs can be
// listed and retrieved later.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

// ErrNotFound is returned when no run has the requested identifier.
var ErrNotFound = errors.New("run not found")

// Run is one archived analysis run.
type Run struct {
	ID         string
	AudioFile  string
	Digest     string
	SampleRate int
	Duration   float64
	Total      int
	Failed     int
	CreatedAt  time.Time
}

// Archive is a SQLite-backed run store.
type Archive struct {
	db *sql.DB
}

// Open creates the database and its directory if needed.
func Open(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	a := &Archive{db: db}
	if err := a.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the database handle.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  audio_file TEXT NOT NULL,
  digest TEXT,
  sample_rate INTEGER NOT NULL,
  duration REAL NOT NULL,
  total_methods INTEGER NOT NULL,
  failed_methods INTEGER NOT NULL,
  created_at TEXT NOT NULL,
  record BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at);
`
	if _, err := a.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	return nil
}

// Save stores a run and its exported record. Saving an existing ID replaces it.
func (a *Archive) Save(ctx context.Context, run Run, record []byte) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	const stmt = `
INSERT INTO runs (id, audio_file, digest, sample_rate, duration, total_methods, failed_methods, created_at, record)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  audio_file=excluded.audio_file,
  digest=excluded.digest,
  sample_rate=excluded.sample_rate,
  duration=excluded.duration,
  total_methods=excluded.total_methods,
  failed_methods=excluded.failed_methods,
  created_at=excluded.created_at,
  record=excluded.record;
`
	_, err := a.db.ExecContext(ctx, stmt,
		run.ID,
		run.AudioFile,
		run.Digest,
		run.SampleRate,
		run.Duration,
		run.Total,
		run.Failed,
		run.CreatedAt.UTC().Format(timeLayout),
		record,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// List returns the most recent runs first. A limit of zero or less returns all.
func (a *Archive) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := a.db.QueryContext(ctx, `
SELECT id, audio_file, digest, sample_rate, duration, total_methods, failed_methods, created_at
FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var created string
		var digest sql.NullString
		if err := rows.Scan(&r.ID, &r.AudioFile, &digest, &r.SampleRate, &r.Duration, &r.Total, &r.Failed, &created); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Digest = digest.String
		if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("run %s: bad timestamp %q: %w", r.ID, created, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Record returns the exported record stored for id.
func (a *Archive) Record(ctx context.Context, id string) ([]byte, error) {
	var record []byte
	err := a.db.QueryRowContext(ctx, `SELECT record FROM runs WHERE id = ?`, id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	return record, nil
}
