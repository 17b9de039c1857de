package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore keeps the checkpoint in a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLiteStore opens or creates the database at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	// one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS job (
		slot INTEGER PRIMARY KEY CHECK (slot = 1),
		id TEXT NOT NULL,
		start_url TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		items INTEGER NOT NULL DEFAULT 0,
		runs INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS visited (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		seen_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create checkpoint tables: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// LoadJob reads the job row.
func (s *SQLiteStore) LoadJob(ctx context.Context) (*Job, error) {
	var (
		job      Job
		finished sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, start_url, started_at, finished_at, items, runs FROM job WHERE slot = 1`,
	).Scan(&job.ID, &job.StartURL, &job.StartedAt, &finished, &job.Items, &job.Runs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	if finished.Valid {
		t := finished.Time
		job.FinishedAt = &t
	}
	return &job, nil
}

// SaveJob upserts the job row.
func (s *SQLiteStore) SaveJob(ctx context.Context, job *Job) error {
	var finished any
	if job.FinishedAt != nil {
		finished = *job.FinishedAt
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO job (slot, id, start_url, started_at, finished_at, items, runs)
	VALUES (1, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(slot) DO UPDATE SET
		id = excluded.id,
		start_url = excluded.start_url,
		started_at = excluded.started_at,
		finished_at = excluded.finished_at,
		items = excluded.items,
		runs = excluded.runs`,
		job.ID, job.StartURL, job.StartedAt, finished, job.Items, job.Runs,
	)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// Visited returns the visited URLs in insertion order.
func (s *SQLiteStore) Visited(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url FROM visited ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query visited: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan visited: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// Append records url; repeated URLs are ignored.
func (s *SQLiteStore) Append(ctx context.Context, url string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO visited (url) VALUES (?)`, url); err != nil {
		return fmt.Errorf("insert visited: %w", err)
	}
	return nil
}

// Reset clears the visited table.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM visited`); err != nil {
		return fmt.Errorf("reset visited: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
