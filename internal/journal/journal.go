// Package journal keeps a local SQLite history of task attempts.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"sttworker/internal/common/fsutil"
)

// Entry is one task attempt.
type Entry struct {
	AttemptID    string
	TaskID       int64
	Provider     string
	ModelID      string
	Outcome      string
	Error        string
	StartedAt    time.Time
	Duration     time.Duration
	AudioSeconds float64
}

// Options configure Open.
type Options struct {
	// Path of the database file. Empty keeps the journal in memory.
	Path string
	// MaxEntries bounds the table size; older rows are pruned. 0 keeps all.
	MaxEntries int
}

// Store is the SQLite-backed journal.
type Store struct {
	db    *sql.DB
	opts  Options
	log   zerolog.Logger
	clock func() time.Time
}

// Open creates or opens the journal database and applies the schema.
func Open(ctx context.Context, opts Options, log zerolog.Logger) (*Store, error) {
	dsn := ":memory:"
	if opts.Path != "" {
		p, err := fsutil.ExpandHome(opts.Path)
		if err != nil {
			return nil, err
		}
		if dir := filepath.Dir(p); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create journal dir: %w", err)
			}
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("journal path: %w", err)
		}
		dsn = fileDSN(abs)
		opts.Path = abs
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: the in-memory database lives exactly as long as it.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db, opts: opts, log: log.With().Str("component", "journal").Logger(), clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	if err := s.Prune(ctx); err != nil {
		s.log.Warn().Err(err).Msg("journal prune on start failed")
	}
	return s, nil
}

// fileDSN builds a SQLite URI for an absolute path. The path is escaped so
// that '?' and '#' in file names stay part of the name.
func fileDSN(path string) string {
	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(path),
		RawQuery: "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
	}
	return u.String()
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS attempts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    attempt_id TEXT NOT NULL UNIQUE,
    task_id INTEGER NOT NULL,
    provider TEXT,
    model_id TEXT,
    outcome TEXT NOT NULL,
    error TEXT,
    started_at INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    audio_seconds REAL
);
CREATE INDEX IF NOT EXISTS idx_attempts_task ON attempts(task_id);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewAttemptID returns a fresh attempt id.
func NewAttemptID() string { return uuid.NewString() }

// Record appends e, assigning an attempt id and start time when missing,
// and prunes old rows. It returns the stored entry.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.AttemptID == "" {
		e.AttemptID = NewAttemptID()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts(attempt_id, task_id, provider, model_id, outcome, error, started_at, duration_ms, audio_seconds)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.AttemptID, e.TaskID, e.Provider, e.ModelID, e.Outcome, e.Error,
		e.StartedAt.UnixMilli(), e.Duration.Milliseconds(), e.AudioSeconds)
	if err != nil {
		return e, fmt.Errorf("journal insert: %w", err)
	}
	if err := s.Prune(ctx); err != nil {
		s.log.Warn().Err(err).Msg("journal prune failed")
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT attempt_id, task_id, provider, model_id, outcome, error, started_at, duration_ms, audio_seconds
		 FROM attempts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                   Entry
			provider, model, er sql.NullString
			startedMS, durMS    int64
			audio               sql.NullFloat64
		)
		if err := rows.Scan(&e.AttemptID, &e.TaskID, &provider, &model, &e.Outcome, &er, &startedMS, &durMS, &audio); err != nil {
			return nil, err
		}
		e.Provider, e.ModelID, e.Error = provider.String, model.String, er.String
		e.StartedAt = time.UnixMilli(startedMS)
		e.Duration = time.Duration(durMS) * time.Millisecond
		e.AudioSeconds = audio.Float64
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempts`).Scan(&n)
	return n, err
}

// Prune drops the oldest rows beyond MaxEntries.
func (s *Store) Prune(ctx context.Context) error {
	if s.opts.MaxEntries <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM attempts WHERE id IN (
		SELECT id FROM attempts ORDER BY id DESC LIMIT -1 OFFSET ?
	)`, s.opts.MaxEntries)
	return err
}
