package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    dir TEXT NOT NULL,
    url TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS artifacts (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    path TEXT NOT NULL,
    format TEXT NOT NULL DEFAULT '',
    size INTEGER NOT NULL DEFAULT 0,
    url TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
CREATE INDEX IF NOT EXISTS idx_artifacts_session ON artifacts(session_id);
`

type Config struct {
	MaxRetries     int
	RetryDelay     time.Duration
	MaxConnections int
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		RetryDelay:     100 * time.Millisecond,
		MaxConnections: 1,
	}
}

// Store records sessions and the files they produced so the retention sweep
// can find expired work after a restart.
type Store struct {
	db     *sql.DB
	config Config
}

type SessionRecord struct {
	ID        string
	Dir       string
	URL       string
	Title     string
	State     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ArtifactRecord struct {
	ID        string
	SessionID string
	Kind      string
	Path      string
	Format    string
	Size      int64
	URL       string
	CreatedAt time.Time
}

func Open(dbPath string, cfg Config) (*Store, error) {
	logrus.WithField("path", dbPath).Info("Initializing database")

	if err := os.MkdirAll(filepath.Dir(dbPath), os.ModePerm); err != nil {
		return nil, errors.Wrap(err, "error creating directory for database")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening database")
	}
	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := execSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &Store{db: db, config: cfg}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func configurePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Wrapf(err, "failed to set pragma: %s", pragma)
		}
	}
	return nil
}

func execSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin schema transaction")
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return errors.Wrapf(err, "failed to execute schema statement: %s", stmt)
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit schema transaction")
}

// withRetry repeats fn while sqlite reports the database as busy or locked.
func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < s.config.MaxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil || !isBusy(lastErr) {
			return lastErr
		}
		time.Sleep(s.config.RetryDelay)
	}
	return lastErr
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) withTransaction(ctx context.Context, fn func(tx executor) error) error {
	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
			}
			return err
		}
		return tx.Commit()
	})
}

// SaveSession inserts or updates the session row.
func (s *Store) SaveSession(ctx context.Context, rec SessionRecord) error {
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	err := s.withTransaction(ctx, func(tx executor) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, dir, url, title, state, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				dir = excluded.dir,
				url = excluded.url,
				title = excluded.title,
				state = excluded.state,
				updated_at = excluded.updated_at`,
			rec.ID, rec.Dir, rec.URL, rec.Title, rec.State, rec.CreatedAt.Unix(), rec.UpdatedAt.Unix())
		return err
	})
	return errors.Wrap(err, "error saving session")
}

// RecordArtifact stores a produced file and touches the owning session.
func (s *Store) RecordArtifact(ctx context.Context, rec ArtifactRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	err := s.withTransaction(ctx, func(tx executor) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO artifacts (id, session_id, kind, path, format, size, url, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				path = excluded.path,
				size = excluded.size,
				url = excluded.url`,
			rec.ID, rec.SessionID, rec.Kind, rec.Path, rec.Format, rec.Size, rec.URL, rec.CreatedAt.Unix()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`,
			rec.CreatedAt.Unix(), rec.SessionID)
		return err
	})
	return errors.Wrap(err, "error recording artifact")
}

func (s *Store) ListArtifacts(ctx context.Context, sessionID string) ([]ArtifactRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, kind, path, format, size, url, created_at
		FROM artifacts WHERE session_id = ? ORDER BY created_at, rowid`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "error querying artifacts")
	}
	defer rows.Close()

	var out []ArtifactRecord
	for rows.Next() {
		var rec ArtifactRecord
		var created int64
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Kind, &rec.Path, &rec.Format, &rec.Size, &rec.URL, &created); err != nil {
			return nil, errors.Wrap(err, "error scanning artifact")
		}
		rec.CreatedAt = time.Unix(created, 0)
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "error iterating artifacts")
}

func (s *Store) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	var rec SessionRecord
	var created, updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, dir, url, title, state, created_at, updated_at
		FROM sessions WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Dir, &rec.URL, &rec.Title, &rec.State, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "error querying session")
	}
	rec.CreatedAt, rec.UpdatedAt = time.Unix(created, 0), time.Unix(updated, 0)
	return &rec, nil
}

// ExpiredSessions lists sessions whose last update is older than before.
func (s *Store) ExpiredSessions(ctx context.Context, before time.Time) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dir, url, title, state, created_at, updated_at
		FROM sessions WHERE updated_at < ? ORDER BY updated_at`, before.Unix())
	if err != nil {
		return nil, errors.Wrap(err, "error querying expired sessions")
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var created, updated int64
		if err := rows.Scan(&rec.ID, &rec.Dir, &rec.URL, &rec.Title, &rec.State, &created, &updated); err != nil {
			return nil, errors.Wrap(err, "error scanning session")
		}
		rec.CreatedAt, rec.UpdatedAt = time.Unix(created, 0), time.Unix(updated, 0)
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "error iterating sessions")
}

// DeleteSession removes the session row and its artifacts.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	err := s.withTransaction(ctx, func(tx executor) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM artifacts WHERE session_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		return err
	})
	return errors.Wrap(err, "error deleting session")
}
