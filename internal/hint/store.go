// Package hint keeps the locally cached "active job" shortcut and resolves
// it against the backend.
package hint

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/raysh454/sitegen/internal/logging"
)

//go:embed schema.sql
var schemaFS embed.FS

// ErrNoHint is returned by Get when nothing is recorded for a user.
var ErrNoHint = errors.New("no active job hint")

// Hint is one cached active-job record. It is never a source of truth.
type Hint struct {
	UserKey    string
	JobID      string
	RecordedAt time.Time
}

// Store persists hints in SQLite.
type Store struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the hint database at path.
func Open(path string, logger logging.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure hint dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open hint db %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("hint db pragmas: %w", err)
	}
	s, err := NewStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore runs the schema on db and returns a Store.
func NewStore(db *sql.DB, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.With(logging.Field{Key: "component", Value: "hint"}),
		now:    time.Now,
	}, nil
}

func normalizeUserKey(userKey string) string {
	userKey = strings.TrimSpace(userKey)
	if userKey == "" {
		return "default"
	}
	return userKey
}

// Set records jobID as userKey's active job, replacing any previous hint.
func (s *Store) Set(ctx context.Context, userKey, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("job id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO active_job_hints (user_key, job_id, recorded_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_key) DO UPDATE SET job_id = excluded.job_id, recorded_at = excluded.recorded_at`,
		normalizeUserKey(userKey), jobID, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set hint: %w", err)
	}
	s.logger.Debug("active job hint recorded", logging.Field{Key: "job_id", Value: jobID})
	return nil
}

// Get returns the hint for userKey or ErrNoHint.
func (s *Store) Get(ctx context.Context, userKey string) (*Hint, error) {
	h := &Hint{UserKey: normalizeUserKey(userKey)}
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id, recorded_at FROM active_job_hints WHERE user_key = ?`, h.UserKey,
	).Scan(&h.JobID, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoHint
	}
	if err != nil {
		return nil, fmt.Errorf("get hint: %w", err)
	}
	h.RecordedAt = time.UnixMilli(ms).UTC()
	return h, nil
}

// Clear removes userKey's hint. Clearing a missing hint is not an error.
func (s *Store) Clear(ctx context.Context, userKey string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM active_job_hints WHERE user_key = ?`, normalizeUserKey(userKey)); err != nil {
		return fmt.Errorf("clear hint: %w", err)
	}
	return nil
}

// ForgetJob removes every hint pointing at jobID.
func (s *Store) ForgetJob(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM active_job_hints WHERE job_id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("forget job hint: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("active job hint cleared", logging.Field{Key: "job_id", Value: jobID})
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }
