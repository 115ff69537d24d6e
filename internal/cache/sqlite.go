package cache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/capsule/internal/job"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on cache_entries.stored_at
const currentSchemaVersion = 1

const entriesTable = "cache_entries"

// SQLite is a persistent cache backed by a single SQLite file.
// Uses WAL mode so concurrent compilations can read while one writes.
type SQLite struct {
	*Keyer

	db  *sql.DB
	now func() time.Time
}

// Stats summarizes the persistent cache contents.
type Stats struct {
	Entries int64 `json:"entries"`
	Jobs    int64 `json:"jobs"`
	Bytes   int64 `json:"bytes"`
	Oldest  int64 `json:"oldest,omitempty"`
	Newest  int64 `json:"newest,omitempty"`
}

// OpenSQLite creates or opens a cache database at path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// Safe to call multiple times on the same path.
func OpenSQLite(path string, k *Keyer) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to cache database: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{Keyer: k, db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Fetch loads and decodes the entry for key. A payload that fails to
// decode is returned as an error together with ok == false; callers treat
// it as a miss.
func (s *SQLite) Fetch(ctx context.Context, key job.Key) ([]*job.Job, bool, error) {
	query, args, err := sq.Select("payload").
		From(entriesTable).
		Where(sq.Eq{"key": key.String()}).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("fetch %s: %w", key, err)
	}

	var payload []byte
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetch %s: %w", key, err)
	}

	jobs, err := DecodeJobs(payload)
	if err != nil {
		return nil, false, fmt.Errorf("fetch %s: %w", key, err)
	}
	return jobs, true, nil
}

// Store inserts the entry for key. Uses ON CONFLICT DO NOTHING so the
// first writer for a key wins and later stores are silently ignored.
func (s *SQLite) Store(ctx context.Context, key job.Key, jobs []*job.Job) error {
	payload, err := EncodeJobs(jobs)
	if err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}

	query, args, err := sq.Insert(entriesTable).
		Columns("key", "job_count", "payload", "stored_at").
		Values(key.String(), len(jobs), payload, s.now().Unix()).
		Suffix("ON CONFLICT(key) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// Stats reports entry count, stored job count and payload bytes.
func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	query, args, err := sq.Select(
		"COUNT(*)",
		"COALESCE(SUM(job_count), 0)",
		"COALESCE(SUM(LENGTH(payload)), 0)",
		"COALESCE(MIN(stored_at), 0)",
		"COALESCE(MAX(stored_at), 0)",
	).From(entriesTable).ToSql()
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}

	var st Stats
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&st.Entries, &st.Jobs, &st.Bytes, &st.Oldest, &st.Newest); err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// Clear deletes every entry and returns how many were removed.
func (s *SQLite) Clear(ctx context.Context) (int64, error) {
	query, args, err := sq.Delete(entriesTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("clear: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear: %w", err)
	}
	return n, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes stored_at for the stats query.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_cache_entries_stored_at
		ON cache_entries(stored_at)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLite) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
