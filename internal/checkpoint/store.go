package checkpoint

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"courier/internal/config"
	"courier/internal/queue"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
// Users will need to clear their checkpoint database after schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store manages checkpoint persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the checkpoint database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to start fresh)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}

	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

const checkpointColumns = "user_id, batch_id, source_kind, source_id, range_start, range_end, dest_chat, total, completed, failed, paused, started_at, updated_at"

// Save upserts the checkpoint keyed by its user.
func (s *Store) Save(ctx context.Context, cp queue.Checkpoint) error {
	updated := cp.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO checkpoints (`+checkpointColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(user_id) DO UPDATE SET
            batch_id = excluded.batch_id,
            source_kind = excluded.source_kind,
            source_id = excluded.source_id,
            range_start = excluded.range_start,
            range_end = excluded.range_end,
            dest_chat = excluded.dest_chat,
            total = excluded.total,
            completed = excluded.completed,
            failed = excluded.failed,
            paused = excluded.paused,
            started_at = excluded.started_at,
            updated_at = excluded.updated_at`,
		cp.UserID,
		cp.BatchID,
		string(cp.Source),
		cp.SourceID,
		cp.RangeStart,
		cp.RangeEnd,
		cp.DestChat,
		cp.Total,
		cp.Completed,
		cp.Failed,
		boolToInt(cp.Paused),
		nullableTime(cp.StartedAt),
		updated.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Load fetches the checkpoint for a user, or nil when none exists.
func (s *Store) Load(ctx context.Context, userID int64) (*queue.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoints WHERE user_id = ?`, userID)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return cp, nil
}

// Delete removes the checkpoint for a user. Deleting a missing row is not an error.
func (s *Store) Delete(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// List returns every stored checkpoint ordered by user ID.
func (s *Store) List(ctx context.Context) ([]queue.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoints ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []queue.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, *cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return checkpoints, nil
}

func scanCheckpoint(scanner interface{ Scan(dest ...any) error }) (*queue.Checkpoint, error) {
	var (
		cp         queue.Checkpoint
		sourceKind string
		paused     int64
		startedRaw sql.NullString
		updatedRaw sql.NullString
	)

	if err := scanner.Scan(
		&cp.UserID,
		&cp.BatchID,
		&sourceKind,
		&cp.SourceID,
		&cp.RangeStart,
		&cp.RangeEnd,
		&cp.DestChat,
		&cp.Total,
		&cp.Completed,
		&cp.Failed,
		&paused,
		&startedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	cp.Source = queue.SourceKind(sourceKind)
	cp.Paused = paused != 0
	cp.StartedAt = parseTime(startedRaw)
	cp.UpdatedAt = parseTime(updatedRaw)
	return &cp, nil
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTime(value sql.NullString) time.Time {
	if !value.Valid || value.String == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, value.String)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}
