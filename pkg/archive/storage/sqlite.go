package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/relay/pkg/archive"
)

// Driver names accepted by SQLiteConfig.Driver.
const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path. ":memory:" is accepted.
	Path string

	// Driver selects the database/sql driver, DriverModernc or DriverMattn.
	// Default: DriverModernc
	Driver string

	// WALMode enables Write-Ahead Logging mode.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:        "data/transcripts.db",
		Driver:      DriverModernc,
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
	}
}

// SQLiteStorage implements archive.Storage on SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens (creating if needed) the database and its schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverModernc
	}
	if config.Driver != DriverModernc && config.Driver != DriverMattn {
		return nil, archive.NewStorageError("sqlite", "open", fmt.Errorf("unknown driver %q", config.Driver))
	}

	logger := slog.Default().With("component", "archive.storage.sqlite")

	if config.Path != ":memory:" {
		if dir := filepath.Dir(config.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, archive.NewStorageError("sqlite", "mkdir", err)
			}
		}
	}

	db, err := sql.Open(config.Driver, config.Path)
	if err != nil {
		return nil, archive.NewStorageError("sqlite", "open", err)
	}

	// SQLite has a single writer; one connection also keeps
	// ":memory:" databases from splitting per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStorage{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode && s.config.Path != ":memory:" {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return archive.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	if s.config.BusyTimeout > 0 {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
			return archive.NewStorageError("sqlite", "set_busy_timeout", err)
		}
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return archive.NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return archive.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return archive.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return archive.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Store inserts t, replacing a transcript with the same id.
func (s *SQLiteStorage) Store(ctx context.Context, t *archive.Transcript) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO transcripts (
			id, session_id, model, mode, path, messages, content, chunks, outcome, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SessionID, t.Model, t.Mode, t.Path, t.Messages, t.Content, t.Chunks, t.Outcome,
		t.StartedAt.UnixNano(), t.CompletedAt.UnixNano(),
	)
	if err != nil {
		return archive.NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Query returns matching transcripts, newest first.
func (s *SQLiteStorage) Query(ctx context.Context, q *archive.Query) ([]*archive.Transcript, error) {
	if q == nil {
		q = &archive.Query{}
	}

	var (
		where []string
		args  []any
	)
	if q.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.Model != "" {
		where = append(where, "model = ?")
		args = append(args, q.Model)
	}
	if q.Since != nil {
		where = append(where, "completed_at >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if q.Until != nil {
		where = append(where, "completed_at <= ?")
		args = append(args, q.Until.UnixNano())
	}

	query := "SELECT " + columns + " FROM transcripts"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY completed_at DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, archive.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	var results []*archive.Transcript
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, archive.NewStorageError("sqlite", "scan", err)
		}
		results = append(results, t)
	}
	if err := rows.Err(); err != nil {
		return nil, archive.NewStorageError("sqlite", "query", err)
	}
	return results, nil
}

// Get returns the transcript with the given id.
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*archive.Transcript, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+columns+" FROM transcripts WHERE id = ?", id)
	t, err := scanTranscript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, archive.ErrNotFound
	}
	if err != nil {
		return nil, archive.NewStorageError("sqlite", "get", err)
	}
	return t, nil
}

// DeleteBefore removes transcripts completed before cutoff.
func (s *SQLiteStorage) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM transcripts WHERE completed_at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, archive.NewStorageError("sqlite", "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, archive.NewStorageError("sqlite", "delete", err)
	}
	return n, nil
}

// Count returns the number of stored transcripts.
func (s *SQLiteStorage) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transcripts").Scan(&n); err != nil {
		return 0, archive.NewStorageError("sqlite", "count", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	s.logger.Debug("closing SQLite storage")
	return s.db.Close()
}

const columns = "id, session_id, model, mode, path, messages, content, chunks, outcome, started_at, completed_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanTranscript(sc scanner) (*archive.Transcript, error) {
	var (
		t                  archive.Transcript
		model, path        sql.NullString
		started, completed int64
	)
	if err := sc.Scan(&t.ID, &t.SessionID, &model, &t.Mode, &path, &t.Messages, &t.Content, &t.Chunks, &t.Outcome, &started, &completed); err != nil {
		return nil, err
	}
	t.Model = model.String
	t.Path = path.String
	t.StartedAt = time.Unix(0, started)
	t.CompletedAt = time.Unix(0, completed)
	return &t, nil
}
