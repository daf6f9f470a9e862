package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dshills/sessionsearch-mcp/pkg/types"
)

const (
	// DatabaseFileName is the SQLite file inside the index directory
	DatabaseFileName = "sessions.db"

	// readerPoolSize bounds concurrent search connections
	readerPoolSize = 4
)

// SQLiteStore implements Store on a single SQLite database in WAL mode.
// Writes go through a one-connection writer pool; searches use a separate
// reader pool on the same file.
type SQLiteStore struct {
	dir      string
	writerDB *sql.DB
	readerDB *sql.DB

	writerHeld atomic.Bool
	generation atomic.Uint64
}

// Compile-time check
var _ Store = (*SQLiteStore)(nil)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath+connParams)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode so readers do not block the writer
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// Open opens (creating if needed) the index stored in indexDir
func Open(indexDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(indexDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	dbPath := filepath.Join(indexDir, DatabaseFileName)

	writerDB, err := openDatabase(dbPath, 1) // SQLite benefits from single writer
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), writerDB); err != nil {
		_ = writerDB.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	readerDB, err := openDatabase(dbPath, readerPoolSize)
	if err != nil {
		_ = writerDB.Close()
		return nil, fmt.Errorf("failed to open reader pool: %w", err)
	}

	return &SQLiteStore{
		dir:      indexDir,
		writerDB: writerDB,
		readerDB: readerDB,
	}, nil
}

// Close closes both connection pools
func (s *SQLiteStore) Close() error {
	return errors.Join(s.readerDB.Close(), s.writerDB.Close())
}

// Location returns the index directory
func (s *SQLiteStore) Location() string {
	return s.dir
}

// Generation identifies the current read view. It changes on every
// ReloadReaders, so it can key caches of search results.
func (s *SQLiteStore) Generation() uint64 {
	return s.generation.Load()
}

// DataVersion fingerprints the committed sessions. Unlike Generation, it
// also changes when another process commits to the same index.
func (s *SQLiteStore) DataVersion(ctx context.Context) (string, error) {
	var count, lastIndexed, lastID int64
	err := s.readerDB.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(MAX(indexed_at), 0), COALESCE(MAX(id), 0) FROM sessions").
		Scan(&count, &lastIndexed, &lastID)
	if err != nil {
		return "", fmt.Errorf("failed to read data version: %w", err)
	}
	return fmt.Sprintf("%d.%d.%d", count, lastIndexed, lastID), nil
}

// ReloadReaders makes committed writes visible to subsequent searches
func (s *SQLiteStore) ReloadReaders(ctx context.Context) error {
	if err := s.readerDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reload readers: %w", err)
	}
	s.generation.Add(1)
	return nil
}

// Writer acquires the store's writer. Only one writer may be held at a time.
func (s *SQLiteStore) Writer(ctx context.Context) (Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.writerHeld.CompareAndSwap(false, true) {
		return nil, ErrWriterBusy
	}
	return &sqliteWriter{store: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteWriter buffers writes in a transaction opened on first use
type sqliteWriter struct {
	store  *SQLiteStore
	tx     *sql.Tx
	closed bool
}

// begin returns the pending transaction, opening one if needed
func (w *sqliteWriter) begin(ctx context.Context) (*sql.Tx, error) {
	if w.closed {
		return nil, ErrWriterClosed
	}
	if w.tx != nil {
		return w.tx, nil
	}
	tx, err := w.store.writerDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	w.tx = tx
	return tx, nil
}

func (w *sqliteWriter) DeleteSession(ctx context.Context, path string) error {
	tx, err := w.begin(ctx)
	if err != nil {
		return err
	}
	return deleteSessionWithQuerier(ctx, tx, path)
}

func (w *sqliteWriter) InsertSession(ctx context.Context, session *types.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid session %s: %w", session.Path, err)
	}
	tx, err := w.begin(ctx)
	if err != nil {
		return err
	}
	return insertSessionWithQuerier(ctx, tx, session)
}

func (w *sqliteWriter) Commit() error {
	if w.closed {
		return ErrWriterClosed
	}
	if w.tx == nil {
		return nil
	}
	tx := w.tx
	w.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (w *sqliteWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.store.writerHeld.Store(false)

	if w.tx != nil {
		tx := w.tx
		w.tx = nil
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			return fmt.Errorf("failed to discard uncommitted writes: %w", err)
		}
	}
	return nil
}

// Session operations

// deleteSessionWithQuerier removes a session row and its messages. The
// messages delete trigger keeps the FTS index in step.
func deleteSessionWithQuerier(ctx context.Context, q querier, path string) error {
	_, err := q.ExecContext(ctx, `
		DELETE FROM messages
		WHERE session_pk IN (SELECT id FROM sessions WHERE path = ?)
	`, path)
	if err != nil {
		return fmt.Errorf("failed to delete messages for %s: %w", path, err)
	}

	_, err = q.ExecContext(ctx, "DELETE FROM sessions WHERE path = ?", path)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", path, err)
	}
	return nil
}

// insertSessionWithQuerier adds a session row followed by its messages
func insertSessionWithQuerier(ctx context.Context, q querier, session *types.Session) error {
	result, err := q.ExecContext(ctx, `
		INSERT INTO sessions (path, session_id, project, summary, started_at, updated_at, message_count, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, session.Path, session.SessionID, session.Project, session.Summary,
		unixNano(session.StartedAt), unixNano(session.UpdatedAt),
		len(session.Messages), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", session.Path, err)
	}

	sessionPK, err := result.LastInsertId()
	if err != nil {
		return err
	}

	for _, msg := range session.Messages {
		_, err := q.ExecContext(ctx, `
			INSERT INTO messages (session_pk, ordinal, role, text, timestamp)
			VALUES (?, ?, ?, ?, ?)
		`, sessionPK, msg.Ordinal, string(msg.Role), msg.Text, unixNano(msg.Timestamp))
		if err != nil {
			return fmt.Errorf("failed to insert message %d of %s: %w", msg.Ordinal, session.Path, err)
		}
	}
	return nil
}

// GetSession returns the indexed session for a transcript path
func (s *SQLiteStore) GetSession(ctx context.Context, path string) (*SessionRecord, error) {
	query := `
		SELECT id, path, session_id, project, summary, started_at, updated_at, message_count, indexed_at
		FROM sessions
		WHERE path = ?
	`
	var rec SessionRecord
	var startedAt, updatedAt, indexedAt int64
	err := s.readerDB.QueryRowContext(ctx, query, path).Scan(
		&rec.ID, &rec.Path, &rec.SessionID, &rec.Project, &rec.Summary,
		&startedAt, &updatedAt, &rec.MessageCount, &indexedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.StartedAt = fromUnixNano(startedAt)
	rec.UpdatedAt = fromUnixNano(updatedAt)
	rec.IndexedAt = fromUnixNano(indexedAt)
	return &rec, nil
}

// ListSessionPaths returns the path of every indexed session
func (s *SQLiteStore) ListSessionPaths(ctx context.Context) ([]string, error) {
	rows, err := s.readerDB.QueryContext(ctx, "SELECT path FROM sessions ORDER BY path")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	paths := make([]string, 0)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// GetStatus returns statistics about the index
func (s *SQLiteStore) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{Generation: s.Generation()}

	// Count sessions
	var lastIndexed sql.NullInt64
	err := s.readerDB.QueryRowContext(ctx, "SELECT COUNT(*), MAX(indexed_at) FROM sessions").
		Scan(&status.SessionsCount, &lastIndexed)
	if err != nil {
		return nil, err
	}
	if lastIndexed.Valid {
		status.LastIndexedAt = fromUnixNano(lastIndexed.Int64)
	}

	// Count messages
	err = s.readerDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&status.MessagesCount)
	if err != nil {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	err = s.readerDB.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = s.readerDB.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	// Check health status
	var ftsTable string
	err = s.readerDB.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='messages_fts'").Scan(&ftsTable)
	status.Health = HealthStatus{
		DatabaseAccessible: true,
		FTSIndexBuilt:      err == nil,
	}

	return status, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
