package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/sessionsearch-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrWriterBusy is returned when a writer is already held on the store
	ErrWriterBusy = errors.New("index writer already in use")
	// ErrWriterClosed is returned when a closed writer is used
	ErrWriterClosed = errors.New("index writer closed")
)

// Store is the index store as seen by the indexing pipeline
type Store interface {
	// Writer acquires the store's single writer. It fails with ErrWriterBusy
	// while another writer is held.
	Writer(ctx context.Context) (Writer, error)

	// ReloadReaders refreshes the read view so readers observe committed writes
	ReloadReaders(ctx context.Context) error

	// Location is the index directory; the skip-state file lives beside it
	Location() string
}

// Writer mutates the index. Deletes and inserts are buffered in a transaction
// that becomes durable and visible on Commit.
type Writer interface {
	// DeleteSession removes everything indexed under path. Deleting a path
	// that was never indexed is not an error.
	DeleteSession(ctx context.Context, path string) error

	// InsertSession indexes a session and its messages
	InsertSession(ctx context.Context, session *types.Session) error

	// Commit makes pending writes durable. Committing with nothing pending is a no-op.
	Commit() error

	// Close discards uncommitted writes and releases the writer
	Close() error
}

// SessionRecord is an indexed session row
type SessionRecord struct {
	ID           int64
	Path         string
	SessionID    string
	Project      string
	Summary      string
	StartedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
	IndexedAt    time.Time
}

// SearchFilters contains filters for narrowing search results
type SearchFilters struct {
	Project    string // Exact project (working directory) match
	PathPrefix string // Transcript path prefix
	Role       types.Role
}

// TextResult represents a result from full-text search
type TextResult struct {
	MessageID int64
	Role      types.Role
	Snippet   string
	BM25Score float64 // Normalized to (0, 1], higher is better
	Session   types.SessionInfo
}

// Status contains statistics about the index
type Status struct {
	SessionsCount int
	MessagesCount int
	IndexSizeMB   float64
	LastIndexedAt time.Time
	Generation    uint64
	Health        HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible bool
	FTSIndexBuilt      bool
}
