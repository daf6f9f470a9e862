//go:build sqlite_vec && !purego
// +build sqlite_vec,!purego

package storage

// This file is compiled when building with CGO and the sqlite_vec tag.
// The purego tag wins when both are set.
// It links the C SQLite library through go-sqlite3.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_vec,fts5" ./...
//
// The cgo build provides:
//   - The reference SQLite implementation
//   - FTS5 full-text search support (requires the fts5 tag)
//   - Faster bulk indexing of large session directories
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"

	// connParams are applied to every pooled connection
	connParams = "?_busy_timeout=5000&_foreign_keys=on"
)
