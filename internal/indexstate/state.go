// Package indexstate persists which session files have been indexed and at
// what modification time, so unchanged files are skipped on the next run.
package indexstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	// FileName is the name of the state file, stored beside the index directory
	FileName = "state.json"

	// CurrentVersion is the on-disk format version
	CurrentVersion = 1
)

// epoch is the fallback modification time for files whose metadata cannot be read
var epoch = time.Unix(0, 0)

// Entry records the freshness of one indexed file
type Entry struct {
	ModTimeNs int64 `json:"mtime_ns"`   // Modification time when indexed
	IndexedAt int64 `json:"indexed_at"` // Unix seconds when indexed
}

// State maps file paths to their last indexed modification time.
// A State is owned by a single driver and is not safe for concurrent use.
type State struct {
	Version int              `json:"version"`
	Files   map[string]Entry `json:"files"`
}

// New returns an empty State
func New() *State {
	return &State{
		Version: CurrentVersion,
		Files:   make(map[string]Entry),
	}
}

// PathFor returns the state file location for an index directory: the
// index's parent directory joined with FileName.
func PathFor(indexDir string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(indexDir)), FileName)
}

// ModTime returns the modification time of path, or the Unix epoch when it
// cannot be read. It never fails.
func ModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return epoch
	}
	return info.ModTime()
}

// Load reads the state file at path. A missing or corrupt file yields an
// empty State, which means every file is indexed again.
func Load(path string) *State {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("index state unreadable, starting fresh", "path", path, "error", err)
		}
		return New()
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("index state corrupt, starting fresh", "path", path, "error", err)
		return New()
	}
	if st.Version != CurrentVersion {
		slog.Warn("index state version mismatch, starting fresh", "path", path, "version", st.Version)
		return New()
	}
	if st.Files == nil {
		st.Files = make(map[string]Entry)
	}
	return &st
}

// Save writes the state to path atomically: a temp file in the same
// directory is synced and renamed over the destination.
func (s *State) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode index state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write index state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync index state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close index state: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace index state: %w", err)
	}

	// Best effort: persist the rename itself
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// NeedsReindex reports whether path has never been indexed or has been
// modified since it was.
func (s *State) NeedsReindex(path string) bool {
	entry, ok := s.Files[path]
	if !ok {
		return true
	}
	return ModTime(path).UnixNano() > entry.ModTimeNs
}

// MarkIndexed records that path was indexed at modTime. Callers pass the
// mtime read before the file's content, so a write that lands during
// indexing leaves the file eligible for the next run.
func (s *State) MarkIndexed(path string, modTime time.Time) {
	s.Files[path] = Entry{
		ModTimeNs: modTime.UnixNano(),
		IndexedAt: time.Now().Unix(),
	}
}

// Forget drops path from the state
func (s *State) Forget(path string) {
	delete(s.Files, path)
}

// Len returns the number of tracked files
func (s *State) Len() int {
	return len(s.Files)
}

// Paths returns the tracked file paths in lexical order
func (s *State) Paths() []string {
	paths := make([]string, 0, len(s.Files))
	for p := range s.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
