package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dshills/sessionsearch-mcp/internal/indexstate"
	"github.com/dshills/sessionsearch-mcp/internal/storage"
	"github.com/dshills/sessionsearch-mcp/pkg/types"
)

const (
	// ProgressInterval is how many processed files separate progress reports
	ProgressInterval = 50

	// CommitInterval is how many processed files separate intermediate commits
	CommitInterval = 200

	// MaxFailedSamples bounds Statistics.FailedFiles
	MaxFailedSamples = 10
)

// ErrIndexing is returned when an indexing pass is already running
var ErrIndexing = errors.New("indexing already in progress")

// Parser decodes one session file
type Parser interface {
	ParseFile(path string) (*types.Session, error)
}

// Discoverer enumerates candidate session files under a set of roots
type Discoverer interface {
	Discover(roots []string) []string
}

// Source finds session files and parses them
type Source interface {
	Parser
	Discoverer
}

// SkipState tracks which files are already indexed at their current version
type SkipState interface {
	NeedsReindex(path string) bool
	MarkIndexed(path string, modTime time.Time)
}

// Options carries the optional callbacks of an indexing run. Callbacks run
// synchronously on the indexing goroutine, in order.
type Options struct {
	// OnProgress is called every ProgressInterval files and after the last file
	OnProgress func(types.Progress)

	// OnCheckpoint is called after each intermediate commit, once the
	// committed content is durable
	OnCheckpoint func()
}

// Statistics contains statistics about an indexing run
type Statistics struct {
	Indexed     int      // Files parsed and marked indexed
	Empty       int      // Indexed files that had no messages
	Failed      int      // Files that failed to parse, left for a later run
	Total       int      // Files handed to the run
	Commits     int      // Commits issued, including the final one
	FailedFiles []string // First MaxFailedSamples failures as "path: error"
	Duration    time.Duration
}

// DiscoverAndSort returns every session file under roots, most recently
// modified first. Files whose modification time cannot be read sort last;
// equal times are ordered by path.
func DiscoverAndSort(d Discoverer, roots []string) []string {
	files := d.Discover(roots)

	mtimes := make(map[string]int64, len(files))
	for _, f := range files {
		mtimes[f] = indexstate.ModTime(f).UnixNano()
	}

	sort.SliceStable(files, func(i, j int) bool {
		mi, mj := mtimes[files[i]], mtimes[files[j]]
		if mi != mj {
			return mi > mj
		}
		return files[i] < files[j]
	})
	return files
}

// Pending returns the discovered files that st reports as needing reindex,
// in DiscoverAndSort order
func Pending(d Discoverer, st SkipState, roots []string) []string {
	files := DiscoverAndSort(d, roots)
	pending := make([]string, 0, len(files))
	for _, f := range files {
		if st.NeedsReindex(f) {
			pending = append(pending, f)
		}
	}
	return pending
}

// IndexFiles indexes files in order through w. Each file's previous content
// is deleted before it is parsed, so a file that now fails to parse drops out
// of the index until a later run succeeds. Parse failures are counted and
// skipped; writer failures abort the run. Content is committed every
// CommitInterval files and once more at the end. st is only read and
// marked; persisting it is the caller's job.
func IndexFiles(ctx context.Context, w storage.Writer, p Parser, st SkipState, files []string, opts Options) (*Statistics, error) {
	startTime := time.Now()
	total := len(files)
	stats := &Statistics{
		Total:       total,
		FailedFiles: make([]string, 0),
	}

	for i, filePath := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Read before the content so a concurrent append is not marked as seen
		modTime := indexstate.ModTime(filePath)

		if err := w.DeleteSession(ctx, filePath); err != nil {
			return nil, fmt.Errorf("failed to delete %s: %w", filePath, err)
		}

		session, err := p.ParseFile(filePath)
		if err != nil {
			// Likely still being written; not marked, so it is retried next run
			slog.Debug("skipping unparseable session file", "path", filePath, "error", err)
			stats.Failed++
			if len(stats.FailedFiles) < MaxFailedSamples {
				stats.FailedFiles = append(stats.FailedFiles, fmt.Sprintf("%s: %v", filePath, err))
			}
		} else {
			if session.IsEmpty() {
				stats.Empty++
			} else if err := w.InsertSession(ctx, session); err != nil {
				return nil, fmt.Errorf("failed to insert %s: %w", filePath, err)
			}
			st.MarkIndexed(filePath, modTime)
			stats.Indexed++
		}

		processed := i + 1
		if opts.OnProgress != nil && (processed%ProgressInterval == 0 || processed == total) {
			opts.OnProgress(types.Progress{Indexed: processed, Total: total})
		}

		if processed%CommitInterval == 0 {
			if err := w.Commit(); err != nil {
				return nil, fmt.Errorf("failed to commit after %d files: %w", processed, err)
			}
			stats.Commits++
			if opts.OnCheckpoint != nil {
				opts.OnCheckpoint()
			}
		}
	}

	// Final commit
	if err := w.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	stats.Commits++

	stats.Duration = time.Since(startTime)
	return stats, nil
}
