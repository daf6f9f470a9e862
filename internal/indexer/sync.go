package indexer

import (
	"context"
	"fmt"
	"io"

	"github.com/dshills/sessionsearch-mcp/internal/indexstate"
	"github.com/dshills/sessionsearch-mcp/internal/storage"
	"github.com/dshills/sessionsearch-mcp/pkg/types"
)

// EnsureFresh brings the index up to date before a one-shot query. New and
// modified session files are indexed synchronously with progress written to
// out. When nothing needs indexing it returns (nil, nil) without touching
// the store or writing anything.
func EnsureFresh(ctx context.Context, store storage.Store, source Source, roots []string, out io.Writer) (*Statistics, error) {
	statePath := indexstate.PathFor(store.Location())
	state := indexstate.Load(statePath)

	toIndex := Pending(source, state, roots)
	total := len(toIndex)
	if total == 0 {
		return nil, nil
	}

	_, _ = fmt.Fprintf(out, "Indexing %d %s...\n", total, plural(total))

	w, err := store.Writer(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire index writer: %w", err)
	}
	defer func() { _ = w.Close() }()

	stats, err := IndexFiles(ctx, w, source, state, toIndex, Options{
		OnProgress: func(p types.Progress) {
			_, _ = fmt.Fprintf(out, "\rIndexing %d/%d...", p.Indexed, p.Total)
		},
	})
	if err != nil {
		return nil, err
	}

	if err := state.Save(statePath); err != nil {
		return nil, fmt.Errorf("failed to save index state: %w", err)
	}

	_, _ = fmt.Fprintf(out, "\rIndexed %d %s.    \n", total, plural(total))

	if err := store.ReloadReaders(ctx); err != nil {
		return nil, err
	}

	return stats, nil
}

func plural(n int) string {
	if n == 1 {
		return "session"
	}
	return "sessions"
}
