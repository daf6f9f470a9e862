package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"

	"github.com/dshills/sessionsearch-mcp/internal/indexstate"
	"github.com/dshills/sessionsearch-mcp/internal/storage"
)

// Catalog is a Store that can list what it has indexed
type Catalog interface {
	storage.Store
	ListSessionPaths(ctx context.Context) ([]string, error)
}

// Prune removes session files that no longer exist on disk from both the
// index and the skip-state. It returns the pruned paths in lexical order.
func Prune(ctx context.Context, store Catalog) ([]string, error) {
	statePath := indexstate.PathFor(store.Location())
	state := indexstate.Load(statePath)

	indexed, err := store.ListSessionPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed sessions: %w", err)
	}

	candidates := make(map[string]struct{}, len(indexed)+state.Len())
	for _, p := range indexed {
		candidates[p] = struct{}{}
	}
	for _, p := range state.Paths() {
		candidates[p] = struct{}{}
	}

	var gone []string
	for p := range candidates {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			gone = append(gone, p)
		}
	}
	if len(gone) == 0 {
		return nil, nil
	}
	sort.Strings(gone)

	w, err := store.Writer(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire index writer: %w", err)
	}
	defer func() { _ = w.Close() }()

	for _, p := range gone {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := w.DeleteSession(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to delete %s: %w", p, err)
		}
		state.Forget(p)
		slog.Debug("pruned session", "path", p)
	}

	if err := w.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	if err := state.Save(statePath); err != nil {
		return nil, fmt.Errorf("failed to save index state: %w", err)
	}
	if err := store.ReloadReaders(ctx); err != nil {
		return nil, err
	}

	return gone, nil
}
