package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/sessionsearch-mcp/internal/config"
	"github.com/dshills/sessionsearch-mcp/internal/indexer"
	"github.com/dshills/sessionsearch-mcp/internal/parser"
	"github.com/dshills/sessionsearch-mcp/internal/searcher"
	"github.com/dshills/sessionsearch-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "sessionsearch-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp         *server.MCPServer
	store       *storage.SQLiteStore
	runner      *indexer.Runner
	searcher    *searcher.Searcher
	roots       []string
	searchLimit int
}

// NewServer opens the index described by cfg and creates a server whose
// background runner keeps it fresh. The server owns the store.
func NewServer(cfg *config.Config) (*Server, error) {
	store, err := storage.Open(cfg.IndexDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	runner := indexer.NewRunner(store, parser.New(), indexer.RunnerConfig{
		Roots:          cfg.SessionRoots,
		Watch:          cfg.Watch,
		Debounce:       cfg.WatchDebounce,
		RescanInterval: cfg.RescanInterval,
	})

	s := &Server{
		mcp:         server.NewMCPServer(ServerName, ServerVersion),
		store:       store,
		runner:      runner,
		searcher:    searcher.NewSearcher(store),
		roots:       cfg.SessionRoots,
		searchLimit: cfg.SearchLimit,
	}

	// Register tools
	s.registerTools()

	return s, nil
}

// Serve speaks MCP over in/out while the runner indexes in the background.
// It returns when ctx is done or the client closes its input.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	defer func() { _ = s.store.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.runner.Run(gctx)
	})

	g.Go(func() error {
		// Client disconnect ends the runner too
		defer cancel()
		return server.NewStdioServer(s.mcp).Listen(gctx, in, out)
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("mcp server stopped")
	return nil
}

// Close stops the runner and releases the store, for servers that were
// never served. Serve closes the store itself.
func (s *Server) Close() error {
	s.runner.Stop()
	return s.store.Close()
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchSessionsTool(), s.handleSearchSessions)
	s.mcp.AddTool(indexSessionsTool(), s.handleIndexSessions)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
