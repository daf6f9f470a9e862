package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/sessionsearch-mcp/internal/config"
	"github.com/dshills/sessionsearch-mcp/internal/indexer"
	"github.com/dshills/sessionsearch-mcp/internal/mcp"
	"github.com/dshills/sessionsearch-mcp/internal/parser"
	"github.com/dshills/sessionsearch-mcp/internal/searcher"
	"github.com/dshills/sessionsearch-mcp/internal/storage"
	"github.com/dshills/sessionsearch-mcp/pkg/types"
)

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openFresh opens the index and brings it up to date, printing indexing
// progress to stderr
func openFresh(ctx context.Context, cfg *config.Config) (*storage.SQLiteStore, error) {
	store, err := storage.Open(cfg.IndexDir)
	if err != nil {
		return nil, err
	}

	stats, err := indexer.EnsureFresh(ctx, store, parser.New(), cfg.SessionRoots, os.Stderr)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	reportFailures(os.Stderr, stats)
	return store, nil
}

func searchCmd(cfg *config.Config) *cobra.Command {
	var (
		limit      int
		project    string
		pathPrefix string
		role       string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "search [query...]",
		Short: "Search session transcripts, indexing new or changed files first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if r := types.Role(role); r != "" && r != types.RoleUser && r != types.RoleAssistant {
				return fmt.Errorf("invalid role %q, must be user or assistant", role)
			}

			ctx, cancel := signalContext()
			defer cancel()

			store, err := openFresh(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if limit == 0 {
				limit = cfg.SearchLimit
			}

			resp, err := searcher.NewSearcher(store).Search(ctx, searcher.SearchRequest{
				Query: strings.Join(args, " "),
				Limit: limit,
				Filters: &storage.SearchFilters{
					Project:    project,
					PathPrefix: pathPrefix,
					Role:       types.Role(role),
				},
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(os.Stdout, resp.Results)
			}
			printResults(os.Stdout, resp.Results)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum results (default from config)")
	cmd.Flags().StringVar(&project, "project", "", "only sessions run in this working directory")
	cmd.Flags().StringVar(&pathPrefix, "path-prefix", "", "only transcripts under this path")
	cmd.Flags().StringVar(&role, "role", "", "only messages from user or assistant")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func indexCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Index new or changed session transcripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			store, err := storage.Open(cfg.IndexDir)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := indexer.EnsureFresh(ctx, store, parser.New(), cfg.SessionRoots, os.Stderr)
			if err != nil {
				return err
			}
			if stats == nil {
				fmt.Fprintln(os.Stderr, "Index is up to date.")
				return nil
			}
			reportFailures(os.Stderr, stats)
			return nil
		},
	}
}

func serveCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio, indexing in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			server, err := mcp.NewServer(cfg)
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			// stdout carries the protocol from here on
			slog.Info("sessionsearch MCP server starting",
				"version", version,
				"driver", storage.DriverName,
				"index", cfg.IndexDir,
				"roots", cfg.SessionRoots,
				"watch", cfg.Watch)
			return server.Serve(ctx, os.Stdin, os.Stdout)
		},
	}
}

func statusCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.Open(cfg.IndexDir)
			if err != nil {
				return err
			}
			defer store.Close()

			status, err := store.GetStatus(cmd.Context())
			if err != nil {
				return err
			}

			lastIndexed := "never"
			if !status.LastIndexedAt.IsZero() {
				lastIndexed = status.LastIndexedAt.Local().Format(time.RFC3339)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Index:\t%s\n", store.Location())
			fmt.Fprintf(w, "Roots:\t%s\n", strings.Join(cfg.SessionRoots, ", "))
			fmt.Fprintf(w, "Sessions:\t%d\n", status.SessionsCount)
			fmt.Fprintf(w, "Messages:\t%d\n", status.MessagesCount)
			fmt.Fprintf(w, "Size:\t%.2f MB\n", status.IndexSizeMB)
			fmt.Fprintf(w, "Last indexed:\t%s\n", lastIndexed)
			fmt.Fprintf(w, "FTS index:\t%v\n", status.Health.FTSIndexBuilt)
			return w.Flush()
		},
	}
}

func pruneCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove indexed sessions whose transcript files no longer exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			store, err := storage.Open(cfg.IndexDir)
			if err != nil {
				return err
			}
			defer store.Close()

			pruned, err := indexer.Prune(ctx, store)
			if err != nil {
				return err
			}
			for _, p := range pruned {
				fmt.Fprintf(os.Stdout, "%s\n", p)
			}
			fmt.Fprintf(os.Stderr, "Pruned %d %s.\n", len(pruned), plural(len(pruned), "session", "sessions"))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		// No config needed
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sessionsearch %s\n", version)
			fmt.Printf("Build Time: %s\n", buildTime)
			fmt.Printf("Build Mode: %s\n", storage.BuildMode)
			fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		},
	}
}

// printResults renders results for a terminal
func printResults(w io.Writer, results []types.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matches.")
		return
	}
	for _, r := range results {
		fmt.Fprintf(w, "%d. %s (%.2f)\n", r.Rank, r.Session.Path, r.RelevanceScore)
		if r.Session.Project != "" {
			fmt.Fprintf(w, "   project: %s\n", r.Session.Project)
		}
		if !r.Session.UpdatedAt.IsZero() {
			fmt.Fprintf(w, "   updated: %s\n", r.Session.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(w, "   %s: %s\n\n", r.Role, oneLine(r.Snippet))
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
