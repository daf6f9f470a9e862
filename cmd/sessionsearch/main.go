package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/sessionsearch-mcp/internal/config"
	"github.com/dshills/sessionsearch-mcp/internal/indexer"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	indexDir   string
	roots      []string
	logLevel   string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:           "sessionsearch",
		Short:         "Full-text search over session transcripts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			*cfg = *loaded
			return setupLogging(os.Stderr, cfg.LogLevel)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default $SESSIONSEARCH_CONFIG or ~/.sessionsearch/config.toml)")
	pf.StringVar(&flags.indexDir, "index-dir", "", "index directory")
	pf.StringArrayVar(&flags.roots, "root", nil, "session transcript root (repeatable)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(searchCmd(cfg))
	cmd.AddCommand(indexCmd(cfg))
	cmd.AddCommand(serveCmd(cfg))
	cmd.AddCommand(statusCmd(cfg))
	cmd.AddCommand(pruneCmd(cfg))
	cmd.AddCommand(versionCmd())
	return cmd
}

// loadConfig resolves the file and environment config, then applies any
// flags the user set explicitly
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFromPath(flags.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	pf := cmd.Flags()
	if pf.Changed("index-dir") {
		cfg.IndexDir = flags.indexDir
	}
	if pf.Changed("root") {
		cfg.SessionRoots = flags.roots
	}
	if pf.Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setupLogging installs the default slog logger. stdout is reserved for
// results and the MCP protocol, so logs go to w.
func setupLogging(w io.Writer, level string) error {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return nil
}

// reportFailures prints a one-line summary of files that failed to parse,
// followed by the sampled paths. The count is given against the run's total,
// which is what the completion line reports.
func reportFailures(w io.Writer, stats *indexer.Statistics) {
	if stats == nil || stats.Failed == 0 {
		return
	}
	fmt.Fprintf(w, "Warning: %d of %d %s could not be parsed and %s not indexed; %s retried on the next run\n",
		stats.Failed, stats.Total, plural(stats.Total, "session", "sessions"),
		plural(stats.Failed, "was", "were"), plural(stats.Failed, "it will be", "they will be"))
	for _, f := range stats.FailedFiles {
		fmt.Fprintf(w, "  %s\n", f)
	}
	if more := stats.Failed - len(stats.FailedFiles); more > 0 {
		fmt.Fprintf(w, "  ... and %d more\n", more)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
