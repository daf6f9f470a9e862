package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/sessionsearch-mcp/internal/config"
	"github.com/dshills/sessionsearch-mcp/internal/indexer"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvIndexDir, "")
	t.Setenv(config.EnvRoots, "")
	t.Setenv(config.EnvLogLevel, "")
	return home
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	isolateEnv(t)
	cfgFile := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
index_dir = "/from/file"
session_roots = ["/file/root"]
log_level = "warn"
`), 0600))

	cmd := rootCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--config", cfgFile,
		"--root", "/flag/a",
		"--root", "/flag/b,with comma",
	}))

	flags := &globalFlags{}
	flags.configPath, _ = cmd.Flags().GetString("config")
	flags.roots, _ = cmd.Flags().GetStringArray("root")

	cfg, err := loadConfig(cmd, flags)
	require.NoError(t, err)

	assert.Equal(t, "/from/file", cfg.IndexDir)
	assert.Equal(t, []string{"/flag/a", "/flag/b,with comma"}, cfg.SessionRoots)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfig_InvalidLogLevelFlag(t *testing.T) {
	isolateEnv(t)

	cmd := rootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--log-level", "loud"}))

	_, err := loadConfig(cmd, &globalFlags{logLevel: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

func TestReportFailures(t *testing.T) {
	tests := []struct {
		name  string
		stats *indexer.Statistics
		want  string
	}{
		{"nil stats", nil, ""},
		{"no failures", &indexer.Statistics{Indexed: 3, Total: 3}, ""},
		{
			name:  "one failure",
			stats: &indexer.Statistics{Total: 3, Failed: 1, FailedFiles: []string{"/s/a.jsonl: line 3: unexpected end of JSON input"}},
			want: "Warning: 1 of 3 sessions could not be parsed and was not indexed; it will be retried on the next run\n" +
				"  /s/a.jsonl: line 3: unexpected end of JSON input\n",
		},
		{
			name:  "more failures than samples",
			stats: &indexer.Statistics{Total: 40, Failed: 12, FailedFiles: []string{"/s/a.jsonl: bad", "/s/b.jsonl: bad"}},
			want: "Warning: 12 of 40 sessions could not be parsed and were not indexed; they will be retried on the next run\n" +
				"  /s/a.jsonl: bad\n  /s/b.jsonl: bad\n  ... and 10 more\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			reportFailures(&buf, tt.stats)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestRootFlagKeepsCommas(t *testing.T) {
	cmd := rootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--root", "/sessions/a,b"}))

	roots, err := cmd.Flags().GetStringArray("root")
	require.NoError(t, err)
	assert.Equal(t, []string{"/sessions/a,b"}, roots)
}

func TestVersionCommandSkipsConfig(t *testing.T) {
	// An unreadable config must not break version
	isolateEnv(t)
	t.Setenv(config.EnvConfig, filepath.Join(t.TempDir(), "missing-dir", "config.toml"))
	t.Setenv(config.EnvLogLevel, "nonsense")

	cmd := rootCmd()
	cmd.SetArgs([]string{"version"})
	assert.NoError(t, cmd.Execute())
}
