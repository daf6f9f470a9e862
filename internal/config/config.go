// Package config loads sessionsearch settings from a TOML file and the
// environment.
//
// Precedence, lowest first: built-in defaults, the config file, environment
// variables, then whatever command-line flags the caller applies on top.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variables read by ApplyEnvOverrides
const (
	EnvConfig   = "SESSIONSEARCH_CONFIG"
	EnvIndexDir = "SESSIONSEARCH_INDEX_DIR"
	EnvRoots    = "SESSIONSEARCH_ROOTS" // os.PathListSeparator separated
	EnvLogLevel = "SESSIONSEARCH_LOG_LEVEL"
)

const (
	DefaultWatchDebounce  = 1500 * time.Millisecond
	DefaultRescanInterval = 5 * time.Minute
	DefaultSearchLimit    = 10
	DefaultLogLevel       = "info"
)

// Config holds every setting the CLI and server read
type Config struct {
	IndexDir       string        `toml:"index_dir"`
	SessionRoots   []string      `toml:"session_roots"`
	LogLevel       string        `toml:"log_level"`
	Watch          bool          `toml:"watch"`
	WatchDebounce  time.Duration `toml:"watch_debounce"`
	RescanInterval time.Duration `toml:"rescan_interval"`
	SearchLimit    int           `toml:"search_limit"`
}

// ValidationError describes one invalid setting
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Default returns the built-in configuration
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		IndexDir:       filepath.Join(home, ".sessionsearch", "index"),
		SessionRoots:   []string{filepath.Join(home, ".claude", "projects")},
		LogLevel:       DefaultLogLevel,
		Watch:          true,
		WatchDebounce:  DefaultWatchDebounce,
		RescanInterval: DefaultRescanInterval,
		SearchLimit:    DefaultSearchLimit,
	}
}

// DefaultPath is where Load looks when SESSIONSEARCH_CONFIG is unset
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".sessionsearch", "config.toml"), nil
}

// Load reads the config file named by SESSIONSEARCH_CONFIG, or the default
// path, applies environment overrides and validates the result. A missing
// file is not an error.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfig)
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return LoadFromPath(path)
}

// LoadFromPath is Load with an explicit file path
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if err := LoadTOML(cfg, path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes path over cfg. Keys absent from the file keep their
// current values.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return err
		}
		return fmt.Errorf("failed to decode TOML file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		slog.Warn("unknown config keys ignored", "path", path, "keys", keys)
	}
	return nil
}

// ApplyEnvOverrides overlays SESSIONSEARCH_* environment variables
func (c *Config) ApplyEnvOverrides() {
	if dir := os.Getenv(EnvIndexDir); dir != "" {
		c.IndexDir = dir
	}

	if roots := os.Getenv(EnvRoots); roots != "" {
		c.SessionRoots = nil
		for _, r := range filepath.SplitList(roots) {
			if r = strings.TrimSpace(r); r != "" {
				c.SessionRoots = append(c.SessionRoots, r)
			}
		}
	}

	if level := os.Getenv(EnvLogLevel); level != "" {
		c.LogLevel = level
	}
}

// Normalize expands ~ and cleans paths
func (c *Config) Normalize() {
	c.IndexDir = ExpandPath(c.IndexDir)
	for i, r := range c.SessionRoots {
		c.SessionRoots[i] = ExpandPath(r)
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

// Validate returns ValidateErrors listing every invalid setting
func (c *Config) Validate() error {
	var errs ValidateErrors

	if strings.TrimSpace(c.IndexDir) == "" {
		errs = append(errs, ValidationError{Field: "index_dir", Message: "must not be empty"})
	}

	if len(c.SessionRoots) == 0 {
		errs = append(errs, ValidationError{Field: "session_roots", Message: "at least one root is required"})
	}
	for _, r := range c.SessionRoots {
		if strings.TrimSpace(r) == "" {
			errs = append(errs, ValidationError{Field: "session_roots", Message: "roots must not be empty"})
			break
		}
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, ValidationError{Field: "log_level", Message: err.Error()})
	}

	if c.WatchDebounce <= 0 {
		errs = append(errs, ValidationError{Field: "watch_debounce", Message: "must be positive"})
	}

	if c.RescanInterval < 0 {
		errs = append(errs, ValidationError{Field: "rescan_interval", Message: "must not be negative"})
	}

	if c.SearchLimit <= 0 || c.SearchLimit > 100 {
		errs = append(errs, ValidationError{
			Field:   "search_limit",
			Message: fmt.Sprintf("%d out of range, must be 1-100", c.SearchLimit),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ParseLevel maps a log level name to its slog level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q, must be one of: debug, info, warn, error", name)
	}
}

// ExpandPath replaces a leading ~ with the home directory and resolves the
// result against the working directory. Indexed files are keyed by path, so
// every root must be absolute for a file to have one identity.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
