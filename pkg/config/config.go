// Package config handles loading and saving codeviz configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/codeviz/config.yaml
//   - State:   ~/.local/state/codeviz/ (matrix database, logs)
//
// Values from the file can be overridden by environment variables, which
// may come from a .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/codeviz/pkg/selection"
)

const appName = "codeviz"

// Matrix sources for the backend server.
const (
	SourceAnalyzer = "analyzer"
	SourceDir      = "dir"
)

// BackendConfig points the viewer at a backend.
type BackendConfig struct {
	URL     string        `yaml:"url,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// UIConfig holds viewer preference settings.
type UIConfig struct {
	DefaultCategory  string `yaml:"default_category,omitempty"`  // comments, logs
	DefaultExtension string `yaml:"default_extension,omitempty"` // *, py, java
	ExportDir        string `yaml:"export_dir,omitempty"`        // Where 'e' writes SVGs
}

// ServerConfig configures cvserve.
type ServerConfig struct {
	Addr        string        `yaml:"addr,omitempty"`
	Source      string        `yaml:"source,omitempty"`      // analyzer or dir
	SourceRoot  string        `yaml:"source_root,omitempty"` // Tree walked by the analyzer
	DataDir     string        `yaml:"data_dir,omitempty"`    // <data_dir>/<category>/<ext>.json in dir mode
	DBPath      string        `yaml:"db_path,omitempty"`     // SQLite file under StateDir by default; empty disables persistence
	CORSOrigins []string      `yaml:"cors_origins,omitempty"`
	LogFile     string        `yaml:"log_file,omitempty"`
	LogLevel    string        `yaml:"log_level,omitempty"`
	Watch       bool          `yaml:"watch,omitempty"`
	Debounce    time.Duration `yaml:"debounce,omitempty"`
}

// DebugConfig holds debug logging settings.
type DebugConfig struct {
	LogFile string `yaml:"log_file,omitempty"`
}

// Config is the top-level configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend,omitempty"`
	UI      UIConfig      `yaml:"ui,omitempty"`
	Server  ServerConfig  `yaml:"server,omitempty"`
	Debug   DebugConfig   `yaml:"debug,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			URL:     "http://localhost:3001",
			Timeout: 2 * time.Minute,
		},
		UI: UIConfig{
			DefaultCategory:  string(selection.CategoryComments),
			DefaultExtension: string(selection.ExtensionAll),
			ExportDir:        ".",
		},
		Server: ServerConfig{
			Addr:        ":3001",
			Source:      SourceAnalyzer,
			SourceRoot:  ".",
			DataDir:     "data",
			DBPath:      DefaultDBPath(),
			CORSOrigins: []string{"*"},
			LogLevel:    "info",
			Watch:       true,
			Debounce:    500 * time.Millisecond,
		},
	}
}

// ConfigDir returns the XDG config directory for codeviz.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName)
}

// StateDir returns the XDG state directory for codeviz.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", appName)
}

// DefaultDBPath is the matrix database under StateDir, or "" when no
// state directory can be determined.
func DefaultDBPath() string {
	dir := StateDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "matrix.db")
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path.
// Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	cfg.expandPaths()
	return cfg, nil
}

func (c *Config) expandPaths() {
	c.UI.ExportDir = expandHome(c.UI.ExportDir)
	c.Server.SourceRoot = expandHome(c.Server.SourceRoot)
	c.Server.DataDir = expandHome(c.Server.DataDir)
	c.Server.DBPath = expandHome(c.Server.DBPath)
	c.Server.LogFile = expandHome(c.Server.LogFile)
	c.Debug.LogFile = expandHome(c.Debug.LogFile)
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files (default
// ".env") into the process environment. Missing files are ignored and
// variables already set are not overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides config values from CV_* environment variables.
func (c Config) ApplyEnv() (Config, error) {
	c.Backend.URL = getEnvOrDefault("CV_BACKEND_URL", c.Backend.URL)
	if raw := os.Getenv("CV_BACKEND_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return c, fmt.Errorf("CV_BACKEND_TIMEOUT: %w", err)
		}
		c.Backend.Timeout = d
	}
	c.UI.DefaultCategory = getEnvOrDefault("CV_CATEGORY", c.UI.DefaultCategory)
	c.UI.DefaultExtension = getEnvOrDefault("CV_EXTENSION", c.UI.DefaultExtension)
	c.Server.Addr = getEnvOrDefault("CV_SERVER_ADDR", c.Server.Addr)
	c.Server.Source = getEnvOrDefault("CV_SOURCE", c.Server.Source)
	c.Server.SourceRoot = getEnvOrDefault("CV_SOURCE_ROOT", c.Server.SourceRoot)
	c.Server.DataDir = getEnvOrDefault("CV_DATA_DIR", c.Server.DataDir)
	c.Server.DBPath = getEnvOrDefault("CV_DB_PATH", c.Server.DBPath)
	c.Server.LogFile = getEnvOrDefault("CV_LOG_FILE", c.Server.LogFile)
	c.Server.LogLevel = getEnvOrDefault("CV_LOG_LEVEL", c.Server.LogLevel)
	if raw := os.Getenv("CV_CORS_ORIGINS"); raw != "" {
		c.Server.CORSOrigins = splitList(raw)
	}
	if raw := os.Getenv("CV_WATCH"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return c, fmt.Errorf("CV_WATCH: %w", err)
		}
		c.Server.Watch = b
	}
	c.Debug.LogFile = getEnvOrDefault("CV_DEBUG_FILE", c.Debug.LogFile)
	c.expandPaths()
	return c, nil
}

// Selection returns the configured initial selection.
func (c Config) Selection() (selection.Selection, error) {
	cat, err := selection.ParseCategory(c.UI.DefaultCategory)
	if err != nil {
		return selection.Selection{}, err
	}
	ext, err := selection.ParseExtension(c.UI.DefaultExtension)
	if err != nil {
		return selection.Selection{}, err
	}
	return selection.Selection{Category: cat, Extension: ext}, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c Config) Validate() error {
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive, got %s", c.Backend.Timeout)
	}
	if _, err := c.Selection(); err != nil {
		return fmt.Errorf("ui: %w", err)
	}
	switch c.Server.Source {
	case SourceAnalyzer, SourceDir:
	default:
		return fmt.Errorf("server.source must be %q or %q, got %q", SourceAnalyzer, SourceDir, c.Server.Source)
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
