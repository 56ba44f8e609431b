package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LIB_SCAN_ROOTS.
const EnvPrefix = "LIB"

// Config holds application configuration.
// It is loaded once at startup and treated as read-only afterwards.
type Config struct {
	// ScanRoots are the directories the scanner is responsible for.
	ScanRoots []string `mapstructure:"scan_roots" json:"scan_roots"`

	// AutoScanOnStartup scans every root before the server starts serving.
	AutoScanOnStartup bool `mapstructure:"auto_scan_on_startup" json:"auto_scan_on_startup"`

	// ContentExtractionEnabled controls snippet extraction for text-like files.
	ContentExtractionEnabled bool `mapstructure:"content_extraction_enabled" json:"content_extraction_enabled"`

	// ContentMaxSizeKB is the size ceiling for snippet extraction.
	ContentMaxSizeKB int `mapstructure:"content_max_size_kb" json:"content_max_size_kb"`

	// FullTextSearchEnabled toggles the full-text search operation.
	FullTextSearchEnabled bool `mapstructure:"full_text_search_enabled" json:"full_text_search_enabled"`

	ListenHost string `mapstructure:"listen_host" json:"listen_host"`
	ListenPort int    `mapstructure:"listen_port" json:"listen_port"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level" json:"log_level"`

	// ExcludePatterns are gitignore-style patterns skipped during scans.
	ExcludePatterns []string `mapstructure:"exclude_patterns" json:"exclude_patterns"`

	// ScanWorkers bounds concurrent hashing during a scan. 0 means NumCPU.
	ScanWorkers int `mapstructure:"scan_workers" json:"scan_workers"`

	// DBBusyTimeoutMS is how long a write waits for the lock before STORAGE_BUSY.
	DBBusyTimeoutMS int `mapstructure:"db_busy_timeout_ms" json:"db_busy_timeout_ms"`

	// DBCacheSizeKB sizes SQLite's page cache.
	DBCacheSizeKB int `mapstructure:"db_cache_size_kb" json:"db_cache_size_kb"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `mapstructure:"db_max_open_conns" json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `mapstructure:"db_max_idle_conns" json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `mapstructure:"disabled_tools" json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ScanRoots:                []string{},
		ContentExtractionEnabled: true,
		ContentMaxSizeKB:         50,
		FullTextSearchEnabled:    true,
		ListenHost:               "127.0.0.1",
		ListenPort:               8765,
		LogLevel:                 "info",
		ExcludePatterns:          []string{".git/", "node_modules/", ".DS_Store"},
		DBBusyTimeoutMS:          5000,
		DBCacheSizeKB:            64 * 1024,
	}
}

// ContentMaxBytes returns the extraction ceiling in bytes.
func (c *Config) ContentMaxBytes() int64 {
	return int64(c.ContentMaxSizeKB) * 1024
}

// ListenAddr returns host:port for network listeners.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
}

// BaseDir returns the data directory: $LIB_HOME, or ~/.lib.
func BaseDir() (string, error) {
	if dir := os.Getenv("LIB_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".lib"), nil
}

// Load loads configuration from baseDir/config.json and LIB_* environment variables.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.lib.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

func loadFile(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.ScanRoots = cleanStringSlice(cfg.ScanRoots)
	cfg.ExcludePatterns = cleanStringSlice(cfg.ExcludePatterns)
	cfg.DisabledTools = cleanStringSlice(cfg.DisabledTools)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("scan_roots", d.ScanRoots)
	v.SetDefault("auto_scan_on_startup", d.AutoScanOnStartup)
	v.SetDefault("content_extraction_enabled", d.ContentExtractionEnabled)
	v.SetDefault("content_max_size_kb", d.ContentMaxSizeKB)
	v.SetDefault("full_text_search_enabled", d.FullTextSearchEnabled)
	v.SetDefault("listen_host", d.ListenHost)
	v.SetDefault("listen_port", d.ListenPort)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("exclude_patterns", d.ExcludePatterns)
	v.SetDefault("scan_workers", d.ScanWorkers)
	v.SetDefault("db_busy_timeout_ms", d.DBBusyTimeoutMS)
	v.SetDefault("db_cache_size_kb", d.DBCacheSizeKB)
	v.SetDefault("db_max_open_conns", d.DBMaxOpenConns)
	v.SetDefault("db_max_idle_conns", d.DBMaxIdleConns)
	v.SetDefault("disabled_tools", []string{})
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.ContentMaxSizeKB < 0 {
		return fmt.Errorf("content_max_size_kb must be non-negative, got %d", c.ContentMaxSizeKB)
	}
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen_port out of range: %d", c.ListenPort)
	}
	if c.ScanWorkers < 0 {
		return fmt.Errorf("scan_workers must be non-negative, got %d", c.ScanWorkers)
	}
	if c.DBBusyTimeoutMS < 0 {
		return fmt.Errorf("db_busy_timeout_ms must be non-negative, got %d", c.DBBusyTimeoutMS)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	for _, root := range c.ScanRoots {
		if !filepath.IsAbs(root) {
			return fmt.Errorf("scan root must be absolute: %s", root)
		}
	}
	return nil
}

// cleanStringSlice trims whitespace and removes blanks and duplicates.
func cleanStringSlice(in []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
