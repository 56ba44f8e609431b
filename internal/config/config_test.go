package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	def := DefaultConfig()
	if cfg.ContentMaxSizeKB != def.ContentMaxSizeKB {
		t.Errorf("ContentMaxSizeKB = %d, want %d", cfg.ContentMaxSizeKB, def.ContentMaxSizeKB)
	}
	if !cfg.FullTextSearchEnabled {
		t.Error("FullTextSearchEnabled should default to true")
	}
	if !cfg.ContentExtractionEnabled {
		t.Error("ContentExtractionEnabled should default to true")
	}
	if cfg.AutoScanOnStartup {
		t.Error("AutoScanOnStartup should default to false")
	}
	if cfg.ListenAddr() != "127.0.0.1:8765" {
		t.Errorf("ListenAddr() = %q, want %q", cfg.ListenAddr(), "127.0.0.1:8765")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if len(cfg.ScanRoots) != 0 {
		t.Errorf("ScanRoots = %v, want empty", cfg.ScanRoots)
	}
	if len(cfg.ExcludePatterns) != 3 {
		t.Errorf("ExcludePatterns = %v, want 3 defaults", cfg.ExcludePatterns)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{
		"scan_roots": ["/srv/docs", "/srv/docs", " /srv/notes "],
		"content_max_size_kb": 8,
		"full_text_search_enabled": false,
		"listen_port": 9000,
		"log_level": "DEBUG"
	}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.ScanRoots) != 2 || cfg.ScanRoots[0] != "/srv/docs" || cfg.ScanRoots[1] != "/srv/notes" {
		t.Errorf("ScanRoots = %v, want [/srv/docs /srv/notes]", cfg.ScanRoots)
	}
	if cfg.ContentMaxSizeKB != 8 {
		t.Errorf("ContentMaxSizeKB = %d, want 8", cfg.ContentMaxSizeKB)
	}
	if cfg.ContentMaxBytes() != 8*1024 {
		t.Errorf("ContentMaxBytes() = %d, want %d", cfg.ContentMaxBytes(), 8*1024)
	}
	if cfg.FullTextSearchEnabled {
		t.Error("FullTextSearchEnabled should be false")
	}
	if cfg.ListenPort != 9000 {
		t.Errorf("ListenPort = %d, want 9000", cfg.ListenPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	// Unset keys keep defaults
	if !cfg.ContentExtractionEnabled {
		t.Error("ContentExtractionEnabled should keep its default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"listen_port": 9000}`)

	t.Setenv("LIB_LISTEN_PORT", "9100")
	t.Setenv("LIB_FULL_TEXT_SEARCH_ENABLED", "false")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenPort != 9100 {
		t.Errorf("ListenPort = %d, want 9100 (env beats file)", cfg.ListenPort)
	}
	if cfg.FullTextSearchEnabled {
		t.Error("FullTextSearchEnabled should be false from env")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{not json}`)

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative size", `{"content_max_size_kb": -1}`},
		{"port out of range", `{"listen_port": 70000}`},
		{"unknown log level", `{"log_level": "chatty"}`},
		{"relative root", `{"scan_roots": ["docs"]}`},
		{"negative workers", `{"scan_workers": -2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			writeConfig(t, tmpDir, tt.body)
			if _, err := Load(tmpDir); err == nil {
				t.Errorf("Load() expected error for %s", tt.name)
			}
		})
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"disabled_tools": ["purge_deleted", "", "export_catalog"]}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "purge_deleted" {
		t.Errorf("DisabledTools[0] = %q, want %q", cfg.DisabledTools[0], "purge_deleted")
	}
}

func TestBaseDir_EnvOverride(t *testing.T) {
	t.Setenv("LIB_HOME", "/custom/lib")

	dir, err := BaseDir()
	if err != nil {
		t.Fatalf("BaseDir() error = %v", err)
	}
	if dir != "/custom/lib" {
		t.Errorf("BaseDir() = %q, want /custom/lib", dir)
	}
}

func TestCleanStringSlice(t *testing.T) {
	got := cleanStringSlice([]string{" a ", "b", "a", "", "  "})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("cleanStringSlice = %v, want [a b]", got)
	}
	if cleanStringSlice(nil) != nil {
		t.Error("cleanStringSlice(nil) should be nil")
	}
}
