package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/lib/internal/config"
	"github.com/hpungsan/lib/internal/db"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// setupService returns a Service over a fresh catalog plus an empty directory
// to scan. mutate, when set, adjusts the config before the Service is built.
func setupService(t *testing.T, mutate func(*config.Config)) (*Service, string) {
	t.Helper()

	baseDir := t.TempDir()
	database, err := db.Init(baseDir)
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.ScanWorkers = 2
	if mutate != nil {
		mutate(cfg)
	}

	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks failed: %v", err)
	}
	return New(database, cfg, baseDir, zerolog.Nop()), root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.Chtimes(path, baseTime, baseTime); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
}

func intPtr(i int) *int {
	return &i
}
