// Package ops is the operation surface: it validates caller input, delegates to
// the scanner and query engine, and shapes the responses every transport returns.
package ops

import (
	"database/sql"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hpungsan/lib/internal/config"
	"github.com/hpungsan/lib/internal/query"
	"github.com/hpungsan/lib/internal/scanner"
)

// Service carries the dependencies shared by every operation.
// It is safe for concurrent use; scans should still be triggered one at a time.
type Service struct {
	db      *sql.DB
	cfg     *config.Config
	baseDir string
	logger  zerolog.Logger
	query   *query.Engine
	scanner *scanner.Scanner
}

// New creates a Service. baseDir is the data directory holding lib.db and exports/.
// A nil cfg uses the defaults.
func New(database *sql.DB, cfg *config.Config, baseDir string, logger zerolog.Logger) *Service {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Service{
		db:      database,
		cfg:     cfg,
		baseDir: baseDir,
		logger:  logger.With().Str("component", "ops").Logger(),
		query:   query.New(database),
		scanner: scanner.New(database, cfg, logger),
	}
}

// Config returns the configuration the Service was built with.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// ExportsDir returns the only directory exports may be written to.
func (s *Service) ExportsDir() string {
	return filepath.Join(s.baseDir, "exports")
}

// cleanString trims whitespace from optional string input.
func cleanString(s string) string {
	return strings.TrimSpace(s)
}
