package ops

import (
	"context"

	"github.com/dustin/go-humanize"

	"github.com/hpungsan/lib/internal/catalog"
)

// CatalogStatsOutput summarizes the catalog.
type CatalogStatsOutput struct {
	catalog.Stats
	TotalSize string `json:"total_size"`
	// FullTextSearchEnabled mirrors the configuration so callers know whether
	// full_text_search will answer.
	FullTextSearchEnabled bool `json:"full_text_search_enabled"`
}

// CatalogStats reports live counts per kind, bytes, tombstones and the latest run.
func (s *Service) CatalogStats(ctx context.Context) (*CatalogStatsOutput, error) {
	stats, err := s.query.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &CatalogStatsOutput{
		Stats:                 *stats,
		TotalSize:             humanize.Bytes(uint64(stats.TotalBytes)),
		FullTextSearchEnabled: s.cfg.FullTextSearchEnabled,
	}, nil
}
