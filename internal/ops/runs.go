package ops

import (
	"context"

	"github.com/hpungsan/lib/internal/catalog"
	"github.com/hpungsan/lib/internal/errors"
)

// QueryRunsInput contains parameters for the QueryRuns operation.
type QueryRunsInput struct {
	Limit int    // default: 10, max: 100
	ID    string // optional, a single run
}

// QueryRunsOutput contains the result of the QueryRuns operation.
type QueryRunsOutput struct {
	Runs  []*catalog.ScanRun `json:"runs"`
	Count int                `json:"count"`
}

// QueryRuns lists scan history, newest first.
// With an ID it returns just that run, or no runs when the ID is unknown.
func (s *Service) QueryRuns(ctx context.Context, input QueryRunsInput) (*QueryRunsOutput, error) {
	if id := cleanString(input.ID); id != "" {
		run, err := s.query.Run(ctx, id)
		if errors.Is(err, errors.ErrNotFound) {
			return &QueryRunsOutput{Runs: []*catalog.ScanRun{}, Count: 0}, nil
		}
		if err != nil {
			return nil, err
		}
		return &QueryRunsOutput{Runs: []*catalog.ScanRun{run}, Count: 1}, nil
	}

	runs, err := s.query.Runs(ctx, input.Limit)
	if err != nil {
		return nil, err
	}
	return &QueryRunsOutput{Runs: runs, Count: len(runs)}, nil
}
