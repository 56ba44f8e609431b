package ops

import (
	"context"
	"fmt"

	"github.com/hpungsan/lib/internal/db"
	"github.com/hpungsan/lib/internal/errors"
)

// PurgeInput contains parameters for the PurgeDeleted operation.
type PurgeInput struct {
	OlderThanDays *int // optional, only purge if deleted_at < (now - N days)
}

// PurgeOutput contains the result of the PurgeDeleted operation.
type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Message string `json:"message"`
}

// PurgeDeleted permanently removes soft-deleted records.
func (s *Service) PurgeDeleted(ctx context.Context, input PurgeInput) (*PurgeOutput, error) {
	if input.OlderThanDays != nil && *input.OlderThanDays < 0 {
		return nil, errors.NewInvalidRequest("older_than_days must be non-negative")
	}

	count, err := db.PurgeDeleted(ctx, s.db, input.OlderThanDays)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int("purged", count).Msg("purged deleted records")

	return &PurgeOutput{
		Purged:  count,
		Message: formatPurgeMessage(count, input.OlderThanDays),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count int, olderThanDays *int) string {
	if count == 0 {
		return "No deleted records to purge"
	}

	word := "record"
	if count > 1 {
		word = "records"
	}

	msg := fmt.Sprintf("Permanently deleted %d %s", count, word)
	if olderThanDays != nil {
		msg += fmt.Sprintf(" (deleted more than %d days ago)", *olderThanDays)
	}
	return msg
}
