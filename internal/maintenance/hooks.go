package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Purger deletes delivery log rows older than a cutoff. Implemented by
// *db.Pool.
type Purger interface {
	PurgeDeliveries(ctx context.Context, cutoff time.Time) (int64, error)
}

// PurgeDeliveries removes delivery log rows older than retention, measured
// from now. Used by the cleanup ticker and the CLI.
func PurgeDeliveries(ctx context.Context, purger Purger, retention time.Duration, now time.Time, logger *slog.Logger) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("purge deliveries: retention must be positive, got %s", retention)
	}
	cutoff := now.Add(-retention)

	start := time.Now()
	n, err := purger.PurgeDeliveries(ctx, cutoff)
	dur := time.Since(start).Round(time.Millisecond)

	if err != nil {
		logger.Warn("Cleanup: failed to purge delivery log",
			"cutoff", cutoff, "duration", dur, "error", err)
		return 0, err
	}
	if n > 0 {
		logger.Info("Cleanup: purged delivery log", "count", n, "cutoff", cutoff, "duration", dur)
	}
	return n, nil
}
