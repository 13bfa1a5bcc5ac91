package history

import (
	"context"
	"time"

	"github.com/fleetglass/fleetglass-core/internal/infrastructure/logging"
)

// RetentionJob periodically prunes time-series rows older than the
// retention horizon. Pruning failures are logged and retried on the
// next tick; they never bring the service down.
type RetentionJob struct {
	store    *Store
	horizon  time.Duration
	interval time.Duration
	logger   *logging.Logger
}

// NewRetentionJob creates a RetentionJob. horizon is how far back rows
// are kept; interval is how often the job runs.
func NewRetentionJob(store *Store, horizon, interval time.Duration, logger *logging.Logger) *RetentionJob {
	return &RetentionJob{
		store:    store,
		horizon:  horizon,
		interval: interval,
		logger:   logger,
	}
}

// Run prunes once immediately, then on every tick until ctx is
// cancelled.
func (j *RetentionJob) Run(ctx context.Context) {
	j.prune(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.prune(ctx)
		}
	}
}

func (j *RetentionJob) prune(ctx context.Context) {
	cutoff := time.Now().Add(-j.horizon).UnixMilli()
	removed, err := j.store.Prune(ctx, cutoff)
	if err != nil {
		j.logger.Error("retention prune failed", "error", err)
		return
	}
	if removed > 0 {
		j.logger.Info("pruned expired history rows", "rows", removed, "horizon", j.horizon.String())
	}
}
