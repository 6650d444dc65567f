// Package jobs contains the scheduled maintenance jobs.
package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SWEEP LEADERBOARD CACHE JOB
// ══════════════════════════════════════════════════════════════════════════════

// Sweeper evicts expired entries and reports how many it removed.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
	Len() int
}

// SweepStats describes the last sweep.
type SweepStats struct {
	At        time.Time
	Removed   int
	Remaining int
}

// SweepLeaderboardCacheJob drops expired pages from the in-process page
// cache. Reads already ignore expired pages; the sweep only bounds memory.
type SweepLeaderboardCacheJob struct {
	cache  Sweeper
	logger *slog.Logger
	last   atomic.Value // SweepStats
}

// NewSweepLeaderboardCacheJob creates the job.
func NewSweepLeaderboardCacheJob(cache Sweeper, logger *slog.Logger) *SweepLeaderboardCacheJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepLeaderboardCacheJob{
		cache:  cache,
		logger: logger.With("job", "sweep_leaderboard_cache"),
	}
}

// Name implements scheduler.Job.
func (j *SweepLeaderboardCacheJob) Name() string { return "sweep_leaderboard_cache" }

// Description implements scheduler.Job.
func (j *SweepLeaderboardCacheJob) Description() string {
	return "Evicts expired leaderboard pages from the in-process cache"
}

// Run implements scheduler.Job.
func (j *SweepLeaderboardCacheJob) Run(ctx context.Context) error {
	removed, err := j.cache.Sweep(ctx)
	if err != nil {
		return err
	}

	stats := SweepStats{At: time.Now().UTC(), Removed: removed, Remaining: j.cache.Len()}
	j.last.Store(stats)

	if removed > 0 {
		j.logger.Debug("swept expired pages", "removed", removed, "remaining", stats.Remaining)
	}
	return nil
}

// LastStats returns the result of the last successful sweep.
func (j *SweepLeaderboardCacheJob) LastStats() (SweepStats, bool) {
	stats, ok := j.last.Load().(SweepStats)
	return stats, ok
}
