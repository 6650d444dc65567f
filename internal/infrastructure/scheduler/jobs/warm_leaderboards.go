package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alem-hub/community-rankings/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// WARM LEADERBOARDS JOB
// ══════════════════════════════════════════════════════════════════════════════

// PageBuilder rebuilds one anonymous leaderboard page and overwrites its
// cache entry.
type PageBuilder interface {
	RefreshLeaderboard(ctx context.Context, category leaderboard.Category, period leaderboard.Period, limit int) (*leaderboard.Page, error)
}

// WarmLeaderboardsJob rebuilds the anonymous pages of the configured boards
// on every run, replacing live cache entries. With an interval shorter than
// the cache TTL these pages never expire between runs.
// Pages with a caller are keyed per caller and are not warmed.
type WarmLeaderboardsJob struct {
	builder PageBuilder
	boards  []leaderboard.Config
	limit   int
	logger  *slog.Logger
}

// NewWarmLeaderboardsJob creates the job. An empty boards list warms every
// category for the all-time and weekly periods.
func NewWarmLeaderboardsJob(builder PageBuilder, boards []leaderboard.Config, limit int, logger *slog.Logger) *WarmLeaderboardsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if len(boards) == 0 {
		boards = DefaultWarmBoards()
	}
	return &WarmLeaderboardsJob{
		builder: builder,
		boards:  boards,
		limit:   limit,
		logger:  logger.With("job", "warm_leaderboards"),
	}
}

// DefaultWarmBoards returns every category paired with all_time, plus
// weekly period XP.
func DefaultWarmBoards() []leaderboard.Config {
	boards := make([]leaderboard.Config, 0, len(leaderboard.AllCategories)+1)
	for _, c := range leaderboard.AllCategories {
		boards = append(boards, leaderboard.Config{Category: c, Period: leaderboard.PeriodAllTime})
	}
	return append(boards, leaderboard.Config{Category: leaderboard.CategoryPeriodXP, Period: leaderboard.PeriodWeekly})
}

// Name implements scheduler.Job.
func (j *WarmLeaderboardsJob) Name() string { return "warm_leaderboards" }

// Description implements scheduler.Job.
func (j *WarmLeaderboardsJob) Description() string {
	return "Rebuilds anonymous leaderboard pages into the page cache"
}

// Run implements scheduler.Job. Every board is attempted; failures are
// joined into the returned error.
func (j *WarmLeaderboardsJob) Run(ctx context.Context) error {
	var errs []error
	warmed := 0
	for _, b := range j.boards {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := j.builder.RefreshLeaderboard(ctx, b.Category, b.Period, j.limit); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Key(), err))
			continue
		}
		warmed++
	}

	j.logger.Debug("leaderboards warmed", "warmed", warmed, "failed", len(errs))
	return errors.Join(errs...)
}
