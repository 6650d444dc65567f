package query

import (
	"context"
	"time"

	"github.com/alem-hub/community-rankings/internal/domain/leaderboard"
)

// GetMultipleLeaderboards runs GetLeaderboard for each config in order and
// keys successes by Config.Key(). Failed configs are logged and left out;
// one failure never aborts the rest. Pages use the default limit.
func (a *LeaderboardAssembler) GetMultipleLeaderboards(
	ctx context.Context,
	configs []leaderboard.Config,
	callerID string,
) map[string]*leaderboard.Page {
	start := time.Now()
	result := make(map[string]*leaderboard.Page, len(configs))

	failed := 0
	for _, cfg := range configs {
		key := cfg.Key()
		if _, done := result[key]; done {
			continue
		}
		page, err := a.GetLeaderboard(ctx, cfg.Category, cfg.Period, 0, callerID)
		if err != nil {
			failed++
			a.logger.Warn("leaderboard in batch failed",
				"category", cfg.Category,
				"period", cfg.Period,
				"error", err,
			)
			continue
		}
		result[key] = page
	}

	outcome := "ok"
	if failed > 0 {
		outcome = "partial"
	}
	a.metrics.ObserveLeaderboard("multi", outcome, time.Since(start))
	return result
}
