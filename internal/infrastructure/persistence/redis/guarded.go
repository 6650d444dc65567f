package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alem-hub/community-rankings/internal/domain/leaderboard"
	"github.com/alem-hub/community-rankings/pkg/circuitbreaker"
)

// GuardedPageCache puts a circuit breaker in front of a remote page cache.
// While the breaker is open reads report a miss and writes are skipped, so
// an unreachable Redis costs one timeout per cool-down instead of one per
// request.
type GuardedPageCache struct {
	next    leaderboard.PageCache
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuardedPageCache wraps next. Breaker transitions are logged.
func NewGuardedPageCache(next leaderboard.PageCache, failureThreshold int, coolDown time.Duration, logger *slog.Logger) *GuardedPageCache {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "page_cache_breaker")

	return &GuardedPageCache{
		next: next,
		breaker: circuitbreaker.New("redis-page-cache",
			circuitbreaker.WithFailureThreshold(failureThreshold),
			circuitbreaker.WithCoolDown(coolDown),
			circuitbreaker.WithIsFailure(func(err error) bool {
				return !errors.Is(err, leaderboard.ErrCacheMiss)
			}),
			circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
				logger.Warn("circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
			}),
		),
	}
}

// Get implements leaderboard.PageCache.
func (g *GuardedPageCache) Get(ctx context.Context, key string) (*leaderboard.Page, error) {
	var page *leaderboard.Page
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		page, err = g.next.Get(ctx, key)
		return err
	})
	if circuitbreaker.IsRejected(err) {
		return nil, leaderboard.ErrCacheMiss
	}
	return page, err
}

// Set implements leaderboard.PageCache.
func (g *GuardedPageCache) Set(ctx context.Context, key string, page *leaderboard.Page, ttl time.Duration) error {
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.next.Set(ctx, key, page, ttl)
	})
	if circuitbreaker.IsRejected(err) {
		return nil
	}
	return err
}

// State reports the breaker state.
func (g *GuardedPageCache) State() circuitbreaker.State {
	return g.breaker.State()
}
