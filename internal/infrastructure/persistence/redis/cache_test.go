package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/community-rankings/internal/domain/leaderboard"
	"github.com/alem-hub/community-rankings/pkg/circuitbreaker"
)

func TestConfig_Addr(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())
	assert.Equal(t, "rankings:", cfg.KeyPrefix)
}

func TestPageCache_KeyIsNamespaced(t *testing.T) {
	c := NewPageCacheWithClient(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "test:")
	defer c.Close()

	assert.Equal(t, "test:leaderboard:page:total_xp:all_time:20:", c.key(leaderboard.CacheKey("total_xp", "all_time", 20, "")))
}

func TestPageCache_InvalidatePatternIsLiteral(t *testing.T) {
	c := NewPageCacheWithClient(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "test:")
	defer c.Close()

	assert.Equal(t, "test:leaderboard:page:total_xp:*", c.scanPattern("total_xp:"))
	assert.Equal(t, "test:leaderboard:page:*", c.scanPattern(""))
	assert.Equal(t, `test:leaderboard:page:\*:\?\[a\]\\*`, c.scanPattern(`*:?[a]\`))
}

func TestPageCache_RejectsBadInput(t *testing.T) {
	c := NewPageCacheWithClient(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "test:")
	defer c.Close()
	ctx := context.Background()

	_, err := c.Get(ctx, "")
	assert.ErrorIs(t, err, ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Set(ctx, "k", &leaderboard.Page{}, 0), ErrCacheInvalidTTL)
}

// Runs only against a real server named by RANKINGS_TEST_REDIS_ADDR.
func TestPageCache_Integration(t *testing.T) {
	addr := os.Getenv("RANKINGS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RANKINGS_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: addr})
	c := NewPageCacheWithClient(client, "it-"+uuid.NewString()+":")
	defer c.Close()
	require.NoError(t, c.Ping(ctx))

	_, err := c.Get(ctx, "total_xp:weekly:20:")
	assert.ErrorIs(t, err, leaderboard.ErrCacheMiss)

	page := leaderboard.NewEmptyPage(leaderboard.CategoryTotalXP, leaderboard.PeriodWeekly, time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC))
	page.Entries = []leaderboard.Entry{{UserID: "a", DisplayName: "A", Rank: 1, Value: 900}}
	page.CurrentUserEntry = &leaderboard.Entry{UserID: "z", Rank: 7, Value: 10, IsCurrentUser: true}
	page.TotalParticipants = 7

	require.NoError(t, c.Set(ctx, "total_xp:weekly:20:z", page, time.Minute))

	got, err := c.Get(ctx, "total_xp:weekly:20:z")
	require.NoError(t, err)
	assert.Equal(t, page.Entries, got.Entries)
	assert.Equal(t, *page.CurrentUserEntry, *got.CurrentUserEntry)
	assert.True(t, page.GeneratedAt.Equal(got.GeneratedAt))

	n, err := c.Invalidate(ctx, "total_xp:")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = c.Get(ctx, "total_xp:weekly:20:z")
	assert.ErrorIs(t, err, leaderboard.ErrCacheMiss)
}

type flakyCache struct {
	calls int
	err   error
}

func (f *flakyCache) Get(context.Context, string) (*leaderboard.Page, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return nil, leaderboard.ErrCacheMiss
}

func (f *flakyCache) Set(context.Context, string, *leaderboard.Page, time.Duration) error {
	f.calls++
	return f.err
}

func TestGuardedPageCache_OpensOnFailures(t *testing.T) {
	ctx := context.Background()
	inner := &flakyCache{err: errors.New("dial tcp: connection refused")}
	g := NewGuardedPageCache(inner, 2, time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, err := g.Get(ctx, "k")
		assert.Error(t, err)
	}
	assert.Equal(t, circuitbreaker.StateOpen, g.State())

	_, err := g.Get(ctx, "k")
	assert.ErrorIs(t, err, leaderboard.ErrCacheMiss)
	assert.NoError(t, g.Set(ctx, "k", &leaderboard.Page{}, time.Minute))
	assert.Equal(t, 2, inner.calls, "open breaker short-circuits")
}

func TestGuardedPageCache_MissesAreNotFailures(t *testing.T) {
	inner := &flakyCache{}
	g := NewGuardedPageCache(inner, 1, time.Minute, nil)

	for i := 0; i < 3; i++ {
		_, err := g.Get(context.Background(), "k")
		assert.ErrorIs(t, err, leaderboard.ErrCacheMiss)
	}
	assert.Equal(t, circuitbreaker.StateClosed, g.State())
	assert.Equal(t, 3, inner.calls)
}
