package leaderboard_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/community-rankings/internal/domain/leaderboard"
	"github.com/alem-hub/community-rankings/internal/domain/store"
	"github.com/alem-hub/community-rankings/internal/infrastructure/persistence/memory"
)

func allTimePlan(t *testing.T, category leaderboard.Category) leaderboard.Plan {
	t.Helper()
	rng := leaderboard.NewRangeCalculator(time.Now, nil).Range(leaderboard.PeriodAllTime)
	plan, err := leaderboard.NewPlanner().Plan(category, leaderboard.PeriodAllTime, rng)
	require.NoError(t, err)
	return plan
}

func seedXP(t *testing.T, s store.DocumentStore, values map[string]float64) {
	t.Helper()
	for id, xp := range values {
		require.NoError(t, s.Set(context.Background(), store.CollectionUserStats, id, map[string]any{
			leaderboard.FieldUserID:  id,
			leaderboard.FieldTotalXP: xp,
		}))
	}
}

func TestAssignRanks_TiesShareRankWithoutGaps(t *testing.T) {
	ranked := leaderboard.AssignRanks([]leaderboard.Record{
		{UserID: "d", Value: 500},
		{UserID: "b", Value: 700},
		{UserID: "a", Value: 900},
		{UserID: "c", Value: 700},
	})

	ranks := make([]int, len(ranked))
	values := make([]float64, len(ranked))
	for i, r := range ranked {
		ranks[i] = r.Rank
		values[i] = r.Value
	}
	assert.Equal(t, []float64{900, 700, 700, 500}, values)
	assert.Equal(t, []int{1, 2, 2, 3}, ranks)
	assert.Equal(t, "b", ranked[1].UserID, "equal values keep arrival order")
}

func TestAssignRanks_ContiguousUnderTies(t *testing.T) {
	records := make([]leaderboard.Record, 0, 30)
	for i := 0; i < 30; i++ {
		records = append(records, leaderboard.Record{UserID: fmt.Sprintf("u%02d", i), Value: float64((i * 7) % 5 * 100)})
	}

	ranked := leaderboard.AssignRanks(records)
	require.Len(t, ranked, 30)
	assert.Equal(t, 1, ranked[0].Rank)
	for i := 1; i < len(ranked); i++ {
		prev, cur := ranked[i-1], ranked[i]
		if cur.Value == prev.Value {
			assert.Equal(t, prev.Rank, cur.Rank, "tie at %d", i)
		} else {
			assert.Equal(t, prev.Rank+1, cur.Rank, "gap at %d", i)
		}
	}
	assert.Equal(t, 5, ranked[len(ranked)-1].Rank, "five distinct values")
}

func TestAssignRanks_Empty(t *testing.T) {
	assert.Empty(t, leaderboard.AssignRanks(nil))
}

func TestRankResolver_MatchesFormula(t *testing.T) {
	ctx := context.Background()
	s := memory.NewDocStore()
	seedXP(t, s, map[string]float64{"a": 900, "b": 700, "c": 700, "d": 500})
	resolver := leaderboard.NewRankResolver(s)
	plan := allTimePlan(t, leaderboard.CategoryTotalXP)

	want := map[string]int{"a": 1, "b": 2, "c": 2, "d": 4}
	for user, rank := range want {
		res, found, err := resolver.Resolve(ctx, plan, user)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, rank, res.Rank, "user %s", user)
	}
}

func TestRankResolver_NoEntry(t *testing.T) {
	ctx := context.Background()
	s := memory.NewDocStore()
	seedXP(t, s, map[string]float64{"a": 900})
	resolver := leaderboard.NewRankResolver(s)
	plan := allTimePlan(t, leaderboard.CategoryTotalXP)

	_, found, err := resolver.Resolve(ctx, plan, "ghost")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = resolver.MustResolve(ctx, plan, "ghost")
	assert.ErrorIs(t, err, leaderboard.ErrNoEntry)
}

func TestRankResolver_MatchesFirstPositionOfValue(t *testing.T) {
	ctx := context.Background()
	s := memory.NewDocStore()
	values := map[string]float64{}
	for i := 0; i < 40; i++ {
		values[fmt.Sprintf("u%02d", i)] = float64((i * 37) % 11 * 100)
	}
	seedXP(t, s, values)
	resolver := leaderboard.NewRankResolver(s)
	plan := allTimePlan(t, leaderboard.CategoryTotalXP)

	docs, err := s.Query(ctx, plan.TopQuery(0))
	require.NoError(t, err)

	first := make(map[float64]int)
	for i, r := range leaderboard.AssignRanks(plan.Records(docs)) {
		if _, seen := first[r.Value]; !seen {
			first[r.Value] = i + 1
		}
		res, found, err := resolver.Resolve(ctx, plan, r.UserID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, first[r.Value], res.Rank, "user %s value %v", r.UserID, r.Value)
	}
}

func TestChunkIDs(t *testing.T) {
	ids := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		ids = append(ids, fmt.Sprintf("u%d", i))
	}
	ids = append(ids, "u3", "")

	chunks := leaderboard.ChunkIDs(ids, store.MaxInValues)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 10)
	assert.Len(t, chunks[1], 10)
	assert.Len(t, chunks[2], 5)

	assert.Empty(t, leaderboard.ChunkIDs(nil, 10))
	assert.Len(t, leaderboard.ChunkIDs([]string{"a", "b"}, 0), 1)
}
