package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/community-rankings/internal/domain/shared"
	"github.com/alem-hub/community-rankings/internal/domain/social"
	"github.com/alem-hub/community-rankings/internal/domain/store"
	"github.com/alem-hub/community-rankings/internal/infrastructure/persistence/memory"
)

var fixedTime = time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC)

type fakeProfiles map[string]shared.UserProfile

func (f fakeProfiles) GetUser(_ context.Context, userID string) (shared.UserProfile, error) {
	p, ok := f[userID]
	if !ok {
		return shared.UserProfile{}, shared.NewDomainError("users", "GetUser", shared.ErrNotFound, "user not found")
	}
	return p, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

type fixedXP map[string]float64

func (f fixedXP) GetTotalXP(_ context.Context, userID string) (float64, error) {
	return f[userID], nil
}

type fixedTrades map[string]int

func (f fixedTrades) CountTradesInvolving(_ context.Context, userID string) (int, error) {
	return f[userID], nil
}

type failingXP struct{}

func (failingXP) GetTotalXP(context.Context, string) (float64, error) {
	return 0, errors.New("xp backend down")
}

func newGraph(t *testing.T) (*FollowGraph, *memory.DocStore, *recordingPublisher) {
	t.Helper()
	st := memory.NewDocStore(memory.WithClock(func() time.Time { return fixedTime }))
	pub := &recordingPublisher{}
	profiles := fakeProfiles{
		"alice": {DisplayName: "Alice"},
		"bob":   {DisplayName: "Bob", AvatarRef: "bob.png"},
		"carol": {DisplayName: "Carol"},
	}
	return NewFollowGraph(st, profiles, pub, nil, nil), st, pub
}

// ──────────────────────────────────────────────────────────────────────────────
// FollowGraph
// ──────────────────────────────────────────────────────────────────────────────

func TestFollowGraph_FollowCreatesEdgeWithSnapshot(t *testing.T) {
	ctx := context.Background()
	g, st, pub := newGraph(t)

	edge, err := g.Follow(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", edge.FollowingDisplayName)
	assert.Equal(t, "bob.png", edge.FollowingAvatar)

	doc, err := st.Get(ctx, store.CollectionFollows, social.EdgeID("alice", "bob"))
	require.NoError(t, err)
	stored := social.EdgeFromDocument(doc)
	assert.Equal(t, "alice", stored.FollowerID)
	assert.Equal(t, "bob", stored.FollowingID)
	assert.True(t, stored.CreatedAt.Equal(fixedTime))

	assert.Equal(t, []shared.EventType{shared.EventFollowCreated}, pub.types())
	created, ok := pub.events[0].(shared.FollowCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, "Alice", created.FollowerDisplayName)
}

func TestFollowGraph_FollowTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	g, _, pub := newGraph(t)

	_, err := g.Follow(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = g.Follow(ctx, "alice", "bob")
	assert.ErrorIs(t, err, social.ErrAlreadyFollowing)
	assert.True(t, shared.IsConflict(err))
	assert.Len(t, pub.events, 1, "failed follow publishes nothing")

	n, err := g.CountFollowers(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFollowGraph_SelfFollowRejected(t *testing.T) {
	g, _, _ := newGraph(t)

	_, err := g.Follow(context.Background(), "alice", "alice")
	assert.ErrorIs(t, err, social.ErrSelfFollow)
	assert.True(t, shared.IsValidation(err))
}

func TestFollowGraph_PaddedIDsRejected(t *testing.T) {
	ctx := context.Background()
	g, st, pub := newGraph(t)

	for _, pair := range [][2]string{{"alice ", "alice"}, {" alice", "bob"}, {"alice", "bob\t"}} {
		_, err := g.Follow(ctx, pair[0], pair[1])
		assert.ErrorIs(t, err, social.ErrInvalidUserID, "%q -> %q", pair[0], pair[1])
		assert.True(t, shared.IsValidation(err))
	}
	assert.Empty(t, pub.events)

	n, err := st.Count(ctx, store.Query{Collection: store.CollectionFollows})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = g.IsFollowing(ctx, " alice", "bob")
	assert.ErrorIs(t, err, social.ErrInvalidUserID)
}

func TestFollowGraph_UnknownTarget(t *testing.T) {
	g, _, _ := newGraph(t)

	_, err := g.Follow(context.Background(), "alice", "zed")
	assert.ErrorIs(t, err, social.ErrUserNotFound)
	assert.True(t, shared.IsNotFound(err))
}

func TestFollowGraph_UnfollowWithoutEdge(t *testing.T) {
	g, _, pub := newGraph(t)

	err := g.Unfollow(context.Background(), "alice", "bob")
	assert.ErrorIs(t, err, social.ErrNotFollowing)
	assert.Empty(t, pub.events)
}

func TestFollowGraph_UnfollowHardDeletes(t *testing.T) {
	ctx := context.Background()
	g, st, pub := newGraph(t)

	_, err := g.Follow(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, g.Unfollow(ctx, "alice", "bob"))

	_, err = st.Get(ctx, store.CollectionFollows, social.EdgeID("alice", "bob"))
	assert.ErrorIs(t, err, store.ErrDocumentNotFound)

	following, err := g.IsFollowing(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, following)

	assert.Equal(t, []shared.EventType{shared.EventFollowCreated, shared.EventFollowRemoved}, pub.types())

	// re-follow after unfollow is allowed
	_, err = g.Follow(ctx, "alice", "bob")
	assert.NoError(t, err)
}

func TestFollowGraph_CountsAndLists(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newGraph(t)

	for _, pair := range [][2]string{{"alice", "bob"}, {"carol", "bob"}, {"alice", "carol"}} {
		_, err := g.Follow(ctx, pair[0], pair[1])
		require.NoError(t, err)
	}

	followers, err := g.CountFollowers(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, followers)

	following, err := g.CountFollowing(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, following)

	ids, err := g.FollowingIDs(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bob", "carol"}, ids)

	edges, err := g.ListFollowers(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, edges, 2)

	yes, err := g.IsFollowing(ctx, "carol", "bob")
	require.NoError(t, err)
	assert.True(t, yes)

	no, err := g.IsFollowing(ctx, "bob", "carol")
	require.NoError(t, err)
	assert.False(t, no)

	_, err = g.CountFollowers(ctx, "")
	assert.ErrorIs(t, err, social.ErrInvalidUserID)
}

// ──────────────────────────────────────────────────────────────────────────────
// ReputationScorer
// ──────────────────────────────────────────────────────────────────────────────

func seedFollowers(t *testing.T, st store.DocumentStore, target string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		follower := fmt.Sprintf("f%d", i)
		edge, err := social.NewFollowEdge(follower, target, shared.UserProfile{}, fixedTime)
		require.NoError(t, err)
		require.NoError(t, st.Set(context.Background(), store.CollectionFollows, edge.ID(), edge.Document()))
	}
}

func TestReputationScorer_ReferenceScenario(t *testing.T) {
	ctx := context.Background()
	st := memory.NewDocStore(memory.WithClock(func() time.Time { return fixedTime }))
	seedFollowers(t, st, "u1", 300)

	scorer := NewReputationScorer(st, fixedXP{"u1": 2500}, fixedTrades{"u1": 40}, nil, nil)
	result, err := scorer.Handle(ctx, "u1")
	require.NoError(t, err)

	assert.InDelta(t, 0.5, result.Breakdown.XPNorm, 1e-9)
	assert.InDelta(t, 0.4, result.Breakdown.TradesNorm, 1e-9)
	assert.InDelta(t, 0.3, result.Breakdown.FollowersNorm, 1e-9)
	assert.Equal(t, 43, result.Breakdown.Score)

	doc, err := st.Get(ctx, store.CollectionSocialStats, "u1")
	require.NoError(t, err)
	stats := social.StatsFromDocument(doc)
	assert.Equal(t, 43, stats.ReputationScore)
	assert.Equal(t, 300, stats.FollowersCount)
	require.NotNil(t, stats.ReputationComputedAt)
	assert.True(t, stats.ReputationComputedAt.Equal(fixedTime))
}

func TestReputationScorer_ReconcilesDriftedCounters(t *testing.T) {
	ctx := context.Background()
	st := memory.NewDocStore(memory.WithClock(func() time.Time { return fixedTime }))
	seedFollowers(t, st, "u1", 2)

	stale := social.NewStats("u1", fixedTime)
	stale.FollowersCount = 57
	stale.FollowingCount = 9
	stale.RecordRank("total_xp", 4)
	require.NoError(t, st.Set(ctx, store.CollectionSocialStats, "u1", stale.Document()))

	scorer := NewReputationScorer(st, fixedXP{}, fixedTrades{}, nil, nil)
	result, err := scorer.Handle(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, result.CountersDrift)

	doc, err := st.Get(ctx, store.CollectionSocialStats, "u1")
	require.NoError(t, err)
	stats := social.StatsFromDocument(doc)
	assert.Equal(t, 2, stats.FollowersCount)
	assert.Equal(t, 0, stats.FollowingCount)
	assert.Equal(t, 4, stats.TopRanks["total_xp"], "unrelated fields survive")
}

func TestReputationScorer_RecomputeSwallowsFailures(t *testing.T) {
	ctx := context.Background()
	st := memory.NewDocStore()
	scorer := NewReputationScorer(st, failingXP{}, fixedTrades{}, nil, nil)

	assert.NotPanics(t, func() { scorer.Recompute(ctx, "u1") })

	_, err := st.Get(ctx, store.CollectionSocialStats, "u1")
	assert.ErrorIs(t, err, store.ErrDocumentNotFound, "nothing written on failure")
}

// ──────────────────────────────────────────────────────────────────────────────
// StandingRecorder
// ──────────────────────────────────────────────────────────────────────────────

func TestStandingRecorder_TracksBestRank(t *testing.T) {
	ctx := context.Background()
	st := memory.NewDocStore(memory.WithClock(func() time.Time { return fixedTime }))
	rec := NewStandingRecorder(st, nil)

	improved, err := rec.Handle(ctx, "alice", "total_xp", 7)
	require.NoError(t, err)
	assert.True(t, improved)

	improved, err = rec.Handle(ctx, "alice", "total_xp", 9)
	require.NoError(t, err)
	assert.False(t, improved)

	rec.RecordStanding(ctx, "alice", "total_xp", 3)

	doc, err := st.Get(ctx, store.CollectionSocialStats, "alice")
	require.NoError(t, err)
	stats := social.StatsFromDocument(doc)
	assert.Equal(t, 3, stats.LeaderboardAppearances)
	assert.Equal(t, 3, stats.TopRanks["total_xp"])

	_, err = rec.Handle(ctx, "alice", "nope", 1)
	assert.True(t, shared.IsValidation(err))
}
