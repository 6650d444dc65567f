package social

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/community-rankings/internal/domain/shared"
	"github.com/alem-hub/community-rankings/internal/domain/store"
)

func TestEdgeID_DeterministicAndDirected(t *testing.T) {
	a := EdgeID("alice", "bob")
	assert.Equal(t, a, EdgeID("alice", "bob"))
	assert.NotEqual(t, a, EdgeID("bob", "alice"))
	assert.NotEqual(t, EdgeID("ab", "c"), EdgeID("a", "bc"), "separator keeps pairs apart")
	assert.Len(t, a, 32)
}

func TestNewFollowEdge_Validation(t *testing.T) {
	now := time.Now()

	_, err := NewFollowEdge("alice", "alice", shared.UserProfile{}, now)
	assert.ErrorIs(t, err, ErrSelfFollow)
	assert.True(t, shared.IsValidation(err))

	_, err = NewFollowEdge("", "bob", shared.UserProfile{}, now)
	assert.ErrorIs(t, err, ErrInvalidUserID)

	_, err = NewFollowEdge("alice", "bob/../x", shared.UserProfile{}, now)
	assert.ErrorIs(t, err, ErrInvalidUserID)

	_, err = NewFollowEdge("alice ", "alice", shared.UserProfile{}, now)
	assert.ErrorIs(t, err, ErrInvalidUserID, "padding does not dodge the self-follow check")

	edge, err := NewFollowEdge("alice", "bob", shared.UserProfile{DisplayName: "Bob", AvatarRef: "b.png"}, now)
	require.NoError(t, err)
	assert.Equal(t, EdgeID("alice", "bob"), edge.ID())
	assert.Nil(t, edge.DeletedAt)
}

func TestFollowEdge_DocumentRoundTrip(t *testing.T) {
	at := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	edge, err := NewFollowEdge("alice", "bob", shared.UserProfile{DisplayName: "Bob"}, at)
	require.NoError(t, err)

	data, err := store.Normalize(edge.Document())
	require.NoError(t, err)

	back := EdgeFromDocument(store.Document{ID: edge.ID(), Data: data})
	assert.Equal(t, edge.FollowerID, back.FollowerID)
	assert.Equal(t, edge.FollowingID, back.FollowingID)
	assert.Equal(t, "Bob", back.FollowingDisplayName)
	assert.True(t, back.CreatedAt.Equal(at))
}

func TestStats_RecordRankAndReconcile(t *testing.T) {
	s := NewStats("alice", time.Now())

	assert.True(t, s.RecordRank("total_xp", 5))
	assert.False(t, s.RecordRank("total_xp", 7))
	assert.True(t, s.RecordRank("total_xp", 2))
	assert.Equal(t, 3, s.LeaderboardAppearances)
	assert.Equal(t, 2, s.TopRanks["total_xp"])

	s.FollowersCount = 99
	assert.True(t, s.Reconcile(3, 4))
	assert.False(t, s.Reconcile(3, 4))
	assert.Equal(t, 3, s.FollowersCount)
	assert.Equal(t, 4, s.FollowingCount)
}

func TestStats_DocumentRoundTrip(t *testing.T) {
	computed := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	s := NewStats("alice", computed)
	s.RecordRank("trade_count", 3)
	s.ReputationScore = 43
	s.ReputationComputedAt = &computed

	data, err := store.Normalize(s.Document())
	require.NoError(t, err)
	back := StatsFromDocument(store.Document{ID: "alice", Data: data})

	assert.Equal(t, "alice", back.UserID)
	assert.Equal(t, 43, back.ReputationScore)
	assert.Equal(t, map[string]int{"trade_count": 3}, back.TopRanks)
	require.NotNil(t, back.ReputationComputedAt)
	assert.True(t, back.ReputationComputedAt.Equal(computed))
}
