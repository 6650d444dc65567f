package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Counters(t *testing.T) {
	m := NewManager(WithRegistry(prometheus.NewRegistry()))

	m.CacheHit()
	m.CacheHit()
	m.CacheMiss()
	m.FollowOperation("follow", nil)
	m.FollowOperation("follow", errors.New("boom"))
	m.ReputationRecomputed(nil)
	m.EventPublished("social.follow_created")
	m.ObserveJob("sweep_leaderboard_cache", nil, time.Millisecond)
	m.ObserveJob("sweep_leaderboard_cache", errors.New("boom"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.followOps.WithLabelValues("follow", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.followOps.WithLabelValues("follow", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reputationRecompute.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsPublished.WithLabelValues("social.follow_created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("sweep_leaderboard_cache", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("sweep_leaderboard_cache", "error")))
}

func TestManager_NilSafe(t *testing.T) {
	var m *Manager
	assert.NotPanics(t, func() {
		m.CacheHit()
		m.CacheMiss()
		m.ObserveLeaderboard("global", "ok", time.Millisecond)
		m.ObserveCircleChunks(3)
		m.FollowOperation("unfollow", nil)
		m.ReputationRecomputed(nil)
		m.EventPublished("x")
		m.EventHandlerFailed("x")
		m.ObserveHTTP("/", 200, time.Millisecond)
		m.ObserveJob("x", nil, time.Millisecond)
	})
}

func TestManager_Handler(t *testing.T) {
	m := NewManager(WithNamespace("test"))
	m.ObserveLeaderboard("global", "ok", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `test_leaderboard_requests_total{kind="global",outcome="ok"} 1`))
}
