package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/community-rankings/internal/application/command"
	"github.com/alem-hub/community-rankings/internal/application/query"
	"github.com/alem-hub/community-rankings/internal/domain/leaderboard"
	"github.com/alem-hub/community-rankings/internal/domain/store"
	"github.com/alem-hub/community-rankings/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/community-rankings/internal/infrastructure/service"
	"github.com/alem-hub/community-rankings/internal/interface/http/handlers"
	"github.com/alem-hub/community-rankings/pkg/logger"
	"github.com/alem-hub/community-rankings/pkg/metrics"
)

var testNow = time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC)

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	Meta      *ResponseMeta   `json:"meta"`
	RequestID string          `json:"request_id"`
}

// brokenStore fails every query, as an unreachable backend would.
type brokenStore struct {
	store.DocumentStore
}

func (brokenStore) Query(context.Context, store.Query) ([]store.Document, error) {
	return nil, errors.New("connection reset by peer")
}

func (brokenStore) Count(context.Context, store.Query) (int, error) {
	return 0, errors.New("connection reset by peer")
}

func newTestServer(t *testing.T, st store.DocumentStore, checker handlers.HealthChecker) http.Handler {
	t.Helper()
	profiles := service.NewProfileService(st)
	follows := command.NewFollowGraph(st, profiles, nil, nil, nil)
	activity := service.NewActivityService(st)

	srv := NewServer(Config{
		EnableMetrics: true,
		PageMaxAge:    30 * time.Second,
		MaxBodyBytes:  4 << 10,
		Version:       "test",
	}, Dependencies{
		Leaderboards: query.NewLeaderboardAssembler(query.AssemblerDeps{
			Store:    st,
			Ranges:   leaderboard.NewRangeCalculator(func() time.Time { return testNow }, time.UTC),
			Profiles: profiles,
		}, query.DefaultAssemblerConfig()),
		SocialStats:   query.NewSocialStatsHandler(st, nil),
		Follows:       follows,
		Reputation:    command.NewReputationScorer(st, activity, activity, nil, nil),
		HealthChecker: checker,
		Metrics:       metrics.NewManager(),
		Logger:        logger.New(logger.Options{Output: io.Discard}),
	})
	return srv.Handler()
}

func seedUsers(t *testing.T, st store.DocumentStore, totals map[string]float64) {
	t.Helper()
	ctx := context.Background()
	for id, xp := range totals {
		require.NoError(t, st.Set(ctx, store.CollectionUsers, id, map[string]any{"displayName": "User " + id}))
		require.NoError(t, st.Set(ctx, store.CollectionUserStats, id, map[string]any{
			leaderboard.FieldUserID:  id,
			leaderboard.FieldTotalXP: xp,
		}))
	}
}

func do(t *testing.T, h http.Handler, method, path, caller string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		if raw, ok := body.(string); ok {
			reader = bytes.NewBufferString(raw)
		} else {
			b, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(b)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if caller != "" {
		req.Header.Set(handlers.CallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestServer_GetLeaderboard(t *testing.T) {
	st := memory.NewDocStore(memory.WithClock(func() time.Time { return testNow }))
	seedUsers(t, st, map[string]float64{"ann": 900, "ben": 700, "cat": 700, "dan": 500})
	h := newTestServer(t, st, nil)

	rec, env := do(t, h, http.MethodGet, "/api/v1/leaderboards/total_xp?period=all_time&limit=3", "dan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.RequestID)
	assert.Equal(t, env.RequestID, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "private, max-age=30", rec.Header().Get("Cache-Control"))
	assert.Equal(t, 4, env.Meta.TotalCount)

	var page leaderboard.Page
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Entries, 3)
	assert.Equal(t, []int{1, 2, 2}, []int{page.Entries[0].Rank, page.Entries[1].Rank, page.Entries[2].Rank})
	assert.Equal(t, "User ann", page.Entries[0].DisplayName)
	require.NotNil(t, page.CurrentUserEntry)
	assert.Equal(t, 4, page.CurrentUserEntry.Rank)
}

func TestServer_GetLeaderboard_UnknownPeriodFallsBackToAllTime(t *testing.T) {
	st := memory.NewDocStore()
	seedUsers(t, st, map[string]float64{"ann": 900})
	h := newTestServer(t, st, nil)

	rec, env := do(t, h, http.MethodGet, "/api/v1/leaderboards/total_xp?period=fortnightly", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=30", rec.Header().Get("Cache-Control"))

	var page leaderboard.Page
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, leaderboard.PeriodAllTime, page.Period)
}

func TestServer_ErrorMapping(t *testing.T) {
	st := memory.NewDocStore()
	seedUsers(t, st, map[string]float64{"ann": 900})

	t.Run("unknown category is 400", func(t *testing.T) {
		rec, env := do(t, newTestServer(t, st, nil), http.MethodGet, "/api/v1/leaderboards/karma", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "validation_error", env.Error.Code)
		assert.False(t, env.Error.Retryable)
	})

	t.Run("store failure is 503 and retryable", func(t *testing.T) {
		rec, env := do(t, newTestServer(t, brokenStore{st}, nil), http.MethodGet, "/api/v1/leaderboards/total_xp", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "store_unavailable", env.Error.Code)
		assert.True(t, env.Error.Retryable)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		rec, env := do(t, newTestServer(t, st, nil), http.MethodPost, "/api/v1/leaderboards/total_xp/circle", `{"members":`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_body", env.Error.Code)
	})
}

func TestServer_FollowLifecycle(t *testing.T) {
	st := memory.NewDocStore(memory.WithClock(func() time.Time { return testNow }))
	seedUsers(t, st, map[string]float64{"ann": 900, "ben": 700})
	h := newTestServer(t, st, nil)

	rec, _ := do(t, h, http.MethodPost, "/api/v1/users/ben/follow", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := do(t, h, http.MethodPost, "/api/v1/users/ben/follow", "ann", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var edge FollowEdgeResponse
	require.NoError(t, json.Unmarshal(env.Data, &edge))
	assert.Equal(t, "ann", edge.FollowerID)
	assert.Equal(t, "User ben", edge.FollowingDisplayName)

	rec, env = do(t, h, http.MethodPost, "/api/v1/users/ben/follow", "ann", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", env.Error.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/v1/users/ann/follow", "ann", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/v1/users/ghost/follow", "ann", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, env = do(t, h, http.MethodGet, "/api/v1/users/ben/follow", "ann", nil)
	assert.JSONEq(t, `{"followerId":"ann","followingId":"ben","following":true}`, string(env.Data))

	_, env = do(t, h, http.MethodGet, "/api/v1/users/ben/followers/count", "", nil)
	assert.JSONEq(t, `{"userId":"ben","count":1}`, string(env.Data))

	_, env = do(t, h, http.MethodGet, "/api/v1/users/ann/following", "", nil)
	var edges []FollowEdgeResponse
	require.NoError(t, json.Unmarshal(env.Data, &edges))
	require.Len(t, edges, 1)
	assert.Equal(t, "ben", edges[0].FollowingID)

	rec, _ = do(t, h, http.MethodDelete, "/api/v1/users/ben/follow", "ann", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/api/v1/users/ben/follow", "ann", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	_, env = do(t, h, http.MethodGet, "/api/v1/users/ben/followers/count", "", nil)
	assert.JSONEq(t, `{"userId":"ben","count":0}`, string(env.Data))
}

func TestServer_CircleLeaderboards(t *testing.T) {
	st := memory.NewDocStore(memory.WithClock(func() time.Time { return testNow }))
	seedUsers(t, st, map[string]float64{"ann": 900, "ben": 700, "cat": 500, "dan": 300})
	h := newTestServer(t, st, nil)

	rec, env := do(t, h, http.MethodPost, "/api/v1/leaderboards/total_xp/circle", "", circleRequest{
		Members: []string{"dan", "ben"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var page leaderboard.Page
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "ben", page.Entries[0].UserID)
	assert.Equal(t, 1, page.Entries[0].Rank)

	rec, _ = do(t, h, http.MethodPost, "/api/v1/users/ann/follow", "cat", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env = do(t, h, http.MethodGet, "/api/v1/leaderboards/total_xp/following", "cat", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = leaderboard.Page{}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "ann", page.Entries[0].UserID)
	assert.True(t, page.Entries[1].IsCurrentUser)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/leaderboards/total_xp/following", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_BatchLeaderboards(t *testing.T) {
	st := memory.NewDocStore(memory.WithClock(func() time.Time { return testNow }))
	seedUsers(t, st, map[string]float64{"ann": 900})
	h := newTestServer(t, st, nil)

	rec, env := do(t, h, http.MethodPost, "/api/v1/leaderboards/batch", "", batchRequest{Boards: []leaderboard.Config{
		{Category: leaderboard.CategoryTotalXP, Period: leaderboard.PeriodAllTime},
		{Category: "karma", Period: leaderboard.PeriodWeekly},
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	var pages map[string]*leaderboard.Page
	require.NoError(t, json.Unmarshal(env.Data, &pages))
	assert.Len(t, pages, 1, "the invalid board is dropped, the rest still succeed")
	assert.Contains(t, pages, "total_xp_all_time")
}

func TestServer_SocialStatsAndReputation(t *testing.T) {
	st := memory.NewDocStore(memory.WithClock(func() time.Time { return testNow }))
	seedUsers(t, st, map[string]float64{"ann": 2500, "ben": 100})
	h := newTestServer(t, st, nil)

	rec, _ := do(t, h, http.MethodPost, "/api/v1/users/ann/follow", "ben", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := do(t, h, http.MethodGet, "/api/v1/users/ann/social-stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, float64(1), stats["followersCount"])

	rec, env = do(t, h, http.MethodPost, "/api/v1/users/ann/reputation", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rep ReputationResponse
	require.NoError(t, json.Unmarshal(env.Data, &rep))
	assert.Equal(t, "ann", rep.UserID)
	assert.Equal(t, 1, rep.FollowersCount)
	// 0.5 * 2500/5000 + 0.2 * 1/1000 = 0.2502 -> 25
	assert.Equal(t, 25, rep.Score)
}

type staticChecker struct{ status handlers.HealthStatus }

func (c staticChecker) Check(context.Context) handlers.HealthStatus { return c.status }
func (staticChecker) AddCheck(string, handlers.HealthCheckFunc)     {}
func (staticChecker) RemoveCheck(string)                            {}

func TestServer_HealthReadyAndMetrics(t *testing.T) {
	st := memory.NewDocStore()
	down := staticChecker{status: handlers.HealthStatus{Healthy: false, Message: "failed checks: store"}}
	h := newTestServer(t, st, down)

	rec, _ := do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, env := do(t, h, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", env.Error.Code)

	rec, _ = do(t, h, http.MethodGet, "/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy := newTestServer(t, st, handlers.NewCompositeHealthChecker("test"))
	rec, _ = do(t, healthy, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, healthy, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_RecoversFromPanics(t *testing.T) {
	srv := NewServer(Config{}, Dependencies{Logger: logger.New(logger.Options{Output: io.Discard})})
	srv.router.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec, env := do(t, srv.Handler(), http.MethodGet, "/boom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_server_error", env.Error.Code)
}

func TestRateLimiter(t *testing.T) {
	clock := testNow
	rl := newRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return clock }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"))

	clock = clock.Add(61 * time.Second)
	assert.True(t, rl.Allow("1.2.3.4"))
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", getClientIP(req))
}

func TestServer_InvalidateCache(t *testing.T) {
	ctx := context.Background()
	cache := memory.NewPageCache(time.Minute)
	page := leaderboard.NewEmptyPage(leaderboard.CategoryTotalXP, leaderboard.PeriodAllTime, testNow)
	require.NoError(t, cache.Set(ctx, "total_xp:all_time:20:", page, time.Minute))
	require.NoError(t, cache.Set(ctx, "total_xp:weekly:20:ann", page, time.Minute))
	require.NoError(t, cache.Set(ctx, "trade_count:all_time:20:", page, time.Minute))

	srv := NewServer(Config{AdminToken: "s3cret"}, Dependencies{
		Cache:  cache,
		Logger: logger.New(logger.Options{Output: io.Discard}),
	})
	h := srv.Handler()

	call := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, path, nil)
		if token != "" {
			req.Header.Set(AdminTokenHeader, token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusForbidden, call("/api/v1/leaderboards/cache", "").Code)
	assert.Equal(t, http.StatusForbidden, call("/api/v1/leaderboards/cache", "guess").Code)
	assert.Equal(t, http.StatusBadRequest, call("/api/v1/leaderboards/cache?category=karma", "s3cret").Code)
	assert.Equal(t, http.StatusBadRequest, call("/api/v1/leaderboards/cache?category=%2A", "s3cret").Code, "glob is not a category")

	rec := call("/api/v1/leaderboards/cache?category=total_xp", "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":2}`, string(extractData(t, rec)))
	assert.Equal(t, 1, cache.Len())

	rec = call("/api/v1/leaderboards/cache", "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, cache.Len())
}

func TestServer_InvalidateCache_DisabledWithoutToken(t *testing.T) {
	srv := NewServer(Config{}, Dependencies{
		Cache:  memory.NewPageCache(time.Minute),
		Logger: logger.New(logger.Options{Output: io.Discard}),
	})
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/leaderboards/cache", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func extractData(t *testing.T, rec *httptest.ResponseRecorder) json.RawMessage {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Data
}
