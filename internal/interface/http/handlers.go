package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alem-hub/community-rankings/internal/application/command"
	"github.com/alem-hub/community-rankings/internal/domain/leaderboard"
	"github.com/alem-hub/community-rankings/internal/domain/reputation"
	"github.com/alem-hub/community-rankings/internal/domain/shared"
	"github.com/alem-hub/community-rankings/internal/domain/social"
	"github.com/alem-hub/community-rankings/internal/interface/http/handlers"
	"github.com/alem-hub/community-rankings/pkg/logger"
)

const (
	// MaxCircleMembers caps explicit circle requests.
	MaxCircleMembers = 500

	// MaxBatchBoards caps one batch request.
	MaxBatchBoards = 20
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"name":    "Community Rankings API",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":       "/health",
			"leaderboard":  "/api/v1/leaderboards/{category}",
			"batch":        "/api/v1/leaderboards/batch",
			"follow":       "/api/v1/users/{id}/follow",
			"social_stats": "/api/v1/users/{id}/social-stats",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{
			"healthy": true,
			"uptime":  s.Uptime().Round(time.Second).String(),
			"version": s.config.Version,
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleReady reports 503 until every dependency check passes.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if status := s.deps.HealthChecker.Check(r.Context()); !status.Healthy {
			writeJSONError(w, r, http.StatusServiceUnavailable, &APIError{
				Code:      "not_ready",
				Message:   status.Message,
				Retryable: true,
			})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLeaderboard handles GET /api/v1/leaderboards/{category}?period=&limit=
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.Leaderboards == nil {
		notConfigured(w, r, "leaderboards")
		return
	}

	q := r.URL.Query()
	page, err := s.deps.Leaderboards.GetLeaderboard(r.Context(),
		leaderboard.Category(r.PathValue("category")),
		leaderboard.ParsePeriod(q.Get("period")),
		getQueryParamInt(r, "limit", 0),
		handlers.CallerFromContext(r.Context()),
	)
	if err != nil {
		s.writeError(w, r, "GetLeaderboard", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, page, &ResponseMeta{TotalCount: page.TotalParticipants})
}

// handleGetFollowingCircle handles GET /api/v1/leaderboards/{category}/following?period=
// The circle is the caller plus everyone the caller follows.
func (s *Server) handleGetFollowingCircle(w http.ResponseWriter, r *http.Request) {
	if s.deps.Leaderboards == nil || s.deps.Follows == nil {
		notConfigured(w, r, "leaderboards")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	page, err := s.deps.Leaderboards.GetFollowingCircleLeaderboard(r.Context(),
		s.deps.Follows,
		leaderboard.Category(r.PathValue("category")),
		leaderboard.ParsePeriod(r.URL.Query().Get("period")),
		caller,
	)
	if err != nil {
		s.writeError(w, r, "GetFollowingCircleLeaderboard", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, page, &ResponseMeta{TotalCount: page.TotalParticipants})
}

type circleRequest struct {
	Period  string   `json:"period"`
	Members []string `json:"members"`
}

// handleGetCircle handles POST /api/v1/leaderboards/{category}/circle
func (s *Server) handleGetCircle(w http.ResponseWriter, r *http.Request) {
	if s.deps.Leaderboards == nil {
		notConfigured(w, r, "leaderboards")
		return
	}

	var req circleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Members) > MaxCircleMembers {
		writeJSONError(w, r, http.StatusBadRequest, &APIError{
			Code:    "validation_error",
			Message: fmt.Sprintf("a circle holds at most %d members", MaxCircleMembers),
		})
		return
	}

	page, err := s.deps.Leaderboards.GetCircleLeaderboard(r.Context(),
		leaderboard.Category(r.PathValue("category")),
		leaderboard.ParsePeriod(req.Period),
		req.Members,
		handlers.CallerFromContext(r.Context()),
	)
	if err != nil {
		s.writeError(w, r, "GetCircleLeaderboard", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, page, &ResponseMeta{TotalCount: page.TotalParticipants})
}

type batchRequest struct {
	Boards []leaderboard.Config `json:"boards"`
}

// handleGetMultiple handles POST /api/v1/leaderboards/batch. Boards that fail
// are absent from the result map; the request itself still succeeds.
func (s *Server) handleGetMultiple(w http.ResponseWriter, r *http.Request) {
	if s.deps.Leaderboards == nil {
		notConfigured(w, r, "leaderboards")
		return
	}

	var req batchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Boards) > MaxBatchBoards {
		writeJSONError(w, r, http.StatusBadRequest, &APIError{
			Code:    "validation_error",
			Message: fmt.Sprintf("a batch holds at most %d boards", MaxBatchBoards),
		})
		return
	}
	for i := range req.Boards {
		req.Boards[i].Period = leaderboard.ParsePeriod(string(req.Boards[i].Period))
	}

	pages := s.deps.Leaderboards.GetMultipleLeaderboards(r.Context(), req.Boards, handlers.CallerFromContext(r.Context()))
	writeJSONWithMeta(w, r, http.StatusOK, pages, &ResponseMeta{TotalCount: len(pages)})
}

// ══════════════════════════════════════════════════════════════════════════════
// SOCIAL GRAPH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// FollowEdgeResponse is the wire form of a follow edge.
type FollowEdgeResponse struct {
	FollowerID           string    `json:"followerId"`
	FollowingID          string    `json:"followingId"`
	FollowingDisplayName string    `json:"followingDisplayName"`
	FollowingAvatar      string    `json:"followingAvatar,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
}

func toFollowEdgeResponse(e *social.FollowEdge) FollowEdgeResponse {
	return FollowEdgeResponse{
		FollowerID:           e.FollowerID,
		FollowingID:          e.FollowingID,
		FollowingDisplayName: e.FollowingDisplayName,
		FollowingAvatar:      e.FollowingAvatar,
		CreatedAt:            e.CreatedAt,
	}
}

// handleFollow handles POST /api/v1/users/{id}/follow: the caller follows {id}.
func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	if s.deps.Follows == nil {
		notConfigured(w, r, "follows")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	edge, err := s.deps.Follows.Follow(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "Follow", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toFollowEdgeResponse(edge))
}

// handleUnfollow handles DELETE /api/v1/users/{id}/follow.
func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	if s.deps.Follows == nil {
		notConfigured(w, r, "follows")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	target := r.PathValue("id")
	if err := s.deps.Follows.Unfollow(r.Context(), caller, target); err != nil {
		s.writeError(w, r, "Unfollow", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"followerId": caller, "followingId": target, "following": false})
}

// handleIsFollowing handles GET /api/v1/users/{id}/follow.
func (s *Server) handleIsFollowing(w http.ResponseWriter, r *http.Request) {
	if s.deps.Follows == nil {
		notConfigured(w, r, "follows")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	target := r.PathValue("id")
	following, err := s.deps.Follows.IsFollowing(r.Context(), caller, target)
	if err != nil {
		s.writeError(w, r, "IsFollowing", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"followerId": caller, "followingId": target, "following": following})
}

func (s *Server) handleListFollowers(w http.ResponseWriter, r *http.Request) {
	s.listEdges(w, r, "ListFollowers", (*command.FollowGraph).ListFollowers)
}

func (s *Server) handleListFollowing(w http.ResponseWriter, r *http.Request) {
	s.listEdges(w, r, "ListFollowing", (*command.FollowGraph).ListFollowing)
}

func (s *Server) listEdges(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	list func(*command.FollowGraph, context.Context, string) ([]*social.FollowEdge, error),
) {
	if s.deps.Follows == nil {
		notConfigured(w, r, "follows")
		return
	}

	edges, err := list(s.deps.Follows, r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	out := make([]FollowEdgeResponse, 0, len(edges))
	for _, e := range edges {
		out = append(out, toFollowEdgeResponse(e))
	}
	writeJSONWithMeta(w, r, http.StatusOK, out, &ResponseMeta{TotalCount: len(out)})
}

func (s *Server) handleCountFollowers(w http.ResponseWriter, r *http.Request) {
	s.countEdges(w, r, "CountFollowers", (*command.FollowGraph).CountFollowers)
}

func (s *Server) handleCountFollowing(w http.ResponseWriter, r *http.Request) {
	s.countEdges(w, r, "CountFollowing", (*command.FollowGraph).CountFollowing)
}

func (s *Server) countEdges(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	count func(*command.FollowGraph, context.Context, string) (int, error),
) {
	if s.deps.Follows == nil {
		notConfigured(w, r, "follows")
		return
	}

	userID := r.PathValue("id")
	n, err := count(s.deps.Follows, r.Context(), userID)
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"userId": userID, "count": n})
}

// ══════════════════════════════════════════════════════════════════════════════
// SOCIAL STATS & REPUTATION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetSocialStats handles GET /api/v1/users/{id}/social-stats.
func (s *Server) handleGetSocialStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.SocialStats == nil {
		notConfigured(w, r, "social stats")
		return
	}

	stats, err := s.deps.SocialStats.Handle(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "GetSocialStats", err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// ReputationResponse is the wire form of a recompute result.
type ReputationResponse struct {
	UserID         string               `json:"userId"`
	Score          int                  `json:"score"`
	Breakdown      reputation.Breakdown `json:"breakdown"`
	FollowersCount int                  `json:"followersCount"`
	FollowingCount int                  `json:"followingCount"`
	CountersDrift  bool                 `json:"countersDrift"`
	ComputedAt     time.Time            `json:"computedAt"`
}

// handleRecomputeReputation handles POST /api/v1/users/{id}/reputation and
// recomputes synchronously.
func (s *Server) handleRecomputeReputation(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reputation == nil {
		notConfigured(w, r, "reputation")
		return
	}

	result, err := s.deps.Reputation.Handle(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "RecomputeReputation", err)
		return
	}
	writeJSON(w, r, http.StatusOK, ReputationResponse{
		UserID:         result.UserID,
		Score:          result.Breakdown.Score,
		Breakdown:      result.Breakdown,
		FollowersCount: result.FollowersCount,
		FollowingCount: result.FollowingCount,
		CountersDrift:  result.CountersDrift,
		ComputedAt:     result.ComputedAt,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// AdminTokenHeader carries the operator token for admin endpoints.
const AdminTokenHeader = "X-Admin-Token"

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(AdminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.config.AdminToken)) != 1 {
			writeJSONError(w, r, http.StatusForbidden, &APIError{Code: "forbidden", Message: "admin token required"})
			return
		}
		next(w, r)
	}
}

// handleInvalidateCache handles DELETE /api/v1/leaderboards/cache?category=
// Without a category every cached page is dropped.
func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	prefix := ""
	if raw := r.URL.Query().Get("category"); raw != "" {
		category, err := leaderboard.ParseCategory(raw)
		if err != nil {
			s.writeError(w, r, "InvalidateCache", err)
			return
		}
		prefix = string(category) + ":"
	}

	removed, err := s.deps.Cache.Invalidate(r.Context(), prefix)
	if err != nil {
		s.writeError(w, r, "InvalidateCache", err)
		return
	}

	s.logger.Info("leaderboard cache invalidated",
		logger.String("prefix", prefix),
		logger.Int("removed", removed),
	)
	writeJSON(w, r, http.StatusOK, map[string]any{"removed": removed})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func requireCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := handlers.CallerFromContext(r.Context())
	if caller == "" {
		writeJSONError(w, r, http.StatusUnauthorized, &APIError{
			Code:    "unauthenticated",
			Message: "missing " + handlers.CallerHeader + " header",
		})
		return "", false
	}
	if err := shared.ValidateUserIDs(caller); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, &APIError{Code: "validation_error", Message: "invalid caller id"})
		return "", false
	}
	return caller, true
}

// decodeJSON reads a single JSON object; unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil && dec.More() {
		err = errors.New("unexpected data after JSON object")
	}
	if err == nil {
		return true
	}

	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		writeJSONError(w, r, http.StatusRequestEntityTooLarge, &APIError{Code: "payload_too_large", Message: "Request body too large"})
	case errors.Is(err, io.EOF):
		writeJSONError(w, r, http.StatusBadRequest, &APIError{Code: "invalid_body", Message: "Request body is empty"})
	default:
		writeJSONError(w, r, http.StatusBadRequest, &APIError{
			Code:    "invalid_body",
			Message: "Request body is not valid JSON",
			Details: strings.TrimPrefix(err.Error(), "json: "),
		})
	}
	return false
}

func notConfigured(w http.ResponseWriter, r *http.Request, what string) {
	writeJSONError(w, r, http.StatusNotImplemented, &APIError{
		Code:    "not_implemented",
		Message: what + " not configured",
	})
}
