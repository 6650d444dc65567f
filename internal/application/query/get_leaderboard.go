// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/community-rankings/internal/domain/leaderboard"
	"github.com/alem-hub/community-rankings/internal/domain/shared"
	"github.com/alem-hub/community-rankings/internal/domain/store"
	"github.com/alem-hub/community-rankings/pkg/metrics"
	"github.com/alem-hub/community-rankings/pkg/tracing"
)

var tracer = tracing.Tracer("github.com/alem-hub/community-rankings/internal/application/query")

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD ASSEMBLER
// Собирает страницы рейтинга: глобальные (с кэшем), по кругу участников
// и пакетные. Места назначаются одной формулой: 1 + число строго
// больших значений.
// ══════════════════════════════════════════════════════════════════════════════

// Limit bounds.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// DefaultCacheTTL is how long a global page stays cached.
const DefaultCacheTTL = 5 * time.Minute

// AssemblerConfig configures LeaderboardAssembler.
type AssemblerConfig struct {
	CacheTTL     time.Duration
	DefaultLimit int
}

// DefaultAssemblerConfig returns production defaults.
func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{
		CacheTTL:     DefaultCacheTTL,
		DefaultLimit: DefaultLimit,
	}
}

// LeaderboardAssembler builds leaderboard pages.
type LeaderboardAssembler struct {
	store          store.DocumentStore
	planner        *leaderboard.Planner
	ranges         *leaderboard.RangeCalculator
	resolver       *leaderboard.RankResolver
	profiles       shared.ProfileLookup
	cache          leaderboard.PageCache
	eventPublisher shared.EventPublisher
	metrics        *metrics.Manager
	logger         *slog.Logger
	config         AssemblerConfig
}

// AssemblerDeps groups the assembler's collaborators.
// Cache, EventPublisher and Metrics are optional.
type AssemblerDeps struct {
	Store          store.DocumentStore
	Ranges         *leaderboard.RangeCalculator
	Profiles       shared.ProfileLookup
	Cache          leaderboard.PageCache
	EventPublisher shared.EventPublisher
	Metrics        *metrics.Manager
	Logger         *slog.Logger
}

// NewLeaderboardAssembler creates a new LeaderboardAssembler.
func NewLeaderboardAssembler(deps AssemblerDeps, config AssemblerConfig) *LeaderboardAssembler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Ranges == nil {
		deps.Ranges = leaderboard.NewRangeCalculator(nil, nil)
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultCacheTTL
	}
	if config.DefaultLimit <= 0 || config.DefaultLimit > MaxLimit {
		config.DefaultLimit = DefaultLimit
	}
	return &LeaderboardAssembler{
		store:          deps.Store,
		planner:        leaderboard.NewPlanner(),
		ranges:         deps.Ranges,
		resolver:       leaderboard.NewRankResolver(deps.Store),
		profiles:       deps.Profiles,
		cache:          deps.Cache,
		eventPublisher: deps.EventPublisher,
		metrics:        deps.Metrics,
		logger:         deps.Logger.With("component", "leaderboard_assembler"),
		config:         config,
	}
}

// ClampLimit maps a requested limit into [1, MaxLimit]; zero or negative
// means the default.
func (a *LeaderboardAssembler) ClampLimit(limit int) int {
	if limit <= 0 {
		return a.config.DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// GetLeaderboard returns the top-limit page for (category, period).
// When callerID is set and outside the page, the caller's own standing is
// resolved into CurrentUserEntry. All-or-nothing: store failures yield no page.
func (a *LeaderboardAssembler) GetLeaderboard(
	ctx context.Context,
	category leaderboard.Category,
	period leaderboard.Period,
	limit int,
	callerID string,
) (page *leaderboard.Page, err error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if err != nil {
			outcome = "error"
		}
		a.metrics.ObserveLeaderboard("global", outcome, time.Since(start))
	}()

	if !period.IsValid() {
		period = leaderboard.PeriodAllTime
	}
	category, err = leaderboard.ParseCategory(string(category))
	if err != nil {
		return nil, err
	}
	if callerID != "" {
		if err := shared.ValidateUserIDs(callerID); err != nil {
			return nil, err
		}
	}
	limit = a.ClampLimit(limit)

	ctx, span := tracer.Start(ctx, "LeaderboardAssembler.GetLeaderboard", trace.WithAttributes(
		attribute.String("category", string(category)),
		attribute.String("period", string(period)),
		attribute.Int("limit", limit),
	))
	defer func() { tracing.End(span, err) }()

	key := leaderboard.CacheKey(category, period, limit, callerID)
	if cached := a.cached(ctx, key); cached != nil {
		outcome = "cache_hit"
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return cached, nil
	}

	page, err = a.build(ctx, category, period, limit, callerID)
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		if cerr := a.cache.Set(ctx, key, page, a.config.CacheTTL); cerr != nil {
			a.logger.Warn("failed to cache leaderboard page", "key", key, "error", cerr)
		}
	}
	a.observeStanding(page, callerID)
	return page, nil
}

// RefreshLeaderboard rebuilds the anonymous page for (category, period) from
// the store and overwrites its cache entry, whether or not one is live.
// The scheduler calls it so cached pages are replaced before they expire.
func (a *LeaderboardAssembler) RefreshLeaderboard(
	ctx context.Context,
	category leaderboard.Category,
	period leaderboard.Period,
	limit int,
) (page *leaderboard.Page, err error) {
	if !period.IsValid() {
		period = leaderboard.PeriodAllTime
	}
	category, err = leaderboard.ParseCategory(string(category))
	if err != nil {
		return nil, err
	}
	limit = a.ClampLimit(limit)

	ctx, span := tracer.Start(ctx, "LeaderboardAssembler.RefreshLeaderboard", trace.WithAttributes(
		attribute.String("category", string(category)),
		attribute.String("period", string(period)),
		attribute.Int("limit", limit),
	))
	defer func() { tracing.End(span, err) }()

	page, err = a.build(ctx, category, period, limit, "")
	if err != nil {
		return nil, err
	}
	if a.cache != nil {
		key := leaderboard.CacheKey(category, period, limit, "")
		if err := a.cache.Set(ctx, key, page, a.config.CacheTTL); err != nil {
			return nil, fmt.Errorf("cache %s: %w", key, err)
		}
	}
	return page, nil
}

func (a *LeaderboardAssembler) cached(ctx context.Context, key string) *leaderboard.Page {
	if a.cache == nil {
		return nil
	}
	page, err := a.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, leaderboard.ErrCacheMiss) {
			a.logger.Warn("leaderboard cache read failed", "key", key, "error", err)
		}
		a.metrics.CacheMiss()
		return nil
	}
	a.metrics.CacheHit()
	return page
}

func (a *LeaderboardAssembler) build(
	ctx context.Context,
	category leaderboard.Category,
	period leaderboard.Period,
	limit int,
	callerID string,
) (*leaderboard.Page, error) {
	plan, err := a.planner.Plan(category, period, a.ranges.Range(period))
	if err != nil {
		return nil, err
	}

	docs, err := a.store.Query(ctx, plan.TopQuery(limit))
	if err != nil {
		return nil, shared.StoreError("leaderboard", "GetLeaderboard", err)
	}
	total, err := a.store.Count(ctx, plan.CountQuery())
	if err != nil {
		return nil, shared.StoreError("leaderboard", "GetLeaderboard", err)
	}

	page := leaderboard.NewEmptyPage(category, period, a.store.Now())
	page.TotalParticipants = total
	page.Entries = a.entries(ctx, leaderboard.AssignRanks(plan.Records(docs)), callerID)

	if callerID != "" {
		if _, found := page.Find(callerID); !found {
			entry, err := a.resolveCaller(ctx, plan, callerID)
			if err != nil {
				return nil, err
			}
			page.CurrentUserEntry = entry
		}
	}
	return page, nil
}

// resolveCaller computes the caller's global entry; nil when unranked.
func (a *LeaderboardAssembler) resolveCaller(ctx context.Context, plan leaderboard.Plan, callerID string) (*leaderboard.Entry, error) {
	res, found, err := a.resolver.Resolve(ctx, plan, callerID)
	if err != nil {
		return nil, shared.StoreError("leaderboard", "ResolveRank", err)
	}
	if !found {
		return nil, nil
	}
	entry := a.entry(ctx, res.UserID, res.Value, res.Rank)
	entry.IsCurrentUser = true
	return &entry, nil
}

func (a *LeaderboardAssembler) entries(ctx context.Context, ranked []leaderboard.RankedRecord, callerID string) []leaderboard.Entry {
	out := make([]leaderboard.Entry, 0, len(ranked))
	for _, r := range ranked {
		e := a.entry(ctx, r.UserID, r.Value, r.Rank)
		e.IsCurrentUser = callerID != "" && r.UserID == callerID
		out = append(out, e)
	}
	return out
}

func (a *LeaderboardAssembler) entry(ctx context.Context, userID string, value float64, rank int) leaderboard.Entry {
	e := leaderboard.Entry{UserID: userID, Rank: rank, Value: value}
	if a.profiles == nil {
		return e
	}
	profile, err := a.profiles.GetUser(ctx, userID)
	switch {
	case err == nil:
		e.DisplayName = profile.DisplayName
		e.AvatarRef = profile.AvatarRef
	case !shared.IsNotFound(err):
		a.logger.Warn("profile lookup failed", "user_id", userID, "error", err)
	}
	return e
}

// observeStanding publishes the caller's freshly computed rank.
func (a *LeaderboardAssembler) observeStanding(page *leaderboard.Page, callerID string) {
	if a.eventPublisher == nil || callerID == "" {
		return
	}
	rank, ok := page.CallerRank()
	if !ok {
		return
	}
	event := shared.NewStandingObservedEvent(callerID, string(page.Category), string(page.Period), rank)
	if err := a.eventPublisher.Publish(event); err != nil {
		a.logger.Warn("failed to publish standing", "user_id", callerID, "error", err)
	}
}
