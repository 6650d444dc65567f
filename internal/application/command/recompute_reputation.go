package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/community-rankings/internal/domain/reputation"
	"github.com/alem-hub/community-rankings/internal/domain/shared"
	"github.com/alem-hub/community-rankings/internal/domain/social"
	"github.com/alem-hub/community-rankings/internal/domain/store"
	"github.com/alem-hub/community-rankings/pkg/metrics"
	"github.com/alem-hub/community-rankings/pkg/tracing"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMPUTE REPUTATION
// Rebuilds a user's composite score from XP, completed trades and followers,
// and rewrites the cached follow counters from live edges.
// ══════════════════════════════════════════════════════════════════════════════

// ReputationResult is the outcome of one recompute.
type ReputationResult struct {
	UserID         string
	Breakdown      reputation.Breakdown
	FollowersCount int
	FollowingCount int
	CountersDrift  bool
	ComputedAt     time.Time
}

// ReputationScorer recomputes and persists reputation scores.
type ReputationScorer struct {
	store   store.DocumentStore
	xp      reputation.XPSource
	trades  reputation.TradeCounter
	metrics *metrics.Manager
	logger  *slog.Logger
}

// NewReputationScorer creates a new ReputationScorer.
func NewReputationScorer(
	st store.DocumentStore,
	xp reputation.XPSource,
	trades reputation.TradeCounter,
	m *metrics.Manager,
	logger *slog.Logger,
) *ReputationScorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReputationScorer{
		store:   st,
		xp:      xp,
		trades:  trades,
		metrics: m,
		logger:  logger.With("component", "reputation_scorer"),
	}
}

// Recompute implements social.ReputationRecomputer. Failures are logged
// and counted, never returned.
func (s *ReputationScorer) Recompute(ctx context.Context, userID string) {
	result, err := s.Handle(ctx, userID)
	s.metrics.ReputationRecomputed(err)
	if err != nil {
		s.logger.Error("reputation recompute failed", "user_id", userID, "error", err)
		return
	}
	if result.CountersDrift {
		s.logger.Warn("social stats counters drifted, reconciled",
			"user_id", userID,
			"followers", result.FollowersCount,
			"following", result.FollowingCount,
		)
	}
	s.logger.Debug("reputation recomputed", "user_id", userID, "score", result.Breakdown.Score)
}

// Handle recomputes the score and upserts it into social_stats.
func (s *ReputationScorer) Handle(ctx context.Context, userID string) (result *ReputationResult, err error) {
	ctx, span := tracer.Start(ctx, "ReputationScorer.Recompute", trace.WithAttributes(
		attribute.String("user_id", userID),
	))
	defer func() { tracing.End(span, err) }()

	if err := shared.ValidateUserIDs(userID); err != nil {
		return nil, social.ErrInvalidUserID
	}

	totalXP, err := s.xp.GetTotalXP(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("recompute_reputation: xp lookup: %w", err)
	}
	trades, err := s.trades.CountTradesInvolving(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("recompute_reputation: trade count: %w", err)
	}

	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		followers, following, err := social.CountEdges(ctx, tx, userID)
		if err != nil {
			return err
		}

		now := s.store.Now().UTC()
		stats, err := loadStats(ctx, tx, userID, now)
		if err != nil {
			return err
		}

		breakdown := reputation.Compute(reputation.Inputs{XP: totalXP, Trades: trades, Followers: followers})
		drift := stats.Reconcile(followers, following)
		stats.ReputationScore = breakdown.Score
		stats.ReputationComputedAt = &now
		stats.LastUpdated = now

		result = &ReputationResult{
			UserID:         userID,
			Breakdown:      breakdown,
			FollowersCount: followers,
			FollowingCount: following,
			CountersDrift:  drift,
			ComputedAt:     now,
		}
		return tx.Set(ctx, store.CollectionSocialStats, userID, stats.Document())
	})
	if err != nil {
		return nil, shared.StoreError("reputation", "Recompute", err)
	}
	return result, nil
}

// loadStats reads social_stats inside tx or starts a fresh record.
func loadStats(ctx context.Context, tx store.Tx, userID string, now time.Time) (*social.Stats, error) {
	doc, err := tx.Get(ctx, store.CollectionSocialStats, userID)
	if errors.Is(err, store.ErrDocumentNotFound) {
		return social.NewStats(userID, now), nil
	}
	if err != nil {
		return nil, err
	}
	return social.StatsFromDocument(doc), nil
}
