package command

import (
	"context"
	"log/slog"

	"github.com/alem-hub/community-rankings/internal/domain/leaderboard"
	"github.com/alem-hub/community-rankings/internal/domain/shared"
	"github.com/alem-hub/community-rankings/internal/domain/social"
	"github.com/alem-hub/community-rankings/internal/domain/store"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD STANDING
// Counts leaderboard appearances and keeps the best rank per category.
// ══════════════════════════════════════════════════════════════════════════════

// StandingRecorder persists observed standings into social_stats.
type StandingRecorder struct {
	store  store.DocumentStore
	logger *slog.Logger
}

// NewStandingRecorder creates a new StandingRecorder.
func NewStandingRecorder(st store.DocumentStore, logger *slog.Logger) *StandingRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &StandingRecorder{store: st, logger: logger.With("component", "standing_recorder")}
}

// RecordStanding implements leaderboard.StandingRecorder. Best-effort.
func (r *StandingRecorder) RecordStanding(ctx context.Context, userID string, category leaderboard.Category, rank int) {
	improved, err := r.Handle(ctx, userID, category, rank)
	if err != nil {
		r.logger.Warn("failed to record standing", "user_id", userID, "category", category, "error", err)
		return
	}
	if improved {
		r.logger.Debug("new best rank", "user_id", userID, "category", category, "rank", rank)
	}
}

// Handle applies one observation and reports whether it set a new best rank.
func (r *StandingRecorder) Handle(ctx context.Context, userID string, category leaderboard.Category, rank int) (bool, error) {
	if err := shared.ValidateUserIDs(userID); err != nil {
		return false, social.ErrInvalidUserID
	}
	if !category.IsValid() {
		return false, shared.NewDomainError("leaderboard", "RecordStanding", shared.ErrValidation, "unknown category")
	}
	if rank < 1 {
		return false, shared.NewDomainError("leaderboard", "RecordStanding", shared.ErrValidation, "rank must be positive")
	}

	var improved bool
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		followers, following, err := social.CountEdges(ctx, tx, userID)
		if err != nil {
			return err
		}
		now := r.store.Now().UTC()
		stats, err := loadStats(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		improved = stats.RecordRank(category.String(), rank)
		stats.Reconcile(followers, following)
		stats.LastUpdated = now
		return tx.Set(ctx, store.CollectionSocialStats, userID, stats.Document())
	})
	if err != nil {
		return false, shared.StoreError("leaderboard", "RecordStanding", err)
	}
	return improved, nil
}

var _ leaderboard.StandingRecorder = (*StandingRecorder)(nil)
