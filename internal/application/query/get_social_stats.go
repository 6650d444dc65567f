package query

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alem-hub/community-rankings/internal/domain/shared"
	"github.com/alem-hub/community-rankings/internal/domain/social"
	"github.com/alem-hub/community-rankings/internal/domain/store"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SOCIAL STATS
// Возвращает социальную статистику пользователя. Запись создаётся лениво,
// счётчики подписок сверяются с живыми рёбрами при каждом чтении.
// ══════════════════════════════════════════════════════════════════════════════

// SocialStatsHandler обрабатывает запрос статистики.
type SocialStatsHandler struct {
	store  store.DocumentStore
	logger *slog.Logger
}

// NewSocialStatsHandler создаёт обработчик.
func NewSocialStatsHandler(st store.DocumentStore, logger *slog.Logger) *SocialStatsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SocialStatsHandler{store: st, logger: logger.With("component", "social_stats")}
}

// Handle возвращает статистику, записывая её только если запись
// отсутствовала или счётчики разошлись с рёбрами.
func (h *SocialStatsHandler) Handle(ctx context.Context, userID string) (*social.Stats, error) {
	if err := shared.ValidateUserIDs(userID); err != nil {
		return nil, social.ErrInvalidUserID
	}

	var (
		stats      *social.Stats
		reconciled bool
	)
	err := h.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		followers, following, err := social.CountEdges(ctx, tx, userID)
		if err != nil {
			return err
		}

		created := false
		doc, err := tx.Get(ctx, store.CollectionSocialStats, userID)
		switch {
		case errors.Is(err, store.ErrDocumentNotFound):
			stats = social.NewStats(userID, h.store.Now())
			created = true
		case err != nil:
			return err
		default:
			stats = social.StatsFromDocument(doc)
		}

		drift := stats.Reconcile(followers, following)
		if !created && !drift {
			return nil
		}
		reconciled = drift && !created
		stats.LastUpdated = h.store.Now().UTC()
		return tx.Set(ctx, store.CollectionSocialStats, userID, stats.Document())
	})
	if err != nil {
		return nil, shared.StoreError("social", "GetSocialStats", err)
	}
	if reconciled {
		h.logger.Info("reconciled social stats counters",
			"user_id", userID,
			"followers", stats.FollowersCount,
			"following", stats.FollowingCount,
		)
	}
	return stats, nil
}
