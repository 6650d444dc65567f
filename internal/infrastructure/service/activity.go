package service

import (
	"context"
	"errors"

	"github.com/alem-hub/community-rankings/internal/domain/leaderboard"
	"github.com/alem-hub/community-rankings/internal/domain/reputation"
	"github.com/alem-hub/community-rankings/internal/domain/store"
)

const (
	fieldCreatorID     = "creatorId"
	fieldParticipantID = "participantId"
	fieldStatus        = "status"

	// TradeStatusCompleted is the only trade status that counts toward reputation.
	TradeStatusCompleted = "completed"
)

// ActivityService reads XP and trade history for the reputation scorer.
type ActivityService struct {
	store store.DocumentStore
}

// NewActivityService creates an ActivityService.
func NewActivityService(st store.DocumentStore) *ActivityService {
	return &ActivityService{store: st}
}

// GetTotalXP implements reputation.XPSource. Users without stats have 0 XP.
func (s *ActivityService) GetTotalXP(ctx context.Context, userID string) (float64, error) {
	doc, err := s.store.Get(ctx, store.CollectionUserStats, userID)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			return 0, nil
		}
		return 0, err
	}
	xp, _ := store.Float(doc.Data, leaderboard.FieldTotalXP)
	return xp, nil
}

// CountTradesInvolving implements reputation.TradeCounter: completed trades
// the user created plus completed trades the user joined.
func (s *ActivityService) CountTradesInvolving(ctx context.Context, userID string) (int, error) {
	total := 0
	for _, side := range []string{fieldCreatorID, fieldParticipantID} {
		n, err := s.store.Count(ctx, store.Query{
			Collection: store.CollectionTrades,
			Filters: []store.Filter{
				store.Eq(side, userID),
				store.Eq(fieldStatus, TradeStatusCompleted),
			},
		})
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

var (
	_ reputation.XPSource     = (*ActivityService)(nil)
	_ reputation.TradeCounter = (*ActivityService)(nil)
)
