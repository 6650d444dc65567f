package query

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/community-rankings/internal/domain/leaderboard"
	"github.com/alem-hub/community-rankings/internal/domain/shared"
	"github.com/alem-hub/community-rankings/internal/domain/store"
	"github.com/alem-hub/community-rankings/pkg/tracing"
)

// ══════════════════════════════════════════════════════════════════════════════
// CIRCLE LEADERBOARD
// Рейтинг внутри произвольного круга участников. Фильтр "in" ограничен
// store.MaxInValues, поэтому круг режется на куски, а результаты
// сливаются и ранжируются на клиенте. Кэш не используется: состав круга
// у каждого вызывающего свой.
// ══════════════════════════════════════════════════════════════════════════════

// FollowingLister lists whom a user follows.
type FollowingLister interface {
	FollowingIDs(ctx context.Context, userID string) ([]string, error)
}

// GetCircleLeaderboard ranks memberIDs among themselves.
// An empty member list yields an empty page without touching the store.
func (a *LeaderboardAssembler) GetCircleLeaderboard(
	ctx context.Context,
	category leaderboard.Category,
	period leaderboard.Period,
	memberIDs []string,
	callerID string,
) (page *leaderboard.Page, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		a.metrics.ObserveLeaderboard("circle", outcome, time.Since(start))
	}()

	if !period.IsValid() {
		period = leaderboard.PeriodAllTime
	}
	category, err = leaderboard.ParseCategory(string(category))
	if err != nil {
		return nil, err
	}

	chunks := leaderboard.ChunkIDs(memberIDs, store.MaxInValues)
	if len(chunks) == 0 {
		return leaderboard.NewEmptyPage(category, period, a.store.Now()), nil
	}
	for _, chunk := range chunks {
		if err := shared.ValidateUserIDs(chunk...); err != nil {
			return nil, err
		}
	}

	ctx, span := tracer.Start(ctx, "LeaderboardAssembler.GetCircleLeaderboard", trace.WithAttributes(
		attribute.String("category", string(category)),
		attribute.String("period", string(period)),
		attribute.Int("members", len(memberIDs)),
		attribute.Int("chunks", len(chunks)),
	))
	defer func() { tracing.End(span, err) }()
	a.metrics.ObserveCircleChunks(len(chunks))

	plan, err := a.planner.Plan(category, period, a.ranges.Range(period))
	if err != nil {
		return nil, err
	}

	merged, err := a.fetchChunks(ctx, plan, chunks)
	if err != nil {
		return nil, err
	}

	page = leaderboard.NewEmptyPage(category, period, a.store.Now())
	page.Entries = a.entries(ctx, leaderboard.AssignRanks(merged), callerID)
	page.TotalParticipants = len(page.Entries)

	if callerID != "" && contains(memberIDs, callerID) {
		if _, found := page.Find(callerID); !found {
			// no circle value: fall back to the caller's global standing
			entry, err := a.resolveCaller(ctx, plan, callerID)
			if err != nil {
				return nil, err
			}
			page.CurrentUserEntry = entry
		}
	}
	return page, nil
}

// GetFollowingCircleLeaderboard ranks callerID against everyone they follow.
func (a *LeaderboardAssembler) GetFollowingCircleLeaderboard(
	ctx context.Context,
	following FollowingLister,
	category leaderboard.Category,
	period leaderboard.Period,
	callerID string,
) (*leaderboard.Page, error) {
	if err := shared.ValidateUserIDs(callerID); err != nil {
		return nil, err
	}
	ids, err := following.FollowingIDs(ctx, callerID)
	if err != nil {
		return nil, err
	}
	return a.GetCircleLeaderboard(ctx, category, period, append(ids, callerID), callerID)
}

// fetchChunks issues one members query per chunk and concatenates records.
// A user appears at most once because chunks are disjoint.
func (a *LeaderboardAssembler) fetchChunks(ctx context.Context, plan leaderboard.Plan, chunks [][]string) ([]leaderboard.Record, error) {
	var merged []leaderboard.Record
	for _, chunk := range chunks {
		docs, err := a.store.Query(ctx, plan.MembersQuery(chunk))
		if err != nil {
			return nil, shared.StoreError("leaderboard", "GetCircleLeaderboard", err)
		}
		merged = append(merged, plan.Records(docs)...)
	}
	return merged, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
