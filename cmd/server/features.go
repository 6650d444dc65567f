package main

import (
	"context"

	"github.com/alem-hub/community-rankings/config"
	"github.com/alem-hub/community-rankings/internal/domain/leaderboard"
	"github.com/alem-hub/community-rankings/internal/domain/social"
)

// Обёртки, включающие побочные эффекты событий по feature flags.
// Решение принимается на каждый вызов, поэтому флаги можно менять на лету.

type gatedNotifier struct {
	next  social.Notifier
	flags *config.FeatureFlags
}

func (g *gatedNotifier) Notify(ctx context.Context, userID, notificationType string, payload map[string]any) error {
	if !g.flags.IsEnabled(config.FeatureNotifyNewFollower, userID) {
		return nil
	}
	return g.next.Notify(ctx, userID, notificationType, payload)
}

type gatedRecomputer struct {
	next  social.ReputationRecomputer
	flags *config.FeatureFlags
}

func (g *gatedRecomputer) Recompute(ctx context.Context, userID string) {
	if g.flags.IsEnabled(config.FeatureReputationOnFollow, userID) {
		g.next.Recompute(ctx, userID)
	}
}

type gatedStandingRecorder struct {
	next  leaderboard.StandingRecorder
	flags *config.FeatureFlags
}

func (g *gatedStandingRecorder) RecordStanding(ctx context.Context, userID string, category leaderboard.Category, rank int) {
	if g.flags.IsEnabled(config.FeatureStandingRecorder, userID) {
		g.next.RecordStanding(ctx, userID, category, rank)
	}
}
