// Package command contains write operations following CQRS pattern.
// Commands mutate the follow graph and social stats; side effects that
// must not fail the mutation are delegated to event handlers.
package command

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/community-rankings/internal/domain/shared"
	"github.com/alem-hub/community-rankings/internal/domain/social"
	"github.com/alem-hub/community-rankings/internal/domain/store"
	"github.com/alem-hub/community-rankings/pkg/metrics"
	"github.com/alem-hub/community-rankings/pkg/tracing"
)

var tracer = tracing.Tracer("github.com/alem-hub/community-rankings/internal/application/command")

// ══════════════════════════════════════════════════════════════════════════════
// FOLLOW GRAPH
// Directed follow edges. Counts are always computed from live edges.
// ══════════════════════════════════════════════════════════════════════════════

// FollowGraph creates, removes and inspects follow edges.
type FollowGraph struct {
	store          store.DocumentStore
	profiles       shared.ProfileLookup
	eventPublisher shared.EventPublisher
	metrics        *metrics.Manager
	logger         *slog.Logger
}

// NewFollowGraph creates a new FollowGraph.
// publisher, m and logger may be nil.
func NewFollowGraph(
	st store.DocumentStore,
	profiles shared.ProfileLookup,
	publisher shared.EventPublisher,
	m *metrics.Manager,
	logger *slog.Logger,
) *FollowGraph {
	if logger == nil {
		logger = slog.Default()
	}
	return &FollowGraph{
		store:          st,
		profiles:       profiles,
		eventPublisher: publisher,
		metrics:        m,
		logger:         logger.With("component", "follow_graph"),
	}
}

// Follow creates the edge followerID -> followingID with a profile snapshot
// of the followed user. Reputation recompute and the new-follower
// notification run asynchronously off the published event.
func (g *FollowGraph) Follow(ctx context.Context, followerID, followingID string) (edge *social.FollowEdge, err error) {
	ctx, span := tracer.Start(ctx, "FollowGraph.Follow", trace.WithAttributes(
		attribute.String("follower_id", followerID),
		attribute.String("following_id", followingID),
	))
	defer func() {
		g.metrics.FollowOperation("follow", err)
		tracing.End(span, err)
	}()

	if err := social.ValidatePair(followerID, followingID); err != nil {
		return nil, err
	}

	target, err := g.profiles.GetUser(ctx, followingID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, social.ErrUserNotFound
		}
		return nil, shared.StoreError("social", "Follow", err)
	}

	edge, err = social.NewFollowEdge(followerID, followingID, target, g.store.Now())
	if err != nil {
		return nil, err
	}

	err = g.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		_, getErr := tx.Get(ctx, store.CollectionFollows, edge.ID())
		switch {
		case getErr == nil:
			return social.ErrAlreadyFollowing
		case !errors.Is(getErr, store.ErrDocumentNotFound):
			return getErr
		}
		return tx.Set(ctx, store.CollectionFollows, edge.ID(), edge.Document())
	})
	if err != nil {
		if errors.Is(err, social.ErrAlreadyFollowing) {
			return nil, social.ErrAlreadyFollowing
		}
		return nil, shared.StoreError("social", "Follow", err)
	}

	g.logger.Info("follow created", "follower_id", followerID, "following_id", followingID)

	var followerName string
	if profile, perr := g.profiles.GetUser(ctx, followerID); perr == nil {
		followerName = profile.DisplayName
	}
	g.publish(shared.NewFollowCreatedEvent(followerID, followingID, followerName))

	return edge, nil
}

// Unfollow hard-deletes the edge followerID -> followingID.
func (g *FollowGraph) Unfollow(ctx context.Context, followerID, followingID string) (err error) {
	ctx, span := tracer.Start(ctx, "FollowGraph.Unfollow", trace.WithAttributes(
		attribute.String("follower_id", followerID),
		attribute.String("following_id", followingID),
	))
	defer func() {
		g.metrics.FollowOperation("unfollow", err)
		tracing.End(span, err)
	}()

	if err := social.ValidatePair(followerID, followingID); err != nil {
		if errors.Is(err, social.ErrSelfFollow) {
			return social.ErrNotFollowing
		}
		return err
	}

	id := social.EdgeID(followerID, followingID)
	err = g.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, getErr := tx.Get(ctx, store.CollectionFollows, id); getErr != nil {
			if errors.Is(getErr, store.ErrDocumentNotFound) {
				return social.ErrNotFollowing
			}
			return getErr
		}
		return tx.Delete(ctx, store.CollectionFollows, id)
	})
	if err != nil {
		if errors.Is(err, social.ErrNotFollowing) {
			return social.ErrNotFollowing
		}
		return shared.StoreError("social", "Unfollow", err)
	}

	g.logger.Info("follow removed", "follower_id", followerID, "following_id", followingID)
	g.publish(shared.NewFollowRemovedEvent(followerID, followingID))
	return nil
}

// IsFollowing reports whether a live edge exists. No side effects.
func (g *FollowGraph) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	if err := shared.ValidateUserIDs(followerID, followingID); err != nil {
		return false, social.ErrInvalidUserID
	}
	if followerID == followingID {
		return false, nil
	}

	_, err := g.store.Get(ctx, store.CollectionFollows, social.EdgeID(followerID, followingID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrDocumentNotFound):
		return false, nil
	default:
		return false, shared.StoreError("social", "IsFollowing", err)
	}
}

// CountFollowers counts live edges pointing at userID.
func (g *FollowGraph) CountFollowers(ctx context.Context, userID string) (int, error) {
	return g.count(ctx, "CountFollowers", userID, social.FollowersQuery)
}

// CountFollowing counts live edges leaving userID.
func (g *FollowGraph) CountFollowing(ctx context.Context, userID string) (int, error) {
	return g.count(ctx, "CountFollowing", userID, social.FollowingQuery)
}

func (g *FollowGraph) count(ctx context.Context, op, userID string, build func(string) store.Query) (int, error) {
	if err := shared.ValidateUserIDs(userID); err != nil {
		return 0, social.ErrInvalidUserID
	}
	n, err := g.store.Count(ctx, build(userID))
	if err != nil {
		return 0, shared.StoreError("social", op, err)
	}
	return n, nil
}

// ListFollowing returns the edges leaving userID in store order.
func (g *FollowGraph) ListFollowing(ctx context.Context, userID string) ([]*social.FollowEdge, error) {
	return g.list(ctx, "ListFollowing", userID, social.FollowingQuery)
}

// ListFollowers returns the edges pointing at userID.
func (g *FollowGraph) ListFollowers(ctx context.Context, userID string) ([]*social.FollowEdge, error) {
	return g.list(ctx, "ListFollowers", userID, social.FollowersQuery)
}

func (g *FollowGraph) list(ctx context.Context, op, userID string, build func(string) store.Query) ([]*social.FollowEdge, error) {
	if err := shared.ValidateUserIDs(userID); err != nil {
		return nil, social.ErrInvalidUserID
	}
	docs, err := g.store.Query(ctx, build(userID))
	if err != nil {
		return nil, shared.StoreError("social", op, err)
	}
	edges := make([]*social.FollowEdge, 0, len(docs))
	for _, doc := range docs {
		edges = append(edges, social.EdgeFromDocument(doc))
	}
	return edges, nil
}

// FollowingIDs returns the IDs userID follows.
func (g *FollowGraph) FollowingIDs(ctx context.Context, userID string) ([]string, error) {
	edges, err := g.ListFollowing(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.FollowingID)
	}
	return ids, nil
}

func (g *FollowGraph) publish(event shared.Event) {
	if g.eventPublisher == nil {
		return
	}
	if err := g.eventPublisher.Publish(event); err != nil {
		g.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}
