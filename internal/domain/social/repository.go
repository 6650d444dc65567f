package social

import (
	"context"

	"github.com/alem-hub/community-rankings/internal/domain/store"
)

// ══════════════════════════════════════════════════════════════════════════════
// EDGE QUERIES
// Подсчёт живых рёбер - единственный источник истины для счётчиков.
// ══════════════════════════════════════════════════════════════════════════════

// FollowersQuery выбирает рёбра, ведущие к пользователю.
func FollowersQuery(userID string) store.Query {
	return store.Query{
		Collection: store.CollectionFollows,
		Filters:    []store.Filter{store.Eq(FieldFollowingID, userID)},
	}
}

// FollowingQuery выбирает рёбра, исходящие от пользователя.
func FollowingQuery(userID string) store.Query {
	return store.Query{
		Collection: store.CollectionFollows,
		Filters:    []store.Filter{store.Eq(FieldFollowerID, userID)},
	}
}

// Counter - то, что умеет считать документы (хранилище или транзакция).
type Counter interface {
	Count(ctx context.Context, q store.Query) (int, error)
}

// CountEdges считает подписчиков и подписки пользователя.
func CountEdges(ctx context.Context, c Counter, userID string) (followers, following int, err error) {
	followers, err = c.Count(ctx, FollowersQuery(userID))
	if err != nil {
		return 0, 0, err
	}
	following, err = c.Count(ctx, FollowingQuery(userID))
	if err != nil {
		return 0, 0, err
	}
	return followers, following, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATORS
// ══════════════════════════════════════════════════════════════════════════════

// Notifier доставляет уведомления. Вызывается в режиме fire-and-forget:
// ошибка доставки не влияет на операцию, которая её вызвала.
type Notifier interface {
	Notify(ctx context.Context, userID, notificationType string, payload map[string]any) error
}

// ReputationRecomputer пересчитывает репутацию пользователя.
// Ошибок не возвращает: репутация - производная best-effort метрика.
type ReputationRecomputer interface {
	Recompute(ctx context.Context, userID string)
}
