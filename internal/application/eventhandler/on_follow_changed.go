// Package eventhandler содержит обработчики доменных событий.
// Обработчики - "реактивная" часть системы: пересчёт репутации,
// уведомления и учёт мест выполняются здесь, вне операции, которая
// породила событие, и их ошибки не влияют на её результат.
package eventhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/alem-hub/community-rankings/internal/domain/shared"
	"github.com/alem-hub/community-rankings/internal/domain/social"
)

// DefaultHandlerTimeout ограничивает время одного обработчика.
const DefaultHandlerTimeout = 10 * time.Second

// Subscriber - шина, на которую подписываются обработчики.
type Subscriber interface {
	Subscribe(eventType shared.EventType, handler shared.EventHandler) error
}

// ═══════════════════════════════════════════════════════════════════════════
// ON FOLLOW CHANGED HANDLER
// Подписка и отписка меняют счётчики обеих сторон, поэтому репутация
// пересчитывается и для подписчика, и для того, на кого подписались.
// При новой подписке отправляется уведомление "new_follower".
// ═══════════════════════════════════════════════════════════════════════════

// OnFollowChangedHandler реагирует на изменения графа подписок.
type OnFollowChangedHandler struct {
	recomputer social.ReputationRecomputer
	notifier   social.Notifier
	logger     *slog.Logger
	timeout    time.Duration
}

// NewOnFollowChangedHandler создаёт обработчик. notifier может быть nil.
func NewOnFollowChangedHandler(
	recomputer social.ReputationRecomputer,
	notifier social.Notifier,
	logger *slog.Logger,
) *OnFollowChangedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnFollowChangedHandler{
		recomputer: recomputer,
		notifier:   notifier,
		logger:     logger.With("handler", "on_follow_changed"),
		timeout:    DefaultHandlerTimeout,
	}
}

// Register подписывает обработчик на события подписок.
func (h *OnFollowChangedHandler) Register(bus Subscriber) error {
	if err := bus.Subscribe(shared.EventFollowCreated, h.HandleFollowCreated); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventFollowRemoved, h.HandleFollowRemoved)
}

// HandleFollowCreated пересчитывает репутацию обеих сторон и уведомляет
// того, на кого подписались.
func (h *OnFollowChangedHandler) HandleFollowCreated(event shared.Event) error {
	followerID, followingID := pairFrom(event)
	if followerID == "" || followingID == "" {
		h.logger.Warn("follow event without participants", "event_type", event.EventType())
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.recompute(ctx, followerID, followingID)

	if h.notifier == nil {
		return nil
	}
	payload := map[string]any{
		"followerId": followerID,
	}
	if name, _ := event.Payload()["follower_display_name"].(string); name != "" {
		payload["followerName"] = name
	}
	if err := h.notifier.Notify(ctx, followingID, social.NotificationNewFollower, payload); err != nil {
		// Доставка уведомления - fire-and-forget.
		h.logger.Warn("failed to send new follower notification",
			"user_id", followingID,
			"follower_id", followerID,
			"error", err,
		)
	}
	return nil
}

// HandleFollowRemoved пересчитывает репутацию обеих сторон.
func (h *OnFollowChangedHandler) HandleFollowRemoved(event shared.Event) error {
	followerID, followingID := pairFrom(event)
	if followerID == "" || followingID == "" {
		h.logger.Warn("follow event without participants", "event_type", event.EventType())
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.recompute(ctx, followerID, followingID)
	return nil
}

func (h *OnFollowChangedHandler) recompute(ctx context.Context, userIDs ...string) {
	if h.recomputer == nil {
		return
	}
	for _, id := range userIDs {
		h.recomputer.Recompute(ctx, id)
	}
}

// pairFrom достаёт пару участников из типизированного события или payload.
func pairFrom(event shared.Event) (followerID, followingID string) {
	switch e := event.(type) {
	case shared.FollowCreatedEvent:
		return e.FollowerID, e.FollowingID
	case shared.FollowRemovedEvent:
		return e.FollowerID, e.FollowingID
	}
	payload := event.Payload()
	followerID, _ = payload["follower_id"].(string)
	followingID, _ = payload["following_id"].(string)
	return followerID, followingID
}
