package eventhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/alem-hub/community-rankings/internal/domain/leaderboard"
	"github.com/alem-hub/community-rankings/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON STANDING OBSERVED HANDLER
// Учитывает появление пользователя в рейтинге и его лучшее место.
// ═══════════════════════════════════════════════════════════════════════════

// OnStandingObservedHandler передаёт наблюдённое место в StandingRecorder.
type OnStandingObservedHandler struct {
	recorder leaderboard.StandingRecorder
	logger   *slog.Logger
	timeout  time.Duration
}

// NewOnStandingObservedHandler создаёт обработчик.
func NewOnStandingObservedHandler(recorder leaderboard.StandingRecorder, logger *slog.Logger) *OnStandingObservedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnStandingObservedHandler{
		recorder: recorder,
		logger:   logger.With("handler", "on_standing_observed"),
		timeout:  DefaultHandlerTimeout,
	}
}

// Register подписывает обработчик.
func (h *OnStandingObservedHandler) Register(bus Subscriber) error {
	return bus.Subscribe(shared.EventStandingObserved, h.Handle)
}

// Handle реализует shared.EventHandler.
func (h *OnStandingObservedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.StandingObservedEvent)
	if !ok {
		h.logger.Warn("received non-StandingObservedEvent", "event_type", event.EventType())
		return nil
	}

	category, err := leaderboard.ParseCategory(e.Category)
	if err != nil || e.Rank < 1 {
		h.logger.Warn("ignoring malformed standing", "user_id", e.UserID, "category", e.Category, "rank", e.Rank)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.recorder.RecordStanding(ctx, e.UserID, category, e.Rank)
	return nil
}
