package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alem-hub/community-rankings/internal/domain/social"
	"github.com/alem-hub/community-rankings/internal/domain/store"
)

// NotificationService writes in-app notifications to the notifications
// collection. Delivery to devices happens elsewhere.
type NotificationService struct {
	store  store.DocumentStore
	newID  func() string
	logger *slog.Logger
}

// NewNotificationService creates a NotificationService.
func NewNotificationService(st store.DocumentStore, logger *slog.Logger) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{
		store:  st,
		newID:  uuid.NewString,
		logger: logger.With("component", "notifications"),
	}
}

// Notify implements social.Notifier.
func (s *NotificationService) Notify(ctx context.Context, userID, notificationType string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	id := s.newID()
	err := s.store.Set(ctx, store.CollectionNotifications, id, map[string]any{
		"userId":    userID,
		"type":      notificationType,
		"payload":   payload,
		"createdAt": s.store.Now(),
		"read":      false,
	})
	if err != nil {
		return err
	}

	s.logger.Debug("notification stored", "id", id, "user_id", userID, "type", notificationType)
	return nil
}

var _ social.Notifier = (*NotificationService)(nil)
