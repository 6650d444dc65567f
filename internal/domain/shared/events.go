package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Follow mutations and observed standings are the only
// facts this service broadcasts; everything reacting to them is best-effort.
const (
	// Social events
	EventFollowCreated EventType = "social.follow_created"
	EventFollowRemoved EventType = "social.follow_removed"

	// Leaderboard events
	EventStandingObserved EventType = "leaderboard.standing_observed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// EventHandler handles a domain event.
type EventHandler func(event Event) error

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(event Event) error
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Social Events
// ═══════════════════════════════════════════════════════════════════════════

// FollowCreatedEvent is emitted after a follow edge has been committed.
type FollowCreatedEvent struct {
	BaseEvent
	FollowerID  string `json:"follower_id"`
	FollowingID string `json:"following_id"`
	// FollowerDisplayName is a snapshot used for the new-follower notification.
	FollowerDisplayName string `json:"follower_display_name,omitempty"`
}

// Payload implements Event interface.
func (e FollowCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"follower_id":           e.FollowerID,
		"following_id":          e.FollowingID,
		"follower_display_name": e.FollowerDisplayName,
	}
}

// NewFollowCreatedEvent creates a new FollowCreatedEvent.
func NewFollowCreatedEvent(followerID, followingID, followerDisplayName string) FollowCreatedEvent {
	return FollowCreatedEvent{
		BaseEvent:           NewBaseEvent(EventFollowCreated, followerID),
		FollowerID:          followerID,
		FollowingID:         followingID,
		FollowerDisplayName: followerDisplayName,
	}
}

// FollowRemovedEvent is emitted after a follow edge has been deleted.
type FollowRemovedEvent struct {
	BaseEvent
	FollowerID  string `json:"follower_id"`
	FollowingID string `json:"following_id"`
}

// Payload implements Event interface.
func (e FollowRemovedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"follower_id":  e.FollowerID,
		"following_id": e.FollowingID,
	}
}

// NewFollowRemovedEvent creates a new FollowRemovedEvent.
func NewFollowRemovedEvent(followerID, followingID string) FollowRemovedEvent {
	return FollowRemovedEvent{
		BaseEvent:   NewBaseEvent(EventFollowRemoved, followerID),
		FollowerID:  followerID,
		FollowingID: followingID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Leaderboard Events
// ═══════════════════════════════════════════════════════════════════════════

// StandingObservedEvent is emitted when a freshly assembled leaderboard page
// resolved the caller's rank.
type StandingObservedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	Category string `json:"category"`
	Period   string `json:"period"`
	Rank     int    `json:"rank"`
}

// Payload implements Event interface.
func (e StandingObservedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":  e.UserID,
		"category": e.Category,
		"period":   e.Period,
		"rank":     e.Rank,
	}
}

// NewStandingObservedEvent creates a new StandingObservedEvent.
func NewStandingObservedEvent(userID, category, period string, rank int) StandingObservedEvent {
	return StandingObservedEvent{
		BaseEvent: NewBaseEvent(EventStandingObserved, userID),
		UserID:    userID,
		Category:  category,
		Period:    period,
		Rank:      rank,
	}
}
