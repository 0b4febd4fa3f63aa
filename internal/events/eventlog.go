// Package events provides the append-only log of progression milestones.
// It is not the source of truth for player state; it exists so the audience
// feed and the admin API can replay what happened in a session.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a progression event.
type EventType string

const (
	EventTypePlayerJoined  EventType = "PLAYER_JOINED"
	EventTypePlayerLeft    EventType = "PLAYER_LEFT"
	EventTypeOfflineReward EventType = "OFFLINE_REWARD"
	EventTypeUpgradeBought EventType = "UPGRADE_BOUGHT"
	EventTypeSaveFailed    EventType = "SAVE_FAILED"
)

// OfflineRewardPayload records the energy credited on reconnect.
type OfflineRewardPayload struct {
	Energy       float64 `json:"energy"`
	OfflineHours float64 `json:"offline_hours"`
}

// UpgradeBoughtPayload records a successful multiplier purchase.
type UpgradeBoughtPayload struct {
	Cost          float64 `json:"cost"`
	NewMultiplier float64 `json:"new_multiplier"`
	NextCost      float64 `json:"next_cost"`
}

// GameEvent represents an immutable record of a progression milestone.
type GameEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	PlayerID  string      `json:"player_id"`
	Payload   interface{} `json:"payload"` // Event-specific data
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event GameEvent) error
}

// EventLog is the in-memory append-only log of progression events.
type EventLog struct {
	mu        sync.RWMutex
	events    []GameEvent
	persister EventPersister
}

// NewEventLog creates a new event log with an optional persister.
func NewEventLog(persister EventPersister) *EventLog {
	return &EventLog{
		events:    make([]GameEvent, 0),
		persister: persister,
	}
}

// Append adds a new event to the log. Events are immutable once appended.
func (el *EventLog) Append(event GameEvent) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.events = append(el.events, event)

	if el.persister != nil {
		// Write through to persistent storage off the caller's path.
		go func(e GameEvent) {
			_ = el.persister.Append(e)
		}(event)
	}
}

// GetByPlayer returns all events for a specific player.
func (el *EventLog) GetByPlayer(playerID string) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.PlayerID == playerID {
			result = append(result, e)
		}
	}
	return result
}

// Recent returns the last n events, newest last.
func (el *EventLog) Recent(n int) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	if n <= 0 || n > len(el.events) {
		n = len(el.events)
	}
	out := make([]GameEvent, n)
	copy(out, el.events[len(el.events)-n:])
	return out
}

// Replay returns the full history of events for feed reconstruction.
func (el *EventLog) Replay() []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.events
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
