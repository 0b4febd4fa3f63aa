// Package storage provides the persistence layer for the clicker server.
// This package implements the repository pattern to keep the domain pure.
package storage

import (
	"context"
	"time"
)

// PlayerRecord mirrors the domain record structure for persistence.
// The domain package should NOT import this; use interfaces instead.
type PlayerRecord struct {
	Energy          float64   `json:"energy" db:"energy"`
	Multiplier      float64   `json:"multiplier" db:"multiplier"`
	EnergyPerSecond float64   `json:"energy_per_second" db:"energy_per_second"`
	LastSaveTime    time.Time `json:"last_save_time" db:"last_save_time"`
}

// DefaultRecord is the record created on first access for a never-seen key.
func DefaultRecord(baseRate float64, now time.Time) PlayerRecord {
	return PlayerRecord{
		Energy:          0,
		Multiplier:      1,
		EnergyPerSecond: baseRate,
		LastSaveTime:    now,
	}
}

// PlayerRepository defines the interface for player record persistence.
// The record store uses this interface; implementations are in this package.
type PlayerRepository interface {
	// Get retrieves a record by key. The bool reports whether the key exists.
	Get(ctx context.Context, key string) (PlayerRecord, bool, error)

	// Upsert inserts or replaces the record stored under key.
	Upsert(ctx context.Context, key string, record PlayerRecord) error
}

// StoredEvent mirrors the progression event structure for persistence.
type StoredEvent struct {
	ID        string                 `json:"id" db:"id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	EventType string                 `json:"event_type" db:"event_type"`
	PlayerID  string                 `json:"player_id" db:"player_id"`
	Payload   map[string]interface{} `json:"payload" db:"payload"`
}

// EventRepository defines the interface for progression event persistence.
type EventRepository interface {
	// Append adds a new event to the immutable ledger.
	Append(ctx context.Context, event StoredEvent) error

	// GetByPlayerID retrieves all events for a specific player.
	GetByPlayerID(ctx context.Context, playerID string) ([]StoredEvent, error)

	// GetRecent retrieves the newest events, oldest first.
	GetRecent(ctx context.Context, limit int) ([]StoredEvent, error)
}
