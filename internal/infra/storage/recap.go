package storage

import (
	"context"
	"fmt"
)

// Reconstructor rebuilds player progression from the event ledger.
// This is used for:
// 1. The /api/players/history endpoint - show what happened to a player
// 2. Auditing: verify the stored record against state = f(events)
type Reconstructor struct {
	eventRepo EventRepository
}

// NewReconstructor creates a new state reconstructor.
func NewReconstructor(eventRepo EventRepository) *Reconstructor {
	return &Reconstructor{eventRepo: eventRepo}
}

// RecapEntry is a simplified event for the history feed.
type RecapEntry struct {
	Timestamp string `json:"timestamp"`
	EventType string `json:"event_type"`
	Summary   string `json:"summary"`
}

// RebuildMultiplier replays a player's upgrade purchases and returns the
// multiplier the ledger implies. A mismatch against the stored record means
// an upgrade was applied without its event, or the ledger lost a write.
func (r *Reconstructor) RebuildMultiplier(ctx context.Context, playerID string) (float64, error) {
	events, err := r.eventRepo.GetByPlayerID(ctx, playerID)
	if err != nil {
		return 0, fmt.Errorf("failed to get events for player: %w", err)
	}

	multiplier := 1.0
	for _, e := range events {
		if e.EventType != "UPGRADE_BOUGHT" {
			continue
		}
		if v, ok := e.Payload["new_multiplier"].(float64); ok {
			multiplier = v
		}
	}
	return multiplier, nil
}

// PlayerHistory returns a player's ledger as human-readable entries,
// oldest first.
func (r *Reconstructor) PlayerHistory(ctx context.Context, playerID string) ([]RecapEntry, error) {
	events, err := r.eventRepo.GetByPlayerID(ctx, playerID)
	if err != nil {
		return nil, err
	}

	var recap []RecapEntry
	for _, e := range events {
		recap = append(recap, RecapEntry{
			Timestamp: e.Timestamp.Format("2006-01-02 15:04:05"),
			EventType: e.EventType,
			Summary:   summarizeEvent(e),
		})
	}
	return recap, nil
}

func summarizeEvent(e StoredEvent) string {
	switch e.EventType {
	case "PLAYER_JOINED":
		return "Player connected and their record was loaded."
	case "PLAYER_LEFT":
		return "Player disconnected and their record was saved."
	case "OFFLINE_REWARD":
		if v, ok := e.Payload["energy"].(float64); ok {
			return fmt.Sprintf("Earned %.1f energy while offline.", v)
		}
		return "Earned energy while offline."
	case "UPGRADE_BOUGHT":
		if v, ok := e.Payload["new_multiplier"].(float64); ok {
			return fmt.Sprintf("Bought a multiplier upgrade, now x%.1f.", v)
		}
		return "Bought a multiplier upgrade."
	case "SAVE_FAILED":
		return "A save attempt failed and will be retried."
	default:
		return "Unrecognized event."
	}
}
