package storage

import (
	"context"
	"testing"
	"time"
)

type fakeEventRepo struct {
	events []StoredEvent
}

func (r *fakeEventRepo) Append(ctx context.Context, e StoredEvent) error {
	r.events = append(r.events, e)
	return nil
}

func (r *fakeEventRepo) GetByPlayerID(ctx context.Context, playerID string) ([]StoredEvent, error) {
	var out []StoredEvent
	for _, e := range r.events {
		if e.PlayerID == playerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeEventRepo) GetRecent(ctx context.Context, limit int) ([]StoredEvent, error) {
	if limit > len(r.events) {
		limit = len(r.events)
	}
	return r.events[len(r.events)-limit:], nil
}

func TestRebuildMultiplierReplaysUpgrades(t *testing.T) {
	repo := &fakeEventRepo{}
	now := time.Now()
	repo.Append(context.Background(), StoredEvent{
		ID: "e1", Timestamp: now, EventType: "PLAYER_JOINED", PlayerID: "P1",
	})
	repo.Append(context.Background(), StoredEvent{
		ID: "e2", Timestamp: now, EventType: "UPGRADE_BOUGHT", PlayerID: "P1",
		Payload: map[string]interface{}{"new_multiplier": 1.5},
	})
	repo.Append(context.Background(), StoredEvent{
		ID: "e3", Timestamp: now, EventType: "UPGRADE_BOUGHT", PlayerID: "P2",
		Payload: map[string]interface{}{"new_multiplier": 3.0},
	})
	repo.Append(context.Background(), StoredEvent{
		ID: "e4", Timestamp: now, EventType: "UPGRADE_BOUGHT", PlayerID: "P1",
		Payload: map[string]interface{}{"new_multiplier": 2.0},
	})

	rc := NewReconstructor(repo)
	mult, err := rc.RebuildMultiplier(context.Background(), "P1")
	if err != nil {
		t.Fatalf("RebuildMultiplier failed: %v", err)
	}
	if mult != 2.0 {
		t.Errorf("Expected replayed multiplier 2.0, got %v", mult)
	}
}

func TestRebuildMultiplierWithoutUpgrades(t *testing.T) {
	rc := NewReconstructor(&fakeEventRepo{})
	mult, err := rc.RebuildMultiplier(context.Background(), "P1")
	if err != nil {
		t.Fatalf("RebuildMultiplier failed: %v", err)
	}
	if mult != 1.0 {
		t.Errorf("Expected base multiplier 1.0 with an empty ledger, got %v", mult)
	}
}

func TestPlayerHistorySummaries(t *testing.T) {
	repo := &fakeEventRepo{}
	now := time.Now()
	repo.Append(context.Background(), StoredEvent{
		ID: "e1", Timestamp: now, EventType: "OFFLINE_REWARD", PlayerID: "P1",
		Payload: map[string]interface{}{"energy": 200.0, "offline_hours": 10.0},
	})

	rc := NewReconstructor(repo)
	history, err := rc.PlayerHistory(context.Background(), "P1")
	if err != nil {
		t.Fatalf("PlayerHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected one entry, got %d", len(history))
	}
	if history[0].Summary != "Earned 200.0 energy while offline." {
		t.Errorf("Unexpected summary: %q", history[0].Summary)
	}
}
