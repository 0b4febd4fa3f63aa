package events

import (
	"testing"
	"time"
)

func TestAppendAndReplay(t *testing.T) {
	el := NewEventLog(nil)

	el.Append(GameEvent{ID: "E1", Type: EventTypePlayerJoined, PlayerID: "P1", Timestamp: time.Now()})
	el.Append(GameEvent{ID: "E2", Type: EventTypeUpgradeBought, PlayerID: "P1", Timestamp: time.Now()})
	el.Append(GameEvent{ID: "E3", Type: EventTypePlayerJoined, PlayerID: "P2", Timestamp: time.Now()})

	if got := len(el.Replay()); got != 3 {
		t.Errorf("Expected 3 events in replay, got %d", got)
	}

	p1 := el.GetByPlayer("P1")
	if len(p1) != 2 {
		t.Errorf("Expected 2 events for P1, got %d", len(p1))
	}
}

func TestRecentReturnsNewestLast(t *testing.T) {
	el := NewEventLog(nil)
	el.Append(GameEvent{ID: "E1", Type: EventTypePlayerJoined, PlayerID: "P1"})
	el.Append(GameEvent{ID: "E2", Type: EventTypePlayerLeft, PlayerID: "P1"})
	el.Append(GameEvent{ID: "E3", Type: EventTypePlayerJoined, PlayerID: "P2"})

	recent := el.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("Expected 2 recent events, got %d", len(recent))
	}
	if recent[0].ID != "E2" || recent[1].ID != "E3" {
		t.Errorf("Expected E2,E3 as the two most recent, got %s,%s", recent[0].ID, recent[1].ID)
	}

	// Asking for more than exist returns everything.
	if got := len(el.Recent(100)); got != 3 {
		t.Errorf("Expected all 3 events, got %d", got)
	}
}

func TestGenerateEventIDUnique(t *testing.T) {
	a := GenerateEventID()
	b := GenerateEventID()
	if a == "" || a == b {
		t.Errorf("Expected distinct non-empty event IDs, got %q and %q", a, b)
	}
}
