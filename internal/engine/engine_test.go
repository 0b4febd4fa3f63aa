package engine

import (
	"context"
	"testing"
	"time"

	"github.com/sdxqw/energy-clicker/internal/domain/player"
	"github.com/sdxqw/energy-clicker/internal/domain/rules"
	"github.com/sdxqw/energy-clicker/internal/events"
	"github.com/sdxqw/energy-clicker/internal/infra/storage"
	"github.com/sdxqw/energy-clicker/internal/platform/config"
	"github.com/sdxqw/energy-clicker/internal/platform/logger"
	"github.com/sdxqw/energy-clicker/internal/records"
)

type upgradeResult struct {
	success bool
	newCost float64
}

type fakePusher struct {
	stats   map[string][]player.Stats
	results map[string][]upgradeResult
}

func newFakePusher() *fakePusher {
	return &fakePusher{
		stats:   make(map[string][]player.Stats),
		results: make(map[string][]upgradeResult),
	}
}

func (p *fakePusher) PushStats(playerID string, s player.Stats) {
	p.stats[playerID] = append(p.stats[playerID], s)
}

func (p *fakePusher) PushUpgradeResult(playerID string, success bool, newCost float64) {
	p.results[playerID] = append(p.results[playerID], upgradeResult{success, newCost})
}

func newTestEngine(coll *storage.MemoryCollection) (*Engine, *records.Store, *fakePusher) {
	cfg := config.DefaultConfig()
	log := logger.NewLogger()
	offline := rules.OfflineParams{MaxHours: cfg.MaxOfflineHours, EnergyPerHour: cfg.OfflineEnergyPerHour}
	store := records.NewStore(coll, log, cfg.BaseEnergyPerSecond, offline)
	e := NewEngine(store, events.NewEventLog(nil), log, cfg)
	pusher := newFakePusher()
	e.SetPusher(pusher)
	return e, store, pusher
}

// bindNow runs the bind synchronously and feeds the completion into the loop
// handler, the way Run does asynchronously.
func bindNow(t *testing.T, e *Engine, store *records.Store, playerID string) {
	t.Helper()
	res, bound, err := store.Bind(context.Background(), playerID)
	if err != nil {
		t.Fatalf("Bind failed for %s: %v", playerID, err)
	}
	e.handleBindDone(action{
		kind:         actBindDone,
		playerID:     playerID,
		offline:      res.OfflineEnergy,
		offlineHours: res.OfflineHours,
		bound:        bound,
	})
}

func TestClickGainFloorsMultiplier(t *testing.T) {
	coll := storage.NewMemoryCollection(1)
	coll.Seed(records.RecordKey("P1"), storage.PlayerRecord{
		Multiplier:      2.3,
		EnergyPerSecond: 2.3,
		LastSaveTime:    time.Now(),
	})
	e, store, pusher := newTestEngine(coll)
	bindNow(t, e, store, "P1")

	e.handleClick("P1")

	rec, _ := store.GetRecord("P1")
	if rec.Energy != 2 {
		t.Errorf("Expected click gain 2 for multiplier 2.3, got energy %v", rec.Energy)
	}
	if len(pusher.stats["P1"]) == 0 {
		t.Error("Expected a stats push after the click")
	}
}

func TestClickCooldownThrottlesSecondClick(t *testing.T) {
	coll := storage.NewMemoryCollection(1)
	e, store, _ := newTestEngine(coll)
	bindNow(t, e, store, "P1")

	e.handleClick("P1")
	e.handleClick("P1") // still inside the 0.5s cooldown

	rec, _ := store.GetRecord("P1")
	if rec.Energy != 1 {
		t.Errorf("Expected only the first click to land, got energy %v", rec.Energy)
	}
}

func TestClickUnboundIsSilentNoOp(t *testing.T) {
	coll := storage.NewMemoryCollection(1)
	e, _, pusher := newTestEngine(coll)

	e.handleClick("GHOST")

	if len(pusher.stats["GHOST"]) != 0 {
		t.Error("Expected no pushes for an unbound player")
	}
}

func TestAdvanceFiresOncePerWholeInterval(t *testing.T) {
	coll := storage.NewMemoryCollection(1)
	coll.Seed(records.RecordKey("P1"), storage.PlayerRecord{
		Multiplier:      2,
		EnergyPerSecond: 2,
		LastSaveTime:    time.Now(),
	})
	e, store, _ := newTestEngine(coll)
	bindNow(t, e, store, "P1")

	// 2.5s of frame time: exactly two 1s intervals fire, 0.5s stays banked.
	e.advance(2500 * time.Millisecond)

	rec, _ := store.GetRecord("P1")
	if rec.Energy != 4 { // 2 intervals * baseRate 1 * multiplier 2
		t.Errorf("Expected 4 energy after two intervals, got %v", rec.Energy)
	}
	if e.accumulator != 500*time.Millisecond {
		t.Errorf("Expected 500ms left in the accumulator, got %v", e.accumulator)
	}

	// The banked 0.5s plus another 0.5s completes a third interval.
	e.advance(500 * time.Millisecond)
	rec, _ = store.GetRecord("P1")
	if rec.Energy != 6 {
		t.Errorf("Expected 6 energy after the third interval, got %v", rec.Energy)
	}
}

func TestAdvanceBoundedByCatchUpGuard(t *testing.T) {
	coll := storage.NewMemoryCollection(1)
	e, store, _ := newTestEngine(coll)
	bindNow(t, e, store, "P1")

	// A pathological 60s spike fires at most MaxTickCatchUp intervals.
	e.advance(60 * time.Second)

	rec, _ := store.GetRecord("P1")
	if rec.Energy != float64(e.cfg.MaxTickCatchUp) {
		t.Errorf("Expected %d energy from guarded catch-up, got %v", e.cfg.MaxTickCatchUp, rec.Energy)
	}
	if e.accumulator >= e.cfg.TickInterval {
		t.Errorf("Expected backlog dropped below one interval, got %v", e.accumulator)
	}
}

func TestUpgradePurchaseSuccess(t *testing.T) {
	coll := storage.NewMemoryCollection(1)
	e, store, pusher := newTestEngine(coll)
	bindNow(t, e, store, "P1")
	store.AddEnergy("P1", 10)

	e.handleUpgrade("P1")

	rec, _ := store.GetRecord("P1")
	if rec.Multiplier != 1.5 {
		t.Errorf("Expected multiplier 1.5 after one upgrade, got %v", rec.Multiplier)
	}
	if rec.Energy != 0 {
		t.Errorf("Expected cost 10 deducted, got energy %v", rec.Energy)
	}
	if rec.EnergyPerSecond != 1.5 {
		t.Errorf("Expected energyPerSecond 1.5, got %v", rec.EnergyPerSecond)
	}

	results := pusher.results["P1"]
	if len(results) != 1 || !results[0].success {
		t.Fatalf("Expected one successful upgrade result, got %+v", results)
	}
	if results[0].newCost != 15 {
		t.Errorf("Expected next cost 15, got %v", results[0].newCost)
	}
}

func TestUpgradeInsufficientEnergy(t *testing.T) {
	coll := storage.NewMemoryCollection(1)
	e, store, pusher := newTestEngine(coll)
	bindNow(t, e, store, "P1")
	store.AddEnergy("P1", 5)

	e.handleUpgrade("P1")

	rec, _ := store.GetRecord("P1")
	if rec.Energy != 5 || rec.Multiplier != 1 {
		t.Errorf("Expected no mutation on rejected upgrade, got %+v", rec)
	}
	results := pusher.results["P1"]
	if len(results) != 1 || results[0].success {
		t.Fatalf("Expected one failed upgrade result, got %+v", results)
	}
}

func TestCurrentCost(t *testing.T) {
	coll := storage.NewMemoryCollection(1)
	e, store, _ := newTestEngine(coll)
	bindNow(t, e, store, "P1")

	if cost := e.currentCost("P1", "multiplier"); cost != 10 {
		t.Errorf("Expected cost 10 at multiplier 1, got %v", cost)
	}
	if cost := e.currentCost("P1", "autoClick"); cost != 0 {
		t.Errorf("Expected cost 0 for unknown upgrade type, got %v", cost)
	}
	if cost := e.currentCost("GHOST", "multiplier"); cost != 0 {
		t.Errorf("Expected cost 0 for unbound player, got %v", cost)
	}
}

func TestBindDoneRecordsOfflineReward(t *testing.T) {
	coll := storage.NewMemoryCollection(1)
	coll.Seed(records.RecordKey("P1"), storage.PlayerRecord{
		Multiplier:      2,
		EnergyPerSecond: 2,
		LastSaveTime:    time.Now().Add(-10 * time.Hour),
	})
	e, store, _ := newTestEngine(coll)
	bindNow(t, e, store, "P1")

	var payload events.OfflineRewardPayload
	found := false
	for _, ev := range e.eventLog.GetByPlayer("P1") {
		if ev.Type == events.EventTypeOfflineReward {
			p, ok := ev.Payload.(events.OfflineRewardPayload)
			if !ok {
				t.Fatalf("Unexpected payload type %T", ev.Payload)
			}
			payload = p
			found = true
		}
	}
	if !found {
		t.Fatal("Expected an offline reward event after bind")
	}
	if payload.Energy != 200 {
		t.Errorf("Expected 200 offline energy in the payload, got %v", payload.Energy)
	}
	if payload.OfflineHours < 10 || payload.OfflineHours > 10.1 {
		t.Errorf("Expected roughly 10 offline hours in the payload, got %v", payload.OfflineHours)
	}
}

func TestBindDoneAfterLeaveDoesNotBind(t *testing.T) {
	coll := storage.NewMemoryCollection(1)
	e, _, pusher := newTestEngine(coll)

	// The store reports bound=false when the load finished after the player
	// left; the engine must not resurrect the session.
	e.handleBindDone(action{kind: actBindDone, playerID: "P1", bound: false})

	if e.bound["P1"] {
		t.Error("Expected player to stay unbound")
	}
	if len(pusher.stats["P1"]) != 0 {
		t.Error("Expected no stats push for a discarded bind")
	}
}

func TestLeaveClearsLoopState(t *testing.T) {
	coll := storage.NewMemoryCollection(1)
	e, store, _ := newTestEngine(coll)
	bindNow(t, e, store, "P1")
	e.handleClick("P1")

	e.handleLeave(context.Background(), "P1")

	if e.bound["P1"] {
		t.Error("Expected bound flag cleared on leave")
	}
	if _, ok := e.cooldowns["P1"]; ok {
		t.Error("Expected cooldown state cleared on leave")
	}
}
