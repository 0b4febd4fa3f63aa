package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/sdxqw/energy-clicker/internal/domain/player"
	"github.com/sdxqw/energy-clicker/internal/domain/rules"
	"github.com/sdxqw/energy-clicker/internal/events"
	"github.com/sdxqw/energy-clicker/internal/platform/config"
	"github.com/sdxqw/energy-clicker/internal/platform/logger"
	"github.com/sdxqw/energy-clicker/internal/platform/metrics"
	"github.com/sdxqw/energy-clicker/internal/records"
)

// Pusher delivers engine output to a connected player. The network hub
// implements this; tests substitute their own.
type Pusher interface {
	PushStats(playerID string, stats player.Stats)
	PushUpgradeResult(playerID string, success bool, newCost float64)
}

type actionKind int

const (
	actJoin actionKind = iota
	actBindDone
	actLeave
	actClick
	actStats
	actUpgrade
	actCost
)

// action is one unit of work for the engine loop. Everything the loop
// touches runs to completion before the next action, so per-player
// transitions never interleave.
type action struct {
	kind     actionKind
	playerID string

	// bind completion
	offline      float64
	offlineHours float64
	bound        bool
	err          error

	// cost request/response
	upgradeType string
	reply       chan float64
}

// Engine is the authoritative progression state machine for all connected
// players. A single goroutine owns all state transitions; network actions and
// the accrual tick are serialized through the actions channel.
type Engine struct {
	store    *records.Store
	eventLog *events.EventLog
	logger   *logger.Logger
	cfg      *config.Config
	pusher   Pusher

	actions chan action

	// Loop-owned state. Only the Run goroutine (or tests driving dispatch
	// directly) may touch these.
	bound       map[string]bool
	cooldowns   map[string]time.Time
	accumulator time.Duration
}

// NewEngine wires the progression engine to its collaborators.
func NewEngine(store *records.Store, eventLog *events.EventLog, log *logger.Logger, cfg *config.Config) *Engine {
	return &Engine{
		store:     store,
		eventLog:  eventLog,
		logger:    log,
		cfg:       cfg,
		actions:   make(chan action, 1024),
		bound:     make(map[string]bool),
		cooldowns: make(map[string]time.Time),
	}
}

// SetPusher attaches the outbound push channel. Must be called before Run.
func (e *Engine) SetPusher(p Pusher) {
	e.pusher = p
}

// Run starts the engine loop. Call in a goroutine; returns when ctx is done.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("Progression engine started.")

	frame := time.NewTicker(100 * time.Millisecond)
	defer frame.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Progression engine stopped.")
			return
		case a := <-e.actions:
			e.dispatch(ctx, a)
		case now := <-frame.C:
			e.advance(now.Sub(last))
			last = now
		}
	}
}

// OnPlayerJoin transitions a player towards Bound. The record load runs off
// the loop; completion re-enters through the actions channel.
func (e *Engine) OnPlayerJoin(playerID string) {
	e.actions <- action{kind: actJoin, playerID: playerID}
}

// OnPlayerLeave transitions a player back to Unbound.
func (e *Engine) OnPlayerLeave(playerID string) {
	e.actions <- action{kind: actLeave, playerID: playerID}
}

// OnClick handles an active click.
func (e *Engine) OnClick(playerID string) {
	e.actions <- action{kind: actClick, playerID: playerID}
}

// OnStatsRequest pushes the player's current snapshot.
func (e *Engine) OnStatsRequest(playerID string) {
	e.actions <- action{kind: actStats, playerID: playerID}
}

// OnUpgradeRequest attempts a multiplier purchase.
func (e *Engine) OnUpgradeRequest(playerID string) {
	e.actions <- action{kind: actUpgrade, playerID: playerID}
}

// UpgradeCostFor returns the current cost of the requested upgrade without
// mutating anything. Returns 0 for unknown upgrade types or unbound players.
func (e *Engine) UpgradeCostFor(playerID, upgradeType string) float64 {
	reply := make(chan float64, 1)
	e.actions <- action{kind: actCost, playerID: playerID, upgradeType: upgradeType, reply: reply}
	return <-reply
}

func (e *Engine) dispatch(ctx context.Context, a action) {
	switch a.kind {
	case actJoin:
		e.handleJoin(ctx, a.playerID)
	case actBindDone:
		e.handleBindDone(a)
	case actLeave:
		e.handleLeave(ctx, a.playerID)
	case actClick:
		e.handleClick(a.playerID)
	case actStats:
		e.pushStats(a.playerID)
	case actUpgrade:
		e.handleUpgrade(a.playerID)
	case actCost:
		a.reply <- e.currentCost(a.playerID, a.upgradeType)
	}
}

func (e *Engine) handleJoin(ctx context.Context, playerID string) {
	if e.bound[playerID] {
		return
	}
	go func() {
		res, bound, err := e.store.Bind(ctx, playerID)
		e.actions <- action{
			kind:         actBindDone,
			playerID:     playerID,
			offline:      res.OfflineEnergy,
			offlineHours: res.OfflineHours,
			bound:        bound,
			err:          err,
		}
	}()
}

func (e *Engine) handleBindDone(a action) {
	if a.err != nil {
		// Player stays Unbound; all of their actions are no-ops until rejoin.
		e.logger.Error("Failed to bind player " + a.playerID + ": " + a.err.Error())
		return
	}
	if !a.bound {
		// Load finished after the player already left; the store has
		// persisted and discarded the record.
		return
	}

	e.bound[a.playerID] = true
	e.eventLog.Append(events.GameEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypePlayerJoined,
		PlayerID:  a.playerID,
	})

	if a.offline > 0 {
		e.logger.Event("OFFLINE_REWARD", a.playerID, "Credited "+formatEnergy(a.offline)+" energy")
		e.eventLog.Append(events.GameEvent{
			ID:        events.GenerateEventID(),
			Timestamp: time.Now(),
			Type:      events.EventTypeOfflineReward,
			PlayerID:  a.playerID,
			Payload:   events.OfflineRewardPayload{Energy: a.offline, OfflineHours: a.offlineHours},
		})
	}

	e.pushStats(a.playerID)
}

func (e *Engine) handleLeave(ctx context.Context, playerID string) {
	delete(e.bound, playerID)
	delete(e.cooldowns, playerID)

	// Unbind flushes and may block on backend I/O; keep it off the loop.
	go e.store.Unbind(ctx, playerID)

	e.eventLog.Append(events.GameEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypePlayerLeft,
		PlayerID:  playerID,
	})
}

func (e *Engine) handleClick(playerID string) {
	if !e.bound[playerID] {
		return
	}
	now := time.Now()
	if last, ok := e.cooldowns[playerID]; ok && now.Sub(last) < e.cfg.ClickCooldown {
		metrics.Get().RecordClick(true)
		return
	}

	rec, ok := e.store.GetRecord(playerID)
	if !ok {
		return
	}
	gain := rules.ClickGain(rec.Multiplier)
	e.store.AddEnergy(playerID, gain)
	e.cooldowns[playerID] = now
	metrics.Get().RecordClick(false)

	e.logger.Event("CLICK", playerID, "Gained "+formatEnergy(gain)+" energy")
	e.pushStats(playerID)
}

func (e *Engine) handleUpgrade(playerID string) {
	rec, ok := e.store.GetRecord(playerID)
	if !ok {
		return
	}

	cost := rules.UpgradeCost(rec.Multiplier, e.upgradeParams())
	if !e.store.TrySpendEnergy(playerID, cost) {
		metrics.Get().RecordUpgrade(false)
		if e.pusher != nil {
			e.pusher.PushUpgradeResult(playerID, false, 0)
		}
		return
	}

	e.store.UpgradeMultiplier(playerID, e.cfg.UpgradeIncreaseAmount)
	upgraded, _ := e.store.GetRecord(playerID)
	newCost := rules.UpgradeCost(upgraded.Multiplier, e.upgradeParams())
	metrics.Get().RecordUpgrade(true)

	e.logger.Event("UPGRADE", playerID, "Multiplier now "+formatEnergy(upgraded.Multiplier))
	e.eventLog.Append(events.GameEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeUpgradeBought,
		PlayerID:  playerID,
		Payload: events.UpgradeBoughtPayload{
			Cost:          cost,
			NewMultiplier: upgraded.Multiplier,
			NextCost:      newCost,
		},
	})

	if e.pusher != nil {
		e.pusher.PushUpgradeResult(playerID, true, newCost)
	}
	e.pushStats(playerID)
}

func (e *Engine) currentCost(playerID, upgradeType string) float64 {
	if upgradeType != "" && upgradeType != "multiplier" {
		return 0
	}
	rec, ok := e.store.GetRecord(playerID)
	if !ok {
		return 0
	}
	return rules.UpgradeCost(rec.Multiplier, e.upgradeParams())
}

func (e *Engine) pushStats(playerID string) {
	rec, ok := e.store.GetRecord(playerID)
	if !ok || e.pusher == nil {
		return
	}
	e.pusher.PushStats(playerID, rec.Stats())
}

func (e *Engine) upgradeParams() rules.UpgradeParams {
	return rules.UpgradeParams{
		BaseCost:       e.cfg.UpgradeBaseCost,
		ScalingFactor:  e.cfg.UpgradeCostScaling,
		IncreaseAmount: e.cfg.UpgradeIncreaseAmount,
	}
}

func formatEnergy(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
