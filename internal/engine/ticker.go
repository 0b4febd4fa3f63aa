package engine

import (
	"context"
	"time"

	"github.com/sdxqw/energy-clicker/internal/platform/metrics"
)

// advance feeds a frame delta into the accrual accumulator and fires one
// accrual pass per whole tick interval. The loop is level-triggered: a large
// delta can fire several intervals in one call, bounded by MaxTickCatchUp so
// a pathological spike cannot stall the engine. Whole intervals beyond the
// guard are dropped; the sub-interval remainder is kept.
func (e *Engine) advance(dt time.Duration) {
	e.accumulator += dt

	fired := 0
	for e.accumulator >= e.cfg.TickInterval && fired < e.cfg.MaxTickCatchUp {
		e.accumulator -= e.cfg.TickInterval
		fired++
		e.accrue()
	}

	if e.accumulator >= e.cfg.TickInterval {
		e.logger.Warn("Tick accumulator overran the catch-up guard, dropping backlog")
		e.accumulator = e.accumulator % e.cfg.TickInterval
	}
}

// accrue credits one interval of passive energy to every bound player.
func (e *Engine) accrue() {
	start := time.Now()
	for playerID := range e.bound {
		rec, ok := e.store.GetRecord(playerID)
		if !ok {
			continue
		}
		e.store.AddEnergy(playerID, e.cfg.BaseEnergyPerSecond*rec.Multiplier)
		e.pushStats(playerID)
	}
	metrics.Get().RecordTick(time.Since(start))
}

// StartAutoSave flushes all bound players on a fixed interval. The interval
// is independent of individual save latency; overlapping saves for one player
// are prevented by the store's non-reentrant flush.
func (e *Engine) StartAutoSave(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.cfg.AutoSaveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				e.logger.Info("Auto-save loop stopped.")
				return
			case <-ticker.C:
				e.store.FlushAll(ctx)
			}
		}
	}()
}
