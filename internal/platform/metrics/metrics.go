// Package metrics provides observability for the clicker server.
// Counters are cheap enough to keep always-on; handlers expose them for scraping.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers performance metrics.
type Collector struct {
	// Tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTickTime   time.Time

	// Progression metrics
	ClicksProcessed  int64
	ClicksThrottled  int64
	UpgradesApplied  int64
	UpgradesRejected int64
	OfflineEnergy    int64 // whole energy granted on bind

	// Persistence metrics
	SavesCompleted int64
	SaveLatencySum int64
	SaveLatencyMax int64
	SaveErrors     int64
	LoadErrors     int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSErrors            int64

	// System
	StartTime time.Time
	mu        sync.RWMutex
}

// Global collector instance
var collector = &Collector{
	StartTime: time.Now(),
}

// Get returns the global collector.
func Get() *Collector {
	return collector
}

// RecordTick records a tick cycle completion.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))

	// Update max (non-atomic but acceptable for metrics)
	if int64(latency) > atomic.LoadInt64(&c.TickLatencyMax) {
		atomic.StoreInt64(&c.TickLatencyMax, int64(latency))
	}

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordClick records a processed or throttled click.
func (c *Collector) RecordClick(throttled bool) {
	if throttled {
		atomic.AddInt64(&c.ClicksThrottled, 1)
	} else {
		atomic.AddInt64(&c.ClicksProcessed, 1)
	}
}

// RecordUpgrade records an upgrade purchase attempt.
func (c *Collector) RecordUpgrade(applied bool) {
	if applied {
		atomic.AddInt64(&c.UpgradesApplied, 1)
	} else {
		atomic.AddInt64(&c.UpgradesRejected, 1)
	}
}

// RecordOfflineEnergy records energy credited for offline time.
func (c *Collector) RecordOfflineEnergy(amount float64) {
	atomic.AddInt64(&c.OfflineEnergy, int64(amount))
}

// RecordSave records a record save to the backend.
func (c *Collector) RecordSave(latency time.Duration, err error) {
	if err != nil {
		atomic.AddInt64(&c.SaveErrors, 1)
		return
	}
	atomic.AddInt64(&c.SavesCompleted, 1)
	atomic.AddInt64(&c.SaveLatencySum, int64(latency))

	if int64(latency) > atomic.LoadInt64(&c.SaveLatencyMax) {
		atomic.StoreInt64(&c.SaveLatencyMax, int64(latency))
	}
}

// RecordLoadError records a failed record load.
func (c *Collector) RecordLoadError() {
	atomic.AddInt64(&c.LoadErrors, 1)
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	savesCompleted := atomic.LoadInt64(&c.SavesCompleted)

	var tickAvg, saveAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}
	if savesCompleted > 0 {
		saveAvg = float64(atomic.LoadInt64(&c.SaveLatencySum)) / float64(savesCompleted) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      c.LastTickTime.Format(time.RFC3339),
		},

		"progression": map[string]interface{}{
			"clicks_processed":  atomic.LoadInt64(&c.ClicksProcessed),
			"clicks_throttled":  atomic.LoadInt64(&c.ClicksThrottled),
			"upgrades_applied":  atomic.LoadInt64(&c.UpgradesApplied),
			"upgrades_rejected": atomic.LoadInt64(&c.UpgradesRejected),
			"offline_energy":    atomic.LoadInt64(&c.OfflineEnergy),
		},

		"persistence": map[string]interface{}{
			"saves_completed": savesCompleted,
			"avg_save_lat_ms": saveAvg,
			"max_save_lat_ms": float64(atomic.LoadInt64(&c.SaveLatencyMax)) / 1e6,
			"save_errors":     atomic.LoadInt64(&c.SaveErrors),
			"load_errors":     atomic.LoadInt64(&c.LoadErrors),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")

		snapshot := collector.Snapshot()
		json.NewEncoder(w).Encode(snapshot)
	}
}

// PrometheusHandler returns metrics in Prometheus format.
func PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		c := collector

		fmt.Fprintf(w, "# HELP clicker_tick_count Total accrual tick cycles\n")
		fmt.Fprintf(w, "# TYPE clicker_tick_count counter\n")
		fmt.Fprintf(w, "clicker_tick_count %d\n\n", atomic.LoadInt64(&c.TickCount))

		fmt.Fprintf(w, "# HELP clicker_tick_latency_max_ms Maximum tick latency\n")
		fmt.Fprintf(w, "# TYPE clicker_tick_latency_max_ms gauge\n")
		fmt.Fprintf(w, "clicker_tick_latency_max_ms %.2f\n\n", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)

		fmt.Fprintf(w, "# HELP clicker_clicks_total Click actions by outcome\n")
		fmt.Fprintf(w, "# TYPE clicker_clicks_total counter\n")
		fmt.Fprintf(w, "clicker_clicks_total{outcome=\"processed\"} %d\n", atomic.LoadInt64(&c.ClicksProcessed))
		fmt.Fprintf(w, "clicker_clicks_total{outcome=\"throttled\"} %d\n\n", atomic.LoadInt64(&c.ClicksThrottled))

		fmt.Fprintf(w, "# HELP clicker_upgrades_total Upgrade purchase attempts by outcome\n")
		fmt.Fprintf(w, "# TYPE clicker_upgrades_total counter\n")
		fmt.Fprintf(w, "clicker_upgrades_total{outcome=\"applied\"} %d\n", atomic.LoadInt64(&c.UpgradesApplied))
		fmt.Fprintf(w, "clicker_upgrades_total{outcome=\"rejected\"} %d\n\n", atomic.LoadInt64(&c.UpgradesRejected))

		fmt.Fprintf(w, "# HELP clicker_offline_energy_total Energy granted for offline time\n")
		fmt.Fprintf(w, "# TYPE clicker_offline_energy_total counter\n")
		fmt.Fprintf(w, "clicker_offline_energy_total %d\n\n", atomic.LoadInt64(&c.OfflineEnergy))

		fmt.Fprintf(w, "# HELP clicker_saves_completed Total record saves\n")
		fmt.Fprintf(w, "# TYPE clicker_saves_completed counter\n")
		fmt.Fprintf(w, "clicker_saves_completed %d\n\n", atomic.LoadInt64(&c.SavesCompleted))

		fmt.Fprintf(w, "# HELP clicker_save_errors Total failed record saves\n")
		fmt.Fprintf(w, "# TYPE clicker_save_errors counter\n")
		fmt.Fprintf(w, "clicker_save_errors %d\n\n", atomic.LoadInt64(&c.SaveErrors))

		fmt.Fprintf(w, "# HELP clicker_ws_connections Active WebSocket connections\n")
		fmt.Fprintf(w, "# TYPE clicker_ws_connections gauge\n")
		fmt.Fprintf(w, "clicker_ws_connections %d\n\n", atomic.LoadInt64(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP clicker_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE clicker_ws_messages_total counter\n")
		fmt.Fprintf(w, "clicker_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "clicker_ws_messages_total{direction=\"out\"} %d\n", atomic.LoadInt64(&c.WSMessagesOut))
	}
}
