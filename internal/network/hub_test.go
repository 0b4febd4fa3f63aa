package network

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sdxqw/energy-clicker/internal/domain/player"
	"github.com/sdxqw/energy-clicker/internal/domain/rules"
	"github.com/sdxqw/energy-clicker/internal/engine"
	"github.com/sdxqw/energy-clicker/internal/events"
	"github.com/sdxqw/energy-clicker/internal/infra/storage"
	"github.com/sdxqw/energy-clicker/internal/platform/config"
	"github.com/sdxqw/energy-clicker/internal/platform/logger"
	"github.com/sdxqw/energy-clicker/internal/records"
)

func newTestHub() *Hub {
	cfg := config.DefaultConfig()
	log := logger.NewLogger()
	offline := rules.OfflineParams{MaxHours: cfg.MaxOfflineHours, EnergyPerHour: cfg.OfflineEnergyPerHour}
	store := records.NewStore(storage.NewMemoryCollection(cfg.BaseEnergyPerSecond), log, cfg.BaseEnergyPerSecond, offline)
	eng := engine.NewEngine(store, events.NewEventLog(nil), log, cfg)
	hub := NewHub(eng, log)
	eng.SetPusher(hub)
	return hub
}

// Engine pushes arrive from outside the hub loop, so they must survive a
// connection being torn down at the same instant. A send racing the channel
// close would panic and take the whole process down.
func TestPushStatsDuringDisconnectChurn(t *testing.T) {
	hub := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					hub.PushStats("P1", player.Stats{})
					hub.PushUpgradeResult("P1", true, 15)
				}
			}
		}()
	}

	for i := 0; i < 300; i++ {
		c := NewClient(hub, nil, "P1", 1)
		hub.register <- c
		hub.unregister <- c
	}

	close(stop)
	wg.Wait()
}

// A stale connection that was replaced must not receive the cost reply meant
// for the new one, and sending to it after replacement must be a no-op.
func TestSendToCurrentSkipsReplacedClient(t *testing.T) {
	hub := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	oldClient := NewClient(hub, nil, "P1", 1)
	hub.register <- oldClient
	newClient := NewClient(hub, nil, "P1", 1)
	hub.register <- newClient

	// Registration completes inside the hub loop after the channel send
	// returns; wait until newClient is actually installed before asserting.
	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.mu.Lock()
		installed := hub.clients["P1"] == newClient
		hub.mu.Unlock()
		if installed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("newClient was never installed as the current connection")
		}
		time.Sleep(time.Millisecond)
	}

	// The replaced client's channel is closed; this must not panic or deliver.
	hub.sendToCurrent(oldClient, []byte(`{"type":"upgradeCost"}`))

	hub.sendToCurrent(newClient, []byte(`{"type":"upgradeCost"}`))
	select {
	case msg := <-newClient.send:
		if len(msg) == 0 {
			t.Error("Expected a non-empty payload for the current client")
		}
	default:
		t.Error("Expected the current client to receive the payload")
	}
}
