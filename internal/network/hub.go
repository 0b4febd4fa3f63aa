package network

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sdxqw/energy-clicker/internal/domain/player"
	"github.com/sdxqw/energy-clicker/internal/engine"
	"github.com/sdxqw/energy-clicker/internal/events"
	"github.com/sdxqw/energy-clicker/internal/platform/logger"
	"github.com/sdxqw/energy-clicker/internal/platform/metrics"
)

// statsMessage is the updatePlayerStats push.
type statsMessage struct {
	Type  string       `json:"type"`
	Stats player.Stats `json:"stats"`
}

// upgradeResultMessage reports the outcome of an upgrade purchase. NewCost is
// only present on success.
type upgradeResultMessage struct {
	Type    string   `json:"type"`
	Success bool     `json:"success"`
	NewCost *float64 `json:"newCost,omitempty"`
}

// upgradeCostMessage answers a getUpgradeCost request.
type upgradeCostMessage struct {
	Type string  `json:"type"`
	Cost float64 `json:"cost"`
}

// eventFeedMessage broadcasts a progression milestone to every client.
type eventFeedMessage struct {
	Type  string           `json:"type"`
	Event events.GameEvent `json:"event"`
}

// Hub maintains the set of active clients, routes engine pushes to the right
// player and broadcasts the event feed. It implements engine.Pusher.
type Hub struct {
	clients    map[string]*Client // keyed by player ID
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex
	engine     *engine.Engine
	logger     *logger.Logger
}

// NewHub initializes a new WebSocket Hub.
func NewHub(eng *engine.Engine, log *logger.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string]*Client),
		engine:     eng,
		logger:     log,
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket Hub shutting down.")
			return
		case client := <-h.register:
			h.mu.Lock()
			old, replaced := h.clients[client.playerID]
			h.clients[client.playerID] = client
			if replaced {
				// One binding per player: the newer connection wins. The
				// close must happen under h.mu so no send races it.
				close(old.send)
			}
			h.mu.Unlock()

			metrics.Get().RecordWSConnection(1)
			if replaced {
				h.logger.Warn("Replaced existing connection for player " + client.playerID)
			} else {
				h.logger.Info("Player connected: " + client.playerID)
				h.engine.OnPlayerJoin(client.playerID)
			}
		case client := <-h.unregister:
			h.mu.Lock()
			current, ok := h.clients[client.playerID]
			if ok && current == client {
				delete(h.clients, client.playerID)
				close(client.send)
			}
			h.mu.Unlock()

			metrics.Get().RecordWSConnection(-1)
			if ok && current == client {
				h.logger.Info("Player disconnected: " + client.playerID)
				h.engine.OnPlayerLeave(client.playerID)
			}
		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// PushStats sends the updatePlayerStats message to one player.
func (h *Hub) PushStats(playerID string, stats player.Stats) {
	h.sendTo(playerID, statsMessage{Type: "updatePlayerStats", Stats: stats})
}

// PushUpgradeResult sends the upgradeResult message to one player.
func (h *Hub) PushUpgradeResult(playerID string, success bool, newCost float64) {
	msg := upgradeResultMessage{Type: "upgradeResult", Success: success}
	if success {
		msg.NewCost = &newCost
	}
	h.sendTo(playerID, msg)
}

// sendTo serializes and delivers a message to a single player, dropping it if
// the client's send buffer is full. The send stays under h.mu: the hub closes
// client channels while holding it, and a send racing that close is fatal.
func (h *Hub) sendTo(playerID string, msg interface{}) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to serialize push message: " + err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.clients[playerID]
	if !ok {
		return
	}

	select {
	case client.send <- payload:
		metrics.Get().RecordWSMessage(false)
	default:
		metrics.Get().RecordWSError()
	}
}

// sendToCurrent delivers payload to c only while it is still the registered
// connection for its player, under the same locking rule as sendTo.
func (h *Hub) sendToCurrent(c *Client, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.playerID] != c {
		return
	}

	select {
	case c.send <- payload:
		metrics.Get().RecordWSMessage(false)
	default:
		metrics.Get().RecordWSError()
	}
}

// BroadcastEvent serializes a progression event and sends it to all clients.
func (h *Hub) BroadcastEvent(event events.GameEvent) {
	payload, err := json.Marshal(eventFeedMessage{Type: "eventFeed", Event: event})
	if err != nil {
		h.logger.Error("Failed to serialize event for WebSocket broadcast: " + err.Error())
		return
	}
	h.broadcast <- payload
}

// StartEventPoller spawns a goroutine to poll the event log and push new
// progression events to every client as a feed.
func (h *Hub) StartEventPoller(ctx context.Context, eventLog *events.EventLog) {
	go func() {
		pollInterval := time.NewTicker(200 * time.Millisecond)
		defer pollInterval.Stop()

		lastProcessedEvent := 0

		for {
			select {
			case <-ctx.Done():
				return
			case <-pollInterval.C:
				allEvents := eventLog.Replay()
				newEventsCount := len(allEvents) - lastProcessedEvent

				if newEventsCount > 0 {
					newEvents := allEvents[lastProcessedEvent:]
					for _, event := range newEvents {
						h.BroadcastEvent(event)
					}
					lastProcessedEvent = len(allEvents)
				}
			}
		}
	}()
}
