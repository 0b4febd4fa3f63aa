package network

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sdxqw/energy-clicker/internal/platform/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// PlayerAction represents an incoming command from the client.
type PlayerAction struct {
	Type    string          `json:"type"`              // "playerClickEnergy", "upgradeMultiplier", ...
	Payload json.RawMessage `json:"payload,omitempty"` // Action-specific data
}

// Client represents an active WebSocket connection bound to one player.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	playerID string
	send     chan []byte
}

// NewClient creates a new WebSocket client for the given player.
func NewClient(hub *Hub, conn *websocket.Conn, playerID string, sendBuffer int) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		playerID: playerID,
		send:     make(chan []byte, sendBuffer),
	}
}

// Register adds the client to the hub.
func (c *Client) Register() {
	c.hub.register <- c
}

// ReadPump pumps messages from the websocket connection into the engine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket read error for " + c.playerID + ": " + err.Error())
				metrics.Get().RecordWSError()
			}
			break
		}
		metrics.Get().RecordWSMessage(true)

		var action PlayerAction
		if err := json.Unmarshal(message, &action); err != nil {
			c.hub.logger.Error("Failed to parse PlayerAction from " + c.playerID + ": " + err.Error())
			continue
		}

		c.handlePlayerAction(action)
	}
}

func (c *Client) handlePlayerAction(action PlayerAction) {
	eng := c.hub.engine

	switch action.Type {
	case "playerClickEnergy":
		eng.OnClick(c.playerID)
	case "requestPlayerStats":
		eng.OnStatsRequest(c.playerID)
	case "upgradeMultiplier":
		eng.OnUpgradeRequest(c.playerID)
	case "getUpgradeCost":
		c.handleGetUpgradeCost(action.Payload)
	default:
		c.hub.logger.Warn("Unknown PlayerAction type from " + c.playerID + ": " + action.Type)
	}
}

// handleGetUpgradeCost is the only request/response action; the answer goes
// straight back on this client's send channel.
func (c *Client) handleGetUpgradeCost(rawPayload []byte) {
	var parsed struct {
		UpgradeType string `json:"upgradeType"`
	}
	if len(rawPayload) > 0 {
		if err := json.Unmarshal(rawPayload, &parsed); err != nil {
			c.hub.logger.Warn("Failed to parse getUpgradeCost payload from " + c.playerID)
			return
		}
	}

	cost := c.hub.engine.UpgradeCostFor(c.playerID, parsed.UpgradeType)

	payload, err := json.Marshal(upgradeCostMessage{Type: "upgradeCost", Cost: cost})
	if err != nil {
		return
	}
	c.hub.sendToCurrent(c, payload)
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
