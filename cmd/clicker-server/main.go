// Package main is the entry point for the energy clicker game server.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/sdxqw/energy-clicker/internal/domain/rules"
	"github.com/sdxqw/energy-clicker/internal/engine"
	"github.com/sdxqw/energy-clicker/internal/events"
	"github.com/sdxqw/energy-clicker/internal/infra/storage"
	"github.com/sdxqw/energy-clicker/internal/network"
	"github.com/sdxqw/energy-clicker/internal/platform/config"
	"github.com/sdxqw/energy-clicker/internal/platform/logger"
	"github.com/sdxqw/energy-clicker/internal/platform/metrics"
	"github.com/sdxqw/energy-clicker/internal/records"
)

// EventPersisterAdapter translates progression events to storage events.
type EventPersisterAdapter struct {
	repo storage.EventRepository
}

func (a *EventPersisterAdapter) Append(event events.GameEvent) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	var payloadMap map[string]interface{}
	if err := json.Unmarshal(payloadBytes, &payloadMap); err != nil {
		return fmt.Errorf("failed to convert event payload: %w", err)
	}

	storedEvent := storage.StoredEvent{
		ID:        event.ID,
		Timestamp: event.Timestamp,
		EventType: string(event.Type),
		PlayerID:  event.PlayerID,
		Payload:   payloadMap,
	}
	return a.repo.Append(context.Background(), storedEvent)
}

func main() {
	addr := flag.String("addr", ":8080", "HTTP/WebSocket listen address")
	backend := flag.String("storage", "sqlite", "Storage backend: sqlite, postgres or memory")
	dbPath := flag.String("db", "clicker.db", "SQLite database path")
	pgDSN := flag.String("pg-dsn", os.Getenv("CLICKER_PG_DSN"), "PostgreSQL DSN (for -storage postgres)")
	flag.Parse()

	log.Println("[CLICKER-SERVER] Initializing authoritative game server...")

	appLogger := logger.NewLogger()
	cfg := config.DefaultConfig()

	var collection storage.Collection
	var eventRepo storage.EventRepository

	switch *backend {
	case "sqlite":
		appLogger.Info("Initializing SQLite database '" + *dbPath + "'...")
		db, err := storage.InitSQLite(*dbPath)
		if err != nil {
			appLogger.Error("Failed to initialize SQLite: " + err.Error())
			os.Exit(1)
		}
		collection = storage.NewCollection(storage.NewSQLitePlayerRepository(db), cfg.BaseEnergyPerSecond)
		eventRepo = storage.NewSQLiteEventRepository(db)
	case "postgres":
		appLogger.Info("Initializing PostgreSQL backend...")
		db, err := storage.InitPostgres(*pgDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
		if err != nil {
			appLogger.Error("Failed to initialize PostgreSQL: " + err.Error())
			os.Exit(1)
		}
		collection = storage.NewCollection(storage.NewPostgresPlayerRepository(db), cfg.BaseEnergyPerSecond)
		eventRepo = storage.NewPostgresEventRepository(db)
	case "memory":
		appLogger.Warn("Using in-memory storage; player progress will not survive restarts.")
		collection = storage.NewMemoryCollection(cfg.BaseEnergyPerSecond)
	default:
		appLogger.Error("Unknown storage backend: " + *backend)
		os.Exit(1)
	}

	appLogger.Info("Bootstrapping event log...")
	var eventLog *events.EventLog
	if eventRepo != nil {
		eventLog = events.NewEventLog(&EventPersisterAdapter{repo: eventRepo})
	} else {
		eventLog = events.NewEventLog(nil)
	}

	appLogger.Info("Bootstrapping player record store...")
	offline := rules.OfflineParams{MaxHours: cfg.MaxOfflineHours, EnergyPerHour: cfg.OfflineEnergyPerHour}
	store := records.NewStore(collection, appLogger, cfg.BaseEnergyPerSecond, offline)

	appLogger.Info("Bootstrapping progression engine...")
	gameEngine := engine.NewEngine(store, eventLog, appLogger, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appLogger.Info("Bootstrapping WebSocket hub...")
	hub := network.NewHub(gameEngine, appLogger)
	gameEngine.SetPusher(hub)

	go gameEngine.Run(ctx)
	gameEngine.StartAutoSave(ctx)
	go hub.Run(ctx)
	hub.StartEventPoller(ctx, eventLog)

	// Setup API routes
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, cfg, w, r, appLogger)
	})

	http.HandleFunc("/metrics", metrics.Handler())
	http.HandleFunc("/metrics/prometheus", metrics.PrometheusHandler())

	http.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"events": eventLog.Recent(limit),
		})
	})

	if eventRepo != nil {
		reconstructor := storage.NewReconstructor(eventRepo)
		http.HandleFunc("/api/players/history", func(w http.ResponseWriter, r *http.Request) {
			playerID := r.URL.Query().Get("player")
			if playerID == "" {
				http.Error(w, "Missing player identifier", http.StatusBadRequest)
				return
			}

			history, err := reconstructor.PlayerHistory(r.Context(), playerID)
			if err != nil {
				http.Error(w, "Failed to load player history", http.StatusInternalServerError)
				return
			}
			multiplier, err := reconstructor.RebuildMultiplier(r.Context(), playerID)
			if err != nil {
				http.Error(w, "Failed to replay player ledger", http.StatusInternalServerError)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"player_id":           playerID,
				"replayed_multiplier": multiplier,
				"history":             history,
			})
		})
	}

	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":        "ok",
			"bound_players": store.BoundCount(),
		})
	})

	go func() {
		log.Println("[CLICKER-SERVER] HTTP API & WS Server listening on " + *addr)
		if err := http.ListenAndServe(*addr, nil); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	log.Println("[CLICKER-SERVER] Server running. Press Ctrl+C to exit.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[CLICKER-SERVER] Shutting down, flushing player records...")
	cancel()
	store.FlushAll(context.Background())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow cross-origin requests from the game client
	},
}

// serveWs handles websocket requests from the peer.
func serveWs(hub *network.Hub, cfg *config.Config, w http.ResponseWriter, r *http.Request, log *logger.Logger) {
	playerID := r.URL.Query().Get("player")
	if playerID == "" {
		http.Error(w, "Missing player identifier", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("Failed to upgrade websocket connection: " + err.Error())
		return
	}

	client := network.NewClient(hub, conn, playerID, cfg.ClientSendBuffer)
	client.Register()

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.WritePump()
	go client.ReadPump()
}
