// Package storage - postgres.go
// PostgreSQL implementations of PlayerRepository and EventRepository, selected
// with the -storage postgres flag for deployments that outgrow SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// InitPostgres opens the PostgreSQL database and creates the necessary schemas.
func InitPostgres(dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	schemas := []string{
		`CREATE TABLE IF NOT EXISTS players (
			record_key TEXT PRIMARY KEY,
			energy DOUBLE PRECISION NOT NULL DEFAULT 0,
			multiplier DOUBLE PRECISION NOT NULL DEFAULT 1,
			energy_per_second DOUBLE PRECISION NOT NULL DEFAULT 1,
			last_save_time TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			event_type TEXT NOT NULL,
			player_id TEXT NOT NULL,
			payload JSONB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_player_id ON events(player_id);`,
	}
	for _, query := range schemas {
		if _, err := db.Exec(query); err != nil {
			return nil, fmt.Errorf("failed to create schemas: %w", err)
		}
	}

	return db, nil
}

// PostgresPlayerRepository implements PlayerRepository using PostgreSQL.
type PostgresPlayerRepository struct {
	db *sql.DB
}

func NewPostgresPlayerRepository(db *sql.DB) *PostgresPlayerRepository {
	return &PostgresPlayerRepository{db: db}
}

func (r *PostgresPlayerRepository) Get(ctx context.Context, key string) (PlayerRecord, bool, error) {
	query := `SELECT energy, multiplier, energy_per_second, last_save_time FROM players WHERE record_key = $1`
	var rec PlayerRecord
	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&rec.Energy, &rec.Multiplier, &rec.EnergyPerSecond, &rec.LastSaveTime,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return PlayerRecord{}, false, nil
		}
		return PlayerRecord{}, false, fmt.Errorf("failed to get player record: %w", err)
	}
	return rec, true, nil
}

func (r *PostgresPlayerRepository) Upsert(ctx context.Context, key string, rec PlayerRecord) error {
	query := `
		INSERT INTO players (record_key, energy, multiplier, energy_per_second, last_save_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (record_key) DO UPDATE SET
			energy = EXCLUDED.energy,
			multiplier = EXCLUDED.multiplier,
			energy_per_second = EXCLUDED.energy_per_second,
			last_save_time = EXCLUDED.last_save_time
	`
	_, err := r.db.ExecContext(ctx, query,
		key, rec.Energy, rec.Multiplier, rec.EnergyPerSecond, rec.LastSaveTime,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert player record: %w", err)
	}
	return nil
}

// PostgresEventRepository implements EventRepository using PostgreSQL.
type PostgresEventRepository struct {
	db *sql.DB
}

func NewPostgresEventRepository(db *sql.DB) *PostgresEventRepository {
	return &PostgresEventRepository{db: db}
}

func (r *PostgresEventRepository) Append(ctx context.Context, event StoredEvent) error {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO events (id, timestamp, event_type, player_id, payload)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.Timestamp, event.EventType, event.PlayerID, payloadJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *PostgresEventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]StoredEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var payloadBytes []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.PlayerID, &payloadBytes); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payloadBytes, &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *PostgresEventRepository) GetByPlayerID(ctx context.Context, playerID string) ([]StoredEvent, error) {
	query := `SELECT id, timestamp, event_type, player_id, payload FROM events WHERE player_id = $1 ORDER BY timestamp ASC`
	return r.getMany(ctx, query, playerID)
}

func (r *PostgresEventRepository) GetRecent(ctx context.Context, limit int) ([]StoredEvent, error) {
	query := `SELECT id, timestamp, event_type, player_id, payload FROM (
		SELECT id, timestamp, event_type, player_id, payload FROM events ORDER BY timestamp DESC LIMIT $1
	) recent ORDER BY timestamp ASC`
	return r.getMany(ctx, query, limit)
}
