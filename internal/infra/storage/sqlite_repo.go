package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// SQLitePlayerRepository implements PlayerRepository for SQLite.
type SQLitePlayerRepository struct {
	db *sql.DB
}

func NewSQLitePlayerRepository(db *sql.DB) *SQLitePlayerRepository {
	return &SQLitePlayerRepository{db: db}
}

func (r *SQLitePlayerRepository) Get(ctx context.Context, key string) (PlayerRecord, bool, error) {
	query := `SELECT energy, multiplier, energy_per_second, last_save_time FROM players WHERE record_key = ?`
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

func (r *SQLitePlayerRepository) Upsert(ctx context.Context, key string, rec PlayerRecord) error {
	query := `
		INSERT INTO players (record_key, energy, multiplier, energy_per_second, last_save_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(record_key) DO UPDATE SET
			energy=excluded.energy,
			multiplier=excluded.multiplier,
			energy_per_second=excluded.energy_per_second,
			last_save_time=excluded.last_save_time
	`
	_, err := r.db.ExecContext(ctx, query,
		key, rec.Energy, rec.Multiplier, rec.EnergyPerSecond, rec.LastSaveTime,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert player record: %w", err)
	}
	return nil
}

// ---------------------------------------------------------
// SQLiteEventRepository
// ---------------------------------------------------------

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event StoredEvent) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO events (id, timestamp, event_type, player_id, payload)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.Timestamp, event.EventType, event.PlayerID, string(payloadBytes),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]StoredEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var payloadStr string
		err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.PlayerID, &payloadStr)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payloadStr), &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SQLiteEventRepository) GetByPlayerID(ctx context.Context, playerID string) ([]StoredEvent, error) {
	query := `SELECT id, timestamp, event_type, player_id, payload FROM events WHERE player_id = ? ORDER BY timestamp ASC`
	return r.getMany(ctx, query, playerID)
}

func (r *SQLiteEventRepository) GetRecent(ctx context.Context, limit int) ([]StoredEvent, error) {
	query := `SELECT * FROM (
		SELECT id, timestamp, event_type, player_id, payload FROM events ORDER BY timestamp DESC LIMIT ?
	) ORDER BY timestamp ASC`
	return r.getMany(ctx, query, limit)
}
