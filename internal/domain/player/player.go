// Package player defines the core domain entities for player progression.
// This package is PURE and must NOT import any infrastructure packages (network, events, platform).
package player

import "time"

// Record is the persisted progression state of one player.
type Record struct {
	Energy          float64   `json:"energy"`
	Multiplier      float64   `json:"multiplier"`
	EnergyPerSecond float64   `json:"energyPerSecond"` // always baseRate * Multiplier
	LastSaveTime    time.Time `json:"lastSaveTime"`
}

// Stats is the read-only projection of a Record sent to clients.
// It is never persisted directly.
type Stats struct {
	Energy          float64 `json:"energy"`
	Multiplier      float64 `json:"multiplier"`
	EnergyPerSecond float64 `json:"energyPerSecond"`
}

// NewRecord creates the default record for a never-seen player.
func NewRecord(baseRate float64, now time.Time) Record {
	return Record{
		Energy:          0,
		Multiplier:      1,
		EnergyPerSecond: baseRate,
		LastSaveTime:    now,
	}
}

// Stats returns the client-facing projection of the record.
func (r Record) Stats() Stats {
	return Stats{
		Energy:          r.Energy,
		Multiplier:      r.Multiplier,
		EnergyPerSecond: r.EnergyPerSecond,
	}
}
