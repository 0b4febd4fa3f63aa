// Package config holds the tunable parameters of the clicker server.
// Game balance values and server sizing live here so deployments can adjust
// them in one place.
package config

import (
	"runtime"
	"time"
)

// Config holds game balance and server tuning parameters.
type Config struct {
	// Energy accrual
	BaseEnergyPerSecond float64       // passive energy per second at multiplier 1
	TickInterval        time.Duration // how often passive energy is credited
	MaxTickCatchUp      int           // max whole intervals consumed per frame
	ClickCooldown       time.Duration // server-side cooldown between clicks

	// Upgrade economy
	UpgradeBaseCost       float64
	UpgradeCostScaling    float64
	UpgradeIncreaseAmount float64

	// Offline earnings
	MaxOfflineHours      float64
	OfflineEnergyPerHour float64 // per hour per multiplier point

	// Persistence
	AutoSaveInterval time.Duration

	// Network
	ClientSendBuffer int

	// Database connections
	DBMaxOpenConns int
	DBMaxIdleConns int
}

// DefaultConfig returns the balance values the game shipped with.
func DefaultConfig() *Config {
	numCPU := runtime.NumCPU()

	return &Config{
		BaseEnergyPerSecond: 1,
		TickInterval:        1 * time.Second,
		MaxTickCatchUp:      5,
		ClickCooldown:       500 * time.Millisecond,

		UpgradeBaseCost:       10,
		UpgradeCostScaling:    1.5,
		UpgradeIncreaseAmount: 0.5,

		MaxOfflineHours:      24,
		OfflineEnergyPerHour: 10,

		AutoSaveInterval: 30 * time.Second,

		ClientSendBuffer: 64,

		DBMaxOpenConns: numCPU * 4,
		DBMaxIdleConns: numCPU * 2,
	}
}
