// Package rules contains the pure calculation logic for the game economy.
// This package is PURE and must NOT import any infrastructure packages.
package rules

import (
	"math"
	"time"
)

// UpgradeParams holds the parameters of the multiplier upgrade cost curve.
type UpgradeParams struct {
	BaseCost       float64 // cost of the first upgrade
	ScalingFactor  float64 // cost multiplier per level
	IncreaseAmount float64 // multiplier gained per upgrade
}

// OfflineParams holds the parameters for offline earnings reconciliation.
type OfflineParams struct {
	MaxHours      float64 // elapsed time is clamped to this many hours
	EnergyPerHour float64 // energy per hour per multiplier point
}

// UpgradeCost computes the cost of the next multiplier upgrade.
// The level is derived from how far the multiplier has climbed from its
// starting value of 1, so the curve stays deterministic given the multiplier.
func UpgradeCost(currentMultiplier float64, p UpgradeParams) float64 {
	level := math.Floor((currentMultiplier-1)/p.IncreaseAmount) + 1
	return math.Floor(p.BaseCost * math.Pow(p.ScalingFactor, level-1))
}

// OfflineWindow returns the creditable offline window in hours. Non-positive
// elapsed time yields 0; longer absences are clamped at MaxHours.
func OfflineWindow(elapsed time.Duration, p OfflineParams) float64 {
	if elapsed <= 0 {
		return 0
	}
	return math.Min(elapsed.Hours(), p.MaxHours)
}

// OfflineEarnings computes the energy credited for time spent offline.
func OfflineEarnings(elapsed time.Duration, multiplier float64, p OfflineParams) float64 {
	return math.Floor(OfflineWindow(elapsed, p) * multiplier * p.EnergyPerHour)
}

// ClickGain computes the energy earned by a single click.
// A click always earns at least 1 energy.
func ClickGain(multiplier float64) float64 {
	return math.Max(1, math.Floor(multiplier))
}
