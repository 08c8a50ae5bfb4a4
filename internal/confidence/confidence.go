// Package confidence implements the numeric policy governing memory
// trust: reinforcement, time decay, and the auto-apply gate. All
// functions are pure; time enters only as an explicit argument.
package confidence

import "time"

// Policy constants. Stored confidence is always full strength; decay is
// computed at read time and written back only on reinforcement.
const (
	// Increment is added per approval.
	Increment = 0.05
	// DecayPerDay is subtracted per whole day since last use.
	DecayPerDay = 0.01
	// Max caps reinforced confidence.
	Max = 0.95
	// Min floors decayed confidence.
	Min = 0.0

	// AutoApplyThreshold is the minimum confidence for unattended use.
	AutoApplyThreshold = 0.75
	// AutoApplyMinReinforced is the minimum approvals for unattended use.
	AutoApplyMinReinforced = 2

	// Initial is the confidence of a memory created from one approval.
	Initial = 0.3
	// Seed is the confidence of a pre-seeded correction pattern.
	Seed = 0.2
)

// Reinforce returns the confidence after one approval.
func Reinforce(c float64) float64 {
	if c+Increment > Max {
		return Max
	}
	return c + Increment
}

// Decay returns the confidence after daysUnused whole days without use.
func Decay(c float64, daysUnused int) float64 {
	decayed := c - float64(daysUnused)*DecayPerDay
	if decayed < Min {
		return Min
	}
	return decayed
}

// DaysSinceUse counts whole elapsed days between lastUsedAt and now.
// A never-used memory (nil lastUsedAt) counts as zero days.
func DaysSinceUse(lastUsedAt *time.Time, now time.Time) int {
	if lastUsedAt == nil {
		return 0
	}
	elapsed := now.Sub(*lastUsedAt)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed.Hours() / 24)
}

// ApplyDecay computes the live confidence of a stored memory at now.
func ApplyDecay(c float64, lastUsedAt *time.Time, now time.Time) float64 {
	return Decay(c, DaysSinceUse(lastUsedAt, now))
}

// ShouldAutoApply reports whether a correction may be applied without
// human review. Both conditions must hold.
func ShouldAutoApply(c float64, reinforcedCount int) bool {
	return c >= AutoApplyThreshold && reinforcedCount >= AutoApplyMinReinforced
}
