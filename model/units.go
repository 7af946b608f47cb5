package model

import (
	"fmt"
	"math"
)

// Time is a point on the simulation clock, measured in hours since the
// simulation started.
type Time float64

// Add returns t advanced by h.
func (t Time) Add(h Hours) Time { return t + Time(h) }

// Sub returns the duration between t and u.
func (t Time) Sub(u Time) Hours { return Hours(t - u) }

// Before reports whether t is earlier than u.
func (t Time) Before(u Time) bool { return t < u }

func (t Time) String() string { return fmt.Sprintf("%.2f", float64(t)) }

// Hours is a span of simulated time.
type Hours float64

func (h Hours) String() string { return fmt.Sprintf("%.2f", float64(h)) }

// Miles is a distance.
type Miles float64

func (m Miles) String() string { return fmt.Sprintf("%.2f", float64(m)) }

// Dollars is a monetary cost.
type Dollars float64

func (d Dollars) String() string { return fmt.Sprintf("%.2f", float64(d)) }

// MilesPerHour is a vehicle speed.
type MilesPerHour float64

func (s MilesPerHour) String() string { return fmt.Sprintf("%.2f", float64(s)) }

// Difficulty scales the cost of travelling a segment. Valid values lie in
// [MinDifficulty, MaxDifficulty].
type Difficulty float64

const (
	MinDifficulty Difficulty = 1.0
	MaxDifficulty Difficulty = 5.0
)

// NewDifficulty validates v and returns it as a Difficulty.
func NewDifficulty(v float64) (Difficulty, error) {
	if math.IsNaN(v) || v < float64(MinDifficulty) || v > float64(MaxDifficulty) {
		return MinDifficulty, fmt.Errorf("difficulty %.2f outside [%.1f, %.1f]", v, MinDifficulty, MaxDifficulty)
	}
	return Difficulty(v), nil
}

func (d Difficulty) String() string { return fmt.Sprintf("%.2f", float64(d)) }

// PackageCount counts packages (the unit of load and capacity).
type PackageCount int

// ShipmentCount counts shipments.
type ShipmentCount int

// VehicleCount counts vehicles assigned to a segment.
type VehicleCount int
