package network

import (
	"fmt"

	"github.com/signalsfoundry/shipping-simulator/model"
)

// TimeOfDay selects which fleet profile is active.
type TimeOfDay int

const (
	Day TimeOfDay = iota
	Night
)

func (t TimeOfDay) String() string {
	if t == Night {
		return "night"
	}
	return "day"
}

// ModeAttributes are the per-mode vehicle attributes of a fleet profile.
type ModeAttributes struct {
	Speed       model.MilesPerHour
	CostPerMile model.Dollars
	Capacity    model.PackageCount
}

func (a ModeAttributes) validate() error {
	if a.Speed < 0 || a.CostPerMile < 0 || a.Capacity < 0 {
		return fmt.Errorf("%w: fleet attributes must be non-negative", ErrInvalidAttribute)
	}
	return nil
}

// Fleet stores vehicle attributes per transport mode. A fleet always has a day
// profile; a night profile is optional and, when present, overrides the day
// values for the modes it configures while the fleet is in night mode.
type Fleet struct {
	day       map[model.Mode]ModeAttributes
	night     map[model.Mode]ModeAttributes
	timeOfDay TimeOfDay

	revision uint64
}

// NewFleet returns a fleet with zeroed attributes for every mode.
func NewFleet() *Fleet {
	f := &Fleet{
		day:   make(map[model.Mode]ModeAttributes, len(model.Modes)),
		night: make(map[model.Mode]ModeAttributes),
	}
	for _, m := range model.Modes {
		f.day[m] = ModeAttributes{}
	}
	return f
}

// SetAttributes replaces the day profile for mode.
func (f *Fleet) SetAttributes(mode model.Mode, attrs ModeAttributes) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %s", ErrModeMismatch, mode)
	}
	if err := attrs.validate(); err != nil {
		return err
	}
	f.day[mode] = attrs
	f.revision++
	return nil
}

// SetNightAttributes replaces the night profile for mode.
func (f *Fleet) SetNightAttributes(mode model.Mode, attrs ModeAttributes) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %s", ErrModeMismatch, mode)
	}
	if err := attrs.validate(); err != nil {
		return err
	}
	f.night[mode] = attrs
	f.revision++
	return nil
}

// HasNightProfile reports whether any mode has night attributes.
func (f *Fleet) HasNightProfile() bool { return len(f.night) > 0 }

// TimeOfDay returns the active profile selector.
func (f *Fleet) TimeOfDay() TimeOfDay { return f.timeOfDay }

// SetTimeOfDay switches the active profile.
func (f *Fleet) SetTimeOfDay(t TimeOfDay) {
	if t == f.timeOfDay {
		return
	}
	f.timeOfDay = t
	f.revision++
}

// Attributes returns the active attributes for mode.
func (f *Fleet) Attributes(mode model.Mode) ModeAttributes {
	if f.timeOfDay == Night {
		if attrs, ok := f.night[mode]; ok {
			return attrs
		}
	}
	return f.day[mode]
}

func (f *Fleet) Speed(mode model.Mode) model.MilesPerHour    { return f.Attributes(mode).Speed }
func (f *Fleet) CostPerMile(mode model.Mode) model.Dollars   { return f.Attributes(mode).CostPerMile }
func (f *Fleet) Capacity(mode model.Mode) model.PackageCount { return f.Attributes(mode).Capacity }

// Revision changes whenever an attribute that affects routing changes.
func (f *Fleet) Revision() uint64 { return f.revision }
