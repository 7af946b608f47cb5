package model

import (
	"fmt"
	"strings"
)

// Mode is the transport mode of a segment or terminal.
type Mode int

const (
	Truck Mode = iota
	Boat
	Plane
)

// Modes lists every transport mode in display order.
var Modes = []Mode{Truck, Boat, Plane}

func (m Mode) String() string {
	switch m {
	case Truck:
		return "truck"
	case Boat:
		return "boat"
	case Plane:
		return "plane"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether m is a known transport mode.
func (m Mode) Valid() bool {
	return m >= Truck && m <= Plane
}

// ParseMode converts "truck", "boat" or "plane" (case-insensitive) to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "truck":
		return Truck, nil
	case "boat":
		return Boat, nil
	case "plane":
		return Plane, nil
	default:
		return Truck, fmt.Errorf("unknown transport mode %q", s)
	}
}

// ExpediteSupport marks whether a segment, or a whole path, runs expedited service.
type ExpediteSupport int

const (
	ExpediteNotSupported ExpediteSupport = iota
	ExpediteSupported
)

func (e ExpediteSupport) String() string {
	if e == ExpediteSupported {
		return "yes"
	}
	return "no"
}
