package network

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/shipping-simulator/internal/notify"
	"github.com/signalsfoundry/shipping-simulator/model"
)

// SegmentNotifiee observes shipments admitted onto a segment.
type SegmentNotifiee interface {
	OnShipmentArrival(ctx context.Context, seg *Segment, shp *Shipment) error
}

// Segment is a directed transport edge. Its source and return partner are
// stored by name and resolved through the owning network, so the symmetric
// return pairing never forms a reference cycle.
type Segment struct {
	name    string
	mode    model.Mode
	network *Network

	source     string
	returnName string

	length      model.Miles
	difficulty  model.Difficulty
	numVehicles model.VehicleCount
	expedite    model.ExpediteSupport

	load       model.PackageCount
	received   model.ShipmentCount
	toldToWait model.ShipmentCount
	refused    model.ShipmentCount

	notifier notify.Notifier[SegmentNotifiee]
}

func newSegment(n *Network, name string, mode model.Mode) *Segment {
	seg := &Segment{
		name:        name,
		mode:        mode,
		network:     n,
		difficulty:  model.MinDifficulty,
		numVehicles: 1,
	}
	seg.notifier.Log = n.log
	return seg
}

func (s *Segment) Name() string                           { return s.name }
func (s *Segment) Mode() model.Mode                       { return s.mode }
func (s *Segment) Length() model.Miles                    { return s.length }
func (s *Segment) Difficulty() model.Difficulty           { return s.difficulty }
func (s *Segment) NumVehicles() model.VehicleCount        { return s.numVehicles }
func (s *Segment) ExpediteSupport() model.ExpediteSupport { return s.expedite }
func (s *Segment) Load() model.PackageCount               { return s.load }
func (s *Segment) Received() model.ShipmentCount          { return s.received }
func (s *Segment) ToldToWait() model.ShipmentCount        { return s.toldToWait }
func (s *Segment) Refused() model.ShipmentCount           { return s.refused }
func (s *Segment) SourceName() string                     { return s.source }
func (s *Segment) ReturnName() string                     { return s.returnName }

// Source resolves the source location, or nil when detached.
func (s *Segment) Source() *Location {
	if s.source == "" {
		return nil
	}
	return s.network.locations[s.source]
}

// Return resolves the paired return segment, or nil when unpaired.
func (s *Segment) Return() *Segment {
	if s.returnName == "" {
		return nil
	}
	return s.network.segments[s.returnName]
}

// Next returns the location a shipment reaches by travelling s: the source of
// its return segment.
func (s *Segment) Next() *Location {
	r := s.Return()
	if r == nil {
		return nil
	}
	return r.Source()
}

// Capacity is numVehicles × fleet capacity for the segment's mode.
func (s *Segment) Capacity() model.PackageCount {
	return model.PackageCount(s.numVehicles) * s.network.fleet.Capacity(s.mode)
}

// SpaceAvailable is the capacity not taken by shipments in transit.
func (s *Segment) SpaceAvailable() model.PackageCount {
	return s.Capacity() - s.load
}

// Notifier exposes the arrival notifier so reactors can bind to it.
func (s *Segment) Notifier() *notify.Notifier[SegmentNotifiee] { return &s.notifier }

// SetLength sets the segment length in miles.
func (s *Segment) SetLength(m model.Miles) error {
	if m < 0 {
		return fmt.Errorf("%w: length %s of segment %q", ErrInvalidAttribute, m, s.name)
	}
	s.length = m
	s.network.touch()
	return nil
}

// SetDifficulty sets the cost multiplier of the segment.
func (s *Segment) SetDifficulty(d model.Difficulty) error {
	if _, err := model.NewDifficulty(float64(d)); err != nil {
		return fmt.Errorf("%w: segment %q: %v", ErrInvalidAttribute, s.name, err)
	}
	s.difficulty = d
	s.network.touch()
	return nil
}

// SetNumVehicles sets how many vehicles serve the segment.
func (s *Segment) SetNumVehicles(n model.VehicleCount) error {
	if n < 0 {
		return fmt.Errorf("%w: %d vehicles on segment %q", ErrInvalidAttribute, n, s.name)
	}
	s.numVehicles = n
	return nil
}

// SetSource attaches the segment to the named location, detaching it from the
// previous source and severing its return pairing. An empty name detaches.
// Terminals only accept segments of their vehicle mode.
func (s *Segment) SetSource(name string) error {
	if name == s.source {
		return nil
	}
	var next *Location
	if name != "" {
		loc, ok := s.network.locations[name]
		if !ok {
			return fmt.Errorf("source %q of segment %q: %w", name, s.name, ErrLocationNotFound)
		}
		if loc.kind == KindTerminal && loc.vehicleMode != s.mode {
			return fmt.Errorf("%w: %s segment %q on %s terminal %q", ErrModeMismatch, s.mode, s.name, loc.vehicleMode, loc.name)
		}
		next = loc
	}
	if prev := s.Source(); prev != nil {
		prev.detachSegment(s.name)
		s.severReturn()
	}
	s.source = name
	if next != nil {
		if err := next.attachSegment(s); err != nil {
			s.source = ""
			return err
		}
	}
	s.network.touch()
	return nil
}

// SetReturn pairs s with the named segment. Both segments lose any previous
// partner. An empty name unpairs s.
func (s *Segment) SetReturn(name string) error {
	if name == s.returnName {
		return nil
	}
	if name == "" {
		s.severReturn()
		s.network.touch()
		return nil
	}
	if name == s.name {
		return fmt.Errorf("segment %q: %w", s.name, ErrSelfReturn)
	}
	r, ok := s.network.segments[name]
	if !ok {
		return fmt.Errorf("return %q of segment %q: %w", name, s.name, ErrSegmentNotFound)
	}
	if r.mode != s.mode {
		return fmt.Errorf("%w: cannot pair %s segment %q with %s segment %q", ErrModeMismatch, s.mode, s.name, r.mode, r.name)
	}
	s.severReturn()
	r.severReturn()
	s.returnName = r.name
	r.returnName = s.name
	s.network.touch()
	return nil
}

func (s *Segment) severReturn() {
	if r := s.Return(); r != nil && r.returnName == s.name {
		r.returnName = ""
	}
	s.returnName = ""
}

// ArrivingShipment admits shp when it fits in the remaining capacity and
// notifies the segment's notifiees. Otherwise the told-to-wait counter grows
// and ErrCapacityExceeded is returned; nothing is partially admitted.
func (s *Segment) ArrivingShipment(ctx context.Context, shp *Shipment) error {
	space := s.SpaceAvailable()
	if shp.load > space {
		s.toldToWait++
		return fmt.Errorf("segment %q has %d packages free, shipment %q needs %d: %w",
			s.name, space, shp.name, shp.load, ErrCapacityExceeded)
	}
	s.load += shp.load
	s.received++
	// Notifiee failures are logged by the notifier; admission already happened.
	_ = s.notifier.Broadcast(ctx, "onShipmentArrival", func(n SegmentNotifiee) error {
		return n.OnShipmentArrival(ctx, s, shp)
	})
	return nil
}

// ReleaseLoad frees the capacity held by shp once it leaves the segment.
func (s *Segment) ReleaseLoad(shp *Shipment) {
	s.load -= shp.load
	if s.load < 0 {
		s.load = 0
	}
}

// RecordRefusal counts a shipment the segment refused for good.
func (s *Segment) RecordRefusal() { s.refused++ }
