package network

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/shipping-simulator/internal/notify"
	"github.com/signalsfoundry/shipping-simulator/model"
)

// LocationKind tags the Location variant.
type LocationKind int

const (
	KindCustomer LocationKind = iota
	KindPort
	KindTerminal
)

func (k LocationKind) String() string {
	switch k {
	case KindCustomer:
		return "customer"
	case KindPort:
		return "port"
	case KindTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// LocationNotifiee observes shipments arriving at a location.
type LocationNotifiee interface {
	OnShipmentArrival(ctx context.Context, loc *Location, shp *Shipment) error
}

// Location is a node of the network. Customers, ports and terminals share
// this type; variant data hangs off Kind.
type Location struct {
	name    string
	kind    LocationKind
	network *Network

	// vehicleMode restricts attachable segments for terminals.
	vehicleMode model.Mode
	customer    *Customer

	segments []string

	lat, lng  float64
	hasCoords bool

	notifier notify.Notifier[LocationNotifiee]
}

func newLocation(n *Network, name string, kind LocationKind) *Location {
	loc := &Location{name: name, kind: kind, network: n}
	loc.notifier.Log = n.log
	return loc
}

func (l *Location) Name() string       { return l.name }
func (l *Location) Kind() LocationKind { return l.kind }
func (l *Location) Network() *Network  { return l.network }

// IsCustomer reports whether l is a customer location.
func (l *Location) IsCustomer() bool { return l.kind == KindCustomer }

// VehicleMode returns the accepted segment mode of a terminal. The boolean is
// false for other kinds.
func (l *Location) VehicleMode() (model.Mode, bool) {
	return l.vehicleMode, l.kind == KindTerminal
}

// Customer returns customer data, or nil when l is not a customer.
func (l *Location) Customer() *Customer { return l.customer }

// SetCoordinates records the location's latitude and longitude in degrees.
func (l *Location) SetCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return fmt.Errorf("%w: coordinates (%f, %f)", ErrInvalidAttribute, lat, lng)
	}
	l.lat, l.lng, l.hasCoords = lat, lng, true
	return nil
}

// Coordinates returns the location's position; ok is false when unset.
func (l *Location) Coordinates() (lat, lng float64, ok bool) {
	return l.lat, l.lng, l.hasCoords
}

// SegmentNames returns the outbound segment names in attachment order.
func (l *Location) SegmentNames() []string {
	return append([]string(nil), l.segments...)
}

// Segments resolves the outbound segments through the network.
func (l *Location) Segments() []*Segment {
	out := make([]*Segment, 0, len(l.segments))
	for _, name := range l.segments {
		if seg, ok := l.network.segments[name]; ok {
			out = append(out, seg)
		}
	}
	return out
}

// Notifier exposes the arrival notifier so reactors can bind to it.
func (l *Location) Notifier() *notify.Notifier[LocationNotifiee] { return &l.notifier }

// ArrivingShipment announces shp at l. Notifiee failures are logged by the
// notifier and do not stop the broadcast.
func (l *Location) ArrivingShipment(ctx context.Context, shp *Shipment) error {
	return l.notifier.Broadcast(ctx, "onShipmentArrival", func(n LocationNotifiee) error {
		return n.OnShipmentArrival(ctx, l, shp)
	})
}

func (l *Location) attachSegment(seg *Segment) error {
	if l.kind == KindTerminal && seg.mode != l.vehicleMode {
		return fmt.Errorf("%w: %s segment %q on %s terminal %q", ErrModeMismatch, seg.mode, seg.name, l.vehicleMode, l.name)
	}
	for _, name := range l.segments {
		if name == seg.name {
			return nil
		}
	}
	l.segments = append(l.segments, seg.name)
	return nil
}

func (l *Location) detachSegment(name string) {
	for i, existing := range l.segments {
		if existing == name {
			l.segments = append(l.segments[:i], l.segments[i+1:]...)
			return
		}
	}
}
