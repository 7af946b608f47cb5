// Package network models the shipping graph: locations, segments, the fleet
// that serves them, and the shipments that travel across them. The Network
// registry owns every entity by name and broadcasts lifecycle events to its
// notifiees.
package network

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/shipping-simulator/internal/logging"
	"github.com/signalsfoundry/shipping-simulator/internal/notify"
	"github.com/signalsfoundry/shipping-simulator/model"
)

// Notifiee observes network lifecycle events. Embed BaseNotifiee to pick only
// the events of interest.
type Notifiee interface {
	OnSegmentNew(ctx context.Context, seg *Segment) error
	OnSegmentDel(ctx context.Context, seg *Segment) error
	OnCustomerNew(ctx context.Context, loc *Location) error
	OnCustomerDel(ctx context.Context, loc *Location) error
	OnPortNew(ctx context.Context, loc *Location) error
	OnPortDel(ctx context.Context, loc *Location) error
	OnTerminalNew(ctx context.Context, loc *Location) error
	OnTerminalDel(ctx context.Context, loc *Location) error
	OnShipmentNew(ctx context.Context, shp *Shipment) error
	OnNumExpediteSupportedSegments(ctx context.Context, delta int) error
}

// BaseNotifiee implements Notifiee with no-ops.
type BaseNotifiee struct{}

func (BaseNotifiee) OnSegmentNew(context.Context, *Segment) error              { return nil }
func (BaseNotifiee) OnSegmentDel(context.Context, *Segment) error              { return nil }
func (BaseNotifiee) OnCustomerNew(context.Context, *Location) error            { return nil }
func (BaseNotifiee) OnCustomerDel(context.Context, *Location) error            { return nil }
func (BaseNotifiee) OnPortNew(context.Context, *Location) error                { return nil }
func (BaseNotifiee) OnPortDel(context.Context, *Location) error                { return nil }
func (BaseNotifiee) OnTerminalNew(context.Context, *Location) error            { return nil }
func (BaseNotifiee) OnTerminalDel(context.Context, *Location) error            { return nil }
func (BaseNotifiee) OnShipmentNew(context.Context, *Shipment) error            { return nil }
func (BaseNotifiee) OnNumExpediteSupportedSegments(context.Context, int) error { return nil }

// PathFinder computes the route a new shipment will follow.
type PathFinder interface {
	ShipmentPath(ctx context.Context, source, dest *Location) (*Path, error)
}

// Clock supplies the current simulation time.
type Clock interface {
	Now() model.Time
}

// Network is the registry of locations and segments.
//
// A Network is not safe for concurrent use.
type Network struct {
	name  string
	log   logging.Logger
	fleet *Fleet
	clock Clock

	locations     map[string]*Location
	locationOrder []string
	segments      map[string]*Segment
	segmentOrder  []string

	pathFinder  PathFinder
	shipmentSeq uint64
	revision    uint64

	notifier notify.Notifier[Notifiee]
}

// Option customises Network construction.
type Option func(*Network)

// WithLogger attaches a structured logger used for notification failures.
func WithLogger(l logging.Logger) Option {
	return func(n *Network) {
		if l != nil {
			n.log = l
		}
	}
}

// WithFleet installs a pre-configured fleet.
func WithFleet(f *Fleet) Option {
	return func(n *Network) {
		if f != nil {
			n.fleet = f
		}
	}
}

// WithClock stamps new shipments with the clock's time.
func WithClock(c Clock) Option {
	return func(n *Network) { n.clock = c }
}

// New returns an empty network.
func New(name string, opts ...Option) *Network {
	n := &Network{
		name:      name,
		log:       logging.Noop(),
		fleet:     NewFleet(),
		locations: make(map[string]*Location),
		segments:  make(map[string]*Segment),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	n.notifier.Log = n.log
	return n
}

func (n *Network) Name() string                         { return n.name }
func (n *Network) Fleet() *Fleet                        { return n.fleet }
func (n *Network) Log() logging.Logger                  { return n.log }
func (n *Network) Notifier() *notify.Notifier[Notifiee] { return &n.notifier }

// SetClock installs the clock used to stamp shipments.
func (n *Network) SetClock(c Clock) { n.clock = c }

// SetPathFinder installs the route provider used by NewShipment.
func (n *Network) SetPathFinder(pf PathFinder) { n.pathFinder = pf }

// Revision changes whenever topology or fleet attributes change, so cached
// routes can detect staleness.
func (n *Network) Revision() uint64 { return n.revision + n.fleet.Revision() }

func (n *Network) touch() { n.revision++ }

// Location looks up a location by name.
func (n *Network) Location(name string) (*Location, error) {
	loc, ok := n.locations[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrLocationNotFound)
	}
	return loc, nil
}

// Segment looks up a segment by name.
func (n *Network) Segment(name string) (*Segment, error) {
	seg, ok := n.segments[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrSegmentNotFound)
	}
	return seg, nil
}

// Locations lists every location in creation order.
func (n *Network) Locations() []*Location {
	out := make([]*Location, 0, len(n.locationOrder))
	for _, name := range n.locationOrder {
		out = append(out, n.locations[name])
	}
	return out
}

// Customers lists every customer location in creation order.
func (n *Network) Customers() []*Location {
	var out []*Location
	for _, name := range n.locationOrder {
		if loc := n.locations[name]; loc.kind == KindCustomer {
			out = append(out, loc)
		}
	}
	return out
}

// Segments lists every segment in creation order.
func (n *Network) Segments() []*Segment {
	out := make([]*Segment, 0, len(n.segmentOrder))
	for _, name := range n.segmentOrder {
		out = append(out, n.segments[name])
	}
	return out
}

// NewCustomer creates a customer location.
func (n *Network) NewCustomer(ctx context.Context, name string) (*Location, error) {
	loc, err := n.addLocation(name, KindCustomer)
	if err != nil {
		return nil, err
	}
	loc.customer = &Customer{loc: loc}
	loc.customer.notifier.Log = n.log
	_ = n.broadcast(ctx, "onCustomerNew", func(nf Notifiee) error { return nf.OnCustomerNew(ctx, loc) })
	return loc, nil
}

// NewPort creates a port location.
func (n *Network) NewPort(ctx context.Context, name string) (*Location, error) {
	loc, err := n.addLocation(name, KindPort)
	if err != nil {
		return nil, err
	}
	_ = n.broadcast(ctx, "onPortNew", func(nf Notifiee) error { return nf.OnPortNew(ctx, loc) })
	return loc, nil
}

// NewTerminal creates a terminal that accepts segments of mode only.
func (n *Network) NewTerminal(ctx context.Context, name string, mode model.Mode) (*Location, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("terminal %q: %w: %s", name, ErrModeMismatch, mode)
	}
	loc, err := n.addLocation(name, KindTerminal)
	if err != nil {
		return nil, err
	}
	loc.vehicleMode = mode
	_ = n.broadcast(ctx, "onTerminalNew", func(nf Notifiee) error { return nf.OnTerminalNew(ctx, loc) })
	return loc, nil
}

func (n *Network) addLocation(name string, kind LocationKind) (*Location, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty location name", ErrInvalidAttribute)
	}
	if _, exists := n.locations[name]; exists {
		return nil, fmt.Errorf("%q: %w", name, ErrLocationExists)
	}
	loc := newLocation(n, name, kind)
	n.locations[name] = loc
	n.locationOrder = append(n.locationOrder, name)
	n.touch()
	return loc, nil
}

// DeleteLocation removes a location and detaches every segment sourced there.
// The segments themselves stay in the network.
func (n *Network) DeleteLocation(ctx context.Context, name string) error {
	loc, err := n.Location(name)
	if err != nil {
		return err
	}
	for _, segName := range loc.SegmentNames() {
		if seg, ok := n.segments[segName]; ok {
			_ = seg.SetSource("")
		}
	}
	delete(n.locations, name)
	n.locationOrder = removeName(n.locationOrder, name)
	n.touch()

	switch loc.kind {
	case KindCustomer:
		_ = n.broadcast(ctx, "onCustomerDel", func(nf Notifiee) error { return nf.OnCustomerDel(ctx, loc) })
	case KindPort:
		_ = n.broadcast(ctx, "onPortDel", func(nf Notifiee) error { return nf.OnPortDel(ctx, loc) })
	case KindTerminal:
		_ = n.broadcast(ctx, "onTerminalDel", func(nf Notifiee) error { return nf.OnTerminalDel(ctx, loc) })
	}
	return nil
}

// NewSegment creates an unattached segment of the given mode.
func (n *Network) NewSegment(ctx context.Context, name string, mode model.Mode) (*Segment, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty segment name", ErrInvalidAttribute)
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("segment %q: %w: %s", name, ErrModeMismatch, mode)
	}
	if _, exists := n.segments[name]; exists {
		return nil, fmt.Errorf("%q: %w", name, ErrSegmentExists)
	}
	seg := newSegment(n, name, mode)
	n.segments[name] = seg
	n.segmentOrder = append(n.segmentOrder, name)
	n.touch()
	_ = n.broadcast(ctx, "onSegmentNew", func(nf Notifiee) error { return nf.OnSegmentNew(ctx, seg) })
	return seg, nil
}

// DeleteSegment detaches a segment from its source, severs its return
// pairing and removes it.
func (n *Network) DeleteSegment(ctx context.Context, name string) error {
	seg, err := n.Segment(name)
	if err != nil {
		return err
	}
	_ = seg.SetSource("")
	seg.severReturn()
	delete(n.segments, name)
	n.segmentOrder = removeName(n.segmentOrder, name)
	n.touch()
	_ = n.broadcast(ctx, "onSegmentDel", func(nf Notifiee) error { return nf.OnSegmentDel(ctx, seg) })
	return nil
}

// SetExpediteSupport changes a segment's expedite flag and reports the change
// in the number of expedite-capable segments. Setting the current value is a
// no-op and reports nothing.
func (n *Network) SetExpediteSupport(ctx context.Context, name string, es model.ExpediteSupport) error {
	seg, err := n.Segment(name)
	if err != nil {
		return err
	}
	if seg.expedite == es {
		return nil
	}
	delta := -1
	if es == model.ExpediteSupported {
		delta = 1
	}
	seg.expedite = es
	n.touch()
	_ = n.broadcast(ctx, "onNumExpediteSupportedSegments", func(nf Notifiee) error {
		return nf.OnNumExpediteSupportedSegments(ctx, delta)
	})
	return nil
}

// NewShipment creates a shipment from source to dest bound to the path the
// installed PathFinder computes. It fails with ErrPathNotFound when no route
// exists.
func (n *Network) NewShipment(ctx context.Context, source, dest *Location, load model.PackageCount) (*Shipment, error) {
	if source == nil || !source.IsCustomer() {
		return nil, fmt.Errorf("shipment source: %w", ErrNotCustomer)
	}
	if dest == nil || !dest.IsCustomer() {
		return nil, fmt.Errorf("shipment destination: %w", ErrNotCustomer)
	}
	if load <= 0 {
		return nil, fmt.Errorf("%w: load %d", ErrInvalidShipment, load)
	}
	if source.name == dest.name {
		return nil, fmt.Errorf("%w: source and destination are both %q", ErrInvalidShipment, source.name)
	}
	if n.pathFinder == nil {
		return nil, ErrNoPathFinder
	}
	name := ShipmentName(source.name, dest.name)
	path, err := n.pathFinder.ShipmentPath(ctx, source, dest)
	if err != nil {
		return nil, fmt.Errorf("shipment %s: %w", name, err)
	}
	if path == nil {
		return nil, fmt.Errorf("shipment %s: %w", name, ErrPathNotFound)
	}
	n.shipmentSeq++
	shp := &Shipment{
		id:     n.shipmentSeq,
		name:   name,
		source: source,
		dest:   dest,
		load:   load,
		path:   path,
	}
	if n.clock != nil {
		shp.createdAt = n.clock.Now()
	}
	_ = n.broadcast(ctx, "onShipmentNew", func(nf Notifiee) error { return nf.OnShipmentNew(ctx, shp) })
	return shp, nil
}

func (n *Network) broadcast(ctx context.Context, event string, fn func(Notifiee) error) error {
	return n.notifier.Broadcast(ctx, event, fn)
}

func removeName(names []string, name string) []string {
	for i, existing := range names {
		if existing == name {
			return append(names[:i], names[i+1:]...)
		}
	}
	return names
}
