// Package stats aggregates simulation statistics. Statistics is a pure
// observer: it listens to network lifecycle events and shipment outcomes and
// never influences control flow.
package stats

import (
	"context"
	"sort"
	"sync"

	"github.com/signalsfoundry/shipping-simulator/internal/notify"
	"github.com/signalsfoundry/shipping-simulator/model"
	"github.com/signalsfoundry/shipping-simulator/network"
)

// MetricsRecorder mirrors statistics into an external metrics system.
type MetricsRecorder interface {
	SetEntityCounts(customers, ports, terminals, segments int)
	SetShipmentTotals(enroute, delivered, dropped int)
	SetPercentExpedited(pct float64)
}

// ShipmentRecord counts shipments sharing a name (one source:destination pair).
type ShipmentRecord struct {
	Enroute   int `json:"enroute"`
	Delivered int `json:"delivered"`
	Dropped   int `json:"dropped"`
}

// Statistics counts network entities and shipment outcomes.
type Statistics struct {
	mu sync.RWMutex

	network *network.Network
	binding *notify.Binding[network.Notifiee]
	metrics MetricsRecorder

	customers int
	ports     int
	terminals map[model.Mode]int
	segments  map[model.Mode]int
	expedited int

	enroute   int
	delivered int
	dropped   int

	dropReasons map[string]int
	records     map[string]*ShipmentRecord
}

// Option customises Statistics construction.
type Option func(*Statistics)

// WithMetrics mirrors counts into r.
func WithMetrics(r MetricsRecorder) Option {
	return func(s *Statistics) { s.metrics = r }
}

// New returns statistics for n, seeded with the entities n already holds and
// subscribed to its lifecycle events.
func New(n *network.Network, opts ...Option) *Statistics {
	s := &Statistics{
		network:     n,
		terminals:   make(map[model.Mode]int),
		segments:    make(map[model.Mode]int),
		dropReasons: make(map[string]int),
		records:     make(map[string]*ShipmentRecord),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	for _, loc := range n.Locations() {
		s.countLocation(loc, 1)
	}
	for _, seg := range n.Segments() {
		s.segments[seg.Mode()]++
		if seg.ExpediteSupport() == model.ExpediteSupported {
			s.expedited++
		}
	}
	s.binding = notify.NewBinding[network.Notifiee](s, false)
	s.binding.NotifierIs(n.Notifier())
	s.publishEntities()
	return s
}

// Close stops listening to the network.
func (s *Statistics) Close() { s.binding.Close() }

func (s *Statistics) countLocation(loc *network.Location, delta int) {
	switch loc.Kind() {
	case network.KindCustomer:
		s.customers += delta
	case network.KindPort:
		s.ports += delta
	case network.KindTerminal:
		mode, _ := loc.VehicleMode()
		s.terminals[mode] += delta
	}
}

func (s *Statistics) OnSegmentNew(_ context.Context, seg *network.Segment) error {
	s.mu.Lock()
	s.segments[seg.Mode()]++
	s.mu.Unlock()
	s.publishEntities()
	return nil
}

func (s *Statistics) OnSegmentDel(_ context.Context, seg *network.Segment) error {
	s.mu.Lock()
	s.segments[seg.Mode()]--
	if seg.ExpediteSupport() == model.ExpediteSupported {
		s.expedited--
	}
	s.mu.Unlock()
	s.publishEntities()
	return nil
}

func (s *Statistics) OnCustomerNew(_ context.Context, loc *network.Location) error {
	return s.locationChanged(loc, 1)
}

func (s *Statistics) OnCustomerDel(_ context.Context, loc *network.Location) error {
	return s.locationChanged(loc, -1)
}

func (s *Statistics) OnPortNew(_ context.Context, loc *network.Location) error {
	return s.locationChanged(loc, 1)
}

func (s *Statistics) OnPortDel(_ context.Context, loc *network.Location) error {
	return s.locationChanged(loc, -1)
}

func (s *Statistics) OnTerminalNew(_ context.Context, loc *network.Location) error {
	return s.locationChanged(loc, 1)
}

func (s *Statistics) OnTerminalDel(_ context.Context, loc *network.Location) error {
	return s.locationChanged(loc, -1)
}

func (s *Statistics) locationChanged(loc *network.Location, delta int) error {
	s.mu.Lock()
	s.countLocation(loc, delta)
	s.mu.Unlock()
	s.publishEntities()
	return nil
}

func (s *Statistics) OnNumExpediteSupportedSegments(_ context.Context, delta int) error {
	s.mu.Lock()
	s.expedited += delta
	s.mu.Unlock()
	s.publishEntities()
	return nil
}

func (s *Statistics) OnShipmentNew(_ context.Context, shp *network.Shipment) error {
	s.mu.Lock()
	s.enroute++
	s.record(shp.Name()).Enroute++
	s.mu.Unlock()
	s.publishShipments()
	return nil
}

// DeliveredShipment moves shp from enroute to delivered.
func (s *Statistics) DeliveredShipment(_ context.Context, shp *network.Shipment) {
	s.mu.Lock()
	rec := s.record(shp.Name())
	rec.Enroute--
	rec.Delivered++
	s.enroute--
	s.delivered++
	s.mu.Unlock()
	s.publishShipments()
}

// DroppedShipment moves shp from enroute to dropped.
func (s *Statistics) DroppedShipment(_ context.Context, shp *network.Shipment, reason string) {
	s.mu.Lock()
	rec := s.record(shp.Name())
	rec.Enroute--
	rec.Dropped++
	s.enroute--
	s.dropped++
	if reason != "" {
		s.dropReasons[reason]++
	}
	s.mu.Unlock()
	s.publishShipments()
}

func (s *Statistics) record(name string) *ShipmentRecord {
	rec, ok := s.records[name]
	if !ok {
		rec = &ShipmentRecord{}
		s.records[name] = rec
	}
	return rec
}

// Record returns the counts for one shipment name.
func (s *Statistics) Record(name string) ShipmentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.records[name]; ok {
		return *rec
	}
	return ShipmentRecord{}
}

// Shipments returns the global enroute, delivered and dropped totals.
func (s *Statistics) Shipments() (enroute, delivered, dropped int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enroute, s.delivered, s.dropped
}

// PercentExpedited is the share of segments that support expedited service.
func (s *Statistics) PercentExpedited() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.percentExpeditedLocked()
}

func (s *Statistics) percentExpeditedLocked() float64 {
	total := 0
	for _, n := range s.segments {
		total += n
	}
	if total == 0 {
		return 0
	}
	return float64(s.expedited) / float64(total) * 100
}

func (s *Statistics) publishEntities() {
	if s.metrics == nil {
		return
	}
	s.mu.RLock()
	terminals, segments := 0, 0
	for _, n := range s.terminals {
		terminals += n
	}
	for _, n := range s.segments {
		segments += n
	}
	customers, ports, pct := s.customers, s.ports, s.percentExpeditedLocked()
	s.mu.RUnlock()
	s.metrics.SetEntityCounts(customers, ports, terminals, segments)
	s.metrics.SetPercentExpedited(pct)
}

func (s *Statistics) publishShipments() {
	if s.metrics == nil {
		return
	}
	s.mu.RLock()
	enroute, delivered, dropped := s.enroute, s.delivered, s.dropped
	s.mu.RUnlock()
	s.metrics.SetShipmentTotals(enroute, delivered, dropped)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
