package network

import (
	"fmt"

	"github.com/signalsfoundry/shipping-simulator/model"
)

// ShipmentState is the lifecycle state of a shipment.
type ShipmentState int

const (
	Enroute ShipmentState = iota
	Delivered
	Dropped
)

func (s ShipmentState) String() string {
	switch s {
	case Enroute:
		return "enroute"
	case Delivered:
		return "delivered"
	case Dropped:
		return "dropped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Shipment is a load of packages travelling from one customer to another
// along a path fixed at creation.
type Shipment struct {
	id        uint64
	name      string
	source    *Location
	dest      *Location
	load      model.PackageCount
	latency   model.Hours
	path      *Path
	state     ShipmentState
	createdAt model.Time
}

// ShipmentName is the shared name of every shipment between two customers.
func ShipmentName(source, dest string) string { return source + ":" + dest }

func (s *Shipment) ID() uint64               { return s.id }
func (s *Shipment) Name() string             { return s.name }
func (s *Shipment) Source() *Location        { return s.source }
func (s *Shipment) Destination() *Location   { return s.dest }
func (s *Shipment) Load() model.PackageCount { return s.load }
func (s *Shipment) Latency() model.Hours     { return s.latency }
func (s *Shipment) Path() *Path              { return s.path }
func (s *Shipment) State() ShipmentState     { return s.state }
func (s *Shipment) CreatedAt() model.Time    { return s.createdAt }
func (s *Shipment) AddLatency(h model.Hours) { s.latency += h }
func (s *Shipment) Finished() bool           { return s.state != Enroute }

// MarkDelivered moves an enroute shipment to Delivered.
func (s *Shipment) MarkDelivered() error { return s.finish(Delivered) }

// MarkDropped moves an enroute shipment to Dropped.
func (s *Shipment) MarkDropped() error { return s.finish(Dropped) }

func (s *Shipment) finish(to ShipmentState) error {
	if s.state != Enroute {
		return fmt.Errorf("shipment %s#%d is %s: %w", s.name, s.id, s.state, ErrShipmentFinished)
	}
	s.state = to
	return nil
}
