package network

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/shipping-simulator/internal/notify"
	"github.com/signalsfoundry/shipping-simulator/model"
)

// CustomerNotifiee observes changes to the attributes that drive shipment
// injection.
type CustomerNotifiee interface {
	OnTransferRate(ctx context.Context, c *Customer, rate model.ShipmentCount) error
	OnShipmentSize(ctx context.Context, c *Customer, size model.PackageCount) error
	OnDestination(ctx context.Context, c *Customer, dest *Location) error
}

// Customer is the variant data of a customer location: what it ships, where,
// and what it has received.
type Customer struct {
	loc *Location

	destination  string
	transferRate model.ShipmentCount
	shipmentSize model.PackageCount

	received     model.ShipmentCount
	totalLatency model.Hours
	totalCost    model.Dollars

	notifier notify.Notifier[CustomerNotifiee]
}

// Location returns the customer's location.
func (c *Customer) Location() *Location { return c.loc }

// Name returns the customer's location name.
func (c *Customer) Name() string { return c.loc.name }

func (c *Customer) TransferRate() model.ShipmentCount { return c.transferRate }
func (c *Customer) ShipmentSize() model.PackageCount  { return c.shipmentSize }
func (c *Customer) Received() model.ShipmentCount     { return c.received }
func (c *Customer) TotalLatency() model.Hours         { return c.totalLatency }
func (c *Customer) TotalCost() model.Dollars          { return c.totalCost }

// AverageLatency is the mean latency of delivered shipments.
func (c *Customer) AverageLatency() model.Hours {
	if c.received == 0 {
		return 0
	}
	return c.totalLatency / model.Hours(c.received)
}

// Destination returns the destination customer, or nil when unset or deleted.
func (c *Customer) Destination() *Location {
	if c.destination == "" {
		return nil
	}
	loc, ok := c.loc.network.locations[c.destination]
	if !ok {
		return nil
	}
	return loc
}

// Notifier exposes the attribute notifier.
func (c *Customer) Notifier() *notify.Notifier[CustomerNotifiee] { return &c.notifier }

// SetTransferRate sets how many shipments per day the customer injects.
func (c *Customer) SetTransferRate(ctx context.Context, rate model.ShipmentCount) error {
	if rate < 0 {
		return fmt.Errorf("%w: transfer rate %d", ErrInvalidAttribute, rate)
	}
	c.transferRate = rate
	return c.notifier.Broadcast(ctx, "onTransferRate", func(n CustomerNotifiee) error {
		return n.OnTransferRate(ctx, c, rate)
	})
}

// SetShipmentSize sets the package count of each injected shipment.
func (c *Customer) SetShipmentSize(ctx context.Context, size model.PackageCount) error {
	if size < 0 {
		return fmt.Errorf("%w: shipment size %d", ErrInvalidAttribute, size)
	}
	c.shipmentSize = size
	return c.notifier.Broadcast(ctx, "onShipmentSize", func(n CustomerNotifiee) error {
		return n.OnShipmentSize(ctx, c, size)
	})
}

// SetDestination sets the customer that receives injected shipments.
func (c *Customer) SetDestination(ctx context.Context, dest *Location) error {
	if dest == nil || !dest.IsCustomer() {
		return fmt.Errorf("destination of %q: %w", c.Name(), ErrNotCustomer)
	}
	c.destination = dest.name
	return c.notifier.Broadcast(ctx, "onDestination", func(n CustomerNotifiee) error {
		return n.OnDestination(ctx, c, dest)
	})
}

// RecordDelivery accounts a shipment received at this customer.
func (c *Customer) RecordDelivery(shp *Shipment) {
	c.received++
	c.totalLatency += shp.latency
	c.totalCost += shp.path.Cost()
}
