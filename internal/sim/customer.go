package sim

import (
	"context"
	"errors"

	"github.com/signalsfoundry/shipping-simulator/internal/activity"
	"github.com/signalsfoundry/shipping-simulator/internal/logging"
	"github.com/signalsfoundry/shipping-simulator/internal/notify"
	"github.com/signalsfoundry/shipping-simulator/model"
	"github.com/signalsfoundry/shipping-simulator/network"
)

// HoursPerDay converts a daily transfer rate into an injection period.
const HoursPerDay model.Hours = 24

type readiness uint8

const (
	transferRateSet readiness = 1 << iota
	shipmentSizeSet
	destinationSet

	allSet = transferRateSet | shipmentSizeSet | destinationSet
)

// customerReactor starts periodic injection once a customer's transfer rate,
// shipment size and destination are all set.
type customerReactor struct {
	engine   *Engine
	customer *network.Customer
	binding  *notify.Binding[network.CustomerNotifiee]

	ready    readiness
	inject   *activity.Activity
	injector *injectReactor
}

func newCustomerReactor(e *Engine, c *network.Customer) *customerReactor {
	r := &customerReactor{engine: e, customer: c}
	if c.TransferRate() > 0 {
		r.ready |= transferRateSet
	}
	if c.ShipmentSize() > 0 {
		r.ready |= shipmentSizeSet
	}
	if c.Destination() != nil {
		r.ready |= destinationSet
	}
	r.binding = notify.NewBinding[network.CustomerNotifiee](r, true)
	r.binding.NotifierIs(c.Notifier())
	return r
}

func (r *customerReactor) OnTransferRate(ctx context.Context, _ *network.Customer, _ model.ShipmentCount) error {
	r.ready |= transferRateSet
	return r.maybeStart(ctx)
}

func (r *customerReactor) OnShipmentSize(ctx context.Context, _ *network.Customer, _ model.PackageCount) error {
	r.ready |= shipmentSizeSet
	return r.maybeStart(ctx)
}

func (r *customerReactor) OnDestination(ctx context.Context, _ *network.Customer, _ *network.Location) error {
	r.ready |= destinationSet
	return r.maybeStart(ctx)
}

func (r *customerReactor) isReady() bool {
	c := r.customer
	return r.ready&allSet == allSet && c.TransferRate() > 0 && c.ShipmentSize() > 0 && c.Destination() != nil
}

// maybeStart schedules the first injection at the current time. An injection
// activity that went idle because the rate dropped to zero is restarted.
func (r *customerReactor) maybeStart(ctx context.Context) error {
	if !r.isReady() {
		return nil
	}
	if r.inject != nil && r.inject.Status() != activity.Free {
		return nil
	}
	e := r.engine
	if r.inject == nil {
		r.injector = &injectReactor{engine: e, customer: r.customer}
		r.inject = e.manager.NewActivity("inject:" + r.customer.Name())
		r.inject.SetReactor(r.injector)
	}
	r.injector.stopped = false
	r.inject.SetNextTime(e.manager.Now())
	if err := r.inject.SetStatus(ctx, activity.NextTimeScheduled); err != nil {
		return err
	}
	e.log.Debug(ctx, "customer injection started",
		logging.String("customer", r.customer.Name()),
		logging.Int("transfer_rate", int(r.customer.TransferRate())),
		logging.Int("shipment_size", int(r.customer.ShipmentSize())),
	)
	return nil
}

func (r *customerReactor) stop() {
	if r.inject == nil {
		return
	}
	r.injector.stopped = true
	if r.inject.Queued() {
		_ = r.inject.SetStatus(context.Background(), activity.Free)
	}
}

// injectReactor creates one shipment per execution and reschedules itself
// every 24/transferRate hours.
type injectReactor struct {
	engine   *Engine
	customer *network.Customer
	stopped  bool
}

func (r *injectReactor) OnStatus(ctx context.Context, a *activity.Activity) {
	e := r.engine
	c := r.customer
	switch a.Status() {
	case activity.Executing:
		dest := c.Destination()
		if dest == nil || c.ShipmentSize() <= 0 {
			return
		}
		shp, err := e.network.NewShipment(ctx, c.Location(), dest, c.ShipmentSize())
		if err != nil {
			level := e.log.Warn
			if !errors.Is(err, network.ErrPathNotFound) {
				level = e.log.Error
			}
			level(ctx, "shipment injection failed",
				logging.String("customer", c.Name()),
				logging.String("destination", dest.Name()),
				logging.Err(err),
			)
			if e.metrics != nil {
				e.metrics.InjectionFailed()
			}
			return
		}
		if e.metrics != nil {
			e.metrics.ShipmentInjected()
		}
		_ = c.Location().ArrivingShipment(ctx, shp)

	case activity.Free:
		if r.stopped {
			return
		}
		rate := c.TransferRate()
		if rate <= 0 {
			r.stopped = true
			return
		}
		a.SetNextTime(a.NextTime().Add(HoursPerDay / model.Hours(rate)))
		if err := a.SetStatus(ctx, activity.NextTimeScheduled); err != nil {
			e.log.Error(ctx, "reschedule injection", logging.Err(err))
		}
	}
}
