package sim

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/shipping-simulator/internal/activity"
	"github.com/signalsfoundry/shipping-simulator/internal/logging"
	"github.com/signalsfoundry/shipping-simulator/internal/notify"
	"github.com/signalsfoundry/shipping-simulator/model"
	"github.com/signalsfoundry/shipping-simulator/network"
)

// segmentReactor schedules the forwarding of every shipment a segment admits.
type segmentReactor struct {
	engine  *Engine
	binding *notify.Binding[network.SegmentNotifiee]
}

func (r *segmentReactor) OnShipmentArrival(ctx context.Context, seg *network.Segment, shp *network.Shipment) error {
	e := r.engine
	speed := e.network.Fleet().Speed(seg.Mode())
	if speed <= 0 {
		seg.ReleaseLoad(shp)
		e.drop(ctx, shp, DropNoTransit)
		return fmt.Errorf("%s fleet has no speed for segment %q", seg.Mode(), seg.Name())
	}
	transit := model.Hours(float64(seg.Length()) / float64(speed))
	shp.AddLatency(transit)

	fwd := &forwardReactor{engine: e, segment: seg, shipment: shp}
	name := fmt.Sprintf("forward:%s:%d", seg.Name(), shp.ID())
	if _, err := e.schedule(ctx, name, transit, fwd); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// forwardReactor completes a segment transit: it frees the segment capacity
// and hands the shipment to the location at the far end of the return
// segment. It runs once.
type forwardReactor struct {
	engine   *Engine
	segment  *network.Segment
	shipment *network.Shipment
}

func (r *forwardReactor) OnStatus(ctx context.Context, a *activity.Activity) {
	if a.Status() != activity.Executing {
		return
	}
	e := r.engine
	r.segment.ReleaseLoad(r.shipment)
	next := r.segment.Next()
	if next == nil {
		e.log.Error(ctx, "segment lost its return pairing while a shipment was in transit",
			logging.String("segment", r.segment.Name()),
			logging.String("shipment", r.shipment.Name()),
		)
		e.drop(ctx, r.shipment, DropRoutingDefect)
		return
	}
	_ = next.ArrivingShipment(ctx, r.shipment)
}

// locationReactor decides what happens to a shipment arriving at a location:
// delivery, drop, or admission onto the next segment of its path.
type locationReactor struct {
	engine  *Engine
	binding *notify.Binding[network.LocationNotifiee]
}

func (r *locationReactor) OnShipmentArrival(ctx context.Context, loc *network.Location, shp *network.Shipment) error {
	e := r.engine
	if shp.Finished() {
		return nil
	}

	if loc.IsCustomer() && loc.Name() != shp.Source().Name() {
		if loc.Name() == shp.Destination().Name() {
			loc.Customer().RecordDelivery(shp)
			e.deliver(ctx, shp)
			return nil
		}
		e.drop(ctx, shp, DropMisrouted)
		return nil
	}

	seg, err := shp.Path().NextSegment(loc)
	if err != nil {
		e.log.Error(ctx, "shipment path has no segment after location",
			logging.String("shipment", shp.Name()),
			logging.String("location", loc.Name()),
			logging.Err(err),
		)
		e.drop(ctx, shp, DropRoutingDefect)
		return nil
	}

	err = seg.ArrivingShipment(ctx, shp)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, network.ErrCapacityExceeded):
		return e.scheduleRetry(ctx, shp, seg)
	default:
		return err
	}
}
