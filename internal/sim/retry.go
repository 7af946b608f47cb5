package sim

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/shipping-simulator/internal/activity"
	"github.com/signalsfoundry/shipping-simulator/internal/logging"
	"github.com/signalsfoundry/shipping-simulator/model"
	"github.com/signalsfoundry/shipping-simulator/network"
)

// Retry policy for shipments a segment told to wait.
const (
	InitialRetryWait       model.Hours = 1
	RetryBackoffMultiplier             = 2
	MaxRetryWait           model.Hours = 24
)

// retryReactor re-offers a blocked shipment to its segment with exponential
// backoff. Waits grow 1, 2, 4, ... hours; once the cumulative wait reaches
// MaxRetryWait the segment refuses the shipment for good.
type retryReactor struct {
	engine   *Engine
	shipment *network.Shipment
	segment  string

	wait       model.Hours
	cumulative model.Hours
	forwarded  bool
}

func (e *Engine) scheduleRetry(ctx context.Context, shp *network.Shipment, seg *network.Segment) error {
	r := &retryReactor{
		engine:     e,
		shipment:   shp,
		segment:    seg.Name(),
		wait:       InitialRetryWait,
		cumulative: InitialRetryWait,
	}
	name := fmt.Sprintf("retry:%s:%d", seg.Name(), shp.ID())
	if _, err := e.schedule(ctx, name, r.wait, r); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	if e.metrics != nil {
		e.metrics.ShipmentRetried()
	}
	e.log.Debug(ctx, "shipment told to wait",
		logging.String("shipment", shp.Name()),
		logging.String("segment", seg.Name()),
		logging.Float("retry_in_hours", float64(r.wait)),
	)
	return nil
}

func (r *retryReactor) OnStatus(ctx context.Context, a *activity.Activity) {
	e := r.engine
	switch a.Status() {
	case activity.Executing:
		seg, err := e.network.Segment(r.segment)
		if err != nil {
			e.log.Warn(ctx, "retry target segment no longer exists",
				logging.String("segment", r.segment),
				logging.String("shipment", r.shipment.Name()),
			)
			e.drop(ctx, r.shipment, DropRoutingDefect)
			r.forwarded = true
			return
		}
		err = seg.ArrivingShipment(ctx, r.shipment)
		switch {
		case err == nil:
			r.forwarded = true
		case !errors.Is(err, network.ErrCapacityExceeded):
			e.log.Error(ctx, "retry failed", logging.String("shipment", r.shipment.Name()), logging.Err(err))
		}

	case activity.Free:
		if r.forwarded {
			return
		}
		if r.cumulative < MaxRetryWait {
			r.wait *= RetryBackoffMultiplier
			r.cumulative += r.wait
			a.SetNextTime(e.manager.Now().Add(r.wait))
			if err := a.SetStatus(ctx, activity.NextTimeScheduled); err != nil {
				e.log.Error(ctx, "reschedule retry", logging.Err(err))
			}
			return
		}
		if seg, err := e.network.Segment(r.segment); err == nil {
			seg.RecordRefusal()
		}
		e.drop(ctx, r.shipment, DropRefused)
	}
}
