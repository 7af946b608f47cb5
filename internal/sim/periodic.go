package sim

import (
	"context"

	"github.com/signalsfoundry/shipping-simulator/internal/activity"
	"github.com/signalsfoundry/shipping-simulator/internal/logging"
	"github.com/signalsfoundry/shipping-simulator/model"
	"github.com/signalsfoundry/shipping-simulator/network"
)

// HalfDay is the interval between fleet day/night switches.
const HalfDay model.Hours = 12

func (e *Engine) startFleetClock(ctx context.Context) error {
	a, err := e.schedule(ctx, "fleet-clock", HalfDay, &fleetClockReactor{engine: e})
	if err != nil {
		return err
	}
	e.fleetClock = a
	return nil
}

// fleetClockReactor toggles the fleet between its day and night profiles.
type fleetClockReactor struct {
	engine *Engine
}

func (r *fleetClockReactor) OnStatus(ctx context.Context, a *activity.Activity) {
	e := r.engine
	switch a.Status() {
	case activity.Executing:
		fleet := e.network.Fleet()
		next := network.Night
		if fleet.TimeOfDay() == network.Night {
			next = network.Day
		}
		fleet.SetTimeOfDay(next)
		e.log.Debug(ctx, "fleet switched profile",
			logging.String("time_of_day", next.String()),
			logging.Float("now", float64(e.manager.Now())),
		)
	case activity.Free:
		a.SetNextTime(a.NextTime().Add(HalfDay))
		if err := a.SetStatus(ctx, activity.NextTimeScheduled); err != nil {
			e.log.Error(ctx, "reschedule fleet clock", logging.Err(err))
		}
	}
}

func (e *Engine) startSnapshots(ctx context.Context) error {
	a, err := e.schedule(ctx, "snapshot", e.snapshotPeriod, &snapshotReactor{engine: e})
	if err != nil {
		return err
	}
	e.snapshots = a
	return nil
}

// snapshotReactor hands a statistics snapshot to the sink every period.
// Publishing failures are logged and never stop the simulation.
type snapshotReactor struct {
	engine *Engine
}

func (r *snapshotReactor) OnStatus(ctx context.Context, a *activity.Activity) {
	e := r.engine
	switch a.Status() {
	case activity.Executing:
		snap := e.snapshotSource.Snapshot(e.manager.Now())
		if err := e.snapshotSink.Publish(ctx, snap); err != nil {
			e.log.Warn(ctx, "snapshot publish failed", logging.Err(err))
		}
	case activity.Free:
		a.SetNextTime(a.NextTime().Add(e.snapshotPeriod))
		if err := a.SetStatus(ctx, activity.NextTimeScheduled); err != nil {
			e.log.Error(ctx, "reschedule snapshot", logging.Err(err))
		}
	}
}
