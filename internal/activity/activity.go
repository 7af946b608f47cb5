package activity

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/shipping-simulator/model"
)

// ErrNoReactor is returned when an activity without a reactor is scheduled.
var ErrNoReactor = errors.New("activity has no reactor")

// Status is the state of an Activity.
type Status int

const (
	// Free means idle: not queued and not running.
	Free Status = iota
	// Executing means the manager has reached the activity's time and its
	// reactor is doing the work.
	Executing
	// NextTimeScheduled means the activity is queued for its next time.
	NextTimeScheduled
)

func (s Status) String() string {
	switch s {
	case Free:
		return "free"
	case Executing:
		return "executing"
	case NextTimeScheduled:
		return "nextTimeScheduled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Reactor is the single owner of an Activity. It is invoked synchronously on
// every status transition and decides what happens next.
type Reactor interface {
	OnStatus(ctx context.Context, a *Activity)
}

// ReactorFunc adapts a function to the Reactor interface.
type ReactorFunc func(ctx context.Context, a *Activity)

// OnStatus calls f(ctx, a).
func (f ReactorFunc) OnStatus(ctx context.Context, a *Activity) { f(ctx, a) }

// Activity is one unit of scheduled work.
type Activity struct {
	name     string
	status   Status
	nextTime model.Time
	reactor  Reactor
	manager  *Manager

	seq   uint64
	index int // position in the manager queue, -1 when not queued
}

// Name returns the activity's name.
func (a *Activity) Name() string { return a.name }

// Status returns the current status.
func (a *Activity) Status() Status { return a.status }

// NextTime returns the time the activity is (or will be) scheduled for.
func (a *Activity) NextTime() model.Time { return a.nextTime }

// SetNextTime sets the time used the next time the activity is scheduled.
// It does not move an activity that is already queued; set the status to
// NextTimeScheduled again for that.
func (a *Activity) SetNextTime(t model.Time) { a.nextTime = t }

// Reactor returns the owning reactor.
func (a *Activity) Reactor() Reactor { return a.reactor }

// SetReactor installs r as the owning reactor, replacing any previous one.
func (a *Activity) SetReactor(r Reactor) { a.reactor = r }

// Manager returns the manager that created the activity.
func (a *Activity) Manager() *Manager { return a.manager }

// Queued reports whether the activity is waiting in the manager queue.
func (a *Activity) Queued() bool { return a.index >= 0 }

// SetStatus records s and notifies the reactor. Moving to NextTimeScheduled
// enqueues the activity at NextTime; moving a queued activity to Free drops it
// from the queue.
func (a *Activity) SetStatus(ctx context.Context, s Status) error {
	switch s {
	case NextTimeScheduled:
		if err := a.manager.enqueue(ctx, a); err != nil {
			return err
		}
	case Free:
		if a.Queued() {
			a.manager.dequeue(a)
		}
	}
	a.status = s
	if a.reactor != nil {
		a.reactor.OnStatus(ctx, a)
	}
	return nil
}
