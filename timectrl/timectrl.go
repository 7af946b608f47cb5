package timectrl

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/signalsfoundry/shipping-simulator/model"
)

// ErrInvalidTick is returned when the controller is configured with a
// non-positive tick.
var ErrInvalidTick = errors.New("timectrl: tick must be positive")

// Stepper is the simulation the controller drives. The activity manager and
// the simulation engine both satisfy it.
type Stepper interface {
	// Now returns the current simulation time.
	Now() model.Time
	// RunUntil executes everything due at or before t and reports how many
	// activities ran.
	RunUntil(ctx context.Context, t model.Time) (int, error)
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime paces ticks against the wall clock, one tick per Pace.
	RealTime Mode = iota
	// Accelerated runs ticks back to back.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// ParseMode accepts "realtime" and "accelerated"; the empty string selects
// Accelerated.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "accelerated":
		return Accelerated, nil
	case "realtime", "real-time":
		return RealTime, nil
	default:
		return Accelerated, errors.New("timectrl: unknown mode " + s)
	}
}

// TimeController advances a Stepper to a horizon in fixed simulated ticks and
// notifies registered listeners after each tick.
type TimeController struct {
	mu   sync.RWMutex
	Tick model.Hours
	Mode Mode
	Pace time.Duration

	limiter   *rate.Limiter
	listeners []func(model.Time)
	ticks     int
}

// NewTimeController constructs a controller. pace is the wall time spent per
// tick in RealTime mode and is ignored in Accelerated mode.
func NewTimeController(tick model.Hours, mode Mode, pace time.Duration) *TimeController {
	tc := &TimeController{Tick: tick, Mode: mode, Pace: pace}
	if mode == RealTime && pace > 0 {
		tc.limiter = rate.NewLimiter(rate.Every(pace), 1)
	}
	return tc
}

// AddListener registers a callback invoked after every tick with the new
// simulation time.
func (tc *TimeController) AddListener(fn func(model.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Ticks reports how many ticks the controller has completed.
func (tc *TimeController) Ticks() int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.ticks
}

// Run advances s tick by tick until its clock reaches until or ctx is done.
// The last tick is shortened so the run stops exactly at until. It returns
// the total number of activities executed.
func (tc *TimeController) Run(ctx context.Context, s Stepper, until model.Time) (int, error) {
	if tc.Tick <= 0 {
		return 0, ErrInvalidTick
	}
	total := 0
	for s.Now().Before(until) {
		if err := tc.wait(ctx); err != nil {
			return total, err
		}
		next := s.Now().Add(tc.Tick)
		if until.Before(next) {
			next = until
		}
		n, err := s.RunUntil(ctx, next)
		total += n
		if err != nil {
			return total, err
		}

		tc.mu.Lock()
		tc.ticks++
		listeners := append(([]func(model.Time))(nil), tc.listeners...)
		tc.mu.Unlock()
		for _, fn := range listeners {
			fn(next)
		}
	}
	return total, nil
}

func (tc *TimeController) wait(ctx context.Context) error {
	if tc.limiter == nil {
		return ctx.Err()
	}
	return tc.limiter.Wait(ctx)
}
