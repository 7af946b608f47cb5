// Package sim wires the activity scheduler to the shipping network. The
// Engine attaches reactors to network entities; reactors turn entity events
// into scheduled activities (forwarding, retries, injection) and scheduled
// activities mutate entities in turn.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalsfoundry/shipping-simulator/internal/activity"
	"github.com/signalsfoundry/shipping-simulator/internal/logging"
	"github.com/signalsfoundry/shipping-simulator/internal/notify"
	"github.com/signalsfoundry/shipping-simulator/internal/stats"
	"github.com/signalsfoundry/shipping-simulator/model"
	"github.com/signalsfoundry/shipping-simulator/network"
)

// Drop reasons reported alongside dropped shipments.
const (
	DropRefused       = "refused"
	DropMisrouted     = "misrouted"
	DropRoutingDefect = "routing_defect"
	DropNoTransit     = "no_transit"
)

// Reporter receives shipment outcomes.
type Reporter interface {
	DeliveredShipment(ctx context.Context, shp *network.Shipment)
	DroppedShipment(ctx context.Context, shp *network.Shipment, reason string)
}

// MetricsRecorder receives engine-level counters.
type MetricsRecorder interface {
	ShipmentInjected()
	InjectionFailed()
	ShipmentDelivered(latency model.Hours)
	ShipmentDropped(reason string)
	ShipmentRetried()
}

// SnapshotSource produces a statistics snapshot at a simulated time.
type SnapshotSource interface {
	Snapshot(now model.Time) stats.Snapshot
}

// SnapshotSink publishes statistics snapshots.
type SnapshotSink interface {
	Publish(ctx context.Context, snap stats.Snapshot) error
}

// Engine drives a network with an activity manager.
//
// The simulation is single threaded. Engine methods that advance or inspect
// the simulation take mu so callers on other goroutines (the control service,
// the time controller) are serialised onto it.
type Engine struct {
	mu sync.Mutex

	network *network.Network
	manager *activity.Manager
	log     logging.Logger

	reporter Reporter
	metrics  MetricsRecorder

	snapshotSource SnapshotSource
	snapshotSink   SnapshotSink
	snapshotPeriod model.Hours

	binding   *notify.Binding[network.Notifiee]
	segments  map[string]*segmentReactor
	locations map[string]*locationReactor
	customers map[string]*customerReactor

	fleetClock *activity.Activity
	snapshots  *activity.Activity
	started    bool
}

// Option customises Engine construction.
type Option func(*Engine)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithReporter installs the receiver of delivered and dropped shipments.
func WithReporter(r Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithMetrics attaches an engine metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSnapshotSink publishes a snapshot from src to sink every period
// simulated hours.
func WithSnapshotSink(src SnapshotSource, sink SnapshotSink, period model.Hours) Option {
	return func(e *Engine) {
		e.snapshotSource = src
		e.snapshotSink = sink
		e.snapshotPeriod = period
	}
}

// New builds an engine over n scheduled by m. Call Start to attach reactors.
func New(n *network.Network, m *activity.Manager, opts ...Option) *Engine {
	e := &Engine{
		network:   n,
		manager:   m,
		log:       logging.Noop(),
		segments:  make(map[string]*segmentReactor),
		locations: make(map[string]*locationReactor),
		customers: make(map[string]*customerReactor),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.binding = notify.NewBinding[network.Notifiee](&engineNotifiee{engine: e}, true)
	n.SetClock(m)
	return e
}

// Network returns the simulated network.
func (e *Engine) Network() *network.Network { return e.network }

// Manager returns the activity manager.
func (e *Engine) Manager() *activity.Manager { return e.manager }

// Start attaches reactors to every existing entity, subscribes to network
// lifecycle events so later entities get reactors too, and schedules the
// periodic fleet-clock and snapshot activities. Start is idempotent.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	e.started = true

	e.binding.NotifierIs(e.network.Notifier())
	for _, loc := range e.network.Locations() {
		if err := e.attachLocation(ctx, loc); err != nil {
			return err
		}
	}
	for _, seg := range e.network.Segments() {
		e.attachSegment(seg)
	}

	if e.network.Fleet().HasNightProfile() {
		if err := e.startFleetClock(ctx); err != nil {
			return err
		}
	}
	if e.snapshotSink != nil && e.snapshotSource != nil && e.snapshotPeriod > 0 {
		if err := e.startSnapshots(ctx); err != nil {
			return err
		}
	}
	e.log.Info(ctx, "simulation engine started",
		logging.Int("locations", len(e.locations)),
		logging.Int("segments", len(e.segments)),
		logging.Int("customers", len(e.customers)),
	)
	return nil
}

// Close detaches every reactor and stops listening to the network. Queued
// activities stay queued; callers normally stop advancing the clock first.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.binding.Close()
	for name, r := range e.segments {
		r.binding.Close()
		delete(e.segments, name)
	}
	for name, r := range e.locations {
		r.binding.Close()
		delete(e.locations, name)
	}
	for name, r := range e.customers {
		r.binding.Close()
		delete(e.customers, name)
	}
	e.started = false
}

// Now returns the simulation clock.
func (e *Engine) Now() model.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manager.Now()
}

// RunUntil executes every activity due at or before t.
func (e *Engine) RunUntil(ctx context.Context, t model.Time) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manager.RunUntil(ctx, t)
}

// Step executes the next activity, if any.
func (e *Engine) Step(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manager.Step(ctx)
}

// WithLock runs fn while holding the engine lock. fn must not call other
// Engine methods that take the lock.
func (e *Engine) WithLock(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn()
}

func (e *Engine) attachLocation(ctx context.Context, loc *network.Location) error {
	if _, ok := e.locations[loc.Name()]; !ok {
		r := &locationReactor{engine: e}
		r.binding = notify.NewBinding[network.LocationNotifiee](r, true)
		r.binding.NotifierIs(loc.Notifier())
		e.locations[loc.Name()] = r
	}
	if c := loc.Customer(); c != nil {
		if _, ok := e.customers[loc.Name()]; !ok {
			r := newCustomerReactor(e, c)
			e.customers[loc.Name()] = r
			if err := r.maybeStart(ctx); err != nil {
				return fmt.Errorf("start injection for %q: %w", loc.Name(), err)
			}
		}
	}
	return nil
}

func (e *Engine) detachLocation(loc *network.Location) {
	if r, ok := e.locations[loc.Name()]; ok {
		r.binding.Close()
		delete(e.locations, loc.Name())
	}
	if r, ok := e.customers[loc.Name()]; ok {
		r.stop()
		r.binding.Close()
		delete(e.customers, loc.Name())
	}
}

func (e *Engine) attachSegment(seg *network.Segment) {
	if _, ok := e.segments[seg.Name()]; ok {
		return
	}
	r := &segmentReactor{engine: e}
	r.binding = notify.NewBinding[network.SegmentNotifiee](r, true)
	r.binding.NotifierIs(seg.Notifier())
	e.segments[seg.Name()] = r
}

func (e *Engine) detachSegment(seg *network.Segment) {
	if r, ok := e.segments[seg.Name()]; ok {
		r.binding.Close()
		delete(e.segments, seg.Name())
	}
}

// deliver finishes shp as delivered.
func (e *Engine) deliver(ctx context.Context, shp *network.Shipment) {
	if err := shp.MarkDelivered(); err != nil {
		e.log.Error(ctx, "shipment delivered twice", logging.String("shipment", shp.Name()), logging.Err(err))
		return
	}
	e.log.Debug(ctx, "shipment delivered",
		logging.String("shipment", shp.Name()),
		logging.Float("latency_hours", float64(shp.Latency())),
		logging.Float("now", float64(e.manager.Now())),
	)
	if e.metrics != nil {
		e.metrics.ShipmentDelivered(shp.Latency())
	}
	if e.reporter != nil {
		e.reporter.DeliveredShipment(ctx, shp)
	}
}

// drop finishes shp as dropped.
func (e *Engine) drop(ctx context.Context, shp *network.Shipment, reason string) {
	if err := shp.MarkDropped(); err != nil {
		e.log.Error(ctx, "shipment dropped after finishing", logging.String("shipment", shp.Name()), logging.Err(err))
		return
	}
	e.log.Info(ctx, "shipment dropped",
		logging.String("shipment", shp.Name()),
		logging.String("reason", reason),
		logging.Float("now", float64(e.manager.Now())),
	)
	if e.metrics != nil {
		e.metrics.ShipmentDropped(reason)
	}
	if e.reporter != nil {
		e.reporter.DroppedShipment(ctx, shp, reason)
	}
}

// schedule queues a fresh activity owned by r at now+delay.
func (e *Engine) schedule(ctx context.Context, name string, delay model.Hours, r activity.Reactor) (*activity.Activity, error) {
	a := e.manager.NewActivity(name)
	a.SetReactor(r)
	a.SetNextTime(e.manager.Now().Add(delay))
	if err := a.SetStatus(ctx, activity.NextTimeScheduled); err != nil {
		return nil, err
	}
	return a, nil
}

// engineNotifiee keeps reactors in step with network lifecycle events.
type engineNotifiee struct {
	network.BaseNotifiee
	engine *Engine
}

func (n *engineNotifiee) OnSegmentNew(_ context.Context, seg *network.Segment) error {
	n.engine.attachSegment(seg)
	return nil
}

func (n *engineNotifiee) OnSegmentDel(_ context.Context, seg *network.Segment) error {
	n.engine.detachSegment(seg)
	return nil
}

func (n *engineNotifiee) OnCustomerNew(ctx context.Context, loc *network.Location) error {
	return n.engine.attachLocation(ctx, loc)
}

func (n *engineNotifiee) OnPortNew(ctx context.Context, loc *network.Location) error {
	return n.engine.attachLocation(ctx, loc)
}

func (n *engineNotifiee) OnTerminalNew(ctx context.Context, loc *network.Location) error {
	return n.engine.attachLocation(ctx, loc)
}

func (n *engineNotifiee) OnCustomerDel(_ context.Context, loc *network.Location) error {
	n.engine.detachLocation(loc)
	return nil
}

func (n *engineNotifiee) OnPortDel(_ context.Context, loc *network.Location) error {
	n.engine.detachLocation(loc)
	return nil
}

func (n *engineNotifiee) OnTerminalDel(_ context.Context, loc *network.Location) error {
	n.engine.detachLocation(loc)
	return nil
}
