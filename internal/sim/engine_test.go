package sim

import (
	"context"
	"errors"
	"testing"

	"github.com/signalsfoundry/shipping-simulator/internal/activity"
	"github.com/signalsfoundry/shipping-simulator/internal/stats"
	"github.com/signalsfoundry/shipping-simulator/model"
	"github.com/signalsfoundry/shipping-simulator/network"
	"github.com/signalsfoundry/shipping-simulator/routing"
)

type fakeMetrics struct {
	manager   *activity.Manager
	injected  []model.Time
	failed    int
	delivered []model.Hours
	dropped   []string
	retried   int
}

func (f *fakeMetrics) ShipmentInjected()                     { f.injected = append(f.injected, f.manager.Now()) }
func (f *fakeMetrics) InjectionFailed()                      { f.failed++ }
func (f *fakeMetrics) ShipmentDelivered(latency model.Hours) { f.delivered = append(f.delivered, latency) }
func (f *fakeMetrics) ShipmentDropped(reason string)         { f.dropped = append(f.dropped, reason) }
func (f *fakeMetrics) ShipmentRetried()                      { f.retried++ }

type fakeSink struct {
	times []model.Time
	err   error
}

func (s *fakeSink) Publish(_ context.Context, snap stats.Snapshot) error {
	s.times = append(s.times, snap.Time)
	return s.err
}

type fixture struct {
	net     *network.Network
	engine  *Engine
	stats   *stats.Statistics
	metrics *fakeMetrics
	a, b    *network.Location
	ab, ba  *network.Segment
}

// newFixture builds customers A and B joined by a 100 mile truck link. The
// fleet moves speed mph and carries 10 packages per truck.
func newFixture(t *testing.T, speed model.MilesPerHour, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	n := network.New("sim")
	if err := n.Fleet().SetAttributes(model.Truck, network.ModeAttributes{Speed: speed, CostPerMile: 1, Capacity: 10}); err != nil {
		t.Fatalf("SetAttributes: %v", err)
	}
	a, err := n.NewCustomer(ctx, "A")
	if err != nil {
		t.Fatalf("NewCustomer A: %v", err)
	}
	b, err := n.NewCustomer(ctx, "B")
	if err != nil {
		t.Fatalf("NewCustomer B: %v", err)
	}
	segment := func(name, source string) *network.Segment {
		seg, err := n.NewSegment(ctx, name, model.Truck)
		if err != nil {
			t.Fatalf("NewSegment %s: %v", name, err)
		}
		if err := seg.SetSource(source); err != nil {
			t.Fatalf("SetSource %s: %v", name, err)
		}
		if err := seg.SetLength(100); err != nil {
			t.Fatalf("SetLength %s: %v", name, err)
		}
		return seg
	}
	ab := segment("ab", "A")
	ba := segment("ba", "B")
	if err := ab.SetReturn("ba"); err != nil {
		t.Fatalf("SetReturn: %v", err)
	}
	n.SetPathFinder(routing.New(n))

	m := activity.NewManager()
	st := stats.New(n)
	metrics := &fakeMetrics{manager: m}
	opts = append([]Option{WithReporter(st), WithMetrics(metrics)}, opts...)
	e := New(n, m, opts...)
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		e.Close()
		st.Close()
	})
	return &fixture{net: n, engine: e, stats: st, metrics: metrics, a: a, b: b, ab: ab, ba: ba}
}

// send creates a shipment from A to B and hands it to A.
func (f *fixture) send(t *testing.T, load model.PackageCount) *network.Shipment {
	t.Helper()
	ctx := context.Background()
	var shp *network.Shipment
	err := f.engine.WithLock(func() error {
		var err error
		shp, err = f.net.NewShipment(ctx, f.a, f.b, load)
		if err != nil {
			return err
		}
		return f.a.ArrivingShipment(ctx, shp)
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	return shp
}

func (f *fixture) runUntil(t *testing.T, at model.Time) {
	t.Helper()
	if _, err := f.engine.RunUntil(context.Background(), at); err != nil {
		t.Fatalf("RunUntil(%v): %v", at, err)
	}
}

func TestEngine_SingleSegmentDelivery(t *testing.T) {
	f := newFixture(t, 50)
	shp := f.send(t, 5)

	if f.ab.Load() != 5 {
		t.Fatalf("expected segment load 5 after admission, got %d", f.ab.Load())
	}
	f.runUntil(t, 1.9)
	if shp.Finished() {
		t.Fatalf("shipment finished before transit completed")
	}
	f.runUntil(t, 2)

	if shp.State() != network.Delivered {
		t.Fatalf("expected delivered, got %s", shp.State())
	}
	if shp.Latency() != 2 {
		t.Fatalf("expected latency equal to transit time 2h, got %v", shp.Latency())
	}
	if f.ab.Load() != 0 {
		t.Fatalf("expected capacity released, load=%d", f.ab.Load())
	}
	if got := f.b.Customer().Received(); got != 1 {
		t.Fatalf("expected B to receive 1 shipment, got %d", got)
	}
	if _, delivered, _ := f.stats.Shipments(); delivered != 1 {
		t.Fatalf("expected statistics to count the delivery, got %d", delivered)
	}
}

func TestEngine_CapacityExceededRetriesAfterInitialWait(t *testing.T) {
	f := newFixture(t, 50)
	first := f.send(t, 6)
	second := f.send(t, 6)

	if f.ab.ToldToWait() != 1 {
		t.Fatalf("expected told-to-wait=1, got %d", f.ab.ToldToWait())
	}
	if f.metrics.retried != 1 {
		t.Fatalf("expected one retry scheduled, got %d", f.metrics.retried)
	}
	next, ok := f.engine.Manager().NextTime()
	if !ok || next != model.Time(InitialRetryWait) {
		t.Fatalf("expected retry due at %v, got %v (ok=%v)", InitialRetryWait, next, ok)
	}

	// The retry at t=1 still finds the segment full; the one at t=3 gets in
	// after the first shipment leaves at t=2.
	f.runUntil(t, 1)
	if f.ab.ToldToWait() != 2 {
		t.Fatalf("expected second wait at t=1, got %d", f.ab.ToldToWait())
	}
	f.runUntil(t, 5)
	if first.State() != network.Delivered || second.State() != network.Delivered {
		t.Fatalf("expected both delivered, got %s and %s", first.State(), second.State())
	}
	if f.ab.Load() > f.ab.Capacity() {
		t.Fatalf("load %d exceeds capacity %d", f.ab.Load(), f.ab.Capacity())
	}
}

func TestEngine_RetryExhaustionRefusesShipment(t *testing.T) {
	// At 1 mph the first shipment occupies the segment for 100 hours.
	f := newFixture(t, 1)
	f.send(t, 10)
	blocked := f.send(t, 1)

	var attempts []model.Time
	last := f.ab.ToldToWait()
	for at := model.Time(0.5); at <= 40; at += 0.5 {
		f.runUntil(t, at)
		if w := f.ab.ToldToWait(); w != last {
			attempts = append(attempts, at)
			last = w
		}
	}

	want := []model.Time{1, 3, 7, 15, 31}
	if len(attempts) != len(want) {
		t.Fatalf("expected retries at %v, got %v", want, attempts)
	}
	for i := range want {
		if attempts[i] != want[i] {
			t.Fatalf("expected retries at %v, got %v", want, attempts)
		}
		if i > 1 && attempts[i]-attempts[i-1] <= attempts[i-1]-attempts[i-2] {
			t.Fatalf("retry intervals must grow, got %v", attempts)
		}
	}
	if blocked.State() != network.Dropped {
		t.Fatalf("expected refused shipment dropped, got %s", blocked.State())
	}
	if f.ab.Refused() != 1 {
		t.Fatalf("expected refused=1, got %d", f.ab.Refused())
	}
	if len(f.metrics.dropped) != 1 || f.metrics.dropped[0] != DropRefused {
		t.Fatalf("expected one refused drop, got %v", f.metrics.dropped)
	}

	f.runUntil(t, 99)
	if f.ab.ToldToWait() != last {
		t.Fatalf("no retry expected after refusal, told-to-wait went %d -> %d", last, f.ab.ToldToWait())
	}
}

func TestEngine_CustomerInjectionPeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	c := f.a.Customer()

	err := f.engine.WithLock(func() error {
		if err := c.SetTransferRate(ctx, 4); err != nil {
			return err
		}
		if err := c.SetShipmentSize(ctx, 1); err != nil {
			return err
		}
		return c.SetDestination(ctx, f.b)
	})
	if err != nil {
		t.Fatalf("configure customer: %v", err)
	}

	f.runUntil(t, 24)
	want := []model.Time{0, 6, 12, 18, 24}
	if len(f.metrics.injected) != len(want) {
		t.Fatalf("expected injections at %v, got %v", want, f.metrics.injected)
	}
	for i := range want {
		if f.metrics.injected[i] != want[i] {
			t.Fatalf("expected injections at %v, got %v", want, f.metrics.injected)
		}
	}

	enroute, delivered, dropped := f.stats.Shipments()
	if enroute+delivered+dropped != len(f.metrics.injected) {
		t.Fatalf("shipments not conserved: %d+%d+%d != %d", enroute, delivered, dropped, len(f.metrics.injected))
	}
	if delivered != 4 || enroute != 1 {
		t.Fatalf("expected 4 delivered and 1 enroute at t=24, got %d/%d", delivered, enroute)
	}
}

func TestEngine_InjectionStopsWhenRateDropsToZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	c := f.a.Customer()
	err := f.engine.WithLock(func() error {
		if err := c.SetShipmentSize(ctx, 1); err != nil {
			return err
		}
		if err := c.SetDestination(ctx, f.b); err != nil {
			return err
		}
		return c.SetTransferRate(ctx, 24)
	})
	if err != nil {
		t.Fatalf("configure customer: %v", err)
	}
	f.runUntil(t, 2)
	if err := f.engine.WithLock(func() error { return c.SetTransferRate(ctx, 0) }); err != nil {
		t.Fatalf("SetTransferRate: %v", err)
	}
	before := len(f.metrics.injected)
	f.runUntil(t, 10)
	if got := len(f.metrics.injected); got > before+1 {
		t.Fatalf("injection kept running after rate dropped to zero: %d -> %d", before, got)
	}
}

func TestEngine_UnreachableDestinationCountsFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	var lonely *network.Location
	err := f.engine.WithLock(func() error {
		var err error
		lonely, err = f.net.NewCustomer(ctx, "Z")
		if err != nil {
			return err
		}
		c := f.a.Customer()
		if err := c.SetShipmentSize(ctx, 1); err != nil {
			return err
		}
		if err := c.SetTransferRate(ctx, 1); err != nil {
			return err
		}
		return c.SetDestination(ctx, lonely)
	})
	if err != nil {
		t.Fatalf("configure customer: %v", err)
	}
	f.runUntil(t, 0)
	if f.metrics.failed != 1 || len(f.metrics.injected) != 0 {
		t.Fatalf("expected one failed injection, got failed=%d injected=%d", f.metrics.failed, len(f.metrics.injected))
	}
}

func TestEngine_FleetClockToggles(t *testing.T) {
	ctx := context.Background()
	n := network.New("clock")
	fleet := n.Fleet()
	if err := fleet.SetAttributes(model.Truck, network.ModeAttributes{Speed: 50, CostPerMile: 1, Capacity: 10}); err != nil {
		t.Fatalf("SetAttributes: %v", err)
	}
	if err := fleet.SetNightAttributes(model.Truck, network.ModeAttributes{Speed: 25, CostPerMile: 1, Capacity: 10}); err != nil {
		t.Fatalf("SetNightAttributes: %v", err)
	}
	e := New(n, activity.NewManager())
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Close()

	if _, err := e.RunUntil(ctx, 11); err != nil {
		t.Fatalf("RunUntil: %v", err)
	}
	if fleet.TimeOfDay() != network.Day {
		t.Fatalf("expected day before t=12")
	}
	_, _ = e.RunUntil(ctx, 12)
	if fleet.TimeOfDay() != network.Night || fleet.Speed(model.Truck) != 25 {
		t.Fatalf("expected night profile at t=12, got %s speed=%v", fleet.TimeOfDay(), fleet.Speed(model.Truck))
	}
	_, _ = e.RunUntil(ctx, 24)
	if fleet.TimeOfDay() != network.Day {
		t.Fatalf("expected day profile at t=24")
	}
}

func TestEngine_PublishesSnapshots(t *testing.T) {
	sink := &fakeSink{err: errors.New("sink down")}
	n := network.New("snap")
	st := stats.New(n)
	defer st.Close()
	e := New(n, activity.NewManager(), WithSnapshotSink(st, sink, 5))
	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Close()

	if _, err := e.RunUntil(ctx, 15); err != nil {
		t.Fatalf("RunUntil: %v", err)
	}
	want := []model.Time{5, 10, 15}
	if len(sink.times) != len(want) {
		t.Fatalf("expected snapshots at %v even when publishing fails, got %v", want, sink.times)
	}
	for i := range want {
		if sink.times[i] != want[i] {
			t.Fatalf("expected snapshots at %v, got %v", want, sink.times)
		}
	}
}

func TestEngine_AttachesReactorsToNewEntities(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	err := f.engine.WithLock(func() error {
		if _, err := f.net.NewPort(ctx, "P"); err != nil {
			return err
		}
		_, err := f.net.NewSegment(ctx, "ap", model.Truck)
		return err
	})
	if err != nil {
		t.Fatalf("create entities: %v", err)
	}
	if _, ok := f.engine.locations["P"]; !ok {
		t.Fatalf("expected a reactor on the new port")
	}
	if _, ok := f.engine.segments["ap"]; !ok {
		t.Fatalf("expected a reactor on the new segment")
	}
	if err := f.engine.WithLock(func() error { return f.net.DeleteLocation(ctx, "P") }); err != nil {
		t.Fatalf("DeleteLocation: %v", err)
	}
	if _, ok := f.engine.locations["P"]; ok {
		t.Fatalf("expected port reactor removed")
	}
}

// requireDropped checks a terminal drop: the reason reported, the shipment
// state, released capacity on seg and conserved statistics totals.
func requireDropped(t *testing.T, f *fixture, shp *network.Shipment, reason string, seg *network.Segment) {
	t.Helper()
	if shp.State() != network.Dropped {
		t.Fatalf("expected %s dropped, got %s", shp.Name(), shp.State())
	}
	if len(f.metrics.dropped) != 1 || f.metrics.dropped[0] != reason {
		t.Fatalf("expected one %q drop, got %v", reason, f.metrics.dropped)
	}
	if seg.Load() != 0 {
		t.Fatalf("expected %s load released, got %d", seg.Name(), seg.Load())
	}
	enroute, delivered, dropped := f.stats.Shipments()
	if enroute != 0 || delivered != 0 || dropped != 1 {
		t.Fatalf("expected totals 0/0/1, got %d/%d/%d", enroute, delivered, dropped)
	}
	if rec := f.stats.Record(shp.Name()); rec.Dropped != 1 || rec.Enroute != 0 {
		t.Fatalf("expected record to move from enroute to dropped, got %+v", rec)
	}
}

// repairReturn re-pairs the segment a shipment is travelling on, so its far
// end changes while the shipment is in transit.
func (f *fixture) repairReturn(t *testing.T, seg *network.Segment, build func(ctx context.Context) (string, error)) {
	t.Helper()
	err := f.engine.WithLock(func() error {
		name, err := build(context.Background())
		if err != nil {
			return err
		}
		return seg.SetReturn(name)
	})
	if err != nil {
		t.Fatalf("re-pair %s: %v", seg.Name(), err)
	}
}

func (f *fixture) truckSegmentFrom(ctx context.Context, name, source string) (string, error) {
	seg, err := f.net.NewSegment(ctx, name, model.Truck)
	if err != nil {
		return "", err
	}
	if err := seg.SetSource(source); err != nil {
		return "", err
	}
	if err := seg.SetLength(100); err != nil {
		return "", err
	}
	return name, nil
}

func TestEngine_ArrivalAtOtherCustomerIsMisrouted(t *testing.T) {
	f := newFixture(t, 50)
	shp := f.send(t, 5)

	f.repairReturn(t, f.ab, func(ctx context.Context) (string, error) {
		if _, err := f.net.NewCustomer(ctx, "C"); err != nil {
			return "", err
		}
		return f.truckSegmentFrom(ctx, "ca", "C")
	})
	f.runUntil(t, 2)

	requireDropped(t, f, shp, DropMisrouted, f.ab)
	if got := f.b.Customer().Received(); got != 0 {
		t.Fatalf("expected nothing delivered to B, got %d", got)
	}
}

func TestEngine_ArrivalOffPathIsRoutingDefect(t *testing.T) {
	f := newFixture(t, 50)
	shp := f.send(t, 5)

	f.repairReturn(t, f.ab, func(ctx context.Context) (string, error) {
		if _, err := f.net.NewPort(ctx, "X"); err != nil {
			return "", err
		}
		return f.truckSegmentFrom(ctx, "xa", "X")
	})
	f.runUntil(t, 2)

	requireDropped(t, f, shp, DropRoutingDefect, f.ab)
}

func TestEngine_ReturnLostInTransitIsRoutingDefect(t *testing.T) {
	f := newFixture(t, 50)
	shp := f.send(t, 5)

	f.repairReturn(t, f.ab, func(context.Context) (string, error) { return "", nil })
	if f.ab.Next() != nil {
		t.Fatalf("expected ab to have no far end after unpairing")
	}
	f.runUntil(t, 2)

	requireDropped(t, f, shp, DropRoutingDefect, f.ab)
}

func TestEngine_ZeroSpeedFleetDropsWithoutTransit(t *testing.T) {
	f := newFixture(t, 0)
	shp := f.send(t, 5)

	requireDropped(t, f, shp, DropNoTransit, f.ab)
	if f.ab.Received() != 1 {
		t.Fatalf("expected the segment to have admitted the shipment once, got %d", f.ab.Received())
	}
	f.runUntil(t, 24)
	if len(f.metrics.delivered) != 0 {
		t.Fatalf("expected no delivery, got %v", f.metrics.delivered)
	}
}
