package control

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/shipping-simulator/internal/activity"
	"github.com/signalsfoundry/shipping-simulator/internal/logging"
	"github.com/signalsfoundry/shipping-simulator/internal/observability"
	"github.com/signalsfoundry/shipping-simulator/internal/sim"
	"github.com/signalsfoundry/shipping-simulator/internal/stats"
	"github.com/signalsfoundry/shipping-simulator/model"
	"github.com/signalsfoundry/shipping-simulator/network"
	"github.com/signalsfoundry/shipping-simulator/routing"
)

type controlEnv struct {
	net    *network.Network
	engine *sim.Engine
	svc    *Service
	a, b   *network.Location
}

// newControlEnv builds customers A and B joined by 100 mile truck segments
// driven at 50 mph.
func newControlEnv(t *testing.T) *controlEnv {
	t.Helper()
	ctx := context.Background()
	n := network.New("control")
	if err := n.Fleet().SetAttributes(model.Truck, network.ModeAttributes{Speed: 50, CostPerMile: 1, Capacity: 10}); err != nil {
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
	for _, def := range []struct{ name, source string }{{"ab", "A"}, {"ba", "B"}} {
		seg, err := n.NewSegment(ctx, def.name, model.Truck)
		if err != nil {
			t.Fatalf("NewSegment %s: %v", def.name, err)
		}
		if err := seg.SetSource(def.source); err != nil {
			t.Fatalf("SetSource %s: %v", def.name, err)
		}
		if err := seg.SetLength(100); err != nil {
			t.Fatalf("SetLength %s: %v", def.name, err)
		}
	}
	ab, _ := n.Segment("ab")
	if err := ab.SetReturn("ba"); err != nil {
		t.Fatalf("SetReturn: %v", err)
	}

	conn := routing.New(n)
	n.SetPathFinder(conn)
	st := stats.New(n)
	e := sim.New(n, activity.NewManager(), sim.WithReporter(st))
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		e.Close()
		st.Close()
	})
	return &controlEnv{
		net:    n,
		engine: e,
		svc:    NewService(e, conn, st, logging.Noop()),
		a:      a,
		b:      b,
	}
}

func (env *controlEnv) send(t *testing.T, load model.PackageCount) {
	t.Helper()
	ctx := context.Background()
	err := env.engine.WithLock(func() error {
		shp, err := env.net.NewShipment(ctx, env.a, env.b, load)
		if err != nil {
			return err
		}
		return env.a.ArrivingShipment(ctx, shp)
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func requireCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := status.Code(err); got != want {
		t.Fatalf("expected %s, got %s (%v)", want, got, err)
	}
}

func TestService_AdvanceAbsoluteAndRelative(t *testing.T) {
	env := newControlEnv(t)
	ctx := context.Background()

	out, err := env.svc.Advance(ctx, mustStruct(t, map[string]any{"until": 5.0}))
	if err != nil {
		t.Fatalf("Advance until: %v", err)
	}
	if got := out.GetFields()["now"].GetNumberValue(); got != 5 {
		t.Fatalf("expected now=5, got %v", got)
	}

	out, err = env.svc.Advance(ctx, mustStruct(t, map[string]any{"hours": 2.5}))
	if err != nil {
		t.Fatalf("Advance hours: %v", err)
	}
	if got := out.GetFields()["now"].GetNumberValue(); got != 7.5 {
		t.Fatalf("expected now=7.5, got %v", got)
	}
}

func TestService_AdvanceRejectsBadRequests(t *testing.T) {
	env := newControlEnv(t)
	ctx := context.Background()
	if _, err := env.svc.Advance(ctx, mustStruct(t, map[string]any{"until": 10.0})); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	cases := map[string]map[string]any{
		"missing":     {},
		"backwards":   {"until": 3.0},
		"negative":    {"hours": -1.0},
		"wrong type":  {"until": "soon"},
		"hours typed": {"hours": true},
	}
	for name, fields := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.svc.Advance(ctx, mustStruct(t, fields))
			requireCode(t, err, codes.InvalidArgument)
		})
	}
}

func TestService_StatsAfterDelivery(t *testing.T) {
	env := newControlEnv(t)
	ctx := context.Background()
	env.send(t, 5)

	if _, err := env.svc.Advance(ctx, mustStruct(t, map[string]any{"until": 3.0})); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	out, err := env.svc.Stats(ctx, mustStruct(t, map[string]any{"report": true}))
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	fields := out.GetFields()
	if got := fields["customers"].GetNumberValue(); got != 2 {
		t.Fatalf("expected 2 customers, got %v", got)
	}
	shipments := fields["shipments"].GetStructValue().GetFields()
	if got := shipments["delivered"].GetNumberValue(); got != 1 {
		t.Fatalf("expected 1 delivered shipment, got %v", got)
	}
	if got := shipments["enroute"].GetNumberValue(); got != 0 {
		t.Fatalf("expected 0 enroute shipments, got %v", got)
	}
	report := fields["report"].GetStringValue()
	if !strings.Contains(report, "Simulation Results") {
		t.Fatalf("report missing header:\n%s", report)
	}
}

func TestService_ConnectAndExplore(t *testing.T) {
	env := newControlEnv(t)
	ctx := context.Background()

	out, err := env.svc.Connect(ctx, mustStruct(t, map[string]any{"start": "A", "end": "B"}))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	paths := out.GetFields()["paths"].GetListValue().GetValues()
	if len(paths) != 1 {
		t.Fatalf("expected 1 path, got %d", len(paths))
	}
	line := paths[0].GetStringValue()
	if !strings.Contains(line, "; A(ab:") || !strings.HasSuffix(line, " B") {
		t.Fatalf("unexpected connect line %q", line)
	}

	out, err = env.svc.Explore(ctx, mustStruct(t, map[string]any{"start": "A", "max_distance": 50.0}))
	if err != nil {
		t.Fatalf("Explore: %v", err)
	}
	if n := len(out.GetFields()["paths"].GetListValue().GetValues()); n != 0 {
		t.Fatalf("expected no paths within 50 miles, got %d", n)
	}

	out, err = env.svc.Explore(ctx, mustStruct(t, map[string]any{"start": "A", "max_distance": 150.0}))
	if err != nil {
		t.Fatalf("Explore: %v", err)
	}
	if n := len(out.GetFields()["paths"].GetListValue().GetValues()); n != 1 {
		t.Fatalf("expected 1 path within 150 miles, got %d", n)
	}
}

func TestService_ConnectUnknownLocation(t *testing.T) {
	env := newControlEnv(t)
	_, err := env.svc.Connect(context.Background(), mustStruct(t, map[string]any{"start": "A", "end": "Z"}))
	requireCode(t, err, codes.NotFound)

	_, err = env.svc.Connect(context.Background(), mustStruct(t, map[string]any{"start": "A"}))
	requireCode(t, err, codes.InvalidArgument)
}

func TestService_Routes(t *testing.T) {
	env := newControlEnv(t)
	ctx := context.Background()

	out, err := env.svc.Routes(ctx, mustStruct(t, map[string]any{"method": "dijkstra"}))
	if err != nil {
		t.Fatalf("Routes: %v", err)
	}
	if got := out.GetFields()["method"].GetStringValue(); got != "dijkstra" {
		t.Fatalf("expected method dijkstra, got %q", got)
	}
	routes := out.GetFields()["routes"].GetStructValue().GetFields()
	if len(routes) != 2 {
		t.Fatalf("expected routes for A:B and B:A, got %d", len(routes))
	}
	if got := routes["A:B"].GetStringValue(); !strings.HasPrefix(got, "A(ab:") {
		t.Fatalf("unexpected A:B route %q", got)
	}

	_, err = env.svc.Routes(ctx, mustStruct(t, map[string]any{"method": "astar"}))
	requireCode(t, err, codes.InvalidArgument)
}

func TestService_NotStarted(t *testing.T) {
	var svc *Service
	_, err := svc.Stats(context.Background(), nil)
	requireCode(t, err, codes.FailedPrecondition)
}

func TestServer_EndToEnd(t *testing.T) {
	env := newControlEnv(t)
	env.send(t, 5)

	reg := prometheus.NewRegistry()
	collector, err := observability.NewControlCollector(reg)
	if err != nil {
		t.Fatalf("NewControlCollector: %v", err)
	}
	collector.ClockIs(func() float64 { return float64(env.engine.Now()) })
	server := NewServer(env.svc, logging.Noop(), collector)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(lis)
	}()
	t.Cleanup(func() {
		server.GracefulStop()
		<-serveErr
	})

	client, conn, err := Dial(lis.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = WithRequestID(ctx, "req-e2e")

	res, err := client.Advance(ctx, 4)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if res.Now != 4 {
		t.Fatalf("expected clock at 4, got %v", res.Now)
	}

	snap, err := client.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if snap.Shipments.Delivered != 1 {
		t.Fatalf("expected 1 delivered shipment, got %+v", snap.Shipments)
	}
	if snap.Time != 4 {
		t.Fatalf("expected snapshot time 4, got %v", snap.Time)
	}

	report, err := client.Report(ctx)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if !strings.Contains(report, "# Shipments delivered : 1") {
		t.Fatalf("report missing shipment totals:\n%s", report)
	}

	paths, err := client.Connect(ctx, "A", "B")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("expected 1 path, got %v", paths)
	}

	explored, err := client.Explore(ctx, routing.Constraints{Start: "A"}.WithHours(1))
	if err != nil {
		t.Fatalf("Explore: %v", err)
	}
	if len(explored) != 0 {
		t.Fatalf("expected nothing within 1 hour, got %v", explored)
	}

	routes, err := client.Routes(ctx, routing.MethodBFS)
	if err != nil {
		t.Fatalf("Routes: %v", err)
	}
	if _, ok := routes["B:A"]; !ok {
		t.Fatalf("expected B:A route, got %v", routes)
	}

	_, err = client.Connect(ctx, "A", "nowhere")
	requireCode(t, err, codes.NotFound)

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("SimulationControl", "Connect", codes.NotFound.String())); got != 1 {
		t.Fatalf("expected one NotFound Connect recorded, got %v", got)
	}
	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("SimulationControl", "Advance", codes.OK.String())); got != 1 {
		t.Fatalf("expected one OK Advance recorded, got %v", got)
	}
	if got := testutil.ToFloat64(collector.HoursAdvanced.WithLabelValues("Advance")); got != 4 {
		t.Fatalf("expected Advance to move the clock 4 hours, got %v", got)
	}
}
