package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/shipping-simulator/internal/config"
	"github.com/signalsfoundry/shipping-simulator/internal/control"
	"github.com/signalsfoundry/shipping-simulator/internal/logging"
)

const smokeScenario = `name: smoke
fleet:
  truck: {speed: 50, cost_per_mile: 1, capacity: 10}
locations:
  - {name: A, kind: customer}
  - {name: B, kind: customer}
segments:
  - {name: ab, mode: truck, source: A, return: ba, length: 100}
  - {name: ba, mode: truck, source: B, length: 100}
customers:
  - {name: A, destination: B, transfer_rate: 4, shipment_size: 5}
`

func testConfig(t *testing.T, until float64) *config.AppConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "smoke.yaml")
	if err := os.WriteFile(path, []byte(smokeScenario), 0o600); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return &config.AppConfig{
		ScenarioPath: path,
		Simulation: config.SimulationConfig{
			UntilHours:          until,
			TickHours:           1,
			Mode:                "accelerated",
			RoutingMethod:       "dijkstra",
			SnapshotPeriodHours: 24,
		},
		Redis:   config.RedisConfig{Prefix: "shipsim"},
		Tracing: config.TracingConfig{Exporter: "stdout", SampleRatio: 1},
	}
}

func TestRun_WritesFinalReport(t *testing.T) {
	cfg := testConfig(t, 30)
	var out bytes.Buffer

	if err := run(context.Background(), cfg, logging.Noop(), nil, &out, prometheus.NewRegistry()); err != nil {
		t.Fatalf("run: %v", err)
	}

	report := out.String()
	for _, want := range []string{
		"Simulation Results (t=30.00)",
		"# Customers.......: 2",
		"'A'->'B'",
		"# Shipments delivered : 5",
	} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}
}

func TestRun_PublishesSnapshotsToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, 30)
	cfg.Redis.URL = "redis://" + mr.Addr()

	if err := run(context.Background(), cfg, logging.Noop(), nil, &bytes.Buffer{}, prometheus.NewRegistry()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !mr.Exists("shipsim:snapshot:latest") {
		t.Fatalf("expected latest snapshot to be stored in redis")
	}
}

func TestRun_RejectsUnknownRoutingMethod(t *testing.T) {
	cfg := testConfig(t, 10)
	cfg.Simulation.RoutingMethod = "astar"

	err := run(context.Background(), cfg, logging.Noop(), nil, &bytes.Buffer{}, prometheus.NewRegistry())
	if err == nil {
		t.Fatalf("expected error for unknown routing method")
	}
}

func TestRun_ServesControlWhileHolding(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := testConfig(t, 10)
	cfg.Simulation.Hold = true

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	runCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(runCtx, cfg, logging.Noop(), lis, &bytes.Buffer{}, prometheus.NewRegistry())
	}()

	client, conn, err := control.Dial(lis.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	for {
		snap, err := client.Stats(ctx)
		if err == nil && snap.Time >= 10 {
			break
		}
		if ctx.Err() != nil {
			t.Fatalf("simulation never reached its horizon: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	res, err := client.Advance(ctx, 16)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if res.Now != 16 {
		t.Fatalf("expected clock at 16, got %v", res.Now)
	}

	stop()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-ctx.Done():
		t.Fatalf("run did not exit after cancellation")
	}
}
