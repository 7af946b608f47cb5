package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/shipping-simulator/internal/activity"
	"github.com/signalsfoundry/shipping-simulator/internal/config"
	"github.com/signalsfoundry/shipping-simulator/internal/control"
	"github.com/signalsfoundry/shipping-simulator/internal/export"
	"github.com/signalsfoundry/shipping-simulator/internal/logging"
	"github.com/signalsfoundry/shipping-simulator/internal/observability"
	"github.com/signalsfoundry/shipping-simulator/internal/scenario"
	"github.com/signalsfoundry/shipping-simulator/internal/sim"
	"github.com/signalsfoundry/shipping-simulator/internal/stats"
	"github.com/signalsfoundry/shipping-simulator/model"
	"github.com/signalsfoundry/shipping-simulator/network"
	"github.com/signalsfoundry/shipping-simulator/routing"
	"github.com/signalsfoundry/shipping-simulator/timectrl"
)

func main() {
	envDir := flag.String("env-dir", ".", "directory holding an optional .env file")
	scenarioPath := flag.String("scenario", "", "scenario YAML file (overrides SCENARIO_PATH)")
	until := flag.Float64("until", 0, "simulated hours to run (overrides SIM_UNTIL_HOURS)")
	flag.Parse()

	if *scenarioPath != "" {
		_ = os.Setenv("SCENARIO_PATH", *scenarioPath)
	}
	cfg, err := config.Load(*envDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *until > 0 {
		cfg.Simulation.UntilHours = *until
	}

	log := logging.New(logging.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Backend:   cfg.LogBackend,
		AddSource: true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var lis net.Listener
	if cfg.Server.GRPCAddr != "" {
		lis, err = net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Server.GRPCAddr), logging.Err(err))
			os.Exit(1)
		}
	}

	if err := run(ctx, cfg, log, lis, os.Stdout, prometheus.DefaultRegisterer); err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
}

// run loads the scenario, drives it to the configured horizon and writes the
// final report to out. With lis set the control service is served until run
// returns, and past the horizon when Hold is set.
func run(ctx context.Context, cfg *config.AppConfig, log logging.Logger, lis net.Listener, out io.Writer, reg prometheus.Registerer) error {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: observability.DefaultServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	simMetrics, err := observability.NewSimulationCollector(reg)
	if err != nil {
		return fmt.Errorf("simulation metrics: %w", err)
	}
	controlMetrics, err := observability.NewControlCollector(reg)
	if err != nil {
		return fmt.Errorf("control metrics: %w", err)
	}
	if metricsSrv := serveMetrics(cfg.Server.MetricsAddr, controlMetrics.Handler(), log); metricsSrv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	sc, err := scenario.LoadFile(cfg.ScenarioPath)
	if err != nil {
		return err
	}
	method, err := routing.ParseMethod(cfg.Simulation.RoutingMethod)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	mode, err := timectrl.ParseMode(cfg.Simulation.Mode)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	n := network.New(sc.Name)
	paths := routing.New(n,
		routing.WithMethod(method),
		routing.WithLogger(log),
		routing.WithMetrics(simMetrics),
	)
	n.SetPathFinder(paths)

	summary, err := sc.Apply(ctx, n)
	if err != nil {
		return err
	}
	log.Info(ctx, "loaded scenario",
		logging.String("name", sc.Name),
		logging.String("path", cfg.ScenarioPath),
		logging.Int("locations", len(summary.Locations)),
		logging.Int("segments", len(summary.Segments)),
		logging.Int("customers", len(summary.Customers)),
		logging.Int("measured", len(summary.Measured)),
	)

	manager := activity.NewManager(activity.WithLogger(log), activity.WithMetrics(simMetrics))
	st := stats.New(n, stats.WithMetrics(simMetrics))
	defer st.Close()

	opts := []sim.Option{
		sim.WithLogger(log),
		sim.WithReporter(st),
		sim.WithMetrics(simMetrics),
	}
	if cfg.Redis.URL != "" {
		pub, err := export.NewRedisPublisher(cfg.Redis.URL, cfg.Redis.Prefix)
		if err != nil {
			return err
		}
		defer pub.Close()
		if err := pub.Ping(ctx); err != nil {
			log.Warn(ctx, "redis unreachable, snapshots will fail until it recovers", logging.Err(err))
		}
		opts = append(opts, sim.WithSnapshotSink(st, pub, model.Hours(cfg.Simulation.SnapshotPeriodHours)))
		log.Info(ctx, "publishing snapshots",
			logging.String("key", pub.LatestKey()),
			logging.Float("period_hours", cfg.Simulation.SnapshotPeriodHours),
		)
	}

	engine := sim.New(n, manager, opts...)
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Close()
	controlMetrics.ClockIs(func() float64 { return float64(engine.Now()) })

	if lis != nil {
		server := control.NewServer(control.NewService(engine, paths, st, log), log, controlMetrics)
		serveErr := make(chan error, 1)
		go func() {
			serveErr <- server.Serve(lis)
		}()
		log.Info(ctx, "serving simulation control", logging.String("addr", lis.Addr().String()))
		defer func() {
			server.GracefulStop()
			if err := <-serveErr; err != nil {
				log.Warn(context.Background(), "control server exited", logging.Err(err))
			}
		}()
	}

	horizon := model.Time(cfg.Simulation.UntilHours)
	tc := timectrl.NewTimeController(model.Hours(cfg.Simulation.TickHours), mode, cfg.Simulation.Pace)
	tc.AddListener(func(now model.Time) {
		log.Debug(ctx, "tick", logging.Float("now", float64(now)))
	})

	log.Info(ctx, "simulation starting",
		logging.Float("until", float64(horizon)),
		logging.String("mode", mode.String()),
		logging.String("routing", method.String()),
	)
	executed, err := tc.Run(ctx, engine, horizon)
	interrupted := errors.Is(err, context.Canceled)
	if err != nil && !interrupted {
		return err
	}
	log.Info(ctx, "simulation finished",
		logging.Float("now", float64(engine.Now())),
		logging.Int("ticks", tc.Ticks()),
		logging.Int("executed", executed),
		logging.Bool("interrupted", interrupted),
	)

	if err := writeReport(engine, st, out); err != nil {
		return err
	}

	if lis != nil && cfg.Simulation.Hold && !interrupted {
		log.Info(ctx, "holding for control requests")
		<-ctx.Done()
	}
	return nil
}

func writeReport(engine *sim.Engine, st *stats.Statistics, out io.Writer) error {
	var snap stats.Snapshot
	_ = engine.WithLock(func() error {
		snap = st.Snapshot(engine.Manager().Now())
		return nil
	})
	return stats.WriteReport(out, snap)
}

func serveMetrics(addr string, handler http.Handler, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
