// Package control exposes a running simulation over gRPC: advancing the
// clock, reading statistics, and answering path queries.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/shipping-simulator/internal/logging"
	"github.com/signalsfoundry/shipping-simulator/internal/sim"
	"github.com/signalsfoundry/shipping-simulator/internal/stats"
	"github.com/signalsfoundry/shipping-simulator/model"
	"github.com/signalsfoundry/shipping-simulator/routing"
)

// ErrNotStarted is returned when the service has no engine to drive.
var ErrNotStarted = errors.New("simulation not started")

// Service implements SimulationControlServer over a simulation engine.
//
// Every handler runs simulation work while holding the engine lock, so gRPC
// goroutines never touch the network concurrently with the run loop.
type Service struct {
	engine *sim.Engine
	routes *routing.Connectivity
	stats  *stats.Statistics
	log    logging.Logger
}

// NewService binds the control service to an engine, its path finder and its
// statistics.
func NewService(e *sim.Engine, c *routing.Connectivity, st *stats.Statistics, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{engine: e, routes: c, stats: st, log: log}
}

func (s *Service) ensureReady() error {
	if s == nil || s.engine == nil || s.routes == nil || s.stats == nil {
		return ToStatusError(ErrNotStarted)
	}
	return nil
}

func (s *Service) logger(ctx context.Context) logging.Logger {
	return logging.FromContext(ctx, s.log)
}

// Advance runs the simulation to an absolute time ("until") or by a relative
// number of hours ("hours").
func (s *Service) Advance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	now := s.engine.Now()
	var until model.Time
	switch {
	case has(req, "until"):
		v, err := number(req, "until")
		if err != nil {
			return nil, ToStatusError(err)
		}
		until = model.Time(v)
	case has(req, "hours"):
		v, err := number(req, "hours")
		if err != nil {
			return nil, ToStatusError(err)
		}
		if v < 0 {
			return nil, ToStatusError(fmt.Errorf("%w: hours must not be negative", ErrInvalidRequest))
		}
		until = now.Add(model.Hours(v))
	default:
		return nil, ToStatusError(fmt.Errorf("%w: until or hours is required", ErrInvalidRequest))
	}
	if until.Before(now) {
		return nil, ToStatusError(fmt.Errorf("%w: cannot advance to %s, clock is at %s", ErrInvalidRequest, until, now))
	}

	ctx, span := StartChildSpan(ctx, "control.advance", attribute.Float64("until", float64(until)))
	defer span.End()

	executed, err := s.engine.RunUntil(ctx, until)
	if err != nil {
		s.logger(ctx).Warn(ctx, "advance interrupted", logging.Err(err))
		return nil, ToStatusError(err)
	}
	s.logger(ctx).Debug(ctx, "simulation advanced",
		logging.Float("until", float64(until)),
		logging.Int("executed", executed),
	)
	return structpb.NewStruct(map[string]any{
		"now":      float64(s.engine.Now()),
		"executed": executed,
	})
}

// Stats returns the current statistics snapshot. Setting "report" adds the
// rendered text report.
func (s *Service) Stats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var snap stats.Snapshot
	_ = s.engine.WithLock(func() error {
		snap = s.stats.Snapshot(s.engine.Manager().Now())
		return nil
	})
	out, err := snapshotStruct(snap)
	if err != nil {
		return nil, ToStatusError(err)
	}
	if boolean(req, "report") {
		var buf bytes.Buffer
		if err := stats.WriteReport(&buf, snap); err != nil {
			return nil, ToStatusError(err)
		}
		out.Fields["report"] = structpb.NewStringValue(buf.String())
	}
	return out, nil
}

// Connect lists every path from "start" to "end" with its cost, hours and
// expedite flag.
func (s *Service) Connect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	start, err := requiredString(req, "start")
	if err != nil {
		return nil, ToStatusError(err)
	}
	end, err := requiredString(req, "end")
	if err != nil {
		return nil, ToStatusError(err)
	}

	var lines []string
	err = s.engine.WithLock(func() error {
		paths, err := s.routes.Connect(ctx, start, end)
		if err != nil {
			return err
		}
		lines = routing.FormatConnections(paths)
		return nil
	})
	if err != nil {
		return nil, ToStatusError(err)
	}
	return pathsStruct(lines)
}

// Explore lists paths from "start" within the optional limits max_distance,
// max_cost, max_hours and expedited, optionally ending at "end".
func (s *Service) Explore(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	cons, err := constraintsFrom(req)
	if err != nil {
		return nil, ToStatusError(err)
	}

	var lines []string
	err = s.engine.WithLock(func() error {
		paths, err := s.routes.Explore(ctx, cons)
		if err != nil {
			return err
		}
		lines = routing.FormatPaths(paths)
		return nil
	})
	if err != nil {
		return nil, ToStatusError(err)
	}
	return pathsStruct(lines)
}

// Routes returns the shortest path between every ordered customer pair using
// "method" (bfs or dijkstra; defaults to the configured method).
func (s *Service) Routes(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	method := s.routes.Method()
	if raw := stringField(req, "method"); raw != "" {
		m, err := routing.ParseMethod(raw)
		if err != nil {
			return nil, ToStatusError(fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		}
		method = m
	}

	routes := make(map[string]any)
	err := s.engine.WithLock(func() error {
		found, err := s.routes.Routes(ctx, method)
		if err != nil {
			return err
		}
		for key, p := range found {
			routes[key] = strings.TrimSuffix(p.String(), "\n")
		}
		return nil
	})
	if err != nil {
		return nil, ToStatusError(err)
	}
	return structpb.NewStruct(map[string]any{
		"method": method.String(),
		"routes": routes,
	})
}

func constraintsFrom(req *structpb.Struct) (routing.Constraints, error) {
	start, err := requiredString(req, "start")
	if err != nil {
		return routing.Constraints{}, err
	}
	cons := routing.Constraints{Start: start, End: stringField(req, "end")}
	if has(req, "max_distance") {
		v, err := number(req, "max_distance")
		if err != nil {
			return cons, err
		}
		cons = cons.WithDistance(model.Miles(v))
	}
	if has(req, "max_cost") {
		v, err := number(req, "max_cost")
		if err != nil {
			return cons, err
		}
		cons = cons.WithCost(model.Dollars(v))
	}
	if has(req, "max_hours") {
		v, err := number(req, "max_hours")
		if err != nil {
			return cons, err
		}
		cons = cons.WithHours(model.Hours(v))
	}
	if has(req, "expedited") {
		es := model.ExpediteNotSupported
		if boolean(req, "expedited") {
			es = model.ExpediteSupported
		}
		cons = cons.WithExpedited(es)
	}
	return cons, nil
}

func has(req *structpb.Struct, key string) bool {
	if req == nil {
		return false
	}
	v, ok := req.GetFields()[key]
	if !ok {
		return false
	}
	_, isNull := v.GetKind().(*structpb.Value_NullValue)
	return !isNull
}

func number(req *structpb.Struct, key string) (float64, error) {
	v := req.GetFields()[key]
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidRequest, key)
	}
	if math.IsNaN(n.NumberValue) || math.IsInf(n.NumberValue, 0) {
		return 0, fmt.Errorf("%w: %s must be finite", ErrInvalidRequest, key)
	}
	return n.NumberValue, nil
}

func stringField(req *structpb.Struct, key string) string {
	if req == nil {
		return ""
	}
	return strings.TrimSpace(req.GetFields()[key].GetStringValue())
}

func requiredString(req *structpb.Struct, key string) (string, error) {
	v := stringField(req, key)
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidRequest, key)
	}
	return v, nil
}

func boolean(req *structpb.Struct, key string) bool {
	if req == nil {
		return false
	}
	return req.GetFields()[key].GetBoolValue()
}

func pathsStruct(lines []string) (*structpb.Struct, error) {
	paths := make([]any, len(lines))
	for i, l := range lines {
		paths[i] = strings.TrimSuffix(l, "\n")
	}
	return structpb.NewStruct(map[string]any{"paths": paths})
}

// snapshotStruct converts a snapshot through its JSON form so the wire shape
// matches what the Redis publisher emits.
func snapshotStruct(snap stats.Snapshot) (*structpb.Struct, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return structpb.NewStruct(fields)
}

var _ SimulationControlServer = (*Service)(nil)
