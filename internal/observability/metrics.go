package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// ControlCollector meters the simulation control service. Alongside wall
// time it records where the simulated clock stood when each request arrived
// and how far the request moved it.
type ControlCollector struct {
	gatherer prometheus.Gatherer
	clock    func() float64

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
	// RequestClock observes the simulated hour at which a request was served.
	RequestClock *prometheus.HistogramVec
	// HoursAdvanced accumulates simulated hours elapsed inside handlers.
	HoursAdvanced *prometheus.CounterVec
}

// NewControlCollector registers control-service metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil. The clock
// metrics stay empty until ClockIs supplies a clock.
func NewControlCollector(reg prometheus.Registerer) (*ControlCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &ControlCollector{gatherer: prometheus.DefaultGatherer}
	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	}

	var err error
	if c.RPCRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "control_requests_total",
		Help: "Handled control RPCs by service, method and gRPC status code.",
	}, []string{"service", "method", "code"}), "control_requests_total"); err != nil {
		return nil, err
	}
	if c.RPCDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "control_request_duration_seconds",
		Help:    "Control RPC wall-clock latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.5, 2, 10},
	}, []string{"method"}), "control_request_duration_seconds"); err != nil {
		return nil, err
	}
	if c.RequestClock, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "control_request_sim_clock_hours",
		Help:    "Simulated clock, in hours, when a control RPC arrived.",
		Buckets: prometheus.LinearBuckets(0, 24, 15),
	}, []string{"method"}), "control_request_sim_clock_hours"); err != nil {
		return nil, err
	}
	if c.HoursAdvanced, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "control_sim_hours_advanced_total",
		Help: "Simulated hours the clock moved while control RPCs were handled.",
	}, []string{"method"}), "control_sim_hours_advanced_total"); err != nil {
		return nil, err
	}
	return c, nil
}

// ClockIs sets the simulated clock read around each request. It must not
// block on locks held by handlers.
func (c *ControlCollector) ClockIs(clock func() float64) {
	if c != nil {
		c.clock = clock
	}
}

// UnaryServerInterceptor records the request count, wall latency and, when a
// clock is set, the simulated time before and after the handler.
func (c *ControlCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if c == nil {
			return handler(ctx, req)
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)

		var before float64
		if c.clock != nil {
			before = c.clock()
			c.RequestClock.WithLabelValues(method).Observe(before)
		}
		start := time.Now()
		resp, err := handler(ctx, req)
		c.RPCDurations.WithLabelValues(method).Observe(time.Since(start).Seconds())
		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()

		if c.clock != nil {
			if delta := c.clock() - before; delta > 0 {
				c.HoursAdvanced.WithLabelValues(method).Add(delta)
			}
		}
		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *ControlCollector) Handler() http.Handler {
	return handlerFor(c.gatherer)
}

func handlerFor(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

// register adds c to reg, returning the collector already registered under
// the same descriptor when there is one of the same type.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, name string) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
			var zero C
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero C
		return zero, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	return register(reg, vec, name)
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	return register(reg, vec, name)
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	return register(reg, vec, name)
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	return register(reg, gauge, name)
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	return register(reg, counter, name)
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	return register(reg, hist, name)
}
