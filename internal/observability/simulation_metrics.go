package observability

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/shipping-simulator/model"
)

// SimulationCollector exposes scheduler, routing, shipment and network
// metrics. It is safe to pass a nil collector to any recorder method.
type SimulationCollector struct {
	gatherer prometheus.Gatherer

	ActivitiesExecuted      *prometheus.CounterVec
	ActivityQueueDepth      prometheus.Gauge
	ClockHours              prometheus.Gauge
	PathComputationDuration *prometheus.HistogramVec
	RouteCacheHits          prometheus.Counter
	RouteCacheMisses        prometheus.Counter

	ShipmentsInjected  prometheus.Counter
	InjectionFailures  prometheus.Counter
	ShipmentsDelivered prometheus.Counter
	ShipmentsDropped   *prometheus.CounterVec
	ShipmentRetries    prometheus.Counter
	ShipmentLatency    prometheus.Histogram

	NetworkEntities   *prometheus.GaugeVec
	Shipments         *prometheus.GaugeVec
	ExpeditedSegments prometheus.Gauge
}

// NewSimulationCollector registers simulation metrics against the provided
// registerer, defaulting to the global registry when nil.
func NewSimulationCollector(reg prometheus.Registerer) (*SimulationCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	c := &SimulationCollector{gatherer: gatherer}

	var err error
	if c.ActivitiesExecuted, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_activities_executed_total",
		Help: "Activities dispatched by the scheduler, labeled by activity kind.",
	}, []string{"kind"}), "sim_activities_executed_total"); err != nil {
		return nil, err
	}
	if c.ActivityQueueDepth, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_activity_queue_depth",
		Help: "Number of activities waiting in the scheduler queue.",
	}), "sim_activity_queue_depth"); err != nil {
		return nil, err
	}
	if c.ClockHours, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_clock_hours",
		Help: "Current simulation time in hours.",
	}), "sim_clock_hours"); err != nil {
		return nil, err
	}
	if c.PathComputationDuration, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "routing_path_computation_duration_seconds",
		Help:    "Duration of path computations, labeled by algorithm.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"kind"}), "routing_path_computation_duration_seconds"); err != nil {
		return nil, err
	}
	if c.RouteCacheHits, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routing_cache_hits_total",
		Help: "Shipment route lookups served from the route cache.",
	}), "routing_cache_hits_total"); err != nil {
		return nil, err
	}
	if c.RouteCacheMisses, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routing_cache_misses_total",
		Help: "Shipment route lookups that required a path search.",
	}), "routing_cache_misses_total"); err != nil {
		return nil, err
	}
	if c.ShipmentsInjected, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_shipments_injected_total",
		Help: "Shipments created by customer injection.",
	}), "sim_shipments_injected_total"); err != nil {
		return nil, err
	}
	if c.InjectionFailures, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_injection_failures_total",
		Help: "Customer injections that could not create a shipment.",
	}), "sim_injection_failures_total"); err != nil {
		return nil, err
	}
	if c.ShipmentsDelivered, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_shipments_delivered_total",
		Help: "Shipments delivered to their destination.",
	}), "sim_shipments_delivered_total"); err != nil {
		return nil, err
	}
	if c.ShipmentsDropped, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_shipments_dropped_total",
		Help: "Shipments dropped, labeled by reason.",
	}, []string{"reason"}), "sim_shipments_dropped_total"); err != nil {
		return nil, err
	}
	if c.ShipmentRetries, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_shipment_retries_total",
		Help: "Shipments told to wait for segment capacity.",
	}), "sim_shipment_retries_total"); err != nil {
		return nil, err
	}
	if c.ShipmentLatency, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_shipment_latency_hours",
		Help:    "Transit latency of delivered shipments in simulated hours.",
		Buckets: []float64{1, 2, 4, 8, 12, 24, 48, 96, 168},
	}), "sim_shipment_latency_hours"); err != nil {
		return nil, err
	}
	if c.NetworkEntities, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "network_entities",
		Help: "Current number of network entities, labeled by kind.",
	}, []string{"kind"}), "network_entities"); err != nil {
		return nil, err
	}
	if c.Shipments, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_shipments",
		Help: "Shipments by state.",
	}, []string{"state"}), "sim_shipments"); err != nil {
		return nil, err
	}
	if c.ExpeditedSegments, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "network_expedited_segments_percent",
		Help: "Share of segments supporting expedited service.",
	}), "network_expedited_segments_percent"); err != nil {
		return nil, err
	}
	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimulationCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimulationCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

// activityKind trims per-instance suffixes so "forward:ab:12" counts as
// "forward".
func activityKind(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[:i]
	}
	return name
}

// ActivityExecuted counts one dispatched activity.
func (c *SimulationCollector) ActivityExecuted(name string) {
	if c == nil || c.ActivitiesExecuted == nil {
		return
	}
	c.ActivitiesExecuted.WithLabelValues(activityKind(name)).Inc()
}

// SetQueueDepth updates the queue depth gauge.
func (c *SimulationCollector) SetQueueDepth(depth int) {
	if c == nil || c.ActivityQueueDepth == nil {
		return
	}
	c.ActivityQueueDepth.Set(float64(depth))
}

// SetClock updates the simulation clock gauge.
func (c *SimulationCollector) SetClock(now model.Time) {
	if c == nil || c.ClockHours == nil {
		return
	}
	c.ClockHours.Set(float64(now))
}

// ObservePathComputation records a path computation duration measurement.
func (c *SimulationCollector) ObservePathComputation(kind string, d time.Duration) {
	if c == nil || c.PathComputationDuration == nil {
		return
	}
	c.PathComputationDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (c *SimulationCollector) RouteCacheHit() {
	if c == nil || c.RouteCacheHits == nil {
		return
	}
	c.RouteCacheHits.Inc()
}

func (c *SimulationCollector) RouteCacheMiss() {
	if c == nil || c.RouteCacheMisses == nil {
		return
	}
	c.RouteCacheMisses.Inc()
}

func (c *SimulationCollector) ShipmentInjected() {
	if c == nil || c.ShipmentsInjected == nil {
		return
	}
	c.ShipmentsInjected.Inc()
}

func (c *SimulationCollector) InjectionFailed() {
	if c == nil || c.InjectionFailures == nil {
		return
	}
	c.InjectionFailures.Inc()
}

// ShipmentDelivered counts a delivery and records its latency.
func (c *SimulationCollector) ShipmentDelivered(latency model.Hours) {
	if c == nil {
		return
	}
	if c.ShipmentsDelivered != nil {
		c.ShipmentsDelivered.Inc()
	}
	if c.ShipmentLatency != nil {
		c.ShipmentLatency.Observe(float64(latency))
	}
}

func (c *SimulationCollector) ShipmentDropped(reason string) {
	if c == nil || c.ShipmentsDropped == nil {
		return
	}
	c.ShipmentsDropped.WithLabelValues(reason).Inc()
}

func (c *SimulationCollector) ShipmentRetried() {
	if c == nil || c.ShipmentRetries == nil {
		return
	}
	c.ShipmentRetries.Inc()
}

// SetEntityCounts updates the network entity gauges.
func (c *SimulationCollector) SetEntityCounts(customers, ports, terminals, segments int) {
	if c == nil || c.NetworkEntities == nil {
		return
	}
	c.NetworkEntities.WithLabelValues("customer").Set(float64(customers))
	c.NetworkEntities.WithLabelValues("port").Set(float64(ports))
	c.NetworkEntities.WithLabelValues("terminal").Set(float64(terminals))
	c.NetworkEntities.WithLabelValues("segment").Set(float64(segments))
}

// SetShipmentTotals updates the per-state shipment gauges.
func (c *SimulationCollector) SetShipmentTotals(enroute, delivered, dropped int) {
	if c == nil || c.Shipments == nil {
		return
	}
	c.Shipments.WithLabelValues("enroute").Set(float64(enroute))
	c.Shipments.WithLabelValues("delivered").Set(float64(delivered))
	c.Shipments.WithLabelValues("dropped").Set(float64(dropped))
}

// SetPercentExpedited updates the expedited share gauge.
func (c *SimulationCollector) SetPercentExpedited(pct float64) {
	if c == nil || c.ExpeditedSegments == nil {
		return
	}
	c.ExpeditedSegments.Set(pct)
}
