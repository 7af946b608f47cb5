// Package routing searches the shipping network for paths: constrained
// exploration, connection enumeration, unweighted and cost-weighted shortest
// paths, and all-pairs customer routes.
package routing

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/shipping-simulator/internal/logging"
	"github.com/signalsfoundry/shipping-simulator/model"
	"github.com/signalsfoundry/shipping-simulator/network"
)

const tracerName = "github.com/signalsfoundry/shipping-simulator/routing"

// Metrics receives search timings and route cache outcomes.
type Metrics interface {
	ObservePathComputation(kind string, d time.Duration)
	RouteCacheHit()
	RouteCacheMiss()
}

// Connectivity answers path queries over a network. It also serves as the
// network's PathFinder, caching one route per shipment name until the
// network's revision changes.
type Connectivity struct {
	network *network.Network
	method  Method
	log     logging.Logger
	metrics Metrics
	tracer  trace.Tracer

	cache         map[string]*network.Path
	cacheRevision uint64
}

// Option customises Connectivity construction.
type Option func(*Connectivity)

// WithMethod selects the algorithm used for shipment routes.
func WithMethod(m Method) Option {
	return func(c *Connectivity) { c.method = m }
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Connectivity) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Connectivity) { c.metrics = m }
}

// New returns a Connectivity for n. It does not install itself as the
// network's path finder; call n.SetPathFinder for that.
func New(n *network.Network, opts ...Option) *Connectivity {
	c := &Connectivity{
		network: n,
		log:     logging.Noop(),
		tracer:  otel.Tracer(tracerName),
		cache:   make(map[string]*network.Path),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Method returns the configured routing method.
func (c *Connectivity) Method() Method { return c.method }

// step is one way out of a path's end: a return-paired segment and the
// location it leads to.
type step struct {
	seg  *network.Segment
	next *network.Location
}

// steps lists the extensions of p that do not revisit a location.
func steps(p *network.Path) []step {
	var out []step
	for _, seg := range p.End().Segments() {
		next := seg.Next()
		if next == nil || p.Contains(next.Name()) {
			continue
		}
		out = append(out, step{seg: seg, next: next})
	}
	return out
}

func extend(p *network.Path, s step) *network.Path {
	c := p.Clone()
	c.Extend(s.seg, s.next)
	return c
}

// Explore enumerates every acyclic path from c.Start that satisfies the
// active constraints. A candidate that fails while expedited is retried at
// standard rates before being rejected. Standard-rate paths are returned
// first, then expedited ones.
func (c *Connectivity) Explore(ctx context.Context, cons Constraints) ([]*network.Path, error) {
	ctx, span := c.startSpan(ctx, "routing.explore",
		attribute.String("start", cons.Start),
		attribute.String("end", cons.End),
		attribute.String("constraints", cons.String()),
	)
	defer span.End()
	defer c.observe("explore", time.Now())

	start, err := c.network.Location(cons.Start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if cons.End != "" {
		if _, err := c.network.Location(cons.End); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	var standard, expedited []*network.Path
	queue := []*network.Path{network.NewPath(c.network.Fleet(), start)}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		curr := queue[0]
		queue = queue[1:]

		for _, s := range steps(curr) {
			candidate := extend(curr, s)
			if !cons.Allows(candidate) {
				if candidate.Expedited() != model.ExpediteSupported {
					continue
				}
				candidate.Deexpedite()
				if !cons.Allows(candidate) {
					continue
				}
			}
			if cons.End == "" || candidate.End().Name() == cons.End {
				if candidate.Expedited() == model.ExpediteSupported {
					expedited = append(expedited, candidate)
				} else {
					standard = append(standard, candidate)
				}
			}
			queue = append(queue, candidate)
		}
	}

	out := append(standard, expedited...)
	span.SetAttributes(attribute.Int("paths", len(out)))
	return out, nil
}

// Connect enumerates every acyclic path from start to end without
// constraints. Each expedited path is reported twice: first at standard rates,
// then expedited.
func (c *Connectivity) Connect(ctx context.Context, startName, endName string) ([]*network.Path, error) {
	ctx, span := c.startSpan(ctx, "routing.connect",
		attribute.String("start", startName),
		attribute.String("end", endName),
	)
	defer span.End()
	defer c.observe("connect", time.Now())

	start, err := c.network.Location(startName)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if _, err := c.network.Location(endName); err != nil {
		span.RecordError(err)
		return nil, err
	}

	var standard, expedited []*network.Path
	queue := []*network.Path{network.NewPath(c.network.Fleet(), start)}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		curr := queue[0]
		queue = queue[1:]

		for _, s := range steps(curr) {
			candidate := extend(curr, s)
			if s.next.Name() != endName {
				queue = append(queue, candidate)
				continue
			}
			if candidate.Expedited() == model.ExpediteSupported {
				expedited = append(expedited, candidate)
			} else {
				standard = append(standard, candidate)
			}
		}
	}

	out := make([]*network.Path, 0, len(standard)+2*len(expedited))
	out = append(out, standard...)
	for _, p := range expedited {
		baseline := p.Clone()
		baseline.Deexpedite()
		out = append(out, baseline, p)
	}
	span.SetAttributes(attribute.Int("paths", len(out)))
	return out, nil
}

// BFSShortestPath returns the first path in breadth-first order from start to
// end. Customers other than start are never used as transit points.
func (c *Connectivity) BFSShortestPath(ctx context.Context, start, end *network.Location) (*network.Path, error) {
	defer c.observe("bfs", time.Now())

	queue := []*network.Path{network.NewPath(c.network.Fleet(), start)}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		curr := queue[0]
		queue = queue[1:]

		for _, s := range steps(curr) {
			candidate := extend(curr, s)
			if s.next.Name() == end.Name() {
				return candidate, nil
			}
			if !s.next.IsCustomer() {
				queue = append(queue, candidate)
			}
		}
	}
	return nil, fmt.Errorf("%s to %s: %w", start.Name(), end.Name(), network.ErrPathNotFound)
}

// DijkstraShortestPath returns the cheapest acyclic path from start to end
// that does not transit another customer. Paths are expanded in order of
// accumulated cost; equal costs expand in discovery order.
func (c *Connectivity) DijkstraShortestPath(ctx context.Context, start, end *network.Location) (*network.Path, error) {
	defer c.observe("dijkstra", time.Now())

	pq := &pathQueue{}
	pq.push(network.NewPath(c.network.Fleet(), start))

	var best *network.Path
	for pq.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		curr := pq.pop()
		// Standard-rate costs only grow as a path extends; expedited ones
		// can still drop when a later segment downgrades the path.
		if best != nil && curr.Expedited() != model.ExpediteSupported && curr.Cost() >= best.Cost() {
			continue
		}
		for _, s := range steps(curr) {
			candidate := extend(curr, s)
			if s.next.Name() == end.Name() {
				if best == nil || candidate.Cost() < best.Cost() {
					best = candidate
				}
				continue
			}
			if !s.next.IsCustomer() {
				pq.push(candidate)
			}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%s to %s: %w", start.Name(), end.Name(), network.ErrPathNotFound)
	}
	return best, nil
}

// ShortestPath dispatches to the algorithm selected by method.
func (c *Connectivity) ShortestPath(ctx context.Context, method Method, start, end *network.Location) (*network.Path, error) {
	if method == MethodDijkstra {
		return c.DijkstraShortestPath(ctx, start, end)
	}
	return c.BFSShortestPath(ctx, start, end)
}

// Routes computes the shortest path between every ordered pair of distinct
// customers, keyed "source:dest". Unreachable pairs are omitted.
func (c *Connectivity) Routes(ctx context.Context, method Method) (map[string]*network.Path, error) {
	ctx, span := c.startSpan(ctx, "routing.routes", attribute.String("method", method.String()))
	defer span.End()

	customers := c.network.Customers()
	routes := make(map[string]*network.Path)
	for _, src := range customers {
		for _, dst := range customers {
			if src == dst {
				continue
			}
			p, err := c.ShortestPath(ctx, method, src, dst)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			routes[network.ShipmentName(src.Name(), dst.Name())] = p
		}
	}
	span.SetAttributes(attribute.Int("routes", len(routes)))
	return routes, nil
}

// ShipmentPath returns the route a new shipment from source to dest follows,
// using the configured method. Routes are cached per shipment name and
// recomputed after any topology or fleet change.
func (c *Connectivity) ShipmentPath(ctx context.Context, source, dest *network.Location) (*network.Path, error) {
	if rev := c.network.Revision(); rev != c.cacheRevision {
		clear(c.cache)
		c.cacheRevision = rev
	}
	key := network.ShipmentName(source.Name(), dest.Name())
	if p, ok := c.cache[key]; ok {
		if c.metrics != nil {
			c.metrics.RouteCacheHit()
		}
		return p, nil
	}
	if c.metrics != nil {
		c.metrics.RouteCacheMiss()
	}

	p, err := c.ShortestPath(ctx, c.method, source, dest)
	if err != nil {
		c.log.Debug(ctx, "no route for shipment",
			logging.String("shipment", key),
			logging.String("method", c.method.String()),
			logging.Err(err),
		)
		return nil, err
	}
	c.cache[key] = p
	return p, nil
}

func (c *Connectivity) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (c *Connectivity) observe(kind string, started time.Time) {
	if c.metrics != nil {
		c.metrics.ObservePathComputation(kind, time.Since(started))
	}
}

// pathQueue is a min-heap of paths by cost, FIFO among equal costs.
type pathQueue struct {
	items []queuedPath
	seq   uint64
}

type queuedPath struct {
	path *network.Path
	seq  uint64
}

func (q *pathQueue) Len() int { return len(q.items) }

func (q *pathQueue) Less(i, j int) bool {
	ci, cj := q.items[i].path.Cost(), q.items[j].path.Cost()
	if ci != cj {
		return ci < cj
	}
	return q.items[i].seq < q.items[j].seq
}

func (q *pathQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *pathQueue) Push(x any) { q.items = append(q.items, x.(queuedPath)) }

func (q *pathQueue) Pop() any {
	n := len(q.items)
	item := q.items[n-1]
	q.items = q.items[:n-1]
	return item
}

func (q *pathQueue) push(p *network.Path) {
	q.seq++
	heap.Push(q, queuedPath{path: p, seq: q.seq})
}

func (q *pathQueue) pop() *network.Path {
	return heap.Pop(q).(queuedPath).path
}
