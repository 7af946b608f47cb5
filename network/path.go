package network

import (
	"fmt"
	"math"
	"strings"

	"github.com/signalsfoundry/shipping-simulator/model"
)

const (
	expeditedCostFactor  = 1.5
	expeditedSpeedFactor = 1.3
)

// Part is one element of a Path: exactly one of Location or Segment is set.
type Part struct {
	Location *Location
	Segment  *Segment
}

// Path is an alternating sequence of locations and segments that starts and
// ends at a location. Cost, hours and distance accumulate as the path grows.
//
// A new path is expedited. Appending the first segment without expedite
// support downgrades it and recomputes every total with standard rates.
type Path struct {
	fleet    *Fleet
	parts    []Part
	visited  map[string]struct{}
	expedite model.ExpediteSupport

	cost     model.Dollars
	hours    model.Hours
	distance model.Miles
}

// NewPath starts a path at start.
func NewPath(fleet *Fleet, start *Location) *Path {
	return &Path{
		fleet:    fleet,
		parts:    []Part{{Location: start}},
		visited:  map[string]struct{}{start.name: {}},
		expedite: model.ExpediteSupported,
	}
}

// Clone returns an independent copy that can be extended separately.
func (p *Path) Clone() *Path {
	c := *p
	c.parts = append([]Part(nil), p.parts...)
	c.visited = make(map[string]struct{}, len(p.visited))
	for name := range p.visited {
		c.visited[name] = struct{}{}
	}
	return &c
}

// Extend appends seg and the location it leads to.
func (p *Path) Extend(seg *Segment, next *Location) {
	p.parts = append(p.parts, Part{Segment: seg}, Part{Location: next})
	p.visited[next.name] = struct{}{}
	if p.expedite == model.ExpediteSupported && seg.expedite != model.ExpediteSupported {
		p.Deexpedite()
		return
	}
	p.cost += p.segmentCost(seg)
	p.hours += p.segmentHours(seg)
	p.distance += seg.length
}

// Deexpedite drops expedited service and recomputes every total at standard
// rates. It is a no-op on a path that is not expedited.
func (p *Path) Deexpedite() {
	if p.expedite != model.ExpediteSupported {
		return
	}
	p.expedite = model.ExpediteNotSupported
	p.recompute()
}

func (p *Path) recompute() {
	p.cost, p.hours, p.distance = 0, 0, 0
	for _, part := range p.parts {
		if part.Segment == nil {
			continue
		}
		p.cost += p.segmentCost(part.Segment)
		p.hours += p.segmentHours(part.Segment)
		p.distance += part.Segment.length
	}
}

func (p *Path) segmentCost(seg *Segment) model.Dollars {
	perMile := float64(p.fleet.CostPerMile(seg.mode))
	if p.expedite == model.ExpediteSupported {
		perMile *= expeditedCostFactor
	}
	return model.Dollars(perMile * float64(seg.length) * float64(seg.difficulty))
}

func (p *Path) segmentHours(seg *Segment) model.Hours {
	speed := float64(p.fleet.Speed(seg.mode))
	if p.expedite == model.ExpediteSupported {
		speed *= expeditedSpeedFactor
	}
	if seg.length == 0 {
		return 0
	}
	if speed <= 0 {
		return model.Hours(math.Inf(1))
	}
	return model.Hours(float64(seg.length) / speed)
}

func (p *Path) Cost() model.Dollars              { return p.cost }
func (p *Path) Hours() model.Hours               { return p.hours }
func (p *Path) Distance() model.Miles            { return p.distance }
func (p *Path) Expedited() model.ExpediteSupport { return p.expedite }
func (p *Path) NumParts() int                    { return len(p.parts) }
func (p *Path) Start() *Location                 { return p.parts[0].Location }
func (p *Path) End() *Location                   { return p.parts[len(p.parts)-1].Location }
func (p *Path) Parts() []Part                    { return append([]Part(nil), p.parts...) }

// Contains reports whether the path already visits the named location.
func (p *Path) Contains(name string) bool {
	_, ok := p.visited[name]
	return ok
}

// Segments returns the traversed segments in order.
func (p *Path) Segments() []*Segment {
	out := make([]*Segment, 0, len(p.parts)/2)
	for _, part := range p.parts {
		if part.Segment != nil {
			out = append(out, part.Segment)
		}
	}
	return out
}

// LocationIndex returns the part index of loc.
func (p *Path) LocationIndex(loc *Location) (int, error) {
	for i, part := range p.parts {
		if part.Location != nil && part.Location.name == loc.name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%q: %w", loc.name, ErrIndexOutOfRange)
}

// NextSegment returns the segment that leaves loc along the path.
func (p *Path) NextSegment(loc *Location) (*Segment, error) {
	i, err := p.LocationIndex(loc)
	if err != nil {
		return nil, err
	}
	if i+1 >= len(p.parts) {
		return nil, fmt.Errorf("after %q: %w", loc.name, ErrPathExhausted)
	}
	return p.parts[i+1].Segment, nil
}

// String renders the path as location names each followed by the
// "(segment:length:return) " token of the next hop, newline terminated:
// "A(ab:100.00:ba) B\n".
func (p *Path) String() string {
	var b strings.Builder
	for _, part := range p.parts {
		switch {
		case part.Location != nil:
			b.WriteString(part.Location.name)
		case part.Segment != nil:
			fmt.Fprintf(&b, "(%s:%s:%s) ", part.Segment.name, part.Segment.length, part.Segment.returnName)
		}
	}
	b.WriteString("\n")
	return b.String()
}
