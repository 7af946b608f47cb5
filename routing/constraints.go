package routing

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/shipping-simulator/model"
	"github.com/signalsfoundry/shipping-simulator/network"
)

// Constraint is a bit in the active-constraint mask.
type Constraint uint8

const (
	ConstrainDistance Constraint = 1 << iota
	ConstrainCost
	ConstrainHours
	ConstrainExpedited

	ConstrainNone Constraint = 0
)

// Constraints bound an exploration. Only limits whose bit is set in Active are
// enforced.
type Constraints struct {
	Start string
	// End, when set, keeps only paths ending there.
	End string

	Active      Constraint
	MaxDistance model.Miles
	MaxCost     model.Dollars
	MaxHours    model.Hours
	Expedited   model.ExpediteSupport
}

// Clear deactivates every limit.
func (c *Constraints) Clear() { c.Active = ConstrainNone }

// Activate adds bits to the active mask.
func (c *Constraints) Activate(mask Constraint) { c.Active |= mask }

// WithDistance returns c with a distance limit.
func (c Constraints) WithDistance(limit model.Miles) Constraints {
	c.MaxDistance = limit
	c.Activate(ConstrainDistance)
	return c
}

// WithCost returns c with a cost limit.
func (c Constraints) WithCost(limit model.Dollars) Constraints {
	c.MaxCost = limit
	c.Activate(ConstrainCost)
	return c
}

// WithHours returns c with a travel-time limit.
func (c Constraints) WithHours(limit model.Hours) Constraints {
	c.MaxHours = limit
	c.Activate(ConstrainHours)
	return c
}

// WithExpedited returns c requiring (or not) expedited service.
func (c Constraints) WithExpedited(es model.ExpediteSupport) Constraints {
	c.Expedited = es
	c.Activate(ConstrainExpedited)
	return c
}

// Allows reports whether p satisfies every active limit.
func (c Constraints) Allows(p *network.Path) bool {
	if c.Active&ConstrainDistance != 0 && p.Distance() > c.MaxDistance {
		return false
	}
	if c.Active&ConstrainCost != 0 && p.Cost() > c.MaxCost {
		return false
	}
	if c.Active&ConstrainHours != 0 && p.Hours() > c.MaxHours {
		return false
	}
	if c.Active&ConstrainExpedited != 0 &&
		c.Expedited == model.ExpediteSupported && p.Expedited() != model.ExpediteSupported {
		return false
	}
	return true
}

func (c Constraints) String() string {
	var parts []string
	if c.Active&ConstrainDistance != 0 {
		parts = append(parts, "distance<="+c.MaxDistance.String())
	}
	if c.Active&ConstrainCost != 0 {
		parts = append(parts, "cost<="+c.MaxCost.String())
	}
	if c.Active&ConstrainHours != 0 {
		parts = append(parts, "hours<="+c.MaxHours.String())
	}
	if c.Active&ConstrainExpedited != 0 {
		parts = append(parts, "expedited="+c.Expedited.String())
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// Method selects the shortest-path algorithm used for routes.
type Method int

const (
	MethodBFS Method = iota
	MethodDijkstra
)

func (m Method) String() string {
	switch m {
	case MethodBFS:
		return "bfs"
	case MethodDijkstra:
		return "dijkstra"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// ParseMethod accepts "bfs" or "dijkstra".
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bfs", "":
		return MethodBFS, nil
	case "dijkstra":
		return MethodDijkstra, nil
	default:
		return MethodBFS, fmt.Errorf("unknown routing method %q", s)
	}
}
