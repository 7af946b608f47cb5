// Package scenario loads shipping networks from YAML files.
package scenario

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/shipping-simulator/model"
	"github.com/signalsfoundry/shipping-simulator/network"
)

// ErrInvalidScenario wraps structural problems in a scenario file.
var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario is the decoded form of a scenario file.
type Scenario struct {
	Name      string                `yaml:"name"`
	Fleet     map[string]ModeConfig `yaml:"fleet"`
	Night     map[string]ModeConfig `yaml:"night,omitempty"`
	Locations []LocationConfig      `yaml:"locations"`
	Segments  []SegmentConfig       `yaml:"segments"`
	Customers []CustomerConfig      `yaml:"customers,omitempty"`
}

// ModeConfig describes the vehicles of one transport mode.
type ModeConfig struct {
	Speed       float64 `yaml:"speed"`
	CostPerMile float64 `yaml:"cost_per_mile"`
	Capacity    int     `yaml:"capacity"`
}

// LocationConfig describes one location. Mode is required for terminals.
type LocationConfig struct {
	Name string   `yaml:"name"`
	Kind string   `yaml:"kind"` // customer | port | terminal
	Mode string   `yaml:"mode,omitempty"`
	Lat  *float64 `yaml:"lat,omitempty"`
	Lng  *float64 `yaml:"lng,omitempty"`
}

// SegmentConfig describes one directed segment. A zero length on a segment
// whose endpoints both carry coordinates is measured from them.
type SegmentConfig struct {
	Name       string  `yaml:"name"`
	Mode       string  `yaml:"mode"`
	Source     string  `yaml:"source"`
	Return     string  `yaml:"return,omitempty"`
	Length     float64 `yaml:"length,omitempty"`
	Difficulty float64 `yaml:"difficulty,omitempty"`
	Vehicles   int     `yaml:"vehicles,omitempty"`
	Expedite   bool    `yaml:"expedite,omitempty"`
}

// CustomerConfig sets the injection attributes of a customer.
type CustomerConfig struct {
	Name         string `yaml:"name"`
	Destination  string `yaml:"destination,omitempty"`
	TransferRate int    `yaml:"transfer_rate,omitempty"`
	ShipmentSize int    `yaml:"shipment_size,omitempty"`
}

// Summary lists what Apply created.
type Summary struct {
	Locations []string
	Segments  []string
	Customers []string
	Measured  []string
}

// Load decodes a scenario from r. Unknown fields are rejected.
func Load(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidScenario)
		}
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadFile reads and decodes the scenario at path.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

func (sc *Scenario) validate() error {
	for mode := range sc.Fleet {
		if _, err := model.ParseMode(mode); err != nil {
			return fmt.Errorf("%w: fleet: %v", ErrInvalidScenario, err)
		}
	}
	for mode := range sc.Night {
		if _, err := model.ParseMode(mode); err != nil {
			return fmt.Errorf("%w: night fleet: %v", ErrInvalidScenario, err)
		}
	}
	for i, l := range sc.Locations {
		if strings.TrimSpace(l.Name) == "" {
			return fmt.Errorf("%w: location %d has no name", ErrInvalidScenario, i)
		}
		if (l.Lat == nil) != (l.Lng == nil) {
			return fmt.Errorf("%w: location %q needs both lat and lng", ErrInvalidScenario, l.Name)
		}
	}
	for i, s := range sc.Segments {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("%w: segment %d has no name", ErrInvalidScenario, i)
		}
	}
	return nil
}

// Apply builds the scenario into n. Locations come first, then segments, then
// return pairings and measured lengths, and finally customer attributes, so
// an engine already attached to n sees every customer become ready.
func (sc *Scenario) Apply(ctx context.Context, n *network.Network) (*Summary, error) {
	fleet := n.Fleet()
	for name, cfg := range sc.Fleet {
		mode, _ := model.ParseMode(name)
		if err := fleet.SetAttributes(mode, cfg.attributes()); err != nil {
			return nil, fmt.Errorf("fleet %s: %w", name, err)
		}
	}
	for name, cfg := range sc.Night {
		mode, _ := model.ParseMode(name)
		if err := fleet.SetNightAttributes(mode, cfg.attributes()); err != nil {
			return nil, fmt.Errorf("night fleet %s: %w", name, err)
		}
	}

	sum := &Summary{}
	for _, lc := range sc.Locations {
		loc, err := createLocation(ctx, n, lc)
		if err != nil {
			return nil, err
		}
		if lc.Lat != nil {
			if err := loc.SetCoordinates(*lc.Lat, *lc.Lng); err != nil {
				return nil, fmt.Errorf("location %q: %w", lc.Name, err)
			}
		}
		sum.Locations = append(sum.Locations, lc.Name)
	}

	for _, sg := range sc.Segments {
		if err := createSegment(ctx, n, sg); err != nil {
			return nil, err
		}
		sum.Segments = append(sum.Segments, sg.Name)
	}
	for _, sg := range sc.Segments {
		if sg.Return == "" {
			continue
		}
		seg, err := n.Segment(sg.Name)
		if err != nil {
			return nil, err
		}
		if seg.ReturnName() == sg.Return {
			continue
		}
		if err := seg.SetReturn(sg.Return); err != nil {
			return nil, fmt.Errorf("segment %q return %q: %w", sg.Name, sg.Return, err)
		}
	}
	for _, sg := range sc.Segments {
		if sg.Length > 0 {
			continue
		}
		if _, err := n.MeasureSegment(sg.Name); err != nil {
			return nil, fmt.Errorf("segment %q has no length: %w", sg.Name, err)
		}
		sum.Measured = append(sum.Measured, sg.Name)
	}

	for _, cc := range sc.Customers {
		if err := applyCustomer(ctx, n, cc); err != nil {
			return nil, err
		}
		sum.Customers = append(sum.Customers, cc.Name)
	}
	return sum, nil
}

func (c ModeConfig) attributes() network.ModeAttributes {
	return network.ModeAttributes{
		Speed:       model.MilesPerHour(c.Speed),
		CostPerMile: model.Dollars(c.CostPerMile),
		Capacity:    model.PackageCount(c.Capacity),
	}
}

func createLocation(ctx context.Context, n *network.Network, lc LocationConfig) (*network.Location, error) {
	var (
		loc *network.Location
		err error
	)
	switch strings.ToLower(strings.TrimSpace(lc.Kind)) {
	case "customer":
		loc, err = n.NewCustomer(ctx, lc.Name)
	case "port":
		loc, err = n.NewPort(ctx, lc.Name)
	case "terminal":
		mode, perr := model.ParseMode(lc.Mode)
		if perr != nil {
			return nil, fmt.Errorf("%w: terminal %q: %v", ErrInvalidScenario, lc.Name, perr)
		}
		loc, err = n.NewTerminal(ctx, lc.Name, mode)
	default:
		return nil, fmt.Errorf("%w: location %q has unknown kind %q", ErrInvalidScenario, lc.Name, lc.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("location %q: %w", lc.Name, err)
	}
	return loc, nil
}

func createSegment(ctx context.Context, n *network.Network, sg SegmentConfig) error {
	mode, err := model.ParseMode(sg.Mode)
	if err != nil {
		return fmt.Errorf("%w: segment %q: %v", ErrInvalidScenario, sg.Name, err)
	}
	seg, err := n.NewSegment(ctx, sg.Name, mode)
	if err != nil {
		return fmt.Errorf("segment %q: %w", sg.Name, err)
	}
	if err := seg.SetSource(sg.Source); err != nil {
		return fmt.Errorf("segment %q source %q: %w", sg.Name, sg.Source, err)
	}
	if sg.Length > 0 {
		if err := seg.SetLength(model.Miles(sg.Length)); err != nil {
			return fmt.Errorf("segment %q: %w", sg.Name, err)
		}
	}
	if sg.Difficulty != 0 {
		d, err := model.NewDifficulty(sg.Difficulty)
		if err != nil {
			return fmt.Errorf("segment %q: %w", sg.Name, err)
		}
		if err := seg.SetDifficulty(d); err != nil {
			return fmt.Errorf("segment %q: %w", sg.Name, err)
		}
	}
	if sg.Vehicles != 0 {
		if err := seg.SetNumVehicles(model.VehicleCount(sg.Vehicles)); err != nil {
			return fmt.Errorf("segment %q: %w", sg.Name, err)
		}
	}
	if sg.Expedite {
		if err := n.SetExpediteSupport(ctx, sg.Name, model.ExpediteSupported); err != nil {
			return fmt.Errorf("segment %q: %w", sg.Name, err)
		}
	}
	return nil
}

func applyCustomer(ctx context.Context, n *network.Network, cc CustomerConfig) error {
	loc, err := n.Location(cc.Name)
	if err != nil {
		return fmt.Errorf("customer %q: %w", cc.Name, err)
	}
	c := loc.Customer()
	if c == nil {
		return fmt.Errorf("customer %q: %w", cc.Name, network.ErrNotCustomer)
	}
	if cc.ShipmentSize != 0 {
		if err := c.SetShipmentSize(ctx, model.PackageCount(cc.ShipmentSize)); err != nil {
			return fmt.Errorf("customer %q: %w", cc.Name, err)
		}
	}
	if cc.TransferRate != 0 {
		if err := c.SetTransferRate(ctx, model.ShipmentCount(cc.TransferRate)); err != nil {
			return fmt.Errorf("customer %q: %w", cc.Name, err)
		}
	}
	if cc.Destination != "" {
		dest, err := n.Location(cc.Destination)
		if err != nil {
			return fmt.Errorf("customer %q destination: %w", cc.Name, err)
		}
		if err := c.SetDestination(ctx, dest); err != nil {
			return err
		}
	}
	return nil
}
