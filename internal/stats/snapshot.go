package stats

import (
	"github.com/signalsfoundry/shipping-simulator/model"
	"github.com/signalsfoundry/shipping-simulator/network"
)

// ShipmentTotals are the global shipment counters.
type ShipmentTotals struct {
	Enroute   int `json:"enroute"`
	Delivered int `json:"delivered"`
	Dropped   int `json:"dropped"`
}

// CustomerLine summarises one customer.
type CustomerLine struct {
	Name           string              `json:"name"`
	Destination    string              `json:"destination,omitempty"`
	Received       model.ShipmentCount `json:"received"`
	AverageLatency model.Hours         `json:"average_latency"`
	TotalCost      model.Dollars       `json:"total_cost"`
}

// SegmentLine summarises one segment.
type SegmentLine struct {
	Name       string              `json:"name"`
	Mode       string              `json:"mode"`
	Load       model.PackageCount  `json:"load"`
	Capacity   model.PackageCount  `json:"capacity"`
	Received   model.ShipmentCount `json:"received"`
	ToldToWait model.ShipmentCount `json:"told_to_wait"`
	Refused    model.ShipmentCount `json:"refused"`
}

// Snapshot is a point-in-time copy of the statistics. It shares no memory
// with the live Statistics.
type Snapshot struct {
	Time             model.Time                `json:"time"`
	Customers        int                       `json:"customers"`
	Ports            int                       `json:"ports"`
	Terminals        map[string]int            `json:"terminals"`
	Segments         map[string]int            `json:"segments"`
	ExpeditedCount   int                       `json:"expedited_segments"`
	PercentExpedited float64                   `json:"percent_expedited"`
	Shipments        ShipmentTotals            `json:"shipments"`
	DropReasons      map[string]int            `json:"drop_reasons,omitempty"`
	Records          map[string]ShipmentRecord `json:"records,omitempty"`
	CustomerLines    []CustomerLine            `json:"customer_lines"`
	SegmentLines     []SegmentLine             `json:"segment_lines"`
	AvgReceived      float64                   `json:"avg_received"`
	AvgToldToWait    float64                   `json:"avg_told_to_wait"`
	AvgRefused       float64                   `json:"avg_refused"`
}

// Snapshot copies the counters and reads per-entity lines from the network.
// Callers must hold whatever lock serialises access to the network.
func (s *Statistics) Snapshot(now model.Time) Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		Time:             now,
		Customers:        s.customers,
		Ports:            s.ports,
		Terminals:        make(map[string]int, len(model.Modes)),
		Segments:         make(map[string]int, len(model.Modes)),
		ExpeditedCount:   s.expedited,
		PercentExpedited: s.percentExpeditedLocked(),
		Shipments:        ShipmentTotals{Enroute: s.enroute, Delivered: s.delivered, Dropped: s.dropped},
		DropReasons:      make(map[string]int, len(s.dropReasons)),
		Records:          make(map[string]ShipmentRecord, len(s.records)),
	}
	for _, mode := range model.Modes {
		snap.Terminals[mode.String()] = s.terminals[mode]
		snap.Segments[mode.String()] = s.segments[mode]
	}
	for reason, n := range s.dropReasons {
		snap.DropReasons[reason] = n
	}
	for name, rec := range s.records {
		snap.Records[name] = *rec
	}
	s.mu.RUnlock()

	for _, loc := range s.network.Customers() {
		c := loc.Customer()
		line := CustomerLine{
			Name:           c.Name(),
			Received:       c.Received(),
			AverageLatency: c.AverageLatency(),
			TotalCost:      c.TotalCost(),
		}
		if dest := c.Destination(); dest != nil {
			line.Destination = dest.Name()
		}
		snap.CustomerLines = append(snap.CustomerLines, line)
	}

	segs := s.network.Segments()
	var received, wait, refused int
	for _, seg := range segs {
		snap.SegmentLines = append(snap.SegmentLines, SegmentLine{
			Name:       seg.Name(),
			Mode:       seg.Mode().String(),
			Load:       seg.Load(),
			Capacity:   seg.Capacity(),
			Received:   seg.Received(),
			ToldToWait: seg.ToldToWait(),
			Refused:    seg.Refused(),
		})
		received += int(seg.Received())
		wait += int(seg.ToldToWait())
		refused += int(seg.Refused())
	}
	if n := len(segs); n > 0 {
		snap.AvgReceived = float64(received) / float64(n)
		snap.AvgToldToWait = float64(wait) / float64(n)
		snap.AvgRefused = float64(refused) / float64(n)
	}
	return snap
}

var _ network.Notifiee = (*Statistics)(nil)
