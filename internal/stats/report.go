package stats

import (
	"bufio"
	"fmt"
	"io"

	"github.com/signalsfoundry/shipping-simulator/model"
)

// WriteReport renders snap as the human-readable simulation report.
func WriteReport(w io.Writer, snap Snapshot) error {
	bw := bufio.NewWriter(w)
	p := func(format string, args ...any) { fmt.Fprintf(bw, format, args...) }

	p("===== Simulation Results (t=%s) =====\n", snap.Time)
	p(" --- Locations --- \n")
	p("# Customers.......: %d\n", snap.Customers)
	p("# Ports...........: %d\n", snap.Ports)
	for _, mode := range model.Modes {
		p("# %-15s: %d\n", title(mode)+" terminals", snap.Terminals[mode.String()])
	}
	p("\n --- Segments --- \n")
	for _, mode := range model.Modes {
		p("# %-15s: %d\n", title(mode)+" segments", snap.Segments[mode.String()])
	}
	p("# Expedited......: %d (%.2f%%)\n", snap.ExpeditedCount, snap.PercentExpedited)

	p("\n --- Shipments --- \n")
	p("# Shipments enroute   : %d\n", snap.Shipments.Enroute)
	p("# Shipments delivered : %d\n", snap.Shipments.Delivered)
	p("# Shipments dropped   : %d\n", snap.Shipments.Dropped)
	for _, reason := range sortedKeys(snap.DropReasons) {
		p("#   %s: %d\n", reason, snap.DropReasons[reason])
	}

	p("\n --- Shipment Averages --- \n")
	p("AvgReceived=%.2f AvgToldToWait=%.2f AvgRefused=%.2f\n", snap.AvgReceived, snap.AvgToldToWait, snap.AvgRefused)

	p("\n --- Customers --- \n")
	for _, c := range snap.CustomerLines {
		p("'%s'->'%s' : Received=%d avgLatency=%s totalCost=%s\n", c.Name, c.Destination, c.Received, c.AverageLatency, c.TotalCost)
	}

	p("\n --- Segments --- \n")
	for _, s := range snap.SegmentLines {
		p("%s : Received=%d ToldToWait=%d Refused=%d\n", s.Name, s.Received, s.ToldToWait, s.Refused)
	}
	return bw.Flush()
}

func title(m model.Mode) string {
	s := m.String()
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
