package routing

import (
	"fmt"

	"github.com/signalsfoundry/shipping-simulator/network"
)

// FormatConnect renders a connect result as "<cost> <hours> <yes|no>; <path>".
func FormatConnect(p *network.Path) string {
	return fmt.Sprintf("%s %s %s; %s", p.Cost(), p.Hours(), p.Expedited(), p.String())
}

// FormatPaths renders explore results, one path per entry.
func FormatPaths(paths []*network.Path) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p.String()
	}
	return out
}

// FormatConnections renders connect results.
func FormatConnections(paths []*network.Path) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = FormatConnect(p)
	}
	return out
}
