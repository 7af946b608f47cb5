package network

import (
	"fmt"

	"github.com/golang/geo/s2"

	"github.com/signalsfoundry/shipping-simulator/model"
)

// earthRadiusMiles is the mean Earth radius.
const earthRadiusMiles = 3958.8

// GreatCircleMiles returns the surface distance between two points given in
// degrees.
func GreatCircleMiles(lat1, lng1, lat2, lng2 float64) model.Miles {
	a := s2.LatLngFromDegrees(lat1, lng1)
	b := s2.LatLngFromDegrees(lat2, lng2)
	return model.Miles(a.Distance(b).Radians() * earthRadiusMiles)
}

// MeasureSegment sets a segment's length to the great-circle distance between
// its source and the location it leads to. Both ends need coordinates.
func (n *Network) MeasureSegment(name string) (model.Miles, error) {
	seg, err := n.Segment(name)
	if err != nil {
		return 0, err
	}
	from, to := seg.Source(), seg.Next()
	if from == nil || to == nil {
		return 0, fmt.Errorf("segment %q needs a source and a return pairing to be measured: %w", name, ErrInvalidAttribute)
	}
	lat1, lng1, ok1 := from.Coordinates()
	lat2, lng2, ok2 := to.Coordinates()
	if !ok1 || !ok2 {
		return 0, fmt.Errorf("segment %q endpoints lack coordinates: %w", name, ErrInvalidAttribute)
	}
	miles := GreatCircleMiles(lat1, lng1, lat2, lng2)
	if err := seg.SetLength(miles); err != nil {
		return 0, err
	}
	return miles, nil
}
