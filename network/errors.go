package network

import "errors"

var (
	// ErrCapacityExceeded means a segment has no room for a shipment. Callers
	// are expected to retry later.
	ErrCapacityExceeded = errors.New("segment capacity exceeded")
	// ErrPathNotFound means no route connects a shipment's source and destination.
	ErrPathNotFound = errors.New("path not found")
	// ErrIndexOutOfRange means a location is not part of a path.
	ErrIndexOutOfRange = errors.New("location not on path")
	// ErrPathExhausted means a path has no segment after the given location.
	ErrPathExhausted = errors.New("path exhausted")

	ErrModeMismatch     = errors.New("transport mode mismatch")
	ErrSelfReturn       = errors.New("segment cannot return to itself")
	ErrLocationExists   = errors.New("location already exists")
	ErrSegmentExists    = errors.New("segment already exists")
	ErrLocationNotFound = errors.New("location not found")
	ErrSegmentNotFound  = errors.New("segment not found")
	ErrNotCustomer      = errors.New("location is not a customer")
	ErrInvalidShipment  = errors.New("invalid shipment")
	ErrInvalidAttribute = errors.New("invalid attribute value")
	ErrNoPathFinder     = errors.New("network has no path finder")
	ErrShipmentFinished = errors.New("shipment already delivered or dropped")
)
