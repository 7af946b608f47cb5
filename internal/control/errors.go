package control

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/shipping-simulator/internal/activity"
	"github.com/signalsfoundry/shipping-simulator/network"
)

// ErrInvalidRequest is returned for malformed request payloads.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps simulator errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, network.ErrLocationNotFound),
		errors.Is(err, network.ErrSegmentNotFound),
		errors.Is(err, network.ErrPathNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, network.ErrInvalidAttribute),
		errors.Is(err, network.ErrInvalidShipment),
		errors.Is(err, network.ErrNotCustomer),
		errors.Is(err, network.ErrModeMismatch),
		errors.Is(err, network.ErrSelfReturn):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, network.ErrLocationExists),
		errors.Is(err, network.ErrSegmentExists):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, network.ErrNoPathFinder),
		errors.Is(err, activity.ErrNoReactor),
		errors.Is(err, ErrNotStarted):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
