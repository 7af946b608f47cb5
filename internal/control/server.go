package control

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/shipping-simulator/internal/logging"
	"github.com/signalsfoundry/shipping-simulator/internal/observability"
)

// NewServer builds a gRPC server with the control service registered and
// the standard interceptor chain: request id, metrics, tracing. collector may
// be nil.
func NewServer(svc SimulationControlServer, log logging.Logger, collector *observability.ControlCollector, opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(log),
			collector.UnaryServerInterceptor(),
			TracingUnaryServerInterceptor(),
		),
	}
	server := grpc.NewServer(append(base, opts...)...)
	RegisterSimulationControlServer(server, svc)
	return server
}
