package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "shipping.v1.SimulationControl"

// Full method names.
const (
	AdvanceMethod = "/" + ServiceName + "/Advance"
	StatsMethod   = "/" + ServiceName + "/Stats"
	ConnectMethod = "/" + ServiceName + "/Connect"
	ExploreMethod = "/" + ServiceName + "/Explore"
	RoutesMethod  = "/" + ServiceName + "/Routes"
)

// SimulationControlServer is the server API for the control service. Every
// request and response is a google.protobuf.Struct.
type SimulationControlServer interface {
	Advance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Stats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Connect(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Explore(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Routes(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterSimulationControlServer registers srv on s.
func RegisterSimulationControlServer(s grpc.ServiceRegistrar, srv SimulationControlServer) {
	s.RegisterService(&serviceDesc, srv)
}

type unaryCall func(SimulationControlServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(SimulationControlServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SimulationControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Advance", Handler: unaryHandler(AdvanceMethod, SimulationControlServer.Advance)},
		{MethodName: "Stats", Handler: unaryHandler(StatsMethod, SimulationControlServer.Stats)},
		{MethodName: "Connect", Handler: unaryHandler(ConnectMethod, SimulationControlServer.Connect)},
		{MethodName: "Explore", Handler: unaryHandler(ExploreMethod, SimulationControlServer.Explore)},
		{MethodName: "Routes", Handler: unaryHandler(RoutesMethod, SimulationControlServer.Routes)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shipping/v1/control.proto",
}
