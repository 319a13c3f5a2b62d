package transport

import (
	"context"

	"google.golang.org/grpc"

	eventpb "github.com/basinrelay/flowgate/pkg/transport/proto"
)

// serviceName is the fully qualified gRPC service name, matching what
// protoc-gen-go-grpc would derive from a "flowgate.transport" package
// declaring "service EventService".
const serviceName = "flowgate.transport.EventService"

// EventServiceServer is implemented by anything that can accept pushed
// batches and answer health checks over the wire.
type EventServiceServer interface {
	PushEvents(context.Context, *eventpb.PushEventsRequest) (*eventpb.PushEventsResponse, error)
	HealthCheck(context.Context, *eventpb.HealthCheckRequest) (*eventpb.HealthCheckResponse, error)
}

// RegisterEventServiceServer wires srv into s the way generated code's
// RegisterXxxServer function does.
func RegisterEventServiceServer(s *grpc.Server, srv EventServiceServer) {
	s.RegisterService(&eventServiceDesc, srv)
}

var eventServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*EventServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PushEvents", Handler: pushEventsHandler},
		{MethodName: "HealthCheck", Handler: healthCheckHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pkg/transport/event_service.proto",
}

func pushEventsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(eventpb.PushEventsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventServiceServer).PushEvents(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/PushEvents"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EventServiceServer).PushEvents(ctx, req.(*eventpb.PushEventsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func healthCheckHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(eventpb.HealthCheckRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventServiceServer).HealthCheck(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/HealthCheck"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EventServiceServer).HealthCheck(ctx, req.(*eventpb.HealthCheckRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// EventServiceClient is the hand-written counterpart to what
// protoc-gen-go-grpc emits for a client stub.
type EventServiceClient interface {
	PushEvents(ctx context.Context, in *eventpb.PushEventsRequest, opts ...grpc.CallOption) (*eventpb.PushEventsResponse, error)
	HealthCheck(ctx context.Context, in *eventpb.HealthCheckRequest, opts ...grpc.CallOption) (*eventpb.HealthCheckResponse, error)
}

type eventServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewEventServiceClient wraps an established connection. Callers that
// want the codec and TLS setup this package defaults to should use
// Dial instead of constructing a *grpc.ClientConn by hand.
func NewEventServiceClient(cc grpc.ClientConnInterface) EventServiceClient {
	return &eventServiceClient{cc: cc}
}

func (c *eventServiceClient) PushEvents(ctx context.Context, in *eventpb.PushEventsRequest, opts ...grpc.CallOption) (*eventpb.PushEventsResponse, error) {
	out := new(eventpb.PushEventsResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/PushEvents", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *eventServiceClient) HealthCheck(ctx context.Context, in *eventpb.HealthCheckRequest, opts ...grpc.CallOption) (*eventpb.HealthCheckResponse, error) {
	out := new(eventpb.HealthCheckResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/HealthCheck", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
