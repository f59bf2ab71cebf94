package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Control service names.
const (
	ControlServiceName    = "storefrontsync.v1.Control"
	ControlDispatchMethod = "/storefrontsync.v1.Control/Dispatch"
)

// ControlServer is the server API for the Control service.
type ControlServer interface {
	Dispatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ControlServiceDesc, srv)
}

func controlDispatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Dispatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ControlDispatchMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).Dispatch(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ControlServiceDesc describes the Control service. Requests and responses are
// google.protobuf.Struct, so no generated stubs are needed.
var ControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ControlServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Dispatch", Handler: controlDispatchHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefrontsync/v1/control.proto",
}

// ControlClient is the client API for the Control service.
type ControlClient interface {
	Dispatch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type controlClient struct {
	cc grpc.ClientConnInterface
}

// NewControlClient wraps cc.
func NewControlClient(cc grpc.ClientConnInterface) ControlClient {
	return &controlClient{cc: cc}
}

func (c *controlClient) Dispatch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ControlDispatchMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
