package tunerd

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name. Requests and
// responses are google.protobuf.Struct messages.
const ServiceName = "tuner.v1.TunerService"

const (
	methodStartRun = "/" + ServiceName + "/StartRun"
	methodGetRun   = "/" + ServiceName + "/GetRun"
	methodStopRun  = "/" + ServiceName + "/StopRun"
)

// TunerServiceServer is the server API for tuner.v1.TunerService
type TunerServiceServer interface {
	StartRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StopRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterTunerServiceServer registers srv on s
func RegisterTunerServiceServer(s grpc.ServiceRegistrar, srv TunerServiceServer) {
	s.RegisterService(&TunerServiceDesc, srv)
}

func unaryHandler(fullMethod string, call func(TunerServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TunerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TunerServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TunerServiceDesc describes tuner.v1.TunerService for grpc.Server
var TunerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TunerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "StartRun",
			Handler:    unaryHandler(methodStartRun, TunerServiceServer.StartRun),
		},
		{
			MethodName: "GetRun",
			Handler:    unaryHandler(methodGetRun, TunerServiceServer.GetRun),
		},
		{
			MethodName: "StopRun",
			Handler:    unaryHandler(methodStopRun, TunerServiceServer.StopRun),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tuner/v1/tuner.proto",
}

// TunerClient calls tuner.v1.TunerService
type TunerClient struct {
	cc grpc.ClientConnInterface
}

func NewTunerClient(cc grpc.ClientConnInterface) *TunerClient {
	return &TunerClient{cc: cc}
}

func (c *TunerClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TunerClient) StartRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodStartRun, in, opts...)
}

func (c *TunerClient) GetRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodGetRun, in, opts...)
}

func (c *TunerClient) StopRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodStopRun, in, opts...)
}
