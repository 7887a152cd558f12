package pb

import (
	context "context"

	grpc "google.golang.org/grpc"
	codes "google.golang.org/grpc/codes"
	status "google.golang.org/grpc/status"
	emptypb "google.golang.org/protobuf/types/known/emptypb"
	structpb "google.golang.org/protobuf/types/known/structpb"
	wrapperspb "google.golang.org/protobuf/types/known/wrapperspb"
)

const _ = grpc.SupportPackageIsVersion9

const (
	HostAgent_CallPlugin_FullMethodName = "/torrentstore.v1.HostAgent/CallPlugin"
	HostAgent_CallXenAPI_FullMethodName = "/torrentstore.v1.HostAgent/CallXenAPI"
	HostAgent_HostRef_FullMethodName    = "/torrentstore.v1.HostAgent/HostRef"
)

type HostAgentClient interface {
	CallPlugin(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error)
	CallXenAPI(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error)
	HostRef(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
}

type hostAgentClient struct {
	cc grpc.ClientConnInterface
}

func NewHostAgentClient(cc grpc.ClientConnInterface) HostAgentClient {
	return &hostAgentClient{cc}
}

func (c *hostAgentClient) CallPlugin(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error) {
	cOpts := append([]grpc.CallOption{grpc.StaticMethod()}, opts...)
	out := new(structpb.Value)
	err := c.cc.Invoke(ctx, HostAgent_CallPlugin_FullMethodName, in, out, cOpts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *hostAgentClient) CallXenAPI(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Value, error) {
	cOpts := append([]grpc.CallOption{grpc.StaticMethod()}, opts...)
	out := new(structpb.Value)
	err := c.cc.Invoke(ctx, HostAgent_CallXenAPI_FullMethodName, in, out, cOpts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *hostAgentClient) HostRef(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	cOpts := append([]grpc.CallOption{grpc.StaticMethod()}, opts...)
	out := new(wrapperspb.StringValue)
	err := c.cc.Invoke(ctx, HostAgent_HostRef_FullMethodName, in, out, cOpts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type HostAgentServer interface {
	CallPlugin(context.Context, *structpb.Struct) (*structpb.Value, error)
	CallXenAPI(context.Context, *structpb.Struct) (*structpb.Value, error)
	HostRef(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	mustEmbedUnimplementedHostAgentServer()
}

type UnimplementedHostAgentServer struct{}

func (UnimplementedHostAgentServer) CallPlugin(context.Context, *structpb.Struct) (*structpb.Value, error) {
	return nil, status.Errorf(codes.Unimplemented, "method CallPlugin not implemented")
}
func (UnimplementedHostAgentServer) CallXenAPI(context.Context, *structpb.Struct) (*structpb.Value, error) {
	return nil, status.Errorf(codes.Unimplemented, "method CallXenAPI not implemented")
}
func (UnimplementedHostAgentServer) HostRef(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method HostRef not implemented")
}
func (UnimplementedHostAgentServer) mustEmbedUnimplementedHostAgentServer() {}
func (UnimplementedHostAgentServer) testEmbeddedByValue()                   {}

type UnsafeHostAgentServer interface {
	mustEmbedUnimplementedHostAgentServer()
}

func RegisterHostAgentServer(s grpc.ServiceRegistrar, srv HostAgentServer) {
	if t, ok := srv.(interface{ testEmbeddedByValue() }); ok {
		t.testEmbeddedByValue()
	}
	s.RegisterService(&HostAgent_ServiceDesc, srv)
}

func _HostAgent_CallPlugin_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HostAgentServer).CallPlugin(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: HostAgent_CallPlugin_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(HostAgentServer).CallPlugin(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _HostAgent_CallXenAPI_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HostAgentServer).CallXenAPI(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: HostAgent_CallXenAPI_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(HostAgentServer).CallXenAPI(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _HostAgent_HostRef_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HostAgentServer).HostRef(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: HostAgent_HostRef_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(HostAgentServer).HostRef(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var HostAgent_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "torrentstore.v1.HostAgent",
	HandlerType: (*HostAgentServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CallPlugin",
			Handler:    _HostAgent_CallPlugin_Handler,
		},
		{
			MethodName: "CallXenAPI",
			Handler:    _HostAgent_CallXenAPI_Handler,
		},
		{
			MethodName: "HostRef",
			Handler:    _HostAgent_HostRef_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "v1/hostagent.proto",
}
