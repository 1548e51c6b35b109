package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name of the deployer API
const ServiceName = "hsu.deployer.DeployerService"

const (
	statusMethod           = "/" + ServiceName + "/Status"
	listApplicationsMethod = "/" + ServiceName + "/ListApplications"
	checkMethod            = "/" + ServiceName + "/Check"
	reloadMethod           = "/" + ServiceName + "/Reload"
	undeployMethod         = "/" + ServiceName + "/Undeploy"
)

// DeployerServiceServer is the server API of the deployer service. Messages
// are protobuf well-known types: application names travel as StringValue and
// application lists as a Struct holding an "applications" list.
type DeployerServiceServer interface {
	Status(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	ListApplications(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Check(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Reload(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Undeploy(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

// DeployerServiceClient is the client API of the deployer service
type DeployerServiceClient interface {
	Status(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	ListApplications(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	Check(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Reload(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Undeploy(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type deployerServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewDeployerServiceClient(cc grpc.ClientConnInterface) DeployerServiceClient {
	return &deployerServiceClient{cc: cc}
}

func (c *deployerServiceClient) Status(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, statusMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *deployerServiceClient) ListApplications(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listApplicationsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *deployerServiceClient) Check(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return c.invokeName(ctx, checkMethod, in, opts...)
}

func (c *deployerServiceClient) Reload(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return c.invokeName(ctx, reloadMethod, in, opts...)
}

func (c *deployerServiceClient) Undeploy(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return c.invokeName(ctx, undeployMethod, in, opts...)
}

func (c *deployerServiceClient) invokeName(ctx context.Context, method string, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func RegisterDeployerServiceServer(s grpc.ServiceRegistrar, srv DeployerServiceServer) {
	s.RegisterService(&deployerServiceDesc, srv)
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DeployerServiceServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: statusMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DeployerServiceServer).Status(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func listApplicationsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DeployerServiceServer).ListApplications(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listApplicationsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DeployerServiceServer).ListApplications(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

type nameCall func(DeployerServiceServer, context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)

// nameHandler builds the method handler of a call taking an application name
func nameHandler(method string, call nameCall) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(wrapperspb.StringValue)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DeployerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(DeployerServiceServer), ctx, req.(*wrapperspb.StringValue))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var deployerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DeployerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: statusHandler},
		{MethodName: "ListApplications", Handler: listApplicationsHandler},
		{MethodName: "Check", Handler: nameHandler(checkMethod, DeployerServiceServer.Check)},
		{MethodName: "Reload", Handler: nameHandler(reloadMethod, DeployerServiceServer.Reload)},
		{MethodName: "Undeploy", Handler: nameHandler(undeployMethod, DeployerServiceServer.Undeploy)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hsu/deployer/deployer.proto",
}
