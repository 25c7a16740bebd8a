package ipc

import (
	"context"

	"google.golang.org/grpc"
)

// RootServer is implemented by Server and dispatched to through the
// hand-written ServiceDesc below, standing in for what protoc would
// otherwise generate from a .proto root-object service definition (§6).
type RootServer interface {
	Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error)
	Deployments(ctx context.Context, req *DeploymentsRequest) (*DeploymentsResponse, error)
	RegisterClient(ctx context.Context, req *RegisterClientRequest) (*RegisterClientResponse, error)
	UnregisterClient(ctx context.Context, req *UnregisterClientRequest) (*UnregisterClientResponse, error)
	InvokeMethod(ctx context.Context, req *MethodRequest) (*MethodResponse, error)
	Diff(ctx context.Context, req *DiffRequest) (*DiffResponse, error)
}

const serviceName = "rpmostreed.Root"

// RegisterRootServer attaches srv to s under the hand-written ServiceDesc.
func RegisterRootServer(s *grpc.Server, srv RootServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc plays the role of the protoc-generated _ServiceDesc: it
// binds method names to decode-call-respond handlers so grpc.Server can
// dispatch without any generated stub code.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RootServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: statusHandler},
		{MethodName: "Deployments", Handler: deploymentsHandler},
		{MethodName: "RegisterClient", Handler: registerClientHandler},
		{MethodName: "UnregisterClient", Handler: unregisterClientHandler},
		{MethodName: "InvokeMethod", Handler: invokeMethodHandler},
		{MethodName: "Diff", Handler: diffHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/ipc/service.go",
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RootServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Status"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RootServer).Status(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func deploymentsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DeploymentsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RootServer).Deployments(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Deployments"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RootServer).Deployments(ctx, req.(*DeploymentsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func registerClientHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RegisterClientRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RootServer).RegisterClient(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/RegisterClient"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RootServer).RegisterClient(ctx, req.(*RegisterClientRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func unregisterClientHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UnregisterClientRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RootServer).UnregisterClient(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/UnregisterClient"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RootServer).UnregisterClient(ctx, req.(*UnregisterClientRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func invokeMethodHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(MethodRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RootServer).InvokeMethod(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/InvokeMethod"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RootServer).InvokeMethod(ctx, req.(*MethodRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func diffHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DiffRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RootServer).Diff(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Diff"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RootServer).Diff(ctx, req.(*DiffRequest))
	}
	return interceptor(ctx, in, info, handler)
}
