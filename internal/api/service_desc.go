package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ReconcilerServiceName is the fully qualified gRPC service name.
const ReconcilerServiceName = "kpirecon.v1.Reconciler"

const (
	reconcileKPIsMethod = "/" + ReconcilerServiceName + "/ReconcileKPIs"
	listKPIsMethod      = "/" + ReconcilerServiceName + "/ListKPIs"
)

// ReconcilerServer is the server API for the Reconciler service. Messages are
// google.protobuf.Struct documents shaped like the JSON report.
type ReconcilerServer interface {
	ReconcileKPIs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListKPIs(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedReconcilerServer can be embedded to satisfy ReconcilerServer.
type UnimplementedReconcilerServer struct{}

func (UnimplementedReconcilerServer) ReconcileKPIs(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ReconcileKPIs not implemented")
}

func (UnimplementedReconcilerServer) ListKPIs(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ListKPIs not implemented")
}

// RegisterReconcilerServer attaches srv to the gRPC registrar.
func RegisterReconcilerServer(s grpc.ServiceRegistrar, srv ReconcilerServer) {
	s.RegisterService(&ReconcilerServiceDesc, srv)
}

func reconcileKPIsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReconcilerServer).ReconcileKPIs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: reconcileKPIsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReconcilerServer).ReconcileKPIs(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listKPIsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReconcilerServer).ListKPIs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listKPIsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReconcilerServer).ListKPIs(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ReconcilerServiceDesc describes the Reconciler service for grpc.Server.
var ReconcilerServiceDesc = grpc.ServiceDesc{
	ServiceName: ReconcilerServiceName,
	HandlerType: (*ReconcilerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ReconcileKPIs", Handler: reconcileKPIsHandler},
		{MethodName: "ListKPIs", Handler: listKPIsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kpirecon/v1/reconciler.proto",
}

// ReconcilerClient calls the Reconciler service.
type ReconcilerClient struct {
	cc grpc.ClientConnInterface
}

// NewReconcilerClient wraps an established connection.
func NewReconcilerClient(cc grpc.ClientConnInterface) *ReconcilerClient {
	return &ReconcilerClient{cc: cc}
}

// ReconcileKPIs runs a reconciliation on the server.
func (c *ReconcilerClient) ReconcileKPIs(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, reconcileKPIsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListKPIs lists the KPI definitions visible to the caller.
func (c *ReconcilerClient) ListKPIs(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listKPIsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
