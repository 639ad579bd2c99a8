// Package rpc exposes the infill engine over gRPC. Messages are plain Go
// structs carried by a JSON codec registered under the "json" content-subtype,
// so the service needs no generated stubs.
package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "layeredinfill.v1.InfillService"

const (
	GenerateMethod     = "/" + ServiceName + "/Generate"
	ListPatternsMethod = "/" + ServiceName + "/ListPatterns"
)

// InfillServer is the server API for the infill service.
type InfillServer interface {
	Generate(context.Context, *GenerateRequest) (*GenerateResponse, error)
	ListPatterns(context.Context, *ListPatternsRequest) (*ListPatternsResponse, error)
}

// RegisterInfillServer registers srv on s.
func RegisterInfillServer(s grpc.ServiceRegistrar, srv InfillServer) {
	s.RegisterService(&InfillServiceDesc, srv)
}

// InfillServiceDesc describes the infill service for grpc.Server.
var InfillServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InfillServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Generate", Handler: generateHandler},
		{MethodName: "ListPatterns", Handler: listPatternsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "layeredinfill/v1/infill.json",
}

func generateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GenerateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InfillServer).Generate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GenerateMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(InfillServer).Generate(ctx, req.(*GenerateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listPatternsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListPatternsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InfillServer).ListPatterns(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListPatternsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(InfillServer).ListPatterns(ctx, req.(*ListPatternsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// InfillClient is the client API for the infill service.
type InfillClient struct {
	cc grpc.ClientConnInterface
}

// NewInfillClient wraps cc. Every call is sent with the JSON content-subtype.
func NewInfillClient(cc grpc.ClientConnInterface) *InfillClient {
	return &InfillClient{cc: cc}
}

// Generate requests the fill of one layer.
func (c *InfillClient) Generate(ctx context.Context, in *GenerateRequest, opts ...grpc.CallOption) (*GenerateResponse, error) {
	out := new(GenerateResponse)
	if err := c.cc.Invoke(ctx, GenerateMethod, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPatterns lists the registered patterns.
func (c *InfillClient) ListPatterns(ctx context.Context, in *ListPatternsRequest, opts ...grpc.CallOption) (*ListPatternsResponse, error) {
	out := new(ListPatternsResponse)
	if err := c.cc.Invoke(ctx, ListPatternsMethod, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}
