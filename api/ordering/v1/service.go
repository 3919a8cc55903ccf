package orderingv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "ordering.v1.OrderService"

const (
	MethodCreateOrder = "/" + ServiceName + "/CreateOrder"
	MethodGetOrder    = "/" + ServiceName + "/GetOrder"
	MethodListOrders  = "/" + ServiceName + "/ListOrders"
	MethodGetProduct  = "/" + ServiceName + "/GetProduct"
)

// OrderServiceServer — серверная часть API.
type OrderServiceServer interface {
	CreateOrder(context.Context, *CreateOrderRequest) (*CreateOrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	GetProduct(context.Context, *GetProductRequest) (*GetProductResponse, error)
}

// UnimplementedOrderServiceServer отвечает Unimplemented на все методы.
type UnimplementedOrderServiceServer struct{}

func (UnimplementedOrderServiceServer) CreateOrder(context.Context, *CreateOrderRequest) (*CreateOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateOrder not implemented")
}

func (UnimplementedOrderServiceServer) GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetOrder not implemented")
}

func (UnimplementedOrderServiceServer) ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListOrders not implemented")
}

func (UnimplementedOrderServiceServer) GetProduct(context.Context, *GetProductRequest) (*GetProductResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetProduct not implemented")
}

// OrderService_ServiceDesc — дескриптор сервиса для grpc.Server.
var OrderService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateOrder",
			Handler: unaryHandler(MethodCreateOrder, func(s OrderServiceServer, ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
				return s.CreateOrder(ctx, req)
			}),
		},
		{
			MethodName: "GetOrder",
			Handler: unaryHandler(MethodGetOrder, func(s OrderServiceServer, ctx context.Context, req *GetOrderRequest) (*GetOrderResponse, error) {
				return s.GetOrder(ctx, req)
			}),
		},
		{
			MethodName: "ListOrders",
			Handler: unaryHandler(MethodListOrders, func(s OrderServiceServer, ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
				return s.ListOrders(ctx, req)
			}),
		},
		{
			MethodName: "GetProduct",
			Handler: unaryHandler(MethodGetProduct, func(s OrderServiceServer, ctx context.Context, req *GetProductRequest) (*GetProductResponse, error) {
				return s.GetProduct(ctx, req)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: ProtoFile,
}

// RegisterOrderServiceServer регистрирует реализацию на сервере.
func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderService_ServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](
	fullMethod string,
	call func(OrderServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// OrderServiceClient — клиент API. Все вызовы кодируются через Codec.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewOrderServiceClient создаёт клиент поверх соединения.
func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func (c *OrderServiceClient) CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*CreateOrderResponse, error) {
	out := new(CreateOrderResponse)
	if err := c.cc.Invoke(ctx, MethodCreateOrder, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	out := new(GetOrderResponse)
	if err := c.cc.Invoke(ctx, MethodGetOrder, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	out := new(ListOrdersResponse)
	if err := c.cc.Invoke(ctx, MethodListOrders, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) GetProduct(ctx context.Context, in *GetProductRequest, opts ...grpc.CallOption) (*GetProductResponse, error) {
	out := new(GetProductResponse)
	if err := c.cc.Invoke(ctx, MethodGetProduct, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.ForceCodecV2(Codec{})}, opts...)
}
