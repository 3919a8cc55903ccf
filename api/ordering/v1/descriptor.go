package orderingv1

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// ProtoFile — путь схемы в реестре protobuf, совпадает с ordering.proto.
const ProtoFile = "ordering/v1/ordering.proto"

const protoPackage = "ordering.v1"

// File — дескриптор ordering.proto, собранный при инициализации пакета и
// зарегистрированный в protoregistry.GlobalFiles (его читает gRPC reflection).
var File protoreflect.FileDescriptor

// messageTypes сопоставляет Go-структуры API с сообщениями схемы.
var messageTypes = map[reflect.Type]protoreflect.MessageDescriptor{}

func init() {
	fd, err := protodesc.NewFile(fileDescriptorProto(), protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("orderingv1: build descriptor: %v", err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("orderingv1: register descriptor: %v", err))
	}
	File = fd

	for _, msg := range []any{
		RequestedProduct{}, CreateOrderRequest{}, CreateOrderResponse{},
		GetOrderRequest{}, GetOrderResponse{},
		ListOrdersRequest{}, ListOrdersResponse{},
		GetProductRequest{}, GetProductResponse{},
		Order{}, OrderItem{}, TimelineEvent{}, Product{},
	} {
		typ := reflect.TypeOf(msg)
		md := fd.Messages().ByName(protoreflect.Name(typ.Name()))
		if md == nil {
			panic(fmt.Sprintf("orderingv1: message %s is missing in %s", typ.Name(), ProtoFile))
		}
		messageTypes[typ] = md
	}
}

// MessageDescriptor возвращает дескриптор сообщения для структуры API.
func MessageDescriptor(msg any) (protoreflect.MessageDescriptor, bool) {
	typ := reflect.TypeOf(msg)
	if typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	md, ok := messageTypes[typ]
	return md, ok
}

func fileDescriptorProto() *descriptorpb.FileDescriptorProto {
	timestamp := "." + string((&timestamppb.Timestamp{}).ProtoReflect().Descriptor().FullName())

	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(ProtoFile),
		Package:    proto.String(protoPackage),
		Syntax:     proto.String("proto3"),
		Dependency: []string{timestamppb.File_google_protobuf_timestamp_proto.Path()},
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/vladislavdragonenkov/ordering/api/ordering/v1;orderingv1"),
		},
		MessageType: []*descriptorpb.DescriptorProto{
			message("RequestedProduct",
				scalar("product_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("quantity", 2, descriptorpb.FieldDescriptorProto_TYPE_INT64),
			),
			message("CreateOrderRequest",
				scalar("customer_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				repeated(nested("products", 2, localType("RequestedProduct"))),
			),
			message("CreateOrderResponse",
				nested("order", 1, localType("Order")),
			),
			message("GetOrderRequest",
				scalar("order_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			),
			message("GetOrderResponse",
				nested("order", 1, localType("Order")),
				repeated(nested("timeline", 2, localType("TimelineEvent"))),
			),
			message("ListOrdersRequest",
				scalar("customer_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("page_size", 2, descriptorpb.FieldDescriptorProto_TYPE_INT32),
			),
			message("ListOrdersResponse",
				repeated(nested("orders", 1, localType("Order"))),
			),
			message("GetProductRequest",
				scalar("product_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			),
			message("GetProductResponse",
				nested("product", 1, localType("Product")),
			),
			message("Order",
				scalar("id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("customer_id", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("status", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("currency", 4, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("amount", 5, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				repeated(nested("items", 6, localType("OrderItem"))),
				nested("created_at", 7, timestamp),
			),
			message("OrderItem",
				scalar("product_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("quantity", 2, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("unit_price", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			),
			message("TimelineEvent",
				scalar("type", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("reason", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				nested("occurred", 3, timestamp),
			),
			message("Product",
				scalar("id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("name", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("quantity", 3, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("price", 4, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("currency", 5, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("OrderService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("CreateOrder"),
				method("GetOrder"),
				method("ListOrders"),
				method("GetProduct"),
			},
		}},
	}
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func scalar(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func nested(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	field := scalar(name, number, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE)
	field.TypeName = proto.String(typeName)
	return field
}

func repeated(field *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	field.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return field
}

func localType(name string) string {
	return "." + protoPackage + "." + name
}

func method(name string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String(localType(name + "Request")),
		OutputType: proto.String(localType(name + "Response")),
	}
}
