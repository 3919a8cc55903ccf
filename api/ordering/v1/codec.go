package orderingv1

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/mem"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// CodecName совпадает со стандартным gRPC-кодеком, поэтому сервер понимает
// обычных protobuf-клиентов (grpcurl, сгенерированные стабы).
const CodecName = "proto"

const timestampName protoreflect.FullName = "google.protobuf.Timestamp"

// Codec кодирует структуры API в protobuf по схеме ordering.proto через
// dynamicpb. Настоящие proto.Message (health, reflection) идут через proto
// напрямую, поэтому кодек можно навесить на весь сервер.
type Codec struct{}

// ServerOption подключает Codec ко всем сервисам сервера.
func ServerOption() grpc.ServerOption {
	return grpc.ForceServerCodecV2(Codec{})
}

func (Codec) Name() string { return CodecName }

func (Codec) Marshal(v any) (mem.BufferSlice, error) {
	data, err := marshal(v)
	if err != nil {
		return nil, err
	}
	return mem.BufferSlice{mem.SliceBuffer(data)}, nil
}

func (Codec) Unmarshal(data mem.BufferSlice, v any) error {
	return unmarshal(data.Materialize(), v)
}

func marshal(v any) ([]byte, error) {
	if msg, ok := v.(proto.Message); ok {
		return proto.Marshal(msg)
	}
	md, rv, err := lookup(v)
	if err != nil {
		return nil, err
	}
	msg := dynamicpb.NewMessage(md)
	if err := fill(msg, rv); err != nil {
		return nil, err
	}
	return proto.Marshal(msg)
}

func unmarshal(data []byte, v any) error {
	if msg, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, msg)
	}
	md, rv, err := lookup(v)
	if err != nil {
		return err
	}
	msg := dynamicpb.NewMessage(md)
	if err := proto.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("unmarshal %s: %w", md.FullName(), err)
	}
	return read(msg, rv)
}

func lookup(v any) (protoreflect.MessageDescriptor, reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil, reflect.Value{}, fmt.Errorf("orderingv1 codec: expected non-nil pointer, got %T", v)
	}
	md, ok := MessageDescriptor(v)
	if !ok {
		return nil, reflect.Value{}, fmt.Errorf("orderingv1 codec: unsupported type %T", v)
	}
	return md, rv.Elem(), nil
}

// protoFieldName берёт имя поля схемы из json-тега структуры.
func protoFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	return name
}

func fieldDescriptor(md protoreflect.MessageDescriptor, field reflect.StructField) (protoreflect.FieldDescriptor, error) {
	fd := md.Fields().ByName(protoreflect.Name(protoFieldName(field)))
	if fd == nil {
		return nil, fmt.Errorf("orderingv1 codec: %s has no field for %s", md.FullName(), field.Name)
	}
	return fd, nil
}

// fill переносит значения структуры src в сообщение msg.
func fill(msg protoreflect.Message, src reflect.Value) error {
	md := msg.Descriptor()
	for i := 0; i < src.NumField(); i++ {
		fd, err := fieldDescriptor(md, src.Type().Field(i))
		if err != nil {
			return err
		}
		value := src.Field(i)

		if fd.IsList() {
			if value.Len() == 0 {
				continue
			}
			list := msg.Mutable(fd).List()
			for j := 0; j < value.Len(); j++ {
				item := value.Index(j)
				if item.Kind() == reflect.Pointer {
					if item.IsNil() {
						continue
					}
					item = item.Elem()
				}
				elem := list.NewElement()
				if err := fill(elem.Message(), item); err != nil {
					return err
				}
				list.Append(elem)
			}
			continue
		}

		switch fd.Kind() {
		case protoreflect.StringKind:
			msg.Set(fd, protoreflect.ValueOfString(value.String()))
		case protoreflect.Int64Kind:
			msg.Set(fd, protoreflect.ValueOfInt64(value.Int()))
		case protoreflect.Int32Kind:
			msg.Set(fd, protoreflect.ValueOfInt32(int32(value.Int())))
		case protoreflect.MessageKind:
			if fd.Message().FullName() == timestampName {
				ts, _ := value.Interface().(time.Time)
				if ts.IsZero() {
					continue
				}
				sub := msg.Mutable(fd).Message()
				sub.Set(sub.Descriptor().Fields().ByName("seconds"), protoreflect.ValueOfInt64(ts.Unix()))
				sub.Set(sub.Descriptor().Fields().ByName("nanos"), protoreflect.ValueOfInt32(int32(ts.Nanosecond())))
				continue
			}
			if value.Kind() == reflect.Pointer {
				if value.IsNil() {
					continue
				}
				value = value.Elem()
			}
			if err := fill(msg.Mutable(fd).Message(), value); err != nil {
				return err
			}
		default:
			return fmt.Errorf("orderingv1 codec: unsupported kind %s of %s", fd.Kind(), fd.FullName())
		}
	}
	return nil
}

// read переносит значения сообщения msg в структуру dst.
func read(msg protoreflect.Message, dst reflect.Value) error {
	md := msg.Descriptor()
	for i := 0; i < dst.NumField(); i++ {
		fd, err := fieldDescriptor(md, dst.Type().Field(i))
		if err != nil {
			return err
		}
		target := dst.Field(i)

		if fd.IsList() {
			list := msg.Get(fd).List()
			if list.Len() == 0 {
				continue
			}
			slice := reflect.MakeSlice(target.Type(), list.Len(), list.Len())
			for j := 0; j < list.Len(); j++ {
				if err := readMessage(list.Get(j).Message(), slice.Index(j)); err != nil {
					return err
				}
			}
			target.Set(slice)
			continue
		}

		switch fd.Kind() {
		case protoreflect.StringKind:
			target.SetString(msg.Get(fd).String())
		case protoreflect.Int64Kind, protoreflect.Int32Kind:
			target.SetInt(msg.Get(fd).Int())
		case protoreflect.MessageKind:
			if !msg.Has(fd) {
				continue
			}
			if err := readMessage(msg.Get(fd).Message(), target); err != nil {
				return err
			}
		default:
			return fmt.Errorf("orderingv1 codec: unsupported kind %s of %s", fd.Kind(), fd.FullName())
		}
	}
	return nil
}

func readMessage(msg protoreflect.Message, target reflect.Value) error {
	if msg.Descriptor().FullName() == timestampName {
		fields := msg.Descriptor().Fields()
		seconds := msg.Get(fields.ByName("seconds")).Int()
		nanos := msg.Get(fields.ByName("nanos")).Int()
		target.Set(reflect.ValueOf(time.Unix(seconds, nanos).UTC()))
		return nil
	}
	if target.Kind() == reflect.Pointer {
		ptr := reflect.New(target.Type().Elem())
		if err := read(msg, ptr.Elem()); err != nil {
			return err
		}
		target.Set(ptr)
		return nil
	}
	return read(msg, target)
}
