package rtti

import (
	"context"
	"reflect"

	"github.com/lk2023060901/garden-objstream/pkg/stream"
)

// Kind 是类型的元分类。
type Kind int

const (
	KindPrimitive Kind = iota
	KindString
	KindName
	KindTypeRef
	KindArray
	KindNativeArray
	KindClass
	KindHandle
	KindResourceRef
	KindInlineBuffer
	KindAsyncBuffer
)

var kindNames = [...]string{
	KindPrimitive:    "primitive",
	KindString:       "string",
	KindName:         "name",
	KindTypeRef:      "type",
	KindArray:        "array",
	KindNativeArray:  "native_array",
	KindClass:        "class",
	KindHandle:       "handle",
	KindResourceRef:  "resource_ref",
	KindInlineBuffer: "inline_buffer",
	KindAsyncBuffer:  "async_buffer",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// BinarySerializable 由能把自己的数据写成操作码的类型实现。
//
// data 与 def 是同一 Go 类型的值，def 无效表示没有默认值可比较。
// ReadBinary 的 data 必须可寻址。
type BinarySerializable interface {
	WriteBinary(ctx context.Context, w *stream.Writer, data, def reflect.Value)
	ReadBinary(ctx context.Context, r *stream.Reader, data reflect.Value) error
}

// Type 描述一个可序列化的类型。
type Type interface {
	stream.Type
	BinarySerializable

	Kind() Kind
	// GoType 返回读取时用于承载该类型数据的 Go 类型。
	GoType() reflect.Type
	// Equal 比较两个值，用于跳过与默认值相同的属性。
	Equal(a, b reflect.Value) bool
}

// New 返回 t 的一个可寻址零值。
func New(t Type) reflect.Value {
	return reflect.New(t.GoType()).Elem()
}
