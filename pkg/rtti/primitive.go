package rtti

import (
	"context"
	"reflect"

	"github.com/lk2023060901/garden-objstream/pkg/stream"
	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

// numberType 是所有定宽数值类型共用的实现，按 Go 的 reflect.Kind 选择。
type numberType[T stream.Number] struct {
	name   string
	goType reflect.Type
}

func newNumberType[T stream.Number](name string) *numberType[T] {
	var zero T
	return &numberType[T]{name: name, goType: reflect.TypeOf(zero)}
}

func (t *numberType[T]) Name() string         { return t.name }
func (t *numberType[T]) Kind() Kind           { return KindPrimitive }
func (t *numberType[T]) GoType() reflect.Type { return t.goType }

func (t *numberType[T]) Equal(a, b reflect.Value) bool {
	return a.Equal(b)
}

func (t *numberType[T]) WriteBinary(_ context.Context, w *stream.Writer, data, _ reflect.Value) {
	stream.WriteTyped(w, data.Convert(t.goType).Interface().(T))
}

func (t *numberType[T]) ReadBinary(_ context.Context, r *stream.Reader, data reflect.Value) error {
	v := stream.ReadTyped[T](r)
	if err := r.Err(); err != nil {
		return err
	}
	data.Set(reflect.ValueOf(v).Convert(data.Type()))
	return nil
}

// boolType 以一个字节写入布尔值。
type boolType struct{}

func (boolType) Name() string         { return "bool" }
func (boolType) Kind() Kind           { return KindPrimitive }
func (boolType) GoType() reflect.Type { return reflect.TypeOf(false) }

func (boolType) Equal(a, b reflect.Value) bool {
	return a.Bool() == b.Bool()
}

func (boolType) WriteBinary(_ context.Context, w *stream.Writer, data, _ reflect.Value) {
	var v uint8
	if data.Bool() {
		v = 1
	}
	stream.WriteTyped(w, v)
}

func (boolType) ReadBinary(_ context.Context, r *stream.Reader, data reflect.Value) error {
	v := stream.ReadTyped[uint8](r)
	if err := r.Err(); err != nil {
		return err
	}
	data.SetBool(v != 0)
	return nil
}

// stringType 把字符串内容写成一条 DataRaw。
type stringType struct{}

func (stringType) Name() string         { return "string" }
func (stringType) Kind() Kind           { return KindString }
func (stringType) GoType() reflect.Type { return reflect.TypeOf("") }

func (stringType) Equal(a, b reflect.Value) bool {
	return a.String() == b.String()
}

func (stringType) WriteBinary(_ context.Context, w *stream.Writer, data, _ reflect.Value) {
	w.WriteData([]byte(data.String()))
}

func (stringType) ReadBinary(_ context.Context, r *stream.Reader, data reflect.Value) error {
	b := r.ReadDataView()
	if err := r.Err(); err != nil {
		return err
	}
	data.SetString(string(b))
	return nil
}

// nameType 把 stream.StringID 写成名称引用。
type nameType struct{}

func (nameType) Name() string         { return "StringID" }
func (nameType) Kind() Kind           { return KindName }
func (nameType) GoType() reflect.Type { return reflect.TypeOf(stream.StringID("")) }

func (nameType) Equal(a, b reflect.Value) bool {
	return a.String() == b.String()
}

func (nameType) WriteBinary(_ context.Context, w *stream.Writer, data, _ reflect.Value) {
	w.WriteStringID(stream.StringID(data.String()))
}

func (nameType) ReadBinary(_ context.Context, r *stream.Reader, data reflect.Value) error {
	id := r.ReadStringID()
	if err := r.Err(); err != nil {
		return err
	}
	data.SetString(string(id))
	return nil
}

var typeInterface = reflect.TypeOf((*Type)(nil)).Elem()

// typeRefType 把 Type 类型的值写成类型引用。
// 读取到当前进程不认识的类型时结果为 nil。
type typeRefType struct{}

func (typeRefType) Name() string         { return "Type" }
func (typeRefType) Kind() Kind           { return KindTypeRef }
func (typeRefType) GoType() reflect.Type { return typeInterface }

func (typeRefType) Equal(a, b reflect.Value) bool {
	return a.Interface() == b.Interface()
}

func (typeRefType) WriteBinary(_ context.Context, w *stream.Writer, data, _ reflect.Value) {
	if data.IsNil() {
		w.WriteType(nil)
		return
	}
	w.WriteType(data.Interface().(Type))
}

func (typeRefType) ReadBinary(_ context.Context, r *stream.Reader, data reflect.Value) error {
	rt := r.ReadType()
	if err := r.Err(); err != nil {
		return err
	}
	t, ok := rt.Type.(Type)
	if !ok {
		if !rt.Name.Empty() {
			return merr.WrapErrTypeNotFound(rt.Name, "type reference")
		}
		data.Set(reflect.Zero(data.Type()))
		return nil
	}
	data.Set(reflect.ValueOf(t))
	return nil
}

// builtinTypes 按 reflect.Kind 索引的内建类型，命名的数值类型按底层类型编码。
var builtinTypes = map[reflect.Kind]Type{
	reflect.Bool:    boolType{},
	reflect.Int8:    newNumberType[int8]("int8"),
	reflect.Int16:   newNumberType[int16]("int16"),
	reflect.Int32:   newNumberType[int32]("int32"),
	reflect.Int64:   newNumberType[int64]("int64"),
	reflect.Int:     newNumberType[int]("int"),
	reflect.Uint8:   newNumberType[uint8]("uint8"),
	reflect.Uint16:  newNumberType[uint16]("uint16"),
	reflect.Uint32:  newNumberType[uint32]("uint32"),
	reflect.Uint64:  newNumberType[uint64]("uint64"),
	reflect.Uint:    newNumberType[uint]("uint"),
	reflect.Float32: newNumberType[float32]("float32"),
	reflect.Float64: newNumberType[float64]("float64"),
	reflect.String:  stringType{},
}
