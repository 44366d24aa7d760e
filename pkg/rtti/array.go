package rtti

import (
	"context"
	"reflect"

	"github.com/lk2023060901/garden-objstream/pkg/stream"
	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

// arrayType 是切片，写成 Array 块，元素不与默认值比较。
type arrayType struct {
	name   string
	goType reflect.Type
	elem   Type
}

func (t *arrayType) Name() string         { return t.name }
func (t *arrayType) Kind() Kind           { return KindArray }
func (t *arrayType) GoType() reflect.Type { return t.goType }
func (t *arrayType) Elem() Type           { return t.elem }

func (t *arrayType) Equal(a, b reflect.Value) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := 0; i < a.Len(); i++ {
		if !t.elem.Equal(a.Index(i), b.Index(i)) {
			return false
		}
	}
	return true
}

func (t *arrayType) WriteBinary(ctx context.Context, w *stream.Writer, data, _ reflect.Value) {
	n := data.Len()
	w.BeginArray(uint32(n))
	for i := 0; i < n; i++ {
		t.elem.WriteBinary(ctx, w, data.Index(i), reflect.Value{})
	}
	w.EndArray()
}

func (t *arrayType) ReadBinary(ctx context.Context, r *stream.Reader, data reflect.Value) error {
	n := r.EnterArray()
	if err := r.Err(); err != nil {
		return err
	}
	// 每个元素至少占一个字节。
	if uint64(n) > uint64(r.Remaining()) {
		return merr.WrapErrCountOutOfBounds(uint64(n), uint64(r.Remaining()))
	}
	out := reflect.MakeSlice(data.Type(), int(n), int(n))
	for i := 0; i < int(n); i++ {
		if err := t.elem.ReadBinary(ctx, r, out.Index(i)); err != nil {
			return err
		}
	}
	r.LeaveArray()
	if err := r.Err(); err != nil {
		return err
	}
	data.Set(out)
	return nil
}

// nativeArrayType 是定长数组。读取时元素个数不一致的部分被丢弃或保留零值。
type nativeArrayType struct {
	name   string
	goType reflect.Type
	elem   Type
}

func (t *nativeArrayType) Name() string         { return t.name }
func (t *nativeArrayType) Kind() Kind           { return KindNativeArray }
func (t *nativeArrayType) GoType() reflect.Type { return t.goType }
func (t *nativeArrayType) Elem() Type           { return t.elem }

func (t *nativeArrayType) Equal(a, b reflect.Value) bool {
	for i := 0; i < a.Len(); i++ {
		if !t.elem.Equal(a.Index(i), b.Index(i)) {
			return false
		}
	}
	return true
}

func (t *nativeArrayType) WriteBinary(ctx context.Context, w *stream.Writer, data, _ reflect.Value) {
	n := data.Len()
	w.BeginArray(uint32(n))
	for i := 0; i < n; i++ {
		t.elem.WriteBinary(ctx, w, data.Index(i), reflect.Value{})
	}
	w.EndArray()
}

func (t *nativeArrayType) ReadBinary(ctx context.Context, r *stream.Reader, data reflect.Value) error {
	n := int(r.EnterArray())
	if err := r.Err(); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		target := New(t.elem)
		if i < data.Len() {
			target = data.Index(i)
		}
		if err := t.elem.ReadBinary(ctx, r, target); err != nil {
			return err
		}
	}
	r.LeaveArray()
	return r.Err()
}
