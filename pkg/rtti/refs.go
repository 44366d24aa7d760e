package rtti

import (
	"bytes"
	"context"
	"reflect"

	"github.com/lk2023060901/garden-objstream/pkg/stream"
	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

// ResourceRef 是对外部资源文件的同步引用，加载时资源会先于引用方加载。
type ResourceRef struct {
	Path  string
	Class Type
	// Loaded 是加载器解析出的资源对象，未加载时为 nil。
	Loaded Object
}

func (ref ResourceRef) Empty() bool {
	return ref.Path == "" || ref.Class == nil
}

// AsyncResourceRef 只记录资源路径，由使用方按需加载。
type AsyncResourceRef struct {
	Path  string
	Class Type
}

func (ref AsyncResourceRef) Empty() bool {
	return ref.Path == "" || ref.Class == nil
}

type resourceRefType struct {
	async bool
}

func (t resourceRefType) Name() string {
	if t.async {
		return "AsyncResourceRef"
	}
	return "ResourceRef"
}

func (t resourceRefType) Kind() Kind { return KindResourceRef }

func (t resourceRefType) GoType() reflect.Type {
	if t.async {
		return reflect.TypeOf(AsyncResourceRef{})
	}
	return reflect.TypeOf(ResourceRef{})
}

func (t resourceRefType) Equal(a, b reflect.Value) bool {
	return a.FieldByName("Path").String() == b.FieldByName("Path").String() &&
		a.FieldByName("Class").Interface() == b.FieldByName("Class").Interface()
}

func (t resourceRefType) WriteBinary(_ context.Context, w *stream.Writer, data, _ reflect.Value) {
	path := data.FieldByName("Path").String()
	var class stream.Type
	if c := data.FieldByName("Class"); !c.IsNil() {
		class = c.Interface().(Type)
	}
	w.WriteResourceReference(path, class, t.async)
}

func (t resourceRefType) ReadBinary(_ context.Context, r *stream.Reader, data reflect.Value) error {
	res := r.ReadResource()
	if err := r.Err(); err != nil {
		return err
	}
	var class Type
	if res.Key.Class != nil {
		c, ok := res.Key.Class.(Type)
		if !ok {
			return merr.WrapErrUnsupportedDataType(res.Key.Class.Name(), "resource class")
		}
		class = c
	}
	if t.async {
		data.Set(reflect.ValueOf(AsyncResourceRef{Path: res.Key.Path, Class: class}))
		return nil
	}
	ref := ResourceRef{Path: res.Key.Path, Class: class}
	if loaded, ok := res.Loaded.(Object); ok {
		ref.Loaded = loaded
	}
	data.Set(reflect.ValueOf(ref))
	return nil
}

const (
	bufferEmpty  uint8 = 0
	bufferInline uint8 = 1
)

// inlineBufferType 把 []byte 写成一字节标记加一条内联缓冲区记录。
type inlineBufferType struct{}

func (inlineBufferType) Name() string         { return "Buffer" }
func (inlineBufferType) Kind() Kind           { return KindInlineBuffer }
func (inlineBufferType) GoType() reflect.Type { return reflect.TypeOf([]byte(nil)) }

func (inlineBufferType) Equal(a, b reflect.Value) bool {
	return bytes.Equal(a.Bytes(), b.Bytes())
}

func (inlineBufferType) WriteBinary(_ context.Context, w *stream.Writer, data, _ reflect.Value) {
	if data.Len() == 0 {
		stream.WriteTyped(w, bufferEmpty)
		return
	}
	stream.WriteTyped(w, bufferInline)
	w.WriteInlineBuffer(data.Bytes())
}

func (inlineBufferType) ReadBinary(_ context.Context, r *stream.Reader, data reflect.Value) error {
	flag := stream.ReadTyped[uint8](r)
	var buf []byte
	switch flag {
	case bufferEmpty:
	case bufferInline:
		buf = r.ReadInlineBuffer()
	default:
		return merr.WrapErrSchemaMismatch("buffer", "unknown buffer flag")
	}
	if err := r.Err(); err != nil {
		return err
	}
	data.SetBytes(buf)
	return nil
}

// asyncBufferType 把 *stream.AsyncBuffer 写成异步缓冲区引用，数据单独存放。
type asyncBufferType struct{}

func (asyncBufferType) Name() string         { return "AsyncBuffer" }
func (asyncBufferType) Kind() Kind           { return KindAsyncBuffer }
func (asyncBufferType) GoType() reflect.Type { return reflect.TypeOf((*stream.AsyncBuffer)(nil)) }

func (asyncBufferType) Equal(a, b reflect.Value) bool {
	return a.Pointer() == b.Pointer()
}

func (asyncBufferType) WriteBinary(_ context.Context, w *stream.Writer, data, _ reflect.Value) {
	w.WriteAsyncBuffer(data.Interface().(*stream.AsyncBuffer))
}

func (asyncBufferType) ReadBinary(_ context.Context, r *stream.Reader, data reflect.Value) error {
	buf := r.ReadAsyncBuffer()
	if err := r.Err(); err != nil {
		return err
	}
	data.Set(reflect.ValueOf(buf))
	return nil
}
