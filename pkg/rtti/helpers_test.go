package rtti

import (
	"bytes"
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/garden-objstream/pkg/stream"
)

type vector3 struct {
	X float32 `objstream:"x"`
	Y float32 `objstream:"y"`
	Z float32 `objstream:"z"`
}

type node struct {
	ObjectBase
	Name     string  `objstream:"name"`
	Next     *node   `objstream:"next"`
	Children []*node `objstream:"children"`
	Any      Object  `objstream:"any"`
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	_, err := reg.RegisterClass("Vector3", vector3{})
	require.NoError(t, err)
	_, err = reg.RegisterClass("Node", (*node)(nil))
	require.NoError(t, err)
	return reg
}

func mustType(t *testing.T, reg *Registry, sample any) Type {
	t.Helper()
	typ, err := reg.TypeOf(reflect.TypeOf(sample))
	require.NoError(t, err)
	return typ
}

func collect(s *stream.Stream) []stream.Record {
	var out []stream.Record
	it := stream.NewIterator(s)
	for rec, ok := it.Next(); ok; rec, ok = it.Next() {
		out = append(out, rec)
	}
	return out
}

func ops(s *stream.Stream) []stream.Opcode {
	var out []stream.Opcode
	for _, rec := range collect(s) {
		out = append(out, rec.Op)
	}
	return out
}

// roundTrip 写入 v，按 protected 写出字节，再读回一个新值。
func roundTrip(t *testing.T, typ Type, v any, protected bool) reflect.Value {
	t.Helper()
	ctx := context.Background()
	s := stream.NewStream()
	defer s.Close()
	w := stream.NewWriter(s, nil)
	typ.WriteBinary(ctx, w, reflect.ValueOf(v), reflect.Value{})
	require.NoError(t, w.Finish())

	mapped := w.References().Freeze()
	var buf bytes.Buffer
	require.NoError(t, stream.WriteOpcodes(protected, s, mapped, &buf))

	out := reflect.New(reflect.TypeOf(v)).Elem()
	r := stream.NewReader(buf.Bytes(), mapped.Resolved(), protected)
	require.NoError(t, typ.ReadBinary(ctx, r, out))
	require.True(t, r.AtEnd())
	return out
}

// resolveAgainst 按名称把读取端引用表重新解析到 reg，模拟另一个进程加载文件。
func resolveAgainst(reg *Registry, src *stream.ResolvedReferences) *stream.ResolvedReferences {
	out := stream.NewResolvedReferences()
	out.Names = src.Names
	out.Objects = src.Objects
	out.Resources = src.Resources
	out.AsyncBuffers = src.AsyncBuffers
	for _, rt := range src.Types[1:] {
		entry := stream.ResolvedType{Name: rt.Name}
		if typ, ok := reg.FindType(string(rt.Name)); ok {
			entry.Type = typ
		}
		out.Types = append(out.Types, entry)
	}
	for _, rp := range src.Properties[1:] {
		entry := rp
		entry.Property = nil
		if c, ok := reg.FindClass(string(rp.Owner)); ok {
			if p := c.FindProperty(string(rp.Name)); p != nil {
				entry.Property = p
			}
		}
		out.Properties = append(out.Properties, entry)
	}
	return out
}
