package rtti

import (
	"bytes"
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/garden-objstream/pkg/stream"
	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

func TestObjectHandles(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	a, err := reg.New("Node")
	require.NoError(t, err)
	b, err := reg.New("Node")
	require.NoError(t, err)
	na, nb := a.(*node), b.(*node)
	na.Name = "a"
	na.Next = nb
	na.Children = []*node{nb, nil}
	na.Any = nb
	nb.SetParent(na)

	assert.Equal(t, "Node", na.Class().Name())
	assert.True(t, HasParent(nb, na))
	assert.False(t, HasParent(na, nb))
	assert.Equal(t, Object(na), ParentOf(nb))

	s := stream.NewStream()
	w := stream.NewWriter(s, nil)
	require.NoError(t, WriteObject(ctx, w, na))
	assert.Equal(t, 1, w.References().Objects.Len())
	assert.Equal(t, int32(3), nb.RefCount())

	mapped := w.References().Freeze()
	var buf bytes.Buffer
	require.NoError(t, stream.WriteOpcodes(true, s, mapped, &buf))

	out, err := reg.New("Node")
	require.NoError(t, err)
	r := stream.NewReader(buf.Bytes(), mapped.Resolved(), true)
	require.NoError(t, ReadObject(ctx, r, out))
	got := out.(*node)
	assert.Equal(t, "a", got.Name)
	assert.Same(t, nb, got.Next)
	assert.Equal(t, []*node{nb, nil}, got.Children)
	assert.Equal(t, Object(nb), got.Any)

	s.Close()
	assert.Zero(t, nb.RefCount())
}

func TestBindUsesDefaultRegistry(t *testing.T) {
	type bound struct {
		ObjectBase
		Value int32 `objstream:"value"`
	}
	obj := Bind(&bound{Value: 3})
	c, ok := Default().FindClass("bound")
	require.True(t, ok)
	assert.Equal(t, stream.Type(c), obj.Class())
	assert.True(t, c.IsObject())
}

type thingV1 struct {
	A      float32 `objstream:"a"`
	B      int32   `objstream:"b"`
	Gone   string  `objstream:"gone"`
	Legacy label   `objstream:"legacy"`
}

type label struct {
	N int32 `objstream:"n"`
}

type migrated struct {
	name     stream.StringID
	original Type
	value    any
}

type thingV2 struct {
	A     float64 `objstream:"a"`
	B     int32   `objstream:"b"`
	Extra string  `objstream:"extra"`

	migrated []migrated
}

func (t *thingV2) MigrateProperty(_ context.Context, name stream.StringID, original Type, value reflect.Value) bool {
	m := migrated{name: name, original: original}
	if value.IsValid() {
		m.value = value.Interface()
	}
	t.migrated = append(t.migrated, m)
	return name == "gone"
}

func writeThing(t *testing.T, protected bool) ([]byte, *stream.ResolvedReferences) {
	t.Helper()
	old := NewRegistry()
	_, err := old.RegisterClass("Thing", thingV1{})
	require.NoError(t, err)
	typ, _ := old.FindClass("Thing")

	s := stream.NewStream()
	defer s.Close()
	w := stream.NewWriter(s, nil)
	typ.WriteBinary(context.Background(), w, reflect.ValueOf(thingV1{A: 1.5, B: 7, Gone: "x", Legacy: label{N: 2}}), reflect.Value{})
	require.NoError(t, w.Finish())
	mapped := w.References().Freeze()
	var buf bytes.Buffer
	require.NoError(t, stream.WriteOpcodes(protected, s, mapped, &buf))
	return buf.Bytes(), mapped.Resolved()
}

func TestSchemaMigrationProtected(t *testing.T) {
	data, refs := writeThing(t, true)

	current := NewRegistry()
	_, err := current.RegisterClass("Thing", thingV2{})
	require.NoError(t, err)
	typ, _ := current.FindClass("Thing")

	var out thingV2
	out.Extra = "kept"
	r := stream.NewReader(data, resolveAgainst(current, refs), true)
	require.NoError(t, typ.ReadBinary(context.Background(), r, reflect.ValueOf(&out).Elem()))
	assert.True(t, r.AtEnd())

	assert.Equal(t, 1.5, out.A)
	assert.Equal(t, int32(7), out.B)
	assert.Equal(t, "kept", out.Extra)

	require.Len(t, out.migrated, 2)
	assert.Equal(t, stream.StringID("gone"), out.migrated[0].name)
	strType, _ := current.FindType("string")
	assert.Equal(t, strType, out.migrated[0].original)
	assert.Equal(t, "x", out.migrated[0].value)
	// label 类型在当前注册表中不存在，值被整块丢弃。
	assert.Equal(t, stream.StringID("legacy"), out.migrated[1].name)
	assert.Nil(t, out.migrated[1].original)
	assert.Nil(t, out.migrated[1].value)
}

func TestSchemaMismatchUnprotected(t *testing.T) {
	data, refs := writeThing(t, false)

	current := NewRegistry()
	_, err := current.RegisterClass("Thing", thingV2{})
	require.NoError(t, err)
	typ, _ := current.FindClass("Thing")

	var out thingV2
	r := stream.NewReader(data, resolveAgainst(current, refs), false)
	err = typ.ReadBinary(context.Background(), r, reflect.ValueOf(&out).Elem())
	assert.ErrorIs(t, err, merr.ErrSchemaMismatch)
}

func TestHandleIncompatibleTarget(t *testing.T) {
	reg := newTestRegistry(t)
	type other struct {
		ObjectBase
	}
	handle := mustType(t, reg, (*node)(nil))
	target := Bind(&other{})

	refs := stream.NewResolvedReferences()
	refs.Objects = append(refs.Objects, target)
	r := stream.NewReader([]byte{1}, refs, false)
	var out *node
	require.NoError(t, handle.ReadBinary(context.Background(), r, reflect.ValueOf(&out).Elem()))
	assert.Nil(t, out)
}
