package stream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

type testType struct{ name string }

func (t *testType) Name() string { return t.name }

type testProperty struct {
	name  string
	owner *testType
	typ   *testType
}

func (p *testProperty) Name() string { return p.name }
func (p *testProperty) Owner() Type  { return p.owner }
func (p *testProperty) Type() Type   { return p.typ }

type testObject struct {
	class  *testType
	parent *testObject
	refs   int
}

func (o *testObject) Class() Type { return o.class }

func (o *testObject) Parent() Object {
	if o.parent == nil {
		return nil
	}
	return o.parent
}

func (o *testObject) Retain()  { o.refs++ }
func (o *testObject) Release() { o.refs-- }

var (
	floatType  = &testType{name: "float"}
	stringType = &testType{name: "StringID"}
	vecType    = &testType{name: "Vector3"}
	meshType   = &testType{name: "Mesh"}
	texType    = &testType{name: "Texture"}

	propX    = &testProperty{name: "x", owner: vecType, typ: floatType}
	propName = &testProperty{name: "name", owner: vecType, typ: stringType}
)

// binarize 冻结引用并写出最终字节。
func binarize(t *testing.T, w *Writer, protected bool) ([]byte, *MappedReferences) {
	t.Helper()
	require.NoError(t, w.Finish())
	mapped := w.References().Freeze()
	var buf bytes.Buffer
	require.NoError(t, WriteOpcodes(protected, w.Stream(), mapped, &buf))
	return buf.Bytes(), mapped
}

func collect(it *Iterator) []Record {
	var out []Record
	for rec, ok := it.Next(); ok; rec, ok = it.Next() {
		out = append(out, rec)
	}
	return out
}
