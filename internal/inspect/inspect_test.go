package inspect

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/garden-objstream/internal/json"
	"github.com/lk2023060901/garden-objstream/pkg/resource"
	"github.com/lk2023060901/garden-objstream/pkg/rtti"
	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

type note struct {
	rtti.ObjectBase
	Text string `objstream:"text"`
}

func saveNote(t *testing.T, protected bool) []byte {
	t.Helper()
	reg := rtti.NewRegistry()
	_, err := reg.RegisterClass("Note", (*note)(nil))
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = resource.SaveFile(context.Background(), &buf, []rtti.Object{&note{Text: "hi"}},
		resource.WithRegistry(reg), resource.WithProtected(protected))
	require.NoError(t, err)
	return buf.Bytes()
}

func opNames(exp Export) []string {
	var names []string
	for _, op := range exp.Opcodes {
		names = append(names, op.Name)
	}
	return names
}

func TestInspectProtected(t *testing.T) {
	rep, err := Inspect(saveNote(t, true))
	require.NoError(t, err)

	assert.Equal(t, "1.1.0", rep.Version)
	assert.True(t, rep.Protected)
	assert.Contains(t, rep.Types, "Note")
	require.Len(t, rep.Properties, 1)
	assert.Equal(t, Property{Class: "Note", Name: "text", Type: "string"}, rep.Properties[0])
	assert.Empty(t, rep.Imports)
	assert.Empty(t, rep.Buffers)

	require.Len(t, rep.Exports, 1)
	exp := rep.Exports[0]
	assert.Equal(t, 1, exp.Index)
	assert.Equal(t, "Note", exp.Class)
	assert.Len(t, exp.Checksum, 8)
	assert.Empty(t, exp.DecodeError)
	assert.Equal(t, []string{
		"Compound", "Property", "DataTypeRef", "SkipHeader", "DataRaw", "SkipLabel", "CompoundEnd",
	}, opNames(exp))
	assert.Equal(t, []byte("hi"), exp.Opcodes[4].Data)

	rep, err = Inspect(saveNote(t, true), WithOpcodes(false))
	require.NoError(t, err)
	assert.Empty(t, rep.Exports[0].Opcodes)
}

func TestInspectUnprotected(t *testing.T) {
	rep, err := Inspect(saveNote(t, false))
	require.NoError(t, err)
	assert.False(t, rep.Protected)
	require.Len(t, rep.Exports, 1)
	assert.Empty(t, rep.Exports[0].Opcodes)
}

func TestDump(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Dump(&out, saveNote(t, true)))
	assert.Contains(t, out.String(), "\n  \"version\"")

	var rep Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	require.Len(t, rep.Exports, 1)
	assert.Equal(t, "Note", rep.Exports[0].Class)
	assert.Len(t, rep.Exports[0].Opcodes, 7)

	err := Dump(&out, []byte("garbage!"))
	assert.ErrorIs(t, err, merr.ErrTablesInvalid)
}
