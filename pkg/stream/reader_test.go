package stream

import (
	"bytes"
	"hash/crc32"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

type RoundTripSuite struct {
	suite.Suite
	protected bool

	obj *testObject
	buf *AsyncBuffer
}

func (s *RoundTripSuite) SetupTest() {
	s.obj = &testObject{class: meshType}
	s.buf = NewAsyncBuffer([]byte("async payload"))
}

func (s *RoundTripSuite) write(w *Writer) {
	w.BeginCompound(vecType)
	w.WriteProperty(propX)
	w.WriteType(floatType)
	w.BeginSkipBlock()
	WriteTyped(w, float32(1.5))
	w.EndSkipBlock()
	w.WriteProperty(propName)
	w.WriteType(stringType)
	w.BeginSkipBlock()
	w.WriteStringID("hello")
	w.EndSkipBlock()
	w.EndCompound()

	w.BeginArray(2)
	w.WritePointer(s.obj)
	w.WritePointer(nil)
	w.EndArray()

	w.WriteResourceReference("/meshes/box.mesh", meshType, false)
	w.WriteResourceReference("/textures/wood.tex", texType, true)
	w.WriteInlineBuffer([]byte{1, 2, 3})
	w.WriteAsyncBuffer(s.buf)
	w.WriteData([]byte("raw"))
	WriteTyped(w, int64(-7))
}

func (s *RoundTripSuite) TestRoundTrip() {
	st := NewStream(WithPageSize(32))
	defer st.Close()
	w := NewWriter(st, nil)
	s.write(w)

	data, mapped := binarize(s.T(), w, s.protected)
	r := NewReader(data, mapped.Resolved(), s.protected)

	s.Equal(uint32(2), r.EnterCompound())
	p := r.ReadProperty()
	s.Equal(Property(propX), p.Property)
	s.Equal(StringID("x"), p.Name)
	s.Equal(StringID("Vector3"), p.Owner)
	s.Equal(Type(floatType), r.ReadType().Type)
	r.EnterSkipBlock()
	s.Equal(float32(1.5), ReadTyped[float32](r))
	r.LeaveSkipBlock()
	s.Equal(Property(propName), r.ReadProperty().Property)
	rt := r.ReadType()
	s.Equal(StringID("StringID"), rt.Name)
	r.EnterSkipBlock()
	s.Equal(StringID("hello"), r.ReadStringID())
	r.LeaveSkipBlock()
	r.LeaveCompound()

	s.Equal(uint32(2), r.EnterArray())
	s.Equal(Object(s.obj), r.ReadPointer())
	s.Nil(r.ReadPointer())
	r.LeaveArray()

	res := r.ReadResource()
	s.Equal("/meshes/box.mesh", res.Key.Path)
	s.Equal(Type(meshType), res.Key.Class)
	s.False(res.Async)
	res = r.ReadResource()
	s.Equal("/textures/wood.tex", res.Key.Path)
	s.True(res.Async)

	s.Equal([]byte{1, 2, 3}, r.ReadInlineBuffer())
	async := r.ReadAsyncBuffer()
	s.Same(s.buf, async)
	s.Equal(crc32.ChecksumIEEE([]byte("async payload")), async.Checksum())
	s.Equal([]byte("raw"), r.ReadDataView())
	s.Equal(int64(-7), ReadTyped[int64](r))

	s.NoError(r.Err())
	s.True(r.AtEnd())
}

func (s *RoundTripSuite) TestMappingIsIdempotent() {
	st := NewStream()
	defer st.Close()
	w := NewWriter(st, nil)
	s.write(w)

	first, m1 := binarize(s.T(), w, s.protected)
	second, m2 := binarize(s.T(), w, s.protected)
	s.Equal(first, second)
	s.Equal(m1.Names, m2.Names)
	s.Equal(m1.AsyncResources, m2.AsyncResources)
	s.Equal(uint32(2), m1.AsyncResources[ResourceKey{Path: "/textures/wood.tex", Class: texType}])
}

func TestRoundTripUnprotected(t *testing.T) {
	suite.Run(t, &RoundTripSuite{protected: false})
}

func TestRoundTripProtected(t *testing.T) {
	suite.Run(t, &RoundTripSuite{protected: true})
}

func writeSkipFixture(t *testing.T, protected bool) []byte {
	s := NewStream()
	defer s.Close()
	w := NewWriter(s, nil)
	w.BeginSkipBlock()
	w.WriteData([]byte("unknown"))
	w.BeginSkipBlock()
	w.WriteStringID("nested")
	w.BeginArray(1)
	WriteTyped(w, uint8(1))
	w.EndArray()
	w.EndSkipBlock()
	w.WriteInlineBuffer([]byte{9, 9})
	w.BeginCompound(vecType)
	w.EndCompound()
	w.EndSkipBlock()
	WriteTyped(w, uint32(99))
	data, _ := binarize(t, w, protected)
	return data
}

func TestDiscardSkipBlock(t *testing.T) {
	data := writeSkipFixture(t, true)
	r := NewReader(data, nil, true)
	r.EnterSkipBlock()
	require.NoError(t, r.DiscardSkipBlock())
	assert.Equal(t, uint32(99), ReadTyped[uint32](r))
	assert.True(t, r.AtEnd())
	assert.NoError(t, r.Err())
}

func TestDiscardSkipBlockUnprotected(t *testing.T) {
	data := writeSkipFixture(t, false)
	r := NewReader(data, nil, false)
	r.EnterSkipBlock()
	assert.ErrorIs(t, r.DiscardSkipBlock(), merr.ErrSkipUnsupported)
}

func TestDiscardSkipBlockTruncated(t *testing.T) {
	data := writeSkipFixture(t, true)
	r := NewReader(data[:len(data)-8], nil, true)
	r.EnterSkipBlock()
	assert.ErrorIs(t, r.DiscardSkipBlock(), merr.ErrStreamTruncated)
}

func TestSizeMismatch(t *testing.T) {
	s := NewStream()
	defer s.Close()
	w := NewWriter(s, nil)
	WriteTyped(w, uint32(0x01020304))
	WriteTyped(w, uint8(5))

	protected, _ := binarize(t, w, true)
	r := NewReader(protected, nil, true)
	assert.Zero(t, ReadTyped[uint16](r))
	assert.ErrorIs(t, r.Err(), merr.ErrSizeMismatch)
	// 错误是粘滞的。
	assert.Zero(t, ReadTyped[uint8](r))
	assert.ErrorIs(t, r.Err(), merr.ErrSizeMismatch)

	unprotected, _ := binarize(t, w, false)
	r = NewReader(unprotected, nil, false)
	assert.Equal(t, uint16(0x0304), ReadTyped[uint16](r))
	assert.Equal(t, uint8(5), ReadTyped[uint8](r))
	assert.NoError(t, r.Err())
	assert.True(t, r.AtEnd())
}

func TestReaderErrors(t *testing.T) {
	s := NewStream()
	defer s.Close()
	w := NewWriter(s, nil)
	w.WriteStringID("TEST")
	data, mapped := binarize(t, w, true)

	r := NewReader(data, mapped.Resolved(), true)
	assert.True(t, r.ReadType().Empty())
	assert.ErrorIs(t, r.Err(), merr.ErrTagMismatch)

	r = NewReader(data, nil, true)
	assert.Equal(t, StringID(""), r.ReadStringID())
	assert.ErrorIs(t, r.Err(), merr.ErrInvalidReference)

	r = NewReader(data[:1], mapped.Resolved(), true)
	r.ReadStringID()
	assert.ErrorIs(t, r.Err(), merr.ErrStreamTruncated)

	r = NewReader([]byte{byte(OpDataRaw), 8, 1, 2}, nil, true)
	assert.Nil(t, r.ReadDataView())
	assert.ErrorIs(t, r.Err(), merr.ErrStreamTruncated)

	r = NewReader(nil, nil, true)
	_, ok := r.PeekOpcode()
	assert.False(t, ok)
}

func TestDecodeOpcodes(t *testing.T) {
	s := NewStream()
	defer s.Close()
	w := NewWriter(s, nil)
	w.BeginCompound(vecType)
	w.WriteProperty(propX)
	w.WriteType(floatType)
	w.BeginSkipBlock()
	WriteTyped(w, float32(2))
	w.EndSkipBlock()
	w.EndCompound()
	data, _ := binarize(t, w, true)

	ops, err := DecodeOpcodes(data)
	require.NoError(t, err)
	require.Len(t, ops, s.TotalOpcodeCount())
	assert.Equal(t, OpCompound, ops[0].Op)
	assert.Equal(t, uint64(1), ops[0].Value)
	assert.Equal(t, 1, ops[1].Depth)
	assert.Equal(t, OpDataRaw, ops[4].Op)
	assert.Equal(t, 2, ops[4].Depth)
	assert.Len(t, ops[4].Data, 4)
	assert.Equal(t, 0, ops[6].Depth)

	_, err = DecodeOpcodes([]byte{byte(OpCompound), 0})
	assert.ErrorIs(t, err, merr.ErrStreamMalformed)
	ops, err = DecodeOpcodes([]byte{byte(OpCompoundEnd), byte(OpCompound), 0})
	assert.ErrorIs(t, err, merr.ErrStreamMalformed)
	assert.Empty(t, ops)
	_, err = DecodeOpcodes([]byte{0xee})
	assert.ErrorIs(t, err, merr.ErrUnknownOpcode)
}

type failingSink struct{}

func (failingSink) Write(p []byte) (int, error) { return 0, errors.New("disk full") }

func TestFileWriter(t *testing.T) {
	var sink bytes.Buffer
	fw := NewFileWriter(&sink)
	fw.threshold = 8

	_, err := fw.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Zero(t, sink.Len())
	require.NoError(t, fw.WriteByte(' '))
	_, err = fw.Write([]byte("world"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", sink.String())

	_, _ = fw.Write([]byte("!"))
	require.NoError(t, fw.Close())
	assert.Equal(t, "hello world!", sink.String())
	assert.Equal(t, int64(12), fw.Written())
	assert.Equal(t, crc32.ChecksumIEEE([]byte("hello world!")), fw.Checksum())

	bad := NewFileWriter(failingSink{})
	_, _ = bad.Write([]byte("x"))
	assert.ErrorIs(t, bad.Close(), merr.ErrIoFailed)
}

func TestWriteOpcodesToFileWriter(t *testing.T) {
	s := NewStream()
	defer s.Close()
	w := NewWriter(s, nil)
	w.WriteStringID("TEST")
	WriteTyped(w, uint16(3))

	var sink bytes.Buffer
	fw := NewFileWriter(&sink)
	require.NoError(t, WriteOpcodes(true, s, w.References().Freeze(), fw))
	require.NoError(t, fw.Close())
	assert.Equal(t, []byte{byte(OpDataName), 1, byte(OpDataRaw), 2, 3, 0}, sink.Bytes())
}
