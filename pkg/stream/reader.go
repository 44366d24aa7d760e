package stream

import (
	"github.com/lk2023060901/garden-objstream/pkg/metrics"
	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

// Reader 解码 WriteOpcodes 产生的字节流。
//
// 受保护模式下每条记录带标签，Reader 会核对标签和 DataRaw 的长度；
// 非受保护模式下 Reader 完全依赖调用方按写入顺序读取。
// 第一个错误会被保留，之后所有读取都返回零值，Err 返回该错误。
type Reader struct {
	data      []byte
	pos       int
	protected bool
	refs      *ResolvedReferences
	err       error
}

// NewReader 创建读取 data 的 Reader。refs 为 nil 时所有引用都解析为空。
func NewReader(data []byte, refs *ResolvedReferences, protected bool) *Reader {
	if refs == nil {
		refs = NewResolvedReferences()
	}
	return &Reader{
		data:      data,
		protected: protected,
		refs:      refs,
	}
}

func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) Protected() bool {
	return r.protected
}

func (r *Reader) References() *ResolvedReferences {
	return r.refs
}

func (r *Reader) Offset() int {
	return r.pos
}

func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// AtEnd 报告数据是否已全部读完。
func (r *Reader) AtEnd() bool {
	return r.pos >= len(r.data)
}

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) ok() bool {
	return r.err == nil
}

func (r *Reader) readByte() byte {
	if r.pos >= len(r.data) {
		r.fail(merr.WrapErrStreamTruncated(r.pos, 1, len(r.data)))
		return 0
	}
	b := r.data[r.pos]
	r.pos++
	return b
}

func (r *Reader) readBytes(n uint64) []byte {
	if uint64(r.Remaining()) < n {
		r.fail(merr.WrapErrStreamTruncated(r.pos, int(min(n, uint64(1<<31))), len(r.data)))
		return nil
	}
	b := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b
}

// ReadCompressedNumber 读取一个压缩整数。数据不足时返回 merr.ErrStreamTruncated，
// 超过 10 字节时返回 merr.ErrStreamMalformed。
func (r *Reader) ReadCompressedNumber() uint64 {
	if !r.ok() {
		return 0
	}
	v, n := decodeCompressedNumber(r.data[r.pos:])
	switch {
	case n == 0:
		r.fail(merr.WrapErrStreamTruncated(r.pos, r.Remaining()+1, len(r.data), "compressed number"))
		return 0
	case n < 0:
		r.fail(merr.WrapErrStreamMalformed(r.pos, "compressed number longer than 10 bytes"))
		return 0
	}
	r.pos += n
	return v
}

// expect 在受保护模式下读取并核对标签。
func (r *Reader) expect(op Opcode) bool {
	if !r.ok() {
		return false
	}
	if !r.protected {
		return true
	}
	at := r.pos
	tag := Opcode(r.readByte())
	if !r.ok() {
		return false
	}
	if tag != op {
		r.fail(merr.WrapErrTagMismatch(at, op, tag))
		return false
	}
	return true
}

// PeekOpcode 返回下一条记录的操作码而不消耗它，只在受保护模式下可用。
func (r *Reader) PeekOpcode() (Opcode, bool) {
	if !r.ok() || !r.protected || r.AtEnd() {
		return OpNop, false
	}
	return Opcode(r.data[r.pos]), true
}

// EnterCompound 进入复合块，返回其中的属性数。
func (r *Reader) EnterCompound() uint32 {
	if !r.expect(OpCompound) {
		return 0
	}
	return r.readCount()
}

func (r *Reader) LeaveCompound() {
	r.expect(OpCompoundEnd)
}

// EnterArray 进入数组块，返回元素个数。
func (r *Reader) EnterArray() uint32 {
	if !r.expect(OpArray) {
		return 0
	}
	return r.readCount()
}

func (r *Reader) LeaveArray() {
	r.expect(OpArrayEnd)
}

func (r *Reader) readCount() uint32 {
	at := r.pos
	count := r.ReadCompressedNumber()
	if count > uint64(^uint32(0)) {
		r.fail(merr.WrapErrStreamMalformed(at, "count exceeds 32 bits"))
		return 0
	}
	return uint32(count)
}

// EnterSkipBlock 进入跳过块。非受保护模式下跳过块不占字节，调用是空操作。
func (r *Reader) EnterSkipBlock() {
	r.expect(OpSkipHeader)
}

func (r *Reader) LeaveSkipBlock() {
	r.expect(OpSkipLabel)
}

// DiscardSkipBlock 丢弃刚进入的跳过块的剩余内容，读位置停在匹配的 SkipLabel 之后。
// 只有受保护的流才能丢弃，因为只有它们带有标签。
func (r *Reader) DiscardSkipBlock() error {
	if !r.ok() {
		return r.err
	}
	if !r.protected {
		r.fail(merr.ErrSkipUnsupported)
		return r.err
	}
	depth := 1
	for depth > 0 && r.ok() {
		at := r.pos
		op := Opcode(r.readByte())
		if !r.ok() {
			break
		}
		if !op.Valid() {
			r.fail(merr.WrapErrUnknownOpcode(at, byte(op)))
			break
		}
		switch op {
		case OpSkipHeader:
			depth++
		case OpSkipLabel:
			depth--
		}
		r.skipPayload(op)
	}
	if r.ok() {
		metrics.SkipBlocksDiscarded.Inc()
	}
	return r.err
}

func (r *Reader) skipPayload(op Opcode) {
	switch wireShapes[op] {
	case shapeCount, shapeIndex:
		r.ReadCompressedNumber()
	case shapeSized:
		n := r.ReadCompressedNumber()
		if r.ok() {
			r.readBytes(n)
		}
	}
}

// ReadData 读取一段原始数据到 dst。
// 受保护模式下写入长度必须等于 len(dst)，否则返回 merr.ErrSizeMismatch；
// 非受保护模式下按写入长度前进，最多复制 len(dst) 字节。
func (r *Reader) ReadData(dst []byte) {
	if !r.expect(OpDataRaw) {
		return
	}
	at := r.pos
	n := r.ReadCompressedNumber()
	if !r.ok() {
		return
	}
	if r.protected && n != uint64(len(dst)) {
		r.fail(merr.WrapErrSizeMismatch(at, n, len(dst)))
		return
	}
	copy(dst, r.readBytes(n))
}

// ReadDataView 读取一段原始数据，返回指向输入的切片，不复制。
func (r *Reader) ReadDataView() []byte {
	if !r.expect(OpDataRaw) {
		return nil
	}
	n := r.ReadCompressedNumber()
	if !r.ok() {
		return nil
	}
	return r.readBytes(n)
}

// ReadTyped 读取 WriteTyped 写入的数值。
func ReadTyped[T Number](r *Reader) T {
	var buf [8]byte
	size := SizeOf[T]()
	r.ReadData(buf[:size])
	if !r.ok() {
		var zero T
		return zero
	}
	return Typed[T](buf[:size])
}

func (r *Reader) readIndex(op Opcode, kind string, size int) (int, bool) {
	if !r.expect(op) {
		return 0, false
	}
	index := r.ReadCompressedNumber()
	if !r.ok() {
		return 0, false
	}
	if index >= uint64(size) {
		r.fail(merr.WrapErrInvalidReference(kind, index, size))
		return 0, false
	}
	return int(index), true
}

func (r *Reader) ReadStringID() StringID {
	i, ok := r.readIndex(OpDataName, "name", len(r.refs.Names))
	if !ok {
		return ""
	}
	return r.refs.Names[i]
}

func (r *Reader) ReadType() ResolvedType {
	i, ok := r.readIndex(OpDataTypeRef, "type", len(r.refs.Types))
	if !ok {
		return ResolvedType{}
	}
	return r.refs.Types[i]
}

func (r *Reader) ReadProperty() ResolvedProperty {
	i, ok := r.readIndex(OpProperty, "property", len(r.refs.Properties))
	if !ok {
		return ResolvedProperty{}
	}
	return r.refs.Properties[i]
}

func (r *Reader) ReadPointer() Object {
	i, ok := r.readIndex(OpDataObjectPointer, "object", len(r.refs.Objects))
	if !ok {
		return nil
	}
	return r.refs.Objects[i]
}

func (r *Reader) ReadResource() ResolvedResource {
	i, ok := r.readIndex(OpDataResourceRef, "resource", len(r.refs.Resources))
	if !ok {
		return ResolvedResource{}
	}
	return r.refs.Resources[i]
}

func (r *Reader) ReadAsyncBuffer() *AsyncBuffer {
	i, ok := r.readIndex(OpDataAsyncBuffer, "async buffer", len(r.refs.AsyncBuffers))
	if !ok {
		return nil
	}
	return r.refs.AsyncBuffers[i]
}

// ReadInlineBuffer 读取内联缓冲区，返回的切片是一份拷贝。
func (r *Reader) ReadInlineBuffer() []byte {
	if !r.expect(OpDataInlineBuffer) {
		return nil
	}
	n := r.ReadCompressedNumber()
	if !r.ok() {
		return nil
	}
	data := r.readBytes(n)
	if len(data) == 0 {
		return nil
	}
	return append([]byte(nil), data...)
}
