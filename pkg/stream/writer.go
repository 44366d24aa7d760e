package stream

import (
	"encoding/binary"
	"fmt"

	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

type frame struct {
	op Opcode // OpCompound、OpArray 或 OpSkipHeader
	// typ 是 Compound 的所属类型，只用于诊断信息。
	typ Type
	// properties 是写入到本 Compound 中的属性数，EndCompound 时回填。
	properties uint32
	// record 指向 Compound 记录本身；流损坏时为 nil。
	record []byte
}

// Writer 把值写成操作码记录，并把遇到的引用收集到 WriterReferences。
//
// Begin/End 调用必须严格配对，错配属于调用方错误，会直接 panic。
// 流一旦损坏，Writer 停止写入记录，只维持嵌套结构，Err 返回 merr.ErrStreamCorrupted。
type Writer struct {
	stream *Stream
	refs   *WriterReferences
	frames []frame
}

// NewWriter 创建写入 s 的 Writer。refs 为 nil 时创建新的引用集合。
func NewWriter(s *Stream, refs *WriterReferences) *Writer {
	if refs == nil {
		refs = NewWriterReferences()
	}
	return &Writer{
		stream: s,
		refs:   refs,
	}
}

func (w *Writer) Stream() *Stream {
	return w.stream
}

func (w *Writer) References() *WriterReferences {
	return w.refs
}

// Depth 返回当前打开的块的层数。
func (w *Writer) Depth() int {
	return len(w.frames)
}

// Err 报告写入是否失败。
func (w *Writer) Err() error {
	if w.stream.Corrupted() {
		return merr.WrapErrStreamCorrupted(w.stream.ReservedSize(), w.stream.maxBytes)
	}
	return nil
}

// Finish 检查所有块都已关闭并返回写入错误。
func (w *Writer) Finish() error {
	if err := w.Err(); err != nil {
		return err
	}
	if len(w.frames) != 0 {
		return merr.WrapErrStreamNotClosed(len(w.frames), w.frames[len(w.frames)-1].op.String())
	}
	return nil
}

func (w *Writer) push(f frame) {
	w.frames = append(w.frames, f)
}

func (w *Writer) pop(op Opcode, caller string) frame {
	if len(w.frames) == 0 {
		panic(fmt.Sprintf("stream: %s without an open block", caller))
	}
	top := w.frames[len(w.frames)-1]
	if top.op != op {
		panic(fmt.Sprintf("stream: %s closes a %s block", caller, top.op))
	}
	w.frames = w.frames[:len(w.frames)-1]
	return top
}

// BeginCompound 打开一个属于类型 t 的复合块。
func (w *Writer) BeginCompound(t Type) {
	rec := w.stream.allocOpcode(OpCompound, 0)
	w.push(frame{op: OpCompound, typ: t, record: rec})
}

// EndCompound 关闭最内层的复合块，并回填其中写入的属性数。
func (w *Writer) EndCompound() {
	f := w.pop(OpCompound, "EndCompound")
	if f.record != nil {
		binary.LittleEndian.PutUint32(f.record[1:], f.properties)
	}
	w.stream.allocOpcode(OpCompoundEnd, 0)
}

// BeginArray 打开一个包含 count 个元素的数组块。
func (w *Writer) BeginArray(count uint32) {
	rec := w.stream.allocOpcode(OpArray, 0)
	if rec != nil {
		binary.LittleEndian.PutUint32(rec[1:], count)
	}
	w.push(frame{op: OpArray, record: rec})
}

func (w *Writer) EndArray() {
	w.pop(OpArray, "EndArray")
	w.stream.allocOpcode(OpArrayEnd, 0)
}

// BeginSkipBlock 打开一个跳过块。读取端不认识其中内容时可以整块丢弃。
func (w *Writer) BeginSkipBlock() {
	w.stream.allocOpcode(OpSkipHeader, 0)
	w.push(frame{op: OpSkipHeader})
}

func (w *Writer) EndSkipBlock() {
	w.pop(OpSkipHeader, "EndSkipBlock")
	w.stream.allocOpcode(OpSkipLabel, 0)
}

// WriteData 写入一段原始数据。
func (w *Writer) WriteData(data []byte) {
	n := len(data)
	prefix := CompressedNumberSize(uint64(n))
	rec := w.stream.allocOpcode(OpDataRaw, prefix+n)
	if rec == nil {
		return
	}
	PutCompressedNumber(rec[1:], uint64(n))
	copy(rec[1+prefix:], data)
}

// WriteTyped 以固定宽度小端写入一个数值。
func WriteTyped[T Number](w *Writer, v T) {
	var buf [8]byte
	n := PutTyped(buf[:], v)
	w.WriteData(buf[:n])
}

func (w *Writer) writeSlot(op Opcode, slot func() uint32) {
	rec := w.stream.allocOpcode(op, 0)
	if rec == nil {
		return
	}
	putSlot(rec, slot())
}

func (w *Writer) WriteStringID(id StringID) {
	w.writeSlot(OpDataName, func() uint32 {
		if !id.Empty() {
			w.refs.Names.Insert(id)
		}
		return w.stream.addName(id)
	})
}

func (w *Writer) WriteType(t Type) {
	w.writeSlot(OpDataTypeRef, func() uint32 {
		if t != nil {
			w.refs.Types.Insert(t)
		}
		return w.stream.addType(t)
	})
}

// WriteProperty 写入属性引用，并计入最内层复合块的属性数。
func (w *Writer) WriteProperty(p Property) {
	for i := len(w.frames) - 1; i >= 0; i-- {
		if w.frames[i].op == OpCompound {
			w.frames[i].properties++
			break
		}
	}
	w.writeSlot(OpProperty, func() uint32 {
		if p != nil {
			w.refs.Properties.Insert(p)
		}
		return w.stream.addProperty(p)
	})
}

// WritePointer 写入对象指针；流会持有 obj 直到 Close。
func (w *Writer) WritePointer(obj Object) {
	w.writeSlot(OpDataObjectPointer, func() uint32 {
		if obj != nil {
			w.refs.Objects.Insert(obj)
		}
		return w.stream.addObject(obj)
	})
}

// WriteResourceReference 写入外部资源引用。同步与异步引用分别去重。
func (w *Writer) WriteResourceReference(path string, class Type, async bool) {
	key := ResourceKey{Path: path, Class: class}
	w.writeSlot(OpDataResourceRef, func() uint32 {
		if !key.Empty() {
			if async {
				w.refs.AsyncResources.Insert(key)
			} else {
				w.refs.SyncResources.Insert(key)
			}
		}
		return w.stream.addResource(key, async)
	})
}

// WriteInlineBuffer 写入随记录内联保存的缓冲区。
// 流保存的是 data 的副本而不是 data 本身，写入后调用方可以复用或修改 data，不影响已写入的记录。
func (w *Writer) WriteInlineBuffer(data []byte) {
	w.writeSlot(OpDataInlineBuffer, func() uint32 {
		return w.stream.addInline(data)
	})
}

// WriteAsyncBuffer 写入单独存放、按需加载的缓冲区引用。
func (w *Writer) WriteAsyncBuffer(buf *AsyncBuffer) {
	w.writeSlot(OpDataAsyncBuffer, func() uint32 {
		if buf != nil {
			w.refs.AsyncBuffers.Insert(buf)
		}
		return w.stream.addAsync(buf)
	})
}
