package stream

import (
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/lk2023060901/garden-objstream/internal/pool/ringbuffer"
	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

// ByteSink 是 WriteOpcodes 的输出端。
type ByteSink interface {
	io.Writer
	io.ByteWriter
}

// WriteOpcodes 把流中的记录写成最终字节：引用类记录的槽位替换为 mapped 中的下标。
// protected 为 true 时每条记录前写入 1 字节标签。
// 映射中查不到某个非空引用说明引用收集与映射不一致，直接 panic。
func WriteOpcodes(protected bool, s *Stream, mapped *MappedReferences, out ByteSink) error {
	if s.Corrupted() {
		return merr.WrapErrStreamCorrupted(s.ReservedSize(), s.maxBytes, "write opcodes")
	}
	var (
		scratch [MaxVarintLen64]byte
		err     error
	)
	writeNumber := func(v uint64) {
		if err == nil {
			n := PutCompressedNumber(scratch[:], v)
			_, err = out.Write(scratch[:n])
		}
	}
	writeBytes := func(p []byte) {
		if err == nil && len(p) > 0 {
			_, err = out.Write(p)
		}
	}

	it := NewIterator(s)
	for rec, ok := it.Next(); ok && err == nil; rec, ok = it.Next() {
		if rec.Op == OpNop {
			continue
		}
		if protected {
			err = out.WriteByte(byte(rec.Op))
		}
		switch rec.Op {
		case OpCompound, OpArray:
			writeNumber(uint64(rec.Count()))
		case OpDataRaw:
			data := rec.Data()
			writeNumber(uint64(len(data)))
			writeBytes(data)
		case OpDataInlineBuffer:
			data := rec.InlineBuffer()
			writeNumber(uint64(len(data)))
			writeBytes(data)
		case OpDataName:
			writeNumber(uint64(lookup(mapped.Names, rec.Name(), !rec.IsNull(), rec.Op)))
		case OpDataTypeRef:
			writeNumber(uint64(lookup(mapped.Types, rec.Type(), !rec.IsNull(), rec.Op)))
		case OpProperty:
			writeNumber(uint64(lookup(mapped.Properties, rec.Property(), !rec.IsNull(), rec.Op)))
		case OpDataObjectPointer:
			writeNumber(uint64(lookup(mapped.Objects, rec.Object(), !rec.IsNull(), rec.Op)))
		case OpDataResourceRef:
			key, async := rec.Resource()
			table := mapped.SyncResources
			if async {
				table = mapped.AsyncResources
			}
			writeNumber(uint64(lookup(table, key, !rec.IsNull(), rec.Op)))
		case OpDataAsyncBuffer:
			writeNumber(uint64(lookup(mapped.AsyncBuffers, rec.AsyncBuffer(), !rec.IsNull(), rec.Op)))
		}
	}
	if err != nil {
		return merr.WrapErrIoFailed(err.Error(), "write opcodes")
	}
	return nil
}

func lookup[K comparable](table map[K]uint32, key K, present bool, op Opcode) uint32 {
	if !present {
		return 0
	}
	index, ok := table[key]
	if !ok {
		panic(fmt.Sprintf("stream: %s reference %v was not mapped", op, key))
	}
	return index
}

// DefaultFlushThreshold 是 FileWriter 暂存区触发刷新的字节数。
const DefaultFlushThreshold = 64 << 10

// FileWriter 把字节暂存在池化的环形缓冲区中，达到阈值后刷新到 sink，
// 同时计算写入内容的 CRC32。
type FileWriter struct {
	sink      io.Writer
	buf       *ringbuffer.RingBuffer
	crc       hash.Hash32
	threshold int
	written   int64
	err       error
}

func NewFileWriter(sink io.Writer) *FileWriter {
	return &FileWriter{
		sink:      sink,
		buf:       ringbuffer.Get(),
		crc:       crc32.NewIEEE(),
		threshold: DefaultFlushThreshold,
	}
}

func (fw *FileWriter) Write(p []byte) (int, error) {
	if fw.err != nil {
		return 0, fw.err
	}
	n, _ := fw.buf.Write(p)
	fw.crc.Write(p)
	fw.written += int64(n)
	if fw.buf.Buffered() >= fw.threshold {
		if err := fw.Flush(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (fw *FileWriter) WriteByte(c byte) error {
	_, err := fw.Write([]byte{c})
	return err
}

// Flush 把暂存区中的全部字节写入 sink。
func (fw *FileWriter) Flush() error {
	if fw.err != nil {
		return fw.err
	}
	if fw.buf.IsEmpty() {
		return nil
	}
	if _, err := fw.buf.WriteTo(fw.sink); err != nil {
		fw.err = merr.WrapErrIoFailed(err.Error(), "flush")
	}
	return fw.err
}

// Close 刷新剩余字节并归还暂存区。之后 FileWriter 不能再使用。
func (fw *FileWriter) Close() error {
	if fw.buf == nil {
		return fw.err
	}
	err := fw.Flush()
	ringbuffer.Put(fw.buf)
	fw.buf = nil
	if fw.err == nil {
		fw.err = io.ErrClosedPipe
	}
	return err
}

// Checksum 返回目前写入的所有字节的 CRC32（IEEE）。
func (fw *FileWriter) Checksum() uint32 {
	return fw.crc.Sum32()
}

// Written 返回写入的字节总数，包括尚未刷新的部分。
func (fw *FileWriter) Written() int64 {
	return fw.written
}
