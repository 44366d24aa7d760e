package stream

import (
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/lk2023060901/garden-objstream/pkg/log"
	"github.com/lk2023060901/garden-objstream/pkg/metrics"
)

// DefaultPageSize 是新页的默认容量，超过它的单条记录独占一页。
const DefaultPageSize = 16 << 10

// Option 用于配置 Stream。
type Option func(*Stream)

// WithPageSize 设置页大小，小于等于 0 时使用 DefaultPageSize。
func WithPageSize(size int) Option {
	return func(s *Stream) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithMaxBytes 设置所有页容量之和的上限，0 表示不限制。
// 超过上限的页分配视为分配失败，流会进入损坏状态。
func WithMaxBytes(limit int64) Option {
	return func(s *Stream) {
		s.maxBytes = limit
	}
}

type resourceSlot struct {
	key   ResourceKey
	async bool
}

// Stream 是分页的操作码记录区。
//
// 记录格式为 [1 字节操作码][负载]，连续存放在页中，单条记录不跨页。
// 引用类记录只保存槽位号，槽位指向流自己持有的分类型表；
// 对象槽位持有强引用，直到 Close。
//
// Stream 不是并发安全的。
type Stream struct {
	pageSize  int
	maxBytes  int64
	pages     [][]byte
	reserved  int64
	opcodes   int
	corrupted bool
	closed    bool

	names      []StringID
	types      []Type
	properties []Property
	objects    []Object
	resources  []resourceSlot
	inline     [][]byte
	async      []*AsyncBuffer
}

func NewStream(opts ...Option) *Stream {
	s := &Stream{pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Corrupted 报告是否发生过页分配失败。损坏的流中的数据不完整，不能写出。
func (s *Stream) Corrupted() bool {
	return s.corrupted
}

// TotalOpcodeCount 返回已记录的操作码条数。
func (s *Stream) TotalOpcodeCount() int {
	return s.opcodes
}

// DataSize 返回所有记录占用的字节数。
func (s *Stream) DataSize() int64 {
	var size int64
	for _, page := range s.pages {
		size += int64(len(page))
	}
	return size
}

func (s *Stream) PageCount() int {
	return len(s.pages)
}

// ReservedSize 返回已分配的页容量之和。
func (s *Stream) ReservedSize() int64 {
	return s.reserved
}

// Close 释放流持有的对象引用、缓冲区和页。Close 之后流不能再写入。
func (s *Stream) Close() {
	if s.closed {
		return
	}
	s.closed = true
	for _, obj := range s.objects {
		if r, ok := obj.(Retainer); ok {
			r.Release()
		}
	}
	s.objects = nil
	s.names = nil
	s.types = nil
	s.properties = nil
	s.resources = nil
	s.inline = nil
	s.async = nil
	s.pages = nil
	s.reserved = 0
}

// allocOpcode 在当前页预留一条记录并写好记录头，返回整条记录。
// 流已损坏或已关闭时返回 nil。
func (s *Stream) allocOpcode(op Opcode, extra int) []byte {
	if s.corrupted || s.closed {
		return nil
	}
	need := 1 + fixedPayloadSize(op) + extra
	if n := len(s.pages); n == 0 || cap(s.pages[n-1])-len(s.pages[n-1]) < need {
		if !s.allocPage(need) {
			return nil
		}
	}
	last := len(s.pages) - 1
	page := s.pages[last]
	start := len(page)
	s.pages[last] = page[:start+need]
	rec := page[start : start+need : start+need]
	rec[0] = byte(op)
	s.opcodes++
	return rec
}

func (s *Stream) allocPage(need int) bool {
	size := max(need, s.pageSize)
	if s.maxBytes > 0 && s.reserved+int64(size) > s.maxBytes {
		s.corrupted = true
		metrics.StreamCorruptions.Inc()
		log.Warn("opcode stream page allocation failed, stream corrupted",
			zap.Int("request", size),
			zap.Int64("reserved", s.reserved),
			zap.Int64("limit", s.maxBytes))
		return false
	}
	s.pages = append(s.pages, make([]byte, 0, size))
	s.reserved += int64(size)
	return true
}

func putSlot(rec []byte, slot uint32) {
	binary.LittleEndian.PutUint32(rec[1:1+slotPayloadSize], slot)
}

// 以下 addXxx 返回 1 起始的槽位号，0 表示空引用。

func (s *Stream) addName(id StringID) uint32 {
	if id.Empty() {
		return 0
	}
	s.names = append(s.names, id)
	return uint32(len(s.names))
}

func (s *Stream) addType(t Type) uint32 {
	if t == nil {
		return 0
	}
	s.types = append(s.types, t)
	return uint32(len(s.types))
}

func (s *Stream) addProperty(p Property) uint32 {
	if p == nil {
		return 0
	}
	s.properties = append(s.properties, p)
	return uint32(len(s.properties))
}

func (s *Stream) addObject(obj Object) uint32 {
	if obj == nil {
		return 0
	}
	if r, ok := obj.(Retainer); ok {
		r.Retain()
	}
	s.objects = append(s.objects, obj)
	return uint32(len(s.objects))
}

func (s *Stream) addResource(key ResourceKey, async bool) uint32 {
	if key.Empty() {
		return 0
	}
	s.resources = append(s.resources, resourceSlot{key: key, async: async})
	return uint32(len(s.resources))
}

func (s *Stream) addInline(data []byte) uint32 {
	if len(data) == 0 {
		return 0
	}
	s.inline = append(s.inline, append([]byte(nil), data...))
	return uint32(len(s.inline))
}

func (s *Stream) addAsync(buf *AsyncBuffer) uint32 {
	if buf == nil {
		return 0
	}
	s.async = append(s.async, buf)
	return uint32(len(s.async))
}
