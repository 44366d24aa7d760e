package stream

import "encoding/binary"

// Position 标记流中的一个记录边界。
type Position struct {
	page   int
	offset int
}

// Mark 返回下一条记录将要写入的位置。
func (s *Stream) Mark() Position {
	if len(s.pages) == 0 {
		return Position{}
	}
	last := len(s.pages) - 1
	return Position{page: last, offset: len(s.pages[last])}
}

// normalize 把落在页尾的位置挪到下一页的开头。
func (s *Stream) normalize(p Position) Position {
	for p.page < len(s.pages) && p.offset >= len(s.pages[p.page]) {
		p.page++
		p.offset = 0
	}
	return p
}

func (p Position) before(o Position) bool {
	return p.page < o.page || (p.page == o.page && p.offset < o.offset)
}

// Record 是迭代得到的一条内存记录的视图，只在流关闭前有效。
type Record struct {
	Op   Opcode
	body []byte
	s    *Stream
}

// Count 返回 Compound/Array 记录中的数量。
func (r Record) Count() uint32 {
	return binary.LittleEndian.Uint32(r.body)
}

// Data 返回 DataRaw 记录的数据。
func (r Record) Data() []byte {
	n, w := decodeCompressedNumber(r.body)
	return r.body[w : w+int(n)]
}

func (r Record) slot() uint32 {
	return binary.LittleEndian.Uint32(r.body)
}

// IsNull 报告引用类记录是否为空引用。
func (r Record) IsNull() bool {
	return r.slot() == 0
}

func (r Record) Name() StringID {
	if slot := r.slot(); slot != 0 {
		return r.s.names[slot-1]
	}
	return ""
}

func (r Record) Type() Type {
	if slot := r.slot(); slot != 0 {
		return r.s.types[slot-1]
	}
	return nil
}

func (r Record) Property() Property {
	if slot := r.slot(); slot != 0 {
		return r.s.properties[slot-1]
	}
	return nil
}

func (r Record) Object() Object {
	if slot := r.slot(); slot != 0 {
		return r.s.objects[slot-1]
	}
	return nil
}

// Resource 返回资源引用的键以及它是否为异步引用。
func (r Record) Resource() (ResourceKey, bool) {
	if slot := r.slot(); slot != 0 {
		res := r.s.resources[slot-1]
		return res.key, res.async
	}
	return ResourceKey{}, false
}

func (r Record) InlineBuffer() []byte {
	if slot := r.slot(); slot != 0 {
		return r.s.inline[slot-1]
	}
	return nil
}

func (r Record) AsyncBuffer() *AsyncBuffer {
	if slot := r.slot(); slot != 0 {
		return r.s.async[slot-1]
	}
	return nil
}

func recordSize(page []byte, off int) int {
	op := Opcode(page[off])
	if op == OpDataRaw {
		n, w := decodeCompressedNumber(page[off+1:])
		return 1 + w + int(n)
	}
	return 1 + fixedPayloadSize(op)
}

// Iterator 顺序遍历流中的记录，透明地跨页。
type Iterator struct {
	s   *Stream
	pos Position
	end Position
}

// NewIterator 返回遍历整个流的迭代器。
func NewIterator(s *Stream) *Iterator {
	return NewBoundedIterator(s, Position{}, s.Mark())
}

// NewBoundedIterator 返回遍历 [from, to) 之间记录的迭代器，两个位置都应来自 Mark。
func NewBoundedIterator(s *Stream, from, to Position) *Iterator {
	return &Iterator{
		s:   s,
		pos: s.normalize(from),
		end: s.normalize(to),
	}
}

// Next 返回下一条记录，遍历结束时第二个返回值为 false。
func (it *Iterator) Next() (Record, bool) {
	if !it.pos.before(it.end) {
		return Record{}, false
	}
	page := it.s.pages[it.pos.page]
	size := recordSize(page, it.pos.offset)
	rec := Record{
		Op:   Opcode(page[it.pos.offset]),
		body: page[it.pos.offset+1 : it.pos.offset+size],
		s:    it.s,
	}
	it.pos.offset += size
	it.pos = it.s.normalize(it.pos)
	return rec, true
}
