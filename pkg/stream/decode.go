package stream

import (
	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

// DecodedOpcode 是诊断解码得到的一条记录。
type DecodedOpcode struct {
	Offset int    `json:"offset"`
	Depth  int    `json:"depth"`
	Op     Opcode `json:"-"`
	Name   string `json:"op"`
	// Value 是数量或引用下标；对带长度的记录是数据长度。
	Value uint64 `json:"value"`
	Data  []byte `json:"data,omitempty"`
}

// DecodeOpcodes 逐条列出受保护字节流中的记录，用于诊断。
// 非受保护的流没有标签，无法在不知道结构的情况下解码。
func DecodeOpcodes(data []byte) ([]DecodedOpcode, error) {
	r := NewReader(data, nil, true)
	var (
		out   []DecodedOpcode
		depth int
	)
	for !r.AtEnd() {
		at := r.pos
		op := Opcode(r.readByte())
		if !op.Valid() {
			return out, merr.WrapErrUnknownOpcode(at, byte(op))
		}
		switch op {
		case OpCompoundEnd, OpArrayEnd, OpSkipLabel:
			depth--
			if depth < 0 {
				return out, merr.WrapErrStreamMalformed(at, op.String()+" closes a block that was never opened")
			}
		}
		d := DecodedOpcode{Offset: at, Depth: depth, Op: op, Name: op.String()}
		switch wireShapes[op] {
		case shapeCount, shapeIndex:
			d.Value = r.ReadCompressedNumber()
		case shapeSized:
			d.Value = r.ReadCompressedNumber()
			if r.ok() {
				d.Data = r.readBytes(d.Value)
			}
		}
		if !r.ok() {
			return out, r.err
		}
		switch op {
		case OpCompound, OpArray, OpSkipHeader:
			depth++
		}
		out = append(out, d)
	}
	if depth != 0 {
		return out, merr.WrapErrStreamMalformed(len(data), "unbalanced blocks")
	}
	return out, nil
}
