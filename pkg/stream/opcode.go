package stream

import "fmt"

// Opcode 是流中每条记录的类型，数值即受保护模式下写入的标签字节。
type Opcode uint8

const (
	OpNop Opcode = iota
	OpCompound
	OpCompoundEnd
	OpArray
	OpArrayEnd
	OpProperty
	OpSkipHeader
	OpSkipLabel
	OpDataRaw
	OpDataTypeRef
	OpDataName
	OpDataObjectPointer
	OpDataResourceRef
	OpDataInlineBuffer
	OpDataAsyncBuffer

	opcodeCount
)

var opcodeNames = [opcodeCount]string{
	OpNop:               "Nop",
	OpCompound:          "Compound",
	OpCompoundEnd:       "CompoundEnd",
	OpArray:             "Array",
	OpArrayEnd:          "ArrayEnd",
	OpProperty:          "Property",
	OpSkipHeader:        "SkipHeader",
	OpSkipLabel:         "SkipLabel",
	OpDataRaw:           "DataRaw",
	OpDataTypeRef:       "DataTypeRef",
	OpDataName:          "DataName",
	OpDataObjectPointer: "DataObjectPointer",
	OpDataResourceRef:   "DataResourceRef",
	OpDataInlineBuffer:  "DataInlineBuffer",
	OpDataAsyncBuffer:   "DataAsyncBuffer",
}

func (op Opcode) String() string {
	if op.Valid() {
		return opcodeNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", uint8(op))
}

// Valid 判断 op 是否为已知的操作码。
func (op Opcode) Valid() bool {
	return op < opcodeCount
}

// wireShape 描述一个操作码在最终字节流中标签之后的负载形状。
// 写出、丢弃跳过块和诊断解码共用这一张表。
type wireShape uint8

const (
	shapeEmpty wireShape = iota // 没有负载
	shapeCount                  // 压缩整数：元素或属性数量
	shapeIndex                  // 压缩整数：引用下标，0 为空
	shapeSized                  // 压缩整数长度 + 字节
)

var wireShapes = [opcodeCount]wireShape{
	OpNop:               shapeEmpty,
	OpCompound:          shapeCount,
	OpCompoundEnd:       shapeEmpty,
	OpArray:             shapeCount,
	OpArrayEnd:          shapeEmpty,
	OpProperty:          shapeIndex,
	OpSkipHeader:        shapeEmpty,
	OpSkipLabel:         shapeEmpty,
	OpDataRaw:           shapeSized,
	OpDataTypeRef:       shapeIndex,
	OpDataName:          shapeIndex,
	OpDataObjectPointer: shapeIndex,
	OpDataResourceRef:   shapeIndex,
	OpDataInlineBuffer:  shapeSized,
	OpDataAsyncBuffer:   shapeIndex,
}

// 内存记录中固定负载的大小（不含 1 字节的记录头）。
// DataRaw 的负载长度不固定，由内嵌的压缩长度前缀决定。
const (
	countPayloadSize = 4 // Compound/Array：小端 uint32 数量
	slotPayloadSize  = 4 // 引用类记录：小端 uint32 槽位，0 为空
)

func fixedPayloadSize(op Opcode) int {
	switch op {
	case OpCompound, OpArray:
		return countPayloadSize
	case OpProperty, OpDataTypeRef, OpDataName, OpDataObjectPointer,
		OpDataResourceRef, OpDataInlineBuffer, OpDataAsyncBuffer:
		return slotPayloadSize
	default:
		return 0
	}
}
