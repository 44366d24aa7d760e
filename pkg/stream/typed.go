package stream

import (
	"encoding/binary"
	"math"
	"reflect"

	"golang.org/x/exp/constraints"
)

// Number 是可以按固定宽度小端写入 DataRaw 的数值类型。
type Number interface {
	constraints.Integer | constraints.Float
}

// SizeOf 返回 T 的固定编码宽度。
func SizeOf[T Number]() int {
	var zero T
	return int(reflect.TypeOf(zero).Size())
}

// PutTyped 把 v 以小端固定宽度写入 dst，返回写入的字节数。
// 命名类型（例如 type Flags uint16）按其底层类型编码。
func PutTyped[T Number](dst []byte, v T) int {
	rv := reflect.ValueOf(v)
	size := int(rv.Type().Size())
	var bits uint64
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		bits = uint64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		bits = rv.Uint()
	case reflect.Float32:
		bits = uint64(math.Float32bits(float32(rv.Float())))
	case reflect.Float64:
		bits = math.Float64bits(rv.Float())
	}
	putUint(dst[:size], bits)
	return size
}

// Typed 从 src 的前 SizeOf[T]() 个字节解码一个 T。
func Typed[T Number](src []byte) T {
	var out T
	rv := reflect.ValueOf(&out).Elem()
	size := int(rv.Type().Size())
	bits := getUint(src[:size])
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 先按宽度做符号扩展。
		shift := 64 - 8*uint(size)
		rv.SetInt(int64(bits<<shift) >> shift)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		rv.SetUint(bits)
	case reflect.Float32:
		rv.SetFloat(float64(math.Float32frombits(uint32(bits))))
	case reflect.Float64:
		rv.SetFloat(math.Float64frombits(bits))
	}
	return out
}

func putUint(dst []byte, v uint64) {
	switch len(dst) {
	case 1:
		dst[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(dst, v)
	}
}

func getUint(src []byte) uint64 {
	switch len(src) {
	case 1:
		return uint64(src[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(src))
	case 4:
		return uint64(binary.LittleEndian.Uint32(src))
	case 8:
		return binary.LittleEndian.Uint64(src)
	}
	return 0
}
