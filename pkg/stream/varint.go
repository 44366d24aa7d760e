package stream

import (
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxVarintLen64 是 64 位压缩整数的最大字节数。
const MaxVarintLen64 = 10

// CompressedNumberSize 返回 v 编码后的字节数。
func CompressedNumberSize(v uint64) int {
	return protowire.SizeVarint(v)
}

// AppendCompressedNumber 以小端 base-128 编码把 v 追加到 dst。
// 每个字节的低 7 位携带数据，最高位表示后面还有字节。
func AppendCompressedNumber(dst []byte, v uint64) []byte {
	return protowire.AppendVarint(dst, v)
}

// PutCompressedNumber 把 v 编码进 dst，返回写入的字节数。dst 必须足够大。
func PutCompressedNumber(dst []byte, v uint64) int {
	return copy(dst, protowire.AppendVarint(dst[:0:len(dst)], v))
}

// decodeCompressedNumber 从 src 解码一个压缩整数。
// n > 0 为消耗的字节数；n == 0 表示数据不足；n < 0 表示超过 10 字节或溢出。
func decodeCompressedNumber(src []byte) (uint64, int) {
	v, n := protowire.ConsumeVarint(src)
	if n < 0 {
		if protowire.ParseError(n) == io.ErrUnexpectedEOF {
			return 0, 0
		}
		return 0, n
	}
	return v, n
}

// DecodeCompressedNumber 是 decodeCompressedNumber 的导出形式，供容器格式复用。
func DecodeCompressedNumber(src []byte) (uint64, int) {
	return decodeCompressedNumber(src)
}
