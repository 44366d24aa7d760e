// Copyright (c) 2019 The Gnet Authors. All rights reserved.
// Copyright (c) 2019 Chao yuepan, Allen Xu
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE

// Package ring 实现了一个内存高效的环形缓冲区，
// 用作二进制输出的暂存区：写入方追加字节，刷新方整体排空到 io.Writer。
package ring

import (
	"errors"
	"io"
	"math/bits"
)

const (
	// DefaultBufferSize 是环形缓冲区的默认初始大小。
	DefaultBufferSize   = 1024     // 1KB
	bufferGrowThreshold = 4 * 1024 // 4KB
)

// ErrIsEmpty 表示当前环形缓冲区为空，无法继续读取。
var ErrIsEmpty = errors.New("ring-buffer is empty")

// Buffer 是一个环形缓冲区，实现了 io.Writer、io.ByteWriter 和 io.WriterTo。
type Buffer struct {
	buf     []byte // 底层字节切片
	size    int    // 缓冲区容量（始终为 2 的幂）
	r       int    // 下一次读取位置
	w       int    // 下一次写入位置
	isEmpty bool   // r == w 时用于区分“空/满”状态
}

// New 创建一个给定初始容量的 Buffer。
// size 会被向上取整为 2 的幂；size 为 0 时，仅创建一个逻辑上的空缓冲区。
func New(size int) *Buffer {
	if size == 0 {
		return &Buffer{isEmpty: true}
	}
	size = ceilToPowerOfTwo(size)
	return &Buffer{
		buf:     make([]byte, size),
		size:    size,
		isEmpty: true,
	}
}

// Peek 返回全部可读数据但不前进读指针。
// 数据跨越环形边界时被拆分为 head/tail 两段。
func (rb *Buffer) Peek() (head []byte, tail []byte) {
	if rb.isEmpty {
		return
	}
	if rb.w > rb.r {
		return rb.buf[rb.r:rb.w], nil
	}
	head = rb.buf[rb.r:]
	if rb.w != 0 {
		tail = rb.buf[:rb.w]
	}
	return
}

// Write 将 p 追加到缓冲区，空间不足时自动扩容，总是写入全部数据。
func (rb *Buffer) Write(p []byte) (n int, err error) {
	n = len(p)
	if n == 0 {
		return
	}

	if free := rb.Available(); n > free {
		rb.grow(rb.size + n - free)
	}

	c1 := rb.size - rb.w
	if rb.w < rb.r || c1 >= n {
		copy(rb.buf[rb.w:], p)
		rb.w += n
	} else {
		copy(rb.buf[rb.w:], p[:c1])
		copy(rb.buf, p[c1:])
		rb.w = n - c1
	}
	if rb.w == rb.size {
		rb.w = 0
	}
	rb.isEmpty = false
	return
}

// WriteByte 向缓冲区写入单个字节。
func (rb *Buffer) WriteByte(c byte) error {
	if rb.Available() < 1 {
		rb.grow(rb.size + 1)
	}
	rb.buf[rb.w] = c
	rb.w++
	if rb.w == rb.size {
		rb.w = 0
	}
	rb.isEmpty = false
	return nil
}

// Buffered 返回当前缓冲区中可读数据的字节数。
func (rb *Buffer) Buffered() int {
	if rb.r == rb.w {
		if rb.isEmpty {
			return 0
		}
		return rb.size
	}
	if rb.w > rb.r {
		return rb.w - rb.r
	}
	return rb.size - rb.r + rb.w
}

// Len 返回底层缓冲区的长度。
func (rb *Buffer) Len() int {
	return len(rb.buf)
}

// Cap 返回底层缓冲区的容量。
func (rb *Buffer) Cap() int {
	return rb.size
}

// Available 返回当前缓冲区中可写入的剩余字节数。
func (rb *Buffer) Available() int {
	return rb.size - rb.Buffered()
}

// Bytes 返回当前所有可读数据的拷贝，不移动读指针。
func (rb *Buffer) Bytes() []byte {
	head, tail := rb.Peek()
	if head == nil {
		return nil
	}
	bb := make([]byte, 0, len(head)+len(tail))
	bb = append(bb, head...)
	return append(bb, tail...)
}

// WriteTo 把全部可读数据写入 w；成功后缓冲区为空。
// w 少写时返回 io.ErrShortWrite，未写出的数据保留在缓冲区中。
func (rb *Buffer) WriteTo(w io.Writer) (int64, error) {
	if rb.isEmpty {
		return 0, ErrIsEmpty
	}

	var cum int64
	for !rb.isEmpty {
		head, _ := rb.Peek()
		m, err := w.Write(head)
		if m > len(head) {
			panic("RingBuffer.WriteTo: invalid Write count")
		}
		cum += int64(m)
		rb.advance(m)
		if err != nil {
			return cum, err
		}
		if m < len(head) {
			return cum, io.ErrShortWrite
		}
	}
	return cum, nil
}

// IsEmpty 返回当前环形缓冲区是否为空。
func (rb *Buffer) IsEmpty() bool {
	return rb.isEmpty
}

// Reset 将读写指针重置为 0，并将缓冲区标记为“空”状态。
func (rb *Buffer) Reset() {
	rb.isEmpty = true
	rb.r, rb.w = 0, 0
}

func (rb *Buffer) advance(n int) {
	if n == 0 {
		return
	}
	rb.r = (rb.r + n) % rb.size
	if rb.r == rb.w {
		rb.Reset()
	}
}

func (rb *Buffer) grow(newCap int) {
	if n := rb.size; n == 0 {
		if newCap <= DefaultBufferSize {
			newCap = DefaultBufferSize
		} else {
			newCap = ceilToPowerOfTwo(newCap)
		}
	} else {
		doubleCap := n + n
		if newCap <= doubleCap {
			if n < bufferGrowThreshold {
				newCap = doubleCap
			} else {
				// Check 0 < n to detect overflow and prevent an infinite loop.
				for 0 < n && n < newCap {
					n += n / 4
				}
				if n > 0 {
					newCap = n
				}
			}
		}
	}
	newBuf := make([]byte, newCap)
	head, tail := rb.Peek()
	oldLen := copy(newBuf, head)
	oldLen += copy(newBuf[oldLen:], tail)
	rb.buf = newBuf
	rb.r = 0
	rb.w = oldLen % newCap
	rb.size = newCap
	rb.isEmpty = oldLen == 0
}

// ceilToPowerOfTwo 将 n 向上取整为最接近的 2 的幂。
func ceilToPowerOfTwo(n int) int {
	if n <= 0 {
		return 0
	}
	if n&(n-1) == 0 {
		return n
	}
	return 1 << bits.Len(uint(n))
}
