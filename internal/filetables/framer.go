package filetables

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

// Magic 是文件开头的 4 字节标识。
var Magic = [4]byte{'O', 'P', 'S', 'F'}

// DefaultMaxTablesSize 是默认允许的最大文件头大小。
const DefaultMaxTablesSize uint32 = 16 * 1024 * 1024 // 16MB

// 一个文件的布局为：Magic + 4 字节大端无符号整型（文件头长度）+ 文件头 + 数据区。
// 数据区先存放所有对象，再存放异步缓冲区。
const prefixSize = len(Magic) + 4

// WriteHeader 把 Magic、长度前缀和编码后的表写入 w，返回写入的字节数。
func WriteHeader(w io.Writer, t *Tables) (int, error) {
	body := t.Marshal()
	var prefix [prefixSize]byte
	copy(prefix[:], Magic[:])
	binary.BigEndian.PutUint32(prefix[len(Magic):], uint32(len(body)))

	if _, err := w.Write(prefix[:]); err != nil {
		return 0, merr.WrapErrIoFailed(err.Error(), "write tables prefix")
	}
	if _, err := w.Write(body); err != nil {
		return prefixSize, merr.WrapErrIoFailed(err.Error(), "write tables")
	}
	return prefixSize + len(body), nil
}

// File 是一个已解析的文件。Data 指向输入中的数据区，不做拷贝。
type File struct {
	Tables     *Tables
	Data       []byte
	HeaderSize int
}

// Option 用于配置 Open。
type Option func(*openOptions)

type openOptions struct {
	maxTablesSize uint32
}

// WithMaxTablesSize 限制文件头的大小，0 表示使用 DefaultMaxTablesSize。
func WithMaxTablesSize(size uint32) Option {
	return func(o *openOptions) {
		if size > 0 {
			o.maxTablesSize = size
		}
	}
}

// Open 解析 data 中的文件头并校验所有表。
func Open(data []byte, opts ...Option) (*File, error) {
	o := openOptions{maxTablesSize: DefaultMaxTablesSize}
	for _, opt := range opts {
		opt(&o)
	}

	if len(data) < prefixSize {
		return nil, merr.WrapErrTablesInvalid(fmt.Sprintf("file is %d bytes, shorter than prefix", len(data)))
	}
	if !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return nil, merr.WrapErrTablesInvalid(fmt.Sprintf("bad magic %q", data[:len(Magic)]))
	}
	length := binary.BigEndian.Uint32(data[len(Magic):prefixSize])
	if length > o.maxTablesSize {
		return nil, merr.WrapErrTablesInvalid(fmt.Sprintf("tables size %d exceeds max %d", length, o.maxTablesSize))
	}
	if uint64(length) > uint64(len(data)-prefixSize) {
		return nil, merr.WrapErrTablesInvalid(fmt.Sprintf("tables size %d exceeds file size %d", length, len(data)))
	}

	headerEnd := prefixSize + int(length)
	tables, err := Unmarshal(data[prefixSize:headerEnd])
	if err != nil {
		return nil, err
	}
	f := &File{
		Tables:     tables,
		Data:       data[headerEnd:],
		HeaderSize: headerEnd,
	}
	if err := tables.Validate(uint64(len(f.Data))); err != nil {
		return nil, err
	}
	return f, nil
}

// Object 返回第 i 个导出对象的数据。
func (f *File) Object(i int) []byte {
	e := f.Tables.Exports[i]
	return f.Data[e.Offset : e.Offset+e.Size]
}

// Buffer 返回第 i 个异步缓冲区的数据。
func (f *File) Buffer(i int) []byte {
	e := f.Tables.Buffers[i]
	return f.Data[e.Offset : e.Offset+e.Size]
}
