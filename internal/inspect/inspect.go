// Package inspect 把一个保存好的文件还原成便于阅读的结构，用于排查文件内容。
package inspect

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/lk2023060901/garden-objstream/internal/filetables"
	"github.com/lk2023060901/garden-objstream/pkg/stream"
	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

type Property struct {
	Class string `json:"class"`
	Name  string `json:"name"`
	Type  string `json:"type"`
}

type Import struct {
	Path  string `json:"path"`
	Class string `json:"class,omitempty"`
	Async bool   `json:"async,omitempty"`
}

type Export struct {
	Index    int    `json:"index"`
	Class    string `json:"class"`
	Parent   uint32 `json:"parent"`
	Offset   uint64 `json:"offset"`
	Size     uint64 `json:"size"`
	Checksum string `json:"checksum"`
	// Opcodes 只对受保护文件可用。
	Opcodes []stream.DecodedOpcode `json:"opcodes,omitempty"`
	// DecodeError 记录解码失败的原因，解码失败时 Opcodes 只包含出错前的记录。
	DecodeError string `json:"decodeError,omitempty"`
}

type Buffer struct {
	Index    int    `json:"index"`
	Offset   uint64 `json:"offset"`
	Size     uint64 `json:"size"`
	Checksum string `json:"checksum"`
}

// Report 是一个文件的完整描述，所有下标与文件中的下标一致。
type Report struct {
	Version    string     `json:"version"`
	Protected  bool       `json:"protected"`
	HeaderSize int        `json:"headerSize"`
	Names      []string   `json:"names"`
	Types      []string   `json:"types"`
	Properties []Property `json:"properties"`
	Imports    []Import   `json:"imports"`
	Exports    []Export   `json:"exports"`
	Buffers    []Buffer   `json:"buffers"`
}

type options struct {
	opcodes       bool
	maxTablesSize uint32
}

type Option func(*options)

// WithOpcodes 控制是否为受保护文件中的每个对象列出解码后的记录，默认开启。
func WithOpcodes(enable bool) Option {
	return func(o *options) {
		o.opcodes = enable
	}
}

func WithMaxTablesSize(size uint32) Option {
	return func(o *options) {
		o.maxTablesSize = size
	}
}

// Inspect 解析 data 并生成 Report。
func Inspect(data []byte, opts ...Option) (*Report, error) {
	o := &options{opcodes: true, maxTablesSize: filetables.DefaultMaxTablesSize}
	for _, opt := range opts {
		opt(o)
	}
	f, err := filetables.Open(data, filetables.WithMaxTablesSize(o.maxTablesSize))
	if err != nil {
		return nil, err
	}

	t := f.Tables
	rep := &Report{
		Version:    t.Version.String(),
		Protected:  t.Protected(),
		HeaderSize: f.HeaderSize,
		Names:      t.Names[1:],
		Types:      make([]string, 0, len(t.Types)-1),
		Properties: make([]Property, 0, len(t.Properties)-1),
		Imports:    make([]Import, 0, len(t.Imports)-1),
		Exports:    make([]Export, 0, len(t.Exports)-1),
		Buffers:    make([]Buffer, 0, len(t.Buffers)-1),
	}
	for i := 1; i < len(t.Types); i++ {
		rep.Types = append(rep.Types, t.TypeName(uint32(i)))
	}
	for _, p := range t.Properties[1:] {
		rep.Properties = append(rep.Properties, Property{
			Class: t.TypeName(p.Class),
			Name:  t.Name(p.Name),
			Type:  t.TypeName(p.Type),
		})
	}
	for _, imp := range t.Imports[1:] {
		rep.Imports = append(rep.Imports, Import{
			Path:  imp.Path,
			Class: t.TypeName(imp.Class),
			Async: imp.Async,
		})
	}
	for i := 1; i < len(t.Exports); i++ {
		e := t.Exports[i]
		exp := Export{
			Index:    i,
			Class:    t.TypeName(e.Class),
			Parent:   e.Parent,
			Offset:   e.Offset,
			Size:     e.Size,
			Checksum: checksum(e.Checksum),
		}
		if o.opcodes && t.Protected() {
			ops, err := stream.DecodeOpcodes(f.Object(i))
			exp.Opcodes = ops
			if err != nil {
				exp.DecodeError = err.Error()
			}
		}
		rep.Exports = append(rep.Exports, exp)
	}
	for i := 1; i < len(t.Buffers); i++ {
		b := t.Buffers[i]
		rep.Buffers = append(rep.Buffers, Buffer{
			Index:    i,
			Offset:   b.Offset,
			Size:     b.Size,
			Checksum: checksum(b.Checksum),
		})
	}
	return rep, nil
}

func checksum(v uint32) string {
	return fmt.Sprintf("%08x", v)
}

// dumpAPI 输出缩进的 JSON，不转义 HTML 字符。
var dumpAPI = jsoniter.Config{
	EscapeHTML:    false,
	SortMapKeys:   true,
	IndentionStep: 2,
}.Froze()

// Dump 把 data 的 Report 以 JSON 写入 w。
func Dump(w io.Writer, data []byte, opts ...Option) error {
	rep, err := Inspect(data, opts...)
	if err != nil {
		return err
	}
	if err := dumpAPI.NewEncoder(w).Encode(rep); err != nil {
		return merr.WrapErrIoFailed(err.Error(), "dump report")
	}
	return nil
}
