package filetables

import (
	"github.com/blang/semver/v4"
)

// Flags 是文件级标志位。
type Flags uint32

const (
	// FlagProtected 表示对象数据按受保护布局写出，每条记录带标签且每个对象带 CRC。
	FlagProtected Flags = 1 << iota
)

func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}

// TypeEntry 是类型表项。
type TypeEntry struct {
	Name uint32 // 名称表下标
}

// PropertyEntry 是属性表项。
type PropertyEntry struct {
	Class uint32 // 所属类的类型表下标
	Name  uint32 // 名称表下标
	Type  uint32 // 写入时数据类型的类型表下标
}

// ImportEntry 是对外部资源的引用。
type ImportEntry struct {
	Path  string
	Class uint32
	Async bool
}

// ExportEntry 描述文件中保存的一个对象。Parent 为 0 表示根对象。
type ExportEntry struct {
	Class    uint32
	Parent   uint32
	Offset   uint64
	Size     uint64
	Checksum uint32
}

// BufferEntry 描述一块单独存放的异步缓冲区。
type BufferEntry struct {
	Offset   uint64
	Size     uint64
	Checksum uint32
}

// Tables 是文件头中的所有表。
//
// 每张表的第 0 项是空项，下标从 1 开始有效，与字节流中的引用下标一致。
// Offset 都是相对于数据区起点的偏移。
type Tables struct {
	Version    semver.Version
	Flags      Flags
	Names      []string
	Types      []TypeEntry
	Properties []PropertyEntry
	Imports    []ImportEntry
	Exports    []ExportEntry
	Buffers    []BufferEntry
}

// New 创建只含空项的表，版本为 CurrentVersion。
func New(flags Flags) *Tables {
	return &Tables{
		Version:    CurrentVersion,
		Flags:      flags,
		Names:      make([]string, 1),
		Types:      make([]TypeEntry, 1),
		Properties: make([]PropertyEntry, 1),
		Imports:    make([]ImportEntry, 1),
		Exports:    make([]ExportEntry, 1),
		Buffers:    make([]BufferEntry, 1),
	}
}

func (t *Tables) Protected() bool {
	return t.Flags.Has(FlagProtected)
}

// Name 返回名称表第 i 项，越界时返回空串。
func (t *Tables) Name(i uint32) string {
	if int(i) >= len(t.Names) {
		return ""
	}
	return t.Names[i]
}

// TypeName 返回类型表第 i 项的名称。
func (t *Tables) TypeName(i uint32) string {
	if int(i) >= len(t.Types) {
		return ""
	}
	return t.Name(t.Types[i].Name)
}

// Roots 返回所有根对象的导出下标。
func (t *Tables) Roots() []int {
	var roots []int
	for i := 1; i < len(t.Exports); i++ {
		if t.Exports[i].Parent == 0 {
			roots = append(roots, i)
		}
	}
	return roots
}

// ObjectsSize 返回对象区的字节数，即缓冲区区的起点。
func (t *Tables) ObjectsSize() uint64 {
	var end uint64
	for _, e := range t.Exports[1:] {
		end = max(end, e.Offset+e.Size)
	}
	return end
}
