package stream

import (
	"hash/crc32"
)

// StringID 是驻留字符串，写入时去重为名称表下标。空串表示空名。
type StringID string

func (id StringID) Empty() bool {
	return id == ""
}

// Type 是可以被类型引用记录引用的类型描述。
type Type interface {
	Name() string
}

// Property 是类上的一个属性描述。
type Property interface {
	Name() string
	Owner() Type
	Type() Type
}

// Object 是可以被对象指针记录引用的对象。
type Object interface {
	Class() Type
	Parent() Object
}

// Retainer 由需要引用计数的对象实现：流在写入指针时 Retain，Close 时 Release。
type Retainer interface {
	Retain()
	Release()
}

// ResourceKey 唯一标识一个外部资源引用。
type ResourceKey struct {
	Path  string
	Class Type
}

// Empty 报告 k 是否为空引用：路径或类任一为空都按空引用写出。
func (k ResourceKey) Empty() bool {
	return k.Path == "" || k.Class == nil
}

// AsyncBuffer 是随文件一起保存、按需加载的大块二进制数据。
// 写入方以指针去重，同一个 *AsyncBuffer 在文件中只存一份。
type AsyncBuffer struct {
	data     []byte
	checksum uint32
}

func NewAsyncBuffer(data []byte) *AsyncBuffer {
	return &AsyncBuffer{
		data:     data,
		checksum: crc32.ChecksumIEEE(data),
	}
}

func (b *AsyncBuffer) Data() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

func (b *AsyncBuffer) Size() int {
	return len(b.Data())
}

func (b *AsyncBuffer) Checksum() uint32 {
	if b == nil {
		return 0
	}
	return b.checksum
}

// ResolvedType 是读取端的类型表项。Type 为 nil 表示当前进程不认识该类型，Name 仍然可用。
type ResolvedType struct {
	Type Type
	Name StringID
}

func (t ResolvedType) Empty() bool {
	return t.Type == nil && t.Name.Empty()
}

// ResolvedProperty 是读取端的属性表项。Property 为 nil 表示属性已不存在。
type ResolvedProperty struct {
	Property Property
	Name     StringID
	Owner    StringID
	TypeName StringID
}

func (p ResolvedProperty) Empty() bool {
	return p.Property == nil && p.Name.Empty()
}

// ResolvedResource 是读取端的资源引用表项。
type ResolvedResource struct {
	Key   ResourceKey
	Async bool
	// Loaded 为加载器提供的已加载资源；异步引用或未加载时为 nil。
	Loaded Object
}

// Empty 只看路径：文件中引用的类在当前进程未注册时 Key.Class 为 nil，但引用本身仍然有效。
func (r ResolvedResource) Empty() bool {
	return r.Key.Path == ""
}
