package stream

import (
	"github.com/lk2023060901/garden-objstream/pkg/util/typeutil"
)

// WriterReferences 收集写入过程中遇到的所有引用，按首次出现的顺序去重。
// 空引用不会进入集合。
type WriterReferences struct {
	Names          typeutil.OrderedSet[StringID]
	Types          typeutil.OrderedSet[Type]
	Properties     typeutil.OrderedSet[Property]
	Objects        typeutil.OrderedSet[Object]
	SyncResources  typeutil.OrderedSet[ResourceKey]
	AsyncResources typeutil.OrderedSet[ResourceKey]
	AsyncBuffers   typeutil.OrderedSet[*AsyncBuffer]
}

func NewWriterReferences() *WriterReferences {
	return &WriterReferences{}
}

// Merge 把 other 中的引用按顺序并入 refs。
func (refs *WriterReferences) Merge(other *WriterReferences) {
	for _, v := range other.Names.Values() {
		refs.Names.Insert(v)
	}
	for _, v := range other.Types.Values() {
		refs.Types.Insert(v)
	}
	for _, v := range other.Properties.Values() {
		refs.Properties.Insert(v)
	}
	for _, v := range other.Objects.Values() {
		refs.Objects.Insert(v)
	}
	for _, v := range other.SyncResources.Values() {
		refs.SyncResources.Insert(v)
	}
	for _, v := range other.AsyncResources.Values() {
		refs.AsyncResources.Insert(v)
	}
	for _, v := range other.AsyncBuffers.Values() {
		refs.AsyncBuffers.Insert(v)
	}
}

// Freeze 按集合顺序分配从 1 开始的稠密下标。
// 同步资源在前，异步资源紧随其后，共用一个下标空间。
func (refs *WriterReferences) Freeze() *MappedReferences {
	mapped := NewMappedReferences()
	for i, v := range refs.Names.Values() {
		mapped.Names[v] = uint32(i + 1)
	}
	for i, v := range refs.Types.Values() {
		mapped.Types[v] = uint32(i + 1)
	}
	for i, v := range refs.Properties.Values() {
		mapped.Properties[v] = uint32(i + 1)
	}
	for i, v := range refs.Objects.Values() {
		mapped.Objects[v] = uint32(i + 1)
	}
	for i, v := range refs.SyncResources.Values() {
		mapped.SyncResources[v] = uint32(i + 1)
	}
	base := refs.SyncResources.Len()
	for i, v := range refs.AsyncResources.Values() {
		mapped.AsyncResources[v] = uint32(base + i + 1)
	}
	for i, v := range refs.AsyncBuffers.Values() {
		mapped.AsyncBuffers[v] = uint32(i + 1)
	}
	mapped.refs = refs
	return mapped
}

// MappedReferences 把每个引用映射到它在最终字节流中的下标。
// WriteOpcodes 只读取它，因此多个流可以共享同一份映射并行写出。
type MappedReferences struct {
	Names          map[StringID]uint32
	Types          map[Type]uint32
	Properties     map[Property]uint32
	Objects        map[Object]uint32
	SyncResources  map[ResourceKey]uint32
	AsyncResources map[ResourceKey]uint32
	AsyncBuffers   map[*AsyncBuffer]uint32

	refs *WriterReferences
}

func NewMappedReferences() *MappedReferences {
	return &MappedReferences{
		Names:          make(map[StringID]uint32),
		Types:          make(map[Type]uint32),
		Properties:     make(map[Property]uint32),
		Objects:        make(map[Object]uint32),
		SyncResources:  make(map[ResourceKey]uint32),
		AsyncResources: make(map[ResourceKey]uint32),
		AsyncBuffers:   make(map[*AsyncBuffer]uint32),
	}
}

// Resolved 生成与本映射配套的读取端引用表，用于同一进程内的往返（例如撤销缓冲）。
// 只能用于 Freeze 得到的映射。
func (m *MappedReferences) Resolved() *ResolvedReferences {
	if m.refs == nil {
		panic("stream: Resolved requires references produced by Freeze")
	}
	refs := m.refs
	resolved := &ResolvedReferences{
		Names:        make([]StringID, 1, refs.Names.Len()+1),
		Types:        make([]ResolvedType, 1, refs.Types.Len()+1),
		Properties:   make([]ResolvedProperty, 1, refs.Properties.Len()+1),
		Objects:      make([]Object, 1, refs.Objects.Len()+1),
		Resources:    make([]ResolvedResource, 1, refs.SyncResources.Len()+refs.AsyncResources.Len()+1),
		AsyncBuffers: make([]*AsyncBuffer, 1, refs.AsyncBuffers.Len()+1),
	}
	resolved.Names = append(resolved.Names, refs.Names.Values()...)
	for _, t := range refs.Types.Values() {
		resolved.Types = append(resolved.Types, ResolvedType{Type: t, Name: StringID(t.Name())})
	}
	for _, p := range refs.Properties.Values() {
		resolved.Properties = append(resolved.Properties, ResolvedPropertyOf(p))
	}
	resolved.Objects = append(resolved.Objects, refs.Objects.Values()...)
	for _, k := range refs.SyncResources.Values() {
		resolved.Resources = append(resolved.Resources, ResolvedResource{Key: k})
	}
	for _, k := range refs.AsyncResources.Values() {
		resolved.Resources = append(resolved.Resources, ResolvedResource{Key: k, Async: true})
	}
	resolved.AsyncBuffers = append(resolved.AsyncBuffers, refs.AsyncBuffers.Values()...)
	return resolved
}

// ResolvedPropertyOf 为一个存活的属性构造读取端表项。
func ResolvedPropertyOf(p Property) ResolvedProperty {
	rp := ResolvedProperty{Property: p, Name: StringID(p.Name())}
	if owner := p.Owner(); owner != nil {
		rp.Owner = StringID(owner.Name())
	}
	if t := p.Type(); t != nil {
		rp.TypeName = StringID(t.Name())
	}
	return rp
}

// ResolvedReferences 是读取端的引用表，每张表的第 0 项是空引用。
type ResolvedReferences struct {
	Names        []StringID
	Types        []ResolvedType
	Properties   []ResolvedProperty
	Objects      []Object
	Resources    []ResolvedResource
	AsyncBuffers []*AsyncBuffer
}

// NewResolvedReferences 返回只含空引用项的引用表。
func NewResolvedReferences() *ResolvedReferences {
	return &ResolvedReferences{
		Names:        make([]StringID, 1),
		Types:        make([]ResolvedType, 1),
		Properties:   make([]ResolvedProperty, 1),
		Objects:      make([]Object, 1),
		Resources:    make([]ResolvedResource, 1),
		AsyncBuffers: make([]*AsyncBuffer, 1),
	}
}
