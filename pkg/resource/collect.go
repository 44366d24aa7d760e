package resource

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-objstream/internal/filetables"
	"github.com/lk2023060901/garden-objstream/pkg/log"
	"github.com/lk2023060901/garden-objstream/pkg/metrics"
	"github.com/lk2023060901/garden-objstream/pkg/rtti"
	"github.com/lk2023060901/garden-objstream/pkg/stream"
	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

// savedObject 是一个已经写成操作码流、等待写出的对象。
type savedObject struct {
	obj    rtti.Object
	class  *rtti.ClassType
	stream *stream.Stream
	refs   *stream.WriterReferences
}

// collector 从根对象出发，按广度优先收集所有需要保存的对象。
// 只有父链上有某个根对象的对象才会被保存，其余被引用的对象在文件中记为空指针。
type collector struct {
	opts  *options
	roots []rtti.Object

	queue   []rtti.Object
	visited map[rtti.Object]*savedObject
	lost    map[rtti.Object]struct{}
	saved   []*savedObject
	refs    *stream.WriterReferences
}

func newCollector(opts *options, roots []rtti.Object) *collector {
	return &collector{
		opts:    opts,
		roots:   roots,
		visited: make(map[rtti.Object]*savedObject),
		lost:    make(map[rtti.Object]struct{}),
		refs:    stream.NewWriterReferences(),
	}
}

func (c *collector) enqueue(obj rtti.Object) {
	if _, ok := c.visited[obj]; ok {
		return
	}
	c.visited[obj] = nil
	c.queue = append(c.queue, obj)
}

func (c *collector) shouldSave(obj rtti.Object) bool {
	for _, root := range c.roots {
		if rtti.HasParent(obj, root) {
			return true
		}
	}
	return false
}

func (c *collector) collect(ctx context.Context) error {
	for _, root := range c.roots {
		if root != nil {
			c.enqueue(root)
		}
	}
	for len(c.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return merr.WrapErrSaveCanceled(len(c.saved), err)
		}
		obj := c.queue[0]
		c.queue = c.queue[1:]

		so, err := c.write(ctx, obj)
		if err != nil {
			return err
		}
		c.visited[obj] = so
		c.saved = append(c.saved, so)
		c.refs.Merge(so.refs)

		for _, ref := range so.refs.Objects.Values() {
			target, ok := ref.(rtti.Object)
			if !ok {
				continue
			}
			if c.shouldSave(target) {
				c.enqueue(target)
				continue
			}
			if _, ok := c.lost[target]; !ok {
				c.lost[target] = struct{}{}
				metrics.LostPointers.Inc()
				log.Ctx(ctx).RatedWarn(1, "object references an object outside the saved roots, pointer will be lost",
					log.FieldClass(so.class.Name()),
					zap.String("target", typeName(target.Class())))
			}
		}
	}
	return nil
}

func (c *collector) write(ctx context.Context, obj rtti.Object) (*savedObject, error) {
	class, err := c.opts.registry.ClassOf(obj)
	if err != nil {
		return nil, err
	}
	s := stream.NewStream(c.opts.streamOptions()...)
	w := stream.NewWriter(s, nil)
	if err := rtti.WriteObject(ctx, w, obj); err != nil {
		s.Close()
		return nil, errors.Wrapf(err, "write object of class %s", class.Name())
	}
	if err := w.Finish(); err != nil {
		s.Close()
		return nil, errors.Wrapf(err, "write object of class %s", class.Name())
	}
	return &savedObject{obj: obj, class: class, stream: s, refs: w.References()}, nil
}

// ordered 返回父对象总在子对象之前的保存顺序。
func (c *collector) ordered() []*savedObject {
	done := make(map[rtti.Object]struct{}, len(c.saved))
	out := make([]*savedObject, 0, len(c.saved))
	for _, so := range c.saved {
		var chain []*savedObject
		for cur := so.obj; cur != nil; cur = rtti.ParentOf(cur) {
			if _, ok := done[cur]; ok {
				break
			}
			if parent := c.visited[cur]; parent != nil {
				chain = append(chain, parent)
			}
		}
		for i := len(chain) - 1; i >= 0; i-- {
			done[chain[i].obj] = struct{}{}
			out = append(out, chain[i])
		}
	}
	return out
}

func (c *collector) close() {
	for _, so := range c.saved {
		so.stream.Close()
	}
}

// tableBuilder 生成文件表，同时填写写出时使用的引用映射。
type tableBuilder struct {
	tables *filetables.Tables
	mapped *stream.MappedReferences
	names  map[string]uint32
	types  map[stream.Type]uint32
}

func newTableBuilder(flags filetables.Flags) *tableBuilder {
	return &tableBuilder{
		tables: filetables.New(flags),
		mapped: stream.NewMappedReferences(),
		names:  make(map[string]uint32),
		types:  make(map[stream.Type]uint32),
	}
}

func (b *tableBuilder) name(s string) uint32 {
	if s == "" {
		return 0
	}
	if i, ok := b.names[s]; ok {
		return i
	}
	i := uint32(len(b.tables.Names))
	b.tables.Names = append(b.tables.Names, s)
	b.names[s] = i
	b.mapped.Names[stream.StringID(s)] = i
	return i
}

func (b *tableBuilder) typ(t stream.Type) uint32 {
	if t == nil {
		return 0
	}
	if i, ok := b.types[t]; ok {
		return i
	}
	entry := filetables.TypeEntry{Name: b.name(t.Name())}
	i := uint32(len(b.tables.Types))
	b.tables.Types = append(b.tables.Types, entry)
	b.types[t] = i
	b.mapped.Types[t] = i
	return i
}

func (b *tableBuilder) property(p stream.Property) {
	entry := filetables.PropertyEntry{
		Class: b.typ(p.Owner()),
		Name:  b.name(p.Name()),
		Type:  b.typ(p.Type()),
	}
	b.mapped.Properties[p] = uint32(len(b.tables.Properties))
	b.tables.Properties = append(b.tables.Properties, entry)
}

func (b *tableBuilder) resource(key stream.ResourceKey, async bool) {
	entry := filetables.ImportEntry{
		Path:  key.Path,
		Class: b.typ(key.Class),
		Async: async,
	}
	i := uint32(len(b.tables.Imports))
	if async {
		b.mapped.AsyncResources[key] = i
	} else {
		b.mapped.SyncResources[key] = i
	}
	b.tables.Imports = append(b.tables.Imports, entry)
}

// build 依次生成名称、类型、属性、导入、缓冲区和导出表。
// 导出对象的指针下标就是它的导出下标，未导出的对象映射为空指针。
func (b *tableBuilder) build(refs *stream.WriterReferences, objects []*savedObject) {
	for _, id := range refs.Names.Values() {
		b.name(string(id))
	}
	for _, t := range refs.Types.Values() {
		b.typ(t)
	}
	for _, p := range refs.Properties.Values() {
		b.property(p)
	}
	for _, key := range refs.SyncResources.Values() {
		b.resource(key, false)
	}
	for _, key := range refs.AsyncResources.Values() {
		b.resource(key, true)
	}
	for _, buf := range refs.AsyncBuffers.Values() {
		b.mapped.AsyncBuffers[buf] = uint32(len(b.tables.Buffers))
		b.tables.Buffers = append(b.tables.Buffers, filetables.BufferEntry{
			Size:     uint64(buf.Size()),
			Checksum: buf.Checksum(),
		})
	}

	for _, obj := range refs.Objects.Values() {
		b.mapped.Objects[obj] = 0
	}
	for _, so := range objects {
		entry := filetables.ExportEntry{Class: b.typ(so.class)}
		if parent := rtti.ParentOf(so.obj); parent != nil {
			entry.Parent = b.mapped.Objects[parent]
		}
		b.mapped.Objects[so.obj] = uint32(len(b.tables.Exports))
		b.tables.Exports = append(b.tables.Exports, entry)
	}
}

func typeName(t stream.Type) string {
	if t == nil {
		return ""
	}
	return t.Name()
}
