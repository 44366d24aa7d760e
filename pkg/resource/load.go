package resource

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/garden-objstream/internal/filetables"
	"github.com/lk2023060901/garden-objstream/pkg/log"
	"github.com/lk2023060901/garden-objstream/pkg/metrics"
	"github.com/lk2023060901/garden-objstream/pkg/rtti"
	"github.com/lk2023060901/garden-objstream/pkg/stream"
	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
	"github.com/lk2023060901/garden-objstream/pkg/util/retry"
)

// LoadResult 是一次加载的结果。
type LoadResult struct {
	// Version 是文件格式版本。
	Version string
	// Roots 是没有父对象的导出对象，按导出顺序排列。
	Roots []rtti.Object
	// Objects 按导出下标排列，第 0 项以及没有创建出来的对象为 nil。
	Objects []rtti.Object
	// Imports 是解析后的资源引用表，第 0 项为空。
	Imports []stream.ResolvedResource
	Buffers []*stream.AsyncBuffer
}

// Dependency 是文件引用的一个外部资源。
type Dependency struct {
	Path      string
	ClassName string
	// Class 为 nil 表示当前进程不认识该类。
	Class rtti.Type
	Async bool
}

// loader 持有一次加载过程中解析出的表。
type loader struct {
	opts  *options
	file  *filetables.File
	types []rtti.Type
	refs  *stream.ResolvedReferences
}

func openFile(data []byte, o *options) (*loader, error) {
	f, err := filetables.Open(data, filetables.WithMaxTablesSize(o.maxTablesSize))
	if err != nil {
		return nil, err
	}
	return &loader{
		opts: o,
		file: f,
		refs: stream.NewResolvedReferences(),
	}, nil
}

func (l *loader) resolveNames() {
	for _, name := range l.file.Tables.Names[1:] {
		l.refs.Names = append(l.refs.Names, stream.StringID(name))
	}
}

func (l *loader) resolveTypes(ctx context.Context) {
	tables := l.file.Tables
	l.types = make([]rtti.Type, len(tables.Types))
	for i := 1; i < len(tables.Types); i++ {
		name := tables.TypeName(uint32(i))
		entry := stream.ResolvedType{Name: stream.StringID(name)}
		if t, ok := l.opts.registry.FindType(name); ok {
			l.types[i] = t
			entry.Type = t
		} else {
			log.Ctx(ctx).RatedWarn(1, "type used in file is not registered", zap.String("type", name))
		}
		l.refs.Types = append(l.refs.Types, entry)
	}
}

func (l *loader) resolveProperties(ctx context.Context) {
	tables := l.file.Tables
	for _, e := range tables.Properties[1:] {
		entry := stream.ResolvedProperty{
			Name:     stream.StringID(tables.Name(e.Name)),
			Owner:    stream.StringID(tables.TypeName(e.Class)),
			TypeName: stream.StringID(tables.TypeName(e.Type)),
		}
		if class, ok := l.types[e.Class].(*rtti.ClassType); ok {
			if p := class.FindProperty(string(entry.Name)); p != nil {
				entry.Property = p
			} else {
				log.Ctx(ctx).RatedWarn(1, "property used in file no longer exists",
					log.FieldClass(class.Name()),
					zap.String("property", string(entry.Name)))
			}
		}
		l.refs.Properties = append(l.refs.Properties, entry)
	}
}

func (l *loader) resolveImports(ctx context.Context) error {
	tables := l.file.Tables
	for _, e := range tables.Imports[1:] {
		entry := stream.ResolvedResource{
			Key:   stream.ResourceKey{Path: e.Path},
			Async: e.Async,
		}
		if t := l.types[e.Class]; t != nil {
			entry.Key.Class = t
		}
		l.refs.Resources = append(l.refs.Resources, entry)
	}
	if l.opts.importer == nil {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if l.opts.workers > 0 {
		g.SetLimit(l.opts.workers)
	}
	for i := 1; i < len(tables.Imports); i++ {
		e := tables.Imports[i]
		if e.Async {
			continue
		}
		class := l.types[e.Class]
		slot := &l.refs.Resources[i]
		g.Go(func() error {
			var obj rtti.Object
			err := retry.Do(gctx, func() error {
				var err error
				obj, err = l.opts.importer.Import(gctx, e.Path, class)
				return err
			}, retry.Attempts(l.opts.importAttempts))
			if err != nil {
				if merr.IsCanceledOrTimeout(err) {
					return err
				}
				metrics.ImportFailures.Inc()
				log.Ctx(ctx).Warn("failed to load imported resource",
					log.FieldPath(e.Path),
					log.FieldClass(tables.TypeName(e.Class)),
					zap.Error(err))
				return nil
			}
			if obj != nil {
				slot.Loaded = obj
			}
			return nil
		})
	}
	return g.Wait()
}

// createExports 创建所有导出对象并建立父子关系。
// 类不可创建的对象以及父对象没有创建出来的对象都会被跳过，指向它们的指针读出为空。
func (l *loader) createExports(ctx context.Context) ([]rtti.Object, error) {
	tables := l.file.Tables
	objects := make([]rtti.Object, len(tables.Exports))
	root := l.opts.root
	for i := 1; i < len(tables.Exports); i++ {
		e := tables.Exports[i]
		class, ok := l.types[e.Class].(*rtti.ClassType)
		if !ok || !class.IsObject() {
			log.Ctx(ctx).RatedWarn(1, "exported object has no creatable class, skipped",
				zap.Int("export", i),
				log.FieldClass(tables.TypeName(e.Class)))
			continue
		}
		var parent rtti.Object
		if e.Parent != 0 {
			parent = objects[e.Parent]
			if parent == nil {
				log.Ctx(ctx).Debug("parent of exported object was skipped",
					zap.Int("export", i),
					zap.Uint32("parent", e.Parent))
				continue
			}
		}

		var obj rtti.Object
		if root != nil && parent == nil {
			bound, err := l.opts.registry.ClassOf(root)
			if err != nil {
				return nil, err
			}
			if bound != class {
				return nil, merr.WrapErrParameterInvalid(class.Name(), bound.Name(), "root override class")
			}
			obj, root = root, nil
		} else {
			created, err := class.New()
			if err != nil {
				return nil, err
			}
			obj = created
		}
		if parent != nil {
			rtti.SetParentOf(obj, parent)
		}
		objects[i] = obj
	}

	l.refs.Objects = make([]stream.Object, len(objects))
	for i, obj := range objects {
		if obj != nil {
			l.refs.Objects[i] = obj
		}
	}
	return objects, nil
}

func (l *loader) resolveBuffers() error {
	tables := l.file.Tables
	for i := 1; i < len(tables.Buffers); i++ {
		buf := stream.NewAsyncBuffer(bytes.Clone(l.file.Buffer(i)))
		if l.opts.verifyChecksum && buf.Checksum() != tables.Buffers[i].Checksum {
			metrics.ChecksumFailures.Inc()
			return errors.Wrapf(merr.WrapErrChecksumMismatch(i, tables.Buffers[i].Checksum, buf.Checksum()), "buffer %d", i)
		}
		l.refs.AsyncBuffers = append(l.refs.AsyncBuffers, buf)
	}
	return nil
}

func (l *loader) readObjects(ctx context.Context, objects []rtti.Object) error {
	tables := l.file.Tables
	protected := tables.Protected()
	for i, obj := range objects {
		if obj == nil {
			continue
		}
		e := tables.Exports[i]
		data := l.file.Object(i)
		if protected && l.opts.verifyChecksum {
			if sum := crc32.ChecksumIEEE(data); sum != e.Checksum {
				metrics.ChecksumFailures.Inc()
				return merr.WrapErrChecksumMismatch(i, e.Checksum, sum)
			}
		}
		r := stream.NewReader(data, l.refs, protected)
		if err := rtti.ReadObject(ctx, r, obj); err != nil {
			return errors.Wrapf(err, "read export %d of class %s", i, tables.TypeName(e.Class))
		}
		if !r.AtEnd() {
			log.Ctx(ctx).RatedWarn(1, "object data has trailing bytes",
				zap.Int("export", i),
				zap.Int("remaining", r.Remaining()))
		}
	}
	return nil
}

// LoadFile 从 data 加载一个文件。
//
// 当前进程不认识的类型和属性会被跳过并记录告警；受保护文件默认校验每个对象的 CRC。
// 所有对象读完后依次调用实现了 rtti.PostLoader 的对象。
func LoadFile(ctx context.Context, data []byte, opts ...Option) (*LoadResult, error) {
	ctx, span := log.NewIntentContext(ctx, "resource", "LoadFile")
	defer span.End()

	o := newOptions(opts)
	start := time.Now()
	res, protected, err := loadFile(ctx, data, o)
	if err != nil {
		span.RecordError(err)
		log.Ctx(ctx).Warn("load file failed", zap.Error(err))
		return nil, err
	}

	layout := metrics.Layout(protected)
	loaded := 0
	for _, obj := range res.Objects {
		if obj != nil {
			loaded++
		}
	}
	metrics.LoadedObjects.WithLabelValues(layout).Add(float64(loaded))
	metrics.LoadLatency.WithLabelValues(layout).Observe(float64(time.Since(start).Milliseconds()))
	log.Ctx(ctx).Debug("file loaded",
		zap.String("version", res.Version),
		zap.Int("objects", loaded),
		zap.Int("roots", len(res.Roots)),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func loadFile(ctx context.Context, data []byte, o *options) (*LoadResult, bool, error) {
	l, err := openFile(data, o)
	if err != nil {
		return nil, false, err
	}
	tables := l.file.Tables
	if len(tables.Exports) <= 1 {
		return nil, tables.Protected(), merr.ErrNothingToLoad
	}

	l.resolveNames()
	l.resolveTypes(ctx)
	l.resolveProperties(ctx)
	if err := l.resolveImports(ctx); err != nil {
		return nil, tables.Protected(), err
	}
	objects, err := l.createExports(ctx)
	if err != nil {
		return nil, tables.Protected(), err
	}
	if err := l.resolveBuffers(); err != nil {
		return nil, tables.Protected(), err
	}
	if err := l.readObjects(ctx, objects); err != nil {
		return nil, tables.Protected(), err
	}

	var errs []error
	for i, obj := range objects {
		if pl, ok := obj.(rtti.PostLoader); ok {
			if err := pl.OnPostLoad(ctx); err != nil {
				errs = append(errs, errors.Wrapf(err, "post load export %d", i))
			}
		}
	}
	if err := merr.Combine(errs...); err != nil {
		return nil, tables.Protected(), err
	}

	res := &LoadResult{
		Version: tables.Version.String(),
		Objects: objects,
		Imports: l.refs.Resources,
		Buffers: l.refs.AsyncBuffers,
	}
	for i, obj := range objects {
		if obj != nil && tables.Exports[i].Parent == 0 {
			res.Roots = append(res.Roots, obj)
		}
	}
	return res, tables.Protected(), nil
}

// LoadFileDependencies 只解析文件头，列出文件引用的外部资源。
func LoadFileDependencies(ctx context.Context, data []byte, opts ...Option) ([]Dependency, error) {
	o := newOptions(opts)
	l, err := openFile(data, o)
	if err != nil {
		return nil, err
	}
	l.resolveNames()
	l.resolveTypes(ctx)

	tables := l.file.Tables
	deps := make([]Dependency, 0, len(tables.Imports)-1)
	for _, e := range tables.Imports[1:] {
		deps = append(deps, Dependency{
			Path:      e.Path,
			ClassName: tables.TypeName(e.Class),
			Class:     l.types[e.Class],
			Async:     e.Async,
		})
	}
	return deps, nil
}

// String 便于在日志中输出依赖。
func (d Dependency) String() string {
	if d.Async {
		return fmt.Sprintf("%s(%s, async)", d.Path, d.ClassName)
	}
	return fmt.Sprintf("%s(%s)", d.Path, d.ClassName)
}
