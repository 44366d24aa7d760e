package resource

import (
	"context"

	"github.com/lk2023060901/garden-objstream/internal/filetables"
	"github.com/lk2023060901/garden-objstream/pkg/rtti"
	"github.com/lk2023060901/garden-objstream/pkg/stream"
)

// Importer 加载文件引用的外部资源。
type Importer interface {
	Import(ctx context.Context, path string, class rtti.Type) (rtti.Object, error)
}

// ImporterFunc 把普通函数适配为 Importer。
type ImporterFunc func(ctx context.Context, path string, class rtti.Type) (rtti.Object, error)

func (f ImporterFunc) Import(ctx context.Context, path string, class rtti.Type) (rtti.Object, error) {
	return f(ctx, path, class)
}

// ProgressFunc 在每个对象写出后被调用。调用可能来自不同的 goroutine，但彼此串行，done 严格递增。
type ProgressFunc func(done, total int)

type options struct {
	registry *rtti.Registry

	// save
	protected bool
	workers   int
	pageSize  int
	maxBytes  int64
	progress  ProgressFunc

	// load
	verifyChecksum bool
	importer       Importer
	importAttempts uint
	root           rtti.Object
	maxTablesSize  uint32
}

func defaultOptions() *options {
	return &options{
		registry:       rtti.Default(),
		verifyChecksum: true,
		importAttempts: 3,
		maxTablesSize:  filetables.DefaultMaxTablesSize,
	}
}

func newOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) streamOptions() []stream.Option {
	return []stream.Option{
		stream.WithPageSize(o.pageSize),
		stream.WithMaxBytes(o.maxBytes),
	}
}

// Option 配置保存与加载。只对其中一方有意义的选项会被另一方忽略。
type Option func(*options)

// WithRegistry 指定类型注册表，默认使用 rtti.Default()。
func WithRegistry(r *rtti.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithProtected 以受保护布局保存：每条记录带标签，每个对象带 CRC。
func WithProtected(protected bool) Option {
	return func(o *options) {
		o.protected = protected
	}
}

// WithWorkers 设置并行写出对象的 goroutine 数，0 表示 GOMAXPROCS。
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithPageSize 设置每个对象的操作码流的页大小。
func WithPageSize(size int) Option {
	return func(o *options) {
		o.pageSize = size
	}
}

// WithMaxBytes 限制单个对象的操作码流大小，超过时保存失败。
func WithMaxBytes(limit int64) Option {
	return func(o *options) {
		o.maxBytes = limit
	}
}

// WithProgress 设置保存进度回调。回调在持有内部锁时执行，不应阻塞。
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// WithVerifyChecksum 控制加载受保护文件时是否校验对象和缓冲区的 CRC。
func WithVerifyChecksum(verify bool) Option {
	return func(o *options) {
		o.verifyChecksum = verify
	}
}

// WithImporter 设置同步资源引用的加载器。未设置时资源引用只保留路径。
func WithImporter(importer Importer) Option {
	return func(o *options) {
		o.importer = importer
	}
}

// WithImportAttempts 设置单个资源可重试错误的最大尝试次数。
func WithImportAttempts(n uint) Option {
	return func(o *options) {
		o.importAttempts = n
	}
}

// WithRoot 让文件中的第一个根对象读入 root，而不是新建对象。
// root 的类必须与文件中记录的类一致。
func WithRoot(root rtti.Object) Option {
	return func(o *options) {
		o.root = root
	}
}

func WithMaxTablesSize(size uint32) Option {
	return func(o *options) {
		o.maxTablesSize = size
	}
}
