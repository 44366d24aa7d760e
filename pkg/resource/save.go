package resource

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-objstream/internal/filetables"
	"github.com/lk2023060901/garden-objstream/pkg/log"
	"github.com/lk2023060901/garden-objstream/pkg/metrics"
	"github.com/lk2023060901/garden-objstream/pkg/rtti"
	"github.com/lk2023060901/garden-objstream/pkg/stream"
	"github.com/lk2023060901/garden-objstream/pkg/util/conc"
	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

// SaveResult 汇总一次保存。
type SaveResult struct {
	Objects      int
	Buffers      int
	Imports      int
	LostPointers int
	Bytes        int64
}

type blob struct {
	data     []byte
	checksum uint32
}

// SaveFile 把 roots 及其子对象保存为一个文件写入 sink。
//
// 对象按父对象在前的顺序导出；ctx 取消时返回 merr.ErrSaveCanceled，sink 中可能已有部分数据。
func SaveFile(ctx context.Context, sink io.Writer, roots []rtti.Object, opts ...Option) (*SaveResult, error) {
	ctx, span := log.NewIntentContext(ctx, "resource", "SaveFile")
	defer span.End()

	o := newOptions(opts)
	layout := metrics.Layout(o.protected)
	start := time.Now()

	res, err := saveFile(ctx, sink, roots, o)
	if err != nil {
		reason := "error"
		switch {
		case errors.Is(err, merr.ErrSaveCanceled):
			reason = "canceled"
		case errors.Is(err, merr.ErrStreamCorrupted):
			reason = "corrupted"
		case errors.Is(err, merr.ErrIoFailed):
			reason = "io"
		}
		metrics.SaveFailures.WithLabelValues(reason).Inc()
		span.RecordError(err)
		log.Ctx(ctx).Warn("save file failed", zap.Error(err))
		return nil, err
	}

	metrics.SavedObjects.WithLabelValues(layout).Add(float64(res.Objects))
	metrics.SavedBytes.WithLabelValues(layout).Observe(float64(res.Bytes))
	metrics.SaveLatency.WithLabelValues(layout).Observe(float64(time.Since(start).Milliseconds()))
	log.Ctx(ctx).Debug("file saved",
		zap.Int("objects", res.Objects),
		zap.Int("buffers", res.Buffers),
		zap.Int("imports", res.Imports),
		zap.Int64("bytes", res.Bytes),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func saveFile(ctx context.Context, sink io.Writer, roots []rtti.Object, o *options) (*SaveResult, error) {
	if len(roots) == 0 {
		return nil, merr.WrapErrParameterMissing("roots")
	}

	c := newCollector(o, roots)
	defer c.close()
	if err := c.collect(ctx); err != nil {
		return nil, err
	}
	objects := c.ordered()

	var flags filetables.Flags
	if o.protected {
		flags |= filetables.FlagProtected
	}
	b := newTableBuilder(flags)
	b.build(c.refs, objects)

	blobs, err := binarize(ctx, o, objects, b.mapped)
	if err != nil {
		return nil, err
	}

	tables := b.tables
	var offset uint64
	for i, bl := range blobs {
		e := &tables.Exports[i+1]
		e.Offset = offset
		e.Size = uint64(len(bl.data))
		e.Checksum = bl.checksum
		offset += e.Size
	}
	buffers := c.refs.AsyncBuffers.Values()
	for i := range buffers {
		e := &tables.Buffers[i+1]
		e.Offset = offset
		offset += e.Size
	}

	n, err := filetables.WriteHeader(sink, tables)
	if err != nil {
		return nil, err
	}
	fw := stream.NewFileWriter(sink)
	chunks := make([][]byte, 0, len(blobs)+len(buffers))
	for _, bl := range blobs {
		chunks = append(chunks, bl.data)
	}
	for _, buf := range buffers {
		chunks = append(chunks, buf.Data())
	}
	for _, chunk := range chunks {
		if _, err := fw.Write(chunk); err != nil {
			fw.Close()
			return nil, err
		}
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}

	return &SaveResult{
		Objects:      len(objects),
		Buffers:      len(buffers),
		Imports:      len(tables.Imports) - 1,
		LostPointers: len(c.lost),
		Bytes:        int64(n) + fw.Written(),
	}, nil
}

// binarize 在协程池中把每个对象的操作码流写成最终字节。
func binarize(ctx context.Context, o *options, objects []*savedObject, mapped *stream.MappedReferences) ([]blob, error) {
	var pool *conc.Pool[blob]
	poolOpts := []conc.PoolOption{conc.WithName("binarize"), conc.WithConcealPanic(true)}
	if o.workers > 0 {
		pool = conc.NewPool[blob](o.workers, poolOpts...)
	} else {
		pool = conc.NewDefaultPool[blob](poolOpts...)
	}
	defer pool.Release()

	total := len(objects)
	done := atomic.NewInt32(0)
	var progressMu sync.Mutex
	futures := make([]*conc.Future[blob], 0, total)
	for _, so := range objects {
		so := so
		futures = append(futures, pool.Submit(func() (blob, error) {
			if err := ctx.Err(); err != nil {
				return blob{}, merr.WrapErrSaveCanceled(int(done.Load()), err)
			}
			var buf bytes.Buffer
			fw := stream.NewFileWriter(&buf)
			if err := stream.WriteOpcodes(o.protected, so.stream, mapped, fw); err != nil {
				fw.Close()
				return blob{}, errors.Wrapf(err, "binarize object of class %s", so.class.Name())
			}
			if err := fw.Close(); err != nil {
				return blob{}, err
			}
			progressMu.Lock()
			n := done.Inc()
			if o.progress != nil {
				o.progress(int(n), total)
			}
			progressMu.Unlock()
			return blob{data: buf.Bytes(), checksum: fw.Checksum()}, nil
		}))
	}
	if err := conc.AwaitAll(futures...); err != nil {
		return nil, err
	}

	blobs := make([]blob, total)
	for i, f := range futures {
		blobs[i] = f.Value()
	}
	return blobs, nil
}
